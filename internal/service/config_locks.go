package service

import "sync"

// ConfigLockRegistry enforces the single-writer-per-configuration rule.
// Edit sessions and lifecycle transitions share one registry, so a
// transition can never interleave with a half-committed batch. A busy lock
// is reported to the caller as a retryable rejection rather than waited on.
type ConfigLockRegistry struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewConfigLockRegistry() *ConfigLockRegistry {
	return &ConfigLockRegistry{held: make(map[string]bool)}
}

// TryAcquire claims the configuration for exclusive mutation.
func (r *ConfigLockRegistry) TryAcquire(configID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.held[configID] {
		return false
	}
	r.held[configID] = true
	return true
}

// Release returns the configuration to the pool. Releasing an unheld lock is
// a no-op.
func (r *ConfigLockRegistry) Release(configID string) {
	r.mu.Lock()
	delete(r.held, configID)
	r.mu.Unlock()
}
