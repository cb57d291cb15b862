package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigStatusTransitionsAreOneDirectional(t *testing.T) {
	assert.True(t, ConfigStatusDraft.CanTransition(ConfigStatusPublished))
	assert.True(t, ConfigStatusDraft.CanTransition(ConfigStatusLocked))
	assert.True(t, ConfigStatusDraft.CanTransition(ConfigStatusArchived))
	assert.True(t, ConfigStatusPublished.CanTransition(ConfigStatusPublished))
	assert.True(t, ConfigStatusPublished.CanTransition(ConfigStatusLocked))
	assert.True(t, ConfigStatusLocked.CanTransition(ConfigStatusArchived))

	assert.False(t, ConfigStatusPublished.CanTransition(ConfigStatusDraft))
	assert.False(t, ConfigStatusLocked.CanTransition(ConfigStatusPublished))
	assert.False(t, ConfigStatusLocked.CanTransition(ConfigStatusDraft))
	assert.False(t, ConfigStatusArchived.CanTransition(ConfigStatusDraft))
	assert.False(t, ConfigStatusArchived.CanTransition(ConfigStatusArchived))
}

func TestConfigStatusMutable(t *testing.T) {
	assert.True(t, ConfigStatusDraft.Mutable())
	assert.True(t, ConfigStatusPublished.Mutable())
	assert.False(t, ConfigStatusLocked.Mutable())
	assert.False(t, ConfigStatusArchived.Mutable())
}

func TestConfigIDRoundTrip(t *testing.T) {
	id := ConfigID(Semester1, 2567)
	assert.Equal(t, "1-2567", id)

	sem, year, err := ParseConfigID(id)
	require.NoError(t, err)
	assert.Equal(t, Semester1, sem)
	assert.Equal(t, 2567, year)

	_, _, err = ParseConfigID("bogus")
	assert.Error(t, err)
	_, _, err = ParseConfigID("3-2567")
	assert.Error(t, err)
}

func TestTimeslotIDRewriteOnClone(t *testing.T) {
	id := TimeslotID(Semester1, 2567, Monday, 1)
	assert.Equal(t, "1-2567-MON1", id)
	assert.Equal(t, "2-2567-MON1", RewriteTimeslotID(id, "1-2567", "2-2567"))
}

func TestBreaktimeAppliesToGradeTiers(t *testing.T) {
	assert.True(t, BreakJunior.AppliesTo(1))
	assert.True(t, BreakJunior.AppliesTo(3))
	assert.False(t, BreakJunior.AppliesTo(4))

	assert.False(t, BreakSenior.AppliesTo(3))
	assert.True(t, BreakSenior.AppliesTo(4))
	assert.True(t, BreakSenior.AppliesTo(6))

	assert.True(t, BreakBoth.AppliesTo(1))
	assert.True(t, BreakBoth.AppliesTo(6))

	assert.False(t, NotBreak.AppliesTo(1))
	assert.False(t, NotBreak.AppliesTo(6))
}
