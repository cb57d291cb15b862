package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DownloadClaim is the metadata embedded in a signed export download token:
// which job produced the file, which configuration it belongs to, the
// rendered format, and where it sits in the archive.
type DownloadClaim struct {
	JobID     string
	ConfigID  string
	Format    string
	Path      string
	ExpiresAt time.Time
}

// DownloadSigner mints and verifies signed export download tokens.
type DownloadSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewDownloadSigner constructs a signer with the provided secret and TTL.
func NewDownloadSigner(secret string, ttl time.Duration) *DownloadSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &DownloadSigner{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Sign mints a token for the claim. ExpiresAt on the input is ignored; the
// signer stamps its own expiry from the configured TTL and returns the
// completed claim alongside the token.
func (s *DownloadSigner) Sign(claim DownloadClaim) (string, DownloadClaim, error) {
	if claim.JobID == "" || claim.ConfigID == "" || claim.Path == "" {
		return "", DownloadClaim{}, fmt.Errorf("job id, config id, and path required")
	}
	if len(s.secret) == 0 {
		return "", DownloadClaim{}, fmt.Errorf("signing secret missing")
	}
	claim.ExpiresAt = time.Now().Add(s.ttl)
	body := encodeClaimBody(claim)
	ts := strconv.FormatInt(claim.ExpiresAt.Unix(), 10)
	token := strings.Join([]string{claim.JobID, ts, body, s.signature(claim.JobID, ts, body)}, ".")
	return token, claim, nil
}

// Verify checks a token's signature and expiry and returns the claim. When
// allowExpired is true the expiry check is skipped; sweep routines use this
// to locate files for tokens that have already lapsed.
func (s *DownloadSigner) Verify(token string, allowExpired bool) (DownloadClaim, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return DownloadClaim{}, fmt.Errorf("invalid token format")
	}
	jobID, ts, body, signature := parts[0], parts[1], parts[2], parts[3]

	if !hmac.Equal([]byte(s.signature(jobID, ts, body)), []byte(signature)) {
		return DownloadClaim{}, fmt.Errorf("invalid token signature")
	}
	claim, err := decodeClaimBody(body)
	if err != nil {
		return DownloadClaim{}, err
	}
	claim.JobID = jobID

	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return DownloadClaim{}, fmt.Errorf("invalid timestamp")
	}
	claim.ExpiresAt = time.Unix(expUnix, 0)
	if !allowExpired && time.Now().After(claim.ExpiresAt) {
		return DownloadClaim{}, fmt.Errorf("token expired")
	}
	return claim, nil
}

func (s *DownloadSigner) signature(jobID, ts, body string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(jobID + "|" + ts + "|" + body))
	return hex.EncodeToString(mac.Sum(nil))
}

func encodeClaimBody(claim DownloadClaim) string {
	raw := strings.Join([]string{claim.ConfigID, claim.Format, claim.Path}, "|")
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeClaimBody(body string) (DownloadClaim, error) {
	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return DownloadClaim{}, fmt.Errorf("decode claim: %w", err)
	}
	fields := strings.SplitN(string(raw), "|", 3)
	if len(fields) != 3 {
		return DownloadClaim{}, fmt.Errorf("malformed claim")
	}
	return DownloadClaim{ConfigID: fields[0], Format: fields[1], Path: fields[2]}, nil
}
