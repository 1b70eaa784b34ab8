package verify

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// Code generates the human-shareable verification code for a certificate:
// CERT<3-digit-zero-padded-id>-<12 lowercase hex chars>. Entropy comes from
// a cryptographically random 8-byte source; the database uniqueness
// constraint is the backstop, the caller regenerates once on violation.
func Code(certificateID int) (string, error) {
	raw := make([]byte, 8)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return fmt.Sprintf("CERT%03d-%s", certificateID, hex.EncodeToString(raw)[:12]), nil
}

// Token generates the opaque 64-hex-char verification token from a
// cryptographically random 32-byte source.
func Token() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// UniqueCode generates the public lookup key for a certificate. It is
// independent from the verification code and immutable once set.
func UniqueCode() string {
	return uuid.NewString()
}

// ValidationCode generates the code recorded on a public validation audit row
func ValidationCode() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return "VAL-" + hex.EncodeToString(raw), nil
}
