// Package otp implements RFC 6238-style time-based one-time passwords:
// secret generation, code derivation, verification with clock-drift
// tolerance, and provisioning payloads for authenticator apps.
package otp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const (
	// Period is the length of one time slice in seconds
	Period = 30

	// Digits is the length of a generated code
	Digits = 6

	MinSecretLength = 16
	MaxSecretLength = 128
)

var ErrSecretLength = errors.New("secret length must be between 16 and 128")

// Engine generates and verifies time-based one-time codes from shared
// base32 secrets.
type Engine struct {
	issuer string
}

// NewEngine creates an Engine. The issuer names this service in
// provisioning URIs surfaced to authenticator apps.
func NewEngine(issuer string) *Engine {
	return &Engine{issuer: issuer}
}

// TimeSlice maps a wall-clock time onto its 30-second slice index.
func TimeSlice(t time.Time) int64 {
	return t.Unix() / Period
}

// CreateSecret draws length cryptographically secure random bytes and
// maps each through the base32 alphabet, yielding a secret of exactly
// length characters. Valid lengths are 16 through 128.
func (e *Engine) CreateSecret(length int) (string, error) {
	if length < MinSecretLength || length > MaxSecretLength {
		return "", ErrSecretLength
	}

	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	secret := make([]byte, length)
	for i, b := range raw {
		secret[i] = base32Alphabet[b&31]
	}

	return string(secret), nil
}

// CodeAt derives the 6-digit code for a secret at the given time slice.
//
// The derivation is HMAC-SHA1 over the big-endian 64-bit slice index,
// dynamically truncated per RFC 4226: the low four bits of the final
// HMAC byte select a 4-byte window, read big-endian with the sign bit
// masked, then reduced modulo 10^6.
func (e *Engine) CodeAt(secret string, timeSlice int64) (string, error) {
	key, err := Base32Decode(secret)
	if err != nil {
		return "", err
	}

	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(timeSlice))

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0F
	truncated := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7FFFFFFF

	return fmt.Sprintf("%06d", truncated%1000000), nil
}

// Code derives the code for the current time slice
func (e *Engine) Code(secret string) (string, error) {
	return e.CodeAt(secret, TimeSlice(time.Now()))
}

// VerifyAt reports whether code matches the secret for any slice within
// ±discrepancy of the given slice. Each candidate is compared in
// constant time. Codes that are not exactly six digits long never match.
func (e *Engine) VerifyAt(secret, code string, discrepancy int, timeSlice int64) (bool, error) {
	if len(code) != Digits {
		return false, nil
	}

	for delta := -int64(discrepancy); delta <= int64(discrepancy); delta++ {
		candidate, err := e.CodeAt(secret, timeSlice+delta)
		if err != nil {
			return false, err
		}
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(code)) == 1 {
			return true, nil
		}
	}

	return false, nil
}

// Verify checks a code against the current time slice
func (e *Engine) Verify(secret, code string, discrepancy int) (bool, error) {
	return e.VerifyAt(secret, code, discrepancy, TimeSlice(time.Now()))
}
