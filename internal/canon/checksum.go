package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ChecksumPrefix tags the digest algorithm in every checksum string.
const ChecksumPrefix = "sha256:"

// Checksum returns "sha256:" + hex(SHA-256(Marshal(v))).
func Checksum(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", fmt.Errorf("checksum: %w", err)
	}
	return ChecksumBytes(b), nil
}

// ChecksumBytes hashes already-canonical bytes.
func ChecksumBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return ChecksumPrefix + hex.EncodeToString(sum[:])
}

// MustChecksum is like Checksum but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustChecksum(v any) string {
	s, err := Checksum(v)
	if err != nil {
		panic(err)
	}
	return s
}

// VerifyChecksum recomputes the checksum of v and compares it byte-for-byte
// with want. It returns the computed checksum so callers can report both.
func VerifyChecksum(v any, want string) (bool, string, error) {
	got, err := Checksum(v)
	if err != nil {
		return false, "", err
	}
	return got == want, got, nil
}

// IsWellFormed reports whether s looks like "sha256:<64 lowercase hex>".
func IsWellFormed(s string) bool {
	if !strings.HasPrefix(s, ChecksumPrefix) {
		return false
	}
	h := strings.TrimPrefix(s, ChecksumPrefix)
	if len(h) != sha256.Size*2 {
		return false
	}
	if _, err := hex.DecodeString(h); err != nil {
		return false
	}
	return strings.ToLower(h) == h
}
