// Package digest provides the SHA-256 content hashing used for barcode
// artifact fingerprints, block seals and password digests.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Size is the length of a hex-encoded digest.
const Size = sha256.Size * 2

// Bytes returns the hex-encoded SHA-256 digest of data.
func Bytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Text returns the digest of the UTF-8 encoding of s.
func Text(s string) string {
	return Bytes([]byte(s))
}

// Reader streams r into the hash and returns its digest. The result equals
// Bytes of the full content.
func Reader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("read artifact: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// IsDigest reports whether s looks like a value produced by this package:
// exactly Size lowercase hex characters.
func IsDigest(s string) bool {
	if len(s) != Size {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
