// Package digest produces stable content digests for output documents.
// Documents are serialized to JSON, canonicalized with RFC 8785 (JCS) and hashed
// with SHA-256, so the digest depends only on content and not on key order or
// number formatting.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Canonical returns the JCS form of v's JSON encoding.
func Canonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal for digest: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize for digest: %w", err)
	}
	return canonical, nil
}

// Digest returns the hex SHA-256 of v's canonical JSON.
func Digest(v any) (string, error) {
	canonical, err := Canonical(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
