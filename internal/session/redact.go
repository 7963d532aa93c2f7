package session

import (
	"crypto/sha256"
	"fmt"
)

// Redact returns a short, stable fingerprint of a session id for log lines.
// Session ids are bearer capabilities and must not be written to logs.
func Redact(id string) string {
	if id == "" {
		return ""
	}
	return shortHash(id)
}

// shortHash returns a truncated SHA-256 hex digest for an opaque identifier.
func shortHash(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h[:6])
}
