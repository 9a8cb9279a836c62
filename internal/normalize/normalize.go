// Package normalize canonicalizes listing URLs and derives the deterministic
// document identifier used as the dedup key.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// URL lower-cases the scheme and host, keeps path and query and drops the
// fragment. Input that does not parse is returned trimmed but otherwise
// unchanged. URL(URL(u)) == URL(u).
func URL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// ID returns the hex SHA-256 of the canonical form of link.
// An empty link has no identifier.
func ID(link string) string {
	canonical := URL(link)
	if canonical == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
