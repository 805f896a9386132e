// Package apikeys issues partner API keys and authenticates the partner data API.
package apikeys

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	keyPrefix    = "pk_"
	keyBytes     = 32
	prefixLength = 8
)

// GeneratedKey is a fresh key. Raw is shown to the caller once and never stored.
type GeneratedKey struct {
	Raw    string
	Prefix string
	Hash   string
}

// Generate returns a new random key of the form pk_<base64url(32 bytes)>.
func Generate() (GeneratedKey, error) {
	b := make([]byte, keyBytes)
	if _, err := rand.Read(b); err != nil {
		return GeneratedKey{}, fmt.Errorf("generate api key: %w", err)
	}
	raw := keyPrefix + base64.RawURLEncoding.EncodeToString(b)
	prefix, _ := PrefixOf(raw)
	return GeneratedKey{Raw: raw, Prefix: prefix, Hash: HashKey(raw)}, nil
}

// HashKey returns the hex sha256 of a raw key.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// PrefixOf returns the first 8 characters after "pk_".
func PrefixOf(raw string) (string, bool) {
	if !strings.HasPrefix(raw, keyPrefix) {
		return "", false
	}
	body := raw[len(keyPrefix):]
	if len(body) < prefixLength {
		return "", false
	}
	return body[:prefixLength], true
}
