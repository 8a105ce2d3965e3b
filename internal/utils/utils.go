package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
)

var (
	slugInvalid = regexp.MustCompile(`[^a-z0-9-_]+`)
	validID     = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9-_]*$`)
	validName   = regexp.MustCompile(`^\S+$`)
)

// Slugify lowercases s and collapses anything outside [a-z0-9-_] into
// single dashes, producing a stable record id.
func Slugify(s string) string {
	slug := strings.ToLower(strings.TrimSpace(s))
	slug = slugInvalid.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// IsValidID reports whether s is usable as a transfer definition id.
func IsValidID(s string) bool {
	return validID.MatchString(s)
}

// IsValidName reports whether s is a legal short name (no whitespace).
func IsValidName(s string) bool {
	return validName.MatchString(s)
}

// IsValidPathString rejects path templates with embedded NULs or
// relative escapes.
func IsValidPathString(s string) bool {
	if strings.ContainsRune(s, 0) {
		return false
	}
	return !strings.Contains(s, "..")
}

// GenerateSecretKey returns length random bytes, base64url encoded.
func GenerateSecretKey(length int) (string, error) {
	keyBytes := make([]byte, length)
	if _, err := rand.Read(keyBytes); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.URLEncoding.EncodeToString(keyBytes), nil
}
