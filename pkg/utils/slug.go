package utils

import (
	"regexp"
	"strings"
)

var (
	slugRegex   = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,63}$`)
	nonSlugChar = regexp.MustCompile(`[^a-z0-9]+`)
)

// ValidSlug reports whether s is a lowercase URL slug of 2 to 64 characters.
func ValidSlug(s string) bool {
	return slugRegex.MatchString(s)
}

// Slugify lowercases s and collapses every run of non-alphanumerics into a dash.
func Slugify(s string) string {
	out := nonSlugChar.ReplaceAllString(strings.ToLower(s), "-")
	out = strings.Trim(out, "-")
	if len(out) > 64 {
		out = strings.TrimRight(out[:64], "-")
	}
	return out
}

// NormalizeName lowercases s and reduces it to single-space separated alphanumeric tokens.
func NormalizeName(s string) string {
	return strings.Join(NameTokens(s), " ")
}

// NameTokens splits s into lowercase alphanumeric tokens.
func NameTokens(s string) []string {
	return strings.Fields(nonSlugChar.ReplaceAllString(strings.ToLower(s), " "))
}
