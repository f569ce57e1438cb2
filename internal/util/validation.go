package util

import "regexp"

var slugRegex = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// IsValidSlug reports whether s is a lowercase letters/digits/hyphen slug.
// Skill and agent names must satisfy this before any path is derived from them.
func IsValidSlug(s string) bool {
	return slugRegex.MatchString(s)
}
