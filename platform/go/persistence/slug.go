package persistence

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// NormalizeSlug trims and lowercases a school slug and rejects anything
// outside the URL-safe kebab-case alphabet. The slug seeds the tenant schema
// name, so the accepted set stays deliberately narrow.
func NormalizeSlug(input string) (string, error) {
	slug := strings.ToLower(strings.TrimSpace(input))
	if slug == "" {
		return "", errors.New("slug is required")
	}
	if !slugPattern.MatchString(slug) {
		return "", fmt.Errorf("invalid slug %q: must be lowercase letters, digits and single dashes", input)
	}
	return slug, nil
}
