package tenant

import "strings"

// ToSnake converts a kebab-case slug into snake_case, the shape Postgres
// schema identifiers want.
func ToSnake(slug string) string {
	return strings.ReplaceAll(strings.ToLower(slug), "-", "_")
}
