package persistence

import (
	"fmt"
	"regexp"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// InvalidIdentifierError reports a schema, table, or column name that is not a
// safe bare SQL identifier. These names cannot be bound as query parameters,
// so rejecting them here is the sole defense against injection through
// tenant/schema/table names.
type InvalidIdentifierError struct {
	Name string
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("invalid sql identifier %q: must match ^[A-Za-z0-9_]+$", e.Name)
}

// AssertValidIdentifier fails unless name is a bare identifier consisting only
// of ASCII letters, digits, and underscores. Every function that interpolates
// a schema, table, or column name into raw SQL text must call this first.
func AssertValidIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return &InvalidIdentifierError{Name: name}
	}
	return nil
}
