package persistence

import (
	"errors"
	"testing"
)

func TestAssertValidIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "plain lowercase", input: "students"},
		{name: "uppercase allowed", input: "Students_2024"},
		{name: "digits and underscore", input: "school_42"},
		{name: "single char", input: "t"},
		{name: "empty", input: "", wantErr: true},
		{name: "space", input: "stu dents", wantErr: true},
		{name: "dash", input: "school-42", wantErr: true},
		{name: "dot qualified", input: "shared.tenants", wantErr: true},
		{name: "quote", input: `x"y`, wantErr: true},
		{name: "injection", input: "public; DROP TABLE students--", wantErr: true},
		{name: "unicode", input: "école", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := AssertValidIdentifier(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.input)
				}
				var invalidErr *InvalidIdentifierError
				if !errors.As(err, &invalidErr) {
					t.Fatalf("expected InvalidIdentifierError, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
