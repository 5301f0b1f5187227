package handler

import (
	"net/http/httptest"
	"testing"
)

func TestIntQueryClampsBadInput(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  int
	}{
		{name: "absent", query: "", want: 50},
		{name: "valid", query: "limit=25", want: 25},
		{name: "zero", query: "limit=0", want: 0},
		{name: "negative", query: "limit=-1", want: 50},
		{name: "not a number", query: "limit=abc", want: 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/executions?"+tt.query, nil)
			if got := intQuery(r, "limit", 50); got != tt.want {
				t.Fatalf("got %d, want %d", got, tt.want)
			}
		})
	}
}
