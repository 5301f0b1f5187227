package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCleanKey(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "plain", input: "school_acme/exports/run.json", want: "school_acme/exports/run.json"},
		{name: "leading slash stripped", input: "/a/b.json", want: "a/b.json"},
		{name: "trimmed", input: "  a/b.json ", want: "a/b.json"},
		{name: "empty", input: "", wantErr: true},
		{name: "traversal", input: "a/../../etc/passwd", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CleanKey(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestLocalBlobStorePutDelete(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalBlobStore(dir)
	ctx := context.Background()

	url, err := store.Put(ctx, "school_acme/exports/run.json", "application/json", []byte(`{"rows":[]}`))
	require.NoError(t, err)
	require.Equal(t, "file://"+filepath.Join(dir, "school_acme", "exports", "run.json"), url)

	data, err := os.ReadFile(filepath.Join(dir, "school_acme", "exports", "run.json"))
	require.NoError(t, err)
	require.JSONEq(t, `{"rows":[]}`, string(data))

	require.NoError(t, store.Delete(ctx, "school_acme/exports/run.json"))
	_, err = os.Stat(filepath.Join(dir, "school_acme", "exports", "run.json"))
	require.True(t, os.IsNotExist(err))

	// Deleting again is a no-op.
	require.NoError(t, store.Delete(ctx, "school_acme/exports/run.json"))
}
