package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsAreAnnotated(t *testing.T) {
	entries, err := fs.Glob(files, "*.sql")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	for _, name := range entries {
		raw, err := fs.ReadFile(files, name)
		require.NoError(t, err)
		body := string(raw)
		assert.Contains(t, body, "-- +goose Up", name)
		assert.Contains(t, body, "-- +goose Down", name)
	}
}

func TestLessonsCarryOverlapExclusion(t *testing.T) {
	raw, err := fs.ReadFile(files, "00001_scheduling_core.sql")
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), "EXCLUDE USING gist"))
}
