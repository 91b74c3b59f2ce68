package db

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsAreEmbedded(t *testing.T) {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, f := range files {
		body, err := fs.ReadFile(migrations, f)
		require.NoError(t, err)
		assert.True(t, strings.Contains(string(body), "-- +goose Up"), "%s has no Up section", f)
		assert.True(t, strings.Contains(string(body), "-- +goose Down"), "%s has no Down section", f)
	}
}

func TestInitMigrationIndexes(t *testing.T) {
	body, err := fs.ReadFile(migrations, "migrations/00001_init.sql")
	require.NoError(t, err)
	sql := string(body)

	assert.Contains(t, sql, "message_id          TEXT NOT NULL UNIQUE")
	assert.Contains(t, sql, "CREATE UNIQUE INDEX time_off_requests_user_day")
	assert.Contains(t, sql, "version              INT NOT NULL DEFAULT 1")
}
