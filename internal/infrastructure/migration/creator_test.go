package migration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"create sync ledger", "create_sync_ledger"},
		{"Add-Bundle-Mappings", "add_bundle_mappings"},
		{"ADD_CURSOR_TABLE", "add_cursor_table"},
		{"add__ledger__index", "add_ledger_index"},
		{"Add Index 123", "add_index_123"},
		{"   spaces   ", "spaces"},
		{"special!@#$chars", "specialchars"},
		{"trailing_", "trailing"},
		{"_leading", "leading"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func TestCreateMigration(t *testing.T) {
	t.Run("first migration in empty directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "migrations")

		mf, err := CreateMigration(dir, "create sync ledger", "ledger table")
		require.NoError(t, err)
		assert.Equal(t, "000001", mf.Version)
		assert.Equal(t, filepath.Join(dir, "000001_create_sync_ledger.up.sql"), mf.UpPath)
		assert.Equal(t, filepath.Join(dir, "000001_create_sync_ledger.down.sql"), mf.DownPath)

		up, err := os.ReadFile(mf.UpPath)
		require.NoError(t, err)
		assert.Contains(t, string(up), "create sync ledger")
		assert.Contains(t, string(up), "ledger table")

		down, err := os.ReadFile(mf.DownPath)
		require.NoError(t, err)
		assert.Contains(t, string(down), "Rollback")
	})

	t.Run("continues after the highest version", func(t *testing.T) {
		dir := t.TempDir()
		for _, f := range []string{"000001_a.up.sql", "000001_a.down.sql", "000007_b.up.sql", "000007_b.down.sql"} {
			require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte("-- test"), 0o644))
		}

		mf, err := CreateMigration(dir, "add index", "")
		require.NoError(t, err)
		assert.Equal(t, "000008", mf.Version)
	})

	t.Run("rejects unusable name", func(t *testing.T) {
		_, err := CreateMigration(t.TempDir(), "!!!", "")
		assert.Error(t, err)
	})
}

func TestListMigrations(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		"000002_create_bundle_mappings.up.sql",
		"000002_create_bundle_mappings.down.sql",
		"000001_create_sync_ledger.up.sql",
		"000001_create_sync_ledger.down.sql",
		"README.md",
	}
	for _, f := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte("-- test"), 0o644))
	}

	migrations, err := ListMigrations(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_create_sync_ledger", "000002_create_bundle_mappings"}, migrations)

	t.Run("missing directory", func(t *testing.T) {
		migrations, err := ListMigrations(filepath.Join(dir, "nope"))
		require.NoError(t, err)
		assert.Empty(t, migrations)
	})
}

func TestDialectForDriver(t *testing.T) {
	d, err := DialectForDriver("postgres")
	require.NoError(t, err)
	assert.Equal(t, DialectPostgres, d)

	d, err = DialectForDriver("sqlite")
	require.NoError(t, err)
	assert.Equal(t, DialectSQLite, d)

	_, err = DialectForDriver("mysql")
	assert.ErrorIs(t, err, ErrUnsupportedDialect)
}
