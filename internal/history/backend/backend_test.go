package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokligence/streamledger/internal/history/sqlite"
)

func TestKind(t *testing.T) {
	assert.Equal(t, "sqlite", Options{}.Kind())
	assert.Equal(t, "sqlite", Options{URL: "sqlite:///tmp/x.db"}.Kind())
	assert.Equal(t, "postgres", Options{URL: "postgres://u:p@db:5432/app"}.Kind())
	assert.Equal(t, "postgres", Options{URL: "postgresql+asyncpg://u:p@db/app"}.Kind())
	assert.Equal(t, "postgres", Options{Driver: "postgres"}.Kind())
	assert.Equal(t, "sqlite", Options{Driver: "sqlite", URL: "postgres://ignored"}.Kind())
}

func TestNormalizePostgresURL(t *testing.T) {
	assert.Equal(t, "postgresql://u:p@db:5432/app", NormalizePostgresURL("postgresql+asyncpg://u:p@db:5432/app"))
	assert.Equal(t, "postgres://u@db/app", NormalizePostgresURL(" postgres://u@db/app "))
}

func TestOpenSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(Options{SQLitePath: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	_, ok := store.(*sqlite.Store)
	require.True(t, ok, "expected sqlite store, got %T", store)
	require.NoError(t, store.Ping(context.Background()))
}

func TestOpenSQLiteURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "url.db")
	// Four slashes: the path itself is absolute.
	store, err := Open(Options{URL: "sqlite:///" + path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Ping(context.Background()))
}

func TestOpenPostgresRequiresURL(t *testing.T) {
	_, err := Open(Options{Driver: "pgx"})
	require.Error(t, err)
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	_, err := Open(Options{Driver: "sqlite"})
	require.Error(t, err)
}

func TestSQLitePathFromURL(t *testing.T) {
	cases := []struct {
		url  string
		path string
		ok   bool
	}{
		{"sqlite:///./app.db", "./app.db", true},
		{"sqlite:///app.db", "app.db", true},
		{"sqlite:////var/lib/app.db", "/var/lib/app.db", true},
		{"sqlite+aiosqlite:///./data/app.db", "./data/app.db", true},
		{"SQLITE:///app.db?mode=rwc", "app.db", true},
		{"file:app.db", "app.db", true},
		{"file:///tmp/app.db?_pragma=busy_timeout(5000)", "/tmp/app.db", true},
		{"sqlite://", "", true},
		{"postgres://u:pw@db:5432/app", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		path, ok := SQLitePathFromURL(tc.url)
		assert.Equal(t, tc.ok, ok, tc.url)
		assert.Equal(t, tc.path, path, tc.url)
	}
}

func TestOpenForcedSQLiteIgnoresPostgresURL(t *testing.T) {
	dir := t.TempDir()
	chosen := filepath.Join(dir, "chosen.db")
	store, err := Open(Options{Driver: "sqlite", URL: "postgres://u:pw@db:5432/app", SQLitePath: chosen})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Ping(context.Background()))

	_, err = os.Stat(chosen)
	require.NoError(t, err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), "postgres", "unexpected file %s", e.Name())
	}
}

func TestOpenRelativeSQLiteURL(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	store, err := Open(Options{URL: "sqlite+aiosqlite:///./rel.db"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Ping(context.Background()))

	_, err = os.Stat(filepath.Join(dir, "rel.db"))
	require.NoError(t, err)
}

func TestOpenRejectsUnknownURLScheme(t *testing.T) {
	_, err := Open(Options{URL: "mysql://root:secret@db/app", SQLitePath: filepath.Join(t.TempDir(), "x.db")})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret")
}
