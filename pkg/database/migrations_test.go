package database

import (
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadMigrations_SortsByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"002_add_index.sql": {Data: []byte("CREATE INDEX i ON t(a);")},
		"001_create.sql":    {Data: []byte("CREATE TABLE t (a TEXT);")},
		"README.md":         {Data: []byte("ignored")},
	}

	migrations, err := LoadMigrations(fsys)

	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "create", migrations[0].Name)
	assert.Equal(t, "add_index", migrations[1].Name)
}

func TestLoadMigrations_RejectsBadNames(t *testing.T) {
	_, err := LoadMigrations(fstest.MapFS{"init.sql": {Data: []byte("")}})
	assert.Error(t, err)

	_, err = LoadMigrations(fstest.MapFS{
		"001_a.sql": {Data: []byte("")},
		"001_b.sql": {Data: []byte("")},
	})
	assert.ErrorContains(t, err, "duplicate migration version")
}

func TestMigrator_RunEmbeddedSchemaIsIdempotent(t *testing.T) {
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "test.db")}, zap.NewNop())
	require.NoError(t, err)
	defer db.Close()

	m := NewMigrator(db, zap.NewNop())

	applied, err := m.Run(Migrations())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, applied, 1)

	applied, err = m.Run(Migrations())
	require.NoError(t, err)
	assert.Zero(t, applied)

	var n int
	require.NoError(t, db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'validation_decisions'").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestDSN(t *testing.T) {
	dsn := DSN(Config{Path: "data/app.db"})

	assert.Contains(t, dsn, "file:data/app.db?")
	assert.Contains(t, dsn, "_busy_timeout=5000")
	assert.Contains(t, dsn, "_txlock=immediate")
}
