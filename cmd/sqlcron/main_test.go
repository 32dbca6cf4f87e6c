package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livinlefevreloca/sqlcron/internal/events"
)

// setup writes a config pointing at a fresh SQLite database and an events file
func setup(t *testing.T, eventsFile string) CLI {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "app.db")

	raw, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = raw.Exec(`CREATE TABLE hits (n INTEGER)`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	configPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(fmt.Sprintf(`
[database]
driver = "sqlite"
dsn = %q

[logging]
file = %q
`, dbPath, filepath.Join(dir, "sqlcron.log"))), 0o644))

	eventsPath := filepath.Join(dir, "events.conf")
	require.NoError(t, os.WriteFile(eventsPath, []byte(eventsFile), 0o644))

	return CLI{Config: configPath, Events: eventsPath, Check: true}
}

func TestRun_Check(t *testing.T) {
	cli := setup(t, "hit: * * * * *\n\tINSERT INTO hits (n) VALUES (1);\n")

	assert.NoError(t, run(context.Background(), cli))

	logged, err := os.ReadFile(filepath.Join(filepath.Dir(cli.Config), "sqlcron.log"))
	require.NoError(t, err)
	assert.Contains(t, string(logged), "serialized=true")
}

func TestRun_CheckRejectsInvalidStatement(t *testing.T) {
	cli := setup(t, "hit: * * * * *\n\tINSERT INTO misses (n) VALUES (1);\n")

	err := run(context.Background(), cli)

	var verr *events.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestRun_MissingConfig(t *testing.T) {
	err := run(context.Background(), CLI{Config: filepath.Join(t.TempDir(), "absent.toml")})
	assert.ErrorContains(t, err, "load configuration")
}
