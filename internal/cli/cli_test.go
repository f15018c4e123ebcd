package cli

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegsidorov/strata"
	"github.com/olegsidorov/strata/store"
	"github.com/olegsidorov/strata/unit"
)

func writeConfig(t *testing.T, contents string) string {
	dir, err := ioutil.TempDir("", "strata-cli")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = os.RemoveAll(dir)
	})

	path := filepath.Join(dir, "strata.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte(contents), 0644))

	return path
}

func Test_ConfigFromYaml(t *testing.T) {
	t.Run("complete config is parsed", func(t *testing.T) {
		path := writeConfig(t, `
version: "1"
units:
  dir: ./migrations
  package: appmigrations
  version_format: datetime
database:
  url: sqlite://app.db
  ledger_table: schema_ledger
`)

		cfg, err := createConfigFromYaml(path)
		require.NoError(t, err)

		assert.Equal(t, "sqlite://app.db", cfg.DatabaseURL)
		assert.Equal(t, "schema_ledger", cfg.LedgerTable)
		assert.Equal(t, "./migrations", cfg.UnitsDir)
		assert.Equal(t, "appmigrations", cfg.UnitsPackage)
		assert.Equal(t, unit.DatetimeFormat, cfg.VersionFormat)
	})

	t.Run("package defaults to migrations", func(t *testing.T) {
		path := writeConfig(t, `
units:
  dir: ./migrations
  version_format: timestamp
database:
  url: sqlite://app.db
`)

		cfg, err := createConfigFromYaml(path)
		require.NoError(t, err)
		assert.Equal(t, "migrations", cfg.UnitsPackage)
	})

	t.Run("database url resolves through the environment", func(t *testing.T) {
		require.NoError(t, os.Setenv("STRATA_TEST_DB_URL", "sqlite://from-env.db"))
		defer func() {
			_ = os.Unsetenv("STRATA_TEST_DB_URL")
		}()

		path := writeConfig(t, `
units:
  dir: ./migrations
  version_format: datetime
database:
  url: "%%STRATA_TEST_DB_URL%%"
`)

		cfg, err := createConfigFromYaml(path)
		require.NoError(t, err)
		assert.Equal(t, "sqlite://from-env.db", cfg.DatabaseURL)
	})

	t.Run("missing database url is rejected", func(t *testing.T) {
		path := writeConfig(t, `
units:
  dir: ./migrations
  version_format: datetime
`)

		_, err := createConfigFromYaml(path)
		assert.True(t, errors.Is(err, ErrDatabaseURLMissing))
	})

	t.Run("unknown version format is rejected", func(t *testing.T) {
		path := writeConfig(t, `
units:
  dir: ./migrations
  version_format: roman-numerals
database:
  url: sqlite://app.db
`)

		_, err := createConfigFromYaml(path)
		assert.True(t, errors.Is(err, ErrInvalidVersionFmt))
	})
}

func Test_AppRunsMigrationsEndToEnd(t *testing.T) {
	dir, err := ioutil.TempDir("", "strata-cli-app")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = os.RemoveAll(dir)
	})

	registry, err := unit.NewRegistry(&unit.Unit{
		Key: "1596897167_create_players_table",
		Migrate: func(ctx context.Context, ex store.Executor) error {
			_, err := ex.Execute(ctx, "CREATE TABLE players (id INTEGER PRIMARY KEY);")
			return err
		},
		Rollback: func(ctx context.Context, ex store.Executor) error {
			_, err := ex.Execute(ctx, "DROP TABLE players;")
			return err
		},
	})
	require.NoError(t, err)

	cfg := Config{
		DatabaseURL:   "sqlite://" + filepath.Join(dir, "app.db"),
		UnitsDir:      dir,
		UnitsPackage:  "migrations",
		VersionFormat: unit.DatetimeFormat,
	}

	app, closer, err := New(cfg, registry)
	require.NoError(t, err)

	defer func() {
		_ = closer()
	}()

	ctx := context.Background()

	applied, err := app.Migrate(ctx, ActionConfig{})
	require.NoError(t, err)
	assert.Equal(t, []string{"1596897167_create_players_table"}, applied)

	statuses, err := app.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, strata.StateApplied, statuses[0].State)

	rolledBack, err := app.Rollback(ctx, ActionConfig{})
	require.NoError(t, err)
	assert.Equal(t, []string{"1596897167_create_players_table"}, rolledBack)

	path, err := app.CreateUnit("add scores")
	require.NoError(t, err)
	assert.Contains(t, filepath.Base(path), "_add_scores.go")
}
