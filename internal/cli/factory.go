package cli

import (
	"database/sql"
	"io/ioutil"
	"log"
	"os"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/olegsidorov/strata"
	"github.com/olegsidorov/strata/unit"
)

type (
	units struct {
		Dir           string `yaml:"dir"`
		Package       string `yaml:"package"`
		VersionFormat string `yaml:"version_format"`
	}

	database struct {
		URL         string `yaml:"url"`
		LedgerTable string `yaml:"ledger_table"`
	}

	configFile struct {
		Version  string   `yaml:"version"`
		Units    units    `yaml:"units"`
		Database database `yaml:"database"`
	}
)

var allowedVersionFormats = []unit.VersionFormat{unit.TimestampFormat, unit.DatetimeFormat}

func createConfigFromYaml(path string) (Config, error) {
	var cfg Config

	f, err := os.Open(path)
	if err != nil {
		return cfg, errors.Wrap(err, "could not open strata configuration file")
	}

	defer func() {
		if errClose := f.Close(); errClose != nil {
			panic(errClose)
		}
	}()

	b, err := ioutil.ReadAll(f)
	if err != nil {
		return cfg, errors.Wrap(err, "could not read strata configuration file")
	}

	var cfgFile configFile
	if err := yaml.Unmarshal(b, &cfgFile); err != nil {
		return cfg, errors.Wrap(err, "could not parse strata configuration file")
	}

	cfg.DatabaseURL = expandEnv(cfgFile.Database.URL)
	cfg.LedgerTable = cfgFile.Database.LedgerTable
	cfg.UnitsDir = expandEnv(cfgFile.Units.Dir)
	cfg.UnitsPackage = cfgFile.Units.Package

	if cfg.DatabaseURL == "" {
		return cfg, ErrDatabaseURLMissing
	}

	if cfg.UnitsPackage == "" {
		cfg.UnitsPackage = "migrations"
	}

	for _, format := range allowedVersionFormats {
		if string(format) == cfgFile.Units.VersionFormat {
			cfg.VersionFormat = format
		}
	}

	if cfg.VersionFormat == "" {
		return cfg, errors.Wrapf(ErrInvalidVersionFmt, "[%s]", cfgFile.Units.VersionFormat)
	}

	return cfg, nil
}

// expandEnv resolves the %%ENV_VAR%% indirection used in config files
// that must not carry credentials.
func expandEnv(v string) string {
	if strings.HasPrefix(v, "%%") && strings.HasSuffix(v, "%%") {
		return os.Getenv(strings.ReplaceAll(v, "%%", ""))
	}

	return v
}

func createMigrator(cfg Config, registry *unit.Registry) (*strata.Migrator, strata.CloserFunc, error) {
	var opts []strata.OptionFunc

	switch {
	case strings.HasPrefix(cfg.DatabaseURL, "mysql://"):
		db, err := sql.Open("mysql", strings.TrimPrefix(cfg.DatabaseURL, "mysql://"))
		if err != nil {
			return nil, nil, errors.Wrap(err, "could not open mysql database")
		}

		opts = append(opts, strata.UseMySQL(db))
	case strings.HasPrefix(cfg.DatabaseURL, "sqlite://"):
		db, err := sql.Open("sqlite3", strings.TrimPrefix(cfg.DatabaseURL, "sqlite://"))
		if err != nil {
			return nil, nil, errors.Wrap(err, "could not open sqlite database")
		}

		opts = append(opts, strata.UseSqlite(db))
	default:
		return nil, nil, errors.Errorf("unknown database driver [%s]", cfg.DatabaseURL)
	}

	if registry != nil {
		opts = append(opts, strata.UseRegistry(registry))
	}

	if cfg.LedgerTable != "" {
		opts = append(opts, strata.UseLedgerTable(cfg.LedgerTable))
	}

	opts = append(opts, strata.UseColorLogger(log.New(os.Stdout, "", 0), false, false))

	return strata.NewMigrator(opts...)
}
