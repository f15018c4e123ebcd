package cli

import (
	"context"

	"github.com/pkg/errors"

	"github.com/olegsidorov/strata"
	"github.com/olegsidorov/strata/scaffold"
	"github.com/olegsidorov/strata/unit"
)

var (
	ErrFolderInvalid      = errors.New("units folder is invalid")
	ErrInvalidVersionFmt  = errors.New("version format is not valid")
	ErrDatabaseURLMissing = errors.New("database url was not defined")
)

type (
	CloserFunc func() error

	Config struct {
		DatabaseURL   string
		LedgerTable   string
		UnitsDir      string
		UnitsPackage  string
		VersionFormat unit.VersionFormat
	}

	ActionConfig struct {
		Steps int
	}

	App struct {
		migrator  *strata.Migrator
		generator *scaffold.Generator
	}
)

func NewFromYaml(path string, registry *unit.Registry) (*App, CloserFunc, error) {
	cfg, err := createConfigFromYaml(path)
	if err != nil {
		return nil, nil, err
	}

	return New(cfg, registry)
}

func New(cfg Config, registry *unit.Registry) (*App, CloserFunc, error) {
	m, closer, err := createMigrator(cfg, registry)
	if err != nil {
		return nil, nil, err
	}

	g := scaffold.NewGenerator(
		cfg.UnitsDir,
		cfg.UnitsPackage,
		scaffold.WithVersionFormat(cfg.VersionFormat),
	)

	return &App{
		migrator:  m,
		generator: g,
	}, CloserFunc(closer), nil
}

// CreateUnit scaffolds a new empty unit file and returns its path.
func (app *App) CreateUnit(name string) (string, error) {
	if !app.generator.IsValid() {
		return "", ErrFolderInvalid
	}

	return app.generator.Create(name)
}

func (app *App) Migrate(ctx context.Context, cfg ActionConfig) ([]string, error) {
	var configurators []strata.ActionConfigurator
	if cfg.Steps > 0 {
		configurators = append(configurators, strata.WithSteps(cfg.Steps))
	}

	return app.migrator.Migrate(ctx, configurators...)
}

func (app *App) Rollback(ctx context.Context, cfg ActionConfig) ([]string, error) {
	var configurators []strata.ActionConfigurator
	if cfg.Steps > 0 {
		configurators = append(configurators, strata.WithSteps(cfg.Steps))
	}

	return app.migrator.Rollback(ctx, configurators...)
}

func (app *App) Status(ctx context.Context) ([]strata.Status, error) {
	return app.migrator.Status(ctx)
}
