// Package scaffold writes empty migration unit stubs for developers
// to fill in. Generated files register themselves in the target
// package's All slice, which the host application hands to the
// migrator at assembly time.
package scaffold

import (
	"context"
	"os"
	"path/filepath"
	"text/template"
	"time"

	"github.com/pkg/errors"

	"github.com/olegsidorov/strata/store"
	"github.com/olegsidorov/strata/unit"
)

var ErrUnitAlreadyExists = errors.New("migration unit already exists")
var ErrInvalidFolder = errors.New("target folder is invalid")

const seedFileName = "migrations.go"

const seedTemplate = `package {{ .Package }}

import "github.com/olegsidorov/strata/unit"

// All collects every migration unit of this package in registration
// order. Hand it to the migrator with strata.UseUnits(All...).
var All []*unit.Unit
`

const unitTemplate = `package {{ .Package }}

import (
	"context"

	"github.com/olegsidorov/strata/store"
	"github.com/olegsidorov/strata/unit"
)

func init() {
	All = append(All, &unit.Unit{
		Key: "{{ .Key }}",
		Migrate: func(ctx context.Context, ex store.Executor) error {
			return nil
		},
		Rollback: func(ctx context.Context, ex store.Executor) error {
			return nil
		},
	})
}
`

type Option func(*Generator)

func WithClock(cf unit.ClockFunc) Option {
	return func(g *Generator) {
		g.clock = cf
	}
}

func WithVersionFormat(vf unit.VersionFormat) Option {
	return func(g *Generator) {
		g.format = vf
	}
}

type Generator struct {
	dir    string
	pkg    string
	clock  unit.ClockFunc
	format unit.VersionFormat
}

func NewGenerator(dir, pkg string, opts ...Option) *Generator {
	g := &Generator{
		dir:    dir,
		pkg:    pkg,
		clock:  time.Now,
		format: unit.DatetimeFormat,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

func (g *Generator) IsValid() bool {
	info, err := os.Stat(g.dir)
	if err != nil {
		return false
	}

	return info.IsDir()
}

func (g *Generator) AlreadyExists(key string) bool {
	info, err := os.Stat(filepath.Join(g.dir, key+".go"))
	if err != nil {
		return false
	}

	return !info.IsDir()
}

// Create writes a new unit stub named <version>_<slug>.go and returns
// its path. The first Create in a folder also seeds migrations.go with
// the All slice the stubs append to.
func (g *Generator) Create(name string) (string, error) {
	if !g.IsValid() {
		return "", errors.Wrapf(ErrInvalidFolder, "[%s]", g.dir)
	}

	version := unit.GenerateVersion(g.clock, g.format)
	key := unit.CreateKey(version, name)

	u := &unit.Unit{Key: key, Migrate: nilProcedure, Rollback: nilProcedure}
	if err := u.Validate(); err != nil {
		return "", err
	}

	if g.AlreadyExists(key) {
		return "", errors.Wrapf(ErrUnitAlreadyExists, "[%s]", key)
	}

	if err := g.ensureSeed(); err != nil {
		return "", err
	}

	path := filepath.Join(g.dir, key+".go")
	if err := g.render(path, unitTemplate, key); err != nil {
		return "", err
	}

	return path, nil
}

func (g *Generator) ensureSeed() error {
	path := filepath.Join(g.dir, seedFileName)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	return g.render(path, seedTemplate, "")
}

func (g *Generator) render(path, text, key string) error {
	tpl, err := template.New(filepath.Base(path)).Parse(text)
	if err != nil {
		return errors.Wrapf(err, "could not parse template for [%s]", path)
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "could not create file [%s]", path)
	}

	data := struct {
		Package string
		Key     string
	}{Package: g.pkg, Key: key}

	if err := tpl.Execute(f, data); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "could not render [%s]", path)
	}

	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "could not close file [%s]", path)
	}

	return nil
}

func nilProcedure(_ context.Context, _ store.Executor) error {
	return nil
}
