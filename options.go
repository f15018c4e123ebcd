package strata

import (
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/olegsidorov/strata/internal/logger"
	"github.com/olegsidorov/strata/store"
	"github.com/olegsidorov/strata/unit"
)

type OptionFunc func(*Migrator) error

// UseStore plugs in any Store implementation together with the dialect
// the ledger should speak. The migrator's closer will close the store.
func UseStore(s store.Store, d store.Dialect) OptionFunc {
	return func(m *Migrator) error {
		m.store = s
		m.dialect = d
		return nil
	}
}

// UseSqlite wraps an already opened sqlite database handle.
func UseSqlite(db *sql.DB) OptionFunc {
	return func(m *Migrator) error {
		dialect := store.SqliteDialect{}
		m.store = store.NewSqlxStore(sqlx.NewDb(db, dialect.Name()), dialect, m.lg)
		m.dialect = dialect
		return nil
	}
}

// UseMySQL wraps an already opened mysql database handle.
func UseMySQL(db *sql.DB) OptionFunc {
	return func(m *Migrator) error {
		dialect := store.MySQLDialect{}
		m.store = store.NewSqlxStore(sqlx.NewDb(db, dialect.Name()), dialect, m.lg)
		m.dialect = dialect
		return nil
	}
}

// UseUnits registers migration units, validating each one.
func UseUnits(units ...*unit.Unit) OptionFunc {
	return func(m *Migrator) error {
		r, err := unit.NewRegistry(units...)
		if err != nil {
			return err
		}

		m.registry = r
		return nil
	}
}

// UseRegistry plugs in an externally assembled registry.
func UseRegistry(r *unit.Registry) OptionFunc {
	return func(m *Migrator) error {
		m.registry = r
		return nil
	}
}

// UseLedgerTable overrides the default ledger table name.
func UseLedgerTable(table string) OptionFunc {
	return func(m *Migrator) error {
		m.ledgerTable = table
		return nil
	}
}

func UseColorLogger(p logger.Printer, printSQL, printDebug bool) OptionFunc {
	return func(m *Migrator) error {
		m.lg = logger.NewColorLogger(p, printSQL, printDebug)
		return nil
	}
}

func UseBWLogger(p logger.Printer, printSQL, printDebug bool) OptionFunc {
	return func(m *Migrator) error {
		m.lg = logger.NewBWLogger(p, printSQL, printDebug)
		return nil
	}
}

func UseLogger(lg logger.Logger) OptionFunc {
	return func(m *Migrator) error {
		m.lg = lg
		return nil
	}
}
