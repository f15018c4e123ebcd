package store

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
)

var ErrUnsupportedDriver = errors.New("unknown database driver")

// Dialect renders the driver-specific SQL the adapter cannot write
// generically.
type Dialect interface {
	Name() string
	InsertQuery(table string, columns []string) string
	TableExistsQuery() string
	CreateLedgerQuery(table string) string
}

// DialectFor resolves a dialect by sql driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "sqlite3":
		return SqliteDialect{}, nil
	case "mysql":
		return MySQLDialect{}, nil
	}

	return nil, errors.Wrapf(ErrUnsupportedDriver, "%s", driver)
}

func buildInsertQuery(table string, columns []string) string {
	var buf bytes.Buffer
	buf.WriteString("INSERT INTO ")
	buf.WriteString(table)
	buf.WriteString(" (")

	for i, c := range columns {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(c)
	}

	buf.WriteString(") VALUES (")

	for i := range columns {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString("?")
	}

	buf.WriteString(");")

	return buf.String()
}

type SqliteDialect struct{}

var _ Dialect = (*SqliteDialect)(nil)

func (SqliteDialect) Name() string {
	return "sqlite3"
}

func (SqliteDialect) InsertQuery(table string, columns []string) string {
	return buildInsertQuery(table, columns)
}

func (SqliteDialect) TableExistsQuery() string {
	return "SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name = ?;"
}

func (SqliteDialect) CreateLedgerQuery(table string) string {
	const schema = `
		CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name VARCHAR(255) NOT NULL UNIQUE,
			batch INTEGER NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`

	return fmt.Sprintf(schema, table)
}

type MySQLDialect struct{}

var _ Dialect = (*MySQLDialect)(nil)

func (MySQLDialect) Name() string {
	return "mysql"
}

func (MySQLDialect) InsertQuery(table string, columns []string) string {
	return buildInsertQuery(table, columns)
}

func (MySQLDialect) TableExistsQuery() string {
	return "SELECT COUNT(1) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?;"
}

func (MySQLDialect) CreateLedgerQuery(table string) string {
	const schema = `
		CREATE TABLE IF NOT EXISTS %s (
			id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(255) NOT NULL UNIQUE,
			batch BIGINT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		) ENGINE=INNODB;
	`

	return fmt.Sprintf(schema, table)
}
