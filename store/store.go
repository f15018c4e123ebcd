package store

import (
	"context"
	"database/sql"
	"io"

	"github.com/jmoiron/sqlx"
)

// Record is a single row to be inserted, keyed by column name.
type Record map[string]interface{}

// Executor is the narrow data-access surface migration units and the
// ledger run against. Both a Store and a transaction handle satisfy it.
type Executor interface {
	Execute(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	Query(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error)
	Insert(ctx context.Context, table string, record Record) (int64, error)
	TableExists(ctx context.Context, table string) (bool, error)
}

// Tx is an Executor scoped to one open transaction. It is resolved by
// exactly one Commit or Rollback on the Store that created it.
type Tx interface {
	Executor
}

type Store interface {
	Executor
	io.Closer

	Begin(ctx context.Context) (Tx, error)
	Commit(tx Tx) error
	Rollback(tx Tx) error
}
