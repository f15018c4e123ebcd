package store

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/olegsidorov/strata/internal/logger"
	"github.com/olegsidorov/strata/internal/retry"
)

var ErrForeignTx = errors.New("transaction was not started by this store")

type ConnectOptions struct {
	MaxAttempts int
	MaxTimeout  time.Duration
	Step        time.Duration
}

func NewDefaultConnectOptions() *ConnectOptions {
	return &ConnectOptions{
		MaxAttempts: 60,
		MaxTimeout:  60 * time.Second,
		Step:        1 * time.Second,
	}
}

// runner implements Executor on top of anything sqlx can execute
// against: the pooled database or an open transaction.
type runner struct {
	ext     sqlx.ExtContext
	dialect Dialect
	lg      logger.Logger
}

func (r *runner) Execute(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	r.lg.SQL(query, args...)

	res, err := r.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "could not execute [%s]", query)
	}

	return res, nil
}

func (r *runner) Query(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error) {
	r.lg.SQL(query, args...)

	rows, err := r.ext.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "could not run query [%s]", query)
	}

	return rows, nil
}

func (r *runner) Insert(ctx context.Context, table string, record Record) (int64, error) {
	columns := make([]string, 0, len(record))
	for c := range record {
		columns = append(columns, c)
	}
	sort.Strings(columns)

	args := make([]interface{}, 0, len(columns))
	for _, c := range columns {
		args = append(args, record[c])
	}

	query := r.dialect.InsertQuery(table, columns)
	r.lg.SQL(query, args...)

	res, err := r.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrapf(err, "could not insert into [%s]", table)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrapf(err, "could not read last insert id for [%s]", table)
	}

	return id, nil
}

func (r *runner) TableExists(ctx context.Context, table string) (bool, error) {
	query := r.dialect.TableExistsQuery()
	r.lg.SQL(query, table)

	var count int
	if err := r.ext.QueryRowxContext(ctx, query, table).Scan(&count); err != nil {
		return false, errors.Wrapf(err, "could not check existence of table [%s]", table)
	}

	return count > 0, nil
}

type sqlxTx struct {
	runner
	tx *sqlx.Tx
}

var _ Tx = (*sqlxTx)(nil)

type SqlxStore struct {
	runner
	db *sqlx.DB
}

var _ Store = (*SqlxStore)(nil)

// NewSqlxStore wraps an already opened sqlx database handle. The
// caller keeps ownership of the handle unless Close is used.
func NewSqlxStore(db *sqlx.DB, dialect Dialect, lg logger.Logger) *SqlxStore {
	if lg == nil {
		lg = &logger.NullLogger{}
	}

	return &SqlxStore{
		runner: runner{ext: db, dialect: dialect, lg: lg},
		db:     db,
	}
}

// Connect opens a database handle for the given driver and keeps
// pinging it with an incremental pause until the database answers or
// the attempts run out.
func Connect(ctx context.Context, driver, dsn string, options *ConnectOptions, lg logger.Logger) (*SqlxStore, error) {
	if options == nil {
		options = NewDefaultConnectOptions()
	}

	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open [%s] database", driver)
	}

	connectCtx, cancel := context.WithTimeout(ctx, options.MaxTimeout)
	defer cancel()

	if err := retry.Incremental(connectCtx, options.Step, options.MaxAttempts, func(attempt int) error {
		if pingErr := db.PingContext(connectCtx); pingErr != nil {
			return retry.Retryable(errors.Wrapf(pingErr, "could not reach [%s] database", driver))
		}

		return nil
	}); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, errors.Wrap(err, closeErr.Error())
		}

		return nil, err
	}

	return NewSqlxStore(db, dialect, lg), nil
}

func (s *SqlxStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "could not begin transaction")
	}

	return &sqlxTx{
		runner: runner{ext: tx, dialect: s.dialect, lg: s.lg},
		tx:     tx,
	}, nil
}

func (s *SqlxStore) Commit(tx Tx) error {
	st, ok := tx.(*sqlxTx)
	if !ok {
		return ErrForeignTx
	}

	if err := st.tx.Commit(); err != nil {
		return errors.Wrap(err, "could not commit transaction")
	}

	return nil
}

func (s *SqlxStore) Rollback(tx Tx) error {
	st, ok := tx.(*sqlxTx)
	if !ok {
		return ErrForeignTx
	}

	if err := st.tx.Rollback(); err != nil {
		return errors.Wrap(err, "could not rollback transaction")
	}

	return nil
}

func (s *SqlxStore) Close() error {
	return s.db.Close()
}

func (s *SqlxStore) SetLogger(lg logger.Logger) {
	s.lg = lg
}

func (s *SqlxStore) Dialect() Dialect {
	return s.dialect
}
