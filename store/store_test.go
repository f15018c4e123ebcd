package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*SqlxStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = db.Close()
	})

	return NewSqlxStore(sqlx.NewDb(db, "sqlmock"), SqliteDialect{}, nil), mock
}

func Test_DialectFor(t *testing.T) {
	d, err := DialectFor("sqlite3")
	require.NoError(t, err)
	assert.Equal(t, "sqlite3", d.Name())

	d, err = DialectFor("mysql")
	require.NoError(t, err)
	assert.Equal(t, "mysql", d.Name())

	_, err = DialectFor("oracle")
	assert.True(t, errors.Is(err, ErrUnsupportedDriver))
}

func Test_InsertQueryColumnsAreDeterministic(t *testing.T) {
	q := SqliteDialect{}.InsertQuery("scores", []string{"player", "points"})
	assert.Equal(t, "INSERT INTO scores (player, points) VALUES (?, ?);", q)
}

func Test_CreateLedgerQueries(t *testing.T) {
	sqlite := SqliteDialect{}.CreateLedgerQuery("migrations")
	assert.Contains(t, sqlite, "CREATE TABLE IF NOT EXISTS migrations")
	assert.Contains(t, sqlite, "AUTOINCREMENT")
	assert.Contains(t, sqlite, "applied_at")

	mysql := MySQLDialect{}.CreateLedgerQuery("migrations")
	assert.Contains(t, mysql, "AUTO_INCREMENT")
	assert.Contains(t, mysql, "ENGINE=INNODB")
}

func Test_InsertSortsRecordColumns(t *testing.T) {
	s, mock := newMockStore(t)

	// map iteration order must not leak into the generated SQL
	mock.ExpectExec(`INSERT INTO scores \(player, points\) VALUES \(\?, \?\);`).
		WithArgs("ada", 10).
		WillReturnResult(sqlmock.NewResult(3, 1))

	id, err := s.Insert(context.Background(), "scores", Record{
		"points": 10,
		"player": "ada",
	})

	require.NoError(t, err)
	assert.Equal(t, int64(3), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_TableExists(t *testing.T) {
	t.Run("present table", func(t *testing.T) {
		s, mock := newMockStore(t)

		mock.ExpectQuery(`SELECT COUNT\(1\) FROM sqlite_master`).
			WithArgs("players").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		exists, err := s.TableExists(context.Background(), "players")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("absent table", func(t *testing.T) {
		s, mock := newMockStore(t)

		mock.ExpectQuery(`SELECT COUNT\(1\) FROM sqlite_master`).
			WithArgs("ghosts").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		exists, err := s.TableExists(context.Background(), "ghosts")
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func Test_ExecuteWrapsDriverErrors(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("DROP TABLE players").WillReturnError(errors.New("locked"))

	_, err := s.Execute(context.Background(), "DROP TABLE players;")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "DROP TABLE players"))
}

type foreignTx struct{}

func (foreignTx) Execute(_ context.Context, _ string, _ ...interface{}) (sql.Result, error) {
	return nil, nil
}

func (foreignTx) Query(_ context.Context, _ string, _ ...interface{}) (*sqlx.Rows, error) {
	return nil, nil
}

func (foreignTx) Insert(_ context.Context, _ string, _ Record) (int64, error) {
	return 0, nil
}

func (foreignTx) TableExists(_ context.Context, _ string) (bool, error) {
	return false, nil
}

func Test_StoreRejectsForeignTransactions(t *testing.T) {
	s, _ := newMockStore(t)

	assert.True(t, errors.Is(s.Commit(foreignTx{}), ErrForeignTx))
	assert.True(t, errors.Is(s.Rollback(foreignTx{}), ErrForeignTx))
}

func Test_TransactionExecutorRunsOnTx(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE players").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	_, err = tx.Execute(ctx, "UPDATE players SET score = score + 1;")
	require.NoError(t, err)

	require.NoError(t, s.Commit(tx))
	assert.NoError(t, mock.ExpectationsWereMet())
}
