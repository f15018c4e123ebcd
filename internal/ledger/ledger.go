package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/olegsidorov/strata/store"
)

const DefaultTable = "migrations"

// Entry is one durable row of the ledger: which unit was applied, in
// which batch, and when. Rows ordered by id carry non-decreasing batch
// numbers.
type Entry struct {
	ID        int64
	Name      string
	Batch     int
	AppliedAt time.Time
}

// Ledger records applied migration units. Record and Erase take the
// executor of the transaction that runs the unit itself, so a crash
// mid-operation can never leave an applied-but-unrecorded or
// recorded-but-unapplied state behind.
type Ledger struct {
	table   string
	dialect store.Dialect
}

func New(table string, dialect store.Dialect) *Ledger {
	if table == "" {
		table = DefaultTable
	}

	return &Ledger{table: table, dialect: dialect}
}

func (l *Ledger) Table() string {
	return l.table
}

// EnsureTable lazily creates the ledger table, repeat calls are no-ops.
func (l *Ledger) EnsureTable(ctx context.Context, ex store.Executor) error {
	exists, err := ex.TableExists(ctx, l.table)
	if err != nil {
		return errors.Wrap(err, "could not probe for ledger table")
	}

	if exists {
		return nil
	}

	if _, err := ex.Execute(ctx, l.dialect.CreateLedgerQuery(l.table)); err != nil {
		return errors.Wrapf(err, "could not create ledger table [%s]", l.table)
	}

	return nil
}

// Applied returns every recorded entry ordered by ascending insertion id.
func (l *Ledger) Applied(ctx context.Context, ex store.Executor) ([]Entry, error) {
	query := fmt.Sprintf("SELECT id, name, batch, applied_at FROM %s ORDER BY id ASC;", l.table)
	return l.readEntries(ctx, ex, query)
}

// InBatch returns the entries of one batch ordered by descending
// insertion id, the order rollback must undo them in.
func (l *Ledger) InBatch(ctx context.Context, ex store.Executor, batch int) ([]Entry, error) {
	query := fmt.Sprintf("SELECT id, name, batch, applied_at FROM %s WHERE batch = ? ORDER BY id DESC;", l.table)
	return l.readEntries(ctx, ex, query, batch)
}

func (l *Ledger) readEntries(ctx context.Context, ex store.Executor, query string, args ...interface{}) ([]Entry, error) {
	rows, err := ex.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "could not read ledger entries")
	}

	defer func() {
		_ = rows.Close()
	}()

	var result []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Name, &e.Batch, &e.AppliedAt); err != nil {
			return result, errors.Wrap(err, "could not scan ledger entry")
		}

		result = append(result, e)
	}

	if err := rows.Err(); err != nil {
		return result, errors.Wrap(err, "ledger entries iteration failed")
	}

	return result, nil
}

// CurrentBatch returns the highest recorded batch number, 0 when the
// ledger is empty.
func (l *Ledger) CurrentBatch(ctx context.Context, ex store.Executor) (int, error) {
	query := fmt.Sprintf("SELECT COALESCE(MAX(batch), 0) FROM %s;", l.table)

	rows, err := ex.Query(ctx, query)
	if err != nil {
		return 0, errors.Wrap(err, "could not read current batch")
	}

	defer func() {
		_ = rows.Close()
	}()

	var batch int
	if rows.Next() {
		if err := rows.Scan(&batch); err != nil {
			return 0, errors.Wrap(err, "could not scan current batch")
		}
	}

	if err := rows.Err(); err != nil {
		return 0, errors.Wrap(err, "current batch read failed")
	}

	return batch, nil
}

// Record inserts one entry. It must run on the same transaction as the
// migrate procedure it records.
func (l *Ledger) Record(ctx context.Context, ex store.Executor, name string, batch int) (int64, error) {
	id, err := ex.Insert(ctx, l.table, store.Record{
		"name":  name,
		"batch": batch,
	})
	if err != nil {
		return 0, errors.Wrapf(err, "could not record migration [%s] in batch %d", name, batch)
	}

	return id, nil
}

// Erase deletes the entry for name. It must run on the same
// transaction as the rollback procedure it accompanies.
func (l *Ledger) Erase(ctx context.Context, ex store.Executor, name string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE name = ?;", l.table)

	if _, err := ex.Execute(ctx, query, name); err != nil {
		return errors.Wrapf(err, "could not erase migration [%s] from ledger", name)
	}

	return nil
}
