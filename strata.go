// Package strata is a persistence-consistency layer for stateful
// applications: a migration engine with durable batch bookkeeping plus
// the failover primitives the rest of the application uses to survive
// transient persistence failures.
//
// The engine assumes a single writer. Two concurrent Migrate calls
// against the same store can race on the batch number; serialize
// invocations externally, typically by running migrations once at
// startup.
package strata

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/olegsidorov/strata/failover"
	"github.com/olegsidorov/strata/internal/ledger"
	"github.com/olegsidorov/strata/internal/logger"
	"github.com/olegsidorov/strata/store"
	"github.com/olegsidorov/strata/unit"
)

var ErrStoreNotInitialized = errors.New("store has not been initialized")
var ErrLedgerOutOfSync = errors.New("ledger references a migration unit that is not registered")

type CloserFunc func() error

type State string

const (
	StateApplied State = "applied"
	StatePending State = "pending"
)

// Status describes one registered unit. Batch and AppliedAt hold their
// zero values while the unit is pending; batches start at 1.
type Status struct {
	Key       string
	State     State
	Batch     int
	AppliedAt time.Time
}

type Migrator struct {
	lg          logger.Logger
	store       store.Store
	dialect     store.Dialect
	registry    *unit.Registry
	ledger      *ledger.Ledger
	fo          *failover.Context
	ledgerTable string
}

// NewMigrator assembles a migrator from option callbacks. The returned
// closer releases the underlying store and must be called at shutdown.
func NewMigrator(opts ...OptionFunc) (*Migrator, CloserFunc, error) {
	m := new(Migrator)
	m.lg = &logger.NullLogger{}

	for _, oFunc := range opts {
		if err := oFunc(m); err != nil {
			return nil, nil, err
		}
	}

	if m.store == nil {
		return nil, nil, ErrStoreNotInitialized
	}

	if m.registry == nil {
		m.registry = mustEmptyRegistry()
	}

	if ls, ok := m.store.(interface{ SetLogger(logger.Logger) }); ok {
		ls.SetLogger(m.lg)
	}

	m.ledger = ledger.New(m.ledgerTable, m.dialect)
	m.fo = failover.NewContext(m.store, failover.WithLogger(m.lg))

	return m, m.close, nil
}

// Failover exposes the failover context built around the migrator's
// store, for higher layers that guard individual operations with the
// same availability semantics.
func (m *Migrator) Failover() *failover.Context {
	return m.fo
}

// Migrate applies every registered unit that has no ledger entry yet,
// in lexical key order, all within one new batch. Each unit runs in
// its own transaction together with its ledger record; the first
// failure aborts the call and leaves earlier units committed. Returns
// the keys actually applied.
func (m *Migrator) Migrate(ctx context.Context, cfs ...ActionConfigurator) ([]string, error) {
	act := new(action)
	for _, f := range cfs {
		f(act)
	}

	if err := m.ledger.EnsureTable(ctx, m.store); err != nil {
		m.lg.Error(err)
		return nil, err
	}

	pending, err := m.pending(ctx)
	if err != nil {
		m.lg.Error(err)
		return nil, err
	}

	if act.steps > 0 && len(pending) > act.steps {
		pending = pending[:act.steps]
	}

	if len(pending) == 0 {
		m.lg.Debugf("nothing to migrate")
		return nil, nil
	}

	current, err := m.ledger.CurrentBatch(ctx, m.store)
	if err != nil {
		m.lg.Error(err)
		return nil, err
	}

	batch := current + 1

	var applied []string
	for _, u := range pending {
		if err := u.Validate(); err != nil {
			return applied, err
		}

		if err := m.applyOne(ctx, u, batch); err != nil {
			m.lg.Error(err)
			return applied, err
		}

		applied = append(applied, u.Key)
		m.lg.Successf("migrated [%s] in batch %d", u.Key, batch)
	}

	return applied, nil
}

// Rollback undoes the most recent batch, most recently applied unit
// first. Like Migrate it is per-unit atomic: a failure aborts the call
// and leaves the not-yet-rolled-back entries in place. Returns the
// keys actually rolled back.
func (m *Migrator) Rollback(ctx context.Context, cfs ...ActionConfigurator) ([]string, error) {
	act := new(action)
	for _, f := range cfs {
		f(act)
	}

	if err := m.ledger.EnsureTable(ctx, m.store); err != nil {
		m.lg.Error(err)
		return nil, err
	}

	last, err := m.ledger.CurrentBatch(ctx, m.store)
	if err != nil {
		m.lg.Error(err)
		return nil, err
	}

	if last == 0 {
		m.lg.Debugf("nothing to rollback")
		return nil, nil
	}

	entries, err := m.ledger.InBatch(ctx, m.store, last)
	if err != nil {
		m.lg.Error(err)
		return nil, err
	}

	if act.steps > 0 && len(entries) > act.steps {
		entries = entries[:act.steps]
	}

	var rolledBack []string
	for _, e := range entries {
		u, ok := m.registry.Get(e.Name)
		if !ok {
			err := errors.Wrapf(ErrLedgerOutOfSync, "[%s]", e.Name)
			m.lg.Error(err)
			return rolledBack, err
		}

		if err := u.Validate(); err != nil {
			return rolledBack, err
		}

		if err := m.rollbackOne(ctx, u); err != nil {
			m.lg.Error(err)
			return rolledBack, err
		}

		rolledBack = append(rolledBack, u.Key)
		m.lg.Successf("rolled back [%s] from batch %d", u.Key, last)
	}

	return rolledBack, nil
}

// Status reports every registered unit in lexical order as applied,
// with its batch and timestamp, or pending.
func (m *Migrator) Status(ctx context.Context) ([]Status, error) {
	if err := m.ledger.EnsureTable(ctx, m.store); err != nil {
		m.lg.Error(err)
		return nil, err
	}

	entries, err := m.ledger.Applied(ctx, m.store)
	if err != nil {
		m.lg.Error(err)
		return nil, err
	}

	recorded := make(map[string]ledger.Entry, len(entries))
	for _, e := range entries {
		if _, ok := m.registry.Get(e.Name); !ok {
			err := errors.Wrapf(ErrLedgerOutOfSync, "[%s]", e.Name)
			m.lg.Error(err)
			return nil, err
		}

		recorded[e.Name] = e
	}

	var result []Status
	for _, u := range m.registry.All() {
		if e, ok := recorded[u.Key]; ok {
			result = append(result, Status{
				Key:       u.Key,
				State:     StateApplied,
				Batch:     e.Batch,
				AppliedAt: e.AppliedAt,
			})
		} else {
			result = append(result, Status{Key: u.Key, State: StatePending})
		}
	}

	return result, nil
}

func (m *Migrator) pending(ctx context.Context) ([]*unit.Unit, error) {
	entries, err := m.ledger.Applied(ctx, m.store)
	if err != nil {
		return nil, err
	}

	recorded := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, ok := m.registry.Get(e.Name); !ok {
			return nil, errors.Wrapf(ErrLedgerOutOfSync, "[%s]", e.Name)
		}

		recorded[e.Name] = struct{}{}
	}

	var pending []*unit.Unit
	for _, u := range m.registry.All() {
		if _, ok := recorded[u.Key]; !ok {
			pending = append(pending, u)
		}
	}

	return pending, nil
}

func (m *Migrator) applyOne(ctx context.Context, u *unit.Unit, batch int) error {
	outcome := failover.WithTransaction(ctx, m.fo, func(ctx context.Context, tx store.Tx) (interface{}, error) {
		if err := u.Migrate(ctx, tx); err != nil {
			return nil, errors.Wrapf(err, "migrate procedure of [%s] failed", u.Key)
		}

		if _, err := m.ledger.Record(ctx, tx, u.Key, batch); err != nil {
			return nil, err
		}

		return nil, nil
	}, nil)

	if outcome.Err != nil {
		return errors.Wrapf(outcome.Err, "migration aborted at [%s]", u.Key)
	}

	return nil
}

func (m *Migrator) rollbackOne(ctx context.Context, u *unit.Unit) error {
	outcome := failover.WithTransaction(ctx, m.fo, func(ctx context.Context, tx store.Tx) (interface{}, error) {
		if err := u.Rollback(ctx, tx); err != nil {
			return nil, errors.Wrapf(err, "rollback procedure of [%s] failed", u.Key)
		}

		if err := m.ledger.Erase(ctx, tx, u.Key); err != nil {
			return nil, err
		}

		return nil, nil
	}, nil)

	if outcome.Err != nil {
		return errors.Wrapf(outcome.Err, "rollback aborted at [%s]", u.Key)
	}

	return nil
}

func (m *Migrator) close() error {
	if m.store == nil {
		return ErrStoreNotInitialized
	}

	if err := m.store.Close(); err != nil {
		m.lg.Error(err)
		return err
	}

	return nil
}

func mustEmptyRegistry() *unit.Registry {
	r, err := unit.NewRegistry()
	if err != nil {
		panic(err)
	}

	return r
}
