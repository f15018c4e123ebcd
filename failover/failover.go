// Package failover insulates callers from transient persistence
// failures. Primary-path errors are absorbed at this boundary and
// replaced with a fallback computation; callers that need to know
// which path ran inspect the returned Outcome instead of scraping logs.
package failover

import (
	"context"

	"github.com/pkg/errors"

	"github.com/olegsidorov/strata/internal/logger"
	"github.com/olegsidorov/strata/store"
)

var ErrNotAvailable = errors.New("store context is not available")
var ErrUnknownCapability = errors.New("unknown data-access capability")
var ErrUnknownOperation = errors.New("unknown operation")

type Path string

const (
	PathPrimary  Path = "primary"
	PathFallback Path = "fallback"
)

// Outcome is the result of a guarded call. Err carries the absorbed
// primary-path error when the fallback ran because of a failure; it is
// nil on the primary path and ErrNotAvailable when the store context
// was unusable to begin with.
type Outcome struct {
	Value interface{}
	Path  Path
	Err   error
}

func (o Outcome) UsedFallback() bool {
	return o.Path == PathFallback
}

// Operation is a named primary computation registered under a capability.
type Operation func(ctx context.Context, s store.Store, args ...interface{}) (interface{}, error)

// Fallback substitutes the primary result. It must not depend on the
// store being reachable; its own panic is deliberately not recovered.
type Fallback func() interface{}

// Body is a multi-step operation run inside one store transaction.
type Body func(ctx context.Context, tx store.Tx) (interface{}, error)

// Capability is a named group of data-access operations, registered
// explicitly so that availability of the group can be probed by name.
type Capability struct {
	name string
	ops  map[string]Operation
}

func NewCapability(name string) *Capability {
	return &Capability{
		name: name,
		ops:  make(map[string]Operation),
	}
}

func (c *Capability) Name() string {
	return c.name
}

// Handle registers an operation under the capability. Later
// registrations with the same name win, mirroring map assignment.
func (c *Capability) Handle(operation string, op Operation) *Capability {
	c.ops[operation] = op
	return c
}

type Option func(*Context)

func WithLogger(lg logger.Logger) Option {
	return func(fc *Context) {
		fc.lg = lg
	}
}

func WithCapabilities(caps ...*Capability) Option {
	return func(fc *Context) {
		for _, c := range caps {
			fc.caps[c.name] = c
		}
	}
}

// Context carries the store handle and the capability registry. It is
// constructed once at application assembly and passed down explicitly;
// there is no package-level instance.
type Context struct {
	store store.Store
	caps  map[string]*Capability
	lg    logger.Logger
}

func NewContext(s store.Store, opts ...Option) *Context {
	fc := &Context{
		store: s,
		caps:  make(map[string]*Capability),
		lg:    &logger.NullLogger{},
	}

	for _, opt := range opts {
		opt(fc)
	}

	return fc
}

func (fc *Context) Store() store.Store {
	if fc == nil {
		return nil
	}

	return fc.store
}

// Available reports whether the store context is usable and, when
// capability is non-empty, whether that capability is registered. It
// never fails: malformed input, a nil receiver included, yields false.
func (fc *Context) Available(capability string) bool {
	if fc == nil || fc.store == nil {
		return false
	}

	if capability == "" {
		return true
	}

	_, ok := fc.caps[capability]

	return ok
}

// WithFallback invokes the named operation and returns its result; if
// the context is unavailable, the operation is unknown, or the
// invocation errors, the fallback result is returned instead. No
// primary-path failure propagates past this call.
func WithFallback(
	ctx context.Context,
	fc *Context,
	capability string,
	operation string,
	args []interface{},
	fallback Fallback,
) Outcome {
	if !fc.Available("") {
		fc.logSubstitution(capability, operation, ErrNotAvailable)
		return Outcome{Value: runFallback(fallback), Path: PathFallback, Err: ErrNotAvailable}
	}

	c, ok := fc.caps[capability]
	if !ok {
		err := errors.Wrapf(ErrUnknownCapability, "[%s]", capability)
		fc.logSubstitution(capability, operation, err)
		return Outcome{Value: runFallback(fallback), Path: PathFallback, Err: err}
	}

	op, ok := c.ops[operation]
	if !ok {
		err := errors.Wrapf(ErrUnknownOperation, "[%s.%s]", capability, operation)
		fc.logSubstitution(capability, operation, err)
		return Outcome{Value: runFallback(fallback), Path: PathFallback, Err: err}
	}

	value, err := op(ctx, fc.store, args...)
	if err != nil {
		fc.logSubstitution(capability, operation, err)
		return Outcome{Value: runFallback(fallback), Path: PathFallback, Err: err}
	}

	return Outcome{Value: value, Path: PathPrimary}
}

// WithTransaction runs body inside one store transaction: commit on
// success, best-effort rollback and the fallback result on failure.
// Exactly one begin and one commit-or-rollback happen per call; a
// rollback failure is logged but never masks the original error.
func WithTransaction(
	ctx context.Context,
	fc *Context,
	body Body,
	fallback Fallback,
) Outcome {
	if !fc.Available("") {
		return Outcome{Value: runFallback(fallback), Path: PathFallback, Err: ErrNotAvailable}
	}

	tx, err := fc.store.Begin(ctx)
	if err != nil {
		fc.lg.Error(err)
		return Outcome{Value: runFallback(fallback), Path: PathFallback, Err: err}
	}

	value, err := body(ctx, tx)
	if err != nil {
		if rbErr := fc.store.Rollback(tx); rbErr != nil {
			fc.lg.Error(errors.Wrapf(rbErr, "after [%v]", err))
		}

		return Outcome{Value: runFallback(fallback), Path: PathFallback, Err: err}
	}

	if err := fc.store.Commit(tx); err != nil {
		if rbErr := fc.store.Rollback(tx); rbErr != nil {
			fc.lg.Error(errors.Wrapf(rbErr, "after [%v]", err))
		}

		return Outcome{Value: runFallback(fallback), Path: PathFallback, Err: err}
	}

	return Outcome{Value: value, Path: PathPrimary}
}

func (fc *Context) logSubstitution(capability, operation string, cause error) {
	if fc == nil || fc.lg == nil {
		return
	}

	fc.lg.Debugf("substituting fallback for [%s.%s]: %v", capability, operation, cause)
}

func runFallback(fallback Fallback) interface{} {
	if fallback == nil {
		return nil
	}

	return fallback()
}
