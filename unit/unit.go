package unit

import (
	"bytes"
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/olegsidorov/strata/store"
)

var ErrInvalidUnitKey = errors.New("invalid migration unit key")
var ErrMissingMigrateProcedure = errors.New("migration unit has no migrate procedure")
var ErrMissingRollbackProcedure = errors.New("migration unit has no rollback procedure")

type (
	VersionFormat string

	ClockFunc func() time.Time

	// Procedure is one direction of a migration unit. It runs against
	// a transaction-scoped executor and either succeeds or errors,
	// there is no partial-success return.
	Procedure func(ctx context.Context, ex store.Executor) error
)

const (
	TimestampFormat VersionFormat = "timestamp"
	DatetimeFormat  VersionFormat = "datetime"
)

// Keys look like 1596897167_create_foo_table or
// 20260825120000_create_foo_table. The numeric prefix orders units:
// lexical sort of keys is the authoring order, which is why the prefix
// length is pinned to 9-14 digits.
var keyRegexp = regexp.MustCompile(`^(?P<version>\d{9,14})_(?P<name>\w[\w_-]*)$`)

// Unit is a single named, reversible schema-change step. Units are
// authored once and must never change after being applied.
type Unit struct {
	Key      string
	Migrate  Procedure
	Rollback Procedure
}

// Validate reports the configuration problems that must be caught
// before any transaction is ever opened for the unit.
func (u *Unit) Validate() error {
	if !keyRegexp.MatchString(u.Key) {
		return errors.Wrapf(ErrInvalidUnitKey, "[%s]", u.Key)
	}

	if u.Migrate == nil {
		return errors.Wrapf(ErrMissingMigrateProcedure, "[%s]", u.Key)
	}

	if u.Rollback == nil {
		return errors.Wrapf(ErrMissingRollbackProcedure, "[%s]", u.Key)
	}

	return nil
}

// Version is the numeric prefix of the key, empty when the key is malformed.
func (u *Unit) Version() string {
	matches := keyRegexp.FindStringSubmatch(u.Key)
	if len(matches) < 2 {
		return ""
	}

	return matches[1]
}

// Name is the human readable part of the key.
func (u *Unit) Name() string {
	matches := keyRegexp.FindStringSubmatch(u.Key)
	if len(matches) < 3 {
		return ""
	}

	name := strings.Replace(matches[2], "_", " ", -1)
	return strings.ToUpper(name[:1]) + name[1:]
}

func CreateKey(version, name string) string {
	var result bytes.Buffer
	result.WriteString(version)
	result.WriteString("_")
	result.WriteString(strings.Replace(strings.ToLower(name), " ", "_", -1))
	return result.String()
}

func GenerateVersion(cf ClockFunc, vf VersionFormat) string {
	if vf == TimestampFormat {
		return strconv.Itoa(int(cf().Unix()))
	}

	return cf().Format("20060102150405")
}
