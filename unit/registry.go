package unit

import (
	"sort"

	"github.com/pkg/errors"
)

var ErrDuplicateUnit = errors.New("migration unit already registered")
var ErrDuplicateVersion = errors.New("another migration unit carries the same version")

// Registry enumerates migration units in lexical key order. Since keys
// are version-prefixed, lexical order is authoring order, provided the
// naming discipline holds; the registry enforces the part of that
// discipline it can see by rejecting duplicate keys and versions.
type Registry struct {
	units    map[string]*Unit
	versions map[string]string
}

func NewRegistry(units ...*Unit) (*Registry, error) {
	r := &Registry{
		units:    make(map[string]*Unit),
		versions: make(map[string]string),
	}

	for _, u := range units {
		if err := r.Add(u); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Add validates the unit at registration time, not at call time.
func (r *Registry) Add(u *Unit) error {
	if err := u.Validate(); err != nil {
		return err
	}

	if _, ok := r.units[u.Key]; ok {
		return errors.Wrapf(ErrDuplicateUnit, "[%s]", u.Key)
	}

	if key, ok := r.versions[u.Version()]; ok {
		return errors.Wrapf(ErrDuplicateVersion, "[%s] clashes with [%s]", u.Key, key)
	}

	r.units[u.Key] = u
	r.versions[u.Version()] = u.Key

	return nil
}

func (r *Registry) Get(key string) (*Unit, bool) {
	u, ok := r.units[key]
	return u, ok
}

// Keys returns all registered keys sorted lexically.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.units))
	for k := range r.units {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// All returns all registered units sorted lexically by key.
func (r *Registry) All() []*Unit {
	keys := r.Keys()

	units := make([]*Unit, 0, len(keys))
	for _, k := range keys {
		units = append(units, r.units[k])
	}

	return units
}

func (r *Registry) Len() int {
	return len(r.units)
}
