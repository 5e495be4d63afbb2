// Package multi fans writes out to several backends at once, reading back
// from the first. It is grounded on the original Python source's
// MultiBackend (storage/__init__.py), useful for mirroring writes to a
// durable backend (bolt) and a fast in-memory one during development, or
// for migrating between two backend implementations.
package multi

import (
	"iter"

	"github.com/guyvdb/objectengine/backend"
)

var _ backend.Backend = (*Backend)(nil)

// Backend multiplexes writes across all of its members. Reads are served
// by the first member that has the key.
type Backend struct {
	members []backend.Backend
}

func New(members ...backend.Backend) *Backend {
	return &Backend{members: members}
}

func (b *Backend) Add(key string, value []byte) error {
	for _, m := range b.members {
		if err := m.Add(key, value); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) Update(key string, value []byte) error {
	for _, m := range b.members {
		if err := m.Update(key, value); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) Get(key string) ([]byte, bool, error) {
	for _, m := range b.members {
		v, ok, err := m.Get(key)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return v, true, nil
		}
	}
	return nil, false, nil
}

func (b *Backend) Has(key string) (bool, error) {
	for _, m := range b.members {
		ok, err := m.Has(key)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (b *Backend) Remove(key string) error {
	for _, m := range b.members {
		if err := m.Remove(key); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) Keys(prefix string) (iter.Seq[string], error) {
	if len(b.members) == 0 {
		return func(func(string) bool) {}, nil
	}
	return b.members[0].Keys(prefix)
}

func (b *Backend) Sync() error {
	for _, m := range b.members {
		if err := m.Sync(); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) Clear() error {
	for _, m := range b.members {
		if err := m.Clear(); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) Capabilities() backend.CapabilitySet {
	var s backend.CapabilitySet
	for _, m := range b.members {
		s |= m.Capabilities()
	}
	return s
}
