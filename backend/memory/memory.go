// Package memory provides an in-process Backend implementation backed by a
// Go map, mirroring the teacher's BoltStore shape but without durability.
// It is the reference backend used by the engine's own tests and is
// suitable for short-lived or test-only use by application processes.
package memory

import (
	"iter"
	"slices"
	"sync"

	"github.com/guyvdb/objectengine/backend"
	"github.com/guyvdb/objectengine/storeerr"
)

var _ backend.Backend = (*Backend)(nil)

// Backend is a map-backed key-value store. The zero value is not usable;
// construct with New.
type Backend struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func New() *Backend {
	return &Backend{values: make(map[string][]byte)}
}

func (b *Backend) Add(key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.values[key]; ok {
		return &storeerr.AlreadyExists{OID: key}
	}
	b.values[key] = cloneBytes(value)
	return nil
}

func (b *Backend) Update(key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[key] = cloneBytes(value)
	return nil
}

func (b *Backend) Get(key string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[key]
	if !ok {
		return nil, false, nil
	}
	return cloneBytes(v), true, nil
}

func (b *Backend) Has(key string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.values[key]
	return ok, nil
}

func (b *Backend) Remove(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.values, key)
	return nil
}

func (b *Backend) Keys(prefix string) (iter.Seq[string], error) {
	b.mu.RLock()
	keys := make([]string, 0, len(b.values))
	for k := range b.values {
		if hasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	b.mu.RUnlock()
	slices.Sort(keys)
	return func(yield func(string) bool) {
		for _, k := range keys {
			if !yield(k) {
				return
			}
		}
	}, nil
}

func (b *Backend) Sync() error {
	return nil
}

func (b *Backend) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values = make(map[string][]byte)
	return nil
}

func (b *Backend) Capabilities() backend.CapabilitySet {
	return backend.NewCapabilitySet(backend.ObjectsOpt, backend.RawOpt, backend.IndexOpt, backend.Index)
}

func hasPrefix(s, prefix string) bool {
	if prefix == "" {
		return true
	}
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return slices.Clone(b)
}
