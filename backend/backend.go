// Package backend declares the narrow key-value contract the storage
// engine depends on. The core never reaches past this interface: concrete
// implementations (memory, bolt, multi, or an application-supplied one)
// live in sibling packages and are wired in by the caller.
package backend

import "iter"

// Capability is a single optional extension a Backend may advertise.
type Capability uint16

const (
	// Files indicates the backend can serve file-like objects for content.
	Files Capability = 1 << iota
	// Filesystem indicates Path() on a raw object will succeed.
	Filesystem
	// ObjectsOpt indicates object-store-specific optimizations are available.
	ObjectsOpt
	// MetricsOpt indicates metrics-specific optimizations are available.
	MetricsOpt
	// RawOpt indicates raw-store-specific optimizations are available.
	RawOpt
	// IndexOpt indicates index-specific optimizations are available.
	IndexOpt
	// Index indicates the backend can itself store indexes.
	Index
)

// CapabilitySet is a bitset of Capability flags.
type CapabilitySet uint16

func NewCapabilitySet(caps ...Capability) CapabilitySet {
	var s CapabilitySet
	for _, c := range caps {
		s |= CapabilitySet(c)
	}
	return s
}

func (s CapabilitySet) Has(c Capability) bool {
	return s&CapabilitySet(c) != 0
}

func (s CapabilitySet) With(c Capability) CapabilitySet {
	return s | CapabilitySet(c)
}

// Backend is a key-value store where keys and values are opaque byte
// strings. Keys are lexicographically ordered so that Keys(prefix) can
// enumerate a collection scoped by a common prefix.
//
// Implementations must be safe for concurrent use by multiple goroutines;
// the core serializes writes to a given key via its own locking, but reads
// may be issued concurrently with writes to other keys.
type Backend interface {
	// Add creates a new entry. It fails with storeerr.AlreadyExists if key
	// already exists.
	Add(key string, value []byte) error

	// Update overwrites the value at key, creating it if absent.
	Update(key string, value []byte) error

	// Get reads the value at key. ok is false if the key is absent.
	Get(key string) (value []byte, ok bool, err error)

	// Has reports whether key exists.
	Has(key string) (bool, error)

	// Remove deletes key. It is idempotent: removing an absent key is not
	// an error.
	Remove(key string) error

	// Keys enumerates all keys with the given prefix in lexicographic
	// order. An empty prefix enumerates every key.
	Keys(prefix string) (iter.Seq[string], error)

	// Sync flushes durable state to the underlying medium.
	Sync() error

	// Clear removes every entry.
	Clear() error

	// Capabilities reports the optional extensions this backend supports.
	Capabilities() CapabilitySet
}

// PathProvider is implemented by backends that advertise Filesystem: they
// can return a real filesystem path backing a given key.
type PathProvider interface {
	Path(key string) (string, error)
}
