// Package classreg is the process-wide registry of class descriptors,
// mirroring the teacher's type registry (types/registry.go,
// types/system_registry.go) but keyed by class name instead of an
// allocated integer type id, since the engine's OIDs and class names are
// themselves the only identifiers a backend record needs.
//
// Relation fields refer to their target by class name rather than a Go
// type, so a store can resolve `(class, oid)` stubs without an import
// cycle between domain packages; classreg is where that name resolves.
package classreg

import (
	"fmt"
	"sort"
	"sync"

	"github.com/guyvdb/objectengine/storeerr"
	"github.com/guyvdb/objectengine/typesys"
)

// Relation describes one declared relation attribute.
type Relation struct {
	Target string // target class name
	Plural bool
}

// Indexer is a pure function over a stored object's serialized properties
// and update timestamps, producing zero or more keys under which the
// object should be findable. Defined here, rather than in package index,
// so that a Descriptor can reference one without creating an import
// cycle — package index depends on classreg to look up descriptors by
// class name on save, remove and rebuild, and provides the built-in Indexer factories that
// Descriptor.IndexBy entries are built from.
type Indexer func(props map[string]any, updates map[string]int64) []string

// Descriptor is the registered schema for one model class: storage name,
// key-prefix, typed properties, relations, and named indexers.
type Descriptor struct {
	Name       string
	Collection string
	Properties map[string]*typesys.Descriptor
	Relations  map[string]Relation
	IndexBy    map[string]Indexer
}

const (
	propType    = "type"
	propOID     = "oid"
	propUpdates = "updates"
)

var reserved = map[string]bool{propType: true, propOID: true, propUpdates: true}

// IsReserved reports whether name collides with the engine's reserved
// property names.
func IsReserved(name string) bool {
	return reserved[name]
}

var (
	mu    sync.RWMutex
	items = map[string]*Descriptor{}
)

// Register adds d to the registry. It panics on a duplicate class name
// or a reserved property name, since both indicate a programming error
// in the application's own model declarations, discovered once at
// process startup rather than per-call.
func Register(d *Descriptor) *Descriptor {
	if d.Collection == "" {
		d.Collection = d.Name
	}
	for prop := range d.Properties {
		if IsReserved(prop) {
			panic(fmt.Sprintf("classreg: %s: %q is a reserved property name", d.Name, prop))
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if _, exists := items[d.Name]; exists {
		panic(fmt.Sprintf("classreg: class %q already registered", d.Name))
	}
	items[d.Name] = d
	return d
}

// Get looks up a registered class descriptor by name.
func Get(name string) (*Descriptor, bool) {
	mu.RLock()
	defer mu.RUnlock()
	d, ok := items[name]
	return d, ok
}

// MustGet looks up a registered class descriptor, failing with
// storeerr.NotRegistered if absent.
func MustGet(name string) (*Descriptor, error) {
	if d, ok := Get(name); ok {
		return d, nil
	}
	return nil, &storeerr.NotRegistered{Class: name}
}

// Classes returns every registered descriptor, sorted by name for
// deterministic iteration.
func Classes() []*Descriptor {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]*Descriptor, 0, len(items))
	for _, d := range items {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Reset clears the registry. Intended for test isolation between cases
// that register conflicting class names.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	items = map[string]*Descriptor{}
}

