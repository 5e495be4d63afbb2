package objectstore

import (
	"sync"

	"github.com/guyvdb/objectengine/storeerr"
)

// Resolve looks up oid within class's registered store, for callers
// (the index manager's restore=true query path) that only know a class
// name, not its Go type.
func Resolve(class, oid string) (Storable, error) {
	r, ok := lookupResolver(class)
	if !ok {
		return nil, &storeerr.NotRegistered{Class: class}
	}
	return r.ResolveOID(oid)
}

// RelationResolver lets a Base resolve a relation stub that targets a
// different class without that class's concrete Store[E,P] type leaking
// into this package's generic code. Every opened Store registers itself
// under its class name; this is the "ClassName.STORAGE is process-wide"
// binding spec §9 calls out, kept as the implicit convenience it
// describes rather than threaded through every call explicitly.
type RelationResolver interface {
	ResolveOID(oid string) (Storable, error)
}

var (
	resolverMu sync.RWMutex
	resolvers  = map[string]RelationResolver{}
)

func registerResolver(class string, r RelationResolver) {
	resolverMu.Lock()
	defer resolverMu.Unlock()
	resolvers[class] = r
}

func lookupResolver(class string) (RelationResolver, bool) {
	resolverMu.RLock()
	defer resolverMu.RUnlock()
	r, ok := resolvers[class]
	return r, ok
}

// classMu holds one mutex per class name, used to serialize relation
// mutations that touch more than one store.
var classMu sync.Map // string -> *sync.Mutex

func classMutex(name string) *sync.Mutex {
	m, _ := classMu.LoadOrStore(name, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// withClassLocks acquires the named classes' mutexes in deterministic
// (lexicographic) order before running fn, releasing them in reverse.
// This is the cross-store ordering spec §5 requires for relation
// mutations that span two classes' stores, applied here around Save so
// that a save touching another class's relation target can never
// deadlock against a concurrent save going the other direction.
func withClassLocks(names []string, fn func() error) error {
	sorted := uniqueSorted(names)
	locks := make([]*sync.Mutex, len(sorted))
	for i, n := range sorted {
		locks[i] = classMutex(n)
	}
	for _, l := range locks {
		l.Lock()
	}
	defer func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}()
	return fn()
}

func uniqueSorted(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
