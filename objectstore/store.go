// Package objectstore implements the typed structured-object layer:
// classes declared against a classreg.Descriptor, backed by a
// backend.Backend, with a weak identity cache, per-attribute dirty
// tracking, and lazy relation resolution.
//
// Grounded on the teacher's store.Store/BoltStore (store/store.go,
// store/bolt.go): the same shape of Put/Get/GetAll/Delete operations,
// generalized from an integer-typed-id scheme to the engine's opaque
// string OIDs and declarative class descriptors, and from a single
// concrete implementation to a generic wrapper over any backend.Backend.
package objectstore

import (
	"fmt"
	"iter"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/guyvdb/objectengine/backend"
	"github.com/guyvdb/objectengine/cache"
	"github.com/guyvdb/objectengine/classreg"
	"github.com/guyvdb/objectengine/oid"
	"github.com/guyvdb/objectengine/storeerr"
	"github.com/guyvdb/objectengine/typesys"
)

// PStorable constrains a Store's pointer type parameter: P must be a
// pointer to E and satisfy Storable. Every domain type satisfies this by
// embedding Base by value and being referred to everywhere as *Self.
type PStorable[E any] interface {
	Storable
	*E
}

// Hook is notified after every save and remove so that derived
// structures (the index manager) stay in sync without the object store
// depending on them.
type Hook interface {
	AfterSave(class, oid string, oldRecord, newRecord *Record)
	AfterRemove(class, oid string, oldRecord *Record)
}

// Store hosts one class's instances over a backend. Construct with Open.
type Store[E any, P PStorable[E]] struct {
	mu    sync.Mutex
	be    backend.Backend
	desc  *classreg.Descriptor
	ids   *cache.Cache[E]
	hooks []Hook
	log   *slog.Logger

	scopeMu    sync.Mutex
	scopeDepth int
	scopeSeen  map[P]struct{}
	scopeOrder []P
}

// Open binds desc to be, registering the store as desc's relation
// resolver. Opening the same class twice in one process replaces the
// prior resolver binding — callers own at most one Store per class.
func Open[E any, P PStorable[E]](be backend.Backend, desc *classreg.Descriptor, opts ...Option) *Store[E, P] {
	o := resolveOptions(opts)
	st := &Store[E, P]{be: be, desc: desc, ids: cache.New[E](), log: o.log}
	registerResolver(desc.Name, st)
	return st
}

// AddHook registers h to be notified of future saves and removes.
func (st *Store[E, P]) AddHook(h Hook) {
	st.hooks = append(st.hooks, h)
}

func (st *Store[E, P]) key(oid string) string {
	return st.desc.Collection + "/" + oid
}

func (st *Store[E, P]) newInstance() P {
	p := P(new(E))
	p.Bind(st.desc)
	return p
}

// trackScope records obj as touched within the currently open scope, if
// any. A no-op outside of Scope.
func (st *Store[E, P]) trackScope(obj P) {
	st.scopeMu.Lock()
	defer st.scopeMu.Unlock()
	if st.scopeSeen == nil {
		return
	}
	if _, ok := st.scopeSeen[obj]; ok {
		return
	}
	st.scopeSeen[obj] = struct{}{}
	st.scopeOrder = append(st.scopeOrder, obj)
}

// New returns a freshly bound, unsaved instance with no OID.
func (st *Store[E, P]) New() P {
	obj := st.newInstance()
	st.trackScope(obj)
	return obj
}

// Get loads the instance identified by oid, returning *storeerr.NotFound
// if absent.
func (st *Store[E, P]) Get(oid string) (P, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.getLocked(oid)
}

func (st *Store[E, P]) getLocked(oid string) (P, error) {
	if v, ok := st.ids.Get(oid); ok {
		obj := P(v)
		st.trackScope(obj)
		return obj, nil
	}
	key := st.key(oid)
	data, ok, err := st.be.Get(key)
	if err != nil {
		return nil, storeerr.NewBackendFailure(key, err)
	}
	if !ok {
		return nil, &storeerr.NotFound{Class: st.desc.Name, OID: oid}
	}
	rec, err := decodeRecord(data)
	if err != nil {
		return nil, storeerr.NewInvalidValue(key, err.Error())
	}
	obj, err := st.hydrate(rec)
	if err != nil {
		return nil, err
	}
	st.ids.Put(oid, (*E)(obj))
	st.trackScope(obj)
	return obj, nil
}

// Has reports whether oid exists, without materializing the instance.
func (st *Store[E, P]) Has(oid string) (bool, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.ids.Get(oid); ok {
		return true, nil
	}
	ok, err := st.be.Has(st.key(oid))
	if err != nil {
		return false, storeerr.NewBackendFailure(st.key(oid), err)
	}
	return ok, nil
}

// Ensure returns the existing instance for oid, or a freshly bound,
// unsaved instance carrying that oid if none exists yet.
func (st *Store[E, P]) Ensure(oid string) (P, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	obj, err := st.getLocked(oid)
	if err == nil {
		return obj, nil
	}
	var nf *storeerr.NotFound
	if !asNotFound(err, &nf) {
		return nil, err
	}
	obj = st.newInstance()
	obj.setOID(oid)
	st.trackScope(obj)
	return obj, nil
}

func asNotFound(err error, target **storeerr.NotFound) bool {
	nf, ok := err.(*storeerr.NotFound)
	if ok {
		*target = nf
	}
	return ok
}

// All lazily iterates every instance of this class in key order.
// Iteration errors are delivered at the pull that hit the failing
// record; earlier yields remain valid.
func (st *Store[E, P]) All() iter.Seq2[P, error] {
	return func(yield func(P, error) bool) {
		st.mu.Lock()
		keys, err := st.be.Keys(st.desc.Collection + "/")
		st.mu.Unlock()
		if err != nil {
			var zero P
			yield(zero, storeerr.NewBackendFailure(st.desc.Collection, err))
			return
		}
		prefix := st.desc.Collection + "/"
		for key := range keys {
			oidStr := strings.TrimPrefix(key, prefix)
			obj, err := st.Get(oidStr)
			if !yield(obj, err) {
				return
			}
		}
	}
}

// List returns instances whose OID falls in [start, end] (either bound
// may be empty to mean unbounded), capped at count items if count > 0.
func (st *Store[E, P]) List(start, end string, count int) ([]P, error) {
	var out []P
	for obj, err := range st.All() {
		if err != nil {
			return nil, err
		}
		o := obj.OID()
		if start != "" && o < start {
			continue
		}
		if end != "" && o > end {
			continue
		}
		out = append(out, obj)
		if count > 0 && len(out) >= count {
			break
		}
	}
	return out, nil
}

// Count scans the class's key prefix and counts entries.
func (st *Store[E, P]) Count() (int, error) {
	st.mu.Lock()
	keys, err := st.be.Keys(st.desc.Collection + "/")
	st.mu.Unlock()
	if err != nil {
		return 0, storeerr.NewBackendFailure(st.desc.Collection, err)
	}
	n := 0
	for range keys {
		n++
	}
	return n, nil
}

// Import validates data's properties against the class descriptor and
// returns an unsaved instance. Relation attributes in data are ignored —
// use AddRelation once the referenced instances are saved.
func (st *Store[E, P]) Import(data map[string]any) (P, error) {
	obj := st.newInstance()
	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if classreg.IsReserved(name) {
			continue
		}
		if _, isRelation := st.desc.Relations[name]; isRelation {
			continue
		}
		if err := obj.SetProperty(name, data[name]); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

// Save writes obj's full serialized form, assigning an OID on first
// save and stamping updates["oid"] whenever obj is new or dirty. Saving a
// clean, already-persisted instance rewrites its unchanged record and
// notifies the hooks again.
func (st *Store[E, P]) Save(obj P) error {
	classes := st.relatedClassNames(obj)
	return withClassLocks(classes, func() error {
		st.mu.Lock()
		defer st.mu.Unlock()
		return st.saveLocked(obj)
	})
}

func (st *Store[E, P]) relatedClassNames(obj Storable) []string {
	names := []string{st.desc.Name}
	_, rels, _ := obj.exportRecord()
	for name := range rels {
		if rel, ok := st.desc.Relations[name]; ok {
			names = append(names, rel.Target)
		}
	}
	return names
}

func (st *Store[E, P]) saveLocked(obj P) error {
	isNew := obj.OID() == ""
	oidStr := obj.OID()
	var oldRecord *Record
	key := ""
	if isNew {
		oidStr = oid.New()
		obj.setOID(oidStr)
		key = st.key(oidStr)
	} else {
		key = st.key(oidStr)
		if data, ok, err := st.be.Get(key); err == nil && ok {
			if rec, derr := decodeRecord(data); derr == nil {
				oldRecord = rec
			}
		}
		if obj.IsDirty() {
			obj.setOID(oidStr) // re-stamps updates["oid"] with this save's time
		}
	}

	props, rels, updates := obj.exportRecord()
	serializedProps, err := serializeProperties(st.desc, props)
	if err != nil {
		return err
	}
	rec := &Record{
		Type:       st.desc.Name,
		OID:        oidStr,
		Properties: serializedProps,
		Relations:  serializeRelations(st.desc, rels),
		Updates:    updates,
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return storeerr.NewInvalidValue(oidStr, err.Error())
	}

	var werr error
	if isNew {
		werr = st.be.Add(key, data)
	} else {
		werr = st.be.Update(key, data)
	}
	if werr != nil {
		return storeerr.NewBackendFailure(key, werr)
	}

	obj.clearDirty()
	st.ids.Put(oidStr, (*E)(obj))
	st.log.Debug("objectstore.Save", "class", st.desc.Name, "oid", oidStr, "new", isNew)

	for _, h := range st.hooks {
		h.AfterSave(st.desc.Name, oidStr, oldRecord, rec)
	}
	return nil
}

// Scope runs fn, then saves every dirty instance this store produced via
// New, Get, or Ensure while fn ran, each exactly once, in the order it was
// first touched. Cross-object ordering beyond that is unspecified. If a
// save fails, instances already saved in this flush stay saved; the
// error names the offending OID and no further saves are attempted.
// Nested calls on the same store join the outer scope and flush only
// once, at the outermost exit.
func (st *Store[E, P]) Scope(fn func() error) error {
	st.scopeMu.Lock()
	st.scopeDepth++
	if st.scopeDepth == 1 {
		st.scopeSeen = make(map[P]struct{})
		st.scopeOrder = nil
	}
	st.scopeMu.Unlock()

	ferr := fn()

	st.scopeMu.Lock()
	st.scopeDepth--
	flush := st.scopeDepth == 0
	var pending []P
	if flush {
		pending = st.scopeOrder
		st.scopeSeen = nil
		st.scopeOrder = nil
	}
	st.scopeMu.Unlock()

	if ferr != nil {
		return ferr
	}
	if !flush {
		return nil
	}
	for _, obj := range pending {
		if !obj.IsDirty() {
			continue
		}
		if err := st.Save(obj); err != nil {
			return fmt.Errorf("objectstore: scoped save failed for %s %s: %w", st.desc.Name, obj.OID(), err)
		}
	}
	return nil
}

// Remove deletes obj's backend record and invalidates its cache entry.
// Removing an object with no OID is a no-op.
func (st *Store[E, P]) Remove(obj P) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	oidStr := obj.OID()
	if oidStr == "" {
		return nil
	}
	key := st.key(oidStr)
	var rec *Record
	if data, ok, err := st.be.Get(key); err == nil && ok {
		rec, _ = decodeRecord(data)
	}
	if err := st.be.Remove(key); err != nil {
		return storeerr.NewBackendFailure(key, err)
	}
	st.ids.Delete(oidStr)
	st.log.Debug("objectstore.Remove", "class", st.desc.Name, "oid", oidStr)

	for _, h := range st.hooks {
		h.AfterRemove(st.desc.Name, oidStr, rec)
	}
	return nil
}

// Update applies a batch of property assignments, marking obj dirty.
// It does not save. Relations are not accepted here — use AddRelation or
// RemoveRelation, which have their own validation.
func (st *Store[E, P]) Update(obj P, fields map[string]any) error {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, isRelation := st.desc.Relations[name]; isRelation {
			return fmt.Errorf("objectstore: %s.%s is a relation, not a property", st.desc.Name, name)
		}
		if err := obj.SetProperty(name, fields[name]); err != nil {
			return err
		}
	}
	return nil
}

func (st *Store[E, P]) hydrate(rec *Record) (P, error) {
	obj := st.newInstance()
	obj.setOID(rec.OID)
	props := make(map[string]any, len(rec.Properties))
	for name, t := range st.desc.Properties {
		raw, ok := rec.Properties[name]
		if !ok {
			continue
		}
		v, err := t.Deserialize(raw)
		if err != nil {
			return nil, storeerr.NewInvalidValue(name, err.Error())
		}
		props[name] = v
	}
	relsOut := map[string][]typesys.Ref{}
	for name, rel := range st.desc.Relations {
		raw, ok := rec.Relations[name]
		if !ok {
			continue
		}
		refs, err := deserializeRelationValue(raw, rel.Plural)
		if err != nil {
			return nil, storeerr.NewInvalidValue(name, err.Error())
		}
		relsOut[name] = refs
	}
	obj.importRecord(props, relsOut, rec.Updates)
	obj.clearDirty()
	return obj, nil
}

// ResolveOID implements RelationResolver so that other classes' relation
// stubs targeting this class can be resolved through this store.
func (st *Store[E, P]) ResolveOID(oid string) (Storable, error) {
	obj, err := st.Get(oid)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// ClassName implements index.RecordSource.
func (st *Store[E, P]) ClassName() string { return st.desc.Name }

// Records implements index.RecordSource: it lazily decodes this class's
// raw records without hydrating typed instances, so a rebuild can replay
// indexing over every class through one non-generic interface.
func (st *Store[E, P]) Records() func(yield func(*Record, error) bool) {
	return func(yield func(*Record, error) bool) {
		st.mu.Lock()
		keys, err := st.be.Keys(st.desc.Collection + "/")
		st.mu.Unlock()
		if err != nil {
			yield(nil, storeerr.NewBackendFailure(st.desc.Collection, err))
			return
		}
		for key := range keys {
			st.mu.Lock()
			data, ok, err := st.be.Get(key)
			st.mu.Unlock()
			if err != nil {
				if !yield(nil, storeerr.NewBackendFailure(key, err)) {
					return
				}
				continue
			}
			if !ok {
				continue
			}
			rec, err := decodeRecord(data)
			if !yield(rec, err) {
				return
			}
		}
	}
}
