package objectstore

import (
	"sync/atomic"
	"time"

	"github.com/guyvdb/objectengine/classreg"
	"github.com/guyvdb/objectengine/storeerr"
	"github.com/guyvdb/objectengine/typesys"
)

var lastTimestamp int64

// nextTimestamp returns the current time as Unix nanoseconds, bumped by
// at least 1ns past whatever was last handed out. time.Now() alone can
// return equal values for two updates issued back to back; the bump
// keeps updates["attr"] strictly increasing within a process so ordering
// comparisons (e.g. updates["email"] >= updates["oid"] of creation) never
// tie, while still formatting as a real, UpdateTime-indexable timestamp.
func nextTimestamp() int64 {
	for {
		now := time.Now().UnixNano()
		prev := atomic.LoadInt64(&lastTimestamp)
		next := now
		if next <= prev {
			next = prev + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, prev, next) {
			return next
		}
	}
}

// Storable is the contract a store needs from a class. Domain types never
// implement it directly: embedding Base by value and always using a
// pointer to the embedding struct satisfies it entirely through method
// promotion.
type Storable interface {
	OID() string
	ClassDescriptor() *classreg.Descriptor
	IsDirty() bool

	Bind(desc *classreg.Descriptor)
	GetProperty(name string) (any, error)
	SetProperty(name string, value any) error
	GetRelation(name string) ([]typesys.Ref, error)
	AddRelation(name string, target Storable) error
	RemoveRelation(name string, target Storable) error
	Resolve(name string) ([]Storable, error)

	setOID(oid string)
	clearDirty()
	exportRecord() (props map[string]any, rels map[string][]typesys.Ref, updates map[string]int64)
	importRecord(props map[string]any, rels map[string][]typesys.Ref, updates map[string]int64)
}

// Base is the state every stored-object class carries: typed properties,
// relation stubs, and per-attribute update timestamps. Embed it by value;
// use a pointer to the embedding type everywhere else.
type Base struct {
	desc    *classreg.Descriptor
	oid     string
	props   map[string]any
	rels    map[string][]typesys.Ref
	updates map[string]int64
	dirty   bool
}

// Bind wires a freshly constructed instance to its class descriptor. A
// domain type's constructor calls this once, before any property or
// relation access; Store.newInstance and Store.hydrate call it for
// instances the store constructs itself.
func (b *Base) Bind(desc *classreg.Descriptor) {
	b.desc = desc
	b.props = make(map[string]any)
	b.rels = make(map[string][]typesys.Ref)
	b.updates = make(map[string]int64)
}

func (b *Base) OID() string { return b.oid }

func (b *Base) setOID(oid string) {
	b.oid = oid
	b.updates["oid"] = nextTimestamp()
}

func (b *Base) ClassDescriptor() *classreg.Descriptor { return b.desc }

// UpdatedAt returns the timestamp (Unix nanoseconds) of the most recent
// mutation of attr, or 0 if attr was never set. "oid" records the time of
// the most recent save.
func (b *Base) UpdatedAt(attr string) int64 { return b.updates[attr] }

func (b *Base) IsDirty() bool { return b.dirty }

func (b *Base) clearDirty() { b.dirty = false }

func (b *Base) touch(attr string) {
	b.updates[attr] = nextTimestamp()
	b.dirty = true
}

func (b *Base) requireBound() error {
	if b.desc == nil {
		return &storeerr.NotRegistered{}
	}
	return nil
}

// GetProperty returns the validated value most recently set for name, or
// nil if it was never set.
func (b *Base) GetProperty(name string) (any, error) {
	if err := b.requireBound(); err != nil {
		return nil, err
	}
	if _, ok := b.desc.Properties[name]; !ok {
		return nil, &storeerr.UnknownProperty{Class: b.desc.Name, Property: name}
	}
	return b.props[name], nil
}

// SetProperty validates value against the declared type and installs it,
// stamping updates[name] and marking the instance dirty.
func (b *Base) SetProperty(name string, value any) error {
	if err := b.requireBound(); err != nil {
		return err
	}
	if classreg.IsReserved(name) {
		return &storeerr.ReservedProperty{Class: b.desc.Name, Property: name}
	}
	t, ok := b.desc.Properties[name]
	if !ok {
		return &storeerr.UnknownProperty{Class: b.desc.Name, Property: name}
	}
	v, err := t.Validate(name, value)
	if err != nil {
		return err
	}
	b.props[name] = v
	b.touch(name)
	return nil
}

// GetRelation returns a copy of the stub list declared under name.
func (b *Base) GetRelation(name string) ([]typesys.Ref, error) {
	if err := b.requireBound(); err != nil {
		return nil, err
	}
	if _, ok := b.desc.Relations[name]; !ok {
		return nil, &storeerr.UnknownProperty{Class: b.desc.Name, Property: name}
	}
	stubs := b.rels[name]
	out := make([]typesys.Ref, len(stubs))
	copy(out, stubs)
	return out, nil
}

// AddRelation appends target to the named plural relation, suppressing
// duplicates, or replaces the singular relation's one pair.
func (b *Base) AddRelation(name string, target Storable) error {
	if err := b.requireBound(); err != nil {
		return err
	}
	rel, ok := b.desc.Relations[name]
	if !ok {
		return &storeerr.UnknownProperty{Class: b.desc.Name, Property: name}
	}
	targetClass := target.ClassDescriptor().Name
	if !acceptableTarget(targetClass, rel.Target) {
		return &storeerr.RelationTypeMismatch{Attribute: name, Want: rel.Target, Got: targetClass}
	}
	if target.OID() == "" {
		return storeerr.NewInvalidValue(name, "target must be saved before it can be related")
	}
	ref := typesys.Ref{Class: targetClass, OID: target.OID()}
	if rel.Plural {
		for _, existing := range b.rels[name] {
			if existing == ref {
				return nil
			}
		}
		b.rels[name] = append(b.rels[name], ref)
	} else {
		b.rels[name] = []typesys.Ref{ref}
	}
	b.touch(name)
	return nil
}

// RemoveRelation drops target from the named relation, if present.
func (b *Base) RemoveRelation(name string, target Storable) error {
	if err := b.requireBound(); err != nil {
		return err
	}
	if _, ok := b.desc.Relations[name]; !ok {
		return &storeerr.UnknownProperty{Class: b.desc.Name, Property: name}
	}
	ref := typesys.Ref{Class: target.ClassDescriptor().Name, OID: target.OID()}
	stubs := b.rels[name]
	out := stubs[:0:0]
	changed := false
	for _, s := range stubs {
		if s == ref {
			changed = true
			continue
		}
		out = append(out, s)
	}
	if changed {
		b.rels[name] = out
		b.touch(name)
	}
	return nil
}

// Resolve loads the live instances referenced by the named relation,
// through each target's own store.
func (b *Base) Resolve(name string) ([]Storable, error) {
	stubs, err := b.GetRelation(name)
	if err != nil {
		return nil, err
	}
	out := make([]Storable, 0, len(stubs))
	for _, stub := range stubs {
		resolver, ok := lookupResolver(stub.Class)
		if !ok {
			return nil, &storeerr.NotRegistered{Class: stub.Class}
		}
		obj, err := resolver.ResolveOID(stub.OID)
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}

func (b *Base) exportRecord() (map[string]any, map[string][]typesys.Ref, map[string]int64) {
	props := make(map[string]any, len(b.props))
	for k, v := range b.props {
		props[k] = v
	}
	rels := make(map[string][]typesys.Ref, len(b.rels))
	for k, v := range b.rels {
		cp := make([]typesys.Ref, len(v))
		copy(cp, v)
		rels[k] = cp
	}
	updates := make(map[string]int64, len(b.updates))
	for k, v := range b.updates {
		updates[k] = v
	}
	return props, rels, updates
}

func (b *Base) importRecord(props map[string]any, rels map[string][]typesys.Ref, updates map[string]int64) {
	b.props = props
	b.rels = rels
	b.updates = updates
}

// acceptableTarget mirrors typesys' Reference check: exact class match,
// since no model class in this engine declares a subclass hierarchy.
func acceptableTarget(got, want string) bool {
	if got == want {
		return true
	}
	if typesys.IsSubclassOf != nil {
		return typesys.IsSubclassOf(got, want)
	}
	return false
}
