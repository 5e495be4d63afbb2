// Package rawstore implements the binary blob layer: each identity
// (class, oid) owns two sibling backend records — a data blob and a
// JSON metadata record — that are created, read, and removed together.
//
// Grounded on the teacher's store/bolt.go byte-slice handling and key
// layout conventions, generalized from a single object record per key to
// the spec's explicit data/meta sibling pair, and on backend.PathProvider
// for the filesystem capability probe.
package rawstore

import (
	"encoding/json"
	"log/slog"

	"github.com/guyvdb/objectengine/backend"
	"github.com/guyvdb/objectengine/classreg"
	"github.com/guyvdb/objectengine/oid"
	"github.com/guyvdb/objectengine/storeerr"
)

// Meta is the sibling metadata record: declared attributes plus engine
// bookkeeping (content length), stored as a JSON-serializable map.
type Meta struct {
	OID     string         `json:"oid"`
	Type    string         `json:"type"`
	Length  int            `json:"length"`
	Fields  map[string]any `json:"fields"`
}

// Raw is a handle to one blob's sibling records. Construct via Store's
// New/Get/Ensure; the zero value is not usable.
type Raw struct {
	store       *Store
	meta        Meta
	data        []byte
	dirty       bool
	dataTouched bool
}

func (r *Raw) OID() string   { return r.meta.OID }
func (r *Raw) IsDirty() bool { return r.dirty }

// GetMeta reads a metadata field.
func (r *Raw) GetMeta(name string) any {
	return r.meta.Fields[name]
}

// SetMeta writes a metadata field and marks the record dirty.
func (r *Raw) SetMeta(name string, value any) {
	if r.meta.Fields == nil {
		r.meta.Fields = make(map[string]any)
	}
	r.meta.Fields[name] = value
	r.dirty = true
}

// SetFields bulk-writes metadata fields.
func (r *Raw) SetFields(fields map[string]any) {
	for k, v := range fields {
		r.SetMeta(k, v)
	}
}

// SetData replaces the blob's content wholesale. save() always rewrites
// the data record for a raw that was never persisted, and for one whose
// data SetData touched since load; an untouched, already-persisted raw's
// data record is left alone.
func (r *Raw) SetData(data []byte) {
	r.data = append([]byte(nil), data...)
	r.meta.Length = len(data)
	r.dirty = true
	r.dataTouched = true
}

// LoadData materializes the full blob and keeps it on the handle.
// Data(chunkSize) reads through this method too, so it does not avoid
// holding the whole blob in memory.
func (r *Raw) LoadData() ([]byte, error) {
	if r.data != nil {
		return r.data, nil
	}
	data, ok, err := r.store.be.Get(r.store.dataKey(r.meta.OID))
	if err != nil {
		return nil, storeerr.NewBackendFailure(r.store.dataKey(r.meta.OID), err)
	}
	if !ok {
		return nil, &storeerr.NotFound{Class: r.store.desc.Name, OID: r.meta.OID}
	}
	r.data = data
	return data, nil
}

// Data returns an iterator over the blob in chunkSize-byte pieces. The
// whole blob is loaded once through LoadData and then sliced; it is not
// streamed from the backend. An empty blob yields no chunks. A failure loading the blob (a missing
// data record, a backend error) is delivered at the pull that hits it,
// not swallowed.
func (r *Raw) Data(chunkSize int) func(func([]byte, error) bool) {
	return func(yield func([]byte, error) bool) {
		data, err := r.LoadData()
		if err != nil {
			yield(nil, err)
			return
		}
		if len(data) == 0 {
			return
		}
		for offset := 0; offset < len(data); offset += chunkSize {
			end := min(offset+chunkSize, len(data))
			if !yield(data[offset:end], nil) {
				return
			}
		}
	}
}

// Path returns the filesystem path backing this blob's data record, if
// the store's backend advertises backend.Filesystem.
func (r *Raw) Path() (string, error) {
	pp, ok := r.store.be.(backend.PathProvider)
	if !ok || !r.store.be.Capabilities().Has(backend.Filesystem) {
		return "", &storeerr.Unsupported{Capability: "Filesystem"}
	}
	return pp.Path(r.store.dataKey(r.meta.OID))
}

// Store hosts one class's raw blobs. Construct with Open.
type Store struct {
	be   backend.Backend
	desc *classreg.Descriptor
	log  *slog.Logger
}

func Open(be backend.Backend, desc *classreg.Descriptor, opts ...Option) *Store {
	o := resolveOptions(opts)
	return &Store{be: be, desc: desc, log: o.log}
}

func (s *Store) dataKey(oid string) string { return s.desc.Collection + "/" + oid + ".data" }
func (s *Store) metaKey(oid string) string { return s.desc.Collection + "/" + oid + ".meta" }

// New returns an unsaved, empty raw record.
func (s *Store) New() *Raw {
	return &Raw{store: s, meta: Meta{Type: s.desc.Name, Fields: map[string]any{}}, dirty: true}
}

// Has reports whether oid's sibling records exist.
func (s *Store) Has(oid string) (bool, error) {
	ok, err := s.be.Has(s.metaKey(oid))
	if err != nil {
		return false, storeerr.NewBackendFailure(s.metaKey(oid), err)
	}
	return ok, nil
}

// Get loads a raw record's metadata; the blob itself loads lazily.
func (s *Store) Get(oid string) (*Raw, error) {
	data, ok, err := s.be.Get(s.metaKey(oid))
	if err != nil {
		return nil, storeerr.NewBackendFailure(s.metaKey(oid), err)
	}
	if !ok {
		return nil, &storeerr.NotFound{Class: s.desc.Name, OID: oid}
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, storeerr.NewInvalidValue(s.metaKey(oid), err.Error())
	}
	return &Raw{store: s, meta: meta}, nil
}

// Ensure returns the existing record for oid, or a new unsaved one
// carrying that oid.
func (s *Store) Ensure(oid string) (*Raw, error) {
	r, err := s.Get(oid)
	if err == nil {
		return r, nil
	}
	if _, ok := err.(*storeerr.NotFound); !ok {
		return nil, err
	}
	r = s.New()
	r.meta.OID = oid
	return r, nil
}

// All lazily iterates every raw record of this class.
func (s *Store) All() func(func(*Raw, error) bool) {
	return func(yield func(*Raw, error) bool) {
		keys, err := s.be.Keys(s.desc.Collection + "/")
		if err != nil {
			yield(nil, storeerr.NewBackendFailure(s.desc.Collection, err))
			return
		}
		prefix := s.desc.Collection + "/"
		suffix := ".meta"
		for key := range keys {
			if len(key) < len(suffix) || key[len(key)-len(suffix):] != suffix {
				continue
			}
			oidStr := key[len(prefix) : len(key)-len(suffix)]
			r, err := s.Get(oidStr)
			if !yield(r, err) {
				return
			}
		}
	}
}

// Count scans this class's meta records and counts them.
func (s *Store) Count() (int, error) {
	n := 0
	for _, err := range s.All() {
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

// Save writes or overwrites both sibling records. The data record is
// always written the first time a raw is persisted, even as an empty
// byte string, so data and meta always exist together; on a later save
// it is rewritten only if SetData touched it since load.
func (s *Store) Save(r *Raw) error {
	if r.meta.OID == "" {
		r.meta.OID = oid.New()
	}
	r.meta.Type = s.desc.Name
	metaBytes, err := json.Marshal(r.meta)
	if err != nil {
		return storeerr.NewInvalidValue(r.meta.OID, err.Error())
	}
	if err := s.be.Update(s.metaKey(r.meta.OID), metaBytes); err != nil {
		return storeerr.NewBackendFailure(s.metaKey(r.meta.OID), err)
	}

	writeData := r.dataTouched
	if !writeData {
		hasData, err := s.be.Has(s.dataKey(r.meta.OID))
		if err != nil {
			return storeerr.NewBackendFailure(s.dataKey(r.meta.OID), err)
		}
		writeData = !hasData
	}
	if writeData {
		data := r.data
		if data == nil {
			data = []byte{}
		}
		if err := s.be.Update(s.dataKey(r.meta.OID), data); err != nil {
			return storeerr.NewBackendFailure(s.dataKey(r.meta.OID), err)
		}
	}

	r.dirty = false
	r.dataTouched = false
	s.log.Debug("rawstore.Save", "class", s.desc.Name, "oid", r.meta.OID, "length", r.meta.Length)
	return nil
}

// Remove deletes both sibling records for r's OID.
func (s *Store) Remove(r *Raw) error {
	if r.meta.OID == "" {
		return nil
	}
	if err := s.be.Remove(s.metaKey(r.meta.OID)); err != nil {
		return storeerr.NewBackendFailure(s.metaKey(r.meta.OID), err)
	}
	if err := s.be.Remove(s.dataKey(r.meta.OID)); err != nil {
		return storeerr.NewBackendFailure(s.dataKey(r.meta.OID), err)
	}
	return nil
}
