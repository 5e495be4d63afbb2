// Package bolt adapts go.etcd.io/bbolt into a backend.Backend: a single
// flat, lexicographically ordered keyspace stored in one bucket, exactly
// the shape backend.Backend.Keys(prefix) expects. It is grounded on the
// teacher's BoltStore (store/bolt.go), generalized from per-type buckets
// keyed by integer type/object ids to the engine's opaque string keys.
package bolt

import (
	"fmt"
	"iter"
	"log/slog"

	"go.etcd.io/bbolt"

	"github.com/guyvdb/objectengine/backend"
	"github.com/guyvdb/objectengine/storeerr"
)

var dataBucket = []byte("data")

var _ backend.Backend = (*Backend)(nil)
var _ backend.PathProvider = (*Backend)(nil)

// Backend is a bbolt-backed Backend implementation. It advertises
// backend.Filesystem, since bbolt databases live at a real filesystem
// path; Path(key) returns the database file's own path, matching the
// original DirectoryBackend's one-file-per-key behavior generalized to
// a single-file store.
type Backend struct {
	db   *bbolt.DB
	path string
}

// Open opens (creating if needed) a bbolt database at path and returns a
// Backend over it.
func Open(path string) (*Backend, error) {
	slog.Debug("bolt.Open", "path", path)
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("bolt: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(dataBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bolt: create root bucket: %w", err)
	}
	return &Backend{db: db, path: path}, nil
}

func (b *Backend) Close() error {
	return b.db.Close()
}

func (b *Backend) Add(key string, value []byte) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(dataBucket)
		if bk.Get([]byte(key)) != nil {
			return &storeerr.AlreadyExists{OID: key}
		}
		return bk.Put([]byte(key), value)
	})
}

func (b *Backend) Update(key string, value []byte) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(dataBucket).Put([]byte(key), value)
	})
	if err != nil {
		return storeerr.NewBackendFailure(key, err)
	}
	return nil
}

func (b *Backend) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(dataBucket).Get([]byte(key))
		if v == nil {
			return nil
		}
		value = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, false, storeerr.NewBackendFailure(key, err)
	}
	return value, value != nil, nil
}

func (b *Backend) Has(key string) (bool, error) {
	var found bool
	err := b.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(dataBucket).Get([]byte(key)) != nil
		return nil
	})
	return found, err
}

func (b *Backend) Remove(key string) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(dataBucket).Delete([]byte(key))
	})
	if err != nil {
		return storeerr.NewBackendFailure(key, err)
	}
	return nil
}

func (b *Backend) Keys(prefix string) (iter.Seq[string], error) {
	var keys []string
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(dataBucket).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && hasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, storeerr.NewBackendFailure(prefix, err)
	}
	return func(yield func(string) bool) {
		for _, k := range keys {
			if !yield(k) {
				return
			}
		}
	}, nil
}

func (b *Backend) Sync() error {
	return b.db.Sync()
}

func (b *Backend) Clear() error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(dataBucket); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(dataBucket)
		return err
	})
}

func (b *Backend) Capabilities() backend.CapabilitySet {
	return backend.NewCapabilitySet(
		backend.Filesystem, backend.Files,
		backend.ObjectsOpt, backend.RawOpt, backend.IndexOpt, backend.Index,
	)
}

// Path implements backend.PathProvider. Since bbolt stores every key in a
// single file, every key resolves to the same database path.
func (b *Backend) Path(key string) (string, error) {
	return b.path, nil
}

func hasPrefix(k, prefix []byte) bool {
	if len(prefix) == 0 {
		return true
	}
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}
