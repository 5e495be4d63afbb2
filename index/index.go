// Package index implements the secondary-index manager: derived
// key→{OID} reverse maps kept in sync with the object store's save/remove
// lifecycle, plus the built-in indexer factories classreg descriptors are
// built from.
//
// Grounded on the teacher's BoltStore index-bucket handling
// (store/bolt.go's updateIndexes/mkIndexBucketName), generalized from a
// typed-value sortable-key scheme to the spec's pure-function indexers
// over arbitrary keys, and on original_source/Sources/storage/index.py
// for the built-in indexer catalogue itself.
package index

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/guyvdb/objectengine/backend"
	"github.com/guyvdb/objectengine/classreg"
	"github.com/guyvdb/objectengine/objectstore"
	"github.com/guyvdb/objectengine/storeerr"
)

// -- built-in indexer factories ---------------------------------------------

// Value indexes prop's string form verbatim.
func Value(prop string) classreg.Indexer {
	return func(props map[string]any, updates map[string]int64) []string {
		return stringKeys(props[prop])
	}
}

// Normalize lowercases, trims, and collapses internal whitespace in
// prop's string form.
func Normalize(prop string) classreg.Indexer {
	return func(props map[string]any, updates map[string]int64) []string {
		return mapKeys(stringKeys(props[prop]), normalize)
	}
}

// NoAccents compatibility-decomposes prop's string form and drops
// combining marks, so "café" and "cafe" index under the same key.
func NoAccents(prop string) classreg.Indexer {
	return func(props map[string]any, updates map[string]int64) []string {
		return mapKeys(stringKeys(props[prop]), noAccents)
	}
}

// Keyword applies Normalize then NoAccents.
func Keyword(prop string) classreg.Indexer {
	return func(props map[string]any, updates map[string]int64) []string {
		return mapKeys(stringKeys(props[prop]), func(s string) string { return noAccents(normalize(s)) })
	}
}

// Keywords tokenizes each of props' string forms on runs of non-letter
// characters, keyword-normalizes each token, drops tokens shorter than
// minLen, and deduplicates across all of props.
func Keywords(props []string, minLen int) classreg.Indexer {
	if minLen <= 0 {
		minLen = 3
	}
	return func(values map[string]any, updates map[string]int64) []string {
		seen := map[string]bool{}
		var out []string
		for _, p := range props {
			for _, s := range stringKeys(values[p]) {
				for _, tok := range tokenize(s) {
					key := noAccents(normalize(tok))
					if len([]rune(key)) < minLen || seen[key] {
						continue
					}
					seen[key] = true
					out = append(out, key)
				}
			}
		}
		return out
	}
}

// UpdateTime formats updates["oid"] — the time of the object's most
// recent save — as a YYYYMMDDhhmmss sortable timestamp key.
func UpdateTime() classreg.Indexer {
	return func(props map[string]any, updates map[string]int64) []string {
		ns, ok := updates["oid"]
		if !ok {
			return nil
		}
		t := time.Unix(0, ns).UTC()
		return []string{t.Format("20060102150405")}
	}
}

// Paths splits prop's string form on sep into cumulative prefixes:
// "a/b/c" with sep "/" yields {"a", "a/b", "a/b/c"}.
func Paths(prop, sep string) classreg.Indexer {
	return func(props map[string]any, updates map[string]int64) []string {
		var out []string
		for _, s := range stringKeys(props[prop]) {
			parts := strings.Split(s, sep)
			var acc string
			for i, part := range parts {
				if i == 0 {
					acc = part
				} else {
					acc = acc + sep + part
				}
				out = append(out, acc)
			}
		}
		return out
	}
}

func stringKeys(v any) []string {
	switch s := v.(type) {
	case string:
		if s == "" {
			return nil
		}
		return []string{s}
	case nil:
		return nil
	default:
		return []string{fmt.Sprint(s)}
	}
}

func mapKeys(keys []string, f func(string) string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = f(k)
	}
	return out
}

func normalize(s string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
	return strings.Join(fields, " ")
}

func noAccents(s string) string {
	decomposed := norm.NFKD.String(s)
	var b strings.Builder
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
}

// -- manager ------------------------------------------------------------------

// RecordSource supplies the raw, undeserialized records of one class, for
// Rebuild to replay without needing that class's typed Go type.
// objectstore.Store[E,P] implements this directly.
type RecordSource interface {
	ClassName() string
	Records() func(yield func(*objectstore.Record, error) bool)
}

var _ objectstore.Hook = (*Manager)(nil)

// Manager maintains one reverse-map bucket per declared (class, index)
// pair, hooked into an object store's save/remove lifecycle via
// AfterSave/AfterRemove. Each bucket is persisted as an ordered,
// duplicate-free JSON array of OIDs under key "class/index_name/key".
type Manager struct {
	mu sync.Mutex
	be backend.Backend
}

func NewManager(be backend.Backend) *Manager {
	return &Manager{be: be}
}

func bucketPrefix(class, indexName string) string {
	return class + "/" + indexName + "/"
}

func fullKey(class, indexName, key string) string {
	return bucketPrefix(class, indexName) + escapeKey(key)
}

// escapeKey replaces path separators so keys(prefix) scoping over an
// index bucket stays unambiguous, per spec §6.
func escapeKey(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	s = strings.ReplaceAll(s, "/", "%2F")
	return s
}

func unescapeKey(s string) string {
	s = strings.ReplaceAll(s, "%2F", "/")
	s = strings.ReplaceAll(s, "%25", "%")
	return s
}

func computeKeys(desc *classreg.Descriptor, rec *objectstore.Record) map[string][]string {
	out := make(map[string][]string, len(desc.IndexBy))
	for name, indexer := range desc.IndexBy {
		out[name] = indexer(rec.Properties, rec.Updates)
	}
	return out
}

func diffKeys(a, b []string) []string {
	inB := make(map[string]bool, len(b))
	for _, k := range b {
		inB[k] = true
	}
	var out []string
	for _, k := range a {
		if !inB[k] {
			out = append(out, k)
		}
	}
	return out
}

// AfterSave implements objectstore.Hook.
func (m *Manager) AfterSave(class, oid string, oldRecord, newRecord *objectstore.Record) {
	desc, ok := classreg.Get(class)
	if !ok || len(desc.IndexBy) == 0 {
		return
	}
	var oldKeys map[string][]string
	if oldRecord != nil {
		oldKeys = computeKeys(desc, oldRecord)
	}
	newKeys := computeKeys(desc, newRecord)

	m.mu.Lock()
	defer m.mu.Unlock()
	for name := range desc.IndexBy {
		toRemove := diffKeys(oldKeys[name], newKeys[name])
		toAdd := diffKeys(newKeys[name], oldKeys[name])
		for _, k := range toRemove {
			if err := m.removeFromBucketLocked(class, name, k, oid); err != nil {
				slog.Warn("index.AfterSave: remove from bucket failed", "class", class, "index", name, "key", k, "oid", oid, "err", err)
			}
		}
		for _, k := range toAdd {
			if err := m.addToBucketLocked(class, name, k, oid); err != nil {
				slog.Warn("index.AfterSave: add to bucket failed", "class", class, "index", name, "key", k, "oid", oid, "err", err)
			}
		}
	}
}

// AfterRemove implements objectstore.Hook.
func (m *Manager) AfterRemove(class, oid string, oldRecord *objectstore.Record) {
	if oldRecord == nil {
		return
	}
	desc, ok := classreg.Get(class)
	if !ok || len(desc.IndexBy) == 0 {
		return
	}
	keys := computeKeys(desc, oldRecord)
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, ks := range keys {
		for _, k := range ks {
			if err := m.removeFromBucketLocked(class, name, k, oid); err != nil {
				slog.Warn("index.AfterRemove: remove from bucket failed", "class", class, "index", name, "key", k, "oid", oid, "err", err)
			}
		}
	}
}

func (m *Manager) readBucketLocked(class, indexName, key string) ([]string, bool, error) {
	data, ok, err := m.be.Get(fullKey(class, indexName, key))
	if err != nil {
		return nil, false, storeerr.NewBackendFailure(fullKey(class, indexName, key), err)
	}
	if !ok {
		return nil, false, nil
	}
	var oids []string
	if err := json.Unmarshal(data, &oids); err != nil {
		return nil, false, storeerr.NewInvalidValue(fullKey(class, indexName, key), err.Error())
	}
	return oids, true, nil
}

func (m *Manager) addToBucketLocked(class, indexName, key, oid string) error {
	oids, exists, err := m.readBucketLocked(class, indexName, key)
	if err != nil {
		return err
	}
	for _, o := range oids {
		if o == oid {
			return nil
		}
	}
	oids = append(oids, oid)
	data, err := json.Marshal(oids)
	if err != nil {
		return storeerr.NewInvalidValue(key, err.Error())
	}
	fk := fullKey(class, indexName, key)
	if exists {
		return toBackendFailure(fk, m.be.Update(fk, data))
	}
	return toBackendFailure(fk, m.be.Add(fk, data))
}

func (m *Manager) removeFromBucketLocked(class, indexName, key, oid string) error {
	oids, exists, err := m.readBucketLocked(class, indexName, key)
	if err != nil || !exists {
		return err
	}
	out := oids[:0:0]
	for _, o := range oids {
		if o != oid {
			out = append(out, o)
		}
	}
	fk := fullKey(class, indexName, key)
	if len(out) == 0 {
		return toBackendFailure(fk, m.be.Remove(fk))
	}
	data, err := json.Marshal(out)
	if err != nil {
		return storeerr.NewInvalidValue(key, err.Error())
	}
	return toBackendFailure(fk, m.be.Update(fk, data))
}

func toBackendFailure(key string, err error) error {
	if err == nil {
		return nil
	}
	return storeerr.NewBackendFailure(key, err)
}

// Get yields the OIDs under key in insertion order.
func (m *Manager) Get(class, indexName, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	oids, _, err := m.readBucketLocked(class, indexName, key)
	return oids, err
}

// GetObjects resolves Get's OIDs through class's registered store.
func (m *Manager) GetObjects(class, indexName, key string) ([]objectstore.Storable, error) {
	oids, err := m.Get(class, indexName, key)
	if err != nil {
		return nil, err
	}
	out := make([]objectstore.Storable, 0, len(oids))
	for _, o := range oids {
		obj, err := objectstore.Resolve(class, o)
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}

// One returns the n'th OID under key, or NotFound.
func (m *Manager) One(class, indexName, key string, n int) (string, error) {
	oids, err := m.Get(class, indexName, key)
	if err != nil {
		return "", err
	}
	if n < 0 || n >= len(oids) {
		return "", &storeerr.NotFound{Class: class, Key: key}
	}
	return oids[n], nil
}

// Has reports whether key has at least one member.
func (m *Manager) Has(class, indexName, key string) (bool, error) {
	oids, err := m.Get(class, indexName, key)
	return len(oids) > 0, err
}

// Count returns the number of members under key.
func (m *Manager) Count(class, indexName, key string) (int, error) {
	oids, err := m.Get(class, indexName, key)
	return len(oids), err
}

// Keys returns every key currently populated in (class, indexName).
func (m *Manager) Keys(class, indexName string) ([]string, error) {
	m.mu.Lock()
	iterKeys, err := m.be.Keys(bucketPrefix(class, indexName))
	m.mu.Unlock()
	if err != nil {
		return nil, storeerr.NewBackendFailure(bucketPrefix(class, indexName), err)
	}
	prefix := bucketPrefix(class, indexName)
	var out []string
	for k := range iterKeys {
		out = append(out, unescapeKey(strings.TrimPrefix(k, prefix)))
	}
	return out, nil
}

// List paginates the keys of (class, indexName), ascending or descending,
// starting at start and stopping at or before end (either bound may be
// empty to mean unbounded), capped at count items if count > 0.
func (m *Manager) List(class, indexName, start, end string, count int, descending bool) ([]string, error) {
	keys, err := m.Keys(class, indexName)
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	if descending {
		sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	}
	var out []string
	for _, k := range keys {
		if start != "" {
			if descending && k > start {
				continue
			}
			if !descending && k < start {
				continue
			}
		}
		if end != "" {
			if descending && k < end {
				continue
			}
			if !descending && k > end {
				continue
			}
		}
		out = append(out, k)
		if count > 0 && len(out) >= count {
			break
		}
	}
	return out, nil
}

// Rebuild drops every index bucket for each source's class and replays
// indexing from its current records. Not concurrent-safe with writers;
// callers must quiesce the stores being rebuilt.
func (m *Manager) Rebuild(sync bool, sources ...RecordSource) error {
	for _, src := range sources {
		desc, ok := classreg.Get(src.ClassName())
		if !ok || len(desc.IndexBy) == 0 {
			continue
		}
		if err := m.dropClassBuckets(desc); err != nil {
			return err
		}
		for rec, err := range src.Records() {
			if err != nil {
				return err
			}
			keys := computeKeys(desc, rec)
			m.mu.Lock()
			for name, ks := range keys {
				for _, k := range ks {
					if err := m.addToBucketLocked(desc.Name, name, k, rec.OID); err != nil {
						m.mu.Unlock()
						return err
					}
				}
			}
			m.mu.Unlock()
		}
	}
	if sync {
		return m.be.Sync()
	}
	return nil
}

func (m *Manager) dropClassBuckets(desc *classreg.Descriptor) error {
	for name := range desc.IndexBy {
		prefix := bucketPrefix(desc.Name, name)
		m.mu.Lock()
		keys, err := m.be.Keys(prefix)
		if err != nil {
			m.mu.Unlock()
			return storeerr.NewBackendFailure(prefix, err)
		}
		var toRemove []string
		for k := range keys {
			toRemove = append(toRemove, k)
		}
		for _, k := range toRemove {
			if err := m.be.Remove(k); err != nil {
				m.mu.Unlock()
				return storeerr.NewBackendFailure(k, err)
			}
		}
		m.mu.Unlock()
	}
	return nil
}
