package storage

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/tolelom/votechain/crypto"
)

// KVStore implements a DB-backed write buffer with snapshot/rollback and
// deterministic root hashing over the keys under one prefix. It is not
// used for primary ledger state — the ledger's own state snapshot is the
// authoritative, block-embedded JSON blob computed by txexec.Executor —
// and the indexer package writes its tables straight to a storage.DB
// rather than through a KVStore.
type KVStore struct {
	db        DB
	prefix    string
	dirty     map[string][]byte
	deleted   map[string]bool
	snapshots []kvSnapshot
}

type kvSnapshot struct {
	dirty   map[string][]byte
	deleted map[string]bool
}

// NewKVStore creates a KVStore backed by db, covering only keys under
// prefix, so stores with distinct prefixes never collide within one DB.
func NewKVStore(db DB, prefix string) *KVStore {
	return &KVStore{
		db:      db,
		prefix:  prefix,
		dirty:   make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

func (s *KVStore) key(k string) string { return s.prefix + k }

// Get returns the value for k, or (nil, false) if absent.
func (s *KVStore) Get(k string) ([]byte, bool) {
	fullKey := s.key(k)
	if s.deleted[fullKey] {
		return nil, false
	}
	if v, ok := s.dirty[fullKey]; ok {
		return v, true
	}
	v, err := s.db.Get([]byte(fullKey))
	if err != nil {
		return nil, false
	}
	return v, true
}

// Set stages a write in the in-memory buffer.
func (s *KVStore) Set(k string, v []byte) {
	fullKey := s.key(k)
	delete(s.deleted, fullKey)
	s.dirty[fullKey] = v
}

// Delete stages a delete in the in-memory buffer.
func (s *KVStore) Delete(k string) {
	fullKey := s.key(k)
	delete(s.dirty, fullKey)
	s.deleted[fullKey] = true
}

// Snapshot saves the current write buffer and returns a snapshot id.
func (s *KVStore) Snapshot() int {
	snap := kvSnapshot{
		dirty:   make(map[string][]byte, len(s.dirty)),
		deleted: make(map[string]bool, len(s.deleted)),
	}
	for k, v := range s.dirty {
		cp := make([]byte, len(v))
		copy(cp, v)
		snap.dirty[k] = cp
	}
	for k, v := range s.deleted {
		snap.deleted[k] = v
	}
	s.snapshots = append(s.snapshots, snap)
	return len(s.snapshots) - 1
}

// RevertToSnapshot restores the write buffer to a previously saved
// snapshot and discards that snapshot and every later one.
func (s *KVStore) RevertToSnapshot(id int) error {
	if id < 0 || id >= len(s.snapshots) {
		return errInvalidSnapshot(id)
	}
	snap := s.snapshots[id]

	dirty := make(map[string][]byte, len(snap.dirty))
	for k, v := range snap.dirty {
		cp := make([]byte, len(v))
		copy(cp, v)
		dirty[k] = cp
	}
	deleted := make(map[string]bool, len(snap.deleted))
	for k, v := range snap.deleted {
		deleted[k] = v
	}

	s.dirty = dirty
	s.deleted = deleted
	s.snapshots = s.snapshots[:id]
	return nil
}

// ComputeRoot returns a deterministic hash over the store's complete
// contents (persisted plus buffered), so two independently-built indexes
// over the same transaction history can be compared for equality without
// walking every entry.
func (s *KVStore) ComputeRoot() string {
	merged := make(map[string][]byte)
	it := s.db.NewIterator([]byte(s.prefix))
	for it.Next() {
		k := string(it.Key())
		v := make([]byte, len(it.Value()))
		copy(v, it.Value())
		merged[k] = v
	}
	it.Release()

	for k, v := range s.dirty {
		merged[k] = v
	}
	for k := range s.deleted {
		delete(merged, k)
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, k := range keys {
		v := merged[k]
		kb := []byte(k)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(kb)))
		buf.Write(lenBuf[:])
		buf.Write(kb)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		buf.Write(lenBuf[:])
		buf.Write(v)
	}
	return crypto.Hash(buf.Bytes())
}

// Commit atomically flushes the write buffer to the underlying DB via a
// batch and clears it.
func (s *KVStore) Commit() error {
	batch := s.db.NewBatch()
	for k, v := range s.dirty {
		batch.Set([]byte(k), v)
	}
	for k := range s.deleted {
		batch.Delete([]byte(k))
	}
	if err := batch.Write(); err != nil {
		return err
	}
	s.dirty = make(map[string][]byte)
	s.deleted = make(map[string]bool)
	s.snapshots = nil
	return nil
}

type errInvalidSnapshot int

func (e errInvalidSnapshot) Error() string {
	return "storage: invalid snapshot id"
}
