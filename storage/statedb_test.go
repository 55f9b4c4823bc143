package storage

import "testing"

// memDB is a tiny in-process DB for statedb tests, avoiding a dependency
// on internal/testutil (which itself depends on this package).
type memDB struct{ data map[string][]byte }

func newMemDB() *memDB { return &memDB{data: make(map[string][]byte)} }

func (m *memDB) Get(key []byte) ([]byte, error) {
	v, ok := m.data[string(key)]
	if !ok {
		return nil, errNotFoundStub{}
	}
	return v, nil
}
func (m *memDB) Set(key, value []byte) error { m.data[string(key)] = value; return nil }
func (m *memDB) Delete(key []byte) error     { delete(m.data, string(key)); return nil }
func (m *memDB) NewIterator(prefix []byte) Iterator {
	var keys []string
	p := string(prefix)
	for k := range m.data {
		if len(k) >= len(p) && k[:len(p)] == p {
			keys = append(keys, k)
		}
	}
	return &memIterStub{db: m, keys: keys, idx: -1}
}
func (m *memDB) NewBatch() Batch { return &memBatchStub{db: m} }
func (m *memDB) Close() error    { return nil }

type errNotFoundStub struct{}

func (errNotFoundStub) Error() string { return "not found" }

type memIterStub struct {
	db   *memDB
	keys []string
	idx  int
}

func (it *memIterStub) Next() bool    { it.idx++; return it.idx < len(it.keys) }
func (it *memIterStub) Key() []byte   { return []byte(it.keys[it.idx]) }
func (it *memIterStub) Value() []byte { return it.db.data[it.keys[it.idx]] }
func (it *memIterStub) Release()      {}
func (it *memIterStub) Error() error  { return nil }

type memBatchStub struct {
	db  *memDB
	ops []func()
}

func (b *memBatchStub) Set(key, value []byte) {
	k, v := string(key), append([]byte(nil), value...)
	b.ops = append(b.ops, func() { b.db.data[k] = v })
}
func (b *memBatchStub) Delete(key []byte) {
	k := string(key)
	b.ops = append(b.ops, func() { delete(b.db.data, k) })
}
func (b *memBatchStub) Write() error {
	for _, op := range b.ops {
		op()
	}
	return nil
}
func (b *memBatchStub) Reset() { b.ops = nil }

func TestKVStoreSetGetAndCommit(t *testing.T) {
	db := newMemDB()
	s := NewKVStore(db, "idx:")

	s.Set("a", []byte("1"))
	v, ok := s.Get("a")
	if !ok || string(v) != "1" {
		t.Fatalf("expected buffered write to be visible before commit, got %q %v", v, ok)
	}

	if err := s.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	// After commit, the buffer is cleared but the underlying db holds it.
	v, ok = s.Get("a")
	if !ok || string(v) != "1" {
		t.Fatalf("expected committed write to persist, got %q %v", v, ok)
	}
}

func TestKVStoreSnapshotAndRevert(t *testing.T) {
	db := newMemDB()
	s := NewKVStore(db, "idx:")

	s.Set("a", []byte("1"))
	snap := s.Snapshot()
	s.Set("a", []byte("2"))
	s.Set("b", []byte("3"))

	if v, _ := s.Get("a"); string(v) != "2" {
		t.Fatalf("expected 'a' to be 2 before revert, got %q", v)
	}

	if err := s.RevertToSnapshot(snap); err != nil {
		t.Fatalf("revert: %v", err)
	}
	if v, _ := s.Get("a"); string(v) != "1" {
		t.Fatalf("expected 'a' to be restored to 1 after revert, got %q", v)
	}
	if _, ok := s.Get("b"); ok {
		t.Fatal("expected 'b' (written after the snapshot) to be gone after revert")
	}
}

func TestKVStoreRevertToInvalidSnapshotErrors(t *testing.T) {
	db := newMemDB()
	s := NewKVStore(db, "idx:")
	if err := s.RevertToSnapshot(0); err == nil {
		t.Fatal("expected reverting with no snapshots taken to error")
	}
}

func TestKVStoreComputeRootDeterministicAndOrderIndependent(t *testing.T) {
	db := newMemDB()
	s1 := NewKVStore(db, "idx:")
	s1.Set("b", []byte("2"))
	s1.Set("a", []byte("1"))
	root1 := s1.ComputeRoot()

	db2 := newMemDB()
	s2 := NewKVStore(db2, "idx:")
	s2.Set("a", []byte("1"))
	s2.Set("b", []byte("2"))
	root2 := s2.ComputeRoot()

	if root1 != root2 {
		t.Fatal("ComputeRoot should be independent of write order")
	}

	s2.Set("c", []byte("3"))
	if s2.ComputeRoot() == root2 {
		t.Fatal("ComputeRoot should change when content changes")
	}
}

func TestKVStoreDeletePrecedesPersistedValueInRoot(t *testing.T) {
	db := newMemDB()
	s := NewKVStore(db, "idx:")
	s.Set("a", []byte("1"))
	if err := s.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	s.Delete("a")
	if _, ok := s.Get("a"); ok {
		t.Fatal("expected deleted key to be absent even though still persisted in db")
	}
}
