package state

import (
	"math/big"
	"testing"

	"phoenixescrow/storage"
)

type storedRecord struct {
	Name   string
	Amount *big.Int
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	return NewManager(db)
}

func TestTxReadYourWrites(t *testing.T) {
	mgr := newTestManager(t)
	tx, err := mgr.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	key := []byte("record/1")
	if err := tx.KVPut(key, storedRecord{Name: "gold", Amount: big.NewInt(42)}); err != nil {
		t.Fatalf("put: %v", err)
	}
	var got storedRecord
	ok, err := tx.KVGet(key, &got)
	if err != nil || !ok {
		t.Fatalf("tx get: ok=%v err=%v", ok, err)
	}
	if got.Name != "gold" || got.Amount.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("unexpected record: %+v", got)
	}
	if ok, _ := mgr.KVGet(key, &got); ok {
		t.Fatalf("uncommitted write visible through manager")
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if ok, err := mgr.KVGet(key, &got); err != nil || !ok {
		t.Fatalf("committed get: ok=%v err=%v", ok, err)
	}
}

func TestTxHasSeesStagedDeletes(t *testing.T) {
	mgr := newTestManager(t)
	tx, err := mgr.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	key := []byte("record/2")
	if ok, err := tx.KVHas(key); err != nil || ok {
		t.Fatalf("missing key reported present: ok=%v err=%v", ok, err)
	}
	if err := tx.KVPut(key, uint64(1)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	tx, err = mgr.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Discard()
	if ok, err := tx.KVHas(key); err != nil || !ok {
		t.Fatalf("committed key not found: ok=%v err=%v", ok, err)
	}
	if err := tx.KVDelete(key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := tx.KVHas(key); ok {
		t.Fatalf("staged delete must hide the key")
	}
	if ok, _ := mgr.KVGet(key, nil); !ok {
		t.Fatalf("staged delete leaked before commit")
	}
}

func TestTxDiscardDropsWrites(t *testing.T) {
	mgr := newTestManager(t)
	tx, err := mgr.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := tx.KVPut([]byte("k"), uint64(7)); err != nil {
		t.Fatalf("put: %v", err)
	}
	tx.Discard()
	if err := tx.KVPut([]byte("k"), uint64(8)); err != ErrTxClosed {
		t.Fatalf("expected ErrTxClosed, got %v", err)
	}
	var v uint64
	if ok, _ := mgr.KVGet([]byte("k"), &v); ok {
		t.Fatalf("discarded write persisted")
	}
	if _, err := mgr.Begin(); err != nil {
		t.Fatalf("begin after discard: %v", err)
	}
}

func TestBeginRejectsConcurrentTx(t *testing.T) {
	mgr := newTestManager(t)
	tx, err := mgr.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Discard()
	if _, err := mgr.Begin(); err != ErrTxActive {
		t.Fatalf("expected ErrTxActive, got %v", err)
	}
}

func TestNextIDStartsAtOne(t *testing.T) {
	mgr := newTestManager(t)
	tx, _ := mgr.Begin()
	first, err := tx.NextID("auction")
	if err != nil {
		t.Fatalf("next id: %v", err)
	}
	second, _ := tx.NextID("auction")
	if first != 1 || second != 2 {
		t.Fatalf("unexpected ids %d %d", first, second)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	tx, _ = mgr.Begin()
	defer tx.Discard()
	third, _ := tx.NextID("auction")
	if third != 3 {
		t.Fatalf("expected 3 after commit, got %d", third)
	}
}

func TestTxIterateMergesStagedAndCommitted(t *testing.T) {
	mgr := newTestManager(t)
	prefix := []byte("rec/")
	tx, _ := mgr.Begin()
	for _, id := range []uint64{1, 3, 5} {
		if err := tx.KVPut(Uint64Key(prefix, id), id*10); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	tx, _ = mgr.Begin()
	defer tx.Discard()
	_ = tx.KVPut(Uint64Key(prefix, 2), uint64(20))
	_ = tx.KVPut(Uint64Key(prefix, 3), uint64(33))
	_ = tx.KVDelete(Uint64Key(prefix, 5))
	_ = tx.KVPut([]byte("other/1"), uint64(1))

	var ids, values []uint64
	err := tx.Iterate(prefix, nil, func(key []byte, decode DecodeFunc) (bool, error) {
		id, ok := ParseUint64Key(prefix, key)
		if !ok {
			t.Fatalf("bad key %x", key)
		}
		var v uint64
		if err := decode(&v); err != nil {
			return false, err
		}
		ids = append(ids, id)
		values = append(values, v)
		return true, nil
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	wantIDs := []uint64{1, 2, 3}
	wantValues := []uint64{10, 20, 33}
	if len(ids) != len(wantIDs) {
		t.Fatalf("unexpected ids %v", ids)
	}
	for i := range wantIDs {
		if ids[i] != wantIDs[i] || values[i] != wantValues[i] {
			t.Fatalf("entry %d: got id=%d v=%d", i, ids[i], values[i])
		}
	}

	var fromTwo []uint64
	_ = tx.Iterate(prefix, Uint64Key(prefix, 2), func(key []byte, _ DecodeFunc) (bool, error) {
		id, _ := ParseUint64Key(prefix, key)
		fromTwo = append(fromTwo, id)
		return len(fromTwo) < 1, nil
	})
	if len(fromTwo) != 1 || fromTwo[0] != 2 {
		t.Fatalf("unexpected cursor walk %v", fromTwo)
	}
}
