package state

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"phoenixescrow/storage"
)

var (
	// ErrTxClosed is returned when a committed or discarded transaction is used.
	ErrTxClosed = errors.New("state: transaction closed")
	// ErrTxActive is returned by Begin while another transaction is open.
	ErrTxActive = errors.New("state: transaction already in progress")
)

// DecodeFunc decodes the value under the iterator cursor into out.
type DecodeFunc func(out interface{}) error

// VisitFunc receives each key during iteration. Returning false stops the walk.
type VisitFunc func(key []byte, decode DecodeFunc) (bool, error)

// Manager exposes RLP-encoded key/value state on top of a storage backend.
// Reads through the Manager observe committed data only; mutations go
// through a Tx so every command lands in one atomic batch.
type Manager struct {
	db storage.Database

	mu     sync.Mutex
	active bool
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// KVGet retrieves the committed value stored under key and decodes it into
// out. The boolean reports whether the key existed.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return decodeInto(data, out)
}

// Iterate walks committed keys under prefix in ascending order.
func (m *Manager) Iterate(prefix, start []byte, fn VisitFunc) error {
	it := m.db.NewIterator(prefix, start)
	defer it.Release()
	for it.Next() {
		value := it.Value()
		cont, err := fn(it.Key(), func(out interface{}) error { return rlp.DecodeBytes(value, out) })
		if err != nil {
			return err
		}
		if !cont {
			break
		}
	}
	return it.Error()
}

// Begin opens a transaction. Only one transaction may be open at a time; the
// executor that owns the manager serialises commands.
func (m *Manager) Begin() (*Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active {
		return nil, ErrTxActive
	}
	m.active = true
	return &Tx{m: m, writes: make(map[string]entry)}, nil
}

func (m *Manager) release() {
	m.mu.Lock()
	m.active = false
	m.mu.Unlock()
}

type entry struct {
	value   []byte
	deleted bool
}

// Tx buffers writes on top of the committed state. Reads observe the
// transaction's own writes.
type Tx struct {
	m      *Manager
	writes map[string]entry
	closed bool
}

// KVPut RLP-encodes value and stages it under key.
func (tx *Tx) KVPut(key []byte, value interface{}) error {
	if tx.closed {
		return ErrTxClosed
	}
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	tx.writes[string(key)] = entry{value: encoded}
	return nil
}

// KVDelete stages the removal of key.
func (tx *Tx) KVDelete(key []byte) error {
	if tx.closed {
		return ErrTxClosed
	}
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	tx.writes[string(key)] = entry{deleted: true}
	return nil
}

// KVGet reads key, preferring staged writes over committed data.
func (tx *Tx) KVGet(key []byte, out interface{}) (bool, error) {
	if tx.closed {
		return false, ErrTxClosed
	}
	if e, ok := tx.writes[string(key)]; ok {
		if e.deleted {
			return false, nil
		}
		return decodeInto(e.value, out)
	}
	return tx.m.KVGet(key, out)
}

// KVHas reports whether key exists, honouring staged writes and deletes.
func (tx *Tx) KVHas(key []byte) (bool, error) {
	return tx.KVGet(key, nil)
}

// NextID increments and returns the named counter. The first value handed
// out is 1.
func (tx *Tx) NextID(name string) (uint64, error) {
	key := counterKey(name)
	var current uint64
	if _, err := tx.KVGet(key, &current); err != nil {
		return 0, err
	}
	next := current + 1
	if next == 0 {
		return 0, fmt.Errorf("state: counter %s overflow", name)
	}
	if err := tx.KVPut(key, next); err != nil {
		return 0, err
	}
	return next, nil
}

// Iterate walks keys under prefix in ascending order, merging staged writes
// with committed data.
func (tx *Tx) Iterate(prefix, start []byte, fn VisitFunc) error {
	if tx.closed {
		return ErrTxClosed
	}
	staged := make([]string, 0)
	for k := range tx.writes {
		kb := []byte(k)
		if !bytes.HasPrefix(kb, prefix) {
			continue
		}
		if start != nil && bytes.Compare(kb, start) < 0 {
			continue
		}
		staged = append(staged, k)
	}
	sort.Strings(staged)

	it := tx.m.db.NewIterator(prefix, start)
	defer it.Release()
	hasDB := it.Next()
	i := 0
	for hasDB || i < len(staged) {
		var (
			key   []byte
			value []byte
			skip  bool
		)
		switch {
		case !hasDB:
			key = []byte(staged[i])
			e := tx.writes[staged[i]]
			value, skip = e.value, e.deleted
			i++
		case i >= len(staged):
			key, value = it.Key(), it.Value()
			hasDB = it.Next()
		default:
			cmp := bytes.Compare(it.Key(), []byte(staged[i]))
			if cmp < 0 {
				key, value = it.Key(), it.Value()
				hasDB = it.Next()
			} else {
				key = []byte(staged[i])
				e := tx.writes[staged[i]]
				value, skip = e.value, e.deleted
				i++
				if cmp == 0 {
					hasDB = it.Next()
				}
			}
		}
		if skip {
			continue
		}
		v := value
		cont, err := fn(key, func(out interface{}) error { return rlp.DecodeBytes(v, out) })
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return it.Error()
}

// Commit flushes every staged write in one atomic batch.
func (tx *Tx) Commit() error {
	if tx.closed {
		return ErrTxClosed
	}
	defer tx.close()
	keys := make([]string, 0, len(tx.writes))
	for k := range tx.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batch := storage.NewBatch()
	for _, k := range keys {
		e := tx.writes[k]
		if e.deleted {
			batch.Delete([]byte(k))
			continue
		}
		batch.Put([]byte(k), e.value)
	}
	return tx.m.db.Write(batch)
}

// Discard drops every staged write. Calling Discard after Commit is a no-op.
func (tx *Tx) Discard() {
	if tx.closed {
		return
	}
	tx.close()
}

func (tx *Tx) close() {
	tx.closed = true
	tx.writes = nil
	tx.m.release()
}

func decodeInto(data []byte, out interface{}) (bool, error) {
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// Uint64Key renders id big-endian so byte order matches numeric order.
func Uint64Key(prefix []byte, id uint64) []byte {
	buf := make([]byte, len(prefix)+8)
	copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[len(prefix):], id)
	return buf
}

// ParseUint64Key extracts the id appended by Uint64Key.
func ParseUint64Key(prefix, key []byte) (uint64, bool) {
	if !bytes.HasPrefix(key, prefix) || len(key) != len(prefix)+8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(key[len(prefix):]), true
}
