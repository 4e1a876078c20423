package kyc

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"

	"phoenixescrow/core/events"
)

type memoryStore struct {
	data map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string][]byte)}
}

func (m *memoryStore) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.data[string(key)] = encoded
	return nil
}

func (m *memoryStore) KVGet(key []byte, out interface{}) (bool, error) {
	encoded, ok := m.data[string(key)]
	if !ok {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(encoded, out); err != nil {
		return false, err
	}
	return true, nil
}

func (m *memoryStore) KVHas(key []byte) (bool, error) {
	_, ok := m.data[string(key)]
	return ok, nil
}

func (m *memoryStore) KVDelete(key []byte) error {
	delete(m.data, string(key))
	return nil
}

type staticAuthority [20]byte

func (a staticAuthority) IsAdmin(addr [20]byte) (bool, error) { return addr == [20]byte(a), nil }

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func newTestGate(t *testing.T) (*Gate, [20]byte, *events.Buffer) {
	t.Helper()
	admin := newTestAddress(0xAA)
	gate := NewGate(staticAuthority(admin))
	gate.SetState(newMemoryStore())
	buf := &events.Buffer{}
	gate.SetEmitter(buf)
	return gate, admin, buf
}

func TestAuthorizeRequiresRecord(t *testing.T) {
	gate, admin, _ := newTestGate(t)
	user := newTestAddress(0x01)

	if err := gate.Authorize(user, 1, 100); !errors.Is(err, ErrKYCRequired) {
		t.Fatalf("expected ErrKYCRequired, got %v", err)
	}
	if _, err := gate.Verify(admin, user, 1, 100, 0); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := gate.Authorize(user, 1, 100); err != nil {
		t.Fatalf("authorize after verify: %v", err)
	}
}

func TestAuthorizeOrdering(t *testing.T) {
	gate, admin, _ := newTestGate(t)
	user := newTestAddress(0x02)

	if _, err := gate.Verify(admin, user, 1, 100, 50); err != nil {
		t.Fatalf("verify: %v", err)
	}
	tests := []struct {
		name     string
		level    uint32
		now      int64
		expected error
	}{
		{name: "valid at expiry boundary", level: 1, now: 150, expected: nil},
		{name: "expired", level: 1, now: 151, expected: ErrKYCExpired},
		{name: "expiry beats level", level: 5, now: 151, expected: ErrKYCExpired},
		{name: "insufficient level", level: 2, now: 120, expected: ErrInsufficientKYCLevel},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := gate.Authorize(user, tc.level, tc.now)
			if tc.expected == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.expected != nil && !errors.Is(err, tc.expected) {
				t.Fatalf("expected %v, got %v", tc.expected, err)
			}
		})
	}

	if err := gate.Blacklist(admin, user, 120); err != nil {
		t.Fatalf("blacklist: %v", err)
	}
	if err := gate.Authorize(user, 1, 120); !errors.Is(err, ErrBlacklisted) {
		t.Fatalf("blacklist must win over a valid record, got %v", err)
	}
	stranger := newTestAddress(0x03)
	if err := gate.Blacklist(admin, stranger, 120); err != nil {
		t.Fatalf("blacklist stranger: %v", err)
	}
	if err := gate.Authorize(stranger, 1, 120); !errors.Is(err, ErrBlacklisted) {
		t.Fatalf("blacklist must be checked before record presence, got %v", err)
	}
}

func TestAdminOnlyOperations(t *testing.T) {
	gate, _, buf := newTestGate(t)
	intruder := newTestAddress(0x09)
	user := newTestAddress(0x04)

	if _, err := gate.Verify(intruder, user, 1, 10, 0); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("verify: expected ErrUnauthorized, got %v", err)
	}
	if err := gate.Revoke(intruder, user); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("revoke: expected ErrUnauthorized, got %v", err)
	}
	if err := gate.Blacklist(intruder, user, 10); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("blacklist: expected ErrUnauthorized, got %v", err)
	}
	if len(buf.Drain()) != 0 {
		t.Fatalf("rejected calls must not emit events")
	}
}

func TestRevokeRemovesRecord(t *testing.T) {
	gate, admin, buf := newTestGate(t)
	user := newTestAddress(0x05)

	if err := gate.Revoke(admin, user); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
	if _, err := gate.Verify(admin, user, 3, 10, 0); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := gate.Revoke(admin, user); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	ok, err := gate.IsVerified(user, 20)
	if err != nil || ok {
		t.Fatalf("expected unverified after revoke, ok=%v err=%v", ok, err)
	}
	evts := buf.Drain()
	if len(evts) != 2 || evts[0].EventType() != EventTypeVerified || evts[1].EventType() != EventTypeRevoked {
		t.Fatalf("unexpected events %v", evts)
	}
}

func TestVerifyOverwritesRecord(t *testing.T) {
	gate, admin, _ := newTestGate(t)
	user := newTestAddress(0x06)
	if _, err := gate.Verify(admin, user, 1, 10, 5); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if _, err := gate.Verify(admin, user, 2, 20, 0); err != nil {
		t.Fatalf("re-verify: %v", err)
	}
	record, ok, err := gate.Record(user)
	if err != nil || !ok {
		t.Fatalf("record: ok=%v err=%v", ok, err)
	}
	if record.Level != 2 || record.ExpiresAt != 0 || record.VerifiedAt != 20 || record.VerifiedBy != admin {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestIsVerified(t *testing.T) {
	gate, admin, _ := newTestGate(t)
	user := newTestAddress(0x07)
	if ok, _ := gate.IsVerified(user, 10); ok {
		t.Fatalf("unknown address reported verified")
	}
	if _, err := gate.Verify(admin, user, 0, 10, 10); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok, _ := gate.IsVerified(user, 20); !ok {
		t.Fatalf("expected verified before expiry")
	}
	if ok, _ := gate.IsVerified(user, 21); ok {
		t.Fatalf("expected unverified after expiry")
	}
}

func TestBlacklistIsIdempotent(t *testing.T) {
	gate, admin, buf := newTestGate(t)
	user := newTestAddress(0x08)
	for i := 0; i < 2; i++ {
		if err := gate.Blacklist(admin, user, 10); err != nil {
			t.Fatalf("blacklist %d: %v", i, err)
		}
	}
	if got := len(buf.Drain()); got != 1 {
		t.Fatalf("expected one blacklist event, got %d", got)
	}
}
