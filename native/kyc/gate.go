package kyc

import (
	"errors"
	"fmt"
	"math"

	"phoenixescrow/core/events"
	"phoenixescrow/core/types"
)

// storage abstracts the subset of the state transaction the gate needs.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVHas(key []byte) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

// Authority decides which accounts may administer verification records.
type Authority interface {
	IsAdmin(addr [20]byte) (bool, error)
}

var (
	recordPrefix    = []byte("kyc/record/")
	blacklistPrefix = []byte("kyc/blacklist/")

	errNilState     = errors.New("kyc: state not configured")
	errNilAuthority = errors.New("kyc: authority not configured")
)

func recordKey(addr [20]byte) []byte {
	return append(append([]byte{}, recordPrefix...), addr[:]...)
}

func blacklistKey(addr [20]byte) []byte {
	return append(append([]byte{}, blacklistPrefix...), addr[:]...)
}

// Gate owns the verification records and the blacklist and answers whether
// an address may take part in gated commands.
type Gate struct {
	state     storage
	authority Authority
	emitter   events.Emitter
}

// NewGate creates a gate with a no-op emitter. The state backend is bound per
// command through SetState.
func NewGate(authority Authority) *Gate {
	return &Gate{authority: authority, emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the gate.
func (g *Gate) SetState(state storage) { g.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (g *Gate) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		g.emitter = events.NoopEmitter{}
		return
	}
	g.emitter = emitter
}

func (g *Gate) emit(evt *types.Event) {
	if g == nil || g.emitter == nil || evt == nil {
		return
	}
	g.emitter.Emit(kycEvent{evt: evt})
}

func (g *Gate) requireAdmin(caller [20]byte) error {
	if g.state == nil {
		return errNilState
	}
	if g.authority == nil {
		return errNilAuthority
	}
	ok, err := g.authority.IsAdmin(caller)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}

// Verify writes or overwrites the record for addr. expiresIn is a duration in
// seconds; zero means the record does not expire.
func (g *Gate) Verify(admin, addr [20]byte, level uint32, now int64, expiresIn uint64) (*Record, error) {
	if err := g.requireAdmin(admin); err != nil {
		return nil, err
	}
	if addr == ([20]byte{}) {
		return nil, fmt.Errorf("kyc: address required")
	}
	record := &Record{
		Address:    addr,
		Verified:   true,
		Level:      level,
		VerifiedAt: now,
		VerifiedBy: admin,
	}
	if expiresIn > 0 {
		if now < 0 || expiresIn > uint64(math.MaxInt64-now) {
			return nil, fmt.Errorf("kyc: expiry overflows")
		}
		record.ExpiresAt = now + int64(expiresIn)
	}
	if err := g.state.KVPut(recordKey(addr), newStoredRecord(record)); err != nil {
		return nil, err
	}
	g.emit(NewVerifiedEvent(record))
	return record.Clone(), nil
}

// Revoke deletes the verification record for addr.
func (g *Gate) Revoke(admin, addr [20]byte) error {
	if err := g.requireAdmin(admin); err != nil {
		return err
	}
	ok, err := g.state.KVHas(recordKey(addr))
	if err != nil {
		return err
	}
	if !ok {
		return ErrRecordNotFound
	}
	if err := g.state.KVDelete(recordKey(addr)); err != nil {
		return err
	}
	g.emit(NewRevokedEvent(addr, admin))
	return nil
}

// Blacklist adds addr to the blacklist. Blacklisting an address twice is a
// no-op that emits nothing.
func (g *Gate) Blacklist(admin, addr [20]byte, now int64) error {
	if err := g.requireAdmin(admin); err != nil {
		return err
	}
	listed, err := g.IsBlacklisted(addr)
	if err != nil {
		return err
	}
	if listed {
		return nil
	}
	entry := &storedBlacklist{Address: addr, AddedBy: admin}
	if now > 0 {
		entry.AddedAt = uint64(now)
	}
	if err := g.state.KVPut(blacklistKey(addr), entry); err != nil {
		return err
	}
	g.emit(NewBlacklistedEvent(addr, admin, now))
	return nil
}

// IsBlacklisted reports blacklist membership.
func (g *Gate) IsBlacklisted(addr [20]byte) (bool, error) {
	if g == nil || g.state == nil {
		return false, errNilState
	}
	return g.state.KVHas(blacklistKey(addr))
}

// Record returns the stored verification record for addr.
func (g *Gate) Record(addr [20]byte) (*Record, bool, error) {
	if g == nil || g.state == nil {
		return nil, false, errNilState
	}
	var stored storedRecord
	ok, err := g.state.KVGet(recordKey(addr), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.record(), true, nil
}

// Authorize checks addr against the gate. The blacklist is consulted first,
// then the presence of a record, its expiry, and finally its level.
func (g *Gate) Authorize(addr [20]byte, requiredLevel uint32, now int64) error {
	listed, err := g.IsBlacklisted(addr)
	if err != nil {
		return err
	}
	if listed {
		return ErrBlacklisted
	}
	record, ok, err := g.Record(addr)
	if err != nil {
		return err
	}
	if !ok || !record.Verified {
		return ErrKYCRequired
	}
	if record.Expired(now) {
		return ErrKYCExpired
	}
	if record.Level < requiredLevel {
		return ErrInsufficientKYCLevel
	}
	return nil
}

// IsVerified reports whether addr holds an unexpired record and is not
// blacklisted. Level requirements are not applied.
func (g *Gate) IsVerified(addr [20]byte, now int64) (bool, error) {
	err := g.Authorize(addr, 0, now)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrBlacklisted), errors.Is(err, ErrKYCRequired), errors.Is(err, ErrKYCExpired):
		return false, nil
	default:
		return false, err
	}
}
