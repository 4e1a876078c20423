package kyc

import (
	"encoding/hex"
	"strconv"

	"phoenixescrow/core/types"
)

const (
	EventTypeVerified    = "kyc.verified"
	EventTypeRevoked     = "kyc.revoked"
	EventTypeBlacklisted = "kyc.blacklisted"
)

type kycEvent struct {
	evt *types.Event
}

func (e kycEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e kycEvent) Event() *types.Event { return e.evt }

// NewVerifiedEvent returns the canonical payload for a verification write.
func NewVerifiedEvent(r *Record) *types.Event {
	attrs := map[string]string{}
	if r != nil {
		attrs["address"] = hex.EncodeToString(r.Address[:])
		attrs["level"] = strconv.FormatUint(uint64(r.Level), 10)
		attrs["verifiedBy"] = hex.EncodeToString(r.VerifiedBy[:])
		attrs["verifiedAt"] = strconv.FormatInt(r.VerifiedAt, 10)
		if r.ExpiresAt > 0 {
			attrs["expiresAt"] = strconv.FormatInt(r.ExpiresAt, 10)
		}
	}
	return &types.Event{Type: EventTypeVerified, Attributes: attrs}
}

// NewRevokedEvent returns the payload emitted when a record is removed.
func NewRevokedEvent(addr, admin [20]byte) *types.Event {
	return &types.Event{Type: EventTypeRevoked, Attributes: map[string]string{
		"address": hex.EncodeToString(addr[:]),
		"admin":   hex.EncodeToString(admin[:]),
	}}
}

// NewBlacklistedEvent returns the payload emitted when an address is blocked.
func NewBlacklistedEvent(addr, admin [20]byte, at int64) *types.Event {
	return &types.Event{Type: EventTypeBlacklisted, Attributes: map[string]string{
		"address": hex.EncodeToString(addr[:]),
		"admin":   hex.EncodeToString(admin[:]),
		"addedAt": strconv.FormatInt(at, 10),
	}}
}
