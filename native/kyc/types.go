package kyc

import "errors"

var (
	// ErrKYCRequired is returned when the address has no verification record.
	ErrKYCRequired = errors.New("kyc: verification required")
	// ErrKYCExpired is returned when the verification record has lapsed.
	ErrKYCExpired = errors.New("kyc: verification expired")
	// ErrInsufficientKYCLevel is returned when the record's level is below
	// the level demanded by the command.
	ErrInsufficientKYCLevel = errors.New("kyc: insufficient verification level")
	// ErrBlacklisted is returned for blacklisted addresses regardless of any
	// verification record.
	ErrBlacklisted = errors.New("kyc: address blacklisted")
	// ErrUnauthorized marks administrative calls from non-admin accounts.
	ErrUnauthorized = errors.New("kyc: unauthorized")
	// ErrRecordNotFound is returned when revoking an address without a record.
	ErrRecordNotFound = errors.New("kyc: record not found")
)

// Record is the verification state held for one address.
type Record struct {
	Address    [20]byte
	Verified   bool
	Level      uint32
	VerifiedAt int64
	VerifiedBy [20]byte
	// ExpiresAt is zero when the record never expires.
	ExpiresAt int64
}

// Clone returns a copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// Expired reports whether the record has lapsed at now. A record remains
// valid through the second named by ExpiresAt.
func (r *Record) Expired(now int64) bool {
	return r != nil && r.ExpiresAt > 0 && now > r.ExpiresAt
}

type storedRecord struct {
	Address    [20]byte
	Verified   bool
	Level      uint32
	VerifiedAt uint64
	VerifiedBy [20]byte
	ExpiresAt  uint64
}

func newStoredRecord(r *Record) *storedRecord {
	stored := &storedRecord{
		Address:    r.Address,
		Verified:   r.Verified,
		Level:      r.Level,
		VerifiedBy: r.VerifiedBy,
	}
	if r.VerifiedAt > 0 {
		stored.VerifiedAt = uint64(r.VerifiedAt)
	}
	if r.ExpiresAt > 0 {
		stored.ExpiresAt = uint64(r.ExpiresAt)
	}
	return stored
}

func (s *storedRecord) record() *Record {
	return &Record{
		Address:    s.Address,
		Verified:   s.Verified,
		Level:      s.Level,
		VerifiedAt: int64(s.VerifiedAt),
		VerifiedBy: s.VerifiedBy,
		ExpiresAt:  int64(s.ExpiresAt),
	}
}

type storedBlacklist struct {
	Address [20]byte
	AddedBy [20]byte
	AddedAt uint64
}
