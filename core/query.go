package core

import (
	"errors"
	"math/big"

	"phoenixescrow/native/auction"
	"phoenixescrow/native/kyc"
)

// view runs fn against a transaction that is always discarded.
func (x *Executor) view(fn func(b *binding) error) error {
	x.stateMu.Lock()
	defer x.stateMu.Unlock()

	tx, err := x.state.Begin()
	if err != nil {
		return err
	}
	defer tx.Discard()
	return fn(x.bind(tx))
}

// Now returns the executor's current trusted timestamp.
func (x *Executor) Now() int64 { return x.nowFn() }

// Initialized reports whether genesis has been applied.
func (x *Executor) Initialized() (bool, error) {
	_, err := x.Config()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, auction.ErrConfigNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Auction returns the stored auction.
func (x *Executor) Auction(id uint64) (*auction.Auction, error) {
	var out *auction.Auction
	err := x.view(func(b *binding) error {
		a, err := b.auctions.Auction(id)
		out = a
		return err
	})
	return out, err
}

// ListAuctions pages through auctions in id order. A nil status lists every
// auction.
func (x *Executor) ListAuctions(status *auction.Status, cursor uint64, limit int) (*auction.Page, error) {
	var page *auction.Page
	err := x.view(func(b *binding) error {
		var err error
		if status == nil {
			page, err = b.auctions.Registry().List(cursor, limit)
		} else {
			page, err = b.auctions.Registry().ListByStatus(*status, cursor, limit)
		}
		return err
	})
	return page, err
}

// ListCompleted pages through settled auctions.
func (x *Executor) ListCompleted(cursor uint64, limit int) (*auction.Page, error) {
	var page *auction.Page
	err := x.view(func(b *binding) error {
		var err error
		page, err = b.auctions.Registry().ListCompleted(cursor, limit)
		return err
	})
	return page, err
}

// Config returns the module configuration.
func (x *Executor) Config() (*auction.Config, error) {
	var cfg *auction.Config
	err := x.view(func(b *binding) error {
		var err error
		cfg, err = b.auctions.Config()
		return err
	})
	return cfg, err
}

// IsVerified reports whether addr holds a current, unblacklisted
// verification.
func (x *Executor) IsVerified(addr [20]byte) (bool, error) {
	var ok bool
	err := x.view(func(b *binding) error {
		var err error
		ok, err = b.gate.IsVerified(addr, x.nowFn())
		return err
	})
	return ok, err
}

// KYCRecord returns the verification record for addr, if any, and whether
// the address is blacklisted.
func (x *Executor) KYCRecord(addr [20]byte) (record *kyc.Record, blacklisted bool, err error) {
	err = x.view(func(b *binding) error {
		rec, ok, err := b.gate.Record(addr)
		if err != nil {
			return err
		}
		if ok {
			record = rec
		}
		blacklisted, err = b.gate.IsBlacklisted(addr)
		return err
	})
	return record, blacklisted, err
}

// Balance returns the balance of addr. An empty denom selects the configured
// settlement denomination.
func (x *Executor) Balance(addr [20]byte, denom string) (*big.Int, error) {
	var balance *big.Int
	err := x.view(func(b *binding) error {
		if denom == "" {
			cfg, err := b.auctions.Config()
			if err != nil {
				return err
			}
			denom = cfg.Denom
		}
		var err error
		balance, err = b.ledger.Balance(addr, denom)
		return err
	})
	return balance, err
}
