package auction

import (
	"fmt"
	"iter"
	"math"
	"math/big"

	"phoenixescrow/core/state"
)

const (
	// MaxPageSize caps every listing page regardless of the requested limit.
	MaxPageSize = 100
	// DefaultPageSize applies when the caller passes a zero limit.
	DefaultPageSize = 50

	counterName = "auction"
)

var recordPrefix = []byte("auction/record/")

// registryState is the slice of the state transaction the registry needs.
type registryState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVHas(key []byte) (bool, error)
	KVPut(key []byte, value interface{}) error
	Iterate(prefix, start []byte, fn state.VisitFunc) error
	NextID(name string) (uint64, error)
}

// Page is one slice of an ordered auction listing.
type Page struct {
	Auctions []*Auction
	// NextCursor is passed back as the cursor to resume after this page.
	NextCursor uint64
	// Done is set once no auctions remain after NextCursor.
	Done bool
}

// Registry owns the persisted auction records.
type Registry struct {
	state registryState
}

// NewRegistry binds a registry to a state backend.
func NewRegistry(st registryState) *Registry {
	return &Registry{state: st}
}

func recordKey(id uint64) []byte { return state.Uint64Key(recordPrefix, id) }

// Create assigns the next id to a and stores it. Ids start at 1 and are never
// reused.
func (r *Registry) Create(a *Auction) (uint64, error) {
	if r == nil || r.state == nil {
		return 0, errNilState
	}
	if a == nil {
		return 0, fmt.Errorf("auction: nil auction")
	}
	id, err := r.state.NextID(counterName)
	if err != nil {
		return 0, err
	}
	a.ID = id
	if err := r.put(a); err != nil {
		return 0, err
	}
	return id, nil
}

// Load returns a copy of the stored auction.
func (r *Registry) Load(id uint64) (*Auction, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	var stored storedAuction
	ok, err := r.state.KVGet(recordKey(id), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAuctionNotFound
	}
	return stored.auction(), nil
}

// Save overwrites an existing auction record in full.
func (r *Registry) Save(a *Auction) error {
	if r == nil || r.state == nil {
		return errNilState
	}
	if a == nil {
		return fmt.Errorf("auction: nil auction")
	}
	ok, err := r.state.KVHas(recordKey(a.ID))
	if err != nil {
		return err
	}
	if !ok {
		return ErrAuctionNotFound
	}
	return r.put(a)
}

func (r *Registry) put(a *Auction) error {
	if !a.Status.Valid() {
		return fmt.Errorf("auction: invalid status %d", a.Status)
	}
	return r.state.KVPut(recordKey(a.ID), newStoredAuction(a))
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	default:
		return limit
	}
}

// scan visits up to budget records with ids strictly greater than cursor and
// reports the last visited id and whether records remain beyond it.
func (r *Registry) scan(cursor uint64, budget int, visit func(*Auction) bool) (last uint64, done bool, err error) {
	if r == nil || r.state == nil {
		return cursor, true, errNilState
	}
	last = cursor
	if cursor == math.MaxUint64 {
		return last, true, nil
	}
	done = true
	scanned := 0
	err = r.state.Iterate(recordPrefix, recordKey(cursor+1), func(key []byte, decode state.DecodeFunc) (bool, error) {
		if scanned >= budget {
			done = false
			return false, nil
		}
		id, ok := state.ParseUint64Key(recordPrefix, key)
		if !ok {
			return false, fmt.Errorf("auction: malformed record key %x", key)
		}
		var stored storedAuction
		if err := decode(&stored); err != nil {
			return false, fmt.Errorf("auction: decode %d: %w", id, err)
		}
		scanned++
		last = id
		if !visit(stored.auction()) {
			// Peek once more so Done is accurate for the caller.
			budget = scanned
		}
		return true, nil
	})
	return last, done, err
}

// List returns up to limit auctions with ids strictly after cursor in
// ascending order.
func (r *Registry) List(cursor uint64, limit int) (*Page, error) {
	limit = clampLimit(limit)
	page := &Page{Auctions: make([]*Auction, 0, limit)}
	last, done, err := r.scan(cursor, limit, func(a *Auction) bool {
		page.Auctions = append(page.Auctions, a)
		return len(page.Auctions) < limit
	})
	if err != nil {
		return nil, err
	}
	page.NextCursor, page.Done = last, done
	return page, nil
}

// ListByStatus walks the same range as List, keeping auctions in status.
// The filter covers the whole range after cursor, so a page is short only
// when the range is exhausted.
func (r *Registry) ListByStatus(status Status, cursor uint64, limit int) (*Page, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("auction: invalid status %d", status)
	}
	limit = clampLimit(limit)
	page := &Page{Auctions: make([]*Auction, 0)}
	last, done, err := r.scan(cursor, math.MaxInt, func(a *Auction) bool {
		if a.Status == status {
			page.Auctions = append(page.Auctions, a)
		}
		return len(page.Auctions) < limit
	})
	if err != nil {
		return nil, err
	}
	page.NextCursor, page.Done = last, done
	return page, nil
}

// ListCompleted lists settled auctions.
func (r *Registry) ListCompleted(cursor uint64, limit int) (*Page, error) {
	return r.ListByStatus(StatusSettled, cursor, limit)
}

// All lazily yields every auction after cursor. Each range over the sequence
// restarts from cursor.
func (r *Registry) All(cursor uint64) iter.Seq2[*Auction, error] {
	return func(yield func(*Auction, error) bool) {
		next := cursor
		for {
			page, err := r.List(next, MaxPageSize)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, a := range page.Auctions {
				if !yield(a, nil) {
					return
				}
			}
			if page.Done {
				return
			}
			next = page.NextCursor
		}
	}
}

type storedBid struct {
	Bidder    [20]byte
	Amount    *big.Int
	Timestamp uint64
}

type storedSettlement struct {
	Fee          *big.Int
	SellerAmount *big.Int
	Refund       *big.Int
	ReserveMet   bool
	SettledAt    uint64
}

type storedAuction struct {
	ID            uint64
	Seller        [20]byte
	ItemID        string
	Description   string
	MetalType     string
	ProductForm   string
	WeightGrams   uint64
	StartingPrice *big.Int
	HasReserve    bool
	ReservePrice  *big.Int
	HasBuyNow     bool
	BuyNowPrice   *big.Int
	Bids          []storedBid
	EndTime       uint64
	CreatedAt     uint64
	Status        uint8
	HasSettlement bool
	Settlement    storedSettlement
}

func toUnix(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}

func newStoredAuction(a *Auction) *storedAuction {
	stored := &storedAuction{
		ID:            a.ID,
		Seller:        a.Seller,
		ItemID:        a.Item.ItemID,
		Description:   a.Item.Description,
		MetalType:     a.Item.MetalType,
		ProductForm:   a.Item.ProductForm,
		WeightGrams:   a.Item.WeightGrams,
		StartingPrice: cloneBigInt(a.StartingPrice),
		ReservePrice:  big.NewInt(0),
		BuyNowPrice:   big.NewInt(0),
		Bids:          make([]storedBid, len(a.Bids)),
		EndTime:       toUnix(a.EndTime),
		CreatedAt:     toUnix(a.CreatedAt),
		Status:        uint8(a.Status),
		Settlement: storedSettlement{
			Fee:          big.NewInt(0),
			SellerAmount: big.NewInt(0),
			Refund:       big.NewInt(0),
		},
	}
	if a.ReservePrice != nil {
		stored.HasReserve = true
		stored.ReservePrice = new(big.Int).Set(a.ReservePrice)
	}
	if a.BuyNowPrice != nil {
		stored.HasBuyNow = true
		stored.BuyNowPrice = new(big.Int).Set(a.BuyNowPrice)
	}
	for i, b := range a.Bids {
		stored.Bids[i] = storedBid{Bidder: b.Bidder, Amount: cloneBigInt(b.Amount), Timestamp: toUnix(b.Timestamp)}
	}
	if s := a.Settlement; s != nil {
		stored.HasSettlement = true
		stored.Settlement = storedSettlement{
			Fee:          cloneBigInt(s.Fee),
			SellerAmount: cloneBigInt(s.SellerAmount),
			Refund:       cloneBigInt(s.Refund),
			ReserveMet:   s.ReserveMet,
			SettledAt:    toUnix(s.SettledAt),
		}
	}
	return stored
}

func (s *storedAuction) auction() *Auction {
	a := &Auction{
		ID:     s.ID,
		Seller: s.Seller,
		Item: Item{
			ItemID:      s.ItemID,
			Description: s.Description,
			MetalType:   s.MetalType,
			ProductForm: s.ProductForm,
			WeightGrams: s.WeightGrams,
		},
		StartingPrice: cloneBigInt(s.StartingPrice),
		EndTime:       int64(s.EndTime),
		CreatedAt:     int64(s.CreatedAt),
		Status:        Status(s.Status),
	}
	if s.HasReserve {
		a.ReservePrice = cloneBigInt(s.ReservePrice)
	}
	if s.HasBuyNow {
		a.BuyNowPrice = cloneBigInt(s.BuyNowPrice)
	}
	if len(s.Bids) > 0 {
		a.Bids = make([]Bid, len(s.Bids))
		for i, b := range s.Bids {
			a.Bids[i] = Bid{Bidder: b.Bidder, Amount: cloneBigInt(b.Amount), Timestamp: int64(b.Timestamp)}
		}
	}
	if s.HasSettlement {
		a.Settlement = &Settlement{
			Fee:          cloneBigInt(s.Settlement.Fee),
			SellerAmount: cloneBigInt(s.Settlement.SellerAmount),
			Refund:       cloneBigInt(s.Settlement.Refund),
			ReserveMet:   s.Settlement.ReserveMet,
			SettledAt:    int64(s.Settlement.SettledAt),
		}
	}
	return a
}
