package auction

import (
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"phoenixescrow/native/fees"
)

// Status is the lifecycle state of an auction.
type Status uint8

const (
	StatusActive Status = iota + 1
	StatusEnded
	StatusSold
	StatusCancelled
	StatusSettled
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusEnded, StatusSold, StatusCancelled, StatusSettled:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusEnded:
		return "ended"
	case StatusSold:
		return "sold"
	case StatusCancelled:
		return "cancelled"
	case StatusSettled:
		return "settled"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// ParseStatus resolves the textual form produced by String.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active":
		return StatusActive, nil
	case "ended":
		return StatusEnded, nil
	case "sold":
		return StatusSold, nil
	case "cancelled", "canceled":
		return StatusCancelled, nil
	case "settled":
		return StatusSettled, nil
	default:
		return 0, fmt.Errorf("auction: unknown status %q", s)
	}
}

const (
	MaxItemIDLength      = 128
	MaxDescriptionLength = 2048
	MaxLabelLength       = 64
)

// Item describes the lot being sold.
type Item struct {
	ItemID      string
	Description string
	MetalType   string
	ProductForm string
	WeightGrams uint64
}

func cleanText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// SanitizeItem trims and NFC-normalises the text fields and enforces their
// length bounds. The input is not mutated.
func SanitizeItem(item Item) (Item, error) {
	out := Item{
		ItemID:      cleanText(item.ItemID),
		Description: cleanText(item.Description),
		MetalType:   strings.ToLower(cleanText(item.MetalType)),
		ProductForm: strings.ToLower(cleanText(item.ProductForm)),
		WeightGrams: item.WeightGrams,
	}
	if out.ItemID == "" {
		return Item{}, fmt.Errorf("%w: item id required", ErrInvalidItem)
	}
	for _, f := range []struct {
		name  string
		value string
		max   int
	}{
		{"item id", out.ItemID, MaxItemIDLength},
		{"description", out.Description, MaxDescriptionLength},
		{"metal type", out.MetalType, MaxLabelLength},
		{"product form", out.ProductForm, MaxLabelLength},
	} {
		if !utf8.ValidString(f.value) {
			return Item{}, fmt.Errorf("%w: %s is not valid utf-8", ErrInvalidItem, f.name)
		}
		if len(f.value) > f.max {
			return Item{}, fmt.Errorf("%w: %s exceeds %d bytes", ErrInvalidItem, f.name, f.max)
		}
	}
	return out, nil
}

// Bid is an accepted offer. Bids are immutable once recorded.
type Bid struct {
	Bidder    [20]byte
	Amount    *big.Int
	Timestamp int64
}

// Clone returns a deep copy of the bid.
func (b *Bid) Clone() *Bid {
	if b == nil {
		return nil
	}
	clone := *b
	clone.Amount = cloneBigInt(b.Amount)
	return &clone
}

// Settlement records how the winning escrow was distributed.
type Settlement struct {
	Fee          *big.Int
	SellerAmount *big.Int
	Refund       *big.Int
	ReserveMet   bool
	SettledAt    int64
}

// Clone returns a deep copy of the settlement.
func (s *Settlement) Clone() *Settlement {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Fee = cloneBigInt(s.Fee)
	clone.SellerAmount = cloneBigInt(s.SellerAmount)
	clone.Refund = cloneBigInt(s.Refund)
	return &clone
}

// Auction is a single listing and its bidding history.
type Auction struct {
	ID            uint64
	Seller        [20]byte
	Item          Item
	StartingPrice *big.Int
	// ReservePrice and BuyNowPrice are nil when not configured.
	ReservePrice *big.Int
	BuyNowPrice  *big.Int
	Bids         []Bid
	EndTime      int64
	CreatedAt    int64
	Status       Status
	Settlement   *Settlement
}

// HighestBid returns the current winning bid, which is always the last bid
// appended.
func (a *Auction) HighestBid() *Bid {
	if a == nil || len(a.Bids) == 0 {
		return nil
	}
	return &a.Bids[len(a.Bids)-1]
}

// Expired reports whether now lies past the end time.
func (a *Auction) Expired(now int64) bool {
	return now > a.EndTime
}

// Clone returns a deep copy of the auction so callers can safely mutate the
// copy without affecting the stored instance.
func (a *Auction) Clone() *Auction {
	if a == nil {
		return nil
	}
	clone := *a
	clone.StartingPrice = cloneBigInt(a.StartingPrice)
	if a.ReservePrice != nil {
		clone.ReservePrice = new(big.Int).Set(a.ReservePrice)
	}
	if a.BuyNowPrice != nil {
		clone.BuyNowPrice = new(big.Int).Set(a.BuyNowPrice)
	}
	if a.Bids != nil {
		clone.Bids = make([]Bid, len(a.Bids))
		for i := range a.Bids {
			clone.Bids[i] = *a.Bids[i].Clone()
		}
	}
	clone.Settlement = a.Settlement.Clone()
	return &clone
}

// Transfer instructs the host to pay amount of denom out of escrow.
type Transfer struct {
	Recipient [20]byte
	Denom     string
	Amount    *big.Int
	Reason    string
}

const (
	ReasonOutbidRefund  = "refund.outbid"
	ReasonOverpayment   = "refund.overpayment"
	ReasonReserveRefund = "refund.reserve"
	ReasonFee           = "payout.fee"
	ReasonSeller        = "payout.seller"
)

// IsRefund reports whether the transfer returns escrow to a bidder.
func (t Transfer) IsRefund() bool {
	return strings.HasPrefix(t.Reason, "refund.")
}

// Result is the outcome of a mutating command: the auction as persisted and
// the transfers the host must execute in the same commit.
type Result struct {
	Auction   *Auction
	Transfers []Transfer
	// Collect is the amount the caller must move into escrow for the
	// command to stand. Nil when nothing is collected.
	Collect *big.Int
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func validAmount(v *big.Int) bool {
	return fees.ValidateAmount(v) == nil
}
