package rpc

import (
	"math/big"

	"phoenixescrow/core"
	"phoenixescrow/core/types"
	"phoenixescrow/crypto"
	"phoenixescrow/native/auction"
	"phoenixescrow/native/kyc"
)

type itemJSON struct {
	ItemID      string `json:"itemId"`
	Description string `json:"description,omitempty"`
	MetalType   string `json:"metalType,omitempty"`
	ProductForm string `json:"productForm,omitempty"`
	WeightGrams uint64 `json:"weightGrams,omitempty"`
}

type bidJSON struct {
	Bidder    string `json:"bidder"`
	Amount    string `json:"amount"`
	Timestamp int64  `json:"timestamp"`
}

type settlementJSON struct {
	Fee          string `json:"fee"`
	SellerAmount string `json:"sellerAmount"`
	Refund       string `json:"refund"`
	ReserveMet   bool   `json:"reserveMet"`
	SettledAt    int64  `json:"settledAt"`
}

type auctionJSON struct {
	ID            uint64          `json:"id"`
	Seller        string          `json:"seller"`
	Item          itemJSON        `json:"item"`
	StartingPrice string          `json:"startingPrice"`
	ReservePrice  *string         `json:"reservePrice,omitempty"`
	BuyNowPrice   *string         `json:"buyNowPrice,omitempty"`
	HighestBid    *bidJSON        `json:"highestBid,omitempty"`
	MinimumBid    *string         `json:"minimumBid,omitempty"`
	Bids          []bidJSON       `json:"bids"`
	EndTime       int64           `json:"endTime"`
	CreatedAt     int64           `json:"createdAt"`
	Status        string          `json:"status"`
	Settlement    *settlementJSON `json:"settlement,omitempty"`
}

type pageJSON struct {
	Auctions   []auctionJSON `json:"auctions"`
	NextCursor uint64        `json:"nextCursor"`
	Done       bool          `json:"done"`
}

type transferJSON struct {
	Recipient string `json:"recipient"`
	Denom     string `json:"denom"`
	Amount    string `json:"amount"`
	Reason    string `json:"reason"`
}

type configJSON struct {
	Admin        string `json:"admin"`
	FeeBps       uint32 `json:"feeBps"`
	FeeRecipient string `json:"feeRecipient"`
	Denom        string `json:"denom"`
	RequireKYC   bool   `json:"requireKyc"`
	MinKYCLevel  uint32 `json:"minKycLevel"`
	Paused       bool   `json:"paused"`
}

type kycRecordJSON struct {
	Address     string `json:"address"`
	Verified    bool   `json:"verified"`
	Level       uint32 `json:"level"`
	VerifiedAt  int64  `json:"verifiedAt"`
	VerifiedBy  string `json:"verifiedBy"`
	ExpiresAt   int64  `json:"expiresAt,omitempty"`
	Blacklisted bool   `json:"blacklisted"`
}

type receiptJSON struct {
	Command   string         `json:"command"`
	Caller    string         `json:"caller"`
	AuctionID uint64         `json:"auctionId,omitempty"`
	Timestamp int64          `json:"timestamp"`
	Committed bool           `json:"committed"`
	Code      string         `json:"code,omitempty"`
	Auction   *auctionJSON   `json:"auction,omitempty"`
	Config    *configJSON    `json:"config,omitempty"`
	Record    *kycRecordJSON `json:"record,omitempty"`
	Transfers []transferJSON `json:"transfers,omitempty"`
	Events    []*types.Event `json:"events,omitempty"`
}

func formatAddress(addr [20]byte) string {
	return crypto.FromRaw(addr).String()
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func optionalAmount(v *big.Int) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}

func formatBid(b auction.Bid) bidJSON {
	return bidJSON{Bidder: formatAddress(b.Bidder), Amount: amountString(b.Amount), Timestamp: b.Timestamp}
}

func formatAuction(a *auction.Auction) *auctionJSON {
	if a == nil {
		return nil
	}
	out := &auctionJSON{
		ID:     a.ID,
		Seller: formatAddress(a.Seller),
		Item: itemJSON{
			ItemID:      a.Item.ItemID,
			Description: a.Item.Description,
			MetalType:   a.Item.MetalType,
			ProductForm: a.Item.ProductForm,
			WeightGrams: a.Item.WeightGrams,
		},
		StartingPrice: amountString(a.StartingPrice),
		ReservePrice:  optionalAmount(a.ReservePrice),
		BuyNowPrice:   optionalAmount(a.BuyNowPrice),
		Bids:          make([]bidJSON, 0, len(a.Bids)),
		EndTime:       a.EndTime,
		CreatedAt:     a.CreatedAt,
		Status:        a.Status.String(),
	}
	for _, b := range a.Bids {
		out.Bids = append(out.Bids, formatBid(b))
	}
	if highest := a.HighestBid(); highest != nil {
		hb := formatBid(*highest)
		out.HighestBid = &hb
	}
	if a.Status == auction.StatusActive {
		out.MinimumBid = optionalAmount(auction.MinimumBid(a))
	}
	if s := a.Settlement; s != nil {
		out.Settlement = &settlementJSON{
			Fee:          amountString(s.Fee),
			SellerAmount: amountString(s.SellerAmount),
			Refund:       amountString(s.Refund),
			ReserveMet:   s.ReserveMet,
			SettledAt:    s.SettledAt,
		}
	}
	return out
}

func formatPage(p *auction.Page) *pageJSON {
	out := &pageJSON{Auctions: make([]auctionJSON, 0, len(p.Auctions)), NextCursor: p.NextCursor, Done: p.Done}
	for _, a := range p.Auctions {
		out.Auctions = append(out.Auctions, *formatAuction(a))
	}
	return out
}

func formatConfig(c *auction.Config) *configJSON {
	if c == nil {
		return nil
	}
	return &configJSON{
		Admin:        formatAddress(c.Admin),
		FeeBps:       c.FeeBps,
		FeeRecipient: formatAddress(c.FeeRecipient),
		Denom:        c.Denom,
		RequireKYC:   c.RequireKYC,
		MinKYCLevel:  c.MinKYCLevel,
		Paused:       c.Paused,
	}
}

func formatRecord(r *kyc.Record, blacklisted bool) *kycRecordJSON {
	if r == nil {
		return nil
	}
	return &kycRecordJSON{
		Address:     formatAddress(r.Address),
		Verified:    r.Verified,
		Level:       r.Level,
		VerifiedAt:  r.VerifiedAt,
		VerifiedBy:  formatAddress(r.VerifiedBy),
		ExpiresAt:   r.ExpiresAt,
		Blacklisted: blacklisted,
	}
}

func formatReceipt(r *core.Receipt) *receiptJSON {
	if r == nil {
		return nil
	}
	out := &receiptJSON{
		Command:   r.Command,
		Caller:    formatAddress(r.Caller),
		AuctionID: r.AuctionID,
		Timestamp: r.Timestamp,
		Committed: r.Committed,
		Code:      r.Code,
		Auction:   formatAuction(r.Auction),
		Config:    formatConfig(r.Config),
		Record:    formatRecord(r.Record, false),
		Events:    r.Events,
	}
	for _, t := range r.Transfers {
		out.Transfers = append(out.Transfers, transferJSON{
			Recipient: formatAddress(t.Recipient),
			Denom:     t.Denom,
			Amount:    amountString(t.Amount),
			Reason:    t.Reason,
		})
	}
	return out
}
