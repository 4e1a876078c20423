package core

import (
	"math/big"

	"phoenixescrow/core/types"
	"phoenixescrow/native/auction"
	"phoenixescrow/native/kyc"
)

// Command names reported in receipts, logs and metrics.
const (
	CommandGenesis            = "genesis"
	CommandCreateAuction      = "create_auction"
	CommandPlaceBid           = "place_bid"
	CommandBuyNow             = "buy_now"
	CommandClose              = "close"
	CommandCancelAuction      = "cancel_auction"
	CommandReleaseFunds       = "release_funds"
	CommandVerifyUser         = "verify_user"
	CommandRevokeVerification = "revoke_verification"
	CommandBlacklist          = "blacklist"
	CommandUpdateConfig       = "update_config"
)

// Allocation credits an opening balance at genesis.
type Allocation struct {
	Address [20]byte
	Amount  *big.Int
}

// Genesis seeds the module configuration and opening balances.
type Genesis struct {
	Config      *auction.Config
	Allocations []Allocation
}

// CreateAuction lists a new item. The seller attaches no funds.
type CreateAuction struct {
	Seller        [20]byte
	Item          auction.Item
	StartingPrice *big.Int
	ReservePrice  *big.Int
	BuyNowPrice   *big.Int
	// Duration is the bidding window in seconds.
	Duration uint64
}

// PlaceBid attaches Amount from Bidder as a new bid.
type PlaceBid struct {
	AuctionID uint64
	Bidder    [20]byte
	Amount    *big.Int
}

// BuyNow attaches Amount from Buyer to take the item at its buy-now price.
type BuyNow struct {
	AuctionID uint64
	Buyer     [20]byte
	Amount    *big.Int
}

// Close ends bidding on an auction.
type Close struct {
	AuctionID uint64
	Caller    [20]byte
}

// CancelAuction withdraws a listing without bids.
type CancelAuction struct {
	AuctionID uint64
	Caller    [20]byte
}

// ReleaseFunds settles an ended or sold auction.
type ReleaseFunds struct {
	AuctionID uint64
	Caller    [20]byte
}

// VerifyUser records a KYC verification.
type VerifyUser struct {
	Admin   [20]byte
	Address [20]byte
	Level   uint32
	// ExpiresIn is the validity window in seconds. Zero never expires.
	ExpiresIn uint64
}

// RevokeVerification removes a KYC record.
type RevokeVerification struct {
	Admin   [20]byte
	Address [20]byte
}

// Blacklist bars an address from gated commands.
type Blacklist struct {
	Admin   [20]byte
	Address [20]byte
}

// UpdateConfig applies an admin change to the module configuration.
type UpdateConfig struct {
	Caller [20]byte
	Update auction.ConfigUpdate
}

// Receipt describes the outcome of one applied command. Rejected commands
// carry only the command, caller, timestamp and error code.
type Receipt struct {
	Command   string
	Caller    [20]byte
	AuctionID uint64
	Timestamp int64
	Committed bool
	Code      string

	Auction   *auction.Auction
	Config    *auction.Config
	Record    *kyc.Record
	Transfers []auction.Transfer
	Events    []*types.Event
}

func (r *Receipt) adopt(res *auction.Result) {
	if res == nil {
		return
	}
	r.Auction = res.Auction
	r.Transfers = res.Transfers
	if res.Auction != nil {
		r.AuctionID = res.Auction.ID
	}
}
