package auction

import (
	"encoding/hex"
	"strconv"

	"phoenixescrow/core/types"
)

const (
	EventTypeAuctionCreated   = "auction.created"
	EventTypeBidPlaced        = "auction.bid_placed"
	EventTypeAuctionSold      = "auction.sold"
	EventTypeAuctionEnded     = "auction.ended"
	EventTypeAuctionCancelled = "auction.cancelled"
	EventTypeAuctionSettled   = "auction.settled"
	EventTypeRefundIssued     = "auction.refund"
	EventTypeConfigUpdated    = "auction.config_updated"
)

type auctionEvent struct {
	evt *types.Event
}

func (e auctionEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e auctionEvent) Event() *types.Event { return e.evt }

func baseAttributes(a *Auction) map[string]string {
	attrs := make(map[string]string)
	if a == nil {
		return attrs
	}
	attrs["id"] = strconv.FormatUint(a.ID, 10)
	attrs["seller"] = hex.EncodeToString(a.Seller[:])
	attrs["status"] = a.Status.String()
	return attrs
}

// NewCreatedEvent returns the canonical payload for a new listing.
func NewCreatedEvent(a *Auction) *types.Event {
	attrs := baseAttributes(a)
	if a != nil {
		attrs["itemId"] = a.Item.ItemID
		attrs["startingPrice"] = cloneBigInt(a.StartingPrice).String()
		attrs["endTime"] = strconv.FormatInt(a.EndTime, 10)
		if a.ReservePrice != nil {
			attrs["reservePrice"] = a.ReservePrice.String()
		}
		if a.BuyNowPrice != nil {
			attrs["buyNowPrice"] = a.BuyNowPrice.String()
		}
	}
	return &types.Event{Type: EventTypeAuctionCreated, Attributes: attrs}
}

func bidEvent(eventType string, a *Auction) *types.Event {
	attrs := baseAttributes(a)
	if bid := a.HighestBid(); bid != nil {
		attrs["bidder"] = hex.EncodeToString(bid.Bidder[:])
		attrs["amount"] = cloneBigInt(bid.Amount).String()
		attrs["timestamp"] = strconv.FormatInt(bid.Timestamp, 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

// NewBidPlacedEvent returns the payload for an accepted bid.
func NewBidPlacedEvent(a *Auction) *types.Event { return bidEvent(EventTypeBidPlaced, a) }

// NewSoldEvent returns the payload emitted when buy-now ends the auction.
func NewSoldEvent(a *Auction) *types.Event { return bidEvent(EventTypeAuctionSold, a) }

// NewEndedEvent returns the payload emitted when bidding closes.
func NewEndedEvent(a *Auction) *types.Event { return bidEvent(EventTypeAuctionEnded, a) }

// NewCancelledEvent returns the payload emitted on cancellation.
func NewCancelledEvent(a *Auction) *types.Event {
	return &types.Event{Type: EventTypeAuctionCancelled, Attributes: baseAttributes(a)}
}

// NewSettledEvent returns the payload emitted once funds are distributed.
func NewSettledEvent(a *Auction) *types.Event {
	attrs := baseAttributes(a)
	if s := a.Settlement; s != nil {
		attrs["fee"] = cloneBigInt(s.Fee).String()
		attrs["sellerAmount"] = cloneBigInt(s.SellerAmount).String()
		attrs["refund"] = cloneBigInt(s.Refund).String()
		attrs["reserveMet"] = strconv.FormatBool(s.ReserveMet)
	}
	return &types.Event{Type: EventTypeAuctionSettled, Attributes: attrs}
}

// NewRefundEvent returns the payload for a refund transfer.
func NewRefundEvent(id uint64, t Transfer) *types.Event {
	return &types.Event{Type: EventTypeRefundIssued, Attributes: map[string]string{
		"id":        strconv.FormatUint(id, 10),
		"recipient": hex.EncodeToString(t.Recipient[:]),
		"amount":    cloneBigInt(t.Amount).String(),
		"denom":     t.Denom,
		"reason":    t.Reason,
	}}
}

// NewConfigUpdatedEvent returns the payload for an admin config change.
func NewConfigUpdatedEvent(c *Config) *types.Event {
	attrs := map[string]string{}
	if c != nil {
		attrs["admin"] = hex.EncodeToString(c.Admin[:])
		attrs["feeBps"] = strconv.FormatUint(uint64(c.FeeBps), 10)
		attrs["feeRecipient"] = hex.EncodeToString(c.FeeRecipient[:])
		attrs["requireKyc"] = strconv.FormatBool(c.RequireKYC)
		attrs["minKycLevel"] = strconv.FormatUint(uint64(c.MinKYCLevel), 10)
		attrs["paused"] = strconv.FormatBool(c.Paused)
	}
	return &types.Event{Type: EventTypeConfigUpdated, Attributes: attrs}
}
