package auction

import (
	"errors"

	"phoenixescrow/native/common"
	"phoenixescrow/native/kyc"
)

var (
	ErrAuctionNotFound = errors.New("auction: not found")
	ErrConfigNotFound  = errors.New("auction: config not found")
	ErrConfigExists    = errors.New("auction: config already initialised")

	ErrAuctionNotActive = errors.New("auction: not active")
	ErrAuctionEnded     = errors.New("auction: ended")
	ErrAlreadySettled   = errors.New("auction: already settled")
	ErrAuctionHasBids   = errors.New("auction: has bids")

	ErrBidTooLow         = errors.New("auction: bid too low")
	ErrReserveNotMet     = errors.New("auction: reserve not met")
	ErrInsufficientFunds = errors.New("auction: insufficient funds")
	ErrNoBuyNowPrice     = errors.New("auction: no buy-now price")
	ErrInvalidAmount     = errors.New("auction: invalid amount")
	ErrInvalidItem       = errors.New("auction: invalid item")
	ErrInvalidDuration   = errors.New("auction: invalid duration")

	ErrUnauthorized = errors.New("auction: unauthorized")
	ErrNotCreator   = errors.New("auction: caller is not the creator")

	errNilState = errors.New("auction engine: state not configured")
)

// Committing reports whether a failed command still persists its state
// changes. Expiry detected while bidding records the Ended status, and a
// settlement whose reserve was missed records the refund and the Settled
// status.
func Committing(err error) bool {
	return errors.Is(err, ErrAuctionEnded) || errors.Is(err, ErrReserveNotMet)
}

// Code returns the stable string identifier surfaced to clients for err.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuctionNotFound):
		return "AUCTION_NOT_FOUND"
	case errors.Is(err, ErrConfigNotFound):
		return "CONFIG_NOT_FOUND"
	case errors.Is(err, ErrConfigExists):
		return "CONFIG_EXISTS"
	case errors.Is(err, ErrAuctionNotActive):
		return "AUCTION_NOT_ACTIVE"
	case errors.Is(err, ErrAuctionEnded):
		return "AUCTION_ENDED"
	case errors.Is(err, ErrAlreadySettled):
		return "ALREADY_SETTLED"
	case errors.Is(err, ErrAuctionHasBids):
		return "AUCTION_HAS_BIDS"
	case errors.Is(err, ErrBidTooLow):
		return "BID_TOO_LOW"
	case errors.Is(err, ErrReserveNotMet):
		return "RESERVE_NOT_MET"
	case errors.Is(err, ErrInsufficientFunds):
		return "INSUFFICIENT_FUNDS"
	case errors.Is(err, ErrNoBuyNowPrice):
		return "NO_BUY_NOW_PRICE"
	case errors.Is(err, ErrInvalidAmount):
		return "INVALID_AMOUNT"
	case errors.Is(err, ErrInvalidItem):
		return "INVALID_ITEM"
	case errors.Is(err, ErrInvalidDuration):
		return "INVALID_DURATION"
	case errors.Is(err, ErrUnauthorized), errors.Is(err, kyc.ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, ErrNotCreator):
		return "NOT_CREATOR"
	case errors.Is(err, kyc.ErrKYCRequired):
		return "KYC_REQUIRED"
	case errors.Is(err, kyc.ErrKYCExpired):
		return "KYC_EXPIRED"
	case errors.Is(err, kyc.ErrInsufficientKYCLevel):
		return "INSUFFICIENT_KYC_LEVEL"
	case errors.Is(err, kyc.ErrBlacklisted):
		return "BLACKLISTED"
	case errors.Is(err, kyc.ErrRecordNotFound):
		return "KYC_RECORD_NOT_FOUND"
	case errors.Is(err, common.ErrModulePaused):
		return "MODULE_PAUSED"
	default:
		return "INTERNAL"
	}
}
