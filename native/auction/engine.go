package auction

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"phoenixescrow/core/events"
	"phoenixescrow/core/types"
	"phoenixescrow/native/common"
	"phoenixescrow/native/fees"
)

// Gate decides whether an address may take part in gated commands.
type Gate interface {
	Authorize(addr [20]byte, requiredLevel uint32, now int64) error
}

// Engine applies auction commands to the registry. Every method evaluates
// its checks against freshly loaded state before writing anything, and the
// surrounding transaction decides whether writes are kept.
type Engine struct {
	state    registryState
	registry *Registry
	gate     Gate
	emitter  events.Emitter
}

// NewEngine creates an auction engine with a no-op emitter. Callers bind the
// per-command state through SetState.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(st registryState) {
	e.state = st
	e.registry = NewRegistry(st)
}

// SetGate configures the access gate consulted when the config requires KYC.
func (e *Engine) SetGate(g Gate) { e.gate = g }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Registry exposes the registry bound to the current state.
func (e *Engine) Registry() *Registry { return e.registry }

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(auctionEvent{evt: event})
}

func (e *Engine) emitRefunds(id uint64, transfers []Transfer) {
	for _, t := range transfers {
		if t.IsRefund() {
			e.emit(NewRefundEvent(id, t))
		}
	}
}

// InitConfig stores the genesis configuration. It fails if a config exists.
func (e *Engine) InitConfig(cfg *Config) (*Config, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, err := loadConfig(e.state); err == nil {
		return nil, ErrConfigExists
	} else if !errors.Is(err, ErrConfigNotFound) {
		return nil, err
	}
	clone := cfg.Clone()
	if clone != nil && clone.MinKYCLevel == 0 {
		clone.MinKYCLevel = DefaultMinKYCLevel
	}
	if err := clone.Validate(); err != nil {
		return nil, err
	}
	if err := storeConfig(e.state, clone); err != nil {
		return nil, err
	}
	return clone.Clone(), nil
}

// Config returns the stored configuration.
func (e *Engine) Config() (*Config, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return loadConfig(e.state)
}

// UpdateConfig applies an admin change to the configuration.
func (e *Engine) UpdateConfig(caller [20]byte, update ConfigUpdate) (*Config, error) {
	cfg, err := e.Config()
	if err != nil {
		return nil, err
	}
	if caller != cfg.Admin {
		return nil, ErrUnauthorized
	}
	update.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := storeConfig(e.state, cfg); err != nil {
		return nil, err
	}
	e.emit(NewConfigUpdatedEvent(cfg))
	return cfg.Clone(), nil
}

// IsAdmin reports whether addr is the configured admin.
func (e *Engine) IsAdmin(addr [20]byte) (bool, error) {
	cfg, err := e.Config()
	if err != nil {
		return false, err
	}
	return addr == cfg.Admin, nil
}

// Auction loads an auction by id.
func (e *Engine) Auction(id uint64) (*Auction, error) {
	if e == nil || e.registry == nil {
		return nil, errNilState
	}
	return e.registry.Load(id)
}

func (e *Engine) authorize(cfg *Config, addr [20]byte, now int64) error {
	if !cfg.RequireKYC {
		return nil
	}
	if e.gate == nil {
		return fmt.Errorf("auction engine: kyc required but no gate configured")
	}
	return e.gate.Authorize(addr, cfg.MinKYCLevel, now)
}

// mutable loads the config and enforces the pause switch.
func (e *Engine) mutable() (*Config, error) {
	cfg, err := e.Config()
	if err != nil {
		return nil, err
	}
	if err := common.Guard(cfg, common.ModuleAuction); err != nil {
		return nil, err
	}
	return cfg, nil
}

// CreateParams describes a new listing.
type CreateParams struct {
	Item          Item
	StartingPrice *big.Int
	ReservePrice  *big.Int
	BuyNowPrice   *big.Int
	// Duration is the bidding window in seconds.
	Duration uint64
}

// CreateAuction lists a new item for seller. Zero starting and reserve prices
// are accepted; a buy-now price must be positive and not below the starting
// price.
func (e *Engine) CreateAuction(seller [20]byte, params CreateParams, now int64) (*Auction, error) {
	cfg, err := e.mutable()
	if err != nil {
		return nil, err
	}
	if err := e.authorize(cfg, seller, now); err != nil {
		return nil, err
	}
	item, err := SanitizeItem(params.Item)
	if err != nil {
		return nil, err
	}
	starting := params.StartingPrice
	if starting == nil {
		starting = big.NewInt(0)
	}
	if !validAmount(starting) {
		return nil, fmt.Errorf("%w: starting price", ErrInvalidAmount)
	}
	if params.ReservePrice != nil && !validAmount(params.ReservePrice) {
		return nil, fmt.Errorf("%w: reserve price", ErrInvalidAmount)
	}
	if params.BuyNowPrice != nil {
		if !validAmount(params.BuyNowPrice) || params.BuyNowPrice.Sign() == 0 {
			return nil, fmt.Errorf("%w: buy-now price", ErrInvalidAmount)
		}
		if params.BuyNowPrice.Cmp(starting) < 0 {
			return nil, fmt.Errorf("%w: buy-now price below starting price", ErrInvalidAmount)
		}
	}
	if params.Duration == 0 || now < 0 || params.Duration > uint64(math.MaxInt64-now) {
		return nil, ErrInvalidDuration
	}
	a := &Auction{
		Seller:        seller,
		Item:          item,
		StartingPrice: new(big.Int).Set(starting),
		EndTime:       now + int64(params.Duration),
		CreatedAt:     now,
		Status:        StatusActive,
	}
	if params.ReservePrice != nil {
		a.ReservePrice = new(big.Int).Set(params.ReservePrice)
	}
	if params.BuyNowPrice != nil {
		a.BuyNowPrice = new(big.Int).Set(params.BuyNowPrice)
	}
	if _, err := e.registry.Create(a); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(a))
	return a.Clone(), nil
}

// loadActive runs the shared pre-checks of bidding commands in order:
// existence, Active status, the pause switch, expiry and the access gate.
// Expiry persists the Ended status before failing.
func (e *Engine) loadActive(id uint64, caller [20]byte, now int64) (*Auction, *Config, error) {
	a, err := e.registry.Load(id)
	if err != nil {
		return nil, nil, err
	}
	if a.Status != StatusActive {
		return nil, nil, ErrAuctionNotActive
	}
	cfg, err := e.mutable()
	if err != nil {
		return nil, nil, err
	}
	if a.Expired(now) {
		a.Status = StatusEnded
		if err := e.registry.Save(a); err != nil {
			return nil, nil, err
		}
		e.emit(NewEndedEvent(a))
		return nil, nil, ErrAuctionEnded
	}
	if err := e.authorize(cfg, caller, now); err != nil {
		return nil, nil, err
	}
	return a, cfg, nil
}

// MinimumBid returns the smallest amount the next bid may carry.
func MinimumBid(a *Auction) *big.Int {
	floor := cloneBigInt(a.StartingPrice)
	if highest := a.HighestBid(); highest != nil {
		next := new(big.Int).Add(highest.Amount, big.NewInt(1))
		if next.Cmp(floor) > 0 {
			floor = next
		}
	}
	return floor
}

// heldBy returns the escrow caller already has on the auction as its
// highest bidder, or zero.
func heldBy(a *Auction, caller [20]byte) *big.Int {
	if prev := a.HighestBid(); prev != nil && prev.Bidder == caller {
		return new(big.Int).Set(prev.Amount)
	}
	return new(big.Int)
}

// supersede refunds the previous highest bidder unless caller is that bidder,
// whose escrow carries over into the new bid.
func (e *Engine) supersede(a *Auction, caller [20]byte, denom string) []Transfer {
	prev := a.HighestBid()
	if prev == nil || prev.Bidder == caller || prev.Amount.Sign() == 0 {
		return nil
	}
	return []Transfer{{
		Recipient: prev.Bidder,
		Denom:     denom,
		Amount:    new(big.Int).Set(prev.Amount),
		Reason:    ReasonOutbidRefund,
	}}
}

// PlaceBid records amount from bidder as the new highest bid. A superseded
// highest bid from another bidder is refunded in the same result. When the
// highest bidder raises, only the difference is collected.
func (e *Engine) PlaceBid(id uint64, bidder [20]byte, amount *big.Int, now int64) (*Result, error) {
	a, cfg, err := e.loadActive(id, bidder, now)
	if err != nil {
		return nil, err
	}
	if !validAmount(amount) {
		return nil, ErrInvalidAmount
	}
	if amount.Sign() == 0 || amount.Cmp(MinimumBid(a)) < 0 {
		return nil, ErrBidTooLow
	}
	collect := new(big.Int).Sub(amount, heldBy(a, bidder))
	transfers := e.supersede(a, bidder, cfg.Denom)
	a.Bids = append(a.Bids, Bid{Bidder: bidder, Amount: new(big.Int).Set(amount), Timestamp: now})
	if err := e.registry.Save(a); err != nil {
		return nil, err
	}
	e.emit(NewBidPlacedEvent(a))
	e.emitRefunds(a.ID, transfers)
	return &Result{Auction: a.Clone(), Transfers: transfers, Collect: collect}, nil
}

// BuyNow ends the auction immediately in buyer's favour at the buy-now price.
// amount is the value tendered; escrow the buyer already holds as highest
// bidder counts toward it, and any excess over the price is refunded.
func (e *Engine) BuyNow(id uint64, buyer [20]byte, amount *big.Int, now int64) (*Result, error) {
	a, cfg, err := e.loadActive(id, buyer, now)
	if err != nil {
		return nil, err
	}
	if !validAmount(amount) {
		return nil, ErrInvalidAmount
	}
	if a.BuyNowPrice == nil {
		return nil, ErrNoBuyNowPrice
	}
	if amount.Cmp(a.BuyNowPrice) < 0 {
		return nil, ErrInsufficientFunds
	}
	held := heldBy(a, buyer)
	collect := new(big.Int).Sub(amount, held)
	if collect.Sign() < 0 {
		collect.SetInt64(0)
	}
	transfers := e.supersede(a, buyer, cfg.Denom)
	tendered := new(big.Int).Add(held, collect)
	if excess := tendered.Sub(tendered, a.BuyNowPrice); excess.Sign() > 0 {
		transfers = append(transfers, Transfer{Recipient: buyer, Denom: cfg.Denom, Amount: excess, Reason: ReasonOverpayment})
	}
	a.Bids = append(a.Bids, Bid{Bidder: buyer, Amount: new(big.Int).Set(a.BuyNowPrice), Timestamp: now})
	a.Status = StatusSold
	if err := e.registry.Save(a); err != nil {
		return nil, err
	}
	e.emit(NewSoldEvent(a))
	e.emitRefunds(a.ID, transfers)
	return &Result{Auction: a.Clone(), Transfers: transfers, Collect: collect}, nil
}

// Close ends bidding. Before the end time only the seller or the admin may
// close; afterwards anyone may. An auction without bids is cancelled.
func (e *Engine) Close(id uint64, caller [20]byte, now int64) (*Result, error) {
	cfg, err := e.mutable()
	if err != nil {
		return nil, err
	}
	a, err := e.registry.Load(id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusActive {
		return nil, ErrAuctionNotActive
	}
	if !a.Expired(now) && caller != a.Seller && caller != cfg.Admin {
		return nil, ErrAuctionNotActive
	}
	if len(a.Bids) == 0 {
		a.Status = StatusCancelled
	} else {
		a.Status = StatusEnded
	}
	if err := e.registry.Save(a); err != nil {
		return nil, err
	}
	if a.Status == StatusCancelled {
		e.emit(NewCancelledEvent(a))
	} else {
		e.emit(NewEndedEvent(a))
	}
	return &Result{Auction: a.Clone()}, nil
}

// Cancel withdraws a listing. Only the creator may cancel, and only while the
// auction is Active without bids.
func (e *Engine) Cancel(id uint64, caller [20]byte, now int64) (*Result, error) {
	if _, err := e.mutable(); err != nil {
		return nil, err
	}
	a, err := e.registry.Load(id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusActive {
		return nil, ErrAuctionNotActive
	}
	if caller != a.Seller {
		return nil, ErrNotCreator
	}
	if len(a.Bids) > 0 {
		return nil, ErrAuctionHasBids
	}
	a.Status = StatusCancelled
	if err := e.registry.Save(a); err != nil {
		return nil, err
	}
	e.emit(NewCancelledEvent(a))
	return &Result{Auction: a.Clone()}, nil
}

// Settle distributes the winning escrow exactly once. The fee is truncated
// and the seller receives the remainder. When a reserve is configured and
// missed the highest bidder is refunded in full, the auction passes through
// Cancelled to Settled, and ErrReserveNotMet is returned alongside the
// committed result.
func (e *Engine) Settle(id uint64, caller [20]byte, now int64) (*Result, error) {
	cfg, err := e.mutable()
	if err != nil {
		return nil, err
	}
	a, err := e.registry.Load(id)
	if err != nil {
		return nil, err
	}
	switch a.Status {
	case StatusSettled:
		return nil, ErrAlreadySettled
	case StatusEnded, StatusSold:
	default:
		return nil, ErrAuctionNotActive
	}
	winner := a.HighestBid()
	if caller != a.Seller && caller != cfg.Admin && (winner == nil || caller != winner.Bidder) {
		return nil, ErrUnauthorized
	}
	settlement := &Settlement{
		Fee:          big.NewInt(0),
		SellerAmount: big.NewInt(0),
		Refund:       big.NewInt(0),
		SettledAt:    now,
	}
	var transfers []Transfer
	if winner != nil && a.ReservePrice != nil && winner.Amount.Cmp(a.ReservePrice) < 0 {
		settlement.Refund = new(big.Int).Set(winner.Amount)
		if settlement.Refund.Sign() > 0 {
			transfers = append(transfers, Transfer{Recipient: winner.Bidder, Denom: cfg.Denom, Amount: new(big.Int).Set(winner.Amount), Reason: ReasonReserveRefund})
		}
		a.Status = StatusCancelled
		e.emit(NewCancelledEvent(a))
		a.Status = StatusSettled
		a.Settlement = settlement
		if err := e.registry.Save(a); err != nil {
			return nil, err
		}
		e.emitRefunds(a.ID, transfers)
		e.emit(NewSettledEvent(a))
		return &Result{Auction: a.Clone(), Transfers: transfers}, ErrReserveNotMet
	}
	if winner != nil {
		fee, net, err := fees.Split(winner.Amount, cfg.FeeBps)
		if err != nil {
			return nil, err
		}
		settlement.Fee, settlement.SellerAmount, settlement.ReserveMet = fee, net, true
		if fee.Sign() > 0 {
			transfers = append(transfers, Transfer{Recipient: cfg.FeeRecipient, Denom: cfg.Denom, Amount: new(big.Int).Set(fee), Reason: ReasonFee})
		}
		if net.Sign() > 0 {
			transfers = append(transfers, Transfer{Recipient: a.Seller, Denom: cfg.Denom, Amount: new(big.Int).Set(net), Reason: ReasonSeller})
		}
	}
	a.Status = StatusSettled
	a.Settlement = settlement
	if err := e.registry.Save(a); err != nil {
		return nil, err
	}
	e.emit(NewSettledEvent(a))
	return &Result{Auction: a.Clone(), Transfers: transfers}, nil
}
