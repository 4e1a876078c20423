package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"phoenixescrow/core/events"
	phxstate "phoenixescrow/core/state"
	"phoenixescrow/native/auction"
	"phoenixescrow/native/bank"
	"phoenixescrow/native/kyc"
	"phoenixescrow/observability"
	"phoenixescrow/observability/metrics"
)

// ModuleName identifies the escrow vault owned by the auction module.
const ModuleName = "auction"

// Journal persists committed receipts for audit queries.
type Journal interface {
	Append(ctx context.Context, receipt *Receipt) error
}

// Executor applies commands one at a time. Each command runs inside a single
// state transaction that is committed whole or discarded whole.
type Executor struct {
	stateMu sync.Mutex
	state   *phxstate.Manager
	vault   [20]byte

	logger  *slog.Logger
	emitter events.Emitter
	journal Journal
	nowFn   func() int64

	auctionMetrics *observability.AuctionMetrics
	kycMetrics     *metrics.KYCMetrics
}

// NewExecutor wires an executor around the provided state manager. A nil
// logger falls back to slog.Default.
func NewExecutor(manager *phxstate.Manager, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		state:          manager,
		vault:          bank.ModuleAddress(ModuleName),
		logger:         logger,
		emitter:        events.NoopEmitter{},
		nowFn:          func() int64 { return time.Now().Unix() },
		auctionMetrics: observability.Auction(),
		kycMetrics:     metrics.KYC(),
	}
}

// SetEmitter configures the downstream subscriber that receives events of
// committed commands. Passing nil resets it to a no-op.
func (x *Executor) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		x.emitter = events.NoopEmitter{}
		return
	}
	x.emitter = emitter
}

// SetJournal configures the audit journal. Passing nil disables journaling.
func (x *Executor) SetJournal(journal Journal) { x.journal = journal }

// SetNowFunc overrides the trusted clock handed to the engines.
func (x *Executor) SetNowFunc(now func() int64) {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	x.nowFn = now
}

// Vault returns the escrow account holding attached funds.
func (x *Executor) Vault() [20]byte { return x.vault }

// binding groups the engines attached to one transaction.
type binding struct {
	tx       *phxstate.Tx
	auctions *auction.Engine
	gate     *kyc.Gate
	ledger   *bank.Ledger
	buffer   *events.Buffer
}

func (x *Executor) bind(tx *phxstate.Tx) *binding {
	buffer := &events.Buffer{}
	engine := auction.NewEngine()
	engine.SetState(tx)
	engine.SetEmitter(buffer)
	gate := kyc.NewGate(engine)
	gate.SetState(tx)
	gate.SetEmitter(buffer)
	engine.SetGate(gate)
	ledger := bank.NewLedger(x.vault)
	ledger.SetState(tx)
	return &binding{tx: tx, auctions: engine, gate: gate, ledger: ledger, buffer: buffer}
}

// escrow moves funds attached to a command into the vault.
func (b *binding) escrow(from [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	cfg, err := b.auctions.Config()
	if err != nil {
		return err
	}
	return b.ledger.Escrow(from, cfg.Denom, amount)
}

func payouts(transfers []auction.Transfer) []bank.Payout {
	out := make([]bank.Payout, 0, len(transfers))
	for _, t := range transfers {
		out = append(out, bank.Payout{Recipient: t.Recipient, Denom: t.Denom, Amount: t.Amount, Reason: t.Reason})
	}
	return out
}

// apply runs fn inside a fresh transaction. Successful commands and the two
// committing failures persist their writes and execute their transfers;
// every other failure discards the transaction.
func (x *Executor) apply(ctx context.Context, command string, caller [20]byte, fn func(b *binding, r *Receipt) error) (*Receipt, error) {
	started := time.Now()
	x.stateMu.Lock()
	defer x.stateMu.Unlock()

	receipt := &Receipt{Command: command, Caller: caller, Timestamp: x.nowFn()}
	tx, err := x.state.Begin()
	if err != nil {
		return nil, err
	}
	b := x.bind(tx)
	cmdErr := fn(b, receipt)
	if cmdErr == nil || auction.Committing(cmdErr) {
		if err := b.ledger.Execute(payouts(receipt.Transfers)); err != nil {
			cmdErr = fmt.Errorf("execute transfers: %w", err)
		} else if err := tx.Commit(); err != nil {
			x.finish(receipt, started, err)
			return nil, fmt.Errorf("commit %s: %w", command, err)
		} else {
			receipt.Committed = true
		}
	}
	if !receipt.Committed {
		tx.Discard()
		receipt.Auction, receipt.Config, receipt.Record, receipt.Transfers = nil, nil, nil, nil
	} else {
		drained := b.buffer.Drain()
		receipt.Events = events.Payloads(drained)
		for _, evt := range drained {
			x.emitter.Emit(evt)
		}
		x.journalReceipt(ctx, receipt)
	}
	x.finish(receipt, started, cmdErr)
	if cmdErr != nil {
		return receipt, cmdErr
	}
	return receipt, nil
}

func (x *Executor) journalReceipt(ctx context.Context, receipt *Receipt) {
	if x.journal == nil {
		return
	}
	if err := x.journal.Append(ctx, receipt); err != nil {
		x.logger.Warn("audit journal append failed",
			slog.String("command", receipt.Command),
			slog.Uint64("auction_id", receipt.AuctionID),
			slog.Any("error", err))
	}
}

func (x *Executor) finish(receipt *Receipt, started time.Time, err error) {
	receipt.Code = Code(err)
	x.auctionMetrics.ObserveCommand(receipt.Command, receipt.Code, receipt.Committed, time.Since(started))
	switch receipt.Code {
	case "KYC_REQUIRED", "KYC_EXPIRED", "INSUFFICIENT_KYC_LEVEL", "BLACKLISTED":
		x.kycMetrics.RecordDenial(receipt.Code)
	}
	if receipt.Committed {
		refunds := 0
		eventMetrics := observability.Events()
		for _, t := range receipt.Transfers {
			eventMetrics.RecordTransfer(t.Denom, t.Reason)
			if t.IsRefund() {
				refunds++
			}
		}
		x.auctionMetrics.RecordRefunds(refunds)
		for _, evt := range receipt.Events {
			eventMetrics.RecordEvent(evt.Type)
		}
	}
	attrs := []any{
		slog.String("command", receipt.Command),
		slog.Uint64("auction_id", receipt.AuctionID),
		slog.Bool("committed", receipt.Committed),
		slog.Int("transfers", len(receipt.Transfers)),
		slog.Duration("duration", time.Since(started)),
	}
	if err != nil {
		attrs = append(attrs, slog.String("code", receipt.Code), slog.Any("error", err))
	}
	if err != nil && receipt.Code == "INTERNAL" {
		x.logger.Error("command failed", attrs...)
		return
	}
	x.logger.Info("command applied", attrs...)
}

// Code maps err to the stable identifier surfaced to clients.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, bank.ErrInsufficientBalance):
		return "INSUFFICIENT_BALANCE"
	case errors.Is(err, phxstate.ErrTxActive):
		return "BUSY"
	default:
		return auction.Code(err)
	}
}

// ApplyGenesis stores the initial configuration and credits the opening
// balances. It fails with auction.ErrConfigExists once applied.
func (x *Executor) ApplyGenesis(ctx context.Context, genesis *Genesis) (*Receipt, error) {
	if genesis == nil || genesis.Config == nil {
		return nil, fmt.Errorf("genesis: config required")
	}
	return x.apply(ctx, CommandGenesis, genesis.Config.Admin, func(b *binding, r *Receipt) error {
		cfg, err := b.auctions.InitConfig(genesis.Config)
		if err != nil {
			return err
		}
		for i, alloc := range genesis.Allocations {
			if alloc.Amount == nil || alloc.Amount.Sign() == 0 {
				continue
			}
			if err := b.ledger.Mint(alloc.Address, cfg.Denom, alloc.Amount); err != nil {
				return fmt.Errorf("genesis allocation %d: %w", i, err)
			}
		}
		r.Config = cfg
		return nil
	})
}

// CreateAuction lists a new item.
func (x *Executor) CreateAuction(ctx context.Context, cmd CreateAuction) (*Receipt, error) {
	return x.apply(ctx, CommandCreateAuction, cmd.Seller, func(b *binding, r *Receipt) error {
		a, err := b.auctions.CreateAuction(cmd.Seller, auction.CreateParams{
			Item:          cmd.Item,
			StartingPrice: cmd.StartingPrice,
			ReservePrice:  cmd.ReservePrice,
			BuyNowPrice:   cmd.BuyNowPrice,
			Duration:      cmd.Duration,
		}, r.Timestamp)
		if err != nil {
			return err
		}
		r.Auction, r.AuctionID = a, a.ID
		return nil
	})
}

// PlaceBid escrows the attached amount and records the bid. A superseded bid
// from another bidder is refunded in the same commit; a raise by the highest
// bidder escrows only the difference.
func (x *Executor) PlaceBid(ctx context.Context, cmd PlaceBid) (*Receipt, error) {
	return x.apply(ctx, CommandPlaceBid, cmd.Bidder, func(b *binding, r *Receipt) error {
		r.AuctionID = cmd.AuctionID
		res, err := b.auctions.PlaceBid(cmd.AuctionID, cmd.Bidder, cmd.Amount, r.Timestamp)
		if err != nil {
			return err
		}
		if err := b.escrow(cmd.Bidder, res.Collect); err != nil {
			return err
		}
		r.adopt(res)
		return nil
	})
}

// BuyNow escrows the attached amount and ends the auction in the buyer's
// favour. Any excess and the superseded bid are refunded.
func (x *Executor) BuyNow(ctx context.Context, cmd BuyNow) (*Receipt, error) {
	return x.apply(ctx, CommandBuyNow, cmd.Buyer, func(b *binding, r *Receipt) error {
		r.AuctionID = cmd.AuctionID
		res, err := b.auctions.BuyNow(cmd.AuctionID, cmd.Buyer, cmd.Amount, r.Timestamp)
		if err != nil {
			return err
		}
		if err := b.escrow(cmd.Buyer, res.Collect); err != nil {
			return err
		}
		r.adopt(res)
		return nil
	})
}

// Close ends bidding on an auction.
func (x *Executor) Close(ctx context.Context, cmd Close) (*Receipt, error) {
	return x.apply(ctx, CommandClose, cmd.Caller, func(b *binding, r *Receipt) error {
		r.AuctionID = cmd.AuctionID
		res, err := b.auctions.Close(cmd.AuctionID, cmd.Caller, r.Timestamp)
		r.adopt(res)
		return err
	})
}

// CancelAuction withdraws a listing without bids.
func (x *Executor) CancelAuction(ctx context.Context, cmd CancelAuction) (*Receipt, error) {
	return x.apply(ctx, CommandCancelAuction, cmd.Caller, func(b *binding, r *Receipt) error {
		r.AuctionID = cmd.AuctionID
		res, err := b.auctions.Cancel(cmd.AuctionID, cmd.Caller, r.Timestamp)
		r.adopt(res)
		return err
	})
}

// ReleaseFunds settles an auction, paying the fee and seller or refunding
// the highest bidder when the reserve was missed.
func (x *Executor) ReleaseFunds(ctx context.Context, cmd ReleaseFunds) (*Receipt, error) {
	receipt, err := x.apply(ctx, CommandReleaseFunds, cmd.Caller, func(b *binding, r *Receipt) error {
		r.AuctionID = cmd.AuctionID
		res, err := b.auctions.Settle(cmd.AuctionID, cmd.Caller, r.Timestamp)
		r.adopt(res)
		return err
	})
	if receipt != nil && receipt.Committed {
		switch {
		case errors.Is(err, auction.ErrReserveNotMet):
			x.auctionMetrics.RecordSettlement("reserve_not_met")
		case len(receipt.Transfers) == 0:
			x.auctionMetrics.RecordSettlement("no_winner")
		default:
			x.auctionMetrics.RecordSettlement("paid")
		}
	}
	return receipt, err
}

// VerifyUser records a KYC verification on behalf of the admin.
func (x *Executor) VerifyUser(ctx context.Context, cmd VerifyUser) (*Receipt, error) {
	receipt, err := x.apply(ctx, CommandVerifyUser, cmd.Admin, func(b *binding, r *Receipt) error {
		record, err := b.gate.Verify(cmd.Admin, cmd.Address, cmd.Level, r.Timestamp, cmd.ExpiresIn)
		if err != nil {
			return err
		}
		r.Record = record
		return nil
	})
	if err == nil {
		x.kycMetrics.RecordAdminAction("verify")
	}
	return receipt, err
}

// RevokeVerification removes a KYC record.
func (x *Executor) RevokeVerification(ctx context.Context, cmd RevokeVerification) (*Receipt, error) {
	receipt, err := x.apply(ctx, CommandRevokeVerification, cmd.Admin, func(b *binding, r *Receipt) error {
		return b.gate.Revoke(cmd.Admin, cmd.Address)
	})
	if err == nil {
		x.kycMetrics.RecordAdminAction("revoke")
	}
	return receipt, err
}

// Blacklist bars an address from gated commands.
func (x *Executor) Blacklist(ctx context.Context, cmd Blacklist) (*Receipt, error) {
	receipt, err := x.apply(ctx, CommandBlacklist, cmd.Admin, func(b *binding, r *Receipt) error {
		return b.gate.Blacklist(cmd.Admin, cmd.Address, r.Timestamp)
	})
	if err == nil {
		x.kycMetrics.RecordAdminAction("blacklist")
	}
	return receipt, err
}

// UpdateConfig applies an admin change to the module configuration.
func (x *Executor) UpdateConfig(ctx context.Context, cmd UpdateConfig) (*Receipt, error) {
	return x.apply(ctx, CommandUpdateConfig, cmd.Caller, func(b *binding, r *Receipt) error {
		cfg, err := b.auctions.UpdateConfig(cmd.Caller, cmd.Update)
		if err != nil {
			return err
		}
		r.Config = cfg
		return nil
	})
}
