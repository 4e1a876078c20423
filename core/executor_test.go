package core

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"phoenixescrow/core/events"
	phxstate "phoenixescrow/core/state"
	"phoenixescrow/native/auction"
	"phoenixescrow/native/kyc"
	"phoenixescrow/storage"
)

const testStart int64 = 1_700_000_000

type recordingJournal struct {
	mu       sync.Mutex
	receipts []*Receipt
}

func (j *recordingJournal) Append(_ context.Context, r *Receipt) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.receipts = append(j.receipts, r)
	return nil
}

func (j *recordingJournal) commands() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, 0, len(j.receipts))
	for _, r := range j.receipts {
		out = append(out, r.Command)
	}
	return out
}

// counterValue reads a counter from the default registry, returning zero when
// the labelled series has not been created yet.
func counterValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	series:
		for _, m := range mf.GetMetric() {
			pairs := m.GetLabel()
			if len(pairs) != len(labels) {
				continue
			}
			for _, lp := range pairs {
				if labels[lp.GetName()] != lp.GetValue() {
					continue series
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

type harness struct {
	exec       *Executor
	journal    *recordingJournal
	downstream *events.Buffer
	now        int64

	admin   [20]byte
	pool    [20]byte
	seller  [20]byte
	bidder1 [20]byte
	bidder2 [20]byte
}

func addr(fill byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = fill
	}
	return out
}

func newHarness(t *testing.T, db storage.Database, feeBps uint32, requireKYC bool) *harness {
	t.Helper()
	h := &harness{
		journal:    &recordingJournal{},
		downstream: &events.Buffer{},
		now:        testStart,
		admin:      addr(0xA0),
		pool:       addr(0xB0),
		seller:     addr(0x10),
		bidder1:    addr(0x21),
		bidder2:    addr(0x22),
	}
	h.exec = NewExecutor(phxstate.NewManager(db), nil)
	h.exec.SetNowFunc(func() int64 { return h.now })
	h.exec.SetJournal(h.journal)
	h.exec.SetEmitter(h.downstream)
	_, err := h.exec.ApplyGenesis(context.Background(), &Genesis{
		Config: &auction.Config{
			Admin:        h.admin,
			FeeBps:       feeBps,
			FeeRecipient: h.pool,
			Denom:        "phx",
			RequireKYC:   requireKYC,
		},
		Allocations: []Allocation{
			{Address: h.bidder1, Amount: big.NewInt(500)},
			{Address: h.bidder2, Amount: big.NewInt(500)},
		},
	})
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	return h
}

func (h *harness) balance(t *testing.T, who [20]byte) int64 {
	t.Helper()
	bal, err := h.exec.Balance(who, "")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal.Int64()
}

func (h *harness) create(t *testing.T, reserve *big.Int) uint64 {
	t.Helper()
	r, err := h.exec.CreateAuction(context.Background(), CreateAuction{
		Seller:        h.seller,
		Item:          auction.Item{ItemID: "bar-1", Description: "1oz bar", MetalType: "Gold", ProductForm: "Bar", WeightGrams: 31},
		StartingPrice: big.NewInt(100),
		ReservePrice:  reserve,
		BuyNowPrice:   big.NewInt(400),
		Duration:      3600,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return r.AuctionID
}

func (h *harness) bid(t *testing.T, id uint64, who [20]byte, amount int64) *Receipt {
	t.Helper()
	r, err := h.exec.PlaceBid(context.Background(), PlaceBid{AuctionID: id, Bidder: who, Amount: big.NewInt(amount)})
	if err != nil {
		t.Fatalf("bid %d: %v", amount, err)
	}
	return r
}

func TestExecutorReferenceFlow(t *testing.T) {
	h := newHarness(t, storage.NewMemDB(), 250, false)
	ctx := context.Background()
	vault := h.exec.Vault()
	id := h.create(t, big.NewInt(150))
	if id != 1 {
		t.Fatalf("expected first auction id 1, got %d", id)
	}

	h.bid(t, id, h.bidder1, 120)
	if got := h.balance(t, h.bidder1); got != 380 {
		t.Fatalf("bidder1 balance after bid: %d", got)
	}
	r := h.bid(t, id, h.bidder2, 200)
	if len(r.Transfers) != 1 || r.Transfers[0].Recipient != h.bidder1 || r.Transfers[0].Amount.Int64() != 120 {
		t.Fatalf("expected outbid refund to bidder1, got %+v", r.Transfers)
	}
	if got := h.balance(t, h.bidder1); got != 500 {
		t.Fatalf("bidder1 not refunded: %d", got)
	}
	if got := h.balance(t, vault); got != 200 {
		t.Fatalf("vault should hold winning bid, got %d", got)
	}

	h.now += 3601
	closed, err := h.exec.Close(ctx, Close{AuctionID: id, Caller: h.bidder1})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Auction.Status != auction.StatusEnded {
		t.Fatalf("expected Ended, got %s", closed.Auction.Status)
	}

	settled, err := h.exec.ReleaseFunds(ctx, ReleaseFunds{AuctionID: id, Caller: h.seller})
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if settled.Auction.Settlement.Fee.Int64() != 5 || settled.Auction.Settlement.SellerAmount.Int64() != 195 {
		t.Fatalf("unexpected settlement %+v", settled.Auction.Settlement)
	}
	if got := h.balance(t, h.pool); got != 5 {
		t.Fatalf("fee recipient balance %d", got)
	}
	if got := h.balance(t, h.seller); got != 195 {
		t.Fatalf("seller balance %d", got)
	}
	if got := h.balance(t, vault); got != 0 {
		t.Fatalf("vault should be empty, got %d", got)
	}
	total := h.balance(t, h.bidder1) + h.balance(t, h.bidder2) + h.balance(t, h.pool) + h.balance(t, h.seller)
	if total != 1000 {
		t.Fatalf("supply not conserved: %d", total)
	}

	if _, err := h.exec.ReleaseFunds(ctx, ReleaseFunds{AuctionID: id, Caller: h.seller}); !errors.Is(err, auction.ErrAlreadySettled) {
		t.Fatalf("expected ErrAlreadySettled, got %v", err)
	}
	want := []string{CommandGenesis, CommandCreateAuction, CommandPlaceBid, CommandPlaceBid, CommandClose, CommandReleaseFunds}
	got := h.journal.commands()
	if len(got) != len(want) {
		t.Fatalf("journal mismatch: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("journal[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	completed, err := h.exec.ListCompleted(0, 0)
	if err != nil || len(completed.Auctions) != 1 {
		t.Fatalf("expected one completed auction, got %+v (%v)", completed, err)
	}
}

func TestExecutorReserveNotMetCommitsRefund(t *testing.T) {
	h := newHarness(t, storage.NewMemDB(), 250, false)
	ctx := context.Background()
	reserveNotMet := map[string]string{"outcome": "reserve_not_met"}
	before := counterValue(t, "phx_auction_settlements_total", reserveNotMet)
	id := h.create(t, big.NewInt(150))
	h.bid(t, id, h.bidder1, 120)
	h.now += 3601
	if _, err := h.exec.Close(ctx, Close{AuctionID: id, Caller: h.seller}); err != nil {
		t.Fatalf("close: %v", err)
	}
	r, err := h.exec.ReleaseFunds(ctx, ReleaseFunds{AuctionID: id, Caller: h.admin})
	if !errors.Is(err, auction.ErrReserveNotMet) {
		t.Fatalf("expected ErrReserveNotMet, got %v", err)
	}
	if r == nil || !r.Committed || r.Code != "RESERVE_NOT_MET" {
		t.Fatalf("expected committed receipt, got %+v", r)
	}
	if got := h.balance(t, h.bidder1); got != 500 {
		t.Fatalf("bidder1 should be whole again, got %d", got)
	}
	stored, err := h.exec.Auction(id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if stored.Status != auction.StatusSettled || stored.Settlement.Refund.Int64() != 120 {
		t.Fatalf("unexpected stored auction %+v", stored)
	}
	after := counterValue(t, "phx_auction_settlements_total", reserveNotMet)
	if after-before != 1 {
		t.Fatalf("expected reserve_not_met settlement metric to increment")
	}
}

func TestExecutorRejectedCommandLeavesNoTrace(t *testing.T) {
	h := newHarness(t, storage.NewMemDB(), 250, false)
	ctx := context.Background()
	id := h.create(t, nil)
	h.downstream.Reset()
	journaled := len(h.journal.commands())

	r, err := h.exec.PlaceBid(ctx, PlaceBid{AuctionID: id, Bidder: h.bidder1, Amount: big.NewInt(600)})
	if err == nil || Code(err) != "INSUFFICIENT_BALANCE" {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if r.Committed || r.Auction != nil || len(r.Events) != 0 {
		t.Fatalf("rejected receipt should be empty, got %+v", r)
	}
	stored, err := h.exec.Auction(id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(stored.Bids) != 0 {
		t.Fatalf("bid should have been discarded")
	}
	if got := h.balance(t, h.bidder1); got != 500 {
		t.Fatalf("balance changed on rejection: %d", got)
	}
	if len(h.downstream.Drain()) != 0 {
		t.Fatalf("events of rejected command must not be published")
	}
	if len(h.journal.commands()) != journaled {
		t.Fatalf("rejected command must not be journaled")
	}

	if _, err := h.exec.PlaceBid(ctx, PlaceBid{AuctionID: id, Bidder: h.bidder1, Amount: big.NewInt(50)}); !errors.Is(err, auction.ErrBidTooLow) {
		t.Fatalf("expected ErrBidTooLow, got %v", err)
	}
	if _, err := h.exec.PlaceBid(ctx, PlaceBid{AuctionID: 99, Bidder: h.bidder1, Amount: big.NewInt(150)}); !errors.Is(err, auction.ErrAuctionNotFound) {
		t.Fatalf("expected ErrAuctionNotFound, got %v", err)
	}
}

func TestExecutorExpiredBidCommitsEndedOnly(t *testing.T) {
	h := newHarness(t, storage.NewMemDB(), 250, false)
	id := h.create(t, nil)
	h.now += 3601
	r, err := h.exec.PlaceBid(context.Background(), PlaceBid{AuctionID: id, Bidder: h.bidder1, Amount: big.NewInt(150)})
	if !errors.Is(err, auction.ErrAuctionEnded) {
		t.Fatalf("expected ErrAuctionEnded, got %v", err)
	}
	if !r.Committed || len(r.Events) != 1 || r.Events[0].Type != auction.EventTypeAuctionEnded {
		t.Fatalf("expected committed Ended flip, got %+v", r)
	}
	if got := h.balance(t, h.bidder1); got != 500 {
		t.Fatalf("bidder must not be charged, got %d", got)
	}
	stored, err := h.exec.Auction(id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if stored.Status != auction.StatusEnded || len(stored.Bids) != 0 {
		t.Fatalf("expected Ended without bids, got %+v", stored)
	}
	settled, err := h.exec.ReleaseFunds(context.Background(), ReleaseFunds{AuctionID: id, Caller: h.seller})
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if len(settled.Transfers) != 0 || settled.Auction.Status != auction.StatusSettled {
		t.Fatalf("expected empty settlement, got %+v", settled)
	}
}

func TestExecutorBuyNowRefundsExcess(t *testing.T) {
	h := newHarness(t, storage.NewMemDB(), 100, false)
	ctx := context.Background()
	id := h.create(t, nil)
	h.bid(t, id, h.bidder1, 150)
	r, err := h.exec.BuyNow(ctx, BuyNow{AuctionID: id, Buyer: h.bidder2, Amount: big.NewInt(450)})
	if err != nil {
		t.Fatalf("buy now: %v", err)
	}
	if r.Auction.Status != auction.StatusSold || len(r.Transfers) != 2 {
		t.Fatalf("unexpected buy-now receipt %+v", r)
	}
	if got := h.balance(t, h.bidder1); got != 500 {
		t.Fatalf("outbid bidder not refunded: %d", got)
	}
	if got := h.balance(t, h.bidder2); got != 100 {
		t.Fatalf("buyer should pay exactly 400, balance %d", got)
	}
	if _, err := h.exec.ReleaseFunds(ctx, ReleaseFunds{AuctionID: id, Caller: h.bidder2}); err != nil {
		t.Fatalf("release by winner: %v", err)
	}
	if got := h.balance(t, h.seller); got != 396 {
		t.Fatalf("seller payout %d", got)
	}
	if got := h.balance(t, h.pool); got != 4 {
		t.Fatalf("fee %d", got)
	}
}

func TestExecutorSelfRaiseEscrowsDifference(t *testing.T) {
	h := newHarness(t, storage.NewMemDB(), 0, false)
	id := h.create(t, nil)
	h.bid(t, id, h.bidder1, 100)
	r := h.bid(t, id, h.bidder1, 200)
	if len(r.Transfers) != 0 {
		t.Fatalf("raise must not refund, got %+v", r.Transfers)
	}
	if got := h.balance(t, h.bidder1); got != 300 {
		t.Fatalf("bidder should hold 200 in escrow, balance %d", got)
	}
	if got := h.balance(t, h.exec.Vault()); got != 200 {
		t.Fatalf("vault must hold exactly the highest bid, got %d", got)
	}

	r, err := h.exec.BuyNow(context.Background(), BuyNow{AuctionID: id, Buyer: h.bidder1, Amount: big.NewInt(400)})
	if err != nil {
		t.Fatalf("buy now: %v", err)
	}
	if len(r.Transfers) != 0 {
		t.Fatalf("unexpected transfers %+v", r.Transfers)
	}
	if got := h.balance(t, h.bidder1); got != 100 {
		t.Fatalf("buyer should pay exactly 400 in total, balance %d", got)
	}
	if got := h.balance(t, h.exec.Vault()); got != 400 {
		t.Fatalf("vault must hold the price, got %d", got)
	}
}

func TestExecutorKYCFlow(t *testing.T) {
	h := newHarness(t, storage.NewMemDB(), 250, true)
	ctx := context.Background()
	denials := map[string]string{"command": CommandPlaceBid, "code": "BLACKLISTED"}
	before := counterValue(t, "phx_auction_rejections_total", denials)
	gateDenials := map[string]string{"reason": "BLACKLISTED"}
	gateBefore := counterValue(t, "phx_kyc_denials_total", gateDenials)

	if _, err := h.exec.CreateAuction(ctx, CreateAuction{Seller: h.seller, Item: auction.Item{ItemID: "coin"}, StartingPrice: big.NewInt(1), Duration: 60}); !errors.Is(err, kyc.ErrKYCRequired) {
		t.Fatalf("expected ErrKYCRequired, got %v", err)
	}
	if _, err := h.exec.VerifyUser(ctx, VerifyUser{Admin: h.bidder1, Address: h.seller, Level: 1}); !errors.Is(err, kyc.ErrUnauthorized) {
		t.Fatalf("expected non-admin verify to fail, got %v", err)
	}
	for _, who := range [][20]byte{h.seller, h.bidder1} {
		r, err := h.exec.VerifyUser(ctx, VerifyUser{Admin: h.admin, Address: who, Level: 1})
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if r.Record == nil || !r.Record.Verified {
			t.Fatalf("expected verified record, got %+v", r.Record)
		}
	}
	ok, err := h.exec.IsVerified(h.bidder1)
	if err != nil || !ok {
		t.Fatalf("expected bidder1 verified: %v", err)
	}
	id := h.create(t, nil)
	h.bid(t, id, h.bidder1, 120)

	if _, err := h.exec.Blacklist(ctx, Blacklist{Admin: h.admin, Address: h.bidder1}); err != nil {
		t.Fatalf("blacklist: %v", err)
	}
	if _, err := h.exec.PlaceBid(ctx, PlaceBid{AuctionID: id, Bidder: h.bidder1, Amount: big.NewInt(130)}); !errors.Is(err, kyc.ErrBlacklisted) {
		t.Fatalf("expected ErrBlacklisted, got %v", err)
	}
	if got := counterValue(t, "phx_auction_rejections_total", denials) - before; got != 1 {
		t.Fatalf("expected one blacklisted rejection, got %v", got)
	}
	if got := counterValue(t, "phx_kyc_denials_total", gateDenials) - gateBefore; got != 1 {
		t.Fatalf("expected one gate denial, got %v", got)
	}
	record, blacklisted, err := h.exec.KYCRecord(h.bidder1)
	if err != nil || record == nil || !blacklisted {
		t.Fatalf("expected record plus blacklist flag, got %+v %v %v", record, blacklisted, err)
	}
	if _, err := h.exec.RevokeVerification(ctx, RevokeVerification{Admin: h.admin, Address: h.seller}); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if ok, _ := h.exec.IsVerified(h.seller); ok {
		t.Fatalf("revoked seller still verified")
	}
}

func TestExecutorPauseAndConfig(t *testing.T) {
	h := newHarness(t, storage.NewMemDB(), 250, false)
	ctx := context.Background()
	id := h.create(t, nil)
	paused := true
	r, err := h.exec.UpdateConfig(ctx, UpdateConfig{Caller: h.admin, Update: auction.ConfigUpdate{Paused: &paused}})
	if err != nil || !r.Config.Paused {
		t.Fatalf("pause: %+v %v", r, err)
	}
	if _, err := h.exec.PlaceBid(ctx, PlaceBid{AuctionID: id, Bidder: h.bidder1, Amount: big.NewInt(150)}); Code(err) != "MODULE_PAUSED" {
		t.Fatalf("expected MODULE_PAUSED, got %v", err)
	}
	if _, err := h.exec.UpdateConfig(ctx, UpdateConfig{Caller: h.seller, Update: auction.ConfigUpdate{Paused: new(bool)}}); !errors.Is(err, auction.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := h.exec.UpdateConfig(ctx, UpdateConfig{Caller: h.admin, Update: auction.ConfigUpdate{Paused: new(bool)}}); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	h.bid(t, id, h.bidder1, 150)
}

func TestExecutorGenesisOnce(t *testing.T) {
	h := newHarness(t, storage.NewMemDB(), 250, false)
	ok, err := h.exec.Initialized()
	if err != nil || !ok {
		t.Fatalf("expected initialised executor: %v", err)
	}
	_, err = h.exec.ApplyGenesis(context.Background(), &Genesis{Config: &auction.Config{Admin: h.admin, FeeRecipient: h.pool, Denom: "PHX"}})
	if !errors.Is(err, auction.ErrConfigExists) {
		t.Fatalf("expected ErrConfigExists, got %v", err)
	}
	if got := h.balance(t, h.bidder1); got != 500 {
		t.Fatalf("second genesis must not mint, balance %d", got)
	}
}

func TestExecutorCancelAuction(t *testing.T) {
	h := newHarness(t, storage.NewMemDB(), 250, false)
	ctx := context.Background()
	id := h.create(t, nil)
	if _, err := h.exec.CancelAuction(ctx, CancelAuction{AuctionID: id, Caller: h.bidder1}); !errors.Is(err, auction.ErrNotCreator) {
		t.Fatalf("expected ErrNotCreator, got %v", err)
	}
	r, err := h.exec.CancelAuction(ctx, CancelAuction{AuctionID: id, Caller: h.seller})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if r.Auction.Status != auction.StatusCancelled {
		t.Fatalf("expected Cancelled, got %s", r.Auction.Status)
	}
	status := auction.StatusCancelled
	page, err := h.exec.ListAuctions(&status, 0, 10)
	if err != nil || len(page.Auctions) != 1 {
		t.Fatalf("expected one cancelled auction: %+v %v", page, err)
	}
}

func TestExecutorStatePersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	db, err := storage.NewLevelDB(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	h := newHarness(t, db, 250, false)
	id := h.create(t, nil)
	h.bid(t, id, h.bidder1, 150)
	db.Close()

	reopened, err := storage.NewLevelDB(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	exec := NewExecutor(phxstate.NewManager(reopened), nil)
	a, err := exec.Auction(id)
	if err != nil {
		t.Fatalf("load after restart: %v", err)
	}
	if len(a.Bids) != 1 || a.Bids[0].Amount.Int64() != 150 {
		t.Fatalf("bid lost across restart: %+v", a.Bids)
	}
	bal, err := exec.Balance(exec.Vault(), "PHX")
	if err != nil || bal.Int64() != 150 {
		t.Fatalf("vault balance after restart: %v %v", bal, err)
	}
}
