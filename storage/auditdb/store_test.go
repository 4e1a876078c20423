package auditdb

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"phoenixescrow/core"
	"phoenixescrow/core/types"
	"phoenixescrow/crypto"
	"phoenixescrow/native/auction"
)

func fill(b byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = b
	}
	return out
}

func TestAppendAndHistory(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	bidder := fill(0x21)
	require.NoError(t, store.Append(ctx, &core.Receipt{
		Command:   core.CommandPlaceBid,
		Caller:    bidder,
		AuctionID: 7,
		Timestamp: 1_700_000_000,
		Committed: true,
		Events: []*types.Event{
			{Type: auction.EventTypeBidPlaced, Attributes: map[string]string{"auctionId": "7", "amount": "120"}},
		},
	}))
	require.NoError(t, store.Append(ctx, &core.Receipt{
		Command:   core.CommandPlaceBid,
		Caller:    fill(0x22),
		AuctionID: 7,
		Timestamp: 1_700_000_010,
		Committed: true,
		Transfers: []auction.Transfer{
			{Recipient: bidder, Denom: "PHX", Amount: big.NewInt(120), Reason: auction.ReasonOutbidRefund},
		},
	}))
	require.NoError(t, store.Append(ctx, &core.Receipt{Command: core.CommandCreateAuction, AuctionID: 8, Caller: fill(0x10)}))

	history, err := store.AuctionHistory(ctx, 7)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, crypto.FromRaw(bidder).String(), history[0].Caller)
	require.Len(t, history[0].Events, 1)
	require.Equal(t, "120", history[0].Events[0].Attributes["amount"])
	require.Len(t, history[1].Transfers, 1)
	require.Equal(t, Transfer{
		Recipient: crypto.FromRaw(bidder).String(),
		Denom:     "PHX",
		Amount:    "120",
		Reason:    auction.ReasonOutbidRefund,
	}, history[1].Transfers[0])
	require.Less(t, history[0].Sequence, history[1].Sequence)

	empty, err := store.AuctionHistory(ctx, 99)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestJournalPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Append(context.Background(), &core.Receipt{Command: core.CommandClose, AuctionID: 3, Caller: fill(0x10)}))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	history, err := reopened.AuctionHistory(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, core.CommandClose, history[0].Command)
}
