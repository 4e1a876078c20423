package fees

import (
	"errors"
	"math/big"
	"testing"
)

func TestSplitTruncatesFee(t *testing.T) {
	cases := []struct {
		name    string
		amount  int64
		bps     uint32
		wantFee int64
	}{
		{name: "reference example", amount: 200, bps: 110, wantFee: 2},
		{name: "zero rate", amount: 200, bps: 0, wantFee: 0},
		{name: "full rate", amount: 200, bps: MaxBps, wantFee: 200},
		{name: "sub unit fee", amount: 90, bps: 110, wantFee: 0},
		{name: "zero amount", amount: 0, bps: 500, wantFee: 0},
		{name: "odd split", amount: 12345, bps: 333, wantFee: 411},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fee, net, err := Split(big.NewInt(tc.amount), tc.bps)
			if err != nil {
				t.Fatalf("split: %v", err)
			}
			if fee.Int64() != tc.wantFee {
				t.Fatalf("fee: want %d got %s", tc.wantFee, fee)
			}
			if new(big.Int).Add(fee, net).Int64() != tc.amount {
				t.Fatalf("fee %s + net %s != %d", fee, net, tc.amount)
			}
		})
	}
}

func TestSplitConservesAtEveryRate(t *testing.T) {
	amount := new(big.Int).Sub(MaxAmount(), big.NewInt(7))
	for bps := uint32(0); bps <= MaxBps; bps += 97 {
		fee, net, err := Split(amount, bps)
		if err != nil {
			t.Fatalf("bps %d: %v", bps, err)
		}
		if new(big.Int).Add(fee, net).Cmp(amount) != 0 {
			t.Fatalf("bps %d: conservation violated", bps)
		}
	}
}

func TestSplitRejectsInvalidInput(t *testing.T) {
	if _, _, err := Split(big.NewInt(10), MaxBps+1); !errors.Is(err, ErrInvalidBps) {
		t.Fatalf("expected ErrInvalidBps, got %v", err)
	}
	if _, _, err := Split(big.NewInt(-1), 10); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative, got %v", err)
	}
	tooLarge := new(big.Int).Add(MaxAmount(), big.NewInt(1))
	if _, _, err := Split(tooLarge, 10); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for overflow, got %v", err)
	}
}
