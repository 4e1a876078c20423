package fees

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// MaxBps is the denominator of every basis point rate.
const MaxBps uint32 = 10_000

var (
	// ErrInvalidBps is returned when a rate falls outside [0, MaxBps].
	ErrInvalidBps = errors.New("fees: basis points out of range")
	// ErrInvalidAmount is returned for negative or oversized amounts.
	ErrInvalidAmount = errors.New("fees: invalid amount")
)

var maxAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// MaxAmount returns the largest amount accepted by the settlement math.
func MaxAmount() *big.Int { return new(big.Int).Set(maxAmount) }

// ValidateBps ensures a fee rate is representable.
func ValidateBps(bps uint32) error {
	if bps > MaxBps {
		return fmt.Errorf("%w: %d", ErrInvalidBps, bps)
	}
	return nil
}

// ValidateAmount ensures amount is non-negative and fits in 128 bits.
func ValidateAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 || amount.Cmp(maxAmount) > 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Split divides amount into the fee owed at bps and the remainder. The fee is
// truncated toward zero so fee+net always equals amount.
func Split(amount *big.Int, bps uint32) (fee *big.Int, net *big.Int, err error) {
	if err := ValidateBps(bps); err != nil {
		return nil, nil, err
	}
	if err := ValidateAmount(amount); err != nil {
		return nil, nil, err
	}
	gross, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, nil, ErrInvalidAmount
	}
	feeU, overflow := new(uint256.Int).MulDivOverflow(gross, uint256.NewInt(uint64(bps)), uint256.NewInt(uint64(MaxBps)))
	if overflow {
		return nil, nil, ErrInvalidAmount
	}
	netU := new(uint256.Int).Sub(gross, feeU)
	return feeU.ToBig(), netU.ToBig(), nil
}
