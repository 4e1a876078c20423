package bank

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

var (
	// ErrInsufficientBalance is returned when a debit exceeds the balance.
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	// ErrInvalidAmount is returned for negative or oversized amounts.
	ErrInvalidAmount = errors.New("bank: invalid amount")
	// ErrBalanceOverflow is returned when a credit would exceed 256 bits.
	ErrBalanceOverflow = errors.New("bank: balance overflow")

	errNilState = errors.New("bank: state not configured")

	balancePrefix = []byte("bank/balance/")
)

// storage abstracts the subset of the state transaction the ledger needs.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Payout is one outgoing transfer from the module vault.
type Payout struct {
	Recipient [20]byte
	Denom     string
	Amount    *big.Int
	Reason    string
}

// ModuleAddress derives the deterministic account that holds a module's
// escrowed funds.
func ModuleAddress(module string) [20]byte {
	var addr [20]byte
	digest := ethcrypto.Keccak256([]byte("module/" + strings.ToLower(strings.TrimSpace(module))))
	copy(addr[:], digest[12:])
	return addr
}

// NormalizeDenom canonicalises denomination identifiers.
func NormalizeDenom(denom string) string {
	return strings.ToUpper(strings.TrimSpace(denom))
}

func balanceKey(addr [20]byte, denom string) []byte {
	return []byte(fmt.Sprintf("%s%x/%s", balancePrefix, addr, NormalizeDenom(denom)))
}

// Ledger keeps per-denomination balances and moves value between accounts.
type Ledger struct {
	state storage
	vault [20]byte
}

// NewLedger constructs a ledger whose escrow vault is the given account.
func NewLedger(vault [20]byte) *Ledger {
	return &Ledger{vault: vault}
}

// SetState configures the state backend used by the ledger.
func (l *Ledger) SetState(state storage) { l.state = state }

// Vault returns the escrow account.
func (l *Ledger) Vault() [20]byte { return l.vault }

// Balance returns the balance of addr in denom. Unknown accounts hold zero.
func (l *Ledger) Balance(addr [20]byte, denom string) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	balance := new(big.Int)
	ok, err := l.state.KVGet(balanceKey(addr, denom), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

func (l *Ledger) setBalance(addr [20]byte, denom string, amount *uint256.Int) error {
	return l.state.KVPut(balanceKey(addr, denom), amount.ToBig())
}

func toUint(amount *big.Int) (*uint256.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	v, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrInvalidAmount
	}
	return v, nil
}

// Mint credits amount to addr out of thin air. It is reserved for genesis
// allocations.
func (l *Ledger) Mint(to [20]byte, denom string, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	delta, err := toUint(amount)
	if err != nil {
		return err
	}
	return l.credit(to, denom, delta)
}

func (l *Ledger) credit(to [20]byte, denom string, delta *uint256.Int) error {
	current, err := l.Balance(to, denom)
	if err != nil {
		return err
	}
	cur, _ := uint256.FromBig(current)
	next, overflow := new(uint256.Int).AddOverflow(cur, delta)
	if overflow {
		return ErrBalanceOverflow
	}
	return l.setBalance(to, denom, next)
}

func (l *Ledger) debit(from [20]byte, denom string, delta *uint256.Int) error {
	current, err := l.Balance(from, denom)
	if err != nil {
		return err
	}
	cur, _ := uint256.FromBig(current)
	if cur.Lt(delta) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, cur.Dec(), delta.Dec())
	}
	return l.setBalance(from, denom, new(uint256.Int).Sub(cur, delta))
}

// Transfer moves amount of denom between two accounts. Zero transfers are
// no-ops.
func (l *Ledger) Transfer(from, to [20]byte, denom string, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	delta, err := toUint(amount)
	if err != nil {
		return err
	}
	if delta.IsZero() || from == to {
		return nil
	}
	if err := l.debit(from, denom, delta); err != nil {
		return err
	}
	return l.credit(to, denom, delta)
}

// Escrow moves funds attached to a command from the caller into the vault.
func (l *Ledger) Escrow(from [20]byte, denom string, amount *big.Int) error {
	return l.Transfer(from, l.vault, denom, amount)
}

// Execute pays every payout out of the vault. The first failure aborts the
// batch; the caller discards the surrounding transaction.
func (l *Ledger) Execute(payouts []Payout) error {
	for i, p := range payouts {
		if err := l.Transfer(l.vault, p.Recipient, p.Denom, p.Amount); err != nil {
			return fmt.Errorf("bank: payout %d (%s): %w", i, p.Reason, err)
		}
	}
	return nil
}
