package config

import (
	"fmt"
	"math/big"
	"strings"

	"phoenixescrow/crypto"
	"phoenixescrow/native/fees"
)

// Validate checks ranges and address encodings.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress required")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("config: DataDir required")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging: unknown level %q", cfg.Logging.Level)
	}
	if cfg.RPC.RateLimitPerSecond < 0 || cfg.RPC.RateLimitBurst < 0 {
		return fmt.Errorf("rpc: rate limits must not be negative")
	}
	if cfg.RPC.MaxBodyBytes < 0 {
		return fmt.Errorf("rpc: MaxBodyBytes must not be negative")
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: SampleRatio must be within [0,1]")
	}
	if cfg.Genesis.Configured() {
		if _, err := cfg.Genesis.parse(); err != nil {
			return err
		}
	}
	return nil
}

// Configured reports whether the genesis section names an admin.
func (g Genesis) Configured() bool {
	return strings.TrimSpace(g.Admin) != ""
}

type parsedAllocation struct {
	address [20]byte
	amount  *big.Int
}

type parsedGenesis struct {
	admin        [20]byte
	feeRecipient [20]byte
	allocations  []parsedAllocation
}

func (g Genesis) parse() (*parsedGenesis, error) {
	admin, err := crypto.DecodeAddress(strings.TrimSpace(g.Admin))
	if err != nil {
		return nil, fmt.Errorf("genesis: admin: %w", err)
	}
	recipient := admin
	if strings.TrimSpace(g.FeeRecipient) != "" {
		recipient, err = crypto.DecodeAddress(strings.TrimSpace(g.FeeRecipient))
		if err != nil {
			return nil, fmt.Errorf("genesis: fee recipient: %w", err)
		}
	}
	if err := fees.ValidateBps(g.FeeBps); err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}
	if strings.TrimSpace(g.Denom) == "" {
		return nil, fmt.Errorf("genesis: Denom required")
	}
	out := &parsedGenesis{admin: admin.Raw(), feeRecipient: recipient.Raw()}
	for i, alloc := range g.Allocations {
		addr, err := crypto.DecodeAddress(strings.TrimSpace(alloc.Address))
		if err != nil {
			return nil, fmt.Errorf("genesis: allocation %d: %w", i, err)
		}
		amount, ok := new(big.Int).SetString(strings.TrimSpace(alloc.Amount), 10)
		if !ok || amount.Sign() < 0 {
			return nil, fmt.Errorf("genesis: allocation %d: invalid amount %q", i, alloc.Amount)
		}
		if err := fees.ValidateAmount(amount); err != nil {
			return nil, fmt.Errorf("genesis: allocation %d: %w", i, err)
		}
		out.allocations = append(out.allocations, parsedAllocation{address: addr.Raw(), amount: amount})
	}
	return out, nil
}
