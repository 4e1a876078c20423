package config

import (
	"fmt"

	"phoenixescrow/core"
	"phoenixescrow/native/auction"
)

// Build converts the genesis section into the executor's genesis command.
func (g Genesis) Build() (*core.Genesis, error) {
	if !g.Configured() {
		return nil, fmt.Errorf("genesis: Admin required to initialise a fresh data dir")
	}
	parsed, err := g.parse()
	if err != nil {
		return nil, err
	}
	out := &core.Genesis{
		Config: &auction.Config{
			Admin:        parsed.admin,
			FeeBps:       g.FeeBps,
			FeeRecipient: parsed.feeRecipient,
			Denom:        g.Denom,
			RequireKYC:   g.RequireKYC,
			MinKYCLevel:  g.MinKYCLevel,
		},
	}
	for _, alloc := range parsed.allocations {
		out.Allocations = append(out.Allocations, core.Allocation{Address: alloc.address, Amount: alloc.amount})
	}
	return out, nil
}
