package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"phoenixescrow/crypto"
)

// RosterEntry is one verification to record.
type RosterEntry struct {
	Address string `yaml:"address"`
	Level   uint32 `yaml:"level"`
	// ExpiresIn is the validity window in seconds. Zero never expires.
	ExpiresIn uint64 `yaml:"expires_in"`
}

// Roster is a bulk KYC onboarding file.
type Roster struct {
	Verify    []RosterEntry `yaml:"verify"`
	Blacklist []string      `yaml:"blacklist"`
}

// LoadRoster reads and validates a YAML roster.
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var roster Roster
	if err := yaml.Unmarshal(data, &roster); err != nil {
		return nil, fmt.Errorf("roster %s: %w", path, err)
	}
	if err := roster.Validate(); err != nil {
		return nil, fmt.Errorf("roster %s: %w", path, err)
	}
	return &roster, nil
}

// Validate checks every address and level in the roster.
func (r *Roster) Validate() error {
	for i := range r.Verify {
		entry := &r.Verify[i]
		entry.Address = strings.TrimSpace(entry.Address)
		if _, err := crypto.DecodeAddress(entry.Address); err != nil {
			return fmt.Errorf("verify[%d]: %w", i, err)
		}
		if entry.Level == 0 {
			return fmt.Errorf("verify[%d]: level must be positive", i)
		}
	}
	for i, addr := range r.Blacklist {
		r.Blacklist[i] = strings.TrimSpace(addr)
		if _, err := crypto.DecodeAddress(r.Blacklist[i]); err != nil {
			return fmt.Errorf("blacklist[%d]: %w", i, err)
		}
	}
	return nil
}
