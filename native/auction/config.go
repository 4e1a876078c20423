package auction

import (
	"fmt"
	"strings"

	"phoenixescrow/native/common"
	"phoenixescrow/native/fees"
)

var configKey = []byte("auction/config")

// DefaultMinKYCLevel is the verification level gated commands require when
// the config leaves it unset.
const DefaultMinKYCLevel uint32 = 1

// Config is the module-wide settlement configuration.
type Config struct {
	Admin        [20]byte
	FeeBps       uint32
	FeeRecipient [20]byte
	Denom        string
	RequireKYC   bool
	MinKYCLevel  uint32
	Paused       bool
}

// Clone returns a copy of the config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Validate checks field ranges and normalises the denomination.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("auction: nil config")
	}
	if c.Admin == ([20]byte{}) {
		return fmt.Errorf("auction: admin required")
	}
	if c.FeeRecipient == ([20]byte{}) {
		return fmt.Errorf("auction: fee recipient required")
	}
	if err := fees.ValidateBps(c.FeeBps); err != nil {
		return err
	}
	c.Denom = strings.ToUpper(strings.TrimSpace(c.Denom))
	if c.Denom == "" {
		return fmt.Errorf("auction: denomination required")
	}
	return nil
}

// IsPaused implements common.PauseView for the auction module.
func (c *Config) IsPaused(module string) bool {
	return c != nil && c.Paused && module == common.ModuleAuction
}

// ConfigUpdate carries the admin-adjustable fields. Nil fields are left
// unchanged.
type ConfigUpdate struct {
	Admin        *[20]byte
	FeeBps       *uint32
	FeeRecipient *[20]byte
	RequireKYC   *bool
	MinKYCLevel  *uint32
	Paused       *bool
}

func (u ConfigUpdate) apply(c *Config) {
	if u.Admin != nil {
		c.Admin = *u.Admin
	}
	if u.FeeBps != nil {
		c.FeeBps = *u.FeeBps
	}
	if u.FeeRecipient != nil {
		c.FeeRecipient = *u.FeeRecipient
	}
	if u.RequireKYC != nil {
		c.RequireKYC = *u.RequireKYC
	}
	if u.MinKYCLevel != nil {
		c.MinKYCLevel = *u.MinKYCLevel
	}
	if u.Paused != nil {
		c.Paused = *u.Paused
	}
}

type storedConfig struct {
	Admin        [20]byte
	FeeBps       uint32
	FeeRecipient [20]byte
	Denom        string
	RequireKYC   bool
	MinKYCLevel  uint32
	Paused       bool
}

func loadConfig(st registryState) (*Config, error) {
	if st == nil {
		return nil, errNilState
	}
	var stored storedConfig
	ok, err := st.KVGet(configKey, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConfigNotFound
	}
	cfg := Config(stored)
	return &cfg, nil
}

func storeConfig(st registryState, cfg *Config) error {
	stored := storedConfig(*cfg)
	return st.KVPut(configKey, &stored)
}
