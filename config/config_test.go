package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"phoenixescrow/crypto"
)

func testAddress(fill byte) string {
	var raw [20]byte
	for i := range raw {
		raw[i] = fill
	}
	return crypto.FromRaw(raw).String()
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != "127.0.0.1:8645" || cfg.Genesis.Denom != "PHX" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.AuditDBPath != filepath.Join("./phx-data", "audit.db") {
		t.Fatalf("audit db default %q", cfg.AuditDBPath)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not written: %v", err)
	}
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.RPC.RateLimitBurst != cfg.RPC.RateLimitBurst {
		t.Fatalf("reload changed values")
	}
}

func TestLoadParsesGenesis(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	admin, pool, bidder := testAddress(0xA0), testAddress(0xB0), testAddress(0x21)
	contents := fmt.Sprintf(`RPCAddress = "0.0.0.0:9000"
DataDir = "./data"

[logging]
Level = "debug"

[rpc]
RateLimitPerSecond = 5.5
RateLimitBurst = 10

[genesis]
Admin = "%s"
FeeRecipient = "%s"
FeeBps = 300
Denom = "phx"
RequireKYC = true

[[genesis.Allocations]]
Address = "%s"
Amount = "1000"
`, admin, pool, bidder)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPC.RateLimitPerSecond != 5.5 || cfg.RPC.RateLimitBurst != 10 {
		t.Fatalf("rpc section not decoded: %+v", cfg.RPC)
	}
	genesis, err := cfg.Genesis.Build()
	if err != nil {
		t.Fatalf("build genesis: %v", err)
	}
	if genesis.Config.FeeBps != 300 || !genesis.Config.RequireKYC {
		t.Fatalf("unexpected genesis config %+v", genesis.Config)
	}
	if len(genesis.Allocations) != 1 || genesis.Allocations[0].Amount.Int64() != 1000 {
		t.Fatalf("unexpected allocations %+v", genesis.Allocations)
	}
	if crypto.FromRaw(genesis.Allocations[0].Address).String() != bidder {
		t.Fatalf("allocation address mismatch")
	}
}

func TestLoadRejectsUnknownFieldsAndBadValues(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"unknown":   "RPCAddress = \"x\"\nDataDir = \"d\"\nBogus = 1\n",
		"fee":       fmt.Sprintf("RPCAddress = \"x\"\nDataDir = \"d\"\n[genesis]\nAdmin = %q\nFeeBps = 10001\nDenom = \"PHX\"\n", testAddress(1)),
		"admin":     "RPCAddress = \"x\"\nDataDir = \"d\"\n[genesis]\nAdmin = \"phx1qqqq\"\nDenom = \"PHX\"\n",
		"log level": "RPCAddress = \"x\"\nDataDir = \"d\"\n[logging]\nLevel = \"loud\"\n",
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(name, " ", "_")+".toml")
			if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Fatalf("expected load to fail")
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		"PHX_RPC_ADDRESS":    "0.0.0.0:1234",
		"PHX_LOG_LEVEL":      "warn",
		"PHX_RPC_RATE_LIMIT": "2.5",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.RPCAddress != "0.0.0.0:1234" || cfg.Logging.Level != "warn" || cfg.RPC.RateLimitPerSecond != 2.5 {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	env["PHX_RPC_RATE_LIMIT"] = "fast"
	if err := cfg.applyEnv(lookup); err == nil {
		t.Fatalf("expected invalid rate limit to fail")
	}
}

func TestJWTSecret(t *testing.T) {
	cfg := Default()
	cfg.RPC.JWTSecretEnv = "PHX_TEST_JWT_SECRET"
	t.Setenv("PHX_TEST_JWT_SECRET", "")
	if _, err := cfg.JWTSecret(); err == nil {
		t.Fatalf("expected missing secret to fail")
	}
	t.Setenv("PHX_TEST_JWT_SECRET", " s3cret ")
	secret, err := cfg.JWTSecret()
	if err != nil || string(secret) != "s3cret" {
		t.Fatalf("unexpected secret %q (%v)", secret, err)
	}
}

func TestGenesisBuildRequiresAdmin(t *testing.T) {
	if _, err := Default().Genesis.Build(); err == nil {
		t.Fatalf("expected missing admin to fail")
	}
}

func TestLoadRoster(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.yaml")
	contents := fmt.Sprintf(`verify:
  - address: " %s "
    level: 2
    expires_in: 3600
blacklist:
  - %s
`, testAddress(0x21), testAddress(0x66))
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	roster, err := LoadRoster(path)
	if err != nil {
		t.Fatalf("load roster: %v", err)
	}
	if len(roster.Verify) != 1 || roster.Verify[0].Level != 2 || roster.Verify[0].ExpiresIn != 3600 {
		t.Fatalf("unexpected roster %+v", roster)
	}
	if roster.Verify[0].Address != testAddress(0x21) {
		t.Fatalf("address not trimmed: %q", roster.Verify[0].Address)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("verify:\n  - address: phx1nope\n    level: 1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadRoster(bad); err == nil {
		t.Fatalf("expected invalid address to fail")
	}
}
