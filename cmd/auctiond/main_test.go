package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"path/filepath"
	"testing"

	"phoenixescrow/config"
	"phoenixescrow/crypto"
)

func testAddress(b byte) crypto.Address {
	var raw [20]byte
	for i := range raw {
		raw[i] = b
	}
	return crypto.FromRaw(raw)
}

func TestOpenNodeAppliesGenesisOnce(t *testing.T) {
	dir := t.TempDir()
	admin := testAddress(0xA1)
	holder := testAddress(0x42)
	cfg := config.Default()
	cfg.DataDir = dir
	cfg.AuditDBPath = filepath.Join(dir, "audit.db")
	cfg.Genesis.Admin = admin.String()
	cfg.Genesis.Allocations = []config.Allocation{{Address: holder.String(), Amount: "1000"}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	n, err := openNode(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("openNode: %v", err)
	}
	balance, err := n.executor.Balance(holder.Raw(), "")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.String() != "1000" {
		t.Fatalf("unexpected genesis balance: %s", balance)
	}
	n.Close()

	// A restart must not mint the allocations a second time.
	n, err = openNode(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer n.Close()
	balance, err = n.executor.Balance(holder.Raw(), "")
	if err != nil {
		t.Fatalf("balance after reopen: %v", err)
	}
	if balance.String() != "1000" {
		t.Fatalf("allocation applied twice: %s", balance)
	}
	got, err := n.executor.Config()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if got.Admin != admin.Raw() {
		t.Fatalf("unexpected admin %x", got.Admin)
	}
}

func TestOpenNodeWithoutGenesisStaysUninitialised(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dir
	cfg.AuditDBPath = filepath.Join(dir, "audit.db")

	n, err := openNode(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("openNode: %v", err)
	}
	defer n.Close()
	ok, err := n.executor.Initialized()
	if err != nil {
		t.Fatalf("initialized: %v", err)
	}
	if ok {
		t.Fatalf("module should not be initialised without a genesis admin")
	}
}

func TestLoggingOptionsEnableRotationOnlyWithFile(t *testing.T) {
	opts := loggingOptions(config.Logging{Level: "debug"})
	if opts.File != nil {
		t.Fatalf("rotation should be disabled without a file")
	}
	if opts.Level != slog.LevelDebug {
		t.Fatalf("unexpected level %v", opts.Level)
	}
	opts = loggingOptions(config.Logging{Level: "info", File: "/tmp/auctiond.log", MaxSizeMB: 10})
	if opts.File == nil || opts.File.MaxSizeMB != 10 {
		t.Fatalf("rotation options not propagated: %+v", opts.File)
	}
}

func TestAuthAttrsMaskSecret(t *testing.T) {
	cfg := config.Default()
	cfg.RPC.JWTIssuer = "auctiond"
	var buf bytes.Buffer
	slog.New(slog.NewTextHandler(&buf, nil)).Info("rpc auth configured", authAttrs(cfg, []byte("hunter2-signing-key"))...)
	out := buf.String()
	if strings.Contains(out, "hunter2-signing-key") {
		t.Fatalf("secret leaked into log: %s", out)
	}
	if !strings.Contains(out, "jwt_secret=[REDACTED]") || !strings.Contains(out, "secret_env="+config.DefaultJWTSecretEnv) {
		t.Fatalf("unexpected auth log line: %s", out)
	}
}
