package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"phoenixescrow/cmd/internal/passphrase"
	"phoenixescrow/config"
	"phoenixescrow/crypto"
	"phoenixescrow/rpc"
)

const keyPassEnv = "PHX_KEY_PASS"

var (
	keyPassphrase = func() (string, error) {
		return passphrase.NewSource(keyPassEnv, "Enter keystore passphrase: ").Get()
	}
	lookupEnv = os.LookupEnv
)

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("keygen", stderr)
	var out string
	fs.StringVar(&out, "out", "phx-key.json", "keystore file to write")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	pass, err := keyPassphrase()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Fprintf(stderr, "Error generating key: %v\n", err)
		return 1
	}
	if err := crypto.SaveToKeystore(out, key, pass); err != nil {
		fmt.Fprintf(stderr, "Error writing keystore: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "address: %s\nkeystore: %s\n", key.PubKey().Address().String(), out)
	return 0
}

// runToken signs a bearer token with the node's shared secret. The subject is
// taken from --addr or from the key in --keystore.
func runToken(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("token", stderr)
	var addr, keystorePath, issuer, audience, secretEnv string
	var ttl time.Duration
	fs.StringVar(&addr, "addr", "", "bech32 address to authenticate as")
	fs.StringVar(&keystorePath, "keystore", "", "keystore holding the caller key")
	fs.StringVar(&issuer, "issuer", "", "token issuer (must match the node's JWTIssuer)")
	fs.StringVar(&audience, "audience", "", "token audience (must match the node's JWTAudience)")
	fs.StringVar(&secretEnv, "secret-env", config.DefaultJWTSecretEnv, "environment variable holding the HS256 secret")
	fs.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	addr = strings.TrimSpace(addr)
	keystorePath = strings.TrimSpace(keystorePath)
	if (addr == "") == (keystorePath == "") {
		fmt.Fprintln(stderr, "Error: exactly one of --addr or --keystore is required")
		return 1
	}
	if ttl <= 0 {
		fmt.Fprintln(stderr, "Error: --ttl must be positive")
		return 1
	}
	secret, ok := lookupEnv(secretEnv)
	if !ok || strings.TrimSpace(secret) == "" {
		fmt.Fprintf(stderr, "Error: %s must hold the RPC signing secret\n", secretEnv)
		return 1
	}

	var subject crypto.Address
	if addr != "" {
		decoded, err := crypto.DecodeAddress(addr)
		if err != nil {
			fmt.Fprintf(stderr, "Error: invalid --addr: %v\n", err)
			return 1
		}
		subject = decoded
	} else {
		pass, err := keyPassphrase()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		key, err := crypto.LoadFromKeystore(keystorePath, pass)
		if err != nil {
			fmt.Fprintf(stderr, "Error loading keystore: %v\n", err)
			return 1
		}
		subject = key.PubKey().Address()
	}

	token, err := rpc.IssueToken([]byte(secret), subject, issuer, audience, ttl)
	if err != nil {
		fmt.Fprintf(stderr, "Error issuing token: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, token)
	return 0
}
