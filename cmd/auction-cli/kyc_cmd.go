package main

import (
	"fmt"
	"io"
	"strings"

	"phoenixescrow/config"
)

func runKYCCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, kycUsage())
		return 1
	}
	switch args[0] {
	case "verify":
		return runKYCVerify(args[1:], stdout, stderr)
	case "revoke":
		return runKYCAddress("kyc revoke", "kyc_revoke", true, args[1:], stdout, stderr)
	case "blacklist":
		return runKYCAddress("kyc blacklist", "kyc_blacklist", true, args[1:], stdout, stderr)
	case "status":
		return runKYCAddress("kyc status", "kyc_isVerified", false, args[1:], stdout, stderr)
	case "record":
		return runKYCAddress("kyc record", "kyc_record", false, args[1:], stdout, stderr)
	case "import":
		return runKYCImport(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown kyc subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, kycUsage())
		return 1
	}
}

func runKYCVerify(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("kyc verify", stderr)
	var addr string
	var level uint
	var expiresIn uint64
	fs.StringVar(&addr, "addr", "", "bech32 address to verify")
	fs.UintVar(&level, "level", 1, "verification level")
	fs.Uint64Var(&expiresIn, "expires-in", 0, "validity window in seconds (0 never expires)")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		fmt.Fprintln(stderr, "Error: --addr is required")
		return 1
	}
	if level == 0 {
		fmt.Fprintln(stderr, "Error: --level must be positive")
		return 1
	}
	params := map[string]interface{}{"address": addr, "level": level}
	if expiresIn > 0 {
		params["expiresIn"] = expiresIn
	}
	return invoke(stdout, stderr, "kyc_verify", params, true)
}

func runKYCAddress(name, method string, auth bool, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet(name, stderr)
	var addr string
	fs.StringVar(&addr, "addr", "", "bech32 address")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		fmt.Fprintln(stderr, "Error: --addr is required")
		return 1
	}
	return invoke(stdout, stderr, method, map[string]interface{}{"address": addr}, auth)
}

// runKYCImport replays a YAML roster as individual admin calls and stops at
// the first failure. Verifying and blacklisting are idempotent, so a fixed
// roster can be replayed in full.
func runKYCImport(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("kyc import", stderr)
	var path string
	fs.StringVar(&path, "file", "", "YAML roster file")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	path = strings.TrimSpace(path)
	if path == "" {
		fmt.Fprintln(stderr, "Error: --file is required")
		return 1
	}
	roster, err := config.LoadRoster(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	for _, entry := range roster.Verify {
		params := map[string]interface{}{"address": entry.Address, "level": entry.Level}
		if entry.ExpiresIn > 0 {
			params["expiresIn"] = entry.ExpiresIn
		}
		if code := importCall(stderr, "kyc_verify", params); code != 0 {
			return code
		}
		fmt.Fprintf(stdout, "verified %s (level %d)\n", entry.Address, entry.Level)
	}
	for _, addr := range roster.Blacklist {
		if code := importCall(stderr, "kyc_blacklist", map[string]interface{}{"address": addr}); code != 0 {
			return code
		}
		fmt.Fprintf(stdout, "blacklisted %s\n", addr)
	}
	return 0
}

func importCall(stderr io.Writer, method string, params map[string]interface{}) int {
	_, rpcErr, err := rpcCall(method, params, true)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		fmt.Fprintf(stderr, "%s %v: ", method, params["address"])
		return handleRPCError(stderr, rpcErr)
	}
	return 0
}

func kycUsage() string {
	return strings.TrimSpace(`Usage:
  auction-cli kyc <command> [flags]

Commands:
  verify     Record a verification (admin only)
  revoke     Revoke a verification (admin only)
  blacklist  Blacklist an address (admin only)
  status     Report whether an address is verified
  record     Show the stored verification record
  import     Apply a YAML roster of verifications and blacklist entries
`)
}
