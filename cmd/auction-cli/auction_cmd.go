package main

import (
	"fmt"
	"io"
	"strings"
)

func runAuctionCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, auctionUsage())
		return 1
	}
	switch args[0] {
	case "create":
		return runAuctionCreate(args[1:], stdout, stderr)
	case "bid":
		return runAuctionAmount("auction bid", "auction_placeBid", args[1:], stdout, stderr)
	case "buy-now":
		return runAuctionAmount("auction buy-now", "auction_buyNow", args[1:], stdout, stderr)
	case "close":
		return runAuctionByID("auction close", "auction_close", true, args[1:], stdout, stderr)
	case "cancel":
		return runAuctionByID("auction cancel", "auction_cancel", true, args[1:], stdout, stderr)
	case "release":
		return runAuctionByID("auction release", "auction_releaseFunds", true, args[1:], stdout, stderr)
	case "get":
		return runAuctionByID("auction get", "auction_get", false, args[1:], stdout, stderr)
	case "history":
		return runAuctionByID("auction history", "auction_history", false, args[1:], stdout, stderr)
	case "list":
		return runAuctionList("auction list", "auction_list", true, args[1:], stdout, stderr)
	case "completed":
		return runAuctionList("auction completed", "auction_listCompleted", false, args[1:], stdout, stderr)
	case "config":
		if len(args) > 1 {
			fmt.Fprintln(stderr, "Error: unexpected positional arguments")
			return 1
		}
		return invoke(stdout, stderr, "auction_config", nil, false)
	case "set-config":
		return runAuctionSetConfig(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown auction subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, auctionUsage())
		return 1
	}
}

func runAuctionCreate(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("auction create", stderr)
	var itemID, description, metal, form, starting, reserve, buyNow string
	var weight, duration uint64
	fs.StringVar(&itemID, "item", "", "item identifier")
	fs.StringVar(&description, "description", "", "item description")
	fs.StringVar(&metal, "metal", "", "metal type (gold, silver, platinum, palladium)")
	fs.StringVar(&form, "form", "", "product form (bar, coin, round)")
	fs.Uint64Var(&weight, "weight", 0, "weight in grams")
	fs.StringVar(&starting, "start", "", "starting price")
	fs.StringVar(&reserve, "reserve", "", "optional reserve price")
	fs.StringVar(&buyNow, "buy-now", "", "optional buy-now price")
	fs.Uint64Var(&duration, "duration", 0, "auction duration in seconds")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		fmt.Fprintln(stderr, "Error: --item is required")
		return 1
	}
	starting = strings.TrimSpace(starting)
	if starting == "" {
		fmt.Fprintln(stderr, "Error: --start is required")
		return 1
	}
	if duration == 0 {
		fmt.Fprintln(stderr, "Error: --duration is required")
		return 1
	}
	params := map[string]interface{}{
		"itemId":        itemID,
		"startingPrice": starting,
		"duration":      duration,
	}
	if d := strings.TrimSpace(description); d != "" {
		params["description"] = d
	}
	if m := strings.TrimSpace(metal); m != "" {
		params["metalType"] = m
	}
	if f := strings.TrimSpace(form); f != "" {
		params["productForm"] = f
	}
	if weight > 0 {
		params["weightGrams"] = weight
	}
	if r := strings.TrimSpace(reserve); r != "" {
		params["reservePrice"] = r
	}
	if b := strings.TrimSpace(buyNow); b != "" {
		params["buyNowPrice"] = b
	}
	return invoke(stdout, stderr, "auction_create", params, true)
}

func runAuctionAmount(name, method string, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet(name, stderr)
	var id uint64
	var amount string
	fs.Uint64Var(&id, "id", 0, "auction identifier")
	fs.StringVar(&amount, "amount", "", "amount to escrow")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if id == 0 {
		fmt.Fprintln(stderr, "Error: --id is required")
		return 1
	}
	amount = strings.TrimSpace(amount)
	if amount == "" {
		fmt.Fprintln(stderr, "Error: --amount is required")
		return 1
	}
	return invoke(stdout, stderr, method, map[string]interface{}{"id": id, "amount": amount}, true)
}

func runAuctionByID(name, method string, auth bool, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet(name, stderr)
	var id uint64
	fs.Uint64Var(&id, "id", 0, "auction identifier")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if id == 0 {
		fmt.Fprintln(stderr, "Error: --id is required")
		return 1
	}
	return invoke(stdout, stderr, method, map[string]interface{}{"id": id}, auth)
}

func runAuctionList(name, method string, withStatus bool, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet(name, stderr)
	var startAfter uint64
	var limit int
	var status string
	fs.Uint64Var(&startAfter, "start-after", 0, "resume after this auction identifier")
	fs.IntVar(&limit, "limit", 0, "page size")
	if withStatus {
		fs.StringVar(&status, "status", "", "filter by status (active, ended, settled, cancelled)")
	}
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if limit < 0 {
		fmt.Fprintln(stderr, "Error: --limit must not be negative")
		return 1
	}
	params := map[string]interface{}{}
	if startAfter > 0 {
		params["startAfter"] = startAfter
	}
	if limit > 0 {
		params["limit"] = limit
	}
	if s := strings.TrimSpace(status); s != "" {
		params["status"] = s
	}
	return invoke(stdout, stderr, method, params, false)
}

func runAuctionSetConfig(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("auction set-config", stderr)
	var admin, feeRecipient string
	var feeBps, minLevel int
	var requireKYC, paused string
	fs.StringVar(&admin, "admin", "", "new admin address")
	fs.StringVar(&feeRecipient, "fee-recipient", "", "new fee recipient address")
	fs.IntVar(&feeBps, "fee-bps", -1, "platform fee in basis points")
	fs.IntVar(&minLevel, "min-kyc-level", -1, "minimum verification level")
	fs.StringVar(&requireKYC, "require-kyc", "", "true or false")
	fs.StringVar(&paused, "paused", "", "true or false")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	params := map[string]interface{}{}
	if a := strings.TrimSpace(admin); a != "" {
		params["admin"] = a
	}
	if r := strings.TrimSpace(feeRecipient); r != "" {
		params["feeRecipient"] = r
	}
	if feeBps >= 0 {
		params["feeBps"] = feeBps
	}
	if minLevel >= 0 {
		params["minKycLevel"] = minLevel
	}
	for flagName, raw := range map[string]string{"requireKyc": requireKYC, "paused": paused} {
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "":
		case "true":
			params[flagName] = true
		case "false":
			params[flagName] = false
		default:
			fmt.Fprintf(stderr, "Error: %s must be true or false\n", flagName)
			return 1
		}
	}
	if len(params) == 0 {
		fmt.Fprintln(stderr, "Error: no configuration changes supplied")
		return 1
	}
	return invoke(stdout, stderr, "auction_updateConfig", params, true)
}

func auctionUsage() string {
	return strings.TrimSpace(`Usage:
  auction-cli auction <command> [flags]

Commands:
  create      Create an auction and list the item
  bid         Escrow a bid on an active auction
  buy-now     Purchase at the buy-now price
  close       Mark an auction ended
  cancel      Cancel an auction that has no bids
  release     Settle an ended auction
  get         Fetch an auction by id
  history     Show the journaled commands for an auction
  list        Page through auctions
  completed   Page through settled auctions
  config      Show the module configuration
  set-config  Update the module configuration (admin only)
`)
}
