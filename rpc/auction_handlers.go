package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"phoenixescrow/core"
	"phoenixescrow/crypto"
	"phoenixescrow/native/auction"
)

type handlerFunc func(ctx context.Context, caller [20]byte, params []json.RawMessage) (interface{}, int, *RPCError)

type method struct {
	auth bool
	fn   handlerFunc
}

func (s *Server) routes() map[string]method {
	routes := map[string]method{
		"auction_create":        {auth: true, fn: s.handleAuctionCreate},
		"auction_placeBid":      {auth: true, fn: s.handleAuctionPlaceBid},
		"auction_buyNow":        {auth: true, fn: s.handleAuctionBuyNow},
		"auction_close":         {auth: true, fn: s.handleAuctionClose},
		"auction_cancel":        {auth: true, fn: s.handleAuctionCancel},
		"auction_releaseFunds":  {auth: true, fn: s.handleAuctionReleaseFunds},
		"auction_updateConfig":  {auth: true, fn: s.handleAuctionUpdateConfig},
		"kyc_verify":            {auth: true, fn: s.handleKYCVerify},
		"kyc_revoke":            {auth: true, fn: s.handleKYCRevoke},
		"kyc_blacklist":         {auth: true, fn: s.handleKYCBlacklist},
		"auction_get":           {fn: s.handleAuctionGet},
		"auction_list":          {fn: s.handleAuctionList},
		"auction_listCompleted": {fn: s.handleAuctionListCompleted},
		"auction_config":        {fn: s.handleAuctionConfig},
		"kyc_isVerified":        {fn: s.handleKYCIsVerified},
		"kyc_record":            {fn: s.handleKYCRecord},
		"bank_balance":          {fn: s.handleBankBalance},
	}
	if s.history != nil {
		routes["auction_history"] = method{fn: s.handleAuctionHistory}
	}
	return routes
}

func invalidParams(err error) (interface{}, int, *RPCError) {
	return nil, http.StatusBadRequest, &RPCError{Code: codeInvalidParams, Message: "invalid_params", Data: err.Error()}
}

// decodeParams expects exactly one parameter object.
func decodeParams(params []json.RawMessage, out interface{}) error {
	if len(params) != 1 {
		return errors.New("exactly one parameter object expected")
	}
	dec := json.NewDecoder(strings.NewReader(string(params[0])))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func parseBech32Address(value string) ([20]byte, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return [20]byte{}, errors.New("address required")
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return [20]byte{}, err
	}
	return addr.Raw(), nil
}

func parseAmount(value string, field string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("%s required", field)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("%s must be a non-negative base-10 integer", field)
	}
	return amount, nil
}

func parseOptionalAmount(value *string, field string) (*big.Int, error) {
	if value == nil {
		return nil, nil
	}
	return parseAmount(*value, field)
}

// commandError maps an executor failure to a JSON-RPC error. Committed
// failures carry the receipt so clients can observe the persisted outcome.
func commandError(receipt *core.Receipt, err error) (interface{}, int, *RPCError) {
	code := core.Code(err)
	data := map[string]interface{}{"code": code, "error": err.Error()}
	if receipt != nil && receipt.Committed {
		data["receipt"] = formatReceipt(receipt)
	}
	status, rpcCode := classify(code)
	return nil, status, &RPCError{Code: rpcCode, Message: code, Data: data}
}

func classify(code string) (int, int) {
	switch code {
	case "AUCTION_NOT_FOUND", "CONFIG_NOT_FOUND", "KYC_RECORD_NOT_FOUND":
		return http.StatusNotFound, codeAuctionNotFound
	case "UNAUTHORIZED", "NOT_CREATOR":
		return http.StatusForbidden, codeAuctionForbidden
	case "KYC_REQUIRED", "KYC_EXPIRED", "INSUFFICIENT_KYC_LEVEL", "BLACKLISTED":
		return http.StatusForbidden, codeAuctionGate
	case "AUCTION_NOT_ACTIVE", "AUCTION_ENDED", "ALREADY_SETTLED", "AUCTION_HAS_BIDS",
		"MODULE_PAUSED", "CONFIG_EXISTS", "BUSY":
		return http.StatusConflict, codeAuctionConflict
	case "BID_TOO_LOW", "RESERVE_NOT_MET", "INSUFFICIENT_FUNDS", "NO_BUY_NOW_PRICE",
		"INVALID_AMOUNT", "INVALID_ITEM", "INVALID_DURATION", "INSUFFICIENT_BALANCE":
		return http.StatusBadRequest, codeAuctionInvalid
	default:
		return http.StatusInternalServerError, codeAuctionInternal
	}
}

func receiptResult(receipt *core.Receipt, err error) (interface{}, int, *RPCError) {
	if err != nil {
		return commandError(receipt, err)
	}
	return formatReceipt(receipt), http.StatusOK, nil
}

type auctionCreateParams struct {
	ItemID        string  `json:"itemId"`
	Description   string  `json:"description,omitempty"`
	MetalType     string  `json:"metalType,omitempty"`
	ProductForm   string  `json:"productForm,omitempty"`
	WeightGrams   uint64  `json:"weightGrams,omitempty"`
	StartingPrice string  `json:"startingPrice"`
	ReservePrice  *string `json:"reservePrice,omitempty"`
	BuyNowPrice   *string `json:"buyNowPrice,omitempty"`
	Duration      uint64  `json:"duration"`
}

type auctionAmountParams struct {
	ID     uint64 `json:"id"`
	Amount string `json:"amount"`
}

type auctionIDParams struct {
	ID uint64 `json:"id"`
}

type auctionListParams struct {
	Status     string `json:"status,omitempty"`
	StartAfter uint64 `json:"startAfter,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

type configUpdateParams struct {
	Admin        *string `json:"admin,omitempty"`
	FeeBps       *uint32 `json:"feeBps,omitempty"`
	FeeRecipient *string `json:"feeRecipient,omitempty"`
	RequireKYC   *bool   `json:"requireKyc,omitempty"`
	MinKYCLevel  *uint32 `json:"minKycLevel,omitempty"`
	Paused       *bool   `json:"paused,omitempty"`
}

type kycVerifyParams struct {
	Address   string `json:"address"`
	Level     uint32 `json:"level"`
	ExpiresIn uint64 `json:"expiresIn,omitempty"`
}

type addressParams struct {
	Address string `json:"address"`
	Denom   string `json:"denom,omitempty"`
}

func (s *Server) handleAuctionCreate(ctx context.Context, caller [20]byte, raw []json.RawMessage) (interface{}, int, *RPCError) {
	var params auctionCreateParams
	if err := decodeParams(raw, &params); err != nil {
		return invalidParams(err)
	}
	starting, err := parseAmount(params.StartingPrice, "startingPrice")
	if err != nil {
		return invalidParams(err)
	}
	reserve, err := parseOptionalAmount(params.ReservePrice, "reservePrice")
	if err != nil {
		return invalidParams(err)
	}
	buyNow, err := parseOptionalAmount(params.BuyNowPrice, "buyNowPrice")
	if err != nil {
		return invalidParams(err)
	}
	return receiptResult(s.backend.CreateAuction(ctx, core.CreateAuction{
		Seller: caller,
		Item: auction.Item{
			ItemID:      params.ItemID,
			Description: params.Description,
			MetalType:   params.MetalType,
			ProductForm: params.ProductForm,
			WeightGrams: params.WeightGrams,
		},
		StartingPrice: starting,
		ReservePrice:  reserve,
		BuyNowPrice:   buyNow,
		Duration:      params.Duration,
	}))
}

func (s *Server) handleAuctionPlaceBid(ctx context.Context, caller [20]byte, raw []json.RawMessage) (interface{}, int, *RPCError) {
	var params auctionAmountParams
	if err := decodeParams(raw, &params); err != nil {
		return invalidParams(err)
	}
	amount, err := parseAmount(params.Amount, "amount")
	if err != nil {
		return invalidParams(err)
	}
	return receiptResult(s.backend.PlaceBid(ctx, core.PlaceBid{AuctionID: params.ID, Bidder: caller, Amount: amount}))
}

func (s *Server) handleAuctionBuyNow(ctx context.Context, caller [20]byte, raw []json.RawMessage) (interface{}, int, *RPCError) {
	var params auctionAmountParams
	if err := decodeParams(raw, &params); err != nil {
		return invalidParams(err)
	}
	amount, err := parseAmount(params.Amount, "amount")
	if err != nil {
		return invalidParams(err)
	}
	return receiptResult(s.backend.BuyNow(ctx, core.BuyNow{AuctionID: params.ID, Buyer: caller, Amount: amount}))
}

func (s *Server) handleAuctionClose(ctx context.Context, caller [20]byte, raw []json.RawMessage) (interface{}, int, *RPCError) {
	var params auctionIDParams
	if err := decodeParams(raw, &params); err != nil {
		return invalidParams(err)
	}
	return receiptResult(s.backend.Close(ctx, core.Close{AuctionID: params.ID, Caller: caller}))
}

func (s *Server) handleAuctionCancel(ctx context.Context, caller [20]byte, raw []json.RawMessage) (interface{}, int, *RPCError) {
	var params auctionIDParams
	if err := decodeParams(raw, &params); err != nil {
		return invalidParams(err)
	}
	return receiptResult(s.backend.CancelAuction(ctx, core.CancelAuction{AuctionID: params.ID, Caller: caller}))
}

func (s *Server) handleAuctionReleaseFunds(ctx context.Context, caller [20]byte, raw []json.RawMessage) (interface{}, int, *RPCError) {
	var params auctionIDParams
	if err := decodeParams(raw, &params); err != nil {
		return invalidParams(err)
	}
	return receiptResult(s.backend.ReleaseFunds(ctx, core.ReleaseFunds{AuctionID: params.ID, Caller: caller}))
}

func (s *Server) handleAuctionUpdateConfig(ctx context.Context, caller [20]byte, raw []json.RawMessage) (interface{}, int, *RPCError) {
	var params configUpdateParams
	if err := decodeParams(raw, &params); err != nil {
		return invalidParams(err)
	}
	update := auction.ConfigUpdate{
		FeeBps:      params.FeeBps,
		RequireKYC:  params.RequireKYC,
		MinKYCLevel: params.MinKYCLevel,
		Paused:      params.Paused,
	}
	if params.Admin != nil {
		addr, err := parseBech32Address(*params.Admin)
		if err != nil {
			return invalidParams(fmt.Errorf("admin: %w", err))
		}
		update.Admin = &addr
	}
	if params.FeeRecipient != nil {
		addr, err := parseBech32Address(*params.FeeRecipient)
		if err != nil {
			return invalidParams(fmt.Errorf("feeRecipient: %w", err))
		}
		update.FeeRecipient = &addr
	}
	return receiptResult(s.backend.UpdateConfig(ctx, core.UpdateConfig{Caller: caller, Update: update}))
}

func (s *Server) handleKYCVerify(ctx context.Context, caller [20]byte, raw []json.RawMessage) (interface{}, int, *RPCError) {
	var params kycVerifyParams
	if err := decodeParams(raw, &params); err != nil {
		return invalidParams(err)
	}
	addr, err := parseBech32Address(params.Address)
	if err != nil {
		return invalidParams(err)
	}
	return receiptResult(s.backend.VerifyUser(ctx, core.VerifyUser{Admin: caller, Address: addr, Level: params.Level, ExpiresIn: params.ExpiresIn}))
}

func (s *Server) handleKYCRevoke(ctx context.Context, caller [20]byte, raw []json.RawMessage) (interface{}, int, *RPCError) {
	var params addressParams
	if err := decodeParams(raw, &params); err != nil {
		return invalidParams(err)
	}
	addr, err := parseBech32Address(params.Address)
	if err != nil {
		return invalidParams(err)
	}
	return receiptResult(s.backend.RevokeVerification(ctx, core.RevokeVerification{Admin: caller, Address: addr}))
}

func (s *Server) handleKYCBlacklist(ctx context.Context, caller [20]byte, raw []json.RawMessage) (interface{}, int, *RPCError) {
	var params addressParams
	if err := decodeParams(raw, &params); err != nil {
		return invalidParams(err)
	}
	addr, err := parseBech32Address(params.Address)
	if err != nil {
		return invalidParams(err)
	}
	return receiptResult(s.backend.Blacklist(ctx, core.Blacklist{Admin: caller, Address: addr}))
}

func queryError(err error) (interface{}, int, *RPCError) {
	return commandError(nil, err)
}

func (s *Server) handleAuctionGet(_ context.Context, _ [20]byte, raw []json.RawMessage) (interface{}, int, *RPCError) {
	var params auctionIDParams
	if err := decodeParams(raw, &params); err != nil {
		return invalidParams(err)
	}
	a, err := s.backend.Auction(params.ID)
	if err != nil {
		return queryError(err)
	}
	return formatAuction(a), http.StatusOK, nil
}

func (s *Server) handleAuctionList(_ context.Context, _ [20]byte, raw []json.RawMessage) (interface{}, int, *RPCError) {
	var params auctionListParams
	if len(raw) > 0 {
		if err := decodeParams(raw, &params); err != nil {
			return invalidParams(err)
		}
	}
	var status *auction.Status
	if strings.TrimSpace(params.Status) != "" {
		parsed, err := auction.ParseStatus(params.Status)
		if err != nil {
			return invalidParams(err)
		}
		status = &parsed
	}
	page, err := s.backend.ListAuctions(status, params.StartAfter, params.Limit)
	if err != nil {
		return queryError(err)
	}
	return formatPage(page), http.StatusOK, nil
}

func (s *Server) handleAuctionListCompleted(_ context.Context, _ [20]byte, raw []json.RawMessage) (interface{}, int, *RPCError) {
	var params auctionListParams
	if len(raw) > 0 {
		if err := decodeParams(raw, &params); err != nil {
			return invalidParams(err)
		}
	}
	page, err := s.backend.ListCompleted(params.StartAfter, params.Limit)
	if err != nil {
		return queryError(err)
	}
	return formatPage(page), http.StatusOK, nil
}

func (s *Server) handleAuctionConfig(_ context.Context, _ [20]byte, _ []json.RawMessage) (interface{}, int, *RPCError) {
	cfg, err := s.backend.Config()
	if err != nil {
		return queryError(err)
	}
	return formatConfig(cfg), http.StatusOK, nil
}

func (s *Server) handleKYCIsVerified(_ context.Context, _ [20]byte, raw []json.RawMessage) (interface{}, int, *RPCError) {
	var params addressParams
	if err := decodeParams(raw, &params); err != nil {
		return invalidParams(err)
	}
	addr, err := parseBech32Address(params.Address)
	if err != nil {
		return invalidParams(err)
	}
	ok, err := s.backend.IsVerified(addr)
	if err != nil {
		return queryError(err)
	}
	return map[string]interface{}{"address": formatAddress(addr), "verified": ok}, http.StatusOK, nil
}

func (s *Server) handleKYCRecord(_ context.Context, _ [20]byte, raw []json.RawMessage) (interface{}, int, *RPCError) {
	var params addressParams
	if err := decodeParams(raw, &params); err != nil {
		return invalidParams(err)
	}
	addr, err := parseBech32Address(params.Address)
	if err != nil {
		return invalidParams(err)
	}
	record, blacklisted, err := s.backend.KYCRecord(addr)
	if err != nil {
		return queryError(err)
	}
	if record == nil {
		return &kycRecordJSON{Address: formatAddress(addr), Blacklisted: blacklisted}, http.StatusOK, nil
	}
	return formatRecord(record, blacklisted), http.StatusOK, nil
}

func (s *Server) handleBankBalance(_ context.Context, _ [20]byte, raw []json.RawMessage) (interface{}, int, *RPCError) {
	var params addressParams
	if err := decodeParams(raw, &params); err != nil {
		return invalidParams(err)
	}
	addr, err := parseBech32Address(params.Address)
	if err != nil {
		return invalidParams(err)
	}
	balance, err := s.backend.Balance(addr, params.Denom)
	if err != nil {
		return queryError(err)
	}
	return map[string]string{"address": formatAddress(addr), "balance": amountString(balance)}, http.StatusOK, nil
}

func (s *Server) handleAuctionHistory(ctx context.Context, _ [20]byte, raw []json.RawMessage) (interface{}, int, *RPCError) {
	var params auctionIDParams
	if err := decodeParams(raw, &params); err != nil {
		return invalidParams(err)
	}
	entries, err := s.history.AuctionHistory(ctx, params.ID)
	if err != nil {
		return queryError(err)
	}
	return map[string]interface{}{"id": params.ID, "entries": entries}, http.StatusOK, nil
}
