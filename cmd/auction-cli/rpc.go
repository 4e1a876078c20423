package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

var (
	rpcCall    = callRPC
	httpClient = &http.Client{Timeout: 30 * time.Second}
)

// callRPC posts method with a single params object. A nil params value sends
// no parameters.
func callRPC(method string, params interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
	payload := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		payload["params"] = []interface{}{params}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	resp, err := doRPCRequest(body, requireAuth)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, nil, fmt.Errorf("failed to decode response from %s", rpcEndpoint)
	}
	return rpcResp.Result, rpcResp.Error, nil
}

func doRPCRequest(payload []byte, requireAuth bool) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if requireAuth {
		token := strings.TrimSpace(rpcAuthToken)
		if token == "" {
			return nil, fmt.Errorf("mutating RPC call requires --token or PHX_RPC_TOKEN")
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", rpcEndpoint, err)
	}
	return resp, nil
}

// invoke performs the call and writes either the result or the error.
func invoke(stdout, stderr io.Writer, method string, params interface{}, requireAuth bool) int {
	result, rpcErr, err := rpcCall(method, params, requireAuth)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func handleRPCError(w io.Writer, err *rpcError) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(w, "RPC error %d: %s\n", err.Code, err.Message)
	if len(err.Data) > 0 && string(err.Data) != "null" {
		fmt.Fprintf(w, "%s\n", err.Data)
	}
	return 1
}

func handleRPCCallError(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(w, "RPC call failed: %v\n", err)
	return 1
}

func writeRPCResult(w io.Writer, result json.RawMessage) {
	if len(result) == 0 {
		fmt.Fprintln(w, "null")
		return
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err == nil {
		result = pretty.Bytes()
	}
	if _, err := w.Write(result); err == nil {
		if result[len(result)-1] != '\n' {
			fmt.Fprintln(w)
		}
	}
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string, stderr io.Writer) bool {
	if err := fs.Parse(args); err != nil {
		return false
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return false
	}
	return true
}

func runRawCall(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("call", stderr)
	var method, params string
	var auth bool
	fs.StringVar(&method, "method", "", "JSON-RPC method name")
	fs.StringVar(&params, "params", "", "JSON params object")
	fs.BoolVar(&auth, "auth", false, "attach the bearer token")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	method = strings.TrimSpace(method)
	if method == "" {
		fmt.Fprintln(stderr, "Error: --method is required")
		return 1
	}
	var body interface{}
	if strings.TrimSpace(params) != "" {
		raw := json.RawMessage(params)
		if !json.Valid(raw) {
			fmt.Fprintln(stderr, "Error: --params must be valid JSON")
			return 1
		}
		body = raw
	}
	return invoke(stdout, stderr, method, body, auth)
}

func runBalance(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("balance", stderr)
	var addr, denom string
	fs.StringVar(&addr, "addr", "", "bech32 address")
	fs.StringVar(&denom, "denom", "", "denomination (defaults to the module denom)")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		fmt.Fprintln(stderr, "Error: --addr is required")
		return 1
	}
	params := map[string]interface{}{"address": addr}
	if d := strings.TrimSpace(denom); d != "" {
		params["denom"] = d
	}
	return invoke(stdout, stderr, "bank_balance", params, false)
}
