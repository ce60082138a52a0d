package testutil

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/multiread/internal/pkg/abicodec"
)

var (
	tryAggregateSig             = abicodec.MustParseSignature("tryAggregate(bool,(address,bytes)[])((bool,bytes)[])")
	getBlockNumberSig           = abicodec.MustParseSignature("getBlockNumber()(uint256)")
	getCurrentBlockTimestampSig = abicodec.MustParseSignature("getCurrentBlockTimestamp()(uint256)")
)

// JSONRPCRequest represents a JSON-RPC request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id"`
}

// CallHandler answers a single contract call at block. Returning ok=false
// makes the call revert.
type CallHandler func(target common.Address, callData []byte, block int64) (returnData []byte, ok bool)

// MockEthRPC is a mock Ethereum node answering eth_call and eth_blockNumber.
//
// eth_call requests carrying tryAggregate calldata are unpacked and every
// inner call is answered individually, so the node behaves like an
// aggregator contract deployed at any address. getBlockNumber and
// getCurrentBlockTimestamp are answered by the node itself; every other call
// goes to the CallHandler. JSON-RPC batches are supported.
type MockEthRPC struct {
	*httptest.Server

	head   int64
	handle CallHandler

	mu       sync.Mutex
	requests map[string]int
}

// BlockTimestamp is the timestamp the mock reports for block.
func BlockTimestamp(block int64) int64 {
	return 1700000000 + block*12
}

// StartMockEthRPC starts a mock node whose chain head is head. The server is
// closed when the test finishes.
func StartMockEthRPC(t *testing.T, head int64, handle CallHandler) *MockEthRPC {
	t.Helper()

	m := &MockEthRPC{
		head:     head,
		handle:   handle,
		requests: make(map[string]int),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.serveHTTP))
	t.Cleanup(m.Server.Close)
	return m
}

// Requests returns how many requests for method the node received.
func (m *MockEthRPC) Requests(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[method]
}

func (m *MockEthRPC) serveHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var reqs []JSONRPCRequest
		if err := json.Unmarshal(trimmed, &reqs); err != nil {
			_ = json.NewEncoder(w).Encode(rpcError(json.RawMessage(`1`), -32700, "parse error"))
			return
		}
		responses := make([]map[string]json.RawMessage, len(reqs))
		for i, req := range reqs {
			responses[i] = m.handleRequest(req)
		}
		_ = json.NewEncoder(w).Encode(responses)
		return
	}

	var req JSONRPCRequest
	if err := json.Unmarshal(trimmed, &req); err != nil {
		_ = json.NewEncoder(w).Encode(rpcError(json.RawMessage(`1`), -32700, "parse error"))
		return
	}
	_ = json.NewEncoder(w).Encode(m.handleRequest(req))
}

func (m *MockEthRPC) handleRequest(req JSONRPCRequest) map[string]json.RawMessage {
	m.mu.Lock()
	m.requests[req.Method]++
	m.mu.Unlock()

	switch req.Method {
	case "eth_blockNumber":
		result, _ := json.Marshal(fmt.Sprintf("0x%x", m.head))
		return rpcResult(req.ID, result)

	case "eth_chainId":
		return rpcResult(req.ID, json.RawMessage(`"0x1"`))

	case "eth_call":
		to, data, block, err := m.parseEthCall(req.Params)
		if err != nil {
			return rpcError(req.ID, -32602, err.Error())
		}
		out, ok := m.ethCall(to, data, block)
		if !ok {
			return rpcError(req.ID, -32000, "execution reverted")
		}
		result, _ := json.Marshal("0x" + hex.EncodeToString(out))
		return rpcResult(req.ID, result)

	default:
		return rpcError(req.ID, -32601, "method not found: "+req.Method)
	}
}

func (m *MockEthRPC) ethCall(to common.Address, data []byte, block int64) ([]byte, bool) {
	if !hasSelector(data, tryAggregateSig) {
		return m.answer(to, data, block)
	}

	args, err := abicodec.Decode(tryAggregateSig.Inputs, data[4:])
	if err != nil {
		return nil, false
	}
	requireSuccess := args[0].(bool)
	inner := args[1].([][]any)

	results := make([]MulticallResult, len(inner))
	for i, call := range inner {
		out, ok := m.answer(call[0].(common.Address), call[1].([]byte), block)
		if !ok && requireSuccess {
			return nil, false
		}
		results[i] = MulticallResult{Success: ok, ReturnData: out}
	}

	packed, err := packTryAggregate(results)
	if err != nil {
		return nil, false
	}
	return packed, true
}

func (m *MockEthRPC) answer(to common.Address, data []byte, block int64) ([]byte, bool) {
	switch {
	case hasSelector(data, getBlockNumberSig):
		out, err := packUint256(big.NewInt(block))
		return out, err == nil
	case hasSelector(data, getCurrentBlockTimestampSig):
		out, err := packUint256(big.NewInt(BlockTimestamp(block)))
		return out, err == nil
	case m.handle != nil:
		return m.handle(to, data, block)
	default:
		return nil, false
	}
}

func hasSelector(data []byte, sig abicodec.Signature) bool {
	sel := sig.Selector()
	return len(data) >= 4 && bytes.Equal(data[:4], sel[:])
}

func (m *MockEthRPC) parseEthCall(params json.RawMessage) (common.Address, []byte, int64, error) {
	var p []json.RawMessage
	if err := json.Unmarshal(params, &p); err != nil || len(p) < 1 {
		return common.Address{}, nil, 0, fmt.Errorf("invalid eth_call params")
	}

	var callObj map[string]interface{}
	if err := json.Unmarshal(p[0], &callObj); err != nil {
		return common.Address{}, nil, 0, fmt.Errorf("invalid call object: %v", err)
	}
	toHex, _ := callObj["to"].(string)
	// go-ethereum may use "data" or "input" for the calldata field
	dataHex, _ := callObj["input"].(string)
	if dataHex == "" {
		dataHex, _ = callObj["data"].(string)
	}
	data, err := hex.DecodeString(strings.TrimPrefix(dataHex, "0x"))
	if err != nil {
		return common.Address{}, nil, 0, fmt.Errorf("invalid calldata: %v", err)
	}

	block := m.head
	if len(p) >= 2 {
		var blockArg string
		if err := json.Unmarshal(p[1], &blockArg); err == nil {
			block = m.parseBlockArg(blockArg)
		}
	}
	return common.HexToAddress(toHex), data, block, nil
}

func (m *MockEthRPC) parseBlockArg(s string) int64 {
	switch s {
	case "", "latest", "pending", "safe", "finalized":
		return m.head
	}
	n, err := strconv.ParseInt(strings.TrimPrefix(s, "0x"), 16, 64)
	if err != nil {
		return m.head
	}
	return n
}

func rpcResult(id, result json.RawMessage) map[string]json.RawMessage {
	return map[string]json.RawMessage{
		"jsonrpc": json.RawMessage(`"2.0"`),
		"id":      id,
		"result":  result,
	}
}

func rpcError(id json.RawMessage, code int, message string) map[string]json.RawMessage {
	errJSON, _ := json.Marshal(map[string]interface{}{"code": code, "message": message})
	return map[string]json.RawMessage{
		"jsonrpc": json.RawMessage(`"2.0"`),
		"id":      id,
		"error":   json.RawMessage(errJSON),
	}
}
