// Package chaintest serves a scripted JSON-RPC node over httptest for tests
// that dial a real ethclient.
package chaintest

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type callKey struct {
	to       common.Address
	selector string
}

// Node is a fake chain. Calls are answered by (to, selector), then by
// selector alone, then with empty output.
type Node struct {
	URL string

	t         *testing.T
	mu        sync.Mutex
	chainID   int64
	timestamp uint64
	block     uint64
	calls     map[callKey][]byte
	reverts   map[callKey]string
	logs      []types.Log
	sent      []common.Hash
	methods   map[string]int
	status    uint64
}

func New(t *testing.T, chainID int64) *Node {
	t.Helper()
	n := &Node{
		t:         t,
		chainID:   chainID,
		timestamp: 1_700_000_000,
		block:     100,
		calls:     map[callKey][]byte{},
		reverts:   map[callKey]string{},
		methods:   map[string]int{},
		status:    types.ReceiptStatusSuccessful,
	}
	srv := httptest.NewServer(http.HandlerFunc(n.serve))
	t.Cleanup(srv.Close)
	n.URL = srv.URL
	return n
}

func key(to common.Address, selector []byte) callKey {
	return callKey{to: to, selector: hexutil.Encode(selector[:4])}
}

// OnCall answers eth_call to `to` with selector. A zero `to` matches any
// contract.
func (n *Node) OnCall(to common.Address, selector []byte, result []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls[key(to, selector)] = result
}

// Revert makes eth_call to `to` with selector fail with revert data.
func (n *Node) Revert(to common.Address, selector []byte, data []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reverts[key(to, selector)] = hexutil.Encode(data)
}

func (n *Node) AddLogs(logs ...types.Log) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.logs = append(n.logs, logs...)
}

func (n *Node) SetTimestamp(ts uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.timestamp = ts
}

// FailReceipts makes every mined transaction revert.
func (n *Node) FailReceipts() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.status = types.ReceiptStatusFailed
}

// Sent lists transaction hashes accepted so far.
func (n *Node) Sent() []common.Hash {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]common.Hash(nil), n.sent...)
}

// Calls counts requests per JSON-RPC method.
func (n *Node) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.methods[method]
}

func (n *Node) serve(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n.mu.Lock()
	n.methods[req.Method]++
	n.mu.Unlock()

	switch req.Method {
	case "eth_chainId":
		n.result(w, req.ID, hexutil.EncodeBig(big.NewInt(n.chainID)))
	case "eth_call":
		n.call(w, req)
	case "eth_getLogs":
		n.mu.Lock()
		logs := append([]types.Log{}, n.logs...)
		n.mu.Unlock()
		n.result(w, req.ID, logs)
	case "eth_blockNumber":
		n.result(w, req.ID, hexutil.EncodeUint64(n.block))
	case "eth_getBlockByNumber":
		n.mu.Lock()
		header := &types.Header{
			Number:     new(big.Int).SetUint64(n.block),
			Time:       n.timestamp,
			Difficulty: big.NewInt(0),
			BaseFee:    big.NewInt(1_000_000_000),
		}
		n.mu.Unlock()
		n.result(w, req.ID, header)
	case "eth_estimateGas":
		n.result(w, req.ID, "0x30d40")
	case "eth_maxPriorityFeePerGas":
		n.result(w, req.ID, "0x3b9aca00")
	case "eth_getTransactionCount":
		n.result(w, req.ID, "0x0")
	case "eth_sendRawTransaction":
		var raw string
		_ = json.Unmarshal(req.Params[0], &raw)
		tx := new(types.Transaction)
		if err := tx.UnmarshalBinary(common.FromHex(raw)); err != nil {
			n.error(w, req.ID, -32602, err.Error(), "")
			return
		}
		n.record(tx.Hash())
		n.result(w, req.ID, tx.Hash())
	case "anvil_impersonateAccount", "anvil_stopImpersonatingAccount":
		n.result(w, req.ID, nil)
	case "eth_sendTransaction":
		hash := common.BigToHash(big.NewInt(int64(len(n.Sent()) + 1)))
		n.record(hash)
		n.result(w, req.ID, hash)
	case "eth_getTransactionReceipt":
		var hash common.Hash
		_ = json.Unmarshal(req.Params[0], &hash)
		n.mu.Lock()
		status := n.status
		n.mu.Unlock()
		n.result(w, req.ID, &types.Receipt{
			Type:              types.DynamicFeeTxType,
			Status:            status,
			CumulativeGasUsed: 50_000,
			GasUsed:           50_000,
			Logs:              []*types.Log{},
			TxHash:            hash,
			BlockHash:         common.HexToHash("0x01"),
			BlockNumber:       new(big.Int).SetUint64(n.block),
		})
	default:
		n.error(w, req.ID, -32601, fmt.Sprintf("method %s not supported", req.Method), "")
	}
}

func (n *Node) record(hash common.Hash) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, hash)
}

func (n *Node) call(w http.ResponseWriter, req rpcRequest) {
	var msg struct {
		To    *common.Address `json:"to"`
		Input string          `json:"input"`
		Data  string          `json:"data"`
	}
	if len(req.Params) > 0 {
		_ = json.Unmarshal(req.Params[0], &msg)
	}
	input := msg.Input
	if input == "" {
		input = msg.Data
	}
	data := common.FromHex(input)
	if len(data) < 4 {
		n.result(w, req.ID, "0x")
		return
	}
	var to common.Address
	if msg.To != nil {
		to = *msg.To
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, k := range []callKey{key(to, data), key(common.Address{}, data)} {
		if revert, ok := n.reverts[k]; ok {
			n.error(w, req.ID, 3, "execution reverted", revert)
			return
		}
		if out, ok := n.calls[k]; ok {
			n.result(w, req.ID, hexutil.Encode(out))
			return
		}
	}
	n.result(w, req.ID, "0x")
}

func (n *Node) result(w http.ResponseWriter, id json.RawMessage, result any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": id, "result": result}); err != nil {
		n.t.Errorf("encode rpc result: %v", err)
	}
}

func (n *Node) error(w http.ResponseWriter, id json.RawMessage, code int, message, data string) {
	body := map[string]any{"code": code, "message": message}
	if data != "" {
		body["data"] = data
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": id, "error": body})
}

// Word left-pads an integer, address or hash to one ABI word.
func Word(v any) []byte {
	switch x := v.(type) {
	case int:
		return common.LeftPadBytes(big.NewInt(int64(x)).Bytes(), 32)
	case int64:
		return common.LeftPadBytes(big.NewInt(x).Bytes(), 32)
	case *big.Int:
		return common.LeftPadBytes(x.Bytes(), 32)
	case common.Address:
		return common.LeftPadBytes(x.Bytes(), 32)
	case common.Hash:
		return x.Bytes()
	case bool:
		if x {
			return Word(1)
		}
		return Word(0)
	}
	panic(fmt.Sprintf("chaintest: unsupported word type %T", v))
}

// Words concatenates Word of each value.
func Words(values ...any) []byte {
	var out []byte
	for _, v := range values {
		out = append(out, Word(v)...)
	}
	return out
}
