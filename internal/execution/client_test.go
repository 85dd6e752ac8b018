package execution

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	clierr "github.com/ipor-labs/fusion/internal/errors"
	"github.com/ipor-labs/fusion/internal/execution/signer"
)

const testSignerKey = "59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"

// fakeChain answers the JSON-RPC subset the executor uses.
type fakeChain struct {
	t        *testing.T
	mu       sync.Mutex
	calls    map[string]int
	callData map[string]string
	revert   string
	sent     []common.Hash
	status   uint64
}

func newFakeChain(t *testing.T) (*fakeChain, *httptest.Server) {
	t.Helper()
	f := &fakeChain{t: t, calls: map[string]int{}, callData: map[string]string{}, status: types.ReceiptStatusSuccessful}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeChain) serve(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req estimateRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.calls[req.Method]++
	f.mu.Unlock()

	switch req.Method {
	case "eth_chainId":
		writeEstimateRPCResult(f.t, w, req.ID, "0xa4b1")
	case "eth_call":
		if f.revert != "" {
			writeRPCDataError(w, req.ID, f.revert)
			return
		}
		var msg struct {
			Input string `json:"input"`
			Data  string `json:"data"`
		}
		_ = json.Unmarshal(req.Params[0], &msg)
		input := msg.Input
		if input == "" {
			input = msg.Data
		}
		for prefix, result := range f.callData {
			if strings.HasPrefix(input, prefix) {
				writeEstimateRPCResult(f.t, w, req.ID, result)
				return
			}
		}
		writeEstimateRPCResult(f.t, w, req.ID, "0x")
	case "eth_estimateGas":
		writeEstimateRPCResult(f.t, w, req.ID, "0x5208")
	case "eth_maxPriorityFeePerGas":
		writeEstimateRPCResult(f.t, w, req.ID, "0x77359400")
	case "eth_getBlockByNumber":
		writeEstimateRPCResult(f.t, w, req.ID, &types.Header{
			Number:     big.NewInt(100),
			Time:       1_700_000_000,
			Difficulty: big.NewInt(0),
			BaseFee:    big.NewInt(1_000_000_000),
		})
	case "eth_blockNumber":
		writeEstimateRPCResult(f.t, w, req.ID, "0x64")
	case "eth_getTransactionCount":
		writeEstimateRPCResult(f.t, w, req.ID, "0x7")
	case "eth_sendRawTransaction":
		var raw string
		_ = json.Unmarshal(req.Params[0], &raw)
		tx := new(types.Transaction)
		if err := tx.UnmarshalBinary(common.FromHex(raw)); err != nil {
			writeEstimateRPCError(w, req.ID, -32602, err.Error())
			return
		}
		f.mu.Lock()
		f.sent = append(f.sent, tx.Hash())
		f.mu.Unlock()
		writeEstimateRPCResult(f.t, w, req.ID, tx.Hash())
	case "anvil_impersonateAccount":
		writeEstimateRPCResult(f.t, w, req.ID, nil)
	case "eth_sendTransaction":
		hash := common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111")
		f.mu.Lock()
		f.sent = append(f.sent, hash)
		f.mu.Unlock()
		writeEstimateRPCResult(f.t, w, req.ID, hash)
	case "eth_getTransactionReceipt":
		var hash common.Hash
		_ = json.Unmarshal(req.Params[0], &hash)
		writeEstimateRPCResult(f.t, w, req.ID, &types.Receipt{
			Type:              types.DynamicFeeTxType,
			Status:            f.status,
			CumulativeGasUsed: 21000,
			GasUsed:           21000,
			TxHash:            hash,
			BlockNumber:       big.NewInt(100),
			Logs:              []*types.Log{},
		})
	default:
		writeEstimateRPCError(w, req.ID, -32601, "method not supported in test: "+req.Method)
	}
}

func (f *fakeChain) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func writeRPCDataError(w http.ResponseWriter, id json.RawMessage, data string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      decodeEstimateRPCID(id),
		"error":   map[string]any{"code": 3, "message": "execution reverted", "data": data},
	})
}

func fastOptions() ExecuteOptions {
	opts := DefaultExecuteOptions()
	opts.PollInterval = 5 * time.Millisecond
	opts.StepTimeout = time.Second
	return opts
}

func TestTransactionExecutorReads(t *testing.T) {
	chain, srv := newFakeChain(t)
	balance := common.LeftPadBytes(big.NewInt(1234).Bytes(), 32)
	selector := hexutil.Encode(erc20ABI.Methods["balanceOf"].ID)
	chain.callData[selector] = hexutil.Encode(balance)

	exec, err := Dial(context.Background(), srv.URL, nil, fastOptions())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer exec.Close()

	if exec.ChainID().Int64() != 42161 {
		t.Fatalf("unexpected chain id %s", exec.ChainID())
	}
	got, err := exec.BalanceOf(context.Background(), common.HexToAddress("0x01"), common.HexToAddress("0x02"))
	if err != nil {
		t.Fatalf("BalanceOf failed: %v", err)
	}
	if got.Int64() != 1234 {
		t.Fatalf("expected 1234, got %s", got)
	}
	ts, err := exec.BlockTimestamp(context.Background())
	if err != nil {
		t.Fatalf("BlockTimestamp failed: %v", err)
	}
	if ts != 1_700_000_000 {
		t.Fatalf("unexpected timestamp %d", ts)
	}
}

func TestTransactionExecutorExecuteWithoutSigner(t *testing.T) {
	_, srv := newFakeChain(t)
	exec, err := Dial(context.Background(), srv.URL, nil, fastOptions())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer exec.Close()
	_, err = exec.Execute(context.Background(), common.HexToAddress("0x01"), []byte{0x01, 0x02, 0x03, 0x04})
	if !clierr.Is(err, clierr.CodeSigner) {
		t.Fatalf("expected signer error, got %v", err)
	}
}

func TestTransactionExecutorExecuteSignsAndWaits(t *testing.T) {
	chain, srv := newFakeChain(t)
	s, err := signer.NewLocalSignerFromHex(testSignerKey)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	exec, err := Dial(context.Background(), srv.URL, s, fastOptions())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer exec.Close()

	receipt, err := exec.Execute(context.Background(), common.HexToAddress("0x01"), []byte{0x01, 0x02, 0x03, 0x04})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(chain.sent) != 1 || receipt.TxHash != chain.sent[0] {
		t.Fatalf("expected receipt for the broadcast tx, got %s sent=%v", receipt.TxHash, chain.sent)
	}
	if chain.count("eth_call") != 1 {
		t.Fatalf("expected one simulation call, got %d", chain.count("eth_call"))
	}
}

func TestTransactionExecutorExecuteRevertedReceipt(t *testing.T) {
	chain, srv := newFakeChain(t)
	chain.status = types.ReceiptStatusFailed
	s, err := signer.NewLocalSignerFromHex(testSignerKey)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	opts := fastOptions()
	opts.Simulate = false
	exec, err := Dial(context.Background(), srv.URL, s, opts)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer exec.Close()

	_, err = exec.Execute(context.Background(), common.HexToAddress("0x01"), []byte{0x01, 0x02, 0x03, 0x04})
	if !clierr.Is(err, clierr.CodeActionSim) {
		t.Fatalf("expected reverted receipt error, got %v", err)
	}
}

func TestTransactionExecutorSimulateDecodesUnauthorized(t *testing.T) {
	chain, srv := newFakeChain(t)
	caller := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	unauthorized := fusionErrorsABI.Errors["AccessManagedUnauthorized"]
	packed, err := unauthorized.Inputs.Pack(caller)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	chain.revert = hexutil.Encode(append(append([]byte{}, unauthorized.ID[:4]...), packed...))

	exec, err := Dial(context.Background(), srv.URL, nil, fastOptions())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer exec.Close()
	err = exec.Simulate(context.Background(), common.HexToAddress("0x01"), []byte{0x01, 0x02, 0x03, 0x04})
	if !clierr.Is(err, clierr.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if !IsRevert(err) {
		t.Fatal("expected revert classification")
	}
}

func TestTransactionExecutorWithSenderImpersonates(t *testing.T) {
	chain, srv := newFakeChain(t)
	exec, err := Dial(context.Background(), srv.URL, nil, fastOptions())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer exec.Close()

	atomist := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	prank := exec.WithSender(atomist)
	if prank.Address() != atomist || !prank.Impersonating() {
		t.Fatalf("expected impersonating copy for %s", atomist)
	}
	if exec.Impersonating() {
		t.Fatal("expected original executor to be unchanged")
	}
	if _, err := prank.Execute(context.Background(), common.HexToAddress("0x01"), []byte{0x01, 0x02, 0x03, 0x04}); err != nil {
		t.Fatalf("impersonated Execute failed: %v", err)
	}
	if chain.count("anvil_impersonateAccount") != 1 || chain.count("eth_sendTransaction") != 1 {
		t.Fatalf("expected impersonation calls, got %v", chain.calls)
	}
}

func TestExecuteActionRunsVaultSteps(t *testing.T) {
	_, srv := newFakeChain(t)
	s, err := signer.NewLocalSignerFromHex(testSignerKey)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	store := openTestStore(t)
	action := NewAction(NewActionID(), "deposit", "eip155:42161", Constraints{Simulate: true})
	action.Steps = append(action.Steps, ActionStep{
		StepID:  "deposit",
		Type:    StepTypeVaultCall,
		Status:  StepStatusPending,
		ChainID: "eip155:42161",
		RPCURL:  srv.URL,
		Target:  "0x00000000000000000000000000000000000000cc",
		Data:    "0x6e553f65",
		Value:   "0",
	})
	if err := ExecuteAction(context.Background(), store, &action, s, fastOptions()); err != nil {
		t.Fatalf("ExecuteAction failed: %v", err)
	}
	if action.Status != ActionStatusCompleted || action.Steps[0].Status != StepStatusConfirmed {
		t.Fatalf("unexpected statuses: %s / %s", action.Status, action.Steps[0].Status)
	}
	stored, err := store.Get(action.ActionID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(stored.TxHashes()) != 1 {
		t.Fatalf("expected persisted tx hash, got %v", stored.TxHashes())
	}
}
