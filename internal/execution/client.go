package execution

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	clierr "github.com/ipor-labs/fusion/internal/errors"
	"github.com/ipor-labs/fusion/internal/execution/signer"
	"github.com/ipor-labs/fusion/internal/registry"
)

var erc20ABI = registry.MustABI(registry.ERC20ABI)

// TransactionExecutor reads from and writes to one chain on behalf of one
// sender. Writes go through the same simulate, estimate, sign and wait path as
// stored actions.
type TransactionExecutor struct {
	client      *ethclient.Client
	signer      signer.Signer
	chainID     *big.Int
	from        common.Address
	impersonate bool
	opts        ExecuteOptions
	owned       bool
}

// Dial connects to rpcURL and reads the chain id. txSigner may be nil for a
// read-only executor.
func Dial(ctx context.Context, rpcURL string, txSigner signer.Signer, opts ExecuteOptions) (*TransactionExecutor, error) {
	if strings.TrimSpace(rpcURL) == "" {
		return nil, clierr.New(clierr.CodeUsage, "rpc url is required")
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
	}
	exec, err := NewTransactionExecutor(ctx, client, txSigner, opts)
	if err != nil {
		client.Close()
		return nil, err
	}
	exec.owned = true
	return exec, nil
}

func NewTransactionExecutor(ctx context.Context, client *ethclient.Client, txSigner signer.Signer, opts ExecuteOptions) (*TransactionExecutor, error) {
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read chain id", err)
	}
	opts = opts.normalized()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	exec := &TransactionExecutor{client: client, signer: txSigner, chainID: chainID, opts: opts}
	if txSigner != nil {
		exec.from = txSigner.Address()
	}
	return exec, nil
}

func (e *TransactionExecutor) Close() {
	if e != nil && e.owned && e.client != nil {
		e.client.Close()
	}
}

func (e *TransactionExecutor) Client() *ethclient.Client { return e.client }

func (e *TransactionExecutor) ChainID() *big.Int { return new(big.Int).Set(e.chainID) }

// Address is the account calls are sent from.
func (e *TransactionExecutor) Address() common.Address { return e.from }

func (e *TransactionExecutor) Options() ExecuteOptions { return e.opts }

// WithSender returns a copy that sends unsigned transactions as addr through
// anvil_impersonateAccount. Only fork nodes accept this.
func (e *TransactionExecutor) WithSender(addr common.Address) *TransactionExecutor {
	cpy := *e
	cpy.from = addr
	cpy.impersonate = true
	cpy.owned = false
	return &cpy
}

func (e *TransactionExecutor) Impersonating() bool { return e.impersonate }

func (e *TransactionExecutor) callMsg(to common.Address, data []byte) ethereum.CallMsg {
	return ethereum.CallMsg{From: e.from, To: &to, Data: data, Value: big.NewInt(0)}
}

// Read performs eth_call at the latest block.
func (e *TransactionExecutor) Read(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	out, err := e.client.CallContract(ctx, e.callMsg(to, data), nil)
	if err != nil {
		return nil, wrapEVMExecutionError(clierr.CodeUnavailable, fmt.Sprintf("call %s", to.Hex()), err)
	}
	return out, nil
}

// Simulate runs data against the latest state without broadcasting.
func (e *TransactionExecutor) Simulate(ctx context.Context, to common.Address, data []byte) error {
	if _, err := e.client.CallContract(ctx, e.callMsg(to, data), nil); err != nil {
		return wrapEVMExecutionError(clierr.CodeActionSim, "simulate transaction (eth_call)", err)
	}
	return nil
}

// Execute sends data to `to` and waits for a successful receipt.
func (e *TransactionExecutor) Execute(ctx context.Context, to common.Address, data []byte) (*types.Receipt, error) {
	msg := e.callMsg(to, data)
	if e.opts.Simulate {
		if err := e.Simulate(ctx, to, data); err != nil {
			return nil, err
		}
	}
	if e.impersonate {
		return e.executeImpersonated(ctx, msg)
	}
	if e.signer == nil {
		return nil, clierr.New(clierr.CodeSigner, "no signer configured; provide a private key")
	}
	return sendSigned(ctx, e.client, e.chainID, e.signer, msg, e.opts, nil)
}

func (e *TransactionExecutor) executeImpersonated(ctx context.Context, msg ethereum.CallMsg) (*types.Receipt, error) {
	rpcClient := e.client.Client()
	if err := rpcClient.CallContext(ctx, nil, "anvil_impersonateAccount", e.from); err != nil {
		return nil, clierr.Wrap(clierr.CodeUnsupported, "impersonate account (requires an anvil fork)", err)
	}
	tx := map[string]any{
		"from": e.from,
		"to":   msg.To,
		"data": hexutil.Bytes(msg.Data),
	}
	if e.opts.GasLimit > 0 {
		tx["gas"] = hexutil.Uint64(e.opts.GasLimit)
	}
	var hash common.Hash
	if err := rpcClient.CallContext(ctx, &hash, "eth_sendTransaction", tx); err != nil {
		return nil, wrapEVMExecutionError(clierr.CodeActionSim, "send impersonated transaction", err)
	}
	return waitForReceipt(ctx, e.client, hash, msg, e.opts)
}

// BalanceOf reads an ERC20 balance.
func (e *TransactionExecutor) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack balanceOf", err)
	}
	out, err := e.Read(ctx, token, data)
	if err != nil {
		return nil, err
	}
	values, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil || len(values) != 1 {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode balanceOf", err)
	}
	balance, ok := toBigInt(values[0])
	if !ok {
		return nil, clierr.New(clierr.CodeUnavailable, "decode balanceOf: unexpected type")
	}
	return balance, nil
}

func (e *TransactionExecutor) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	logs, err := e.client.FilterLogs(ctx, q)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "filter logs", err)
	}
	return logs, nil
}

// BlockTimestamp returns the timestamp of the latest block.
func (e *TransactionExecutor) BlockTimestamp(ctx context.Context) (uint64, error) {
	header, err := e.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, clierr.Wrap(clierr.CodeUnavailable, "fetch latest header", err)
	}
	return header.Time, nil
}

func (e *TransactionExecutor) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := e.client.BlockNumber(ctx)
	if err != nil {
		return 0, clierr.Wrap(clierr.CodeUnavailable, "fetch block number", err)
	}
	return n, nil
}

// IsRevert reports whether err came from a reverted call rather than transport.
func IsRevert(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := DecodeRevert(err); ok {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "execution reverted") || strings.Contains(msg, "revert")
}
