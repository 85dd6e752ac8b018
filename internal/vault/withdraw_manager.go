package vault

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	clierr "github.com/ipor-labs/fusion/internal/errors"
	"github.com/ipor-labs/fusion/internal/registry"
)

// WithdrawManager schedules withdrawals that alphas release in batches.
type WithdrawManager struct {
	contract
	fromBlock *big.Int
}

func NewWithdrawManager(exec Executor, address common.Address) *WithdrawManager {
	return &WithdrawManager{contract: newContract("WithdrawManager", address, registry.MustABI(registry.WithdrawManagerABI), exec)}
}

// WithFromBlock bounds request log scans. Nil scans from genesis.
func (w *WithdrawManager) WithFromBlock(block *big.Int) *WithdrawManager {
	cpy := *w
	cpy.fromBlock = block
	return &cpy
}

func (w *WithdrawManager) Request(ctx context.Context, amount *big.Int) (*types.Receipt, error) {
	return w.send(ctx, "request", amount)
}

func (w *WithdrawManager) ReleaseFunds(ctx context.Context, timestamp *big.Int) (*types.Receipt, error) {
	return w.send(ctx, "releaseFunds", timestamp)
}

func (w *WithdrawManager) RequestData(amount *big.Int) ([]byte, error) {
	return w.pack("request", amount)
}

func (w *WithdrawManager) ReleaseFundsData(timestamp *big.Int) ([]byte, error) {
	return w.pack("releaseFunds", timestamp)
}

// RequestInfo is the withdraw request state of one account.
type RequestInfo struct {
	Amount                     *big.Int `json:"amount"`
	EndWithdrawWindowTimestamp *big.Int `json:"end_withdraw_window_timestamp"`
	CanWithdraw                bool     `json:"can_withdraw"`
	WithdrawWindowInSeconds    *big.Int `json:"withdraw_window_seconds"`
}

func (w *WithdrawManager) RequestInfo(ctx context.Context, account common.Address) (RequestInfo, error) {
	values, err := w.call(ctx, "requestInfo", account)
	if err != nil {
		return RequestInfo{}, err
	}
	if len(values) != 4 {
		return RequestInfo{}, clierr.New(clierr.CodeUnavailable, "WithdrawManager.requestInfo: unexpected result")
	}
	amount, err := bigAt(values, 0, "requestInfo.amount")
	if err != nil {
		return RequestInfo{}, err
	}
	end, err := bigAt(values, 1, "requestInfo.endWithdrawWindowTimestamp")
	if err != nil {
		return RequestInfo{}, err
	}
	window, err := bigAt(values, 3, "requestInfo.withdrawWindowInSeconds")
	if err != nil {
		return RequestInfo{}, err
	}
	canWithdraw, _ := values[2].(bool)
	return RequestInfo{Amount: amount, EndWithdrawWindowTimestamp: end, CanWithdraw: canWithdraw, WithdrawWindowInSeconds: window}, nil
}

func (w *WithdrawManager) WithdrawWindow(ctx context.Context) (*big.Int, error) {
	return w.callBig(ctx, "getWithdrawWindow")
}

func (w *WithdrawManager) LastReleaseFundsTimestamp(ctx context.Context) (*big.Int, error) {
	return w.callBig(ctx, "getLastReleaseFundsTimestamp")
}

// PendingRequests summarizes the requests still open at the latest block.
type PendingRequests struct {
	Amount           *big.Int         `json:"amount"`
	ReleaseTimestamp uint64           `json:"release_timestamp"`
	Accounts         []common.Address `json:"accounts"`
}

// PendingRequestsInfo collects requesters from WithdrawRequestUpdated logs and
// sums the amounts of requests whose window has not closed. The release
// timestamp is one second before the latest block so every counted request
// falls before it.
func (w *WithdrawManager) PendingRequestsInfo(ctx context.Context) (PendingRequests, error) {
	event, ok := w.abi.Events["WithdrawRequestUpdated"]
	if !ok {
		return PendingRequests{}, clierr.New(clierr.CodeInternal, "WithdrawRequestUpdated event missing from abi")
	}
	logs, err := w.exec.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: w.fromBlock,
		Addresses: []common.Address{w.address},
		Topics:    [][]common.Hash{{event.ID}},
	})
	if err != nil {
		return PendingRequests{}, err
	}
	now, err := w.exec.BlockTimestamp(ctx)
	if err != nil {
		return PendingRequests{}, err
	}

	seen := map[common.Address]bool{}
	accounts := make([]common.Address, 0)
	for _, l := range logs {
		values, err := event.Inputs.Unpack(l.Data)
		if err != nil || len(values) == 0 {
			continue
		}
		account, ok := values[0].(common.Address)
		if !ok || seen[account] {
			continue
		}
		seen[account] = true
		accounts = append(accounts, account)
	}

	total := big.NewInt(0)
	open := make([]common.Address, 0, len(accounts))
	nowBig := new(big.Int).SetUint64(now)
	for _, account := range accounts {
		info, err := w.RequestInfo(ctx, account)
		if err != nil {
			return PendingRequests{}, err
		}
		if info.Amount.Sign() <= 0 || info.EndWithdrawWindowTimestamp.Cmp(nowBig) < 0 {
			continue
		}
		total.Add(total, info.Amount)
		open = append(open, account)
	}
	release := uint64(0)
	if now > 0 {
		release = now - 1
	}
	return PendingRequests{Amount: total, ReleaseTimestamp: release, Accounts: open}, nil
}
