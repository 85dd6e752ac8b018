package vault

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	clierr "github.com/ipor-labs/fusion/internal/errors"
	"github.com/ipor-labs/fusion/internal/registry"
)

type ERC20 struct {
	contract
}

func NewERC20(exec Executor, address common.Address) *ERC20 {
	return &ERC20{newContract("ERC20", address, registry.MustABI(registry.ERC20ABI), exec)}
}

func (t *ERC20) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return t.callBig(ctx, "balanceOf", account)
}

func (t *ERC20) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	return t.callBig(ctx, "allowance", owner, spender)
}

func (t *ERC20) TotalSupply(ctx context.Context) (*big.Int, error) {
	return t.callBig(ctx, "totalSupply")
}

func (t *ERC20) Decimals(ctx context.Context) (uint8, error) {
	d, err := t.callBig(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	return uint8(d.Uint64()), nil
}

func (t *ERC20) Symbol(ctx context.Context) (string, error) {
	values, err := t.call(ctx, "symbol")
	if err != nil {
		return "", err
	}
	if len(values) == 0 {
		return "", clierr.New(clierr.CodeUnavailable, "ERC20.symbol: empty result")
	}
	symbol, _ := values[0].(string)
	return symbol, nil
}

func (t *ERC20) Approve(ctx context.Context, spender common.Address, amount *big.Int) (*types.Receipt, error) {
	return t.send(ctx, "approve", spender, amount)
}

func (t *ERC20) Transfer(ctx context.Context, to common.Address, amount *big.Int) (*types.Receipt, error) {
	return t.send(ctx, "transfer", to, amount)
}

func (t *ERC20) ApproveData(spender common.Address, amount *big.Int) ([]byte, error) {
	return t.pack("approve", spender, amount)
}
