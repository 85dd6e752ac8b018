// Package vault wraps the Plasma Vault contract family: the vault itself, its
// access manager, withdraw manager, rewards claim manager, price oracle
// middleware and plain ERC20 tokens.
package vault

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	clierr "github.com/ipor-labs/fusion/internal/errors"
)

// Executor is the chain access every wrapper needs. execution.TransactionExecutor
// satisfies it.
type Executor interface {
	Address() common.Address
	Read(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	Simulate(ctx context.Context, to common.Address, data []byte) error
	Execute(ctx context.Context, to common.Address, data []byte) (*types.Receipt, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	BlockTimestamp(ctx context.Context) (uint64, error)
}

// ErrEmptyResult is returned when a view returns no data, which is what a call
// to a missing function on a contract without a fallback looks like.
var ErrEmptyResult = errors.New("empty call result")

type contract struct {
	name    string
	address common.Address
	abi     abi.ABI
	exec    Executor
}

func newContract(name string, address common.Address, parsed abi.ABI, exec Executor) contract {
	return contract{name: name, address: address, abi: parsed, exec: exec}
}

func (c contract) Address() common.Address { return c.address }

func (c contract) pack(method string, args ...any) ([]byte, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, fmt.Sprintf("pack %s.%s", c.name, method), err)
	}
	return data, nil
}

func (c contract) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := c.pack(method, args...)
	if err != nil {
		return nil, err
	}
	out, err := c.exec.Read(ctx, c.address, data)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 && len(c.abi.Methods[method].Outputs) > 0 {
		return nil, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("%s.%s", c.name, method), ErrEmptyResult)
	}
	values, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("decode %s.%s", c.name, method), err)
	}
	return values, nil
}

func (c contract) send(ctx context.Context, method string, args ...any) (*types.Receipt, error) {
	data, err := c.pack(method, args...)
	if err != nil {
		return nil, err
	}
	return c.exec.Execute(ctx, c.address, data)
}

func (c contract) callBig(ctx context.Context, method string, args ...any) (*big.Int, error) {
	values, err := c.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	return bigAt(values, 0, c.name+"."+method)
}

func (c contract) callAddress(ctx context.Context, method string, args ...any) (common.Address, error) {
	values, err := c.call(ctx, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	if len(values) == 0 {
		return common.Address{}, clierr.New(clierr.CodeUnavailable, c.name+"."+method+": empty result")
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, clierr.New(clierr.CodeUnavailable, c.name+"."+method+": unexpected result type")
	}
	return addr, nil
}

func bigAt(values []any, i int, what string) (*big.Int, error) {
	if len(values) <= i {
		return nil, clierr.New(clierr.CodeUnavailable, what+": missing result")
	}
	switch v := values[i].(type) {
	case *big.Int:
		return v, nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("%s: unexpected result type %T", what, values[i]))
	}
}
