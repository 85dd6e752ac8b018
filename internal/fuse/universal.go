package fuse

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ipor-labs/fusion/internal/errors"
)

const enterUniversalSwap = "enter((address,address,uint256,(address[],bytes[])))"

var universalSwapArgs = tuple(
	field("tokenIn", "address"),
	field("tokenOut", "address"),
	field("amountIn", "uint256"),
	abi.ArgumentMarshaling{Name: "data", Type: "tuple", Components: []abi.ArgumentMarshaling{
		field("targets", "address[]"),
		field("data", "bytes[]"),
	}},
)

type universalSwapData struct {
	Targets []common.Address
	Data    [][]byte
}

type universalSwap struct {
	TokenIn  common.Address
	TokenOut common.Address
	AmountIn *big.Int
	Data     universalSwapData
}

// UniversalTokenSwapperFuse swaps by running arbitrary calls (approve, router
// call) from the swapper executor; targets[i] receives data[i].
type UniversalTokenSwapperFuse struct{ base }

func NewUniversalTokenSwapperFuse(addr common.Address) (UniversalTokenSwapperFuse, error) {
	b, err := newBase("universal token swapper fuse", addr)
	return UniversalTokenSwapperFuse{b}, err
}

func (f UniversalTokenSwapperFuse) Supports(m MarketID) bool {
	return m.ProtocolID == ProtocolUniversalTokenSwapper && m.MarketID == "universal-swap"
}

func (f UniversalTokenSwapperFuse) Swap(tokenIn, tokenOut common.Address, amountIn *big.Int, targets []common.Address, data [][]byte) (FuseAction, error) {
	if err := requireAmount("amountIn", amountIn); err != nil {
		return FuseAction{}, err
	}
	if len(targets) != len(data) {
		return FuseAction{}, clierr.New(clierr.CodeUsage, "targets and data must have the same length")
	}
	calls := make([][]byte, len(data))
	for i, d := range data {
		if d == nil {
			d = []byte{}
		}
		calls[i] = d
	}
	return f.call(enterUniversalSwap, universalSwapArgs, universalSwap{
		TokenIn:  tokenIn,
		TokenOut: tokenOut,
		AmountIn: amountIn,
		Data:     universalSwapData{Targets: nonNilAddresses(targets), Data: calls},
	})
}
