package markets

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ipor-labs/fusion/internal/fuse"
	"github.com/ipor-labs/fusion/internal/registry"
)

type UniversalMarket struct {
	swapper *fuse.UniversalTokenSwapperFuse
}

func NewUniversalMarket(chainID int64, fuses []common.Address) *UniversalMarket {
	return &UniversalMarket{swapper: build(newFuseSet(chainID, fuses), registry.UniversalTokenSwapperFuse, fuse.NewUniversalTokenSwapperFuse)}
}

func (m *UniversalMarket) Supported() bool { return m.swapper != nil }

// Swap routes amountIn of tokenIn through arbitrary calls; targets[i] receives data[i].
func (m *UniversalMarket) Swap(tokenIn, tokenOut common.Address, amountIn *big.Int, targets []common.Address, data [][]byte) (fuse.FuseAction, error) {
	if m.swapper == nil {
		return fuse.FuseAction{}, unsupported(registry.UniversalTokenSwapperFuse)
	}
	return m.swapper.Swap(tokenIn, tokenOut, amountIn, targets, data)
}
