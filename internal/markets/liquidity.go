package markets

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ipor-labs/fusion/internal/fuse"
	"github.com/ipor-labs/fusion/internal/registry"
)

type UniswapV3Market struct {
	swap        *fuse.UniswapV3SwapFuse
	newPosition *fuse.UniswapV3NewPositionFuse
	modify      *fuse.ModifyPositionFuse
	collect     *fuse.CollectFuse
}

func NewUniswapV3Market(chainID int64, fuses []common.Address) *UniswapV3Market {
	s := newFuseSet(chainID, fuses)
	return &UniswapV3Market{
		swap:        build(s, registry.UniswapV3SwapFuse, fuse.NewUniswapV3SwapFuse),
		newPosition: build(s, registry.UniswapV3NewPositionFuse, fuse.NewUniswapV3NewPositionFuse),
		modify:      build(s, registry.UniswapV3ModifyPositionFuse, fuse.NewModifyPositionFuse),
		collect:     build(s, registry.UniswapV3CollectFuse, fuse.NewCollectFuse),
	}
}

func (m *UniswapV3Market) Supported() bool {
	return anyOf(m.swap != nil, m.newPosition != nil, m.modify != nil, m.collect != nil)
}

func (m *UniswapV3Market) Swap(tokenIn, tokenOut common.Address, fee uint32, amountIn, minOut *big.Int) (fuse.FuseAction, error) {
	if m.swap == nil {
		return fuse.FuseAction{}, unsupported(registry.UniswapV3SwapFuse)
	}
	return m.swap.Swap(tokenIn, tokenOut, fee, amountIn, minOut)
}

func (m *UniswapV3Market) NewPosition(p fuse.NewPositionParams) (fuse.FuseAction, error) {
	if m.newPosition == nil {
		return fuse.FuseAction{}, unsupported(registry.UniswapV3NewPositionFuse)
	}
	return m.newPosition.NewPosition(p)
}

func (m *UniswapV3Market) ClosePosition(tokenIDs []*big.Int) (fuse.FuseAction, error) {
	if m.newPosition == nil {
		return fuse.FuseAction{}, unsupported(registry.UniswapV3NewPositionFuse)
	}
	return m.newPosition.ClosePosition(tokenIDs)
}

func (m *UniswapV3Market) IncreasePosition(p fuse.ModifyPositionParams) (fuse.FuseAction, error) {
	if m.modify == nil {
		return fuse.FuseAction{}, unsupported(registry.UniswapV3ModifyPositionFuse)
	}
	return m.modify.IncreasePosition(p)
}

func (m *UniswapV3Market) DecreasePosition(p fuse.DecreasePositionParams) (fuse.FuseAction, error) {
	if m.modify == nil {
		return fuse.FuseAction{}, unsupported(registry.UniswapV3ModifyPositionFuse)
	}
	return m.modify.DecreasePosition(p)
}

func (m *UniswapV3Market) Collect(tokenIDs []*big.Int) (fuse.FuseAction, error) {
	if m.collect == nil {
		return fuse.FuseAction{}, unsupported(registry.UniswapV3CollectFuse)
	}
	return m.collect.Collect(tokenIDs)
}

// RamsesV2Market mirrors UniswapV3Market for Ramses concentrated liquidity,
// with veRAM boosted mints and gauge reward claims.
type RamsesV2Market struct {
	newPosition *fuse.RamsesV2NewPositionFuse
	modify      *fuse.ModifyPositionFuse
	collect     *fuse.CollectFuse
	claim       *fuse.RamsesClaimFuse
}

func NewRamsesV2Market(chainID int64, fuses []common.Address) *RamsesV2Market {
	s := newFuseSet(chainID, fuses)
	return &RamsesV2Market{
		newPosition: build(s, registry.RamsesV2NewPositionFuse, fuse.NewRamsesV2NewPositionFuse),
		modify:      build(s, registry.RamsesV2ModifyPositionFuse, fuse.NewModifyPositionFuse),
		collect:     build(s, registry.RamsesV2CollectFuse, fuse.NewCollectFuse),
		claim:       build(s, registry.RamsesClaimFuse, fuse.NewRamsesClaimFuse),
	}
}

func (m *RamsesV2Market) Supported() bool {
	return anyOf(m.newPosition != nil, m.modify != nil, m.collect != nil, m.claim != nil)
}

func (m *RamsesV2Market) NewPosition(p fuse.NewPositionParams, veRamTokenID *big.Int) (fuse.FuseAction, error) {
	if m.newPosition == nil {
		return fuse.FuseAction{}, unsupported(registry.RamsesV2NewPositionFuse)
	}
	return m.newPosition.NewPosition(p, veRamTokenID)
}

func (m *RamsesV2Market) ClosePosition(tokenIDs []*big.Int) (fuse.FuseAction, error) {
	if m.newPosition == nil {
		return fuse.FuseAction{}, unsupported(registry.RamsesV2NewPositionFuse)
	}
	return m.newPosition.ClosePosition(tokenIDs)
}

func (m *RamsesV2Market) IncreasePosition(p fuse.ModifyPositionParams) (fuse.FuseAction, error) {
	if m.modify == nil {
		return fuse.FuseAction{}, unsupported(registry.RamsesV2ModifyPositionFuse)
	}
	return m.modify.IncreasePosition(p)
}

func (m *RamsesV2Market) DecreasePosition(p fuse.DecreasePositionParams) (fuse.FuseAction, error) {
	if m.modify == nil {
		return fuse.FuseAction{}, unsupported(registry.RamsesV2ModifyPositionFuse)
	}
	return m.modify.DecreasePosition(p)
}

func (m *RamsesV2Market) Collect(tokenIDs []*big.Int) (fuse.FuseAction, error) {
	if m.collect == nil {
		return fuse.FuseAction{}, unsupported(registry.RamsesV2CollectFuse)
	}
	return m.collect.Collect(tokenIDs)
}

func (m *RamsesV2Market) Claim(tokenIDs []*big.Int, tokenRewards [][]common.Address) (fuse.FuseAction, error) {
	if m.claim == nil {
		return fuse.FuseAction{}, unsupported(registry.RamsesClaimFuse)
	}
	return m.claim.Claim(tokenIDs, tokenRewards)
}
