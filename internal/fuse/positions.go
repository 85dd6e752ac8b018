package fuse

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ipor-labs/fusion/internal/errors"
)

const (
	enterUniswapSwap        = "enter((uint256,uint256,bytes))"
	enterUniswapNewPosition = "enter((address,address,uint24,int24,int24,uint256,uint256,uint256,uint256,uint256))"
	enterRamsesNewPosition  = "enter((address,address,uint24,int24,int24,uint256,uint256,uint256,uint256,uint256,uint256))"
	exitTokenIDs            = "exit((uint256[]))"
	enterTokenIDs           = "enter((uint256[]))"
	enterIncreasePosition   = "enter((address,address,uint256,uint256,uint256,uint256,uint256,uint256))"
	exitDecreasePosition    = "exit((uint256,uint128,uint256,uint256,uint256))"
)

var (
	swapArgs = tuple(field("tokenInAmount", "uint256"), field("minOutAmount", "uint256"), field("path", "bytes"))

	newPositionFields = []string{
		"token0:address", "token1:address", "fee:uint24", "tickLower:int24", "tickUpper:int24",
		"amount0Desired:uint256", "amount1Desired:uint256", "amount0Min:uint256", "amount1Min:uint256", "deadline:uint256",
	}
	uniswapNewPositionArgs = tupleOf(newPositionFields...)
	ramsesNewPositionArgs  = tupleOf(append(append([]string{}, newPositionFields...), "veRamTokenId:uint256")...)

	tokenIDsArgs         = tuple(field("tokenIds", "uint256[]"))
	increasePositionArgs = tupleOf(
		"token0:address", "token1:address", "tokenId:uint256", "amount0Desired:uint256",
		"amount1Desired:uint256", "amount0Min:uint256", "amount1Min:uint256", "deadline:uint256",
	)
	decreasePositionArgs = tupleOf(
		"tokenId:uint256", "liquidity:uint128", "amount0Min:uint256", "amount1Min:uint256", "deadline:uint256",
	)
)

// NewPositionParams mints a concentrated-liquidity position.
type NewPositionParams struct {
	Token0         common.Address
	Token1         common.Address
	Fee            *big.Int
	TickLower      *big.Int
	TickUpper      *big.Int
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Amount0Min     *big.Int
	Amount1Min     *big.Int
	Deadline       *big.Int
}

func (p NewPositionParams) validate() error {
	if p.Fee == nil || p.TickLower == nil || p.TickUpper == nil {
		return clierr.New(clierr.CodeUsage, "fee and ticks are required")
	}
	if p.Fee.Sign() < 0 || p.Fee.BitLen() > 24 {
		return clierr.New(clierr.CodeUsage, "fee must fit in uint24")
	}
	for _, tick := range []*big.Int{p.TickLower, p.TickUpper} {
		if tick.Cmp(big.NewInt(-1<<23)) < 0 || tick.Cmp(big.NewInt(1<<23-1)) > 0 {
			return clierr.New(clierr.CodeUsage, fmt.Sprintf("tick %s does not fit in int24", tick))
		}
	}
	if p.TickLower.Cmp(p.TickUpper) >= 0 {
		return clierr.New(clierr.CodeUsage, "tickLower must be below tickUpper")
	}
	return requireAmounts(
		"amount0Desired", p.Amount0Desired, "amount1Desired", p.Amount1Desired,
		"amount0Min", p.Amount0Min, "amount1Min", p.Amount1Min, "deadline", p.Deadline,
	)
}

type ramsesNewPosition struct {
	Token0         common.Address
	Token1         common.Address
	Fee            *big.Int
	TickLower      *big.Int
	TickUpper      *big.Int
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Amount0Min     *big.Int
	Amount1Min     *big.Int
	Deadline       *big.Int
	VeRamTokenId   *big.Int
}

// ModifyPositionParams adds liquidity to an existing position.
type ModifyPositionParams struct {
	Token0         common.Address
	Token1         common.Address
	TokenId        *big.Int
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Amount0Min     *big.Int
	Amount1Min     *big.Int
	Deadline       *big.Int
}

// DecreasePositionParams removes liquidity from a position.
type DecreasePositionParams struct {
	TokenId    *big.Int
	Liquidity  *big.Int
	Amount0Min *big.Int
	Amount1Min *big.Int
	Deadline   *big.Int
}

type tokenIDs struct {
	TokenIds []*big.Int
}

func tokenIDList(ids []*big.Int) (tokenIDs, error) {
	if len(ids) == 0 {
		return tokenIDs{}, clierr.New(clierr.CodeUsage, "at least one token id is required")
	}
	for i, id := range ids {
		if err := requireAmount(fmt.Sprintf("tokenIds[%d]", i), id); err != nil {
			return tokenIDs{}, err
		}
	}
	return tokenIDs{TokenIds: ids}, nil
}

// UniswapV3SwapFuse swaps exact input along a single-hop path.
type UniswapV3SwapFuse struct{ base }

func NewUniswapV3SwapFuse(addr common.Address) (UniswapV3SwapFuse, error) {
	b, err := newBase("uniswap v3 swap fuse", addr)
	return UniswapV3SwapFuse{b}, err
}

func (f UniswapV3SwapFuse) Supports(m MarketID) bool {
	return m.ProtocolID == ProtocolUniswapV3 && m.MarketID == "swap"
}

func (f UniswapV3SwapFuse) Swap(tokenIn, tokenOut common.Address, fee uint32, amountIn, minOut *big.Int) (FuseAction, error) {
	if err := requireAmounts("amountIn", amountIn, "minOut", minOut); err != nil {
		return FuseAction{}, err
	}
	path, err := SwapPath(tokenIn, fee, tokenOut)
	if err != nil {
		return FuseAction{}, err
	}
	return f.call(enterUniswapSwap, swapArgs, struct {
		TokenInAmount *big.Int
		MinOutAmount  *big.Int
		Path          []byte
	}{amountIn, minOut, path})
}

// SwapPath encodes a single-hop path: tokenIn(20) || fee(3, big endian) || tokenOut(20).
func SwapPath(tokenIn common.Address, fee uint32, tokenOut common.Address) ([]byte, error) {
	if fee >= 1<<24 {
		return nil, clierr.New(clierr.CodeUsage, "fee must fit in uint24")
	}
	path := make([]byte, 0, 43)
	path = append(path, tokenIn.Bytes()...)
	path = append(path, byte(fee>>16), byte(fee>>8), byte(fee))
	return append(path, tokenOut.Bytes()...), nil
}

type UniswapV3NewPositionFuse struct{ base }

func NewUniswapV3NewPositionFuse(addr common.Address) (UniswapV3NewPositionFuse, error) {
	b, err := newBase("uniswap v3 new position fuse", addr)
	return UniswapV3NewPositionFuse{b}, err
}

func (f UniswapV3NewPositionFuse) Supports(m MarketID) bool {
	return m.ProtocolID == ProtocolUniswapV3 && m.MarketID == "new-position"
}

func (f UniswapV3NewPositionFuse) NewPosition(p NewPositionParams) (FuseAction, error) {
	if err := p.validate(); err != nil {
		return FuseAction{}, err
	}
	return f.call(enterUniswapNewPosition, uniswapNewPositionArgs, p)
}

func (f UniswapV3NewPositionFuse) ClosePosition(ids []*big.Int) (FuseAction, error) {
	list, err := tokenIDList(ids)
	if err != nil {
		return FuseAction{}, err
	}
	return f.call(exitTokenIDs, tokenIDsArgs, list)
}

type RamsesV2NewPositionFuse struct{ base }

func NewRamsesV2NewPositionFuse(addr common.Address) (RamsesV2NewPositionFuse, error) {
	b, err := newBase("ramses v2 new position fuse", addr)
	return RamsesV2NewPositionFuse{b}, err
}

func (f RamsesV2NewPositionFuse) Supports(m MarketID) bool {
	return m.ProtocolID == ProtocolRamsesV2 && m.MarketID == "new-position"
}

func (f RamsesV2NewPositionFuse) NewPosition(p NewPositionParams, veRamTokenID *big.Int) (FuseAction, error) {
	if err := p.validate(); err != nil {
		return FuseAction{}, err
	}
	if veRamTokenID == nil {
		veRamTokenID = new(big.Int)
	}
	return f.call(enterRamsesNewPosition, ramsesNewPositionArgs, ramsesNewPosition{
		Token0:         p.Token0,
		Token1:         p.Token1,
		Fee:            p.Fee,
		TickLower:      p.TickLower,
		TickUpper:      p.TickUpper,
		Amount0Desired: p.Amount0Desired,
		Amount1Desired: p.Amount1Desired,
		Amount0Min:     p.Amount0Min,
		Amount1Min:     p.Amount1Min,
		Deadline:       p.Deadline,
		VeRamTokenId:   veRamTokenID,
	})
}

func (f RamsesV2NewPositionFuse) ClosePosition(ids []*big.Int) (FuseAction, error) {
	list, err := tokenIDList(ids)
	if err != nil {
		return FuseAction{}, err
	}
	return f.call(exitTokenIDs, tokenIDsArgs, list)
}

// ModifyPositionFuse is shared by the Uniswap V3 and Ramses V2 modify fuses.
type ModifyPositionFuse struct{ base }

func NewModifyPositionFuse(addr common.Address) (ModifyPositionFuse, error) {
	b, err := newBase("modify position fuse", addr)
	return ModifyPositionFuse{b}, err
}

func (f ModifyPositionFuse) IncreasePosition(p ModifyPositionParams) (FuseAction, error) {
	if err := requireAmounts(
		"tokenId", p.TokenId, "amount0Desired", p.Amount0Desired, "amount1Desired", p.Amount1Desired,
		"amount0Min", p.Amount0Min, "amount1Min", p.Amount1Min, "deadline", p.Deadline,
	); err != nil {
		return FuseAction{}, err
	}
	return f.call(enterIncreasePosition, increasePositionArgs, p)
}

func (f ModifyPositionFuse) DecreasePosition(p DecreasePositionParams) (FuseAction, error) {
	if err := requireAmounts(
		"tokenId", p.TokenId, "liquidity", p.Liquidity,
		"amount0Min", p.Amount0Min, "amount1Min", p.Amount1Min, "deadline", p.Deadline,
	); err != nil {
		return FuseAction{}, err
	}
	if p.Liquidity.BitLen() > 128 {
		return FuseAction{}, clierr.New(clierr.CodeUsage, "liquidity must fit in uint128")
	}
	return f.call(exitDecreasePosition, decreasePositionArgs, p)
}

// CollectFuse collects owed fees for positions (Uniswap V3 and Ramses V2).
type CollectFuse struct{ base }

func NewCollectFuse(addr common.Address) (CollectFuse, error) {
	b, err := newBase("collect fuse", addr)
	return CollectFuse{b}, err
}

func (f CollectFuse) Collect(ids []*big.Int) (FuseAction, error) {
	list, err := tokenIDList(ids)
	if err != nil {
		return FuseAction{}, err
	}
	return f.call(enterTokenIDs, tokenIDsArgs, list)
}
