package fuse

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	clierr "github.com/ipor-labs/fusion/internal/errors"
)

const (
	RamsesV2NewPositionEnterEvent  = "RamsesV2NewPositionFuseEnter(address,uint256,uint128,uint256,uint256,address,address,uint24,int24,int24)"
	RamsesV2NewPositionExitEvent   = "RamsesV2NewPositionFuseExit(address,uint256)"
	UniswapV3NewPositionEnterEvent = "UniswapV3NewPositionFuseEnter(address,uint256,uint128,uint256,uint256,address,address,uint24,int24,int24)"
	UniswapV3NewPositionExitEvent  = "UniswapV3NewPositionFuseExit(address,uint256)"
)

var (
	positionEnterArgs = params(
		field("version", "address"), field("tokenId", "uint256"), field("liquidity", "uint128"),
		field("amount0", "uint256"), field("amount1", "uint256"), field("sender", "address"),
		field("recipient", "address"), field("fee", "uint24"), field("tickLower", "int24"), field("tickUpper", "int24"),
	)
	positionExitArgs = params(field("version", "address"), field("tokenId", "uint256"))
)

// PositionEnterEvent is emitted by a new position fuse when it mints.
type PositionEnterEvent struct {
	Version   common.Address `json:"version"`
	TokenID   *big.Int       `json:"token_id"`
	Liquidity *big.Int       `json:"liquidity"`
	Amount0   *big.Int       `json:"amount0"`
	Amount1   *big.Int       `json:"amount1"`
	Sender    common.Address `json:"sender"`
	Recipient common.Address `json:"recipient"`
	Fee       *big.Int       `json:"fee"`
	TickLower *big.Int       `json:"tick_lower"`
	TickUpper *big.Int       `json:"tick_upper"`
}

// PositionExitEvent is emitted when a position is closed.
type PositionExitEvent struct {
	Version common.Address `json:"version"`
	TokenID *big.Int       `json:"token_id"`
}

func findLog(logs []*types.Log, signature string) (*types.Log, bool) {
	topic := crypto.Keccak256Hash([]byte(signature))
	for _, l := range logs {
		if l != nil && len(l.Topics) > 0 && l.Topics[0] == topic {
			return l, true
		}
	}
	return nil, false
}

// DecodePositionEnter finds the first enter event with the given signature.
// ok is false when the receipt has no such event.
func DecodePositionEnter(logs []*types.Log, signature string) (PositionEnterEvent, bool, error) {
	l, ok := findLog(logs, signature)
	if !ok {
		return PositionEnterEvent{}, false, nil
	}
	values, err := positionEnterArgs.Unpack(l.Data)
	if err != nil {
		return PositionEnterEvent{}, true, clierr.Wrap(clierr.CodeInternal, "decode position enter event", err)
	}
	return PositionEnterEvent{
		Version:   values[0].(common.Address),
		TokenID:   values[1].(*big.Int),
		Liquidity: values[2].(*big.Int),
		Amount0:   values[3].(*big.Int),
		Amount1:   values[4].(*big.Int),
		Sender:    values[5].(common.Address),
		Recipient: values[6].(common.Address),
		Fee:       values[7].(*big.Int),
		TickLower: values[8].(*big.Int),
		TickUpper: values[9].(*big.Int),
	}, true, nil
}

func DecodePositionExit(logs []*types.Log, signature string) (PositionExitEvent, bool, error) {
	l, ok := findLog(logs, signature)
	if !ok {
		return PositionExitEvent{}, false, nil
	}
	values, err := positionExitArgs.Unpack(l.Data)
	if err != nil {
		return PositionExitEvent{}, true, clierr.Wrap(clierr.CodeInternal, "decode position exit event", err)
	}
	return PositionExitEvent{Version: values[0].(common.Address), TokenID: values[1].(*big.Int)}, true, nil
}

// EncodePositionEnterData packs event data; used to fake receipts in tests and
// by tooling that replays fuse events.
func EncodePositionEnterData(e PositionEnterEvent) ([]byte, error) {
	return positionEnterArgs.Pack(e.Version, e.TokenID, e.Liquidity, e.Amount0, e.Amount1, e.Sender, e.Recipient, e.Fee, e.TickLower, e.TickUpper)
}

