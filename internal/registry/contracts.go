package registry

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ipor-labs/fusion/internal/errors"
	"github.com/ipor-labs/fusion/internal/id"
)

// ExternalSystems holds the well-known tokens the vault tooling reads balances of.
type ExternalSystems struct {
	ChainID int64
	USDC    common.Address
	USDT    common.Address
}

func ExternalSystemsFor(chainID int64) (ExternalSystems, error) {
	out := ExternalSystems{ChainID: chainID}
	usdc, ok := id.KnownToken(chainID, "USDC")
	if !ok {
		return ExternalSystems{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("no external systems for chain id %d", chainID))
	}
	out.USDC = common.HexToAddress(usdc.Address)
	if usdt, ok := id.KnownToken(chainID, "USDT"); ok {
		out.USDT = common.HexToAddress(usdt.Address)
	}
	return out, nil
}

// AssetAddress maps a registry symbol to its address on chainID.
func AssetAddress(chainID int64, symbol string) (common.Address, error) {
	token, ok := id.KnownToken(chainID, symbol)
	if !ok {
		return common.Address{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("asset %s is not mapped on chain id %d", symbol, chainID))
	}
	return common.HexToAddress(token.Address), nil
}

// MustAssetAddress is for package-level market constants whose symbols are known.
func MustAssetAddress(chainID int64, symbol string) common.Address {
	addr, err := AssetAddress(chainID, symbol)
	if err != nil {
		panic(err)
	}
	return addr
}
