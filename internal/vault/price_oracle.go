package vault

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ipor-labs/fusion/internal/registry"
)

// Price is a fixed-point USD price as returned by the oracle middleware.
type Price struct {
	Amount   *big.Int `json:"amount"`
	Decimals *big.Int `json:"decimals"`
}

// Readable converts the price to a float for display.
func (p Price) Readable() float64 {
	if p.Amount == nil {
		return 0
	}
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), p.decimals(), nil))
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(p.Amount), scale).Float64()
	return f
}

func (p Price) decimals() *big.Int {
	if p.Decimals == nil {
		return big.NewInt(0)
	}
	return p.Decimals
}

type PriceOracleMiddleware struct {
	contract
}

func NewPriceOracleMiddleware(exec Executor, address common.Address) *PriceOracleMiddleware {
	return &PriceOracleMiddleware{newContract("PriceOracleMiddleware", address, registry.MustABI(registry.PriceOracleMiddlewareABI), exec)}
}

func (o *PriceOracleMiddleware) AssetPrice(ctx context.Context, asset common.Address) (Price, error) {
	values, err := o.call(ctx, "getAssetPrice", asset)
	if err != nil {
		return Price{}, err
	}
	amount, err := bigAt(values, 0, "getAssetPrice.assetPrice")
	if err != nil {
		return Price{}, err
	}
	decimals, err := bigAt(values, 1, "getAssetPrice.decimals")
	if err != nil {
		return Price{}, err
	}
	return Price{Amount: amount, Decimals: decimals}, nil
}

func (o *PriceOracleMiddleware) SourceOfAssetPrice(ctx context.Context, asset common.Address) (common.Address, error) {
	return o.callAddress(ctx, "getSourceOfAssetPrice", asset)
}

func (o *PriceOracleMiddleware) ChainlinkFeedRegistry(ctx context.Context) (common.Address, error) {
	return o.callAddress(ctx, "CHAINLINK_FEED_REGISTRY")
}
