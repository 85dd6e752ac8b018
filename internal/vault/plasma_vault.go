package vault

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	clierr "github.com/ipor-labs/fusion/internal/errors"
	"github.com/ipor-labs/fusion/internal/fuse"
	"github.com/ipor-labs/fusion/internal/registry"
)

// PlasmaVault is an ERC4626 vault that delegates strategy calls to fuses.
type PlasmaVault struct {
	contract
}

func NewPlasmaVault(exec Executor, address common.Address) *PlasmaVault {
	return &PlasmaVault{newContract("PlasmaVault", address, registry.MustABI(registry.PlasmaVaultABI), exec)}
}

// Execute sends one execute((address,bytes)[]) transaction for actions.
func (v *PlasmaVault) Execute(ctx context.Context, actions []fuse.FuseAction) (*types.Receipt, error) {
	data, err := v.executeData(actions)
	if err != nil {
		return nil, err
	}
	return v.exec.Execute(ctx, v.address, data)
}

// Simulate runs the execute call through eth_call only.
func (v *PlasmaVault) Simulate(ctx context.Context, actions []fuse.FuseAction) error {
	data, err := v.executeData(actions)
	if err != nil {
		return err
	}
	return v.exec.Simulate(ctx, v.address, data)
}

func (v *PlasmaVault) executeData(actions []fuse.FuseAction) ([]byte, error) {
	if len(actions) == 0 {
		return nil, clierr.New(clierr.CodeUsage, "execute requires at least one fuse action")
	}
	return fuse.ExecuteCalldata(actions)
}

func (v *PlasmaVault) Deposit(ctx context.Context, assets *big.Int, receiver common.Address) (*types.Receipt, error) {
	return v.send(ctx, "deposit", assets, receiver)
}

func (v *PlasmaVault) Mint(ctx context.Context, shares *big.Int, receiver common.Address) (*types.Receipt, error) {
	return v.send(ctx, "mint", shares, receiver)
}

func (v *PlasmaVault) Withdraw(ctx context.Context, assets *big.Int, receiver, owner common.Address) (*types.Receipt, error) {
	return v.send(ctx, "withdraw", assets, receiver, owner)
}

func (v *PlasmaVault) Redeem(ctx context.Context, shares *big.Int, receiver, owner common.Address) (*types.Receipt, error) {
	return v.send(ctx, "redeem", shares, receiver, owner)
}

// DepositData is the deposit call data, used when planning stored actions.
func (v *PlasmaVault) DepositData(assets *big.Int, receiver common.Address) ([]byte, error) {
	return v.pack("deposit", assets, receiver)
}

func (v *PlasmaVault) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return v.callBig(ctx, "balanceOf", account)
}

func (v *PlasmaVault) MaxWithdraw(ctx context.Context, owner common.Address) (*big.Int, error) {
	return v.callBig(ctx, "maxWithdraw", owner)
}

func (v *PlasmaVault) ConvertToAssets(ctx context.Context, shares *big.Int) (*big.Int, error) {
	return v.callBig(ctx, "convertToAssets", shares)
}

func (v *PlasmaVault) TotalAssets(ctx context.Context) (*big.Int, error) {
	return v.callBig(ctx, "totalAssets")
}

func (v *PlasmaVault) TotalAssetsInMarket(ctx context.Context, marketID *big.Int) (*big.Int, error) {
	return v.callBig(ctx, "totalAssetsInMarket", marketID)
}

func (v *PlasmaVault) TotalSupply(ctx context.Context) (*big.Int, error) {
	return v.callBig(ctx, "totalSupply")
}

func (v *PlasmaVault) Decimals(ctx context.Context) (uint8, error) {
	d, err := v.callBig(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	return uint8(d.Uint64()), nil
}

func (v *PlasmaVault) TotalSupplyCap(ctx context.Context) (*big.Int, error) {
	return v.callBig(ctx, "getTotalSupplyCap")
}

func (v *PlasmaVault) SetTotalSupplyCap(ctx context.Context, limit *big.Int) (*types.Receipt, error) {
	return v.send(ctx, "setTotalSupplyCap", limit)
}

func (v *PlasmaVault) Asset(ctx context.Context) (common.Address, error) {
	return v.callAddress(ctx, "asset")
}

func (v *PlasmaVault) AccessManagerAddress(ctx context.Context) (common.Address, error) {
	return v.callAddress(ctx, "getAccessManagerAddress")
}

func (v *PlasmaVault) RewardsClaimManagerAddress(ctx context.Context) (common.Address, error) {
	return v.callAddress(ctx, "getRewardsClaimManagerAddress")
}

func (v *PlasmaVault) PriceOracleMiddlewareAddress(ctx context.Context) (common.Address, error) {
	return v.callAddress(ctx, "getPriceOracleMiddleware")
}

// WithdrawManagerAddress reads getWithdrawManager. Vaults deployed without a
// withdraw manager revert here.
func (v *PlasmaVault) WithdrawManagerAddress(ctx context.Context) (common.Address, error) {
	return v.callAddress(ctx, "getWithdrawManager")
}

// Fuses lists the fuses the vault has enabled.
func (v *PlasmaVault) Fuses(ctx context.Context) ([]common.Address, error) {
	values, err := v.call(ctx, "getFuses")
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}
	fuses, ok := values[0].([]common.Address)
	if !ok {
		return nil, clierr.New(clierr.CodeUnavailable, "PlasmaVault.getFuses: unexpected result type")
	}
	return fuses, nil
}

// MarketSubstrates lists the raw bytes32 substrates granted to a market.
func (v *PlasmaVault) MarketSubstrates(ctx context.Context, marketID *big.Int) ([][32]byte, error) {
	values, err := v.call(ctx, "getMarketSubstrates", marketID)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}
	substrates, ok := values[0].([][32]byte)
	if !ok {
		return nil, clierr.New(clierr.CodeUnavailable, "PlasmaVault.getMarketSubstrates: unexpected result type")
	}
	return substrates, nil
}
