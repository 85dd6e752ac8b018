package vault

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// Data is the set of addresses that hang off one Plasma Vault.
type Data struct {
	PlasmaVault           common.Address  `json:"plasma_vault"`
	Asset                 common.Address  `json:"asset"`
	AccessManager         common.Address  `json:"access_manager"`
	WithdrawManager       *common.Address `json:"withdraw_manager,omitempty"`
	RewardsClaimManager   common.Address  `json:"rewards_claim_manager"`
	PriceOracleMiddleware common.Address  `json:"price_oracle_middleware"`
}

// ReadData reads every component address from the vault. A vault without a
// withdraw manager reverts (or returns nothing) on getWithdrawManager; that
// yields a nil WithdrawManager rather than an error.
func ReadData(ctx context.Context, exec Executor, address common.Address, isRevert func(error) bool) (Data, error) {
	v := NewPlasmaVault(exec, address)
	data := Data{PlasmaVault: address}
	var err error
	if data.Asset, err = v.Asset(ctx); err != nil {
		return Data{}, err
	}
	if data.AccessManager, err = v.AccessManagerAddress(ctx); err != nil {
		return Data{}, err
	}
	if data.RewardsClaimManager, err = v.RewardsClaimManagerAddress(ctx); err != nil {
		return Data{}, err
	}
	if data.PriceOracleMiddleware, err = v.PriceOracleMiddlewareAddress(ctx); err != nil {
		return Data{}, err
	}
	wm, err := v.WithdrawManagerAddress(ctx)
	switch {
	case err == nil && wm != (common.Address{}):
		data.WithdrawManager = &wm
	case err != nil && !errors.Is(err, ErrEmptyResult) && (isRevert == nil || !isRevert(err)):
		return Data{}, err
	}
	return data, nil
}
