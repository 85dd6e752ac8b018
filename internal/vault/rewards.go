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

// RewardsClaimManager runs claim fuses and vests rewards back into the vault.
type RewardsClaimManager struct {
	contract
}

func NewRewardsClaimManager(exec Executor, address common.Address) *RewardsClaimManager {
	return &RewardsClaimManager{newContract("RewardsClaimManager", address, registry.MustABI(registry.RewardsClaimManagerABI), exec)}
}

func (r *RewardsClaimManager) ClaimRewards(ctx context.Context, actions []fuse.FuseAction) (*types.Receipt, error) {
	data, err := r.ClaimRewardsData(actions)
	if err != nil {
		return nil, err
	}
	return r.exec.Execute(ctx, r.address, data)
}

func (r *RewardsClaimManager) ClaimRewardsData(actions []fuse.FuseAction) ([]byte, error) {
	if len(actions) == 0 {
		return nil, clierr.New(clierr.CodeUsage, "claimRewards requires at least one claim action")
	}
	return fuse.ClaimRewardsCalldata(actions)
}

func (r *RewardsClaimManager) TransferVestedTokensToVault(ctx context.Context) (*types.Receipt, error) {
	return r.send(ctx, "transferVestedTokensToVault")
}

func (r *RewardsClaimManager) UpdateBalance(ctx context.Context) (*types.Receipt, error) {
	return r.send(ctx, "updateBalance")
}

// Balance is the vested balance held for the vault.
func (r *RewardsClaimManager) Balance(ctx context.Context) (*big.Int, error) {
	return r.callBig(ctx, "balanceOf")
}

// RewardsFuses lists the claim fuses registered on the manager. Claim fuses
// live here rather than in the vault's getFuses.
func (r *RewardsClaimManager) RewardsFuses(ctx context.Context) ([]common.Address, error) {
	values, err := r.call(ctx, "getRewardsFuses")
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}
	fuses, ok := values[0].([]common.Address)
	if !ok {
		return nil, clierr.New(clierr.CodeUnavailable, "RewardsClaimManager.getRewardsFuses: unexpected result type")
	}
	return fuses, nil
}
