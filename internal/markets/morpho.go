package markets

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ipor-labs/fusion/internal/errors"
	"github.com/ipor-labs/fusion/internal/fuse"
	"github.com/ipor-labs/fusion/internal/registry"
	"github.com/ipor-labs/fusion/internal/vault"
)

var morphoBlueABI = registry.MustABI(registry.MorphoBlueABI)

type MorphoMarket struct {
	exec       vault.Executor
	morphoBlue common.Address
	supply     *fuse.MorphoSupplyFuse
	flashLoan  *fuse.MorphoFlashLoanFuse
	claim      *fuse.MorphoBlueClaimFuse
}

type morphoOptions struct {
	claimFuse    common.Address
	rewardsFuses []common.Address
}

type MorphoOption func(*morphoOptions)

// WithClaimFuse uses addr as the Morpho Blue claim fuse without a registry check.
func WithClaimFuse(addr common.Address) MorphoOption {
	return func(o *morphoOptions) { o.claimFuse = addr }
}

// WithRewardsFuses adds the rewards claim manager's fuses as claim fuse
// candidates. They are matched against the registry like vault fuses.
func WithRewardsFuses(fuses []common.Address) MorphoOption {
	return func(o *morphoOptions) { o.rewardsFuses = append(o.rewardsFuses, fuses...) }
}

func NewMorphoMarket(chainID int64, exec vault.Executor, fuses []common.Address, opts ...MorphoOption) *MorphoMarket {
	var o morphoOptions
	for _, opt := range opts {
		opt(&o)
	}
	s := newFuseSet(chainID, fuses)
	m := &MorphoMarket{
		exec:       exec,
		morphoBlue: common.HexToAddress(registry.MorphoBlueAddress),
		supply:     build(s, registry.MorphoSupplyFuse, fuse.NewMorphoSupplyFuse),
		flashLoan:  build(s, registry.MorphoFlashLoanFuse, fuse.NewMorphoFlashLoanFuse),
	}
	if o.claimFuse != (common.Address{}) {
		if f, err := fuse.NewMorphoBlueClaimFuse(o.claimFuse); err == nil {
			m.claim = &f
		}
		return m
	}
	claimCandidates := newFuseSet(chainID, append(append([]common.Address{}, o.rewardsFuses...), fuses...))
	m.claim = build(claimCandidates, registry.MorphoClaimFuse, fuse.NewMorphoBlueClaimFuse)
	return m
}

// ClaimFuse is the claim fuse in use, if any.
func (m *MorphoMarket) ClaimFuse() (common.Address, bool) {
	if m.claim == nil {
		return common.Address{}, false
	}
	return m.claim.Address(), true
}

func (m *MorphoMarket) Supported() bool {
	return anyOf(m.supply != nil, m.flashLoan != nil, m.claim != nil)
}

func (m *MorphoMarket) Supply(marketID common.Hash, amount *big.Int) (fuse.FuseAction, error) {
	if m.supply == nil {
		return fuse.FuseAction{}, unsupported(registry.MorphoSupplyFuse)
	}
	return m.supply.Supply(marketID, amount)
}

func (m *MorphoMarket) Withdraw(marketID common.Hash, amount *big.Int) (fuse.FuseAction, error) {
	if m.supply == nil {
		return fuse.FuseAction{}, unsupported(registry.MorphoSupplyFuse)
	}
	return m.supply.Withdraw(marketID, amount)
}

// FlashLoan borrows amount of asset from Morpho Blue and runs actions inside
// the callback before repayment.
func (m *MorphoMarket) FlashLoan(amount *big.Int, asset common.Address, actions []fuse.FuseAction) (fuse.FuseAction, error) {
	if m.flashLoan == nil {
		return fuse.FuseAction{}, unsupported(registry.MorphoFlashLoanFuse)
	}
	return m.flashLoan.FlashLoan(asset, amount, actions)
}

func (m *MorphoMarket) ClaimRewards(distributor, rewardsToken common.Address, claimable *big.Int, proof []string) (fuse.FuseAction, error) {
	if m.claim == nil {
		return fuse.FuseAction{}, unsupported(registry.MorphoClaimFuse)
	}
	return m.claim.Claim(distributor, rewardsToken, claimable, proof)
}

// MorphoPosition is a user's position in one Morpho Blue market.
type MorphoPosition struct {
	MarketID     common.Hash `json:"market_id"`
	SupplyShares *big.Int    `json:"supply_shares"`
	BorrowShares *big.Int    `json:"borrow_shares"`
	Collateral   *big.Int    `json:"collateral"`
	SupplyAssets *big.Int    `json:"supply_assets"`
}

// Position reads user's shares and converts supply shares to assets at the
// market's current totals.
func (m *MorphoMarket) Position(ctx context.Context, marketID common.Hash, user common.Address) (MorphoPosition, error) {
	if m.exec == nil {
		return MorphoPosition{}, clierr.New(clierr.CodeInternal, "morpho market has no executor")
	}
	position, err := m.read(ctx, "position", marketID, user)
	if err != nil {
		return MorphoPosition{}, err
	}
	market, err := m.read(ctx, "market", marketID)
	if err != nil {
		return MorphoPosition{}, err
	}
	out := MorphoPosition{
		MarketID:     marketID,
		SupplyShares: position[0].(*big.Int),
		BorrowShares: position[1].(*big.Int),
		Collateral:   position[2].(*big.Int),
		SupplyAssets: new(big.Int),
	}
	totalAssets, totalShares := market[0].(*big.Int), market[1].(*big.Int)
	if out.SupplyShares.Sign() > 0 && totalShares.Sign() > 0 {
		out.SupplyAssets.Mul(out.SupplyShares, totalAssets)
		out.SupplyAssets.Quo(out.SupplyAssets, totalShares)
	}
	return out, nil
}

func (m *MorphoMarket) read(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := morphoBlueABI.Pack(method, args...)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack morpho "+method, err)
	}
	raw, err := m.exec.Read(ctx, m.morphoBlue, data)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read morpho "+method, err)
	}
	out, err := morphoBlueABI.Unpack(method, raw)
	if err != nil || len(out) < 3 {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode morpho "+method, err)
	}
	return out, nil
}
