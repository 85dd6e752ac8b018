package markets

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ipor-labs/fusion/internal/errors"
	"github.com/ipor-labs/fusion/internal/fuse"
	"github.com/ipor-labs/fusion/internal/id"
	"github.com/ipor-labs/fusion/internal/registry"
	"github.com/ipor-labs/fusion/internal/vault"
)

// Pool is an ERC4626 receipt token and the farm it is staked in.
type Pool struct {
	Token common.Address
	Farm  common.Address
}

func poolFor(chainID int64, tokenSymbol, farmSymbol string) (Pool, bool) {
	token, ok := id.KnownToken(chainID, tokenSymbol)
	if !ok {
		return Pool{}, false
	}
	farm, ok := id.KnownToken(chainID, farmSymbol)
	if !ok {
		return Pool{}, false
	}
	return Pool{Token: common.HexToAddress(token.Address), Farm: common.HexToAddress(farm.Address)}, true
}

// stakedMarket supplies into an ERC4626 pool and stakes the shares in a farm
// in the same batch.
type stakedMarket struct {
	exec      vault.Executor
	pool      Pool
	hasPool   bool
	supply    *fuse.Erc4626SupplyFuse
	stake     func(amount *big.Int, pool common.Address) (fuse.FuseAction, error)
	unstake   func(amount *big.Int, pool common.Address) (fuse.FuseAction, error)
	claim     *fuse.ClaimFuse
	farmName  string
	claimName string
}

func (m *stakedMarket) Supported() bool {
	return m.hasPool && anyOf(m.supply != nil, m.stake != nil, m.claim != nil)
}

func (m *stakedMarket) requirePool() error {
	if !m.hasPool {
		return clierr.New(clierr.CodeUnsupported, fmt.Sprintf("%s pool is not known on this chain", m.farmName))
	}
	if m.supply == nil {
		return unsupported(registry.Erc4626SupplyFuse)
	}
	if m.stake == nil {
		return unsupported(m.farmName)
	}
	return nil
}

// SupplyAndStake deposits amount into the pool and stakes the same amount of
// shares in the farm.
func (m *stakedMarket) SupplyAndStake(amount *big.Int) ([]fuse.FuseAction, error) {
	if err := m.requirePool(); err != nil {
		return nil, err
	}
	supply, err := m.supply.Supply(m.pool.Token, amount)
	if err != nil {
		return nil, err
	}
	stake, err := m.stake(amount, m.pool.Farm)
	if err != nil {
		return nil, err
	}
	return []fuse.FuseAction{supply, stake}, nil
}

// UnstakeAndWithdraw reverses SupplyAndStake.
func (m *stakedMarket) UnstakeAndWithdraw(amount *big.Int) ([]fuse.FuseAction, error) {
	if err := m.requirePool(); err != nil {
		return nil, err
	}
	unstake, err := m.unstake(amount, m.pool.Farm)
	if err != nil {
		return nil, err
	}
	withdraw, err := m.supply.Withdraw(m.pool.Token, amount)
	if err != nil {
		return nil, err
	}
	return []fuse.FuseAction{unstake, withdraw}, nil
}

func (m *stakedMarket) Claim() (fuse.FuseAction, error) {
	if m.claim == nil {
		return fuse.FuseAction{}, unsupported(m.claimName)
	}
	return m.claim.Claim()
}

func (m *stakedMarket) Pool() Pool { return m.pool }

// FarmPool is the staked receipt token; its balance is the vault position.
func (m *stakedMarket) FarmPool() *vault.ERC20 {
	return vault.NewERC20(m.exec, m.pool.Farm)
}

type GearboxV3Market struct{ stakedMarket }

func NewGearboxV3Market(chainID int64, exec vault.Executor, fuses []common.Address) *GearboxV3Market {
	s := newFuseSet(chainID, fuses)
	pool, ok := poolFor(chainID, "dUSDCV3", "farmdUSDCV3")
	m := stakedMarket{
		exec:      exec,
		pool:      pool,
		hasPool:   ok,
		supply:    build(s, registry.Erc4626SupplyFuse, fuse.NewErc4626SupplyFuse),
		claim:     build(s, registry.GearboxV3FarmDTokenClaimFuse, fuse.NewClaimFuse),
		farmName:  registry.GearboxV3FarmSupplyFuse,
		claimName: registry.GearboxV3FarmDTokenClaimFuse,
	}
	if f := build(s, registry.GearboxV3FarmSupplyFuse, fuse.NewGearboxV3FarmSupplyFuse); f != nil {
		m.stake, m.unstake = f.Stake, f.Unstake
	}
	return &GearboxV3Market{m}
}

type FluidInstadappMarket struct{ stakedMarket }

func NewFluidInstadappMarket(chainID int64, exec vault.Executor, fuses []common.Address) *FluidInstadappMarket {
	s := newFuseSet(chainID, fuses)
	pool, ok := poolFor(chainID, "fUSDC", "FluidLendingStakingRewardsUsdc")
	m := stakedMarket{
		exec:      exec,
		pool:      pool,
		hasPool:   ok,
		supply:    build(s, registry.Erc4626SupplyFuse, fuse.NewErc4626SupplyFuse),
		claim:     build(s, registry.FluidInstadappClaimFuse, fuse.NewClaimFuse),
		farmName:  registry.FluidInstadappStakingSupplyFuse,
		claimName: registry.FluidInstadappClaimFuse,
	}
	if f := build(s, registry.FluidInstadappStakingSupplyFuse, fuse.NewFluidInstadappStakingSupplyFuse); f != nil {
		m.stake, m.unstake = f.Stake, f.Unstake
	}
	return &FluidInstadappMarket{m}
}
