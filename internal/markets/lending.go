package markets

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ipor-labs/fusion/internal/fuse"
	"github.com/ipor-labs/fusion/internal/registry"
)

type AaveV3Market struct {
	supply *fuse.AaveV3SupplyFuse
	borrow *fuse.AaveV3BorrowFuse
}

func NewAaveV3Market(chainID int64, fuses []common.Address) *AaveV3Market {
	s := newFuseSet(chainID, fuses)
	return &AaveV3Market{
		supply: build(s, registry.AaveV3SupplyFuse, fuse.NewAaveV3SupplyFuse),
		borrow: build(s, registry.AaveV3BorrowFuse, fuse.NewAaveV3BorrowFuse),
	}
}

func (m *AaveV3Market) Supported() bool { return anyOf(m.supply != nil, m.borrow != nil) }

func (m *AaveV3Market) Supply(asset common.Address, amount *big.Int, eModeCategory uint64) (fuse.FuseAction, error) {
	if m.supply == nil {
		return fuse.FuseAction{}, unsupported(registry.AaveV3SupplyFuse)
	}
	return m.supply.Supply(asset, amount, eModeCategory)
}

func (m *AaveV3Market) Withdraw(asset common.Address, amount *big.Int) (fuse.FuseAction, error) {
	if m.supply == nil {
		return fuse.FuseAction{}, unsupported(registry.AaveV3SupplyFuse)
	}
	return m.supply.Withdraw(asset, amount)
}

func (m *AaveV3Market) Borrow(asset common.Address, amount *big.Int) (fuse.FuseAction, error) {
	if m.borrow == nil {
		return fuse.FuseAction{}, unsupported(registry.AaveV3BorrowFuse)
	}
	return m.borrow.Borrow(asset, amount)
}

func (m *AaveV3Market) Repay(asset common.Address, amount *big.Int) (fuse.FuseAction, error) {
	if m.borrow == nil {
		return fuse.FuseAction{}, unsupported(registry.AaveV3BorrowFuse)
	}
	return m.borrow.Repay(asset, amount)
}

type CompoundV3Market struct {
	supply *fuse.CompoundV3SupplyFuse
	claim  *fuse.ClaimFuse
}

func NewCompoundV3Market(chainID int64, fuses []common.Address) *CompoundV3Market {
	s := newFuseSet(chainID, fuses)
	return &CompoundV3Market{
		supply: build(s, registry.CompoundV3SupplyFuse, fuse.NewCompoundV3SupplyFuse),
		claim:  build(s, registry.CompoundV3ClaimFuse, fuse.NewClaimFuse),
	}
}

func (m *CompoundV3Market) Supported() bool { return anyOf(m.supply != nil, m.claim != nil) }

func (m *CompoundV3Market) Supply(asset common.Address, amount *big.Int) (fuse.FuseAction, error) {
	if m.supply == nil {
		return fuse.FuseAction{}, unsupported(registry.CompoundV3SupplyFuse)
	}
	return m.supply.Supply(asset, amount)
}

func (m *CompoundV3Market) Withdraw(asset common.Address, amount *big.Int) (fuse.FuseAction, error) {
	if m.supply == nil {
		return fuse.FuseAction{}, unsupported(registry.CompoundV3SupplyFuse)
	}
	return m.supply.Withdraw(asset, amount)
}

// Claim is a rewards manager action, not a vault execute action.
func (m *CompoundV3Market) Claim() (fuse.FuseAction, error) {
	if m.claim == nil {
		return fuse.FuseAction{}, unsupported(registry.CompoundV3ClaimFuse)
	}
	return m.claim.Claim()
}

type MoonwellMarket struct {
	supply *fuse.MoonwellSupplyFuse
	borrow *fuse.MoonwellBorrowFuse
	enable *fuse.MoonwellEnableMarketFuse
	claim  *fuse.MoonwellClaimFuse
}

func NewMoonwellMarket(chainID int64, fuses []common.Address) *MoonwellMarket {
	s := newFuseSet(chainID, fuses)
	return &MoonwellMarket{
		supply: build(s, registry.MoonwellSupplyFuse, fuse.NewMoonwellSupplyFuse),
		borrow: build(s, registry.MoonwellBorrowFuse, fuse.NewMoonwellBorrowFuse),
		enable: build(s, registry.MoonwellEnableMarketFuse, fuse.NewMoonwellEnableMarketFuse),
		claim:  build(s, registry.MoonwellClaimFuse, fuse.NewMoonwellClaimFuse),
	}
}

func (m *MoonwellMarket) Supported() bool {
	return anyOf(m.supply != nil, m.borrow != nil, m.enable != nil, m.claim != nil)
}

func (m *MoonwellMarket) Supply(asset common.Address, amount *big.Int) (fuse.FuseAction, error) {
	if m.supply == nil {
		return fuse.FuseAction{}, unsupported(registry.MoonwellSupplyFuse)
	}
	return m.supply.Supply(asset, amount)
}

func (m *MoonwellMarket) Withdraw(asset common.Address, amount *big.Int) (fuse.FuseAction, error) {
	if m.supply == nil {
		return fuse.FuseAction{}, unsupported(registry.MoonwellSupplyFuse)
	}
	return m.supply.Withdraw(asset, amount)
}

func (m *MoonwellMarket) Borrow(asset common.Address, amount *big.Int) (fuse.FuseAction, error) {
	if m.borrow == nil {
		return fuse.FuseAction{}, unsupported(registry.MoonwellBorrowFuse)
	}
	return m.borrow.Borrow(asset, amount)
}

func (m *MoonwellMarket) Repay(asset common.Address, amount *big.Int) (fuse.FuseAction, error) {
	if m.borrow == nil {
		return fuse.FuseAction{}, unsupported(registry.MoonwellBorrowFuse)
	}
	return m.borrow.Repay(asset, amount)
}

// EnableMarkets enters mTokens as collateral in the comptroller.
func (m *MoonwellMarket) EnableMarkets(mTokens []common.Address) (fuse.FuseAction, error) {
	if m.enable == nil {
		return fuse.FuseAction{}, unsupported(registry.MoonwellEnableMarketFuse)
	}
	return m.enable.Enable(mTokens)
}

func (m *MoonwellMarket) DisableMarkets(mTokens []common.Address) (fuse.FuseAction, error) {
	if m.enable == nil {
		return fuse.FuseAction{}, unsupported(registry.MoonwellEnableMarketFuse)
	}
	return m.enable.Disable(mTokens)
}

func (m *MoonwellMarket) Claim(mTokens []common.Address) (fuse.FuseAction, error) {
	if m.claim == nil {
		return fuse.FuseAction{}, unsupported(registry.MoonwellClaimFuse)
	}
	return m.claim.Claim(mTokens)
}

// Erc4626Market supplies into any ERC4626 vault the vault has a fuse for.
type Erc4626Market struct {
	supply *fuse.Erc4626SupplyFuse
}

func NewErc4626Market(chainID int64, fuses []common.Address) *Erc4626Market {
	return &Erc4626Market{supply: build(newFuseSet(chainID, fuses), registry.Erc4626SupplyFuse, fuse.NewErc4626SupplyFuse)}
}

func (m *Erc4626Market) Supported() bool { return m.supply != nil }

func (m *Erc4626Market) Supply(vault common.Address, assets *big.Int) (fuse.FuseAction, error) {
	if m.supply == nil {
		return fuse.FuseAction{}, unsupported(registry.Erc4626SupplyFuse)
	}
	return m.supply.Supply(vault, assets)
}

func (m *Erc4626Market) Withdraw(vault common.Address, shares *big.Int) (fuse.FuseAction, error) {
	if m.supply == nil {
		return fuse.FuseAction{}, unsupported(registry.Erc4626SupplyFuse)
	}
	return m.supply.Withdraw(vault, shares)
}
