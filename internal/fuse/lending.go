package fuse

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	assetAmountArgs  = tuple(field("asset", "address"), field("amount", "uint256"))
	aaveSupplyArgs   = tuple(field("asset", "address"), field("amount", "uint256"), field("userEModeCategoryId", "uint256"))
	addressListArgs  = tuple(field("assets", "address[]"))
	marketAmountArgs = tuple(field("marketId", "bytes32"), field("amount", "uint256"))
)

const (
	enterAssetAmount  = "enter((address,uint256))"
	exitAssetAmount   = "exit((address,uint256))"
	enterAaveSupply   = "enter((address,uint256,uint256))"
	enterAddressList  = "enter((address[]))"
	exitAddressList   = "exit((address[]))"
	enterMarketAmount = "enter((bytes32,uint256))"
	exitMarketAmount  = "exit((bytes32,uint256))"
)

type assetAmount struct {
	Asset  common.Address
	Amount *big.Int
}

type aaveSupply struct {
	Asset               common.Address
	Amount              *big.Int
	UserEModeCategoryId *big.Int
}

type addressList struct {
	Assets []common.Address
}

type marketAmount struct {
	MarketId [32]byte
	Amount   *big.Int
}

// assetAmountFuse covers every fuse whose enter and exit take (asset, amount).
type assetAmountFuse struct {
	base
	protocol string
}

func (f assetAmountFuse) enter(asset common.Address, amount *big.Int) (FuseAction, error) {
	if err := requireAmount("amount", amount); err != nil {
		return FuseAction{}, err
	}
	return f.call(enterAssetAmount, assetAmountArgs, assetAmount{Asset: asset, Amount: amount})
}

func (f assetAmountFuse) exit(asset common.Address, amount *big.Int) (FuseAction, error) {
	if err := requireAmount("amount", amount); err != nil {
		return FuseAction{}, err
	}
	return f.call(exitAssetAmount, assetAmountArgs, assetAmount{Asset: asset, Amount: amount})
}

// Supports reports whether the fuse handles markets of its protocol.
func (f assetAmountFuse) Supports(m MarketID) bool {
	return m.ProtocolID == f.protocol
}

type AaveV3SupplyFuse struct{ assetAmountFuse }

func NewAaveV3SupplyFuse(addr common.Address) (AaveV3SupplyFuse, error) {
	b, err := newBase("aave v3 supply fuse", addr)
	return AaveV3SupplyFuse{assetAmountFuse{base: b, protocol: ProtocolAaveV3}}, err
}

// Supply deposits into the Aave pool. eMode 0 leaves the category unchanged.
func (f AaveV3SupplyFuse) Supply(asset common.Address, amount *big.Int, eModeCategory uint64) (FuseAction, error) {
	if err := requireAmount("amount", amount); err != nil {
		return FuseAction{}, err
	}
	return f.call(enterAaveSupply, aaveSupplyArgs, aaveSupply{
		Asset:               asset,
		Amount:              amount,
		UserEModeCategoryId: new(big.Int).SetUint64(eModeCategory),
	})
}

func (f AaveV3SupplyFuse) Withdraw(asset common.Address, amount *big.Int) (FuseAction, error) {
	return f.exit(asset, amount)
}

type AaveV3BorrowFuse struct{ assetAmountFuse }

func NewAaveV3BorrowFuse(addr common.Address) (AaveV3BorrowFuse, error) {
	b, err := newBase("aave v3 borrow fuse", addr)
	return AaveV3BorrowFuse{assetAmountFuse{base: b, protocol: ProtocolAaveV3}}, err
}

func (f AaveV3BorrowFuse) Borrow(asset common.Address, amount *big.Int) (FuseAction, error) {
	return f.enter(asset, amount)
}

func (f AaveV3BorrowFuse) Repay(asset common.Address, amount *big.Int) (FuseAction, error) {
	return f.exit(asset, amount)
}

type CompoundV3SupplyFuse struct{ assetAmountFuse }

func NewCompoundV3SupplyFuse(addr common.Address) (CompoundV3SupplyFuse, error) {
	b, err := newBase("compound v3 supply fuse", addr)
	return CompoundV3SupplyFuse{assetAmountFuse{base: b, protocol: ProtocolCompoundV3}}, err
}

func (f CompoundV3SupplyFuse) Supply(asset common.Address, amount *big.Int) (FuseAction, error) {
	return f.enter(asset, amount)
}

func (f CompoundV3SupplyFuse) Withdraw(asset common.Address, amount *big.Int) (FuseAction, error) {
	return f.exit(asset, amount)
}

type MoonwellSupplyFuse struct{ assetAmountFuse }

func NewMoonwellSupplyFuse(addr common.Address) (MoonwellSupplyFuse, error) {
	b, err := newBase("moonwell supply fuse", addr)
	return MoonwellSupplyFuse{assetAmountFuse{base: b, protocol: ProtocolMoonwell}}, err
}

func (f MoonwellSupplyFuse) Supply(asset common.Address, amount *big.Int) (FuseAction, error) {
	return f.enter(asset, amount)
}

func (f MoonwellSupplyFuse) Withdraw(asset common.Address, amount *big.Int) (FuseAction, error) {
	return f.exit(asset, amount)
}

type MoonwellBorrowFuse struct{ assetAmountFuse }

func NewMoonwellBorrowFuse(addr common.Address) (MoonwellBorrowFuse, error) {
	b, err := newBase("moonwell borrow fuse", addr)
	return MoonwellBorrowFuse{assetAmountFuse{base: b, protocol: ProtocolMoonwell}}, err
}

func (f MoonwellBorrowFuse) Borrow(asset common.Address, amount *big.Int) (FuseAction, error) {
	return f.enter(asset, amount)
}

func (f MoonwellBorrowFuse) Repay(asset common.Address, amount *big.Int) (FuseAction, error) {
	return f.exit(asset, amount)
}

// MoonwellEnableMarketFuse toggles mTokens as collateral.
type MoonwellEnableMarketFuse struct{ base }

func NewMoonwellEnableMarketFuse(addr common.Address) (MoonwellEnableMarketFuse, error) {
	b, err := newBase("moonwell enable market fuse", addr)
	return MoonwellEnableMarketFuse{b}, err
}

func (f MoonwellEnableMarketFuse) Enable(mTokens []common.Address) (FuseAction, error) {
	return f.call(enterAddressList, addressListArgs, addressList{Assets: nonNilAddresses(mTokens)})
}

func (f MoonwellEnableMarketFuse) Disable(mTokens []common.Address) (FuseAction, error) {
	return f.call(exitAddressList, addressListArgs, addressList{Assets: nonNilAddresses(mTokens)})
}

// Erc4626SupplyFuse deposits vault assets into an ERC4626 vault and redeems shares.
type Erc4626SupplyFuse struct{ assetAmountFuse }

func NewErc4626SupplyFuse(addr common.Address) (Erc4626SupplyFuse, error) {
	b, err := newBase("erc4626 supply fuse", addr)
	return Erc4626SupplyFuse{assetAmountFuse{base: b, protocol: ProtocolErc4626}}, err
}

func (f Erc4626SupplyFuse) Supply(vault common.Address, assets *big.Int) (FuseAction, error) {
	return f.enter(vault, assets)
}

func (f Erc4626SupplyFuse) Withdraw(vault common.Address, shares *big.Int) (FuseAction, error) {
	return f.exit(vault, shares)
}

type MorphoSupplyFuse struct{ base }

func NewMorphoSupplyFuse(addr common.Address) (MorphoSupplyFuse, error) {
	b, err := newBase("morpho supply fuse", addr)
	return MorphoSupplyFuse{b}, err
}

func (f MorphoSupplyFuse) Supports(m MarketID) bool { return m.ProtocolID == ProtocolMorpho }

func (f MorphoSupplyFuse) Supply(marketID common.Hash, amount *big.Int) (FuseAction, error) {
	if err := requireAmount("amount", amount); err != nil {
		return FuseAction{}, err
	}
	return f.call(enterMarketAmount, marketAmountArgs, marketAmount{MarketId: marketID, Amount: amount})
}

func (f MorphoSupplyFuse) Withdraw(marketID common.Hash, amount *big.Int) (FuseAction, error) {
	if err := requireAmount("amount", amount); err != nil {
		return FuseAction{}, err
	}
	return f.call(exitMarketAmount, marketAmountArgs, marketAmount{MarketId: marketID, Amount: amount})
}

func nonNilAddresses(in []common.Address) []common.Address {
	if in == nil {
		return []common.Address{}
	}
	return in
}
