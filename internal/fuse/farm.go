package fuse

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	enterStake = "enter((uint256,address))"
	exitStake  = "exit((uint256,address))"
)

var stakeArgs = tuple(field("amount", "uint256"), field("pool", "address"))

type stake struct {
	Amount *big.Int
	Pool   common.Address
}

// stakeFuse stakes a receipt token (Gearbox dToken, Fluid fToken) in a farm.
type stakeFuse struct {
	base
	protocol string
}

func (f stakeFuse) Supports(m MarketID) bool { return m.ProtocolID == f.protocol }

func (f stakeFuse) Stake(amount *big.Int, pool common.Address) (FuseAction, error) {
	if err := requireAmount("amount", amount); err != nil {
		return FuseAction{}, err
	}
	return f.call(enterStake, stakeArgs, stake{Amount: amount, Pool: pool})
}

func (f stakeFuse) Unstake(amount *big.Int, pool common.Address) (FuseAction, error) {
	if err := requireAmount("amount", amount); err != nil {
		return FuseAction{}, err
	}
	return f.call(exitStake, stakeArgs, stake{Amount: amount, Pool: pool})
}

type GearboxV3FarmSupplyFuse struct{ stakeFuse }

func NewGearboxV3FarmSupplyFuse(addr common.Address) (GearboxV3FarmSupplyFuse, error) {
	b, err := newBase("gearbox v3 farm supply fuse", addr)
	return GearboxV3FarmSupplyFuse{stakeFuse{base: b, protocol: ProtocolGearboxV3}}, err
}

type FluidInstadappStakingSupplyFuse struct{ stakeFuse }

func NewFluidInstadappStakingSupplyFuse(addr common.Address) (FluidInstadappStakingSupplyFuse, error) {
	b, err := newBase("fluid instadapp staking supply fuse", addr)
	return FluidInstadappStakingSupplyFuse{stakeFuse{base: b, protocol: ProtocolFluidInstadapp}}, err
}
