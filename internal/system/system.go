// Package system wires a Plasma Vault and everything that hangs off it from a
// single vault address.
package system

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	clierr "github.com/ipor-labs/fusion/internal/errors"
	"github.com/ipor-labs/fusion/internal/execution"
	"github.com/ipor-labs/fusion/internal/execution/signer"
	"github.com/ipor-labs/fusion/internal/logging"
	"github.com/ipor-labs/fusion/internal/markets"
	"github.com/ipor-labs/fusion/internal/registry"
	"github.com/ipor-labs/fusion/internal/vault"
)

// Factory builds PlasmaSystems against one node. Signer may be nil for
// read-only use.
type Factory struct {
	RPCURL  string
	Signer  signer.Signer
	Options execution.ExecuteOptions
	Logger  *zerolog.Logger
}

type getOptions struct {
	withdrawManager *common.Address
	fromBlock       *big.Int
}

type Option func(*getOptions)

// WithWithdrawManager overrides the withdraw manager read from the vault.
func WithWithdrawManager(addr common.Address) Option {
	return func(o *getOptions) { o.withdrawManager = &addr }
}

// WithFromBlock bounds log scans (role history, withdraw requests).
func WithFromBlock(block uint64) Option {
	return func(o *getOptions) { o.fromBlock = new(big.Int).SetUint64(block) }
}

// Get dials the node, reads the vault's component addresses and fuse list,
// and returns a wired system. The caller owns the result and must Close it.
func (f Factory) Get(ctx context.Context, plasmaVault common.Address, opts ...Option) (*PlasmaSystem, error) {
	if plasmaVault == (common.Address{}) {
		return nil, clierr.New(clierr.CodeUsage, "plasma vault address is required")
	}
	var o getOptions
	for _, opt := range opts {
		opt(&o)
	}
	exec, err := execution.Dial(ctx, f.RPCURL, f.Signer, f.Options)
	if err != nil {
		return nil, err
	}
	sys, err := build(ctx, exec, plasmaVault, o, f.logger())
	if err != nil {
		exec.Close()
		return nil, err
	}
	return sys, nil
}

func (f Factory) logger() zerolog.Logger {
	if f.Logger != nil {
		return *f.Logger
	}
	return logging.For("system")
}

func build(ctx context.Context, exec *execution.TransactionExecutor, plasmaVault common.Address, o getOptions, log zerolog.Logger) (*PlasmaSystem, error) {
	data, err := vault.ReadData(ctx, exec, plasmaVault, execution.IsRevert)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read plasma vault data", err)
	}
	if o.withdrawManager != nil {
		data.WithdrawManager = o.withdrawManager
	}
	fuses, err := vault.NewPlasmaVault(exec, plasmaVault).Fuses(ctx)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read plasma vault fuses", err)
	}
	chainID := exec.ChainID().Int64()
	log.Debug().
		Int64("chain_id", chainID).
		Str("plasma_vault", plasmaVault.Hex()).
		Int("fuses", len(fuses)).
		Msg("plasma system ready")
	return &PlasmaSystem{
		exec:      exec,
		chainID:   chainID,
		data:      data,
		fuses:     fuses,
		fromBlock: o.fromBlock,
		log:       log,
	}, nil
}

// PlasmaSystem is one vault plus its managers, markets and executor.
type PlasmaSystem struct {
	exec      *execution.TransactionExecutor
	chainID   int64
	data      vault.Data
	fuses     []common.Address
	fromBlock *big.Int
	log       zerolog.Logger
}

// Close releases the node connection. Cheater copies share it and must not
// be closed separately.
func (s *PlasmaSystem) Close() { s.exec.Close() }

func (s *PlasmaSystem) ChainID() int64 { return s.chainID }

func (s *PlasmaSystem) Executor() *execution.TransactionExecutor { return s.exec }

func (s *PlasmaSystem) Data() vault.Data { return s.data }

func (s *PlasmaSystem) Fuses() []common.Address {
	return append([]common.Address(nil), s.fuses...)
}

// Alpha is the account transactions are sent from.
func (s *PlasmaSystem) Alpha() common.Address { return s.exec.Address() }

func (s *PlasmaSystem) PlasmaVault() *vault.PlasmaVault {
	return vault.NewPlasmaVault(s.exec, s.data.PlasmaVault)
}

func (s *PlasmaSystem) AccessManager() *vault.AccessManager {
	return vault.NewAccessManager(s.exec, s.data.AccessManager).WithFromBlock(s.fromBlock)
}

// WithdrawManager returns an Unsupported error when the vault has none.
func (s *PlasmaSystem) WithdrawManager() (*vault.WithdrawManager, error) {
	if s.data.WithdrawManager == nil {
		return nil, clierr.New(clierr.CodeUnsupported, "plasma vault has no withdraw manager")
	}
	return vault.NewWithdrawManager(s.exec, *s.data.WithdrawManager).WithFromBlock(s.fromBlock), nil
}

func (s *PlasmaSystem) RewardsClaimManager() *vault.RewardsClaimManager {
	return vault.NewRewardsClaimManager(s.exec, s.data.RewardsClaimManager)
}

func (s *PlasmaSystem) PriceOracleMiddleware() *vault.PriceOracleMiddleware {
	return vault.NewPriceOracleMiddleware(s.exec, s.data.PriceOracleMiddleware)
}

func (s *PlasmaSystem) ERC20(addr common.Address) *vault.ERC20 {
	return vault.NewERC20(s.exec, addr)
}

// Asset is the vault's underlying ERC20.
func (s *PlasmaSystem) Asset() *vault.ERC20 { return s.ERC20(s.data.Asset) }

func (s *PlasmaSystem) USDC() (*vault.ERC20, error) {
	ext, err := registry.ExternalSystemsFor(s.chainID)
	if err != nil {
		return nil, err
	}
	return s.ERC20(ext.USDC), nil
}

func (s *PlasmaSystem) USDT() (*vault.ERC20, error) {
	ext, err := registry.ExternalSystemsFor(s.chainID)
	if err != nil {
		return nil, err
	}
	if ext.USDT == (common.Address{}) {
		return nil, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("USDT is not mapped on chain id %d", s.chainID))
	}
	return s.ERC20(ext.USDT), nil
}

func (s *PlasmaSystem) AaveV3() *markets.AaveV3Market {
	return markets.NewAaveV3Market(s.chainID, s.fuses)
}

func (s *PlasmaSystem) CompoundV3() *markets.CompoundV3Market {
	return markets.NewCompoundV3Market(s.chainID, s.fuses)
}

func (s *PlasmaSystem) UniswapV3() *markets.UniswapV3Market {
	return markets.NewUniswapV3Market(s.chainID, s.fuses)
}

func (s *PlasmaSystem) RamsesV2() *markets.RamsesV2Market {
	return markets.NewRamsesV2Market(s.chainID, s.fuses)
}

// Morpho builds the Morpho market. Claims need WithClaimFuse or
// WithRewardsFuses since claim fuses are not in the vault's fuse list.
func (s *PlasmaSystem) Morpho(opts ...markets.MorphoOption) *markets.MorphoMarket {
	return markets.NewMorphoMarket(s.chainID, s.exec, s.fuses, opts...)
}

func (s *PlasmaSystem) Moonwell() *markets.MoonwellMarket {
	return markets.NewMoonwellMarket(s.chainID, s.fuses)
}

func (s *PlasmaSystem) GearboxV3() *markets.GearboxV3Market {
	return markets.NewGearboxV3Market(s.chainID, s.exec, s.fuses)
}

func (s *PlasmaSystem) FluidInstadapp() *markets.FluidInstadappMarket {
	return markets.NewFluidInstadappMarket(s.chainID, s.exec, s.fuses)
}

func (s *PlasmaSystem) Universal() *markets.UniversalMarket {
	return markets.NewUniversalMarket(s.chainID, s.fuses)
}

func (s *PlasmaSystem) Erc4626() *markets.Erc4626Market {
	return markets.NewErc4626Market(s.chainID, s.fuses)
}

// Cheater returns a copy whose transactions are sent as addr through node
// impersonation. Only anvil-style forks accept it.
func (s *PlasmaSystem) Cheater(addr common.Address) *PlasmaSystem {
	cpy := *s
	cpy.exec = s.exec.WithSender(addr)
	cpy.fuses = s.Fuses()
	return &cpy
}

// Prank is Cheater under the name fork tests know it by.
func (s *PlasmaSystem) Prank(addr common.Address) *PlasmaSystem { return s.Cheater(addr) }
