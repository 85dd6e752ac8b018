package app

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	clierr "github.com/ipor-labs/fusion/internal/errors"
	"github.com/ipor-labs/fusion/internal/execution/planner"
	"github.com/ipor-labs/fusion/internal/fuse"
	"github.com/ipor-labs/fusion/internal/id"
	"github.com/ipor-labs/fusion/internal/system"
)

type marketVerb string

const (
	verbSupply   marketVerb = "supply"
	verbWithdraw marketVerb = "withdraw"
)

const (
	marketAaveV3     = "aave_v3"
	marketCompoundV3 = "compound_v3"
	marketMoonwell   = "moonwell"
	marketMorpho     = "morpho"
	marketGearboxV3  = "gearbox_v3"
	marketFluid      = "fluid"
	marketErc4626    = "erc4626"
)

var supportedMarkets = []string{marketAaveV3, marketCompoundV3, marketMoonwell, marketMorpho, marketGearboxV3, marketFluid, marketErc4626}

// defaultAaveEMode is the e-mode category used when --e-mode is not given.
const defaultAaveEMode = 300

type marketArgs struct {
	market        string
	assetArg      string
	amountBase    string
	amountDecimal string
	eMode         uint64
	marketID      string
}

func (s *runtimeState) newMarketCommand(verb marketVerb, short string) *cobra.Command {
	var args marketArgs
	var flags execFlags
	cmd := &cobra.Command{
		Use:   string(verb),
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			market := normalizeMarket(args.market)
			if market == "" {
				return clierr.New(clierr.CodeUsage, fmt.Sprintf("--market must be one of %s", strings.Join(supportedMarkets, "|")))
			}
			t, err := s.resolveVault()
			if err != nil {
				return err
			}
			txSigner, err := s.signerFor(t)
			if err != nil {
				return err
			}
			ctx, cancel := s.commandContext()
			defer cancel()
			sys, err := s.openSystem(ctx, t, txSigner)
			if err != nil {
				return err
			}
			defer sys.Close()

			asset, err := resolveAsset(ctx, sys, t.chain, args.assetArg)
			if err != nil {
				return err
			}
			base, _, err := id.NormalizeAmount(args.amountBase, args.amountDecimal, asset.Decimals)
			if err != nil {
				return err
			}
			amount, err := id.ParseBaseUnits(base)
			if err != nil {
				return err
			}
			if amount.Sign() <= 0 {
				return clierr.New(clierr.CodeUsage, "amount must be greater than zero")
			}
			actions, err := buildMarketActions(sys, verb, market, common.HexToAddress(asset.Address), amount, args)
			if err != nil {
				return err
			}
			action, err := planner.BuildExecuteAction(t.request(txSigner.Address(), flags.simulate), string(verb), market, actions)
			if err != nil {
				return err
			}
			action.Asset = common.HexToAddress(asset.Address).Hex()
			action.InputAmount = base
			return s.submitAction(ctx, cmd, t, sys, txSigner, action, flags)
		},
	}
	cmd.Flags().StringVar(&args.market, "market", "", "Market ("+strings.Join(supportedMarkets, "|")+")")
	cmd.Flags().StringVar(&args.assetArg, "asset", "", "Asset symbol or address (ERC4626 vault address for --market erc4626)")
	cmd.Flags().StringVar(&args.amountBase, "amount", "", "Amount in base units")
	cmd.Flags().StringVar(&args.amountDecimal, "amount-decimal", "", "Amount in decimal units")
	cmd.Flags().StringVar(&args.marketID, "market-id", "", "Morpho market id (bytes32, required for --market morpho)")
	if verb == verbSupply {
		cmd.Flags().Uint64Var(&args.eMode, "e-mode", defaultAaveEMode, "Aave V3 e-mode category")
	}
	addExecFlags(cmd, &flags)
	_ = cmd.MarkFlagRequired("market")
	_ = cmd.MarkFlagRequired("asset")
	return cmd
}

func normalizeMarket(v string) string {
	norm := strings.ToLower(strings.TrimSpace(v))
	norm = strings.ReplaceAll(norm, "-", "_")
	switch norm {
	case "aave", "aavev3":
		return marketAaveV3
	case "compound", "compoundv3":
		return marketCompoundV3
	case "gearbox", "gearboxv3":
		return marketGearboxV3
	case "fluid_instadapp":
		return marketFluid
	case "erc_4626":
		return marketErc4626
	}
	for _, m := range supportedMarkets {
		if m == norm {
			return m
		}
	}
	return ""
}

// resolveAsset parses --asset and fills in decimals from the token contract
// when the registry does not know it.
func resolveAsset(ctx context.Context, sys *system.PlasmaSystem, chain id.Chain, input string) (id.Asset, error) {
	asset, err := id.ParseAsset(input, chain)
	if err != nil {
		return id.Asset{}, err
	}
	if asset.Known {
		return asset, nil
	}
	token := sys.ERC20(common.HexToAddress(asset.Address))
	decimals, err := token.Decimals(ctx)
	if err != nil {
		return id.Asset{}, clierr.Wrap(clierr.CodeUnavailable, "read asset decimals", err)
	}
	asset.Decimals = int(decimals)
	if symbol, err := token.Symbol(ctx); err == nil {
		asset.Symbol = symbol
	}
	return asset, nil
}

func buildMarketActions(sys *system.PlasmaSystem, verb marketVerb, market string, asset common.Address, amount *big.Int, args marketArgs) ([]fuse.FuseAction, error) {
	single := func(a fuse.FuseAction, err error) ([]fuse.FuseAction, error) {
		if err != nil {
			return nil, err
		}
		return []fuse.FuseAction{a}, nil
	}
	switch market {
	case marketAaveV3:
		m := sys.AaveV3()
		if verb == verbSupply {
			return single(m.Supply(asset, amount, args.eMode))
		}
		return single(m.Withdraw(asset, amount))
	case marketCompoundV3:
		m := sys.CompoundV3()
		if verb == verbSupply {
			return single(m.Supply(asset, amount))
		}
		return single(m.Withdraw(asset, amount))
	case marketMoonwell:
		m := sys.Moonwell()
		if verb == verbSupply {
			return single(m.Supply(asset, amount))
		}
		return single(m.Withdraw(asset, amount))
	case marketMorpho:
		marketID, err := parseMorphoMarketID(args.marketID)
		if err != nil {
			return nil, err
		}
		m := sys.Morpho()
		if verb == verbSupply {
			return single(m.Supply(marketID, amount))
		}
		return single(m.Withdraw(marketID, amount))
	case marketGearboxV3:
		m := sys.GearboxV3()
		if verb == verbSupply {
			return m.SupplyAndStake(amount)
		}
		return m.UnstakeAndWithdraw(amount)
	case marketFluid:
		m := sys.FluidInstadapp()
		if verb == verbSupply {
			return m.SupplyAndStake(amount)
		}
		return m.UnstakeAndWithdraw(amount)
	case marketErc4626:
		m := sys.Erc4626()
		if verb == verbSupply {
			return single(m.Supply(asset, amount))
		}
		return single(m.Withdraw(asset, amount))
	}
	return nil, clierr.New(clierr.CodeUsage, "unsupported market "+market)
}

func parseMorphoMarketID(v string) (common.Hash, error) {
	clean := strings.TrimSpace(v)
	if clean == "" {
		return common.Hash{}, clierr.New(clierr.CodeUsage, "--market-id is required for --market morpho")
	}
	raw, err := hexutil.Decode("0x" + strings.TrimPrefix(strings.TrimPrefix(clean, "0x"), "0X"))
	if err != nil || len(raw) != common.HashLength {
		return common.Hash{}, clierr.New(clierr.CodeUsage, "--market-id must be a 32-byte hex string")
	}
	return common.BytesToHash(raw), nil
}
