package app

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	clierr "github.com/ipor-labs/fusion/internal/errors"
	"github.com/ipor-labs/fusion/internal/execution/planner"
	"github.com/ipor-labs/fusion/internal/id"
	"github.com/ipor-labs/fusion/internal/model"
	"github.com/ipor-labs/fusion/internal/registry"
)

func (s *runtimeState) newVaultCommand() *cobra.Command {
	root := &cobra.Command{Use: "vault", Short: "Plasma vault state and deposits"}
	root.AddCommand(s.newVaultInfoCommand())
	root.AddCommand(s.newVaultBalancesCommand())
	root.AddCommand(s.newVaultDepositCommand())
	root.AddCommand(s.newVaultFusesCommand())
	return root
}

func (s *runtimeState) newVaultInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show vault totals, components and alpha",
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := s.resolveVault()
			if err != nil {
				return err
			}
			ctx, cancel := s.commandContext()
			defer cancel()
			sys, err := s.openSystem(ctx, t, s.optionalSigner(t))
			if err != nil {
				return err
			}
			defer sys.Close()

			pv := sys.PlasmaVault()
			data := sys.Data()
			assetDecimals, err := sys.Asset().Decimals(ctx)
			if err != nil {
				return clierr.Wrap(clierr.CodeUnavailable, "read asset decimals", err)
			}
			totalAssets, err := pv.TotalAssets(ctx)
			if err != nil {
				return err
			}
			totalSupply, err := pv.TotalSupply(ctx)
			if err != nil {
				return err
			}
			supplyCap, err := pv.TotalSupplyCap(ctx)
			if err != nil {
				return err
			}
			info := model.VaultInfo{
				ChainID:               t.chain.CAIP2,
				Vault:                 t.vault.Hex(),
				Asset:                 data.Asset.Hex(),
				Decimals:              int(assetDecimals),
				TotalAssets:           amountInfo(totalAssets.String(), int(assetDecimals)),
				TotalSupply:           totalSupply.String(),
				TotalSupplyCap:        supplyCap.String(),
				AccessManager:         data.AccessManager.Hex(),
				RewardsClaimManager:   data.RewardsClaimManager.Hex(),
				PriceOracleMiddleware: data.PriceOracleMiddleware.Hex(),
				FuseCount:             len(sys.Fuses()),
				FetchedAt:             s.runner.now().UTC().Format("2006-01-02T15:04:05Z07:00"),
			}
			if known, ok := id.LookupByAddress(t.chain.EVMChainID, data.Asset.Hex()); ok {
				info.AssetSymbol = known.Symbol
			} else if symbol, err := sys.Asset().Symbol(ctx); err == nil {
				info.AssetSymbol = symbol
			}
			if data.WithdrawManager != nil {
				info.WithdrawManager = data.WithdrawManager.Hex()
			}
			if alpha := sys.Alpha(); alpha != (common.Address{}) {
				info.Alpha = alpha.Hex()
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), info, nil, cacheMetaBypass())
		},
	}
}

func (s *runtimeState) newVaultBalancesCommand() *cobra.Command {
	var tokensArg string
	cmd := &cobra.Command{
		Use:   "balances",
		Short: "Show token balances held by the vault",
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := s.resolveVault()
			if err != nil {
				return err
			}
			ctx, cancel := s.commandContext()
			defer cancel()
			sys, err := s.openSystem(ctx, t, nil)
			if err != nil {
				return err
			}
			defer sys.Close()

			tokens, err := balanceTokens(t.chain, sys.Data().Asset, splitCSV(tokensArg))
			if err != nil {
				return err
			}
			balances, err := sys.Balances(ctx, tokens)
			if err != nil {
				return err
			}
			out := make([]model.TokenBalance, 0, len(balances))
			for _, b := range balances {
				out = append(out, model.TokenBalance{
					Symbol:  b.Symbol,
					Token:   b.Token.Hex(),
					Holder:  t.vault.Hex(),
					Balance: amountInfo(b.Amount, b.Decimals),
				})
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), out, nil, cacheMetaBypass())
		},
	}
	cmd.Flags().StringVar(&tokensArg, "tokens", "", "Tokens to read (symbols or addresses, comma-separated); default asset, USDC, USDT")
	return cmd
}

// balanceTokens is the vault asset plus the chain's stablecoins, or the
// explicit list when one is given. Duplicates are dropped.
func balanceTokens(chain id.Chain, asset common.Address, inputs []string) ([]common.Address, error) {
	seen := map[common.Address]bool{}
	out := make([]common.Address, 0, 3)
	add := func(a common.Address) {
		if a != (common.Address{}) && !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	if len(inputs) > 0 {
		for _, in := range inputs {
			parsed, err := id.ParseAsset(in, chain)
			if err != nil {
				return nil, err
			}
			add(common.HexToAddress(parsed.Address))
		}
		return out, nil
	}
	add(asset)
	if ext, err := registry.ExternalSystemsFor(chain.EVMChainID); err == nil {
		add(ext.USDC)
		add(ext.USDT)
	}
	return out, nil
}

func (s *runtimeState) newVaultDepositCommand() *cobra.Command {
	var amountBase, amountDecimal, receiverArg string
	var flags execFlags
	cmd := &cobra.Command{
		Use:   "deposit",
		Short: "Deposit the vault asset from the signer into the vault",
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := s.resolveVault()
			if err != nil {
				return err
			}
			txSigner, err := s.signerFor(t)
			if err != nil {
				return err
			}
			var receiver common.Address
			if receiverArg != "" {
				if receiver, err = parseAddressFlag("--receiver", receiverArg); err != nil {
					return err
				}
			}
			ctx, cancel := s.commandContext()
			defer cancel()
			sys, err := s.openSystem(ctx, t, txSigner)
			if err != nil {
				return err
			}
			defer sys.Close()

			decimals, err := sys.Asset().Decimals(ctx)
			if err != nil {
				return clierr.Wrap(clierr.CodeUnavailable, "read asset decimals", err)
			}
			base, _, err := id.NormalizeAmount(amountBase, amountDecimal, int(decimals))
			if err != nil {
				return err
			}
			amount, err := id.ParseBaseUnits(base)
			if err != nil {
				return err
			}
			action, err := planner.BuildDepositAction(ctx, sys.Executor(), planner.DepositRequest{
				VaultRequest: t.request(txSigner.Address(), flags.simulate),
				Asset:        sys.Data().Asset,
				Amount:       amount,
				Receiver:     receiver,
			})
			if err != nil {
				return err
			}
			return s.submitAction(ctx, cmd, t, sys, txSigner, action, flags)
		},
	}
	cmd.Flags().StringVar(&amountBase, "amount", "", "Amount in base units")
	cmd.Flags().StringVar(&amountDecimal, "amount-decimal", "", "Amount in decimal units")
	cmd.Flags().StringVar(&receiverArg, "receiver", "", "Share receiver (defaults to the signer)")
	addExecFlags(cmd, &flags)
	return cmd
}

func (s *runtimeState) newVaultFusesCommand() *cobra.Command {
	var resolveNames bool
	cmd := &cobra.Command{
		Use:   "fuses",
		Short: "List the fuses installed on the vault",
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := s.resolveVault()
			if err != nil {
				return err
			}
			ctx, cancel := s.commandContext()
			defer cancel()
			sys, err := s.openSystem(ctx, t, nil)
			if err != nil {
				return err
			}
			defer sys.Close()

			var warnings []string
			out := make([]model.FuseInfo, 0, len(sys.Fuses()))
			for _, f := range sys.Fuses() {
				info := model.FuseInfo{Address: f.Hex()}
				if name, ok := registry.FuseName(t.chain.EVMChainID, f); ok {
					info.Name, info.Source = name, "registry"
				}
				if resolveNames {
					names, err := s.nameResolver()
					if err != nil {
						return err
					}
					name, err := names.ContractName(ctx, sys.Executor(), t.chain.EVMChainID, f)
					if err != nil {
						warnings = append(warnings, fmt.Sprintf("resolve %s: %v", f.Hex(), err))
					} else if name != "" {
						info.Name, info.Source = name, "explorer"
					}
				}
				out = append(out, info)
			}
			status := cacheMetaBypass()
			if resolveNames && s.cache != nil {
				status = cacheMetaMiss()
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), out, warnings, status)
		},
	}
	cmd.Flags().BoolVar(&resolveNames, "resolve-names", false, "Resolve fuse names through the block explorer (cached)")
	return cmd
}
