package app

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/ipor-labs/fusion/internal/model"
)

func (s *runtimeState) newPricesCommand() *cobra.Command {
	root := &cobra.Command{Use: "prices", Short: "Read the vault price oracle middleware"}
	var assetArg string
	get := &cobra.Command{
		Use:   "get",
		Short: "Read an asset's USD price and its source",
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

			asset := sys.Data().Asset
			if assetArg != "" {
				parsed, err := resolveAsset(ctx, sys, t.chain, assetArg)
				if err != nil {
					return err
				}
				asset = common.HexToAddress(parsed.Address)
			}
			oracle := sys.PriceOracleMiddleware()
			price, err := oracle.AssetPrice(ctx, asset)
			if err != nil {
				return err
			}
			out := model.AssetPrice{
				Asset:    asset.Hex(),
				Price:    price.Amount.String(),
				Decimals: int(price.Decimals.Int64()),
				Readable: price.Readable(),
			}
			var warnings []string
			if source, err := oracle.SourceOfAssetPrice(ctx, asset); err != nil {
				warnings = append(warnings, fmt.Sprintf("price source unavailable: %v", err))
			} else if source != (common.Address{}) {
				out.Source = source.Hex()
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), out, warnings, cacheMetaBypass())
		},
	}
	get.Flags().StringVar(&assetArg, "asset", "", "Asset symbol or address (default the vault asset)")
	root.AddCommand(get)
	return root
}

func (s *runtimeState) newContractsCommand() *cobra.Command {
	root := &cobra.Command{Use: "contracts", Short: "Contract metadata lookups"}
	var addressArg string
	name := &cobra.Command{
		Use:   "name",
		Short: "Resolve a contract name from on-chain metadata or the block explorer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, err := parseAddressFlag("--address", addressArg)
			if err != nil {
				return err
			}
			t, err := s.resolveVault()
			if err != nil {
				return err
			}
			names, err := s.nameResolver()
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

			resolved, err := names.ContractName(ctx, sys.Executor(), t.chain.EVMChainID, addr)
			if err != nil {
				return err
			}
			status := cacheMetaBypass()
			if s.cache != nil {
				status = cacheMetaMiss()
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), model.ContractName{
				ChainID: t.chain.CAIP2,
				Address: addr.Hex(),
				Name:    resolved,
			}, nil, status)
		},
	}
	name.Flags().StringVar(&addressArg, "address", "", "Contract address")
	_ = name.MarkFlagRequired("address")
	root.AddCommand(name)
	return root
}
