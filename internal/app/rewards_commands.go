package app

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	clierr "github.com/ipor-labs/fusion/internal/errors"
	"github.com/ipor-labs/fusion/internal/execution"
	"github.com/ipor-labs/fusion/internal/execution/planner"
	"github.com/ipor-labs/fusion/internal/fuse"
	"github.com/ipor-labs/fusion/internal/httpx"
	"github.com/ipor-labs/fusion/internal/markets"
	"github.com/ipor-labs/fusion/internal/model"
	"github.com/ipor-labs/fusion/internal/providers/morpho"
	"github.com/ipor-labs/fusion/internal/system"
)

func (s *runtimeState) newRewardsCommand() *cobra.Command {
	root := &cobra.Command{Use: "rewards", Short: "Claim protocol rewards into the rewards claim manager"}
	morphoCmd := &cobra.Command{Use: "morpho", Short: "Morpho universal rewards distributor"}
	morphoCmd.AddCommand(s.newMorphoRewardsListCommand())
	morphoCmd.AddCommand(s.newMorphoRewardsClaimCommand())
	root.AddCommand(morphoCmd)
	return root
}

func (s *runtimeState) morphoClient() *morpho.Client {
	client := morpho.New(httpx.New(s.settings.Timeout, s.settings.Retries))
	if s.settings.MorphoAPIURL != "" {
		client = client.WithBaseURL(s.settings.MorphoAPIURL)
	}
	return client
}

// vaultDistributions returns the distributions for the vault on its chain,
// optionally narrowed to one rewards token.
func (s *runtimeState) vaultDistributions(ctx context.Context, t vaultTarget, token common.Address) ([]morpho.Distribution, error) {
	all, err := s.morphoClient().Distributions(ctx, t.vault)
	if err != nil {
		return nil, err
	}
	items := morpho.ForChain(all, t.chain.EVMChainID)
	if token == (common.Address{}) {
		return items, nil
	}
	out := items[:0]
	for _, item := range items {
		if item.RewardsToken == token {
			out = append(out, item)
		}
	}
	return out, nil
}

func parseOptionalToken(v string) (common.Address, error) {
	if v == "" {
		return common.Address{}, nil
	}
	return parseAddressFlag("--token", v)
}

func (s *runtimeState) newMorphoRewardsListCommand() *cobra.Command {
	var tokenArg string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List claimable Morpho distributions for the vault",
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := parseOptionalToken(tokenArg)
			if err != nil {
				return err
			}
			t, err := s.resolveVault()
			if err != nil {
				return err
			}
			ctx, cancel := s.commandContext()
			defer cancel()
			items, err := s.vaultDistributions(ctx, t, token)
			if err != nil {
				return err
			}
			out := make([]model.RewardsDistribution, 0, len(items))
			for _, item := range items {
				out = append(out, model.RewardsDistribution{
					ChainID:      item.ChainID,
					Distributor:  item.Distributor.Hex(),
					RewardsToken: item.RewardsToken.Hex(),
					Claimable:    item.Claimable.String(),
					Proof:        item.Proof,
				})
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), out, nil, cacheMetaBypass())
		},
	}
	cmd.Flags().StringVar(&tokenArg, "token", "", "Only this rewards token")
	return cmd
}

// morphoClaimMarket picks the claim fuse from --claim-fuse, else from the
// rewards claim manager's registered fuses.
func morphoClaimMarket(ctx context.Context, sys *system.PlasmaSystem, claimFuse common.Address) (*markets.MorphoMarket, error) {
	if claimFuse != (common.Address{}) {
		return sys.Morpho(markets.WithClaimFuse(claimFuse)), nil
	}
	manager := sys.RewardsClaimManager()
	if manager.Address() == (common.Address{}) {
		return nil, clierr.New(clierr.CodeUnsupported, "plasma vault has no rewards claim manager; pass --claim-fuse")
	}
	rewardsFuses, err := manager.RewardsFuses(ctx)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read rewards claim manager fuses", err)
	}
	market := sys.Morpho(markets.WithRewardsFuses(rewardsFuses))
	if _, ok := market.ClaimFuse(); !ok {
		return nil, clierr.New(clierr.CodeUnsupported, "no known MorphoClaimFuse among the rewards claim manager fuses; pass --claim-fuse")
	}
	return market, nil
}

func (s *runtimeState) newMorphoRewardsClaimCommand() *cobra.Command {
	var tokenArg, claimFuseArg string
	var flags execFlags
	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Claim Morpho distributions through the rewards claim manager",
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := parseOptionalToken(tokenArg)
			if err != nil {
				return err
			}
			var claimFuse common.Address
			if claimFuseArg != "" {
				if claimFuse, err = parseAddressFlag("--claim-fuse", claimFuseArg); err != nil {
					return err
				}
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
			items, err := s.vaultDistributions(ctx, t, token)
			if err != nil {
				return err
			}
			path := trimRootPath(cmd.CommandPath())
			if len(items) == 0 {
				return s.emitSuccess(path, []any{}, []string{"no claimable morpho distributions for this vault"}, cacheMetaBypass())
			}

			sys, err := s.openSystem(ctx, t, txSigner)
			if err != nil {
				return err
			}
			defer sys.Close()

			market, err := morphoClaimMarket(ctx, sys, claimFuse)
			if err != nil {
				return err
			}
			actions := make([]fuse.FuseAction, 0, len(items))
			for _, item := range items {
				action, err := market.ClaimRewards(item.Distributor, item.RewardsToken, item.Claimable, item.Proof)
				if err != nil {
					return err
				}
				actions = append(actions, action)
			}
			manager := sys.RewardsClaimManager()
			data, err := manager.ClaimRewardsData(actions)
			if err != nil {
				return err
			}
			action, err := planner.BuildCallAction(t.request(txSigner.Address(), flags.simulate), "rewards_claim", planner.Call{
				StepID:      "morpho-claim",
				Type:        execution.StepTypeClaim,
				Description: fmt.Sprintf("Claim %d morpho distribution(s)", len(items)),
				Target:      manager.Address(),
				Data:        data,
			})
			if err != nil {
				return err
			}
			action.Market = marketMorpho
			tokens := make([]string, 0, len(items))
			for _, item := range items {
				tokens = append(tokens, item.RewardsToken.Hex())
			}
			fuseAddr, _ := market.ClaimFuse()
			action.Metadata = map[string]any{"rewards_tokens": tokens, "claim_fuse": fuseAddr.Hex()}
			return s.submitAction(ctx, cmd, t, sys, txSigner, action, flags)
		},
	}
	cmd.Flags().StringVar(&tokenArg, "token", "", "Only claim this rewards token")
	cmd.Flags().StringVar(&claimFuseArg, "claim-fuse", "", "Morpho Blue claim fuse address (default: found on the rewards claim manager)")
	addExecFlags(cmd, &flags)
	return cmd
}
