package app

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	clierr "github.com/ipor-labs/fusion/internal/errors"
	"github.com/ipor-labs/fusion/internal/execution"
	"github.com/ipor-labs/fusion/internal/logging"
)

func (s *runtimeState) newActionsCommand() *cobra.Command {
	root := &cobra.Command{Use: "actions", Short: "Inspect, estimate and resume persisted actions"}
	root.AddCommand(s.newActionsListCommand())
	root.AddCommand(s.newActionsShowCommand())
	root.AddCommand(s.newActionsEstimateCommand())
	root.AddCommand(s.newActionsSubmitCommand())
	return root
}

func (s *runtimeState) newActionsListCommand() *cobra.Command {
	var status string
	var limit int
	var allVaults bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List persisted actions, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			status = strings.ToLower(strings.TrimSpace(status))
			switch execution.ActionStatus(status) {
			case "", execution.ActionStatusPlanned, execution.ActionStatusRunning, execution.ActionStatusCompleted, execution.ActionStatusFailed:
			default:
				return clierr.New(clierr.CodeUsage, "--status must be planned|running|completed|failed")
			}
			if limit <= 0 {
				return clierr.New(clierr.CodeUsage, "--limit must be > 0")
			}
			filter := execution.ListFilter{Status: status, Limit: limit}
			if !allVaults {
				t, err := s.resolveVault()
				if err != nil {
					return err
				}
				filter.Vault = t.vault.Hex()
			}
			if err := s.ensureActionStore(); err != nil {
				return err
			}
			items, err := s.actionStore.List(filter)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "list actions", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, nil, cacheMetaBypass())
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum actions to list")
	cmd.Flags().BoolVar(&allVaults, "all", false, "List actions of every vault, not just the selected one")
	return cmd
}

// actionIDArg reads the id from the positional argument or --action-id.
func actionIDArg(args []string, flagValue string) (string, error) {
	id := strings.TrimSpace(flagValue)
	if len(args) > 0 {
		if id != "" && id != args[0] {
			return "", clierr.New(clierr.CodeUsage, "action id given twice with different values")
		}
		id = strings.TrimSpace(args[0])
	}
	if id == "" {
		return "", clierr.New(clierr.CodeUsage, "action id is required")
	}
	return id, nil
}

func (s *runtimeState) loadAction(args []string, flagValue string) (execution.Action, error) {
	id, err := actionIDArg(args, flagValue)
	if err != nil {
		return execution.Action{}, err
	}
	if err := s.ensureActionStore(); err != nil {
		return execution.Action{}, err
	}
	action, err := s.actionStore.Get(id)
	if err != nil {
		return execution.Action{}, err
	}
	s.lastChainID = action.ChainID
	s.lastVault = action.VaultAddress
	return action, nil
}

func (s *runtimeState) newActionsShowCommand() *cobra.Command {
	var actionID string
	cmd := &cobra.Command{
		Use:   "show [action-id]",
		Short: "Show one persisted action",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := s.loadAction(args, actionID)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), action, nil, cacheMetaBypass())
		},
	}
	cmd.Flags().StringVar(&actionID, "action-id", "", "Action id")
	return cmd
}

func (s *runtimeState) newActionsEstimateCommand() *cobra.Command {
	var actionID, stepIDs, blockTag, maxFee, maxPriorityFee, senderArg string
	var gasMultiplier float64
	cmd := &cobra.Command{
		Use:   "estimate [action-id]",
		Short: "Estimate gas and fees for an action's steps",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := s.loadAction(args, actionID)
			if err != nil {
				return err
			}
			opts := execution.DefaultEstimateOptions()
			opts.StepIDs = splitCSV(stepIDs)
			if blockTag != "" {
				opts.BlockTag = execution.EstimateBlockTag(strings.ToLower(strings.TrimSpace(blockTag)))
			}
			if gasMultiplier != 0 {
				opts.GasMultiplier = gasMultiplier
			}
			opts.MaxFeeGwei = maxFee
			opts.MaxPriorityFeeGwei = maxPriorityFee
			switch {
			case senderArg != "":
				if opts.Sender, err = parseAddressFlag("--from", senderArg); err != nil {
					return err
				}
			case action.FromAddress == "":
				// Access-managed calls revert from the zero address, so fall
				// back to the configured alpha when the action has no sender.
				if t, err := s.resolveVault(); err == nil {
					if txSigner := s.optionalSigner(t); txSigner != nil {
						opts.Sender = txSigner.Address()
					}
				}
			}
			ctx, cancel := s.commandContext()
			defer cancel()
			estimate, err := execution.EstimateActionGas(ctx, action, opts)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), estimate, nil, cacheMetaBypass())
		},
	}
	cmd.Flags().StringVar(&actionID, "action-id", "", "Action id")
	cmd.Flags().StringVar(&stepIDs, "step-ids", "", "Steps to estimate (comma-separated); default all")
	cmd.Flags().StringVar(&blockTag, "block-tag", "", "Block tag for estimation (latest|pending)")
	cmd.Flags().Float64Var(&gasMultiplier, "gas-multiplier", 0, "Gas estimate safety multiplier")
	cmd.Flags().StringVar(&maxFee, "max-fee-gwei", "", "EIP-1559 max fee override (gwei)")
	cmd.Flags().StringVar(&maxPriorityFee, "max-priority-fee-gwei", "", "EIP-1559 max priority fee override (gwei)")
	cmd.Flags().StringVar(&senderArg, "from", "", "Estimate as this sender")
	return cmd
}

func (s *runtimeState) newActionsSubmitCommand() *cobra.Command {
	var actionID string
	var flags execFlags
	cmd := &cobra.Command{
		Use:   "submit [action-id]",
		Short: "Send a planned or failed action, skipping confirmed steps",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.simulate {
				return clierr.New(clierr.CodeUsage, "--simulate is not supported for actions submit; use actions estimate")
			}
			action, err := s.loadAction(args, actionID)
			if err != nil {
				return err
			}
			path := trimRootPath(cmd.CommandPath())
			if action.Status == execution.ActionStatusCompleted {
				return s.emitSuccess(path, action, []string{"action already completed; nothing sent"}, cacheMetaBypass())
			}
			t, err := s.resolveVault()
			if err != nil {
				return err
			}
			if !strings.EqualFold(action.VaultAddress, t.vault.Hex()) {
				return clierr.New(clierr.CodeUsage, fmt.Sprintf("action %s targets vault %s; select it with --vault", action.ActionID, action.VaultAddress))
			}
			txSigner, err := s.signerFor(t)
			if err != nil {
				return err
			}
			if action.FromAddress != "" && common.HexToAddress(action.FromAddress) != txSigner.Address() {
				return clierr.New(clierr.CodeSigner, fmt.Sprintf("action was planned for %s but the signer is %s", action.FromAddress, txSigner.Address().Hex()))
			}
			opts, err := flags.executeOptions(t.entry.Chain, s.settings)
			if err != nil {
				return err
			}
			ctx, cancel := s.commandContext()
			defer cancel()
			if err := execution.ExecuteAction(ctx, s.actionStore, &action, txSigner, opts); err != nil {
				return explainUnauthorized(err, txSigner.Address())
			}
			logger := logging.For("app")
			logger.Info().Str("action_id", action.ActionID).Strs("tx_hashes", action.TxHashes()).Msg("action resumed")
			return s.emitSuccess(path, action, nil, cacheMetaBypass())
		},
	}
	cmd.Flags().StringVar(&actionID, "action-id", "", "Action id")
	addExecFlags(cmd, &flags)
	return cmd
}
