package app

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	clierr "github.com/ipor-labs/fusion/internal/errors"
	"github.com/ipor-labs/fusion/internal/execution/planner"
	"github.com/ipor-labs/fusion/internal/id"
	"github.com/ipor-labs/fusion/internal/model"
	"github.com/ipor-labs/fusion/internal/system"
)

// withdrawManagerFlags are shared by every withdrawals subcommand.
type withdrawManagerFlags struct {
	manager   string
	fromBlock uint64
}

func (f withdrawManagerFlags) options() ([]system.Option, error) {
	opts := []system.Option{system.WithFromBlock(f.fromBlock)}
	if f.manager != "" {
		addr, err := parseAddressFlag("--withdraw-manager", f.manager)
		if err != nil {
			return nil, err
		}
		opts = append(opts, system.WithWithdrawManager(addr))
	}
	return opts, nil
}

func addWithdrawManagerFlags(cmd *cobra.Command, f *withdrawManagerFlags) {
	cmd.Flags().StringVar(&f.manager, "withdraw-manager", "", "Withdraw manager address (default read from the vault)")
	cmd.Flags().Uint64Var(&f.fromBlock, "from-block", 0, "First block of the request event scan")
}

func (s *runtimeState) newWithdrawalsCommand() *cobra.Command {
	root := &cobra.Command{Use: "withdrawals", Short: "Scheduled withdrawals through the withdraw manager"}
	root.AddCommand(s.newWithdrawalsRequestCommand())
	root.AddCommand(s.newWithdrawalsReleaseCommand())
	root.AddCommand(s.newWithdrawalsPendingCommand())
	return root
}

func (s *runtimeState) newWithdrawalsRequestCommand() *cobra.Command {
	var amountBase, amountDecimal string
	var wm withdrawManagerFlags
	var flags execFlags
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Request a scheduled withdrawal of vault shares",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sysOpts, err := wm.options()
			if err != nil {
				return err
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
			sys, err := s.openSystem(ctx, t, txSigner, sysOpts...)
			if err != nil {
				return err
			}
			defer sys.Close()

			manager, err := sys.WithdrawManager()
			if err != nil {
				return err
			}
			shareDecimals, err := sys.PlasmaVault().Decimals(ctx)
			if err != nil {
				return clierr.Wrap(clierr.CodeUnavailable, "read share decimals", err)
			}
			base, _, err := id.NormalizeAmount(amountBase, amountDecimal, int(shareDecimals))
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
			data, err := manager.RequestData(amount)
			if err != nil {
				return err
			}
			action, err := planner.BuildCallAction(t.request(txSigner.Address(), flags.simulate), "withdrawals_request", planner.Call{
				StepID:      "withdraw-request",
				Description: "Request withdrawal of " + base + " shares",
				Target:      manager.Address(),
				Data:        data,
			})
			if err != nil {
				return err
			}
			action.InputAmount = base
			return s.submitAction(ctx, cmd, t, sys, txSigner, action, flags)
		},
	}
	cmd.Flags().StringVar(&amountBase, "amount", "", "Shares in base units")
	cmd.Flags().StringVar(&amountDecimal, "amount-decimal", "", "Shares in decimal units")
	addWithdrawManagerFlags(cmd, &wm)
	addExecFlags(cmd, &flags)
	return cmd
}

func (s *runtimeState) newWithdrawalsReleaseCommand() *cobra.Command {
	var timestamp uint64
	var wm withdrawManagerFlags
	var flags execFlags
	cmd := &cobra.Command{
		Use:   "release",
		Short: "Release funds for requests made before a timestamp",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sysOpts, err := wm.options()
			if err != nil {
				return err
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
			sys, err := s.openSystem(ctx, t, txSigner, sysOpts...)
			if err != nil {
				return err
			}
			defer sys.Close()

			manager, err := sys.WithdrawManager()
			if err != nil {
				return err
			}
			// The release timestamp must lie strictly in the past.
			if timestamp == 0 {
				now, err := sys.Executor().BlockTimestamp(ctx)
				if err != nil {
					return err
				}
				if now == 0 {
					return clierr.New(clierr.CodeUnavailable, "latest block has no timestamp")
				}
				timestamp = now - 1
			}
			data, err := manager.ReleaseFundsData(new(big.Int).SetUint64(timestamp))
			if err != nil {
				return err
			}
			action, err := planner.BuildCallAction(t.request(txSigner.Address(), flags.simulate), "withdrawals_release", planner.Call{
				StepID:      "withdraw-release",
				Description: fmt.Sprintf("Release funds for requests up to %d", timestamp),
				Target:      manager.Address(),
				Data:        data,
			})
			if err != nil {
				return err
			}
			action.Metadata = map[string]any{"release_timestamp": timestamp}
			return s.submitAction(ctx, cmd, t, sys, txSigner, action, flags)
		},
	}
	cmd.Flags().Uint64Var(&timestamp, "timestamp", 0, "Release timestamp (default latest block time minus one second)")
	addWithdrawManagerFlags(cmd, &wm)
	addExecFlags(cmd, &flags)
	return cmd
}

func (s *runtimeState) newWithdrawalsPendingCommand() *cobra.Command {
	var accountArg string
	var wm withdrawManagerFlags
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Show open withdraw requests",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sysOpts, err := wm.options()
			if err != nil {
				return err
			}
			var account common.Address
			if accountArg != "" {
				if account, err = parseAddressFlag("--account", accountArg); err != nil {
					return err
				}
			}
			t, err := s.resolveVault()
			if err != nil {
				return err
			}
			ctx, cancel := s.commandContext()
			defer cancel()
			sys, err := s.openSystem(ctx, t, nil, sysOpts...)
			if err != nil {
				return err
			}
			defer sys.Close()

			manager, err := sys.WithdrawManager()
			if err != nil {
				return err
			}
			path := trimRootPath(cmd.CommandPath())
			if account != (common.Address{}) {
				info, err := manager.RequestInfo(ctx, account)
				if err != nil {
					return err
				}
				return s.emitSuccess(path, model.WithdrawalRequestInfo{
					Account:         account.Hex(),
					Amount:          info.Amount.String(),
					EndWithdrawAt:   info.EndWithdrawWindowTimestamp.Int64(),
					CanWithdraw:     info.CanWithdraw,
					WithdrawWindowS: info.WithdrawWindowInSeconds.Int64(),
				}, nil, cacheMetaBypass())
			}
			pending, err := manager.PendingRequestsInfo(ctx)
			if err != nil {
				return err
			}
			accounts := make([]string, 0, len(pending.Accounts))
			for _, a := range pending.Accounts {
				accounts = append(accounts, a.Hex())
			}
			return s.emitSuccess(path, model.PendingWithdrawals{
				Amount:           pending.Amount.String(),
				ReleaseTimestamp: pending.ReleaseTimestamp,
				Accounts:         accounts,
			}, nil, cacheMetaBypass())
		},
	}
	cmd.Flags().StringVar(&accountArg, "account", "", "Show the request of one account")
	addWithdrawManagerFlags(cmd, &wm)
	return cmd
}
