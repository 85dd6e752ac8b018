package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/ipor-labs/fusion/internal/config"
	clierr "github.com/ipor-labs/fusion/internal/errors"
	"github.com/ipor-labs/fusion/internal/execution"
	"github.com/ipor-labs/fusion/internal/execution/planner"
	"github.com/ipor-labs/fusion/internal/execution/signer"
	"github.com/ipor-labs/fusion/internal/id"
	"github.com/ipor-labs/fusion/internal/logging"
	"github.com/ipor-labs/fusion/internal/model"
	"github.com/ipor-labs/fusion/internal/system"
)

// vaultTarget is the configured vault a command operates on.
type vaultTarget struct {
	chain  id.Chain
	vault  common.Address
	rpcURL string
	entry  config.ResolvedVault
}

func (t vaultTarget) request(sender common.Address, simulate bool) planner.VaultRequest {
	return planner.VaultRequest{
		Chain:    t.chain,
		Vault:    t.vault,
		Sender:   sender,
		RPCURL:   t.rpcURL,
		Simulate: simulate,
	}
}

// resolveVault loads the vault configuration file and picks the --vault entry
// (or the default one). --rpc-url overrides the chain's rpc_url.
func (s *runtimeState) resolveVault() (vaultTarget, error) {
	cfg, err := config.LoadVaultConfig(s.settings.VaultConfigPath)
	if err != nil {
		return vaultTarget{}, err
	}
	resolved, err := cfg.Resolve(s.settings.VaultName)
	if err != nil {
		return vaultTarget{}, err
	}
	if !common.IsHexAddress(resolved.Vault.PlasmaVaultAddress) {
		return vaultTarget{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("vault %q has an invalid plasma_vault_address", resolved.Vault.Name))
	}
	rpcURL := strings.TrimSpace(s.settings.RPCURL)
	if rpcURL == "" {
		rpcURL = resolved.Chain.RPCURL
	}
	if rpcURL == "" {
		return vaultTarget{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("chain %d has no rpc_url; pass --rpc-url", resolved.Chain.ChainID))
	}
	t := vaultTarget{
		chain:  id.ChainFromID(resolved.Chain.ChainID),
		vault:  resolved.Vault.Address(),
		rpcURL: rpcURL,
		entry:  resolved,
	}
	s.lastChainID = t.chain.CAIP2
	s.lastVault = t.vault.Hex()
	return t, nil
}

// signerFor returns the vault's configured key, falling back to the
// FUSION_PRIVATE_KEY / key file / keystore sources.
func (s *runtimeState) signerFor(t vaultTarget) (signer.Signer, error) {
	if strings.TrimSpace(t.entry.Vault.PrivateKey) != "" {
		key, err := t.entry.Vault.DecryptedPrivateKey(s.settings.Password)
		if err != nil {
			return nil, err
		}
		local, err := signer.NewLocalSignerFromHex(key)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeSigner, "load vault private key", err)
		}
		return local, nil
	}
	source, err := signer.ParseKeySource(s.settings.KeySource)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "parse --key-source", err)
	}
	local, err := signer.NewLocalSignerFromInputs(source, "")
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "initialize local signer", err)
	}
	return local, nil
}

// optionalSigner is signerFor for read commands: no key means no alpha.
func (s *runtimeState) optionalSigner(t vaultTarget) signer.Signer {
	txSigner, err := s.signerFor(t)
	if err != nil {
		logger := logging.For("app")
		logger.Debug().Err(err).Msg("no signer available, reading without alpha")
		return nil
	}
	return txSigner
}

// openSystem dials the vault's node and checks it serves the configured chain.
func (s *runtimeState) openSystem(ctx context.Context, t vaultTarget, txSigner signer.Signer, sysOpts ...system.Option) (*system.PlasmaSystem, error) {
	opts := execution.DefaultExecuteOptions()
	opts.GasMultiplier = s.settings.GasMultiplier
	sys, err := system.Factory{RPCURL: t.rpcURL, Signer: txSigner, Options: opts}.Get(ctx, t.vault, sysOpts...)
	if err != nil {
		return nil, err
	}
	if sys.ChainID() != t.chain.EVMChainID {
		sys.Close()
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("rpc serves chain %d but vault %q is configured on chain %d", sys.ChainID(), t.entry.Vault.Name, t.chain.EVMChainID))
	}
	return sys, nil
}

func (s *runtimeState) commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.settings.Timeout)
}

// execFlags are the transaction flags shared by every write command.
type execFlags struct {
	simulate           bool
	pollInterval       string
	stepTimeout        string
	gasMultiplier      float64
	gasLimit           uint64
	maxFeeGwei         string
	maxPriorityFeeGwei string
	allowMaxApproval   bool
}

func addExecFlags(cmd *cobra.Command, f *execFlags) {
	cmd.Flags().BoolVar(&f.simulate, "simulate", false, "Simulate with eth_call only; nothing is sent")
	cmd.Flags().StringVar(&f.pollInterval, "poll-interval", "2s", "Receipt polling interval")
	cmd.Flags().StringVar(&f.stepTimeout, "step-timeout", "2m", "Per-step receipt timeout")
	cmd.Flags().Float64Var(&f.gasMultiplier, "gas-multiplier", 0, "Gas estimate safety multiplier (default from settings)")
	cmd.Flags().Uint64Var(&f.gasLimit, "gas-limit", 0, "Fixed gas limit (default from vault config, else estimated)")
	cmd.Flags().StringVar(&f.maxFeeGwei, "max-fee-gwei", "", "EIP-1559 max fee (gwei)")
	cmd.Flags().StringVar(&f.maxPriorityFeeGwei, "max-priority-fee-gwei", "", "EIP-1559 max priority fee (gwei)")
	cmd.Flags().BoolVar(&f.allowMaxApproval, "allow-max-approval", false, "Allow approvals above the planned amount")
}

// executeOptions layers command flags over the chain's configured defaults.
func (f execFlags) executeOptions(chain config.ChainConfig, settings config.Settings) (execution.ExecuteOptions, error) {
	opts := execution.DefaultExecuteOptions()
	opts.GasMultiplier = settings.GasMultiplier
	if f.gasMultiplier != 0 {
		if f.gasMultiplier < 1 {
			return execution.ExecuteOptions{}, clierr.New(clierr.CodeUsage, "--gas-multiplier must be >= 1")
		}
		opts.GasMultiplier = f.gasMultiplier
	}
	var err error
	if opts.PollInterval, err = parsePositiveDuration("--poll-interval", f.pollInterval); err != nil {
		return execution.ExecuteOptions{}, err
	}
	if opts.StepTimeout, err = parsePositiveDuration("--step-timeout", f.stepTimeout); err != nil {
		return execution.ExecuteOptions{}, err
	}
	opts.GasLimit = chain.GasLimit
	if f.gasLimit != 0 {
		opts.GasLimit = f.gasLimit
	}
	opts.MaxFeeGwei = firstNonEmpty(f.maxFeeGwei, chain.MaxFeeGwei)
	opts.MaxPriorityFeeGwei = firstNonEmpty(f.maxPriorityFeeGwei, chain.MaxPriorityFeeGwei)
	opts.AllowMaxApproval = f.allowMaxApproval
	return opts, nil
}

func parsePositiveDuration(flag, v string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil || d <= 0 {
		return 0, clierr.New(clierr.CodeUsage, fmt.Sprintf("%s must be a positive duration", flag))
	}
	return d, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// submitAction persists action and then either simulates it or runs it to
// completion. The stored action reflects the final step states either way.
func (s *runtimeState) submitAction(ctx context.Context, cmd *cobra.Command, t vaultTarget, sys *system.PlasmaSystem, txSigner signer.Signer, action execution.Action, flags execFlags) error {
	path := trimRootPath(cmd.CommandPath())
	if err := s.ensureActionStore(); err != nil {
		return err
	}
	if err := s.actionStore.Save(action); err != nil {
		return clierr.Wrap(clierr.CodeInternal, "persist planned action", err)
	}
	log := logging.For("app").With().Str("action_id", action.ActionID).Str("intent", action.IntentType).Logger()

	if flags.simulate {
		warnings, err := simulateSteps(ctx, sys.Executor(), &action)
		action.Touch()
		if saveErr := s.actionStore.Save(action); saveErr != nil {
			log.Warn().Err(saveErr).Msg("persist simulated action")
		}
		if err != nil {
			s.lastWarnings = warnings
			return explainUnauthorized(err, txSigner.Address())
		}
		log.Info().Msg("simulation succeeded")
		return s.emitSuccess(path, action, warnings, cacheMetaBypass())
	}

	opts, err := flags.executeOptions(t.entry.Chain, s.settings)
	if err != nil {
		return err
	}
	if err := execution.ExecuteAction(ctx, s.actionStore, &action, txSigner, opts); err != nil {
		return explainUnauthorized(err, txSigner.Address())
	}
	log.Info().Strs("tx_hashes", action.TxHashes()).Msg("action completed")
	return s.emitSuccess(path, action, nil, cacheMetaBypass())
}

// stepSimulator is the eth_call side of the executor.
type stepSimulator interface {
	Simulate(ctx context.Context, to common.Address, data []byte) error
}

// simulateSteps eth_calls each step in order. A step planned after an
// approval cannot see the allowance yet, so it is skipped with a warning.
func simulateSteps(ctx context.Context, sim stepSimulator, action *execution.Action) ([]string, error) {
	var warnings []string
	afterApproval := false
	for i := range action.Steps {
		step := &action.Steps[i]
		if afterApproval && step.Type != execution.StepTypeApproval {
			warnings = append(warnings, fmt.Sprintf("step %s not simulated: depends on an approval that has not been mined", step.StepID))
			continue
		}
		if err := sim.Simulate(ctx, common.HexToAddress(step.Target), common.FromHex(step.Data)); err != nil {
			step.Status = execution.StepStatusFailed
			step.Error = err.Error()
			return warnings, err
		}
		step.Status = execution.StepStatusSimulated
		if step.Type == execution.StepTypeApproval {
			afterApproval = true
		}
	}
	return append(warnings, "simulation only; no transaction was sent"), nil
}

// explainUnauthorized names the alpha when the vault rejects the caller.
func explainUnauthorized(err error, alpha common.Address) error {
	caller, ok := execution.UnauthorizedCaller(err)
	if !ok {
		return err
	}
	return clierr.Wrap(
		clierr.CodeUnauthorized,
		fmt.Sprintf("AccessManagedUnauthorized(address=%s): alpha %s lacks the role for this call", caller.Hex(), alpha.Hex()),
		err,
	)
}

func amountInfo(baseUnits string, decimals int) model.AmountInfo {
	return model.AmountInfo{
		AmountBaseUnits: baseUnits,
		AmountDecimal:   id.FormatDecimalCompat(baseUnits, decimals),
		Decimals:        decimals,
	}
}

func parseAddressFlag(flag, v string) (common.Address, error) {
	clean := strings.TrimSpace(v)
	if !common.IsHexAddress(clean) {
		return common.Address{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("%s must be a 0x address", flag))
	}
	return common.HexToAddress(clean), nil
}
