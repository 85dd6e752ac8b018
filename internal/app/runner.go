package app

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ipor-labs/fusion/internal/cache"
	"github.com/ipor-labs/fusion/internal/config"
	clierr "github.com/ipor-labs/fusion/internal/errors"
	"github.com/ipor-labs/fusion/internal/execution"
	"github.com/ipor-labs/fusion/internal/logging"
	"github.com/ipor-labs/fusion/internal/model"
	"github.com/ipor-labs/fusion/internal/out"
	"github.com/ipor-labs/fusion/internal/policy"
	"github.com/ipor-labs/fusion/internal/resolver"
	"github.com/ipor-labs/fusion/internal/schema"
	"github.com/ipor-labs/fusion/internal/version"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
	}
}

type runtimeState struct {
	runner      *Runner
	flags       config.GlobalFlags
	settings    config.Settings
	root        *cobra.Command
	cache       *cache.Store
	actionStore *execution.Store
	names       *resolver.Resolver

	lastCommand  string
	lastChainID  string
	lastVault    string
	lastWarnings []string
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r}
	root := state.newRootCommand()
	state.root = root
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.Execute()
	err = normalizeRunError(err)
	if err != nil {
		state.renderError("", err, state.lastWarnings)
	}
	state.close()
	return clierr.ExitCode(err)
}

func (s *runtimeState) close() {
	if s.names != nil {
		s.names.Close()
	}
	if s.cache != nil {
		_ = s.cache.Close()
	}
	if s.actionStore != nil {
		_ = s.actionStore.Close()
	}
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Operate IPOR Fusion Plasma Vaults",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings
			logging.Initialize(s.runner.stderr, settings.LogLevel)

			path := trimRootPath(cmd.CommandPath())
			s.lastCommand = path
			if err := policy.CheckCommandAllowed(settings.EnableCommands, path); err != nil {
				return err
			}
			return policy.CheckReadOnly(settings.ReadOnly, path)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	pf := cmd.PersistentFlags()
	pf.BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	pf.BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	pf.StringVar(&s.flags.Select, "select", "", "Select fields from data (comma-separated)")
	pf.BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only data payload")
	pf.StringVar(&s.flags.EnableCommands, "enable-commands", "", "Allowlist command paths (comma-separated)")
	pf.BoolVar(&s.flags.ReadOnly, "read-only", false, "Block commands that send transactions or rewrite config")
	pf.StringVar(&s.flags.Timeout, "timeout", "", "Request timeout for RPC and API calls")
	pf.IntVar(&s.flags.Retries, "retries", -1, "Retries per API request")
	pf.BoolVar(&s.flags.NoCache, "no-cache", false, "Disable the contract name cache")
	pf.StringVar(&s.flags.ConfigPath, "config", "", "Path to CLI settings file")
	pf.StringVar(&s.flags.EnvFile, "env-file", "", "Path to a .env file (default ./.env)")
	pf.StringVar(&s.flags.VaultConfigPath, "config-file", "", "Path to the vault configuration file (default "+config.DefaultVaultConfigFile+")")
	pf.StringVar(&s.flags.VaultName, "vault", "", "Plasma vault name from the configuration file")
	pf.StringVar(&s.flags.RPCURL, "rpc-url", "", "RPC URL override")
	pf.StringVar(&s.flags.Password, "password", "", "Password for encrypted private keys")
	pf.StringVar(&s.flags.KeySource, "key-source", "", "Signing key source when the vault has no private_key (auto|env|file|keystore)")
	pf.StringVar(&s.flags.LogLevel, "log-level", "", "Log level (debug|info|warn|error|disabled)")

	cmd.AddCommand(newVersionCommand())
	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(s.newInitCommand())
	cmd.AddCommand(s.newConfigCommand())
	cmd.AddCommand(s.newEncryptKeysCommand())
	cmd.AddCommand(s.newMarketCommand(verbSupply, "Supply assets from the vault into a market"))
	cmd.AddCommand(s.newMarketCommand(verbWithdraw, "Withdraw vault assets from a market"))
	cmd.AddCommand(s.newVaultCommand())
	cmd.AddCommand(s.newRolesCommand())
	cmd.AddCommand(s.newWithdrawalsCommand())
	cmd.AddCommand(s.newRewardsCommand())
	cmd.AddCommand(s.newPricesCommand())
	cmd.AddCommand(s.newContractsCommand())
	cmd.AddCommand(s.newActionsCommand())
	cmd.AddCommand(s.newMonitorCommand())
	markMutating(cmd)
	return cmd
}

// markMutating annotates every write command so `schema` can report it.
func markMutating(cmd *cobra.Command) {
	for _, child := range cmd.Commands() {
		if policy.IsWriteCommand(trimRootPath(child.CommandPath())) {
			if child.Annotations == nil {
				child.Annotations = map[string]string{}
			}
			child.Annotations[schema.MutatingAnnotation] = "true"
		}
		markMutating(child)
	}
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := schema.Build(s.root, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil, cacheMetaBypass())
		},
	}
}

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string, cacheStatus model.CacheStatus) error {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Error:    nil,
		Warnings: warnings,
		Meta:     s.meta(commandPath, cacheStatus),
	}
	return out.Render(s.runner.stdout, env, s.settings)
}

func (s *runtimeState) renderError(commandPath string, err error, warnings []string) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	code := clierr.ExitCode(err)
	typ := "internal_error"
	message := err.Error()
	if cErr, ok := clierr.As(err); ok {
		message = cErr.Message
		if cErr.Cause != nil {
			message = fmt.Sprintf("%s: %v", cErr.Message, cErr.Cause)
		}
		typ = clierr.TypeName(cErr.Code)
	}

	settings := s.settings
	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	settings.ResultsOnly = false
	settings.SelectFields = nil
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &model.ErrorBody{
			Code:    code,
			Type:    typ,
			Message: message,
		},
		Warnings: warnings,
		Meta:     s.meta(commandPath, cacheMetaBypass()),
	}
	_ = out.Render(s.runner.stderr, env, settings)
}

func (s *runtimeState) meta(commandPath string, cacheStatus model.CacheStatus) model.EnvelopeMeta {
	return model.EnvelopeMeta{
		RequestID: newRequestID(),
		Timestamp: s.runner.now().UTC(),
		Command:   commandPath,
		ChainID:   s.lastChainID,
		Vault:     s.lastVault,
		Cache:     cacheStatus,
	}
}

// ensureCache opens the name cache unless caching is disabled. A nil store
// with a nil error means "run uncached".
func (s *runtimeState) ensureCache() (*cache.Store, error) {
	if !s.settings.CacheEnabled {
		return nil, nil
	}
	if s.cache != nil {
		return s.cache, nil
	}
	store, err := cache.Open(s.settings.CachePath, s.settings.CacheLockPath)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "open cache", err)
	}
	s.cache = store
	return store, nil
}

func (s *runtimeState) ensureActionStore() error {
	if s.actionStore != nil {
		return nil
	}
	store, err := execution.OpenStore(s.settings.ActionStorePath, s.settings.ActionLockPath)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "open action store", err)
	}
	s.actionStore = store
	return nil
}

// nameResolver builds the explorer-backed resolver once per run.
func (s *runtimeState) nameResolver() (*resolver.Resolver, error) {
	if s.names != nil {
		return s.names, nil
	}
	var opts []resolver.Option
	store, err := s.ensureCache()
	if err != nil {
		return nil, err
	}
	if store != nil {
		opts = append(opts, resolver.WithStore(store, s.settings.NameCacheTTL))
	}
	if s.settings.ScanAPIURL != "" {
		opts = append(opts, resolver.WithEndpoint(s.settings.ScanAPIURL))
	}
	r, err := resolver.New(s.settings.ScanAPIKey, s.settings.Timeout, s.settings.Retries, opts...)
	if err != nil {
		return nil, err
	}
	s.names = r
	return r, nil
}

func newRequestID() string {
	return uuid.NewString()
}

func splitCSV(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func cacheMetaBypass() model.CacheStatus {
	return model.CacheStatus{Status: "bypass", AgeMS: 0, Stale: false}
}

func cacheMetaMiss() model.CacheStatus {
	return model.CacheStatus{Status: "miss", AgeMS: 0, Stale: false}
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
