package app

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ipor-labs/fusion/internal/config"
	clierr "github.com/ipor-labs/fusion/internal/errors"
	"github.com/ipor-labs/fusion/internal/execution"
	"github.com/ipor-labs/fusion/internal/execution/signer"
	"github.com/ipor-labs/fusion/internal/id"
	"github.com/ipor-labs/fusion/internal/keyenc"
	"github.com/ipor-labs/fusion/internal/logging"
	"github.com/ipor-labs/fusion/internal/model"
)

func (s *runtimeState) newInitCommand() *cobra.Command {
	var (
		vaultAddress   string
		privateKey     string
		network        string
		name           string
		gasLimit       uint64
		gasPrice       string
		maxPriorityFee string
		encrypt        bool
		force          bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a plasma vault entry to the vault configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			vault, err := parseAddressFlag("--plasma-vault-address", vaultAddress)
			if err != nil {
				return err
			}
			rpcURL := strings.TrimSpace(s.settings.RPCURL)
			if rpcURL == "" {
				return clierr.New(clierr.CodeUsage, "--rpc-url is required")
			}
			keySigner, err := signer.NewLocalSignerFromHex(privateKey)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "invalid --private-key", err)
			}
			name = strings.TrimSpace(name)
			if name == "" {
				return clierr.New(clierr.CodeUsage, "--name must not be empty")
			}

			var chain id.Chain
			if strings.TrimSpace(network) != "" {
				if chain, err = id.ParseChain(network); err != nil {
					return err
				}
			} else {
				ctx, cancel := s.commandContext()
				defer cancel()
				exec, err := execution.Dial(ctx, rpcURL, nil, execution.DefaultExecuteOptions())
				if err != nil {
					return err
				}
				chain = id.ChainFromID(exec.ChainID().Int64())
				exec.Close()
			}

			path := s.settings.VaultConfigPath
			cfg, err := loadOrEmptyVaultConfig(path)
			if err != nil {
				return err
			}
			if _, err := cfg.Resolve(name); err == nil && !force {
				return clierr.New(clierr.CodeUsage, fmt.Sprintf("plasma vault %q already exists in %s; use --force to replace it", name, path))
			}

			key := strings.TrimSpace(privateKey)
			if encrypt {
				if s.settings.Password == "" {
					return clierr.New(clierr.CodeUsage, "--encrypt-private-key requires --password or FUSION_PASSWORD")
				}
				if key, err = keyenc.Encrypt(key, s.settings.Password); err != nil {
					return clierr.Wrap(clierr.CodeInternal, "encrypt private key", err)
				}
			}
			cfg.UpsertVault(config.ChainConfig{
				ChainID:            chain.EVMChainID,
				ChainName:          chain.Name,
				ChainShortName:     chain.ShortName,
				RPCURL:             rpcURL,
				GasLimit:           gasLimit,
				MaxFeeGwei:         strings.TrimSpace(gasPrice),
				MaxPriorityFeeGwei: strings.TrimSpace(maxPriorityFee),
			}, config.PlasmaVaultConfig{
				Name:               name,
				PlasmaVaultAddress: vault.Hex(),
				PrivateKey:         key,
			})
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.SaveVaultConfig(path, cfg); err != nil {
				return err
			}
			logger := logging.For("config")
			logger.Info().Str("path", path).Str("vault", name).Msg("configuration written")

			s.lastChainID = chain.CAIP2
			s.lastVault = vault.Hex()
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), model.InitResult{
				Path:      path,
				Name:      name,
				ChainID:   chain.EVMChainID,
				ChainName: chain.Name,
				Vault:     vault.Hex(),
				Signer:    keySigner.Address().Hex(),
				Encrypted: encrypt,
			}, nil, cacheMetaBypass())
		},
	}
	cmd.Flags().StringVar(&vaultAddress, "plasma-vault-address", "", "Plasma vault address")
	cmd.Flags().StringVar(&privateKey, "private-key", "", "Alpha private key hex")
	cmd.Flags().StringVar(&network, "network", "", "Chain (ethereum|base|arbitrum|chain id); read from the RPC when empty")
	cmd.Flags().StringVar(&name, "name", "default", "Name of the vault entry")
	cmd.Flags().Uint64Var(&gasLimit, "gas-limit", 300000, "Default gas limit for transactions")
	cmd.Flags().StringVar(&gasPrice, "gas-price", "", "Default EIP-1559 max fee (gwei)")
	cmd.Flags().StringVar(&maxPriorityFee, "max-priority-fee", "", "Default EIP-1559 max priority fee (gwei)")
	cmd.Flags().BoolVar(&encrypt, "encrypt-private-key", false, "Encrypt the private key with --password")
	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing vault entry with the same name")
	_ = cmd.MarkFlagRequired("plasma-vault-address")
	_ = cmd.MarkFlagRequired("private-key")
	return cmd
}

func loadOrEmptyVaultConfig(path string) (config.GeneralConfig, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return config.GeneralConfig{}, nil
	}
	return config.LoadVaultConfig(path)
}

func (s *runtimeState) newConfigCommand() *cobra.Command {
	root := &cobra.Command{Use: "config", Short: "Inspect and maintain the vault configuration file"}

	root.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the vault configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := s.settings.VaultConfigPath
			cfg, err := config.LoadVaultConfig(path)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			check := model.ConfigCheck{Path: path, Valid: true, Chains: len(cfg.ChainConfigs)}
			for _, chain := range cfg.ChainConfigs {
				check.Vaults += len(chain.PlasmaVaults)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), check, nil, cacheMetaBypass())
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the vault configuration with private keys masked",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := s.settings.VaultConfigPath
			cfg, err := config.LoadVaultConfig(path)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), configView(path, cfg), nil, cacheMetaBypass())
		},
	})

	root.AddCommand(s.newEncryptKeysCommand())
	return root
}

// newEncryptKeysCommand backs both `encrypt` and `config encrypt`.
func (s *runtimeState) newEncryptKeysCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt every plain private key in the vault configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if s.settings.Password == "" {
				return clierr.New(clierr.CodeUsage, "--password or FUSION_PASSWORD is required")
			}
			path := s.settings.VaultConfigPath
			cfg, err := config.LoadVaultConfig(path)
			if err != nil {
				return err
			}
			n, err := cfg.EncryptPrivateKeys(s.settings.Password)
			if err != nil {
				return err
			}
			var warnings []string
			if n == 0 {
				warnings = append(warnings, "no plain private keys found; file left unchanged")
			} else if err := config.SaveVaultConfig(path, cfg); err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), model.EncryptResult{Path: path, Encrypted: n}, warnings, cacheMetaBypass())
		},
	}
}

func configView(path string, cfg config.GeneralConfig) model.ConfigView {
	view := model.ConfigView{
		Path:                   path,
		DefaultPlasmaVaultName: cfg.DefaultPlasmaVaultName,
		Chains:                 make([]model.ConfigChainView, 0, len(cfg.ChainConfigs)),
	}
	encrypted := false
	for _, chain := range cfg.ChainConfigs {
		cv := model.ConfigChainView{
			ChainID:        chain.ChainID,
			ChainName:      chain.ChainName,
			ChainShortName: chain.ChainShortName,
			RPCURL:         chain.RPCURL,
			GasLimit:       chain.GasLimit,
			MaxFeeGwei:     chain.MaxFeeGwei,
			MaxPriorityFee: chain.MaxPriorityFeeGwei,
			PlasmaVaults:   make([]model.ConfigVaultView, 0, len(chain.PlasmaVaults)),
		}
		for _, v := range chain.PlasmaVaults {
			enc := v.IsPrivateKeyEncrypted()
			encrypted = encrypted || enc
			cv.PlasmaVaults = append(cv.PlasmaVaults, model.ConfigVaultView{
				Name:               v.Name,
				PlasmaVaultAddress: v.PlasmaVaultAddress,
				PrivateKey:         v.MaskedPrivateKey(),
				Encrypted:          enc,
			})
		}
		view.Chains = append(view.Chains, cv)
	}
	if encrypted {
		info := keyenc.Describe()
		view.EncryptionScheme = fmt.Sprintf("%s, %s x%d", info.Method, info.KeyDerivation, info.Iterations)
	}
	return view
}
