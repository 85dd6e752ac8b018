package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	clierr "github.com/ipor-labs/fusion/internal/errors"
	"github.com/ipor-labs/fusion/internal/keyenc"
)

// GeneralConfig is the vault configuration file written by `fusion init`.
type GeneralConfig struct {
	DefaultPlasmaVaultName string        `yaml:"default_plasma_vault_name"`
	ChainConfigs           []ChainConfig `yaml:"chain_configs"`
}

type ChainConfig struct {
	ChainID        int64               `yaml:"chain_id"`
	ChainName      string              `yaml:"chain_name"`
	ChainShortName string              `yaml:"chain_short_name"`
	RPCURL         string              `yaml:"rpc_url"`
	PlasmaVaults   []PlasmaVaultConfig `yaml:"plasma_vaults"`

	// Transaction defaults written by `fusion init`. Zero means estimate.
	GasLimit           uint64 `yaml:"gas_limit,omitempty"`
	MaxFeeGwei         string `yaml:"max_fee_gwei,omitempty"`
	MaxPriorityFeeGwei string `yaml:"max_priority_fee_gwei,omitempty"`
}

type PlasmaVaultConfig struct {
	Name               string `yaml:"name"`
	PlasmaVaultAddress string `yaml:"plasma_vault_address"`
	PrivateKey         string `yaml:"private_key"`
}

// ResolvedVault is a vault entry together with the chain it lives on.
type ResolvedVault struct {
	Chain ChainConfig
	Vault PlasmaVaultConfig
}

func (v PlasmaVaultConfig) Address() common.Address {
	return common.HexToAddress(v.PlasmaVaultAddress)
}

func (v PlasmaVaultConfig) IsPrivateKeyEncrypted() bool {
	return keyenc.IsEncrypted(v.PrivateKey)
}

// DecryptedPrivateKey returns the signing key, decrypting it when needed.
func (v PlasmaVaultConfig) DecryptedPrivateKey(password string) (string, error) {
	if strings.TrimSpace(v.PrivateKey) == "" {
		return "", clierr.New(clierr.CodeSigner, fmt.Sprintf("vault %q has no private key", v.Name))
	}
	if !v.IsPrivateKeyEncrypted() {
		return v.PrivateKey, nil
	}
	if password == "" {
		return "", clierr.New(clierr.CodeAuth, "private key is encrypted; password required for decryption (--password or FUSION_PASSWORD)")
	}
	key, err := keyenc.Decrypt(v.PrivateKey, password)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeAuth, "decrypt private key", err)
	}
	return key, nil
}

// MaskedPrivateKey hides the key for display.
func (v PlasmaVaultConfig) MaskedPrivateKey() string {
	if v.PrivateKey == "" {
		return ""
	}
	if v.IsPrivateKeyEncrypted() {
		return "[ENCRYPTED] **********"
	}
	if len(v.PrivateKey) <= 4 {
		return "**********"
	}
	return "**********" + v.PrivateKey[len(v.PrivateKey)-4:]
}

// LoadVaultConfig reads the vault config file. A missing or empty file is an error.
func LoadVaultConfig(path string) (GeneralConfig, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return GeneralConfig{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("configuration file not found: %s (run `fusion init`)", path))
		}
		return GeneralConfig{}, clierr.Wrap(clierr.CodeInternal, "read vault config", err)
	}
	if strings.TrimSpace(string(buf)) == "" {
		return GeneralConfig{}, clierr.New(clierr.CodeUsage, "configuration file is empty")
	}
	var cfg GeneralConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return GeneralConfig{}, clierr.Wrap(clierr.CodeUsage, "parse vault config yaml", err)
	}
	return cfg, nil
}

// SaveVaultConfig writes cfg to path, creating parent directories.
func SaveVaultConfig(path string, cfg GeneralConfig) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return clierr.Wrap(clierr.CodeInternal, "create config directory", err)
		}
	}
	buf, err := yaml.Marshal(cfg)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "encode vault config", err)
	}
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		return clierr.Wrap(clierr.CodeInternal, "write vault config", err)
	}
	return nil
}

// Validate checks addresses, rpc urls, unique vault names and the default name.
func (c GeneralConfig) Validate() error {
	if len(c.ChainConfigs) == 0 {
		return clierr.New(clierr.CodeUsage, "configuration has no chain_configs")
	}
	names := map[string]struct{}{}
	chains := map[int64]struct{}{}
	for _, chain := range c.ChainConfigs {
		if chain.ChainID <= 0 {
			return clierr.New(clierr.CodeUsage, fmt.Sprintf("chain %q has invalid chain_id", chain.ChainName))
		}
		if _, dup := chains[chain.ChainID]; dup {
			return clierr.New(clierr.CodeUsage, fmt.Sprintf("duplicate chain_id %d", chain.ChainID))
		}
		chains[chain.ChainID] = struct{}{}
		if err := validateRPCURL(chain.RPCURL); err != nil {
			return clierr.New(clierr.CodeUsage, fmt.Sprintf("chain %d: %v", chain.ChainID, err))
		}
		for _, v := range chain.PlasmaVaults {
			if strings.TrimSpace(v.Name) == "" {
				return clierr.New(clierr.CodeUsage, fmt.Sprintf("chain %d: plasma vault without name", chain.ChainID))
			}
			if _, dup := names[v.Name]; dup {
				return clierr.New(clierr.CodeUsage, fmt.Sprintf("duplicate plasma vault name %q", v.Name))
			}
			names[v.Name] = struct{}{}
			if !common.IsHexAddress(v.PlasmaVaultAddress) {
				return clierr.New(clierr.CodeUsage, fmt.Sprintf("vault %q: invalid plasma_vault_address %q", v.Name, v.PlasmaVaultAddress))
			}
		}
	}
	if c.DefaultPlasmaVaultName != "" {
		if _, ok := names[c.DefaultPlasmaVaultName]; !ok {
			return clierr.New(clierr.CodeUsage, fmt.Sprintf("default_plasma_vault_name %q does not match any vault", c.DefaultPlasmaVaultName))
		}
	}
	return nil
}

func validateRPCURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid rpc_url %q", raw)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
		return nil
	default:
		return fmt.Errorf("rpc_url %q must use http(s) or ws(s)", raw)
	}
}

// Resolve finds a vault by name, or the default vault when name is empty.
func (c GeneralConfig) Resolve(name string) (ResolvedVault, error) {
	target := strings.TrimSpace(name)
	if target == "" {
		target = c.DefaultPlasmaVaultName
	}
	if target == "" {
		if len(c.ChainConfigs) == 1 && len(c.ChainConfigs[0].PlasmaVaults) == 1 {
			chain := c.ChainConfigs[0]
			return ResolvedVault{Chain: chain, Vault: chain.PlasmaVaults[0]}, nil
		}
		return ResolvedVault{}, clierr.New(clierr.CodeUsage, "no vault selected: pass --vault or set default_plasma_vault_name")
	}
	for _, chain := range c.ChainConfigs {
		for _, v := range chain.PlasmaVaults {
			if v.Name == target {
				return ResolvedVault{Chain: chain, Vault: v}, nil
			}
		}
	}
	return ResolvedVault{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("plasma vault %q not found in configuration", target))
}

// UpsertVault adds or replaces a vault under the chain with chainID, creating the
// chain entry when needed. The first vault added becomes the default.
func (c *GeneralConfig) UpsertVault(chain ChainConfig, vault PlasmaVaultConfig) {
	idx := -1
	for i := range c.ChainConfigs {
		if c.ChainConfigs[i].ChainID == chain.ChainID {
			idx = i
			break
		}
	}
	if idx < 0 {
		chain.PlasmaVaults = nil
		c.ChainConfigs = append(c.ChainConfigs, chain)
		idx = len(c.ChainConfigs) - 1
	} else {
		existing := &c.ChainConfigs[idx]
		if chain.RPCURL != "" {
			existing.RPCURL = chain.RPCURL
		}
		if chain.GasLimit != 0 {
			existing.GasLimit = chain.GasLimit
		}
		if chain.MaxFeeGwei != "" {
			existing.MaxFeeGwei = chain.MaxFeeGwei
		}
		if chain.MaxPriorityFeeGwei != "" {
			existing.MaxPriorityFeeGwei = chain.MaxPriorityFeeGwei
		}
	}
	vaults := c.ChainConfigs[idx].PlasmaVaults
	replaced := false
	for i := range vaults {
		if vaults[i].Name == vault.Name {
			vaults[i] = vault
			replaced = true
		}
	}
	if !replaced {
		vaults = append(vaults, vault)
	}
	c.ChainConfigs[idx].PlasmaVaults = vaults
	if c.DefaultPlasmaVaultName == "" {
		c.DefaultPlasmaVaultName = vault.Name
	}
}

// EncryptPrivateKeys encrypts every plain private key in place and returns how
// many were encrypted. Keys that are already encrypted are left untouched.
func (c *GeneralConfig) EncryptPrivateKeys(password string) (int, error) {
	if password == "" {
		return 0, clierr.New(clierr.CodeUsage, "encryption password is required")
	}
	count := 0
	for i := range c.ChainConfigs {
		for j := range c.ChainConfigs[i].PlasmaVaults {
			v := &c.ChainConfigs[i].PlasmaVaults[j]
			if v.PrivateKey == "" || v.IsPrivateKeyEncrypted() {
				continue
			}
			enc, err := keyenc.Encrypt(v.PrivateKey, password)
			if err != nil {
				return count, clierr.Wrap(clierr.CodeInternal, "encrypt private key", err)
			}
			v.PrivateKey = enc
			count++
		}
	}
	return count, nil
}
