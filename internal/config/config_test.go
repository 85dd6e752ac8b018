package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	clierr "github.com/ipor-labs/fusion/internal/errors"
)

func TestLoadPrecedenceFlagsOverEnvOverFile(t *testing.T) {
	tmp := t.TempDir()
	configPath := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(configPath, []byte("output: plain\nretries: 1\nvaults:\n  default: from-file\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("FUSION_OUTPUT", "json")
	t.Setenv("FUSION_VAULT", "from-env")
	flags := GlobalFlags{ConfigPath: configPath, Plain: true, Retries: 5}
	settings, err := Load(flags)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.OutputMode != "plain" {
		t.Fatalf("expected flag to win, got output=%s", settings.OutputMode)
	}
	if settings.Retries != 5 {
		t.Fatalf("expected retries from flags, got %d", settings.Retries)
	}
	if settings.VaultName != "from-env" {
		t.Fatalf("expected env vault to beat file, got %q", settings.VaultName)
	}
	if settings.VaultConfigPath != DefaultVaultConfigFile {
		t.Fatalf("unexpected default vault config path %q", settings.VaultConfigPath)
	}
}

func TestLoadMutuallyExclusiveOutputFlags(t *testing.T) {
	_, err := Load(GlobalFlags{JSON: true, Plain: true, Retries: -1})
	if err == nil {
		t.Fatal("expected error with --json and --plain")
	}
}

func TestLoadRejectsUnknownLogLevel(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	if _, err := Load(GlobalFlags{LogLevel: "chatty", Retries: -1}); err == nil {
		t.Fatal("expected invalid log level to fail")
	}
}

func TestLoadGasMultiplierBounds(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("FUSION_GAS_MULTIPLIER", "1")
	settings, err := Load(GlobalFlags{Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.GasMultiplier != 1 {
		t.Fatalf("multiplier 1 was changed to %g", settings.GasMultiplier)
	}

	t.Setenv("FUSION_GAS_MULTIPLIER", "0.5")
	if _, err := Load(GlobalFlags{Retries: -1}); err == nil || !strings.Contains(err.Error(), ">= 1") {
		t.Fatalf("expected multiplier below 1 to fail, got %v", err)
	}
}

func TestLoadDotEnvDoesNotOverrideEnv(t *testing.T) {
	tmp := t.TempDir()
	envPath := filepath.Join(tmp, ".env")
	if err := os.WriteFile(envPath, []byte("FUSION_SCAN_API_KEY=from-dotenv\nFUSION_RPC_URL=http://dotenv:8545\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("XDG_CONFIG_HOME", tmp)
	t.Setenv("FUSION_RPC_URL", "http://shell:8545")
	t.Setenv("FUSION_SCAN_API_KEY", "")
	os.Unsetenv("FUSION_SCAN_API_KEY")

	settings, err := Load(GlobalFlags{EnvFile: envPath, Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.ScanAPIKey != "from-dotenv" {
		t.Fatalf("expected api key from .env, got %q", settings.ScanAPIKey)
	}
	if settings.RPCURL != "http://shell:8545" {
		t.Fatalf("expected shell env to win, got %q", settings.RPCURL)
	}
	os.Unsetenv("FUSION_SCAN_API_KEY")
}

const sampleVaultConfig = `default_plasma_vault_name: main
chain_configs:
  - chain_id: 42161
    chain_name: Arbitrum One
    chain_short_name: arb1
    rpc_url: https://arb1.arbitrum.io/rpc
    plasma_vaults:
      - name: main
        plasma_vault_address: "0x1234567890123456789012345678901234567890"
        private_key: "0xabcdef1234567890abcdef1234567890abcdef1234567890abcdef1234567890"
`

func writeVaultConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultVaultConfigFile)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write vault config: %v", err)
	}
	return path
}

func TestLoadVaultConfigAndResolve(t *testing.T) {
	cfg, err := LoadVaultConfig(writeVaultConfig(t, sampleVaultConfig))
	if err != nil {
		t.Fatalf("LoadVaultConfig failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	resolved, err := cfg.Resolve("")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.Chain.ChainID != 42161 || resolved.Vault.Name != "main" {
		t.Fatalf("unexpected resolution: %+v", resolved)
	}
	if _, err := cfg.Resolve("missing"); !clierr.Is(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error for missing vault, got %v", err)
	}
}

func TestLoadVaultConfigMissingAndEmpty(t *testing.T) {
	if _, err := LoadVaultConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected missing file error")
	}
	if _, err := LoadVaultConfig(writeVaultConfig(t, "\n")); err == nil || !strings.Contains(err.Error(), "empty") {
		t.Fatalf("expected empty file error, got %v", err)
	}
}

func TestValidateRejectsBadEntries(t *testing.T) {
	cfg, err := LoadVaultConfig(writeVaultConfig(t, sampleVaultConfig))
	if err != nil {
		t.Fatalf("LoadVaultConfig failed: %v", err)
	}

	bad := cfg
	bad.DefaultPlasmaVaultName = "other"
	if err := bad.Validate(); err == nil {
		t.Fatal("expected unknown default vault to fail")
	}

	cfg.ChainConfigs[0].RPCURL = "not a url"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected invalid rpc url to fail")
	}
}

func TestEncryptPrivateKeysAndSaveRoundTrip(t *testing.T) {
	path := writeVaultConfig(t, sampleVaultConfig)
	cfg, err := LoadVaultConfig(path)
	if err != nil {
		t.Fatalf("LoadVaultConfig failed: %v", err)
	}
	plain := cfg.ChainConfigs[0].PlasmaVaults[0].PrivateKey
	if got := cfg.ChainConfigs[0].PlasmaVaults[0].MaskedPrivateKey(); got != "**********7890" {
		t.Fatalf("unexpected mask %q", got)
	}

	n, err := cfg.EncryptPrivateKeys("pw")
	if err != nil || n != 1 {
		t.Fatalf("EncryptPrivateKeys n=%d err=%v", n, err)
	}
	if again, _ := cfg.EncryptPrivateKeys("pw"); again != 0 {
		t.Fatalf("expected already-encrypted keys to be skipped, got %d", again)
	}
	if err := SaveVaultConfig(path, cfg); err != nil {
		t.Fatalf("SaveVaultConfig failed: %v", err)
	}

	reloaded, err := LoadVaultConfig(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	v := reloaded.ChainConfigs[0].PlasmaVaults[0]
	if v.MaskedPrivateKey() != "[ENCRYPTED] **********" {
		t.Fatalf("unexpected mask %q", v.MaskedPrivateKey())
	}
	if _, err := v.DecryptedPrivateKey(""); !clierr.Is(err, clierr.CodeAuth) {
		t.Fatalf("expected auth error without password, got %v", err)
	}
	got, err := v.DecryptedPrivateKey("pw")
	if err != nil || got != plain {
		t.Fatalf("decrypt mismatch got=%q err=%v", got, err)
	}
}

func TestUpsertVault(t *testing.T) {
	var cfg GeneralConfig
	chain := ChainConfig{ChainID: 8453, ChainName: "Base", ChainShortName: "base", RPCURL: "https://mainnet.base.org"}
	cfg.UpsertVault(chain, PlasmaVaultConfig{Name: "a", PlasmaVaultAddress: "0x1234567890123456789012345678901234567890"})
	cfg.UpsertVault(chain, PlasmaVaultConfig{Name: "b", PlasmaVaultAddress: "0x1234567890123456789012345678901234567891"})
	cfg.UpsertVault(chain, PlasmaVaultConfig{Name: "a", PlasmaVaultAddress: "0x1234567890123456789012345678901234567892"})
	if len(cfg.ChainConfigs) != 1 || len(cfg.ChainConfigs[0].PlasmaVaults) != 2 {
		t.Fatalf("unexpected config shape: %+v", cfg)
	}
	if cfg.DefaultPlasmaVaultName != "a" {
		t.Fatalf("expected first vault as default, got %q", cfg.DefaultPlasmaVaultName)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}
