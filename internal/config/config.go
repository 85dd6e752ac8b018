package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultVaultConfigFile = "ipor-fusion-config.yaml"

type GlobalFlags struct {
	ConfigPath      string
	EnvFile         string
	JSON            bool
	Plain           bool
	Select          string
	ResultsOnly     bool
	EnableCommands  string
	ReadOnly        bool
	Timeout         string
	Retries         int
	NoCache         bool
	VaultConfigPath string
	VaultName       string
	RPCURL          string
	Password        string
	KeySource       string
	LogLevel        string
}

type Settings struct {
	OutputMode      string
	SelectFields    []string
	ResultsOnly     bool
	EnableCommands  []string
	ReadOnly        bool
	Timeout         time.Duration
	Retries         int
	CacheEnabled    bool
	CachePath       string
	CacheLockPath   string
	NameCacheTTL    time.Duration
	ActionStorePath string
	ActionLockPath  string
	VaultConfigPath string
	VaultName       string
	RPCURL          string
	Password        string
	KeySource       string
	ScanAPIKey      string
	ScanAPIURL      string
	MorphoAPIURL    string
	LogLevel        string
	GasMultiplier   float64
}

type fileConfig struct {
	Output   string `yaml:"output"`
	ReadOnly *bool  `yaml:"read_only"`
	Timeout  string `yaml:"timeout"`
	Retries  *int   `yaml:"retries"`
	LogLevel string `yaml:"log_level"`
	Cache    struct {
		Enabled  *bool  `yaml:"enabled"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
		NameTTL  string `yaml:"name_ttl"`
	} `yaml:"cache"`
	Execution struct {
		ActionsPath     string   `yaml:"actions_path"`
		ActionsLockPath string   `yaml:"actions_lock_path"`
		GasMultiplier   *float64 `yaml:"gas_multiplier"`
	} `yaml:"execution"`
	Vaults struct {
		ConfigPath string `yaml:"config_path"`
		Default    string `yaml:"default"`
		RPCURL     string `yaml:"rpc_url"`
	} `yaml:"vaults"`
	Explorer struct {
		APIKey    string `yaml:"api_key"`
		APIKeyEnv string `yaml:"api_key_env"`
		URL       string `yaml:"url"`
	} `yaml:"explorer"`
	Morpho struct {
		RewardsURL string `yaml:"rewards_url"`
	} `yaml:"morpho"`
}

func Load(flags GlobalFlags) (Settings, error) {
	if err := loadDotEnv(flags.EnvFile); err != nil {
		return Settings{}, err
	}

	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 30 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.GasMultiplier == 0 {
		settings.GasMultiplier = 1.2
	}
	if settings.GasMultiplier < 1 {
		return Settings{}, fmt.Errorf("gas multiplier must be >= 1, got %g", settings.GasMultiplier)
	}

	return settings, nil
}

// loadDotEnv reads KEY=VALUE pairs from path into the process env. Variables
// already set in the environment are left alone. A missing file is not an error.
func loadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func defaultSettings() (Settings, error) {
	cachePath, lockPath, err := defaultCachePaths()
	if err != nil {
		return Settings{}, err
	}
	cacheDir := filepath.Dir(cachePath)
	return Settings{
		OutputMode:      "json",
		Timeout:         30 * time.Second,
		Retries:         2,
		CacheEnabled:    true,
		CachePath:       cachePath,
		CacheLockPath:   lockPath,
		NameCacheTTL:    30 * 24 * time.Hour,
		ActionStorePath: filepath.Join(cacheDir, "actions.db"),
		ActionLockPath:  filepath.Join(cacheDir, "actions.lock"),
		VaultConfigPath: DefaultVaultConfigFile,
		LogLevel:        "info",
		GasMultiplier:   1.2,
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "fusion", "config.yaml"), nil
}

func defaultCachePaths() (string, string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, "fusion")
	return filepath.Join(dir, "cache.db"), filepath.Join(dir, "cache.lock"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.ReadOnly != nil {
		settings.ReadOnly = *cfg.ReadOnly
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		settings.Timeout = d
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.LogLevel != "" {
		settings.LogLevel = strings.ToLower(cfg.LogLevel)
	}
	if cfg.Cache.Enabled != nil {
		settings.CacheEnabled = *cfg.Cache.Enabled
	}
	if cfg.Cache.Path != "" {
		settings.CachePath = cfg.Cache.Path
	}
	if cfg.Cache.LockPath != "" {
		settings.CacheLockPath = cfg.Cache.LockPath
	}
	if cfg.Cache.NameTTL != "" {
		d, err := time.ParseDuration(cfg.Cache.NameTTL)
		if err != nil {
			return fmt.Errorf("config cache.name_ttl: %w", err)
		}
		settings.NameCacheTTL = d
	}
	if cfg.Execution.ActionsPath != "" {
		settings.ActionStorePath = cfg.Execution.ActionsPath
	}
	if cfg.Execution.ActionsLockPath != "" {
		settings.ActionLockPath = cfg.Execution.ActionsLockPath
	}
	if cfg.Execution.GasMultiplier != nil {
		settings.GasMultiplier = *cfg.Execution.GasMultiplier
	}
	if cfg.Vaults.ConfigPath != "" {
		settings.VaultConfigPath = cfg.Vaults.ConfigPath
	}
	if cfg.Vaults.Default != "" {
		settings.VaultName = cfg.Vaults.Default
	}
	if cfg.Vaults.RPCURL != "" {
		settings.RPCURL = cfg.Vaults.RPCURL
	}
	if cfg.Explorer.APIKey != "" {
		settings.ScanAPIKey = cfg.Explorer.APIKey
	}
	if cfg.Explorer.APIKeyEnv != "" {
		settings.ScanAPIKey = os.Getenv(cfg.Explorer.APIKeyEnv)
	}
	if cfg.Explorer.URL != "" {
		settings.ScanAPIURL = cfg.Explorer.URL
	}
	if cfg.Morpho.RewardsURL != "" {
		settings.MorphoAPIURL = cfg.Morpho.RewardsURL
	}

	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("FUSION_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("FUSION_READ_ONLY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.ReadOnly = b
		}
	}
	if v := os.Getenv("FUSION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("FUSION_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("FUSION_NO_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.CacheEnabled = !b
		}
	}
	if v := os.Getenv("FUSION_CACHE_PATH"); v != "" {
		settings.CachePath = v
	}
	if v := os.Getenv("FUSION_CACHE_LOCK_PATH"); v != "" {
		settings.CacheLockPath = v
	}
	if v := os.Getenv("FUSION_ACTIONS_PATH"); v != "" {
		settings.ActionStorePath = v
	}
	if v := os.Getenv("FUSION_ACTIONS_LOCK_PATH"); v != "" {
		settings.ActionLockPath = v
	}
	if v := os.Getenv("FUSION_VAULT_CONFIG"); v != "" {
		settings.VaultConfigPath = v
	}
	if v := os.Getenv("FUSION_VAULT"); v != "" {
		settings.VaultName = v
	}
	if v := os.Getenv("FUSION_RPC_URL"); v != "" {
		settings.RPCURL = v
	}
	if v := os.Getenv("FUSION_PASSWORD"); v != "" {
		settings.Password = v
	}
	if v := os.Getenv("FUSION_KEY_SOURCE"); v != "" {
		settings.KeySource = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("FUSION_SCAN_API_KEY"); v != "" {
		settings.ScanAPIKey = v
	}
	if v := os.Getenv("FUSION_SCAN_API_URL"); v != "" {
		settings.ScanAPIURL = v
	}
	if v := os.Getenv("FUSION_MORPHO_API_URL"); v != "" {
		settings.MorphoAPIURL = v
	}
	if v := os.Getenv("FUSION_LOG_LEVEL"); v != "" {
		settings.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("FUSION_GAS_MULTIPLIER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			settings.GasMultiplier = f
		}
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if fields := splitList(flags.Select); len(fields) > 0 {
		settings.SelectFields = fields
	}
	settings.ResultsOnly = flags.ResultsOnly

	if allowed := splitList(flags.EnableCommands); len(allowed) > 0 {
		settings.EnableCommands = allowed
	}
	if flags.ReadOnly {
		settings.ReadOnly = true
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if flags.NoCache {
		settings.CacheEnabled = false
	}
	if strings.TrimSpace(flags.VaultConfigPath) != "" {
		settings.VaultConfigPath = strings.TrimSpace(flags.VaultConfigPath)
	}
	if strings.TrimSpace(flags.VaultName) != "" {
		settings.VaultName = strings.TrimSpace(flags.VaultName)
	}
	if strings.TrimSpace(flags.RPCURL) != "" {
		settings.RPCURL = strings.TrimSpace(flags.RPCURL)
	}
	if flags.Password != "" {
		settings.Password = flags.Password
	}
	if flags.KeySource != "" {
		settings.KeySource = strings.ToLower(strings.TrimSpace(flags.KeySource))
	}
	if flags.LogLevel != "" {
		settings.LogLevel = strings.ToLower(flags.LogLevel)
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}
	switch settings.LogLevel {
	case "debug", "info", "warn", "error", "disabled":
	default:
		return fmt.Errorf("log level must be one of debug, info, warn, error, disabled")
	}

	return nil
}

func splitList(v string) []string {
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
