package model

import "time"

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string      `json:"request_id"`
	Timestamp time.Time   `json:"timestamp"`
	Command   string      `json:"command"`
	ChainID   string      `json:"chain_id,omitempty"`
	Vault     string      `json:"vault,omitempty"`
	Cache     CacheStatus `json:"cache"`
}

type CacheStatus struct {
	Status string `json:"status"`
	AgeMS  int64  `json:"age_ms"`
	Stale  bool   `json:"stale"`
}

type AmountInfo struct {
	AmountBaseUnits string `json:"amount_base_units"`
	AmountDecimal   string `json:"amount_decimal"`
	Decimals        int    `json:"decimals"`
}

// VaultInfo is the read-only snapshot printed by `vault info`.
type VaultInfo struct {
	ChainID               string     `json:"chain_id"`
	Vault                 string     `json:"vault"`
	Asset                 string     `json:"asset"`
	AssetSymbol           string     `json:"asset_symbol,omitempty"`
	Decimals              int        `json:"decimals"`
	TotalAssets           AmountInfo `json:"total_assets"`
	TotalSupply           string     `json:"total_supply"`
	TotalSupplyCap        string     `json:"total_supply_cap"`
	AccessManager         string     `json:"access_manager"`
	WithdrawManager       string     `json:"withdraw_manager,omitempty"`
	RewardsClaimManager   string     `json:"rewards_claim_manager,omitempty"`
	PriceOracleMiddleware string     `json:"price_oracle_middleware,omitempty"`
	Alpha                 string     `json:"alpha"`
	FuseCount             int        `json:"fuse_count"`
	FetchedAt             string     `json:"fetched_at"`
}

type FuseInfo struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
	Source  string `json:"source,omitempty"`
}

type TokenBalance struct {
	Symbol  string     `json:"symbol"`
	Token   string     `json:"token"`
	Holder  string     `json:"holder"`
	Balance AmountInfo `json:"balance"`
}

type RoleAccounts struct {
	Role     string   `json:"role"`
	RoleID   uint64   `json:"role_id"`
	Accounts []string `json:"accounts"`
}

type RoleCheck struct {
	Role           string `json:"role"`
	RoleID         uint64 `json:"role_id"`
	Account        string `json:"account"`
	IsMember       bool   `json:"is_member"`
	ExecutionDelay uint32 `json:"execution_delay"`
}

type WithdrawalRequestInfo struct {
	Account          string `json:"account,omitempty"`
	Amount           string `json:"amount"`
	EndWithdrawAt    int64  `json:"end_withdraw_window,omitempty"`
	CanWithdraw      bool   `json:"can_withdraw"`
	WithdrawWindowS  int64  `json:"withdraw_window_seconds,omitempty"`
	ReleaseTimestamp int64  `json:"release_timestamp,omitempty"`
}

// PendingWithdrawals sums the open requests a release would cover.
type PendingWithdrawals struct {
	Amount           string   `json:"amount"`
	ReleaseTimestamp uint64   `json:"release_timestamp"`
	Accounts         []string `json:"accounts"`
}

type AssetPrice struct {
	Asset    string  `json:"asset"`
	Price    string  `json:"price"`
	Decimals int     `json:"decimals"`
	Readable float64 `json:"readable"`
	Source   string  `json:"source,omitempty"`
}

type RewardsDistribution struct {
	ChainID      int64    `json:"chain_id"`
	Distributor  string   `json:"distributor"`
	RewardsToken string   `json:"rewards_token"`
	Claimable    string   `json:"claimable"`
	Proof        []string `json:"proof"`
}

type ContractName struct {
	ChainID string `json:"chain_id"`
	Address string `json:"address"`
	Name    string `json:"name"`
}

type ConfigView struct {
	Path                   string            `json:"path"`
	DefaultPlasmaVaultName string            `json:"default_plasma_vault_name"`
	Chains                 []ConfigChainView `json:"chains"`
	EncryptionScheme       string            `json:"encryption_scheme,omitempty"`
}

// InitResult reports the vault entry `fusion init` wrote.
type InitResult struct {
	Path      string `json:"path"`
	Name      string `json:"name"`
	ChainID   int64  `json:"chain_id"`
	ChainName string `json:"chain_name"`
	Vault     string `json:"plasma_vault_address"`
	Signer    string `json:"signer"`
	Encrypted bool   `json:"encrypted"`
}

type ConfigCheck struct {
	Path   string `json:"path"`
	Valid  bool   `json:"valid"`
	Chains int    `json:"chains"`
	Vaults int    `json:"vaults"`
}

type EncryptResult struct {
	Path      string `json:"path"`
	Encrypted int    `json:"encrypted"`
}

type ConfigChainView struct {
	ChainID        int64             `json:"chain_id"`
	ChainName      string            `json:"chain_name"`
	ChainShortName string            `json:"chain_short_name"`
	RPCURL         string            `json:"rpc_url"`
	GasLimit       uint64            `json:"gas_limit,omitempty"`
	MaxFeeGwei     string            `json:"max_fee_gwei,omitempty"`
	MaxPriorityFee string            `json:"max_priority_fee_gwei,omitempty"`
	PlasmaVaults   []ConfigVaultView `json:"plasma_vaults"`
}

type ConfigVaultView struct {
	Name               string `json:"name"`
	PlasmaVaultAddress string `json:"plasma_vault_address"`
	PrivateKey         string `json:"private_key"`
	Encrypted          bool   `json:"encrypted"`
}
