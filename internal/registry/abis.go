package registry

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ABI fragments for the Fusion contracts and the protocol views the SDK reads.
const (
	ERC20ABI = `[
		{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
		{"name":"transfer","type":"function","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
		{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
		{"name":"symbol","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
		{"name":"totalSupply","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
	]`

	PlasmaVaultABI = `[
		{"name":"execute","type":"function","stateMutability":"nonpayable","inputs":[{"name":"calls","type":"tuple[]","components":[{"name":"fuse","type":"address"},{"name":"data","type":"bytes"}]}],"outputs":[]},
		{"name":"deposit","type":"function","stateMutability":"nonpayable","inputs":[{"name":"assets","type":"uint256"},{"name":"receiver","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"mint","type":"function","stateMutability":"nonpayable","inputs":[{"name":"shares","type":"uint256"},{"name":"receiver","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"withdraw","type":"function","stateMutability":"nonpayable","inputs":[{"name":"assets","type":"uint256"},{"name":"receiver","type":"address"},{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"redeem","type":"function","stateMutability":"nonpayable","inputs":[{"name":"shares","type":"uint256"},{"name":"receiver","type":"address"},{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"maxWithdraw","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"convertToAssets","type":"function","stateMutability":"view","inputs":[{"name":"shares","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"totalAssets","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"totalAssetsInMarket","type":"function","stateMutability":"view","inputs":[{"name":"marketId","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"totalSupply","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
		{"name":"asset","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
		{"name":"getTotalSupplyCap","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"setTotalSupplyCap","type":"function","stateMutability":"nonpayable","inputs":[{"name":"cap","type":"uint256"}],"outputs":[]},
		{"name":"getAccessManagerAddress","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
		{"name":"getRewardsClaimManagerAddress","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
		{"name":"getPriceOracleMiddleware","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
		{"name":"getWithdrawManager","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
		{"name":"getFuses","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address[]"}]},
		{"name":"getMarketSubstrates","type":"function","stateMutability":"view","inputs":[{"name":"marketId","type":"uint256"}],"outputs":[{"name":"","type":"bytes32[]"}]}
	]`

	AccessManagerABI = `[
		{"name":"grantRole","type":"function","stateMutability":"nonpayable","inputs":[{"name":"roleId","type":"uint64"},{"name":"account","type":"address"},{"name":"executionDelay","type":"uint32"}],"outputs":[]},
		{"name":"revokeRole","type":"function","stateMutability":"nonpayable","inputs":[{"name":"roleId","type":"uint64"},{"name":"account","type":"address"}],"outputs":[]},
		{"name":"hasRole","type":"function","stateMutability":"view","inputs":[{"name":"roleId","type":"uint64"},{"name":"account","type":"address"}],"outputs":[{"name":"isMember","type":"bool"},{"name":"executionDelay","type":"uint32"}]},
		{"name":"RoleGranted","type":"event","anonymous":false,"inputs":[{"name":"roleId","type":"uint64","indexed":true},{"name":"account","type":"address","indexed":true},{"name":"delay","type":"uint32","indexed":false},{"name":"since","type":"uint48","indexed":false},{"name":"newMember","type":"bool","indexed":false}]},
		{"name":"RoleRevoked","type":"event","anonymous":false,"inputs":[{"name":"roleId","type":"uint64","indexed":true},{"name":"account","type":"address","indexed":true}]}
	]`

	WithdrawManagerABI = `[
		{"name":"request","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
		{"name":"releaseFunds","type":"function","stateMutability":"nonpayable","inputs":[{"name":"timestamp","type":"uint256"}],"outputs":[]},
		{"name":"requestInfo","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"amount","type":"uint256"},{"name":"endWithdrawWindowTimestamp","type":"uint256"},{"name":"canWithdraw","type":"bool"},{"name":"withdrawWindowInSeconds","type":"uint256"}]},
		{"name":"getWithdrawWindow","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"getLastReleaseFundsTimestamp","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"WithdrawRequestUpdated","type":"event","anonymous":false,"inputs":[{"name":"account","type":"address","indexed":false},{"name":"amount","type":"uint256","indexed":false},{"name":"endWithdrawWindow","type":"uint32","indexed":false}]}
	]`

	RewardsClaimManagerABI = `[
		{"name":"claimRewards","type":"function","stateMutability":"nonpayable","inputs":[{"name":"calls","type":"tuple[]","components":[{"name":"fuse","type":"address"},{"name":"data","type":"bytes"}]}],"outputs":[]},
		{"name":"transferVestedTokensToVault","type":"function","stateMutability":"nonpayable","inputs":[],"outputs":[]},
		{"name":"updateBalance","type":"function","stateMutability":"nonpayable","inputs":[],"outputs":[]},
		{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"getRewardsFuses","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address[]"}]}
	]`

	PriceOracleMiddlewareABI = `[
		{"name":"getAssetPrice","type":"function","stateMutability":"view","inputs":[{"name":"asset","type":"address"}],"outputs":[{"name":"assetPrice","type":"uint256"},{"name":"decimals","type":"uint256"}]},
		{"name":"getSourceOfAssetPrice","type":"function","stateMutability":"view","inputs":[{"name":"asset","type":"address"}],"outputs":[{"name":"","type":"address"}]},
		{"name":"CHAINLINK_FEED_REGISTRY","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}
	]`

	MarketIDFuseABI = `[
		{"name":"MARKET_ID","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
	]`

	MorphoBlueABI = `[
		{"name":"position","type":"function","stateMutability":"view","inputs":[{"name":"id","type":"bytes32"},{"name":"user","type":"address"}],"outputs":[{"name":"supplyShares","type":"uint256"},{"name":"borrowShares","type":"uint128"},{"name":"collateral","type":"uint128"}]},
		{"name":"market","type":"function","stateMutability":"view","inputs":[{"name":"id","type":"bytes32"}],"outputs":[{"name":"totalSupplyAssets","type":"uint128"},{"name":"totalSupplyShares","type":"uint128"},{"name":"totalBorrowAssets","type":"uint128"},{"name":"totalBorrowShares","type":"uint128"},{"name":"lastUpdate","type":"uint128"},{"name":"fee","type":"uint128"}]}
	]`

	// Custom errors surfaced by Fusion contracts on revert.
	FusionErrorsABI = `[
		{"name":"AccessManagedUnauthorized","type":"error","inputs":[{"name":"caller","type":"address"}]},
		{"name":"AccessManagedRequiredDelay","type":"error","inputs":[{"name":"caller","type":"address"},{"name":"delay","type":"uint32"}]},
		{"name":"AccessManagerUnauthorizedAccount","type":"error","inputs":[{"name":"msgsender","type":"address"},{"name":"roleId","type":"uint64"}]},
		{"name":"UnsupportedFuse","type":"error","inputs":[]},
		{"name":"WithdrawManagerInvalidTimestamp","type":"error","inputs":[{"name":"timestamp","type":"uint256"}]},
		{"name":"ERC4626ExceededMaxDeposit","type":"error","inputs":[{"name":"receiver","type":"address"},{"name":"assets","type":"uint256"},{"name":"max","type":"uint256"}]},
		{"name":"ERC4626ExceededMaxWithdraw","type":"error","inputs":[{"name":"owner","type":"address"},{"name":"assets","type":"uint256"},{"name":"max","type":"uint256"}]},
		{"name":"ERC20InsufficientBalance","type":"error","inputs":[{"name":"sender","type":"address"},{"name":"balance","type":"uint256"},{"name":"needed","type":"uint256"}]},
		{"name":"ERC20InsufficientAllowance","type":"error","inputs":[{"name":"spender","type":"address"},{"name":"allowance","type":"uint256"},{"name":"needed","type":"uint256"}]}
	]`
)

var (
	parsedMu  sync.Mutex
	parsedABI = map[string]abi.ABI{}
)

// MustABI parses an ABI constant once and panics on malformed JSON.
func MustABI(raw string) abi.ABI {
	parsedMu.Lock()
	defer parsedMu.Unlock()
	if parsed, ok := parsedABI[raw]; ok {
		return parsed
	}
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	parsedABI[raw] = parsed
	return parsed
}
