package vault

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	clierr "github.com/ipor-labs/fusion/internal/errors"
)

// Role is an AccessManager role id.
type Role uint64

const (
	RoleAdmin                        Role = 0
	RoleOwner                        Role = 1
	RoleGuardian                     Role = 2
	RoleTechPlasmaVault              Role = 3
	RoleIporDAO                      Role = 4
	RoleTechContextManager           Role = 5
	RoleTechWithdrawManager          Role = 6
	RoleAtomist                      Role = 100
	RoleAlpha                        Role = 200
	RoleFuseManager                  Role = 300
	RoleTechPerformanceFeeManager    Role = 400
	RoleTechManagementFeeManager     Role = 500
	RoleClaimRewards                 Role = 600
	RoleTechRewardsClaimManager      Role = 601
	RoleTransferRewards              Role = 700
	RoleWhitelist                    Role = 800
	RoleConfigInstantWithdrawalFuses Role = 900
	RoleUpdateMarketsBalances        Role = 1000
	RoleUpdateRewardsBalance         Role = 1100
	RolePriceOracleMiddlewareManager Role = 1200
	RolePublic                       Role = math.MaxUint64
)

var roleNames = map[Role]string{
	RoleAdmin:                        "ADMIN_ROLE",
	RoleOwner:                        "OWNER_ROLE",
	RoleGuardian:                     "GUARDIAN_ROLE",
	RoleTechPlasmaVault:              "TECH_PLASMA_VAULT_ROLE",
	RoleIporDAO:                      "IPOR_DAO_ROLE",
	RoleTechContextManager:           "TECH_CONTEXT_MANAGER_ROLE",
	RoleTechWithdrawManager:          "TECH_WITHDRAW_MANAGER_ROLE",
	RoleAtomist:                      "ATOMIST_ROLE",
	RoleAlpha:                        "ALPHA_ROLE",
	RoleFuseManager:                  "FUSE_MANAGER_ROLE",
	RoleTechPerformanceFeeManager:    "TECH_PERFORMANCE_FEE_MANAGER_ROLE",
	RoleTechManagementFeeManager:     "TECH_MANAGEMENT_FEE_MANAGER_ROLE",
	RoleClaimRewards:                 "CLAIM_REWARDS_ROLE",
	RoleTechRewardsClaimManager:      "TECH_REWARDS_CLAIM_MANAGER_ROLE",
	RoleTransferRewards:              "TRANSFER_REWARDS_ROLE",
	RoleWhitelist:                    "WHITELIST_ROLE",
	RoleConfigInstantWithdrawalFuses: "CONFIG_INSTANT_WITHDRAWAL_FUSES_ROLE",
	RoleUpdateMarketsBalances:        "UPDATE_MARKETS_BALANCES_ROLE",
	RoleUpdateRewardsBalance:         "UPDATE_REWARDS_BALANCE_ROLE",
	RolePriceOracleMiddlewareManager: "PRICE_ORACLE_MIDDLEWARE_MANAGER_ROLE",
	RolePublic:                       "PUBLIC_ROLE",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return strconv.FormatUint(uint64(r), 10)
}

// ParseRole accepts "alpha", "ALPHA_ROLE", "alpha-role" or a numeric id.
func ParseRole(input string) (Role, error) {
	clean := strings.TrimSpace(input)
	if clean == "" {
		return 0, clierr.New(clierr.CodeUsage, "role is required")
	}
	if n, err := strconv.ParseUint(clean, 10, 64); err == nil {
		return Role(n), nil
	}
	norm := strings.ToUpper(strings.ReplaceAll(clean, "-", "_"))
	if !strings.HasSuffix(norm, "_ROLE") {
		norm += "_ROLE"
	}
	for role, name := range roleNames {
		if name == norm {
			return role, nil
		}
	}
	return 0, clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown role %q", input))
}

// KnownRoles lists named roles in id order.
func KnownRoles() []Role {
	out := make([]Role, 0, len(roleNames))
	for role := range roleNames {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
