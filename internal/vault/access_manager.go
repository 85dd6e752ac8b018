package vault

import (
	"context"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	clierr "github.com/ipor-labs/fusion/internal/errors"
	"github.com/ipor-labs/fusion/internal/registry"
)

var (
	roleGrantedTopic = crypto.Keccak256Hash([]byte("RoleGranted(uint64,address,uint32,uint48,bool)"))
	roleRevokedTopic = crypto.Keccak256Hash([]byte("RoleRevoked(uint64,address)"))
)

// AccessManager controls which accounts may call restricted vault functions.
type AccessManager struct {
	contract
	fromBlock *big.Int
}

func NewAccessManager(exec Executor, address common.Address) *AccessManager {
	return &AccessManager{contract: newContract("AccessManager", address, registry.MustABI(registry.AccessManagerABI), exec)}
}

// WithFromBlock bounds role log scans. Nil scans from genesis.
func (m *AccessManager) WithFromBlock(block *big.Int) *AccessManager {
	cpy := *m
	cpy.fromBlock = block
	return &cpy
}

func (m *AccessManager) GrantRole(ctx context.Context, role Role, account common.Address, executionDelay uint32) (*types.Receipt, error) {
	return m.send(ctx, "grantRole", uint64(role), account, executionDelay)
}

func (m *AccessManager) RevokeRole(ctx context.Context, role Role, account common.Address) (*types.Receipt, error) {
	return m.send(ctx, "revokeRole", uint64(role), account)
}

// GrantRoleData and RevokeRoleData return call data for stored actions.
func (m *AccessManager) GrantRoleData(role Role, account common.Address, executionDelay uint32) ([]byte, error) {
	return m.pack("grantRole", uint64(role), account, executionDelay)
}

func (m *AccessManager) RevokeRoleData(role Role, account common.Address) ([]byte, error) {
	return m.pack("revokeRole", uint64(role), account)
}

// HasRole reports membership and the member's execution delay.
func (m *AccessManager) HasRole(ctx context.Context, role Role, account common.Address) (bool, uint32, error) {
	values, err := m.call(ctx, "hasRole", uint64(role), account)
	if err != nil {
		return false, 0, err
	}
	if len(values) != 2 {
		return false, 0, clierr.New(clierr.CodeUnavailable, "AccessManager.hasRole: unexpected result")
	}
	member, _ := values[0].(bool)
	delay, _ := values[1].(uint32)
	return member, delay, nil
}

// RoleAccount is one current member of a role.
type RoleAccount struct {
	Role    Role           `json:"role"`
	Account common.Address `json:"account"`
}

// AccountsWithRoles replays RoleGranted and RoleRevoked logs and returns the
// current members of roles, in grant order per role.
func (m *AccessManager) AccountsWithRoles(ctx context.Context, roles []Role) ([]RoleAccount, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	roleTopics := make([]common.Hash, 0, len(roles))
	wanted := make(map[Role]struct{}, len(roles))
	for _, role := range roles {
		roleTopics = append(roleTopics, common.BigToHash(new(big.Int).SetUint64(uint64(role))))
		wanted[role] = struct{}{}
	}
	logs, err := m.exec.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: m.fromBlock,
		Addresses: []common.Address{m.address},
		Topics:    [][]common.Hash{{roleGrantedTopic, roleRevokedTopic}, roleTopics},
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	type member struct {
		role    Role
		account common.Address
	}
	order := make([]member, 0)
	active := map[member]bool{}
	for _, l := range logs {
		if len(l.Topics) < 3 {
			continue
		}
		role := Role(new(big.Int).SetBytes(l.Topics[1].Bytes()).Uint64())
		if _, ok := wanted[role]; !ok {
			continue
		}
		key := member{role: role, account: common.BytesToAddress(l.Topics[2].Bytes())}
		switch l.Topics[0] {
		case roleGrantedTopic:
			if !active[key] {
				order = append(order, key)
			}
			active[key] = true
		case roleRevokedTopic:
			active[key] = false
		}
	}
	out := make([]RoleAccount, 0, len(order))
	seen := map[member]bool{}
	for _, key := range order {
		if !active[key] || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, RoleAccount{Role: key.role, Account: key.account})
	}
	return out, nil
}

func (m *AccessManager) accountsWithRole(ctx context.Context, role Role) ([]common.Address, error) {
	members, err := m.AccountsWithRoles(ctx, []Role{role})
	if err != nil {
		return nil, err
	}
	out := make([]common.Address, 0, len(members))
	for _, member := range members {
		out = append(out, member.Account)
	}
	return out, nil
}

// Owner returns the first current OWNER_ROLE holder.
func (m *AccessManager) Owner(ctx context.Context) (common.Address, error) {
	owners, err := m.accountsWithRole(ctx, RoleOwner)
	if err != nil {
		return common.Address{}, err
	}
	if len(owners) == 0 {
		return common.Address{}, clierr.New(clierr.CodeUnavailable, "access manager has no owner")
	}
	return owners[0], nil
}

func (m *AccessManager) Atomists(ctx context.Context) ([]common.Address, error) {
	return m.accountsWithRole(ctx, RoleAtomist)
}

func (m *AccessManager) Alphas(ctx context.Context) ([]common.Address, error) {
	return m.accountsWithRole(ctx, RoleAlpha)
}
