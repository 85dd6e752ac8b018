// Package planner turns vault operations into persisted execution actions.
//
// Every write the CLI performs is planned here first, stored, and then run
// step by step by execution.ExecuteAction.
package planner

import (
	"context"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ipor-labs/fusion/internal/errors"
	"github.com/ipor-labs/fusion/internal/execution"
	"github.com/ipor-labs/fusion/internal/fuse"
	"github.com/ipor-labs/fusion/internal/id"
	"github.com/ipor-labs/fusion/internal/registry"
)

// Reader performs eth_call reads. *execution.TransactionExecutor satisfies it.
type Reader interface {
	Read(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// VaultRequest carries what every vault action needs.
type VaultRequest struct {
	Chain    id.Chain
	Vault    common.Address
	Sender   common.Address
	RPCURL   string
	Simulate bool
}

// Call is one planned transaction of a multi-step action.
type Call struct {
	StepID      string
	Type        execution.StepType
	Description string
	Target      common.Address
	Data        []byte
}

func (r VaultRequest) newAction(intent string) (execution.Action, string, error) {
	if r.Vault == (common.Address{}) {
		return execution.Action{}, "", clierr.New(clierr.CodeUsage, "plasma vault address is required")
	}
	if r.Chain.EVMChainID <= 0 {
		return execution.Action{}, "", clierr.New(clierr.CodeUsage, "chain is required")
	}
	rpcURL, err := registry.ResolveRPCURL(r.Chain.EVMChainID, r.RPCURL)
	if err != nil {
		return execution.Action{}, "", clierr.Wrap(clierr.CodeUsage, "resolve rpc url", err)
	}
	action := execution.NewAction(execution.NewActionID(), intent, r.Chain.CAIP2, execution.Constraints{Simulate: r.Simulate})
	action.VaultAddress = r.Vault.Hex()
	if r.Sender != (common.Address{}) {
		action.FromAddress = r.Sender.Hex()
	}
	return action, rpcURL, nil
}

// BuildExecuteAction plans a single PlasmaVault.execute over actions.
func BuildExecuteAction(req VaultRequest, intent, market string, actions []fuse.FuseAction) (execution.Action, error) {
	if len(actions) == 0 {
		return execution.Action{}, clierr.New(clierr.CodeUsage, "at least one fuse action is required")
	}
	action, rpcURL, err := req.newAction(intent)
	if err != nil {
		return execution.Action{}, err
	}
	data, err := fuse.ExecuteCalldata(actions)
	if err != nil {
		return execution.Action{}, err
	}
	action.Market = market
	fuses := make([]string, 0, len(actions))
	for _, a := range actions {
		fuses = append(fuses, a.Fuse.Hex())
	}
	action.Metadata = map[string]any{"fuses": fuses}
	action.Steps = append(action.Steps, execution.ActionStep{
		StepID:      "vault-execute",
		Type:        execution.StepTypeVaultExecute,
		Status:      execution.StepStatusPending,
		ChainID:     action.ChainID,
		RPCURL:      rpcURL,
		Description: "Execute fuse actions on " + market,
		Target:      req.Vault.Hex(),
		Data:        "0x" + common.Bytes2Hex(data),
		Value:       "0",
	})
	return action, nil
}

// DepositRequest deposits the vault's underlying asset.
type DepositRequest struct {
	VaultRequest
	Asset    common.Address
	Amount   *big.Int
	Receiver common.Address
}

// BuildDepositAction plans approve (when the allowance is short) followed by
// ERC4626 deposit(assets, receiver).
func BuildDepositAction(ctx context.Context, reader Reader, req DepositRequest) (execution.Action, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return execution.Action{}, clierr.New(clierr.CodeUsage, "deposit amount must be a positive integer in base units")
	}
	if req.Asset == (common.Address{}) {
		return execution.Action{}, clierr.New(clierr.CodeUsage, "deposit requires the vault asset address")
	}
	if req.Sender == (common.Address{}) {
		return execution.Action{}, clierr.New(clierr.CodeUsage, "deposit requires sender address")
	}
	action, rpcURL, err := req.newAction("vault_deposit")
	if err != nil {
		return execution.Action{}, err
	}
	receiver := req.Receiver
	if receiver == (common.Address{}) {
		receiver = req.Sender
	}
	action.Asset = req.Asset.Hex()
	action.InputAmount = req.Amount.String()
	action.Metadata = map[string]any{"receiver": receiver.Hex()}

	if err := appendApprovalIfNeeded(ctx, reader, &action, rpcURL, req.Asset, req.Sender, req.Vault, req.Amount, "Approve asset for vault deposit"); err != nil {
		return execution.Action{}, err
	}
	data, err := plannerVaultABI.Pack("deposit", req.Amount, receiver)
	if err != nil {
		return execution.Action{}, clierr.Wrap(clierr.CodeInternal, "pack deposit calldata", err)
	}
	action.Steps = append(action.Steps, execution.ActionStep{
		StepID:      "vault-deposit",
		Type:        execution.StepTypeVaultCall,
		Status:      execution.StepStatusPending,
		ChainID:     action.ChainID,
		RPCURL:      rpcURL,
		Description: "Deposit asset into plasma vault",
		Target:      req.Vault.Hex(),
		Data:        "0x" + common.Bytes2Hex(data),
		Value:       "0",
	})
	return action, nil
}

// BuildCallAction plans direct calls such as role grants, withdraw requests
// or reward claims. Steps run in the order given.
func BuildCallAction(req VaultRequest, intent string, calls ...Call) (execution.Action, error) {
	if len(calls) == 0 {
		return execution.Action{}, clierr.New(clierr.CodeUsage, "at least one call is required")
	}
	action, rpcURL, err := req.newAction(intent)
	if err != nil {
		return execution.Action{}, err
	}
	for i, c := range calls {
		if c.Target == (common.Address{}) {
			return execution.Action{}, clierr.New(clierr.CodeUsage, "call target address is required")
		}
		if len(c.Data) < 4 {
			return execution.Action{}, clierr.New(clierr.CodeUsage, "call data must start with a selector")
		}
		stepType := c.Type
		if stepType == "" {
			stepType = execution.StepTypeVaultCall
		}
		stepID := c.StepID
		if stepID == "" {
			stepID = intent
			if len(calls) > 1 {
				stepID = intent + "-" + strconv.Itoa(i+1)
			}
		}
		action.Steps = append(action.Steps, execution.ActionStep{
			StepID:      stepID,
			Type:        stepType,
			Status:      execution.StepStatusPending,
			ChainID:     action.ChainID,
			RPCURL:      rpcURL,
			Description: c.Description,
			Target:      c.Target.Hex(),
			Data:        "0x" + common.Bytes2Hex(c.Data),
			Value:       "0",
		})
	}
	return action, nil
}

var plannerVaultABI = registry.MustABI(registry.PlasmaVaultABI)
