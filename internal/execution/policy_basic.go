package execution

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ipor-labs/fusion/internal/errors"
	"github.com/ipor-labs/fusion/internal/fuse"
	"github.com/ipor-labs/fusion/internal/registry"
)

var (
	policyERC20ABI        = registry.MustABI(registry.ERC20ABI)
	policyApproveSelector = policyERC20ABI.Methods["approve"].ID
)

// validateStepPolicy checks step calldata before anything is signed.
func validateStepPolicy(action *Action, step *ActionStep, data []byte, opts ExecuteOptions) error {
	if step == nil {
		return clierr.New(clierr.CodeInternal, "missing action step")
	}
	if !common.IsHexAddress(step.Target) {
		return clierr.New(clierr.CodeUsage, "invalid step target address")
	}

	switch step.Type {
	case StepTypeApproval:
		return validateApprovalPolicy(action, data, opts)
	case StepTypeVaultExecute:
		return validateVaultExecutePolicy(action, step, data)
	default:
		return nil
	}
}

func validateVaultExecutePolicy(action *Action, step *ActionStep, data []byte) error {
	actions, err := fuse.DecodeExecuteCalldata(data)
	if err != nil {
		return clierr.Wrap(clierr.CodeActionPlan, "vault execute step calldata is invalid", err)
	}
	if len(actions) == 0 {
		return clierr.New(clierr.CodeActionPlan, "vault execute step has no fuse actions")
	}
	for i, a := range actions {
		if a.Fuse == (common.Address{}) {
			return clierr.New(clierr.CodeActionPlan, fmt.Sprintf("fuse action %d has zero fuse address", i))
		}
		if len(a.Data) < 4 {
			return clierr.New(clierr.CodeActionPlan, fmt.Sprintf("fuse action %d has no selector", i))
		}
	}
	if action != nil && strings.TrimSpace(action.VaultAddress) != "" &&
		!strings.EqualFold(common.HexToAddress(step.Target).Hex(), common.HexToAddress(action.VaultAddress).Hex()) {
		return clierr.New(clierr.CodeActionPlan, "vault execute step target does not match action vault")
	}
	return nil
}

func validateApprovalPolicy(action *Action, data []byte, opts ExecuteOptions) error {
	if len(data) < 4 || !bytes.Equal(data[:4], policyApproveSelector) {
		return clierr.New(clierr.CodeActionPlan, "approval step must use ERC20 approve(spender,amount)")
	}
	args, err := policyERC20ABI.Methods["approve"].Inputs.Unpack(data[4:])
	if err != nil || len(args) != 2 {
		return clierr.New(clierr.CodeActionPlan, "approval step calldata is invalid")
	}
	spender, ok := toAddress(args[0])
	if !ok || spender == (common.Address{}) {
		return clierr.New(clierr.CodeActionPlan, "approval step has invalid spender")
	}
	amount, ok := toBigInt(args[1])
	if !ok || amount.Sign() <= 0 {
		return clierr.New(clierr.CodeActionPlan, "approval step has invalid approval amount")
	}
	if action == nil {
		return clierr.New(clierr.CodeActionPlan, "cannot validate approval without action context")
	}
	if strings.TrimSpace(action.VaultAddress) != "" && spender != common.HexToAddress(action.VaultAddress) {
		return clierr.New(clierr.CodeActionPlan, "approval spender must be the plasma vault")
	}
	if opts.AllowMaxApproval {
		return nil
	}
	requested, ok := parsePositiveBaseUnits(action.InputAmount)
	if !ok {
		return clierr.New(clierr.CodeActionPlan, "cannot validate approval bounds for non-numeric input amount; use --allow-max-approval to override")
	}
	if amount.Cmp(requested) > 0 {
		return clierr.New(
			clierr.CodeActionPlan,
			fmt.Sprintf("approval amount %s exceeds requested input amount %s; use --allow-max-approval to override", amount.String(), requested.String()),
		)
	}
	return nil
}

func parsePositiveBaseUnits(value string) (*big.Int, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil, false
	}
	parsed, ok := new(big.Int).SetString(v, 10)
	if !ok || parsed.Sign() <= 0 {
		return nil, false
	}
	return parsed, true
}

func toAddress(v any) (common.Address, bool) {
	switch value := v.(type) {
	case common.Address:
		return value, true
	case *common.Address:
		if value == nil {
			return common.Address{}, false
		}
		return *value, true
	default:
		return common.Address{}, false
	}
}

func toBigInt(v any) (*big.Int, bool) {
	switch value := v.(type) {
	case *big.Int:
		if value == nil {
			return nil, false
		}
		return value, true
	case big.Int:
		cpy := value
		return &cpy, true
	default:
		return nil, false
	}
}
