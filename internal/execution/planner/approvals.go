package planner

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ipor-labs/fusion/internal/errors"
	"github.com/ipor-labs/fusion/internal/execution"
	"github.com/ipor-labs/fusion/internal/registry"
)

var plannerERC20ABI = registry.MustABI(registry.ERC20ABI)

// appendApprovalIfNeeded adds an approve(spender, amount) step when the
// owner's current allowance does not cover amount.
func appendApprovalIfNeeded(ctx context.Context, reader Reader, action *execution.Action, rpcURL string, token, owner, spender common.Address, amount *big.Int, description string) error {
	allowanceData, err := plannerERC20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "pack allowance calldata", err)
	}
	allowanceRaw, err := reader.Read(ctx, token, allowanceData)
	if err != nil {
		return clierr.Wrap(clierr.CodeUnavailable, "read token allowance", err)
	}
	allowanceOut, err := plannerERC20ABI.Unpack("allowance", allowanceRaw)
	if err != nil || len(allowanceOut) == 0 {
		return clierr.Wrap(clierr.CodeUnavailable, "decode token allowance", err)
	}
	currentAllowance, ok := allowanceOut[0].(*big.Int)
	if !ok {
		return clierr.New(clierr.CodeUnavailable, "invalid allowance response")
	}
	if currentAllowance.Cmp(amount) >= 0 {
		return nil
	}
	approveData, err := plannerERC20ABI.Pack("approve", spender, amount)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "pack approve calldata", err)
	}
	action.Steps = append(action.Steps, execution.ActionStep{
		StepID:      fmt.Sprintf("approve-%s", strings.TrimPrefix(strings.ToLower(token.Hex()), "0x")),
		Type:        execution.StepTypeApproval,
		Status:      execution.StepStatusPending,
		ChainID:     action.ChainID,
		RPCURL:      rpcURL,
		Description: description,
		Target:      token.Hex(),
		Data:        "0x" + common.Bytes2Hex(approveData),
		Value:       "0",
	})
	return nil
}
