package execution

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	clierr "github.com/ipor-labs/fusion/internal/errors"
	"github.com/ipor-labs/fusion/internal/fuse"
)

const policyVault = "0x00000000000000000000000000000000000000ab"

func TestValidateApprovalPolicyBounded(t *testing.T) {
	data, err := policyERC20ABI.Pack("approve", common.HexToAddress(policyVault), big.NewInt(100))
	if err != nil {
		t.Fatalf("pack approval calldata: %v", err)
	}
	action := &Action{InputAmount: "100", VaultAddress: policyVault}
	step := &ActionStep{Type: StepTypeApproval, Target: "0x00000000000000000000000000000000000000cd"}

	if err := validateStepPolicy(action, step, data, ExecuteOptions{}); err != nil {
		t.Fatalf("expected bounded approval to pass, got err=%v", err)
	}
}

func TestValidateApprovalPolicyRejectsUnlimitedByDefault(t *testing.T) {
	data, err := policyERC20ABI.Pack("approve", common.HexToAddress(policyVault), big.NewInt(101))
	if err != nil {
		t.Fatalf("pack approval calldata: %v", err)
	}
	action := &Action{InputAmount: "100", VaultAddress: policyVault}
	step := &ActionStep{Type: StepTypeApproval, Target: "0x00000000000000000000000000000000000000cd"}

	err = validateStepPolicy(action, step, data, ExecuteOptions{})
	if err == nil {
		t.Fatal("expected bounded-approval validation to fail")
	}
	if !strings.Contains(err.Error(), "allow-max-approval") {
		t.Fatalf("expected override hint, got err=%v", err)
	}
	if err := validateStepPolicy(action, step, data, ExecuteOptions{AllowMaxApproval: true}); err != nil {
		t.Fatalf("expected approval override to pass, got err=%v", err)
	}
}

func TestValidateApprovalPolicyRejectsForeignSpender(t *testing.T) {
	data, err := policyERC20ABI.Pack("approve", common.HexToAddress("0x00000000000000000000000000000000000000ee"), big.NewInt(1))
	if err != nil {
		t.Fatalf("pack approval calldata: %v", err)
	}
	action := &Action{InputAmount: "100", VaultAddress: policyVault}
	step := &ActionStep{Type: StepTypeApproval, Target: "0x00000000000000000000000000000000000000cd"}

	err = validateStepPolicy(action, step, data, ExecuteOptions{AllowMaxApproval: true})
	if !clierr.Is(err, clierr.CodeActionPlan) {
		t.Fatalf("expected action plan error for foreign spender, got %v", err)
	}
}

func TestValidateVaultExecutePolicy(t *testing.T) {
	supply, err := fuse.NewAaveV3SupplyFuse(common.HexToAddress("0x00000000000000000000000000000000000000f1"))
	if err != nil {
		t.Fatalf("new fuse: %v", err)
	}
	fa, err := supply.Supply(common.HexToAddress("0x00000000000000000000000000000000000000a1"), big.NewInt(10), 0)
	if err != nil {
		t.Fatalf("encode supply: %v", err)
	}
	data, err := fuse.ExecuteCalldata([]fuse.FuseAction{fa})
	if err != nil {
		t.Fatalf("encode execute: %v", err)
	}
	action := &Action{VaultAddress: policyVault}
	step := &ActionStep{Type: StepTypeVaultExecute, Target: policyVault, Data: hexutil.Encode(data)}
	if err := validateStepPolicy(action, step, data, ExecuteOptions{}); err != nil {
		t.Fatalf("expected execute step to pass, got %v", err)
	}

	wrongTarget := &ActionStep{Type: StepTypeVaultExecute, Target: "0x00000000000000000000000000000000000000cd"}
	if err := validateStepPolicy(action, wrongTarget, data, ExecuteOptions{}); !clierr.Is(err, clierr.CodeActionPlan) {
		t.Fatalf("expected target mismatch to fail, got %v", err)
	}

	empty, err := fuse.ExecuteCalldata(nil)
	if err != nil {
		t.Fatalf("encode empty execute: %v", err)
	}
	if err := validateStepPolicy(action, step, empty, ExecuteOptions{}); !clierr.Is(err, clierr.CodeActionPlan) {
		t.Fatalf("expected empty execute to fail, got %v", err)
	}

	zeroFuse, err := fuse.ExecuteCalldata([]fuse.FuseAction{{Data: fa.Data}})
	if err != nil {
		t.Fatalf("encode zero fuse execute: %v", err)
	}
	if err := validateStepPolicy(action, step, zeroFuse, ExecuteOptions{}); !clierr.Is(err, clierr.CodeActionPlan) {
		t.Fatalf("expected zero fuse to fail, got %v", err)
	}

	if err := validateStepPolicy(action, step, []byte{0x01, 0x02, 0x03, 0x04}, ExecuteOptions{}); !clierr.Is(err, clierr.CodeActionPlan) {
		t.Fatalf("expected foreign selector to fail, got %v", err)
	}
}
