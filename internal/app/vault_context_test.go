package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ipor-labs/fusion/internal/config"
	clierr "github.com/ipor-labs/fusion/internal/errors"
	"github.com/ipor-labs/fusion/internal/execution"
	"github.com/ipor-labs/fusion/internal/id"
	"github.com/ipor-labs/fusion/internal/registry"
	"github.com/ipor-labs/fusion/internal/vault"
)

type fakeSimulator struct {
	calls []common.Address
	fail  map[common.Address]error
}

func (f *fakeSimulator) Simulate(_ context.Context, to common.Address, _ []byte) error {
	f.calls = append(f.calls, to)
	return f.fail[to]
}

func TestSimulateStepsSkipsStepsAfterApproval(t *testing.T) {
	token := common.HexToAddress("0x00000000000000000000000000000000000000B1")
	action := execution.Action{Steps: []execution.ActionStep{
		{StepID: "approve", Type: execution.StepTypeApproval, Target: token.Hex(), Data: "0x095ea7b3"},
		{StepID: "vault-deposit", Type: execution.StepTypeVaultCall, Target: testVault.Hex(), Data: "0x6e553f65"},
	}}
	sim := &fakeSimulator{}
	warnings, err := simulateSteps(context.Background(), sim, &action)
	if err != nil {
		t.Fatalf("simulateSteps failed: %v", err)
	}
	if len(sim.calls) != 1 || sim.calls[0] != token {
		t.Fatalf("expected only the approval to be simulated, got %v", sim.calls)
	}
	if action.Steps[0].Status != execution.StepStatusSimulated || action.Steps[1].Status == execution.StepStatusSimulated {
		t.Fatalf("unexpected statuses %s %s", action.Steps[0].Status, action.Steps[1].Status)
	}
	if len(warnings) != 2 || !strings.Contains(warnings[0], "vault-deposit") {
		t.Fatalf("unexpected warnings %v", warnings)
	}
}

func TestSimulateStepsMarksFailure(t *testing.T) {
	action := execution.Action{Steps: []execution.ActionStep{
		{StepID: "vault-execute", Type: execution.StepTypeVaultExecute, Target: testVault.Hex(), Data: "0xe9ae5c53"},
	}}
	sim := &fakeSimulator{fail: map[common.Address]error{testVault: errors.New("execution reverted")}}
	if _, err := simulateSteps(context.Background(), sim, &action); err == nil {
		t.Fatal("expected simulation error")
	}
	if action.Steps[0].Status != execution.StepStatusFailed || action.Steps[0].Error == "" {
		t.Fatalf("step not marked failed: %+v", action.Steps[0])
	}
}

func TestExplainUnauthorized(t *testing.T) {
	alpha := common.HexToAddress("0x00000000000000000000000000000000000000C1")
	revert := &execution.RevertError{Name: "AccessManagedUnauthorized", Args: []any{alpha}, Reason: "AccessManagedUnauthorized"}
	err := explainUnauthorized(clierr.Wrap(clierr.CodeActionSim, "simulate step (eth_call)", revert), alpha)
	if !clierr.Is(err, clierr.CodeUnauthorized) {
		t.Fatalf("expected unauthorized code, got %v", err)
	}
	if !strings.Contains(err.Error(), alpha.Hex()) {
		t.Fatalf("message should name the alpha: %v", err)
	}

	other := clierr.New(clierr.CodeUnavailable, "rpc down")
	if got := explainUnauthorized(other, alpha); got != other {
		t.Fatalf("non-revert errors must pass through, got %v", got)
	}
}

func TestExecuteOptionsLayersFlagsOverChainDefaults(t *testing.T) {
	chain := config.ChainConfig{GasLimit: 300000, MaxFeeGwei: "3", MaxPriorityFeeGwei: "0.1"}
	settings := config.Settings{GasMultiplier: 1.3}

	f := execFlags{pollInterval: "2s", stepTimeout: "2m"}
	opts, err := f.executeOptions(chain, settings)
	if err != nil {
		t.Fatalf("executeOptions failed: %v", err)
	}
	if opts.GasLimit != 300000 || opts.MaxFeeGwei != "3" || opts.MaxPriorityFeeGwei != "0.1" || opts.GasMultiplier != 1.3 {
		t.Fatalf("chain defaults not applied: %+v", opts)
	}
	if opts.PollInterval != 2*time.Second || opts.StepTimeout != 2*time.Minute {
		t.Fatalf("unexpected durations %+v", opts)
	}

	f = execFlags{pollInterval: "50ms", stepTimeout: "10s", gasLimit: 500000, maxFeeGwei: "5", gasMultiplier: 1.5}
	opts, err = f.executeOptions(chain, settings)
	if err != nil {
		t.Fatalf("executeOptions failed: %v", err)
	}
	if opts.GasLimit != 500000 || opts.MaxFeeGwei != "5" || opts.MaxPriorityFeeGwei != "0.1" || opts.GasMultiplier != 1.5 {
		t.Fatalf("flags not applied: %+v", opts)
	}

	for _, bad := range []execFlags{
		{pollInterval: "0s", stepTimeout: "1m"},
		{pollInterval: "1s", stepTimeout: "soon"},
		{pollInterval: "1s", stepTimeout: "1m", gasMultiplier: 0.9},
	} {
		if _, err := bad.executeOptions(chain, settings); !clierr.Is(err, clierr.CodeUsage) {
			t.Fatalf("%+v: expected usage error, got %v", bad, err)
		}
	}
}

func TestNormalizeMarket(t *testing.T) {
	cases := map[string]string{
		"aave":            marketAaveV3,
		"AAVE-V3":         marketAaveV3,
		"compound":        marketCompoundV3,
		"gearbox":         marketGearboxV3,
		"fluid-instadapp": marketFluid,
		"erc-4626":        marketErc4626,
		"morpho":          marketMorpho,
		"curve":           "",
	}
	for in, want := range cases {
		if got := normalizeMarket(in); got != want {
			t.Fatalf("normalizeMarket(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseMorphoMarketID(t *testing.T) {
	raw := "0x" + strings.Repeat("ab", 32)
	got, err := parseMorphoMarketID(raw)
	if err != nil || got != common.HexToHash(raw) {
		t.Fatalf("parseMorphoMarketID = %s, %v", got.Hex(), err)
	}
	if _, err := parseMorphoMarketID(strings.Repeat("ab", 32)); err != nil {
		t.Fatalf("missing 0x prefix should be accepted: %v", err)
	}
	for _, bad := range []string{"", "0x1234", "0xzz" + strings.Repeat("ab", 31)} {
		if _, err := parseMorphoMarketID(bad); !clierr.Is(err, clierr.CodeUsage) {
			t.Fatalf("%q: expected usage error, got %v", bad, err)
		}
	}
}

func TestGroupRoleAccountsKeepsEmptyRoles(t *testing.T) {
	a := common.HexToAddress("0x00000000000000000000000000000000000000C1")
	b := common.HexToAddress("0x00000000000000000000000000000000000000C2")
	roles := []vault.Role{vault.RoleAlpha, vault.RoleAtomist}
	out := groupRoleAccounts(roles, []vault.RoleAccount{{Role: vault.RoleAlpha, Account: a}, {Role: vault.RoleAlpha, Account: b}})
	if len(out) != 2 {
		t.Fatalf("expected two roles, got %+v", out)
	}
	if out[0].Role != "ALPHA_ROLE" || len(out[0].Accounts) != 2 || out[0].Accounts[1] != b.Hex() {
		t.Fatalf("unexpected alpha members %+v", out[0])
	}
	if out[1].Accounts == nil || len(out[1].Accounts) != 0 {
		t.Fatalf("empty role should have an empty list, got %+v", out[1])
	}
}

func TestBalanceTokensDefaults(t *testing.T) {
	chain := id.ChainFromID(id.ArbitrumChainID)
	usdc := registry.MustAssetAddress(id.ArbitrumChainID, "USDC")
	tokens, err := balanceTokens(chain, usdc, nil)
	if err != nil {
		t.Fatalf("balanceTokens failed: %v", err)
	}
	if len(tokens) < 1 || tokens[0] != usdc {
		t.Fatalf("asset should come first without duplicates: %v", tokens)
	}
	seen := map[common.Address]bool{}
	for _, tok := range tokens {
		if seen[tok] {
			t.Fatalf("duplicate token %s", tok.Hex())
		}
		seen[tok] = true
	}

	explicit, err := balanceTokens(chain, usdc, []string{"USDC", "usdc"})
	if err != nil || len(explicit) != 1 {
		t.Fatalf("explicit list should dedupe: %v %v", explicit, err)
	}
}
