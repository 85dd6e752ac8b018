package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ipor-labs/fusion/internal/chaintest"
	"github.com/ipor-labs/fusion/internal/config"
	"github.com/ipor-labs/fusion/internal/execution"
	"github.com/ipor-labs/fusion/internal/execution/signer"
	"github.com/ipor-labs/fusion/internal/fuse"
	"github.com/ipor-labs/fusion/internal/id"
	"github.com/ipor-labs/fusion/internal/registry"
)

const testPrivateKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	plasmaVaultABI   = registry.MustABI(registry.PlasmaVaultABI)
	erc20ABI         = registry.MustABI(registry.ERC20ABI)
	accessManagerABI = registry.MustABI(registry.AccessManagerABI)
	fusionErrorsABI  = registry.MustABI(registry.FusionErrorsABI)

	testVault   = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	testAccess  = common.HexToAddress("0x00000000000000000000000000000000000000A2")
	testRewards = common.HexToAddress("0x00000000000000000000000000000000000000A3")
	testOracle  = common.HexToAddress("0x00000000000000000000000000000000000000A4")
)

type envelope struct {
	Success  bool            `json:"success"`
	Data     json.RawMessage `json:"data"`
	Warnings []string        `json:"warnings"`
	Error    *struct {
		Code    int    `json:"code"`
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
	Meta struct {
		Command string `json:"command"`
		ChainID string `json:"chain_id"`
		Vault   string `json:"vault"`
	} `json:"meta"`
}

type testEnv struct {
	node       *chaintest.Node
	configPath string
	alpha      common.Address
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(tmp, "cache"))
	t.Setenv("FUSION_ACTIONS_PATH", filepath.Join(tmp, "actions.db"))
	t.Setenv("FUSION_ACTIONS_LOCK_PATH", filepath.Join(tmp, "actions.lock"))
	t.Setenv("FUSION_LOG_LEVEL", "disabled")
	t.Setenv("FUSION_RPC_URL", "")
	t.Setenv("FUSION_PASSWORD", "")
	t.Setenv("FUSION_VAULT", "")
	t.Setenv("FUSION_SCAN_API_KEY", "")
	t.Setenv("FUSION_SCAN_API_URL", "")
	t.Setenv("FUSION_MORPHO_API_URL", "")
	t.Setenv(signer.EnvPrivateKey, "")

	node := newVaultNode(t)
	path := filepath.Join(tmp, "ipor-fusion-config.yaml")
	t.Setenv("FUSION_VAULT_CONFIG", path)
	cfg := config.GeneralConfig{
		DefaultPlasmaVaultName: "main",
		ChainConfigs: []config.ChainConfig{{
			ChainID:        id.ArbitrumChainID,
			ChainName:      "arbitrum",
			ChainShortName: "arb",
			RPCURL:         node.URL,
			PlasmaVaults: []config.PlasmaVaultConfig{{
				Name:               "main",
				PlasmaVaultAddress: testVault.Hex(),
				PrivateKey:         testPrivateKey,
			}},
		}},
	}
	if err := config.SaveVaultConfig(path, cfg); err != nil {
		t.Fatalf("save vault config: %v", err)
	}
	local, err := signer.NewLocalSignerFromHex(testPrivateKey)
	if err != nil {
		t.Fatalf("load test key: %v", err)
	}
	return &testEnv{node: node, configPath: path, alpha: local.Address()}
}

func selector(abiMethod string) []byte {
	if m, ok := plasmaVaultABI.Methods[abiMethod]; ok {
		return m.ID
	}
	if m, ok := accessManagerABI.Methods[abiMethod]; ok {
		return m.ID
	}
	return erc20ABI.Methods[abiMethod].ID
}

func newVaultNode(t *testing.T) *chaintest.Node {
	t.Helper()
	node := chaintest.New(t, id.ArbitrumChainID)
	usdc := registry.MustAssetAddress(id.ArbitrumChainID, "USDC")
	node.OnCall(testVault, selector("asset"), chaintest.Word(usdc))
	node.OnCall(testVault, selector("getAccessManagerAddress"), chaintest.Word(testAccess))
	node.OnCall(testVault, selector("getRewardsClaimManagerAddress"), chaintest.Word(testRewards))
	node.OnCall(testVault, selector("getPriceOracleMiddleware"), chaintest.Word(testOracle))
	node.Revert(testVault, selector("getWithdrawManager"), nil)

	aave, _ := registry.FuseAddresses(id.ArbitrumChainID, registry.AaveV3SupplyFuse)
	fuses, err := plasmaVaultABI.Methods["getFuses"].Outputs.Pack([]common.Address{aave[0]})
	if err != nil {
		t.Fatalf("pack fuses: %v", err)
	}
	node.OnCall(testVault, selector("getFuses"), fuses)
	return node
}

func run(t *testing.T, args ...string) (int, envelope, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := NewRunnerWithWriters(&stdout, &stderr).Run(args)
	var env envelope
	if stdout.Len() > 0 && strings.HasPrefix(strings.TrimSpace(stdout.String()), "{") {
		if err := json.Unmarshal(stdout.Bytes(), &env); err != nil {
			t.Fatalf("decode envelope: %v\n%s", err, stdout.String())
		}
	}
	return code, env, stdout.String()
}

func TestRunVersion(t *testing.T) {
	code, _, out := run(t, "version")
	if code != 0 || strings.TrimSpace(out) == "" {
		t.Fatalf("version: code %d out %q", code, out)
	}
}

func TestSchemaMarksMutatingCommands(t *testing.T) {
	newTestEnv(t)
	for path, want := range map[string]bool{"supply": true, "vault deposit": true, "vault info": false, "actions list": false} {
		code, env, out := run(t, append([]string{"schema"}, strings.Fields(path)...)...)
		if code != 0 {
			t.Fatalf("schema %s: code %d\n%s", path, code, out)
		}
		var s struct {
			Mutating bool `json:"mutating"`
		}
		if err := json.Unmarshal(env.Data, &s); err != nil {
			t.Fatalf("decode schema: %v", err)
		}
		if s.Mutating != want {
			t.Fatalf("schema %s: mutating %v, want %v", path, s.Mutating, want)
		}
	}
}

func TestEnableCommandsBlocksOtherCommands(t *testing.T) {
	newTestEnv(t)
	code, env, _ := run(t, "--enable-commands", "vault info", "supply", "--market", "aave_v3", "--asset", "USDC", "--amount", "1")
	if code != 16 || env.Error == nil || env.Error.Type != "command_blocked" {
		t.Fatalf("expected blocked, got code %d env %+v", code, env.Error)
	}
}

func TestReadOnlyBlocksWrites(t *testing.T) {
	e := newTestEnv(t)
	code, _, _ := run(t, "--read-only", "roles", "grant", "--role", "alpha", "--account", testAccess.Hex())
	if code != 16 {
		t.Fatalf("expected read-only block, got %d", code)
	}
	if len(e.node.Sent()) != 0 || e.node.Calls("eth_chainId") != 0 {
		t.Fatal("a blocked command must not reach the node")
	}
}

func TestSupplyUsageErrors(t *testing.T) {
	newTestEnv(t)
	cases := [][]string{
		{"supply", "--market", "curve", "--asset", "USDC", "--amount", "1"},
		{"supply", "--market", "aave_v3", "--asset", "USDC"},
		{"supply", "--market", "aave_v3", "--asset", "USDC", "--amount", "0"},
		{"withdraw", "--market", "morpho", "--asset", "USDC", "--amount", "1", "--market-id", "0x1234"},
	}
	for _, args := range cases {
		code, env, out := run(t, args...)
		if code != 2 {
			t.Fatalf("%v: expected usage error, got %d\n%s", args, code, out)
		}
		if env.Error == nil || env.Error.Type != "usage_error" {
			t.Fatalf("%v: unexpected error body %+v", args, env.Error)
		}
	}
}

func TestSupplyAaveSendsTransaction(t *testing.T) {
	e := newTestEnv(t)
	code, env, out := run(t, "supply", "--market", "aave", "--asset", "USDC", "--amount-decimal", "1.5", "--poll-interval", "10ms")
	if code != 0 {
		t.Fatalf("supply failed: %d\n%s", code, out)
	}
	var action execution.Action
	if err := json.Unmarshal(env.Data, &action); err != nil {
		t.Fatalf("decode action: %v", err)
	}
	if action.Status != execution.ActionStatusCompleted || action.Market != marketAaveV3 || action.InputAmount != "1500000" {
		t.Fatalf("unexpected action %+v", action)
	}
	if len(action.Steps) != 1 || action.Steps[0].Type != execution.StepTypeVaultExecute || action.Steps[0].TxHash == "" {
		t.Fatalf("unexpected steps %+v", action.Steps)
	}
	if !strings.EqualFold(action.FromAddress, e.alpha.Hex()) {
		t.Fatalf("action from %s, want %s", action.FromAddress, e.alpha.Hex())
	}
	if len(e.node.Sent()) != 1 {
		t.Fatalf("expected one transaction, got %d", len(e.node.Sent()))
	}
	if env.Meta.ChainID != "eip155:42161" || !strings.EqualFold(env.Meta.Vault, testVault.Hex()) {
		t.Fatalf("unexpected meta %+v", env.Meta)
	}

	code, env, out = run(t, "actions", "list")
	if code != 0 {
		t.Fatalf("actions list failed: %d\n%s", code, out)
	}
	var listed []execution.Action
	if err := json.Unmarshal(env.Data, &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed) != 1 || listed[0].ActionID != action.ActionID {
		t.Fatalf("unexpected list %+v", listed)
	}

	code, env, out = run(t, "actions", "show", action.ActionID)
	if code != 0 {
		t.Fatalf("actions show failed: %d\n%s", code, out)
	}
	var shown execution.Action
	if err := json.Unmarshal(env.Data, &shown); err != nil || shown.Status != execution.ActionStatusCompleted {
		t.Fatalf("unexpected shown action %+v (%v)", shown, err)
	}

	code, env, _ = run(t, "actions", "submit", "--action-id", action.ActionID)
	if code != 0 || len(env.Warnings) == 0 {
		t.Fatalf("resubmitting a completed action should warn, got %d %v", code, env.Warnings)
	}
	if len(e.node.Sent()) != 1 {
		t.Fatal("completed action must not be re-sent")
	}
}

func TestSupplyUnauthorizedNamesAlpha(t *testing.T) {
	e := newTestEnv(t)
	revert, err := fusionErrorsABI.Errors["AccessManagedUnauthorized"].Inputs.Pack(e.alpha)
	if err != nil {
		t.Fatalf("pack revert: %v", err)
	}
	data := append(append([]byte{}, fusionErrorsABI.Errors["AccessManagedUnauthorized"].ID.Bytes()[:4]...), revert...)
	e.node.Revert(testVault, selector("execute"), data)

	code, env, out := run(t, "supply", "--market", "aave_v3", "--asset", "USDC", "--amount", "1000")
	if code != 21 {
		t.Fatalf("expected unauthorized exit code, got %d\n%s", code, out)
	}
	if env.Error == nil || env.Error.Type != "unauthorized" || !strings.Contains(env.Error.Message, e.alpha.Hex()) {
		t.Fatalf("unexpected error %+v", env.Error)
	}
	if len(e.node.Sent()) != 0 {
		t.Fatal("nothing should be sent after a failed simulation")
	}
}

func TestSupplySimulateSendsNothing(t *testing.T) {
	e := newTestEnv(t)
	code, env, out := run(t, "supply", "--market", "aave_v3", "--asset", "USDC", "--amount", "1000", "--simulate")
	if code != 0 {
		t.Fatalf("simulate failed: %d\n%s", code, out)
	}
	var action execution.Action
	if err := json.Unmarshal(env.Data, &action); err != nil {
		t.Fatalf("decode action: %v", err)
	}
	if action.Steps[0].Status != execution.StepStatusSimulated {
		t.Fatalf("expected simulated step, got %s", action.Steps[0].Status)
	}
	if len(e.node.Sent()) != 0 || e.node.Calls("eth_sendRawTransaction") != 0 {
		t.Fatal("simulate must not broadcast")
	}
	if len(env.Warnings) == 0 {
		t.Fatal("expected simulation warning")
	}
}

func TestSupplyRejectsUnsupportedMarketOnVault(t *testing.T) {
	newTestEnv(t)
	code, env, _ := run(t, "supply", "--market", "moonwell", "--asset", "USDC", "--amount", "1")
	if code != 13 || env.Error == nil {
		t.Fatalf("expected unsupported, got %d %+v", code, env.Error)
	}
}

func TestVaultInfoAndFuses(t *testing.T) {
	e := newTestEnv(t)
	usdc := registry.MustAssetAddress(id.ArbitrumChainID, "USDC")
	e.node.OnCall(usdc, selector("decimals"), chaintest.Word(6))
	e.node.OnCall(testVault, selector("totalAssets"), chaintest.Word(2_500_000))
	e.node.OnCall(testVault, selector("totalSupply"), chaintest.Word(2_000_000))
	e.node.OnCall(testVault, selector("getTotalSupplyCap"), chaintest.Word(1_000_000_000))

	code, env, out := run(t, "vault", "info")
	if code != 0 {
		t.Fatalf("vault info failed: %d\n%s", code, out)
	}
	var info struct {
		AssetSymbol string `json:"asset_symbol"`
		TotalAssets struct {
			AmountDecimal string `json:"amount_decimal"`
		} `json:"total_assets"`
		Alpha     string `json:"alpha"`
		FuseCount int    `json:"fuse_count"`
	}
	if err := json.Unmarshal(env.Data, &info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if info.AssetSymbol != "USDC" || info.TotalAssets.AmountDecimal != "2.5" || info.FuseCount != 1 {
		t.Fatalf("unexpected info %+v", info)
	}
	if !strings.EqualFold(info.Alpha, e.alpha.Hex()) {
		t.Fatalf("alpha %s, want %s", info.Alpha, e.alpha.Hex())
	}

	code, env, out = run(t, "vault", "fuses")
	if code != 0 {
		t.Fatalf("vault fuses failed: %d\n%s", code, out)
	}
	var fuses []struct {
		Name   string `json:"name"`
		Source string `json:"source"`
	}
	if err := json.Unmarshal(env.Data, &fuses); err != nil {
		t.Fatalf("decode fuses: %v", err)
	}
	if len(fuses) != 1 || fuses[0].Name != registry.AaveV3SupplyFuse || fuses[0].Source != "registry" {
		t.Fatalf("unexpected fuses %+v", fuses)
	}
}

func TestRolesCheck(t *testing.T) {
	e := newTestEnv(t)
	e.node.OnCall(testAccess, selector("hasRole"), chaintest.Words(true, 0))
	code, env, out := run(t, "roles", "check", "--role", "alpha", "--account", e.alpha.Hex())
	if code != 0 {
		t.Fatalf("roles check failed: %d\n%s", code, out)
	}
	var check struct {
		Role     string `json:"role"`
		IsMember bool   `json:"is_member"`
	}
	if err := json.Unmarshal(env.Data, &check); err != nil {
		t.Fatalf("decode check: %v", err)
	}
	if check.Role != "ALPHA_ROLE" || !check.IsMember {
		t.Fatalf("unexpected check %+v", check)
	}
}

func TestWithdrawalsWithoutManagerIsUnsupported(t *testing.T) {
	newTestEnv(t)
	code, env, _ := run(t, "withdrawals", "pending")
	if code != 13 || env.Error == nil || env.Error.Type != "unsupported" {
		t.Fatalf("expected unsupported, got %d %+v", code, env.Error)
	}
}

func TestRewardsMorphoList(t *testing.T) {
	newTestEnv(t)
	distributor := "0x00000000000000000000000000000000000000D1"
	token := "0x00000000000000000000000000000000000000E1"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/users/"+testVault.Hex()+"/distributions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"timestamp":"1","data":[
			{"asset":{"address":"` + token + `","chain_id":42161},"distributor":{"address":"` + distributor + `","chain_id":42161},"claimable":"1000","proof":["0x01"]},
			{"asset":{"address":"` + token + `","chain_id":1},"distributor":{"address":"` + distributor + `","chain_id":1},"claimable":"5","proof":[]}
		]}`))
	}))
	defer srv.Close()
	t.Setenv("FUSION_MORPHO_API_URL", srv.URL)

	code, env, out := run(t, "rewards", "morpho", "list")
	if code != 0 {
		t.Fatalf("rewards list failed: %d\n%s", code, out)
	}
	var items []struct {
		ChainID   int64  `json:"chain_id"`
		Claimable string `json:"claimable"`
	}
	if err := json.Unmarshal(env.Data, &items); err != nil {
		t.Fatalf("decode rewards: %v", err)
	}
	if len(items) != 1 || items[0].ChainID != id.ArbitrumChainID || items[0].Claimable != "1000" {
		t.Fatalf("unexpected rewards %+v", items)
	}
}

func serveMorphoDistribution(t *testing.T, distributor, token common.Address, claimable string, proof []string) {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"timestamp": "1755521728",
		"data": []map[string]any{{
			"asset":       map[string]any{"address": token.Hex(), "chain_id": id.ArbitrumChainID},
			"distributor": map[string]any{"address": distributor.Hex(), "chain_id": id.ArbitrumChainID},
			"claimable":   claimable,
			"proof":       proof,
		}},
	})
	if err != nil {
		t.Fatalf("encode distributions: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	t.Setenv("FUSION_MORPHO_API_URL", srv.URL)
}

func TestRewardsMorphoClaimWithClaimFuse(t *testing.T) {
	e := newTestEnv(t)
	distributor := common.HexToAddress("0x00000000000000000000000000000000000000D1")
	token := common.HexToAddress("0x00000000000000000000000000000000000000E1")
	claimFuse := common.HexToAddress("0x00000000000000000000000000000000000000F9")
	proof := []string{"0x" + strings.Repeat("ab", 32), "0x" + strings.Repeat("cd", 32)}
	serveMorphoDistribution(t, distributor, token, "4670003019411856706671", proof)

	code, env, out := run(t, "rewards", "morpho", "claim", "--claim-fuse", claimFuse.Hex(), "--poll-interval", "10ms")
	if code != 0 {
		t.Fatalf("rewards claim failed: %d\n%s", code, out)
	}
	var action execution.Action
	if err := json.Unmarshal(env.Data, &action); err != nil {
		t.Fatalf("decode action: %v", err)
	}
	if action.Status != execution.ActionStatusCompleted || action.Market != marketMorpho || len(action.Steps) != 1 {
		t.Fatalf("unexpected action %+v", action)
	}
	step := action.Steps[0]
	if step.Type != execution.StepTypeClaim || !strings.EqualFold(step.Target, testRewards.Hex()) {
		t.Fatalf("claim must go to the rewards claim manager, got %+v", step)
	}
	if len(e.node.Sent()) != 1 {
		t.Fatalf("expected one transaction, got %d", len(e.node.Sent()))
	}

	data := common.FromHex(step.Data)
	if !bytes.Equal(data[:4], fuse.Selector(fuse.ClaimRewardsSignature)) {
		t.Fatalf("unexpected outer selector %x", data[:4])
	}
	claims, err := fuse.DecodeActions(data[4:])
	if err != nil {
		t.Fatalf("decode claim actions: %v", err)
	}
	if len(claims) != 1 || claims[0].Fuse != claimFuse {
		t.Fatalf("unexpected claim actions %+v", claims)
	}
	inner := claims[0].Data
	if !bytes.Equal(inner[:4], fuse.Selector("claim(address,address,uint256,bytes32[])")) {
		t.Fatalf("unexpected claim selector %x", inner[:4])
	}
	if common.BytesToAddress(inner[4:36]) != distributor || common.BytesToAddress(inner[36:68]) != token {
		t.Fatalf("claim arguments do not match the distribution")
	}
}

func TestRewardsMorphoClaimNeedsKnownClaimFuse(t *testing.T) {
	e := newTestEnv(t)
	unknown := common.HexToAddress("0x00000000000000000000000000000000000000F8")
	fuses, err := registry.MustABI(registry.RewardsClaimManagerABI).Methods["getRewardsFuses"].Outputs.Pack([]common.Address{unknown})
	if err != nil {
		t.Fatalf("pack rewards fuses: %v", err)
	}
	e.node.OnCall(testRewards, registry.MustABI(registry.RewardsClaimManagerABI).Methods["getRewardsFuses"].ID, fuses)
	serveMorphoDistribution(t,
		common.HexToAddress("0x00000000000000000000000000000000000000D1"),
		common.HexToAddress("0x00000000000000000000000000000000000000E1"),
		"10", []string{"0x" + strings.Repeat("ab", 32)})

	code, env, out := run(t, "rewards", "morpho", "claim")
	if code != 13 || env.Error == nil || !strings.Contains(env.Error.Message, "--claim-fuse") {
		t.Fatalf("expected unsupported with a --claim-fuse hint, got %d\n%s", code, out)
	}
	if len(e.node.Sent()) != 0 {
		t.Fatal("nothing should be sent without a claim fuse")
	}
}

func TestContractsNameUsesExplorer(t *testing.T) {
	newTestEnv(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Query().Get("apikey") != "test-key" {
			t.Errorf("missing api key in %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"1","message":"OK","result":[{"ContractName":"PlasmaVault"}]}`))
	}))
	defer srv.Close()
	t.Setenv("FUSION_SCAN_API_URL", srv.URL)
	t.Setenv("FUSION_SCAN_API_KEY", "test-key")

	code, env, out := run(t, "contracts", "name", "--address", testVault.Hex())
	if code != 0 {
		t.Fatalf("contracts name failed: %d\n%s", code, out)
	}
	var name struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(env.Data, &name); err != nil || name.Name != "PlasmaVault" {
		t.Fatalf("unexpected name %+v (%v)", name, err)
	}

	// Second run is served from the on-disk cache.
	if code, _, _ := run(t, "contracts", "name", "--address", testVault.Hex()); code != 0 {
		t.Fatalf("cached lookup failed: %d", code)
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("expected one explorer request, got %d", n)
	}
}

func TestMonitorOnce(t *testing.T) {
	e := newTestEnv(t)
	usdc := registry.MustAssetAddress(id.ArbitrumChainID, "USDC")
	e.node.OnCall(usdc, selector("decimals"), chaintest.Word(6))
	e.node.OnCall(testVault, selector("decimals"), chaintest.Word(8))
	e.node.OnCall(testVault, selector("totalAssets"), chaintest.Word(3_000_000))
	e.node.OnCall(testVault, selector("totalSupply"), chaintest.Word(200_000_000))
	e.node.OnCall(usdc, selector("balanceOf"), chaintest.Word(1_000_000))

	code, env, out := run(t, "monitor", "--once")
	if code != 0 {
		t.Fatalf("monitor failed: %d\n%s", code, out)
	}
	var samples []metricSample
	if err := json.Unmarshal(env.Data, &samples); err != nil {
		t.Fatalf("decode samples: %v", err)
	}
	values := map[string]float64{}
	for _, s := range samples {
		values[s.Name] = s.Value
	}
	if values["fusion_vault_total_assets"] != 3 || values["fusion_vault_total_supply"] != 2 || values["fusion_vault_asset_balance"] != 1 {
		t.Fatalf("unexpected samples %+v", values)
	}
}

func TestInitReadsChainFromRPCAndEncrypt(t *testing.T) {
	e := newTestEnv(t)
	path := filepath.Join(t.TempDir(), "new.yaml")
	code, env, out := run(t, "init",
		"--config-file", path,
		"--rpc-url", e.node.URL,
		"--plasma-vault-address", testVault.Hex(),
		"--private-key", testPrivateKey,
		"--name", "arb-usdc",
	)
	if code != 0 {
		t.Fatalf("init failed: %d\n%s", code, out)
	}
	var res struct {
		ChainID int64  `json:"chain_id"`
		Signer  string `json:"signer"`
	}
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatalf("decode init: %v", err)
	}
	if res.ChainID != id.ArbitrumChainID || !strings.EqualFold(res.Signer, e.alpha.Hex()) {
		t.Fatalf("unexpected init result %+v", res)
	}

	code, _, _ = run(t, "init", "--config-file", path, "--rpc-url", e.node.URL, "--network", "arbitrum",
		"--plasma-vault-address", testVault.Hex(), "--private-key", testPrivateKey, "--name", "arb-usdc")
	if code != 2 {
		t.Fatalf("duplicate name without --force should be a usage error, got %d", code)
	}

	code, _, out = run(t, "config", "show", "--config-file", path)
	if code != 0 || strings.Contains(out, testPrivateKey[2:]) || !strings.Contains(out, "ff80") {
		t.Fatalf("config show should mask the key: %d\n%s", code, out)
	}

	if code, _, _ := run(t, "encrypt", "--config-file", path); code != 2 {
		t.Fatalf("encrypt without password should be a usage error, got %d", code)
	}
	code, env, out = run(t, "encrypt", "--config-file", path, "--password", "hunter2")
	if code != 0 {
		t.Fatalf("encrypt failed: %d\n%s", code, out)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if strings.Contains(string(raw), testPrivateKey[2:]) {
		t.Fatal("private key left in plain text")
	}
	code, _, out = run(t, "config", "show", "--config-file", path)
	if code != 0 || !strings.Contains(out, "[ENCRYPTED]") {
		t.Fatalf("config show should flag encrypted keys: %d\n%s", code, out)
	}

	code, env, _ = run(t, "encrypt", "--config-file", path, "--password", "hunter2")
	if code != 0 || len(env.Warnings) == 0 {
		t.Fatalf("re-encrypt should warn, got %d %v", code, env.Warnings)
	}
}
