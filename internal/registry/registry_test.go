package registry

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ipor-labs/fusion/internal/errors"
)

func TestABIConstantsParse(t *testing.T) {
	abis := []string{
		ERC20ABI,
		PlasmaVaultABI,
		AccessManagerABI,
		WithdrawManagerABI,
		RewardsClaimManagerABI,
		PriceOracleMiddlewareABI,
		MarketIDFuseABI,
		MorphoBlueABI,
		FusionErrorsABI,
	}
	for _, raw := range abis {
		if _, err := abi.JSON(strings.NewReader(raw)); err != nil {
			t.Fatalf("failed to parse abi json: %v", err)
		}
	}
}

func TestPlasmaVaultExecuteSelector(t *testing.T) {
	method, ok := MustABI(PlasmaVaultABI).Methods["execute"]
	if !ok {
		t.Fatal("execute missing from plasma vault abi")
	}
	if method.Sig != "execute((address,bytes)[])" {
		t.Fatalf("unexpected signature %s", method.Sig)
	}
}

func TestFuseAddresses(t *testing.T) {
	addrs, err := FuseAddresses(42161, AaveV3SupplyFuse)
	if err != nil {
		t.Fatalf("FuseAddresses failed: %v", err)
	}
	if len(addrs) != 2 {
		t.Fatalf("expected two aave supply fuses, got %d", len(addrs))
	}
	if addrs[0] != common.HexToAddress("0x9339acd4e73c8a11109f77bc87221bdfc7b7a4fc") {
		t.Fatalf("unexpected first address %s", addrs[0].Hex())
	}

	none, err := FuseAddresses(8453, AaveV3SupplyFuse)
	if err != nil || len(none) != 0 {
		t.Fatalf("expected empty list for unmapped fuse, got %v %v", none, err)
	}

	if _, err := FuseAddresses(10, AaveV3SupplyFuse); !clierr.Is(err, clierr.CodeUnsupported) {
		t.Fatalf("expected unsupported chain error, got %v", err)
	}
}

func TestFuseNameReverseLookup(t *testing.T) {
	name, ok := FuseName(42161, common.HexToAddress("0x84C5aB008C66d664681698A9E4536D942B916F89"))
	if !ok || name != UniswapV3SwapFuse {
		t.Fatalf("unexpected reverse lookup %q %v", name, ok)
	}
	if _, ok := FuseName(1, common.HexToAddress("0x84C5aB008C66d664681698A9E4536D942B916F89")); ok {
		t.Fatal("did not expect arbitrum fuse on mainnet")
	}
	if !IsFuse(8453, MoonwellSupplyFuse, common.HexToAddress("0xc4a62bd86db7dd61a875611b2220f9ab6e14ffbf")) {
		t.Fatal("expected moonwell supply fuse on base")
	}
}

func TestDefaultRPCURL(t *testing.T) {
	for _, chainID := range []int64{1, 8453, 42161} {
		if rpc, ok := DefaultRPCURL(chainID); !ok || rpc == "" {
			t.Fatalf("expected rpc default for chain %d", chainID)
		}
	}
	got, err := ResolveRPCURL(8453, "", " http://127.0.0.1:8545 ")
	if err != nil || got != "http://127.0.0.1:8545" {
		t.Fatalf("unexpected resolve result %q %v", got, err)
	}
	if _, err := ResolveRPCURL(10); err == nil {
		t.Fatal("expected missing rpc error")
	}
}

func TestExplorerAndAssets(t *testing.T) {
	if u, ok := ExplorerAPIURL(42161); !ok || !strings.Contains(u, "arbiscan") {
		t.Fatalf("unexpected explorer url %q", u)
	}
	if !IsAllowedAPIURL("http://127.0.0.1:9999/api") || IsAllowedAPIURL("http://example.com/api") {
		t.Fatal("unexpected api url policy")
	}
	ext, err := ExternalSystemsFor(42161)
	if err != nil {
		t.Fatalf("ExternalSystemsFor failed: %v", err)
	}
	if ext.USDC != common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831") || ext.USDT == (common.Address{}) {
		t.Fatalf("unexpected external systems %+v", ext)
	}
	if _, err := AssetAddress(8453, "RAM"); err == nil {
		t.Fatal("expected RAM to be unmapped on base")
	}
}
