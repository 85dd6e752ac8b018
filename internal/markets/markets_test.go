package markets

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/core/types"

	clierr "github.com/ipor-labs/fusion/internal/errors"
	"github.com/ipor-labs/fusion/internal/fuse"
	"github.com/ipor-labs/fusion/internal/id"
	"github.com/ipor-labs/fusion/internal/registry"
)

const arbitrum = id.ArbitrumChainID

func fuseAt(t *testing.T, chainID int64, name string) common.Address {
	t.Helper()
	addrs, err := registry.FuseAddresses(chainID, name)
	if err != nil || len(addrs) == 0 {
		t.Fatalf("no %s on chain %d: %v", name, chainID, err)
	}
	return addrs[0]
}

type morphoReader struct {
	position []byte
	market   []byte
}

func (r morphoReader) Address() common.Address { return common.Address{} }

func (r morphoReader) Read(_ context.Context, _ common.Address, data []byte) ([]byte, error) {
	switch {
	case bytes.Equal(data[:4], morphoBlueABI.Methods["position"].ID):
		return r.position, nil
	case bytes.Equal(data[:4], morphoBlueABI.Methods["market"].ID):
		return r.market, nil
	}
	return nil, errors.New("unexpected call")
}

func (morphoReader) Simulate(context.Context, common.Address, []byte) error { return nil }

func (morphoReader) Execute(context.Context, common.Address, []byte) (*types.Receipt, error) {
	return nil, errors.New("not implemented")
}

func (morphoReader) FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (morphoReader) BlockTimestamp(context.Context) (uint64, error) { return 0, nil }

func words(values ...int64) []byte {
	out := make([]byte, 0, 32*len(values))
	for _, v := range values {
		out = append(out, common.LeftPadBytes(big.NewInt(v).Bytes(), 32)...)
	}
	return out
}

func TestAaveV3MarketMatchesVaultFuses(t *testing.T) {
	supplyFuse := fuseAt(t, arbitrum, registry.AaveV3SupplyFuse)
	market := NewAaveV3Market(arbitrum, []common.Address{common.HexToAddress("0x01"), supplyFuse})
	if !market.Supported() {
		t.Fatal("expected market to be supported")
	}
	usdc := registry.MustAssetAddress(arbitrum, "USDC")
	action, err := market.Supply(usdc, big.NewInt(1000), 0)
	if err != nil {
		t.Fatalf("Supply failed: %v", err)
	}
	if action.Fuse != supplyFuse {
		t.Fatalf("expected fuse %s, got %s", supplyFuse, action.Fuse)
	}
	_, err = market.Borrow(usdc, big.NewInt(1))
	if !errors.Is(err, ErrUnsupportedFuse) || !clierr.Is(err, clierr.CodeUnsupported) {
		t.Fatalf("expected unsupported borrow fuse, got %v", err)
	}
}

func TestMarketWithoutFusesIsUnsupported(t *testing.T) {
	markets := []interface{ Supported() bool }{
		NewAaveV3Market(arbitrum, nil),
		NewCompoundV3Market(arbitrum, nil),
		NewUniswapV3Market(arbitrum, nil),
		NewRamsesV2Market(arbitrum, nil),
		NewMoonwellMarket(arbitrum, nil),
		NewMorphoMarket(arbitrum, nil, nil),
		NewGearboxV3Market(arbitrum, nil, nil),
		NewFluidInstadappMarket(arbitrum, nil, nil),
		NewUniversalMarket(arbitrum, nil),
		NewErc4626Market(arbitrum, nil),
	}
	for i, m := range markets {
		if m.Supported() {
			t.Fatalf("market %d should not be supported without fuses", i)
		}
	}
	if _, err := NewCompoundV3Market(arbitrum, nil).Claim(); !errors.Is(err, ErrUnsupportedFuse) {
		t.Fatalf("expected unsupported claim, got %v", err)
	}
}

func TestFusesFromAnotherChainDoNotMatch(t *testing.T) {
	baseSwapper := fuseAt(t, id.BaseChainID, registry.UniversalTokenSwapperFuse)
	if NewUniversalMarket(arbitrum, []common.Address{baseSwapper}).Supported() {
		t.Fatal("base fuse should not match on arbitrum")
	}
	if !NewUniversalMarket(id.BaseChainID, []common.Address{baseSwapper}).Supported() {
		t.Fatal("base fuse should match on base")
	}
}

func TestGearboxSupplyAndStake(t *testing.T) {
	fuses := []common.Address{
		fuseAt(t, arbitrum, registry.Erc4626SupplyFuse),
		fuseAt(t, arbitrum, registry.GearboxV3FarmSupplyFuse),
	}
	market := NewGearboxV3Market(arbitrum, nil, fuses)
	actions, err := market.SupplyAndStake(big.NewInt(100))
	if err != nil {
		t.Fatalf("SupplyAndStake failed: %v", err)
	}
	if len(actions) != 2 || actions[0].Fuse != fuses[0] || actions[1].Fuse != fuses[1] {
		t.Fatalf("unexpected actions %+v", actions)
	}
	if !bytes.Equal(actions[0].Data[:4], fuse.Selector("enter((address,uint256))")) ||
		!bytes.Equal(actions[1].Data[:4], fuse.Selector("enter((uint256,address))")) {
		t.Fatal("unexpected selectors for supply and stake")
	}
	back, err := market.UnstakeAndWithdraw(big.NewInt(100))
	if err != nil {
		t.Fatalf("UnstakeAndWithdraw failed: %v", err)
	}
	if back[0].Fuse != fuses[1] || back[1].Fuse != fuses[0] {
		t.Fatalf("expected unstake before withdraw, got %+v", back)
	}
	if market.Pool().Farm != registry.MustAssetAddress(arbitrum, "farmdUSDCV3") {
		t.Fatalf("unexpected farm pool %s", market.Pool().Farm)
	}
	if _, err := market.Claim(); !errors.Is(err, ErrUnsupportedFuse) {
		t.Fatalf("expected unsupported claim, got %v", err)
	}
}

func TestFluidPoolUnknownOnBase(t *testing.T) {
	market := NewFluidInstadappMarket(id.BaseChainID, nil, nil)
	if _, err := market.SupplyAndStake(big.NewInt(1)); !clierr.Is(err, clierr.CodeUnsupported) {
		t.Fatalf("expected unsupported pool, got %v", err)
	}
}

func TestMorphoPosition(t *testing.T) {
	reader := morphoReader{
		position: words(50, 0, 7),
		market:   words(2000, 100, 0, 0, 0, 0),
	}
	market := NewMorphoMarket(id.EthereumChainID, reader, []common.Address{fuseAt(t, id.EthereumChainID, registry.MorphoSupplyFuse)})
	pos, err := market.Position(context.Background(), common.Hash{1}, common.HexToAddress("0xAA"))
	if err != nil {
		t.Fatalf("Position failed: %v", err)
	}
	if pos.SupplyAssets.Int64() != 1000 || pos.Collateral.Int64() != 7 {
		t.Fatalf("unexpected position %+v", pos)
	}
	if _, err := market.FlashLoan(big.NewInt(1), common.HexToAddress("0x01"), nil); !errors.Is(err, ErrUnsupportedFuse) {
		t.Fatalf("expected unsupported flash loan on mainnet, got %v", err)
	}
}

func TestMorphoClaimFuseSources(t *testing.T) {
	distributor := common.HexToAddress("0x330eefa8a787552DC5cAd3C3cA644844B1E61Ddb")
	token := common.HexToAddress("0x58D97B57BB95320F9a05dC918Aef65434969c2B2")
	claimable, _ := new(big.Int).SetString("4670003019411856706671", 10)
	proof := []string{
		"0xbcc36476d3972818e27089a34d24c81d4cd58b3947d7049cf6590217c44ed65a",
		"0xb36697e61d8849901a805bfba05bf99141c73dcabe2b3eb7ad0cd7f3c1f71a15",
	}
	known := fuseAt(t, id.EthereumChainID, registry.MorphoClaimFuse)
	explicit := common.HexToAddress("0x00000000000000000000000000000000000000c7")

	cases := []struct {
		name    string
		chainID int64
		opts    []MorphoOption
		want    common.Address
	}{
		{"explicit on arbitrum", arbitrum, []MorphoOption{WithClaimFuse(explicit)}, explicit},
		{"explicit on base", id.BaseChainID, []MorphoOption{WithClaimFuse(explicit)}, explicit},
		{"rewards manager fuse", id.EthereumChainID, []MorphoOption{WithRewardsFuses([]common.Address{explicit, known})}, known},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			market := NewMorphoMarket(tc.chainID, nil, nil, tc.opts...)
			if got, ok := market.ClaimFuse(); !ok || got != tc.want {
				t.Fatalf("ClaimFuse = %s, %v", got.Hex(), ok)
			}
			action, err := market.ClaimRewards(distributor, token, claimable, proof)
			if err != nil {
				t.Fatalf("ClaimRewards failed: %v", err)
			}
			if action.Fuse != tc.want {
				t.Fatalf("claim routed to %s", action.Fuse.Hex())
			}
			assertMorphoClaim(t, action.Data, distributor, token, claimable, len(proof))
		})
	}

	// The vault's own fuse list never carries the claim fuse.
	if _, err := NewMorphoMarket(id.EthereumChainID, nil, nil).ClaimRewards(distributor, token, claimable, proof); !clierr.Is(err, clierr.CodeUnsupported) {
		t.Fatalf("expected unsupported without a claim fuse, got %v", err)
	}
}

func assertMorphoClaim(t *testing.T, data []byte, distributor, token common.Address, claimable *big.Int, proofLen int) {
	t.Helper()
	if !bytes.Equal(data[:4], crypto.Keccak256([]byte("claim(address,address,uint256,bytes32[])"))[:4]) {
		t.Fatalf("unexpected selector %x", data[:4])
	}
	args := abi.Arguments{}
	for _, typ := range []string{"address", "address", "uint256", "bytes32[]"} {
		ty, err := abi.NewType(typ, "", nil)
		if err != nil {
			t.Fatalf("abi type %s: %v", typ, err)
		}
		args = append(args, abi.Argument{Type: ty})
	}
	values, err := args.Unpack(data[4:])
	if err != nil {
		t.Fatalf("unpack claim: %v", err)
	}
	if values[0].(common.Address) != distributor || values[1].(common.Address) != token {
		t.Fatalf("unexpected addresses %v %v", values[0], values[1])
	}
	if values[2].(*big.Int).Cmp(claimable) != 0 {
		t.Fatalf("unexpected claimable %v", values[2])
	}
	if got := values[3].([][32]byte); len(got) != proofLen {
		t.Fatalf("unexpected proof length %d", len(got))
	}
}

func TestRamsesMarketClaimAndCollect(t *testing.T) {
	fuses := []common.Address{
		fuseAt(t, arbitrum, registry.RamsesV2CollectFuse),
		fuseAt(t, arbitrum, registry.RamsesClaimFuse),
	}
	market := NewRamsesV2Market(arbitrum, fuses)
	collect, err := market.Collect([]*big.Int{big.NewInt(3)})
	if err != nil || collect.Fuse != fuses[0] {
		t.Fatalf("Collect = %+v, %v", collect, err)
	}
	claim, err := market.Claim([]*big.Int{big.NewInt(3)}, [][]common.Address{{registry.MustAssetAddress(arbitrum, "RAM")}})
	if err != nil || claim.Fuse != fuses[1] {
		t.Fatalf("Claim = %+v, %v", claim, err)
	}
	if _, err := market.NewPosition(fuse.NewPositionParams{}, big.NewInt(0)); !errors.Is(err, ErrUnsupportedFuse) {
		t.Fatalf("expected unsupported new position, got %v", err)
	}
}
