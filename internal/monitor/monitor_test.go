package monitor

import (
	"context"
	"errors"
	"io"
	"math/big"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeVault struct {
	addr      common.Address
	assets    *big.Int
	supply    *big.Int
	markets   map[int64]*big.Int
	failTotal bool
}

func (f *fakeVault) Address() common.Address { return f.addr }

func (f *fakeVault) TotalAssets(context.Context) (*big.Int, error) {
	if f.failTotal {
		return nil, errors.New("rpc down")
	}
	return f.assets, nil
}

func (f *fakeVault) TotalSupply(context.Context) (*big.Int, error) { return f.supply, nil }

func (f *fakeVault) TotalAssetsInMarket(_ context.Context, id *big.Int) (*big.Int, error) {
	return f.markets[id.Int64()], nil
}

type fakeToken struct{ balance *big.Int }

func (f fakeToken) BalanceOf(context.Context, common.Address) (*big.Int, error) { return f.balance, nil }

func newFixture() (*fakeVault, *Monitor) {
	v := &fakeVault{
		addr:    common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		assets:  big.NewInt(2_500_000),
		supply:  big.NewInt(2_000_000_00),
		markets: map[int64]*big.Int{1: big.NewInt(1_000_000), 5: big.NewInt(500_000)},
	}
	m := New(Config{
		ChainID:       42161,
		AssetDecimals: 6,
		ShareDecimals: 8,
		MarketIDs:     []*big.Int{big.NewInt(1), big.NewInt(5)},
		Interval:      10 * time.Millisecond,
	}, v, fakeToken{balance: big.NewInt(250_000)})
	return v, m
}

func TestPollSetsGauges(t *testing.T) {
	_, m := newFixture()
	if err := m.Poll(context.Background()); err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if got := testutil.ToFloat64(m.totalAssets.With(m.labels)); got != 2.5 {
		t.Fatalf("total assets = %v", got)
	}
	if got := testutil.ToFloat64(m.totalSupply.With(m.labels)); got != 2 {
		t.Fatalf("total supply = %v", got)
	}
	if got := testutil.ToFloat64(m.assetBalance.With(m.labels)); got != 0.25 {
		t.Fatalf("asset balance = %v", got)
	}
	if n := testutil.CollectAndCount(m.marketAssets); n != 2 {
		t.Fatalf("expected 2 market series, got %d", n)
	}
}

func TestPollKeepsGaugeOnFailure(t *testing.T) {
	v, m := newFixture()
	_ = m.Poll(context.Background())
	v.failTotal = true
	v.assets = big.NewInt(9_000_000)
	if err := m.Poll(context.Background()); err == nil {
		t.Fatal("expected poll error")
	}
	if got := testutil.ToFloat64(m.totalAssets.With(m.labels)); got != 2.5 {
		t.Fatalf("expected previous value to stick, got %v", got)
	}
	if got := testutil.ToFloat64(m.pollErrors.With(m.labels)); got != 1 {
		t.Fatalf("expected one poll error, got %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	_, m := newFixture()
	_ = m.Poll(context.Background())
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		"fusion_vault_total_assets",
		`market_id="5"`,
		`chain_id="42161"`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	_, m := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if got := testutil.ToFloat64(m.lastPoll.With(m.labels)); got == 0 {
		t.Fatal("expected at least one successful poll")
	}
}
