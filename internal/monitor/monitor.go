// Package monitor exports Plasma Vault state as Prometheus gauges.
package monitor

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ipor-labs/fusion/internal/logging"
)

// VaultReader is the subset of vault.PlasmaVault the monitor polls.
type VaultReader interface {
	Address() common.Address
	TotalAssets(ctx context.Context) (*big.Int, error)
	TotalSupply(ctx context.Context) (*big.Int, error)
	TotalAssetsInMarket(ctx context.Context, marketID *big.Int) (*big.Int, error)
}

// BalanceReader is the underlying asset token.
type BalanceReader interface {
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
}

// Config selects what the monitor reports and how often it polls.
type Config struct {
	ChainID       int64
	AssetDecimals int
	ShareDecimals int
	MarketIDs     []*big.Int
	Interval      time.Duration
}

// Monitor polls one vault and publishes its state on a private registry.
type Monitor struct {
	cfg    Config
	vault  VaultReader
	asset  BalanceReader
	labels prometheus.Labels
	log    zerolog.Logger

	registry     *prometheus.Registry
	totalAssets  *prometheus.GaugeVec
	totalSupply  *prometheus.GaugeVec
	marketAssets *prometheus.GaugeVec
	assetBalance *prometheus.GaugeVec
	lastPoll     *prometheus.GaugeVec
	pollErrors   *prometheus.CounterVec
}

// New registers the gauges. A zero Interval polls every 30 seconds.
func New(cfg Config, v VaultReader, asset BalanceReader) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	base := []string{"chain_id", "vault"}
	m := &Monitor{
		cfg:   cfg,
		vault: v,
		asset: asset,
		labels: prometheus.Labels{
			"chain_id": strconv.FormatInt(cfg.ChainID, 10),
			"vault":    v.Address().Hex(),
		},
		log:      logging.For("monitor"),
		registry: prometheus.NewRegistry(),
		totalAssets: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fusion", Subsystem: "vault", Name: "total_assets",
			Help: "Plasma Vault totalAssets in underlying asset units.",
		}, base),
		totalSupply: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fusion", Subsystem: "vault", Name: "total_supply",
			Help: "Plasma Vault share supply.",
		}, base),
		marketAssets: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fusion", Subsystem: "vault", Name: "market_assets",
			Help: "Assets the vault holds in one fuse market.",
		}, append(base, "market_id")),
		assetBalance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fusion", Subsystem: "vault", Name: "asset_balance",
			Help: "Idle underlying asset held by the vault.",
		}, base),
		lastPoll: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fusion", Subsystem: "monitor", Name: "last_poll_timestamp_seconds",
			Help: "Unix time of the last successful poll.",
		}, base),
		pollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fusion", Subsystem: "monitor", Name: "poll_errors_total",
			Help: "Reads that failed while polling.",
		}, base),
	}
	m.registry.MustRegister(m.totalAssets, m.totalSupply, m.marketAssets, m.assetBalance, m.lastPoll, m.pollErrors)
	return m
}

func (m *Monitor) Registry() *prometheus.Registry { return m.registry }

func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Poll reads every gauge once. Gauges whose read fails keep their previous
// value and the error counter goes up; the joined errors are returned.
func (m *Monitor) Poll(ctx context.Context) error {
	var errs []error
	set := func(g prometheus.Gauge, decimals int, read func() (*big.Int, error)) {
		v, err := read()
		if err != nil {
			m.pollErrors.With(m.labels).Inc()
			errs = append(errs, err)
			return
		}
		g.Set(scale(v, decimals))
	}

	set(m.totalAssets.With(m.labels), m.cfg.AssetDecimals, func() (*big.Int, error) { return m.vault.TotalAssets(ctx) })
	set(m.totalSupply.With(m.labels), m.cfg.ShareDecimals, func() (*big.Int, error) { return m.vault.TotalSupply(ctx) })
	if m.asset != nil {
		set(m.assetBalance.With(m.labels), m.cfg.AssetDecimals, func() (*big.Int, error) { return m.asset.BalanceOf(ctx, m.vault.Address()) })
	}
	for _, id := range m.cfg.MarketIDs {
		id := id
		g := m.marketAssets.With(prometheus.Labels{
			"chain_id":  m.labels["chain_id"],
			"vault":     m.labels["vault"],
			"market_id": id.String(),
		})
		set(g, m.cfg.AssetDecimals, func() (*big.Int, error) { return m.vault.TotalAssetsInMarket(ctx, id) })
	}

	if len(errs) == 0 {
		m.lastPoll.With(m.labels).SetToCurrentTime()
	}
	return errors.Join(errs...)
}

// Run polls immediately and then on every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.log.Info().Dur("interval", m.cfg.Interval).Str("vault", m.labels["vault"]).Msg("monitor started")
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			m.log.Info().Msg("monitor stopped")
			return
		case <-ticker.C:
			m.pollOnce(ctx)
		}
	}
}

func (m *Monitor) pollOnce(ctx context.Context) {
	if err := m.Poll(ctx); err != nil && ctx.Err() == nil {
		m.log.Warn().Err(err).Msg("poll failed")
	}
}

// Serve exposes /metrics on addr and runs the poll loop. It returns after ctx
// is cancelled and the server has shut down.
func Serve(ctx context.Context, addr string, m *Monitor) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		m.log.Info().Str("addr", addr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	go m.Run(ctx)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func scale(v *big.Int, decimals int) float64 {
	f := new(big.Float).SetInt(v)
	if decimals > 0 {
		f.Quo(f, new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)))
	}
	out, _ := f.Float64()
	return out
}
