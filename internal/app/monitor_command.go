package app

import (
	"context"
	"math/big"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	clierr "github.com/ipor-labs/fusion/internal/errors"
	"github.com/ipor-labs/fusion/internal/monitor"
)

type metricSample struct {
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels"`
	Value  float64           `json:"value"`
}

func (s *runtimeState) newMonitorCommand() *cobra.Command {
	var listen, interval, marketIDsArg string
	var once bool
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Export vault totals as Prometheus metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			every, err := parsePositiveDuration("--interval", interval)
			if err != nil {
				return err
			}
			marketIDs, err := parseMarketIDs(splitCSV(marketIDsArg))
			if err != nil {
				return err
			}
			t, err := s.resolveVault()
			if err != nil {
				return err
			}
			setupCtx, cancel := s.commandContext()
			defer cancel()
			sys, err := s.openSystem(setupCtx, t, nil)
			if err != nil {
				return err
			}
			defer sys.Close()

			assetDecimals, err := sys.Asset().Decimals(setupCtx)
			if err != nil {
				return clierr.Wrap(clierr.CodeUnavailable, "read asset decimals", err)
			}
			shareDecimals, err := sys.PlasmaVault().Decimals(setupCtx)
			if err != nil {
				return clierr.Wrap(clierr.CodeUnavailable, "read share decimals", err)
			}
			m := monitor.New(monitor.Config{
				ChainID:       t.chain.EVMChainID,
				AssetDecimals: int(assetDecimals),
				ShareDecimals: int(shareDecimals),
				MarketIDs:     marketIDs,
				Interval:      every,
			}, sys.PlasmaVault(), sys.Asset())

			path := trimRootPath(cmd.CommandPath())
			if once {
				var warnings []string
				if err := m.Poll(setupCtx); err != nil {
					warnings = append(warnings, "some reads failed: "+err.Error())
				}
				samples, err := gatherSamples(m)
				if err != nil {
					return clierr.Wrap(clierr.CodeInternal, "gather metrics", err)
				}
				return s.emitSuccess(path, samples, warnings, cacheMetaBypass())
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := monitor.Serve(ctx, listen, m); err != nil {
				return clierr.Wrap(clierr.CodeUnavailable, "serve metrics", err)
			}
			return s.emitSuccess(path, map[string]any{"listen": listen, "stopped_at": s.runner.now().UTC().Format(time.RFC3339)}, nil, cacheMetaBypass())
		},
	}
	cmd.Flags().StringVar(&listen, "listen", ":9464", "Metrics listen address")
	cmd.Flags().StringVar(&interval, "interval", "30s", "Poll interval")
	cmd.Flags().StringVar(&marketIDsArg, "market-ids", "", "Fuse market ids to export (comma-separated)")
	cmd.Flags().BoolVar(&once, "once", false, "Poll once and print the values instead of serving")
	return cmd
}

func parseMarketIDs(inputs []string) ([]*big.Int, error) {
	out := make([]*big.Int, 0, len(inputs))
	for _, in := range inputs {
		v, ok := new(big.Int).SetString(in, 10)
		if !ok || v.Sign() <= 0 {
			return nil, clierr.New(clierr.CodeUsage, "--market-ids must be positive integers")
		}
		out = append(out, v)
	}
	return out, nil
}

// gatherSamples flattens the gauges and counters of m's registry.
func gatherSamples(m *monitor.Monitor) ([]metricSample, error) {
	families, err := m.Registry().Gather()
	if err != nil {
		return nil, err
	}
	out := make([]metricSample, 0, len(families))
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			sample := metricSample{Name: family.GetName(), Labels: map[string]string{}}
			for _, lp := range metric.GetLabel() {
				sample.Labels[lp.GetName()] = lp.GetValue()
			}
			switch {
			case metric.GetGauge() != nil:
				sample.Value = metric.GetGauge().GetValue()
			case metric.GetCounter() != nil:
				sample.Value = metric.GetCounter().GetValue()
			}
			out = append(out, sample)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
