package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/fixtrack/internal/config"
	"github.com/smallbiznis/fixtrack/internal/observability/metrics"
	"go.uber.org/fx"
)

// Module wires the engine metrics instruments. When metrics are
// disabled the provider yields a nil *Metrics, which every instrument
// method tolerates.
var Module = fx.Module("observability",
	fx.Provide(provideMetrics),
)

func provideMetrics(cfg config.Config) *metrics.Metrics {
	if !cfg.MetricsEnabled {
		return nil
	}
	return metrics.New(prometheus.DefaultRegisterer, metrics.Config{
		ServiceName: cfg.AppName,
		Environment: cfg.Environment,
	})
}
