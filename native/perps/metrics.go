package perps

import (
	"math"
	"math/big"
	"sync"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

// PerpMetrics is a sync.Once-guarded singleton registry, following the
// observability/metrics package's Potso()/Payoutd() convention. Every
// method is nil-receiver safe so an Engine built without metrics never
// crashes on an Observe*/Inc* call.
type PerpMetrics struct {
	opens  *prometheus.CounterVec
	closes *prometheus.CounterVec
	feeBps prometheus.Histogram

	utilization        *prometheus.GaugeVec
	cumulativeInterest *prometheus.GaugeVec
}

var (
	perpOnce     sync.Once
	perpRegistry *PerpMetrics
)

// Metrics returns the package-level PerpMetrics singleton, constructing and
// registering it on first use.
func Metrics() *PerpMetrics {
	perpOnce.Do(func() {
		perpRegistry = &PerpMetrics{
			opens: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "perps_positions_opened_total",
				Help: "Count of opened positions by pool and side.",
			}, []string{"pool", "side"}),
			closes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "perps_positions_closed_total",
				Help: "Count of closed positions by pool and side.",
			}, []string{"pool", "side"}),
			feeBps: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "perps_fee_usd",
				Help:    "Distribution of entry/exit fee USD amounts charged.",
				Buckets: prometheus.DefBuckets,
			}),
			utilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "perps_custody_utilization",
				Help: "Fraction of custody reserves currently locked.",
			}, []string{"pool", "custody"}),
			cumulativeInterest: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "perps_custody_cumulative_interest",
				Help: "Current cumulative interest accumulator per custody.",
			}, []string{"pool", "custody"}),
		}
		prometheus.MustRegister(
			perpRegistry.opens,
			perpRegistry.closes,
			perpRegistry.feeBps,
			perpRegistry.utilization,
			perpRegistry.cumulativeInterest,
		)
	})
	return perpRegistry
}

func usdToFloat(usd *uint256.Int) float64 {
	if usd == nil {
		return 0
	}
	f := new(big.Float).SetInt(usd.ToBig())
	divisor := new(big.Float).SetFloat64(math.Pow10(UsdDecimals))
	scaled := new(big.Float).Quo(f, divisor)
	out, _ := scaled.Float64()
	return out
}

// ObserveOpen records an opened position and its entry fee.
func (m *PerpMetrics) ObserveOpen(pool string, side Side, feeUsd *uint256.Int) {
	if m == nil {
		return
	}
	m.opens.WithLabelValues(pool, side.String()).Inc()
	m.feeBps.Observe(usdToFloat(feeUsd))
}

// ObserveClose records a closed position and its exit fee.
func (m *PerpMetrics) ObserveClose(pool string, side Side, feeUsd *uint256.Int) {
	if m == nil {
		return
	}
	m.closes.WithLabelValues(pool, side.String()).Inc()
	m.feeBps.Observe(usdToFloat(feeUsd))
}

// SetUtilization records a custody's current locked/owned ratio.
func (m *PerpMetrics) SetUtilization(pool, custody string, utilization float64) {
	if m == nil {
		return
	}
	m.utilization.WithLabelValues(pool, custody).Set(utilization)
}

// SetCumulativeInterest records a custody's current cumulative-interest
// accumulator value.
func (m *PerpMetrics) SetCumulativeInterest(pool, custody string, value *uint256.Int) {
	if m == nil {
		return
	}
	f := new(big.Float).SetInt(value.ToBig())
	out, _ := f.Float64()
	m.cumulativeInterest.WithLabelValues(pool, custody).Set(out)
}
