package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const jobName = "fogwatch"

var (
	ForecastAPICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fogwatch_forecast_api_calls_total",
			Help: "Total Open-Meteo forecast API calls",
		},
		[]string{"status"},
	)

	ForecastAPILatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fogwatch_forecast_api_latency_seconds",
			Help:    "Open-Meteo forecast API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fogwatch_batches_total",
			Help: "Station batches processed, by outcome",
		},
		[]string{"outcome"},
	)

	ObservationsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fogwatch_observations_written_total",
			Help: "Observation rows appended to the weather log",
		},
	)

	FogRiskStations = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fogwatch_fog_risk_stations",
			Help: "Stations at each fog risk level in the latest run",
		},
		[]string{"risk"},
	)

	LastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fogwatch_last_run_timestamp_seconds",
			Help: "Unix time of the latest completed run",
		},
	)
)

// Push sends the default registry to a Pushgateway. One-shot runs exit
// before a scraper could see them.
func Push(url string) error {
	if err := push.New(url, jobName).Gatherer(prometheus.DefaultGatherer).Push(); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
