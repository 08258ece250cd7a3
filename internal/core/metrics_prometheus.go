package core

import (
	"bloodsync/pkg/domain"
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsRecorder counts operations by outcome and observes their
// latency.
type PrometheusMetricsRecorder struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder registers the operation metrics with reg.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	r := &PrometheusMetricsRecorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bloodsync",
			Name:      "operations_total",
			Help:      "Service operations by outcome.",
		}, []string{"operation", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bloodsync",
			Name:      "operation_duration_seconds",
			Help:      "Service operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"operation"}),
	}
	for _, c := range []prometheus.Collector{r.operations, r.latency} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	r.operations.WithLabelValues(operation, status).Inc()
	r.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// InventoryCollector exports current stock per blood group at scrape time.
type InventoryCollector struct {
	store    PersistentStore
	units    *prometheus.Desc
	critical *prometheus.Desc
}

// NewInventoryCollector builds a collector reading from store.
func NewInventoryCollector(store PersistentStore) *InventoryCollector {
	return &InventoryCollector{
		store: store,
		units: prometheus.NewDesc("bloodsync_inventory_units",
			"Units in stock per blood group.", []string{"blood_group"}, nil),
		critical: prometheus.NewDesc("bloodsync_inventory_critical",
			"1 when the blood group is below the critical threshold.", []string{"blood_group"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *InventoryCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.units
	ch <- c.critical
}

// Collect implements prometheus.Collector.
func (c *InventoryCollector) Collect(ch chan<- prometheus.Metric) {
	_ = c.store.View(context.Background(), func(view TransactionView) error {
		for _, e := range fullInventory(view) {
			g := string(e.BloodGroup)
			ch <- prometheus.MustNewConstMetric(c.units, prometheus.GaugeValue, float64(e.Units), g)
			critical := 0.0
			if e.Units < domain.CriticalStockThreshold {
				critical = 1
			}
			ch <- prometheus.MustNewConstMetric(c.critical, prometheus.GaugeValue, critical, g)
		}
		return nil
	})
}
