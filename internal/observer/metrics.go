package observer

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Scans by outcome: success, degraded, failed
	ScansTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "microscan_scans_total",
		Help: "Total number of scans by outcome",
	}, []string{"outcome"})

	// Stage degradations by reason code
	DegradationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "microscan_degradations_total",
		Help: "Number of scans that lost a signal, by reason",
	}, []string{"reason"})

	// Distribution of fused risk scores
	RiskScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "microscan_risk_score",
		Help:    "Distribution of fused risk scores",
		Buckets: []float64{15, 30, 60, 90, 100},
	})

	// End-to-end scan latency
	ScanLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "microscan_scan_latency_seconds",
		Help:    "Latency of a full scan",
		Buckets: prometheus.DefBuckets,
	})

	// Qualitative assessor latency, including failed calls
	AssessorLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "microscan_assessor_latency_seconds",
		Help:    "Latency of qualitative assessor calls",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
	})
)

// PoolCounters is a snapshot of the feature extractor's worker pool
type PoolCounters struct {
	TotalJobs     int64
	CompletedJobs int64
	ActiveWorkers int64
}

var poolSource atomic.Pointer[func() PoolCounters]

// SetPoolStatsSource sets where the extractor pool collectors read from. The
// latest call wins; nil detaches the source.
func SetPoolStatsSource(source func() PoolCounters) {
	if source == nil {
		poolSource.Store(nil)
		return
	}
	poolSource.Store(&source)
}

func poolCounters() PoolCounters {
	if source := poolSource.Load(); source != nil {
		return (*source)()
	}
	return PoolCounters{}
}

var (
	// Strip jobs submitted to the extractor pool
	ExtractorJobsTotal = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "microscan_extractor_jobs_total",
		Help: "Strip jobs submitted to the feature extractor worker pool",
	}, func() float64 { return float64(poolCounters().TotalJobs) })

	// Extractor pool workers currently running a job
	ExtractorActiveWorkers = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "microscan_extractor_active_workers",
		Help: "Feature extractor workers currently running a job",
	}, func() float64 { return float64(poolCounters().ActiveWorkers) })
)

var registerOnce sync.Once

// RegisterMetrics registers the collectors with the default registry. Safe to call more than once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			ScansTotal,
			DegradationsTotal,
			RiskScore,
			ScanLatency,
			AssessorLatency,
			ExtractorJobsTotal,
			ExtractorActiveWorkers,
		)
	})
}
