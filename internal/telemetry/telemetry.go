// Package telemetry provides observability with Prometheus metrics and
// structured logging.
package telemetry

import (
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the policy intelligence engine.
type Metrics struct {
	// Similarity layer
	SimilarityQueries *prometheus.CounterVec   // queries by tenant
	SimilarityLatency *prometheus.HistogramVec // query latency by tenant

	// Auto-approval
	Evaluations   *prometheus.CounterVec // evaluations by tenant, outcome
	AutoApprovals *prometheus.CounterVec // approvals by tenant

	// Batch detectors
	DetectorRuns     *prometheus.CounterVec // runs by detector
	DetectorFindings *prometheus.CounterVec // findings by detector, severity
	DetectorErrors   *prometheus.CounterVec // failed runs by detector

	// Consolidation / resolution
	PoliciesConsolidated *prometheus.CounterVec // removed policies by tenant
	ConflictResolutions  *prometheus.CounterVec // resolutions by strategy

	// Explanation generator fallbacks
	ExplanationFallbacks prometheus.Counter
}

// NewMetrics creates and registers all metrics. A nil registry uses the
// default registerer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		SimilarityQueries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "policyscope_similarity_queries_total",
				Help: "Total similarity queries",
			},
			[]string{"tenant_id"},
		),

		SimilarityLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "policyscope_similarity_query_seconds",
				Help:    "Similarity query latency in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"tenant_id"},
		),

		Evaluations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "policyscope_evaluations_total",
				Help: "Total auto-approval evaluations",
			},
			[]string{"tenant_id", "outcome"},
		),

		AutoApprovals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "policyscope_auto_approvals_total",
				Help: "Total auto-approved policies",
			},
			[]string{"tenant_id"},
		),

		DetectorRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "policyscope_detector_runs_total",
				Help: "Total batch detector runs",
			},
			[]string{"detector"},
		),

		DetectorFindings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "policyscope_detector_findings_total",
				Help: "Total findings emitted by batch detectors",
			},
			[]string{"detector", "severity"},
		),

		DetectorErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "policyscope_detector_errors_total",
				Help: "Total failed batch detector runs",
			},
			[]string{"detector"},
		),

		PoliciesConsolidated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "policyscope_policies_consolidated_total",
				Help: "Total policies deactivated by consolidation",
			},
			[]string{"tenant_id"},
		),

		ConflictResolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "policyscope_conflict_resolutions_total",
				Help: "Total conflict resolutions",
			},
			[]string{"strategy"},
		),

		ExplanationFallbacks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "policyscope_explanation_fallbacks_total",
				Help: "Explanation generator failures recovered with the template fallback",
			},
		),
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetupLogging configures the default slog logger. Format "json" emits JSON,
// anything else the text handler.
func SetupLogging(level, format string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
