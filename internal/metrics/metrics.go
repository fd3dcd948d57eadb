// Package metrics exposes the Prometheus collectors of the service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts served requests by route pattern and status code.
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "urbantex_http_requests_total",
		Help: "HTTP requests by route and status",
	}, []string{"route", "status"})
	// HTTPRequestDuration observes request latency by route pattern.
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "urbantex_http_request_duration_seconds",
		Help:    "HTTP request duration by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	// FitDuration observes single model fits; see ObserveFit.
	FitDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "urbantex_cluster_fit_duration_seconds",
		Help:    "Duration of a single clustering fit by model family",
		Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 30},
	}, []string{"family"})
	// RecommendationsTotal counts finished recommender runs.
	RecommendationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "urbantex_recommendations_total",
		Help: "Completed cluster-count recommendations",
	})
	// ClassificationsTotal counts finished classifier runs.
	ClassificationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "urbantex_classifications_total",
		Help: "Completed classification runs",
	})
	// ActiveSessions tracks the sessions held by the session store.
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "urbantex_active_sessions",
		Help: "Sessions currently held in memory",
	})
)

func init() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(FitDuration)
	prometheus.MustRegister(RecommendationsTotal)
	prometheus.MustRegister(ClassificationsTotal)
	prometheus.MustRegister(ActiveSessions)
}

// ObserveFit records how long one model fit took.
func ObserveFit(family string, start time.Time) {
	FitDuration.WithLabelValues(family).Observe(time.Since(start).Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
