// Package metrics exposes Prometheus collectors for the catalog crawler.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch outcome labels.
const (
	OutcomeSuccess  = "success"
	OutcomeNotFound = "not_found"
	OutcomeBlocked  = "blocked"
	OutcomeError    = "error"
)

var (
	fetchesTotal         *prometheus.CounterVec
	challengesTotal      prometheus.Counter
	productsParsedTotal  prometheus.Counter
	parseFailuresTotal   prometheus.Counter
	productsUpsertsTotal prometheus.Counter
	persistFailuresTotal prometheus.Counter
	inFlightFetches      prometheus.Gauge

	once sync.Once
)

// Init registers the collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_fetches_total",
				Help: "Total fetch attempts resolved, labeled by outcome.",
			},
			[]string{"outcome"},
		)
		challengesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_challenges_total",
				Help: "Total anti-bot challenges that paused the run.",
			},
		)
		productsParsedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_products_parsed_total",
				Help: "Total raw payloads normalized into product records.",
			},
		)
		parseFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_parse_failures_total",
				Help: "Total payloads dropped due to missing or malformed fields.",
			},
		)
		productsUpsertsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_product_upserts_total",
				Help: "Total product records written to the store.",
			},
		)
		persistFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_persist_failures_total",
				Help: "Total product writes rolled back and skipped.",
			},
		)
		inFlightFetches = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "catalog_inflight_fetches",
				Help: "Requests currently holding a fetch permit.",
			},
		)
	})
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one resolved fetch attempt.
func ObserveFetch(outcome string) {
	if fetchesTotal == nil {
		return
	}
	fetchesTotal.WithLabelValues(outcome).Inc()
}

// IncChallenge records a challenge traversal.
func IncChallenge() {
	if challengesTotal == nil {
		return
	}
	challengesTotal.Inc()
}

// ObserveParse records a parse result.
func ObserveParse(ok bool) {
	if productsParsedTotal == nil {
		return
	}
	if ok {
		productsParsedTotal.Inc()
	} else {
		parseFailuresTotal.Inc()
	}
}

// ObservePersist records a store write result.
func ObservePersist(ok bool) {
	if productsUpsertsTotal == nil {
		return
	}
	if ok {
		productsUpsertsTotal.Inc()
	} else {
		persistFailuresTotal.Inc()
	}
}

// IncInFlight marks a permit acquired.
func IncInFlight() {
	if inFlightFetches == nil {
		return
	}
	inFlightFetches.Inc()
}

// DecInFlight marks a permit released.
func DecInFlight() {
	if inFlightFetches == nil {
		return
	}
	inFlightFetches.Dec()
}
