// Package metrics holds the service's Prometheus collectors. They live in a
// standalone package so services and HTTP middleware can share them without cycles.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "carbonledger_http_requests_total",
		Help: "HTTP requests processed, by method, route pattern and status",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "carbonledger_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// AuthOutcomes counts authorization decisions. method: api_key|session; result: ok|unauthorized|forbidden|error|rate_limited.
	AuthOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "carbonledger_auth_outcomes_total",
		Help: "Authorization decisions by path and result",
	}, []string{"method", "result"})

	EntriesIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "carbonledger_entries_ingested_total",
		Help: "Activity entries persisted",
	})

	EntriesRetired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "carbonledger_entries_retired_total",
		Help: "Activity entries deleted",
	})
)

// Register registers all collectors on reg (or the default registerer if nil).
// Already-registered collectors are ignored so Register is safe to call twice.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AuthOutcomes,
		EntriesIngested,
		EntriesRetired,
	} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}

// Handler returns the /metrics handler for the given gatherer (or the default if nil).
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
