// Package metrics holds the Prometheus collectors of the ledger processes.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	eventsPublished *prometheus.CounterVec
	eventsFailed    *prometheus.CounterVec
	eventsHandled   *prometheus.CounterVec

	budgetAlerts      prometheus.Counter
	recurringExecuted prometheus.Counter
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a private registry.
func New(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests by route template, method and status",
			},
			[]string{"route", "method", "status"},
		),
		httpLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by route template",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
			},
			[]string{"route", "method"},
		),
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stats_cache_hits_total",
				Help:      "Total number of statistics cache hits per report",
			},
			[]string{"report"},
		),
		cacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stats_cache_misses_total",
				Help:      "Total number of statistics cache misses per report",
			},
			[]string{"report"},
		),
		eventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_events_published_total",
				Help:      "Total number of ledger events published per kind",
			},
			[]string{"kind"},
		),
		eventsFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_events_failed_total",
				Help:      "Total number of ledger events that could not be published per kind",
			},
			[]string{"kind"},
		),
		eventsHandled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_events_handled_total",
				Help:      "Total number of consumed ledger events per outcome",
			},
			[]string{"outcome"},
		),
		budgetAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "budget_alerts_total",
			Help:      "Total number of budget threshold alerts fired",
		}),
		recurringExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recurring_transactions_created_total",
			Help:      "Total number of transactions created from recurring templates",
		}),
	}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.httpRequests, c.httpLatency,
		c.cacheHits, c.cacheMisses,
		c.eventsPublished, c.eventsFailed, c.eventsHandled,
		c.budgetAlerts, c.recurringExecuted,
	)
	return c
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveRequest records one served request. route is the matched template,
// never the raw path, to keep label cardinality bounded.
func (c *Collector) ObserveRequest(route, method string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	c.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(route, method).Observe(d.Seconds())
}

// ObserveCache implements stats.CacheObserver.
func (c *Collector) ObserveCache(report string, hit bool) {
	if hit {
		c.cacheHits.WithLabelValues(report).Inc()
		return
	}
	c.cacheMisses.WithLabelValues(report).Inc()
}

// ObservePublish implements amqp.PublishObserver.
func (c *Collector) ObservePublish(kind string, err error) {
	if err != nil {
		c.eventsFailed.WithLabelValues(kind).Inc()
		return
	}
	c.eventsPublished.WithLabelValues(kind).Inc()
}

// ObserveEvent records the outcome of handling a consumed event.
func (c *Collector) ObserveEvent(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.eventsHandled.WithLabelValues(outcome).Inc()
}

func (c *Collector) BudgetAlertFired() { c.budgetAlerts.Inc() }

func (c *Collector) RecurringCreated(n int) { c.recurringExecuted.Add(float64(n)) }
