package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	PollTicks       *prometheus.CounterVec // result label: ok|error
	FetchErrors     *prometheus.CounterVec // endpoint label: alerts|positions|tripUpdates
	PollDuration    prometheus.Histogram
	SnapshotRecords *prometheus.GaugeVec // kind label
	LastPollSuccess prometheus.Gauge     // unix seconds

	CTARequests *prometheus.CounterVec // result label: hit|miss|error

	Suggestions         *prometheus.CounterVec // source label: remote|fallback
	SuggestionFallbacks *prometheus.CounterVec // reason label
	SuggestionDuration  prometheus.Histogram

	ScheduleSaveErrors prometheus.Counter
	ScheduleLoadErrors prometheus.Counter
	ActiveSessions     prometheus.Gauge

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	PollInterval prometheus.Gauge // seconds
}

func NewCollector(pollInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		PollTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chicommute_feed_poll_ticks_total",
			Help: "Feed poll ticks by outcome.",
		}, []string{"result"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chicommute_feed_fetch_errors_total",
			Help: "Failed feed fetches by endpoint.",
		}, []string{"endpoint"}),
		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chicommute_feed_poll_duration_seconds",
			Help:    "Duration of a complete poll tick (all three fetches).",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		SnapshotRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chicommute_feed_snapshot_records",
			Help: "Records held in the current feed snapshot.",
		}, []string{"kind"}),
		LastPollSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chicommute_feed_last_success_timestamp_seconds",
			Help: "Unix time of the last successful poll.",
		}),
		CTARequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chicommute_cta_requests_total",
			Help: "CTA proxy lookups by cache result.",
		}, []string{"result"}),
		Suggestions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chicommute_suggestions_total",
			Help: "Commute suggestions served by source.",
		}, []string{"source"}),
		SuggestionFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chicommute_suggestion_fallbacks_total",
			Help: "Fallback generations by reason.",
		}, []string{"reason"}),
		SuggestionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chicommute_suggestion_duration_seconds",
			Help:    "Time to produce a suggestion, remote call included.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		}),
		ScheduleSaveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chicommute_schedule_save_errors_total",
			Help: "Failed schedule document writes.",
		}),
		ScheduleLoadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chicommute_schedule_load_errors_total",
			Help: "Failed schedule document reads.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chicommute_active_sessions",
			Help: "Sessions signed in through this process.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chicommute_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chicommute_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chicommute_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chicommute_nats_publish_duration_seconds",
			Help:    "Duration of NATS publish calls.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		PollInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chicommute_feed_poll_interval_seconds",
			Help: "Configured feed poll interval in seconds.",
		}),
	}

	reg.MustRegister(
		c.PollTicks, c.FetchErrors, c.PollDuration, c.SnapshotRecords, c.LastPollSuccess,
		c.CTARequests,
		c.Suggestions, c.SuggestionFallbacks, c.SuggestionDuration,
		c.ScheduleSaveErrors, c.ScheduleLoadErrors, c.ActiveSessions,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.PollInterval,
	)

	c.PollInterval.Set(pollInterval.Seconds())

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}
