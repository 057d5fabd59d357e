package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PlatformMetrics records operational counters for the bidding core.
type PlatformMetrics struct {
	bidWrites        *prometheus.CounterVec
	recomputeSeconds *prometheus.HistogramVec
	webhookEvents    *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
}

// NewPlatformMetrics registers the platform metrics on the provided registerer.
func NewPlatformMetrics(reg prometheus.Registerer) *PlatformMetrics {
	if reg == nil {
		return &PlatformMetrics{}
	}
	bidWrites := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bid_writes_total",
		Help: "Bid create/update/delete operations by outcome.",
	}, []string{"op", "outcome"})
	recomputeSeconds := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "metric_recompute_seconds",
		Help:    "Duration of denormalized metric recomputations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"scope"})
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Payment provider webhook events by outcome.",
	}, []string{"outcome"})
	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "metric_cache_lookups_total",
		Help: "Metric cache lookups by result.",
	}, []string{"result"})
	reg.MustRegister(bidWrites, recomputeSeconds, webhookEvents, cacheLookups)
	return &PlatformMetrics{
		bidWrites:        bidWrites,
		recomputeSeconds: recomputeSeconds,
		webhookEvents:    webhookEvents,
		cacheLookups:     cacheLookups,
	}
}

// IncBidWrite increments the bid write counter.
func (p *PlatformMetrics) IncBidWrite(op, outcome string) {
	if p == nil || p.bidWrites == nil {
		return
	}
	p.bidWrites.WithLabelValues(normalizeLabel(op), normalizeLabel(outcome)).Inc()
}

// ObserveRecompute records the duration of a metric recomputation.
func (p *PlatformMetrics) ObserveRecompute(scope string, duration time.Duration) {
	if p == nil || p.recomputeSeconds == nil {
		return
	}
	p.recomputeSeconds.WithLabelValues(normalizeLabel(scope)).Observe(duration.Seconds())
}

// IncWebhookEvent increments the webhook outcome counter.
func (p *PlatformMetrics) IncWebhookEvent(outcome string) {
	if p == nil || p.webhookEvents == nil {
		return
	}
	p.webhookEvents.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncCacheLookup increments the cache lookup counter.
func (p *PlatformMetrics) IncCacheLookup(result string) {
	if p == nil || p.cacheLookups == nil {
		return
	}
	p.cacheLookups.WithLabelValues(normalizeLabel(result)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
