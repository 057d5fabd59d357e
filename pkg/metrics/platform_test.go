package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPlatformMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPlatformMetrics(reg)

	m.IncBidWrite("create", "ok")
	m.IncBidWrite("create", "ok")
	m.IncWebhookEvent("duplicate")
	m.IncCacheLookup("hit")
	m.ObserveRecompute("party_media", 25*time.Millisecond)

	if got := testutil.ToFloat64(m.bidWrites.WithLabelValues("create", "ok")); got != 2 {
		t.Fatalf("bid_writes_total = %v", got)
	}
	if got := testutil.ToFloat64(m.webhookEvents.WithLabelValues("duplicate")); got != 1 {
		t.Fatalf("webhook_events_total = %v", got)
	}
	if got := testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")); got != 1 {
		t.Fatalf("metric_cache_lookups_total = %v", got)
	}
}

func TestNilRegistererIsSafe(t *testing.T) {
	m := NewPlatformMetrics(nil)
	m.IncBidWrite("create", "ok")
	m.IncWebhookEvent("")
	m.ObserveRecompute("", time.Second)

	var empty *PlatformMetrics
	empty.IncBidWrite("create", "ok")
}
