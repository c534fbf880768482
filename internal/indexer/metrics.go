package indexer

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/yibigame/levelindexer/internal/domain"
	"github.com/yibigame/levelindexer/internal/projector"
	"github.com/yibigame/levelindexer/internal/syncer"
)

var (
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "levelindexer_events_total", Help: "Events applied by outcome"},
		[]string{"kind", "origin", "outcome"},
	)
	applyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "levelindexer_apply_duration_seconds", Help: "Event projection latency", Buckets: prometheus.DefBuckets},
		[]string{"kind"},
	)
	passesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "levelindexer_backfill_passes_total", Help: "Backfill passes by final status"},
		[]string{"status"},
	)
	batchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "levelindexer_backfill_batches_total", Help: "Backfill batches committed"},
	)
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "levelindexer_http_requests_total", Help: "HTTP requests"},
		[]string{"method", "path", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "levelindexer_http_request_duration_seconds", Help: "Request latency", Buckets: prometheus.DefBuckets},
		[]string{"method", "path"},
	)
)

// newRegistry builds the registry served on /metrics. The shared collectors
// may be registered with several registries; the status gauges are bound to
// one service.
func newRegistry(status func() Status) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		eventsTotal, applyDuration, passesTotal, batchesTotal,
		httpRequestsTotal, httpRequestDuration,
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: "levelindexer_realtime_connected", Help: "1 when every push subscription is live"},
			func() float64 { return boolGauge(status().Connected) },
		),
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: "levelindexer_backfill_running", Help: "1 while a backfill pass is in flight"},
			func() float64 { return boolGauge(status().Syncing) },
		),
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: "levelindexer_last_synced_block", Help: "Cursor committed by the last backfill batch, -1 if none"},
			func() float64 {
				if b := status().LastSyncedBlock; b != nil {
					return float64(*b)
				}
				return -1
			},
		),
	)
	return reg
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// instrumentedApplier records the outcome of every projection regardless of
// which path delivered the event.
type instrumentedApplier struct {
	next *projector.Projector
}

func (a instrumentedApplier) Apply(ctx context.Context, ev domain.Event) (projector.Outcome, error) {
	start := time.Now()
	outcome, err := a.next.Apply(ctx, ev)
	applyDuration.WithLabelValues(string(ev.Kind)).Observe(time.Since(start).Seconds())

	label := outcome.String()
	if err != nil && !projector.IsDataError(err) {
		label = "error"
	}
	eventsTotal.WithLabelValues(string(ev.Kind), string(ev.Meta.Origin), label).Inc()
	return outcome, err
}

func recordPass(res syncer.Result) {
	passesTotal.WithLabelValues(string(res.Status)).Inc()
	batchesTotal.Add(float64(res.Batches))
}
