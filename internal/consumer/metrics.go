package consumer

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	rosterEventsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roster_service",
		Subsystem: "consumer",
		Name:      "roster_events_total",
		Help:      "Roster events applied downstream, by activity and change.",
	}, []string{"activity", "change"})

	handlerRetryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roster_service",
		Subsystem: "consumer",
		Name:      "handler_retries_total",
		Help:      "Failed handler attempts that were scheduled for retry.",
	}, []string{"change"})

	droppedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roster_service",
		Subsystem: "consumer",
		Name:      "dropped_records_total",
		Help:      "Records committed without being applied because they could not be decoded.",
	}, []string{"topic", "reason"})

	rosterSizeGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "roster_service",
		Subsystem: "consumer",
		Name:      "roster_participants",
		Help:      "Roster size per activity as carried by the newest applied event.",
	}, []string{"activity"})

	eventLagHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "roster_service",
		Subsystem: "consumer",
		Name:      "event_lag_seconds",
		Help:      "Delay between a roster change being committed and being applied downstream.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
	})
)

func init() {
	prometheus.MustRegister(rosterEventsCounter, handlerRetryCounter, droppedCounter, rosterSizeGauge, eventLagHistogram)
}

// newestRevision keeps rosterSizeGauge from moving backwards on replayed events.
var newestRevision = struct {
	sync.Mutex
	byActivity map[string]int64
}{byActivity: make(map[string]int64)}

func recordProcessed(event RosterEvent) {
	rosterEventsCounter.WithLabelValues(event.Activity, event.Change).Inc()
	if !event.OccurredAt.IsZero() {
		eventLagHistogram.Observe(time.Since(event.OccurredAt).Seconds())
	}

	newestRevision.Lock()
	defer newestRevision.Unlock()
	if event.Revision < newestRevision.byActivity[event.Activity] {
		return
	}
	newestRevision.byActivity[event.Activity] = event.Revision
	rosterSizeGauge.WithLabelValues(event.Activity).Set(float64(event.Participants))
}

func recordHandlerRetry(event RosterEvent) {
	handlerRetryCounter.WithLabelValues(event.Change).Inc()
}

func recordDecodeError(topic string, err error) {
	reason := "unknown"
	var derr *decodeError
	if errors.As(err, &derr) {
		reason = derr.reason
	}
	droppedCounter.WithLabelValues(topic, reason).Inc()
}
