package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"example.com/rosters/internal/events"
)

var (
	dlqRequeuedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roster_service",
		Subsystem: "dlq",
		Name:      "requeued_total",
		Help:      "Parked roster events handed back to the dispatcher, by activity and event type.",
	}, []string{"activity", "event_type"})

	dlqRescheduledCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roster_service",
		Subsystem: "dlq",
		Name:      "rescheduled_total",
		Help:      "Replays that could not be requeued and were pushed back.",
	}, []string{"event_type"})

	dlqQuarantinedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roster_service",
		Subsystem: "dlq",
		Name:      "quarantined_total",
		Help:      "Roster events given up on, by event type and reason.",
	}, []string{"event_type", "reason"})

	dlqBacklogGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "roster_service",
		Subsystem: "dlq",
		Name:      "entries",
		Help:      "Rows in outbox_dlq by state.",
	}, []string{"state"})
)

func init() {
	prometheus.MustRegister(dlqRequeuedCounter, dlqRescheduledCounter, dlqQuarantinedCounter, dlqBacklogGauge)
}

func recordDLQRequeued(entry dlqEntry, event events.RosterChanged) {
	dlqRequeuedCounter.WithLabelValues(event.Activity, entry.EventType).Inc()
}

func recordDLQRescheduled(entry dlqEntry) {
	dlqRescheduledCounter.WithLabelValues(entry.EventType).Inc()
}

func recordDLQQuarantined(entry dlqEntry, reason string) {
	dlqQuarantinedCounter.WithLabelValues(entry.EventType, reason).Inc()
}

func updateBacklogGauge(ctx context.Context, pool *pgxpool.Pool) {
	var pending, quarantined int
	err := pool.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE quarantined_at IS NULL), COUNT(*) FILTER (WHERE quarantined_at IS NOT NULL) FROM outbox_dlq`,
	).Scan(&pending, &quarantined)
	if err != nil {
		return
	}
	dlqBacklogGauge.WithLabelValues("pending").Set(float64(pending))
	dlqBacklogGauge.WithLabelValues("quarantined").Set(float64(quarantined))
}
