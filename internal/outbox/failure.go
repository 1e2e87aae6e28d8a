package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Backoff spaces out DLQ replays: Base for the first replay, doubling per
// attempt up to Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff is used when no replay backoff is configured.
var DefaultBackoff = Backoff{Base: 30 * time.Second, Max: time.Hour}

// Delay returns the wait before replay attempt n (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 {
		b = DefaultBackoff
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := b.Base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if b.Max > 0 && delay >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && delay > b.Max {
		return b.Max
	}
	return delay
}

// DLQWriter parks undeliverable roster events in outbox_dlq and schedules
// their replay.
type DLQWriter struct {
	pool    *pgxpool.Pool
	backoff Backoff
}

// NewDLQWriter initialises a writer backed by the provided connection pool.
func NewDLQWriter(pool *pgxpool.Pool, backoff Backoff) *DLQWriter {
	return &DLQWriter{pool: pool, backoff: backoff}
}

// Write records a failed outbox message. retry_count carries the number of
// replays the event has already had.
func (w *DLQWriter) Write(ctx context.Context, msg Message, reason string) error {
	_, err := w.pool.Exec(ctx,
		`INSERT INTO outbox_dlq (event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key,
                                 retry_count, next_retry_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, NOW() + $11::interval)`,
		msg.EventID, msg.EventType, msg.Topic, msg.Payload, reason, msg.AggregateType, msg.AggregateID, msg.SchemaSubject, msg.PartitionKey,
		msg.ReplayCount, w.backoff.Delay(msg.ReplayCount+1),
	)
	return err
}
