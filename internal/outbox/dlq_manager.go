package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/rosters/internal/events"
)

const quarantineRetryLimit = "retry limit reached"

// DLQStats summarises one DLQManager pass.
type DLQStats struct {
	Requeued    int
	Rescheduled int
	Quarantined int
}

func (s DLQStats) total() int { return s.Requeued + s.Rescheduled + s.Quarantined }

// DLQManager replays roster events parked in outbox_dlq and quarantines those
// that keep failing or can no longer be decoded.
type DLQManager struct {
	pool       *pgxpool.Pool
	maxRetries int
	backoff    Backoff
	logger     *log.Logger
}

// NewDLQManager constructs a DLQManager. An event is quarantined once it has
// been replayed maxRetries times.
func NewDLQManager(pool *pgxpool.Pool, maxRetries int, backoff Backoff) *DLQManager {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &DLQManager{
		pool:       pool,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     log.New(log.Writer(), "[dlq] ", log.LstdFlags|log.Lshortfile),
	}
}

// RunOnce claims up to batchSize entries whose replay is due and handles them
// in one transaction. Entries locked by another manager are skipped.
func (m *DLQManager) RunOnce(ctx context.Context, batchSize int) (DLQStats, error) {
	var stats DLQStats

	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return stats, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		`SELECT dlq_id, event_id, event_type, topic, payload, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count
           FROM outbox_dlq
          WHERE quarantined_at IS NULL AND (next_retry_at IS NULL OR next_retry_at <= NOW())
          ORDER BY dlq_id
          LIMIT $1
          FOR UPDATE SKIP LOCKED`, batchSize)
	if err != nil {
		return stats, err
	}
	entries, err := pgx.CollectRows(rows, pgx.RowToStructByPos[dlqEntry])
	if err != nil {
		return stats, err
	}

	for _, entry := range entries {
		if err := m.handleEntry(ctx, tx, entry, &stats); err != nil {
			return DLQStats{}, fmt.Errorf("dlq entry %d: %w", entry.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return DLQStats{}, err
	}

	updateBacklogGauge(ctx, m.pool)
	return stats, nil
}

func (m *DLQManager) handleEntry(ctx context.Context, tx pgx.Tx, entry dlqEntry, stats *DLQStats) error {
	event, err := entry.rosterEvent()
	if err != nil {
		stats.Quarantined++
		recordDLQQuarantined(entry, "invalid_payload")
		return quarantine(ctx, tx, entry, err.Error())
	}
	if entry.RetryCount >= m.maxRetries {
		stats.Quarantined++
		recordDLQQuarantined(entry, "retry_limit")
		m.logger.Printf("quarantined %s for %s after %d replays", entry.EventType, event.Activity, entry.RetryCount)
		return quarantine(ctx, tx, entry, quarantineRetryLimit)
	}

	savepoint, err := tx.Begin(ctx)
	if err != nil {
		return err
	}
	if requeueErr := requeue(ctx, savepoint, entry, event); requeueErr != nil {
		if err := savepoint.Rollback(ctx); err != nil {
			return err
		}
		stats.Rescheduled++
		recordDLQRescheduled(entry)
		_, err := tx.Exec(ctx,
			`UPDATE outbox_dlq
                SET retry_count = retry_count + 1,
                    last_attempt_at = NOW(),
                    next_retry_at = NOW() + $1::interval,
                    reason = $2
              WHERE dlq_id = $3`,
			m.backoff.Delay(entry.RetryCount+2), requeueErr.Error(), entry.ID)
		return err
	}
	if err := savepoint.Commit(ctx); err != nil {
		return err
	}

	stats.Requeued++
	recordDLQRequeued(entry, event)
	_, err = tx.Exec(ctx, `DELETE FROM outbox_dlq WHERE dlq_id = $1`, entry.ID)
	return err
}

// requeue makes the dispatcher pick the event up again. The original outbox
// row is reopened when it still exists so the event keeps its dedupe key.
func requeue(ctx context.Context, tx pgx.Tx, entry dlqEntry, event events.RosterChanged) error {
	tag, err := tx.Exec(ctx,
		`UPDATE outbox SET published_at = NULL, claimed_at = NULL, replay_count = $2 WHERE event_id = $1`,
		entry.EventID, entry.RetryCount+1)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key, replay_count)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
         ON CONFLICT (dedupe_key) DO NOTHING`,
		entry.AggregateType, entry.AggregateID, entry.EventType, entry.Topic, entry.SchemaSubject, entry.PartitionKey,
		entry.Payload, event.EventID, entry.RetryCount+1)
	return err
}

func quarantine(ctx context.Context, tx pgx.Tx, entry dlqEntry, reason string) error {
	_, err := tx.Exec(ctx,
		`UPDATE outbox_dlq SET quarantined_at = NOW(), quarantine_reason = $1, last_attempt_at = NOW() WHERE dlq_id = $2`,
		reason, entry.ID)
	return err
}

// dlqEntry is an outbox_dlq row selected for replay. Field order matches the
// RunOnce select list.
type dlqEntry struct {
	ID            int64
	EventID       int64
	EventType     string
	Topic         string
	Payload       []byte
	AggregateType string
	AggregateID   string
	SchemaSubject string
	PartitionKey  string
	RetryCount    int
}

var errUnreplayable = errors.New("dlq entry cannot be replayed")

func (e dlqEntry) rosterEvent() (events.RosterChanged, error) {
	if _, ok := schemaCatalog[e.EventType]; !ok {
		return events.RosterChanged{}, fmt.Errorf("%w: unknown event_type %s", errUnreplayable, e.EventType)
	}
	if e.SchemaSubject == "" {
		return events.RosterChanged{}, fmt.Errorf("%w: missing schema_subject", errUnreplayable)
	}
	var event events.RosterChanged
	if err := json.Unmarshal(e.Payload, &event); err != nil {
		return events.RosterChanged{}, fmt.Errorf("%w: %v", errUnreplayable, err)
	}
	if event.EventID == "" || event.Activity == "" || event.Email == "" {
		return events.RosterChanged{}, fmt.Errorf("%w: payload lacks event_id, activity or email", errUnreplayable)
	}
	return event, nil
}

// ReplayLoop runs RunOnce every interval until ctx is cancelled.
func (m *DLQManager) ReplayLoop(ctx context.Context, interval time.Duration, batchSize int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		stats, err := m.RunOnce(ctx, batchSize)
		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			m.logger.Printf("replay pass failed: %v", err)
		case stats.total() > 0:
			m.logger.Printf("replay pass: requeued=%d rescheduled=%d quarantined=%d", stats.Requeued, stats.Rescheduled, stats.Quarantined)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
