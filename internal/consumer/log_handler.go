package consumer

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventLogHandler appends roster events to roster_event_log, the audit trail
// of every enrollment and withdrawal.
type EventLogHandler struct {
	pool *pgxpool.Pool
}

// NewEventLogHandler constructs an EventLogHandler.
func NewEventLogHandler(pool *pgxpool.Pool) *EventLogHandler {
	return &EventLogHandler{pool: pool}
}

// HandleRoster implements RosterHandler. An event already logged under the
// same EventID, such as a DLQ replay, is ignored.
func (h *EventLogHandler) HandleRoster(ctx context.Context, event RosterEvent) error {
	_, err := h.pool.Exec(ctx,
		`INSERT INTO roster_event_log (event_id, event_type, activity_name, email, change, participants, capacity, revision, occurred_at,
                                       schema_id, schema_subject, topic, partition, record_offset, payload)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
         ON CONFLICT (event_id) DO NOTHING`,
		event.EventID,
		event.Type,
		event.Activity,
		event.Email,
		event.Change,
		event.Participants,
		event.Capacity,
		event.Revision,
		event.OccurredAt,
		event.SchemaID,
		event.SchemaSubject,
		event.Position.Topic,
		event.Position.Partition,
		event.Position.Offset,
		[]byte(event.Raw),
	)
	return err
}
