package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/rosters/internal/domain"
	"example.com/rosters/internal/events"
)

// Repository provides Postgres-backed persistence for the activity catalog and roster outbox events.
type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

// Seed inserts activities that do not exist yet. Existing rosters are left untouched.
func (r *Repository) Seed(ctx context.Context, activities []domain.Activity) (int, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for _, activity := range activities {
		if err := activity.Validate(); err != nil {
			return 0, err
		}
		tag, err := tx.Exec(ctx,
			`INSERT INTO activities (name, description, schedule, max_participants)
             VALUES ($1,$2,$3,$4) ON CONFLICT (name) DO NOTHING`,
			activity.Name.String(), activity.Description, activity.Schedule, activity.MaxParticipants)
		if err != nil {
			return 0, err
		}
		if tag.RowsAffected() == 0 {
			continue
		}
		for _, email := range activity.Participants {
			if _, err := tx.Exec(ctx, `INSERT INTO activity_participants (activity_name, email) VALUES ($1,$2)`, activity.Name.String(), email); err != nil {
				return 0, err
			}
		}
		inserted++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return inserted, nil
}

// List implements domain.CatalogStore.
func (r *Repository) List(ctx context.Context) ([]domain.Activity, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly, IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `SELECT name, description, schedule, max_participants, revision FROM activities ORDER BY position`)
	if err != nil {
		return nil, err
	}
	activities := make([]domain.Activity, 0)
	index := make(map[domain.ActivityName]int)
	for rows.Next() {
		var a domain.Activity
		var name string
		if err := rows.Scan(&name, &a.Description, &a.Schedule, &a.MaxParticipants, &a.Revision); err != nil {
			rows.Close()
			return nil, err
		}
		a.Name = domain.ActivityName(name)
		a.Participants = []string{}
		index[a.Name] = len(activities)
		activities = append(activities, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prows, err := tx.Query(ctx, `SELECT activity_name, email FROM activity_participants ORDER BY activity_name, seq`)
	if err != nil {
		return nil, err
	}
	defer prows.Close()
	for prows.Next() {
		var name, email string
		if err := prows.Scan(&name, &email); err != nil {
			return nil, err
		}
		if i, ok := index[domain.ActivityName(name)]; ok {
			activities[i].Participants = append(activities[i].Participants, email)
		}
	}
	if err := prows.Err(); err != nil {
		return nil, err
	}

	return activities, tx.Commit(ctx)
}

// Get implements domain.CatalogStore.
func (r *Repository) Get(ctx context.Context, name domain.ActivityName) (*domain.Activity, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly, IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	activity, err := loadActivity(ctx, tx, name, "")
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tx.Commit(ctx)
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return activity, nil
}

// Mutate implements domain.CatalogStore. The activity row is locked with
// FOR UPDATE so concurrent signups for the same activity serialise.
func (r *Repository) Mutate(ctx context.Context, name domain.ActivityName, fn domain.MutateFunc) (*domain.Activity, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	current, err := loadActivity(ctx, tx, name, "FOR UPDATE")
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrActivityNotFound, name)
		}
		return nil, err
	}

	draft := current.Clone()
	if err := fn(&draft); err != nil {
		return nil, err
	}
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	if err := tx.QueryRow(ctx, `UPDATE activities SET revision = revision + 1 WHERE name=$1 RETURNING revision`, name.String()).Scan(&draft.Revision); err != nil {
		return nil, err
	}

	added, removed := diffRoster(current.Participants, draft.Participants)
	now := r.now()
	for _, email := range removed {
		if _, err := tx.Exec(ctx, `DELETE FROM activity_participants WHERE activity_name=$1 AND email=$2`, name.String(), email); err != nil {
			return nil, err
		}
		if err := r.insertOutbox(ctx, tx, draft, events.TypeStudentWithdrawn, email, now); err != nil {
			return nil, err
		}
	}
	for _, email := range added {
		if _, err := tx.Exec(ctx, `INSERT INTO activity_participants (activity_name, email, enrolled_at) VALUES ($1,$2,$3)`, name.String(), email, now); err != nil {
			return nil, err
		}
		if err := r.insertOutbox(ctx, tx, draft, events.TypeStudentEnrolled, email, now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &draft, nil
}

func loadActivity(ctx context.Context, tx pgx.Tx, name domain.ActivityName, lock string) (*domain.Activity, error) {
	query := `SELECT name, description, schedule, max_participants, revision FROM activities WHERE name=$1 ` + lock

	var (
		a       domain.Activity
		rawName string
	)
	if err := tx.QueryRow(ctx, query, name.String()).Scan(&rawName, &a.Description, &a.Schedule, &a.MaxParticipants, &a.Revision); err != nil {
		return nil, err
	}
	a.Name = domain.ActivityName(rawName)

	rows, err := tx.Query(ctx, `SELECT email FROM activity_participants WHERE activity_name=$1 ORDER BY seq`, rawName)
	if err != nil {
		return nil, err
	}
	participants, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	a.Participants = participants
	return &a, nil
}

func diffRoster(before, after []string) (added, removed []string) {
	inBefore := make(map[string]struct{}, len(before))
	for _, email := range before {
		inBefore[email] = struct{}{}
	}
	inAfter := make(map[string]struct{}, len(after))
	for _, email := range after {
		inAfter[email] = struct{}{}
		if _, ok := inBefore[email]; !ok {
			added = append(added, email)
		}
	}
	for _, email := range before {
		if _, ok := inAfter[email]; !ok {
			removed = append(removed, email)
		}
	}
	return added, removed
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, activity domain.Activity, eventType, email string, at time.Time) error {
	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	payload := events.RosterChanged{
		EventID:      uuid.NewString(),
		Activity:     activity.Name.String(),
		Email:        email,
		Change:       meta.Change,
		Participants: len(activity.Participants),
		Capacity:     activity.MaxParticipants,
		Revision:     activity.Revision,
		OccurredAt:   at,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		"activity",
		activity.Name.String(),
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		activity.Name.String(),
		body,
		payload.EventID,
	)
	return err
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
	Change        string
}

var eventCatalog = map[string]EventMetadata{
	events.TypeStudentEnrolled: {
		Topic:         "roster_events",
		SchemaSubject: "roster_events-value",
		Change:        "enrolled",
	},
	events.TypeStudentWithdrawn: {
		Topic:         "roster_events",
		SchemaSubject: "roster_events-value",
		Change:        "withdrawn",
	},
}
