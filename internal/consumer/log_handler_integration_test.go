//go:build integration

package consumer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/rosters/internal/events"
)

func TestEventLogHandlerIgnoresReplayedEvents(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	handler := NewEventLogHandler(pool)

	payload := json.RawMessage(`{"event_id":"e1","activity":"Chess Club","email":"a@x.edu","change":"enrolled","participants":3,"capacity":12,"revision":3,"occurred_at":"2025-09-05T15:30:00Z"}`)
	event := RosterEvent{
		RosterChanged: events.RosterChanged{
			EventID:      "e1",
			Activity:     "Chess Club",
			Email:        "a@x.edu",
			Change:       "enrolled",
			Participants: 3,
			Capacity:     12,
			Revision:     3,
			OccurredAt:   time.Date(2025, time.September, 5, 15, 30, 0, 0, time.UTC),
		},
		Type:          events.TypeStudentEnrolled,
		SchemaSubject: "roster_events-value",
		SchemaID:      42,
		Position:      Position{Topic: "roster_events", Partition: 0, Offset: 7},
		Raw:           payload,
	}
	require.NoError(t, handler.HandleRoster(ctx, event))

	replayed := event
	replayed.Position.Offset = 19
	require.NoError(t, handler.HandleRoster(ctx, replayed))

	var (
		count    int
		activity string
		change   string
		offset   int64
	)
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*), MAX(activity_name), MAX(change), MAX(record_offset) FROM roster_event_log WHERE event_id = $1`,
		"e1").Scan(&count, &activity, &change, &offset))
	require.Equal(t, 1, count)
	require.Equal(t, "Chess Club", activity)
	require.Equal(t, "enrolled", change)
	require.Equal(t, int64(7), offset)
}

func setupPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("activities"),
		postgrescontainer.WithUsername("school"),
		postgrescontainer.WithPassword("school"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	var pool *pgxpool.Pool
	require.Eventually(t, func() bool {
		p, err := pgxpool.New(ctx, connStr)
		if err != nil {
			return false
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return false
		}
		pool = p
		return true
	}, 30*time.Second, time.Second)
	t.Cleanup(pool.Close)

	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	migration, err := os.ReadFile(filepath.Join(filepath.Dir(file), "../../db/postgres/migrations/0001_init.up.sql"))
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(migration))
	require.NoError(t, err)
	return pool
}
