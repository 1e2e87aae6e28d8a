package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/rosters/internal/events"
)

type topicWrite struct {
	topic    string
	messages []kafka.Message
}

type stubProducer struct {
	mu     sync.Mutex
	writes []topicWrite
	err    error
}

func (p *stubProducer) WriteMessages(_ context.Context, topic string, msgs ...kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.writes = append(p.writes, topicWrite{topic: topic, messages: msgs})
	return nil
}

type stubRegistry struct {
	mu    sync.Mutex
	id    int
	calls []string
	err   error
}

func (r *stubRegistry) EnsureSchema(_ context.Context, subject, _ string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, subject)
	return r.id, r.err
}

func rosterMessage(t *testing.T, id int64, eventType, email string) Message {
	t.Helper()
	payload, err := json.Marshal(events.RosterChanged{
		EventID:      "evt",
		Activity:     "Chess Club",
		Email:        email,
		Change:       "enrolled",
		Participants: 3,
		Capacity:     12,
		OccurredAt:   time.Date(2025, time.September, 5, 15, 30, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return Message{
		EventID:       id,
		AggregateType: "activity",
		AggregateID:   "Chess Club",
		EventType:     eventType,
		Topic:         "roster_events",
		SchemaSubject: "roster_events-value",
		PartitionKey:  "Chess Club",
		Payload:       payload,
	}
}

func TestDeliverFramesAndBatchesByTopic(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 42}
	d := NewDispatcher(nil, producer, registry, time.Second, 10)

	msgs := []Message{
		rosterMessage(t, 1, events.TypeStudentEnrolled, "a@x.edu"),
		rosterMessage(t, 2, events.TypeStudentWithdrawn, "b@x.edu"),
	}
	require.NoError(t, d.deliver(context.Background(), msgs))

	require.Len(t, producer.writes, 1)
	require.Equal(t, "roster_events", producer.writes[0].topic)
	require.Len(t, producer.writes[0].messages, 2)
	require.Len(t, registry.calls, 1, "schema id should be cached per subject")

	record := producer.writes[0].messages[0]
	require.Equal(t, "Chess Club", string(record.Key))
	require.Equal(t, byte(0), record.Value[0])
	require.Equal(t, uint32(42), binary.BigEndian.Uint32(record.Value[1:5]))
	require.JSONEq(t, string(msgs[0].Payload), string(record.Value[5:]))
	require.Equal(t, "event_type", record.Headers[0].Key)
	require.Equal(t, events.TypeStudentEnrolled, string(record.Headers[0].Value))
}

func TestDeliverRejectsUnknownEventType(t *testing.T) {
	d := NewDispatcher(nil, &stubProducer{}, &stubRegistry{id: 1}, time.Second, 10)

	err := d.deliver(context.Background(), []Message{rosterMessage(t, 1, "roster.renamed", "a@x.edu")})
	require.ErrorContains(t, err, "roster.renamed")
}

func TestDeliverPropagatesProducerFailure(t *testing.T) {
	d := NewDispatcher(nil, &stubProducer{err: errors.New("broker down")}, &stubRegistry{id: 1}, time.Second, 10)

	err := d.deliver(context.Background(), []Message{rosterMessage(t, 1, events.TypeStudentEnrolled, "a@x.edu")})
	require.EqualError(t, err, "broker down")
}

func TestSchemaRegistryRegistersUnknownSubject(t *testing.T) {
	var registered bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/subjects/roster_events-value/versions/latest":
			if !registered {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_, _ = w.Write([]byte(`{"id": 7}`))
		case r.Method == http.MethodPost && r.URL.Path == "/subjects/roster_events-value/versions":
			var body map[string]string
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["schemaType"] != "JSON" {
				w.WriteHeader(http.StatusUnprocessableEntity)
				return
			}
			registered = true
			_, _ = w.Write([]byte(`{"id": 7}`))
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer srv.Close()

	client := NewSchemaRegistryClient(srv.URL + "/")

	id, err := client.EnsureSchema(context.Background(), "roster_events-value", rosterChangedSchema)
	require.NoError(t, err)
	require.Equal(t, 7, id)
	require.True(t, registered)

	id, err = client.EnsureSchema(context.Background(), "roster_events-value", rosterChangedSchema)
	require.NoError(t, err)
	require.Equal(t, 7, id)
}

func TestSchemaRegistrySurfacesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("registry unavailable"))
	}))
	defer srv.Close()

	_, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "roster_events-value", rosterChangedSchema)
	require.ErrorContains(t, err, "registry unavailable")
}
