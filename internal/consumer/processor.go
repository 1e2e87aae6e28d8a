// Package consumer folds roster events read back from Kafka into downstream state.
package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/rosters/internal/events"
)

// Reader exposes the subset of kafka.Reader used by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// RosterHandler applies one decoded roster event. Handlers must be idempotent
// per EventID because failed events are retried and DLQ replays re-publish them.
type RosterHandler interface {
	HandleRoster(context.Context, RosterEvent) error
}

// Position locates a record in Kafka.
type Position struct {
	Topic     string
	Partition int
	Offset    int64
}

// RosterEvent is a roster change decoded from the outbox wire format.
type RosterEvent struct {
	events.RosterChanged

	Type          string
	SchemaSubject string
	SchemaID      int
	Position      Position
	PublishedAt   time.Time
	Raw           json.RawMessage
}

// Enrolled reports whether the event adds the student to the roster.
func (e RosterEvent) Enrolled() bool {
	return e.Change == changeByType[events.TypeStudentEnrolled]
}

var changeByType = map[string]string{
	events.TypeStudentEnrolled:  "enrolled",
	events.TypeStudentWithdrawn: "withdrawn",
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithRetryBackoff sets the delay before the first handler retry and the cap
// the doubling delay grows to.
func WithRetryBackoff(initial, max time.Duration) Option {
	return func(p *Processor) {
		if initial > 0 {
			p.retryInitial = initial
		}
		if max >= p.retryInitial {
			p.retryMax = max
		}
	}
}

// Processor reads roster events and hands them to a RosterHandler in offset order.
type Processor struct {
	reader       Reader
	handler      RosterHandler
	logger       *log.Logger
	retryInitial time.Duration
	retryMax     time.Duration
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler RosterHandler, opts ...Option) *Processor {
	p := &Processor{
		reader:       reader,
		handler:      handler,
		logger:       log.New(log.Writer(), "[consumer] ", log.LstdFlags|log.Lshortfile),
		retryInitial: 250 * time.Millisecond,
		retryMax:     30 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes records until the context is cancelled. A record is
// committed once its handler succeeds; a failing handler is retried on the
// same record, so later offsets are never committed past it. Records that
// cannot be decoded are committed and counted.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.logger.Printf("fetch error: %v", err)
			continue
		}

		event, err := decodeRosterEvent(msg)
		if err != nil {
			p.logger.Printf("dropping record (topic=%s, partition=%d, offset=%d): %v", msg.Topic, msg.Partition, msg.Offset, err)
			recordDecodeError(msg.Topic, err)
			p.commit(ctx, msg)
			continue
		}

		if err := p.handleWithRetry(ctx, event); err != nil {
			return err
		}
		if p.commit(ctx, msg) {
			recordProcessed(event)
		}
	}
}

func (p *Processor) handleWithRetry(ctx context.Context, event RosterEvent) error {
	delay := p.retryInitial
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := p.handler.HandleRoster(ctx, event)
		if err == nil {
			if attempt > 1 {
				p.logger.Printf("roster event %s for %s handled after %d attempts", event.EventID, event.Activity, attempt)
			}
			return nil
		}

		p.logger.Printf("handler error (activity=%s, change=%s, offset=%d, attempt=%d): %v", event.Activity, event.Change, event.Position.Offset, attempt, err)
		recordHandlerRetry(event)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if delay *= 2; delay > p.retryMax {
			delay = p.retryMax
		}
	}
}

func (p *Processor) commit(ctx context.Context, msg kafka.Message) bool {
	if err := p.reader.CommitMessages(ctx, msg); err != nil {
		p.logger.Printf("commit error (topic=%s, offset=%d): %v", msg.Topic, msg.Offset, err)
		return false
	}
	return true
}

// decodeError classifies why a record was dropped.
type decodeError struct {
	reason string
	err    error
}

func (e *decodeError) Error() string { return e.reason + ": " + e.err.Error() }

func (e *decodeError) Unwrap() error { return e.err }

func rejectRecord(reason, format string, args ...any) error {
	return &decodeError{reason: reason, err: fmt.Errorf(format, args...)}
}

func decodeRosterEvent(msg kafka.Message) (RosterEvent, error) {
	if len(msg.Value) < 5 || msg.Value[0] != 0 {
		return RosterEvent{}, rejectRecord("frame", "invalid wire frame (length %d)", len(msg.Value))
	}

	eventType := headerValue(msg, "event_type")
	change, known := changeByType[eventType]
	if !known {
		return RosterEvent{}, rejectRecord("event_type", "unsupported event_type %q", eventType)
	}

	raw := json.RawMessage(append([]byte(nil), msg.Value[5:]...))
	var payload events.RosterChanged
	if err := json.Unmarshal(raw, &payload); err != nil {
		return RosterEvent{}, &decodeError{reason: "payload", err: err}
	}

	switch {
	case payload.EventID == "" || payload.Activity == "" || payload.Email == "":
		return RosterEvent{}, rejectRecord("payload", "event_id, activity and email are required")
	case payload.Change != change:
		return RosterEvent{}, rejectRecord("mismatch", "change %q does not match event_type %s", payload.Change, eventType)
	case payload.Participants < 0 || payload.Participants > payload.Capacity:
		return RosterEvent{}, rejectRecord("mismatch", "%d participants outside capacity %d", payload.Participants, payload.Capacity)
	}

	return RosterEvent{
		RosterChanged: payload,
		Type:          eventType,
		SchemaSubject: headerValue(msg, "schema_subject"),
		SchemaID:      int(binary.BigEndian.Uint32(msg.Value[1:5])),
		Position:      Position{Topic: msg.Topic, Partition: msg.Partition, Offset: msg.Offset},
		PublishedAt:   msg.Time,
		Raw:           raw,
	}, nil
}

func headerValue(msg kafka.Message, key string) string {
	for _, header := range msg.Headers {
		if header.Key == key {
			return string(header.Value)
		}
	}
	return ""
}
