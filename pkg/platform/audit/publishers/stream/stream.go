// Package stream publishes audit events to a Kafka topic. Events are keyed by
// subject so one address's history stays ordered within a partition. While the
// broker is unreachable events are written straight to the store the stream is
// materialized into; stores deduplicate by event ID, so a record that was both
// produced and written directly is kept once.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "mintledger/pkg/platform/audit"
	"mintledger/pkg/platform/circuit"
)

const (
	defaultProbeTimeout = 500 * time.Millisecond

	// CategoryHeader carries the event category so consumers can route
	// without decoding the value.
	CategoryHeader = "audit-category"
)

// Producer is the subset of *kgo.Client used for publishing.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Store implements audit.Store on top of a Kafka producer. Reads are served by
// the materialized store.
type Store struct {
	producer     Producer
	topic        string
	store        audit.Store
	breaker      *circuit.Breaker
	sampler      *Sampler
	metrics      *Metrics
	logger       *slog.Logger
	probeTimeout time.Duration
}

type Option func(*Store)

func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Store) {
		s.breaker = b
	}
}

func WithSampler(sampler *Sampler) Option {
	return func(s *Store) {
		s.sampler = sampler
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithProbeTimeout bounds produce attempts made while the breaker is open.
func WithProbeTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.probeTimeout = d
		}
	}
}

// New creates a stream store producing to topic. store receives events while
// the stream is unavailable and answers reads.
func New(producer Producer, topic string, store audit.Store, opts ...Option) *Store {
	s := &Store{
		producer:     producer,
		topic:        topic,
		store:        store,
		breaker:      circuit.New("audit-stream"),
		logger:       slog.Default(),
		probeTimeout: defaultProbeTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	event.Normalize(time.Now())
	if s.sampler != nil && !s.sampler.Keep(event) {
		s.metrics.incSampled()
		return nil
	}
	record, err := Encode(event)
	if err != nil {
		return err
	}
	record.Topic = s.topic

	if s.breaker.IsOpen() {
		if err := s.fallback(ctx, event); err != nil {
			return err
		}
		probeCtx, cancel := context.WithTimeout(ctx, s.probeTimeout)
		defer cancel()
		s.record(ctx, s.producer.ProduceSync(probeCtx, record).FirstErr())
		return nil
	}

	produceErr := s.producer.ProduceSync(ctx, record).FirstErr()
	s.record(ctx, produceErr)
	if produceErr == nil {
		return nil
	}
	s.logger.WarnContext(ctx, "audit stream produce failed, writing to store",
		"event_id", event.ID.String(),
		"action", event.Action,
		"error", produceErr,
	)
	return s.fallback(ctx, event)
}

func (s *Store) ListBySubject(ctx context.Context, subject string) ([]audit.Event, error) {
	return s.store.ListBySubject(ctx, subject)
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	return s.store.ListRecent(ctx, limit)
}

// Breaker exposes the breaker for health reporting.
func (s *Store) Breaker() *circuit.Breaker {
	return s.breaker
}

func (s *Store) record(ctx context.Context, produceErr error) {
	if produceErr == nil {
		s.metrics.incPublished()
		if _, change := s.breaker.RecordSuccess(); change.Closed {
			s.metrics.setBreakerOpen(false)
			s.logger.InfoContext(ctx, "audit stream recovered", "breaker", s.breaker.Name())
		}
		return
	}
	s.metrics.incFailures()
	if _, change := s.breaker.RecordFailure(); change.Opened {
		s.metrics.setBreakerOpen(true)
		s.logger.ErrorContext(ctx, "audit stream unavailable, breaker opened",
			"breaker", s.breaker.Name(),
			"error", produceErr,
		)
	}
}

func (s *Store) fallback(ctx context.Context, event audit.Event) error {
	if err := s.store.Append(ctx, event); err != nil {
		return fmt.Errorf("append audit event to fallback store: %w", err)
	}
	s.metrics.incFallback()
	return nil
}

// Encode builds the stream record for event.
func Encode(event audit.Event) (*kgo.Record, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode audit event: %w", err)
	}
	return &kgo.Record{
		Key:   []byte(event.Subject),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: CategoryHeader, Value: []byte(event.Category)},
		},
	}, nil
}

// Decode parses a record value produced by Encode.
func Decode(value []byte) (audit.Event, error) {
	var event audit.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return audit.Event{}, fmt.Errorf("decode audit event: %w", err)
	}
	return event, nil
}
