// Package audit provides vacation.AuditRecorder sinks: the audit_log table,
// a Kafka topic, and a fan-out over both.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/warp/yukyu/vacation"
)

// Recorder is the sink interface, identical to vacation.AuditRecorder.
type Recorder = vacation.AuditRecorder

// =============================================================================
// STORE RECORDER
// =============================================================================

// StoreRecorder appends entries to the audit_log table.
type StoreRecorder struct {
	store vacation.AuditStore
}

func NewStoreRecorder(store vacation.AuditStore) *StoreRecorder {
	return &StoreRecorder{store: store}
}

func (r *StoreRecorder) Record(ctx context.Context, entry vacation.AuditEntry) error {
	return r.store.AppendAudit(ctx, entry)
}

// =============================================================================
// KAFKA RECORDER
// =============================================================================

// MessageWriter is the part of *kafka.Writer the recorder uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures the Kafka recorder.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	MaxAttempts  int
	WriteTimeout time.Duration
}

// KafkaRecorder publishes one JSON message per entry keyed by employee id,
// so one employee's events stay ordered on a partition.
type KafkaRecorder struct {
	writer      MessageWriter
	maxAttempts int
	backoff     time.Duration
}

// NewKafkaRecorder builds a synchronous hash-balanced writer.
func NewKafkaRecorder(cfg KafkaConfig) (*KafkaRecorder, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic required")
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
	}
	return NewKafkaRecorderWithWriter(w, cfg.MaxAttempts), nil
}

// NewKafkaRecorderWithWriter wraps an existing writer.
func NewKafkaRecorderWithWriter(w MessageWriter, maxAttempts int) *KafkaRecorder {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &KafkaRecorder{writer: w, maxAttempts: maxAttempts, backoff: 100 * time.Millisecond}
}

// Event is the published message body.
type Event struct {
	ID         string         `json:"id"`
	EmployeeID string         `json:"employeeId"`
	Actor      string         `json:"actor"`
	Action     string         `json:"action"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	Payload    map[string]any `json:"payload,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

func toEvent(e vacation.AuditEntry) Event {
	return Event{
		ID:         e.ID,
		EmployeeID: e.EmployeeID,
		Actor:      e.Actor,
		Action:     string(e.Action),
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Payload:    e.Payload,
		CreatedAt:  e.CreatedAt,
	}
}

// Record retries with exponential backoff up to maxAttempts.
func (r *KafkaRecorder) Record(ctx context.Context, entry vacation.AuditEntry) error {
	value, err := json.Marshal(toEvent(entry))
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(entry.EmployeeID),
		Value: value,
		Time:  entry.CreatedAt,
	}

	var lastErr error
	backoff := r.backoff
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if lastErr = r.writer.WriteMessages(ctx, msg); lastErr == nil {
			return nil
		}
		if attempt == r.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
	return fmt.Errorf("produce failed after %d attempts: %w", r.maxAttempts, lastErr)
}

func (r *KafkaRecorder) Close() error {
	if r == nil || r.writer == nil {
		return nil
	}
	return r.writer.Close()
}

// =============================================================================
// FAN-OUT
// =============================================================================

// Multi writes to a primary sink and any number of secondary sinks. Only a
// primary failure is returned; secondary failures are logged.
type Multi struct {
	primary   Recorder
	secondary []Recorder
	logger    zerolog.Logger
}

func NewMulti(logger zerolog.Logger, primary Recorder, secondary ...Recorder) *Multi {
	return &Multi{
		primary:   primary,
		secondary: secondary,
		logger:    logger.With().Str("component", "audit").Logger(),
	}
}

func (m *Multi) Record(ctx context.Context, entry vacation.AuditEntry) error {
	var err error
	if m.primary != nil {
		err = m.primary.Record(ctx, entry)
	}
	for _, s := range m.secondary {
		if serr := s.Record(ctx, entry); serr != nil {
			m.logger.Warn().Err(serr).
				Str("action", string(entry.Action)).
				Str("entity_id", entry.EntityID).
				Msg("secondary audit sink failed")
		}
	}
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	return nil
}

// Close closes every sink that implements io.Closer.
func (m *Multi) Close() error {
	var errs []error
	for _, r := range append([]Recorder{m.primary}, m.secondary...) {
		if c, ok := r.(interface{ Close() error }); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
