package audit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/yukyu/audit"
	"github.com/warp/yukyu/store/memory"
	"github.com/warp/yukyu/vacation"
)

// fakeWriter fails the first failures calls.
type fakeWriter struct {
	mu       sync.Mutex
	failures int
	calls    int
	messages []kafka.Message
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.calls <= w.failures {
		return errors.New("broker unavailable")
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

type failingRecorder struct{ err error }

func (r failingRecorder) Record(context.Context, vacation.AuditEntry) error { return r.err }

func entry() vacation.AuditEntry {
	return vacation.AuditEntry{
		ID:         "a1",
		EmployeeID: "e1",
		Actor:      "boss",
		Action:     vacation.AuditRequestApprove,
		EntityType: "TimeOffRequest",
		EntityID:   "r1",
		Payload:    map[string]any{"totalDays": "2"},
		CreatedAt:  time.Date(2022, 1, 10, 9, 0, 0, 0, time.UTC),
	}
}

func TestKafkaRecorderPublishesEvent(t *testing.T) {
	w := &fakeWriter{}
	r := audit.NewKafkaRecorderWithWriter(w, 3)

	require.NoError(t, r.Record(context.Background(), entry()))

	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	assert.Equal(t, "e1", string(msg.Key))

	var ev audit.Event
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	assert.Equal(t, "REQUEST_APPROVE", ev.Action)
	assert.Equal(t, "r1", ev.EntityID)
	assert.Equal(t, "2", ev.Payload["totalDays"])

	require.NoError(t, r.Close())
	assert.True(t, w.closed)
}

func TestKafkaRecorderRetries(t *testing.T) {
	// GIVEN: a writer that fails once
	w := &fakeWriter{failures: 1}
	r := audit.NewKafkaRecorderWithWriter(w, 3)

	// WHEN
	err := r.Record(context.Background(), entry())

	// THEN: the second attempt lands
	require.NoError(t, err)
	assert.Equal(t, 2, w.calls)
	assert.Len(t, w.messages, 1)
}

func TestKafkaRecorderGivesUp(t *testing.T) {
	w := &fakeWriter{failures: 10}
	r := audit.NewKafkaRecorderWithWriter(w, 2)

	err := r.Record(context.Background(), entry())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, 2, w.calls)
}

func TestKafkaRecorderStopsOnCancel(t *testing.T) {
	w := &fakeWriter{failures: 10}
	r := audit.NewKafkaRecorderWithWriter(w, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Record(ctx, entry())

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, w.calls)
}

func TestNewKafkaRecorderValidates(t *testing.T) {
	_, err := audit.NewKafkaRecorder(audit.KafkaConfig{Topic: "audit"})
	assert.Error(t, err)
	_, err = audit.NewKafkaRecorder(audit.KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)

	r, err := audit.NewKafkaRecorder(audit.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "audit"})
	require.NoError(t, err)
	assert.NoError(t, r.Close())
}

func TestMultiPrimaryAndSecondary(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	w := &fakeWriter{}

	// GIVEN: the store as primary, kafka and a broken sink as secondaries
	m := audit.NewMulti(zerolog.Nop(),
		audit.NewStoreRecorder(store),
		audit.NewKafkaRecorderWithWriter(w, 1),
		failingRecorder{err: errors.New("down")},
	)

	// WHEN
	err := m.Record(ctx, entry())

	// THEN: secondary failures do not surface
	require.NoError(t, err)
	stored, err := store.ListAudit(ctx, "e1", 0)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
	assert.Len(t, w.messages, 1)

	require.NoError(t, m.Close())
	assert.True(t, w.closed)
}

func TestMultiReturnsPrimaryError(t *testing.T) {
	w := &fakeWriter{}
	boom := errors.New("db down")
	m := audit.NewMulti(zerolog.Nop(), failingRecorder{err: boom}, audit.NewKafkaRecorderWithWriter(w, 1))

	err := m.Record(context.Background(), entry())

	assert.ErrorIs(t, err, boom)
	assert.Len(t, w.messages, 1)
}
