package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_restaurant/internal/repository"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"go.uber.org/zap"
)

type MockRepository struct {
	mu           sync.Mutex
	OutboxEvents []*repository.OutboxEvent
	GetErr       error
	MarkErr      error
	ProcessedIDs []int64
	PruneCount   int64
	PruneErr     error
	PruneCalls   []time.Time
}

func (m *MockRepository) GetUnprocessedEvents(_ context.Context, limit int) ([]*repository.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	// each event is handed out once
	n := min(limit, len(m.OutboxEvents))
	events := m.OutboxEvents[:n]
	m.OutboxEvents = m.OutboxEvents[n:]
	return events, nil
}

func (m *MockRepository) MarkEventAsProcessed(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MarkErr != nil {
		return m.MarkErr
	}
	m.ProcessedIDs = append(m.ProcessedIDs, id)
	return nil
}

func (m *MockRepository) DeleteProcessedEvents(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PruneCalls = append(m.PruneCalls, before)
	return m.PruneCount, m.PruneErr
}

func (m *MockRepository) Processed() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.ProcessedIDs...)
}

type MockWriter struct {
	mu       sync.Mutex
	Messages []kafkaGo.Message
	FailOn   map[string]error
	closed   bool
}

func (w *MockWriter) WriteMessages(_ context.Context, msgs ...kafkaGo.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, msg := range msgs {
		if err := w.FailOn[string(msg.Key)]; err != nil {
			return err
		}
		w.Messages = append(w.Messages, msg)
	}
	return nil
}

func (w *MockWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func testEvent(id int64, orderID string) *repository.OutboxEvent {
	return &repository.OutboxEvent{
		ID:          id,
		AggregateID: orderID,
		EventType:   repository.EventOrderCreated,
		Payload:     json.RawMessage(fmt.Sprintf(`{"order_id":%q,"total_amount":"20.00"}`, orderID)),
		CreatedAt:   time.Now().UTC(),
	}
}

func newTestPoller(repo EventStore, writer MessageWriter) *OutboxPoller {
	return newOutboxPoller(repo, writer, Config{PollInterval: 10 * time.Millisecond, PruneEvery: time.Hour, Retention: 24 * time.Hour}, zap.NewNop().Sugar())
}

func TestProcessUnpublishedEvents_PublishesAndMarks(t *testing.T) {
	repo := &MockRepository{OutboxEvents: []*repository.OutboxEvent{
		testEvent(1, "order-1"),
		testEvent(2, "order-2"),
	}}
	writer := &MockWriter{}

	p := newTestPoller(repo, writer)
	p.processUnpublishedEvents(context.Background())

	require.Len(t, writer.Messages, 2)
	msg := writer.Messages[0]
	assert.Equal(t, "order-1", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, repository.EventOrderCreated, string(msg.Headers[0].Value))
	assert.JSONEq(t, `{"order_id":"order-1","total_amount":"20.00"}`, string(msg.Value))

	assert.Equal(t, []int64{1, 2}, repo.Processed())
}

func TestProcessUnpublishedEvents_StopsOnPublishFailure(t *testing.T) {
	repo := &MockRepository{OutboxEvents: []*repository.OutboxEvent{
		testEvent(1, "order-1"),
		testEvent(2, "order-2"),
		testEvent(3, "order-3"),
	}}
	writer := &MockWriter{FailOn: map[string]error{"order-2": errors.New("leader not available")}}

	p := newTestPoller(repo, writer)
	p.processUnpublishedEvents(context.Background())

	assert.Len(t, writer.Messages, 1)
	assert.Equal(t, []int64{1}, repo.Processed(), "failed and later events stay unprocessed")
}

func TestProcessUnpublishedEvents_FetchError(t *testing.T) {
	repo := &MockRepository{GetErr: errors.New("database is locked")}
	writer := &MockWriter{}

	p := newTestPoller(repo, writer)
	p.processUnpublishedEvents(context.Background())

	assert.Empty(t, writer.Messages)
	assert.Empty(t, repo.Processed())
}

func TestProcessUnpublishedEvents_MarkErrorContinues(t *testing.T) {
	repo := &MockRepository{
		OutboxEvents: []*repository.OutboxEvent{testEvent(1, "order-1"), testEvent(2, "order-2")},
		MarkErr:      errors.New("disk I/O error"),
	}
	writer := &MockWriter{}

	p := newTestPoller(repo, writer)
	p.processUnpublishedEvents(context.Background())

	assert.Len(t, writer.Messages, 2)
}

func TestPruneProcessedEvents_UsesRetention(t *testing.T) {
	repo := &MockRepository{PruneCount: 3}
	fixed := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	p := newTestPoller(repo, &MockWriter{})
	p.now = func() time.Time { return fixed }
	p.pruneProcessedEvents(context.Background())

	require.Len(t, repo.PruneCalls, 1)
	assert.Equal(t, fixed.Add(-24*time.Hour), repo.PruneCalls[0])
}

func TestPruneProcessedEvents_ErrorIsLogged(t *testing.T) {
	repo := &MockRepository{PruneErr: errors.New("database is locked")}

	p := newTestPoller(repo, &MockWriter{})
	assert.NotPanics(t, func() { p.pruneProcessedEvents(context.Background()) })
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	repo := &MockRepository{OutboxEvents: []*repository.OutboxEvent{testEvent(7, "order-7")}}
	writer := &MockWriter{}
	p := newTestPoller(repo, writer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(repo.Processed()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancel")
	}

	require.NoError(t, p.Close())
	assert.True(t, writer.closed)
}

func TestNewOutboxPoller_Defaults(t *testing.T) {
	p := NewOutboxPoller(&MockRepository{}, Config{Brokers: []string{"localhost:9092"}, Topic: "restaurant-orders"}, zap.NewNop().Sugar())
	defer p.Close()

	assert.Equal(t, time.Second, p.eventTick)
	assert.Equal(t, time.Hour, p.pruneTick)
	assert.Equal(t, 7*24*time.Hour, p.retention)
	assert.Equal(t, batchSize, p.batch)

	w, ok := p.writer.(*kafkaGo.Writer)
	require.True(t, ok)
	assert.Equal(t, "restaurant-orders", w.Topic)
}

func setupKafka(t *testing.T) (string, func()) {
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers, "broker address should not be empty")

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}

	return brokers[0], cleanup
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func TestOutboxPoller_PublishesEventsToKafka(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping kafka container test in short mode")
	}

	brokerAddr, cleanup := setupKafka(t)
	defer cleanup()

	const topic = "restaurant-orders"
	createTopic(t, brokerAddr, topic)

	repo := &MockRepository{OutboxEvents: []*repository.OutboxEvent{testEvent(1, "order-123")}}

	writer := NewKafkaWriter([]string{brokerAddr}, topic)
	writer.WriteTimeout = 10 * time.Second
	p := newOutboxPoller(repo, writer, Config{PollInterval: time.Second, PruneEvery: time.Hour}, zap.NewNop().Sugar())
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	go p.Run(ctx)

	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers:  []string{brokerAddr},
		Topic:    topic,
		GroupID:  "test-consumer",
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	msg, err := reader.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "order-123", string(msg.Key))

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	assert.Equal(t, "order-123", payload["order_id"])

	require.Eventually(t, func() bool {
		return len(repo.Processed()) == 1
	}, 5*time.Second, 100*time.Millisecond)
}
