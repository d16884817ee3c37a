package publisher

import (
	"context"
	"time"

	"github.com/fjod/go_restaurant/internal/repository"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const batchSize = 100

// EventStore is the slice of the repository the poller drives.
type EventStore interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*repository.OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
	DeleteProcessedEvents(ctx context.Context, before time.Time) (int64, error)
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Config struct {
	Brokers      []string
	Topic        string
	PollInterval time.Duration
	PruneEvery   time.Duration
	Retention    time.Duration
	BatchSize    int
}

// OutboxPoller relays committed outbox rows to Kafka and periodically prunes
// rows that were published longer than the retention period ago.
type OutboxPoller struct {
	timeout   time.Duration
	eventTick time.Duration
	pruneTick time.Duration
	retention time.Duration
	batch     int
	repo      EventStore
	writer    MessageWriter
	log       *zap.SugaredLogger
	now       func() time.Time
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireAll,
	}
}

func NewOutboxPoller(repo EventStore, cfg Config, log *zap.SugaredLogger) *OutboxPoller {
	return newOutboxPoller(repo, NewKafkaWriter(cfg.Brokers, cfg.Topic), cfg, log)
}

func newOutboxPoller(repo EventStore, writer MessageWriter, cfg Config, log *zap.SugaredLogger) *OutboxPoller {
	p := &OutboxPoller{
		timeout:   5 * time.Second,
		eventTick: cfg.PollInterval,
		pruneTick: cfg.PruneEvery,
		retention: cfg.Retention,
		batch:     cfg.BatchSize,
		repo:      repo,
		writer:    writer,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
	if p.eventTick <= 0 {
		p.eventTick = time.Second
	}
	if p.pruneTick <= 0 {
		p.pruneTick = time.Hour
	}
	if p.retention <= 0 {
		p.retention = 7 * 24 * time.Hour
	}
	if p.batch <= 0 {
		p.batch = batchSize
	}
	return p
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	pruneTicker := time.NewTicker(p.pruneTick)
	defer eventTicker.Stop()
	defer pruneTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-pruneTicker.C:
			p.pruneProcessedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.repo.GetUnprocessedEvents(ctx, p.batch)
	if err != nil {
		p.log.Errorw("failed to fetch outbox events", "error", err)
		return
	}

	for _, event := range events {
		if err := p.publishToKafka(ctx, event); err != nil {
			// stop here so later events for the same order are not sent ahead of this one
			p.log.Errorw("failed to publish outbox event", "event_id", event.ID, "error", err)
			return
		}

		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.log.Errorw("failed to mark outbox event as processed", "event_id", event.ID, "error", err)
			continue
		}
	}
}

func (p *OutboxPoller) pruneProcessedEvents(ctx context.Context) {
	n, err := p.repo.DeleteProcessedEvents(ctx, p.now().Add(-p.retention))
	if err != nil {
		p.log.Errorw("failed to prune outbox", "error", err)
		return
	}
	if n > 0 {
		p.log.Infow("pruned processed outbox events", "count", n)
	}
}

func (p *OutboxPoller) publishToKafka(ctx context.Context, event *repository.OutboxEvent) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // order id keeps one order's events on one partition
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
		Time: event.CreatedAt,
	}

	return p.writer.WriteMessages(ctx, msg)
}
