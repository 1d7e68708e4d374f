package journal

import (
	"context"
	"encoding/json"
	"time"

	"escrowdesk/internal/models"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	RelayName         = "kafka"
	defaultBatchSize  = 100
	defaultRelayEvery = 2 * time.Second
)

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type EventSource interface {
	After(index uint64, limit int) ([]models.DealEvent, error)
}

type CursorStore interface {
	Get(ctx context.Context, name string) (uint64, error)
	Save(ctx context.Context, name string, position uint64) error
}

// NewKafkaWriter builds a synchronous writer so a returned nil means the batch was acknowledged.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    defaultBatchSize,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Zstd,
	}
}

// Relay ships journal records to Kafka keyed by trade code. A record may be
// delivered more than once if the process stops between a write and the cursor save.
type Relay struct {
	source    EventSource
	writer    MessageWriter
	cursors   CursorStore
	interval  time.Duration
	batchSize int
	logger    *zap.Logger
}

func NewRelay(source EventSource, writer MessageWriter, cursors CursorStore, interval time.Duration, logger *zap.Logger) *Relay {
	if interval <= 0 {
		interval = defaultRelayEvery
	}
	return &Relay{
		source:    source,
		writer:    writer,
		cursors:   cursors,
		interval:  interval,
		batchSize: defaultBatchSize,
		logger:    logger,
	}
}

func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	r.logger.Info("journal relay started", zap.Duration("interval", r.interval))
	for {
		for {
			sent, err := r.Flush(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.logger.Warn("journal relay flush failed", zap.Error(err))
				break
			}
			if sent < r.batchSize {
				break
			}
		}
		select {
		case <-ctx.Done():
			r.logger.Info("journal relay stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Flush sends one batch after the saved cursor and advances it.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	position, err := r.cursors.Get(ctx, RelayName)
	if err != nil {
		return 0, err
	}
	events, err := r.source.After(position, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	messages := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return 0, errors.Wrap(err, "marshal relay message")
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(event.TradeCode),
			Value: payload,
			Time:  event.OccurredAt,
		})
	}
	if err := r.writer.WriteMessages(ctx, messages...); err != nil {
		return 0, errors.Wrap(err, "write kafka messages")
	}

	last := events[len(events)-1].Sequence
	if err := r.cursors.Save(ctx, RelayName, last); err != nil {
		return 0, err
	}
	r.logger.Debug("journal relay flushed", zap.Int("events", len(events)), zap.Uint64("cursor", last))
	return len(events), nil
}
