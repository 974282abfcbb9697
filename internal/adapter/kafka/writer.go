package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/energy-weather-etl/internal/config"
	"github.com/couchcryptid/energy-weather-etl/internal/domain"
)

// Writer publishes merged records to a Kafka topic.
// It implements pipeline.MergeSink.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// WriteMerged publishes one message per merged record in a single
// WriteMessages call. An empty join publishes nothing.
func (w *Writer) WriteMerged(ctx context.Context, startedAt time.Time, records []domain.MergedRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeToMessage(records[i], startedAt)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish merged records: %w", err)
	}
	w.logger.Debug("merged records published", "topic", w.writer.Topic, "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a MergedRecord into a Kafka message keyed by
// its timestamp, so every cycle's value for an hour lands on one partition.
func serializeToMessage(record domain.MergedRecord, startedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize merged record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(record.Timestamp.UTC().Format(time.RFC3339)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "unit", Value: []byte(record.Unit)},
			{Key: "cycle_started_at", Value: []byte(startedAt.Format(time.RFC3339))},
		},
	}, nil
}
