package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hypertune-ai/platform/pkg/common/config"
	"github.com/hypertune-ai/platform/pkg/common/logger"
	"github.com/hypertune-ai/platform/pkg/common/models"
	"github.com/segmentio/kafka-go"
)

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(topic string) *Producer {
	cfg := config.Load()
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{writer: writer}
}

// PublishJobTransition emits one lifecycle event per job state change.
func (p *Producer) PublishJobTransition(ctx context.Context, event models.JobEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	message, err := encodeJobEvent(event)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"event_id": event.ID,
			"job_id":   event.JobID,
			"status":   event.ToStatus,
		}).Error("Failed to publish job event")
		return err
	}

	logger.Log.WithFields(map[string]interface{}{
		"event_id": event.ID,
		"job_id":   event.JobID,
		"status":   event.ToStatus,
		"topic":    p.writer.Topic,
	}).Debug("Job event published")

	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// encodeJobEvent builds the wire message for one lifecycle event. Keyed
// by run so consumers see each run's transitions in order.
func encodeJobEvent(event models.JobEvent) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal job event: %w", err)
	}

	return kafka.Message{
		Key:   []byte(event.RunID.String()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "to-status", Value: []byte(event.ToStatus)},
			{Key: "job-id", Value: []byte(event.JobID.String())},
		},
	}, nil
}
