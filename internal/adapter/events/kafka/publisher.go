package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"payment-reconciliation/config"
	"payment-reconciliation/internal/core/domain"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements ports.EventPublisher on a Kafka topic. Messages are
// keyed by invoice id so every batch of one invoice lands on one partition.
type Publisher struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
	log     zerolog.Logger
}

// NewPublisher creates a publisher writing to cfg.Topic on cfg.Brokers.
func NewPublisher(cfg config.KafkaConfig, log zerolog.Logger) *Publisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: cfg.WriteTimeout,
	}
	return newPublisher(w, cfg.Topic, cfg.WriteTimeout, log)
}

func newPublisher(w messageWriter, topic string, timeout time.Duration, log zerolog.Logger) *Publisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Publisher{
		writer:  w,
		topic:   topic,
		timeout: timeout,
		log:     log.With().Str("component", "kafka_publisher").Str("topic", topic).Logger(),
	}
}

// PublishBatchCommitted writes evt as JSON.
func (p *Publisher) PublishBatchCommitted(ctx context.Context, evt domain.BatchCommittedEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", evt.Type, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.InvoiceID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.Type)},
			{Key: "event_id", Value: []byte(evt.EventID.String())},
		},
		Time: evt.CommittedAt,
	})
	if err != nil {
		return fmt.Errorf("publish %s event: %w", evt.Type, err)
	}

	p.log.Debug().
		Str("batch_id", evt.BatchID.String()).
		Str("invoice_id", evt.InvoiceID).
		Msg("batch committed event published")
	return nil
}

// Close flushes pending writes and releases the connection.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
