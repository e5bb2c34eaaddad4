// Package events streams engine outcomes to Kafka for audit and downstream
// consumers. Publishing is best-effort and never blocks reconciliation.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/offthaspin/renting/internal/telemetry"
)

const (
	TopicPaymentRecorded = "payment.recorded"
	TopicRentAccrued     = "rent.accrued"
)

// PaymentRecorded is emitted once per Created write, carrying enough context
// to reconstruct the resolution decision during audits.
type PaymentRecorded struct {
	TransactionID    string    `json:"transaction_id"`
	PaymentID        string    `json:"payment_id"`
	TenantID         int64     `json:"tenant_id"`
	OwnerID          int64     `json:"owner_id"`
	Amount           string    `json:"amount"`
	AccountReference string    `json:"account_reference"`
	Strategy         string    `json:"strategy"`
	LowConfidence    bool      `json:"low_confidence"`
	RecordedAt       time.Time `json:"recorded_at"`
}

// RentAccrued summarizes one run of the monthly accrual worker.
type RentAccrued struct {
	TenantsUpdated int       `json:"tenants_updated"`
	AsOf           time.Time `json:"as_of"`
}

// Publisher is the collaborator interface the engine consumes.
type Publisher interface {
	Publish(ctx context.Context, key string, event any)
}

// KafkaPublisher writes JSON events to one topic.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, key string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		telemetry.Logger.Error("failed to marshal audit event", zap.Error(err))
		return
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
	}); err != nil {
		telemetry.Logger.Warn("failed to publish audit event",
			zap.String("key", key), zap.Error(err))
	}
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher is used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, key string, event any) {}
