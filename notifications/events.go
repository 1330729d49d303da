package notifications

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/linesmerrill/chama-disputes-api/disputes"
	"github.com/linesmerrill/chama-disputes-api/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DisputeEvent is the record published for every dispute notification so
// other services (ledger, analytics) can follow dispute activity
type DisputeEvent struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	DisputeID  string            `json:"disputeId"`
	ChamaID    string            `json:"chamaId"`
	Status     string            `json:"status"`
	Recipients []string          `json:"recipients"`
	Payload    map[string]string `json:"payload"`
	OccurredAt time.Time         `json:"occurredAt"`
}

// EventPublisher writes dispute events to Kafka keyed by dispute id, so all
// events of a dispute land on one partition in order
type EventPublisher struct {
	writer messageWriter
	now    func() time.Time
}

// NewEventPublisher creates a publisher for topic on the given brokers
func NewEventPublisher(brokers []string, topic string) *EventPublisher {
	return &EventPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
		now: time.Now,
	}
}

// Name implements Channel
func (p *EventPublisher) Name() string { return "events" }

// Send implements Channel
func (p *EventPublisher) Send(ctx context.Context, n disputes.Notification, _ []models.UserContact) error {
	now := p.now().UTC()
	event := DisputeEvent{
		ID:         uuid.NewString(),
		Type:       n.Template,
		DisputeID:  n.Payload["disputeId"],
		ChamaID:    n.Payload["chamaId"],
		Status:     n.Payload["status"],
		Recipients: n.Recipients,
		Payload:    n.Payload,
		OccurredAt: now,
	}
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.DisputeID),
		Value: value,
		Time:  now,
	})
}

// Close flushes pending writes
func (p *EventPublisher) Close() error {
	return p.writer.Close()
}
