package rabbitmq

import (
	"context"
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/missastane/chat-engine/internal/telemetry"
)

// appID stamps published messages so audit consumers can tell which service
// produced them.
const appID = "chat-engine"

// publishTimeout bounds one publish so a stalled broker cannot hold a
// request goroutine past its audit call.
const publishTimeout = 5 * time.Second

// Publisher carries audit envelopes onto the broker. Mode reports how the
// publisher was wired, for startup logging.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
	Mode() string
}

// NewPublisher dials the broker and declares the audit exchange. Any failure
// degrades to a disabled publisher that logs envelopes locally, so the chat
// service keeps serving without a broker.
func NewPublisher(amqpURL, exchange string) Publisher {
	if amqpURL == "" {
		log.Printf("rabbitmq audit disabled: empty amqp url")
		return disabledPublisher{reason: "empty amqp url"}
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		log.Printf("rabbitmq audit disabled: %v", err)
		return disabledPublisher{reason: err.Error()}
	}

	ch, err := conn.Channel()
	if err != nil {
		log.Printf("rabbitmq audit disabled: %v", err)
		_ = conn.Close()
		return disabledPublisher{reason: err.Error()}
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		log.Printf("rabbitmq audit disabled: %v", err)
		_ = ch.Close()
		_ = conn.Close()
		return disabledPublisher{reason: err.Error()}
	}

	log.Printf("rabbitmq audit connected exchange=%s", exchange)
	return &auditBus{conn: conn, ch: ch, exchange: exchange}
}

type auditBus struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func (p *auditBus) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		AppId:        appID,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		log.Printf("rabbitmq audit publish failed: %v", err)
	}
	return err
}

func (p *auditBus) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func (p *auditBus) Mode() string { return "amqp" }

// disabledPublisher keeps the audit trail visible in process logs when no
// broker is reachable.
type disabledPublisher struct {
	reason string
}

func (d disabledPublisher) Publish(_ context.Context, routingKey string, event any) error {
	switch envelope := event.(type) {
	case telemetry.AuditEnvelope:
		log.Printf("audit (no broker) routing_key=%s action=%s level=%s request_id=%s", routingKey, envelope.Action, envelope.Level, envelope.RequestID)
	case *telemetry.AuditEnvelope:
		log.Printf("audit (no broker) routing_key=%s action=%s level=%s request_id=%s", routingKey, envelope.Action, envelope.Level, envelope.RequestID)
	default:
		log.Printf("audit (no broker) routing_key=%s", routingKey)
	}
	return nil
}

func (disabledPublisher) Close() error { return nil }

func (d disabledPublisher) Mode() string { return "noop (" + d.reason + ")" }
