package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher pushes group lifecycle events to RabbitMQ. Each publish
// dials a fresh connection: completion events are rare (one per group
// lifetime) and a short-lived connection keeps the publisher free of
// reconnect state. Errors are returned so callers can decide to ignore
// them without breaking the request flow.
type Publisher struct {
	url string
}

// NewPublisher returns a publisher for the broker at url.
func NewPublisher(url string) *Publisher { return &Publisher{url: url} }

// PublishGroupCompleted publishes ev to the group.completed queue as a
// persistent message, declaring the queue on the way so the consumer
// and publisher can start in any order.
func (p *Publisher) PublishGroupCompleted(ctx context.Context, ev GroupCompletedEvent) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(completedQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	err = ch.PublishWithContext(ctx, "", completedQueueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	slog.Debug("published group.completed", "group_id", ev.GroupID)
	return nil
}
