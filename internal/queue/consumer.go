package queue

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const auditLogPath = "logs/groups.log"

// StartCompletedConsumer connects to the broker at url, declares the
// durable group.completed queue and appends every event to
// logs/groups.log in a single-line human-readable format. It runs a
// reconnect loop with exponential backoff and never returns under
// normal operation; malformed messages are rejected without requeue so
// the queue cannot wedge.
func StartCompletedConsumer(url string) {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			slog.Warn("group consumer: dial broker failed", "error", err, "retry_in", backoff)
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after a successful connect

		if err := consumeLoop(conn); err != nil {
			slog.Warn("group consumer: consume loop ended", "error", err)
			_ = conn.Close()
			time.Sleep(2 * time.Second)
		}
	}
}

func consumeLoop(conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(completedQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	msgs, err := ch.Consume(completedQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	for d := range msgs {
		if err := handleMessage(d.Body); err != nil {
			slog.Warn("group consumer: handle message failed", "error", err)
			_ = d.Reject(false)
			continue
		}
		_ = d.Ack(false)
	}
	return fmt.Errorf("delivery channel closed")
}

func handleMessage(body []byte) error {
	var ev GroupCompletedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	line := fmt.Sprintf("%s group=%s cart=%s members=%d qty=%d\n",
		ev.CompletedAt.Format(time.RFC3339), ev.GroupID, ev.CartID, ev.Members, ev.TotalQuantity)
	return appendAuditLine(line)
}

func appendAuditLine(line string) error {
	if err := os.MkdirAll(filepath.Dir(auditLogPath), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(auditLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	_, err = f.WriteString(line)
	return err
}
