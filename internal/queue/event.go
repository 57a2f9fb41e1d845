// Package queue defines the payloads exchanged over the message broker
// and the publisher/consumer pair around the group.completed queue.
package queue

import "time"

// completedQueueName is the durable queue completed-group events are
// published to and consumed from.
const completedQueueName = "group.completed"

// GroupCompletedEvent is published when a group reaches completed
// status. It carries enough for downstream consumers to log or notify
// without reading the record store.
type GroupCompletedEvent struct {
	GroupID       string    `json:"group_id"`
	CartID        string    `json:"cart_id"`
	Members       int       `json:"members"`
	TotalQuantity int       `json:"total_quantity"`
	CompletedAt   time.Time `json:"completed_at"`
}
