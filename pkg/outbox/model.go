// Package outbox implements the transactional outbox: domain writes commit
// an event row in the same transaction as the state change, and a relay
// publishes pending rows to Kafka afterwards. Publishing never happens
// inside an aggregate's critical section.
package outbox

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

type Event struct {
	ID            int64
	AggregateType string
	AggregateID   string // order id; doubles as the Kafka partition key
	Topic         string
	Type          string
	Payload       []byte
	Headers       map[string]string
	Traceparent   string
	CreatedAt     time.Time
	Status        Status
	RetryCount    int
	LastError     *string
}
