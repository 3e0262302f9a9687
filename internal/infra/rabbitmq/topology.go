package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	JobRoutingKey    = "frames.sampling"
	StatusRoutingKey = "frames.status"
)

// Topology names the exchange and queues shared by the API and the worker.
type Topology struct {
	Exchange    string
	JobQueue    string
	StatusQueue string
	DLQ         string
}

// Declare creates the exchange and queues if missing and binds the job and
// status queues. It is idempotent.
func (t Topology) Declare(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(t.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, q := range []string{t.JobQueue, t.DLQ, t.StatusQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	if err := ch.QueueBind(t.JobQueue, JobRoutingKey, t.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind job queue: %w", err)
	}
	if err := ch.QueueBind(t.StatusQueue, StatusRoutingKey, t.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind status queue: %w", err)
	}
	return nil
}
