package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/port"
)

const maxBackoff = 60 * time.Second

// MessageHandler processes one job message. A non-nil error requeues the
// delivery after a backoff; return nil for messages that must not come back.
type MessageHandler func(ctx context.Context, body []byte) error

// Consumer runs a fixed pool of workers over the job queue.
type Consumer struct {
	conn        *amqp.Connection
	channel     *amqp.Channel
	queue       string
	workerCount int
	baseDelay   time.Duration
	handler     MessageHandler
	logger      *zap.Logger
	wg          sync.WaitGroup
}

type ConsumerConfig struct {
	URL         string
	Topology    Topology
	Prefetch    int
	WorkerCount int
	BaseDelayMs int
}

func NewConsumer(cfg ConsumerConfig, handler MessageHandler, logger *zap.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	c := &Consumer{
		conn:        conn,
		channel:     ch,
		queue:       cfg.Topology.JobQueue,
		workerCount: max(cfg.WorkerCount, 1),
		baseDelay:   time.Duration(cfg.BaseDelayMs) * time.Millisecond,
		handler:     handler,
		logger:      logger.With(zap.String("queue", cfg.Topology.JobQueue)),
	}

	if err := cfg.Topology.Declare(ch); err != nil {
		c.Close()
		return nil, err
	}
	// Prefetch never drops below the pool size.
	if err := ch.Qos(max(cfg.Prefetch, c.workerCount), 0, false); err != nil {
		c.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	return c, nil
}

// Start consumes until ctx is cancelled, then waits for in-flight jobs.
func (c *Consumer) Start(ctx context.Context) error {
	deliveries, err := c.channel.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	c.logger.Info("starting frame job workers", zap.Int("workers", c.workerCount))
	for i := range c.workerCount {
		c.wg.Add(1)
		go c.worker(ctx, i, deliveries)
	}

	<-ctx.Done()
	c.logger.Info("context cancelled, draining workers")
	c.wg.Wait()
	return nil
}

func (c *Consumer) worker(ctx context.Context, id int, deliveries <-chan amqp.Delivery) {
	defer c.wg.Done()
	log := c.logger.With(zap.Int("worker_id", id))

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				log.Info("delivery channel closed")
				return
			}
			c.processDelivery(ctx, d, log)
		}
	}
}

// processDelivery acks handled messages and requeues failed ones after a
// backoff that grows with the failed attempt.
func (c *Consumer) processDelivery(ctx context.Context, d amqp.Delivery, log *zap.Logger) {
	err := c.handler(ctx, d.Body)
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			log.Warn("ack failed", zap.Error(ackErr), zap.Uint64("delivery_tag", d.DeliveryTag))
		}
		return
	}

	attempt := retryAttempt(err, d.Headers)
	delay := backoff(c.baseDelay, attempt)
	log.Warn("frame job failed, requeueing after backoff",
		zap.Error(err),
		zap.Uint64("delivery_tag", d.DeliveryTag),
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
	)

	timer := time.NewTimer(delay)
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
	}
	if nackErr := d.Nack(false, true); nackErr != nil {
		log.Warn("nack failed", zap.Error(nackErr), zap.Uint64("delivery_tag", d.DeliveryTag))
	}
}

// retryAttempt prefers the attempt reported by the handler and falls back to
// the broker's x-death history.
func retryAttempt(err error, headers amqp.Table) int {
	var re *port.RetryError
	if errors.As(err, &re) && re.Attempt > 0 {
		return re.Attempt
	}
	return attemptFromHeaders(headers)
}

func attemptFromHeaders(headers amqp.Table) int {
	deaths, _ := headers["x-death"].([]interface{})
	return max(len(deaths), 1)
}

func backoff(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt && delay < maxBackoff; i++ {
		delay *= 2
	}
	return min(delay, maxBackoff)
}

func (c *Consumer) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
