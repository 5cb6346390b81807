package broker

import (
	"context"
	"time"

	"confwaitlist/internal/bookingerr"
	"confwaitlist/internal/shared/config"
	"confwaitlist/pkg/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler processes one delivery's body. An error wrapping a
// bookingerr.Error of kind Transient is nacked with requeue; any other
// error (including a plain json.Unmarshal failure) is nacked without
// requeue, per §4's "malformed event: dropped" rule.
type Handler func(ctx context.Context, body []byte) error

// Consumer is a durable, at-least-once, manually-acked subscriber on a
// single queue. It supervises its own connection independently of
// Publisher's per-operation channels, reconnecting with exponential
// backoff when the channel or connection drops (§5 scheduling model:
// consumer callbacks run as independent tasks).
type Consumer struct {
	conn     *Connection
	cfg      config.BrokerConfig
	queue    string
	prefetch int
	handler  Handler
}

func NewConsumer(conn *Connection, cfg config.BrokerConfig, queue string, prefetch int, handler Handler) *Consumer {
	return &Consumer{conn: conn, cfg: cfg, queue: queue, prefetch: prefetch, handler: handler}
}

// Run blocks, consuming until ctx is cancelled, reconnecting on
// failures with backoff bounded by cfg.ReconnectMinDelay/MaxDelay.
func (c *Consumer) Run(ctx context.Context) {
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ch, deliveries, err := c.subscribe()
		if err != nil {
			delay := backoff(attempt, c.cfg.ReconnectMinDelay, c.cfg.ReconnectMaxDelay)
			logger.GetDefault().WithError(err).Warn("subscribing to queue failed; retrying", "queue", c.queue, "delay", delay)
			attempt++
			if !sleepOrDone(ctx, delay) {
				return
			}
			continue
		}
		attempt = 0

		c.consumeLoop(ctx, deliveries)
		_ = ch.Close()

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (c *Consumer) subscribe() (*amqp.Channel, <-chan amqp.Delivery, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, nil, err
	}
	if c.prefetch > 0 {
		if err := ch.Qos(c.prefetch, 0, false); err != nil {
			_ = ch.Close()
			return nil, nil, err
		}
	}
	deliveries, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, nil, err
	}
	return ch, deliveries, nil
}

func (c *Consumer) consumeLoop(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	err := c.handler(ctx, d.Body)
	if err == nil {
		_ = d.Ack(false)
		return
	}

	if kerr, ok := bookingerr.As(err); ok && kerr.Kind == bookingerr.Transient {
		logger.GetDefault().LogConsumerError(ctx, c.queue, err, true)
		_ = d.Nack(false, true)
		return
	}

	logger.GetDefault().LogConsumerError(ctx, c.queue, err, false)
	_ = d.Nack(false, false)
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
