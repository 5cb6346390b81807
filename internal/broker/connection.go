package broker

import (
	"fmt"
	"sync"
	"time"

	"confwaitlist/internal/shared/config"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Connection owns the single long-lived AMQP connection (§5 "Shared
// resources": one connection, channels opened per operation and closed
// immediately). Channel redials when the underlying connection has
// dropped and the topology is redeclared on every reconnect, since a
// fresh connection implies fresh channels. The redial itself is
// immediate; the exponential backoff between attempts is applied by
// Consumer.Run.
type Connection struct {
	cfg config.BrokerConfig
	win time.Duration

	mu   sync.Mutex
	conn *amqp.Connection
}

func Dial(cfg config.BrokerConfig, confirmationWindow time.Duration) (*Connection, error) {
	c := &Connection{cfg: cfg, win: confirmationWindow}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Connection) connect() error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("broker dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("broker topology channel: %w", err)
	}
	if err := declareTopology(ch, c.win); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}
	_ = ch.Close()

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// Reconnect tears down the current connection (if any) and dials again
// with the caller-supplied backoff already elapsed.
func (c *Connection) Reconnect() error {
	c.mu.Lock()
	old := c.conn
	c.conn = nil
	c.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return c.connect()
}

// Channel opens a fresh channel on the current connection, one per
// operation per §5.
func (c *Connection) Channel() (*amqp.Channel, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil || conn.IsClosed() {
		if err := c.Reconnect(); err != nil {
			return nil, err
		}
		c.mu.Lock()
		conn = c.conn
		c.mu.Unlock()
	}
	return conn.Channel()
}

// NotifyClose exposes the underlying connection's close notification so
// a consumer supervisor can detect drops and trigger its own
// reconnect-and-resubscribe cycle.
func (c *Connection) NotifyClose() chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan *amqp.Error, 1)
	if c.conn != nil {
		c.conn.NotifyClose(ch)
	}
	return ch
}

func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// backoff computes the reconnect delay for attempt n (0-based), capped
// at max.
func backoff(n int, min, max time.Duration) time.Duration {
	d := min
	for i := 0; i < n; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	return d
}
