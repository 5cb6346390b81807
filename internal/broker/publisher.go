package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"confwaitlist/internal/bookingerr"
	"confwaitlist/internal/shared/config"
	"confwaitlist/pkg/logger"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is the bounded-retry outbound side of the Timer/Event Bus:
// arming the confirmation-expiry timer, arming the conference-start
// timer, and the per-conference waitlist queue housekeeping. Every
// publish opens its own channel and closes it immediately (§5).
type Publisher struct {
	conn *Connection
	cfg  config.BookingConfig
}

func NewPublisher(conn *Connection, cfg config.BookingConfig) *Publisher {
	return &Publisher{conn: conn, cfg: cfg}
}

type confirmationExpiryMessage struct {
	BookingID      string    `json:"booking_id"`
	Deadline       time.Time `json:"deadline"`
	ConferenceName string    `json:"conference_name"`
}

// ArmConfirmationExpiry satisfies waitlist.ExpiryArmer: it publishes the
// timer message that will dead-letter into confirmation.expired once
// the queue-level TTL elapses.
func (p *Publisher) ArmConfirmationExpiry(ctx context.Context, bookingID uuid.UUID, deadline time.Time, conferenceName string) error {
	body, err := json.Marshal(confirmationExpiryMessage{
		BookingID:      bookingID.String(),
		Deadline:       deadline,
		ConferenceName: conferenceName,
	})
	if err != nil {
		return fmt.Errorf("marshal confirmation-expiry message: %w", err)
	}
	return p.publishWithRetry(ctx, "", ConfirmationTimerQueue, body)
}

type conferenceStartMessage struct {
	ConferenceName string    `json:"conference_name"`
	StartTime      time.Time `json:"start_time"`
}

// ArmConferenceStart publishes the one-per-conference start timer (§4.4
// item 2). If start has already passed it fires immediately onto
// conference.starts instead of going through the holding queue.
func (p *Publisher) ArmConferenceStart(ctx context.Context, conferenceName string, start time.Time) error {
	body, err := json.Marshal(conferenceStartMessage{ConferenceName: conferenceName, StartTime: start})
	if err != nil {
		return fmt.Errorf("marshal conference-start message: %w", err)
	}

	now := time.Now().UTC()
	if !now.Before(start) {
		return p.publishWithRetry(ctx, "", ConferenceStartsQueue, body)
	}

	ttl := start.Sub(now)
	return p.publishWithRetryExpiring(ctx, ConferenceStartTimerQueue, body, ttl)
}

// EnsureWaitlistQueue declares the per-conference waitlist housekeeping
// queue and drops a record of the booking onto it, mirroring the
// original's add_to_waitlist bookkeeping. Best-effort: failures are
// logged, never surfaced to the booking decision.
func (p *Publisher) EnsureWaitlistQueue(ctx context.Context, conferenceName string, bookingID uuid.UUID) {
	queue := WaitlistQueueName(conferenceName)
	ch, err := p.conn.Channel()
	if err != nil {
		logger.GetDefault().WithError(err).Warn("opening channel for waitlist housekeeping queue failed", "queue", queue)
		return
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		logger.GetDefault().WithError(err).Warn("declaring waitlist housekeeping queue failed", "queue", queue)
		return
	}

	body, _ := json.Marshal(map[string]string{"booking_id": bookingID.String(), "conference_name": conferenceName})
	_ = ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
	})
}

// DeleteWaitlistQueue best-effort deletes a conference's waitlist
// housekeeping queue at conference start. Failure is logged, not fatal
// (§4.5).
func (p *Publisher) DeleteWaitlistQueue(ctx context.Context, conferenceName string) {
	queue := WaitlistQueueName(conferenceName)
	ch, err := p.conn.Channel()
	if err != nil {
		logger.GetDefault().WithError(err).Warn("opening channel for waitlist queue deletion failed", "queue", queue)
		return
	}
	defer ch.Close()

	if _, err := ch.QueueDelete(queue, false, false, false); err != nil {
		logger.GetDefault().WithError(err).Warn("deleting waitlist housekeeping queue failed", "queue", queue)
	}
}

// publishWithRetry publishes a persistent message to routingKey with
// the bounded retry budget from §5 (default 2 attempts, 25ms -> 50ms
// backoff).
func (p *Publisher) publishWithRetry(ctx context.Context, exchange, routingKey string, body []byte) error {
	return p.publish(ctx, exchange, routingKey, body, 0)
}

// publishWithRetryExpiring is publishWithRetry with a per-message TTL
// (conference-start timer, whose delay varies per conference).
func (p *Publisher) publishWithRetryExpiring(ctx context.Context, routingKey string, body []byte, ttl time.Duration) error {
	return p.publish(ctx, "", routingKey, body, ttl)
}

func (p *Publisher) publish(ctx context.Context, exchange, routingKey string, body []byte, ttl time.Duration) error {
	attempts := p.cfg.PublishMaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoffDelay := p.cfg.PublishMinBackoff

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := p.publishOnce(ctx, exchange, routingKey, body, ttl)
		logger.GetDefault().LogBrokerPublish(ctx, exchange, routingKey, attempt, err)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		select {
		case <-time.After(backoffDelay):
		case <-ctx.Done():
			return bookingerr.Wrap(bookingerr.Transient, "publish cancelled", ctx.Err())
		}
		if backoffDelay < p.cfg.PublishMaxBackoff {
			backoffDelay *= 2
			if backoffDelay > p.cfg.PublishMaxBackoff {
				backoffDelay = p.cfg.PublishMaxBackoff
			}
		}
	}
	return bookingerr.Wrap(bookingerr.Transient, fmt.Sprintf("publish to %q exhausted retry budget", routingKey), lastErr)
}

func (p *Publisher) publishOnce(ctx context.Context, exchange, routingKey string, body []byte, ttl time.Duration) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
	}
	if ttl > 0 {
		msg.Expiration = fmt.Sprintf("%d", ttl/time.Millisecond)
	}

	return ch.PublishWithContext(ctx, exchange, routingKey, false, false, msg)
}
