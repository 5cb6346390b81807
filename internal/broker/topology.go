// Package broker is the Timer/Event Bus (§4.4): a RabbitMQ-backed
// abstraction over durable queues, per-message TTL, and dead-letter
// routing used as the only delay-timer primitive. Nothing in this
// package runs an in-process timer; every delayed effect is a message
// that sits on a holding queue until the broker dead-letters it.
package broker

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// Exchanges.
	ConferenceEventsExchange = "conference.events"
	BookingEventsExchange    = "booking.events"
	DeadLetterExchange       = "dead.letter.exchange"

	// Confirmation-expiry timer channel.
	ConfirmationTimerQueue   = "confirmation.timer"
	ConfirmationExpiredQueue = "confirmation.expired"

	// Conference-start timer channel.
	ConferenceStartTimerQueue = "conference.start.timer"
	ConferenceStartsQueue     = "conference.starts"

	waitlistQueuePrefix = "conference."
	waitlistQueueSuffix = ".waitlist"
)

// WaitlistQueueName returns the housekeeping queue name for a
// conference's waitlist, e.g. "conference.PyConf2026.waitlist".
func WaitlistQueueName(conferenceName string) string {
	return waitlistQueuePrefix + conferenceName + waitlistQueueSuffix
}

// declareTopology declares every durable object named in §6's broker
// topology table. Idempotent: redeclaring with identical arguments is a
// no-op: PRECONDITION_FAILED only if an existing object disagrees.
func declareTopology(ch *amqp.Channel, confirmationWindow time.Duration) error {
	if err := ch.ExchangeDeclare(ConferenceEventsExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", ConferenceEventsExchange, err)
	}
	if err := ch.ExchangeDeclare(BookingEventsExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", BookingEventsExchange, err)
	}
	if err := ch.ExchangeDeclare(DeadLetterExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", DeadLetterExchange, err)
	}

	// Confirmation-expiry channel: the window T is the same for every
	// booking, so the TTL lives on the queue rather than per message.
	if _, err := ch.QueueDeclare(ConfirmationTimerQueue, true, false, false, false, amqp.Table{
		"x-message-ttl":             int64(confirmationWindow / time.Millisecond),
		"x-dead-letter-exchange":    DeadLetterExchange,
		"x-dead-letter-routing-key": ConfirmationExpiredQueue,
	}); err != nil {
		return fmt.Errorf("declare %s: %w", ConfirmationTimerQueue, err)
	}
	if _, err := ch.QueueDeclare(ConfirmationExpiredQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", ConfirmationExpiredQueue, err)
	}
	if err := ch.QueueBind(ConfirmationExpiredQueue, ConfirmationExpiredQueue, DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", ConfirmationExpiredQueue, err)
	}

	// Conference-start channel: TTL varies per conference (start-now), so
	// it travels on the message, not the queue. Dead-lettering through
	// the default exchange with a fixed routing key means "publish
	// straight to that queue name".
	if _, err := ch.QueueDeclare(ConferenceStartTimerQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": ConferenceStartsQueue,
	}); err != nil {
		return fmt.Errorf("declare %s: %w", ConferenceStartTimerQueue, err)
	}
	if _, err := ch.QueueDeclare(ConferenceStartsQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", ConferenceStartsQueue, err)
	}

	return nil
}
