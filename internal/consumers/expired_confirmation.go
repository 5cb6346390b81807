// Package consumers holds the two Event Consumers (§4.5): the
// expired-confirmation handler and the conference-start handler. Both
// are thin: parse the message, then call the Booking Engine, which
// owns the actual transaction and promotion logic.
package consumers

import (
	"context"
	"encoding/json"
	"time"

	"confwaitlist/internal/bookingengine"
	"confwaitlist/internal/bookingerr"
	"confwaitlist/pkg/logger"

	"github.com/google/uuid"
)

type expiredConfirmationMessage struct {
	BookingID      string    `json:"booking_id"`
	Deadline       time.Time `json:"deadline"`
	ConferenceName string    `json:"conference_name"`
}

// ExpiredConfirmationHandler builds a broker.Handler for the
// confirmation.expired queue.
func ExpiredConfirmationHandler(engine *bookingengine.Engine) func(ctx context.Context, body []byte) error {
	return func(ctx context.Context, body []byte) error {
		var msg expiredConfirmationMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return bookingerr.Wrap(bookingerr.Validation, "malformed expired-confirmation message", err)
		}
		bookingID, err := uuid.Parse(msg.BookingID)
		if err != nil {
			return bookingerr.Wrap(bookingerr.Validation, "malformed booking id in expired-confirmation message", err)
		}

		affected, err := engine.ForfeitExpired(ctx, bookingID, msg.ConferenceName)
		if err != nil {
			return err
		}
		if affected {
			logger.GetDefault().LogBookingForfeited(ctx, bookingID.String(), msg.ConferenceName)
		}
		return nil
	}
}
