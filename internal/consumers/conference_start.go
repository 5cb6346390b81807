package consumers

import (
	"context"
	"encoding/json"
	"time"

	"confwaitlist/internal/bookingengine"
	"confwaitlist/internal/bookingerr"
	"confwaitlist/pkg/logger"
)

type conferenceStartMessage struct {
	ConferenceName string    `json:"conference_name"`
	StartTime      time.Time `json:"start_time"`
}

// ConferenceStartHandler builds a broker.Handler for the
// conference.starts queue.
func ConferenceStartHandler(engine *bookingengine.Engine) func(ctx context.Context, body []byte) error {
	return func(ctx context.Context, body []byte) error {
		var msg conferenceStartMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return bookingerr.Wrap(bookingerr.Validation, "malformed conference-start message", err)
		}

		purged, err := engine.PurgeNonConfirmedAtStart(ctx, msg.ConferenceName)
		if err != nil {
			return err
		}
		logger.GetDefault().LogConferencePurged(ctx, msg.ConferenceName, purged)
		return nil
	}
}
