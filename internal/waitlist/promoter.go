// Package waitlist implements the Waitlist Promoter (§4.3): the single
// place in this codebase that turns a freed conference slot into a
// CONFIRMATION_PENDING booking at the head of the waitlist. Both the
// Booking Engine (after a cancellation frees a slot) and the
// expired-confirmation consumer (after forfeiting a pending booking to
// the tail) call into this one promoter; there is no second
// implementation of "pick next waitlisted booking" anywhere else (§9).
package waitlist

import (
	"context"
	"time"

	"confwaitlist/internal/bookingerr"
	"confwaitlist/internal/bookings"
	"confwaitlist/internal/conferences"
	"confwaitlist/pkg/logger"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ExpiryArmer is the single outbound dependency of the promoter: after
// transitioning a booking to CONFIRMATION_PENDING it must arm the timer
// that will eventually expire it. Modeled as an interface so the
// promoter never imports the broker package directly (§9's "break the
// cycle with a one-way event bus": Promoter publishes only).
type ExpiryArmer interface {
	ArmConfirmationExpiry(ctx context.Context, bookingID uuid.UUID, deadline time.Time, conferenceName string) error
}

// Promoter implements the waitlist promotion protocol.
type Promoter struct {
	bookingRepo    bookings.Repository
	conferenceRepo conferences.Repository
	armer          ExpiryArmer
	window         time.Duration
}

func NewPromoter(bookingRepo bookings.Repository, conferenceRepo conferences.Repository, armer ExpiryArmer, window time.Duration) *Promoter {
	return &Promoter{
		bookingRepo:    bookingRepo,
		conferenceRepo: conferenceRepo,
		armer:          armer,
		window:         window,
	}
}

// PromoteNext runs the §4.3 protocol against conferenceID inside tx: it
// selects the single WAITLISTED booking with minimum waitlist_position,
// and transitions it to CONFIRMATION_PENDING with a deadline T seconds
// out. It does not arm the confirmation-expiry timer itself.
//
// Returns the promoted booking (nil if there was nothing to promote) so
// the caller can log or assert on it; the timer is armed by the caller
// via the returned booking and conference name once its own transaction
// has committed, keeping broker I/O outside the DB transaction boundary
// per §9's failure-semantics note.
func (p *Promoter) PromoteNext(ctx context.Context, tx *gorm.DB, conferenceID uuid.UUID) (*bookings.Booking, *conferences.Conference, error) {
	conf, err := p.conferenceRepo.LockForUpdateByID(tx, conferenceID)
	if err != nil {
		return nil, nil, err
	}

	// §4.3 step 1: with no free slot and no existing reservation, there
	// is nothing a promotion could hand out (defensive — every current
	// caller already guarantees one or the other holds).
	if conf.AvailableSlots <= 0 {
		pending, err := p.bookingRepo.CountByStatus(tx, conferenceID, bookings.StatusConfirmationPending)
		if err != nil {
			return nil, nil, err
		}
		if pending == 0 {
			return nil, conf, nil
		}
	}

	next, err := p.bookingRepo.NextWaitlisted(tx, conferenceID)
	if err != nil {
		return nil, nil, err
	}
	if next == nil {
		return nil, conf, nil
	}

	deadline := time.Now().UTC().Add(p.window)
	next.Status = bookings.StatusConfirmationPending
	next.CanConfirm = true
	next.ConfirmationDeadline = &deadline
	next.WaitlistPosition = nil

	if err := p.bookingRepo.UpdateStatus(tx, next); err != nil {
		return nil, nil, err
	}

	return next, conf, nil
}

// ArmTimer publishes the expiry-arming event for a just-promoted
// booking. Called after the promoting transaction has committed.
func (p *Promoter) ArmTimer(ctx context.Context, booking *bookings.Booking, conferenceName string) error {
	if booking == nil || booking.ConfirmationDeadline == nil {
		return nil
	}
	if err := p.armer.ArmConfirmationExpiry(ctx, booking.ID, *booking.ConfirmationDeadline, conferenceName); err != nil {
		logger.GetDefault().WithError(err).Warn("failed to arm confirmation-expiry timer",
			"booking_id", booking.ID, "conference_name", conferenceName)
		return bookingerr.Wrap(bookingerr.Transient, "arming confirmation expiry timer", err)
	}
	return nil
}
