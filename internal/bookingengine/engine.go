// Package bookingengine is the Booking Engine (§4.2): the booking state
// machine. It decides confirmed vs. waitlisted on request, confirms from
// waitlist, cancels, forfeits an expired confirmation back to the
// waitlist tail, and purges a conference's non-confirmed bookings at
// start. Booking state is mutated only here and in the Waitlist
// Promoter, which the engine calls inline, after commit, whenever a slot
// is freed (§9's one-way event bus: Engine calls Promoter, never the
// reverse).
package bookingengine

import (
	"context"
	"time"

	"confwaitlist/internal/bookingerr"
	"confwaitlist/internal/bookings"
	"confwaitlist/internal/conferences"
	"confwaitlist/internal/users"
	"confwaitlist/internal/waitlist"
	"confwaitlist/pkg/logger"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WaitlistHousekeeper manages the per-conference waitlist queue (§6
// topology: `conference.{name}.waitlist`) that exists purely for
// operational bookkeeping — the database remains authoritative for
// waitlist state. Modeled as an interface for the same reason
// waitlist.ExpiryArmer and conferences.StartArmer are: this package
// never imports the broker package directly.
type WaitlistHousekeeper interface {
	EnsureWaitlistQueue(ctx context.Context, conferenceName string, bookingID uuid.UUID)
	DeleteWaitlistQueue(ctx context.Context, conferenceName string)
}

type Engine struct {
	db          *gorm.DB
	confRepo    conferences.Repository
	bookingRepo bookings.Repository
	userRepo    users.Repository
	promoter    *waitlist.Promoter
	housekeeper WaitlistHousekeeper
}

func New(db *gorm.DB, confRepo conferences.Repository, bookingRepo bookings.Repository, userRepo users.Repository, promoter *waitlist.Promoter, housekeeper WaitlistHousekeeper) *Engine {
	return &Engine{
		db:          db,
		confRepo:    confRepo,
		bookingRepo: bookingRepo,
		userRepo:    userRepo,
		promoter:    promoter,
		housekeeper: housekeeper,
	}
}

// CreateBooking runs the booking-creation decision (§4.2) atomically per
// request.
func (e *Engine) CreateBooking(ctx context.Context, conferenceName, userID string) (*bookings.Booking, error) {
	conf, err := e.confRepo.GetByName(ctx, conferenceName)
	if err != nil {
		return nil, err
	}
	exists, err := e.userRepo.Exists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, bookingerr.New(bookingerr.NotFound, "user not found")
	}
	now := time.Now().UTC()
	if !now.Before(conf.Start) {
		return nil, bookingerr.New(bookingerr.Validation, "conference has already started")
	}

	var booking *bookings.Booking
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := e.confRepo.LockForUpdate(tx, conferenceName)
		if err != nil {
			return err
		}

		existingID, err := e.bookingRepo.ExistingActiveBooking(tx, userID, locked.ID)
		if err != nil {
			return err
		}
		if existingID != nil {
			return bookingerr.New(bookingerr.Conflict, "an active booking already exists for this user and conference")
		}

		overlaps, err := e.bookingRepo.HasOverlappingActiveBooking(tx, userID, locked.Start, locked.End)
		if err != nil {
			return err
		}
		if overlaps {
			return bookingerr.New(bookingerr.Conflict, "user has an overlapping active booking on another conference")
		}

		pending, err := e.bookingRepo.CountByStatus(tx, locked.ID, bookings.StatusConfirmationPending)
		if err != nil {
			return err
		}
		waiting, err := e.bookingRepo.CountByStatus(tx, locked.ID, bookings.StatusWaitlisted)
		if err != nil {
			return err
		}

		if locked.AvailableSlots > 0 && pending == 0 && waiting == 0 {
			if err := e.confRepo.DecrementAvailableSlots(tx, locked.ID); err != nil {
				return err
			}
			booking = &bookings.Booking{
				ConferenceID: locked.ID,
				UserID:       userID,
				Status:       bookings.StatusConfirmed,
			}
			if err := e.bookingRepo.Create(tx, booking); err != nil {
				return err
			}
			return e.bookingRepo.CascadeCancelOverlappingWaitlists(tx, userID, locked.Start, locked.End, locked.ID)
		}

		position, err := e.bookingRepo.NextWaitlistPosition(tx, locked.ID)
		if err != nil {
			return err
		}
		booking = &bookings.Booking{
			ConferenceID:     locked.ID,
			UserID:           userID,
			Status:           bookings.StatusWaitlisted,
			WaitlistPosition: &position,
		}
		return e.bookingRepo.Create(tx, booking)
	})
	if err != nil {
		return nil, err
	}
	if booking.Status == bookings.StatusWaitlisted {
		e.housekeeper.EnsureWaitlistQueue(ctx, conferenceName, booking.ID)
	}
	return booking, nil
}

// Confirm promotes a CONFIRMATION_PENDING booking to CONFIRMED (§4.2
// Confirmation).
func (e *Engine) Confirm(ctx context.Context, bookingID uuid.UUID, userID string) (*bookings.Booking, error) {
	pre, err := e.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	var confirmed *bookings.Booking
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conf, err := e.confRepo.LockForUpdateByID(tx, pre.ConferenceID)
		if err != nil {
			return err
		}
		booking, err := e.bookingRepo.LockForUpdate(tx, bookingID)
		if err != nil {
			return err
		}

		if booking.UserID != userID {
			return bookingerr.New(bookingerr.StateViolation, "booking does not belong to this user")
		}
		if booking.Status != bookings.StatusConfirmationPending || !booking.CanConfirm {
			return bookingerr.New(bookingerr.StateViolation, "booking is not awaiting confirmation")
		}
		now := time.Now().UTC()
		if booking.ConfirmationDeadline == nil || now.After(*booking.ConfirmationDeadline) {
			return bookingerr.New(bookingerr.StateViolation, "confirmation deadline has passed")
		}
		if !now.Before(conf.Start) {
			return bookingerr.New(bookingerr.StateViolation, "conference has already started")
		}

		if err := e.confRepo.DecrementAvailableSlots(tx, conf.ID); err != nil {
			return err
		}

		booking.Status = bookings.StatusConfirmed
		booking.CanConfirm = false
		booking.ConfirmationDeadline = nil
		booking.WaitlistPosition = nil
		if err := e.bookingRepo.UpdateStatus(tx, booking); err != nil {
			return err
		}

		if err := e.bookingRepo.CascadeCancelOverlappingWaitlists(tx, userID, conf.Start, conf.End, conf.ID); err != nil {
			return err
		}
		confirmed = booking
		return nil
	})
	if err != nil {
		return nil, err
	}
	return confirmed, nil
}

// Cancel cancels a booking and, if it freed a slot or released a
// reservation, triggers a promotion attempt on the conference after
// commit.
func (e *Engine) Cancel(ctx context.Context, bookingID uuid.UUID) (*bookings.Booking, error) {
	pre, err := e.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	var canceled *bookings.Booking
	var shouldPromote bool
	var conferenceID uuid.UUID
	var conferenceName string

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conf, err := e.confRepo.LockForUpdateByID(tx, pre.ConferenceID)
		if err != nil {
			return err
		}
		booking, err := e.bookingRepo.LockForUpdate(tx, bookingID)
		if err != nil {
			return err
		}
		if booking.Status == bookings.StatusCanceled {
			return bookingerr.New(bookingerr.StateViolation, "booking is already canceled")
		}

		if booking.Status == bookings.StatusConfirmed {
			if err := e.confRepo.IncrementAvailableSlots(tx, conf.ID); err != nil {
				return err
			}
			shouldPromote = true
		} else if booking.Status == bookings.StatusConfirmationPending {
			shouldPromote = true
		}

		now := time.Now().UTC()
		booking.Status = bookings.StatusCanceled
		booking.CanceledAt = &now
		booking.CanConfirm = false
		booking.ConfirmationDeadline = nil
		booking.WaitlistPosition = nil
		if err := e.bookingRepo.UpdateStatus(tx, booking); err != nil {
			return err
		}

		canceled = booking
		conferenceID = conf.ID
		conferenceName = conf.Name
		return nil
	})
	if err != nil {
		return nil, err
	}

	if shouldPromote {
		e.promoteAfterCommit(ctx, conferenceID, conferenceName)
	}
	return canceled, nil
}

// ForfeitExpired implements the expired-confirmation consumer's
// transactional step (§4.5): if the booking is still CONFIRMATION_PENDING,
// it is moved back to WAITLISTED at the tail. Idempotent: replaying this
// call after the booking has already moved on is a no-op (P5).
func (e *Engine) ForfeitExpired(ctx context.Context, bookingID uuid.UUID, conferenceName string) (bool, error) {
	var affected bool
	var conferenceID uuid.UUID

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conf, err := e.confRepo.LockForUpdate(tx, conferenceName)
		if err != nil {
			return err
		}
		booking, err := e.bookingRepo.LockForUpdate(tx, bookingID)
		if err != nil {
			return err
		}
		if booking.Status != bookings.StatusConfirmationPending {
			return nil
		}

		position, err := e.bookingRepo.NextWaitlistPosition(tx, conf.ID)
		if err != nil {
			return err
		}
		booking.Status = bookings.StatusWaitlisted
		booking.WaitlistPosition = &position
		booking.CanConfirm = false
		booking.ConfirmationDeadline = nil
		if err := e.bookingRepo.UpdateStatus(tx, booking); err != nil {
			return err
		}

		affected = true
		conferenceID = conf.ID
		return nil
	})
	if err != nil {
		return false, err
	}

	if affected {
		e.promoteAfterCommit(ctx, conferenceID, conferenceName)
	}
	return affected, nil
}

// PurgeNonConfirmedAtStart implements the conference-start consumer's
// transactional step (§4.5): every WAITLISTED or CONFIRMATION_PENDING
// booking for the conference becomes CANCELED; CONFIRMED bookings are
// untouched.
func (e *Engine) PurgeNonConfirmedAtStart(ctx context.Context, conferenceName string) (int64, error) {
	var purged int64
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conf, err := e.confRepo.LockForUpdate(tx, conferenceName)
		if err != nil {
			return err
		}
		purged, err = e.bookingRepo.CancelNonConfirmedForConference(tx, conf.ID)
		return err
	})
	if err != nil {
		return 0, err
	}
	e.housekeeper.DeleteWaitlistQueue(ctx, conferenceName)
	return purged, nil
}

// promoteAfterCommit runs the Waitlist Promoter in its own transaction,
// after the triggering transaction has already committed, and arms the
// resulting confirmation-expiry timer best-effort. Broker publish
// failure here is logged and swallowed, never rolled back into the DB
// (§4's failure semantics) — the system degrades to "no automatic
// promotion" for this booking but stays consistent.
func (e *Engine) promoteAfterCommit(ctx context.Context, conferenceID uuid.UUID, conferenceName string) {
	var promoted *bookings.Booking
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		promoted, _, err = e.promoter.PromoteNext(ctx, tx, conferenceID)
		return err
	})
	if err != nil {
		logger.GetDefault().WithError(err).Warn("waitlist promotion failed", "conference_name", conferenceName)
		return
	}
	if promoted == nil {
		return
	}
	if err := e.promoter.ArmTimer(ctx, promoted, conferenceName); err != nil {
		logger.GetDefault().WithError(err).Warn("failed to arm confirmation expiry after promotion",
			"booking_id", promoted.ID, "conference_name", conferenceName)
	}
}
