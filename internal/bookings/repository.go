package bookings

import (
	"context"
	"errors"
	"time"

	"confwaitlist/internal/bookingerr"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository is the bookings slice of the Persistence Gateway (§4.1).
// Every method that participates in a cross-aggregate transaction (the
// booking decision, confirmation, cancellation, promotion) takes an
// explicit tx handle owned by its caller, rather than opening its own
// transaction the way the teacher's CreateBookingWithCapacityCheck does
// — those operations need the conferences row lock and the bookings
// table in the same transaction, so the transaction boundary belongs to
// the Booking Engine, one level up.
type Repository interface {
	Create(tx *gorm.DB, booking *Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	LockForUpdate(tx *gorm.DB, id uuid.UUID) (*Booking, error)
	UpdateStatus(tx *gorm.DB, booking *Booking) error
	ListByConferenceID(ctx context.Context, conferenceID uuid.UUID) ([]Booking, error)

	// ExistingActiveBooking returns the id of the caller's non-CANCELED
	// booking on conf, if any.
	ExistingActiveBooking(tx *gorm.DB, userID string, conferenceID uuid.UUID) (*uuid.UUID, error)

	// HasOverlappingActiveBooking joins bookings to conferences and
	// applies the overlap predicate over all of the user's non-CANCELED
	// bookings.
	HasOverlappingActiveBooking(tx *gorm.DB, userID string, start, end time.Time) (bool, error)

	// NextWaitlistPosition returns max(position)+1 for conf, 1 if none.
	NextWaitlistPosition(tx *gorm.DB, conferenceID uuid.UUID) (int, error)

	CountByStatus(tx *gorm.DB, conferenceID uuid.UUID, status Status) (int, error)

	// NextWaitlisted returns the WAITLISTED booking with the smallest
	// waitlist_position for conf, or nil if none.
	NextWaitlisted(tx *gorm.DB, conferenceID uuid.UUID) (*Booking, error)

	// CascadeCancelOverlappingWaitlists sets this user's WAITLISTED
	// bookings that overlap [start, end) on conferences other than
	// exceptConferenceID to CANCELED.
	CascadeCancelOverlappingWaitlists(tx *gorm.DB, userID string, start, end time.Time, exceptConferenceID uuid.UUID) error

	// CancelNonConfirmedForConference cancels every WAITLISTED or
	// CONFIRMATION_PENDING booking for conf (used by the conference-start
	// consumer).
	CancelNonConfirmedForConference(tx *gorm.DB, conferenceID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(tx *gorm.DB, booking *Booking) error {
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = time.Now().UTC()
	}
	if err := tx.Create(booking).Error; err != nil {
		return bookingerr.Wrap(bookingerr.Transient, "creating booking", err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	var booking Booking
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bookingerr.New(bookingerr.NotFound, "booking not found")
		}
		return nil, bookingerr.Wrap(bookingerr.Transient, "loading booking", err)
	}
	return &booking, nil
}

func (r *repository) LockForUpdate(tx *gorm.DB, id uuid.UUID) (*Booking, error) {
	var booking Booking
	err := tx.Set("gorm:query_option", "FOR UPDATE").
		Where("id = ?", id).
		First(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bookingerr.New(bookingerr.NotFound, "booking not found")
		}
		return nil, bookingerr.Wrap(bookingerr.Transient, "locking booking", err)
	}
	return &booking, nil
}

// UpdateStatus persists status and the transient fields I5 governs
// (deadline/can_confirm/waitlist_position/canceled_at) exactly as they
// are set on booking, writing nil pointers as NULL. It does not clear
// fields on its own; callers reset the ones that do not apply to the
// new status before calling it.
func (r *repository) UpdateStatus(tx *gorm.DB, booking *Booking) error {
	updates := map[string]interface{}{
		"status":                booking.Status,
		"can_confirm":           booking.CanConfirm,
		"confirmation_deadline": booking.ConfirmationDeadline,
		"waitlist_position":     booking.WaitlistPosition,
		"canceled_at":           booking.CanceledAt,
	}
	err := tx.Model(&Booking{}).Where("id = ?", booking.ID).Updates(updates).Error
	if err != nil {
		return bookingerr.Wrap(bookingerr.Transient, "updating booking", err)
	}
	return nil
}

func (r *repository) ListByConferenceID(ctx context.Context, conferenceID uuid.UUID) ([]Booking, error) {
	var rows []Booking
	err := r.db.WithContext(ctx).
		Where("conference_id = ?", conferenceID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, bookingerr.Wrap(bookingerr.Transient, "listing bookings", err)
	}
	return rows, nil
}

func (r *repository) ExistingActiveBooking(tx *gorm.DB, userID string, conferenceID uuid.UUID) (*uuid.UUID, error) {
	var booking Booking
	err := tx.
		Where("user_id = ? AND conference_id = ? AND status <> ?", userID, conferenceID, StatusCanceled).
		First(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, bookingerr.Wrap(bookingerr.Transient, "checking existing booking", err)
	}
	return &booking.ID, nil
}

func (r *repository) HasOverlappingActiveBooking(tx *gorm.DB, userID string, start, end time.Time) (bool, error) {
	var count int64
	err := tx.Table("bookings").
		Joins("JOIN conferences ON conferences.id = bookings.conference_id").
		Where("bookings.user_id = ?", userID).
		Where("bookings.status <> ?", StatusCanceled).
		Where("conferences.start_timestamp < ? AND ? < conferences.end_timestamp", end, start).
		Count(&count).Error
	if err != nil {
		return false, bookingerr.Wrap(bookingerr.Transient, "checking overlapping bookings", err)
	}
	return count > 0, nil
}

func (r *repository) NextWaitlistPosition(tx *gorm.DB, conferenceID uuid.UUID) (int, error) {
	var max *int
	err := tx.Model(&Booking{}).
		Where("conference_id = ? AND status = ?", conferenceID, StatusWaitlisted).
		Select("MAX(waitlist_position)").
		Scan(&max).Error
	if err != nil {
		return 0, bookingerr.Wrap(bookingerr.Transient, "computing next waitlist position", err)
	}
	if max == nil {
		return 1, nil
	}
	return *max + 1, nil
}

func (r *repository) CountByStatus(tx *gorm.DB, conferenceID uuid.UUID, status Status) (int, error) {
	var count int64
	err := tx.Model(&Booking{}).
		Where("conference_id = ? AND status = ?", conferenceID, status).
		Count(&count).Error
	if err != nil {
		return 0, bookingerr.Wrap(bookingerr.Transient, "counting bookings by status", err)
	}
	return int(count), nil
}

func (r *repository) NextWaitlisted(tx *gorm.DB, conferenceID uuid.UUID) (*Booking, error) {
	var booking Booking
	err := tx.Set("gorm:query_option", "FOR UPDATE").
		Where("conference_id = ? AND status = ?", conferenceID, StatusWaitlisted).
		Order("waitlist_position ASC").
		Limit(1).
		First(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, bookingerr.Wrap(bookingerr.Transient, "selecting next waitlisted booking", err)
	}
	return &booking, nil
}

func (r *repository) CascadeCancelOverlappingWaitlists(tx *gorm.DB, userID string, start, end time.Time, exceptConferenceID uuid.UUID) error {
	now := time.Now().UTC()
	err := tx.Exec(`
		UPDATE bookings SET
			status = ?,
			canceled_at = ?,
			can_confirm = false,
			confirmation_deadline = NULL,
			waitlist_position = NULL
		FROM conferences
		WHERE bookings.conference_id = conferences.id
		  AND bookings.user_id = ?
		  AND bookings.status = ?
		  AND bookings.conference_id <> ?
		  AND conferences.start_timestamp < ?
		  AND ? < conferences.end_timestamp
	`, StatusCanceled, now, userID, StatusWaitlisted, exceptConferenceID, end, start).Error
	if err != nil {
		return bookingerr.Wrap(bookingerr.Transient, "cascading cancellation of overlapping waitlists", err)
	}
	return nil
}

func (r *repository) CancelNonConfirmedForConference(tx *gorm.DB, conferenceID uuid.UUID) (int64, error) {
	now := time.Now().UTC()
	res := tx.Model(&Booking{}).
		Where("conference_id = ? AND status IN ?", conferenceID, []Status{StatusWaitlisted, StatusConfirmationPending}).
		Updates(map[string]interface{}{
			"status":                StatusCanceled,
			"canceled_at":           now,
			"can_confirm":           false,
			"confirmation_deadline": nil,
			"waitlist_position":     nil,
		})
	if res.Error != nil {
		return 0, bookingerr.Wrap(bookingerr.Transient, "purging non-confirmed bookings", res.Error)
	}
	return res.RowsAffected, nil
}
