package bookings

import (
	"time"

	"github.com/google/uuid"
)

// Status is the booking state machine's tagged variant, matching §3's
// four-valued domain exactly.
type Status string

const (
	StatusConfirmed           Status = "CONFIRMED"
	StatusWaitlisted          Status = "WAITLISTED"
	StatusConfirmationPending Status = "CONFIRMATION_PENDING"
	StatusCanceled            Status = "CANCELED"
)

// IsValid reports whether s is one of the four known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusConfirmed, StatusWaitlisted, StatusConfirmationPending, StatusCanceled:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether s cannot transition further (I6).
func (s Status) IsTerminal() bool {
	return s == StatusCanceled
}

// Booking is a single reservation attempt against a conference, owned
// exclusively by its Conference aggregate for transactional updates (§3
// Ownership).
type Booking struct {
	ID                   uuid.UUID  `json:"id" gorm:"column:id;primaryKey;type:uuid;default:gen_random_uuid()"`
	ConferenceID         uuid.UUID  `json:"conference_id" gorm:"column:conference_id;not null;index:idx_booking_conf_status"`
	UserID               string     `json:"user_id" gorm:"column:user_id;not null;index"`
	Status               Status     `json:"status" gorm:"column:status;not null;index:idx_booking_conf_status"`
	CreatedAt            time.Time  `json:"created_at" gorm:"column:created_at"`
	CanceledAt           *time.Time `json:"canceled_at,omitempty" gorm:"column:canceled_at"`
	ConfirmationDeadline *time.Time `json:"confirmation_deadline,omitempty" gorm:"column:confirmation_deadline"`
	CanConfirm           bool       `json:"can_confirm" gorm:"column:can_confirm;not null;default:false"`
	WaitlistPosition     *int       `json:"waitlist_position,omitempty" gorm:"column:waitlist_position"`
}

func (Booking) TableName() string {
	return "bookings"
}

// CanBeCancelled reports whether the booking is not already terminal.
func (b *Booking) CanBeCancelled() bool {
	return b.Status != StatusCanceled
}

// BookRequest is the POST /book request body.
type BookRequest struct {
	ConferenceName string `json:"name" validate:"required,confname"`
	UserID         string `json:"user_id" validate:"required,alnum"`
}

// ConfirmRequest is the POST /confirm request body.
type ConfirmRequest struct {
	BookingID string `json:"booking_id" validate:"required,uuid4"`
	UserID    string `json:"user_id" validate:"required,alnum"`
}

// CancelRequest is the POST /cancel request body.
type CancelRequest struct {
	BookingID string `json:"booking_id" validate:"required,uuid4"`
}

// BookResponse is the POST /book success payload.
type BookResponse struct {
	BookingID        uuid.UUID `json:"booking_id"`
	Status           Status    `json:"status"`
	Message          string    `json:"message"`
	WaitlistPosition *int      `json:"waitlist_position,omitempty"`
}

// BookingStatusResponse is the GET /booking/{id} success payload.
type BookingStatusResponse struct {
	BookingID            uuid.UUID  `json:"booking_id"`
	Status               Status     `json:"status"`
	ConferenceName       string     `json:"conference_name"`
	CanConfirm           bool       `json:"can_confirm"`
	ConfirmationDeadline *time.Time `json:"confirmation_deadline,omitempty"`
	WaitlistPosition     *int       `json:"waitlist_position,omitempty"`
}

func (b *Booking) ToStatusResponse(conferenceName string) BookingStatusResponse {
	return BookingStatusResponse{
		BookingID:            b.ID,
		Status:               b.Status,
		ConferenceName:       conferenceName,
		CanConfirm:           b.CanConfirm,
		ConfirmationDeadline: b.ConfirmationDeadline,
		WaitlistPosition:     b.WaitlistPosition,
	}
}
