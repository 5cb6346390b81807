package httpapi

import (
	"net/http"

	"confwaitlist/internal/bookingengine"
	"confwaitlist/internal/bookings"
	"confwaitlist/internal/conferences"
	"confwaitlist/internal/shared/utils/response"
	"confwaitlist/internal/shared/validation"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type BookingsController struct {
	engine      *bookingengine.Engine
	bookingRepo bookings.Repository
	confRepo    conferences.Repository
	validator   *validator.Validate
}

func NewBookingsController(engine *bookingengine.Engine, bookingRepo bookings.Repository, confRepo conferences.Repository) *BookingsController {
	return &BookingsController{
		engine:      engine,
		bookingRepo: bookingRepo,
		confRepo:    confRepo,
		validator:   validation.New(),
	}
}

// Book handles POST /book — the booking-creation decision (§4.2).
func (ctl *BookingsController) Book(c *gin.Context) {
	var req bookings.BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}
	if err := ctl.validator.Struct(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	booking, err := ctl.engine.CreateBooking(c.Request.Context(), req.ConferenceName, req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	message := "booking confirmed"
	if booking.Status == bookings.StatusWaitlisted {
		message = "added to waitlist"
	}
	response.RespondJSON(c, "success", http.StatusCreated, message, bookings.BookResponse{
		BookingID:        booking.ID,
		Status:           booking.Status,
		Message:          message,
		WaitlistPosition: booking.WaitlistPosition,
	}, nil)
}

// GetBooking handles GET /booking/{id}.
func (ctl *BookingsController) GetBooking(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "invalid booking id", nil, nil)
		return
	}

	booking, err := ctl.bookingRepo.GetByID(c.Request.Context(), bookingID)
	if err != nil {
		respondError(c, err)
		return
	}
	conf, err := ctl.confRepo.GetByID(c.Request.Context(), booking.ConferenceID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "booking retrieved", booking.ToStatusResponse(conf.Name), nil)
}

// Confirm handles POST /confirm (§4.2 Confirmation). Only the ownership-
// checked entry point is exposed; the other one the source carried is
// not reimplemented here (§9 open question).
func (ctl *BookingsController) Confirm(c *gin.Context) {
	var req bookings.ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}
	if err := ctl.validator.Struct(&req); err != nil {
		respondValidationError(c, err)
		return
	}
	bookingID, err := uuid.Parse(req.BookingID)
	if err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "invalid booking id", nil, nil)
		return
	}

	booking, err := ctl.engine.Confirm(c.Request.Context(), bookingID, req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "booking confirmed", gin.H{"booking_id": booking.ID, "status": booking.Status}, nil)
}

// Cancel handles POST /cancel.
func (ctl *BookingsController) Cancel(c *gin.Context) {
	var req bookings.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}
	if err := ctl.validator.Struct(&req); err != nil {
		respondValidationError(c, err)
		return
	}
	bookingID, err := uuid.Parse(req.BookingID)
	if err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "invalid booking id", nil, nil)
		return
	}

	booking, err := ctl.engine.Cancel(c.Request.Context(), bookingID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "booking canceled", gin.H{"booking_id": booking.ID, "status": booking.Status}, nil)
}
