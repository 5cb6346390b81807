package httpapi

import (
	"net/http"

	"confwaitlist/internal/bookings"
	"confwaitlist/internal/conferences"
	"confwaitlist/internal/shared/utils/response"
	"confwaitlist/internal/shared/validation"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type ConferencesController struct {
	service     *conferences.Service
	confRepo    conferences.Repository
	bookingRepo bookings.Repository
	validator   *validator.Validate
}

func NewConferencesController(service *conferences.Service, confRepo conferences.Repository, bookingRepo bookings.Repository) *ConferencesController {
	return &ConferencesController{
		service:     service,
		confRepo:    confRepo,
		bookingRepo: bookingRepo,
		validator:   validation.New(),
	}
}

// CreateConference handles POST /conference.
func (ctl *ConferencesController) CreateConference(c *gin.Context) {
	var req conferences.CreateConferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}
	if err := ctl.validator.Struct(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	conf, err := ctl.service.CreateConference(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusCreated, "conference created", gin.H{"id": conf.ID}, nil)
}

// ListBookings handles GET /conference/{name}/bookings.
func (ctl *ConferencesController) ListBookings(c *gin.Context) {
	name := c.Param("name")

	conf, err := ctl.confRepo.GetByName(c.Request.Context(), name)
	if err != nil {
		respondError(c, err)
		return
	}

	rows, err := ctl.bookingRepo.ListByConferenceID(c.Request.Context(), conf.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]bookings.BookingStatusResponse, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToStatusResponse(conf.Name))
	}

	response.RespondJSON(c, "success", http.StatusOK, "bookings retrieved", out, nil)
}
