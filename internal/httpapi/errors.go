// Package httpapi is the thin HTTP adapter (§6): request validation and
// translation to/from the booking core. It never contains business
// rules — those live in bookingengine, waitlist, and the repositories.
package httpapi

import (
	"net/http"

	"confwaitlist/internal/bookingerr"
	"confwaitlist/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
)

// respondError maps a bookingerr.Kind to the status §7 assigns it. Any
// other error is treated as an unexpected transient failure.
func respondError(c *gin.Context, err error) {
	if kerr, ok := bookingerr.As(err); ok {
		response.RespondJSON(c, "error", kerr.Kind.HTTPStatus(), kerr.Message, nil, nil)
		return
	}
	response.RespondJSON(c, "error", http.StatusInternalServerError, "internal error", nil, nil)
}

func respondValidationError(c *gin.Context, err error) {
	response.RespondJSON(c, "error", http.StatusBadRequest, "validation failed", nil, err.Error())
}
