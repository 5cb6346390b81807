package httpapi

import (
	"net/http"

	"confwaitlist/internal/shared/utils/response"
	"confwaitlist/internal/shared/validation"
	"confwaitlist/internal/users"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type UsersController struct {
	repo      users.Repository
	validator *validator.Validate
}

func NewUsersController(repo users.Repository) *UsersController {
	return &UsersController{repo: repo, validator: validation.New()}
}

// CreateUser handles POST /user.
func (ctl *UsersController) CreateUser(c *gin.Context) {
	var req users.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}
	if err := ctl.validator.Struct(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	if err := ctl.repo.CreateUser(c.Request.Context(), req.UserID, req.Topics); err != nil {
		respondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusCreated, "user created", nil, nil)
}
