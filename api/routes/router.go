// api/routes/router.go
package routes

import (
	"net/http"
	"time"

	"confwaitlist/internal/bookingengine"
	"confwaitlist/internal/bookings"
	"confwaitlist/internal/conferences"
	"confwaitlist/internal/httpapi"
	"confwaitlist/internal/shared/config"
	"confwaitlist/internal/shared/database"
	"confwaitlist/internal/users"

	"github.com/gin-gonic/gin"
)

// Router holds all route dependencies. Unlike the teacher's version it
// does not construct its own repositories per domain group — the
// booking engine and its collaborators need to share a single set of
// repositories and a single broker connection, so the caller wires
// those in main and passes them here; NewRouter builds the controllers
// from them.
type Router struct {
	config      *config.Config
	db          *database.DB
	users       *httpapi.UsersController
	conferences *httpapi.ConferencesController
	bookings    *httpapi.BookingsController
}

// NewRouter creates a new router instance.
func NewRouter(cfg *config.Config, db *database.DB, engine *bookingengine.Engine, confService *conferences.Service, confRepo conferences.Repository, bookingRepo bookings.Repository, userRepo users.Repository) *Router {
	return &Router{
		config:      cfg,
		db:          db,
		users:       httpapi.NewUsersController(userRepo),
		conferences: httpapi.NewConferencesController(confService, confRepo, bookingRepo),
		bookings:    httpapi.NewBookingsController(engine, bookingRepo, confRepo),
	}
}

// SetupRoutes configures all application routes.
func (r *Router) SetupRoutes(engine *gin.Engine) {
	r.setupHealthRoutes(engine)

	api := engine.Group(r.config.APIPrefix)
	{
		api.POST("/user", r.users.CreateUser)

		api.POST("/conference", r.conferences.CreateConference)
		api.GET("/conference/:name/bookings", r.conferences.ListBookings)

		api.POST("/book", r.bookings.Book)
		api.GET("/booking/:id", r.bookings.GetBooking)
		api.POST("/confirm", r.bookings.Confirm)
		api.POST("/cancel", r.bookings.Cancel)
	}
}

// setupHealthRoutes sets up health check and system status routes.
func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		if err := r.db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now(),
				"service":   "confwaitlist",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "confwaitlist",
		})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
}
