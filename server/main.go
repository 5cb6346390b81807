package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"confwaitlist/api/routes"
	"confwaitlist/internal/bookingengine"
	"confwaitlist/internal/bookings"
	"confwaitlist/internal/broker"
	"confwaitlist/internal/conferences"
	"confwaitlist/internal/consumers"
	"confwaitlist/internal/shared/config"
	"confwaitlist/internal/shared/database"
	"confwaitlist/internal/users"
	"confwaitlist/internal/waitlist"
	"confwaitlist/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	appLogger := logger.GetDefault()

	if err := godotenv.Load(); err != nil {
		if os.Getenv("GIN_MODE") == "release" || os.Getenv("DOCKER_CONTAINER") == "true" {
			appLogger.Info("production environment: using container environment variables")
		} else {
			appLogger.Info("no .env file found, using system environment variables")
		}
	} else {
		appLogger.Info("development environment: loaded .env file")
	}

	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	db, err := database.InitDB(cfg)
	if err != nil {
		appLogger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	userRepo := users.NewRepository(db.PostgreSQL)
	confRepo := conferences.NewRepository(db.PostgreSQL)
	bookingRepo := bookings.NewRepository(db.PostgreSQL)

	conn, err := broker.Dial(cfg.Broker, cfg.Booking.ConfirmationWindow)
	if err != nil {
		appLogger.Error("failed to connect to broker", slog.Any("error", err))
		os.Exit(1)
	}
	defer conn.Close()

	publisher := broker.NewPublisher(conn, cfg.Booking)

	confService := conferences.NewService(confRepo, publisher)
	promoter := waitlist.NewPromoter(bookingRepo, confRepo, publisher, cfg.Booking.ConfirmationWindow)
	engine := bookingengine.New(db.PostgreSQL, confRepo, bookingRepo, userRepo, promoter, publisher)

	consumerCtx, stopConsumers := context.WithCancel(context.Background())
	defer stopConsumers()

	expiredConsumer := broker.NewConsumer(conn, cfg.Broker, broker.ConfirmationExpiredQueue, 10, consumers.ExpiredConfirmationHandler(engine))
	startConsumer := broker.NewConsumer(conn, cfg.Broker, broker.ConferenceStartsQueue, 10, consumers.ConferenceStartHandler(engine))

	go expiredConsumer.Run(consumerCtx)
	go startConsumer.Run(consumerCtx)

	router := setupRouter(cfg, db, engine, confService, confRepo, bookingRepo, userRepo)

	srv := &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        router,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	go func() {
		appLogger.Info("server running",
			slog.String("address", cfg.GetServerAddress()),
			slog.String("version", Version),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("server failed", slog.Any("error", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("shutting down server...")

	stopConsumers()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("forced shutdown", slog.Any("error", err))
	}

	appLogger.Info("server exited gracefully")
}

func setupRouter(cfg *config.Config, db *database.DB, engine *bookingengine.Engine, confService *conferences.Service, confRepo conferences.Repository, bookingRepo bookings.Repository, userRepo users.Repository) *gin.Engine {
	ginEngine := gin.New()
	appLogger := logger.GetDefault()

	ginEngine.Use(RequestLoggerMiddleware(appLogger), gin.Recovery())

	ginEngine.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	appRouter := routes.NewRouter(cfg, db, engine, confService, confRepo, bookingRepo, userRepo)
	appRouter.SetupRoutes(ginEngine)

	return ginEngine
}

func RequestLoggerMiddleware(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		l.LogHTTPRequest(c, duration)
	}
}
