package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger wraps slog.Logger with additional functionality
type Logger struct {
	*slog.Logger
}

// New creates a new logger instance
func New() *Logger {
	// Get log level from environment
	level := getLogLevel(os.Getenv("LOG_LEVEL"))

	// Create handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	// Create handler based on environment
	var handler slog.Handler
	if gin.Mode() == gin.DebugMode {
		// Use text handler for development (more readable)
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		// Use JSON handler for production (structured)
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	// Create logger
	logger := slog.New(handler)

	return &Logger{
		Logger: logger,
	}
}

// getLogLevel converts string to slog.Level
func getLogLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithRequestID adds request ID to logger context
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{
		Logger: l.Logger.With(slog.String("request_id", requestID)),
	}
}

// WithUserID adds user ID to logger context
func (l *Logger) WithUserID(userID string) *Logger {
	return &Logger{
		Logger: l.Logger.With(slog.String("user_id", userID)),
	}
}

// WithError adds error to logger context
func (l *Logger) WithError(err error) *Logger {
	return &Logger{
		Logger: l.Logger.With(slog.String("error", err.Error())),
	}
}

// WithFields adds multiple fields to logger context
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, slog.Any(k, v))
	}
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// HTTP logging methods

// LogHTTPRequest logs an HTTP request
func (l *Logger) LogHTTPRequest(c *gin.Context, duration time.Duration) {
	l.Logger.InfoContext(c.Request.Context(),
		"HTTP Request",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("query", c.Request.URL.RawQuery),
		slog.Int("status", c.Writer.Status()),
		slog.Duration("duration", duration),
		slog.String("ip", c.ClientIP()),
		slog.String("user_agent", c.Request.UserAgent()),
		slog.Int("size", c.Writer.Size()),
	)
}

// LogHTTPError logs an HTTP error
func (l *Logger) LogHTTPError(c *gin.Context, err error, statusCode int) {
	l.Logger.ErrorContext(c.Request.Context(),
		"HTTP Error",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.Int("status", statusCode),
		slog.String("error", err.Error()),
		slog.String("ip", c.ClientIP()),
	)
}

// Database logging methods

// LogDBQuery logs a database query
func (l *Logger) LogDBQuery(ctx context.Context, query string, duration time.Duration, err error) {
	if err != nil {
		l.Logger.ErrorContext(ctx,
			"Database Query Error",
			slog.String("query", query),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()),
		)
	} else {
		l.Logger.DebugContext(ctx,
			"Database Query",
			slog.String("query", query),
			slog.Duration("duration", duration),
		)
	}
}

// Business logic logging methods

// LogBookingCreated logs the outcome of the booking-creation decision.
func (l *Logger) LogBookingCreated(ctx context.Context, bookingID, conferenceName, userID, status string) {
	l.Logger.InfoContext(ctx,
		"booking created",
		slog.String("booking_id", bookingID),
		slog.String("conference_name", conferenceName),
		slog.String("user_id", userID),
		slog.String("status", status),
	)
}

// LogBookingCancelled logs when a booking is canceled.
func (l *Logger) LogBookingCancelled(ctx context.Context, bookingID, userID string) {
	l.Logger.InfoContext(ctx,
		"booking canceled",
		slog.String("booking_id", bookingID),
		slog.String("user_id", userID),
	)
}

// LogBookingPromoted logs a waitlist promotion to CONFIRMATION_PENDING.
func (l *Logger) LogBookingPromoted(ctx context.Context, bookingID, conferenceName string, deadline time.Time) {
	l.Logger.InfoContext(ctx,
		"booking promoted to confirmation pending",
		slog.String("booking_id", bookingID),
		slog.String("conference_name", conferenceName),
		slog.Time("deadline", deadline),
	)
}

// LogBookingForfeited logs a confirmation-window expiry being forfeited
// back to the waitlist tail.
func (l *Logger) LogBookingForfeited(ctx context.Context, bookingID, conferenceName string) {
	l.Logger.InfoContext(ctx,
		"confirmation window forfeited, booking returned to waitlist tail",
		slog.String("booking_id", bookingID),
		slog.String("conference_name", conferenceName),
	)
}

// LogConferencePurged logs a conference-start purge of non-confirmed bookings.
func (l *Logger) LogConferencePurged(ctx context.Context, conferenceName string, purgedCount int64) {
	l.Logger.InfoContext(ctx,
		"conference start purged non-confirmed bookings",
		slog.String("conference_name", conferenceName),
		slog.Int64("purged_count", purgedCount),
	)
}

// LogBrokerPublish logs an outbound broker publish attempt.
func (l *Logger) LogBrokerPublish(ctx context.Context, exchange, routingKey string, attempt int, err error) {
	if err != nil {
		l.Logger.WarnContext(ctx,
			"broker publish attempt failed",
			slog.String("exchange", exchange),
			slog.String("routing_key", routingKey),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		return
	}
	l.Logger.DebugContext(ctx,
		"broker publish succeeded",
		slog.String("exchange", exchange),
		slog.String("routing_key", routingKey),
		slog.Int("attempt", attempt),
	)
}

// LogConsumerError logs a consumer handler failure, noting whether the
// delivery will be requeued.
func (l *Logger) LogConsumerError(ctx context.Context, queue string, err error, requeued bool) {
	l.Logger.ErrorContext(ctx,
		"consumer handler error",
		slog.String("queue", queue),
		slog.String("error", err.Error()),
		slog.Bool("requeued", requeued),
	)
}

// Helper methods for common patterns

// InfoWithContext logs an info message with context
func (l *Logger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, slog.Any(k, v))
	}
	l.Logger.InfoContext(ctx, msg, args...)
}

// ErrorWithContext logs an error message with context
func (l *Logger) ErrorWithContext(ctx context.Context, msg string, err error, fields map[string]interface{}) {
	args := make([]interface{}, 0, len(fields)*2+2)
	args = append(args, slog.String("error", err.Error()))
	for k, v := range fields {
		args = append(args, slog.Any(k, v))
	}
	l.Logger.ErrorContext(ctx, msg, args...)
}

// DebugWithContext logs a debug message with context
func (l *Logger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, slog.Any(k, v))
	}
	l.Logger.DebugContext(ctx, msg, args...)
}

// Global logger instance (can be replaced with dependency injection)
var defaultLogger = New()

// GetDefault returns the default logger instance
func GetDefault() *Logger {
	return defaultLogger
}

// SetDefault sets the default logger instance
func SetDefault(logger *Logger) {
	defaultLogger = logger
}
