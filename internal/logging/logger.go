package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
func Init() {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(handler))
}

// WithIngestion returns a logger with ingestion context fields attached.
// Use this for all logging within a single ingestion event.
func WithIngestion(userID, appContext string) *slog.Logger {
	return slog.With(
		"user_id", userID,
		"app_context", appContext,
	)
}

// WithSchedule returns a logger scoped to a specific schedule firing.
func WithSchedule(scheduleID int64, userID string) *slog.Logger {
	return slog.With(
		"schedule_id", scheduleID,
		"user_id", userID,
	)
}
