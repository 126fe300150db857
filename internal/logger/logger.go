package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New creates and configures a new zerolog logger
func New(logLevel string) zerolog.Logger {
	// Set global log level
	level, err := zerolog.ParseLevel(strings.ToLower(logLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Configure console writer for human-readable output in development
	if os.Getenv("API_ENV") == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	// Create structured logger with common fields
	logger := zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", "health-to-earn").
		Logger()

	return logger
}

// WithRecord adds a reward record id to logger context
func WithRecord(logger zerolog.Logger, recordID string) zerolog.Logger {
	return logger.With().Str("record", recordID).Logger()
}

// WithAthlete adds a Strava athlete id to logger context
func WithAthlete(logger zerolog.Logger, athleteID string) zerolog.Logger {
	return logger.With().Str("athlete", athleteID).Logger()
}

// WithNode adds a dHealth node URL to logger context
func WithNode(logger zerolog.Logger, node string) zerolog.Logger {
	return logger.With().Str("node", node).Logger()
}
