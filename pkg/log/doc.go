/*
Package log provides structured logging for Burrow using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support filtering
by severity level for production debugging.

# Usage

Initializing the logger:

	import "github.com/cuemby/burrow/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Simple logging:

	log.Info("Server started")
	log.Error("Failed to connect to database")

Structured logging:

	log.Logger.Info().
		Str("tenant", "acme_corp").
		Int("status", 200).
		Msg("Request completed")

Component loggers:

	busLog := log.WithComponent("eventbus")
	busLog.Debug().Str("event", "AuditEvent").Msg("Delivering event")

Request-scoped loggers:

	reqLog := log.WithTenant("acme_corp")
	reqLog.Info().Str("path", "/users").Msg("Handling request")

# Integration Points

This package integrates with:

  - pkg/server: request lifecycle and error logging
  - pkg/events: delivery loop and listener failures
  - pkg/migrate: migration generation and application
  - pkg/db: namespace creation and pool lifecycle
*/
package log
