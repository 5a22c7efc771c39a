/*
Package log provides structured logging for Molt built on zerolog.

The log package wraps zerolog with a global logger instance and helpers for
creating component-scoped child loggers. All Molt components log through this
package so that output format and level are controlled in one place, from the
CLI flags down.

# Architecture

	┌──────────────────── LOGGING ─────────────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │              Global Logger                  │          │
	│  │  - Initialized once via Init(Config)        │          │
	│  │  - Level: debug, info, warn, error          │          │
	│  │  - Output: JSON or console (RFC3339)        │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Child Loggers                    │          │
	│  │  WithComponent("engine")                    │          │
	│  │  WithComponent("swap")                      │          │
	│  │  WithAttemptID(uuid)                        │          │
	│  └────────────────────────────────────────────┘          │
	│                                                            │
	└────────────────────────────────────────────────────────────┘

# Usage

Initialize once at startup, typically from the CLI:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: false,
	})

Components take a child logger tagged with their name:

	logger := log.WithComponent("stage")
	logger.Info().Str("path", rel).Msg("Staged file")

Update attempts are correlated across components with WithAttemptID, which
stamps every line of a run with the attempt UUID.

# Fields

Standard fields used across Molt:

  - component: which subsystem emitted the line (engine, swap, stage, fetch)
  - attempt_id: UUID of the running update attempt
  - path: live-relative path of the artifact being processed
*/
package log
