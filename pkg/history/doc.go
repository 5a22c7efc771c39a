/*
Package history persists device health and update-attempt records in an
embedded BoltDB store at the device root.

The engine is the only writer: it records attempt outcomes, errors, and
the last-check rate-limit stamp. The external update scheduler is the
reader — it consults recent crash counts and the rate-limit stamp when
deciding whether this is a good moment to run an update at all. Keeping
the store here rather than in the scheduler means a reflashed scheduler
cannot lose the device's health memory.

# Layout

	ota_history.db
	├── events      "<kind>/" + 8-byte big-endian sequence -> Event JSON
	├── attempts    8-byte big-endian sequence             -> AttemptRecord JSON
	└── rate_limit  "last_check"                           -> RFC3339Nano timestamp

Each event kind (crash, error, update) is a capped ring of 100 entries;
the oldest are pruned on insert so the store stays small on flash.
Corrupt entries are skipped on read, never fatal — health history is
advisory, not load-bearing.
*/
package history
