/*
Package fetch issues bounded, retrying GETs against the repository host.

The engine owns one Client for its lifetime; it holds the single
http.Client (and connection pool) the whole run shares, sized for one
artifact at a time.

# Retry Policy

Get makes up to http_retries attempts. Between attempts it sleeps
min(backoff_sec * 2^attempt, max_backoff_sec), feeding the watchdog once
per second during the sleep so a long backoff never looks like a hang to
the external timer. Any transport error or HTTP status >= 400 counts as
a failed attempt; exhaustion surfaces as a network error carrying the
last cause.

# Headers

Every request carries the configured User-Agent (the host requires one)
and, when a token is configured, "Authorization: token <token>". The
Accept header switches between the host's JSON media type and
application/octet-stream for raw artifact downloads.

# Streaming

BodySource adapts a response body into the hasher's ChunkSource contract
with a fixed buffer, feeding the watchdog and the transfer byte counter
on every chunk. Timeouts are split per the config: connect via the
dialer, read via the response-header timeout, so a large artifact can
stream for longer than any single timeout as long as bytes keep moving.
*/
package fetch
