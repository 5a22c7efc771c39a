package fetch

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/molt/pkg/config"
	"github.com/cuemby/molt/pkg/device"
	"github.com/cuemby/molt/pkg/errdefs"
	"github.com/cuemby/molt/pkg/hasher"
	"github.com/cuemby/molt/pkg/log"
	"github.com/cuemby/molt/pkg/metrics"
)

const (
	acceptJSON   = "application/vnd.github+json"
	acceptBinary = "application/octet-stream"
)

// Client issues bounded, retrying GETs against the repository host. The
// engine owns exactly one instance; the underlying http.Client and its
// connection pool live for the engine's lifetime.
type Client struct {
	http       *http.Client
	caps       device.Capabilities
	logger     zerolog.Logger
	userAgent  string
	token      string
	retries    int
	backoff    time.Duration
	maxBackoff time.Duration
}

// New creates a fetch client from the run configuration
func New(cfg *config.Config, caps device.Capabilities) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout: time.Duration(cfg.ConnectTimeoutSec) * time.Second,
		}).DialContext,
		ResponseHeaderTimeout: time.Duration(cfg.HTTPTimeoutSec) * time.Second,
		// One artifact at a time; keep the pool tiny
		MaxIdleConns:    2,
		IdleConnTimeout: 30 * time.Second,
	}
	return &Client{
		http:       &http.Client{Transport: transport},
		caps:       caps,
		logger:     log.WithComponent("fetch"),
		userAgent:  cfg.UserAgent,
		token:      cfg.Token,
		retries:    cfg.HTTPRetries,
		backoff:    time.Duration(cfg.BackoffSec) * time.Second,
		maxBackoff: time.Duration(cfg.MaxBackoffSec) * time.Second,
	}
}

// Get fetches url with up to the configured number of attempts, sleeping
// an exponentially growing backoff between attempts and feeding the
// watchdog throughout. raw selects the octet-stream Accept header. The
// caller owns the response body.
func (c *Client) Get(ctx context.Context, url string, raw bool) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			c.sleep(ctx, c.backoffFor(attempt-1))
			if ctx.Err() != nil {
				return nil, errdefs.Wrap(errdefs.ErrNetwork, ctx.Err())
			}
		}

		resp, err := c.do(ctx, url, raw)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		c.logger.Warn().Err(err).Int("attempt", attempt+1).Str("url", url).Msg("Fetch attempt failed")
	}
	return nil, errdefs.Wrapf(errdefs.ErrNetwork, "%d attempts failed for %s: %v", c.retries, url, lastErr)
}

func (c *Client) do(ctx context.Context, url string, raw bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if raw {
		req.Header.Set("Accept", acceptBinary)
	} else {
		req.Header.Set("Accept", acceptJSON)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		// Read a short prefix of the body for the error, then discard
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 80))
		resp.Body.Close()
		return nil, errdefs.Wrapf(errdefs.ErrNetwork, "HTTP %d %s", resp.StatusCode, string(body))
	}
	return resp, nil
}

// GetJSON fetches url and decodes the response body into v
func (c *Client) GetJSON(ctx context.Context, url string, v interface{}) error {
	resp, err := c.Get(ctx, url, false)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return errdefs.Wrapf(errdefs.ErrNetwork, "decode %s: %v", url, err)
	}
	return nil
}

// BodySource wraps a response body as a ChunkSource that feeds the
// watchdog and counts fetched bytes on every chunk.
func (c *Client) BodySource(resp *http.Response, chunkSize int) hasher.ChunkSource {
	return &watchdogSource{
		inner: hasher.NewReaderSource(resp.Body, chunkSize),
		caps:  c.caps,
	}
}

// backoffFor computes min(backoff * 2^attempt, maxBackoff)
func (c *Client) backoffFor(attempt int) time.Duration {
	d := c.backoff
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= c.maxBackoff {
			return c.maxBackoff
		}
	}
	if d > c.maxBackoff {
		return c.maxBackoff
	}
	return d
}

// sleep waits for d, feeding the watchdog once per second so a long
// backoff never trips the external timer.
func (c *Client) sleep(ctx context.Context, d time.Duration) {
	deadline := time.Now().Add(d)
	for {
		c.caps.FeedWatchdog()
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		step := time.Second
		if remaining < step {
			step = remaining
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(step):
		}
	}
}

type watchdogSource struct {
	inner hasher.ChunkSource
	caps  device.Capabilities
}

func (w *watchdogSource) ReadChunk() ([]byte, error) {
	w.caps.FeedWatchdog()
	chunk, err := w.inner.ReadChunk()
	if len(chunk) > 0 {
		metrics.BytesFetched.Add(float64(len(chunk)))
	}
	return chunk, err
}
