// Package httpfetch provides a retrying, timeout-bounded JSON GET client
// over a pooled connection, shared across the whole daemon so the
// per-host connection cap is enforced globally.
package httpfetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Fetcher performs JSON GETs against mesh nodes with a fixed-delay retry
// policy on timeout only; any other failure (non-200, malformed JSON,
// connection refused) returns immediately without retry.
type Fetcher struct {
	client     *http.Client
	timeout    time.Duration
	retryDelay time.Duration
	logger     *zap.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTimeout overrides the default 10s per-attempt deadline.
func WithTimeout(d time.Duration) Option { return func(f *Fetcher) { f.timeout = d } }

// WithRetryDelay overrides the default 5s fixed delay between retries.
func WithRetryDelay(d time.Duration) Option { return func(f *Fetcher) { f.retryDelay = d } }

// WithLogger attaches a structured logger; a no-op logger is used otherwise.
func WithLogger(l *zap.Logger) Option { return func(f *Fetcher) { f.logger = l } }

// New builds a Fetcher sharing one connection pool across all callers,
// bounded by perHostCap connections to any single mesh node. totalCap
// limits only the number of idle pooled connections; the number of open
// connections across all hosts is not capped here.
func New(totalCap, perHostCap int, opts ...Option) *Fetcher {
	transport := &http.Transport{
		MaxConnsPerHost:     perHostCap,
		MaxIdleConnsPerHost: perHostCap,
		MaxIdleConns:        totalCap,
		IdleConnTimeout:     90 * time.Second,
	}
	f := &Fetcher{
		client:     &http.Client{Transport: transport},
		timeout:    10 * time.Second,
		retryDelay: 5 * time.Second,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Close idles out pooled connections on shutdown.
func (f *Fetcher) Close() {
	f.client.CloseIdleConnections()
}

// FetchJSON performs a single logical fetch against url, retrying up to
// retries additional times on timeout only. It returns ok=false (with no
// error) on any non-timeout failure, matching the spec's
// "log at debug, return absent" contract — callers decide whether absence
// constitutes a poll failure.
func (f *Fetcher) FetchJSON(ctx context.Context, url string, retries int) (map[string]interface{}, bool) {
	attempts := retries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		result, timedOut, err := f.attempt(ctx, url)
		if err == nil {
			return result, true
		}
		if !timedOut {
			f.logger.Debug("fetch failed (non-timeout)", zap.String("url", url), zap.Error(err))
			return nil, false
		}
		f.logger.Debug("fetch timed out, will retry", zap.String("url", url), zap.Int("attempt", attempt+1))
		if attempt < attempts-1 {
			select {
			case <-time.After(f.retryDelay):
			case <-ctx.Done():
				return nil, false
			}
		}
	}
	return nil, false
}

func (f *Fetcher) attempt(ctx context.Context, url string) (map[string]interface{}, bool, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		timedOut := attemptCtx.Err() == context.DeadlineExceeded
		var netErr net.Error
		if ne, ok := err.(net.Error); ok {
			netErr = ne
			timedOut = timedOut || netErr.Timeout()
		}
		return nil, timedOut, err
	}
	defer func() { _, _ = io.Copy(io.Discard, resp.Body); _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		timedOut := attemptCtx.Err() == context.DeadlineExceeded
		return nil, timedOut, err
	}

	cleaned := stripNonPrintable(body)

	var result map[string]interface{}
	if err := json.Unmarshal(cleaned, &result); err != nil {
		return nil, false, fmt.Errorf("decode json: %w", err)
	}
	return result, false, nil
}

// stripNonPrintable removes bytes that aren't printable ASCII or one of
// \n \r \t, matching the spec's requirement to sanitize node-supplied
// JSON before decoding.
func stripNonPrintable(b []byte) []byte {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		if c == '\n' || c == '\r' || c == '\t' || (c >= 0x20 && c < 0x7f) {
			sb.WriteByte(c)
		}
	}
	return []byte(sb.String())
}
