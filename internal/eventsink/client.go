// Package eventsink delivers plate events to the backend over HTTP.
package eventsink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"platewatch/internal/config"
	"platewatch/internal/logging"
	"platewatch/internal/lpr"
)

const (
	defaultHTTPTimeout    = 10 * time.Second
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryMaxDelay  = 10 * time.Second
	defaultRetryAttempts  = 3
	defaultJWTTTL         = 5 * time.Minute
	jwtIssuer             = "platewatch"

	// StatusFailed is returned by Send when no usable response was received.
	StatusFailed = -1
)

// ErrDelivery marks every failed delivery.
var ErrDelivery = errors.New("event delivery failed")

// Config captures the backend delivery settings.
type Config struct {
	Endpoint       string
	Token          string
	JWTSecret      string
	JWTTTL         time.Duration
	CameraID       string
	TimeoutSeconds int
	DryRun         bool
}

// Client posts events to the backend with retries.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
	now              func() time.Time
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts overrides the default attempt count (defaults to 3).
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.retryMaxAttempts = attempts
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithNow overrides the time source used for token issue times.
func WithNow(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New constructs a client.
func New(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.Token = strings.TrimSpace(cfg.Token)
	cfg.JWTSecret = strings.TrimSpace(cfg.JWTSecret)
	if cfg.JWTTTL <= 0 {
		cfg.JWTTTL = defaultJWTTTL
	}
	client := &Client{
		cfg:              cfg,
		httpClient:       &http.Client{Timeout: timeout},
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(client)
	}
	client.logger = logging.NewComponentLogger(client.logger, "eventsink")
	return client
}

// NewFromConfig builds a client from the [events] section.
func NewFromConfig(cfg *config.Config, logger *slog.Logger, opts ...Option) *Client {
	base := []Option{
		WithLogger(logger),
		WithRetryMaxAttempts(cfg.Events.RetryAttempts),
		WithRetryBackoff(cfg.RetryBaseDelay(), defaultRetryMaxDelay),
	}
	return New(Config{
		Endpoint:       cfg.Events.BackendURL,
		Token:          cfg.Events.Token,
		JWTSecret:      cfg.Events.JWTSecret,
		JWTTTL:         time.Duration(cfg.Events.JWTTTLSeconds) * time.Second,
		CameraID:       cfg.Camera.ID,
		TimeoutSeconds: cfg.Events.TimeoutSeconds,
		DryRun:         cfg.Events.DryRun,
	}, append(base, opts...)...)
}

type signError struct {
	err error
}

func (e *signError) Error() string { return "backend: sign token: " + e.err.Error() }
func (e *signError) Unwrap() error { return e.err }

type httpStatusError struct {
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("backend: http %d: %s", e.StatusCode, e.Body)
}

// Send posts event. It returns the backend status code, or StatusFailed
// when every attempt failed without a final response. Non-2xx outcomes
// return an error wrapping ErrDelivery.
func (c *Client) Send(ctx context.Context, event lpr.Event) (int, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return StatusFailed, fmt.Errorf("%w: encode event: %w", ErrDelivery, err)
	}
	logger := logging.WithContext(ctx, c.logger).With(logging.Plate(event.Plate))

	if c.cfg.DryRun {
		logger.Info("dry run: event not sent",
			logging.String(logging.FieldEventType, "event_dry_run"),
			logging.String("payload", summarizePayload(event)),
		)
		return http.StatusOK, nil
	}
	if c.cfg.Endpoint == "" {
		return StatusFailed, fmt.Errorf("%w: backend url not configured", ErrDelivery)
	}

	attempts := c.retryAttempts()
	var lastErr error
	tried := 0
	for attempt := 1; attempt <= attempts; attempt++ {
		tried = attempt
		status, err := c.postOnce(ctx, body)
		if err == nil {
			logger.Debug("event delivered", logging.Int("status", status), logging.Int("attempt", attempt))
			return status, nil
		}
		lastErr = err

		if !retryable(err) {
			if status != StatusFailed {
				return status, fmt.Errorf("%w: %w", ErrDelivery, err)
			}
			break
		}
		delay, retry := c.retryDelay(ctx, attempt, attempts)
		if !retry {
			break
		}
		logger.Debug("event delivery retry",
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err),
		)
		if err := c.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}
	return StatusFailed, fmt.Errorf("%w: after %d attempts: %w", ErrDelivery, tried, lastErr)
}

func (c *Client) postOnce(ctx context.Context, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return StatusFailed, fmt.Errorf("backend: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	auth, err := c.authorization()
	if err != nil {
		return StatusFailed, err
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return StatusFailed, fmt.Errorf("backend: http error: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, &httpStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	return resp.StatusCode, nil
}

// authorization returns the header value: a static bearer token when one is
// configured, otherwise a freshly minted JWT when a secret is configured.
func (c *Client) authorization() (string, error) {
	if c.cfg.Token != "" {
		return "Bearer " + c.cfg.Token, nil
	}
	if c.cfg.JWTSecret == "" {
		return "", nil
	}
	now := c.now()
	claims := jwt.RegisteredClaims{
		Issuer:    jwtIssuer,
		Subject:   c.cfg.CameraID,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.cfg.JWTTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.cfg.JWTSecret))
	if err != nil {
		return "", &signError{err: err}
	}
	return "Bearer " + signed, nil
}

func (c *Client) retryAttempts() int {
	if c.retryMaxAttempts <= 0 {
		return 1
	}
	return c.retryMaxAttempts
}

// retryable reports whether err is a transport failure or a 408, 429 or 5xx
// response.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusRequestTimeout ||
			statusErr.StatusCode == http.StatusTooManyRequests ||
			statusErr.StatusCode >= http.StatusInternalServerError
	}
	var signErr *signError
	return !errors.As(err, &signErr)
}

func (c *Client) retryDelay(ctx context.Context, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || ctx.Err() != nil {
		return 0, false
	}
	return c.backoffDelay(attempt), true
}

// backoffDelay doubles from the base delay: attempt 1 -> base, 2 -> base*2.
func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.retryBaseDelay
	if delay <= 0 {
		return 0
	}
	for i := 1; i < attempt; i++ {
		if c.retryMaxDelay > 0 && delay > c.retryMaxDelay/2 {
			return c.retryMaxDelay
		}
		delay *= 2
	}
	if c.retryMaxDelay > 0 && delay > c.retryMaxDelay {
		return c.retryMaxDelay
	}
	return delay
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// summarizePayload renders event for logs with the snapshot elided.
func summarizePayload(event lpr.Event) string {
	if event.Meta.SnapshotJPEGB64 != "" {
		event.Meta.SnapshotJPEGB64 = fmt.Sprintf("<%d bytes>", len(event.Meta.SnapshotJPEGB64))
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(event); err != nil {
		return fmt.Sprintf("encode payload: %v", err)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
