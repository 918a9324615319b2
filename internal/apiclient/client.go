// Package apiclient talks to a running worker's status API for the CLI.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"platewatch/internal/api"
)

// ErrAPIUnavailable is returned when no API address is configured.
var ErrAPIUnavailable = errors.New("worker API unavailable")

const defaultTimeout = 5 * time.Second

// Client queries one worker.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// EventQuery filters Events.
type EventQuery struct {
	Limit int
	Plate string
}

// LogQuery selects log events. Since zero returns the newest Limit events.
type LogQuery struct {
	Since uint64
	Limit int
}

// New returns a client for bind ("host:port" or a URL). An empty bind
// returns a nil client whose methods report ErrAPIUnavailable.
func New(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, nil
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &Client{
		base:  base,
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: defaultTimeout},
	}, nil
}

// Health fetches /api/health.
func (c *Client) Health(ctx context.Context) (api.HealthResponse, error) {
	var out api.HealthResponse
	err := c.get(ctx, "/api/health", nil, &out)
	return out, err
}

// Status fetches /api/status.
func (c *Client) Status(ctx context.Context) (api.WorkerStatus, error) {
	var out api.WorkerStatus
	err := c.get(ctx, "/api/status", nil, &out)
	return out, err
}

// Events fetches journaled emissions, newest first.
func (c *Client) Events(ctx context.Context, q EventQuery) (api.EventListResponse, error) {
	values := url.Values{}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if strings.TrimSpace(q.Plate) != "" {
		values.Set("plate", strings.TrimSpace(q.Plate))
	}
	var out api.EventListResponse
	err := c.get(ctx, "/api/events", values, &out)
	return out, err
}

// Logs fetches buffered log events.
func (c *Client) Logs(ctx context.Context, q LogQuery) (api.LogStreamResponse, error) {
	values := url.Values{}
	if q.Since > 0 {
		values.Set("since", strconv.FormatUint(q.Since, 10))
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	var out api.LogStreamResponse
	err := c.get(ctx, "/api/logs", values, &out)
	return out, err
}

func (c *Client) get(ctx context.Context, path string, values url.Values, out any) error {
	if c == nil {
		return ErrAPIUnavailable
	}
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: values.Encode()})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr api.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("api %s returned status %d: %s", path, resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("api %s returned status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// IsAPIUnavailable reports whether err means the worker is not reachable.
func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrAPIUnavailable) || errors.As(err, &opErr)
}
