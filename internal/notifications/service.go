package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"platewatch/internal/config"
)

const userAgent = "platewatch/0.1.0"

// Event identifies a notification template.
type Event string

const (
	EventPlateAlert     Event = "plate_alert"
	EventWatchlistHit   Event = "watchlist_hit"
	EventDeliveryFailed Event = "delivery_failed"
	EventWorkerStarted  Event = "worker_started"
	EventWorkerStopped  Event = "worker_stopped"
	EventTest           Event = "test"
)

// Payload carries template values. Unknown keys are ignored.
type Payload map[string]any

// Service publishes notifications.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed service, or a no-op when
// notifications.ntfy_topic is empty.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether svc delivers anywhere.
func Enabled(svc Service) bool {
	if svc == nil {
		return false
	}
	_, noop := svc.(noopService)
	return !noop
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := render(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func render(event Event, payload Payload) (message, bool) {
	plate := payload.text("plate")
	camera := payload.text("cameraId")
	switch event {
	case EventPlateAlert:
		return message{
			title: "Platewatch - " + plate,
			body:  fmt.Sprintf("🚗 %s seen on %s (det %.2f, ocr %.2f)", plate, camera, payload.number("det"), payload.number("ocr")),
			tags:  []string{"platewatch", "plate", camera},
		}, true
	case EventWatchlistHit:
		return message{
			title:    "Platewatch - Watchlist: " + plate,
			body:     fmt.Sprintf("🚨 Watchlist plate %s seen on %s (det %.2f, ocr %.2f)", plate, camera, payload.number("det"), payload.number("ocr")),
			tags:     []string{"platewatch", "watchlist", camera},
			priority: "high",
		}, true
	case EventDeliveryFailed:
		reason := payload.text("error")
		if reason == "" {
			reason = "unknown"
		}
		return message{
			title:    "Platewatch - Delivery Failed",
			body:     fmt.Sprintf("❌ Event for %s on %s not delivered: %s", plate, camera, reason),
			tags:     []string{"platewatch", "delivery", "error"},
			priority: "high",
		}, true
	case EventWorkerStarted:
		return message{
			title: "Platewatch - Worker Started",
			body:  fmt.Sprintf("▶️ Watching %s (%s)", camera, payload.text("source")),
			tags:  []string{"platewatch", "worker", "started"},
		}, true
	case EventWorkerStopped:
		body := fmt.Sprintf("⏹️ Stopped watching %s", camera)
		if emitted, ok := payload["emitted"]; ok {
			body = fmt.Sprintf("%s after %v events", body, emitted)
		}
		return message{
			title: "Platewatch - Worker Stopped",
			body:  body,
			tags:  []string{"platewatch", "worker", "stopped"},
		}, true
	case EventTest:
		return message{
			title:    "Platewatch - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"platewatch", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (p Payload) text(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (p Payload) number(key string) float64 {
	if p == nil {
		return 0
	}
	switch v := p[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if tags := compact(msg.tags); len(tags) > 0 {
		req.Header.Set("Tags", strings.Join(tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func compact(tags []string) []string {
	out := tags[:0:0]
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
