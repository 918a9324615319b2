package daemon

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"platewatch/internal/api"
	"platewatch/internal/config"
	"platewatch/internal/journal"
	"platewatch/internal/logging"
	"platewatch/internal/lpr"
	"platewatch/internal/testsupport"
)

type idleSource struct{}

func (idleSource) ReadFrame(ctx context.Context) (lpr.Frame, error) {
	<-ctx.Done()
	return lpr.Frame{}, ctx.Err()
}
func (idleSource) Reconnect(context.Context) error { return nil }
func (idleSource) Close() error                    { return nil }

type noDetector struct{}

func (noDetector) Detect(context.Context, image.Image) ([]lpr.Detection, error) { return nil, nil }

type noRecognizer struct{}

func (noRecognizer) Recognize(context.Context, image.Image) (lpr.Recognition, error) {
	return lpr.Recognition{}, nil
}

type okSink struct{}

func (okSink) Send(context.Context, lpr.Event) (int, error) { return 200, nil }

func newTestAPI(t *testing.T, mutate func(*config.Config), comps Components) *apiServer {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if mutate != nil {
		mutate(cfg)
	}
	comps.Source = idleSource{}
	comps.Detector = noDetector{}
	comps.Recognizer = noRecognizer{}
	comps.Sink = okSink{}
	if comps.RunID == "" {
		comps.RunID = "run-api"
	}
	d, err := New(cfg, nil, comps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if d.api == nil {
		t.Fatal("expected api server when api is enabled")
	}
	return d.api
}

func serve(srv *apiServer, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.engine.ServeHTTP(w, req)
	return w
}

func TestAPIHealthAndStatus(t *testing.T) {
	srv := newTestAPI(t, nil, Components{})

	w := serve(srv, "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", w.Code)
	}
	var health api.HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "ok" || health.CameraID != "cam-test" || health.RunID != "run-api" {
		t.Fatalf("unexpected health %+v", health)
	}

	w = serve(srv, "/api/status", "")
	var status api.WorkerStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Running || status.CameraID != "cam-test" || status.Scheduler.Workers != 1 {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	srv := newTestAPI(t, func(cfg *config.Config) { cfg.API.Token = "s3cret" }, Components{})

	if w := serve(srv, "/api/status", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	if w := serve(srv, "/api/status", "wrong"); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", w.Code)
	}
	if w := serve(srv, "/api/status", "s3cret"); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}
}

func TestAPIEventsListsJournal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	j := testsupport.MustOpenJournal(t, cfg)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, plate := range []string{"ABC123", "XYZ789", "ABC123"} {
		if err := j.Insert(ctx, journal.Entry{
			CameraID:   "cam-test",
			Plate:      plate,
			StatusCode: 200,
			DecidedAt:  base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	srv := newTestAPI(t, nil, Components{Journal: j})

	w := serve(srv, "/api/events?plate=abc123&limit=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp api.EventListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(resp.Events))
	}
	if resp.Events[0].DecidedAt <= resp.Events[1].DecidedAt {
		t.Fatalf("expected newest first, got %q then %q", resp.Events[0].DecidedAt, resp.Events[1].DecidedAt)
	}

	if w := serve(srv, "/api/events?limit=zero", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", w.Code)
	}
}

func TestAPIEventsWithoutJournal(t *testing.T) {
	srv := newTestAPI(t, nil, Components{})
	w := serve(srv, "/api/events", "")
	if w.Code != http.StatusOK || w.Body.String() != `{"events":[]}` {
		t.Fatalf("unexpected response %d %s", w.Code, w.Body.String())
	}
}

func TestAPILogsTailAndSince(t *testing.T) {
	hub := logging.NewStreamHub(10)
	for _, msg := range []string{"one", "two", "three"} {
		hub.Publish(logging.LogEvent{Message: msg, Level: "INFO"})
	}
	srv := newTestAPI(t, nil, Components{LogHub: hub})

	w := serve(srv, "/api/logs?limit=2", "")
	var resp api.LogStreamResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Events) != 2 || resp.Events[1].Message != "three" {
		t.Fatalf("unexpected tail %+v", resp.Events)
	}

	w = serve(srv, "/api/logs?since="+strconv.FormatUint(resp.Next, 10), "")
	resp = api.LogStreamResponse{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Events) != 0 {
		t.Fatalf("expected no new events, got %+v", resp.Events)
	}

	if w := serve(srv, "/api/logs?since=abc", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestAPILogsUnavailableWithoutHub(t *testing.T) {
	srv := newTestAPI(t, nil, Components{})
	if w := serve(srv, "/api/logs", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}
