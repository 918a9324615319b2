package apiclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"platewatch/internal/api"
	"platewatch/internal/apiclient"
	"platewatch/internal/logging"
)

func TestNewEmptyBind(t *testing.T) {
	client, err := apiclient.New("", "")
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if client != nil {
		t.Fatal("expected nil client for empty bind")
	}
	if _, err := client.Status(context.Background()); !errors.Is(err, apiclient.ErrAPIUnavailable) {
		t.Fatalf("expected ErrAPIUnavailable, got %v", err)
	}
}

func TestEventsBuildsQueryAndSendsToken(t *testing.T) {
	var (
		gotQuery url.Values
		gotAuth  string
		gotPath  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(api.EventListResponse{Events: []api.EventItem{{Plate: "ABC123", StatusCode: 200}}})
	}))
	defer srv.Close()

	client, err := apiclient.New(strings.TrimPrefix(srv.URL, "http://"), "tok")
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	resp, err := client.Events(context.Background(), apiclient.EventQuery{Limit: 5, Plate: " abc123 "})
	if err != nil {
		t.Fatalf("Events error: %v", err)
	}
	if len(resp.Events) != 1 || resp.Events[0].Plate != "ABC123" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if gotPath != "/api/events" || gotQuery.Get("limit") != "5" || gotQuery.Get("plate") != "abc123" {
		t.Fatalf("unexpected request %s?%s", gotPath, gotQuery.Encode())
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
}

func TestLogsDecodesCursor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("since") != "7" {
			t.Errorf("unexpected since %q", r.URL.Query().Get("since"))
		}
		_ = json.NewEncoder(w).Encode(api.LogStreamResponse{
			Events: []logging.LogEvent{{Sequence: 8, Message: "plate emitted"}},
			Next:   8,
		})
	}))
	defer srv.Close()

	client, _ := apiclient.New(srv.URL, "")
	resp, err := client.Logs(context.Background(), apiclient.LogQuery{Since: 7})
	if err != nil {
		t.Fatalf("Logs error: %v", err)
	}
	if resp.Next != 8 || len(resp.Events) != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestErrorStatusIncludesMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "unauthorized"})
	}))
	defer srv.Close()

	client, _ := apiclient.New(srv.URL, "")
	_, err := client.Status(context.Background())
	if err == nil || !strings.Contains(err.Error(), "401") || !strings.Contains(err.Error(), "unauthorized") {
		t.Fatalf("unexpected error %v", err)
	}
	if apiclient.IsAPIUnavailable(err) {
		t.Fatal("status errors should not count as unavailable")
	}
}

func TestIsAPIUnavailableOnRefusedConnection(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	client, _ := apiclient.New(addr, "")
	_, err := client.Health(context.Background())
	if !apiclient.IsAPIUnavailable(err) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}
