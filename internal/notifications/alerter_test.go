package notifications_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"platewatch/internal/clock"
	"platewatch/internal/lpr"
	"platewatch/internal/notifications"
	"platewatch/internal/pipeline"
	"platewatch/internal/scoring"
)

type published struct {
	event   notifications.Event
	payload notifications.Payload
}

type recordingService struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (s *recordingService) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, published{event: event, payload: payload})
	return s.err
}

func (s *recordingService) kinds() []notifications.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]notifications.Event, 0, len(s.events))
	for _, p := range s.events {
		out = append(out, p.event)
	}
	return out
}

func emission(plate string, high bool, deliveryErr error) pipeline.Emission {
	return pipeline.Emission{
		Event:       lpr.Event{CameraID: "gate", Plate: plate, DetConfidence: 0.8, OCRConfidence: 0.99},
		Score:       scoring.Score{High: high},
		DeliveryErr: deliveryErr,
	}
}

func equalKinds(got, want []notifications.Event) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestAlerterHighConfidenceOnly(t *testing.T) {
	svc := &recordingService{}
	alerter := notifications.NewAlerter(svc, notifications.AlerterOptions{HighConfidenceOnly: true})
	ctx := context.Background()

	if err := alerter.Record(ctx, emission("AB12CD", false, nil)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := alerter.Record(ctx, emission("XY34ZZ", true, nil)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if got := svc.kinds(); !equalKinds(got, []notifications.Event{notifications.EventPlateAlert}) {
		t.Fatalf("unexpected notifications %v", got)
	}
	if plate := svc.events[0].payload["plate"]; plate != "XY34ZZ" {
		t.Fatalf("expected alert for XY34ZZ, got %v", plate)
	}
}

func TestAlerterWatchlistRestrictsAlerts(t *testing.T) {
	svc := &recordingService{}
	alerter := notifications.NewAlerter(svc, notifications.AlerterOptions{
		Watchlist:          []string{" ab12-cd ", "xy 34 zz"},
		HighConfidenceOnly: true,
	})
	ctx := context.Background()

	_ = alerter.Record(ctx, emission("XY34ZZ", false, nil))
	_ = alerter.Record(ctx, emission("QQ11QQ", true, nil))
	if got := svc.kinds(); !equalKinds(got, []notifications.Event{notifications.EventWatchlistHit}) {
		t.Fatalf("unexpected notifications %v", got)
	}
}

func TestAlerterThrottlesDeliveryFailures(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := &recordingService{}
	alerter := notifications.NewAlerter(svc, notifications.AlerterOptions{
		DeliveryFailures: true,
		FailureInterval:  time.Minute,
		Watchlist:        []string{"NONE00"},
		Clock:            clk,
	})
	ctx := context.Background()
	failure := errors.New("backend returned 503")

	_ = alerter.Record(ctx, emission("AB12CD", true, failure))
	clk.Advance(10 * time.Second)
	_ = alerter.Record(ctx, emission("XY34ZZ", true, failure))
	clk.Advance(time.Minute)
	_ = alerter.Record(ctx, emission("QQ11QQ", true, failure))

	want := []notifications.Event{notifications.EventDeliveryFailed, notifications.EventDeliveryFailed}
	if got := svc.kinds(); !equalKinds(got, want) {
		t.Fatalf("unexpected notifications %v", got)
	}
	if reason := svc.events[0].payload["error"]; reason != "backend returned 503" {
		t.Fatalf("unexpected error payload %v", reason)
	}
}

func TestAlerterSwallowsPublishErrors(t *testing.T) {
	svc := &recordingService{err: errors.New("ntfy down")}
	alerter := notifications.NewAlerter(svc, notifications.AlerterOptions{})
	if err := alerter.Record(context.Background(), emission("AB12CD", false, nil)); err != nil {
		t.Fatalf("Record should not fail the emission, got %v", err)
	}
	if len(svc.kinds()) != 1 {
		t.Fatal("expected the alert to be attempted")
	}
}
