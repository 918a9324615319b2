package lpr_test

import (
	"image"
	"testing"
	"time"

	"platewatch/internal/lpr"
)

func TestNormalizePlate(t *testing.T) {
	cases := []struct{ in, want string }{
		{"AB_1 2", "AB12"},
		{"abc123", "ABC123"},
		{" x y\tz_ ", "XYZ"},
		{"ＡＢＣ１２３", "ABC123"},
		{"__", ""},
		{"ke-77\n", "KE-77"},
	}
	for _, tc := range cases {
		if got := lpr.NormalizePlate(tc.in); got != tc.want {
			t.Errorf("NormalizePlate(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBoxClip(t *testing.T) {
	box, ok := lpr.Box{X1: -5, Y1: 10, X2: 700, Y2: 40}.Clip(640, 480)
	if !ok {
		t.Fatal("expected non-degenerate box")
	}
	if box != (lpr.Box{X1: 0, Y1: 10, X2: 639, Y2: 40}) {
		t.Fatalf("unexpected clip %+v", box)
	}
	if _, ok := (lpr.Box{X1: 650, Y1: 10, X2: 700, Y2: 40}).Clip(640, 480); ok {
		t.Fatal("expected box outside frame to be degenerate")
	}
	if _, ok := (lpr.Box{X1: 10, Y1: 10, X2: 10, Y2: 40}).Clip(640, 480); ok {
		t.Fatal("expected zero-width box to be degenerate")
	}
}

func TestCropUsesBoxRegion(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 50))
	crop := lpr.Crop(img, lpr.Box{X1: 10, Y1: 5, X2: 70, Y2: 25})
	if crop.Bounds().Dx() != 60 || crop.Bounds().Dy() != 20 {
		t.Fatalf("unexpected crop bounds %v", crop.Bounds())
	}
}

func TestFormatTimestampIsUTC(t *testing.T) {
	loc := time.FixedZone("X", 3*3600)
	ts := time.Date(2026, 5, 4, 15, 30, 45, 999, loc)
	if got := lpr.FormatTimestamp(ts); got != "2026-05-04T12:30:45Z" {
		t.Fatalf("unexpected timestamp %q", got)
	}
}
