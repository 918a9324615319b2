package annotate_test

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"platewatch/internal/annotate"
	"platewatch/internal/lpr"
)

func grayFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 40, B: 40, A: 255})
		}
	}
	return img
}

func TestDetectionDrawsBoxWithoutTouchingSource(t *testing.T) {
	src := grayFrame(200, 120)
	box := lpr.Box{X1: 40, Y1: 50, X2: 160, Y2: 80}

	out := annotate.Detection(src, box, annotate.DetectionLabel("ABC123", 0.91, 0.99))

	if got := out.RGBAAt(40, 65); got != annotate.Yellow {
		t.Fatalf("expected yellow edge at left side, got %v", got)
	}
	if got := out.RGBAAt(100, 65); got == annotate.Yellow {
		t.Fatal("box interior should not be filled")
	}
	if got := src.RGBAAt(40, 65); got == annotate.Yellow {
		t.Fatal("source frame must not be modified")
	}
}

func TestDrawBoxClipsToBounds(t *testing.T) {
	img := grayFrame(50, 50)
	annotate.DrawBox(img, lpr.Box{X1: -10, Y1: -10, X2: 80, Y2: 80}, annotate.Green, 2)
	annotate.DrawLabel(img, 45, 2, "LONG LABEL TEXT", annotate.Green)
}

func TestDetectionLabel(t *testing.T) {
	if got := annotate.DetectionLabel("XYZ789", 0.91, 0.9); got != "XYZ789 det:0.91 ocr:0.90" {
		t.Fatalf("unexpected label %q", got)
	}
}

func TestEncodeJPEGRoundTrips(t *testing.T) {
	frame := annotate.Frame(grayFrame(64, 48), []lpr.Box{{X1: 5, Y1: 5, X2: 40, Y2: 20}}, lpr.Box{X1: 5, Y1: 5, X2: 40, Y2: 20}, "")
	data, err := annotate.EncodeJPEG(frame, 0)
	if err != nil {
		t.Fatalf("EncodeJPEG: %v", err)
	}
	decoded, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Bounds().Dx() != 64 || decoded.Bounds().Dy() != 48 {
		t.Fatalf("unexpected bounds %v", decoded.Bounds())
	}
}
