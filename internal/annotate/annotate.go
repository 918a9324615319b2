// Package annotate renders detection boxes and labels onto frames and encodes
// the results as JPEG debug artifacts.
package annotate

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"platewatch/internal/lpr"
)

var (
	// Yellow marks the box of a high-confidence detection.
	Yellow = color.RGBA{R: 255, G: 255, A: 255}
	// Green marks every box on a full-frame artifact.
	Green = color.RGBA{G: 255, A: 255}

	labelBackground = color.RGBA{A: 200}
)

const labelPadding = 2

// Clone copies img into a new RGBA image with a zero origin.
func Clone(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// DrawBox outlines box on dst with the given stroke thickness.
func DrawBox(dst draw.Image, box lpr.Box, c color.Color, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	src := image.NewUniform(c)
	bounds := dst.Bounds()
	for i := 0; i < thickness; i++ {
		x1, y1, x2, y2 := box.X1+i, box.Y1+i, box.X2-i, box.Y2-i
		if x2 <= x1 || y2 <= y1 {
			break
		}
		edges := []image.Rectangle{
			image.Rect(x1, y1, x2+1, y1+1),
			image.Rect(x1, y2, x2+1, y2+1),
			image.Rect(x1, y1, x1+1, y2+1),
			image.Rect(x2, y1, x2+1, y2+1),
		}
		for _, edge := range edges {
			draw.Draw(dst, edge.Intersect(bounds), src, image.Point{}, draw.Src)
		}
	}
}

// DrawLabel writes text with its baseline at (x, y) over a dark backing box.
// The label is nudged inside the image when it would overflow.
func DrawLabel(dst draw.Image, x, y int, text string, c color.Color) {
	if text == "" {
		return
	}
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	metrics := face.Metrics()
	ascent, descent := metrics.Ascent.Ceil(), metrics.Descent.Ceil()

	bounds := dst.Bounds()
	x = min(max(x, bounds.Min.X+labelPadding), bounds.Max.X-width-labelPadding)
	y = min(max(y, bounds.Min.Y+ascent+labelPadding), bounds.Max.Y-descent-labelPadding)

	backing := image.Rect(x-labelPadding, y-ascent-labelPadding, x+width+labelPadding, y+descent+labelPadding)
	draw.Draw(dst, backing.Intersect(bounds), image.NewUniform(labelBackground), image.Point{}, draw.Over)

	drawer := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	drawer.DrawString(text)
}

// DetectionLabel formats the label drawn over a high-confidence detection.
func DetectionLabel(plate string, det, ocr float64) string {
	return fmt.Sprintf("%s det:%.2f ocr:%.2f", plate, det, ocr)
}

// Detection renders frame with one highlighted box and its label.
func Detection(frame image.Image, box lpr.Box, label string) *image.RGBA {
	out := Clone(frame)
	DrawBox(out, box, Yellow, 3)
	DrawLabel(out, box.X1, max(20, box.Y1-10), label, Yellow)
	return out
}

// Frame renders every detected box and labels the emitted one.
func Frame(frame image.Image, boxes []lpr.Box, labelled lpr.Box, label string) *image.RGBA {
	out := Clone(frame)
	for _, box := range boxes {
		DrawBox(out, box, Green, 2)
	}
	if label == "" {
		label = "UNKNOWN"
	}
	DrawLabel(out, labelled.X1, max(10, labelled.Y1-10), label, Green)
	return out
}

// EncodeJPEG encodes img at the given quality (1-100).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
