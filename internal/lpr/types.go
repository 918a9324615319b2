package lpr

import (
	"image"
	"time"
)

// Frame is one decoded image from the capture source.
type Frame struct {
	Seq        uint64
	Image      image.Image
	CapturedAt time.Time
}

// Width returns the frame width in pixels.
func (f Frame) Width() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dx()
}

// Height returns the frame height in pixels.
func (f Frame) Height() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dy()
}

// Box is an axis-aligned bounding box in frame pixel coordinates.
type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

func (b Box) Width() int { return b.X2 - b.X1 }
func (b Box) Height() int { return b.Y2 - b.Y1 }
func (b Box) Area() int { return b.Width() * b.Height() }

// Clip constrains the box to a frame of the given size. The second return
// value is false when the clipped box is degenerate.
func (b Box) Clip(frameW, frameH int) (Box, bool) {
	clipped := Box{
		X1: max(0, b.X1),
		Y1: max(0, b.Y1),
		X2: min(frameW-1, b.X2),
		Y2: min(frameH-1, b.Y2),
	}
	return clipped, clipped.X2 > clipped.X1 && clipped.Y2 > clipped.Y1
}

// Slice returns the box as [x1, y1, x2, y2].
func (b Box) Slice() []int {
	return []int{b.X1, b.Y1, b.X2, b.Y2}
}

// Rect converts the box to an image rectangle relative to origin.
func (b Box) Rect(origin image.Point) image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2).Add(origin)
}

// Detection is one detector hit.
type Detection struct {
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"`
}

// Recognition is the recognizer output for one crop.
type Recognition struct {
	Text            string    `json:"text"`
	Confidence      float64   `json:"confidence"`
	CharConfidences []float64 `json:"char_confidences"`
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// Crop returns the region of img covered by box. Images that cannot share
// pixels are copied.
func Crop(img image.Image, box Box) image.Image {
	rect := box.Rect(img.Bounds().Min).Intersect(img.Bounds())
	if sub, ok := img.(subImager); ok {
		return sub.SubImage(rect)
	}
	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			out.Set(x-rect.Min.X, y-rect.Min.Y, img.At(x, y))
		}
	}
	return out
}
