package l1frames

import (
	"image"
	"time"
)

// Frame is a single decoded camera frame. Pixels are stored RGBA; colour
// space conversions are computed on demand.
type Frame struct {
	Index  int
	Time   time.Time
	Camera string
	RGBA   *image.RGBA
}

// NewFrame allocates a zeroed frame of the given size.
func NewFrame(index int, t time.Time, camera string, width, height int) *Frame {
	return &Frame{
		Index:  index,
		Time:   t,
		Camera: camera,
		RGBA:   image.NewRGBA(image.Rect(0, 0, width, height)),
	}
}

// Bounds returns the pixel bounds of the frame.
func (f *Frame) Bounds() image.Rectangle { return f.RGBA.Bounds() }

// Gray converts the frame to 8-bit luminance with Rec. 601 weights.
func (f *Frame) Gray() *image.Gray {
	b := f.RGBA.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := f.RGBA.PixOffset(x, y)
			r := int(f.RGBA.Pix[i])
			g := int(f.RGBA.Pix[i+1])
			bl := int(f.RGBA.Pix[i+2])
			out.Pix[out.PixOffset(x, y)] = uint8((299*r + 587*g + 114*bl) / 1000)
		}
	}
	return out
}

// FramePair couples the two camera views of one time instant. Pairing is
// by frame index; either side may be nil when a camera dropped the
// frame.
type FramePair struct {
	Index int
	Time  time.Time
	Left  *Frame
	Right *Frame
}

// AbsDiff returns the per-pixel absolute difference of two equally sized
// grayscale images.
func AbsDiff(a, b *image.Gray) *image.Gray {
	out := image.NewGray(a.Bounds())
	for i := range a.Pix {
		d := int(a.Pix[i]) - int(b.Pix[i])
		if d < 0 {
			d = -d
		}
		out.Pix[i] = uint8(d)
	}
	return out
}
