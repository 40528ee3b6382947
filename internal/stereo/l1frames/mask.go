package l1frames

import "image"

// HSVBounds is an inclusive in-range gate in OpenCV-style HSV: hue in
// [0, 180), saturation and value in [0, 255].
type HSVBounds struct {
	LowH, LowS, LowV    uint8
	HighH, HighS, HighV uint8
}

// RGBToHSV converts 8-bit RGB to HSV with hue scaled to [0, 180) and
// saturation and value in [0, 255].
func RGBToHSV(r, g, b uint8) (h, s, v uint8) {
	max := r
	if g > max {
		max = g
	}
	if b > max {
		max = b
	}
	min := r
	if g < min {
		min = g
	}
	if b < min {
		min = b
	}

	v = max
	delta := int(max) - int(min)
	if max == 0 || delta == 0 {
		return 0, 0, v
	}
	s = uint8(255 * delta / int(max))

	var deg int
	switch max {
	case r:
		deg = (60*(int(g)-int(b))/delta + 360) % 360
	case g:
		deg = 60*(int(b)-int(r))/delta + 120
	default:
		deg = 60*(int(r)-int(g))/delta + 240
	}
	return uint8(deg / 2), s, v
}

// InRangeHSV builds a binary mask of the pixels whose HSV value falls
// inside bounds. Mask pixels are 255 inside the gate, 0 outside.
func InRangeHSV(f *Frame, bounds HSVBounds) *image.Gray {
	b := f.RGBA.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := f.RGBA.PixOffset(x, y)
			h, s, v := RGBToHSV(f.RGBA.Pix[i], f.RGBA.Pix[i+1], f.RGBA.Pix[i+2])
			if h >= bounds.LowH && h <= bounds.HighH &&
				s >= bounds.LowS && s <= bounds.HighS &&
				v >= bounds.LowV && v <= bounds.HighV {
				out.Pix[out.PixOffset(x, y)] = 255
			}
		}
	}
	return out
}

// Threshold builds a binary mask of the pixels at or above min.
func Threshold(g *image.Gray, min uint8) *image.Gray {
	out := image.NewGray(g.Bounds())
	for i, p := range g.Pix {
		if p >= min {
			out.Pix[i] = 255
		}
	}
	return out
}

// Erode shrinks mask regions with a 3×3 box kernel, iterations times.
// Pixels outside the image count as background, so regions also shrink
// at the frame edge.
func Erode(m *image.Gray, iterations int) *image.Gray {
	return morph(m, iterations, true)
}

// Dilate grows mask regions with a 3×3 box kernel, iterations times.
func Dilate(m *image.Gray, iterations int) *image.Gray {
	return morph(m, iterations, false)
}

func morph(m *image.Gray, iterations int, erode bool) *image.Gray {
	cur := m
	b := m.Bounds()
	for it := 0; it < iterations; it++ {
		next := image.NewGray(b)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				hit := erode
				for dy := -1; dy <= 1 && hit == erode; dy++ {
					for dx := -1; dx <= 1; dx++ {
						nx, ny := x+dx, y+dy
						on := nx >= b.Min.X && nx < b.Max.X &&
							ny >= b.Min.Y && ny < b.Max.Y &&
							cur.Pix[cur.PixOffset(nx, ny)] != 0
						if erode && !on {
							hit = false
							break
						}
						if !erode && on {
							hit = true
							break
						}
					}
				}
				if hit {
					next.Pix[next.PixOffset(x, y)] = 255
				}
			}
		}
		cur = next
	}
	return cur
}
