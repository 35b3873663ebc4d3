// Package visiontest provides pure Go implementations of the vision provider
// contracts so detector and model tests run without OpenCV.
package visiontest

import (
	"image"
	"image/color"
	"math"
	"sync"

	"golang.org/x/image/draw"

	"fusioncam/internal/vision"
)

// Grayscale converts any image into an 8-bit luma image with the same bounds
func Grayscale(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(b)
	draw.Draw(gray, b, img, b.Min, draw.Src)
	return gray
}

// Ops implements GrayConverter and ColorMasker
type Ops struct{}

func (Ops) Grayscale(img image.Image) (*image.Gray, error) {
	return Grayscale(img), nil
}

func (Ops) ColorMask(img image.Image, rng vision.HSVRange, openKernel int) (*image.Gray, error) {
	return Open(InRange(img, rng), openKernel), nil
}

// ToHSV converts an 8-bit RGB triple using the OpenCV 8-bit convention
func ToHSV(r, g, b uint8) vision.HSV {
	rf, gf, bf := float64(r), float64(g), float64(b)
	v := max(rf, gf, bf)
	lo := min(rf, gf, bf)
	delta := v - lo

	var s float64
	if v > 0 {
		s = 255 * delta / v
	}

	var h float64
	if delta > 0 {
		switch v {
		case rf:
			h = 60 * (gf - bf) / delta
		case gf:
			h = 120 + 60*(bf-rf)/delta
		default:
			h = 240 + 60*(rf-gf)/delta
		}
		if h < 0 {
			h += 360
		}
	}

	hh := uint8(h/2 + 0.5)
	if hh >= 180 {
		hh = 0
	}
	return vision.HSV{H: hh, S: uint8(s + 0.5), V: uint8(v)}
}

// InRange produces a binary mask of the pixels whose HSV value lies in rng
func InRange(img image.Image, rng vision.HSVRange) *image.Gray {
	b := img.Bounds()
	mask := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			if rng.Contains(ToHSV(c.R, c.G, c.B)) {
				mask.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return mask
}

// Dilate grows foreground with a 3x3 square kernel, applied iterations times
func Dilate(mask *image.Gray, iterations int) *image.Gray {
	out := mask
	for i := 0; i < iterations; i++ {
		out = morph(out, 3, true)
	}
	return out
}

// Open erodes then dilates with a size x size square kernel
func Open(mask *image.Gray, size int) *image.Gray {
	if size <= 1 {
		return mask
	}
	return morph(morph(mask, size, false), size, true)
}

func morph(src *image.Gray, size int, dilate bool) *image.Gray {
	b := src.Bounds()
	out := image.NewGray(b)
	lo := -(size / 2)
	hi := lo + size - 1

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			hit := !dilate
			for dy := lo; dy <= hi && hit != dilate; dy++ {
				for dx := lo; dx <= hi; dx++ {
					p := image.Pt(x+dx, y+dy)
					// outside pixels never trigger dilation and never block erosion
					if !p.In(b) {
						continue
					}
					on := src.GrayAt(p.X, p.Y).Y > 0
					if dilate && on {
						hit = true
						break
					}
					if !dilate && !on {
						hit = false
						break
					}
				}
			}
			if hit {
				out.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return out
}

// Background is a float64 running average
type Background struct {
	acc    []float64
	closed bool
	mu     sync.Mutex
}

// NewBackground creates an empty estimator
func NewBackground() *Background {
	return &Background{}
}

func (b *Background) Seed(frame image.Image) error {
	gray := Grayscale(frame)
	r := gray.Bounds()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.acc = make([]float64, 0, r.Dx()*r.Dy())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			b.acc = append(b.acc, float64(gray.GrayAt(x, y).Y))
		}
	}
	return nil
}

func (b *Background) Foreground(frame image.Image, alpha float64, threshold uint8, iterations int) (*image.Gray, error) {
	gray := Grayscale(frame)
	r := gray.Bounds()
	mask := image.NewGray(r)

	b.mu.Lock()
	i := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			v := float64(gray.GrayAt(x, y).Y)
			b.acc[i] = alpha*v + (1-alpha)*b.acc[i]
			bg := math.Min(math.Round(b.acc[i]), 255)
			if math.Abs(v-bg) > float64(threshold) {
				mask.SetGray(x, y, color.Gray{Y: 255})
			}
			i++
		}
	}
	b.mu.Unlock()

	return Dilate(mask, iterations), nil
}

func (b *Background) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.acc = nil
	b.closed = true
	return nil
}

// Closed reports whether Close was called
func (b *Background) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// RegionFinder labels 8-connected foreground regions and reports each
// region's pixel count as its area
type RegionFinder struct{}

// FindContours returns regions in raster order of their first pixel
func (RegionFinder) FindContours(mask *image.Gray) ([]vision.Contour, error) {
	b := mask.Bounds()
	w := b.Dx()
	seen := make([]bool, w*b.Dy())
	var out []vision.Contour
	var stack []image.Point

	on := func(x, y int) bool {
		return mask.GrayAt(x, y).Y > 0
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			idx := (y-b.Min.Y)*w + (x - b.Min.X)
			if seen[idx] || !on(x, y) {
				continue
			}

			seen[idx] = true
			stack = append(stack[:0], image.Pt(x, y))
			bounds := image.Rect(x, y, x+1, y+1)
			area := 0

			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				area++
				bounds = bounds.Union(image.Rect(p.X, p.Y, p.X+1, p.Y+1))

				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						n := image.Pt(p.X+dx, p.Y+dy)
						if !n.In(b) {
							continue
						}
						ni := (n.Y-b.Min.Y)*w + (n.X - b.Min.X)
						if seen[ni] || !on(n.X, n.Y) {
							continue
						}
						seen[ni] = true
						stack = append(stack, n)
					}
				}
			}

			out = append(out, vision.Contour{Bounds: bounds, Area: float64(area)})
		}
	}

	return out, nil
}

var (
	_ vision.GrayConverter       = Ops{}
	_ vision.ColorMasker         = Ops{}
	_ vision.BackgroundEstimator = (*Background)(nil)
	_ vision.ContourFinder       = RegionFinder{}
)
