package vision

import "image"

// DetectParams mirrors the multi-scale sliding window knobs every cascade
// backend exposes. Zero sizes mean unbounded.
type DetectParams struct {
	ScaleFactor  float64
	MinNeighbors int
	MinSize      image.Point
	MaxSize      image.Point
}

// Cascade is a sliding-window object classifier (Haar, LBP, pico, ...)
type Cascade interface {
	// DetectMultiScale returns hit rectangles in the coordinate space of gray
	DetectMultiScale(gray *image.Gray, p DetectParams) ([]image.Rectangle, error)

	// Close releases the backend model
	Close() error
}

// SizeFilter applies the min/max size bounds of p to rects. Backends that
// cannot enforce a maximum size natively call this on their output.
func SizeFilter(rects []image.Rectangle, p DetectParams) []image.Rectangle {
	out := rects[:0:0]
	for _, r := range rects {
		if p.MinSize.X > 0 && r.Dx() < p.MinSize.X || p.MinSize.Y > 0 && r.Dy() < p.MinSize.Y {
			continue
		}
		if p.MaxSize.X > 0 && r.Dx() > p.MaxSize.X || p.MaxSize.Y > 0 && r.Dy() > p.MaxSize.Y {
			continue
		}
		out = append(out, r)
	}
	return out
}
