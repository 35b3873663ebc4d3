package vision

import "image"

// Contour is the outer outline of one connected foreground region, reduced
// to what the detectors consume
type Contour struct {
	Bounds image.Rectangle
	Area   float64
}

// ContourFinder extracts external contours from a binary mask
type ContourFinder interface {
	FindContours(mask *image.Gray) ([]Contour, error)
}
