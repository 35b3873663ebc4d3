package vision

import "image"

// GrayConverter converts color frames into 8-bit grayscale with the same
// bounds
type GrayConverter interface {
	Grayscale(img image.Image) (*image.Gray, error)
}

// ColorMasker segments a frame by HSV band. The mask is 255 inside rng and
// 0 elsewhere, opened with an openKernel x openKernel square when
// openKernel > 1.
type ColorMasker interface {
	ColorMask(img image.Image, rng HSVRange, openKernel int) (*image.Gray, error)
}

// BackgroundEstimator holds a per-pixel running average of grayscale frames
type BackgroundEstimator interface {
	// Seed replaces the estimate with the grayscale of frame
	Seed(frame image.Image) error

	// Foreground blends frame into the estimate with weight alpha, then
	// returns the mask of pixels differing from the rounded estimate by more
	// than threshold, dilated iterations times with a 3x3 kernel
	Foreground(frame image.Image, alpha float64, threshold uint8, iterations int) (*image.Gray, error)

	// Close releases the estimate
	Close() error
}
