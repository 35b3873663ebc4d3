package vision

import "image"

// EncodedFace is one face found by a FaceEncoder together with its feature
// vector
type EncodedFace struct {
	Box      image.Rectangle
	Encoding []float64
}

// FaceEncoder locates faces and computes a fixed-length encoding for each
type FaceEncoder interface {
	Encode(img image.Image) ([]EncodedFace, error)
	Close() error
}
