// Package dlib extracts 128-d face encodings with dlib through Kagami/go-face
package dlib

import (
	"errors"
	"fmt"
	"image"
	"log"
	"sync"

	face "github.com/Kagami/go-face"

	"fusioncam/internal/vision"
)

// ErrNotLoaded is returned after Close or when models failed to load
var ErrNotLoaded = errors.New("dlib models not loaded")

// Encoder wraps a go-face Recognizer. go-face consumes JPEG bytes, so frames
// are re-encoded before every call.
type Encoder struct {
	rec *face.Recognizer
	mu  sync.Mutex
}

// NewEncoder loads shape predictor, resnet and detector models from modelDir
func NewEncoder(modelDir string) (*Encoder, error) {
	rec, err := face.NewRecognizer(modelDir)
	if err != nil {
		return nil, fmt.Errorf("load dlib models from %s: %w", modelDir, err)
	}
	log.Printf("[Dlib] Loaded face models from %s", modelDir)
	return &Encoder{rec: rec}, nil
}

// Encode finds every face in img and returns its box and descriptor
func (e *Encoder) Encode(img image.Image) ([]vision.EncodedFace, error) {
	data, err := vision.EncodeJPEG(img, 95)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec == nil {
		return nil, ErrNotLoaded
	}

	faces, err := e.rec.Recognize(data)
	if err != nil {
		return nil, fmt.Errorf("recognize: %w", err)
	}

	origin := img.Bounds().Min
	out := make([]vision.EncodedFace, 0, len(faces))
	for _, f := range faces {
		enc := make([]float64, len(f.Descriptor))
		for i, v := range f.Descriptor {
			enc[i] = float64(v)
		}
		out = append(out, vision.EncodedFace{
			Box:      f.Rectangle.Add(origin),
			Encoding: enc,
		})
	}
	return out, nil
}

// Close frees the native recognizer
func (e *Encoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec != nil {
		e.rec.Close()
		e.rec = nil
	}
	return nil
}

var _ vision.FaceEncoder = (*Encoder)(nil)
