// Package cv backs the vision provider contracts with OpenCV through gocv
package cv

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"fusioncam/internal/vision"
)

// HaarCascade wraps a gocv CascadeClassifier loaded from an XML model
type HaarCascade struct {
	path       string
	classifier gocv.CascadeClassifier
	mu         sync.Mutex
}

// LoadHaarCascade loads the cascade model at path
func LoadHaarCascade(path string) (*HaarCascade, error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("load cascade %s", path)
	}
	return &HaarCascade{path: path, classifier: classifier}, nil
}

// DetectMultiScale runs the classifier over gray
func (c *HaarCascade) DetectMultiScale(gray *image.Gray, p vision.DetectParams) ([]image.Rectangle, error) {
	mat, err := gocv.ImageGrayToMatGray(vision.Compact(gray))
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	defer mat.Close()

	scale := p.ScaleFactor
	if scale <= 1 {
		scale = 1.1
	}

	c.mu.Lock()
	rects := c.classifier.DetectMultiScaleWithParams(mat, scale, p.MinNeighbors, 0, p.MinSize, p.MaxSize)
	c.mu.Unlock()

	// Mat coordinates start at zero; shift back onto the sub-image origin
	origin := gray.Bounds().Min
	for i := range rects {
		rects[i] = rects[i].Add(origin)
	}
	return rects, nil
}

// Close releases the native classifier
func (c *HaarCascade) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.classifier.Close()
}

var _ vision.Cascade = (*HaarCascade)(nil)
