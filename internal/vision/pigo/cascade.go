// Package pigo provides a pure Go frontal face cascade backed by esimov/pigo
package pigo

import (
	"fmt"
	"image"
	"os"
	"sync"

	pigo "github.com/esimov/pigo/core"

	"fusioncam/internal/vision"
)

// DefaultMinQuality drops weak pigo detections
const DefaultMinQuality = 5.0

// Cascade runs a pigo facefinder model. Pigo has no neighbour voting, so
// MinNeighbors is ignored and hits are clustered by IoU instead.
type Cascade struct {
	classifier *pigo.Pigo
	minQuality float32
	iou        float64
	mu         sync.Mutex
}

// Load unpacks the binary facefinder cascade at path
func Load(path string) (*Cascade, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cascade %s: %w", path, err)
	}
	classifier, err := pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack cascade %s: %w", path, err)
	}
	return &Cascade{classifier: classifier, minQuality: DefaultMinQuality, iou: 0.2}, nil
}

// DetectMultiScale returns square face boxes in gray's coordinate space
func (c *Cascade) DetectMultiScale(gray *image.Gray, p vision.DetectParams) ([]image.Rectangle, error) {
	packed := vision.Compact(gray)
	b := packed.Bounds()

	minSize := max(p.MinSize.X, p.MinSize.Y, 20)
	maxSize := max(p.MaxSize.X, p.MaxSize.Y)
	if maxSize == 0 {
		maxSize = max(b.Dx(), b.Dy())
	}
	scale := p.ScaleFactor
	if scale <= 1 {
		scale = 1.1
	}

	params := pigo.CascadeParams{
		MinSize:     minSize,
		MaxSize:     maxSize,
		ShiftFactor: 0.1,
		ScaleFactor: scale,
		ImageParams: pigo.ImageParams{
			Pixels: packed.Pix,
			Rows:   b.Dy(),
			Cols:   b.Dx(),
			Dim:    b.Dx(),
		},
	}

	c.mu.Lock()
	dets := c.classifier.RunCascade(params, 0.0)
	dets = c.classifier.ClusterDetections(dets, c.iou)
	c.mu.Unlock()

	origin := gray.Bounds().Min
	rects := make([]image.Rectangle, 0, len(dets))
	for _, d := range dets {
		if d.Q < c.minQuality {
			continue
		}
		half := d.Scale / 2
		r := image.Rect(d.Col-half, d.Row-half, d.Col+half, d.Row+half).Intersect(b)
		if r.Empty() {
			continue
		}
		rects = append(rects, r.Add(origin))
	}
	return vision.SizeFilter(rects, p), nil
}

func (c *Cascade) Close() error {
	return nil
}

var _ vision.Cascade = (*Cascade)(nil)
