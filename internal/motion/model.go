package motion

import (
	"errors"
	"fmt"
	"image"
	"log"
	"sync"

	"fusioncam/internal/detection"
	"fusioncam/internal/vision"
)

// ErrNoBackend is returned when the model has no background or contour
// provider
var ErrNoBackend = errors.New("motion: no background or contour provider")

// Config holds the background model parameters
type Config struct {
	Alpha            float64 `yaml:"alpha"`
	Threshold        uint8   `yaml:"threshold"`
	MinArea          float64 `yaml:"min_area"`
	DilateIterations int     `yaml:"dilate_iterations"`
}

// DefaultConfig favors a fast-reacting background over stability against
// lighting flicker
func DefaultConfig() Config {
	return Config{
		Alpha:            0.5,
		Threshold:        25,
		MinArea:          500,
		DilateIterations: 2,
	}
}

// Validate checks parameter ranges
func (c Config) Validate() error {
	if c.Alpha <= 0 || c.Alpha > 1 {
		return fmt.Errorf("motion alpha must be in (0,1], got %v", c.Alpha)
	}
	if c.MinArea < 0 {
		return fmt.Errorf("motion min area must be >= 0, got %v", c.MinArea)
	}
	if c.DilateIterations < 0 {
		return fmt.Errorf("motion dilate iterations must be >= 0, got %d", c.DilateIterations)
	}
	return nil
}

// Region is one retained foreground region
type Region struct {
	BBox        detection.BBox
	Area        float64
	AspectRatio float64
	Extent      float64
	Class       detection.MotionClass
}

// Attributes returns the detection payload for the region
func (r Region) Attributes() detection.MotionAttributes {
	return detection.MotionAttributes{
		Area:        r.Area,
		AspectRatio: r.AspectRatio,
		Extent:      r.Extent,
		Class:       r.Class,
	}
}

// Model keeps an exponentially blended per-pixel background estimate.
// It starts uninitialized; the first frame seeds the estimate and yields
// no regions.
type Model struct {
	cfg        Config
	background vision.BackgroundEstimator
	finder     vision.ContourFinder

	bounds      image.Rectangle
	initialized bool
	mu          sync.Mutex
}

// NewModel creates an uninitialized model over the given background and
// contour providers
func NewModel(cfg Config, background vision.BackgroundEstimator, finder vision.ContourFinder) *Model {
	return &Model{cfg: cfg, background: background, finder: finder}
}

// Initialized reports whether a background estimate exists
func (m *Model) Initialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

// Initialize seeds the estimate from frame, replacing any prior estimate
func (m *Model) Initialize(frame image.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialize(frame)
}

func (m *Model) initialize(frame image.Image) error {
	if m.background == nil {
		return ErrNoBackend
	}
	if err := m.background.Seed(frame); err != nil {
		return fmt.Errorf("seed background: %w", err)
	}
	m.bounds = frame.Bounds()
	m.initialized = true
	return nil
}

// Reset discards the estimate; the next Update re-initializes
func (m *Model) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bounds = image.Rectangle{}
	m.initialized = false
	log.Printf("[Motion] Background model reset")
}

// Update blends frame into the background and returns the foreground
// regions of at least MinArea, classified by shape. The first call after
// construction, Reset or a frame size change only seeds the model.
func (m *Model) Update(frame image.Image) ([]Region, error) {
	if m.background == nil || m.finder == nil {
		return nil, ErrNoBackend
	}

	m.mu.Lock()
	if !m.initialized || frame.Bounds() != m.bounds {
		if m.initialized {
			log.Printf("[Motion] Frame size changed %v -> %v, reinitializing", m.bounds.Size(), frame.Bounds().Size())
		}
		err := m.initialize(frame)
		m.mu.Unlock()
		return nil, err
	}
	mask, err := m.background.Foreground(frame, m.cfg.Alpha, m.cfg.Threshold, m.cfg.DilateIterations)
	m.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("foreground mask: %w", err)
	}

	contours, err := m.finder.FindContours(mask)
	if err != nil {
		return nil, fmt.Errorf("find contours: %w", err)
	}
	return FilterRegions(contours, m.cfg.MinArea), nil
}

// Close releases the background estimate
func (m *Model) Close() error {
	if m.background == nil {
		return nil
	}
	return m.background.Close()
}

// FilterRegions drops contours smaller than minArea and classifies the rest,
// preserving input order
func FilterRegions(contours []vision.Contour, minArea float64) []Region {
	var regions []Region
	for _, c := range contours {
		if c.Area < minArea {
			continue
		}
		w, h := c.Bounds.Dx(), c.Bounds.Dy()
		if w == 0 || h == 0 {
			continue
		}
		aspect := float64(w) / float64(h)
		extent := c.Area / float64(w*h)
		regions = append(regions, Region{
			BBox:        detection.FromRect(c.Bounds),
			Area:        c.Area,
			AspectRatio: aspect,
			Extent:      extent,
			Class:       Classify(aspect, extent),
		})
	}
	return regions
}

// Classify labels a region by shape. Aspect ratio rules take precedence
// over the extent rule; the first match wins.
func Classify(aspectRatio, extent float64) detection.MotionClass {
	switch {
	case aspectRatio > 2:
		return detection.MotionHorizontal
	case aspectRatio < 0.5:
		return detection.MotionVertical
	case extent > 0.7 && extent < 0.9:
		return detection.MotionPersonLike
	default:
		return detection.MotionUnknown
	}
}
