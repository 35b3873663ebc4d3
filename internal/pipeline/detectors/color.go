package detectors

import (
	"context"
	"fmt"
	"log"

	"fusioncam/internal/detection"
	"fusioncam/internal/mode"
	"fusioncam/internal/pipeline"
	"fusioncam/internal/vision"
)

// Defaults for color segmentation
const (
	DefaultColorMinArea = 1000
	DefaultOpenKernel   = 5
)

// ColorRange names one HSV band to segment
type ColorRange struct {
	Name  string          `yaml:"name" json:"name"`
	Range vision.HSVRange `yaml:",inline" json:"range"`
}

// DefaultColorRanges returns the built-in bands in reporting order
func DefaultColorRanges() []ColorRange {
	return []ColorRange{
		{Name: "red", Range: vision.HSVRange{Lower: vision.HSV{H: 0, S: 50, V: 50}, Upper: vision.HSV{H: 10, S: 255, V: 255}}},
		{Name: "blue", Range: vision.HSVRange{Lower: vision.HSV{H: 100, S: 50, V: 50}, Upper: vision.HSV{H: 130, S: 255, V: 255}}},
		{Name: "green", Range: vision.HSVRange{Lower: vision.HSV{H: 40, S: 50, V: 50}, Upper: vision.HSV{H: 80, S: 255, V: 255}}},
		{Name: "yellow", Range: vision.HSVRange{Lower: vision.HSV{H: 20, S: 50, V: 50}, Upper: vision.HSV{H: 40, S: 255, V: 255}}},
	}
}

// ColorDetector segments each configured HSV band and reports regions of
// at least MinArea pixels
type ColorDetector struct {
	ranges  []ColorRange
	minArea float64
	kernel  int
	masker  vision.ColorMasker
	finder  vision.ContourFinder
}

// NewColorDetector creates a color detector. Empty ranges use the defaults
// and minArea <= 0 uses DefaultColorMinArea. A nil masker or finder leaves
// it unhealthy.
func NewColorDetector(ranges []ColorRange, minArea float64, masker vision.ColorMasker, finder vision.ContourFinder) *ColorDetector {
	if len(ranges) == 0 {
		ranges = DefaultColorRanges()
	}
	if minArea <= 0 {
		minArea = DefaultColorMinArea
	}
	return &ColorDetector{
		ranges:  ranges,
		minArea: minArea,
		kernel:  DefaultOpenKernel,
		masker:  masker,
		finder:  finder,
	}
}

func (d *ColorDetector) Name() string {
	return "color"
}

func (d *ColorDetector) Capability() mode.Capability {
	return mode.CapColor
}

func (d *ColorDetector) IsHealthy() bool {
	return d.masker != nil && d.finder != nil
}

func (d *ColorDetector) Detect(ctx context.Context, frame *pipeline.FrameData, _ *pipeline.State) (*pipeline.DetectionResult, error) {
	if !d.IsHealthy() {
		return nil, fmt.Errorf("color: no mask or contour provider")
	}
	result := newResult(d)

	for _, cr := range d.ranges {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		mask, err := d.masker.ColorMask(frame.Image, cr.Range, d.kernel)
		if err != nil {
			log.Printf("[ColorDetector] %s: %v", cr.Name, err)
			continue
		}
		contours, err := d.finder.FindContours(mask)
		if err != nil {
			// one failing band does not hide the others
			log.Printf("[ColorDetector] %s: %v", cr.Name, err)
			continue
		}

		for _, c := range contours {
			if c.Area < d.minArea {
				continue
			}
			det := detection.NewColorObject(detection.FromRect(c.Bounds), cr.Name, c.Area)
			result.Detections = append(result.Detections, det)

			if frame.Canvas != nil {
				vision.DrawBox(frame.Canvas, c.Bounds, vision.White, 2)
				vision.DrawLabel(frame.Canvas, c.Bounds.Min.X, c.Bounds.Min.Y-15, det.Label(), vision.White)
			}
		}
	}
	return result, nil
}

func (d *ColorDetector) Close() error {
	return nil
}

// String describes the configured bands
func (r ColorRange) String() string {
	return fmt.Sprintf("%s [%d,%d,%d]-[%d,%d,%d]", r.Name,
		r.Range.Lower.H, r.Range.Lower.S, r.Range.Lower.V,
		r.Range.Upper.H, r.Range.Upper.S, r.Range.Upper.V)
}

var _ pipeline.Detector = (*ColorDetector)(nil)
