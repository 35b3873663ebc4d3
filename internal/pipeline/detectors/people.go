package detectors

import (
	"context"
	"fmt"
	"image"

	"fusioncam/internal/detection"
	"fusioncam/internal/mode"
	"fusioncam/internal/pipeline"
	"fusioncam/internal/vision"
)

// PeopleParams bounds full-body cascade hits
var PeopleParams = vision.DetectParams{
	ScaleFactor:  1.1,
	MinNeighbors: 3,
	MinSize:      image.Pt(50, 100),
	MaxSize:      image.Pt(300, 600),
}

// PeopleDetector finds full bodies with a cascade classifier
type PeopleDetector struct {
	gray   vision.GrayConverter
	body   vision.Cascade
	params vision.DetectParams
}

// NewPeopleDetector creates a people detector; a nil converter or cascade
// leaves it unhealthy
func NewPeopleDetector(gray vision.GrayConverter, body vision.Cascade) *PeopleDetector {
	return &PeopleDetector{gray: gray, body: body, params: PeopleParams}
}

// WithSizeLimits replaces the accepted body size range
func (d *PeopleDetector) WithSizeLimits(minSize, maxSize image.Point) *PeopleDetector {
	d.params.MinSize = minSize
	d.params.MaxSize = maxSize
	return d
}

func (d *PeopleDetector) Name() string {
	return "people"
}

func (d *PeopleDetector) Capability() mode.Capability {
	return mode.CapPeople
}

func (d *PeopleDetector) IsHealthy() bool {
	return d.gray != nil && d.body != nil
}

func (d *PeopleDetector) Detect(_ context.Context, frame *pipeline.FrameData, _ *pipeline.State) (*pipeline.DetectionResult, error) {
	if d.body == nil || d.gray == nil {
		return nil, fmt.Errorf("people: cascade not loaded")
	}

	gray, err := d.gray.Grayscale(frame.Image)
	if err != nil {
		return nil, fmt.Errorf("people: %w", err)
	}
	rects, err := d.body.DetectMultiScale(gray, d.params)
	if err != nil {
		return nil, fmt.Errorf("people: %w", err)
	}

	result := newResult(d)
	for _, r := range rects {
		det := detection.NewPersonBody(detection.FromRect(r))
		result.Detections = append(result.Detections, det)

		if frame.Canvas != nil {
			vision.DrawBox(frame.Canvas, r, vision.Magenta, 2)
			vision.DrawLabel(frame.Canvas, r.Min.X, r.Min.Y-15, det.Label(), vision.Magenta)
		}
	}
	return result, nil
}

func (d *PeopleDetector) Close() error {
	return closeAll(d.body)
}

var _ pipeline.Detector = (*PeopleDetector)(nil)
