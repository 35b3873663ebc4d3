package detectors

import (
	"context"
	"fmt"

	"fusioncam/internal/detection"
	"fusioncam/internal/mode"
	"fusioncam/internal/pipeline"
	"fusioncam/internal/vision"
)

// MotionDetector reports foreground regions from the background model
// carried in pipeline state
type MotionDetector struct{}

// NewMotionDetector creates a motion detector
func NewMotionDetector() *MotionDetector {
	return &MotionDetector{}
}

func (d *MotionDetector) Name() string {
	return "motion"
}

func (d *MotionDetector) Capability() mode.Capability {
	return mode.CapMotion
}

func (d *MotionDetector) IsHealthy() bool {
	return true
}

func (d *MotionDetector) Detect(_ context.Context, frame *pipeline.FrameData, state *pipeline.State) (*pipeline.DetectionResult, error) {
	if state == nil || state.Background == nil {
		return nil, fmt.Errorf("motion: no background model")
	}

	regions, err := state.Background.Update(frame.Image)
	if err != nil {
		return nil, fmt.Errorf("motion: %w", err)
	}

	result := newResult(d)
	for _, r := range regions {
		det := detection.NewMovingObject(r.BBox, r.Attributes())
		result.Detections = append(result.Detections, det)

		if frame.Canvas != nil {
			vision.DrawBox(frame.Canvas, r.BBox.Rect(), vision.Green, 2)
			vision.DrawLabel(frame.Canvas, r.BBox.X, r.BBox.Y-15, det.Label(), vision.Green)
		}
	}
	return result, nil
}

func (d *MotionDetector) Close() error {
	return nil
}

var _ pipeline.Detector = (*MotionDetector)(nil)
