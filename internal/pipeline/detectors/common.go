package detectors

import (
	"fmt"

	"fusioncam/internal/detection"
	"fusioncam/internal/pipeline"
	"fusioncam/internal/vision"
)

func newResult(d pipeline.Detector) *pipeline.DetectionResult {
	return &pipeline.DetectionResult{
		Detector:   d.Name(),
		Capability: d.Capability(),
		Detections: make([]detection.Detection, 0),
	}
}

func closeAll(cascades ...vision.Cascade) error {
	var firstErr error
	for _, c := range cascades {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close cascade: %w", err)
		}
	}
	return firstErr
}
