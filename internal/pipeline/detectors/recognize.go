package detectors

import (
	"context"
	"fmt"

	"fusioncam/internal/detection"
	"fusioncam/internal/faces"
	"fusioncam/internal/mode"
	"fusioncam/internal/pipeline"
	"fusioncam/internal/vision"
)

// RecognitionScale is the downscale factor applied before encoding
const RecognitionScale = 4

// RecognitionDetector encodes faces on a reduced frame and matches them
// against the gallery held in pipeline state
type RecognitionDetector struct {
	encoder vision.FaceEncoder
	matcher *faces.Matcher
	scale   int
}

// NewRecognitionDetector creates a recognizer. A nil matcher uses the
// default threshold.
func NewRecognitionDetector(encoder vision.FaceEncoder, matcher *faces.Matcher) *RecognitionDetector {
	if matcher == nil {
		matcher = faces.NewMatcher(faces.DefaultThreshold)
	}
	return &RecognitionDetector{encoder: encoder, matcher: matcher, scale: RecognitionScale}
}

// WithScale sets the downscale factor; n < 1 is ignored
func (d *RecognitionDetector) WithScale(n int) *RecognitionDetector {
	if n >= 1 {
		d.scale = n
	}
	return d
}

func (d *RecognitionDetector) Name() string {
	return "recognition"
}

func (d *RecognitionDetector) Capability() mode.Capability {
	return mode.CapFaceRecognize
}

func (d *RecognitionDetector) IsHealthy() bool {
	return d.encoder != nil
}

func (d *RecognitionDetector) Detect(ctx context.Context, frame *pipeline.FrameData, state *pipeline.State) (*pipeline.DetectionResult, error) {
	if d.encoder == nil {
		return nil, fmt.Errorf("recognition: %w", faces.ErrNoEncoder)
	}

	small := vision.Downscale(frame.Image, d.scale)
	encoded, err := d.encoder.Encode(small)
	if err != nil {
		return nil, fmt.Errorf("recognition: encode frame: %w", err)
	}

	gallery := faces.NewGallery()
	if state != nil && state.Gallery != nil {
		gallery = state.Gallery
	}

	result := newResult(d)
	bounds := frame.Bounds()
	for _, ef := range encoded {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		box := detection.FromRect(vision.ScaleRect(ef.Box, d.scale)).Clamp(bounds)
		m := d.matcher.Match(faces.Encoding(ef.Encoding), gallery)
		det := detection.NewRecognizedFace(box, m.Name, m.Confidence, m.Distance, m.Known)
		result.Detections = append(result.Detections, det)

		if frame.Canvas != nil {
			c := vision.Red
			if m.Known {
				c = vision.Green
			}
			vision.DrawBox(frame.Canvas, box.Rect(), c, 2)
			vision.DrawLabel(frame.Canvas, box.X, box.Y+box.Height, det.Label(), c)
		}
	}
	return result, nil
}

func (d *RecognitionDetector) Close() error {
	if d.encoder == nil {
		return nil
	}
	return d.encoder.Close()
}

var _ pipeline.Detector = (*RecognitionDetector)(nil)
