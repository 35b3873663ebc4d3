package detectors

import (
	"context"
	"fmt"
	"image"
	"log"

	"fusioncam/internal/detection"
	"fusioncam/internal/mode"
	"fusioncam/internal/pipeline"
	"fusioncam/internal/vision"
)

// Cascade parameters for face and eye search
var (
	FaceParams = vision.DetectParams{ScaleFactor: 1.1, MinNeighbors: 4, MinSize: image.Pt(30, 30)}
	EyeParams  = vision.DetectParams{ScaleFactor: 1.1, MinNeighbors: 3}
)

// FaceDetector finds frontal and profile faces with cascade classifiers.
// Each frontal hit is refined with an eye search inside the face box.
type FaceDetector struct {
	gray    vision.GrayConverter
	frontal vision.Cascade
	profile vision.Cascade
	eyes    vision.Cascade
}

// NewFaceDetector accepts nil for any cascade that failed to load; it stays
// healthy while gray and at least one face cascade are present
func NewFaceDetector(gray vision.GrayConverter, frontal, profile, eyes vision.Cascade) *FaceDetector {
	return &FaceDetector{gray: gray, frontal: frontal, profile: profile, eyes: eyes}
}

func (d *FaceDetector) Name() string {
	return "face"
}

func (d *FaceDetector) Capability() mode.Capability {
	return mode.CapFaceDetect
}

func (d *FaceDetector) IsHealthy() bool {
	return d.gray != nil && (d.frontal != nil || d.profile != nil)
}

func (d *FaceDetector) Detect(ctx context.Context, frame *pipeline.FrameData, _ *pipeline.State) (*pipeline.DetectionResult, error) {
	if d.gray == nil {
		return nil, fmt.Errorf("face: no grayscale converter")
	}
	gray, err := d.gray.Grayscale(frame.Image)
	if err != nil {
		return nil, fmt.Errorf("face: %w", err)
	}
	result := newResult(d)

	if d.frontal != nil {
		faces, err := d.frontal.DetectMultiScale(gray, FaceParams)
		if err != nil {
			log.Printf("[FaceDetector] Frontal cascade failed: %v", err)
		}
		for _, r := range faces {
			eyes := d.findEyes(gray, r)
			det := detection.NewFrontalFace(detection.FromRect(r), len(eyes))
			result.Detections = append(result.Detections, det)

			if frame.Canvas != nil {
				vision.DrawBox(frame.Canvas, r, vision.Blue, 2)
				vision.DrawLabel(frame.Canvas, r.Min.X, r.Min.Y-15, det.Label(), vision.Blue)
				for _, e := range eyes {
					vision.DrawBox(frame.Canvas, e, vision.Green, 1)
				}
			}
		}
	}

	if d.profile != nil {
		profiles, err := d.profile.DetectMultiScale(gray, FaceParams)
		if err != nil {
			log.Printf("[FaceDetector] Profile cascade failed: %v", err)
		}
		for _, r := range profiles {
			det := detection.NewProfileFace(detection.FromRect(r))
			result.Detections = append(result.Detections, det)

			if frame.Canvas != nil {
				vision.DrawBox(frame.Canvas, r, vision.Yellow, 2)
				vision.DrawLabel(frame.Canvas, r.Min.X, r.Min.Y-15, det.Label(), vision.Yellow)
			}
		}
	}

	return result, nil
}

// findEyes searches the face region; boxes come back in frame coordinates
func (d *FaceDetector) findEyes(gray *image.Gray, face image.Rectangle) []image.Rectangle {
	if d.eyes == nil {
		return nil
	}
	eyes, err := d.eyes.DetectMultiScale(vision.SubGray(gray, face), EyeParams)
	if err != nil {
		log.Printf("[FaceDetector] Eye cascade failed: %v", err)
		return nil
	}
	return eyes
}

func (d *FaceDetector) Close() error {
	return closeAll(d.frontal, d.profile, d.eyes)
}

var _ pipeline.Detector = (*FaceDetector)(nil)
