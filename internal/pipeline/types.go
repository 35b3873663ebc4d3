package pipeline

import (
	"image"
	"time"

	"fusioncam/internal/detection"
	"fusioncam/internal/faces"
	"fusioncam/internal/mode"
	"fusioncam/internal/motion"
)

// FrameData is one captured frame
type FrameData struct {
	Source    string      // Source identifier (device, URL or directory)
	Index     uint64      // Frame sequence number, starting at 1
	Timestamp time.Time   // Capture timestamp
	Image     *image.RGBA // Decoded frame, never modified by detectors

	// Canvas is the annotated copy detectors draw onto. The driver sets it
	// before the first detector runs; later detectors draw over earlier ones.
	Canvas *image.RGBA
}

// Width returns the frame width in pixels
func (f *FrameData) Width() int {
	return f.Image.Bounds().Dx()
}

// Height returns the frame height in pixels
func (f *FrameData) Height() int {
	return f.Image.Bounds().Dy()
}

// Bounds returns the frame bounds
func (f *FrameData) Bounds() image.Rectangle {
	return f.Image.Bounds()
}

// State is the mutable per-session state handed to detectors. Each detector
// touches only the part it owns.
type State struct {
	Gallery    *faces.Gallery
	Background *motion.Model
}

// DetectionResult is the output of one detector on one frame
type DetectionResult struct {
	Detector    string                `json:"detector"`
	Capability  mode.Capability       `json:"capability"`
	Detections  []detection.Detection `json:"detections"`
	InferenceMs float32               `json:"inference_ms"`
}

// FrameResult merges every detector result for a frame
type FrameResult struct {
	SessionID        string                `json:"session_id"`
	FrameIndex       uint64                `json:"frame_index"`
	Timestamp        time.Time             `json:"timestamp"`
	Mode             mode.Mode             `json:"mode"`
	Detected         bool                  `json:"detected"` // false when throttled
	Results          []*DetectionResult    `json:"results"`
	Detections       []detection.Detection `json:"detections"`
	Annotated        *image.RGBA           `json:"-"`
	TotalInferenceMs float32               `json:"total_inference_ms"`
	Logged           bool                  `json:"logged"`
}

// Stats contains driver counters
type Stats struct {
	SessionID       string    `json:"session_id"`
	FramesProcessed uint64    `json:"frames_processed"`
	FramesDetected  uint64    `json:"frames_detected"`
	DetectionsTotal uint64    `json:"detections_total"`
	EntriesLogged   uint64    `json:"entries_logged"`
	DetectorErrors  uint64    `json:"detector_errors"`
	AvgInferenceMs  float32   `json:"avg_inference_ms"`
	LastFrameIndex  uint64    `json:"last_frame_index"`
	LastFrameTime   int64     `json:"last_frame_time"` // Unix timestamp
	CurrentMode     mode.Mode `json:"current_mode"`
	ActiveDetectors []string  `json:"active_detectors"`
	Strategy        string    `json:"strategy"`
	GallerySize     int       `json:"gallery_size"`
	BackgroundReady bool      `json:"background_ready"`
	Started         time.Time `json:"started"`
}
