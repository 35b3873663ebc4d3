package ws

import (
	"time"

	"fusioncam/internal/detection"
	"fusioncam/internal/mode"
	"fusioncam/internal/pipeline"
)

// Message types sent to clients
const (
	TypeDetections = "detections"
	TypeCommand    = "command"
)

// DetectionMessage carries one frame's merged detection batch
type DetectionMessage struct {
	Type        string                `json:"type"` // "detections"
	SessionID   string                `json:"session_id"`
	FrameIndex  uint64                `json:"frame_index"`
	Timestamp   time.Time             `json:"timestamp"`
	Mode        mode.Mode             `json:"mode"`
	FrameWidth  int                   `json:"frame_width,omitempty"`
	FrameHeight int                   `json:"frame_height,omitempty"`
	Detections  []detection.Detection `json:"detections"`
	InferenceMs float32               `json:"inference_ms"`
	Frame       string                `json:"frame,omitempty"` // Base64 encoded annotated JPEG
}

// NewDetectionMessage builds a message from a frame result
func NewDetectionMessage(result *pipeline.FrameResult) *DetectionMessage {
	msg := &DetectionMessage{
		Type:        TypeDetections,
		SessionID:   result.SessionID,
		FrameIndex:  result.FrameIndex,
		Timestamp:   result.Timestamp,
		Mode:        result.Mode,
		Detections:  result.Detections,
		InferenceMs: result.TotalInferenceMs,
	}
	if msg.Detections == nil {
		msg.Detections = make([]detection.Detection, 0)
	}
	if result.Annotated != nil {
		b := result.Annotated.Bounds()
		msg.FrameWidth, msg.FrameHeight = b.Dx(), b.Dy()
	}
	return msg
}

// SetFrame sets the base64-encoded frame data
func (m *DetectionMessage) SetFrame(frameBase64 string) {
	m.Frame = frameBase64
}

// CommandAck answers a text command sent by a client
type CommandAck struct {
	Type     string `json:"type"` // "command"
	Input    string `json:"input"`
	Accepted bool   `json:"accepted"`
}
