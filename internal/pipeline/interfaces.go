package pipeline

import (
	"context"

	"fusioncam/internal/mode"
)

// Detector is the unified interface for every detection capability
type Detector interface {
	// Name returns the detector identifier (e.g., "face", "color")
	Name() string

	// Capability returns the capability this detector implements
	Capability() mode.Capability

	// IsHealthy returns false when the detector's provider is missing; the
	// registry then skips it for the session
	IsHealthy() bool

	// Detect runs on frame with the session state, drawing onto frame.Canvas
	// when it is set
	Detect(ctx context.Context, frame *FrameData, state *State) (*DetectionResult, error)

	// Close releases detector resources
	Close() error
}

// FrameSource supplies frames one at a time. Next returns io.EOF once the
// stream is exhausted.
type FrameSource interface {
	Next(ctx context.Context) (*FrameData, error)
	Close() error
}

// CommandSource yields at most one pending operator command per call without
// blocking
type CommandSource interface {
	Poll() (mode.Command, bool)
}

// DetectionStrategy decides when detection should run. Throttling applies
// to all detectors uniformly.
type DetectionStrategy interface {
	// Name returns the strategy identifier
	Name() string

	// ShouldDetect determines if detection should run for this frame
	ShouldDetect(frame *FrameData, last *FrameResult) bool

	// OnDetectionComplete is called after detection completes
	OnDetectionComplete(result *FrameResult)

	// Reset clears internal state
	Reset()
}

// FrameResultHandler receives merged frame results
type FrameResultHandler interface {
	OnFrameResult(result *FrameResult)
}

// DetectorRegistry manages available detectors
type DetectorRegistry interface {
	// Register adds a detector to the registry
	Register(detector Detector) error

	// Get returns a detector by name
	Get(name string) (Detector, bool)

	// GetAll returns all registered detectors in registration order
	GetAll() []Detector

	// ForCapabilities returns healthy detectors for caps, ordered by caps
	ForCapabilities(caps []mode.Capability) []Detector

	// Close releases all detector resources
	Close() error
}
