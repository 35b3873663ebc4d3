package strategies

import (
	"fusioncam/internal/pipeline"
)

// DisabledStrategy never triggers detection
// Used when only the raw stream and command handling are wanted
type DisabledStrategy struct{}

// NewDisabledStrategy creates a disabled detection strategy
func NewDisabledStrategy() *DisabledStrategy {
	return &DisabledStrategy{}
}

func (s *DisabledStrategy) Name() string {
	return NameDisabled
}

func (s *DisabledStrategy) ShouldDetect(*pipeline.FrameData, *pipeline.FrameResult) bool {
	return false
}

func (s *DisabledStrategy) OnDetectionComplete(*pipeline.FrameResult) {
	// No-op
}

func (s *DisabledStrategy) Reset() {
	// No-op
}
