package strategies

import (
	"sync"
	"time"

	"fusioncam/internal/pipeline"
)

// ContinuousStrategy triggers detection on every frame
// Optionally rate-limits to avoid overwhelming slow providers
type ContinuousStrategy struct {
	minInterval   time.Duration // Minimum time between detections
	lastDetection time.Time
	mu            sync.Mutex
}

// NewContinuousStrategy creates a continuous detection strategy
// minInterval can be 0 to process every frame, or a duration to rate-limit
func NewContinuousStrategy(minInterval time.Duration) *ContinuousStrategy {
	return &ContinuousStrategy{
		minInterval: minInterval,
	}
}

func (s *ContinuousStrategy) Name() string {
	return NameContinuous
}

func (s *ContinuousStrategy) ShouldDetect(frame *pipeline.FrameData, _ *pipeline.FrameResult) bool {
	if s.minInterval == 0 {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return frame.Timestamp.Sub(s.lastDetection) >= s.minInterval
}

func (s *ContinuousStrategy) OnDetectionComplete(result *pipeline.FrameResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastDetection = result.Timestamp
}

func (s *ContinuousStrategy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastDetection = time.Time{}
}
