package strategies

import (
	"sync"
	"time"

	"fusioncam/internal/pipeline"
)

// DefaultInterval is used by the scheduled strategy when none is configured
const DefaultInterval = 5 * time.Second

// ScheduledStrategy triggers detection at fixed time intervals, measured on
// frame timestamps so replayed footage keeps its own clock
type ScheduledStrategy struct {
	interval      time.Duration
	lastDetection time.Time
	mu            sync.Mutex
}

// NewScheduledStrategy creates a scheduled detection strategy
func NewScheduledStrategy(interval time.Duration) *ScheduledStrategy {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &ScheduledStrategy{
		interval: interval,
	}
}

func (s *ScheduledStrategy) Name() string {
	return NameScheduled
}

func (s *ScheduledStrategy) ShouldDetect(frame *pipeline.FrameData, _ *pipeline.FrameResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return frame.Timestamp.Sub(s.lastDetection) >= s.interval
}

func (s *ScheduledStrategy) OnDetectionComplete(result *pipeline.FrameResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastDetection = result.Timestamp
}

func (s *ScheduledStrategy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastDetection = time.Time{}
}

// SetInterval updates the detection interval
func (s *ScheduledStrategy) SetInterval(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = interval
}
