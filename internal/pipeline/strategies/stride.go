package strategies

import (
	"sync"

	"fusioncam/internal/pipeline"
)

// StrideStrategy runs detection on one frame out of every n, counting from
// the first frame it sees
type StrideStrategy struct {
	stride uint64
	seen   uint64
	mu     sync.Mutex
}

// NewStrideStrategy creates a stride strategy; n < 1 behaves like 1
func NewStrideStrategy(n int) *StrideStrategy {
	if n < 1 {
		n = 1
	}
	return &StrideStrategy{stride: uint64(n)}
}

func (s *StrideStrategy) Name() string {
	return NameStride
}

func (s *StrideStrategy) ShouldDetect(_ *pipeline.FrameData, _ *pipeline.FrameResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	run := s.seen%s.stride == 0
	s.seen++
	return run
}

func (s *StrideStrategy) OnDetectionComplete(*pipeline.FrameResult) {}

func (s *StrideStrategy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = 0
}

// Stride returns the configured stride
func (s *StrideStrategy) Stride() int {
	return int(s.stride)
}
