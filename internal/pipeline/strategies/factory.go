package strategies

import (
	"fmt"
	"strings"
	"time"

	"fusioncam/internal/pipeline"
)

// Strategy names accepted by Create
const (
	NameContinuous = "continuous"
	NameStride     = "stride"
	NameScheduled  = "scheduled"
	NameDisabled   = "disabled"
)

// Names lists every known strategy
var Names = []string{NameContinuous, NameStride, NameScheduled, NameDisabled}

// Settings selects and tunes a strategy
type Settings struct {
	Name     string        `yaml:"name"`
	Stride   int           `yaml:"stride"`
	Interval time.Duration `yaml:"interval"`
}

// Create creates a detection strategy based on settings. An empty name means
// continuous; for continuous, Interval acts as a minimum spacing.
func Create(s Settings) (pipeline.DetectionStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s.Name)) {
	case "", NameContinuous:
		return NewContinuousStrategy(s.Interval), nil
	case NameStride:
		return NewStrideStrategy(s.Stride), nil
	case NameScheduled:
		return NewScheduledStrategy(s.Interval), nil
	case NameDisabled:
		return NewDisabledStrategy(), nil
	default:
		return nil, fmt.Errorf("unknown detection strategy: %s", s.Name)
	}
}
