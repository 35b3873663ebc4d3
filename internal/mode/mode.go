// Package mode selects which detector capabilities run on each frame and
// decodes operator commands into explicit transitions
package mode

import (
	"fmt"
	"log"
	"strings"
	"sync"
)

// Mode is the active detection mode
type Mode string

const (
	Face        Mode = "face"
	Recognition Mode = "recognition"
	Motion      Mode = "motion"
	People      Mode = "people"
	Color       Mode = "color"
	All         Mode = "all"
)

// Modes lists every mode, single-capability modes first
var Modes = []Mode{Face, Recognition, Motion, People, Color, All}

// ParseMode accepts a mode name, case-insensitive
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Modes {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Capability identifies one detector family
type Capability string

const (
	CapFaceDetect    Capability = "face_detect"
	CapFaceRecognize Capability = "face_recognize"
	CapMotion        Capability = "motion"
	CapPeople        Capability = "people"
	CapColor         Capability = "color"
)

// Capabilities is the fixed execution order
var Capabilities = []Capability{CapFaceDetect, CapFaceRecognize, CapMotion, CapPeople, CapColor}

var modeCapability = map[Mode]Capability{
	Face:        CapFaceDetect,
	Recognition: CapFaceRecognize,
	Motion:      CapMotion,
	People:      CapPeople,
	Color:       CapColor,
}

// ActiveCapabilities returns the capabilities mode enables, in execution
// order. All enables every capability; unknown modes enable none.
func ActiveCapabilities(m Mode) []Capability {
	if m == All {
		out := make([]Capability, len(Capabilities))
		copy(out, Capabilities)
		return out
	}
	if c, ok := modeCapability[m]; ok {
		return []Capability{c}
	}
	return nil
}

// Controller holds the current mode. It has no terminal state; quitting is
// handled by the driver.
type Controller struct {
	current Mode
	mu      sync.RWMutex
}

// NewController starts in initial, matched case-insensitively. An empty or
// unknown initial mode starts in All.
func NewController(initial Mode) *Controller {
	m, err := ParseMode(string(initial))
	if err != nil {
		if initial != "" {
			log.Printf("[Mode] %v, starting in %s", err, All)
		}
		m = All
	}
	return &Controller{current: m}
}

// Mode returns the current mode
func (c *Controller) Mode() Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Active returns the capabilities of the current mode
func (c *Controller) Active() []Capability {
	return ActiveCapabilities(c.Mode())
}

// Apply performs the transition for cmd and reports whether the mode
// changed. Non mode-switching commands leave the state untouched.
func (c *Controller) Apply(cmd Command) bool {
	if cmd.Kind != CommandSwitchMode {
		return false
	}
	if _, ok := modeCapability[cmd.Mode]; !ok && cmd.Mode != All {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == cmd.Mode {
		return false
	}
	log.Printf("[Mode] %s -> %s", c.current, cmd.Mode)
	c.current = cmd.Mode
	return true
}
