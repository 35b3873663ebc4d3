package detectors

import (
	"fmt"
	"log"
	"sync"

	"fusioncam/internal/mode"
	"fusioncam/internal/pipeline"
)

// Registry manages available detectors
type Registry struct {
	detectors map[string]pipeline.Detector
	order     []string
	mu        sync.RWMutex
}

// NewRegistry creates a new detector registry
func NewRegistry() *Registry {
	return &Registry{
		detectors: make(map[string]pipeline.Detector),
	}
}

// Register adds a detector to the registry. Unhealthy detectors are kept so
// status pages can report them, but they are never selected to run.
func (r *Registry) Register(detector pipeline.Detector) error {
	if detector == nil {
		return fmt.Errorf("detector cannot be nil")
	}

	name := detector.Name()
	if name == "" {
		return fmt.Errorf("detector name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.detectors[name]; exists {
		return fmt.Errorf("detector %q already registered", name)
	}

	r.detectors[name] = detector
	r.order = append(r.order, name)
	if !detector.IsHealthy() {
		log.Printf("[Registry] Detector %q registered but unavailable, it will be skipped", name)
	}
	return nil
}

// Get returns a detector by name
func (r *Registry) Get(name string) (pipeline.Detector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.detectors[name]
	return d, ok
}

// GetAll returns all registered detectors in registration order
func (r *Registry) GetAll() []pipeline.Detector {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]pipeline.Detector, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.detectors[name])
	}
	return result
}

// ForCapabilities returns healthy detectors implementing caps. Output follows
// the order of caps, then registration order within a capability.
func (r *Registry) ForCapabilities(caps []mode.Capability) []pipeline.Detector {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]pipeline.Detector, 0, len(caps))
	for _, c := range caps {
		for _, name := range r.order {
			d := r.detectors[name]
			if d.Capability() == c && d.IsHealthy() {
				result = append(result, d)
			}
		}
	}
	return result
}

// Names returns the names of all registered detectors
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Health reports each detector's health by name
func (r *Registry) Health() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]bool, len(r.detectors))
	for name, d := range r.detectors {
		out[name] = d.IsHealthy()
	}
	return out
}

// Close releases all detector resources
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for _, name := range r.order {
		if err := r.detectors[name].Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("error closing detector %q: %w", name, err)
		}
		delete(r.detectors, name)
	}
	r.order = nil
	return firstErr
}

// Ensure Registry implements DetectorRegistry
var _ pipeline.DetectorRegistry = (*Registry)(nil)
