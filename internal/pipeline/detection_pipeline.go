package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"fusioncam/internal/detection"
	"fusioncam/internal/eventlog"
	"fusioncam/internal/mode"
	"fusioncam/internal/vision"
)

// ErrNoFrameSource is returned when the driver is built without a source
var ErrNoFrameSource = errors.New("no frame source")

// DriverConfig holds the driver collaborators that are optional
type DriverConfig struct {
	SessionID   string
	Strategy    DetectionStrategy  // nil means every frame
	Commands    CommandSource      // nil means no operator input
	EventBus    *EventBus          // nil means results are not published
	Encoder     vision.FaceEncoder // Used for face registration
	GalleryDir  string
	CaptureDir  string
	JPEGQuality int
	// SummaryWindow is the number of recent entries the summary command covers
	SummaryWindow int
}

// Driver runs the per-frame loop: pull a frame, resolve the active
// detectors, run them in order, merge results, append to the log and
// publish. Everything happens on the calling goroutine.
type Driver struct {
	source     FrameSource
	registry   DetectorRegistry
	controller *mode.Controller
	eventLog   *eventlog.Log
	state      *State
	cfg        DriverConfig

	lastResult *FrameResult
	stats      *Stats
	statsMu    sync.RWMutex
}

// NewDriver wires a driver. A nil source fails with ErrNoFrameSource.
func NewDriver(
	source FrameSource,
	registry DetectorRegistry,
	controller *mode.Controller,
	eventLog *eventlog.Log,
	state *State,
	cfg DriverConfig,
) (*Driver, error) {
	if source == nil {
		return nil, ErrNoFrameSource
	}
	if registry == nil || controller == nil || eventLog == nil {
		return nil, fmt.Errorf("driver requires registry, mode controller and event log")
	}
	if state == nil {
		state = &State{}
	}
	if cfg.Strategy == nil {
		cfg.Strategy = everyFrame{}
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = 85
	}
	if cfg.SummaryWindow <= 0 {
		cfg.SummaryWindow = 20
	}
	if cfg.CaptureDir == "" {
		cfg.CaptureDir = "."
	}

	return &Driver{
		source:     source,
		registry:   registry,
		controller: controller,
		eventLog:   eventLog,
		state:      state,
		cfg:        cfg,
		stats: &Stats{
			SessionID: cfg.SessionID,
			Strategy:  cfg.Strategy.Name(),
			Started:   time.Now(),
		},
	}, nil
}

// Run processes frames until the source is exhausted, a quit command
// arrives or ctx is cancelled, then persists the log. Cancellation is only
// observed between frames. Source errors other than io.EOF stop the loop
// and are returned after the final persist; persist failures are returned
// immediately.
func (d *Driver) Run(ctx context.Context) error {
	log.Printf("[Pipeline] Session %s started (mode: %s, strategy: %s)",
		d.cfg.SessionID, d.controller.Mode(), d.cfg.Strategy.Name())

	var runErr error
loop:
	for ctx.Err() == nil {
		frame, err := d.source.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				log.Printf("[Pipeline] End of stream")
			case ctx.Err() != nil:
			default:
				runErr = fmt.Errorf("frame source: %w", err)
				log.Printf("[Pipeline] Frame source failed: %v", err)
			}
			break loop
		}

		result, err := d.ProcessFrame(ctx, frame)
		if err != nil {
			return err
		}

		if cmd, ok := d.pollCommand(); ok {
			if quit := d.HandleCommand(cmd, frame, result); quit {
				log.Printf("[Pipeline] Quit requested")
				break loop
			}
		}
	}

	if err := d.eventLog.Persist(); err != nil {
		return fmt.Errorf("persist log: %w", err)
	}
	log.Printf("[Pipeline] Session %s stopped, %d log entries saved to %s",
		d.cfg.SessionID, d.eventLog.Len(), d.eventLog.Path())
	return runErr
}

func (d *Driver) pollCommand() (mode.Command, bool) {
	if d.cfg.Commands == nil {
		return mode.Command{}, false
	}
	return d.cfg.Commands.Poll()
}

// ProcessFrame runs the active detectors on one frame. The only error it
// returns is a failure to persist the log.
func (d *Driver) ProcessFrame(ctx context.Context, frame *FrameData) (*FrameResult, error) {
	if frame.Timestamp.IsZero() {
		frame.Timestamp = time.Now()
	}
	frame.Canvas = vision.CloneRGBA(frame.Image)

	currentMode := d.controller.Mode()
	result := &FrameResult{
		SessionID:  d.cfg.SessionID,
		FrameIndex: frame.Index,
		Timestamp:  frame.Timestamp,
		Mode:       currentMode,
		Results:    make([]*DetectionResult, 0),
		Detections: make([]detection.Detection, 0),
		Annotated:  frame.Canvas,
	}

	var detectorErrors uint64
	var names []string
	if d.cfg.Strategy.ShouldDetect(frame, d.lastResult) {
		result.Detected = true
		detectors := d.registry.ForCapabilities(mode.ActiveCapabilities(currentMode))
		for _, det := range detectors {
			names = append(names, det.Name())
			res, err := runIsolated(ctx, det, frame, d.state)
			if err != nil {
				detectorErrors++
				log.Printf("[Pipeline] Detection error (%s) on frame %d: %v", det.Name(), frame.Index, err)
				continue
			}
			if res == nil {
				continue
			}
			result.Results = append(result.Results, res)
			result.Detections = append(result.Detections, clampAll(res.Detections, frame.Bounds())...)
			result.TotalInferenceMs += res.InferenceMs
		}
		d.cfg.Strategy.OnDetectionComplete(result)
		d.lastResult = result
	}

	drawHUD(frame.Canvas, currentMode, len(result.Detections))

	entry := eventlog.NewEntry(frame.Timestamp, frame.Index, currentMode, result.Detections)
	logged, err := d.eventLog.Append(entry)
	if err != nil {
		log.Printf("[Pipeline] Dropping log entry for frame %d: %v", frame.Index, err)
	}
	result.Logged = logged
	if logged {
		if err := d.eventLog.Flush(); err != nil {
			return result, fmt.Errorf("persist log: %w", err)
		}
	}

	d.updateStats(frame, result, names, detectorErrors)

	if d.cfg.EventBus != nil {
		d.cfg.EventBus.Publish(result)
	}
	return result, nil
}

// runIsolated keeps a failing or panicking detector from taking down the loop
func runIsolated(ctx context.Context, det Detector, frame *FrameData, state *State) (res *DetectionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	start := time.Now()
	res, err = det.Detect(ctx, frame, state)
	if res != nil && res.InferenceMs == 0 {
		res.InferenceMs = float32(time.Since(start).Microseconds()) / 1000
	}
	return res, err
}

// clampAll enforces the in-frame box invariant on detector output
func clampAll(dets []detection.Detection, bounds image.Rectangle) []detection.Detection {
	out := make([]detection.Detection, 0, len(dets))
	for _, det := range dets {
		if !det.BBox.Within(bounds) {
			det.BBox = det.BBox.Clamp(bounds)
		}
		out = append(out, det)
	}
	return out
}

// HandleCommand applies an operator command against the frame just
// processed and reports whether the loop should stop
func (d *Driver) HandleCommand(cmd mode.Command, frame *FrameData, result *FrameResult) bool {
	switch cmd.Kind {
	case mode.CommandQuit:
		return true

	case mode.CommandSwitchMode:
		if d.controller.Apply(cmd) {
			d.cfg.Strategy.Reset()
		}

	case mode.CommandSaveFrame:
		img := frame.Image
		if result != nil && result.Annotated != nil {
			img = result.Annotated
		}
		name := fmt.Sprintf("detection_%s.jpg", time.Now().Format("20060102_150405"))
		path := filepath.Join(d.cfg.CaptureDir, name)
		if err := vision.SaveJPEG(path, img, d.cfg.JPEGQuality); err != nil {
			log.Printf("[Pipeline] Failed to save frame: %v", err)
		} else {
			log.Printf("[Pipeline] Frame saved as %s", path)
		}

	case mode.CommandResetBackground:
		if d.state.Background != nil {
			d.state.Background.Reset()
		}
		d.cfg.Strategy.Reset()

	case mode.CommandShowSummary:
		eventlog.PrintSummary(d.eventLog.Summarize(d.cfg.SummaryWindow), d.eventLog.Len())

	case mode.CommandRegisterFace:
		if d.state.Gallery == nil {
			log.Printf("[Pipeline] Cannot register %q: no gallery", cmd.Name)
			break
		}
		if err := d.state.Gallery.Enroll(d.cfg.GalleryDir, cmd.Name, frame.Image, d.cfg.Encoder); err != nil {
			log.Printf("[Pipeline] Failed to register %q: %v", cmd.Name, err)
		}
	}
	return false
}

// drawHUD writes the mode and detection count in the top-left corner
func drawHUD(canvas *image.RGBA, m mode.Mode, count int) {
	if canvas == nil {
		return
	}
	vision.DrawLabel(canvas, 10, 10, fmt.Sprintf("Mode: %s", strings.ToUpper(string(m))), vision.White)
	vision.DrawLabel(canvas, 10, 30, fmt.Sprintf("Detections: %d", count), vision.White)
}

func (d *Driver) updateStats(frame *FrameData, result *FrameResult, names []string, detectorErrors uint64) {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()

	s := d.stats
	s.FramesProcessed++
	s.LastFrameIndex = frame.Index
	s.LastFrameTime = frame.Timestamp.Unix()
	s.CurrentMode = result.Mode
	s.DetectorErrors += detectorErrors
	if result.Detected {
		s.FramesDetected++
		s.DetectionsTotal += uint64(len(result.Detections))
		s.ActiveDetectors = names
		if s.AvgInferenceMs == 0 {
			s.AvgInferenceMs = result.TotalInferenceMs
		} else {
			s.AvgInferenceMs = (s.AvgInferenceMs + result.TotalInferenceMs) / 2
		}
	}
	if result.Logged {
		s.EntriesLogged++
	}
}

// Stats returns a copy of the driver counters
func (d *Driver) Stats() Stats {
	d.statsMu.RLock()
	s := *d.stats
	d.statsMu.RUnlock()

	s.ActiveDetectors = append([]string(nil), s.ActiveDetectors...)
	if d.state.Gallery != nil {
		s.GallerySize = d.state.Gallery.Len()
	}
	if d.state.Background != nil {
		s.BackgroundReady = d.state.Background.Initialized()
	}
	return s
}

// Mode returns the current mode
func (d *Driver) Mode() mode.Mode {
	return d.controller.Mode()
}

// everyFrame is the strategy used when none is configured
type everyFrame struct{}

func (everyFrame) Name() string                               { return "continuous" }
func (everyFrame) ShouldDetect(*FrameData, *FrameResult) bool { return true }
func (everyFrame) OnDetectionComplete(*FrameResult)           {}
func (everyFrame) Reset()                                     {}
