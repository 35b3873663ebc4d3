package pipeline

import (
	"context"
	"errors"
	"image"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fusioncam/internal/detection"
	"fusioncam/internal/eventlog"
	"fusioncam/internal/faces"
	"fusioncam/internal/mode"
	"fusioncam/internal/motion"
	"fusioncam/internal/vision"
	"fusioncam/internal/vision/visiontest"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type sliceSource struct {
	frames []*FrameData
	err    error
	closed bool
}

func newSliceSource(n int) *sliceSource {
	s := &sliceSource{}
	for i := 1; i <= n; i++ {
		s.frames = append(s.frames, &FrameData{
			Source:    "test",
			Index:     uint64(i),
			Timestamp: t0.Add(time.Duration(i) * time.Second),
			Image:     image.NewRGBA(image.Rect(0, 0, 64, 48)),
		})
	}
	return s
}

func (s *sliceSource) Next(context.Context) (*FrameData, error) {
	if len(s.frames) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	return f, nil
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}

type stubDetector struct {
	name  string
	cap   mode.Capability
	box   detection.BBox
	err   error
	panic bool
	calls int
}

func (d *stubDetector) Name() string                { return d.name }
func (d *stubDetector) Capability() mode.Capability { return d.cap }
func (d *stubDetector) IsHealthy() bool             { return true }
func (d *stubDetector) Close() error                { return nil }

func (d *stubDetector) Detect(context.Context, *FrameData, *State) (*DetectionResult, error) {
	d.calls++
	if d.panic {
		panic("provider crashed")
	}
	if d.err != nil {
		return nil, d.err
	}
	return &DetectionResult{
		Detector:   d.name,
		Capability: d.cap,
		Detections: []detection.Detection{detection.NewColorObject(d.box, d.name, 1200)},
	}, nil
}

// stubRegistry keeps detectors in the order given
type stubRegistry struct {
	detectors []Detector
}

func (r *stubRegistry) Register(d Detector) error {
	r.detectors = append(r.detectors, d)
	return nil
}

func (r *stubRegistry) Get(name string) (Detector, bool) {
	for _, d := range r.detectors {
		if d.Name() == name {
			return d, true
		}
	}
	return nil, false
}

func (r *stubRegistry) GetAll() []Detector { return r.detectors }

func (r *stubRegistry) ForCapabilities(caps []mode.Capability) []Detector {
	var out []Detector
	for _, c := range caps {
		for _, d := range r.detectors {
			if d.Capability() == c {
				out = append(out, d)
			}
		}
	}
	return out
}

func (r *stubRegistry) Close() error { return nil }

type skipAll struct{}

func (skipAll) Name() string                               { return "disabled" }
func (skipAll) ShouldDetect(*FrameData, *FrameResult) bool { return false }
func (skipAll) OnDetectionComplete(*FrameResult)           {}
func (skipAll) Reset()                                     {}

type oneFaceEncoder struct{}

func (oneFaceEncoder) Encode(img image.Image) ([]vision.EncodedFace, error) {
	return []vision.EncodedFace{{Box: img.Bounds(), Encoding: []float64{0.1, 0.2}}}, nil
}

func (oneFaceEncoder) Close() error { return nil }

func newTestDriver(t *testing.T, src FrameSource, reg DetectorRegistry, cfg DriverConfig) (*Driver, *eventlog.Log) {
	t.Helper()
	l := eventlog.New(filepath.Join(t.TempDir(), "detection_log.json"), eventlog.WithFlushEvery(100))
	state := &State{
		Gallery:    faces.NewGallery(),
		Background: motion.NewModel(motion.DefaultConfig(), visiontest.NewBackground(), visiontest.RegionFinder{}),
	}
	d, err := NewDriver(src, reg, mode.NewController(mode.All), l, state, cfg)
	require.NoError(t, err)
	return d, l
}

func kinds(dets []detection.Detection) []string {
	var out []string
	for _, d := range dets {
		out = append(out, d.Color.ColorName)
	}
	return out
}

func TestNewDriverRequiresSource(t *testing.T) {
	_, err := NewDriver(nil, &stubRegistry{}, mode.NewController(mode.All), eventlog.New(""), nil, DriverConfig{})
	assert.ErrorIs(t, err, ErrNoFrameSource)

	_, err = NewDriver(newSliceSource(1), nil, mode.NewController(mode.All), eventlog.New(""), nil, DriverConfig{})
	assert.Error(t, err)
}

func TestRunUntilEndOfStreamPersists(t *testing.T) {
	reg := &stubRegistry{}
	reg.Register(&stubDetector{name: "color", cap: mode.CapColor, box: detection.BBox{X: 1, Y: 1, Width: 10, Height: 10}})

	d, l := newTestDriver(t, newSliceSource(3), reg, DriverConfig{SessionID: "s1"})
	require.NoError(t, d.Run(context.Background()))

	entries, err := eventlog.ReadFile(l.Path())
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, uint64(i+1), e.FrameIndex)
		assert.Equal(t, mode.All, e.Mode)
	}

	stats := d.Stats()
	assert.Equal(t, uint64(3), stats.FramesProcessed)
	assert.Equal(t, uint64(3), stats.EntriesLogged)
	assert.Equal(t, uint64(3), stats.DetectionsTotal)
	assert.Equal(t, "s1", stats.SessionID)
	assert.Equal(t, []string{"color"}, stats.ActiveDetectors)
}

func TestProcessFrameRunsActiveCapabilitiesInOrder(t *testing.T) {
	reg := &stubRegistry{}
	colorDet := &stubDetector{name: "color", cap: mode.CapColor}
	faceDet := &stubDetector{name: "face", cap: mode.CapFaceDetect}
	motionDet := &stubDetector{name: "motion", cap: mode.CapMotion}
	for _, det := range []Detector{colorDet, faceDet, motionDet} {
		reg.Register(det)
	}

	d, _ := newTestDriver(t, newSliceSource(0), reg, DriverConfig{})
	src := newSliceSource(2)

	f1, _ := src.Next(context.Background())
	res, err := d.ProcessFrame(context.Background(), f1)
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"face", "motion", "color"}, kinds(res.Detections)); diff != "" {
		t.Errorf("detection order mismatch (-want +got):\n%s", diff)
	}

	d.HandleCommand(mode.Command{Kind: mode.CommandSwitchMode, Mode: mode.Face}, f1, res)
	f2, _ := src.Next(context.Background())
	res, err = d.ProcessFrame(context.Background(), f2)
	require.NoError(t, err)
	assert.Equal(t, mode.Face, res.Mode)
	assert.Equal(t, []string{"face"}, kinds(res.Detections))
	assert.Equal(t, 1, colorDet.calls)
	assert.Equal(t, 2, faceDet.calls)
}

func TestProcessFrameIsolatesFailingDetectors(t *testing.T) {
	reg := &stubRegistry{}
	reg.Register(&stubDetector{name: "face", cap: mode.CapFaceDetect, panic: true})
	reg.Register(&stubDetector{name: "motion", cap: mode.CapMotion, err: errors.New("model missing")})
	reg.Register(&stubDetector{name: "color", cap: mode.CapColor})

	d, _ := newTestDriver(t, newSliceSource(0), reg, DriverConfig{})
	frame := newSliceSource(1).frames[0]

	res, err := d.ProcessFrame(context.Background(), frame)
	require.NoError(t, err)
	assert.Equal(t, []string{"color"}, kinds(res.Detections))
	assert.Len(t, res.Results, 1)
	assert.Equal(t, uint64(2), d.Stats().DetectorErrors)
}

func TestProcessFrameClampsBoxes(t *testing.T) {
	reg := &stubRegistry{}
	reg.Register(&stubDetector{name: "color", cap: mode.CapColor, box: detection.BBox{X: 50, Y: 40, Width: 30, Height: 30}})

	d, _ := newTestDriver(t, newSliceSource(0), reg, DriverConfig{})
	frame := newSliceSource(1).frames[0]

	res, err := d.ProcessFrame(context.Background(), frame)
	require.NoError(t, err)
	require.Len(t, res.Detections, 1)
	assert.Equal(t, detection.BBox{X: 50, Y: 40, Width: 14, Height: 8}, res.Detections[0].BBox)
	assert.True(t, res.Detections[0].BBox.Within(frame.Bounds()))
}

func TestProcessFrameEmptyBatchNotLogged(t *testing.T) {
	d, l := newTestDriver(t, newSliceSource(0), &stubRegistry{}, DriverConfig{})
	frame := newSliceSource(1).frames[0]

	res, err := d.ProcessFrame(context.Background(), frame)
	require.NoError(t, err)
	assert.True(t, res.Detected)
	assert.False(t, res.Logged)
	assert.Equal(t, 0, l.Len())
	assert.NotNil(t, res.Annotated)
	assert.NotSame(t, frame.Image, res.Annotated, "annotations go to a copy")
}

func TestThrottledFramesSkipDetectors(t *testing.T) {
	reg := &stubRegistry{}
	det := &stubDetector{name: "color", cap: mode.CapColor}
	reg.Register(det)

	d, l := newTestDriver(t, newSliceSource(4), reg, DriverConfig{Strategy: skipAll{}})
	require.NoError(t, d.Run(context.Background()))

	assert.Equal(t, 0, det.calls)
	assert.Equal(t, 0, l.Len())
	stats := d.Stats()
	assert.Equal(t, uint64(4), stats.FramesProcessed)
	assert.Equal(t, uint64(0), stats.FramesDetected)
	assert.Equal(t, "disabled", stats.Strategy)
}

func TestRunQuitCommand(t *testing.T) {
	q := NewCommandQueue(4)
	require.True(t, q.SubmitText("q"))

	src := newSliceSource(5)
	d, _ := newTestDriver(t, src, &stubRegistry{}, DriverConfig{Commands: q})
	require.NoError(t, d.Run(context.Background()))

	assert.Equal(t, uint64(1), d.Stats().FramesProcessed)
	assert.Len(t, src.frames, 4)
}

func TestRunModeSwitchAppliesFromNextFrame(t *testing.T) {
	reg := &stubRegistry{}
	reg.Register(&stubDetector{name: "motion", cap: mode.CapMotion})
	reg.Register(&stubDetector{name: "color", cap: mode.CapColor})

	q := NewCommandQueue(4)
	q.SubmitText("3")

	d, l := newTestDriver(t, newSliceSource(2), reg, DriverConfig{Commands: q})
	require.NoError(t, d.Run(context.Background()))

	entries := l.Recent(10)
	require.Len(t, entries, 2)
	assert.Equal(t, mode.All, entries[0].Mode)
	assert.Len(t, entries[0].Detections, 2)
	assert.Equal(t, mode.Motion, entries[1].Mode)
	assert.Len(t, entries[1].Detections, 1)
	assert.Equal(t, mode.Motion, d.Mode())
}

func TestRunSourceErrorStillPersists(t *testing.T) {
	reg := &stubRegistry{}
	reg.Register(&stubDetector{name: "color", cap: mode.CapColor})

	src := newSliceSource(1)
	src.err = errors.New("camera unplugged")
	d, l := newTestDriver(t, src, reg, DriverConfig{})

	err := d.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "camera unplugged")

	entries, err := eventlog.ReadFile(l.Path())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d, l := newTestDriver(t, newSliceSource(3), &stubRegistry{}, DriverConfig{})
	require.NoError(t, d.Run(ctx))
	assert.Equal(t, uint64(0), d.Stats().FramesProcessed)

	_, err := os.Stat(l.Path())
	assert.NoError(t, err, "log is persisted even when nothing ran")
}

func TestHandleCommands(t *testing.T) {
	captureDir := t.TempDir()
	galleryDir := t.TempDir()
	d, _ := newTestDriver(t, newSliceSource(0), &stubRegistry{}, DriverConfig{
		CaptureDir: captureDir,
		GalleryDir: galleryDir,
		Encoder:    oneFaceEncoder{},
	})
	frame := newSliceSource(1).frames[0]
	res, err := d.ProcessFrame(context.Background(), frame)
	require.NoError(t, err)

	assert.True(t, d.HandleCommand(mode.Command{Kind: mode.CommandQuit}, frame, res))

	assert.False(t, d.HandleCommand(mode.Command{Kind: mode.CommandSaveFrame}, frame, res))
	saved, err := filepath.Glob(filepath.Join(captureDir, "detection_*.jpg"))
	require.NoError(t, err)
	assert.Len(t, saved, 1)

	require.NoError(t, d.state.Background.Initialize(frame.Image))
	require.True(t, d.Stats().BackgroundReady)
	d.HandleCommand(mode.Command{Kind: mode.CommandResetBackground}, frame, res)
	assert.False(t, d.Stats().BackgroundReady)

	d.HandleCommand(mode.Command{Kind: mode.CommandRegisterFace, Name: "carol"}, frame, res)
	assert.Equal(t, 1, d.Stats().GallerySize)
	assert.FileExists(t, filepath.Join(galleryDir, "carol.jpg"))

	d.HandleCommand(mode.Command{Kind: mode.CommandShowSummary}, frame, res)
}

func TestProcessFramePublishesResults(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()
	ch, unsubscribe := bus.SubscribeChannel(1)
	defer unsubscribe()

	d, _ := newTestDriver(t, newSliceSource(0), &stubRegistry{}, DriverConfig{EventBus: bus, SessionID: "abc"})
	_, err := d.ProcessFrame(context.Background(), newSliceSource(1).frames[0])
	require.NoError(t, err)

	select {
	case got := <-ch:
		assert.Equal(t, "abc", got.SessionID)
		assert.Equal(t, uint64(1), got.FrameIndex)
	case <-time.After(time.Second):
		t.Fatal("no result published")
	}
}

type countingStrategy struct {
	resets int
}

func (*countingStrategy) Name() string                               { return "counting" }
func (*countingStrategy) ShouldDetect(*FrameData, *FrameResult) bool { return true }
func (*countingStrategy) OnDetectionComplete(*FrameResult)           {}
func (s *countingStrategy) Reset()                                   { s.resets++ }

func TestStrategyRestartsOnModeSwitchAndReset(t *testing.T) {
	strategy := &countingStrategy{}
	d, _ := newTestDriver(t, newSliceSource(0), &stubRegistry{}, DriverConfig{Strategy: strategy})
	frame := newSliceSource(1).frames[0]

	d.HandleCommand(mode.Command{Kind: mode.CommandSwitchMode, Mode: mode.Motion}, frame, nil)
	assert.Equal(t, 1, strategy.resets)

	d.HandleCommand(mode.Command{Kind: mode.CommandSwitchMode, Mode: mode.Motion}, frame, nil)
	assert.Equal(t, 1, strategy.resets, "switching to the current mode keeps the schedule")

	d.HandleCommand(mode.Command{Kind: mode.CommandResetBackground}, frame, nil)
	assert.Equal(t, 2, strategy.resets)
}
