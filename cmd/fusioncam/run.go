package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"fusioncam/internal/auth"
	"fusioncam/internal/config"
	"fusioncam/internal/eventlog"
	"fusioncam/internal/faces"
	"fusioncam/internal/httpapi"
	"fusioncam/internal/mode"
	"fusioncam/internal/motion"
	"fusioncam/internal/pipeline"
	"fusioncam/internal/pipeline/detectors"
	"fusioncam/internal/pipeline/strategies"
	"fusioncam/internal/stream"
	"fusioncam/internal/vision"
	"fusioncam/internal/vision/cv"
	"fusioncam/internal/vision/dlib"
	pigoface "fusioncam/internal/vision/pigo"
	"fusioncam/internal/ws"
)

// Haar cascade files shipped with OpenCV
const (
	frontalCascade = "haarcascade_frontalface_default.xml"
	profileCascade = "haarcascade_profileface.xml"
	eyeCascade     = "haarcascade_eye.xml"
	bodyCascade    = "haarcascade_fullbody.xml"
)

type runOptions struct {
	source   string
	mode     string
	gallery  string
	logPath  string
	strategy string
	stride   int
	httpAddr string
	backend  string
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the detection pipeline until the source ends or q is entered",
	Long: `Run the detection pipeline on a camera, stream, video file or image directory.

Keys read from stdin (one per line):
  1-5   face, recognition, motion, people, color mode
  a     all detectors
  s     save the annotated frame
  r     reset the motion background
  l     print a summary of recent detections
  q     quit
  register <name>   add the current frame's face to the gallery`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		runOpts.apply(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		return run(cmd.Context(), cfg)
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runOpts.source, "source", "s", "", "Camera index, device path, rtsp/http URL, video file or image directory")
	f.StringVarP(&runOpts.mode, "mode", "m", "", "Initial mode (face, recognition, motion, people, color, all)")
	f.StringVar(&runOpts.gallery, "gallery", "", "Directory of known face images")
	f.StringVar(&runOpts.logPath, "log", "", "Detection log JSON file")
	f.StringVar(&runOpts.strategy, "strategy", "", "Detection strategy (continuous, stride, scheduled, disabled)")
	f.IntVar(&runOpts.stride, "stride", 0, "Run detectors on every Nth frame with --strategy stride")
	f.StringVar(&runOpts.httpAddr, "http", "", "Serve stream, websocket and API on this address (e.g. :8080)")
	f.StringVar(&runOpts.backend, "backend", "", "Frontal face backend (gocv, pigo)")
	rootCmd.AddCommand(runCmd)
}

// apply overrides cfg with the flags that were set
func (o runOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("source") {
		cfg.Source.Device = o.source
	}
	if flags.Changed("mode") {
		cfg.Detection.InitialMode = mode.Mode(o.mode)
	}
	if flags.Changed("gallery") {
		cfg.Paths.GalleryDir = o.gallery
	}
	if flags.Changed("log") {
		cfg.Paths.LogPath = o.logPath
	}
	if flags.Changed("strategy") {
		cfg.Detection.Strategy.Name = o.strategy
	}
	if flags.Changed("stride") {
		cfg.Detection.Strategy.Stride = o.stride
	}
	if flags.Changed("http") {
		cfg.HTTP.Addr = o.httpAddr
	}
	if flags.Changed("backend") {
		cfg.Detection.Backend = o.backend
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := log.New(os.Stderr, "[fusioncam] ", log.Ltime)
	sessionID := uuid.NewString()

	encoder := loadEncoder(cfg.Paths.ModelDir)
	if c, ok := encoder.(io.Closer); ok {
		defer c.Close()
	}
	gallery, err := faces.Load(cfg.Paths.GalleryDir, encoder)
	if err != nil {
		log.Printf("[Gallery] Warning: %v", err)
	}
	log.Printf("[Gallery] Loaded %d known faces", gallery.Len())

	registry, err := buildRegistry(cfg, encoder)
	if err != nil {
		return err
	}
	defer registry.Close()

	state := &pipeline.State{
		Gallery:    gallery,
		Background: motion.NewModel(cfg.Motion, cv.NewBackground(), cv.ContourFinder{}),
	}
	defer state.Background.Close()
	eventLog := eventlog.New(cfg.Paths.LogPath, eventlog.WithFlushEvery(cfg.Log.FlushEvery))
	controller := mode.NewController(cfg.Detection.InitialMode)

	strategy, err := strategies.Create(cfg.Detection.Strategy)
	if err != nil {
		return err
	}

	commands := pipeline.NewCommandQueue(16)
	go commands.ReadLines(ctx, os.Stdin)

	source, err := openSource(ctx, cfg.Source)
	if err != nil {
		return err
	}
	defer source.Close()

	bus := pipeline.NewEventBus()
	defer bus.Close()

	driver, err := pipeline.NewDriver(source, registry, controller, eventLog, state, pipeline.DriverConfig{
		SessionID:     sessionID,
		Strategy:      strategy,
		Commands:      commands,
		EventBus:      bus,
		Encoder:       encoder,
		GalleryDir:    cfg.Paths.GalleryDir,
		CaptureDir:    cfg.Paths.CaptureDir,
		JPEGQuality:   cfg.HTTP.JPEGQuality,
		SummaryWindow: cfg.Log.SummaryWindow,
	})
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.HTTP.Addr != "" {
		mjpeg := stream.NewMJPEGStream(cfg.HTTP.JPEGQuality)
		bus.Subscribe(mjpeg)

		var hubOpts []ws.HubOption
		if cfg.HTTP.StreamFrames {
			hubOpts = append(hubOpts, ws.WithFrames(cfg.HTTP.JPEGQuality))
		}
		hub := ws.NewDetectionHub(hubOpts...)
		bus.Subscribe(hub)

		api := httpapi.NewAPI(driver, eventLog, commands, registry, cfg.Log.SummaryWindow)
		server := httpapi.NewServer(api, httpapi.Options{
			Stream:   mjpeg,
			Snapshot: stream.NewSnapshotHandler(mjpeg),
			WS:       ws.NewHandler(hub, commands),
			Auth:     auth.NewAuthenticator(cfg.Auth.Enabled, auth.NewJWTManager(cfg.Auth.Secret, cfg.Auth.Expiry)),
			Logger:   logger,
		})
		go func() {
			if err := server.Run(runCtx, cfg.HTTP.Addr); err != nil {
				logger.Printf("HTTP server failed: %v", err)
				cancel()
			}
		}()
	}

	logger.Printf("Session %s: source %s, mode %s, %d detectors", sessionID, cfg.Source.Device, controller.Mode(), len(registry.GetAll()))
	runErr := driver.Run(runCtx)

	window := cfg.Log.SummaryWindow
	eventlog.PrintSummary(eventLog.Summarize(window), eventLog.Len())
	return runErr
}

// loadEncoder returns nil when the dlib models are unavailable, leaving
// recognition and registration disabled
func loadEncoder(modelDir string) vision.FaceEncoder {
	enc, err := dlib.NewEncoder(modelDir)
	if err != nil {
		log.Printf("[Recognition] Warning: face recognition disabled: %v", err)
		return nil
	}
	return enc
}

// loadCascade returns nil when the cascade cannot be loaded so the owning
// detector degrades instead of failing startup
func loadCascade(path string) vision.Cascade {
	c, err := cv.LoadHaarCascade(path)
	if err != nil {
		log.Printf("[Detectors] Warning: %v", err)
		return nil
	}
	return c
}

func loadFrontal(cfg *config.Config) vision.Cascade {
	if cfg.Detection.Backend == config.BackendPigo {
		c, err := pigoface.Load(cfg.Paths.PigoModel)
		if err != nil {
			log.Printf("[Detectors] Warning: %v", err)
			return nil
		}
		return c
	}
	return loadCascade(filepath.Join(cfg.Paths.CascadeDir, frontalCascade))
}

func buildRegistry(cfg *config.Config, encoder vision.FaceEncoder) (*detectors.Registry, error) {
	registry := detectors.NewRegistry()
	dir := cfg.Paths.CascadeDir

	ops := cv.Ops{}
	all := []pipeline.Detector{
		detectors.NewFaceDetector(
			ops,
			loadFrontal(cfg),
			loadCascade(filepath.Join(dir, profileCascade)),
			loadCascade(filepath.Join(dir, eyeCascade)),
		),
		detectors.NewRecognitionDetector(encoder, faces.NewMatcher(cfg.Detection.MatchThreshold)).
			WithScale(cfg.Detection.RecognitionScale),
		detectors.NewMotionDetector(),
		detectors.NewPeopleDetector(ops, loadCascade(filepath.Join(dir, bodyCascade))).
			WithSizeLimits(cfg.Detection.PeopleMinSize.Point(), cfg.Detection.PeopleMaxSize.Point()),
		detectors.NewColorDetector(cfg.Detection.ColorRanges, cfg.Detection.ColorMinArea, ops, cv.ContourFinder{}),
	}
	for _, d := range all {
		if err := registry.Register(d); err != nil {
			registry.Close()
			return nil, fmt.Errorf("register detector: %w", err)
		}
	}
	return registry, nil
}

// openSource uses OpenCV capture for camera indexes and the ffmpeg,
// snapshot or directory sources for everything else
func openSource(ctx context.Context, sc config.SourceConfig) (pipeline.FrameSource, error) {
	if _, err := strconv.Atoi(sc.Device); err == nil {
		capture, err := cv.OpenCapture(sc.Device)
		if err != nil {
			return nil, err
		}
		return capture, nil
	}

	src, err := pipeline.OpenSource(ctx, sc.Device, sc.FPS, sc.Width, sc.Height)
	if err != nil {
		return nil, err
	}
	if dir, ok := src.(*pipeline.DirectorySource); ok {
		if dir.Len() == 0 {
			return nil, errors.New("frame directory holds no images")
		}
		return newProgressSource(dir, dir.Len(), sc.Device), nil
	}
	return src, nil
}
