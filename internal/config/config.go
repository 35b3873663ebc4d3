package config

import (
	"errors"
	"fmt"
	"image"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"fusioncam/internal/faces"
	"fusioncam/internal/mode"
	"fusioncam/internal/motion"
	"fusioncam/internal/pipeline/detectors"
	"fusioncam/internal/pipeline/strategies"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "FUSIONCAM_"

// Backends for face cascades
const (
	BackendGoCV = "gocv"
	BackendPigo = "pigo"
)

// Config represents the complete fusioncam configuration
type Config struct {
	Source    SourceConfig    `yaml:"source"`
	Paths     PathsConfig     `yaml:"paths"`
	Detection DetectionConfig `yaml:"detection"`
	Motion    motion.Config   `yaml:"motion"`
	Log       LogConfig       `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
	Auth      AuthConfig      `yaml:"auth"`
}

// SourceConfig selects the frame source
type SourceConfig struct {
	Device string `yaml:"device"` // camera index, /dev path, rtsp/http URL, video file or image directory
	FPS    int    `yaml:"fps"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// PathsConfig contains filesystem locations
type PathsConfig struct {
	GalleryDir string `yaml:"gallery_dir"`
	LogPath    string `yaml:"log_path"`
	CaptureDir string `yaml:"capture_dir"`
	CascadeDir string `yaml:"cascade_dir"` // OpenCV haarcascade_*.xml files
	PigoModel  string `yaml:"pigo_model"`  // pigo facefinder cascade
	ModelDir   string `yaml:"model_dir"`   // dlib face recognition models
}

// DetectionConfig tunes the detectors
type DetectionConfig struct {
	InitialMode      mode.Mode              `yaml:"initial_mode"`
	Backend          string                 `yaml:"backend"` // gocv or pigo for frontal faces
	MatchThreshold   float64                `yaml:"match_threshold"`
	RecognitionScale int                    `yaml:"recognition_scale"`
	ColorMinArea     float64                `yaml:"color_min_area"`
	ColorRanges      []detectors.ColorRange `yaml:"color_ranges"`
	PeopleMinSize    Size                   `yaml:"people_min_size"`
	PeopleMaxSize    Size                   `yaml:"people_max_size"`
	Strategy         strategies.Settings    `yaml:"strategy"`
}

// Size is a width x height pair in pixels
type Size struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Point returns the size as an image.Point
func (s Size) Point() image.Point {
	return image.Pt(s.Width, s.Height)
}

// LogConfig controls detection log persistence
type LogConfig struct {
	FlushEvery    int `yaml:"flush_every"` // persist after this many appended entries
	SummaryWindow int `yaml:"summary_window"`
}

// HTTPConfig controls the display surfaces. An empty Addr disables them.
type HTTPConfig struct {
	Addr         string `yaml:"addr"`
	JPEGQuality  int    `yaml:"jpeg_quality"`
	StreamFrames bool   `yaml:"stream_frames"` // attach annotated JPEGs to websocket messages
}

// AuthConfig controls bearer tokens on the HTTP surfaces
type AuthConfig struct {
	Enabled bool          `yaml:"enabled"`
	Secret  string        `yaml:"secret"`
	Expiry  time.Duration `yaml:"expiry"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			Device: "0",
			FPS:    15,
			Width:  640,
			Height: 480,
		},
		Paths: PathsConfig{
			GalleryDir: "known_faces",
			LogPath:    "detection_log.json",
			CaptureDir: ".",
			CascadeDir: "/usr/share/opencv4/haarcascades",
			PigoModel:  "cascade/facefinder",
			ModelDir:   "models",
		},
		Detection: DetectionConfig{
			InitialMode:      mode.All,
			Backend:          BackendGoCV,
			MatchThreshold:   faces.DefaultThreshold,
			RecognitionScale: detectors.RecognitionScale,
			ColorMinArea:     detectors.DefaultColorMinArea,
			ColorRanges:      detectors.DefaultColorRanges(),
			PeopleMinSize:    Size{Width: detectors.PeopleParams.MinSize.X, Height: detectors.PeopleParams.MinSize.Y},
			PeopleMaxSize:    Size{Width: detectors.PeopleParams.MaxSize.X, Height: detectors.PeopleParams.MaxSize.Y},
			Strategy:         strategies.Settings{Name: strategies.NameContinuous, Stride: 1},
		},
		Motion: motion.DefaultConfig(),
		Log: LogConfig{
			FlushEvery:    1,
			SummaryWindow: 20,
		},
		HTTP: HTTPConfig{
			JPEGQuality: 80,
		},
		Auth: AuthConfig{
			Expiry: 24 * time.Hour,
		},
	}
}

// Load reads a YAML file over the defaults. Keys missing from the file keep
// their default values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from FUSIONCAM_* variables. lookup is normally
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	float := func(name string, dst *float64) {
		if v, ok := lookup(EnvPrefix + name); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = f
		}
	}

	str("SOURCE", &c.Source.Device)
	num("FPS", &c.Source.FPS)
	str("GALLERY_DIR", &c.Paths.GalleryDir)
	str("LOG_PATH", &c.Paths.LogPath)
	str("CAPTURE_DIR", &c.Paths.CaptureDir)
	str("CASCADE_DIR", &c.Paths.CascadeDir)
	str("MODEL_DIR", &c.Paths.ModelDir)
	str("BACKEND", &c.Detection.Backend)
	float("MATCH_THRESHOLD", &c.Detection.MatchThreshold)
	str("STRATEGY", &c.Detection.Strategy.Name)
	num("STRIDE", &c.Detection.Strategy.Stride)
	str("HTTP_ADDR", &c.HTTP.Addr)
	str("JWT_SECRET", &c.Auth.Secret)

	if v, ok := lookup(EnvPrefix + "MODE"); ok {
		c.Detection.InitialMode = mode.Mode(strings.ToLower(strings.TrimSpace(v)))
	}
	if v, ok := lookup(EnvPrefix + "AUTH_ENABLED"); ok {
		c.Auth.Enabled = v == "true" || v == "1"
	}
	if v, ok := lookup(EnvPrefix + "JWT_EXPIRY"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sJWT_EXPIRY: %w", EnvPrefix, err))
		} else {
			c.Auth.Expiry = d
		}
	}
	return errors.Join(errs...)
}

// Validate checks the configuration for values the pipeline cannot run with
func (c *Config) Validate() error {
	var errs []error

	if c.Source.Device == "" {
		errs = append(errs, errors.New("source.device is required"))
	}
	if c.Source.FPS <= 0 {
		errs = append(errs, fmt.Errorf("source.fps must be > 0, got %d", c.Source.FPS))
	}
	if m, err := mode.ParseMode(string(c.Detection.InitialMode)); err != nil {
		errs = append(errs, fmt.Errorf("detection.initial_mode: %w", err))
	} else {
		c.Detection.InitialMode = m
	}
	if c.Detection.Backend != BackendGoCV && c.Detection.Backend != BackendPigo {
		errs = append(errs, fmt.Errorf("detection.backend must be %s or %s, got %q", BackendGoCV, BackendPigo, c.Detection.Backend))
	}
	if c.Detection.MatchThreshold <= 0 {
		errs = append(errs, fmt.Errorf("detection.match_threshold must be > 0, got %v", c.Detection.MatchThreshold))
	}
	if c.Detection.RecognitionScale < 1 {
		errs = append(errs, fmt.Errorf("detection.recognition_scale must be >= 1, got %d", c.Detection.RecognitionScale))
	}
	for _, r := range c.Detection.ColorRanges {
		if r.Name == "" {
			errs = append(errs, errors.New("detection.color_ranges: name is required"))
		}
	}
	minSize, maxSize := c.Detection.PeopleMinSize, c.Detection.PeopleMaxSize
	if minSize.Width <= 0 || minSize.Height <= 0 {
		errs = append(errs, fmt.Errorf("detection.people_min_size must be positive, got %dx%d", minSize.Width, minSize.Height))
	}
	if maxSize.Width < minSize.Width || maxSize.Height < minSize.Height {
		errs = append(errs, fmt.Errorf("detection.people_max_size %dx%d is smaller than people_min_size", maxSize.Width, maxSize.Height))
	}
	if _, err := strategies.Create(c.Detection.Strategy); err != nil {
		errs = append(errs, fmt.Errorf("detection.strategy: %w", err))
	}
	if err := c.Motion.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.FlushEvery < 1 {
		errs = append(errs, fmt.Errorf("log.flush_every must be >= 1, got %d", c.Log.FlushEvery))
	}
	if c.HTTP.JPEGQuality < 1 || c.HTTP.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("http.jpeg_quality must be in [1,100], got %d", c.HTTP.JPEGQuality))
	}
	if c.Auth.Enabled && c.Auth.Secret == "" {
		errs = append(errs, errors.New("auth.secret is required when auth is enabled"))
	}

	return errors.Join(errs...)
}
