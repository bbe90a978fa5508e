// Package config loads the mudra configuration from an optional YAML file
// and MUDRA_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/recognizer"
)

// EnvConfigPath names the config file when no path is passed to Load.
const EnvConfigPath = "MUDRA_CONFIG"

// ErrInvalid is returned by Validate and for unparsable environment values.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full service configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Store       StoreConfig       `yaml:"store"`
	Models      ModelsConfig      `yaml:"models"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Camera      CameraConfig      `yaml:"camera"`
	Plugins     PluginsConfig     `yaml:"plugins"`
	Log         LogConfig         `yaml:"log"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	StaticDir      string   `yaml:"static_dir"` // browser client served under /ui
}

type StoreConfig struct {
	DBPath string `yaml:"db_path"`
}

// ModelsConfig points at the two model artifacts. A source is a dense JSON
// artifact path or an http(s) model server URL.
type ModelsConfig struct {
	Static         string        `yaml:"static"`
	StaticLabels   string        `yaml:"static_labels"`
	Sequence       string        `yaml:"sequence"`
	SequenceLabels string        `yaml:"sequence_labels"`
	RemoteTimeout  time.Duration `yaml:"remote_timeout"`
	ModelID        string        `yaml:"model_id"`
}

type RecognitionConfig struct {
	StaticThreshold   float64       `yaml:"static_threshold"`
	SequenceThreshold float64       `yaml:"sequence_threshold"`
	PresenceFrames    int           `yaml:"presence_frames"`
	AbsenceFrames     int           `yaml:"absence_frames"`
	HoldFrames        int           `yaml:"hold_frames"`
	HistorySize       int           `yaml:"history_size"`
	MinHistory        int           `yaml:"min_history"`
	SessionTTL        time.Duration `yaml:"session_ttl"`
}

type CameraConfig struct {
	DeviceID int  `yaml:"device_id"`
	FPS      int  `yaml:"fps"`
	Width    int  `yaml:"width"`
	Height   int  `yaml:"height"`
	Mirror   bool `yaml:"mirror"`
}

type PluginsConfig struct {
	Dir     string        `yaml:"dir"`
	Timeout time.Duration `yaml:"timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// DataDir returns ~/.mudra, falling back to a relative .mudra directory when
// the home directory is unknown.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mudra"
	}
	return filepath.Join(home, ".mudra")
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	rc := recognizer.DefaultConfig()
	cam := capture.DefaultConfig()
	dir := DataDir()
	return &Config{
		Server: ServerConfig{Addr: ":8000"},
		Store:  StoreConfig{DBPath: filepath.Join(dir, "mudra.db")},
		Models: ModelsConfig{
			RemoteTimeout: 10 * time.Second,
			ModelID:       "sequence",
		},
		Recognition: RecognitionConfig{
			StaticThreshold:   rc.StaticThreshold,
			SequenceThreshold: rc.SequenceThreshold,
			PresenceFrames:    gesture.DefaultPresenceStartFrames,
			AbsenceFrames:     gesture.DefaultAbsenceEndFrames,
			HoldFrames:        rc.HoldFrames,
			HistorySize:       rc.HistorySize,
			MinHistory:        rc.MinHistory,
			SessionTTL:        rc.SessionTTL,
		},
		Camera: CameraConfig{
			DeviceID: cam.DeviceID,
			FPS:      cam.FPS,
			Width:    cam.Width,
			Height:   cam.Height,
			Mirror:   cam.Mirror,
		},
		Plugins: PluginsConfig{
			Dir:     filepath.Join(dir, "plugins"),
			Timeout: 5 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration. A .env file in the working directory is
// loaded first if present; then the YAML file at path (or $MUDRA_CONFIG) is
// applied over the defaults, and MUDRA_* variables override both.
func Load(path string) (*Config, error) {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	envString("MUDRA_ADDR", &c.Server.Addr)
	envString("MUDRA_STATIC_DIR", &c.Server.StaticDir)
	envString("MUDRA_DB_PATH", &c.Store.DBPath)
	envString("MUDRA_STATIC_MODEL", &c.Models.Static)
	envString("MUDRA_STATIC_LABELS", &c.Models.StaticLabels)
	envString("MUDRA_SEQUENCE_MODEL", &c.Models.Sequence)
	envString("MUDRA_SEQUENCE_LABELS", &c.Models.SequenceLabels)
	envString("MUDRA_MODEL_ID", &c.Models.ModelID)
	envString("MUDRA_PLUGIN_DIR", &c.Plugins.Dir)
	envString("MUDRA_LOG_LEVEL", &c.Log.Level)
	envString("MUDRA_LOG_FORMAT", &c.Log.Format)
	if v := os.Getenv("MUDRA_ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}

	return errors.Join(
		envFloat("MUDRA_STATIC_THRESHOLD", &c.Recognition.StaticThreshold),
		envFloat("MUDRA_SEQUENCE_THRESHOLD", &c.Recognition.SequenceThreshold),
		envInt("MUDRA_PRESENCE_FRAMES", &c.Recognition.PresenceFrames),
		envInt("MUDRA_ABSENCE_FRAMES", &c.Recognition.AbsenceFrames),
		envInt("MUDRA_HOLD_FRAMES", &c.Recognition.HoldFrames),
		envInt("MUDRA_CAMERA_ID", &c.Camera.DeviceID),
		envInt("MUDRA_FPS", &c.Camera.FPS),
		envDuration("MUDRA_PLUGIN_TIMEOUT", &c.Plugins.Timeout),
	)
}

// Validate rejects settings the recognizer cannot run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}
	r := c.Recognition
	check(r.StaticThreshold >= 0 && r.StaticThreshold <= 1, "static_threshold %v outside [0,1]", r.StaticThreshold)
	check(r.SequenceThreshold >= 0 && r.SequenceThreshold <= 1, "sequence_threshold %v outside [0,1]", r.SequenceThreshold)
	check(r.PresenceFrames > 0, "presence_frames must be positive")
	check(r.AbsenceFrames > 0, "absence_frames must be positive")
	check(r.HoldFrames > 0, "hold_frames must be positive")
	check(r.HistorySize > 0, "history_size must be positive")
	check(r.MinHistory > 0 && r.MinHistory <= r.HistorySize, "min_history must be in [1, history_size]")
	check(c.Camera.FPS > 0, "camera fps must be positive")
	check(c.Camera.DeviceID >= 0, "camera device_id must not be negative")
	check(c.Plugins.Timeout > 0, "plugin timeout must be positive")
	check(c.Store.DBPath != "", "db_path is required")
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		check(false, "log format %q is not text or json", c.Log.Format)
	}
	return errors.Join(errs...)
}

// RecognizerConfig returns the recognition policy.
func (c *Config) RecognizerConfig() recognizer.Config {
	rc := recognizer.DefaultConfig()
	rc.StaticThreshold = c.Recognition.StaticThreshold
	rc.SequenceThreshold = c.Recognition.SequenceThreshold
	rc.HoldFrames = c.Recognition.HoldFrames
	rc.HistorySize = c.Recognition.HistorySize
	rc.MinHistory = c.Recognition.MinHistory
	if c.Recognition.SessionTTL > 0 {
		rc.SessionTTL = c.Recognition.SessionTTL
	}
	return rc
}

// SegmenterConfig returns the sequence segmentation settings.
func (c *Config) SegmenterConfig() gesture.SegmenterConfig {
	return gesture.SegmenterConfig{
		PresenceStartFrames: c.Recognition.PresenceFrames,
		AbsenceEndFrames:    c.Recognition.AbsenceFrames,
		WindowSize:          gesture.WindowSize,
	}
}

// CaptureConfig returns the camera settings.
func (c *Config) CaptureConfig() capture.Config {
	return capture.Config{
		DeviceID: c.Camera.DeviceID,
		FPS:      c.Camera.FPS,
		Width:    c.Camera.Width,
		Height:   c.Camera.Height,
		Mirror:   c.Camera.Mirror,
	}
}

// StaticLoader describes the static (single hand) model.
func (c *Config) StaticLoader() classifier.LoaderConfig {
	return classifier.LoaderConfig{
		Name:       "static",
		Source:     c.Models.Static,
		LabelsPath: c.Models.StaticLabels,
		InputDim:   gesture.HandFeatures,
		Remote:     classifier.RemoteOptions{Timeout: c.Models.RemoteTimeout},
	}
}

// SequenceLoader describes the sequence model. Without a label file or
// labels in the artifact, the bundled sign vocabulary is used.
func (c *Config) SequenceLoader() classifier.LoaderConfig {
	labels := classifier.DefaultSequenceLabels()
	return classifier.LoaderConfig{
		Name:          "sequence",
		Source:        c.Models.Sequence,
		LabelsPath:    c.Models.SequenceLabels,
		DefaultLabels: &labels,
		InputDim:      gesture.WindowSize * gesture.FrameFeatures,
		Remote:        classifier.RemoteOptions{Timeout: c.Models.RemoteTimeout},
	}
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// envInt reads an environment variable as an integer. Unset or empty leaves
// dst untouched.
func envInt(key string, dst *int) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, key, s)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst *float64) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("%w: %s=%q is not a number", ErrInvalid, key, s)
	}
	*dst = f
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%w: %s=%q is not a duration", ErrInvalid, key, s)
	}
	*dst = d
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
