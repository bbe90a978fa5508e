// Package app runs the live capture session: camera frames go through the
// hand detector into the segmenter (or the static smoother), and accepted
// signs are dispatched to their bound plugin actions and optionally recorded.
package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/recognizer"
	"github.com/ayusman/mudra/internal/store"
)

// Mode selects which classifier drives the session.
type Mode string

const (
	// ModeSequence segments 60-frame windows for the sequence model.
	ModeSequence Mode = "sequence"
	// ModeStatic classifies every frame and smooths the result.
	ModeStatic Mode = "static"
)

// ParseMode validates a mode name. The empty string selects ModeSequence.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeSequence:
		return ModeSequence, nil
	case ModeStatic:
		return ModeStatic, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// DefaultPluginTimeout bounds a single plugin action.
const DefaultPluginTimeout = 5 * time.Second

// DefaultModelID is recorded with predictions when none is configured.
const DefaultModelID = "sequence"

// Config holds configuration options for the application.
type Config struct {
	Store      *store.Store
	Recognizer *recognizer.Service

	// Camera is used when no capture source is injected with SetCamera.
	Camera    capture.Config
	Segmenter gesture.SegmenterConfig
	Mode      Mode

	PluginDir     string
	PluginTimeout time.Duration

	// Record stores every classified window and its top-k prediction.
	Record bool
	// RecordLabel is the ground-truth label written with recorded windows.
	RecordLabel string
	// ModelID tags recorded predictions.
	ModelID string
}

// App is the main application that orchestrates sign detection and action execution.
type App struct {
	config     Config
	camera     capture.Camera
	detector   detector.Detector
	pluginMgr  *plugin.Manager
	dispatcher *plugin.Dispatcher
	events     *hub
	sessionID  string
	started    time.Time
	now        func() time.Time

	enabled atomic.Bool

	mu       sync.RWMutex
	cancel   context.CancelFunc
	done     chan struct{}
	onSign   []func(Sign)
	lastSign *Sign

	// procMu guards the per-session recognition state below.
	procMu      sync.Mutex
	segmenter   *gesture.Segmenter
	static      *gesture.StaticTracker
	seqLabels   []string
	windowStart time.Time
	lastStatic  string
}

// New creates a new App instance with the given configuration.
func New(config Config) *App {
	if config.Mode == "" {
		config.Mode = ModeSequence
	}
	if config.PluginTimeout <= 0 {
		config.PluginTimeout = DefaultPluginTimeout
	}
	if config.ModelID == "" {
		config.ModelID = DefaultModelID
	}
	if config.Segmenter.WindowSize <= 0 {
		config.Segmenter = gesture.DefaultSegmenterConfig()
	}
	if config.Camera.FPS <= 0 {
		config.Camera = capture.DefaultConfig()
	}

	mgr := plugin.NewManager(config.PluginDir)
	a := &App{
		config:     config,
		camera:     capture.NewCameraWithConfig(config.Camera),
		pluginMgr:  mgr,
		dispatcher: plugin.NewDispatcher(mgr, plugin.NewExecutor(config.PluginTimeout)),
		events:     newHub(),
		sessionID:  uuid.New().String(),
		now:        time.Now,
	}
	a.started = a.now()
	a.enabled.Store(true)

	// Try MediaPipe first, fall back to mock detector
	if mp, err := detector.NewMediaPipeDetector(detector.DefaultConfig()); err == nil {
		a.detector = mp
		log.Info("using MediaPipe hand detection")
	} else {
		log.WithError(err).Warn("MediaPipe not available, using mock detector")
		a.detector = detector.NewMockDetector()
	}

	return a
}

// SetEnabled pauses or resumes recognition without releasing the camera.
// Any change drops the partial window and the static vote history, so frames
// on either side of a pause never end up in the same decision.
func (a *App) SetEnabled(enabled bool) {
	if a.enabled.Swap(enabled) == enabled {
		return
	}
	a.resetRecognition()
	log.WithField("enabled", enabled).Info("recognition toggled")
}

// resetRecognition returns the segmenter and static tracker to their initial
// state.
func (a *App) resetRecognition() {
	a.procMu.Lock()
	defer a.procMu.Unlock()
	if a.segmenter != nil {
		a.segmenter.Reset()
	}
	if a.static != nil {
		a.static.Reset()
	}
	a.lastStatic = ""
}

// IsEnabled returns whether recognition is currently enabled.
func (a *App) IsEnabled() bool {
	return a.enabled.Load()
}

// SetDetector sets the hand detector implementation to use.
func (a *App) SetDetector(d detector.Detector) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.detector = d
}

// SetCamera replaces the capture source. It must be called before Start.
func (a *App) SetCamera(c capture.Camera) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.camera = c
}

// Detector returns the hand detector.
func (a *App) Detector() detector.Detector {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.detector
}

// Camera returns the capture source.
func (a *App) Camera() capture.Camera {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.camera
}

// PluginManager returns the plugin manager.
func (a *App) PluginManager() *plugin.Manager {
	return a.pluginMgr
}

// SessionID identifies this capture session in recorded sequences.
func (a *App) SessionID() string {
	return a.sessionID
}

// DiscoverPlugins scans the plugin directory and loads available plugins.
func (a *App) DiscoverPlugins() error {
	return a.pluginMgr.Discover()
}

// RegisterSignCallback registers fn to be called for every recognized sign.
func (a *App) RegisterSignCallback(fn func(Sign)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onSign = append(a.onSign, fn)
}

// Subscribe returns a channel of pipeline events and a function that ends
// the subscription. Slow subscribers miss events rather than stall capture.
func (a *App) Subscribe() (<-chan Event, func()) {
	return a.events.subscribe(eventBuffer)
}

// Status is a snapshot of the capture session.
type Status struct {
	Running   bool   `json:"running"`
	Enabled   bool   `json:"enabled"`
	Mode      Mode   `json:"mode"`
	SessionID string `json:"session_id"`
	State     string `json:"state,omitempty"`
	Frames    int    `json:"frames"`
	LastSign  *Sign  `json:"last_sign,omitempty"`
}

// Status reports whether the pipeline runs and where the segmenter stands.
func (a *App) Status() Status {
	a.mu.RLock()
	st := Status{
		Running:   a.cancel != nil,
		Enabled:   a.IsEnabled(),
		Mode:      a.config.Mode,
		SessionID: a.sessionID,
		LastSign:  a.lastSign,
	}
	a.mu.RUnlock()

	a.procMu.Lock()
	defer a.procMu.Unlock()
	if a.segmenter != nil {
		st.State = a.segmenter.State().String()
		st.Frames = a.segmenter.Frames()
	}
	return st
}

// Start loads the model, opens the camera and begins the detection pipeline.
// The pipeline outlives ctx; it runs until Stop.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		return nil
	}

	if err := a.prepare(ctx); err != nil {
		return err
	}

	if err := a.camera.Open(); err != nil {
		return fmt.Errorf("open camera: %w", err)
	}
	a.camera.SetFPS(a.config.Camera.FPS)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.runPipeline(runCtx, a.camera, a.detector, a.done)

	log.WithFields(log.Fields{
		"mode":    a.config.Mode,
		"session": a.sessionID,
		"fps":     a.config.Camera.FPS,
	}).Info("detection pipeline started")
	return nil
}

// Stop halts the detection pipeline and releases the camera and detector.
func (a *App) Stop() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	if err := a.camera.Close(); err != nil {
		log.WithError(err).Warn("error closing camera")
	}
	if d := a.Detector(); d != nil {
		if err := d.Close(); err != nil {
			log.WithError(err).Warn("error closing detector")
		}
	}

	a.resetRecognition()

	log.Info("detection pipeline stopped")
}

// Run starts the pipeline and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	a.Stop()
	return nil
}

// prepare builds the recognition state for the configured mode. Models are
// loaded through the recognizer, so they are shared with the HTTP API.
func (a *App) prepare(ctx context.Context) error {
	a.procMu.Lock()
	defer a.procMu.Unlock()

	if a.segmenter != nil || a.static != nil {
		return nil
	}
	if a.config.Recognizer == nil {
		return fmt.Errorf("app: no recognizer configured")
	}
	rc := a.config.Recognizer.Config()

	switch a.config.Mode {
	case ModeStatic:
		m, err := a.config.Recognizer.StaticClassifier(ctx)
		if err != nil {
			return err
		}
		a.static = gesture.NewStaticTracker(m.Model, a.config.Recognizer.StaticGate(m.Labels),
			gesture.NewSmoother(rc.HistorySize, rc.MinHistory))
	default:
		m, err := a.config.Recognizer.SequenceClassifier(ctx)
		if err != nil {
			return err
		}
		a.seqLabels = m.Labels.Labels()
		a.segmenter = gesture.NewSegmenter(a.config.Segmenter, m.Model, a.config.Recognizer.SequenceGate(m.Labels))
	}
	return nil
}
