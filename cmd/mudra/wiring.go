package main

import (
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/recognizer"
	"github.com/ayusman/mudra/internal/store"
)

// openStore opens the SQLite store, creating its directory.
func openStore(c *config.Config) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(c.Store.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	st, err := store.New(c.Store.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	log.WithField("path", c.Store.DBPath).Debug("store opened")
	return st, nil
}

// newRecognizer builds the recognition service. Models load lazily on first
// use, so a missing artifact surfaces as 503 responses rather than a startup
// failure.
func newRecognizer(c *config.Config) *recognizer.Service {
	if c.Models.Static == "" {
		log.Warn("no static model configured; single-hand endpoints will report the model unavailable")
	}
	if c.Models.Sequence == "" {
		log.Warn("no sequence model configured; sequence endpoints will report the model unavailable")
	}
	return recognizer.New(c.RecognizerConfig(),
		classifier.NewLoader(c.StaticLoader()),
		classifier.NewLoader(c.SequenceLoader()),
	)
}

// newApp builds the capture pipeline and discovers its plugins. ac carries
// the store, recognizer and per-command options; the rest comes from c.
func newApp(c *config.Config, ac app.Config) *app.App {
	ac.Camera = c.CaptureConfig()
	ac.Segmenter = c.SegmenterConfig()
	ac.PluginDir = c.Plugins.Dir
	ac.PluginTimeout = c.Plugins.Timeout
	ac.ModelID = c.Models.ModelID
	a := app.New(ac)
	if err := a.DiscoverPlugins(); err != nil {
		log.WithError(err).Warn("plugin discovery failed")
	} else {
		log.WithField("plugins", len(a.PluginManager().List())).Info("plugins discovered")
	}
	return a
}

// findWebDir searches for a browser client in common locations: "web",
// "../web", "../../web" and ~/.mudra/web. It returns "" if none exists.
func findWebDir() string {
	for _, p := range []string{"web", "../web", "../../web"} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}

	homeWebDir := filepath.Join(config.DataDir(), "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}
	return ""
}
