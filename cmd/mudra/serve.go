package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the recognition API server",
	Long: `Start the HTTP server with the recognition, smoothing, sequence log,
binding and live WebSocket endpoints. With --capture the local camera
pipeline runs in the same process and can be controlled under /api/capture.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Address to listen on (default from config, :8000)")
	serveCmd.Flags().String("static-dir", "", "Directory with a browser client served under /ui")
	serveCmd.Flags().Bool("capture", false, "Start the local camera pipeline")
	serveCmd.Flags().String("mode", string(app.ModeSequence), "Capture mode: sequence or static")
}

func runServe(cmd *cobra.Command, args []string) error {
	if addr := mustGetString(cmd, "addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	staticDir := mustGetString(cmd, "static-dir")
	if staticDir == "" {
		staticDir = cfg.Server.StaticDir
	}
	if staticDir == "" {
		staticDir = findWebDir()
	}
	mode, err := app.ParseMode(mustGetString(cmd, "mode"))
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	svc := newRecognizer(cfg)
	a := newApp(cfg, app.Config{Store: st, Recognizer: svc, Mode: mode})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Sessions().Run(ctx, svc.Config().SweepInterval)

	if mustGetBool(cmd, "capture") {
		if err := a.Start(ctx); err != nil {
			return fmt.Errorf("starting capture: %w", err)
		}
		defer a.Stop()
	}

	srv := server.New(server.Config{
		Addr:           cfg.Server.Addr,
		Recognizer:     svc,
		Store:          st,
		Plugins:        a.PluginManager(),
		App:            a,
		Segmenter:      cfg.SegmenterConfig(),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		StaticDir:      staticDir,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("error during shutdown")
		}
	}()

	if staticDir != "" {
		log.WithField("dir", staticDir).Info("serving browser client under /ui")
	}
	return srv.Start()
}
