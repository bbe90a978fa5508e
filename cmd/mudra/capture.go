package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ayusman/mudra/internal/app"
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Recognize signs from the local camera",
	Long: `Run the camera pipeline in the foreground. Recognized signs are printed
and dispatched to their bound plugin actions. With --record every classified
window is stored with its top-k prediction, labelled with --label, for later
evaluation with "mudra replay".`,
	RunE: runCapture,
}

func init() {
	rootCmd.AddCommand(captureCmd)

	captureCmd.Flags().String("mode", string(app.ModeSequence), "Capture mode: sequence or static")
	captureCmd.Flags().Bool("record", false, "Store classified windows and predictions")
	captureCmd.Flags().String("label", "", "Ground-truth label for recorded windows")
	captureCmd.Flags().Int("camera", -1, "Camera device ID (default from config)")
}

func runCapture(cmd *cobra.Command, args []string) error {
	mode, err := app.ParseMode(mustGetString(cmd, "mode"))
	if err != nil {
		return err
	}
	record := mustGetBool(cmd, "record")
	label := mustGetString(cmd, "label")
	if label != "" && !record {
		return fmt.Errorf("--label requires --record")
	}
	if id := mustGetInt(cmd, "camera"); id >= 0 {
		cfg.Camera.DeviceID = id
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	svc := newRecognizer(cfg)
	a := newApp(cfg, app.Config{
		Store:       st,
		Recognizer:  svc,
		Mode:        mode,
		Record:      record,
		RecordLabel: label,
	})

	out := cmd.OutOrStdout()
	a.RegisterSignCallback(func(s app.Sign) {
		fmt.Fprintf(out, "%s\t%.2f", s.Label, s.Confidence)
		if s.Action != nil {
			fmt.Fprintf(out, "\t%s/%s success=%t", s.Action.Plugin, s.Action.Action, s.Action.Success)
		}
		fmt.Fprintln(out)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"mode":    mode,
		"record":  record,
		"session": a.SessionID(),
	}).Info("capturing; press Ctrl+C to stop")
	return a.Run(ctx)
}
