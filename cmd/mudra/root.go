package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/logging"
)

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "mudra",
	Short: "Sign language recognition from hand landmarks",
	Long: `Mudra recognizes static hand signs and 60-frame sign sequences from
hand landmarks. It serves the recognizer over HTTP and WebSocket, runs a local
camera pipeline that triggers plugin actions, and records windows for
evaluation.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (default $MUDRA_CONFIG)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text or json")
}

// loadConfig builds cfg from the file and environment; explicit flags win.
func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		c.Log.Level = mustGetString(cmd, "log-level")
	}
	if cmd.Flags().Changed("log-format") {
		c.Log.Format = mustGetString(cmd, "log-format")
	}
	if err := logging.Setup(os.Stderr, c.Log.Level, c.Log.Format); err != nil {
		return err
	}
	cfg = c
	return nil
}
