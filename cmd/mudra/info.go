package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the loaded models and their labels",
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().Bool("json", false, "Output as JSON")
}

func runInfo(cmd *cobra.Command, args []string) error {
	svc := newRecognizer(cfg)
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	type report struct {
		Static   any      `json:"static"`
		Sequence any      `json:"sequence"`
		Errors   []string `json:"errors,omitempty"`
	}
	var r report
	health, err := svc.Health(ctx)
	if err != nil {
		r.Errors = append(r.Errors, "static: "+err.Error())
	} else {
		r.Static = health
	}
	info, err := svc.SequenceInfo(ctx)
	if err != nil {
		r.Errors = append(r.Errors, "sequence: "+err.Error())
	} else {
		r.Sequence = info
	}

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	if r.Static != nil {
		fmt.Fprintf(out, "Static model: %d classes\n  %s\n", len(health.AvailableClasses), strings.Join(health.AvailableClasses, " "))
	}
	if r.Sequence != nil {
		fmt.Fprintf(out, "Sequence model: %d frames x %d features, threshold %.2f\n",
			info.SequenceLength, info.FeaturesPerFrame, info.ConfidenceThreshold)
		for i, a := range info.Actions {
			fmt.Fprintf(out, "  %3d  %s\n", i, a)
		}
	}
	for _, e := range r.Errors {
		fmt.Fprintf(out, "Unavailable: %s\n", e)
	}
	return nil
}
