package main

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/recognizer"
	"github.com/ayusman/mudra/internal/store"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Re-classify stored labelled windows and report accuracy",
	Long: `Run every stored sequence that carries a ground-truth label through the
current sequence model and report how many windows were recognized
correctly, misrecognized or rejected by the confidence gate.`,
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().Bool("json", false, "Output the report as JSON")
	replayCmd.Flags().Bool("save", false, "Log each replayed prediction under the configured model ID")
	replayCmd.Flags().Int("limit", 0, "Replay at most this many windows (0 = all)")
}

// labelStats counts replay outcomes for one ground-truth label.
type labelStats struct {
	Label    string `json:"label"`
	Total    int    `json:"total"`
	Correct  int    `json:"correct"`
	Wrong    int    `json:"wrong"`
	Rejected int    `json:"rejected"`
}

type replayReport struct {
	Total    int          `json:"total"`
	Correct  int          `json:"correct"`
	Wrong    int          `json:"wrong"`
	Rejected int          `json:"rejected"`
	Failed   int          `json:"failed"`
	Accuracy float64      `json:"accuracy"`
	Labels   []labelStats `json:"labels"`
}

type replayOptions struct {
	Save    bool
	ModelID string
	Limit   int
	// Progress is called once per replayed window.
	Progress func()
}

// replay classifies labelled windows and optionally logs the predictions to
// st. Windows that cannot be
// decoded or classified count as failed and are left out of the accuracy.
func replay(ctx context.Context, svc *recognizer.Service, st *store.Store, seqs []*store.Sequence, opts replayOptions) (replayReport, error) {
	info, err := svc.SequenceInfo(ctx)
	if err != nil {
		return replayReport{}, err
	}
	if opts.Limit > 0 && len(seqs) > opts.Limit {
		seqs = seqs[:opts.Limit]
	}

	var rep replayReport
	byLabel := make(map[string]*labelStats)
	for _, seq := range seqs {
		if opts.Progress != nil {
			opts.Progress()
		}
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		frames, err := app.DecodeWindow(seq.Keypoints)
		if err != nil {
			rep.Failed++
			log.WithError(err).WithField("sequence", seq.ID).Warn("skipping undecodable window")
			continue
		}
		d, err := svc.PredictFromSequenceRaw(ctx, frames)
		if err != nil {
			rep.Failed++
			log.WithError(err).WithField("sequence", seq.ID).Warn("replay failed")
			continue
		}

		ls := byLabel[seq.Label]
		if ls == nil {
			ls = &labelStats{Label: seq.Label}
			byLabel[seq.Label] = ls
		}
		rep.Total++
		ls.Total++
		switch {
		case !d.Accepted:
			rep.Rejected++
			ls.Rejected++
		case d.Label == seq.Label:
			rep.Correct++
			ls.Correct++
		default:
			rep.Wrong++
			ls.Wrong++
		}

		if opts.Save {
			pred := &store.Prediction{
				SequenceID: seq.ID,
				ModelID:    opts.ModelID,
				TopK:       app.TopK(d.Proba, info.Actions, app.RecordTopK),
			}
			if err := st.Predictions().Create(pred); err != nil {
				log.WithError(err).WithField("sequence", seq.ID).Warn("failed to log prediction")
			}
		}
	}

	if rep.Total > 0 {
		rep.Accuracy = float64(rep.Correct) / float64(rep.Total)
	}
	rep.Labels = make([]labelStats, 0, len(byLabel))
	for _, ls := range byLabel {
		rep.Labels = append(rep.Labels, *ls)
	}
	slices.SortFunc(rep.Labels, func(a, b labelStats) int { return cmp.Compare(a.Label, b.Label) })
	return rep, nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	seqs, err := st.Sequences().ListLabelled()
	if err != nil {
		return fmt.Errorf("list labelled sequences: %w", err)
	}
	jsonOutput := mustGetBool(cmd, "json")
	limit := mustGetInt(cmd, "limit")
	n := len(seqs)
	if limit > 0 && n > limit {
		n = limit
	}

	opts := replayOptions{
		Save:    mustGetBool(cmd, "save"),
		ModelID: cfg.Models.ModelID,
		Limit:   limit,
	}
	// Create progress bar (only for non-JSON output)
	if !jsonOutput {
		bar := progressbar.NewOptions(n,
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionSetDescription("Replaying"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("windows"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
		opts.Progress = func() { bar.Add(1) }
		defer bar.Finish()
	}

	rep, err := replay(cmd.Context(), newRecognizer(cfg), st, seqs, opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	printReport(out, rep)
	return nil
}

func printReport(w io.Writer, rep replayReport) {
	fmt.Fprintf(w, "\nReplayed %d windows: %d correct, %d wrong, %d rejected (accuracy %.1f%%)",
		rep.Total, rep.Correct, rep.Wrong, rep.Rejected, 100*rep.Accuracy)
	if rep.Failed > 0 {
		fmt.Fprintf(w, ", %d failed", rep.Failed)
	}
	fmt.Fprintln(w)
	if len(rep.Labels) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LABEL\tTOTAL\tCORRECT\tWRONG\tREJECTED")
	for _, ls := range rep.Labels {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", ls.Label, ls.Total, ls.Correct, ls.Wrong, ls.Rejected)
	}
	tw.Flush()
}
