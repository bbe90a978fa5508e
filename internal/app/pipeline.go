package app

import (
	"context"
	"errors"
	"slices"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
)

// classified is a window the segmenter has just run through the model.
type classified struct {
	decision gesture.Decision
	window   gesture.Window
	start    time.Time
	end      time.Time
}

// runPipeline is the main detection loop. Every tick reads one frame, detects
// hands and advances the recognition state by exactly one step.
func (a *App) runPipeline(ctx context.Context, cam capture.Camera, det detector.Detector, done chan struct{}) {
	defer close(done)

	fps := cam.FPS()
	if fps <= 0 {
		fps = capture.DefaultFPS
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !a.IsEnabled() {
				continue
			}

			frame, err := cam.ReadFrame()
			if err != nil {
				if errors.Is(err, capture.ErrNoFrame) {
					log.Debug("no frame available")
				} else {
					log.WithError(err).Warn("error reading frame")
				}
				continue
			}

			hands, err := det.Detect(frame)
			frame.Close()
			if err != nil {
				log.WithError(err).Warn("error detecting hands")
				continue
			}
			// paused while the frame was being detected
			if !a.IsEnabled() {
				continue
			}

			if _, err := a.Process(ctx, hands); err != nil {
				log.WithError(err).Warn("recognition failed")
			}
		}
	}
}

// Process advances the session by one frame of detector output. Accepted
// signs are dispatched to their bound action before Process returns, and the
// resulting event is published to subscribers.
//
// An error is returned only when the classifier fails; the segmenter has
// already discarded the window by then.
func (a *App) Process(ctx context.Context, hands []detector.HandLandmarks) (Event, error) {
	if err := a.prepare(ctx); err != nil {
		return Event{}, err
	}
	frame := detector.SplitHands(hands)
	now := a.now()

	a.procMu.Lock()
	ev, window, sign, err := a.step(ctx, frame, now)
	a.procMu.Unlock()

	if window != nil && a.config.Record {
		id, recErr := a.record(window)
		if recErr != nil {
			log.WithError(recErr).Warn("failed to record window")
		} else if sign != nil {
			sign.SequenceID = id
		}
	}
	if sign != nil {
		a.handleSign(ctx, sign)
		ev.Sign = sign
	}

	a.events.publish(ev)
	return ev, err
}

func (a *App) step(ctx context.Context, frame detector.FrameHands, now time.Time) (Event, *classified, *Sign, error) {
	ev := Event{
		Timestamp: now.UnixMilli(),
		Mode:      a.config.Mode,
		Hands:     countHands(frame),
	}

	if a.config.Mode == ModeStatic {
		res, err := a.static.Step(ctx, frame)
		if err != nil {
			ev.Error = err.Error()
			return ev, nil, nil, err
		}
		if !res.HandPresent {
			a.lastStatic = ""
			return ev, nil, nil, nil
		}
		ev.Static = &res
		if !res.Stable || res.Label == a.lastStatic {
			return ev, nil, nil, nil
		}
		a.lastStatic = res.Label
		return ev, nil, &Sign{Label: res.Label, Confidence: res.Decision.Confidence, Mode: ModeStatic}, nil
	}

	st, err := a.segmenter.Step(ctx, frame)
	ev.State = st.State.String()
	ev.Frames = st.Frames
	if st.Held.Active() {
		held := st.Held
		ev.Held = &held
	}
	if st.Transitioned() && st.State == gesture.Recording {
		a.windowStart = now
	}
	if err != nil {
		ev.Error = err.Error()
		return ev, nil, nil, err
	}
	if st.Decision == nil {
		return ev, nil, nil, nil
	}

	ev.Decision = st.Decision
	window := &classified{decision: *st.Decision, window: st.Window, start: a.windowStart, end: now}
	if !st.Decision.Accepted {
		log.WithField("confidence", st.Decision.Confidence).Debug("sign below threshold")
		return ev, window, nil, nil
	}
	return ev, window, &Sign{Label: st.Decision.Label, Confidence: st.Decision.Confidence, Mode: ModeSequence}, nil
}

// handleSign runs the action bound to a recognized sign and notifies callbacks.
func (a *App) handleSign(ctx context.Context, sign *Sign) {
	log.WithFields(log.Fields{
		"sign":       sign.Label,
		"confidence": sign.Confidence,
		"mode":       sign.Mode,
	}).Info("sign recognized")

	sign.Action = a.executeAction(ctx, sign.Label, sign.Confidence)

	a.mu.Lock()
	a.lastSign = sign
	callbacks := slices.Clone(a.onSign)
	a.mu.Unlock()

	for _, fn := range callbacks {
		fn(*sign)
	}
}

// executeAction looks up the binding for label and dispatches it to its
// plugin. It returns nil when the label is unbound or the binding is disabled.
func (a *App) executeAction(ctx context.Context, label string, confidence float64) *ActionResult {
	if a.config.Store == nil {
		return nil
	}
	b, err := a.config.Store.Bindings().GetByLabel(label)
	if err != nil {
		log.WithError(err).WithField("sign", label).Warn("failed to look up binding")
		return nil
	}
	if b == nil || !b.Enabled {
		return nil
	}

	res := &ActionResult{Plugin: b.PluginName, Action: b.ActionName}
	resp, err := a.dispatcher.Dispatch(ctx, b.PluginName, b.ActionName, b.Config, label, confidence)
	switch {
	case err != nil:
		res.Error = err.Error()
	case !resp.Success:
		res.Error = resp.Error
	default:
		res.Success = true
	}

	entry := log.WithFields(log.Fields{"sign": label, "plugin": b.PluginName, "action": b.ActionName})
	if res.Success {
		entry.Info("action executed")
	} else {
		entry.WithField("error", res.Error).Warn("action failed")
	}
	return res
}

func countHands(f detector.FrameHands) int {
	n := 0
	if f.Left != nil {
		n++
	}
	if f.Right != nil {
		n++
	}
	return n
}
