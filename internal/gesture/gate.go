package gesture

// Default gate settings.
const (
	DefaultSequenceThreshold = 0.80
	DefaultStaticThreshold   = 0.60
	DefaultHoldFrames        = 45
)

// Decision is the outcome of gating one classifier output.
type Decision struct {
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	ClassIndex int       `json:"class_index"`
	Proba      []float64 `json:"raw_proba"`
	Accepted   bool      `json:"success"`
	Hold       int       `json:"hold_frames"`
}

// Gate accepts a prediction only when its top probability reaches Threshold.
type Gate struct {
	Labels     []string
	Threshold  float64
	HoldFrames int
}

// NewGate creates a Gate over an ordered label table.
func NewGate(labels []string, threshold float64, holdFrames int) *Gate {
	return &Gate{
		Labels:     labels,
		Threshold:  threshold,
		HoldFrames: holdFrames,
	}
}

// Argmax returns the index and value of the largest probability. The first
// maximum wins; an empty distribution yields (-1, 0).
func Argmax(proba []float64) (int, float64) {
	idx := -1
	best := 0.0
	for i, p := range proba {
		if idx < 0 || p > best {
			idx = i
			best = p
		}
	}
	return idx, best
}

// Apply gates a probability distribution. Rejected decisions carry an empty
// label and no hold; they are a valid negative result, not an error.
func (g *Gate) Apply(proba []float64) Decision {
	idx, confidence := Argmax(proba)
	d := Decision{
		Confidence: confidence,
		ClassIndex: idx,
		Proba:      proba,
	}
	if idx < 0 || idx >= len(g.Labels) {
		return d
	}
	if confidence >= g.Threshold {
		d.Label = g.Labels[idx]
		d.Accepted = true
		d.Hold = g.HoldFrames
	}
	return d
}

// HeldResult is the last accepted sign kept on display for TTL more frames.
type HeldResult struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	TTL        int     `json:"ttl"`
}

// Active reports whether a label is currently held.
func (h HeldResult) Active() bool {
	return h.TTL > 0 && h.Label != ""
}

// tick consumes one frame of hold time.
func (h *HeldResult) tick() {
	if h.TTL <= 0 {
		return
	}
	h.TTL--
	if h.TTL == 0 {
		*h = HeldResult{}
	}
}

func heldFrom(d Decision) HeldResult {
	if !d.Accepted || d.Hold <= 0 {
		return HeldResult{}
	}
	return HeldResult{Label: d.Label, Confidence: d.Confidence, TTL: d.Hold}
}
