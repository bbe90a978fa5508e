package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TopK is one ranked label of a prediction.
type TopK struct {
	Label string  `json:"label"`
	P     float64 `json:"p"`
}

// Prediction is a logged model output for a stored sequence.
type Prediction struct {
	ID         string    `json:"id"`
	SequenceID string    `json:"sequence_id"`
	ModelID    string    `json:"model_id"`
	TopK       []TopK    `json:"topk"`
	CreatedAt  time.Time `json:"created_at"`
}

// Validate checks a prediction before it is stored.
func (p *Prediction) Validate() error {
	if strings.TrimSpace(p.SequenceID) == "" {
		return fmt.Errorf("%w: sequence_id is required", ErrInvalid)
	}
	if strings.TrimSpace(p.ModelID) == "" {
		return fmt.Errorf("%w: model_id is required", ErrInvalid)
	}
	if len(p.TopK) == 0 {
		return fmt.Errorf("%w: topk must not be empty", ErrInvalid)
	}
	for i, k := range p.TopK {
		if k.Label == "" {
			return fmt.Errorf("%w: topk[%d] has no label", ErrInvalid, i)
		}
		if k.P < 0 || k.P > 1 {
			return fmt.Errorf("%w: topk[%d] probability %f outside [0,1]", ErrInvalid, i, k.P)
		}
	}
	return nil
}

// LabelCount is the number of predictions whose top-1 label is Label.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// PredictionRepository provides access to the prediction log.
type PredictionRepository struct {
	db  *sql.DB
	now func() time.Time
}

// Predictions returns the prediction repository for this store.
func (s *Store) Predictions() *PredictionRepository {
	return &PredictionRepository{db: s.db, now: time.Now}
}

// Create validates and inserts a prediction, assigning its ID.
func (r *PredictionRepository) Create(p *Prediction) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.now()
	}

	topk, err := json.Marshal(p.TopK)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(
		`INSERT INTO predictions (id, sequence_id, model_id, top1_label, top1_p, topk, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.SequenceID, p.ModelID, p.TopK[0].Label, p.TopK[0].P, string(topk), p.CreatedAt.UTC(),
	)
	return err
}

// ListBySequence retrieves the predictions logged for a sequence, newest first.
func (r *PredictionRepository) ListBySequence(sequenceID string) ([]*Prediction, error) {
	rows, err := r.db.Query(
		`SELECT id, sequence_id, model_id, topk, created_at
		 FROM predictions WHERE sequence_id = ? ORDER BY created_at DESC`,
		sequenceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Prediction
	for rows.Next() {
		p := &Prediction{}
		var topk string
		if err := rows.Scan(&p.ID, &p.SequenceID, &p.ModelID, &topk, &p.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(topk), &p.TopK); err != nil {
			return nil, fmt.Errorf("decode topk of %s: %w", p.ID, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Top1CountsSince counts predictions by their top-1 label since the given
// time, most frequent first.
func (r *PredictionRepository) Top1CountsSince(since time.Time) ([]LabelCount, error) {
	rows, err := r.db.Query(
		`SELECT top1_label, COUNT(*) AS n
		 FROM predictions WHERE created_at >= ?
		 GROUP BY top1_label ORDER BY n DESC, top1_label`,
		since.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := []LabelCount{}
	for rows.Next() {
		var c LabelCount
		if err := rows.Scan(&c.Label, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}
