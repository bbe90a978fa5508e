package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sequence is one recorded window of keypoints.
type Sequence struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	TStartMs  int64           `json:"t_start_ms"`
	TEndMs    int64           `json:"t_end_ms"`
	Label     string          `json:"label,omitempty"`
	Keypoints json.RawMessage `json:"keypoints"`
	CreatedAt time.Time       `json:"created_at"`
}

// Validate checks a sequence before it is stored.
func (s *Sequence) Validate() error {
	switch {
	case strings.TrimSpace(s.SessionID) == "":
		return fmt.Errorf("%w: session_id is required", ErrInvalid)
	case s.TStartMs < 0 || s.TEndMs < 0:
		return fmt.Errorf("%w: timestamps must not be negative", ErrInvalid)
	case len(s.Keypoints) == 0 || !json.Valid(s.Keypoints):
		return fmt.Errorf("%w: keypoints must be valid JSON", ErrInvalid)
	}
	first := strings.TrimSpace(string(s.Keypoints))[0]
	if first != '{' && first != '[' {
		return fmt.Errorf("%w: keypoints must be an object or an array", ErrInvalid)
	}
	return nil
}

// SequenceRepository provides access to recorded sequences.
type SequenceRepository struct {
	db *sql.DB
}

// Sequences returns the sequence repository for this store.
func (s *Store) Sequences() *SequenceRepository {
	return &SequenceRepository{db: s.db}
}

// Create validates and inserts a sequence, assigning its ID.
func (r *SequenceRepository) Create(seq *Sequence) error {
	if err := seq.Validate(); err != nil {
		return err
	}
	if seq.ID == "" {
		seq.ID = uuid.New().String()
	}
	seq.CreatedAt = time.Now()

	var label sql.NullString
	if seq.Label != "" {
		label = sql.NullString{String: seq.Label, Valid: true}
	}

	_, err := r.db.Exec(
		`INSERT INTO sequences (id, session_id, t_start_ms, t_end_ms, label, keypoints, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		seq.ID, seq.SessionID, seq.TStartMs, seq.TEndMs, label, string(seq.Keypoints), seq.CreatedAt,
	)
	return err
}

// GetByID retrieves a sequence by its ID.
func (r *SequenceRepository) GetByID(id string) (*Sequence, error) {
	row := r.db.QueryRow(
		`SELECT id, session_id, t_start_ms, t_end_ms, label, keypoints, created_at
		 FROM sequences WHERE id = ?`,
		id,
	)
	seq, err := scanSequence(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return seq, nil
}

// ListBySession retrieves a session's sequences in capture order.
func (r *SequenceRepository) ListBySession(sessionID string) ([]*Sequence, error) {
	return r.list(
		`SELECT id, session_id, t_start_ms, t_end_ms, label, keypoints, created_at
		 FROM sequences WHERE session_id = ? ORDER BY t_start_ms`,
		sessionID,
	)
}

// ListLabelled retrieves every sequence that carries a label.
func (r *SequenceRepository) ListLabelled() ([]*Sequence, error) {
	return r.list(
		`SELECT id, session_id, t_start_ms, t_end_ms, label, keypoints, created_at
		 FROM sequences WHERE label IS NOT NULL AND label != '' ORDER BY created_at`,
	)
}

func (r *SequenceRepository) list(query string, args ...any) ([]*Sequence, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Sequence
	for rows.Next() {
		seq, err := scanSequence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSequence(sc scanner) (*Sequence, error) {
	seq := &Sequence{}
	var label sql.NullString
	var keypoints string
	if err := sc.Scan(&seq.ID, &seq.SessionID, &seq.TStartMs, &seq.TEndMs, &label, &keypoints, &seq.CreatedAt); err != nil {
		return nil, err
	}
	seq.Label = label.String
	seq.Keypoints = json.RawMessage(keypoints)
	return seq, nil
}
