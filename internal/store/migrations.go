package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Recorded 60-frame windows, optionally labelled for replay.
		`CREATE TABLE IF NOT EXISTS sequences (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			t_start_ms INTEGER NOT NULL CHECK(t_start_ms >= 0),
			t_end_ms INTEGER NOT NULL CHECK(t_end_ms >= 0),
			label TEXT,
			keypoints TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Prediction log: top-k output of a model for one sequence.
		`CREATE TABLE IF NOT EXISTS predictions (
			id TEXT PRIMARY KEY,
			sequence_id TEXT NOT NULL,
			model_id TEXT NOT NULL,
			top1_label TEXT NOT NULL,
			top1_p REAL NOT NULL,
			topk TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,

		// Bindings from a recognized label to a plugin action.
		`CREATE TABLE IF NOT EXISTS bindings (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL UNIQUE,
			plugin_name TEXT NOT NULL,
			action_name TEXT NOT NULL,
			config TEXT NOT NULL DEFAULT '{}',
			enabled INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_sequences_session ON sequences(session_id, t_start_ms)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_sequence ON predictions(sequence_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_created ON predictions(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
