//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"archsearch/internal/model"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveExperiment(ctx context.Context, record model.ExperimentRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeExperiment(record)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO experiments (label, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(label) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, record.Label, record.SchemaVersion, record.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetExperiment(ctx context.Context, label string) (model.ExperimentRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.ExperimentRecord{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM experiments WHERE label = ?`, label).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ExperimentRecord{}, false, nil
		}
		return model.ExperimentRecord{}, false, err
	}

	record, err := DecodeExperiment(payload)
	if err != nil {
		return model.ExperimentRecord{}, false, fmt.Errorf("decode experiment %s: %w", label, err)
	}
	return record, true, nil
}

func (s *SQLiteStore) ListExperiments(ctx context.Context) ([]model.ExperimentRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT label, payload FROM experiments ORDER BY label`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ExperimentRecord
	for rows.Next() {
		var (
			label   string
			payload []byte
		)
		if err := rows.Scan(&label, &payload); err != nil {
			return nil, err
		}
		record, err := DecodeExperiment(payload)
		if err != nil {
			return nil, fmt.Errorf("decode experiment %s: %w", label, err)
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveGeneration(ctx context.Context, label string, step int, scored []model.ScoredBlueprint) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeGeneration(scored)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO generations (label, step, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(label, step) DO UPDATE SET
			payload = excluded.payload
	`, label, step, payload)
	return err
}

func (s *SQLiteStore) GetGeneration(ctx context.Context, label string, step int) ([]model.ScoredBlueprint, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM generations WHERE label = ? AND step = ?`, label, step).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	scored, err := DecodeGeneration(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode generation %s/%d: %w", label, step, err)
	}
	return scored, true, nil
}

func (s *SQLiteStore) LatestStep(ctx context.Context, label string) (int, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, false, err
	}

	var step sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(step) FROM generations WHERE label = ?`, label).Scan(&step); err != nil {
		return 0, false, err
	}
	if !step.Valid {
		return 0, false, nil
	}
	return int(step.Int64), true, nil
}

func (s *SQLiteStore) SaveSummaries(ctx context.Context, label string, summaries []model.GenerationSummary) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeSummaries(summaries)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO summaries (label, payload)
		VALUES (?, ?)
		ON CONFLICT(label) DO UPDATE SET
			payload = excluded.payload
	`, label, payload)
	return err
}

func (s *SQLiteStore) GetSummaries(ctx context.Context, label string) ([]model.GenerationSummary, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM summaries WHERE label = ?`, label).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	summaries, err := DecodeSummaries(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode summaries %s: %w", label, err)
	}
	return summaries, true, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errNotInitialized
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS experiments (
			label TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS generations (
			label TEXT NOT NULL,
			step INTEGER NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (label, step)
		);
		CREATE TABLE IF NOT EXISTS summaries (
			label TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		);
	`)
	return err
}
