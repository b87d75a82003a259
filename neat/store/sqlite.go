package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

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

func (s *SQLiteStore) SaveInnovationLog(ctx context.Context, rec LogRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeLog(rec)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO innovation_logs (lineage_id, generation, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(lineage_id) DO UPDATE SET
			generation = excluded.generation,
			payload = excluded.payload
	`, rec.Snapshot.LineageID, rec.Generation, payload)
	return err
}

func (s *SQLiteStore) GetInnovationLog(ctx context.Context, lineageID string) (LogRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return LogRecord{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM innovation_logs WHERE lineage_id = ?`, lineageID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return LogRecord{}, false, nil
		}
		return LogRecord{}, false, err
	}

	rec, err := DecodeLog(payload)
	if err != nil {
		return LogRecord{}, false, fmt.Errorf("decode innovation log %s: %w", lineageID, err)
	}
	return rec, true, nil
}

func (s *SQLiteStore) SaveGenome(ctx context.Context, rec GenomeRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeGenome(rec)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO genomes (lineage_id, genome_key, generation, fitness, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(lineage_id, genome_key) DO UPDATE SET
			generation = excluded.generation,
			fitness = excluded.fitness,
			payload = excluded.payload
	`, rec.LineageID, rec.Key, rec.Generation, rec.Fitness, payload)
	return err
}

func (s *SQLiteStore) GetGenome(ctx context.Context, lineageID string, key int) (GenomeRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return GenomeRecord{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM genomes WHERE lineage_id = ? AND genome_key = ?`, lineageID, key).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return GenomeRecord{}, false, nil
		}
		return GenomeRecord{}, false, err
	}

	rec, err := DecodeGenome(payload)
	if err != nil {
		return GenomeRecord{}, false, fmt.Errorf("decode genome %s/%d: %w", lineageID, key, err)
	}
	return rec, true, nil
}

func (s *SQLiteStore) ListGenomes(ctx context.Context, lineageID string) ([]GenomeRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT genome_key, payload FROM genomes WHERE lineage_id = ? ORDER BY genome_key`, lineageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []GenomeRecord
	for rows.Next() {
		var (
			key     int
			payload []byte
		)
		if err := rows.Scan(&key, &payload); err != nil {
			return nil, err
		}
		rec, err := DecodeGenome(payload)
		if err != nil {
			return nil, fmt.Errorf("decode genome %s/%d: %w", lineageID, key, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
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
		CREATE TABLE IF NOT EXISTS innovation_logs (
			lineage_id TEXT PRIMARY KEY,
			generation INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS genomes (
			lineage_id TEXT NOT NULL,
			genome_key INTEGER NOT NULL,
			generation INTEGER NOT NULL,
			fitness REAL NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (lineage_id, genome_key)
		);
	`)
	return err
}
