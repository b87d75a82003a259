package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore keeps records in an embedded BadgerDB. Genome keys are zero
// padded so a prefix scan returns a lineage's genomes in key order.
type BadgerStore struct {
	path     string
	inMemory bool
	logger   *slog.Logger

	mu sync.RWMutex
	db *badger.DB
}

// NewBadgerStore opens a persistent database in dir. An empty dir keeps the
// database in memory.
func NewBadgerStore(dir string, logger *slog.Logger) *BadgerStore {
	return &BadgerStore{path: dir, inMemory: dir == "", logger: logger}
}

// badgerLogger adapts slog to badger's logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (s *BadgerStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	var opts badger.Options
	if s.inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(s.path, 0750); err != nil {
			return fmt.Errorf("create badger directory %s: %w", s.path, err)
		}
		opts = badger.DefaultOptions(s.path)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if s.logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: s.logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("open badger database: %w", err)
	}
	s.db = db
	return nil
}

func logKey(lineageID string) []byte {
	return []byte("log/" + lineageID)
}

func genomePrefix(lineageID string) []byte {
	return []byte("genome/" + lineageID + "/")
}

func genomeKey(lineageID string, key int) []byte {
	return fmt.Appendf(genomePrefix(lineageID), "%020d", key)
}

func (s *BadgerStore) SaveInnovationLog(_ context.Context, rec LogRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	payload, err := EncodeLog(rec)
	if err != nil {
		return err
	}
	return db.Update(func(txn *badger.Txn) error {
		return txn.Set(logKey(rec.Snapshot.LineageID), payload)
	})
}

func (s *BadgerStore) GetInnovationLog(_ context.Context, lineageID string) (LogRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return LogRecord{}, false, err
	}
	payload, ok, err := badgerGet(db, logKey(lineageID))
	if err != nil || !ok {
		return LogRecord{}, false, err
	}
	rec, err := DecodeLog(payload)
	if err != nil {
		return LogRecord{}, false, err
	}
	return rec, true, nil
}

func (s *BadgerStore) SaveGenome(_ context.Context, rec GenomeRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	if rec.Key < 0 {
		return fmt.Errorf("genome key %d is negative", rec.Key)
	}
	payload, err := EncodeGenome(rec)
	if err != nil {
		return err
	}
	return db.Update(func(txn *badger.Txn) error {
		return txn.Set(genomeKey(rec.LineageID, rec.Key), payload)
	})
}

func (s *BadgerStore) GetGenome(_ context.Context, lineageID string, key int) (GenomeRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return GenomeRecord{}, false, err
	}
	payload, ok, err := badgerGet(db, genomeKey(lineageID, key))
	if err != nil || !ok {
		return GenomeRecord{}, false, err
	}
	rec, err := DecodeGenome(payload)
	if err != nil {
		return GenomeRecord{}, false, err
	}
	return rec, true, nil
}

func (s *BadgerStore) ListGenomes(ctx context.Context, lineageID string) ([]GenomeRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	var records []GenomeRecord
	prefix := genomePrefix(lineageID)
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			payload, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			rec, err := DecodeGenome(payload)
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *BadgerStore) getDB() (*badger.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, errNotInitialized
	}
	return s.db, nil
}

func badgerGet(db *badger.DB, key []byte) ([]byte, bool, error) {
	var payload []byte
	err := db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}
