// Package store persists innovation logs and genomes so a lineage can be
// resumed or inspected outside the process that evolved it.
package store

import (
	"context"
	"fmt"

	"github.com/baldhumanity/neatgraph/neat"
)

// GenomeRecord is one stored genome of a lineage.
type GenomeRecord struct {
	SchemaVersion int                 `json:"schemaVersion"`
	LineageID     string              `json:"lineageId"`
	Key           int                 `json:"key"`
	Generation    int                 `json:"generation"`
	Fitness       float64             `json:"fitness"`
	SpeciesID     int                 `json:"speciesId"`
	Genome        neat.FactoryOptions `json:"genome"`
}

// LogRecord is the stored innovation log of a lineage.
type LogRecord struct {
	SchemaVersion int                     `json:"schemaVersion"`
	Generation    int                     `json:"generation"`
	Snapshot      neat.InnovationSnapshot `json:"snapshot"`
}

// Store defines persistence operations for lineages.
type Store interface {
	Init(ctx context.Context) error
	SaveInnovationLog(ctx context.Context, rec LogRecord) error
	GetInnovationLog(ctx context.Context, lineageID string) (LogRecord, bool, error)
	SaveGenome(ctx context.Context, rec GenomeRecord) error
	GetGenome(ctx context.Context, lineageID string, key int) (GenomeRecord, bool, error)
	ListGenomes(ctx context.Context, lineageID string) ([]GenomeRecord, error)
}

// NewStore opens the backend named by kind: "memory" (the default), "sqlite"
// or "badger". path is the sqlite database file or the badger directory.
func NewStore(kind, path string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(path), nil
	case "badger":
		return NewBadgerStore(path, nil), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}

// CloseIfSupported closes store when the backend holds resources.
func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
