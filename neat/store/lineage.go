package store

import (
	"context"
	"fmt"

	"github.com/baldhumanity/neatgraph/neat"
)

// SavePopulation writes the population's innovation log and every organism
// of its current generation under the log's lineage id.
func SavePopulation(ctx context.Context, store Store, p *neat.Population) error {
	snap := p.State.Snapshot()
	if err := store.SaveInnovationLog(ctx, LogRecord{Generation: p.Generation, Snapshot: snap}); err != nil {
		return fmt.Errorf("save innovation log %s: %w", snap.LineageID, err)
	}
	for _, o := range p.Organisms {
		rec := GenomeRecord{
			LineageID:  snap.LineageID,
			Key:        o.Key,
			Generation: o.Generation,
			Fitness:    o.Fitness,
			SpeciesID:  o.SpeciesID,
			Genome:     o.Genome.ToFactoryOptions(),
		}
		if err := store.SaveGenome(ctx, rec); err != nil {
			return fmt.Errorf("save genome %d: %w", o.Key, err)
		}
	}
	return nil
}

// LoadLineage restores a lineage's innovation log and rebuilds every stored
// genome against it.
func LoadLineage(ctx context.Context, store Store, lineageID string, config *neat.GenomeConfig) (*neat.State, []*neat.Organism, error) {
	logRec, ok, err := store.GetInnovationLog(ctx, lineageID)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, fmt.Errorf("lineage %s not found", lineageID)
	}
	state, err := neat.NewState(&logRec.Snapshot)
	if err != nil {
		return nil, nil, fmt.Errorf("restore innovation log %s: %w", lineageID, err)
	}

	records, err := store.ListGenomes(ctx, lineageID)
	if err != nil {
		return nil, nil, err
	}
	organisms := make([]*neat.Organism, 0, len(records))
	for _, rec := range records {
		g, err := neat.CreateGenome(config, state, neat.GenomeOptions{Key: rec.Key}, neat.Unconnected, &rec.Genome)
		if err != nil {
			return nil, nil, fmt.Errorf("rebuild genome %d: %w", rec.Key, err)
		}
		o := neat.NewOrganism(g, rec.Generation)
		o.Fitness = rec.Fitness
		o.SpeciesID = rec.SpeciesID
		organisms = append(organisms, o)
	}
	return state, organisms, nil
}
