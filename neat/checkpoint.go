package neat

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"math/rand"
	"os"
)

// checkpointData is what a checkpoint stores. Genomes travel as factory
// options and the innovation log as its snapshot; the Config is not saved
// and has to be supplied again on load.
type checkpointData struct {
	Generation     int
	NextGenomeKey  int
	Ancestors      map[int][]int
	Innovation     InnovationSnapshot
	Organisms      []organismRecord
	Best           *organismRecord
	Species        []speciesRecord
	SpeciesIndexer int
	Threshold      float64
	Seed           int64
	Statistics     []GenerationStats
}

type organismRecord struct {
	Key             int
	Fitness         float64
	AdjustedFitness float64
	Generation      int
	SpeciesID       int
	Genome          FactoryOptions
}

type speciesRecord struct {
	ID                 int
	Created            int
	Age                int
	LastImprovementAge int
	BestFitness        float64
	Fitness            float64
	FitnessHistory     []float64
	Representative     organismRecord
	MemberKeys         []int
}

func newOrganismRecord(o *Organism) organismRecord {
	return organismRecord{
		Key:             o.Key,
		Fitness:         o.Fitness,
		AdjustedFitness: o.AdjustedFitness,
		Generation:      o.Generation,
		SpeciesID:       o.SpeciesID,
		Genome:          o.Genome.ToFactoryOptions(),
	}
}

func (rec organismRecord) organism(config *GenomeConfig, state *State, family Family) (*Organism, error) {
	g, err := CreateGenome(config, state, GenomeOptions{Key: rec.Key, Family: family}, Unconnected, &rec.Genome)
	if err != nil {
		return nil, err
	}
	return &Organism{
		Key:             rec.Key,
		Genome:          g,
		Fitness:         rec.Fitness,
		AdjustedFitness: rec.AdjustedFitness,
		Generation:      rec.Generation,
		SpeciesID:       rec.SpeciesID,
	}, nil
}

// SaveCheckpoint saves the current state of the Population to a file.
// Uses gzip compression for smaller file size.
func (p *Population) SaveCheckpoint(filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file '%s': %w", filePath, err)
	}
	defer file.Close()

	gzWriter := gzip.NewWriter(file)

	data := checkpointData{
		Generation:     p.Generation,
		NextGenomeKey:  p.Reproduction.NextGenomeKey,
		Ancestors:      p.Reproduction.Ancestors,
		Innovation:     p.State.Snapshot(),
		Organisms:      make([]organismRecord, len(p.Organisms)),
		SpeciesIndexer: p.SpeciesSet.Indexer,
		Threshold:      p.SpeciesSet.Threshold,
		Seed:           p.seed,
		Statistics:     p.Statistics.Generations,
	}
	sortOrganisms(p.Organisms)
	for i, o := range p.Organisms {
		data.Organisms[i] = newOrganismRecord(o)
	}
	if p.Best != nil {
		best := newOrganismRecord(p.Best)
		data.Best = &best
	}
	for _, sp := range p.SpeciesSet.SortedSpecies() {
		rec := speciesRecord{
			ID:                 sp.ID,
			Created:            sp.Created,
			Age:                sp.Age,
			LastImprovementAge: sp.LastImprovementAge,
			BestFitness:        sp.BestFitness,
			Fitness:            sp.Fitness,
			FitnessHistory:     sp.FitnessHistory,
		}
		if sp.Representative != nil {
			rec.Representative = newOrganismRecord(sp.Representative)
		}
		for _, o := range sp.SortedMembers() {
			rec.MemberKeys = append(rec.MemberKeys, o.Key)
		}
		data.Species = append(data.Species, rec)
	}

	if err := gob.NewEncoder(gzWriter).Encode(data); err != nil {
		return fmt.Errorf("failed to encode population data: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return fmt.Errorf("failed to flush checkpoint '%s': %w", filePath, err)
	}

	p.Logger.Info("checkpoint saved", "path", filePath, "generation", p.Generation)
	return nil
}

// LoadCheckpoint restores a Population saved by SaveCheckpoint. The config
// must match the one the checkpoint was written with. Every genome is
// rebuilt through CreateGenome against the restored innovation log.
func LoadCheckpoint(checkpointPath string, config *Config, opts ...PopulationOption) (*Population, error) {
	file, err := os.Open(checkpointPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file '%s': %w", checkpointPath, err)
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader for checkpoint: %w", err)
	}
	defer gzReader.Close()

	var data checkpointData
	if err := gob.NewDecoder(gzReader).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode population data from checkpoint: %w", err)
	}

	var o populationOptions
	for _, opt := range opts {
		opt(&o)
	}
	state, err := NewState(&data.Innovation, o.stateOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to restore innovation log: %w", err)
	}
	opts = append([]PopulationOption{WithRand(rand.New(rand.NewSource(data.Seed)))}, opts...)
	opts = append(opts, WithState(state))
	p, err := newPopulation(config, opts...)
	if err != nil {
		return nil, err
	}
	if o.rng == nil {
		p.seed = data.Seed
	}

	family := p.Reproduction.Family
	byKey := make(map[int]*Organism, len(data.Organisms))
	for _, rec := range data.Organisms {
		o, err := rec.organism(&config.Genome, state, family)
		if err != nil {
			return nil, fmt.Errorf("failed to restore organism %d: %w", rec.Key, err)
		}
		p.Organisms = append(p.Organisms, o)
		byKey[o.Key] = o
	}
	if data.Best != nil {
		if p.Best, err = data.Best.organism(&config.Genome, state, family); err != nil {
			return nil, fmt.Errorf("failed to restore best organism: %w", err)
		}
	}

	for _, rec := range data.Species {
		sp := NewSpecies(rec.ID, rec.Created)
		sp.Age = rec.Age
		sp.LastImprovementAge = rec.LastImprovementAge
		sp.BestFitness = rec.BestFitness
		sp.Fitness = rec.Fitness
		sp.FitnessHistory = rec.FitnessHistory
		if sp.Representative, err = rec.Representative.organism(&config.Genome, state, family); err != nil {
			return nil, fmt.Errorf("failed to restore representative of species %d: %w", rec.ID, err)
		}
		for _, key := range rec.MemberKeys {
			if o, ok := byKey[key]; ok {
				sp.Members[key] = o
				p.SpeciesSet.OrganismToSpecies[key] = rec.ID
			}
		}
		p.SpeciesSet.Species[rec.ID] = sp
	}
	p.SpeciesSet.Indexer = data.SpeciesIndexer
	p.SpeciesSet.Threshold = data.Threshold

	p.Generation = data.Generation
	p.Reproduction.NextGenomeKey = data.NextGenomeKey
	if data.Ancestors != nil {
		p.Reproduction.Ancestors = data.Ancestors
	}
	p.Statistics.Generations = data.Statistics

	p.Logger.Info("checkpoint loaded", "path", checkpointPath, "generation", p.Generation)
	return p, nil
}
