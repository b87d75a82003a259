package neat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// ErrExtinct is returned when every species died out and ResetOnExtinction is off.
var ErrExtinct = errors.New("population extinct")

// Population holds the state of the NEAT evolutionary process.
type Population struct {
	Config       *Config
	State        *State      // Innovation log shared by every genome
	Organisms    []*Organism // Current generation, in key order
	SpeciesSet   *SpeciesSet
	Reproduction *Reproduction
	Stagnation   *Stagnation
	Generation   int
	Best         *Organism // Best organism found so far
	Statistics   *Statistics
	Logger       *slog.Logger

	rng  *rand.Rand
	seed int64 // rng was seeded with this; checkpoints store it
}

// PopulationOption configures NewPopulation.
type PopulationOption func(*populationOptions)

type populationOptions struct {
	logger    *slog.Logger
	state     *State
	stateOpts []StateOption
	rng       *rand.Rand
}

// WithLogger sets the logger used by the population and its collaborators.
func WithLogger(logger *slog.Logger) PopulationOption {
	return func(o *populationOptions) { o.logger = logger }
}

// WithState evolves against an existing innovation log instead of a new one.
func WithState(state *State) PopulationOption {
	return func(o *populationOptions) { o.state = state }
}

// WithStateOptions configures the innovation log the population creates.
func WithStateOptions(opts ...StateOption) PopulationOption {
	return func(o *populationOptions) { o.stateOpts = append(o.stateOpts, opts...) }
}

// WithRand replaces the generator seeded from NeatConfig.Seed.
func WithRand(rng *rand.Rand) PopulationOption {
	return func(o *populationOptions) { o.rng = rng }
}

// NewPopulation creates a Population and its first generation.
func NewPopulation(config *Config, opts ...PopulationOption) (*Population, error) {
	p, err := newPopulation(config, opts...)
	if err != nil {
		return nil, err
	}
	p.Organisms, err = p.Reproduction.CreateNewPopulation(config.Neat.PopSize, p.rng)
	if err != nil {
		return nil, fmt.Errorf("failed to create initial population: %w", err)
	}
	p.reseed()
	return p, nil
}

// newPopulation wires the collaborators without creating any organisms.
func newPopulation(config *Config, opts ...PopulationOption) (*Population, error) {
	o := populationOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewSource(config.Neat.Seed))
	}
	if o.state == nil {
		state, err := NewState(nil, o.stateOpts...)
		if err != nil {
			return nil, err
		}
		o.state = state
	}

	stagnation, err := NewStagnation(&config.Stagnation, o.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create stagnation manager: %w", err)
	}
	return &Population{
		Config:       config,
		State:        o.state,
		SpeciesSet:   NewSpeciesSet(&config.SpeciesSet, o.logger),
		Reproduction: NewReproduction(config, o.state, stagnation, o.logger),
		Stagnation:   stagnation,
		Statistics:   &Statistics{},
		Logger:       o.logger.With("lineage", o.state.LineageID()),
		rng:          o.rng,
	}, nil
}

// RunGeneration evaluates, speciates and reproduces the current generation.
// It returns the best organism so far once the fitness criterion reaches
// FitnessThreshold, otherwise nil.
func (p *Population) RunGeneration(ctx context.Context, fitnessFunc FitnessFunc) (*Organism, error) {
	start := time.Now()
	log := p.Logger.With("generation", p.Generation)

	if len(p.Organisms) == 0 {
		if err := p.handleExtinction(); err != nil {
			return p.Best, err
		}
	}

	sortOrganisms(p.Organisms)
	if err := fitnessFunc(ctx, p.Organisms); err != nil {
		return nil, fmt.Errorf("fitness evaluation failed in generation %d: %w", p.Generation, err)
	}

	currentBest := p.findBest()
	if p.Best == nil || currentBest.Fitness > p.Best.Fitness {
		p.Best = currentBest
		log.Info("new best organism", "key", p.Best.Key, "fitness", p.Best.Fitness)
	}

	if !p.Config.Neat.NoFitnessTermination {
		if p.criterion() >= p.Config.Neat.FitnessThreshold {
			p.Statistics.record(p, time.Since(start))
			return p.Best, nil
		}
	}

	if err := p.SpeciesSet.Speciate(p.Organisms, p.Generation); err != nil {
		return p.Best, fmt.Errorf("speciation failed in generation %d: %w", p.Generation, err)
	}
	p.Statistics.record(p, time.Since(start))

	next, err := p.Reproduction.Reproduce(ctx, p.SpeciesSet, p.Config.Neat.PopSize, p.Generation, p.rng)
	if err != nil {
		return p.Best, fmt.Errorf("reproduction failed in generation %d: %w", p.Generation, err)
	}
	log.Info("generation finished",
		"best_fitness", currentBest.Fitness,
		"species", len(p.SpeciesSet.Species),
		"threshold", p.SpeciesSet.Threshold,
		"innovations", p.State.Len(),
		"elapsed", time.Since(start),
	)

	p.Organisms = next
	p.Generation++
	if len(p.Organisms) == 0 {
		if err := p.handleExtinction(); err != nil {
			return p.Best, err
		}
	}
	p.reseed()
	return nil, nil
}

// reseed replaces rng with a generator seeded from its own next draw. Between
// generations the whole random state is then one int64, so a checkpoint can
// store it without consuming from the running generator.
func (p *Population) reseed() {
	p.seed = p.rng.Int63()
	p.rng = rand.New(rand.NewSource(p.seed))
}

// Run calls RunGeneration up to n times and stops early on a winner.
func (p *Population) Run(ctx context.Context, fitnessFunc FitnessFunc, n int) (*Organism, error) {
	for i := 0; i < n; i++ {
		winner, err := p.RunGeneration(ctx, fitnessFunc)
		if err != nil || winner != nil {
			return winner, err
		}
	}
	return nil, nil
}

func (p *Population) handleExtinction() error {
	if !p.Config.Neat.ResetOnExtinction {
		return fmt.Errorf("generation %d: %w", p.Generation, ErrExtinct)
	}
	p.Logger.Warn("resetting population due to extinction", "generation", p.Generation)
	organisms, err := p.Reproduction.CreateNewPopulation(p.Config.Neat.PopSize, p.rng)
	if err != nil {
		return err
	}
	p.Organisms = organisms
	p.SpeciesSet = NewSpeciesSet(&p.Config.SpeciesSet, p.SpeciesSet.Logger)
	return nil
}

// criterion aggregates the generation's fitness with FitnessCriterion.
func (p *Population) criterion() float64 {
	fitnesses := make([]float64, len(p.Organisms))
	for i, o := range p.Organisms {
		fitnesses[i] = o.Fitness
	}
	switch p.Config.Neat.FitnessCriterion {
	case "min":
		return MinFloat(fitnesses)
	case "mean":
		return Mean(fitnesses)
	}
	return MaxFloat(fitnesses)
}

// findBest returns the fittest organism of the current generation.
func (p *Population) findBest() *Organism {
	var best *Organism
	for _, o := range p.Organisms {
		if best == nil || byFitnessDesc(o, best) < 0 {
			best = o
		}
	}
	return best
}
