package neat

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
)

// Stagnation decides which species stopped improving and are removed.
type Stagnation struct {
	Config             *StagnationConfig
	SpeciesFitnessFunc func([]float64) float64
	Logger             *slog.Logger
}

// NewStagnation resolves the configured species fitness function.
func NewStagnation(config *StagnationConfig, logger *slog.Logger) (*Stagnation, error) {
	fn, ok := StatFunctions[config.SpeciesFitnessFunc]
	if !ok {
		return nil, fmt.Errorf("invalid species_fitness_func in config: %s", config.SpeciesFitnessFunc)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Stagnation{
		Config:             config,
		SpeciesFitnessFunc: fn,
		Logger:             logger,
	}, nil
}

// StagnationInfo is the verdict for one species.
type StagnationInfo struct {
	SpeciesID  int
	Species    *Species
	IsStagnant bool
}

// Update computes each species' fitness and decides which species are
// stagnant. A species is stagnant when it has gone MaxStagnation generations
// without improving its best fitness, unless it is among the SpeciesElitism
// fittest species or removing it would leave fewer than SpeciesElitism
// species. Results are ordered from least to most fit.
func (s *Stagnation) Update(speciesSet *SpeciesSet) []StagnationInfo {
	species := speciesSet.SortedSpecies()
	for _, sp := range species {
		if len(sp.Members) == 0 {
			sp.Fitness = MinFloat(nil)
		} else {
			sp.Fitness = s.SpeciesFitnessFunc(sp.GetFitnesses())
		}
		sp.FitnessHistory = append(sp.FitnessHistory, sp.Fitness)
		sp.AdjustedFitness = 0
	}

	slices.SortStableFunc(species, func(a, b *Species) int { return cmp.Compare(a.Fitness, b.Fitness) })

	result := make([]StagnationInfo, len(species))
	numNonStagnant := len(species)
	for i, sp := range species {
		stagnantTime := sp.Age - sp.LastImprovementAge
		overdue := stagnantTime >= s.Config.MaxStagnation

		isStagnant := false
		if numNonStagnant > s.Config.SpeciesElitism {
			isStagnant = overdue
		}
		// Sorted ascending, so the last SpeciesElitism entries are the elite.
		if len(species)-i <= s.Config.SpeciesElitism {
			isStagnant = false
		}
		if isStagnant {
			numNonStagnant--
		} else if overdue {
			s.Logger.Debug("species spared from stagnation by elitism",
				"species", sp.ID, "fitness", sp.Fitness, "stagnant_for", stagnantTime)
		}

		result[i] = StagnationInfo{SpeciesID: sp.ID, Species: sp, IsStagnant: isStagnant}
	}
	return result
}
