package neat

import (
	"log/slog"
	"maps"
	"math"
	"slices"
)

// Species represents a group of genetically similar organisms.
type Species struct {
	ID                 int               // Unique identifier for the species.
	Created            int               // Generation number when the species was created.
	Age                int               // Generations since Created.
	LastImprovementAge int               // Age at which BestFitness last increased.
	BestFitness        float64           // Best raw member fitness seen so far.
	Fitness            float64           // Species fitness from the stagnation fitness function.
	AdjustedFitness    float64           // Normalized share used to size the next generation.
	FitnessHistory     []float64         // Fitness values of past generations.
	Representative     *Organism         // Member the others are compared against.
	Members            map[int]*Organism // Organism key -> organism.
}

// NewSpecies creates a new species.
func NewSpecies(id, generation int) *Species {
	return &Species{
		ID:          id,
		Created:     generation,
		BestFitness: math.Inf(-1),
		Members:     make(map[int]*Organism),
	}
}

// Update replaces the species' representative and members.
func (s *Species) Update(representative *Organism, members map[int]*Organism) {
	s.Representative = representative
	s.Members = members
}

// SortedMembers returns the members in key order.
func (s *Species) SortedMembers() []*Organism {
	members := slices.Collect(maps.Values(s.Members))
	sortOrganisms(members)
	return members
}

// GetFitnesses returns the raw fitness of all members in key order.
func (s *Species) GetFitnesses() []float64 {
	members := s.SortedMembers()
	fitnesses := make([]float64, len(members))
	for i, o := range members {
		fitnesses[i] = o.Fitness
	}
	return fitnesses
}

// AdjustFitness sets every member's AdjustedFitness from its raw fitness.
// Young species get YoungSpeciesFitnessMultiplier, species that have not
// improved for more than DropoffAge generations get
// StagnantSpeciesFitnessMultiplier, all others keep their raw fitness.
// LastImprovementAge moves to the current age whenever the best member beats
// BestFitness.
func (s *Species) AdjustFitness(cfg *SpeciesSetConfig) {
	if len(s.Members) == 0 {
		return
	}
	best := MaxFloat(s.GetFitnesses())
	if best > s.BestFitness {
		s.BestFitness = best
		s.LastImprovementAge = s.Age
	}

	multiplier := 1.0
	switch {
	case s.Age < cfg.YoungAgeLimit:
		multiplier = cfg.YoungSpeciesFitnessMultiplier
	case s.Age-s.LastImprovementAge > cfg.DropoffAge:
		multiplier = cfg.StagnantSpeciesFitnessMultiplier
	}
	for _, o := range s.Members {
		o.AdjustedFitness = o.Fitness * multiplier
	}
}

// AdaptThreshold moves the compatibility threshold by moveAmount towards the
// target species count: up when there are too many species, down when there
// are too few. It does not clamp; SpeciesSet clamps the result.
func AdaptThreshold(threshold float64, speciesCount, target int, moveAmount float64) float64 {
	switch {
	case speciesCount > target:
		return threshold + moveAmount
	case speciesCount < target:
		return threshold - moveAmount
	}
	return threshold
}

// --------------------------- SpeciesSet ---------------------------

// SpeciesSet manages the collection of species within a population.
type SpeciesSet struct {
	Species           map[int]*Species  // Map species ID -> Species
	OrganismToSpecies map[int]int       // Map organism key -> species ID
	Indexer           int               // Next species ID (starts at 1)
	Threshold         float64           // Current compatibility threshold
	Config            *SpeciesSetConfig // Reference to speciation config
	Logger            *slog.Logger
}

// NewSpeciesSet creates a new species set manager.
func NewSpeciesSet(config *SpeciesSetConfig, logger *slog.Logger) *SpeciesSet {
	if logger == nil {
		logger = slog.Default()
	}
	return &SpeciesSet{
		Species:           make(map[int]*Species),
		OrganismToSpecies: make(map[int]int),
		Indexer:           1,
		Threshold:         config.CompatibilityThreshold,
		Config:            config,
		Logger:            logger,
	}
}

// Speciate partitions the organisms into species by compatibility distance.
//
// Each existing species first picks as its new representative the unassigned
// organism closest to its old one. The remaining organisms, in key order, join
// the closest species whose representative is within the threshold, or found a
// new species. Species left without members die out. Afterwards the threshold
// adapts towards TargetSpecies when that is set.
func (ss *SpeciesSet) Speciate(organisms []*Organism, generation int) error {
	if len(organisms) == 0 {
		ss.Species = make(map[int]*Species)
		ss.OrganismToSpecies = make(map[int]int)
		return nil
	}

	cache := NewDistanceCache()

	unspeciated := make(map[int]*Organism, len(organisms))
	for _, o := range organisms {
		unspeciated[o.Key] = o
	}
	newRepresentatives := make(map[int]*Organism)
	newMembers := make(map[int][]*Organism)

	for _, sid := range slices.Sorted(maps.Keys(ss.Species)) {
		s := ss.Species[sid]
		if len(unspeciated) == 0 {
			break
		}
		if s.Representative == nil {
			ss.Logger.Warn("species has no representative", "species", sid)
			continue
		}

		var closest *Organism
		minDist := math.Inf(1)
		for _, key := range slices.Sorted(maps.Keys(unspeciated)) {
			o := unspeciated[key]
			if d := cache.Distance(s.Representative.Genome, o.Genome); d < minDist {
				minDist = d
				closest = o
			}
		}
		newRepresentatives[sid] = closest
		newMembers[sid] = []*Organism{closest}
		delete(unspeciated, closest.Key)
	}

	for _, key := range slices.Sorted(maps.Keys(unspeciated)) {
		o := unspeciated[key]

		bestSpecies := -1
		minDist := math.Inf(1)
		for _, sid := range slices.Sorted(maps.Keys(newRepresentatives)) {
			d := cache.Distance(newRepresentatives[sid].Genome, o.Genome)
			if d < ss.Threshold && d < minDist {
				minDist = d
				bestSpecies = sid
			}
		}

		if bestSpecies != -1 {
			newMembers[bestSpecies] = append(newMembers[bestSpecies], o)
			continue
		}
		sid := ss.Indexer
		ss.Indexer++
		newRepresentatives[sid] = o
		newMembers[sid] = []*Organism{o}
	}

	species := make(map[int]*Species, len(newRepresentatives))
	organismToSpecies := make(map[int]int, len(organisms))
	for sid, representative := range newRepresentatives {
		s := ss.Species[sid]
		if s == nil {
			s = NewSpecies(sid, generation)
			ss.Logger.Debug("created species", "species", sid, "representative", representative.Key)
		}
		s.Age = generation - s.Created

		members := make(map[int]*Organism, len(newMembers[sid]))
		for _, o := range newMembers[sid] {
			members[o.Key] = o
			o.SpeciesID = sid
			organismToSpecies[o.Key] = sid
		}
		s.Update(representative, members)
		species[sid] = s
	}
	for sid := range ss.Species {
		if _, alive := species[sid]; !alive {
			ss.Logger.Debug("species died out", "species", sid)
		}
	}
	ss.Species = species
	ss.OrganismToSpecies = organismToSpecies

	if ss.Config.TargetSpecies > 0 {
		adapted := AdaptThreshold(ss.Threshold, len(ss.Species), ss.Config.TargetSpecies, ss.Config.ThresholdMoveAmount)
		ss.Threshold = clamp(adapted, ss.Config.MinCompatibilityThreshold, ss.Config.MaxCompatibilityThreshold)
	}

	if distances := cache.Values(); len(distances) > 0 {
		ss.Logger.Debug("genetic distance",
			"mean", Mean(distances),
			"stdev", Stdev(distances),
			"cache_hits", cache.Hits,
			"cache_misses", cache.Misses,
		)
	}
	return nil
}

// GetSpeciesID returns the species ID for a given organism key.
func (ss *SpeciesSet) GetSpeciesID(key int) (int, bool) {
	sid, exists := ss.OrganismToSpecies[key]
	return sid, exists
}

// GetSpecies returns the species of a given organism key.
func (ss *SpeciesSet) GetSpecies(key int) (*Species, bool) {
	sid, exists := ss.OrganismToSpecies[key]
	if !exists {
		return nil, false
	}
	s, exists := ss.Species[sid]
	return s, exists
}

// SortedSpecies returns the species in ID order.
func (ss *SpeciesSet) SortedSpecies() []*Species {
	ids := slices.Sorted(maps.Keys(ss.Species))
	species := make([]*Species, len(ids))
	for i, id := range ids {
		species[i] = ss.Species[id]
	}
	return species
}
