package neat

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"slices"

	"golang.org/x/sync/errgroup"
)

// Reproduction creates genomes, either from scratch or through crossover and
// mutation of the previous generation.
type Reproduction struct {
	Config       *ReproductionConfig
	GenomeConfig *GenomeConfig
	State        *State
	Family       Family
	Stagnation   *Stagnation
	Workers      int // Children mutated in parallel; values below 2 run serially

	NextGenomeKey int           // State for the next genome key
	Ancestors     map[int][]int // Map genome key -> parent keys (for tracking lineage)

	Logger *slog.Logger
}

// NewReproduction creates a new reproduction manager drawing identifiers from state.
func NewReproduction(config *Config, state *State, stagnation *Stagnation, logger *slog.Logger) *Reproduction {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reproduction{
		Config:        &config.Reproduction,
		GenomeConfig:  &config.Genome,
		State:         state,
		Family:        NEATFamily{},
		Stagnation:    stagnation,
		Workers:       config.Neat.Workers,
		NextGenomeKey: 1,
		Ancestors:     make(map[int][]int),
		Logger:        logger,
	}
}

// getNextKey mints a genome key.
func (r *Reproduction) getNextKey() int {
	key := r.NextGenomeKey
	r.NextGenomeKey++
	return key
}

// CreateNewPopulation creates popSize genomes laid out with the configured
// initial topology.
func (r *Reproduction) CreateNewPopulation(popSize int, rng RNG) ([]*Organism, error) {
	init, err := ParseInitTopology(r.GenomeConfig.InitialConnection)
	if err != nil {
		return nil, err
	}
	organisms := make([]*Organism, 0, popSize)
	for i := 0; i < popSize; i++ {
		key := r.getNextKey()
		g, err := CreateGenome(r.GenomeConfig, r.State, GenomeOptions{Key: key, Family: r.Family, Rand: rng}, init, nil)
		if err != nil {
			return nil, err
		}
		organisms = append(organisms, NewOrganism(g, 0))
		r.Ancestors[key] = []int{}
	}
	return organisms, nil
}

// offspring is one child to produce. Everything random about it except the
// mutation is decided up front, so the result does not depend on scheduling.
type offspring struct {
	key        int
	mother     *Organism
	father     *Organism // nil for an asexual child
	seed       int64
	generation int
}

// Reproduce creates the next generation from the speciated current one.
// Species fitness is adjusted, stagnant species are dropped, and each
// remaining species gets a share of popSize proportional to its adjusted
// fitness. Within a species the Elitism best organisms survive unchanged; the
// rest of its share are children of tournament-selected parents from the top
// SurvivalThreshold fraction, made by crossover with CrossoverProbability and
// then mutated.
func (r *Reproduction) Reproduce(ctx context.Context, speciesSet *SpeciesSet, popSize, generation int, rng *rand.Rand) ([]*Organism, error) {
	for _, sp := range speciesSet.SortedSpecies() {
		sp.AdjustFitness(speciesSet.Config)
	}

	var allFitnesses []float64
	var remaining []*Species
	for _, info := range r.Stagnation.Update(speciesSet) {
		if info.IsStagnant {
			r.Logger.Info("species removed due to stagnation", "species", info.SpeciesID)
			continue
		}
		sp := info.Species
		if len(sp.Members) == 0 {
			continue
		}
		for _, o := range sp.Members {
			allFitnesses = append(allFitnesses, o.AdjustedFitness)
		}
		remaining = append(remaining, sp)
	}
	if len(remaining) == 0 {
		r.Logger.Warn("all species became extinct", "generation", generation)
		return nil, nil
	}
	slices.SortFunc(remaining, func(a, b *Species) int { return a.ID - b.ID })

	minFitness := MinFloat(allFitnesses)
	fitnessRange := math.Max(1.0, MaxFloat(allFitnesses)-minFitness)

	adjustedFitnessSum := 0.0
	adjustedFitnesses := make([]float64, len(remaining))
	previousSizes := make([]int, len(remaining))
	for i, sp := range remaining {
		members := sp.SortedMembers()
		memberFitness := make([]float64, len(members))
		for j, o := range members {
			memberFitness[j] = o.AdjustedFitness
		}
		sp.AdjustedFitness = (Mean(memberFitness) - minFitness) / fitnessRange
		adjustedFitnesses[i] = sp.AdjustedFitness
		adjustedFitnessSum += sp.AdjustedFitness
		previousSizes[i] = len(members)
	}

	spawnMinSize := max(r.Config.MinSpeciesSize, r.Config.Elitism)
	spawnAmounts := computeSpawnAmounts(adjustedFitnesses, adjustedFitnessSum, previousSizes, popSize, spawnMinSize, rng)

	var next []*Organism
	var jobs []offspring
	newAncestors := make(map[int][]int)

	for i, sp := range remaining {
		spawn := max(spawnAmounts[i], r.Config.Elitism)

		oldMembers := sp.SortedMembers()
		slices.SortFunc(oldMembers, byFitnessDesc)

		elites := min(r.Config.Elitism, len(oldMembers), spawn)
		for _, elite := range oldMembers[:elites] {
			next = append(next, &Organism{Key: elite.Key, Genome: elite.Genome, Generation: elite.Generation})
			newAncestors[elite.Key] = []int{elite.Key}
		}
		spawn -= elites
		if spawn <= 0 {
			continue
		}

		survivalCutoff := int(math.Ceil(r.Config.SurvivalThreshold * float64(len(oldMembers))))
		survivalCutoff = min(max(survivalCutoff, 2), len(oldMembers))
		parents := oldMembers[:survivalCutoff]

		for j := 0; j < spawn; j++ {
			job := offspring{
				key:        r.getNextKey(),
				mother:     r.tournament(parents, rng),
				seed:       rng.Int63(),
				generation: generation + 1,
			}
			if coin(rng, r.Config.CrossoverProbability) {
				job.father = r.tournament(parents, rng)
			}
			jobs = append(jobs, job)
			if job.father != nil {
				newAncestors[job.key] = []int{job.mother.Key, job.father.Key}
			} else {
				newAncestors[job.key] = []int{job.mother.Key}
			}
		}
	}

	children := make([]*Organism, len(jobs))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(max(r.Workers, 1))
	for i, job := range jobs {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			child, err := r.breed(job)
			if err != nil {
				return err
			}
			children[i] = child
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("reproduce generation %d: %w", generation, err)
	}
	next = append(next, children...)
	r.Ancestors = newAncestors

	if len(next) != popSize {
		r.Logger.Debug("population size differs from target", "size", len(next), "target", popSize)
	}
	return next, nil
}

// tournament returns the fittest of TournamentSize uniform picks from parents.
func (r *Reproduction) tournament(parents []*Organism, rng RNG) *Organism {
	best := parents[rng.Intn(len(parents))]
	for i := 1; i < r.Config.TournamentSize; i++ {
		if c := parents[rng.Intn(len(parents))]; byFitnessDesc(c, best) < 0 {
			best = c
		}
	}
	return best
}

// breed builds and mutates one child. It only reads the parents, so jobs can
// run concurrently.
func (r *Reproduction) breed(job offspring) (*Organism, error) {
	rng := rand.New(rand.NewSource(job.seed))

	var child *Genome
	if job.father != nil {
		var err error
		child, err = Crossover(job.key, job.mother.Genome, job.father.Genome, job.mother.Fitness, job.father.Fitness, rng)
		if err != nil {
			return nil, err
		}
	} else {
		child = job.mother.Genome.Clone(job.key)
	}
	if err := child.Mutate(rng); err != nil {
		return nil, err
	}
	return NewOrganism(child, job.generation), nil
}

// computeSpawnAmounts moves each species halfway from its previous size towards
// its fitness-proportional share, then rescales the result to popSize. No
// species drops below minSize.
func computeSpawnAmounts(adjusted []float64, adjustedSum float64, previous []int, popSize, minSize int, rng RNG) []int {
	amounts := make([]int, len(adjusted))
	total := 0
	for i, af := range adjusted {
		target := float64(minSize)
		if adjustedSum > 0 {
			target = math.Max(target, af/adjustedSum*float64(popSize))
		}
		half := (target - float64(previous[i])) / 2
		step := int(math.Round(half))
		if step == 0 && half != 0 {
			step = int(math.Copysign(1, half))
		}
		amounts[i] = max(minSize, previous[i]+step)
		total += amounts[i]
	}
	if total == 0 {
		return amounts
	}

	scale := float64(popSize) / float64(total)
	total = 0
	for i, a := range amounts {
		amounts[i] = max(minSize, int(math.Round(float64(a)*scale)))
		total += amounts[i]
	}

	// Rounding and the minimum can miss popSize. Nudge species in random
	// order until the sizes add up or none can shrink further.
	order := make([]int, len(amounts))
	for i := range order {
		order[i] = i
	}
	for i := len(order) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		order[i], order[j] = order[j], order[i]
	}
	for diff := popSize - total; diff != 0; {
		moved := false
		for _, idx := range order {
			switch {
			case diff > 0:
				amounts[idx]++
				diff--
				moved = true
			case diff < 0 && amounts[idx] > minSize:
				amounts[idx]--
				diff++
				moved = true
			}
			if diff == 0 {
				break
			}
		}
		if !moved {
			break
		}
	}
	return amounts
}
