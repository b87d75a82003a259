package neat

import (
	"context"
	"errors"
	"maps"
	"math"
	"math/rand"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPopulationConfig() *Config {
	config := DefaultConfig()
	config.Neat.PopSize = 20
	config.Neat.NoFitnessTermination = true
	config.Genome.AddLinkProbability = 0.3
	config.Genome.AddNodeProbability = 0.2
	return config
}

// weightSumFitness rewards genomes whose link weights sum to 1.
func weightSumFitness(_ context.Context, organisms []*Organism) error {
	for _, o := range organisms {
		sum := 0.0
		for _, l := range o.Genome.Links() {
			sum += l.Weight
		}
		o.Fitness = 1 / (1 + math.Abs(sum-1))
	}
	return nil
}

func newTestPopulation(t *testing.T, config *Config, opts ...PopulationOption) *Population {
	t.Helper()
	opts = append([]PopulationOption{WithLogger(discardLogger())}, opts...)
	p, err := NewPopulation(config, opts...)
	require.NoError(t, err)
	return p
}

func organismKeys(organisms []*Organism) []int {
	keys := make([]int, len(organisms))
	for i, o := range organisms {
		keys[i] = o.Key
	}
	return keys
}

func TestNewPopulation(t *testing.T) {
	p := newTestPopulation(t, testPopulationConfig())

	require.Len(t, p.Organisms, 20)
	for i, o := range p.Organisms {
		assert.Equal(t, i+1, o.Key)
		assert.Equal(t, o.Key, o.Genome.Key)
		assert.Equal(t, 2, o.Genome.NumLinks())
		assert.Same(t, p.State, o.Genome.State())
	}
	assert.Equal(t, 21, p.Reproduction.NextGenomeKey)
	assert.Len(t, p.Reproduction.Ancestors, 20)
	assert.Equal(t, 2, p.State.Len())
}

func TestRunGeneration(t *testing.T) {
	p := newTestPopulation(t, testPopulationConfig())

	winner, err := p.RunGeneration(context.Background(), weightSumFitness)
	require.NoError(t, err)
	assert.Nil(t, winner)
	assert.Equal(t, 1, p.Generation)
	require.NotNil(t, p.Best)
	assert.NotEmpty(t, p.SpeciesSet.Species)

	keys := organismKeys(p.Organisms)
	assert.Len(t, slices.Compact(slices.Sorted(slices.Values(keys))), len(keys), "keys are unique")
	for _, o := range p.Organisms {
		parents, ok := p.Reproduction.Ancestors[o.Key]
		require.True(t, ok)
		assert.NotEmpty(t, parents)
		require.NoError(t, o.Genome.validateAcyclic())
	}
	// The best organism of the previous generation survives as an elite.
	assert.Contains(t, keys, p.Best.Key)
}

func TestRunIsReproducible(t *testing.T) {
	run := func() *Population {
		config := testPopulationConfig()
		config.Neat.Seed = 99
		p := newTestPopulation(t, config, WithStateOptions(WithLineageID("repro")))
		_, err := p.Run(context.Background(), weightSumFitness, 4)
		require.NoError(t, err)
		return p
	}
	a, b := run(), run()

	assert.Equal(t, a.State.Snapshot(), b.State.Snapshot())
	require.Equal(t, organismKeys(a.Organisms), organismKeys(b.Organisms))
	for i := range a.Organisms {
		assert.Equal(t, a.Organisms[i].Genome.ToFactoryOptions(), b.Organisms[i].Genome.ToFactoryOptions())
	}
	assert.Equal(t, a.Best.Key, b.Best.Key)
	assert.Equal(t, slices.Sorted(maps.Keys(a.SpeciesSet.Species)), slices.Sorted(maps.Keys(b.SpeciesSet.Species)))
}

func TestRunWithWorkers(t *testing.T) {
	config := testPopulationConfig()
	config.Neat.Workers = 4
	config.Neat.PopSize = 40
	p := newTestPopulation(t, config)

	_, err := p.Run(context.Background(), weightSumFitness, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, p.Generation)
	for _, o := range p.Organisms {
		require.NoError(t, o.Genome.validateAcyclic())
		for _, l := range o.Genome.Links() {
			ref, ok := p.State.LinkForInnovation(l.Innovation)
			require.True(t, ok)
			assert.Equal(t, l.Ref(), ref)
		}
	}
}

func TestRunStopsAtFitnessThreshold(t *testing.T) {
	config := testPopulationConfig()
	config.Neat.NoFitnessTermination = false
	config.Neat.FitnessThreshold = 0.5
	p := newTestPopulation(t, config)

	constant := func(_ context.Context, organisms []*Organism) error {
		for _, o := range organisms {
			o.Fitness = float64(o.Key)
		}
		return nil
	}
	winner, err := p.Run(context.Background(), constant, 10)
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, 20, winner.Key)
	assert.Equal(t, 0, p.Generation)
}

func TestFitnessCriterion(t *testing.T) {
	p := newTestPopulation(t, testPopulationConfig())
	for i, o := range p.Organisms {
		o.Fitness = float64(i)
	}

	p.Config.Neat.FitnessCriterion = "max"
	assert.Equal(t, 19.0, p.criterion())
	p.Config.Neat.FitnessCriterion = "min"
	assert.Equal(t, 0.0, p.criterion())
	p.Config.Neat.FitnessCriterion = "mean"
	assert.Equal(t, 9.5, p.criterion())
}

func TestRunGenerationFitnessError(t *testing.T) {
	p := newTestPopulation(t, testPopulationConfig())
	boom := errors.New("boom")

	_, err := p.RunGeneration(context.Background(), func(context.Context, []*Organism) error { return boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, p.Generation)
}

func TestRunGenerationExtinction(t *testing.T) {
	p := newTestPopulation(t, testPopulationConfig())
	p.Organisms = nil

	_, err := p.RunGeneration(context.Background(), weightSumFitness)
	require.ErrorIs(t, err, ErrExtinct)

	p.Config.Neat.ResetOnExtinction = true
	_, err = p.RunGeneration(context.Background(), weightSumFitness)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Generation)
	assert.NotEmpty(t, p.Organisms)
}

func TestRunHonoursCancellation(t *testing.T) {
	config := testPopulationConfig()
	p := newTestPopulation(t, config)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	evaluate := func(ctx context.Context, organisms []*Organism) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return weightSumFitness(ctx, organisms)
	}
	_, err := p.Run(ctx, evaluate, 3)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestComputeSpawnAmounts(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	amounts := computeSpawnAmounts([]float64{0.5, 0.3, 0.2}, 1.0, []int{10, 10, 10}, 30, 2, rng)
	assert.Equal(t, 30, amounts[0]+amounts[1]+amounts[2])
	assert.Greater(t, amounts[0], amounts[2])
	for _, a := range amounts {
		assert.GreaterOrEqual(t, a, 2)
	}

	// Without any adjusted fitness every species keeps the minimum share.
	amounts = computeSpawnAmounts([]float64{0, 0}, 0, []int{2, 2}, 10, 2, rng)
	assert.Equal(t, 10, amounts[0]+amounts[1])
}

func TestTournament(t *testing.T) {
	r := &Reproduction{Config: &ReproductionConfig{TournamentSize: 50}}
	parents := []*Organism{{Key: 1, Fitness: 1}, {Key: 2, Fitness: 3}, {Key: 3, Fitness: 2}}
	assert.Equal(t, 2, r.tournament(parents, rand.New(rand.NewSource(1))).Key)

	r.Config.TournamentSize = 1
	picked := make(map[int]bool)
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 50; i++ {
		picked[r.tournament(parents, rng).Key] = true
	}
	assert.Len(t, picked, 3)
}

func TestCheckpointRoundTrip(t *testing.T) {
	config := testPopulationConfig()
	p := newTestPopulation(t, config)
	_, err := p.Run(context.Background(), weightSumFitness, 3)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "neat.ckpt.gz")
	require.NoError(t, p.SaveCheckpoint(path))

	loaded, err := LoadCheckpoint(path, config, WithLogger(discardLogger()))
	require.NoError(t, err)

	assert.Equal(t, p.Generation, loaded.Generation)
	assert.Equal(t, p.Reproduction.NextGenomeKey, loaded.Reproduction.NextGenomeKey)
	assert.Equal(t, p.Reproduction.Ancestors, loaded.Reproduction.Ancestors)
	assert.Equal(t, p.State.Snapshot(), loaded.State.Snapshot())
	assert.Equal(t, p.State.LineageID(), loaded.State.LineageID())
	assert.Equal(t, p.SpeciesSet.Threshold, loaded.SpeciesSet.Threshold)
	assert.Equal(t, p.SpeciesSet.Indexer, loaded.SpeciesSet.Indexer)

	require.Equal(t, organismKeys(p.Organisms), organismKeys(loaded.Organisms))
	for i, o := range p.Organisms {
		assert.Equal(t, o.Genome.ToFactoryOptions(), loaded.Organisms[i].Genome.ToFactoryOptions())
		assert.Same(t, loaded.State, loaded.Organisms[i].Genome.State())
	}
	require.NotNil(t, loaded.Best)
	assert.Equal(t, p.Best.Key, loaded.Best.Key)
	assert.Equal(t, p.Best.Fitness, loaded.Best.Fitness)

	require.Equal(t, slices.Sorted(maps.Keys(p.SpeciesSet.Species)), slices.Sorted(maps.Keys(loaded.SpeciesSet.Species)))
	for id, sp := range p.SpeciesSet.Species {
		got := loaded.SpeciesSet.Species[id]
		assert.Equal(t, sp.Created, got.Created)
		assert.Equal(t, sp.LastImprovementAge, got.LastImprovementAge)
		assert.Equal(t, sp.FitnessHistory, got.FitnessHistory)
		assert.Equal(t, sp.Representative.Key, got.Representative.Key)
	}

	// The restored population keeps evolving against the restored log.
	_, err = loaded.RunGeneration(context.Background(), weightSumFitness)
	require.NoError(t, err)
	assert.Equal(t, p.Generation+1, loaded.Generation)
}

func TestSaveCheckpointLeavesRunUnchanged(t *testing.T) {
	config := testPopulationConfig()
	config.Neat.Seed = 7
	start := func() *Population {
		return newTestPopulation(t, config, WithStateOptions(WithLineageID("resume")))
	}
	genomes := func(p *Population) []FactoryOptions {
		out := make([]FactoryOptions, len(p.Organisms))
		for i, o := range p.Organisms {
			out[i] = o.Genome.ToFactoryOptions()
		}
		return out
	}

	straight := start()
	_, err := straight.Run(context.Background(), weightSumFitness, 4)
	require.NoError(t, err)

	saved := start()
	_, err = saved.Run(context.Background(), weightSumFitness, 2)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "mid.ckpt.gz")
	require.NoError(t, saved.SaveCheckpoint(path))
	require.NoError(t, saved.SaveCheckpoint(path))
	_, err = saved.Run(context.Background(), weightSumFitness, 2)
	require.NoError(t, err)

	assert.Equal(t, straight.State.Snapshot(), saved.State.Snapshot())
	require.Equal(t, organismKeys(straight.Organisms), organismKeys(saved.Organisms))
	assert.Equal(t, genomes(straight), genomes(saved))

	resume := func() *Population {
		p, err := LoadCheckpoint(path, config, WithLogger(discardLogger()))
		require.NoError(t, err)
		_, err = p.Run(context.Background(), weightSumFitness, 2)
		require.NoError(t, err)
		return p
	}
	a, b := resume(), resume()
	assert.Equal(t, a.State.Snapshot(), b.State.Snapshot())
	require.Equal(t, organismKeys(a.Organisms), organismKeys(b.Organisms))
	assert.Equal(t, genomes(a), genomes(b))
}

func TestLoadCheckpointErrors(t *testing.T) {
	_, err := LoadCheckpoint(filepath.Join(t.TempDir(), "missing"), testPopulationConfig())
	assert.Error(t, err)

	path := writeConfigFile(t, "garbage.ckpt", "not a checkpoint")
	_, err = LoadCheckpoint(path, testPopulationConfig())
	assert.Error(t, err)
}
