package neat

import (
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// crossoverParents returns two genomes over one log. Both hold I0->O0 (1);
// a also holds I0->H0 (2), H0->O0 (3) and b holds I1->O0 (4).
func crossoverParents(t *testing.T) (*Genome, *Genome) {
	t.Helper()
	state := newTestState(t)
	cfg := testGenomeConfig()
	a := loadGenome(t, cfg, state, 1, FactoryOptions{
		HiddenNodes: []int{0},
		Links: []LinkOption{
			{From: Input(0), To: Output(0), Weight: 1.0, Innovation: 1},
			{From: Input(0), To: Hidden(0), Weight: 0.2, Innovation: 2},
			{From: Hidden(0), To: Output(0), Weight: 0.4, Innovation: 3},
		},
	})
	b := loadGenome(t, cfg, state, 2, FactoryOptions{
		Links: []LinkOption{
			{From: Input(0), To: Output(0), Weight: 0.0, Innovation: 1},
			{From: Input(1), To: Output(0), Weight: -0.5, Innovation: 4},
		},
	})
	return a, b
}

func TestCrossoverFitterParent(t *testing.T) {
	a, b := crossoverParents(t)
	rng := rand.New(rand.NewSource(1))

	child, err := Crossover(10, a, b, 2.0, 1.0, rng)
	require.NoError(t, err)
	assert.Equal(t, 10, child.Key)

	opts := child.ToFactoryOptions()
	assert.Equal(t, []int{0}, opts.HiddenNodes)
	assert.Equal(t, []LinkOption{
		{From: Input(0), To: Output(0), Weight: 0.5, Innovation: 1},
		{From: Input(0), To: Hidden(0), Weight: 0.2, Innovation: 2},
		{From: Hidden(0), To: Output(0), Weight: 0.4, Innovation: 3},
	}, opts.Links)

	// Argument order does not matter, only fitness does.
	swapped, err := Crossover(11, b, a, 1.0, 2.0, rng)
	require.NoError(t, err)
	assert.Equal(t, opts, swapped.ToFactoryOptions())

	weaker, err := Crossover(12, a, b, 1.0, 2.0, rng)
	require.NoError(t, err)
	assert.Empty(t, weaker.HiddenNodes())
	assert.Equal(t, []LinkOption{
		{From: Input(0), To: Output(0), Weight: 0.5, Innovation: 1},
		{From: Input(1), To: Output(0), Weight: -0.5, Innovation: 4},
	}, weaker.ToFactoryOptions().Links)
}

func TestCrossoverEqualFitness(t *testing.T) {
	a, b := crossoverParents(t)
	rng := rand.New(rand.NewSource(7))

	seen := make(map[int]bool)
	for i := 0; i < 50; i++ {
		child, err := Crossover(100+i, a, b, 1.0, 1.0, rng)
		require.NoError(t, err)

		l, ok := child.Link(Input(0), Output(0))
		require.True(t, ok, "matching genes are always inherited")
		assert.Equal(t, 0.5, l.Weight)
		for _, l := range child.Links() {
			seen[l.Innovation] = true
			require.Contains(t, []int{1, 2, 3, 4}, l.Innovation)
		}
		// Hidden nodes come only from inherited links.
		for _, id := range child.HiddenNodes() {
			assert.True(t, len(child.Incoming(Hidden(id)))+len(child.Outgoing(Hidden(id))) > 0)
		}
		require.NoError(t, child.validateAcyclic())
	}
	assert.Len(t, seen, 4, "every disjoint gene is inherited sometimes")
}

func TestCrossoverSkipsCyclicLinks(t *testing.T) {
	state := newTestState(t)
	cfg := testGenomeConfig()
	a := loadGenome(t, cfg, state, 1, FactoryOptions{
		HiddenNodes: []int{0, 1},
		Links: []LinkOption{
			{From: Hidden(0), To: Hidden(1), Weight: 1, Innovation: 0},
		},
	})
	b := loadGenome(t, cfg, state, 2, FactoryOptions{
		HiddenNodes: []int{0, 1},
		Links: []LinkOption{
			{From: Hidden(1), To: Hidden(0), Weight: 1, Innovation: 1},
		},
	})

	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 20; i++ {
		child, err := Crossover(10+i, a, b, 1.0, 1.0, rng)
		require.NoError(t, err)
		assert.LessOrEqual(t, child.NumLinks(), 1)
		require.NoError(t, child.validateAcyclic())
	}
}

func TestCrossoverMismatch(t *testing.T) {
	a, _ := crossoverParents(t)

	// Same innovation, different endpoints: only possible with a second log.
	other, err := NewState(nil)
	require.NoError(t, err)
	c := loadGenome(t, testGenomeConfig(), other, 3, FactoryOptions{
		Links: []LinkOption{{From: Input(1), To: Output(0), Weight: 1, Innovation: 1}},
	})
	_, err = Crossover(9, a, c, 1, 2, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, ErrCrossoverMismatch)

	// Same log but a corrupted gene.
	d := a.Clone(4)
	d.links[LinkRef{From: Input(0), To: Output(0)}].To = Hidden(0)
	_, err = Crossover(9, a, d, 1, 1, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, ErrCrossoverMismatch)
}

func TestDistanceIdentity(t *testing.T) {
	a, b := crossoverParents(t)

	assert.Zero(t, Distance(a, a))
	assert.Zero(t, Distance(a, a.Clone(5)))

	empty := loadGenome(t, testGenomeConfig(), a.State(), 6, FactoryOptions{})
	assert.Zero(t, Distance(empty, empty.Clone(7)))
	assert.False(t, math.IsNaN(Distance(empty, empty)))

	d := Distance(a, b)
	assert.Equal(t, d, Distance(b, a))
	assert.Greater(t, d, 0.0)
}

func TestDistanceValue(t *testing.T) {
	a, b := crossoverParents(t)
	cfg := a.Config()

	// Links: innovation 1 matches with |1.0-0.0| = 1, innovations 2, 3 and 4
	// are disjoint. Hidden nodes: H0 only in a.
	linkTerm := (math.Tanh(1) + 3) / 4
	nodeTerm := 1.0
	want := cfg.LinkDistanceWeight*linkTerm + (1-cfg.LinkDistanceWeight)*nodeTerm
	assert.InDelta(t, want, Distance(a, b), 1e-12)

	// Counting connected inputs and outputs too: a has {I0, H0, O0}, b has
	// {I0, I1, O0}. H0 and I1 are unmatched out of four.
	cfg.OnlyHiddenNodeDistance = false
	want = cfg.LinkDistanceWeight*linkTerm + (1-cfg.LinkDistanceWeight)*0.5
	assert.InDelta(t, want, Distance(a, b), 1e-12)
}

func TestDistanceCache(t *testing.T) {
	a, b := crossoverParents(t)
	cache := NewDistanceCache()

	d := cache.Distance(a, b)
	assert.Equal(t, Distance(a, b), d)
	assert.Equal(t, d, cache.Distance(b, a))
	assert.Equal(t, 1, cache.Misses)
	assert.Equal(t, 1, cache.Hits)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cache.Distance(a, a)
		}()
	}
	wg.Wait()
	assert.Equal(t, []float64{0, d}, cache.Values())
}
