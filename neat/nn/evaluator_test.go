package nn

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baldhumanity/neatgraph/neat"
)

func testOrganisms(t *testing.T, n int) []*neat.Organism {
	t.Helper()
	state, err := neat.NewState(nil)
	require.NoError(t, err)
	cfg := identityConfig()
	organisms := make([]*neat.Organism, n)
	for i := range organisms {
		g, err := neat.CreateGenome(cfg, state, neat.GenomeOptions{Key: i + 1}, neat.Unconnected, &neat.FactoryOptions{
			Links: []neat.LinkOption{{From: neat.Input(0), To: neat.Output(0), Weight: float64(i), Innovation: 0}},
		})
		require.NoError(t, err)
		organisms[i] = neat.NewOrganism(g, 0)
	}
	return organisms
}

func TestEvaluateAll(t *testing.T) {
	organisms := testOrganisms(t, 12)
	var calls atomic.Int32
	evaluate := EvaluateAll(EvaluatorFunc(func(_ context.Context, p *Program) (float64, error) {
		calls.Add(1)
		out, err := p.Activate([]float64{1, 0})
		if err != nil {
			return 0, err
		}
		return out[0], nil
	}), 4)

	require.NoError(t, evaluate(context.Background(), organisms))
	assert.Equal(t, int32(12), calls.Load())
	for i, o := range organisms {
		assert.Equal(t, float64(i), o.Fitness)
	}
}

func TestEvaluateAllStopsOnError(t *testing.T) {
	organisms := testOrganisms(t, 6)
	boom := errors.New("boom")
	evaluate := EvaluateAll(EvaluatorFunc(func(context.Context, *Program) (float64, error) {
		return 0, boom
	}), 1)

	err := evaluate(context.Background(), organisms)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "organism 1")
}

func TestEvaluateAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	evaluate := EvaluateAll(EvaluatorFunc(func(context.Context, *Program) (float64, error) {
		return 1, nil
	}), 2)
	assert.ErrorIs(t, evaluate(ctx, testOrganisms(t, 3)), context.Canceled)
}

func TestEvaluateAllDrivesPopulation(t *testing.T) {
	config := neat.DefaultConfig()
	config.Neat.PopSize = 10
	config.Neat.FitnessThreshold = 0.5
	pop, err := neat.NewPopulation(config)
	require.NoError(t, err)

	evaluate := EvaluateAll(EvaluatorFunc(func(_ context.Context, p *Program) (float64, error) {
		return float64(len(p.Actions)), nil
	}), 3)
	winner, err := pop.Run(context.Background(), evaluate, 5)
	require.NoError(t, err)
	require.NotNil(t, winner)
	// Two inputs, one output and two links.
	assert.Equal(t, 5.0, winner.Fitness)
}
