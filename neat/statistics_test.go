package neat

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatisticsRecordsGenerations(t *testing.T) {
	p := newTestPopulation(t, testPopulationConfig())
	_, err := p.Run(context.Background(), weightSumFitness, 3)
	require.NoError(t, err)

	rows := p.Statistics.Generations
	require.Len(t, rows, 3)
	for i, row := range rows {
		assert.Equal(t, i, row.Generation)
		assert.Equal(t, 20, row.Organisms)
		assert.GreaterOrEqual(t, row.BestFitness, row.MeanFitness)
		assert.Positive(t, row.Species)
		assert.GreaterOrEqual(t, row.MeanNodes, 3.0)
	}
	assert.Equal(t, rows[0].BestFitness, p.Statistics.BestFitnesses()[0])
}

func TestStatisticsRecordsWinningGeneration(t *testing.T) {
	config := testPopulationConfig()
	config.Neat.NoFitnessTermination = false
	config.Neat.FitnessThreshold = 0.5
	p := newTestPopulation(t, config)

	_, err := p.Run(context.Background(), func(_ context.Context, organisms []*Organism) error {
		for _, o := range organisms {
			o.Fitness = 1
		}
		return nil
	}, 5)
	require.NoError(t, err)
	require.Len(t, p.Statistics.Generations, 1)
	assert.Equal(t, 1.0, p.Statistics.Generations[0].BestFitness)
	assert.Zero(t, p.Statistics.Generations[0].StdevFitness)
}

func TestStatisticsCSV(t *testing.T) {
	stats := &Statistics{Generations: []GenerationStats{
		{Generation: 0, Organisms: 10, BestFitness: 1.5, MeanFitness: 0.5, Species: 2, Threshold: 3},
		{Generation: 1, Organisms: 10, BestFitness: 2.5, MeanFitness: 1, Species: 3, Threshold: 3.1},
	}}

	var buf bytes.Buffer
	require.NoError(t, stats.WriteCSV(&buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "generation,organisms,best_fitness"))

	path := filepath.Join(t.TempDir(), "out", "stats.csv")
	require.NoError(t, stats.SaveCSV(path))
	loaded, err := LoadStatisticsCSV(path)
	require.NoError(t, err)
	assert.Equal(t, stats.Generations, loaded.Generations)

	_, err = LoadStatisticsCSV(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestStatisticsPlot(t *testing.T) {
	stats := &Statistics{}
	assert.Error(t, stats.SavePlot(filepath.Join(t.TempDir(), "empty.png")))

	stats.Generations = []GenerationStats{
		{Generation: 0, BestFitness: 1, MeanFitness: 0.5, StdevFitness: 0.2},
		{Generation: 1, BestFitness: 2, MeanFitness: 0.8, StdevFitness: 0.3},
		{Generation: 2, BestFitness: 2.5, MeanFitness: 1.2, StdevFitness: 0.4},
	}
	path := filepath.Join(t.TempDir(), "fitness.png")
	require.NoError(t, stats.SavePlot(path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestCheckpointKeepsStatistics(t *testing.T) {
	config := testPopulationConfig()
	p := newTestPopulation(t, config)
	_, err := p.Run(context.Background(), weightSumFitness, 2)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "stats.ckpt.gz")
	require.NoError(t, p.SaveCheckpoint(path))
	loaded, err := LoadCheckpoint(path, config, WithLogger(discardLogger()))
	require.NoError(t, err)
	assert.Equal(t, p.Statistics.Generations, loaded.Statistics.Generations)
}
