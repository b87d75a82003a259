package neat

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestLoadConfigINI(t *testing.T) {
	path := writeConfigFile(t, "neat.ini", `
[NEAT]
pop_size          = 40
fitness_criterion = Mean ; averaged
fitness_threshold = 0.9
seed              = 11
workers           = 3

[DefaultGenome]
num_inputs         = 4
num_outputs        = 2
initial_connection = partial 0.5
hidden_activation  = tanh # squashing
trust_safe_genomes = true

[DefaultReproduction]
crossover_probability = 0.5
tournament_size       = 3

[DefaultStagnation]
species_fitness_func = max
`)
	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 40, config.Neat.PopSize)
	assert.Equal(t, "mean", config.Neat.FitnessCriterion)
	assert.Equal(t, 0.9, config.Neat.FitnessThreshold)
	assert.Equal(t, int64(11), config.Neat.Seed)
	assert.Equal(t, 3, config.Neat.Workers)
	assert.Equal(t, 4, config.Genome.NumInputs)
	assert.Equal(t, 2, config.Genome.NumOutputs)
	assert.Equal(t, "partial 0.5", config.Genome.InitialConnection)
	assert.Equal(t, "tanh", config.Genome.HiddenActivation)
	assert.True(t, config.Genome.TrustSafeGenomes)
	assert.Equal(t, 0.5, config.Reproduction.CrossoverProbability)
	assert.Equal(t, 3, config.Reproduction.TournamentSize)
	assert.Equal(t, "max", config.Stagnation.SpeciesFitnessFunc)

	// Untouched keys keep their defaults.
	defaults := DefaultConfig()
	assert.Equal(t, defaults.Genome.AddLinkProbability, config.Genome.AddLinkProbability)
	assert.Equal(t, defaults.SpeciesSet, config.SpeciesSet)
}

func TestLoadConfigYAML(t *testing.T) {
	path := writeConfigFile(t, "neat.yaml", `
neat:
  pop_size: 25
  fitness_criterion: min
  seed: 3
genome:
  num_inputs: 3
  initial_connection: full_direct
  num_hidden: 1
species_set:
  target_species: 4
  compatibility_threshold: 1.5
stagnation:
  max_stagnation: 8
`)
	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 25, config.Neat.PopSize)
	assert.Equal(t, "min", config.Neat.FitnessCriterion)
	assert.Equal(t, int64(3), config.Neat.Seed)
	assert.Equal(t, 3, config.Genome.NumInputs)
	assert.Equal(t, 1, config.Genome.NumOutputs)
	assert.Equal(t, 1, config.Genome.NumHidden)
	assert.Equal(t, "full_direct", config.Genome.InitialConnection)
	assert.Equal(t, 4, config.SpeciesSet.TargetSpecies)
	assert.Equal(t, 1.5, config.SpeciesSet.CompatibilityThreshold)
	assert.Equal(t, 8, config.Stagnation.MaxStagnation)
	assert.Equal(t, "mean", config.Stagnation.SpeciesFitnessFunc)
}

func TestLoadExampleConfig(t *testing.T) {
	config, err := LoadConfig(filepath.Join("..", "examples", "xor", "config.ini"))
	require.NoError(t, err)
	assert.Equal(t, 150, config.Neat.PopSize)
	assert.Equal(t, 2, config.Reproduction.Elitism)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.ini"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfigFile(t, "bad.yml", "neat: [unterminated"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfigFile(t, "bad.ini", "[NEAT]\npop_size = 0\n"))
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"pop size", func(c *Config) { c.Neat.PopSize = 0 }},
		{"workers", func(c *Config) { c.Neat.Workers = -1 }},
		{"criterion", func(c *Config) { c.Neat.FitnessCriterion = "median" }},
		{"inputs", func(c *Config) { c.Genome.NumInputs = 0 }},
		{"outputs", func(c *Config) { c.Genome.NumOutputs = 0 }},
		{"hidden", func(c *Config) { c.Genome.NumHidden = -1 }},
		{"probability", func(c *Config) { c.Genome.AddNodeProbability = 1.5 }},
		{"link distance weight", func(c *Config) { c.Genome.LinkDistanceWeight = -0.1 }},
		{"weight size", func(c *Config) { c.Genome.MutateLinkWeightSize = -1 }},
		{"attempts", func(c *Config) { c.Genome.AddLinkAttempts = 0 }},
		{"initial connection", func(c *Config) { c.Genome.InitialConnection = "partial" }},
		{"activation", func(c *Config) { c.Genome.HiddenActivation = "softmax" }},
		{"survival", func(c *Config) { c.Reproduction.SurvivalThreshold = 2 }},
		{"min species size", func(c *Config) { c.Reproduction.MinSpeciesSize = 0 }},
		{"elitism", func(c *Config) { c.Reproduction.Elitism = -1 }},
		{"crossover", func(c *Config) { c.Reproduction.CrossoverProbability = -0.5 }},
		{"tournament", func(c *Config) { c.Reproduction.TournamentSize = 0 }},
		{"threshold", func(c *Config) { c.SpeciesSet.CompatibilityThreshold = -1 }},
		{"threshold bounds", func(c *Config) { c.SpeciesSet.MaxCompatibilityThreshold = 0.01 }},
		{"target species", func(c *Config) { c.SpeciesSet.TargetSpecies = -2 }},
		{"move amount", func(c *Config) { c.SpeciesSet.ThresholdMoveAmount = -1 }},
		{"multiplier", func(c *Config) { c.SpeciesSet.StagnantSpeciesFitnessMultiplier = -1 }},
		{"max stagnation", func(c *Config) { c.Stagnation.MaxStagnation = 0 }},
		{"species fitness", func(c *Config) { c.Stagnation.SpeciesFitnessFunc = "mode" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(config)
			assert.Error(t, config.Validate())
		})
	}
}

func TestCleanIniString(t *testing.T) {
	assert.Equal(t, "sigmoid", cleanIniString("  sigmoid  # default"))
	assert.Equal(t, "max", cleanIniString("max;"))
	assert.Equal(t, "", cleanIniString("# only a comment"))
}
