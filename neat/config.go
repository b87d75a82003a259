package neat

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// Config stores the configuration parameters for the NEAT algorithm.
type Config struct {
	Neat         NeatConfig         `yaml:"neat"`
	Genome       GenomeConfig       `yaml:"genome"`
	Reproduction ReproductionConfig `yaml:"reproduction"`
	SpeciesSet   SpeciesSetConfig   `yaml:"species_set"`
	Stagnation   StagnationConfig   `yaml:"stagnation"`
}

// NeatConfig holds parameters specific to the NEAT algorithm itself.
type NeatConfig struct {
	PopSize              int     `ini:"pop_size" yaml:"pop_size"`
	FitnessCriterion     string  `ini:"fitness_criterion" yaml:"fitness_criterion"` // "max", "min" or "mean"
	FitnessThreshold     float64 `ini:"fitness_threshold" yaml:"fitness_threshold"`
	ResetOnExtinction    bool    `ini:"reset_on_extinction" yaml:"reset_on_extinction"`
	NoFitnessTermination bool    `ini:"no_fitness_termination" yaml:"no_fitness_termination"`
	Seed                 int64   `ini:"seed" yaml:"seed"`
	Workers              int     `ini:"workers" yaml:"workers"` // Parallel child mutation; 1 keeps runs reproducible
}

// GenomeConfig holds parameters specific to the structure and mutation of genomes.
type GenomeConfig struct {
	NumInputs         int    `ini:"num_inputs" yaml:"num_inputs"`
	NumOutputs        int    `ini:"num_outputs" yaml:"num_outputs"`
	NumHidden         int    `ini:"num_hidden" yaml:"num_hidden"`
	InitialConnection string `ini:"initial_connection" yaml:"initial_connection"` // unconnected, full, full_direct, partial <p>, partial_direct <p>

	AddLinkProbability           float64 `ini:"add_link_probability" yaml:"add_link_probability"`
	AddNodeProbability           float64 `ini:"add_node_probability" yaml:"add_node_probability"`
	RemoveLinkProbability        float64 `ini:"remove_link_probability" yaml:"remove_link_probability"`
	RemoveNodeProbability        float64 `ini:"remove_node_probability" yaml:"remove_node_probability"`
	MutateLinkWeightProbability  float64 `ini:"mutate_link_weight_probability" yaml:"mutate_link_weight_probability"`
	ReplaceLinkWeightProbability float64 `ini:"replace_link_weight_probability" yaml:"replace_link_weight_probability"`
	MutateLinkWeightSize         float64 `ini:"mutate_link_weight_size" yaml:"mutate_link_weight_size"`
	InitialLinkWeightSize        float64 `ini:"initial_link_weight_size" yaml:"initial_link_weight_size"`
	MutateOnlyOneLink            bool    `ini:"mutate_only_one_link" yaml:"mutate_only_one_link"`
	SingleStructuralMutation     bool    `ini:"single_structural_mutation" yaml:"single_structural_mutation"`
	AddLinkAttempts              int     `ini:"add_link_attempts" yaml:"add_link_attempts"`

	LinkDistanceWeight     float64 `ini:"link_distance_weight" yaml:"link_distance_weight"`
	OnlyHiddenNodeDistance bool    `ini:"only_hidden_node_distance" yaml:"only_hidden_node_distance"`

	// TrustSafeGenomes skips the load-time acyclicity check for factory
	// options flagged IsSafe.
	TrustSafeGenomes bool `ini:"trust_safe_genomes" yaml:"trust_safe_genomes"`

	InputActivation  string `ini:"input_activation" yaml:"input_activation"`
	HiddenActivation string `ini:"hidden_activation" yaml:"hidden_activation"`
	OutputActivation string `ini:"output_activation" yaml:"output_activation"`
}

// ReproductionConfig holds parameters related to reproduction.
type ReproductionConfig struct {
	Elitism              int     `ini:"elitism" yaml:"elitism"`
	SurvivalThreshold    float64 `ini:"survival_threshold" yaml:"survival_threshold"`
	MinSpeciesSize       int     `ini:"min_species_size" yaml:"min_species_size"`
	CrossoverProbability float64 `ini:"crossover_probability" yaml:"crossover_probability"`
	TournamentSize       int     `ini:"tournament_size" yaml:"tournament_size"`
}

// SpeciesSetConfig holds parameters related to speciation and species fitness adjustment.
type SpeciesSetConfig struct {
	CompatibilityThreshold    float64 `ini:"compatibility_threshold" yaml:"compatibility_threshold"`
	MinCompatibilityThreshold float64 `ini:"min_compatibility_threshold" yaml:"min_compatibility_threshold"`
	MaxCompatibilityThreshold float64 `ini:"max_compatibility_threshold" yaml:"max_compatibility_threshold"`
	TargetSpecies             int     `ini:"target_species" yaml:"target_species"` // 0 disables threshold adaptation
	ThresholdMoveAmount       float64 `ini:"threshold_move_amount" yaml:"threshold_move_amount"`

	YoungAgeLimit                    int     `ini:"young_age_limit" yaml:"young_age_limit"`
	YoungSpeciesFitnessMultiplier    float64 `ini:"young_species_fitness_multiplier" yaml:"young_species_fitness_multiplier"`
	DropoffAge                       int     `ini:"dropoff_age" yaml:"dropoff_age"`
	StagnantSpeciesFitnessMultiplier float64 `ini:"stagnant_species_fitness_multiplier" yaml:"stagnant_species_fitness_multiplier"`
}

// StagnationConfig holds parameters related to species stagnation.
type StagnationConfig struct {
	SpeciesFitnessFunc string `ini:"species_fitness_func" yaml:"species_fitness_func"`
	MaxStagnation      int    `ini:"max_stagnation" yaml:"max_stagnation"`
	SpeciesElitism     int    `ini:"species_elitism" yaml:"species_elitism"`
}

// DefaultConfig returns a configuration with every parameter set to its default.
func DefaultConfig() *Config {
	return &Config{
		Neat: NeatConfig{
			PopSize:          150,
			FitnessCriterion: "max",
			FitnessThreshold: 3.9,
			Seed:             1,
			Workers:          1,
		},
		Genome: GenomeConfig{
			NumInputs:                    2,
			NumOutputs:                   1,
			InitialConnection:            "full",
			AddLinkProbability:           0.1,
			AddNodeProbability:           0.03,
			RemoveLinkProbability:        0.01,
			RemoveNodeProbability:        0.005,
			MutateLinkWeightProbability:  0.8,
			ReplaceLinkWeightProbability: 0.1,
			MutateLinkWeightSize:         0.5,
			InitialLinkWeightSize:        1.0,
			AddLinkAttempts:              20,
			LinkDistanceWeight:           0.5,
			OnlyHiddenNodeDistance:       true,
			InputActivation:              "identity",
			HiddenActivation:             "sigmoid",
			OutputActivation:             "sigmoid",
		},
		Reproduction: ReproductionConfig{
			Elitism:              1,
			SurvivalThreshold:    0.2,
			MinSpeciesSize:       1,
			CrossoverProbability: 0.75,
			TournamentSize:       2,
		},
		SpeciesSet: SpeciesSetConfig{
			CompatibilityThreshold:           0.5,
			MinCompatibilityThreshold:        0.05,
			MaxCompatibilityThreshold:        5.0,
			TargetSpecies:                    0,
			ThresholdMoveAmount:              0.05,
			YoungAgeLimit:                    10,
			YoungSpeciesFitnessMultiplier:    1.2,
			DropoffAge:                       15,
			StagnantSpeciesFitnessMultiplier: 0.5,
		},
		Stagnation: StagnationConfig{
			SpeciesFitnessFunc: "mean",
			MaxStagnation:      15,
			SpeciesElitism:     1,
		},
	}
}

// LoadConfig loads configuration parameters from an INI file, or from YAML when
// the file ends in .yaml or .yml. Keys missing from the file keep their defaults.
func LoadConfig(filePath string) (*Config, error) {
	var (
		config *Config
		err    error
	)
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		config, err = loadYAMLConfig(filePath)
	default:
		config, err = loadINIConfig(filePath)
	}
	if err != nil {
		return nil, err
	}
	config.clean()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func loadINIConfig(filePath string) (*Config, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:         true, // Allow # comments starting with # or ;
		UnescapeValueCommentSymbols: true, // If # or ; appear in value, treat as value
	}, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file '%s': %w", filePath, err)
	}

	config := DefaultConfig()
	sections := []struct {
		name   string
		target any
	}{
		{"NEAT", &config.Neat},
		{"DefaultGenome", &config.Genome},
		{"DefaultReproduction", &config.Reproduction},
		{"DefaultSpeciesSet", &config.SpeciesSet},
		{"DefaultStagnation", &config.Stagnation},
	}
	for _, s := range sections {
		if !cfg.HasSection(s.name) {
			continue
		}
		if err := cfg.Section(s.name).MapTo(s.target); err != nil {
			return nil, fmt.Errorf("failed to map [%s] section: %w", s.name, err)
		}
	}
	return config, nil
}

func loadYAMLConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", filePath, err)
	}
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file '%s': %w", filePath, err)
	}
	return config, nil
}

// clean trims inline comments and whitespace from string values.
func (c *Config) clean() {
	c.Neat.FitnessCriterion = strings.ToLower(cleanIniString(c.Neat.FitnessCriterion))
	c.Genome.InitialConnection = cleanIniString(c.Genome.InitialConnection)
	c.Genome.InputActivation = cleanIniString(c.Genome.InputActivation)
	c.Genome.HiddenActivation = cleanIniString(c.Genome.HiddenActivation)
	c.Genome.OutputActivation = cleanIniString(c.Genome.OutputActivation)
	c.Stagnation.SpeciesFitnessFunc = strings.ToLower(cleanIniString(c.Stagnation.SpeciesFitnessFunc))
}

// Validate checks parameter ranges.
func (c *Config) Validate() error {
	if c.Neat.PopSize <= 0 {
		return fmt.Errorf("config error: pop_size must be positive")
	}
	if c.Neat.Workers < 0 {
		return fmt.Errorf("config error: workers cannot be negative")
	}
	validCriteria := map[string]bool{"max": true, "min": true, "mean": true}
	if !validCriteria[c.Neat.FitnessCriterion] {
		return fmt.Errorf("config error: invalid fitness_criterion '%s', must be one of 'max', 'min', 'mean'", c.Neat.FitnessCriterion)
	}
	if err := c.Genome.Validate(); err != nil {
		return err
	}

	if c.Reproduction.SurvivalThreshold < 0 || c.Reproduction.SurvivalThreshold > 1 {
		return fmt.Errorf("config error: survival_threshold must be between 0 and 1")
	}
	if c.Reproduction.MinSpeciesSize <= 0 {
		return fmt.Errorf("config error: min_species_size must be positive")
	}
	if c.Reproduction.Elitism < 0 {
		return fmt.Errorf("config error: elitism cannot be negative")
	}
	if c.Reproduction.CrossoverProbability < 0 || c.Reproduction.CrossoverProbability > 1 {
		return fmt.Errorf("config error: crossover_probability must be between 0 and 1")
	}
	if c.Reproduction.TournamentSize <= 0 {
		return fmt.Errorf("config error: tournament_size must be positive")
	}

	ss := c.SpeciesSet
	if ss.CompatibilityThreshold < 0 {
		return fmt.Errorf("config error: compatibility_threshold cannot be negative")
	}
	if ss.MaxCompatibilityThreshold < ss.MinCompatibilityThreshold {
		return fmt.Errorf("config error: max_compatibility_threshold cannot be less than min_compatibility_threshold")
	}
	if ss.TargetSpecies < 0 {
		return fmt.Errorf("config error: target_species cannot be negative")
	}
	if ss.ThresholdMoveAmount < 0 {
		return fmt.Errorf("config error: threshold_move_amount cannot be negative")
	}
	if ss.YoungSpeciesFitnessMultiplier < 0 || ss.StagnantSpeciesFitnessMultiplier < 0 {
		return fmt.Errorf("config error: species fitness multipliers cannot be negative")
	}

	if c.Stagnation.MaxStagnation <= 0 {
		return fmt.Errorf("config error: max_stagnation must be positive")
	}
	if _, ok := StatFunctions[c.Stagnation.SpeciesFitnessFunc]; !ok {
		return fmt.Errorf("config error: invalid species_fitness_func '%s'", c.Stagnation.SpeciesFitnessFunc)
	}
	return nil
}

// Validate checks the genome parameters on their own, so callers building a
// GenomeConfig in code get the same checks as a loaded file.
func (gc *GenomeConfig) Validate() error {
	if gc.NumInputs <= 0 {
		return fmt.Errorf("config error: num_inputs must be positive")
	}
	if gc.NumOutputs <= 0 {
		return fmt.Errorf("config error: num_outputs must be positive")
	}
	if gc.NumHidden < 0 {
		return fmt.Errorf("config error: num_hidden cannot be negative")
	}
	probabilities := []struct {
		name  string
		value float64
	}{
		{"add_link_probability", gc.AddLinkProbability},
		{"add_node_probability", gc.AddNodeProbability},
		{"remove_link_probability", gc.RemoveLinkProbability},
		{"remove_node_probability", gc.RemoveNodeProbability},
		{"mutate_link_weight_probability", gc.MutateLinkWeightProbability},
		{"replace_link_weight_probability", gc.ReplaceLinkWeightProbability},
		{"link_distance_weight", gc.LinkDistanceWeight},
	}
	for _, p := range probabilities {
		if p.value < 0 || p.value > 1 {
			return fmt.Errorf("config error: %s must be between 0 and 1", p.name)
		}
	}
	if gc.MutateLinkWeightSize < 0 || gc.InitialLinkWeightSize < 0 {
		return fmt.Errorf("config error: link weight sizes cannot be negative")
	}
	if gc.AddLinkAttempts <= 0 {
		return fmt.Errorf("config error: add_link_attempts must be positive")
	}
	if _, err := ParseInitTopology(gc.InitialConnection); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	for _, name := range []string{gc.InputActivation, gc.HiddenActivation, gc.OutputActivation} {
		if _, err := GetActivation(name); err != nil {
			return fmt.Errorf("config error: %w", err)
		}
	}
	return nil
}

// cleanIniString removes inline comments and trims whitespace from a string read from INI.
func cleanIniString(s string) string {
	if idx := strings.IndexAny(s, "#;"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
