package neat

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
)

// GenerationStats summarises one evaluated generation.
type GenerationStats struct {
	Generation   int     `csv:"generation"`
	Organisms    int     `csv:"organisms"`
	BestFitness  float64 `csv:"best_fitness"`
	MeanFitness  float64 `csv:"mean_fitness"`
	StdevFitness float64 `csv:"stdev_fitness"`
	Species      int     `csv:"species"`
	Threshold    float64 `csv:"threshold"`
	Innovations  int     `csv:"innovations"`
	MeanNodes    float64 `csv:"mean_nodes"`
	MeanLinks    float64 `csv:"mean_links"`
	ElapsedMs    int64   `csv:"elapsed_ms"`
}

// Statistics collects one row per generation.
type Statistics struct {
	Generations []GenerationStats
}

func (s *Statistics) record(p *Population, elapsed time.Duration) GenerationStats {
	n := len(p.Organisms)
	fitnesses := make([]float64, n)
	nodes := make([]float64, n)
	links := make([]float64, n)
	best := 0.0
	for i, o := range p.Organisms {
		fitnesses[i] = o.Fitness
		nodes[i] = float64(o.Genome.NumNodes())
		links[i] = float64(o.Genome.NumLinks())
	}
	if n > 0 {
		best = MaxFloat(fitnesses)
	}
	row := GenerationStats{
		Generation:   p.Generation,
		Organisms:    n,
		BestFitness:  best,
		MeanFitness:  Mean(fitnesses),
		StdevFitness: Stdev(fitnesses),
		Species:      len(p.SpeciesSet.Species),
		Threshold:    p.SpeciesSet.Threshold,
		Innovations:  p.State.Len(),
		MeanNodes:    Mean(nodes),
		MeanLinks:    Mean(links),
		ElapsedMs:    elapsed.Milliseconds(),
	}
	s.Generations = append(s.Generations, row)
	return row
}

// BestFitnesses returns the best fitness of every recorded generation.
func (s *Statistics) BestFitnesses() []float64 {
	out := make([]float64, len(s.Generations))
	for i, g := range s.Generations {
		out[i] = g.BestFitness
	}
	return out
}

// WriteCSV writes every recorded generation with a header row.
func (s *Statistics) WriteCSV(w io.Writer) error {
	if err := gocsv.Marshal(s.Generations, w); err != nil {
		return fmt.Errorf("writing statistics: %w", err)
	}
	return nil
}

// SaveCSV writes the statistics to path, creating its directory.
func (s *Statistics) SaveCSV(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating statistics directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	return s.WriteCSV(f)
}

// LoadStatisticsCSV reads statistics written by SaveCSV.
func LoadStatisticsCSV(path string) (*Statistics, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []GenerationStats
	if err := gocsv.Unmarshal(f, &rows); err != nil {
		return nil, fmt.Errorf("reading statistics: %w", err)
	}
	return &Statistics{Generations: rows}, nil
}
