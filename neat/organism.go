package neat

import (
	"cmp"
	"context"
	"fmt"
	"slices"
)

// Organism is a genome taking part in evolution together with the scores the
// population assigns it. Its Key is the key of its genome.
type Organism struct {
	Key             int
	Genome          *Genome
	Fitness         float64
	AdjustedFitness float64
	Generation      int // Generation the organism was born in
	SpeciesID       int // 0 until speciated
}

// NewOrganism wraps a genome born in the given generation.
func NewOrganism(g *Genome, generation int) *Organism {
	return &Organism{Key: g.Key, Genome: g, Generation: generation}
}

func (o *Organism) String() string {
	return fmt.Sprintf("Organism(Key: %d, Fitness: %.4f, Species: %d, Nodes: %d, Links: %d)",
		o.Key, o.Fitness, o.SpeciesID, o.Genome.NumNodes(), o.Genome.NumLinks())
}

// FitnessFunc evaluates a generation. It must set Fitness on every organism.
// Organisms are passed in key order.
type FitnessFunc func(ctx context.Context, organisms []*Organism) error

// sortOrganisms orders organisms by key.
func sortOrganisms(organisms []*Organism) {
	slices.SortFunc(organisms, func(a, b *Organism) int { return cmp.Compare(a.Key, b.Key) })
}

// byFitnessDesc orders by fitness, best first, with keys breaking ties.
func byFitnessDesc(a, b *Organism) int {
	return cmp.Or(cmp.Compare(b.Fitness, a.Fitness), cmp.Compare(a.Key, b.Key))
}
