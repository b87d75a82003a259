package neat

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// RNG is the source of randomness injected into every stochastic operation.
// *math/rand.Rand satisfies it, so a seeded generator makes runs reproducible.
type RNG interface {
	Float64() float64
	Intn(n int) int
}

// uniform draws from U(lo, hi).
func uniform(rng RNG, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// coin returns true with probability p.
func coin(rng RNG, p float64) bool {
	return p > 0 && rng.Float64() < p
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

// Summary statistics over fitness values. Empty input yields 0 for Mean,
// Stdev and Sum, -Inf/+Inf for MaxFloat/MinFloat and NaN for Median.

func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	return stat.Mean(values, nil)
}

// Stdev is the sample standard deviation.
func Stdev(values []float64) float64 {
	if len(values) < 2 {
		return 0.0
	}
	return stat.StdDev(values, nil)
}

func Sum(values []float64) float64 {
	return floats.Sum(values)
}

func MaxFloat(values []float64) float64 {
	if len(values) == 0 {
		return math.Inf(-1)
	}
	return floats.Max(values)
}

func MinFloat(values []float64) float64 {
	if len(values) == 0 {
		return math.Inf(1)
	}
	return floats.Min(values)
}

// Median averages the two middle values of an even-length slice.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	mid := n / 2
	if n%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2.0
}

// StatFunctions resolves StagnationConfig.SpeciesFitnessFunc.
var StatFunctions = map[string]func([]float64) float64{
	"mean":   Mean,
	"stdev":  Stdev,
	"sum":    Sum,
	"max":    MaxFloat,
	"min":    MinFloat,
	"median": Median,
}
