package neat

import (
	"fmt"
	"math"
	"slices"
)

// ActivationFunc maps a node's summed input (bias included) to its output.
type ActivationFunc func(x float64) float64

// ActivationFunctions maps function names to the actual activation functions.
// Config values and compiled programs refer to activations by these names.
var ActivationFunctions = map[string]ActivationFunc{
	"sigmoid":  Sigmoid,
	"tanh":     math.Tanh,
	"relu":     ReLU,
	"identity": Identity,
	"clamped":  Clamped,
	"gaussian": Gaussian,
	"absolute": math.Abs,
	"abs":      math.Abs,
	"sine":     math.Sin,
	"cosine":   math.Cos,
	"inv":      Inv,
	"log":      Log,
	"exp":      Exp,
	"hat":      Hat,
	"square":   Square,
	"cube":     Cube,
	"step":     Step,
}

// GetActivation retrieves an activation function by name.
func GetActivation(name string) (ActivationFunc, error) {
	if fn, ok := ActivationFunctions[name]; ok {
		return fn, nil
	}
	return nil, fmt.Errorf("unknown activation function: %s", name)
}

// ActivationNames lists the registered names in sorted order.
func ActivationNames() []string {
	names := make([]string, 0, len(ActivationFunctions))
	for name := range ActivationFunctions {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Sigmoid is the steepened logistic 1/(1+e^(-4.9x)) from the original NEAT paper.
func Sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-4.9*clamp(x, -60, 60)))
}

func ReLU(x float64) float64     { return math.Max(0, x) }
func Identity(x float64) float64 { return x }
func Clamped(x float64) float64  { return clamp(x, -1.0, 1.0) }
func Gaussian(x float64) float64 { return math.Exp(-x * x / 2.0) }
func Hat(x float64) float64      { return math.Max(0.0, 1.0-math.Abs(x)) }
func Square(x float64) float64   { return x * x }
func Cube(x float64) float64     { return x * x * x }

// Inv returns 1/x, and 0 at x == 0.
func Inv(x float64) float64 {
	if x == 0.0 {
		return 0.0
	}
	return 1.0 / x
}

// Log is the natural logarithm with its input floored at 1e-9.
func Log(x float64) float64 {
	return math.Log(math.Max(1e-9, x))
}

// Exp is e^x with x clamped to [-60, 60] to avoid overflow.
func Exp(x float64) float64 {
	return math.Exp(clamp(x, -60.0, 60.0))
}

// Step is the Heaviside step with Step(0) == 0.
func Step(x float64) float64 {
	if x > 0 {
		return 1
	}
	return 0
}
