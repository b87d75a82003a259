// Package nn compiles genomes into flat feed-forward programs and runs them.
package nn

import (
	"fmt"
	"iter"

	"github.com/baldhumanity/neatgraph/neat"
)

// Genotype is what the compiler needs from a genome. *neat.Genome implements it.
type Genotype interface {
	NumInputs() int
	NumOutputs() int
	NumNodes() int
	Node(ref neat.NodeRef) (*neat.NodeGene, bool)
	SortTopologically() iter.Seq[neat.Action]
}

// ActionKind tags the variant of an Action.
type ActionKind uint8

const (
	// ActionLink adds Weight times value[From] to value[To].
	ActionLink ActionKind = iota
	// ActionActivation sets value[Node] to Activation(value[Node] + Bias).
	ActionActivation
)

func (k ActionKind) String() string {
	if k == ActionLink {
		return "Link"
	}
	return "Activation"
}

// Action is one instruction of a Program. From, To and Weight are set for
// ActionLink; Node, Bias and Activation for ActionActivation.
type Action struct {
	Kind       ActionKind `json:"kind"`
	From       int        `json:"from,omitempty"`
	To         int        `json:"to,omitempty"`
	Weight     float64    `json:"weight,omitempty"`
	Node       int        `json:"node,omitempty"`
	Bias       float64    `json:"bias,omitempty"`
	Activation string     `json:"activation,omitempty"`
}

func (a Action) String() string {
	if a.Kind == ActionLink {
		return fmt.Sprintf("Link(%d -> %d, %.3f)", a.From, a.To, a.Weight)
	}
	return fmt.Sprintf("Activation(%d, %s, %.3f)", a.Node, a.Activation, a.Bias)
}

// Program is a compiled phenotype. Values live in a dense array of Length
// slots: inputs at 0..len(Inputs)-1, hidden nodes after them in the order the
// compiler met them, and outputs in the trailing block ordered by id.
type Program struct {
	Length  int      `json:"length"`
	Inputs  []int    `json:"inputs"`
	Outputs []int    `json:"outputs"`
	Actions []Action `json:"actions"`

	fns []neat.ActivationFunc // Resolved activation per action, nil for links
}

// Compile flattens a genome into a Program. Actions follow the genome's
// topological traversal, so every link runs after its source's activation and
// before its target's. Compiling an unchanged genome yields an identical
// program.
func Compile(g Genotype) (*Program, error) {
	numInputs, numOutputs, numNodes := g.NumInputs(), g.NumOutputs(), g.NumNodes()
	p := &Program{
		Length:  numNodes,
		Inputs:  make([]int, numInputs),
		Outputs: make([]int, numOutputs),
	}
	for i := range p.Inputs {
		p.Inputs[i] = i
	}
	firstOutput := numNodes - numOutputs
	for i := range p.Outputs {
		p.Outputs[i] = firstOutput + i
	}

	hidden := make(map[int]int)
	index := func(ref neat.NodeRef) (int, error) {
		switch ref.Kind {
		case neat.InputNode:
			return ref.ID, nil
		case neat.OutputNode:
			return firstOutput + ref.ID, nil
		}
		if idx, ok := hidden[ref.ID]; ok {
			return idx, nil
		}
		idx := numInputs + len(hidden)
		if idx >= firstOutput {
			return 0, fmt.Errorf("hidden node %s overflows %d nodes", ref, numNodes)
		}
		hidden[ref.ID] = idx
		return idx, nil
	}

	activated := 0
	for a := range g.SortTopologically() {
		switch a.Kind {
		case neat.TraverseLink:
			from, err := index(a.Link.From)
			if err != nil {
				return nil, err
			}
			to, err := index(a.Link.To)
			if err != nil {
				return nil, err
			}
			p.Actions = append(p.Actions, Action{Kind: ActionLink, From: from, To: to, Weight: a.Link.Weight})
			p.fns = append(p.fns, nil)
		case neat.ActivateNode:
			node, ok := g.Node(a.Node)
			if !ok {
				return nil, fmt.Errorf("compile: %s: %w", a.Node, neat.ErrNodeNotFound)
			}
			fn, err := neat.GetActivation(node.Activation)
			if err != nil {
				return nil, fmt.Errorf("compile: node %s: %w", a.Node, err)
			}
			idx, err := index(a.Node)
			if err != nil {
				return nil, err
			}
			p.Actions = append(p.Actions, Action{Kind: ActionActivation, Node: idx, Bias: node.Bias, Activation: node.Activation})
			p.fns = append(p.fns, fn)
			activated++
		}
	}
	if activated != numNodes {
		return nil, fmt.Errorf("compile: activated %d of %d nodes: %w", activated, numNodes, neat.ErrCycle)
	}
	return p, nil
}

// Activate runs the program on one input vector and returns the output values.
func (p *Program) Activate(inputs []float64) ([]float64, error) {
	if len(inputs) != len(p.Inputs) {
		return nil, fmt.Errorf("expected %d inputs, got %d", len(p.Inputs), len(inputs))
	}
	fns := p.fns
	if len(fns) != len(p.Actions) {
		var err error
		if fns, err = p.resolve(); err != nil {
			return nil, err
		}
	}

	values := make([]float64, p.Length)
	for i, idx := range p.Inputs {
		values[idx] = inputs[i]
	}
	for i, a := range p.Actions {
		if a.Kind == ActionLink {
			values[a.To] += values[a.From] * a.Weight
			continue
		}
		values[a.Node] = fns[i](values[a.Node] + a.Bias)
	}

	outputs := make([]float64, len(p.Outputs))
	for i, idx := range p.Outputs {
		outputs[i] = values[idx]
	}
	return outputs, nil
}

// resolve looks up the activation functions of a program that was not built
// by Compile, e.g. one decoded from JSON.
func (p *Program) resolve() ([]neat.ActivationFunc, error) {
	fns := make([]neat.ActivationFunc, len(p.Actions))
	for i, a := range p.Actions {
		if a.Kind != ActionActivation {
			continue
		}
		fn, err := neat.GetActivation(a.Activation)
		if err != nil {
			return nil, err
		}
		fns[i] = fn
	}
	return fns, nil
}
