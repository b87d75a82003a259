package neat

import (
	"encoding/json"
	"fmt"
)

// --------------------------- NodeGene ---------------------------

// NodeGene is a node (neuron) of a genome. Bias and Activation are filled in by
// the genome's Family; the core engine only relies on Ref.
type NodeGene struct {
	Ref        NodeRef
	Bias       float64
	Activation string // Name of the activation function
}

// String returns a string representation of the NodeGene.
func (ng *NodeGene) String() string {
	return fmt.Sprintf("NodeGene(%s, Bias: %.3f, Activation: %s)", ng.Ref, ng.Bias, ng.Activation)
}

// Copy creates a deep copy of the NodeGene.
func (ng *NodeGene) Copy() *NodeGene {
	c := *ng
	return &c
}

// --------------------------- Link ---------------------------

// Link is a weighted connection gene. Innovation is shared by every link ever
// created between the same (From, To) pair in one lineage; crossover aligns
// genes on it.
type Link struct {
	From       NodeRef
	To         NodeRef
	Weight     float64
	Innovation int
}

// Ref returns the link's endpoint pair.
func (l *Link) Ref() LinkRef { return LinkRef{From: l.From, To: l.To} }

// String returns a string representation of the Link.
func (l *Link) String() string {
	return fmt.Sprintf("Link(%s -> %s, Weight: %.3f, Innovation: %d)", l.From, l.To, l.Weight, l.Innovation)
}

// Copy creates a deep copy of the Link.
func (l *Link) Copy() *Link {
	c := *l
	return &c
}

// --------------------------- Family ---------------------------

// Family supplies the algorithm-specific parts of a genome. NEAT, CPPN and
// HyperNEAT style algorithms share the engine and differ only here.
type Family interface {
	Name() string
	// NewNode builds the gene for a node the engine is about to add. It is
	// also called for every node of a rehydrated genome, so any bias or
	// activation it picks must be a function of ref and config alone.
	NewNode(ref NodeRef, config *GenomeConfig) *NodeGene
}

// NEATFamily is the plain NEAT node factory: zero bias, activation by node kind.
type NEATFamily struct{}

func (NEATFamily) Name() string { return "neat" }

func (NEATFamily) NewNode(ref NodeRef, config *GenomeConfig) *NodeGene {
	ng := &NodeGene{Ref: ref}
	switch ref.Kind {
	case InputNode:
		ng.Activation = config.InputActivation
	case HiddenNode:
		ng.Activation = config.HiddenActivation
	case OutputNode:
		ng.Activation = config.OutputActivation
	}
	if ng.Activation == "" {
		ng.Activation = "identity"
	}
	return ng
}

// --------------------------- Factory options ---------------------------

// FactoryOptions is the serialized structure of a genome: hidden node ids and
// links. It is the format used for persistence and cross-worker transfer, and
// Genome.ToFactoryOptions is its exact inverse.
type FactoryOptions struct {
	HiddenNodes []int        `json:"hiddenNodes"`
	Links       []LinkOption `json:"links"`
	// IsSafe asserts the links are known to be acyclic, skipping per-link
	// cycle checks while loading.
	IsSafe bool `json:"isSafe"`
}

// LinkOption is one serialized link. In JSON it is the tuple
// [from, to, weight, innovation] with node keys for the endpoints.
type LinkOption struct {
	From       NodeRef
	To         NodeRef
	Weight     float64
	Innovation int
}

func (lo LinkOption) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]any{lo.From.Key(), lo.To.Key(), lo.Weight, lo.Innovation})
}

func (lo *LinkOption) UnmarshalJSON(data []byte) error {
	var raw [4]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("link option: %w", err)
	}
	var from, to string
	if err := json.Unmarshal(raw[0], &from); err != nil {
		return fmt.Errorf("link option from: %w", err)
	}
	if err := json.Unmarshal(raw[1], &to); err != nil {
		return fmt.Errorf("link option to: %w", err)
	}
	var err error
	if lo.From, err = ParseNodeKey(from); err != nil {
		return err
	}
	if lo.To, err = ParseNodeKey(to); err != nil {
		return err
	}
	if err := json.Unmarshal(raw[2], &lo.Weight); err != nil {
		return fmt.Errorf("link option weight: %w", err)
	}
	if err := json.Unmarshal(raw[3], &lo.Innovation); err != nil {
		return fmt.Errorf("link option innovation: %w", err)
	}
	return nil
}
