package neat

import (
	"cmp"
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Genome is the evolvable graph genotype of one individual. Input and output
// nodes are fixed by the config's arity; hidden nodes and links evolve.
//
// A Genome is owned by one caller at a time and is not safe for concurrent
// use. Only its State is shared.
type Genome struct {
	Key int

	config *GenomeConfig
	state  *State
	family Family
	isSafe bool

	nodes map[NodeRef]*NodeGene
	links map[LinkRef]*Link
	out   map[NodeRef]map[NodeRef]*Link // adjacency: from -> to -> link
	in    map[NodeRef]map[NodeRef]*Link // adjacency: to -> from -> link
}

// GenomeOptions carries the per-genome collaborators of CreateGenome.
type GenomeOptions struct {
	Key    int
	Family Family // Defaults to NEATFamily
	Rand   RNG    // Used only to build an initial topology
}

// --------------------------- Initial topology ---------------------------

// InitTopology describes the links of a freshly created genome.
type InitTopology struct {
	Kind     string  // unconnected, full, full_direct, partial or partial_direct
	Fraction float64 // Connection probability for the partial kinds
}

var (
	Unconnected    = InitTopology{Kind: "unconnected"}
	FullyConnected = InitTopology{Kind: "full", Fraction: 1}
)

// ParseInitTopology reads the initial_connection config value, e.g. "full" or "partial 0.5".
func ParseInitTopology(s string) (InitTopology, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Unconnected, nil
	}
	t := InitTopology{Kind: fields[0], Fraction: 1}
	switch t.Kind {
	case "unconnected", "full", "full_direct":
		if len(fields) > 1 {
			return InitTopology{}, fmt.Errorf("initial_connection '%s' takes no argument", t.Kind)
		}
	case "partial", "partial_direct":
		if len(fields) != 2 {
			return InitTopology{}, fmt.Errorf("initial_connection '%s' needs a connection fraction", t.Kind)
		}
		f, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || f < 0 || f > 1 {
			return InitTopology{}, fmt.Errorf("invalid connection fraction '%s' for '%s'", fields[1], t.Kind)
		}
		t.Fraction = f
	default:
		return InitTopology{}, fmt.Errorf("invalid initial_connection type '%s'", t.Kind)
	}
	return t, nil
}

// --------------------------- Construction ---------------------------

// CreateGenome builds a genome. With factory options it rehydrates exactly that
// structure, registering every link with the innovation log; otherwise it lays
// out init over the config's inputs, outputs and initial hidden nodes.
func CreateGenome(config *GenomeConfig, state *State, opts GenomeOptions, init InitTopology, factory *FactoryOptions) (*Genome, error) {
	if config == nil || state == nil {
		return nil, errors.New("create genome: config and state are required")
	}
	g := newGenome(opts.Key, config, state, opts.Family)

	if factory != nil {
		if err := g.load(factory); err != nil {
			return nil, fmt.Errorf("create genome %d: %w", opts.Key, err)
		}
		return g, nil
	}

	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(int64(opts.Key)))
	}
	if err := g.configureNew(init, rng); err != nil {
		return nil, fmt.Errorf("create genome %d: %w", opts.Key, err)
	}
	return g, nil
}

// newGenome creates a genome holding only its input and output nodes.
func newGenome(key int, config *GenomeConfig, state *State, family Family) *Genome {
	if family == nil {
		family = NEATFamily{}
	}
	g := &Genome{
		Key:    key,
		config: config,
		state:  state,
		family: family,
		nodes:  make(map[NodeRef]*NodeGene, config.NumInputs+config.NumOutputs),
		links:  make(map[LinkRef]*Link),
		out:    make(map[NodeRef]map[NodeRef]*Link),
		in:     make(map[NodeRef]map[NodeRef]*Link),
	}
	for i := 0; i < config.NumInputs; i++ {
		ref := Input(i)
		g.nodes[ref] = family.NewNode(ref, config)
	}
	for i := 0; i < config.NumOutputs; i++ {
		ref := Output(i)
		g.nodes[ref] = family.NewNode(ref, config)
	}
	return g
}

func (g *Genome) load(factory *FactoryOptions) error {
	g.isSafe = factory.IsSafe
	for _, id := range factory.HiddenNodes {
		g.state.RegisterHidden(id)
		if err := g.addNode(Hidden(id)); err != nil {
			return err
		}
	}
	for _, lo := range factory.Links {
		link := Link{From: lo.From, To: lo.To, Weight: lo.Weight, Innovation: lo.Innovation}
		// Endpoints are checked before the log sees the pair, so a malformed
		// link never leaves a registration behind.
		if err := g.checkLink(link.Ref()); err != nil {
			return fmt.Errorf("link %s: %w", link.Ref(), err)
		}
		if err := g.state.RegisterLink(lo.From, lo.To, lo.Innovation); err != nil {
			return err
		}
		if err := g.InsertLink(link, factory.IsSafe); err != nil {
			return err
		}
	}
	if factory.IsSafe && !g.config.TrustSafeGenomes {
		if err := g.validateAcyclic(); err != nil {
			return err
		}
	}
	return nil
}

// configureNew lays out the initial topology.
func (g *Genome) configureNew(init InitTopology, rng RNG) error {
	hidden := g.state.InitialHiddenIDs(g.config.NumHidden)
	for _, id := range hidden {
		if err := g.addNode(Hidden(id)); err != nil {
			return err
		}
	}

	inputs := g.refsOfKind(InputNode)
	outputs := g.refsOfKind(OutputNode)
	hiddenRefs := g.refsOfKind(HiddenNode)

	var pairs []LinkRef
	connect := func(from, to []NodeRef) {
		for _, f := range from {
			for _, t := range to {
				pairs = append(pairs, LinkRef{From: f, To: t})
			}
		}
	}
	switch init.Kind {
	case "", "unconnected":
		return nil
	case "full", "partial":
		if len(hiddenRefs) == 0 {
			connect(inputs, outputs)
		} else {
			connect(inputs, hiddenRefs)
			connect(hiddenRefs, outputs)
		}
	case "full_direct", "partial_direct":
		connect(inputs, hiddenRefs)
		connect(hiddenRefs, outputs)
		connect(inputs, outputs)
	default:
		return fmt.Errorf("invalid initial topology '%s'", init.Kind)
	}

	partial := strings.HasPrefix(init.Kind, "partial")
	for _, p := range pairs {
		if partial && rng.Float64() >= init.Fraction {
			continue
		}
		innov, err := g.state.ConnectInnovation(p.From, p.To)
		if err != nil {
			return err
		}
		weight := uniform(rng, -g.config.InitialLinkWeightSize, g.config.InitialLinkWeightSize)
		if err := g.InsertLink(Link{From: p.From, To: p.To, Weight: weight, Innovation: innov}, true); err != nil {
			return err
		}
	}
	return nil
}

// validateAcyclic checks the whole link set for cycles in one pass.
func (g *Genome) validateAcyclic() error {
	dg := simple.NewDirectedGraph()
	ids := make(map[NodeRef]int64, len(g.nodes))
	for i, ref := range g.sortedNodeRefs() {
		ids[ref] = int64(i)
		dg.AddNode(simple.Node(i))
	}
	for ref := range g.links {
		dg.SetEdge(dg.NewEdge(simple.Node(ids[ref.From]), simple.Node(ids[ref.To])))
	}
	if _, err := topo.Sort(dg); err != nil {
		var unorderable topo.Unorderable
		if errors.As(err, &unorderable) {
			return fmt.Errorf("genome %d has %d cyclic component(s): %w", g.Key, len(unorderable), ErrCycle)
		}
		return err
	}
	return nil
}

// --------------------------- Accessors ---------------------------

// Config returns the genome's configuration.
func (g *Genome) Config() *GenomeConfig { return g.config }

// State returns the innovation log the genome mutates against.
func (g *Genome) State() *State { return g.state }

// Family returns the node factory of the genome.
func (g *Genome) Family() Family { return g.family }

// IsSafe reports whether the genome was loaded with the IsSafe flag.
func (g *Genome) IsSafe() bool { return g.isSafe }

func (g *Genome) NumInputs() int  { return g.config.NumInputs }
func (g *Genome) NumOutputs() int { return g.config.NumOutputs }
func (g *Genome) NumNodes() int   { return len(g.nodes) }
func (g *Genome) NumLinks() int   { return len(g.links) }

// Node returns the gene of ref.
func (g *Genome) Node(ref NodeRef) (*NodeGene, bool) {
	n, ok := g.nodes[ref]
	return n, ok
}

// Nodes returns every node gene in NodeRef order.
func (g *Genome) Nodes() []*NodeGene {
	nodes := make([]*NodeGene, 0, len(g.nodes))
	for _, ref := range g.sortedNodeRefs() {
		nodes = append(nodes, g.nodes[ref])
	}
	return nodes
}

// HiddenNodes returns the sorted hidden node ids.
func (g *Genome) HiddenNodes() []int {
	ids := make([]int, 0, len(g.nodes))
	for ref := range g.nodes {
		if ref.Kind == HiddenNode {
			ids = append(ids, ref.ID)
		}
	}
	slices.Sort(ids)
	return ids
}

// Link returns the live link between from and to.
func (g *Genome) Link(from, to NodeRef) (*Link, bool) {
	l, ok := g.links[LinkRef{From: from, To: to}]
	return l, ok
}

// Links returns every link ordered by innovation.
func (g *Genome) Links() []*Link {
	links := make([]*Link, 0, len(g.links))
	for _, l := range g.links {
		links = append(links, l)
	}
	slices.SortFunc(links, func(a, b *Link) int { return cmp.Compare(a.Innovation, b.Innovation) })
	return links
}

// Outgoing returns the links leaving ref ordered by target.
func (g *Genome) Outgoing(ref NodeRef) []*Link {
	return sortedByNode(g.out[ref], func(l *Link) NodeRef { return l.To })
}

// Incoming returns the links entering ref ordered by source.
func (g *Genome) Incoming(ref NodeRef) []*Link {
	return sortedByNode(g.in[ref], func(l *Link) NodeRef { return l.From })
}

func sortedByNode(m map[NodeRef]*Link, key func(*Link) NodeRef) []*Link {
	links := make([]*Link, 0, len(m))
	for _, l := range m {
		links = append(links, l)
	}
	slices.SortFunc(links, func(a, b *Link) int { return key(a).Compare(key(b)) })
	return links
}

func (g *Genome) sortedNodeRefs() []NodeRef {
	refs := make([]NodeRef, 0, len(g.nodes))
	for ref := range g.nodes {
		refs = append(refs, ref)
	}
	slices.SortFunc(refs, NodeRef.Compare)
	return refs
}

func (g *Genome) refsOfKind(kind NodeKind) []NodeRef {
	var refs []NodeRef
	for _, ref := range g.sortedNodeRefs() {
		if ref.Kind == kind {
			refs = append(refs, ref)
		}
	}
	return refs
}

// String returns a string representation of the Genome.
func (g *Genome) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Genome(Key: %d, Nodes: %d, Links: %d)", g.Key, len(g.nodes), len(g.links))
	for _, l := range g.Links() {
		b.WriteString("\n  ")
		b.WriteString(l.String())
	}
	return b.String()
}

// --------------------------- Structural primitives ---------------------------

func (g *Genome) addNode(ref NodeRef) error {
	if _, exists := g.nodes[ref]; exists {
		return fmt.Errorf("node %s: %w", ref, ErrDuplicateNode)
	}
	g.nodes[ref] = g.family.NewNode(ref, g.config)
	return nil
}

// checkLink applies the structural rules every link must satisfy, except acyclicity.
func (g *Genome) checkLink(ref LinkRef) error {
	if _, ok := g.nodes[ref.From]; !ok {
		return fmt.Errorf("source %s: %w", ref.From, ErrNodeNotFound)
	}
	if _, ok := g.nodes[ref.To]; !ok {
		return fmt.Errorf("target %s: %w", ref.To, ErrNodeNotFound)
	}
	switch {
	case ref.From == ref.To:
		return fmt.Errorf("self-loop on %s: %w", ref.From, ErrInvalidLink)
	case ref.To.Kind == InputNode:
		return fmt.Errorf("link into input %s: %w", ref.To, ErrInvalidLink)
	case ref.From.Kind == OutputNode && ref.To.Kind == OutputNode:
		return fmt.Errorf("output to output link %s: %w", ref, ErrInvalidLink)
	}
	if _, exists := g.links[ref]; exists {
		return fmt.Errorf("link %s: %w", ref, ErrDuplicateLink)
	}
	return nil
}

// InsertLink adds link to the genome. Unless skipCycleCheck is set it fails
// with ErrCycle when link.To already reaches link.From.
func (g *Genome) InsertLink(link Link, skipCycleCheck bool) error {
	ref := link.Ref()
	if err := g.checkLink(ref); err != nil {
		return err
	}
	if !skipCycleCheck && g.reaches(link.To, link.From) {
		return fmt.Errorf("link %s: %w", ref, ErrCycle)
	}
	l := link.Copy()
	g.links[ref] = l
	if g.out[ref.From] == nil {
		g.out[ref.From] = make(map[NodeRef]*Link)
	}
	g.out[ref.From][ref.To] = l
	if g.in[ref.To] == nil {
		g.in[ref.To] = make(map[NodeRef]*Link)
	}
	g.in[ref.To][ref.From] = l
	return nil
}

// RemoveLink deletes the link between from and to.
func (g *Genome) RemoveLink(from, to NodeRef) error {
	ref := LinkRef{From: from, To: to}
	if _, ok := g.links[ref]; !ok {
		return fmt.Errorf("link %s: %w", ref, ErrLinkNotFound)
	}
	delete(g.links, ref)
	delete(g.out[from], to)
	if len(g.out[from]) == 0 {
		delete(g.out, from)
	}
	delete(g.in[to], from)
	if len(g.in[to]) == 0 {
		delete(g.in, to)
	}
	return nil
}

// RemoveNode deletes a hidden node and every link touching it. Neighbours are
// left as they are; no re-wiring happens. Inputs and outputs cannot be removed.
func (g *Genome) RemoveNode(ref NodeRef) error {
	if ref.Kind != HiddenNode {
		return fmt.Errorf("remove %s: %w", ref, ErrInvalidNode)
	}
	if _, ok := g.nodes[ref]; !ok {
		return fmt.Errorf("node %s: %w", ref, ErrNodeNotFound)
	}
	for _, l := range g.Outgoing(ref) {
		if err := g.RemoveLink(l.From, l.To); err != nil {
			return err
		}
	}
	for _, l := range g.Incoming(ref) {
		if err := g.RemoveLink(l.From, l.To); err != nil {
			return err
		}
	}
	delete(g.nodes, ref)
	return nil
}

// SplitLink replaces the link from->to with a hidden node and two links of
// weight 1.0. The node id and both innovations come from the innovation log,
// so every genome splitting the same link gets the same identifiers.
func (g *Genome) SplitLink(from, to NodeRef) (NodeRef, error) {
	link, ok := g.Link(from, to)
	if !ok {
		return NodeRef{}, fmt.Errorf("split %s: %w", LinkRef{From: from, To: to}, ErrLinkNotFound)
	}
	rec, err := g.state.SplitInnovation(link.Innovation)
	if err != nil {
		return NodeRef{}, fmt.Errorf("split %s: %w", link.Ref(), err)
	}
	node := Hidden(rec.NodeID)
	if _, exists := g.nodes[node]; exists {
		return NodeRef{}, fmt.Errorf("split %s: node %s: %w", link.Ref(), node, ErrDuplicateNode)
	}

	if err := g.RemoveLink(from, to); err != nil {
		return NodeRef{}, err
	}
	if err := g.addNode(node); err != nil {
		return NodeRef{}, err
	}
	// Both halves follow an existing acyclic edge through a brand new node.
	if err := g.InsertLink(Link{From: from, To: node, Weight: 1.0, Innovation: rec.InInnovation}, true); err != nil {
		return NodeRef{}, err
	}
	if err := g.InsertLink(Link{From: node, To: to, Weight: 1.0, Innovation: rec.OutInnovation}, true); err != nil {
		return NodeRef{}, err
	}
	return node, nil
}

// reaches reports whether target is reachable from start along links.
func (g *Genome) reaches(start, target NodeRef) bool {
	if start == target {
		return true
	}
	visited := map[NodeRef]bool{start: true}
	stack := []NodeRef{start}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for next := range g.out[current] {
			if next == target {
				return true
			}
			if !visited[next] {
				visited[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}

// --------------------------- Serialization ---------------------------

// ToFactoryOptions serializes the genome's structure. CreateGenome with the
// result rebuilds an identical genome.
func (g *Genome) ToFactoryOptions() FactoryOptions {
	opts := FactoryOptions{
		HiddenNodes: g.HiddenNodes(),
		Links:       make([]LinkOption, 0, len(g.links)),
		IsSafe:      g.isSafe,
	}
	for _, l := range g.Links() {
		opts.Links = append(opts.Links, LinkOption{From: l.From, To: l.To, Weight: l.Weight, Innovation: l.Innovation})
	}
	return opts
}

// Clone returns a deep copy under a new key, sharing config, state and family.
func (g *Genome) Clone(key int) *Genome {
	c := newGenome(key, g.config, g.state, g.family)
	c.isSafe = g.isSafe
	for ref, n := range g.nodes {
		c.nodes[ref] = n.Copy()
	}
	for _, l := range g.links {
		// The source genome already satisfies every insert rule.
		_ = c.InsertLink(*l, true)
	}
	return c
}
