package neat

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
)

// Crossover recombines two parents into a new genome with the given key.
// Links are aligned by innovation number: matching links get the mean of both
// weights, links present only in the fitter parent are copied, and links only
// in the weaker parent are dropped. On equal fitness every non-matching link is
// inherited with probability 1/2 and inserted with the cycle check; a link that
// would close a cycle is skipped.
func Crossover(key int, a, b *Genome, fitnessA, fitnessB float64, rng RNG) (*Genome, error) {
	if a.state != b.state {
		return nil, fmt.Errorf("crossover %d x %d: parents use different innovation logs: %w", a.Key, b.Key, ErrCrossoverMismatch)
	}
	// Keep a as the fitter parent.
	if fitnessB > fitnessA {
		a, b = b, a
		fitnessA, fitnessB = fitnessB, fitnessA
	}
	equal := fitnessA == fitnessB

	byInnovA := indexByInnovation(a)
	byInnovB := indexByInnovation(b)

	var inherited []Link
	for _, innov := range unionInnovations(byInnovA, byInnovB) {
		la, inA := byInnovA[innov]
		lb, inB := byInnovB[innov]
		switch {
		case inA && inB:
			if la.From != lb.From || la.To != lb.To {
				return nil, fmt.Errorf("innovation %d is %s in genome %d but %s in genome %d: %w",
					innov, la.Ref(), a.Key, lb.Ref(), b.Key, ErrCrossoverMismatch)
			}
			l := *la
			l.Weight = (la.Weight + lb.Weight) / 2
			inherited = append(inherited, l)
		case inA:
			if !equal || coin(rng, 0.5) {
				inherited = append(inherited, *la)
			}
		case inB:
			if equal && coin(rng, 0.5) {
				inherited = append(inherited, *lb)
			}
		}
	}

	child := newGenome(key, a.config, a.state, a.family)
	for _, l := range inherited {
		// A link with a fresh endpoint cannot close a cycle, so nodes are only
		// added for links that are actually inserted.
		if err := child.InsertLink(l, false); err != nil {
			if errors.Is(err, ErrCycle) {
				continue
			}
			if !errors.Is(err, ErrNodeNotFound) {
				return nil, fmt.Errorf("crossover %d x %d: %w", a.Key, b.Key, err)
			}
			for _, ref := range []NodeRef{l.From, l.To} {
				if _, ok := child.nodes[ref]; !ok && ref.Kind == HiddenNode {
					child.nodes[ref] = inheritNode(ref, a, b)
				}
			}
			if err := child.InsertLink(l, false); err != nil {
				return nil, fmt.Errorf("crossover %d x %d: %w", a.Key, b.Key, err)
			}
		}
	}
	return child, nil
}

// inheritNode copies the node gene from the first parent that holds it.
func inheritNode(ref NodeRef, parents ...*Genome) *NodeGene {
	for _, p := range parents {
		if n, ok := p.nodes[ref]; ok {
			return n.Copy()
		}
	}
	return nil
}

func indexByInnovation(g *Genome) map[int]*Link {
	m := make(map[int]*Link, len(g.links))
	for _, l := range g.links {
		m[l.Innovation] = l
	}
	return m
}

func unionInnovations(a, b map[int]*Link) []int {
	innovs := make([]int, 0, len(a)+len(b))
	for innov := range a {
		innovs = append(innovs, innov)
	}
	for innov := range b {
		if _, ok := a[innov]; !ok {
			innovs = append(innovs, innov)
		}
	}
	slices.Sort(innovs)
	return innovs
}

// Distance returns the compatibility distance of two genomes, a blend of a link
// term and a node term weighted by LinkDistanceWeight.
//
// The link term sums 1 for each link whose innovation only one genome has and
// tanh(|wa-wb|) for each matching link, divided by the number of distinct
// innovations. The node term is the share of nodes held by only one genome.
// With OnlyHiddenNodeDistance only hidden nodes count; otherwise inputs and
// outputs count when they have at least one link.
//
// The distance is symmetric, zero for identical genomes and zero when both
// sets are empty.
func Distance(a, b *Genome) float64 {
	cfg := a.config
	w := cfg.LinkDistanceWeight

	return w*linkDistance(a, b) + (1-w)*nodeDistance(a, b, cfg.OnlyHiddenNodeDistance)
}

func linkDistance(a, b *Genome) float64 {
	byInnovA := indexByInnovation(a)
	byInnovB := indexByInnovation(b)
	union := unionInnovations(byInnovA, byInnovB)
	if len(union) == 0 {
		return 0
	}
	var sum float64
	for _, innov := range union {
		la, inA := byInnovA[innov]
		lb, inB := byInnovB[innov]
		if inA && inB {
			sum += math.Tanh(math.Abs(la.Weight - lb.Weight))
		} else {
			sum += 1
		}
	}
	return sum / float64(len(union))
}

func nodeDistance(a, b *Genome, onlyHidden bool) float64 {
	setA := countedNodes(a, onlyHidden)
	setB := countedNodes(b, onlyHidden)
	union := len(setA)
	mismatched := 0
	for ref := range setA {
		if !setB[ref] {
			mismatched++
		}
	}
	for ref := range setB {
		if !setA[ref] {
			mismatched++
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(mismatched) / float64(union)
}

func countedNodes(g *Genome, onlyHidden bool) map[NodeRef]bool {
	set := make(map[NodeRef]bool, len(g.nodes))
	for ref := range g.nodes {
		switch {
		case ref.Kind == HiddenNode:
			set[ref] = true
		case onlyHidden:
		case len(g.in[ref]) > 0 || len(g.out[ref]) > 0:
			set[ref] = true
		}
	}
	return set
}

// --------------------------- DistanceCache ---------------------------

type genomePair struct{ lo, hi int }

// DistanceCache memoizes Distance by genome key pair for one speciation pass.
// Genome keys must be unique within that pass. It is safe for concurrent use.
type DistanceCache struct {
	mu        sync.Mutex
	distances map[genomePair]float64
	Hits      int
	Misses    int
}

// NewDistanceCache creates an empty cache.
func NewDistanceCache() *DistanceCache {
	return &DistanceCache{distances: make(map[genomePair]float64)}
}

// Distance calculates or retrieves the distance between two genomes.
func (dc *DistanceCache) Distance(a, b *Genome) float64 {
	key := genomePair{lo: a.Key, hi: b.Key}
	if key.lo > key.hi {
		key.lo, key.hi = key.hi, key.lo
	}

	dc.mu.Lock()
	d, ok := dc.distances[key]
	if ok {
		dc.Hits++
	}
	dc.mu.Unlock()
	if ok {
		return d
	}

	d = Distance(a, b)
	dc.mu.Lock()
	dc.Misses++
	dc.distances[key] = d
	dc.mu.Unlock()
	return d
}

// Values returns every cached distance ordered by genome pair.
func (dc *DistanceCache) Values() []float64 {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	keys := make([]genomePair, 0, len(dc.distances))
	for k := range dc.distances {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(x, y genomePair) int {
		return cmp.Or(cmp.Compare(x.lo, y.lo), cmp.Compare(x.hi, y.hi))
	})
	values := make([]float64, len(keys))
	for i, k := range keys {
		values[i] = dc.distances[k]
	}
	return values
}
