package neat

import (
	"errors"
	"fmt"
)

// Mutate applies every mutation operator once, each gated by its configured
// probability: add-node, add-link, remove-link, remove-node, then link
// weights. With SingleStructuralMutation at most one structural operator
// changes the genome. The genome is modified in place.
func (g *Genome) Mutate(rng RNG) error {
	single := g.config.SingleStructuralMutation
	structureMutated := false

	structural := []struct {
		name string
		prob float64
		op   func(RNG) (bool, error)
	}{
		{"add node", g.config.AddNodeProbability, g.MutateAddNode},
		{"add link", g.config.AddLinkProbability, g.MutateAddLink},
		{"remove link", g.config.RemoveLinkProbability, g.MutateRemoveLink},
		{"remove node", g.config.RemoveNodeProbability, g.MutateRemoveNode},
	}
	for _, s := range structural {
		if single && structureMutated {
			break
		}
		if !coin(rng, s.prob) {
			continue
		}
		changed, err := s.op(rng)
		if err != nil {
			return fmt.Errorf("mutate genome %d: %s: %w", g.Key, s.name, err)
		}
		structureMutated = structureMutated || changed
	}

	if coin(rng, g.config.MutateLinkWeightProbability) {
		g.MutateWeights(rng)
	}
	return nil
}

// MutateAddLink connects two nodes that are not linked yet. Candidates are all
// pairs that pass the structural rules; up to AddLinkAttempts uniform picks are
// tried until one does not close a cycle. It reports whether a link was added.
func (g *Genome) MutateAddLink(rng RNG) (bool, error) {
	candidates := g.linkCandidates()
	attempts := max(g.config.AddLinkAttempts, 1)
	for i := 0; i < attempts && len(candidates) > 0; i++ {
		idx := rng.Intn(len(candidates))
		ref := candidates[idx]
		if g.reaches(ref.To, ref.From) {
			// Drop it so the next attempt cannot pick the same pair.
			candidates[idx] = candidates[len(candidates)-1]
			candidates = candidates[:len(candidates)-1]
			continue
		}

		innov, err := g.state.ConnectInnovation(ref.From, ref.To)
		if err != nil {
			return false, err
		}
		size := g.config.InitialLinkWeightSize
		link := Link{From: ref.From, To: ref.To, Weight: uniform(rng, -size, size), Innovation: innov}
		if err := g.InsertLink(link, false); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// linkCandidates lists, in deterministic order, every unlinked pair a link may join.
func (g *Genome) linkCandidates() []LinkRef {
	refs := g.sortedNodeRefs()
	var candidates []LinkRef
	for _, from := range refs {
		for _, to := range refs {
			ref := LinkRef{From: from, To: to}
			if g.checkLink(ref) == nil {
				candidates = append(candidates, ref)
			}
		}
	}
	return candidates
}

// MutateAddNode splits a uniformly chosen link. Links whose split node the
// genome already holds are skipped, since splitting them again would
// duplicate that node. It reports whether a node was added.
func (g *Genome) MutateAddNode(rng RNG) (bool, error) {
	var candidates []*Link
	for _, l := range g.Links() {
		if rec, ok := g.state.LookupSplit(l.Innovation); ok {
			if _, held := g.nodes[Hidden(rec.NodeID)]; held {
				continue
			}
		}
		candidates = append(candidates, l)
	}
	if len(candidates) == 0 {
		return false, nil
	}
	l := candidates[rng.Intn(len(candidates))]
	if _, err := g.SplitLink(l.From, l.To); err != nil {
		if errors.Is(err, ErrDuplicateNode) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// MutateRemoveLink deletes a uniformly chosen link.
func (g *Genome) MutateRemoveLink(rng RNG) (bool, error) {
	links := g.Links()
	if len(links) == 0 {
		return false, nil
	}
	l := links[rng.Intn(len(links))]
	if err := g.RemoveLink(l.From, l.To); err != nil {
		return false, err
	}
	return true, nil
}

// MutateRemoveNode deletes a uniformly chosen hidden node and its links.
func (g *Genome) MutateRemoveNode(rng RNG) (bool, error) {
	hidden := g.HiddenNodes()
	if len(hidden) == 0 {
		return false, nil
	}
	if err := g.RemoveNode(Hidden(hidden[rng.Intn(len(hidden))])); err != nil {
		return false, err
	}
	return true, nil
}

// MutateWeights perturbs or replaces link weights. Each affected link is
// replaced by U(-1,1) with ReplaceLinkWeightProbability, otherwise shifted by
// U(-1,1)*MutateLinkWeightSize. MutateOnlyOneLink limits it to one uniform link.
func (g *Genome) MutateWeights(rng RNG) {
	links := g.Links()
	if len(links) == 0 {
		return
	}
	if g.config.MutateOnlyOneLink {
		i := rng.Intn(len(links))
		links = links[i : i+1]
	}
	for _, l := range links {
		if coin(rng, g.config.ReplaceLinkWeightProbability) {
			l.Weight = uniform(rng, -1, 1)
		} else {
			l.Weight += uniform(rng, -1, 1) * g.config.MutateLinkWeightSize
		}
	}
}
