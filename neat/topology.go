package neat

import "iter"

// ActionKind tags the variant of an Action.
type ActionKind int

const (
	// ActivateNode means every link into Node has been traversed.
	ActivateNode ActionKind = iota
	// TraverseLink means Link's source has been activated.
	TraverseLink
)

func (k ActionKind) String() string {
	if k == ActivateNode {
		return "activate"
	}
	return "link"
}

// Action is one step of a topological traversal.
type Action struct {
	Kind ActionKind
	Node NodeRef // Set for ActivateNode
	Link Link    // Set for TraverseLink
}

// SortTopologically returns a lazy traversal of the genome. Every TraverseLink
// for a->b comes after the ActivateNode of a and before the ActivateNode of b.
//
// Discovery is depth-first from the inputs in id order, following outgoing
// links in target order; a node is activated once its last incoming link has
// been traversed. Nodes the inputs never reach are started afterwards in
// NodeRef order (hidden by id, then outputs by id). Each call starts a fresh
// traversal, so an unmodified genome always yields the same sequence.
//
// Nodes on a cycle are never activated. That can only happen for genomes
// loaded with IsSafe and TrustSafeGenomes; callers that need every node, such
// as the phenotype compiler, count activations to detect it.
func (g *Genome) SortTopologically() iter.Seq[Action] {
	return func(yield func(Action) bool) {
		remaining := make(map[NodeRef]int, len(g.nodes))
		for ref := range g.nodes {
			remaining[ref] = len(g.in[ref])
		}
		visited := make(map[NodeRef]bool, len(g.nodes))

		type frame struct {
			links []*Link
			next  int
		}

		visit := func(start NodeRef) bool {
			visited[start] = true
			if !yield(Action{Kind: ActivateNode, Node: start}) {
				return false
			}
			stack := []frame{{links: g.Outgoing(start)}}
			for len(stack) > 0 {
				top := &stack[len(stack)-1]
				if top.next == len(top.links) {
					stack = stack[:len(stack)-1]
					continue
				}
				l := top.links[top.next]
				top.next++

				if !yield(Action{Kind: TraverseLink, Link: *l}) {
					return false
				}
				remaining[l.To]--
				if remaining[l.To] == 0 && !visited[l.To] {
					visited[l.To] = true
					if !yield(Action{Kind: ActivateNode, Node: l.To}) {
						return false
					}
					stack = append(stack, frame{links: g.Outgoing(l.To)})
				}
			}
			return true
		}

		for _, ref := range g.sortedNodeRefs() {
			if visited[ref] || remaining[ref] != 0 {
				continue
			}
			if !visit(ref) {
				return
			}
		}
	}
}

// TopologicalOrder collects the activation order of SortTopologically.
func (g *Genome) TopologicalOrder() []NodeRef {
	order := make([]NodeRef, 0, len(g.nodes))
	for a := range g.SortTopologically() {
		if a.Kind == ActivateNode {
			order = append(order, a.Node)
		}
	}
	return order
}
