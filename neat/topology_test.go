package neat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectActions(g *Genome) []Action {
	var actions []Action
	for a := range g.SortTopologically() {
		actions = append(actions, a)
	}
	return actions
}

// assertTopological checks that every link is traversed after its source is
// activated and before its target is, and that each node activates once.
func assertTopological(t *testing.T, g *Genome) {
	t.Helper()
	activated := make(map[NodeRef]int)
	traversed := 0
	for i, a := range collectActions(g) {
		switch a.Kind {
		case ActivateNode:
			_, seen := activated[a.Node]
			require.False(t, seen, "%s activated twice", a.Node)
			activated[a.Node] = i
		case TraverseLink:
			traversed++
			_, ok := activated[a.Link.From]
			require.True(t, ok, "link %s before its source", a.Link.Ref())
			_, ok = activated[a.Link.To]
			require.False(t, ok, "link %s after its target", a.Link.Ref())
		}
	}
	assert.Len(t, activated, g.NumNodes())
	assert.Equal(t, g.NumLinks(), traversed)
}

func TestSortTopologicallyScenario(t *testing.T) {
	g := scenarioGenome(t, newTestState(t))
	_, err := g.SplitLink(Input(0), Output(0))
	require.NoError(t, err)

	actions := collectActions(g)
	require.Len(t, actions, 6)
	assert.Equal(t, Action{Kind: ActivateNode, Node: Input(0)}, actions[0])
	assert.Equal(t, TraverseLink, actions[1].Kind)
	assert.Equal(t, LinkRef{From: Input(0), To: Hidden(0)}, actions[1].Link.Ref())
	assert.Equal(t, Action{Kind: ActivateNode, Node: Hidden(0)}, actions[2])
	assert.Equal(t, LinkRef{From: Hidden(0), To: Output(0)}, actions[3].Link.Ref())
	assert.Equal(t, Action{Kind: ActivateNode, Node: Output(0)}, actions[4])
	assert.Equal(t, Action{Kind: ActivateNode, Node: Input(1)}, actions[5])

	assertTopological(t, g)
	assert.Equal(t, actions, collectActions(g), "traversal must be repeatable")
}

func TestSortTopologicallyWaitsForAllInputs(t *testing.T) {
	g := loadGenome(t, testGenomeConfig(), newTestState(t), 1, FactoryOptions{
		HiddenNodes: []int{0},
		Links: []LinkOption{
			{From: Input(0), To: Hidden(0), Weight: 1, Innovation: 0},
			{From: Input(1), To: Hidden(0), Weight: 1, Innovation: 1},
			{From: Input(0), To: Output(0), Weight: 1, Innovation: 2},
			{From: Hidden(0), To: Output(0), Weight: 1, Innovation: 3},
		},
	})

	order := g.TopologicalOrder()
	assert.Equal(t, []NodeRef{Input(0), Input(1), Hidden(0), Output(0)}, order)
	assertTopological(t, g)
}

func TestSortTopologicallyUnreachableNodes(t *testing.T) {
	// H[1] has no incoming links and feeds O[0]; H[0] is isolated.
	g := loadGenome(t, testGenomeConfig(), newTestState(t), 1, FactoryOptions{
		HiddenNodes: []int{0, 1},
		Links: []LinkOption{
			{From: Hidden(1), To: Output(0), Weight: 1, Innovation: 0},
		},
	})

	order := g.TopologicalOrder()
	assert.Equal(t, []NodeRef{Input(0), Input(1), Hidden(0), Hidden(1), Output(0)}, order)
	assertTopological(t, g)
}

func TestSortTopologicallyStopsEarly(t *testing.T) {
	g := scenarioGenome(t, newTestState(t))
	n := 0
	for range g.SortTopologically() {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestSortTopologicallySkipsCycles(t *testing.T) {
	cfg := testGenomeConfig()
	cfg.TrustSafeGenomes = true
	g := loadGenome(t, cfg, newTestState(t), 1, FactoryOptions{
		IsSafe:      true,
		HiddenNodes: []int{0, 1},
		Links: []LinkOption{
			{From: Input(0), To: Hidden(0), Weight: 1, Innovation: 0},
			{From: Hidden(0), To: Hidden(1), Weight: 1, Innovation: 1},
			{From: Hidden(1), To: Hidden(0), Weight: 1, Innovation: 2},
		},
	})

	order := g.TopologicalOrder()
	assert.NotContains(t, order, Hidden(0))
	assert.NotContains(t, order, Hidden(1))
	assert.Len(t, order, 3)
}
