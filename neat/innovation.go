package neat

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// SplitRecord is what the log remembers about splitting one link: the hidden
// node that replaced it and the innovations of the two links around that node.
type SplitRecord struct {
	NodeID        int `json:"nodeId"`
	InInnovation  int `json:"inInnovation"`
	OutInnovation int `json:"outInnovation"`
}

// State is the innovation log shared by every genome of one evolutionary
// lineage. It maps structural-mutation signatures to stable identifiers so the
// same structural event always gets the same ids, whichever genome or goroutine
// asks first. The log only grows.
//
// State is safe for concurrent use. Every lookup holds the same mutex for the
// whole check-then-insert, so two concurrent requests for a novel signature
// cannot mint two different ids.
type State struct {
	mu sync.Mutex

	lineageID      string
	nextInnovation int
	nextHiddenID   int

	splits       map[int]SplitRecord // link innovation -> split
	connects     map[LinkRef]int     // (from,to) -> innovation
	reverse      map[int]LinkRef     // innovation -> (from,to)
	hiddenToLink map[int]int         // hidden id -> link innovation it split

	initialHidden []int // hidden ids shared by every initial topology

	metrics *InnovationMetrics
}

// StateOption configures a State at construction.
type StateOption func(*State)

// WithMetrics attaches Prometheus collectors to the log.
func WithMetrics(m *InnovationMetrics) StateOption {
	return func(s *State) { s.metrics = m }
}

// WithLineageID overrides the lineage id. Without it a snapshot's id is kept, or
// a fresh UUID is generated.
func WithLineageID(id string) StateOption {
	return func(s *State) { s.lineageID = id }
}

// NewState creates an innovation log, optionally rehydrated from a snapshot.
func NewState(snapshot *InnovationSnapshot, opts ...StateOption) (*State, error) {
	s := &State{
		splits:       make(map[int]SplitRecord),
		connects:     make(map[LinkRef]int),
		reverse:      make(map[int]LinkRef),
		hiddenToLink: make(map[int]int),
	}
	if snapshot != nil {
		if err := s.restore(snapshot); err != nil {
			return nil, err
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.lineageID == "" {
		s.lineageID = uuid.NewString()
	}
	return s, nil
}

// LineageID names the evolutionary lineage this log belongs to.
func (s *State) LineageID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lineageID
}

// ConnectInnovation returns the innovation number for a link between from and
// to, minting one the first time the pair is seen.
func (s *State) ConnectInnovation(from, to NodeRef) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref := LinkRef{From: from, To: to}
	innov, hit := s.connects[ref]
	if !hit {
		var err error
		innov, err = s.mintConnectLocked(ref)
		if err != nil {
			return 0, err
		}
	}
	s.metrics.observe("connect", hit, s.nextInnovation, s.nextHiddenID)
	return innov, nil
}

// SplitInnovation returns the hidden node and link innovations produced by
// splitting the link with the given innovation. Both new links are registered
// as connect innovations too, so a later add-link of the same pair replays them.
func (s *State) SplitInnovation(linkInnovation int) (SplitRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.splits[linkInnovation]; ok {
		s.metrics.observe("split", true, s.nextInnovation, s.nextHiddenID)
		return rec, nil
	}

	link, ok := s.reverse[linkInnovation]
	if !ok {
		return SplitRecord{}, fmt.Errorf("split of innovation %d: %w", linkInnovation, ErrUnknownInnovation)
	}

	nodeID := s.nextHiddenID
	if _, taken := s.hiddenToLink[nodeID]; taken {
		return SplitRecord{}, fmt.Errorf("hidden id %d already minted: %w", nodeID, ErrDuplicateStructure)
	}
	node := Hidden(nodeID)
	inRef := LinkRef{From: link.From, To: node}
	outRef := LinkRef{From: node, To: link.To}
	for _, ref := range []LinkRef{inRef, outRef} {
		if prev, exists := s.connects[ref]; exists {
			return SplitRecord{}, fmt.Errorf("link %s already registered as innovation %d: %w", ref, prev, ErrDuplicateStructure)
		}
	}
	s.nextHiddenID++

	inInnov, err := s.mintConnectLocked(inRef)
	if err != nil {
		return SplitRecord{}, err
	}
	outInnov, err := s.mintConnectLocked(outRef)
	if err != nil {
		return SplitRecord{}, err
	}

	rec := SplitRecord{NodeID: nodeID, InInnovation: inInnov, OutInnovation: outInnov}
	s.splits[linkInnovation] = rec
	s.hiddenToLink[nodeID] = linkInnovation
	s.metrics.observe("split", false, s.nextInnovation, s.nextHiddenID)
	return rec, nil
}

// RegisterLink records a link that arrives with an innovation number already
// assigned, e.g. when a genome is rehydrated. It is a compare-and-insert: a
// pair or innovation already bound to something else is a consistency error.
func (s *State) RegisterLink(from, to NodeRef, innovation int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref := LinkRef{From: from, To: to}
	if prev, ok := s.connects[ref]; ok {
		if prev != innovation {
			return fmt.Errorf("link %s is innovation %d, not %d: %w", ref, prev, innovation, ErrConsistency)
		}
		return nil
	}
	if prev, ok := s.reverse[innovation]; ok {
		return fmt.Errorf("innovation %d belongs to %s, not %s: %w", innovation, prev, ref, ErrConsistency)
	}
	s.connects[ref] = innovation
	s.reverse[innovation] = ref
	if innovation >= s.nextInnovation {
		s.nextInnovation = innovation + 1
	}
	for _, n := range []NodeRef{from, to} {
		if n.Kind == HiddenNode && n.ID >= s.nextHiddenID {
			s.nextHiddenID = n.ID + 1
		}
	}
	return nil
}

// RegisterHidden makes sure the log never mints id for a future split.
func (s *State) RegisterHidden(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id >= s.nextHiddenID {
		s.nextHiddenID = id + 1
	}
}

// InitialHiddenIDs returns the first n hidden ids reserved for initial
// topologies, minting any that do not exist yet. Every genome of the lineage
// gets the same ids, so their initial hidden nodes align in crossover.
func (s *State) InitialHiddenIDs(n int) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.initialHidden) < n {
		s.initialHidden = append(s.initialHidden, s.nextHiddenID)
		s.nextHiddenID++
	}
	return slices.Clone(s.initialHidden[:n])
}

// LinkForInnovation returns the endpoints registered for an innovation.
func (s *State) LinkForInnovation(innovation int) (LinkRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.reverse[innovation]
	return ref, ok
}

// SplitSource returns the innovation of the link whose split created hiddenID.
func (s *State) SplitSource(hiddenID int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	innov, ok := s.hiddenToLink[hiddenID]
	return innov, ok
}

// LookupSplit returns the split recorded for a link innovation without minting.
func (s *State) LookupSplit(linkInnovation int) (SplitRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.splits[linkInnovation]
	return rec, ok
}

// Len returns the number of registered connect innovations.
func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connects)
}

// mintConnectLocked assigns the next free innovation to ref. Callers hold s.mu.
func (s *State) mintConnectLocked(ref LinkRef) (int, error) {
	if prev, ok := s.connects[ref]; ok {
		return 0, fmt.Errorf("link %s already registered as innovation %d: %w", ref, prev, ErrDuplicateStructure)
	}
	for {
		if _, used := s.reverse[s.nextInnovation]; !used {
			break
		}
		s.nextInnovation++
	}
	innov := s.nextInnovation
	s.nextInnovation++
	s.connects[ref] = innov
	s.reverse[innov] = ref
	return innov, nil
}

// --------------------------- Snapshot ---------------------------

// InnovationSnapshot is the serialized form of the log as plain association
// lists. Lists are sorted so equal logs produce equal snapshots.
type InnovationSnapshot struct {
	LineageID                 string                `json:"lineageId,omitempty" yaml:"lineage_id,omitempty"`
	NextInnovation            int                   `json:"nextInnovation" yaml:"next_innovation"`
	NextHiddenID              int                   `json:"nextHiddenId" yaml:"next_hidden_id"`
	SplitInnovations          []SplitEntry          `json:"splitInnovations" yaml:"split_innovations"`
	ConnectInnovations        []ConnectEntry        `json:"connectInnovations" yaml:"connect_innovations"`
	ReverseConnectInnovations []ReverseConnectEntry `json:"reverseConnectInnovations" yaml:"reverse_connect_innovations"`
	HiddenToLink              []HiddenToLinkEntry   `json:"hiddenToLink" yaml:"hidden_to_link"`
	InitialHidden             []int                 `json:"initialHidden,omitempty" yaml:"initial_hidden,omitempty"`
}

// SplitEntry is one row of splitInnovations.
type SplitEntry struct {
	LinkInnovation int         `json:"linkInnovation" yaml:"link_innovation"`
	Split          SplitRecord `json:"split" yaml:"split"`
}

// ConnectEntry is one row of connectInnovations, keyed by LinkRef.Key.
type ConnectEntry struct {
	Link       string `json:"link" yaml:"link"`
	Innovation int    `json:"innovation" yaml:"innovation"`
}

// ReverseConnectEntry is one row of reverseConnectInnovations.
type ReverseConnectEntry struct {
	Innovation int    `json:"innovation" yaml:"innovation"`
	From       string `json:"from" yaml:"from"`
	To         string `json:"to" yaml:"to"`
}

// HiddenToLinkEntry is one row of hiddenToLink.
type HiddenToLinkEntry struct {
	HiddenID       int `json:"hiddenId" yaml:"hidden_id"`
	LinkInnovation int `json:"linkInnovation" yaml:"link_innovation"`
}

// Snapshot copies the log into its serialized form.
func (s *State) Snapshot() InnovationSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := InnovationSnapshot{
		LineageID:                 s.lineageID,
		NextInnovation:            s.nextInnovation,
		NextHiddenID:              s.nextHiddenID,
		SplitInnovations:          make([]SplitEntry, 0, len(s.splits)),
		ConnectInnovations:        make([]ConnectEntry, 0, len(s.connects)),
		ReverseConnectInnovations: make([]ReverseConnectEntry, 0, len(s.reverse)),
		HiddenToLink:              make([]HiddenToLinkEntry, 0, len(s.hiddenToLink)),
		InitialHidden:             slices.Clone(s.initialHidden),
	}
	for innov, rec := range s.splits {
		snap.SplitInnovations = append(snap.SplitInnovations, SplitEntry{LinkInnovation: innov, Split: rec})
	}
	for ref, innov := range s.connects {
		snap.ConnectInnovations = append(snap.ConnectInnovations, ConnectEntry{Link: ref.Key(), Innovation: innov})
	}
	for innov, ref := range s.reverse {
		snap.ReverseConnectInnovations = append(snap.ReverseConnectInnovations, ReverseConnectEntry{
			Innovation: innov, From: ref.From.Key(), To: ref.To.Key(),
		})
	}
	for id, innov := range s.hiddenToLink {
		snap.HiddenToLink = append(snap.HiddenToLink, HiddenToLinkEntry{HiddenID: id, LinkInnovation: innov})
	}

	slices.SortFunc(snap.SplitInnovations, func(a, b SplitEntry) int { return cmp.Compare(a.LinkInnovation, b.LinkInnovation) })
	slices.SortFunc(snap.ConnectInnovations, func(a, b ConnectEntry) int { return cmp.Compare(a.Innovation, b.Innovation) })
	slices.SortFunc(snap.ReverseConnectInnovations, func(a, b ReverseConnectEntry) int { return cmp.Compare(a.Innovation, b.Innovation) })
	slices.SortFunc(snap.HiddenToLink, func(a, b HiddenToLinkEntry) int { return cmp.Compare(a.HiddenID, b.HiddenID) })
	return snap
}

// restore loads a snapshot into an empty log, checking that the forward and
// reverse maps agree.
func (s *State) restore(snap *InnovationSnapshot) error {
	s.lineageID = snap.LineageID

	for _, e := range snap.ConnectInnovations {
		ref, err := ParseLinkKey(e.Link)
		if err != nil {
			return fmt.Errorf("restore connect innovation %d: %w", e.Innovation, err)
		}
		if prev, ok := s.reverse[e.Innovation]; ok && prev != ref {
			return fmt.Errorf("innovation %d maps to both %s and %s: %w", e.Innovation, prev, ref, ErrConsistency)
		}
		if prev, ok := s.connects[ref]; ok && prev != e.Innovation {
			return fmt.Errorf("link %s maps to both %d and %d: %w", ref, prev, e.Innovation, ErrConsistency)
		}
		s.connects[ref] = e.Innovation
		s.reverse[e.Innovation] = ref
	}
	for _, e := range snap.ReverseConnectInnovations {
		from, err := ParseNodeKey(e.From)
		if err != nil {
			return fmt.Errorf("restore reverse innovation %d: %w", e.Innovation, err)
		}
		to, err := ParseNodeKey(e.To)
		if err != nil {
			return fmt.Errorf("restore reverse innovation %d: %w", e.Innovation, err)
		}
		ref := LinkRef{From: from, To: to}
		if got, ok := s.connects[ref]; !ok || got != e.Innovation {
			return fmt.Errorf("reverse entry %d -> %s has no matching connect entry: %w", e.Innovation, ref, ErrConsistency)
		}
	}
	for _, e := range snap.HiddenToLink {
		if prev, ok := s.hiddenToLink[e.HiddenID]; ok && prev != e.LinkInnovation {
			return fmt.Errorf("hidden %d split from both %d and %d: %w", e.HiddenID, prev, e.LinkInnovation, ErrConsistency)
		}
		s.hiddenToLink[e.HiddenID] = e.LinkInnovation
	}
	splitNodes := make(map[int]int, len(snap.SplitInnovations))
	for _, e := range snap.SplitInnovations {
		if err := s.checkSplit(e, splitNodes); err != nil {
			return err
		}
		s.splits[e.LinkInnovation] = e.Split
		splitNodes[e.Split.NodeID] = e.LinkInnovation
	}
	for id, innov := range s.hiddenToLink {
		if rec, ok := s.splits[innov]; !ok || rec.NodeID != id {
			return fmt.Errorf("hidden %d claims split of %d but no such split is recorded: %w", id, innov, ErrConsistency)
		}
	}
	s.initialHidden = slices.Clone(snap.InitialHidden)

	// Counters are recomputed as a floor so a hand-edited snapshot cannot make
	// the log re-mint an id it already handed out.
	s.nextInnovation = snap.NextInnovation
	for innov := range s.reverse {
		s.nextInnovation = max(s.nextInnovation, innov+1)
	}
	s.nextHiddenID = snap.NextHiddenID
	for id := range s.hiddenToLink {
		s.nextHiddenID = max(s.nextHiddenID, id+1)
	}
	for _, id := range s.initialHidden {
		s.nextHiddenID = max(s.nextHiddenID, id+1)
	}
	for ref := range s.connects {
		for _, n := range []NodeRef{ref.From, ref.To} {
			if n.Kind == HiddenNode {
				s.nextHiddenID = max(s.nextHiddenID, n.ID+1)
			}
		}
	}
	return nil
}

// checkSplit verifies a restored split against the connect maps: its two links
// must be registered as source->node and node->target, and the node must be
// bound to this split alone.
func (s *State) checkSplit(e SplitEntry, splitNodes map[int]int) error {
	src, ok := s.reverse[e.LinkInnovation]
	if !ok {
		return fmt.Errorf("split of innovation %d: %w", e.LinkInnovation, ErrUnknownInnovation)
	}
	if prev, ok := s.splits[e.LinkInnovation]; ok && prev != e.Split {
		return fmt.Errorf("innovation %d split twice: %w", e.LinkInnovation, ErrConsistency)
	}
	if other, ok := splitNodes[e.Split.NodeID]; ok && other != e.LinkInnovation {
		return fmt.Errorf("hidden %d minted by splits of %d and %d: %w", e.Split.NodeID, other, e.LinkInnovation, ErrConsistency)
	}
	node := Hidden(e.Split.NodeID)
	for _, want := range []struct {
		innov int
		ref   LinkRef
	}{
		{e.Split.InInnovation, LinkRef{From: src.From, To: node}},
		{e.Split.OutInnovation, LinkRef{From: node, To: src.To}},
	} {
		if got, ok := s.reverse[want.innov]; !ok || got != want.ref {
			return fmt.Errorf("split of %d expects innovation %d to be %s: %w", e.LinkInnovation, want.innov, want.ref, ErrConsistency)
		}
	}
	if innov, ok := s.hiddenToLink[e.Split.NodeID]; !ok || innov != e.LinkInnovation {
		return fmt.Errorf("split of %d is missing from hiddenToLink: %w", e.LinkInnovation, ErrConsistency)
	}
	return nil
}
