package neat

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
)

// NodeKind distinguishes the three roles a node can play in a genome.
// The numeric order is also the sort order used for deterministic iteration.
type NodeKind int

const (
	InputNode NodeKind = iota
	HiddenNode
	OutputNode
)

// String returns the lowercase name used in node keys.
func (k NodeKind) String() string {
	switch k {
	case InputNode:
		return "input"
	case HiddenNode:
		return "hidden"
	case OutputNode:
		return "output"
	default:
		return "unknown(" + strconv.Itoa(int(k)) + ")"
	}
}

// ParseNodeKind is the inverse of NodeKind.String.
func ParseNodeKind(s string) (NodeKind, error) {
	switch s {
	case "input":
		return InputNode, nil
	case "hidden":
		return HiddenNode, nil
	case "output":
		return OutputNode, nil
	}
	return 0, fmt.Errorf("unknown node kind %q", s)
}

// NodeRef identifies a node. Input and output IDs are dense indices fixed by the
// problem arity; hidden IDs are minted by the innovation log.
type NodeRef struct {
	Kind NodeKind
	ID   int
}

// Input, Hidden and Output are shorthand constructors for NodeRef.
func Input(id int) NodeRef  { return NodeRef{Kind: InputNode, ID: id} }
func Hidden(id int) NodeRef { return NodeRef{Kind: HiddenNode, ID: id} }
func Output(id int) NodeRef { return NodeRef{Kind: OutputNode, ID: id} }

// Key returns the canonical "<kind>[<id>]" encoding.
func (n NodeRef) Key() string {
	return n.Kind.String() + "[" + strconv.Itoa(n.ID) + "]"
}

func (n NodeRef) String() string { return n.Key() }

// Compare orders inputs before hidden nodes before outputs, then by ID.
func (n NodeRef) Compare(other NodeRef) int {
	if c := cmp.Compare(n.Kind, other.Kind); c != 0 {
		return c
	}
	return cmp.Compare(n.ID, other.ID)
}

// ParseNodeKey decodes a key produced by NodeRef.Key.
func ParseNodeKey(key string) (NodeRef, error) {
	open := strings.IndexByte(key, '[')
	if open <= 0 || !strings.HasSuffix(key, "]") {
		return NodeRef{}, fmt.Errorf("malformed node key %q", key)
	}
	kind, err := ParseNodeKind(key[:open])
	if err != nil {
		return NodeRef{}, err
	}
	id, err := strconv.Atoi(key[open+1 : len(key)-1])
	if err != nil {
		return NodeRef{}, fmt.Errorf("malformed node key %q: %w", key, err)
	}
	return NodeRef{Kind: kind, ID: id}, nil
}

// LinkRef identifies a link by its endpoints.
type LinkRef struct {
	From NodeRef
	To   NodeRef
}

// Key returns the canonical "<fromKey>,<toKey>" encoding.
func (l LinkRef) Key() string {
	return l.From.Key() + "," + l.To.Key()
}

func (l LinkRef) String() string { return l.Key() }

// Compare orders links by source, then target.
func (l LinkRef) Compare(other LinkRef) int {
	if c := l.From.Compare(other.From); c != 0 {
		return c
	}
	return l.To.Compare(other.To)
}

// ParseLinkKey decodes a key produced by LinkRef.Key.
func ParseLinkKey(key string) (LinkRef, error) {
	from, to, ok := strings.Cut(key, ",")
	if !ok {
		return LinkRef{}, fmt.Errorf("malformed link key %q", key)
	}
	f, err := ParseNodeKey(from)
	if err != nil {
		return LinkRef{}, err
	}
	t, err := ParseNodeKey(to)
	if err != nil {
		return LinkRef{}, err
	}
	return LinkRef{From: f, To: t}, nil
}
