package lineage

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
)

// #region records
// SegmentRecord is one segment as read from an iteration's ordered segment list.
// Its position in that list is its identity within the iteration.
type SegmentRecord struct {
	ParentID int64
}

// InitialStateRecord is a fresh starting point listed for an iteration.
type InitialStateRecord struct {
	StateID int64
}

// SegmentSource returns the ordered segment records of iteration n.
type SegmentSource func(n int) ([]SegmentRecord, error)

// InitialStateSource returns the initial states that seed iteration n.
type InitialStateSource func(n int) ([]InitialStateRecord, error)

// #endregion records

// #region parent-ref
// ParentKind distinguishes the two kinds of parent a segment can have.
type ParentKind uint8

const (
	ParentSegment ParentKind = iota
	ParentInitialState
)

func (k ParentKind) String() string {
	switch k {
	case ParentSegment:
		return "segment"
	case ParentInitialState:
		return "initial_state"
	default:
		return fmt.Sprintf("ParentKind(%d)", uint8(k))
	}
}

// ParentRef is the decoded form of a raw parent id. For ParentSegment, ID is the
// index into the previous iteration's segment list; for ParentInitialState it
// is the state id.
type ParentRef struct {
	Kind ParentKind
	ID   int64
}

// DecodeParent splits a raw parent id into its tagged form:
// non-negative ids index the previous iteration's segments, negative ids
// name initial state -(id+1).
func DecodeParent(parentID int64) ParentRef {
	if parentID >= 0 {
		return ParentRef{Kind: ParentSegment, ID: parentID}
	}
	return ParentRef{Kind: ParentInitialState, ID: -(parentID + 1)}
}

// Encode is the inverse of DecodeParent.
func (r ParentRef) Encode() int64 {
	if r.Kind == ParentInitialState {
		return -r.ID - 1
	}
	return r.ID
}

func (r ParentRef) String() string {
	return fmt.Sprintf("%s(%d)", r.Kind, r.ID)
}

// #endregion parent-ref

// #region node-id
// NodeKind tells segment nodes from initial-state nodes.
type NodeKind uint8

const (
	KindSegment NodeKind = iota
	KindInitialState
)

func (k NodeKind) String() string {
	switch k {
	case KindSegment:
		return "segment"
	case KindInitialState:
		return "initial_state"
	default:
		return fmt.Sprintf("NodeKind(%d)", uint8(k))
	}
}

// ParseNodeKind is the inverse of NodeKind.String.
func ParseNodeKind(s string) (NodeKind, error) {
	switch s {
	case "segment":
		return KindSegment, nil
	case "initial_state":
		return KindInitialState, nil
	}
	return 0, fmt.Errorf("unknown node kind %q", s)
}

// NodeID identifies a genealogy node. Segments are keyed by (iteration, index in
// that iteration's list); initial states by (iteration they seed, state id).
type NodeID struct {
	Kind      NodeKind
	Iteration int
	Index     int64
}

// SegmentID is shorthand for a segment node key.
func SegmentID(iteration int, index int64) NodeID {
	return NodeID{Kind: KindSegment, Iteration: iteration, Index: index}
}

// InitialStateID is shorthand for an initial-state node key.
func InitialStateID(iteration int, stateID int64) NodeID {
	return NodeID{Kind: KindInitialState, Iteration: iteration, Index: stateID}
}

// String renders the id as kind/iteration/index, e.g. "segment/3/0".
func (id NodeID) String() string {
	return id.Kind.String() + "/" + strconv.Itoa(id.Iteration) + "/" + strconv.FormatInt(id.Index, 10)
}

// ParseNodeID is the inverse of NodeID.String.
func ParseNodeID(s string) (NodeID, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return NodeID{}, fmt.Errorf("parse node id %q: want kind/iteration/index", s)
	}
	kind, err := ParseNodeKind(parts[0])
	if err != nil {
		return NodeID{}, fmt.Errorf("parse node id %q: %w", s, err)
	}
	iter, err := strconv.Atoi(parts[1])
	if err != nil {
		return NodeID{}, fmt.Errorf("parse node id %q: iteration: %w", s, err)
	}
	idx, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return NodeID{}, fmt.Errorf("parse node id %q: index: %w", s, err)
	}
	return NodeID{Kind: kind, Iteration: iter, Index: idx}, nil
}

// CompareNodeIDs orders ids by iteration, then kind (segments first), then index.
func CompareNodeIDs(a, b NodeID) int {
	if c := cmp.Compare(a.Iteration, b.Iteration); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
		return c
	}
	return cmp.Compare(a.Index, b.Index)
}

// #endregion node-id
