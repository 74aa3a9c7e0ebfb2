package lineage

import (
	"errors"
	"fmt"
)

// Sentinel errors for genealogy construction and queries.
var (
	// ErrMalformedLineage marks a parent reference that cannot be resolved
	// against the preceding iteration. Match with errors.Is.
	ErrMalformedLineage = errors.New("malformed lineage")

	// ErrInvalidLag marks a non-positive ancestor depth.
	ErrInvalidLag = errors.New("invalid lag")

	// ErrInvalidIterationCount is returned by Build for counts below 1.
	ErrInvalidIterationCount = errors.New("iteration count must be positive")

	// ErrAmbiguousAncestry means a node reached more than one ancestor at the
	// requested depth. Graphs produced by Build never trigger it.
	ErrAmbiguousAncestry = errors.New("ambiguous ancestry")

	// ErrNodeNotFound is returned by lookups for ids absent from the graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrInvariantViolation is returned by Genealogy.Validate.
	ErrInvariantViolation = errors.New("genealogy invariant violated")
)

// MalformedLineageError describes the segment whose parent could not be resolved.
type MalformedLineageError struct {
	Iteration    int
	SegmentIndex int
	ParentID     int64
	Reason       string
}

func (e *MalformedLineageError) Error() string {
	return fmt.Sprintf("malformed lineage: iteration %d segment %d parent_id %d: %s",
		e.Iteration, e.SegmentIndex, e.ParentID, e.Reason)
}

func (e *MalformedLineageError) Is(target error) bool {
	return target == ErrMalformedLineage
}

// InvalidLagError is returned for ancestor queries with depth <= 0.
type InvalidLagError struct {
	Depth int
}

func (e *InvalidLagError) Error() string {
	return fmt.Sprintf("invalid lag: depth must be positive, got %d", e.Depth)
}

func (e *InvalidLagError) Is(target error) bool {
	return target == ErrInvalidLag
}
