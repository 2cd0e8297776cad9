package splode

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStalePlan is returned by Explode when the given plan was computed over a
// different version of the graph. Plans are immutable once produced and bind
// to the graph snapshot they were planned against.
var ErrStalePlan = errors.New("splode: plan was computed over a different graph version")

// A DanglingReferenceError reports a reference to a stable identity that does
// not exist in the graph. It is a graph-integrity violation: the operation
// that detected it aborts and nothing is auto-repaired.
type DanglingReferenceError struct {
	// From identifies the referencing entity; it is the zero StableID when
	// the missing identity was addressed directly.
	From StableID
	// To is the missing identity.
	To StableID
}

func (e *DanglingReferenceError) Error() string {
	if e.From.IsZero() {
		return fmt.Sprintf("dangling reference: unknown entity %v", e.To)
	}
	return fmt.Sprintf("dangling reference: entity %v references unknown entity %v", e.From, e.To)
}

// A CircularDependencyError reports a reference cycle between export units.
// File-level linking cannot express mutual containment, so a plan with a
// unit-level cycle fails as a whole; no partial decomposition is performed.
type CircularDependencyError struct {
	// Units holds the planned container paths forming the cycle, in
	// traversal order.
	Units []string
}

func (e *CircularDependencyError) Error() string {
	return "circular dependency between export units: " + strings.Join(e.Units, " -> ")
}

// A RenameConflictError reports that the members of one export unit disagree
// on their previously recorded container path, so no rename can be inferred.
// It is recoverable: the reconciler treats the unit as a new export and
// reports the conflict.
type RenameConflictError struct {
	// Path is the unit's planned container path.
	Path string
	// PriorPaths lists the distinct recorded paths the unit's members were
	// last exported to.
	PriorPaths []string
}

func (e *RenameConflictError) Error() string {
	return fmt.Sprintf("rename conflict for unit %q: members were last exported to %s",
		e.Path, strings.Join(e.PriorPaths, ", "))
}

// A ContainerMismatchError reports a container whose internal structure does
// not match the identity set declared by the link stubs referencing it. The
// import of that container fails; unrelated containers still materialise.
type ContainerMismatchError struct {
	// Path of the rejected container.
	Path string
	// Missing lists stub identities the container does not hold.
	Missing []StableID
}

func (e *ContainerMismatchError) Error() string {
	ids := make([]string, len(e.Missing))
	for i, id := range e.Missing {
		ids[i] = id.String()
	}
	return fmt.Sprintf("container %q does not hold linked entities %s", e.Path, strings.Join(ids, ", "))
}

// A VCSError wraps a failure reported by the external version-control
// collaborator, preserving the operation and path it failed on.
type VCSError struct {
	Op   string // "rename", "write" or "read"
	Path string
	Err  error
}

func (e *VCSError) Error() string {
	return fmt.Sprintf("vcs %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *VCSError) Unwrap() error { return e.Err }
