package splode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/danielorbach/go-component"
)

// VCS is the interface consumed from the external version-control
// collaborator. The engine uses only its rename and content primitives; the
// commit/diff/history machinery stays on the collaborator's side.
type VCS interface {
	// Rename moves a container file, preserving its history.
	Rename(ctx context.Context, oldPath, newPath string) error
	// Write persists the container content at the given path, overwriting.
	Write(ctx context.Context, path string, data []byte) error
	// Read returns the container content at the given path.
	Read(ctx context.Context, path string) ([]byte, error)
}

// A Rename is a pending path move to request from the VCS collaborator before
// any container content is written.
type Rename struct {
	From, To string
}

// A Reconciliation is the diff between a plan's intended container paths and
// the provenance records of the entities involved. Renames must be requested
// before writes so history is preserved in the external system; conflicts are
// reported, and their units fall back to being treated as new exports.
type Reconciliation struct {
	// Renames to request, ordered so that every target path is vacated
	// before another rename moves into it.
	Renames []Rename
	// Conflicts lists units whose members disagree on their prior path.
	Conflicts []*RenameConflictError
}

// Reconcile compares each planned unit path against the provenance of the
// unit's members.
//
// A unit whose members have no prior record is a new export. A unit whose
// members were all last exported to the planned path is an ordinary
// re-export. A unit whose members agree on a prior path different from the
// planned one yields exactly one rename request. Members disagreeing on their
// prior path (unit membership changed between runs) yield a RenameConflict:
// no rename is inferred, the unit is treated as new, and the conflict is
// reported in the result.
//
// Renames that chain within one run (one unit vacates the path another moves
// into) are ordered so the vacating rename runs first. Renames that swap
// paths between units cannot be ordered at all; they too yield a
// RenameConflict and their units fall back to new exports.
func Reconcile(ctx context.Context, plan *Plan, tracker Tracker) (Reconciliation, error) {
	var rec Reconciliation
	for _, unit := range plan.Units {
		prior := make(map[string]struct{})
		for _, id := range unit.Members {
			r, ok, err := tracker.Lookup(ctx, id)
			if err != nil {
				return Reconciliation{}, fmt.Errorf("lookup provenance of %v: %w", id, err)
			}
			if ok {
				prior[r.Path] = struct{}{}
			}
		}

		switch len(prior) {
		case 0:
			// New export; the path is recorded at commit time.
		case 1:
			for p := range prior {
				if p != unit.Path {
					rec.Renames = append(rec.Renames, Rename{From: p, To: unit.Path})
				}
			}
		default:
			rec.Conflicts = append(rec.Conflicts, &RenameConflictError{
				Path:       unit.Path,
				PriorPaths: sortedPaths(prior),
			})
		}
	}

	var conflicted []*RenameConflictError
	rec.Renames, conflicted = orderRenames(rec.Renames)
	rec.Conflicts = append(rec.Conflicts, conflicted...)
	return rec, nil
}

// orderRenames sorts pending renames so that a rename whose target path is
// currently occupied runs after the rename vacating it. Without this, a chain
// such as a: p1->p2, b: p2->p3 would clobber b's container at p2 before b's
// rename executes, losing b's history.
//
// Renames caught in a cycle (units swapping paths) admit no such order; they
// are dropped and reported as conflicts, along with any rename whose target
// could not be vacated because of one.
func orderRenames(renames []Rename) ([]Rename, []*RenameConflictError) {
	sort.Slice(renames, func(i, j int) bool { return renames[i].To < renames[j].To })

	vacating := make(map[string]int, len(renames))
	for i, r := range renames {
		vacating[r.From] = i
	}

	colours := make([]int, len(renames))
	dropped := make([]bool, len(renames))
	ordered := make([]Rename, 0, len(renames))
	var conflicts []*RenameConflictError

	var visit func(i int) bool
	visit = func(i int) bool {
		switch colours[i] {
		case grey:
			return false
		case black:
			return !dropped[i]
		}
		colours[i] = grey
		if j, ok := vacating[renames[i].To]; ok && j != i && !visit(j) {
			colours[i] = black
			dropped[i] = true
			conflicts = append(conflicts, &RenameConflictError{
				Path:       renames[i].To,
				PriorPaths: []string{renames[i].From},
			})
			return false
		}
		colours[i] = black
		ordered = append(ordered, renames[i])
		return true
	}
	for i := range renames {
		visit(i)
	}
	return ordered, conflicts
}

// CommitExport persists a decomposition run: it requests every reconciled
// rename from the VCS collaborator, writes each container, and records
// provenance for the members of every container that was written.
//
// Renames are requested before any content is written. A failed rename aborts
// the commit: writing new content after a half-applied rename set would turn
// pending renames into create-plus-delete pairs, losing history. Write
// failures are isolated per unit - remaining containers are still written,
// provenance is recorded only for units that persisted, and the per-unit
// errors are joined into the returned error.
func CommitExport(ctx context.Context, store VCS, tracker Tracker, rec Reconciliation, writes []ContainerWrite) error {
	logger := component.Logger(ctx)

	for _, r := range rec.Renames {
		if err := store.Rename(ctx, r.From, r.To); err != nil {
			return &VCSError{Op: "rename", Path: r.From, Err: err}
		}
		logger.Info("Renamed container",
			slog.String("from", r.From),
			slog.String("to", r.To),
		)
	}

	now := time.Now().UTC()
	var unitErrs []error
	for _, w := range writes {
		if err := store.Write(ctx, w.Path, w.Data); err != nil {
			unitErrs = append(unitErrs, &VCSError{Op: "write", Path: w.Path, Err: err})
			continue
		}
		for _, id := range w.Unit.Members {
			err := tracker.Record(ctx, id, ProvenanceRecord{
				Path:        w.Path,
				Fingerprint: w.Hash,
				ExportedAt:  now,
			})
			if err != nil {
				unitErrs = append(unitErrs, fmt.Errorf("record provenance of %v: %w", id, err))
			}
		}
	}

	return errors.Join(unitErrs...)
}
