/*
Package fileops enables distributed persistence of decomposition runs by
letting callers record the file operations a run requires - renames first,
then container writes - as replayable steps that can be stored, transmitted,
and applied against any [splode.VCS] collaborator.

The package provides a [Recorder] for collecting steps and a [Replay]
function for executing them. Recording decouples computing a decomposition
from persisting it: a workstation can plan and explode a document while a
farm worker replays the resulting transcript against the studio's
version-control system.
*/
package fileops

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"iter"

	splode "github.com/go-splode/go-splode"
)

// Step represents a single file operation of a decomposition run. Steps are
// the fundamental units of work that can be serialised and transmitted across
// process boundaries.
//
// All Step implementations are registered with gob by this package.
type Step interface {
	// Do applies the operation using the provided VCS collaborator.
	Do(ctx context.Context, store splode.VCS) error
	// Paths yields the container paths this step touches, allowing callers
	// to understand the scope of a transcript without applying it.
	Paths() iter.Seq[string]
}

// Encode serialises steps into a byte slice for storage or transmission,
// using gob so transcripts reproduce faithfully across Go environments.
func Encode(steps []Step) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(steps); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reconstructs steps from a previously encoded byte slice.
func Decode(data []byte) ([]Step, error) {
	var steps []Step
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&steps); err != nil {
		return nil, fmt.Errorf("gob decode: %w", err)
	}
	return steps, nil
}

// A Recorder collects the file operations of a decomposition run in the order
// they must be applied.
//
// The zero value of Recorder is ready to use. Do not copy a non-zero
// Recorder.
type Recorder struct {
	steps []Step
}

// Reset clears all accumulated steps so the Recorder can be reused for a new
// run.
func (r *Recorder) Reset() {
	r.steps = nil
}

// Steps returns a copy of the recorded steps. Modifying the returned slice
// does not affect the Recorder.
func (r *Recorder) Steps() []Step {
	s := make([]Step, len(r.steps))
	copy(s, r.steps)
	return s
}

// Rename records a path move to request from the VCS collaborator.
func (r *Recorder) Rename(from, to string) {
	r.steps = append(r.steps, renameStep{From: from, To: to})
}

// Write records a container write.
func (r *Recorder) Write(path string, data []byte) {
	r.steps = append(r.steps, writeStep{TargetPath: path, Data: data})
}

// FromExport records the operations of one reconciled decomposition run:
// every rename of the reconciliation, in order, followed by every container
// write. Replaying the result is equivalent to the direct persistence path of
// [splode.CommitExport], minus the provenance updates, which remain with the
// document owner.
func FromExport(rec splode.Reconciliation, writes []splode.ContainerWrite) []Step {
	var r Recorder
	for _, rn := range rec.Renames {
		r.Rename(rn.From, rn.To)
	}
	for _, w := range writes {
		r.Write(w.Path, w.Data)
	}
	return r.Steps()
}

// Replay returns a function that applies the given steps in order against a
// VCS collaborator. Execution stops at the first failing step, leaving the
// external store partially modified; callers needing atomicity must provide
// it around the replay.
func Replay(steps []Step) func(ctx context.Context, store splode.VCS) error {
	return func(ctx context.Context, store splode.VCS) error {
		for _, step := range steps {
			if err := step.Do(ctx, store); err != nil {
				return err
			}
		}
		return nil
	}
}

// Paths iterates over the container paths touched by the given steps,
// yielding each path once.
func Paths(steps []Step) iter.Seq[string] {
	return func(yield func(string) bool) {
		seen := make(map[string]struct{})
		for _, step := range steps {
			for p := range step.Paths() {
				if _, ok := seen[p]; ok {
					continue
				}
				seen[p] = struct{}{}
				if !yield(p) {
					return
				}
			}
		}
	}
}
