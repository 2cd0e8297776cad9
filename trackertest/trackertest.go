/*
Package trackertest provides a suite of tests designed to assess provenance
trackers (e.g. in-memory, neo4j).

The tests operate on the specific tracker via the [splode.Tracker] interface
to check functional correctness and compliance with the behaviours defined by
that interface.

Call trackertest.Run in its own test to invoke the test-suite:

	func TestTracker(t *testing.T) {
		tracker := NewTracker() // Create the tracker under test.
		trackertest.Run(t, tracker)
	}

The test cases in this suite focus on the basic provenance operations:

  - Recording and looking up export records by stable identity.
  - Upserting records across repeated exports.
  - Enumerating and forgetting tracked identities.

So, specific trackers are encouraged to perform additional tests which are
specific to the underlying storage.
*/
package trackertest

import (
	"context"
	"fmt"
	"runtime"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	splode "github.com/go-splode/go-splode"
)

// Stable identities shared across the sequential test cases. Each case's
// expectations depend on the identities touched by the cases before it.
var (
	idSuzanne = splode.NewStableID()
	idCube    = splode.NewStableID()
)

type testCase struct {
	// Subtest name.
	name string
	// A path leading to the test-case's file and line in the source code.
	location string
	// A step executes a single operation on the tested tracker.
	step func(ctx context.Context, tracker splode.Tracker) error
	// The complete set of records expected in the tracker after the step.
	// Takes into account the order and the successful execution of previous
	// test-cases.
	records map[splode.StableID]splode.ProvenanceRecord
}

var cases = []testCase{
	{
		name:     "lookup-never-exported",
		location: locateSource(),
		step: func(ctx context.Context, tracker splode.Tracker) error {
			_, ok, err := tracker.Lookup(ctx, idSuzanne)
			if err != nil {
				return err
			}
			if ok {
				return fmt.Errorf("expected no record, got one")
			}
			return nil
		},
		records: map[splode.StableID]splode.ProvenanceRecord{},
	},
	{
		name:     "forget-never-exported",
		location: locateSource(),
		step: func(ctx context.Context, tracker splode.Tracker) error {
			return tracker.Forget(ctx, idSuzanne)
		},
		records: map[splode.StableID]splode.ProvenanceRecord{},
	},
	{
		name:     "record-first-export",
		location: locateSource(),
		step: func(ctx context.Context, tracker splode.Tracker) error {
			return tracker.Record(ctx, idSuzanne, record("_meshes/suzanne.unit", 0xaa))
		},
		records: map[splode.StableID]splode.ProvenanceRecord{
			idSuzanne: record("_meshes/suzanne.unit", 0xaa),
		},
	},
	{
		name:     "record-second-identity",
		location: locateSource(),
		step: func(ctx context.Context, tracker splode.Tracker) error {
			return tracker.Record(ctx, idCube, record("_objects/cube.unit", 0xbb))
		},
		records: map[splode.StableID]splode.ProvenanceRecord{
			idSuzanne: record("_meshes/suzanne.unit", 0xaa),
			idCube:    record("_objects/cube.unit", 0xbb),
		},
	},
	{
		name:     "upsert-after-rename",
		location: locateSource(),
		step: func(ctx context.Context, tracker splode.Tracker) error {
			return tracker.Record(ctx, idSuzanne, record("_meshes/monkey.unit", 0xcc))
		},
		records: map[splode.StableID]splode.ProvenanceRecord{
			idSuzanne: record("_meshes/monkey.unit", 0xcc),
			idCube:    record("_objects/cube.unit", 0xbb),
		},
	},
	{
		name:     "forget-deleted-entity",
		location: locateSource(),
		step: func(ctx context.Context, tracker splode.Tracker) error {
			return tracker.Forget(ctx, idCube)
		},
		records: map[splode.StableID]splode.ProvenanceRecord{
			idSuzanne: record("_meshes/monkey.unit", 0xcc),
		},
	},
}

// Run executes a sequence of test cases on a provenance tracker. It verifies
// that records survive upserts, lookups join only on stable identity, and
// forgotten identities disappear from enumeration.
//
// The testing process requires all cases to execute in a strict sequence
// because the state of the tracker at the end of one test is the starting
// point for the next. This sequential execution is crucial in evaluating
// whether the state progresses correctly over a series of exports, akin to
// the real-world use of a tracker over time.
func Run(t *testing.T, tracker splode.Tracker) {
	t.Helper()

	// We deliberately use the background context because this test-suite does
	// not check performance. Also, tracker implementations should not depend
	// on specific context values.
	ctx := context.Background()

	for _, c := range cases {
		// We encourage developers to read the source code directly, especially
		// when failures are not clear enough.
		t.Logf("Read the source for test-case %v at %v", c.name, c.location)
		if err := c.step(ctx, tracker); err != nil {
			t.Fatalf("Step(%v) failed: %v", c.name, err)
		}

		all, err := tracker.All(ctx)
		if err != nil {
			t.Fatalf("All(%v) failed: %v", c.name, err)
		}
		if diff := cmp.Diff(c.records, all); diff != "" {
			t.Errorf("Check records of %v: %v", c.name, diff)
		}

		// Lookup must agree with All for every expected identity.
		for id, want := range c.records {
			got, ok, err := tracker.Lookup(ctx, id)
			if err != nil {
				t.Fatalf("Lookup(%v, %v) failed: %v", c.name, id, err)
			}
			if !ok {
				t.Errorf("Lookup(%v, %v) reported no record, want one", c.name, id)
				continue
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("Check lookup of %v for %v: %v", c.name, id, diff)
			}
		}
	}
}

// Records use a fixed timestamp so that cmp.Diff compares cleanly across
// trackers that store time at reduced precision.
func record(path string, fill byte) splode.ProvenanceRecord {
	return splode.ProvenanceRecord{
		Path:        path,
		Fingerprint: splode.ContainerHash{fill, fill, fill},
		ExportedAt:  time.Date(2024, time.March, 14, 9, 26, 53, 0, time.UTC),
	}
}

// Call this function to set the location of every test-case in the source
// file. The returned string is used to guide developers of trackers to the
// appropriate test-case.
func locateSource() (path string) {
	_, file, line, ok := runtime.Caller(1)
	if !ok {
		panic("runtime.Caller failed")
	}
	return fmt.Sprintf("%v:%v", file, line)
}
