package splode_test

import (
	"bytes"
	"context"
	"encoding/gob"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	splode "github.com/go-splode/go-splode"
	"github.com/go-splode/go-splode/trackertest"
)

func TestMemoryTracker(t *testing.T) {
	trackertest.Run(t, new(splode.MemoryTracker))
}

func TestMemoryTrackerGobRoundTrip(t *testing.T) {
	ctx := context.Background()
	tracker := new(splode.MemoryTracker)
	id := splode.NewStableID()
	err := tracker.Record(ctx, id, splode.ProvenanceRecord{
		Path:        "_meshes/suzanne.unit",
		Fingerprint: splode.ContainerHash{0xaa},
		ExportedAt:  time.Date(2024, time.March, 14, 9, 26, 53, 0, time.UTC),
	})
	if err != nil {
		t.Fatal("Record()", err)
	}

	// A tracker persists alongside the document it annotates.
	var p bytes.Buffer
	if err := gob.NewEncoder(&p).Encode(tracker); err != nil {
		t.Fatal("Encode(gob)", err)
	}
	reconstructed := new(splode.MemoryTracker)
	if err := gob.NewDecoder(&p).Decode(reconstructed); err != nil {
		t.Fatal("Decode(gob)", err)
	}

	want, err := tracker.All(ctx)
	if err != nil {
		t.Fatal("All(original)", err)
	}
	got, err := reconstructed.All(ctx)
	if err != nil {
		t.Fatal("All(reconstructed)", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Error("Reconstructed records differ:", diff)
	}
}
