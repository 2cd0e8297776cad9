package splode_test

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/danielorbach/go-component"
	"github.com/google/go-cmp/cmp"
	"gocloud.dev/pubsub"

	. "github.com/go-splode/go-splode"
)

var marshalTests = []struct {
	Name  string
	Value DocumentExported
}{
	{
		Name:  "Empty",
		Value: DocumentExported{},
	},
	{
		Name: "NoChanges",
		Value: DocumentExported{
			DocBefore: DocumentHash{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
			DocAfter:  DocumentHash{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		},
	},
	{
		Name: "Exports",
		Value: DocumentExported{
			DocBefore: DocumentHash{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
			Units: []UnitExport{
				{
					Path:    "_meshes/suzanne.unit",
					Hash:    ContainerHash{0xaa},
					Members: []StableID{{1}, {2}},
				},
				{
					Path:    "_objects/cube.unit",
					Hash:    ContainerHash{0xbb},
					Members: []StableID{{3}},
					Renamed: "_objects/box.unit",
				},
			},
			DocAfter:  DocumentHash{9, 8, 7, 6, 5, 4, 3, 2, 1, 0},
			Timestamp: time.Date(2024, time.March, 14, 9, 26, 53, 0, time.UTC),
		},
	},
}

func TestGobMarshalling(t *testing.T) {
	for i := range marshalTests {
		tt := marshalTests[i]
		t.Run(tt.Name, func(t *testing.T) {
			var p bytes.Buffer
			enc := gob.NewEncoder(&p)
			if err := enc.Encode(tt.Value); err != nil {
				t.Fatal("Encode(gob)", err)
			}
			var reconstructed DocumentExported
			dec := gob.NewDecoder(&p)
			if err := dec.Decode(&reconstructed); err != nil {
				t.Fatal("Decode(gob)", err)
			}

			if diff := cmp.Diff(tt.Value, reconstructed); diff != "" {
				t.Error("Reconstructed value differs:", diff)
			}
		})
	}
}

func TestDocumentExportedIsEmpty(t *testing.T) {
	same := DocumentExported{
		DocBefore: DocumentHash{1},
		DocAfter:  DocumentHash{1},
	}
	if !same.IsEmpty() {
		t.Error("IsEmpty() = false for an unchanged document")
	}
	changed := DocumentExported{
		DocBefore: DocumentHash{1},
		DocAfter:  DocumentHash{2},
	}
	if changed.IsEmpty() {
		t.Error("IsEmpty() = true for a changed document")
	}
}

func TestExportIndex(t *testing.T) {
	suzanne, cube := NewStableID(), NewStableID()

	x := NewExportIndex()
	if _, ok := x.PathOf(suzanne); ok {
		t.Error("PathOf(empty index) = true, expected false")
	}

	x.Observe(UnitExported{
		UnitExport: UnitExport{
			Path:    "_meshes/suzanne.unit",
			Members: []StableID{suzanne},
		},
	})
	x.Observe(UnitExported{
		UnitExport: UnitExport{
			Path:    "_objects/cube.unit",
			Members: []StableID{cube},
		},
	})

	if p, ok := x.PathOf(suzanne); !ok || p != "_meshes/suzanne.unit" {
		t.Errorf("PathOf(suzanne) = %q, %v; want the observed path", p, ok)
	}

	// A later export of the same identity moves it.
	x.Observe(UnitExported{
		UnitExport: UnitExport{
			Path:    "_meshes/monkey.unit",
			Members: []StableID{suzanne},
			Renamed: "_meshes/suzanne.unit",
		},
	})
	if p, _ := x.PathOf(suzanne); p != "_meshes/monkey.unit" {
		t.Errorf("PathOf(suzanne) after rename = %q, want the new path", p)
	}

	var count int
	x.Iter(func(StableID, string) bool {
		count++
		return true
	})
	if count != 2 {
		t.Errorf("Iter() visited %d identities, want 2", count)
	}
}

// ExampleNewExportNotifier shows an example [component.Descriptor] for an
// export notifier with an example bootstrap function.
func ExampleNewExportNotifier() {
	documentExportedAspect := "splode.document-exported"
	unitExportedAspect := "splode.unit-exported"

	d := &component.Descriptor{
		Name: "splode-export-notifier",
		Doc:  "....",
		Bootstrap: func(l *component.L, target component.Linker, options any) error {
			logger := component.Logger(l.Context())

			logger.Debug("Opening interest subscription...", slog.String("topic-name", documentExportedAspect))
			documentExports, err := target.LinkInterest(l.GraceContext(), documentExportedAspect)
			if err != nil {
				return fmt.Errorf("open interest %q: %w", documentExportedAspect, err)
			}
			l.CleanupBackground(documentExports.Shutdown)
			logger.Info("Interest subscription opened successfully")

			logger.Debug("Opening aspect topic...", slog.String("topic-name", unitExportedAspect))
			unitExports, err := target.LinkAspect(l.GraceContext(), unitExportedAspect)
			if err != nil {
				return fmt.Errorf("open aspect %q: %w", unitExportedAspect, err)
			}
			l.CleanupContext(unitExports.Shutdown)
			logger.Info("Aspect topic opened successfully")

			l.Fork("export notifier", NewExportNotifier("shot-010", documentExports, unitExports))

			return nil
		},
		Aspects:   []string{unitExportedAspect},
		Interests: []string{documentExportedAspect},
	}

	fmt.Print(d)
}

// The following example demonstrates the flow of using TrackExports to keep
// a consumer-side view of where each entity lives. This code is for
// illustration purposes only and is not meant to be executed as is.
func ExampleTrackExports() {
	// Normally, a component is given a linker that is used to open an
	// interest to UnitExported notifications. For this example, we assume
	// the outcome of that process is stored at the following variable.
	var unitExports *pubsub.Subscription

	index := NewExportIndex()

	component.RunProc(func(l *component.L) {
		l.Fork("track exports", TrackExports(index, unitExports))
		l.Go("something to do", func(l *component.L) {
			// Retrieve and display the container path of a known entity.
			p, ok := index.PathOf(StableID{})
			if ok {
				l.Logf("Entity %s lives at %s", StableID{}, p)
			}
		})
	})
}
