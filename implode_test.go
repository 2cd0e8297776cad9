package splode

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// loaderOf serves containers from the writes of a prior Explode, as a VCS
// read would.
func loaderOf(t *testing.T, writes []ContainerWrite) ContainerLoader {
	t.Helper()
	byPath := make(map[string][]byte, len(writes))
	for _, w := range writes {
		byPath[w.Path] = w.Data
	}
	return func(_ context.Context, path string) (*Container, error) {
		data, ok := byPath[path]
		if !ok {
			return nil, errors.New("no such container: " + path)
		}
		return DecodeContainer(data)
	}
}

func TestExplodeImplodeRoundTrip(t *testing.T) {
	g, _, _, _ := chainScene(t)
	plan, err := PlanDecomposition(g, nil, DefaultNamer(""))
	if err != nil {
		t.Fatal("PlanDecomposition()", err)
	}
	residual, writes, err := Explode(context.Background(), g, plan)
	if err != nil {
		t.Fatal("Explode()", err)
	}

	restored, err := Implode(context.Background(), residual, loaderOf(t, writes))
	if err != nil {
		t.Fatal("Implode()", err)
	}

	// Implode(Explode(g)) restores the original document: entities, payloads
	// and edges.
	if diff := cmp.Diff(g.Entities(), restored.Entities()); diff != "" {
		t.Error("Restored entities differ:", diff)
	}
	for _, e := range g.Entities() {
		if diff := cmp.Diff(g.References(e.ID), restored.References(e.ID)); diff != "" {
			t.Errorf("Restored references of %v differ: %v", e.ID, diff)
		}
	}
}

func TestImplodeCollapsedCycleRoundTrip(t *testing.T) {
	object := newTestEntity(KindObject, "rig")
	armature := newTestEntity(KindArmature, "rig")

	var b GraphBuilder
	b.Entity(object, armature)
	b.Connect(object.ID, armature.ID)
	b.Connect(armature.ID, object.ID)
	g, err := b.Build()
	if err != nil {
		t.Fatal("Build()", err)
	}

	namer := CollapseNamer(g, DefaultNamer(""), []StableID{object.ID, armature.ID})
	plan, err := PlanDecomposition(g, nil, namer)
	if err != nil {
		t.Fatal("PlanDecomposition()", err)
	}
	residual, writes, err := Explode(context.Background(), g, plan)
	if err != nil {
		t.Fatal("Explode()", err)
	}

	restored, err := Implode(context.Background(), residual, loaderOf(t, writes))
	if err != nil {
		t.Fatal("Implode()", err)
	}
	if refs := restored.References(object.ID); len(refs) != 1 || refs[0] != armature.ID {
		t.Errorf("References(object) = %v, want the cycle edge restored", refs)
	}
	if refs := restored.References(armature.ID); len(refs) != 1 || refs[0] != object.ID {
		t.Errorf("References(armature) = %v, want the cycle edge restored", refs)
	}
}

func TestImplodeWithoutStubsIsNoop(t *testing.T) {
	g, _, _, _ := chainScene(t)
	restored, err := Implode(context.Background(), g, loaderOf(t, nil))
	if err != nil {
		t.Fatal("Implode()", err)
	}
	if restored != g {
		t.Error("Implode() of a fully-local graph returned a new graph, want the input unchanged")
	}
}

func TestImplodeMismatchIsolated(t *testing.T) {
	g, object, mesh, _ := chainScene(t)
	plan, err := PlanDecomposition(g, nil, DefaultNamer(""))
	if err != nil {
		t.Fatal("PlanDecomposition()", err)
	}
	residual, writes, err := Explode(context.Background(), g, plan)
	if err != nil {
		t.Fatal("Explode()", err)
	}

	// Corrupt the mesh container: serve an empty one in its place. Its
	// structure no longer matches the stub linking to it.
	for i, w := range writes {
		if w.Path != "_meshes/cube.unit" {
			continue
		}
		data, err := EncodeContainer(&Container{Path: w.Path})
		if err != nil {
			t.Fatal("EncodeContainer()", err)
		}
		writes[i].Data = data
	}

	restored, err := Implode(context.Background(), residual, loaderOf(t, writes))
	var mismatch *ContainerMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("Implode() = %v, want ContainerMismatchError", err)
	}
	if mismatch.Path != "_meshes/cube.unit" || len(mismatch.Missing) != 1 || mismatch.Missing[0] != mesh.ID {
		t.Errorf("ContainerMismatchError = %+v, want the mesh container and the mesh identity", mismatch)
	}

	// The failure is isolated: the other containers still materialised.
	if e, _ := restored.Entity(object.ID); e.External() || e.Payload == nil {
		t.Error("unrelated object container did not materialise")
	}
	if e, _ := restored.Entity(mesh.ID); !e.External() {
		t.Error("mismatched mesh stub was materialised anyway")
	}
}

func TestImplodeDropsOverrides(t *testing.T) {
	g, object, _, _ := chainScene(t)
	plan, err := PlanDecomposition(g, nil, DefaultNamer(""))
	if err != nil {
		t.Fatal("PlanDecomposition()", err)
	}
	residual, writes, err := Explode(context.Background(), g, plan)
	if err != nil {
		t.Fatal("Explode()", err)
	}

	// A host layered local overrides on the linked object.
	stub, _ := residual.Entity(object.ID)
	stub.Overrides = OverrideSet{"location": []float64{1, 2, 3}}

	restored, err := Implode(context.Background(), residual, loaderOf(t, writes))
	if err != nil {
		t.Fatal("Implode()", err)
	}
	e, _ := restored.Entity(object.ID)
	if len(e.Overrides) != 0 {
		t.Errorf("Overrides survived materialisation: %v", e.Overrides)
	}
	if e.External() || e.Payload == nil {
		t.Error("entity with overrides did not materialise")
	}
}
