package splode

import (
	"context"
	"errors"
	"testing"
)

func TestExplodeStalePlan(t *testing.T) {
	g, _, _, _ := chainScene(t)
	plan, err := PlanDecomposition(g, nil, DefaultNamer(""))
	if err != nil {
		t.Fatal("PlanDecomposition()", err)
	}

	// A clone is a different snapshot; the plan no longer applies.
	if _, _, err := Explode(context.Background(), g.Clone(), plan); !errors.Is(err, ErrStalePlan) {
		t.Errorf("Explode(clone) = %v, want ErrStalePlan", err)
	}
}

func TestExplodeLeavesStubs(t *testing.T) {
	g, object, mesh, material := chainScene(t)
	plan, err := PlanDecomposition(g, nil, DefaultNamer(""))
	if err != nil {
		t.Fatal("PlanDecomposition()", err)
	}

	residual, writes, err := Explode(context.Background(), g, plan)
	if err != nil {
		t.Fatal("Explode()", err)
	}

	// The input graph is untouched; the run rolls back by discarding the
	// residual.
	for _, e := range g.Entities() {
		if e.Payload == nil || e.External() {
			t.Errorf("Explode() modified the input graph entity %v", e.ID)
		}
	}

	wantPaths := map[StableID]string{
		object.ID:   "_objects/cube.unit",
		mesh.ID:     "_meshes/cube.unit",
		material.ID: "_materials/steel.unit",
	}
	for id, path := range wantPaths {
		e, ok := residual.Entity(id)
		if !ok {
			t.Fatalf("residual graph lost entity %v", id)
		}
		if !e.External() || e.Link.Path != path {
			t.Errorf("residual entity %v link = %+v, want stub to %q", id, e.Link, path)
		}
		if e.Payload != nil {
			t.Errorf("residual entity %v still carries a payload", id)
		}
	}

	// Cross-unit edges survive, connecting the stubs.
	if refs := residual.References(object.ID); len(refs) != 1 || refs[0] != mesh.ID {
		t.Errorf("References(object) = %v, want the cross-unit edge to remain", refs)
	}

	if len(writes) != len(plan.Units) {
		t.Fatalf("Explode() produced %d writes, want %d", len(writes), len(plan.Units))
	}
	for _, w := range writes {
		c, err := DecodeContainer(w.Data)
		if err != nil {
			t.Fatal("DecodeContainer()", err)
		}
		if c.Path != w.Path {
			t.Errorf("container path = %q, want %q", c.Path, w.Path)
		}
		hash, err := c.Hash()
		if err != nil {
			t.Fatal("Hash()", err)
		}
		if hash != w.Hash {
			t.Errorf("container hash = %v, want the hash reported by the write %v", hash, w.Hash)
		}
	}
}

func TestExplodeCollapsedCycle(t *testing.T) {
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

	// Both cycle edges move into the container; the residual keeps none.
	if refs := residual.References(object.ID); len(refs) != 0 {
		t.Errorf("References(object) = %v, want intra-unit edges removed", refs)
	}
	if refs := residual.References(armature.ID); len(refs) != 0 {
		t.Errorf("References(armature) = %v, want intra-unit edges removed", refs)
	}

	c, err := DecodeContainer(writes[0].Data)
	if err != nil {
		t.Fatal("DecodeContainer()", err)
	}
	if len(c.Entities) != 2 || len(c.Edges) != 2 {
		t.Errorf("container holds %d entities and %d edges, want 2 and 2", len(c.Entities), len(c.Edges))
	}
}

func TestExplodeThenReplanIsEmpty(t *testing.T) {
	g, _, _, _ := chainScene(t)
	plan, err := PlanDecomposition(g, nil, DefaultNamer(""))
	if err != nil {
		t.Fatal("PlanDecomposition()", err)
	}
	residual, _, err := Explode(context.Background(), g, plan)
	if err != nil {
		t.Fatal("Explode()", err)
	}

	// Re-running decomposition over an already-decomposed document plans
	// nothing: every entity is a stub.
	replan, err := PlanDecomposition(residual, nil, DefaultNamer(""))
	if err != nil {
		t.Fatal("PlanDecomposition(residual)", err)
	}
	if len(replan.Units) != 0 {
		t.Errorf("replanned %d units, want 0", len(replan.Units))
	}
}
