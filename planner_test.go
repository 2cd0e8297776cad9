package splode

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// chainScene builds the canonical three-entity document used across the
// planner tests: an object using a mesh using a material.
func chainScene(t *testing.T) (g *Graph, object, mesh, material *Entity) {
	t.Helper()
	object = newTestEntity(KindObject, "cube")
	mesh = newTestEntity(KindMesh, "cube")
	material = newTestEntity(KindMaterial, "steel")

	var b GraphBuilder
	b.Entity(object, mesh, material)
	b.Connect(object.ID, mesh.ID)
	b.Connect(mesh.ID, material.ID)
	g, err := b.Build()
	if err != nil {
		t.Fatal("Build()", err)
	}
	return g, object, mesh, material
}

func TestPlanPullsInIndirectReferences(t *testing.T) {
	g, object, _, _ := chainScene(t)

	// Selecting only the object must still plan the mesh and the material it
	// transitively uses; referenced entities are made linkable, never
	// duplicated into the referencing unit.
	selected := func(e *Entity) bool { return e.ID == object.ID }
	plan, err := PlanDecomposition(g, selected, DefaultNamer(""))
	if err != nil {
		t.Fatal("PlanDecomposition()", err)
	}

	var paths []string
	for _, u := range plan.Units {
		paths = append(paths, u.Path)
		if len(u.Members) != 1 {
			t.Errorf("unit %q has %d members, want 1", u.Path, len(u.Members))
		}
	}
	// Dependencies first: the material has no dependencies, the object
	// depends on everything.
	want := []string{
		"_materials/steel.unit",
		"_meshes/cube.unit",
		"_objects/cube.unit",
	}
	if diff := cmp.Diff(want, paths); diff != "" {
		t.Error("Planned unit order differs:", diff)
	}
}

func TestPlanSharedDependencyPlannedOnce(t *testing.T) {
	mesh := newTestEntity(KindMesh, "tree")
	left := newTestEntity(KindObject, "tree.left")
	right := newTestEntity(KindObject, "tree.right")

	var b GraphBuilder
	b.Entity(mesh, left, right)
	b.Connect(left.ID, mesh.ID)
	b.Connect(right.ID, mesh.ID)
	g, err := b.Build()
	if err != nil {
		t.Fatal("Build()", err)
	}

	plan, err := PlanDecomposition(g, nil, DefaultNamer(""))
	if err != nil {
		t.Fatal("PlanDecomposition()", err)
	}

	// The shared mesh must appear in exactly one unit.
	seen := make(map[StableID]int)
	for _, u := range plan.Units {
		for _, id := range u.Members {
			seen[id]++
		}
	}
	if seen[mesh.ID] != 1 {
		t.Errorf("shared mesh planned %d times, want exactly once", seen[mesh.ID])
	}
	if len(plan.Units) != 3 {
		t.Errorf("planned %d units, want 3", len(plan.Units))
	}
	if plan.Units[0].Path != "_meshes/tree.unit" {
		t.Errorf("first unit = %q, want the shared mesh before its dependents", plan.Units[0].Path)
	}
}

func TestPlanCycleBetweenUnitsFails(t *testing.T) {
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

	_, err = PlanDecomposition(g, nil, DefaultNamer(""))
	var cyclic *CircularDependencyError
	if !errors.As(err, &cyclic) {
		t.Fatalf("PlanDecomposition() = %v, want CircularDependencyError", err)
	}
	if len(cyclic.Units) != 3 || cyclic.Units[0] != cyclic.Units[len(cyclic.Units)-1] {
		t.Errorf("cycle = %v, want a closed path over both units", cyclic.Units)
	}
}

func TestPlanCollapsedCycleSharesUnit(t *testing.T) {
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

	// Collapsing the cycle's members into one unit is the only partition
	// under which the cycle can be decomposed. The armature outranks the
	// object, so its path names the shared container.
	namer := CollapseNamer(g, DefaultNamer(""), []StableID{object.ID, armature.ID})
	plan, err := PlanDecomposition(g, nil, namer)
	if err != nil {
		t.Fatal("PlanDecomposition()", err)
	}
	if len(plan.Units) != 1 {
		t.Fatalf("planned %d units, want 1 collapsed unit", len(plan.Units))
	}
	unit := plan.Units[0]
	if unit.Path != "_armatures/rig.unit" {
		t.Errorf("collapsed unit path = %q, want the armature to name it", unit.Path)
	}
	if len(unit.Members) != 2 {
		t.Errorf("collapsed unit has %d members, want 2", len(unit.Members))
	}
	if !unit.Ambiguous {
		t.Error("collapsed unit of heterogeneous kinds was not flagged ambiguous")
	}
}

func TestPlanAmbiguousUnits(t *testing.T) {
	g, _, _, _ := chainScene(t)

	// A namer forcing everything into one container makes the unit
	// ambiguous; planning proceeds but reports it.
	everything := func(e *Entity) string { return "_bundles/all.unit" }
	plan, err := PlanDecomposition(g, nil, everything)
	if err != nil {
		t.Fatal("PlanDecomposition()", err)
	}
	ambiguous := plan.AmbiguousUnits()
	if len(ambiguous) != 1 {
		t.Fatalf("AmbiguousUnits() = %d, want 1", len(ambiguous))
	}
	if len(ambiguous[0].Kinds) != 3 {
		t.Errorf("ambiguous unit kinds = %v, want 3 distinct kinds", ambiguous[0].Kinds)
	}
}

func TestPlanSkipsExternalisedEntities(t *testing.T) {
	g, _, mesh, material := chainScene(t)

	// Externalise the mesh by hand, as a prior run would have.
	stub, _ := g.Entity(mesh.ID)
	stub.Payload = nil
	stub.Link = &LinkStub{Path: "_meshes/cube.unit"}
	g.Disconnect(mesh.ID, material.ID)

	plan, err := PlanDecomposition(g, nil, DefaultNamer(""))
	if err != nil {
		t.Fatal("PlanDecomposition()", err)
	}
	for _, u := range plan.Units {
		for _, id := range u.Members {
			if id == mesh.ID {
				t.Errorf("unit %q plans the already-externalised mesh", u.Path)
			}
		}
	}
	if len(plan.Units) != 2 {
		t.Errorf("planned %d units, want 2 (object and material)", len(plan.Units))
	}
}

func TestPlanSkipsLocalOnlyKinds(t *testing.T) {
	scene := &Entity{ID: NewStableID(), Kind: KindScene, Name: "shot-010", Payload: meshData{}}
	object := newTestEntity(KindObject, "cube")

	var b GraphBuilder
	b.Entity(scene, object)
	b.Connect(scene.ID, object.ID)
	g, err := b.Build()
	if err != nil {
		t.Fatal("Build()", err)
	}

	plan, err := PlanDecomposition(g, nil, DefaultNamer(""))
	if err != nil {
		t.Fatal("PlanDecomposition()", err)
	}
	if len(plan.Units) != 1 || plan.Units[0].Path != "_objects/cube.unit" {
		t.Errorf("plan = %+v, want only the object unit; scenes stay local", plan.Units)
	}
}

func TestPlanRejectsEmptyPath(t *testing.T) {
	g, _, _, _ := chainScene(t)
	if _, err := PlanDecomposition(g, nil, func(e *Entity) string { return "" }); err == nil {
		t.Error("PlanDecomposition() accepted a namer returning empty paths")
	}
}

func TestPlanRequiresNamer(t *testing.T) {
	g, _, _, _ := chainScene(t)
	if _, err := PlanDecomposition(g, nil, nil); err == nil {
		t.Error("PlanDecomposition() accepted a nil namer")
	}
}
