package splode

import "testing"

func TestCompileSelection(t *testing.T) {
	mesh := newTestEntity(KindMesh, "char_hero")
	object := newTestEntity(KindObject, "lamp")
	linked := newTestEntity(KindMesh, "tree")
	linked.Payload = nil
	linked.Link = &LinkStub{Path: "_meshes/tree.unit"}

	tests := []struct {
		Name string
		Expr string
		Want map[*Entity]bool
	}{
		{
			Name: "ByKind",
			Expr: `kind == "mesh"`,
			Want: map[*Entity]bool{mesh: true, object: false, linked: true},
		},
		{
			Name: "ByNamePrefix",
			Expr: `hasPrefix(name, "char_")`,
			Want: map[*Entity]bool{mesh: true, object: false, linked: false},
		},
		{
			Name: "LocalMeshesOnly",
			Expr: `kind == "mesh" && !external`,
			Want: map[*Entity]bool{mesh: true, object: false, linked: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			selection, err := CompileSelection(tt.Expr)
			if err != nil {
				t.Fatal("CompileSelection()", err)
			}
			for e, want := range tt.Want {
				if got := selection(e); got != want {
					t.Errorf("selection(%s %q) = %v, want %v", e.Kind, e.Name, got, want)
				}
			}
		})
	}
}

func TestCompileSelectionErrors(t *testing.T) {
	if _, err := CompileSelection(`kind ==`); err == nil {
		t.Error("CompileSelection() accepted a syntactically invalid expression")
	}
	if _, err := CompileSelection(`name`); err == nil {
		t.Error("CompileSelection() accepted a non-boolean expression")
	}
	if _, err := CompileSelection(`nonsense == 1`); err == nil {
		t.Error("CompileSelection() accepted an unknown identifier")
	}
}
