package splode

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// selectionEnv is the environment a selection expression evaluates against.
// Expressions see one entity at a time.
type selectionEnv struct {
	Name     string `expr:"name"`
	Kind     string `expr:"kind"`
	External bool   `expr:"external"`
}

// CompileSelection compiles a boolean expression into a Selection. The
// expression sees the fields of the entity under consideration:
//
//	name     the entity's display name
//	kind     the entity's kind, e.g. "mesh"
//	external whether the entity is already externalised
//
// For example: `kind == "mesh" || hasPrefix(name, "char_")`.
//
// Expressions offer hosts a convenient way to let users describe which
// entities to decompose without writing Go. An expression that fails at
// runtime rejects the entity it was evaluated for.
func CompileSelection(src string) (Selection, error) {
	program, err := expr.Compile(src,
		expr.Env(selectionEnv{}),
		expr.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("compile selection %q: %w", src, err)
	}
	return compiledSelection(program), nil
}

func compiledSelection(program *vm.Program) Selection {
	return func(e *Entity) bool {
		out, err := expr.Run(program, selectionEnv{
			Name:     e.Name,
			Kind:     string(e.Kind),
			External: e.External(),
		})
		if err != nil {
			return false
		}
		selected, ok := out.(bool)
		return ok && selected
	}
}
