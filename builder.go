package splode

import (
	"unsafe"
)

// A GraphBuilder is used to safely and elegantly build a Graph using fluent
// calls, deferring error handling to the final Build call.
// The zero value is ready to use.
// Do not copy a non-zero GraphBuilder.
type GraphBuilder struct {
	entities []*Entity
	edges    [][2]StableID
	// address of receiver - to detect copies by value.
	// see copyCheck below for details.
	addr *GraphBuilder
}

// Entity appends the given entities to the graph under construction.
func (b *GraphBuilder) Entity(entity ...*Entity) *GraphBuilder {
	b.copyCheck()
	b.entities = append(b.entities, entity...)
	return b
}

// Connect appends a reference edge meaning from depends on to. Both entities
// must have been (or later be) added through Entity; a missing end surfaces
// as a DanglingReferenceError from Build.
func (b *GraphBuilder) Connect(from, to StableID) *GraphBuilder {
	b.copyCheck()
	b.edges = append(b.edges, [2]StableID{from, to})
	return b
}

// Build assembles the accumulated entities and edges into a fresh Graph. The
// first error encountered while inserting is returned; the builder keeps its
// contents, so a failed Build can be corrected and retried.
func (b *GraphBuilder) Build() (*Graph, error) {
	g := NewGraph()
	for _, e := range b.entities {
		if err := g.Add(e); err != nil {
			return nil, err
		}
	}
	for _, edge := range b.edges {
		if err := g.Connect(edge[0], edge[1]); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Reset resets the builder to be empty.
func (b *GraphBuilder) Reset() {
	b.entities = nil
	b.edges = nil
	b.addr = nil
}

// Noescape hides a pointer from escape analysis.
// It is the identity function, but escape analysis does not think the
// output depends on the input.
// Noescape is inlined and currently compiles down to zero instructions.
// USE CAREFULLY!
// This was copied from the runtime; see issues 23382 and 7921 (github.com/golang/go).
//
//go:nosplit
//go:nocheckptr
func noescape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0) //nolint:govet,staticcheck,gosec // copied from the standard library
}

func (b *GraphBuilder) copyCheck() {
	if b.addr == nil {
		// This hack works around a failing of Go's escape analysis
		// that was causing b to escape and be heap-allocated.
		// See issue 23382 (github.com/golang/go).
		b.addr = (*GraphBuilder)(noescape(unsafe.Pointer(b)))
	} else if b.addr != b {
		panic("splode: illegal use of non-zero GraphBuilder copied by value")
	}
}
