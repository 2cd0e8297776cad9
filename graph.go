package splode

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sort"
)

// A Graph is the in-memory representation of a composite document: a directed
// multigraph of entities and reference edges. An edge from A to B means A
// depends on B.
//
// A Graph is not safe for concurrent mutation. Decomposition and
// recomposition never mutate their input graph; they Clone it and return the
// new value, so a failed run rolls back by discarding the result.
type Graph struct {
	version  uint64
	entities map[StableID]*Entity
	out      map[StableID]map[StableID]struct{}
	in       map[StableID]map[StableID]struct{}
}

// NewGraph returns an empty graph at version zero.
func NewGraph() *Graph {
	return &Graph{
		entities: make(map[StableID]*Entity),
		out:      make(map[StableID]map[StableID]struct{}),
		in:       make(map[StableID]map[StableID]struct{}),
	}
}

// Version identifies the snapshot lineage of the graph. Clone increments it,
// so a plan computed over one snapshot cannot execute against another.
func (g *Graph) Version() uint64 { return g.version }

// Len returns the number of entities in the graph.
func (g *Graph) Len() int { return len(g.entities) }

// Add inserts the given entity. It fails if the identity is zero, already
// present, or the entity carries an override set without an external link.
func (g *Graph) Add(e *Entity) error {
	if e.ID.IsZero() {
		return fmt.Errorf("add entity %q: zero stable id", e.Name)
	}
	if _, ok := g.entities[e.ID]; ok {
		return fmt.Errorf("add entity %q: identity %v already present", e.Name, e.ID)
	}
	if err := e.checkOverrides(); err != nil {
		return err
	}
	g.entities[e.ID] = e
	return nil
}

// Remove deletes the entity and every edge touching it.
func (g *Graph) Remove(id StableID) error {
	if _, ok := g.entities[id]; !ok {
		return &DanglingReferenceError{To: id}
	}
	delete(g.entities, id)
	for to := range g.out[id] {
		delete(g.in[to], id)
	}
	for from := range g.in[id] {
		delete(g.out[from], id)
	}
	delete(g.out, id)
	delete(g.in, id)
	return nil
}

// Connect records a reference edge meaning from depends on to. Both ends must
// exist; otherwise a DanglingReferenceError is returned.
func (g *Graph) Connect(from, to StableID) error {
	if _, ok := g.entities[from]; !ok {
		return &DanglingReferenceError{To: from}
	}
	if _, ok := g.entities[to]; !ok {
		return &DanglingReferenceError{From: from, To: to}
	}
	if g.out[from] == nil {
		g.out[from] = make(map[StableID]struct{})
	}
	g.out[from][to] = struct{}{}
	if g.in[to] == nil {
		g.in[to] = make(map[StableID]struct{})
	}
	g.in[to][from] = struct{}{}
	return nil
}

// Disconnect removes the edge from -> to if present.
func (g *Graph) Disconnect(from, to StableID) {
	delete(g.out[from], to)
	delete(g.in[to], from)
}

// Entity looks up an entity by its stable identity.
func (g *Graph) Entity(id StableID) (*Entity, bool) {
	e, ok := g.entities[id]
	return e, ok
}

// Entities returns all entities sorted by identity for deterministic
// iteration.
func (g *Graph) Entities() []*Entity {
	out := make([]*Entity, 0, len(g.entities))
	for _, e := range g.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return lessID(out[i].ID, out[j].ID) })
	return out
}

// References returns the direct dependencies of the given entity, sorted.
func (g *Graph) References(id StableID) []StableID {
	return sortedIDs(g.out[id])
}

// ReferencedBy returns the entities directly depending on the given entity,
// sorted.
func (g *Graph) ReferencedBy(id StableID) []StableID {
	return sortedIDs(g.in[id])
}

// ReachableFrom computes the forward reachability set of the given entity:
// every entity it transitively depends on, excluding itself unless it lies on
// a cycle back to itself.
func (g *Graph) ReachableFrom(id StableID) (map[StableID]struct{}, error) {
	if _, ok := g.entities[id]; !ok {
		return nil, &DanglingReferenceError{To: id}
	}
	return g.closure(id, g.out), nil
}

// Dependents computes the reverse reachability set of the given entity: every
// entity that transitively depends on it.
func (g *Graph) Dependents(id StableID) (map[StableID]struct{}, error) {
	if _, ok := g.entities[id]; !ok {
		return nil, &DanglingReferenceError{To: id}
	}
	return g.closure(id, g.in), nil
}

func (g *Graph) closure(id StableID, edges map[StableID]map[StableID]struct{}) map[StableID]struct{} {
	seen := make(map[StableID]struct{})
	stack := []StableID{id}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for next := range edges[n] {
			if _, ok := seen[next]; ok {
				continue
			}
			seen[next] = struct{}{}
			stack = append(stack, next)
		}
	}
	return seen
}

// Clone returns a deep copy of the graph at the next version. Entity payloads
// are shared between clones; they are treated as immutable values.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		version:  g.version + 1,
		entities: make(map[StableID]*Entity, len(g.entities)),
		out:      make(map[StableID]map[StableID]struct{}, len(g.out)),
		in:       make(map[StableID]map[StableID]struct{}, len(g.in)),
	}
	for id, e := range g.entities {
		c.entities[id] = e.clone()
	}
	for id, tos := range g.out {
		if len(tos) == 0 {
			continue
		}
		m := make(map[StableID]struct{}, len(tos))
		for to := range tos {
			m[to] = struct{}{}
		}
		c.out[id] = m
	}
	for id, froms := range g.in {
		if len(froms) == 0 {
			continue
		}
		m := make(map[StableID]struct{}, len(froms))
		for from := range froms {
			m[from] = struct{}{}
		}
		c.in[id] = m
	}
	return c
}

// graphWire is the serialised form of a Graph. Entities are sorted by
// identity and edges lexicographically so encoding is deterministic.
type graphWire struct {
	Version  uint64
	Entities []*Entity
	Edges    [][2]StableID
}

// GobEncode implements gob.GobEncoder so graphs round-trip with the composite
// document. Payload types must be registered with gob beforehand.
func (g *Graph) GobEncode() ([]byte, error) {
	w := graphWire{
		Version:  g.version,
		Entities: g.Entities(),
	}
	for _, from := range sortedIDs(keysOf(g.out)) {
		for _, to := range sortedIDs(g.out[from]) {
			w.Edges = append(w.Edges, [2]StableID{from, to})
		}
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(w); err != nil {
		return nil, fmt.Errorf("encode graph: %w", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (g *Graph) GobDecode(data []byte) error {
	var w graphWire
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return fmt.Errorf("decode graph: %w", err)
	}
	*g = *NewGraph()
	g.version = w.Version
	for _, e := range w.Entities {
		if err := g.Add(e); err != nil {
			return err
		}
	}
	for _, edge := range w.Edges {
		if err := g.Connect(edge[0], edge[1]); err != nil {
			return err
		}
	}
	return nil
}

func lessID(a, b StableID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

func sortedIDs(set map[StableID]struct{}) []StableID {
	if len(set) == 0 {
		return nil
	}
	ids := make([]StableID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return lessID(ids[i], ids[j]) })
	return ids
}

func keysOf(m map[StableID]map[StableID]struct{}) map[StableID]struct{} {
	keys := make(map[StableID]struct{}, len(m))
	for id, tos := range m {
		if len(tos) > 0 {
			keys[id] = struct{}{}
		}
	}
	return keys
}
