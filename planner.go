package splode

import (
	"fmt"
	"sort"
)

// An ExportUnit is a set of entities slated to share one externalised
// container. Units are the grain of decomposition: the subgraph of reference
// edges crossing unit boundaries must form a DAG, while entities within one
// unit may reference each other freely, including cyclically.
type ExportUnit struct {
	// Path is the planned container path, as produced by the Namer. It is
	// also the unit's grouping key: entities named to the same path join one
	// unit.
	Path string
	// Members holds the unit's entities, sorted by identity.
	Members []StableID
	// Kinds lists the distinct entity kinds among the members, sorted.
	Kinds []Kind
	// Ambiguous marks a unit holding more than one entity of heterogeneous
	// kinds. Decomposition proceeds, but the unit is reported for manual
	// review rather than silently merging unrelated entities.
	Ambiguous bool
}

// A Plan is the immutable result of partitioning a graph for decomposition.
// Units appear in topological export order, dependencies first, so a
// container is always written before the containers that link to it.
type Plan struct {
	// Units in export order.
	Units []ExportUnit

	// The graph version the plan was computed over. Explode refuses to run a
	// plan against any other version.
	graphVersion uint64
}

// AmbiguousUnits returns the units flagged for manual review.
func (p *Plan) AmbiguousUnits() []ExportUnit {
	var out []ExportUnit
	for _, u := range p.Units {
		if u.Ambiguous {
			out = append(out, u)
		}
	}
	return out
}

// PlanDecomposition partitions the graph into export units.
//
// The candidate set is every entity accepted by the selection, plus
// everything those entities transitively reference: an entity referenced by a
// selected one must end up linkable even if it was not explicitly selected,
// never silently duplicated into each referencing unit. Entities of
// non-exportable kinds and entities that are already externalised are left
// out of the partition; they belong to the implicit remains-local unit.
//
// Candidates are grouped into units by the namer: entities mapped to the same
// path share a container. The planner then collapses entity edges to unit
// edges and verifies the unit graph is acyclic; a cycle fails the whole plan
// with a CircularDependencyError naming the offending units. Units holding
// heterogeneous kinds are flagged Ambiguous, not rejected.
//
// A nil selection defaults to DefaultSelection.
func PlanDecomposition(g *Graph, selected Selection, namer Namer) (*Plan, error) {
	if namer == nil {
		return nil, fmt.Errorf("splode: plan requires a naming function")
	}
	if selected == nil {
		selected = DefaultSelection
	}

	// Closure over indirect references. Entities already carrying a link stub
	// are skipped: their payload lives in some container already.
	candidate := func(e *Entity) bool { return e.Kind.Exportable() && !e.External() }
	inPlan := make(map[StableID]struct{})
	var grow func(id StableID)
	grow = func(id StableID) {
		if _, ok := inPlan[id]; ok {
			return
		}
		inPlan[id] = struct{}{}
		for _, next := range g.References(id) {
			ref, _ := g.Entity(next)
			if candidate(ref) {
				grow(next)
			}
		}
	}
	for _, e := range g.Entities() {
		if candidate(e) && selected(e) {
			grow(e.ID)
		}
	}

	// Group by planned path. The namer is the grouping key: this is where
	// "too many entities in one file" becomes observable instead of assumed
	// away.
	members := make(map[string][]StableID)
	for id := range inPlan {
		e, _ := g.Entity(id)
		p := namer(e)
		if p == "" {
			return nil, fmt.Errorf("splode: naming function returned an empty path for entity %v (%s %q)", e.ID, e.Kind, e.Name)
		}
		members[p] = append(members[p], id)
	}

	units := make(map[string]*ExportUnit, len(members))
	unitOf := make(map[StableID]string, len(inPlan))
	for p, ids := range members {
		sort.Slice(ids, func(i, j int) bool { return lessID(ids[i], ids[j]) })
		kinds := distinctKinds(g, ids)
		units[p] = &ExportUnit{
			Path:      p,
			Members:   ids,
			Kinds:     kinds,
			Ambiguous: len(ids) > 1 && len(kinds) > 1,
		}
		for _, id := range ids {
			unitOf[id] = p
		}
	}

	// Collapse entity edges to unit edges. Edges to entities outside the
	// partition stay in the residual document and are not part of the unit
	// DAG.
	unitEdges := make(map[string]map[string]struct{}, len(units))
	for id := range inPlan {
		from := unitOf[id]
		for _, next := range g.References(id) {
			to, ok := unitOf[next]
			if !ok || to == from {
				continue
			}
			if unitEdges[from] == nil {
				unitEdges[from] = make(map[string]struct{})
			}
			unitEdges[from][to] = struct{}{}
		}
	}

	order, cycle := sortUnits(units, unitEdges)
	if cycle != nil {
		return nil, &CircularDependencyError{Units: cycle}
	}

	plan := &Plan{graphVersion: g.Version()}
	for _, p := range order {
		plan.Units = append(plan.Units, *units[p])
	}
	return plan, nil
}

func distinctKinds(g *Graph, ids []StableID) []Kind {
	set := make(map[Kind]struct{})
	for _, id := range ids {
		e, _ := g.Entity(id)
		set[e.Kind] = struct{}{}
	}
	kinds := make([]Kind, 0, len(set))
	for k := range set {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Colours of the depth-first traversals over units and renames. A grey node
// is on the current traversal path; meeting one again closes a cycle.
const (
	white = iota
	grey
	black
)

// sortUnits returns the unit paths in topological order, dependencies first.
// If the unit graph holds a cycle, it returns the cycle's paths in traversal
// order instead.
func sortUnits(units map[string]*ExportUnit, edges map[string]map[string]struct{}) (order []string, cycle []string) {
	paths := make([]string, 0, len(units))
	for p := range units {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	colour := make(map[string]int, len(units))
	var path []string

	var visit func(p string) []string
	visit = func(p string) []string {
		colour[p] = grey
		path = append(path, p)
		for _, next := range sortedPaths(edges[p]) {
			switch colour[next] {
			case grey:
				// Close the cycle at its first occurrence on the path.
				for i, seen := range path {
					if seen == next {
						return append(append([]string(nil), path[i:]...), next)
					}
				}
			case white:
				if c := visit(next); c != nil {
					return c
				}
			}
		}
		path = path[:len(path)-1]
		colour[p] = black
		// Dependencies are emitted by the recursive calls above, so the
		// post-order append yields a dependencies-first order.
		order = append(order, p)
		return nil
	}

	for _, p := range paths {
		if colour[p] == white {
			if c := visit(p); c != nil {
				return nil, c
			}
		}
	}
	return order, nil
}

func sortedPaths(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	paths := make([]string, 0, len(set))
	for p := range set {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// CollapseNamer wraps a base namer so that every entity of each given cluster
// is named to one shared container: the container of the cluster's
// highest-ranking member (lowest Kind rank, ties broken by name then
// identity). Use it to place the members of a detected reference cycle into a
// single unit, which is the only partition under which such a cycle can be
// decomposed.
func CollapseNamer(g *Graph, base Namer, clusters ...[]StableID) Namer {
	forced := make(map[StableID]string)
	for _, cluster := range clusters {
		main := mainEntity(g, cluster)
		if main == nil {
			continue
		}
		p := base(main)
		for _, id := range cluster {
			forced[id] = p
		}
	}
	return func(e *Entity) string {
		if p, ok := forced[e.ID]; ok {
			return p
		}
		return base(e)
	}
}

// mainEntity picks the entity that names a collapsed cluster.
func mainEntity(g *Graph, cluster []StableID) *Entity {
	var main *Entity
	for _, id := range cluster {
		e, ok := g.Entity(id)
		if !ok {
			continue
		}
		if main == nil {
			main = e
			continue
		}
		switch {
		case e.Kind.rank() < main.Kind.rank():
			main = e
		case e.Kind.rank() == main.Kind.rank() &&
			(e.Name < main.Name || (e.Name == main.Name && lessID(e.ID, main.ID))):
			main = e
		}
	}
	return main
}
