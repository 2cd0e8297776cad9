package splode

// A Visitor defines a Visit method invoked for each Entity encountered by
// Walk. If the visitor w returned by Visit(e) is not nil, Walk visits each
// entity e depends on within the container with the visitor w, followed by a
// call of w.Visit(nil).
type Visitor interface {
	Visit(e *Entity) (w Visitor)
}

// Walk traverses a container's entities in depth-first dependency order. It
// calls WalkSubtree for each root of the container: members no other member
// depends on. Cycles between members are cut at the first revisit.
func Walk(v Visitor, c *Container) {
	hasParent := make(map[StableID]bool)
	for _, edge := range c.Edges {
		hasParent[edge[1]] = true
	}
	visited := make(map[StableID]bool)
	for _, id := range c.MemberIDs() {
		if !hasParent[id] {
			walkSubtree(v, c, id, visited)
		}
	}
	// A unit that is one big reference cycle has no root at all; make sure
	// every member is still visited.
	for _, id := range c.MemberIDs() {
		if !visited[id] {
			walkSubtree(v, c, id, visited)
		}
	}
}

func walkSubtree(v Visitor, c *Container, id StableID, visited map[StableID]bool) {
	if visited[id] {
		return
	}
	visited[id] = true

	var entity *Entity
	for _, e := range c.Entities {
		if e.ID == id {
			entity = e
			break
		}
	}
	if entity == nil {
		return
	}
	if v = v.Visit(entity); v == nil {
		return
	}
	for _, edge := range c.Edges {
		if edge[0] == id {
			walkSubtree(v, c, edge[1], visited)
		}
	}
	v.Visit(nil)
}

type inspector func(e *Entity) bool

func (f inspector) Visit(e *Entity) Visitor {
	if f(e) {
		return f
	}
	return nil
}

// Inspect traverses a container in depth-first dependency order, calling f
// for every entity. If f returns true, Inspect recurses into the entity's
// intra-container dependencies, followed by a call of f(nil).
func Inspect(c *Container, f func(e *Entity) bool) {
	Walk(inspector(f), c)
}
