// Package splode decomposes a monolithic composite document - a graph of
// interdependent entities such as objects, meshes, materials and textures -
// into a set of externally-linked single-entity container files, and
// recomposes them back into one in-memory graph on demand.
//
// The package operates in three phases. PlanDecomposition partitions the
// entity graph into export units, verifying that the unit-level graph is
// acyclic (entities inside one unit may still reference each other freely).
// Explode executes the plan: each unit's entities move into a standalone
// Container and the residual graph keeps only link stubs for them.
// Implode is the inverse: link stubs are materialised back into local
// entities from externally supplied containers.
//
// Entities carry an opaque StableID that never changes across renames or
// sessions. A Tracker records, per StableID, the container path each entity
// was last exported to; Reconcile joins the current plan against those
// records so that a renamed entity produces a rename request towards the
// version-control collaborator instead of a delete-and-create pair.
//
// Graphs are treated as versioned values: Explode and Implode never modify
// their input, they return a new graph. A failed run is rolled back by simply
// discarding the returned value.
package splode
