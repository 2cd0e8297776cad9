package splode

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// A ContainerWrite is one container ready for the external persistence
// collaborator. The engine never writes files itself; committing the run -
// renames, writes, and provenance updates - is an explicit caller step (see
// CommitExport).
type ContainerWrite struct {
	Unit ExportUnit
	Path string
	Hash ContainerHash
	Data []byte
}

// Explode executes a decomposition plan over the given graph.
//
// For each unit, in the plan's dependencies-first order, it extracts the
// unit's entities and their intra-unit edges into a Container, and rewrites
// the residual graph so the extracted entities keep only a link stub: their
// payload is released to the container and intra-unit edges disappear from
// the residual graph. Cross-unit edges stay, connecting stubs, so the
// residual graph remains a valid DAG at the unit level by construction.
//
// The input graph is never modified. Explode returns the residual graph as a
// new value together with the serialised containers; a caller that fails to
// persist them simply discards both and retains the pre-run graph.
//
// Containers of independent units are serialised concurrently: the plan is
// immutable once produced, so per-unit serialisation has no cross-unit
// dependencies. The given context bounds that work.
func Explode(ctx context.Context, g *Graph, plan *Plan) (residual *Graph, writes []ContainerWrite, err error) {
	ctx, span := tracer.Start(ctx, "Explode", trace.WithAttributes(
		attribute.Int("plan.units", len(plan.Units)),
	))
	defer span.End()
	defer func(start time.Time) {
		measureExplode(ctx, err == nil, time.Since(start))
	}(time.Now())

	if plan.graphVersion != g.Version() {
		span.SetStatus(codes.Error, ErrStalePlan.Error())
		return nil, nil, ErrStalePlan
	}

	next := g.Clone()

	containers := make([]*Container, len(plan.Units))
	for i, unit := range plan.Units {
		c, err := extractUnit(next, unit)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, nil, err
		}
		containers[i] = c
	}

	// Only the serialisation of the already-extracted containers is fanned
	// out; graph mutations stay on this goroutine.
	writes = make([]ContainerWrite, len(plan.Units))
	grp, ctx := errgroup.WithContext(ctx)
	for i := range containers {
		grp.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			c := containers[i]
			hash, err := c.Hash()
			if err != nil {
				return err
			}
			data, err := EncodeContainer(c)
			if err != nil {
				return err
			}
			writes[i] = ContainerWrite{
				Unit: plan.Units[i],
				Path: c.Path,
				Hash: hash,
				Data: data,
			}
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, fmt.Errorf("serialise containers: %w", err)
	}

	return next, writes, nil
}

// extractUnit moves the unit's entities out of the graph and into a fresh
// container, leaving link stubs behind. The payloads move, they are not
// copied: after extraction the graph holds no local payload for any member.
func extractUnit(g *Graph, unit ExportUnit) (*Container, error) {
	c := &Container{Path: unit.Path}

	inUnit := make(map[StableID]struct{}, len(unit.Members))
	for _, id := range unit.Members {
		inUnit[id] = struct{}{}
	}

	for _, id := range unit.Members {
		e, ok := g.Entity(id)
		if !ok {
			return nil, &DanglingReferenceError{To: id}
		}
		if e.External() {
			return nil, fmt.Errorf("unit %q: entity %v is already externalised to %q", unit.Path, id, e.Link.Path)
		}
		if e.Payload == nil {
			return nil, fmt.Errorf("unit %q: entity %v has no payload to extract", unit.Path, id)
		}

		// The container receives the local copy; the residual keeps a stub.
		extracted := e.clone()
		extracted.Link = nil
		c.Entities = append(c.Entities, extracted)

		for _, to := range g.References(id) {
			if _, ok := inUnit[to]; ok {
				c.Edges = append(c.Edges, [2]StableID{id, to})
				g.Disconnect(id, to)
			}
		}

		e.Payload = nil
		e.Link = &LinkStub{Path: unit.Path}
	}

	return c, nil
}
