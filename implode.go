package splode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/danielorbach/go-component"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// A ContainerLoader supplies the content of an external container by its
// path. Implode calls it once per distinct linked path; any I/O bounds
// (timeouts, retries) are the loader's responsibility.
type ContainerLoader func(ctx context.Context, path string) (*Container, error)

// LoadVia adapts a VCS collaborator into a ContainerLoader that reads and
// decodes container files.
func LoadVia(store VCS) ContainerLoader {
	return func(ctx context.Context, path string) (*Container, error) {
		data, err := store.Read(ctx, path)
		if err != nil {
			return nil, &VCSError{Op: "read", Path: path, Err: err}
		}
		return DecodeContainer(data)
	}
}

// Implode materialises every externally-linked entity of the graph back into
// a local one: each link stub regains the payload held by its container, and
// the intra-unit edges stored there are restored. Entities a container holds
// beyond the graph's stubs (cycle members embedded alongside a unit's main
// entity) are added as new local entities.
//
// Implode is idempotent: a graph without link stubs is returned unchanged. A
// container whose content does not match the identity set declared by the
// stubs referencing it is rejected with a ContainerMismatchError; the failure
// is isolated to that container, unrelated containers still materialise, and
// the per-container errors are joined into the returned error.
//
// The input graph is never modified; Implode returns a new graph value.
func Implode(ctx context.Context, g *Graph, load ContainerLoader) (*Graph, error) {
	ctx, span := tracer.Start(ctx, "Implode")
	defer span.End()
	logger := component.Logger(ctx)

	// Group stub identities by the container path they link to.
	linked := make(map[string][]StableID)
	for _, e := range g.Entities() {
		if e.External() {
			linked[e.Link.Path] = append(linked[e.Link.Path], e.ID)
		}
	}
	if len(linked) == 0 {
		// Imploding an already-fully-local graph is a no-op.
		return g, nil
	}
	span.SetAttributes(attribute.Int("containers", len(linked)))

	paths := make([]string, 0, len(linked))
	for p := range linked {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	next := g.Clone()
	var unitErrs []error
	for _, p := range paths {
		if err := materialize(ctx, next, p, linked[p], load); err != nil {
			logger.Error("Couldn't materialise container",
				slog.String("path", p),
				slog.Any("error", err),
			)
			unitErrs = append(unitErrs, err)
		}
	}

	if err := errors.Join(unitErrs...); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return next, err
	}
	return next, nil
}

// materialize replaces the stubs linking to one container path with the local
// entities held by that container. On error the graph is left untouched for
// this container: validation happens before any mutation.
func materialize(ctx context.Context, g *Graph, path string, stubs []StableID, load ContainerLoader) error {
	logger := component.Logger(ctx)

	c, err := load(ctx, path)
	if err != nil {
		return fmt.Errorf("load container %q: %w", path, err)
	}

	// The container must hold every entity the graph links to at this path;
	// otherwise its internal structure diverged from the stubs' declared
	// identity set.
	var missing []StableID
	for _, id := range stubs {
		if !c.Holds(id) {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return &ContainerMismatchError{Path: path, Missing: missing}
	}
	for _, member := range c.Entities {
		if member.Payload == nil {
			return fmt.Errorf("container %q: entity %v has no payload", path, member.ID)
		}
	}

	for _, member := range c.Entities {
		local, ok := g.Entity(member.ID)
		if !ok {
			// An embedded entity the residual graph never stubbed; it becomes
			// local alongside the rest of its unit.
			if err := g.Add(member.clone()); err != nil {
				return err
			}
			continue
		}
		if !local.External() {
			// Already local; nothing to restore for this member.
			continue
		}
		if len(local.Overrides) > 0 {
			// Local overrides cannot survive materialisation: an override set
			// may only exist on a linked entity, and no merge semantics are
			// defined. They are dropped, loudly.
			logger.Warn("Dropping override set while materialising entity",
				slog.String("entity", local.ID.String()),
				slog.String("container", path),
				slog.Int("overrides", len(local.Overrides)),
			)
			local.Overrides = nil
		}
		local.Payload = member.Payload
		local.Name = member.Name
		local.Kind = member.Kind
		local.Link = nil
	}

	for _, edge := range c.Edges {
		if err := g.Connect(edge[0], edge[1]); err != nil {
			return fmt.Errorf("container %q: restore edge: %w", path, err)
		}
	}

	return nil
}
