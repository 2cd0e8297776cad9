package splode

import (
	"bytes"
	"crypto/sha1"
	"encoding/gob"
	"fmt"
	"sort"
)

// A Container is the standalone value an export unit is serialised into. It
// holds the unit's entities with their full payloads, the reference edges
// between them, and enough structural metadata to validate identity on
// reimport (the member identities themselves).
//
// Cross-unit edges are not part of a container; they remain in the residual
// graph, connecting link stubs.
type Container struct {
	// Path the container is planned to live at. Recorded for diagnostics;
	// identity validation uses member identities, never paths.
	Path string
	// Entities of the unit, sorted by identity, payloads attached.
	Entities []*Entity
	// Edges between members of this unit.
	Edges [][2]StableID
}

// MemberIDs returns the identities of the container's entities, sorted.
func (c *Container) MemberIDs() []StableID {
	ids := make([]StableID, len(c.Entities))
	for i, e := range c.Entities {
		ids[i] = e.ID
	}
	sort.Slice(ids, func(i, j int) bool { return lessID(ids[i], ids[j]) })
	return ids
}

// Holds reports whether the container carries the entity with the given
// identity.
func (c *Container) Holds(id StableID) bool {
	for _, e := range c.Entities {
		if e.ID == id {
			return true
		}
	}
	return false
}

// Hash computes the content hash of the container: member identities, their
// payload fingerprints, and the intra-unit edges, all in sorted order. The
// planned path does not participate, so renaming a container does not change
// its hash.
func (c *Container) Hash() (ContainerHash, error) {
	entities := make([]*Entity, len(c.Entities))
	copy(entities, c.Entities)
	sort.Slice(entities, func(i, j int) bool { return lessID(entities[i].ID, entities[j].ID) })

	h := sha1.New()
	for _, e := range entities {
		h.Write(e.ID[:])
		if e.Payload == nil {
			return ContainerHash{}, fmt.Errorf("container %q: entity %v has no payload", c.Path, e.ID)
		}
		f, err := FingerprintPayload(e.Payload)
		if err != nil {
			return ContainerHash{}, fmt.Errorf("container %q: fingerprint entity %v: %w", c.Path, e.ID, err)
		}
		h.Write(f[:])
	}

	edges := make([][2]StableID, len(c.Edges))
	copy(edges, c.Edges)
	sort.Slice(edges, func(i, j int) bool {
		if edges[i][0] != edges[j][0] {
			return lessID(edges[i][0], edges[j][0])
		}
		return lessID(edges[i][1], edges[j][1])
	})
	for _, edge := range edges {
		h.Write(edge[0][:])
		h.Write(edge[1][:])
	}

	return ContainerHash(h.Sum(nil)), nil
}

// EncodeContainer serialises the container with gob. Payload types must have
// been registered with gob.Register beforehand.
func EncodeContainer(c *Container) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(c); err != nil {
		return nil, fmt.Errorf("encode container %q: %w", c.Path, err)
	}
	return buf.Bytes(), nil
}

// DecodeContainer reverses EncodeContainer.
func DecodeContainer(data []byte) (*Container, error) {
	var c Container
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&c); err != nil {
		return nil, fmt.Errorf("decode container: %w", err)
	}
	return &c, nil
}
