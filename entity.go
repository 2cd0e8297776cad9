package splode

import (
	"encoding/gob"
	"fmt"
	"path"

	"github.com/google/uuid"
)

// A Kind tags an entity with the datablock type it represents. The set of
// kinds mirrors the datablock types of the composite-document editor; unknown
// kinds are allowed but are not exportable by default.
type Kind string

const (
	KindObject   Kind = "object"
	KindMesh     Kind = "mesh"
	KindMaterial Kind = "material"
	KindTexture  Kind = "texture"
	KindImage    Kind = "image"
	KindArmature Kind = "armature"
	KindAction   Kind = "action"
	KindCurve    Kind = "curve"
	KindLattice  Kind = "lattice"
	KindNodeTree Kind = "nodetree"
	KindWorld    Kind = "world"

	// Document-structural kinds. These stay local: externalising a scene would
	// make every container that uses it link back to the same scene.
	KindScene  Kind = "scene"
	KindScreen Kind = "screen"
)

// Irregular plural forms used by Plural. Kinds not listed here pluralise by
// appending "s".
var irregularPlurals = map[Kind]string{
	KindMesh: "meshes",
}

// Plural returns the plural form of the kind, used by DefaultNamer to derive
// the per-kind container directory ("mesh" becomes "meshes").
func (k Kind) Plural() string {
	if p, ok := irregularPlurals[k]; ok {
		return p
	}
	return string(k) + "s"
}

var localOnlyKinds = map[Kind]struct{}{
	KindScene:  {},
	KindScreen: {},
}

// Exportable reports whether entities of this kind may be externalised into
// their own container. Document-structural kinds are excluded.
func (k Kind) Exportable() bool {
	_, local := localOnlyKinds[k]
	return !local
}

// Ranking of kinds used to pick the naming entity of a reference cycle that
// is collapsed into a single container. Lower ranks win; unlisted kinds rank
// zero.
var kindRank = map[Kind]int{
	KindArmature: -20,
	KindObject:   -10,
}

func (k Kind) rank() int { return kindRank[k] }

// A StableID is the opaque identity of an entity. It is assigned once at
// creation, never reused, and survives renames and sessions. All provenance
// lookups join on StableID; identity is never inferred from names or paths.
type StableID uuid.UUID

// NewStableID returns a fresh identity for a newly created entity.
func NewStableID() StableID { return StableID(uuid.New()) }

func (id StableID) String() string { return uuid.UUID(id).String() }

// IsZero reports whether id is the zero identity.
func (id StableID) IsZero() bool { return id == StableID{} }

func (id StableID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *StableID) UnmarshalText(text []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(text)
}

// Payload is the kind-specific data of an entity. Although the engine never
// inspects payloads beyond fingerprinting them, we guard against accidental
// use of arbitrary types by requiring them to implement this interface.
//
// DO NOT forget to register payload types with gob.Register() before encoding
// containers or documents.
type Payload interface {
	// splode is a no-op marker method. It is unexported to keep the set of
	// payload types explicit - embed PayloadBase to implement it.
	splode()
}

// PayloadBase implements Payload for embedding into user-defined payload
// types.
type PayloadBase struct{}

func (PayloadBase) splode() {}

// RawPayload carries opaque payload bytes, for hosts that serialise their
// kind-specific data themselves. It is pre-registered with gob, so documents
// built from RawPayloads decode anywhere, including in tooling that knows no
// host-specific payload types.
type RawPayload struct {
	PayloadBase
	Data []byte
}

func init() {
	gob.Register(RawPayload{})
}

// A LinkStub replaces an entity's local payload once the entity has been
// externalised. It carries the container path the payload now lives in; it
// carries no payload itself.
type LinkStub struct {
	Path string
}

// An OverrideSet layers local modifications on top of an externally-linked
// entity, keyed by attribute path. An override set may only exist on an
// entity that currently has a link stub; resolution semantics are
// intentionally out of scope.
type OverrideSet map[string]any

// An Entity is one exportable node of the composite document.
type Entity struct {
	ID   StableID
	Kind Kind
	// Name is the artist-facing display name. It is mutable and contributes
	// to the planned container path, never to identity.
	Name string
	// Payload holds the kind-specific data while the entity is local. It is
	// nil once the entity has been externalised.
	Payload Payload
	// Link is non-nil while the entity's payload lives in an external
	// container.
	Link      *LinkStub
	Overrides OverrideSet
}

// External reports whether the entity's payload lives in an external
// container.
func (e *Entity) External() bool { return e.Link != nil }

// checkOverrides enforces the invariant that an override set may only exist
// on an externally-linked entity.
func (e *Entity) checkOverrides() error {
	if len(e.Overrides) > 0 && e.Link == nil {
		return fmt.Errorf("entity %v (%s %q): override set without an external link", e.ID, e.Kind, e.Name)
	}
	return nil
}

func (e *Entity) clone() *Entity {
	c := *e
	if e.Link != nil {
		link := *e.Link
		c.Link = &link
	}
	if e.Overrides != nil {
		c.Overrides = make(OverrideSet, len(e.Overrides))
		for k, v := range e.Overrides {
			c.Overrides[k] = v
		}
	}
	// Payloads are treated as immutable values and shared between clones.
	return &c
}

// A Namer maps an entity to the container path it should be exported to.
// Entities mapped to the same path join one export unit.
type Namer func(e *Entity) string

// DefaultNamer returns the convention-derived naming function: each entity
// goes to <root>/_<plural-kind>/<name>.unit, so every entity of a distinct
// name receives its own container.
func DefaultNamer(root string) Namer {
	return func(e *Entity) string {
		return path.Join(root, "_"+e.Kind.Plural(), e.Name+".unit")
	}
}

// A Selection chooses which entities are candidates for decomposition.
// Entities the selection rejects may still be pulled into the plan when a
// selected entity references them, directly or indirectly.
type Selection func(e *Entity) bool

// DefaultSelection selects every entity of an exportable kind.
func DefaultSelection(e *Entity) bool { return e.Kind.Exportable() }
