package splode

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"sync"
	"time"
)

// A ProvenanceRecord remembers, per stable identity, what the entity was last
// exported as. It is created on first export, updated on every subsequent
// export, and deleted only when the entity itself is removed.
type ProvenanceRecord struct {
	// Path of the container the entity was last exported to.
	Path string
	// Fingerprint of the container content at the time of export.
	Fingerprint ContainerHash
	// ExportedAt is the time, in UTC, of the last export.
	ExportedAt time.Time
}

// A Tracker persists provenance records between decomposition runs. It is the
// sole mechanism for rename detection: the stable identity is the join key
// between "what this entity was last exported as" and "what it should now be
// exported as". Identity is never inferred from names or paths, since those
// are exactly what changes under a rename.
//
// Implementations must be safe for concurrent use.
type Tracker interface {
	// Lookup returns the record for the given identity. The boolean reports
	// whether the identity has ever been exported.
	Lookup(ctx context.Context, id StableID) (ProvenanceRecord, bool, error)
	// Record upserts the record for the given identity.
	Record(ctx context.Context, id StableID, rec ProvenanceRecord) error
	// All returns every tracked identity with its record.
	All(ctx context.Context) (map[StableID]ProvenanceRecord, error)
	// Forget removes the record for the given identity. Forgetting an
	// untracked identity is a no-op.
	Forget(ctx context.Context, id StableID) error
}

// A MemoryTracker keeps provenance records in memory. It gob-encodes, so it
// round-trips as part of the composite document's metadata.
//
// The zero value is ready to use.
type MemoryTracker struct {
	mu sync.Mutex
	m  map[StableID]ProvenanceRecord
}

var _ Tracker = (*MemoryTracker)(nil)

func (t *MemoryTracker) Lookup(_ context.Context, id StableID) (ProvenanceRecord, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.m[id]
	return rec, ok, nil
}

func (t *MemoryTracker) Record(_ context.Context, id StableID, rec ProvenanceRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.m == nil {
		t.m = make(map[StableID]ProvenanceRecord)
	}
	t.m[id] = rec
	return nil
}

func (t *MemoryTracker) All(_ context.Context) (map[StableID]ProvenanceRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[StableID]ProvenanceRecord, len(t.m))
	for id, rec := range t.m {
		out[id] = rec
	}
	return out, nil
}

func (t *MemoryTracker) Forget(_ context.Context, id StableID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.m, id)
	return nil
}

// GobEncode implements gob.GobEncoder so the tracker persists alongside the
// document it annotates.
func (t *MemoryTracker) GobEncode() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(t.m); err != nil {
		return nil, fmt.Errorf("encode provenance records: %w", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (t *MemoryTracker) GobDecode(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m = nil
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&t.m); err != nil {
		return fmt.Errorf("decode provenance records: %w", err)
	}
	return nil
}
