package splode

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"sync"

	"github.com/danielorbach/go-component"
	"gocloud.dev/pubsub"
)

// An ExportIndex maintains a consumer-side view of where each entity
// currently lives: the container path it was last exported to, derived from
// UnitExported notifications. Hosts use it to answer "where is this entity
// now" without re-reading provenance from the document.
//
// An ExportIndex is safe for concurrent use.
type ExportIndex struct {
	mu sync.Mutex
	m  map[StableID]string
}

// NewExportIndex returns an empty index.
func NewExportIndex() *ExportIndex {
	return &ExportIndex{m: make(map[StableID]string)}
}

// PathOf looks up the last known container path for the given identity. If
// the identity has not been observed in any UnitExported notification, ok is
// false.
func (x *ExportIndex) PathOf(id StableID) (path string, ok bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	path, ok = x.m[id]
	return path, ok
}

// Observe folds one UnitExported notification into the index.
func (x *ExportIndex) Observe(u UnitExported) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, id := range u.Members {
		x.m[id] = u.Path
	}
}

// Iter applies fn to each tracked identity and its container path. Iteration
// stops early when fn returns false.
func (x *ExportIndex) Iter(fn func(id StableID, path string) bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for id, p := range x.m {
		if !fn(id, p) {
			break
		}
	}
}

// TrackExports returns a component.Proc that consumes UnitExported
// notifications from the given subscription and keeps the index up to date,
// one message at a time.
func TrackExports(x *ExportIndex, source *pubsub.Subscription) component.Proc {
	return func(l *component.L) {
		for l.Continue() {
			msg, err := source.Receive(l.GraceContext())
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				l.Errorf("receive: %v", err)
				continue
			}
			var u UnitExported
			dec := gob.NewDecoder(bytes.NewReader(msg.Body))
			if err := dec.Decode(&u); err != nil {
				l.Fatalf("Failed to unmarshal unit export; stopping export tracking: %v\n", err)
			}
			x.Observe(u)
			msg.Ack()
		}
	}
}
