/*
Package neo4jstore implements a provenance tracker backed by a Neo4j graph
database, so that export provenance is shared between every workstation and
farm worker operating on the same document library.

Each stable identity is stored as a single (:Provenance) node keyed by its
stable_id property. Records upsert with MERGE, so concurrent exporters
converge on a single node per identity.
*/
package neo4jstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danielorbach/go-component"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	splode "github.com/go-splode/go-splode"
)

// Store persists provenance records on Neo4j.
//
// Each operation runs in its own session and managed transaction, so the
// driver can retry transient failures and no state carries over between
// operations.
type Store struct {
	driver   neo4j.DriverWithContext // Connection to the neo4j server/cluster.
	database string                  // Target database name holding the provenance nodes.
}

var _ splode.Tracker = (*Store)(nil)

// New returns a ready-to-use Store over the given database. Call
// BootstrapDatabase once beforehand to create the database and its
// constraints.
func New(driver neo4j.DriverWithContext, database string) *Store {
	return &Store{driver: driver, database: database}
}

// Lookup returns the record for the given identity. The boolean reports
// whether the identity has ever been exported.
func (s *Store) Lookup(ctx context.Context, id splode.StableID) (rec splode.ProvenanceRecord, ok bool, err error) {
	ctx, span := tracer.Start(ctx, "Lookup", trace.WithAttributes(
		attribute.String("neo4j.database", s.database),
		attribute.Stringer("provenance.id", id),
	))
	defer span.End()

	session := s.newSession(ctx, neo4j.AccessModeRead)
	defer s.closeSession(ctx, session, "read")

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (p:Provenance {stable_id: $id})
			RETURN p.path AS path, p.fingerprint AS fingerprint, p.exported_at AS exported_at
		`, map[string]any{"id": id.String()})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		return parseRecord(record)
	})
	if err != nil {
		// The driver reports an empty result through Single, so a missing
		// identity surfaces here as a usage error rather than a nil record.
		var usage *neo4j.UsageError
		if errors.As(err, &usage) {
			return splode.ProvenanceRecord{}, false, nil
		}
		return splode.ProvenanceRecord{}, false, fmt.Errorf("neo4j execute: %w", err)
	}
	return result.(splode.ProvenanceRecord), true, nil
}

// Record upserts the record for the given identity.
func (s *Store) Record(ctx context.Context, id splode.StableID, rec splode.ProvenanceRecord) error {
	ctx, span := tracer.Start(ctx, "Record", trace.WithAttributes(
		attribute.String("neo4j.database", s.database),
		attribute.Stringer("provenance.id", id),
		attribute.String("provenance.path", rec.Path),
	))
	defer span.End()

	session := s.newSession(ctx, neo4j.AccessModeWrite)
	defer s.closeSession(ctx, session, "write")

	fingerprint, err := rec.Fingerprint.MarshalText()
	if err != nil {
		return fmt.Errorf("marshal fingerprint: %w", err)
	}
	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `
			MERGE (p:Provenance {stable_id: $id})
			SET p.path = $path, p.fingerprint = $fingerprint, p.exported_at = $exported_at
		`, map[string]any{
			"id":          id.String(),
			"path":        rec.Path,
			"fingerprint": string(fingerprint),
			"exported_at": rec.ExportedAt.UTC(),
		})
	})
	if err != nil {
		return fmt.Errorf("neo4j execute: %w", err)
	}
	return nil
}

// All returns every tracked identity with its record.
func (s *Store) All(ctx context.Context) (map[splode.StableID]splode.ProvenanceRecord, error) {
	ctx, span := tracer.Start(ctx, "All", trace.WithAttributes(
		attribute.String("neo4j.database", s.database),
	))
	defer span.End()

	session := s.newSession(ctx, neo4j.AccessModeRead)
	defer s.closeSession(ctx, session, "read")

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (p:Provenance)
			RETURN p.stable_id AS stable_id, p.path AS path, p.fingerprint AS fingerprint, p.exported_at AS exported_at
		`, nil)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}

		all := make(map[splode.StableID]splode.ProvenanceRecord, len(records))
		for _, record := range records {
			id, err := parseStableID(record)
			if err != nil {
				return nil, err
			}
			rec, err := parseRecord(record)
			if err != nil {
				return nil, fmt.Errorf("provenance of %v: %w", id, err)
			}
			all[id] = rec
		}
		return all, nil
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j execute: %w", err)
	}
	return result.(map[splode.StableID]splode.ProvenanceRecord), nil
}

// Forget removes the record for the given identity. Forgetting an untracked
// identity is a no-op.
func (s *Store) Forget(ctx context.Context, id splode.StableID) error {
	ctx, span := tracer.Start(ctx, "Forget", trace.WithAttributes(
		attribute.String("neo4j.database", s.database),
		attribute.Stringer("provenance.id", id),
	))
	defer span.End()

	session := s.newSession(ctx, neo4j.AccessModeWrite)
	defer s.closeSession(ctx, session, "write")

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `
			MATCH (p:Provenance {stable_id: $id})
			DELETE p
		`, map[string]any{"id": id.String()})
	})
	if err != nil {
		return fmt.Errorf("neo4j execute: %w", err)
	}
	return nil
}

// We open a new session for every operation to ensure transactional isolation
// and to prevent any state carryover between executions. Any session-specific
// errors or resources are contained and do not affect subsequent operations.
func (s *Store) newSession(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.database,
		AccessMode:   mode,
	})
}

func (s *Store) closeSession(ctx context.Context, session neo4j.SessionWithContext, mode string) {
	if err := session.Close(ctx); err != nil {
		component.Logger(ctx).Error("Failed to close session", "error", err, "mode", mode)
	}
}

func parseRecord(record *neo4j.Record) (splode.ProvenanceRecord, error) {
	path, err := property[string](record, "path")
	if err != nil {
		return splode.ProvenanceRecord{}, err
	}
	text, err := property[string](record, "fingerprint")
	if err != nil {
		return splode.ProvenanceRecord{}, err
	}
	var fingerprint splode.ContainerHash
	if err := fingerprint.UnmarshalText([]byte(text)); err != nil {
		return splode.ProvenanceRecord{}, fmt.Errorf("unmarshal fingerprint: %w", err)
	}
	exportedAt, err := property[time.Time](record, "exported_at")
	if err != nil {
		return splode.ProvenanceRecord{}, err
	}
	return splode.ProvenanceRecord{
		Path:        path,
		Fingerprint: fingerprint,
		ExportedAt:  exportedAt.UTC(),
	}, nil
}

func parseStableID(record *neo4j.Record) (splode.StableID, error) {
	text, err := property[string](record, "stable_id")
	if err != nil {
		return splode.StableID{}, err
	}
	var id splode.StableID
	if err := id.UnmarshalText([]byte(text)); err != nil {
		return splode.StableID{}, fmt.Errorf("unmarshal stable id: %w", err)
	}
	return id, nil
}

// A property access failure most likely occurs when changing a Cypher query
// without modifying the surrounding code properly.
func property[T any](record *neo4j.Record, key string) (T, error) {
	var zero T
	v, ok := record.Get(key)
	if !ok {
		return zero, fmt.Errorf("property not found: %v", key)
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected property type: %v is %T", key, v)
	}
	return t, nil
}
