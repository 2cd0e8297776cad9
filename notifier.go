package splode

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/danielorbach/go-component"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gocloud.dev/pubsub"
	"golang.org/x/sync/errgroup"
)

// A UnitExport describes one container persisted by a decomposition run.
type UnitExport struct {
	// Path the container was written to.
	Path string
	// Hash of the container content.
	Hash ContainerHash
	// Members held by the container.
	Members []StableID
	// Renamed holds the container's prior path when the run requested a
	// rename for it; it is empty otherwise.
	Renamed string
}

// A DocumentExported message notifies that a decomposition run for one
// composite document has been committed. It carries the bulk result relative
// to the previously notified baseline: the document's exported-container
// state before the run is hashed as DocBefore, the state after as DocAfter.
type DocumentExported struct {
	DocBefore DocumentHash
	Units     []UnitExport
	DocAfter  DocumentHash
	// The time, in UTC, the run was committed. The information in this
	// message is accurate up to this timestamp, not a moment afterwards.
	Timestamp time.Time
}

// IsEmpty returns true if the run changed nothing: the document's exported
// state is the same before and after.
func (m DocumentExported) IsEmpty() bool {
	return m.DocAfter == m.DocBefore
}

// A UnitExported message notifies about a single exported container. It is
// the per-unit fan-out of a DocumentExported message.
type UnitExported struct {
	UnitExport
	// Document is the DocAfter hash of the run this export was part of.
	Document DocumentHash
	// The time, in UTC, the run was committed.
	Timestamp time.Time
}

func init() {
	gob.Register(DocumentExported{})
	gob.Register(UnitExported{})
}

type notifier struct {
	document string
	source   *pubsub.Subscription
	sink     *pubsub.Topic
}

// NewExportNotifier returns a [component.Procedure] that fans
// DocumentExported notifications (received from the given source) out into
// individual UnitExported notifications and publishes them to the specified
// sink, so downstream asset-management consumers can track containers one at
// a time.
//
// The notifier measures the duration of processing each DocumentExported
// message and labels each measurement with the provided document name (e.g.
// "shot-010").
func NewExportNotifier(document string, source *pubsub.Subscription, sink *pubsub.Topic) component.Procedure {
	return notifier{
		document: document,
		source:   source,
		sink:     sink,
	}
}

func (n notifier) Exec(l *component.L) {
	logger := component.Logger(l.Context())
	for l.Continue() {
		msg, err := n.source.Receive(l.GraceContext())
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return
			}

			// Per the pubsub Receive documentation, a non-nil error is either
			// non-retryable or means the context is done. Without a mechanism
			// to recreate the subscription, shutting the process down is the
			// only safe reaction.
			panic("cannot receive messages from the pubsub service")
		}

		err = n.handleMessage(l.GraceContext(), logger, msg)
		if err != nil {
			// Consumers rely on seeing every unit of a run before the next
			// run's messages arrive. If the fan-out fails partway, we shut
			// down and reprocess the same message on restart rather than
			// proceed with a partially notified run.
			logger.Error("Couldn't handle DocumentExported message",
				slog.Any("error", err),
			)
			panic("cannot proceed to the next DocumentExported message due to failure")
		}

		// Acknowledge only after the fan-out fully succeeded; delivery is
		// at-least-once.
		msg.Ack()
	}
}

// handleMessage fans one DocumentExported message out into UnitExported
// messages. It returns an error if it fails to publish even a single
// UnitExported message.
func (n notifier) handleMessage(ctx context.Context, logger *slog.Logger, msg *pubsub.Message) (err error) {
	ctx, span := tracer.Start(ctx, "notifier.handleMessage", trace.WithAttributes(
		attribute.String("msg.id", msg.LoggableID),
	))
	defer span.End()

	defer func(start time.Time) {
		measureFanout(ctx, n.document, err == nil, time.Since(start))
	}(time.Now())

	logger.Debug("New DocumentExported message received, decoding with gob...")
	var exported DocumentExported
	if err := gob.NewDecoder(bytes.NewReader(msg.Body)).Decode(&exported); err != nil {
		err := fmt.Errorf("decode gob: %w", err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if exported.IsEmpty() {
		logger.Info("The run exported nothing, message skipped",
			slog.Any("document-hash", exported.DocBefore),
		)
		return nil
	}

	logger = logger.With(
		slog.Any("document-before-hash", exported.DocBefore),
		slog.Any("document-after-hash", exported.DocAfter),
	)
	logger.Debug("Fanning document export out into unit exports...")

	g, ctx := errgroup.WithContext(ctx)
	for _, u := range exported.Units {
		unit := UnitExported{
			UnitExport: u,
			Document:   exported.DocAfter,
			Timestamp:  exported.Timestamp,
		}
		g.Go(func() error {
			return n.notifyUnit(ctx, logger, unit)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("send unit exports: %w", err)
	}
	logger.Info("DocumentExported message handled successfully")

	return nil
}

func (n notifier) notifyUnit(ctx context.Context, logger *slog.Logger, u UnitExported) error {
	ctx, span := tracer.Start(ctx, "notifier.notifyUnit", trace.WithAttributes(
		attribute.String("unit.path", u.Path),
		attribute.Stringer("unit.hash", u.Hash),
	))
	defer span.End()

	logger = logger.With(slog.String("unit-path", u.Path))
	logger.Debug("Encoding UnitExported message using gob...")
	var b bytes.Buffer
	if err := gob.NewEncoder(&b).Encode(u); err != nil {
		err := fmt.Errorf("encode gob: %w", err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	logger.Debug("Sending UnitExported message...")
	// The container path rides along as metadata so brokers that support
	// key-based partitioning keep messages about the same container in order
	// for any single consumer.
	msg := &pubsub.Message{Body: b.Bytes(), Metadata: map[string]string{"path": u.Path}}
	if err := n.sink.Send(ctx, msg); err != nil {
		err := fmt.Errorf("send: %w", err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	logger.Debug("UnitExported message sent successfully")

	return nil
}
