package splode

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("github.com/go-splode/go-splode")
var meter = otel.Meter("github.com/go-splode/go-splode")

// ---- explode.go ----

var (
	// explodeDuration measures the duration of a single decomposition run,
	// including the serialisation of every container in the plan.
	explodeDuration metric.Float64Histogram
	// explodeFailures measures the number of failed decomposition runs.
	explodeFailures metric.Int64Counter
)

func init() {
	var err error
	explodeDuration, err = meter.Float64Histogram(
		"decomposition.explode.duration",
		metric.WithDescription("The duration of a single decomposition run, including serialisation of all containers in the plan."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		panic("splode: failed to init 'decomposition.explode.duration' instrument")
	}

	explodeFailures, err = meter.Int64Counter(
		"decomposition.explode.failures",
		metric.WithDescription("The number of decomposition runs that have failed."),
	)
	if err != nil {
		panic("splode: failed to init 'decomposition.explode.failures' instrument")
	}
}

// measureExplode records a decomposition run. Successful runs record their
// duration; failed runs increment the failure counter.
func measureExplode(ctx context.Context, succeeded bool, d time.Duration) {
	if succeeded {
		// Floating-point division keeps sub-millisecond precision.
		duration := float64(d) / float64(time.Millisecond)
		explodeDuration.Record(ctx, duration)
	} else {
		explodeFailures.Add(ctx, 1)
	}
}

// ---- notifier.go ----

const (
	// documentName is the attribute key used to associate each record with
	// the composite document it was measured for. This allows both collective
	// examination across all documents and individual analysis per document.
	documentName = "document"
)

var (
	// fanoutDuration measures the duration of fanning one DocumentExported
	// message out into its per-unit UnitExported messages.
	//
	// Each record is associated with the documentName.
	fanoutDuration metric.Float64Histogram
	// fanoutFailures measures the number of failed fan-out processes.
	//
	// Each record is associated with the documentName.
	fanoutFailures metric.Int64Counter
)

func init() {
	var err error
	fanoutDuration, err = meter.Float64Histogram(
		"documentExported.fanout.duration",
		metric.WithDescription("The duration of a single DocumentExported fan-out, including the duration it took to produce the entire set of UnitExported messages."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		panic("splode: failed to init 'documentExported.fanout.duration' instrument")
	}

	fanoutFailures, err = meter.Int64Counter(
		"documentExported.fanout.failures",
		metric.WithDescription("The number of fan-out processes that have failed."),
	)
	if err != nil {
		panic("splode: failed to init 'documentExported.fanout.failures' instrument")
	}
}

// measureFanout records a fan-out process, labelled with the document name so
// dashboards can analyse documents collectively or individually.
func measureFanout(ctx context.Context, document string, succeeded bool, d time.Duration) {
	// attribute.Set is preferred over raw KeyValues for performance; see the
	// otel attribute package documentation.
	attrs := attribute.NewSet(attribute.String(documentName, document))
	if succeeded {
		duration := float64(d) / float64(time.Millisecond)
		fanoutDuration.Record(ctx, duration, metric.WithAttributeSet(attrs))
	} else {
		fanoutFailures.Add(ctx, 1, metric.WithAttributeSet(attrs))
	}
}
