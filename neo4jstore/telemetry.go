package neo4jstore

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("github.com/go-splode/go-splode/neo4jstore")
