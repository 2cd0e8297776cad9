package neo4jstore

import (
	"testing"

	"github.com/go-splode/go-splode/internal/dbtest"
	"github.com/go-splode/go-splode/trackertest"
)

func TestTracker(t *testing.T) {
	driver := dbtest.SetupNeo4j(t)
	trackertest.Run(t, New(driver, "neo4j"))
}
