/*
Package dbtest spins up database containers for tests. It wraps the
testcontainers-go library with the defaults this repository needs, so tests
that just want "a Neo4j to talk to" do not repeat the boilerplate.

If a test needs a specific customisation of the database, it should use the
testcontainers-go modules directly instead of this package.

Developing locally with Docker, you may want to manually inspect the database
after a test failure. To do this, set the Inspect flag to true:

	go test -dbtest.inspect

This package is intended to be used in tests only. It is not suitable for
production use.
*/
package dbtest
