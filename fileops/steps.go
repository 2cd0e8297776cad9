package fileops

import (
	"context"
	"encoding/gob"
	"iter"

	splode "github.com/go-splode/go-splode"
)

// Register all Step implementations so transcripts can cross process
// boundaries. Without this, the gob encoder would fail on the interface
// slice.
func init() {
	gob.Register(renameStep{})
	gob.Register(writeStep{})
}

// A renameStep is a Step that moves a container file, preserving history.
type renameStep struct {
	From, To string
}

func (s renameStep) Do(ctx context.Context, store splode.VCS) error {
	return store.Rename(ctx, s.From, s.To)
}

func (s renameStep) Paths() iter.Seq[string] {
	return func(yield func(string) bool) {
		if !yield(s.From) {
			return
		}
		if !yield(s.To) {
			return
		}
	}
}

// A writeStep is a Step that persists container content at a path.
type writeStep struct {
	TargetPath string
	Data       []byte
}

func (s writeStep) Do(ctx context.Context, store splode.VCS) error {
	return store.Write(ctx, s.TargetPath, s.Data)
}

func (s writeStep) Paths() iter.Seq[string] {
	return func(yield func(string) bool) {
		if !yield(s.TargetPath) {
			return
		}
	}
}
