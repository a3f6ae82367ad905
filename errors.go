package treedex

import (
	"errors"

	"github.com/treedex/treedex/internal/nodestore"
	"github.com/treedex/treedex/internal/tasks"
	"github.com/treedex/treedex/pkg/pathcodec"
)

var (
	// ErrNotStarted is returned by operations before Start succeeds.
	ErrNotStarted = errors.New("treedex: tree not started")
	// ErrClosed is returned by operations after Close.
	ErrClosed = errors.New("treedex: tree closed")

	// ErrCyclicMove rejects a move whose target is the node itself or
	// one of its descendants. Checked before any mutation.
	ErrCyclicMove = errors.New("treedex: move would create a cycle")

	// ErrNotFound propagates when a referenced node does not exist.
	ErrNotFound = nodestore.ErrNotFound

	// ErrCapacityExceeded propagates when a sibling rank does not fit
	// the configured segment width or a subtree exceeds the maximum
	// depth.
	ErrCapacityExceeded = pathcodec.ErrCapacityExceeded

	// ErrInconsistentState propagates when a rebuild failed on retry.
	ErrInconsistentState = tasks.ErrInconsistentState
)
