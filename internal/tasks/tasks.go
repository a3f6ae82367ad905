// Package tasks is the deferred rebuild engine. Structural mutations
// enqueue the parent whose children need new priority/path/depth values;
// the queue coalesces overlapping subtrees and recomputes everything in
// one atomic batch when drained, which happens before any read that
// depends on path consistency.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/treedex/treedex/internal/closure"
	"github.com/treedex/treedex/internal/nodestore"
	"github.com/treedex/treedex/internal/priority"
	"github.com/treedex/treedex/pkg/pathcodec"
	"github.com/treedex/treedex/pkg/types"
)

// ErrInconsistentState is returned when a subtree rebuild failed on a
// retry as well; the queue keeps the task but the caller must know the
// tree could not be brought back to consistency.
var ErrInconsistentState = errors.New("tasks: tree state inconsistent after rebuild retry")

type state int

const (
	stateIdle state = iota
	statePending
	stateDraining
)

// Task marks one subtree whose children need recomputation. A nil
// Parent pointer requests a whole-tree rebuild.
type Task struct {
	Parent *types.NodeID
}

// Queue records pending rebuild tasks and applies them lazily.
type Queue struct {
	store     *nodestore.NodeStore
	index     *closure.Index
	codec     pathcodec.Codec
	sortField string
	maxDepth  int
	log       *logrus.Logger

	mu       sync.Mutex
	st       state
	pending  []Task
	next     []Task // tasks enqueued while draining
	failures int

	drainMu sync.Mutex
}

func NewQueue(store *nodestore.NodeStore, index *closure.Index, codec pathcodec.Codec,
	sortField string, maxDepth int, log *logrus.Logger) *Queue {
	if log == nil {
		log = logrus.New()
	}
	return &Queue{
		store:     store,
		index:     index,
		codec:     codec,
		sortField: sortField,
		maxDepth:  maxDepth,
		log:       log,
	}
}

// Add enqueues a rebuild of parent's subtree; nil means the whole tree.
// Adding during a drain schedules the task for the next drain cycle.
func (q *Queue) Add(parent *types.NodeID) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t := Task{Parent: parent}
	if q.st == stateDraining {
		q.next = append(q.next, t)
		return
	}
	q.pending = append(q.pending, t)
	q.st = statePending
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) + len(q.next)
}

// Drain applies all pending tasks. Reads call this first; an empty
// queue returns immediately. A failed batch stays queued for the next
// drain; failing a second consecutive time surfaces ErrInconsistentState.
func (q *Queue) Drain(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.drainMu.Lock()
	defer q.drainMu.Unlock()

	q.mu.Lock()
	if len(q.pending) == 0 {
		q.st = stateIdle
		q.mu.Unlock()
		return nil
	}
	batch := q.pending
	q.st = stateDraining
	q.mu.Unlock()

	start := time.Now()
	err := q.applyBatch(ctx, batch)

	q.mu.Lock()
	defer q.mu.Unlock()

	if err != nil {
		q.failures++
		// keep the failed batch in front of anything enqueued meanwhile
		q.pending = append(batch, q.next...)
		q.next = nil
		q.st = statePending
		if q.failures > 1 {
			return fmt.Errorf("%w: %v", ErrInconsistentState, err)
		}
		q.log.WithError(err).Warn("rebuild drain failed, tasks kept for retry")
		return nil
	}

	q.failures = 0
	q.pending = q.next
	q.next = nil
	if len(q.pending) > 0 {
		q.st = statePending
	} else {
		q.st = stateIdle
	}

	q.log.WithFields(logrus.Fields{
		"tasks":    len(batch),
		"duration": time.Since(start),
	}).Debug("rebuild drain applied")
	return nil
}

func (q *Queue) applyBatch(ctx context.Context, batch []Task) error {
	subtrees, full, err := q.coalesce(batch)
	if err != nil {
		return err
	}

	var out nodestore.Batch
	if full {
		if err := q.rebuildFrom(ctx, nil, &out); err != nil {
			return err
		}
	} else {
		for _, parent := range subtrees {
			parent := parent
			if err := q.rebuildFrom(ctx, &parent, &out); err != nil {
				return err
			}
		}
	}

	if len(out.Puts) == 0 && len(out.Deletes) == 0 && len(out.StalePaths) == 0 {
		return nil
	}
	return q.store.ApplyBatch(out)
}

// coalesce reduces the batch to the minimal disjoint set of subtree
// roots. A whole-tree task wins outright. Two subtrees sharing a common
// ancestor collapse into that ancestor; if the common ancestor is a
// root, the batch escalates to a whole-tree rebuild.
func (q *Queue) coalesce(batch []Task) (subtrees []types.NodeID, full bool, err error) {
	idSet := make(map[types.NodeID]struct{})
	for _, t := range batch {
		if t.Parent == nil {
			return nil, true, nil
		}
		idSet[*t.Parent] = struct{}{}
	}

	idList := make([]types.NodeID, 0, len(idSet))
	for id := range idSet {
		idList = append(idList, id)
	}
	sort.Slice(idList, func(i, j int) bool { return idList[i].String() < idList[j].String() })

	resultSet := make(map[types.NodeID]struct{})
	queued := make(map[types.NodeID]struct{}, len(idList))
	for _, id := range idList {
		queued[id] = struct{}{}
	}

	for len(idList) > 0 {
		current := idList[0]
		idList = idList[1:]
		delete(queued, current)

		// A task whose parent row vanished (racing delete) is covered by
		// the task enqueued for the deleted subtree's parent.
		if _, getErr := q.store.GetNode(current); getErr != nil {
			if errors.Is(getErr, nodestore.ErrNotFound) {
				continue
			}
			return nil, false, getErr
		}

		merged := false
		for i := 0; i < len(idList); {
			other := idList[i]
			ancestor, err := q.index.CommonAncestorByAdjacency(current, other)
			if err != nil {
				// The other task's root vanished under a racing delete;
				// drop it, the delete's own task covers its parent.
				if errors.Is(err, nodestore.ErrNotFound) {
					idList = append(idList[:i], idList[i+1:]...)
					delete(queued, other)
					continue
				}
				return nil, false, err
			}
			if ancestor.IsZero() {
				i++
				continue
			}

			root, err := q.store.GetNode(ancestor)
			if err != nil {
				return nil, false, err
			}
			if root.IsRoot() {
				return nil, true, nil
			}

			idList = append(idList[:i], idList[i+1:]...)
			delete(queued, other)

			_, inQueue := queued[ancestor]
			_, inResult := resultSet[ancestor]
			if !inQueue && !inResult {
				idList = append(idList, ancestor)
				queued[ancestor] = struct{}{}
			}
			merged = true
			break
		}
		if !merged {
			resultSet[current] = struct{}{}
		}
	}

	subtrees = make([]types.NodeID, 0, len(resultSet))
	for id := range resultSet {
		subtrees = append(subtrees, id)
	}
	sort.Slice(subtrees, func(i, j int) bool { return subtrees[i].String() < subtrees[j].String() })
	return subtrees, false, nil
}

// rebuildFrom recomputes priority, path and depth for every node below
// parent (nil = all roots downward), strictly top-down so no node is
// ever rebuilt against a stale parent path. Changed rows are appended
// to out; nothing is written here.
func (q *Queue) rebuildFrom(ctx context.Context, parent *types.NodeID, out *nodestore.Batch) error {
	type level struct {
		parentID    types.NodeID
		parentPath  string
		parentDepth int
	}

	var queue []level
	if parent == nil {
		queue = append(queue, level{})
	} else {
		row, err := q.store.GetNode(*parent)
		if err != nil {
			if errors.Is(err, nodestore.ErrNotFound) {
				return fmt.Errorf("rebuild parent %s: %w", parent, err)
			}
			return err
		}
		queue = append(queue, level{parentID: row.ID, parentPath: row.Path, parentDepth: row.Depth})
	}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		lvl := queue[0]
		queue = queue[1:]

		ids := q.index.ChildIDs(lvl.parentID)
		if len(ids) == 0 {
			continue
		}

		siblings := make([]types.Node, 0, len(ids))
		for _, id := range ids {
			n, err := q.store.GetNode(id)
			if err != nil {
				return fmt.Errorf("rebuild under %s: %w", lvl.parentID, err)
			}
			siblings = append(siblings, n)
		}
		stored := make(map[types.NodeID]types.Node, len(siblings))
		for _, n := range siblings {
			stored[n.ID] = n
		}
		priority.Renumber(siblings, q.sortField)

		var childDepth int
		if lvl.parentID.IsZero() {
			childDepth = 0
		} else {
			childDepth = lvl.parentDepth + 1
		}
		if q.maxDepth > 0 && childDepth > q.maxDepth {
			return fmt.Errorf("%w: depth %d exceeds configured maximum %d",
				pathcodec.ErrCapacityExceeded, childDepth, q.maxDepth)
		}

		for i := range siblings {
			newPath, err := q.codec.Append(lvl.parentPath, siblings[i].Priority)
			if err != nil {
				return fmt.Errorf("rebuild under %s: %w", lvl.parentID, err)
			}

			old := stored[siblings[i].ID]
			siblings[i].Path = newPath
			siblings[i].Depth = childDepth
			if old.Path != newPath || old.Depth != childDepth || old.Priority != siblings[i].Priority {
				if old.Path != "" && old.Path != newPath {
					out.StalePaths = append(out.StalePaths, old.Path)
				}
				out.Puts = append(out.Puts, siblings[i])
			}

			queue = append(queue, level{
				parentID:    siblings[i].ID,
				parentPath:  newPath,
				parentDepth: childDepth,
			})
		}
	}
	return nil
}
