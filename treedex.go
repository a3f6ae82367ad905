// Package treedex maintains a tree-shaped dataset over an embedded
// key-value store. Adjacency pointers and sibling priorities are written
// immediately; the derived materialized paths, depths and dense sibling
// ranks are recomputed lazily by a coalescing task queue that drains
// before every read. Ancestor and descendant queries run as indexed
// path-prefix lookups instead of recursive traversals.
package treedex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/treedex/treedex/internal/closure"
	"github.com/treedex/treedex/internal/nodestore"
	"github.com/treedex/treedex/internal/tasks"
	"github.com/treedex/treedex/internal/treecache"
	"github.com/treedex/treedex/pkg/pathcodec"
	"github.com/treedex/treedex/pkg/types"
)

// Tree is the main handle. It owns the node store, the closure index,
// the cache and the deferred rebuild queue.
type Tree struct {
	log    *slog.Logger
	config Config

	storeMu sync.RWMutex
	store   *nodestore.NodeStore

	codec pathcodec.Codec
	index *closure.Index
	cache *treecache.Cache
	queue *tasks.Queue

	seq atomic.Uint64

	started   atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once
}

// New constructs a tree handle. New does not perform I/O; call Start to
// open the store and build the in-memory indexes.
func New(conf Config) (*Tree, error) {
	if len(conf.Paths) == 0 {
		return nil, fmt.Errorf("at least one path must be provided in config")
	}
	conf.applyDefaults()

	return &Tree{
		log:    conf.Logger,
		config: conf,
	}, nil
}

// Start opens the backing store, rebuilds the adjacency index from the
// stored rows and marks the handle ready. Safe to call multiple times;
// only the first call has effect.
func (t *Tree) Start(ctx context.Context) error {
	var startErr error
	t.startOnce.Do(func() {
		if err := ctx.Err(); err != nil {
			startErr = err
			return
		}

		dataRoot := t.config.Paths[0]
		storeDir := filepath.Join(dataRoot, "store")
		if err := os.MkdirAll(storeDir, 0o700); err != nil {
			startErr = fmt.Errorf("mkdir %s: %w", storeDir, err)
			return
		}

		codec, err := pathcodec.New(t.config.SegmentWidth)
		if err != nil {
			startErr = err
			return
		}

		internalLog := logrus.New()
		internalLog.SetLevel(logrus.WarnLevel)

		store, err := nodestore.NewNodeStore(nodestore.StoreConfig{
			Paths:            []string{storeDir},
			MinimumFreeSpace: int(t.config.MinimumFreeGB),
			Logger:           internalLog,
		})
		if err != nil {
			startErr = fmt.Errorf("init node store: %w", err)
			return
		}

		index := closure.NewIndex(store, codec)
		total, err := index.RebuildAdjacency()
		if err != nil {
			store.Close()
			startErr = fmt.Errorf("rebuild adjacency index: %w", err)
			return
		}

		// Resume the insertion sequence after the highest stored value
		// so priority tie-breaking stays stable across restarts.
		rows, err := store.AllNodes()
		if err != nil {
			store.Close()
			startErr = fmt.Errorf("scan rows: %w", err)
			return
		}
		var maxSeq uint64
		for _, n := range rows {
			if n.Seq > maxSeq {
				maxSeq = n.Seq
			}
		}
		t.seq.Store(maxSeq)

		t.codec = codec
		t.index = index
		t.cache = treecache.New(int64(t.config.CacheLimitMB)*1024*1024, t.config.CachePromoteAfter)
		t.queue = tasks.NewQueue(store, index, codec, t.config.SortField, t.config.MaxDepth, internalLog)

		t.storeMu.Lock()
		t.store = store
		t.storeMu.Unlock()

		t.started.Store(true)
		t.log.Info("treedex started", "path", dataRoot, "nodes", total)
	})
	return startErr
}

// Close flushes and releases the store. Close is idempotent.
func (t *Tree) Close(ctx context.Context) error {
	var closeErr error
	t.closeOnce.Do(func() {
		// Apply what is still pending so no derived state is lost.
		if t.started.Load() && t.queue != nil {
			if err := t.queue.Drain(ctx); err != nil {
				closeErr = errors.Join(closeErr, fmt.Errorf("drain on close: %w", err))
			}
		}

		t.storeMu.Lock()
		store := t.store
		t.store = nil
		t.storeMu.Unlock()
		if store != nil {
			store.Close()
		}

		t.log.Info("treedex closed")
	})
	return closeErr
}

func (t *Tree) storeHandle() (*nodestore.NodeStore, error) {
	if !t.started.Load() {
		return nil, ErrNotStarted
	}

	t.storeMu.RLock()
	store := t.store
	t.storeMu.RUnlock()
	if store == nil {
		return nil, ErrClosed
	}
	return store, nil
}

// readReady drains pending rebuild tasks so the caller sees consistent
// paths, depths and priorities.
func (t *Tree) readReady(ctx context.Context) (*nodestore.NodeStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	store, err := t.storeHandle()
	if err != nil {
		return nil, err
	}
	if err := t.queue.Drain(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (t *Tree) nextSeq() uint64 {
	return t.seq.Add(1)
}

// enqueueRebuild records that parent's children need new priorities and
// paths. A zero parent means the root level, which the rebuild engine
// treats as a whole-tree recompute.
func (t *Tree) enqueueRebuild(parent types.NodeID) {
	if parent.IsZero() {
		t.queue.Add(nil)
		return
	}
	p := parent
	t.queue.Add(&p)
}

func (t *Tree) invalidateCache() {
	t.cache.Invalidate(t.config.Label)
}

// RebuildAll forces a full recompute of paths, depths and priorities
// from the adjacency pointers, the recovery path after bulk writes that
// bypassed the engine. Rebuilding an already consistent tree is a no-op.
func (t *Tree) RebuildAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.storeHandle(); err != nil {
		return err
	}

	if _, err := t.index.RebuildAdjacency(); err != nil {
		return fmt.Errorf("rebuild adjacency index: %w", err)
	}
	t.queue.Add(nil)
	if err := t.queue.Drain(ctx); err != nil {
		return err
	}
	t.invalidateCache()
	return nil
}

// PendingTasks reports how many rebuild tasks are queued.
func (t *Tree) PendingTasks() int {
	if t.queue == nil {
		return 0
	}
	return t.queue.Len()
}

// CacheInfo reports cache statistics.
func (t *Tree) CacheInfo() treecache.Info {
	if t.cache == nil {
		return treecache.Info{}
	}
	return t.cache.Info()
}
