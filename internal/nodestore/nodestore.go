package nodestore

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/treedex/treedex/pkg/types"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

var log *logrus.Logger

// ErrNotFound is returned when a node id or path has no row.
var ErrNotFound = errors.New("nodestore: node not found")

var (
	nodeKeyPrefix = []byte("node:")
	pathKeyPrefix = []byte("path:")
)

type StoreConfig struct {
	Paths            []string // absolute path, at the moment only first path is supported
	MinimumFreeSpace int      // in GB
	Logger           *logrus.Logger
}

// NodeStore keeps two key families in one badger instance:
//
//	node:<id>   -> protowire-encoded row
//	path:<path> -> id bytes
//
// The path keys are the materialized-path index; because segments are
// fixed-width and lexicographically ordered, one prefix iteration over
// path:<subtree path> yields a whole subtree in tree order.
type NodeStore struct {
	config       StoreConfig
	badgerDB     *badger.DB
	readCounter  uint64
	writeCounter uint64
}

func NewNodeStore(config StoreConfig) (*NodeStore, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	log = config.Logger

	err := config.checkConfig()
	if err != nil {
		return nil, fmt.Errorf("error checking config for NodeStore: %w", err)
	}

	opts := badger.DefaultOptions(config.Paths[0])
	opts.Logger = nil
	opts.ValueLogFileSize = 1024 * 1024 * 100 // Set max size of each value log file to 100MB
	opts.SyncWrites = false

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("error opening badger at %s: %w", config.Paths[0], err)
	}

	if err := displayDiskUsage(config.Paths); err != nil {
		db.Close()
		return nil, err
	}

	return &NodeStore{
		config:   config,
		badgerDB: db,
	}, nil
}

func nodeKey(id types.NodeID) []byte {
	return append(append([]byte{}, nodeKeyPrefix...), id[:]...)
}

func pathKey(path string) []byte {
	return append(append([]byte{}, pathKeyPrefix...), path...)
}

// PutNode writes a single row and, if the row carries a path, its path
// index entry. Both writes happen in one transaction.
func (s *NodeStore) PutNode(n types.Node) error {
	atomic.AddUint64(&s.writeCounter, 1)

	return s.badgerDB.Update(func(txn *badger.Txn) error {
		if err := txn.Set(nodeKey(n.ID), types.NodeToBytes(n)); err != nil {
			return err
		}
		if n.Path != "" {
			return txn.Set(pathKey(n.Path), n.ID.Bytes())
		}
		return nil
	})
}

func (s *NodeStore) GetNode(id types.NodeID) (types.Node, error) {
	atomic.AddUint64(&s.readCounter, 1)

	var raw []byte
	err := s.badgerDB.View(func(txn *badger.Txn) error {
		item, err := txn.Get(nodeKey(id))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return types.Node{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return types.Node{}, fmt.Errorf("error reading node %s: %w", id, err)
	}

	n, err := types.NodeFromBytes(raw)
	if err != nil {
		return types.Node{}, fmt.Errorf("error decoding node %s: %w", id, err)
	}
	return n, nil
}

// GetIDByPath resolves a materialized path to a node id via the path index.
func (s *NodeStore) GetIDByPath(path string) (types.NodeID, error) {
	atomic.AddUint64(&s.readCounter, 1)

	var id types.NodeID
	err := s.badgerDB.View(func(txn *badger.Txn) error {
		item, err := txn.Get(pathKey(path))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return id.FromBytes(val)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return types.NodeID{}, fmt.Errorf("%w: path %q", ErrNotFound, path)
		}
		return types.NodeID{}, fmt.Errorf("error reading path %q: %w", path, err)
	}
	return id, nil
}

// Batch groups row puts, row deletes and stale path-index removals into
// one atomic write. Rebuild drains and structural mutations go through
// here so a subtree is never half-updated on disk.
type Batch struct {
	Puts       []types.Node
	Deletes    []types.NodeID
	StalePaths []string
}

// ApplyBatch writes the whole batch in a single badger transaction.
func (s *NodeStore) ApplyBatch(b Batch) error {
	err := s.badgerDB.Update(func(txn *badger.Txn) error {
		for _, stale := range b.StalePaths {
			if stale == "" {
				continue
			}
			if err := txn.Delete(pathKey(stale)); err != nil {
				return err
			}
		}
		for _, id := range b.Deletes {
			atomic.AddUint64(&s.writeCounter, 1)
			if err := txn.Delete(nodeKey(id)); err != nil {
				return err
			}
		}
		for _, n := range b.Puts {
			atomic.AddUint64(&s.writeCounter, 1)
			if err := txn.Set(nodeKey(n.ID), types.NodeToBytes(n)); err != nil {
				return err
			}
			if n.Path != "" {
				if err := txn.Set(pathKey(n.Path), n.ID.Bytes()); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error applying batch (%d puts, %d deletes): %w",
			len(b.Puts), len(b.Deletes), err)
	}
	return nil
}

// PathEntry is one hit of a path-index scan.
type PathEntry struct {
	Path string
	ID   types.NodeID
}

// ScanPathPrefix returns all path-index entries under the given path
// prefix, in lexicographic (= tree) order. An empty prefix scans the
// whole index.
func (s *NodeStore) ScanPathPrefix(prefix string) ([]PathEntry, error) {
	atomic.AddUint64(&s.readCounter, 1)

	var entries []PathEntry
	seek := pathKey(prefix)
	err := s.badgerDB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seek); it.ValidForPrefix(seek); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)

			var entry PathEntry
			entry.Path = string(key[len(pathKeyPrefix):])
			err := item.Value(func(val []byte) error {
				return entry.ID.FromBytes(val)
			})
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error scanning path prefix %q: %w", prefix, err)
	}
	return entries, nil
}

// CountPathPrefix counts index entries under a prefix without copying values.
func (s *NodeStore) CountPathPrefix(prefix string) (int, error) {
	atomic.AddUint64(&s.readCounter, 1)

	count := 0
	seek := pathKey(prefix)
	err := s.badgerDB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seek); it.ValidForPrefix(seek); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("error counting path prefix %q: %w", prefix, err)
	}
	return count, nil
}

// AllNodes returns every stored row. Used to rebuild in-memory indexes
// on startup and by full-tree rebuilds.
func (s *NodeStore) AllNodes() ([]types.Node, error) {
	atomic.AddUint64(&s.readCounter, 1)

	var nodes []types.Node
	err := s.badgerDB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(nodeKeyPrefix); it.ValidForPrefix(nodeKeyPrefix); it.Next() {
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			n, err := types.NodeFromBytes(raw)
			if err != nil {
				return err
			}
			nodes = append(nodes, n)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error listing nodes: %w", err)
	}
	return nodes, nil
}

// BatchCheckExistence reports which of the given ids have rows.
func (s *NodeStore) BatchCheckExistence(ids []types.NodeID) (map[types.NodeID]bool, error) {
	existsMap := make(map[types.NodeID]bool, len(ids))

	err := s.badgerDB.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			atomic.AddUint64(&s.readCounter, 1)
			_, err := txn.Get(nodeKey(id))
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					existsMap[id] = false
					continue
				}
				return err
			}
			existsMap[id] = true
		}
		return nil
	})

	return existsMap, err
}

func (s *NodeStore) Close() {
	if err := s.Clean(); err != nil {
		log.WithError(err).Warn("error cleaning store on close")
	}
	s.badgerDB.Close()
}

func (s *NodeStore) Clean() error {
	err := s.badgerDB.Sync()
	if err != nil {
		return fmt.Errorf("error syncing db: %w", err)
	}

	// flatten the db
	err = s.badgerDB.Flatten(runtime.NumCPU())
	if err != nil {
		return fmt.Errorf("error flattening db: %w", err)
	}

	err = s.badgerDB.RunValueLogGC(0.1)
	if err != nil && err != badger.ErrNoRewrite {
		return fmt.Errorf("error cleaning db: %w", err)
	}

	return nil
}

// Counters returns the cumulative read and write op counts.
func (s *NodeStore) Counters() (reads, writes uint64) {
	return atomic.LoadUint64(&s.readCounter), atomic.LoadUint64(&s.writeCounter)
}
