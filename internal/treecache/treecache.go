// Package treecache is a size-bounded in-memory cache for derived tree
// query results. Eviction is FIFO by insertion order; an entry read at
// least promoteAfter times is re-queued at the back once, so hot entries
// survive one extra eviction sweep. Keys use the form
// "label|operation:id:args" and invalidation removes whole key prefixes
// up to and including the "|".
package treecache

import (
	"container/list"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/treedex/treedex/pkg/types"
)

const (
	// DefaultLimit bounds the cache to 100 MB worth of estimated entries.
	DefaultLimit = 100 * 1024 * 1024
	// DefaultPromoteAfter is the access count at which an entry is
	// re-queued behind newer entries.
	DefaultPromoteAfter = 3
)

type entry struct {
	key      string
	value    any
	size     int64
	hits     int
	promoted bool
	elem     *list.Element
}

type Cache struct {
	mu           sync.Mutex
	maxSize      int64
	promoteAfter int

	entries   map[string]*entry
	order     *list.List // front = oldest
	totalSize int64

	prefixIndex map[string]map[string]struct{}
}

func New(maxSize int64, promoteAfter int) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultLimit
	}
	if promoteAfter <= 0 {
		promoteAfter = DefaultPromoteAfter
	}
	return &Cache{
		maxSize:      maxSize,
		promoteAfter: promoteAfter,
		entries:      make(map[string]*entry),
		order:        list.New(),
		prefixIndex:  make(map[string]map[string]struct{}),
	}
}

// Key builds a cache key in the canonical "label|op:id:args" form.
func Key(label, op string, id types.NodeID, args ...string) string {
	var b strings.Builder
	b.WriteString(label)
	b.WriteByte('|')
	b.WriteString(op)
	b.WriteByte(':')
	b.WriteString(id.String())
	for _, a := range args {
		b.WriteByte(':')
		b.WriteString(a)
	}
	return b.String()
}

func keyPrefix(key string) string {
	if i := strings.IndexByte(key, '|'); i >= 0 {
		return key[:i+1]
	}
	return key
}

// detach copies slice-typed values so cached entries never share a
// backing array with callers; a caller sorting a returned slice must
// not reorder the cached one. Element payloads stay shared and are
// treated as read-only.
func detach(value any) any {
	switch v := value.(type) {
	case []types.Node:
		return append([]types.Node(nil), v...)
	case []types.NodeID:
		return append([]types.NodeID(nil), v...)
	case []byte:
		return append([]byte(nil), v...)
	}
	return value
}

func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	e.hits++
	if !e.promoted && e.hits >= c.promoteAfter {
		e.promoted = true
		c.order.MoveToBack(e.elem)
	}
	return detach(e.value), true
}

func (c *Cache) Set(key string, value any) {
	value = detach(value)
	size := estimateSize(value)

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.removeLocked(old)
	}

	e := &entry{key: key, value: value, size: size}
	e.elem = c.order.PushBack(e)
	c.entries[key] = e
	c.totalSize += size

	prefix := keyPrefix(key)
	keys, ok := c.prefixIndex[prefix]
	if !ok {
		keys = make(map[string]struct{})
		c.prefixIndex[prefix] = keys
	}
	keys[key] = struct{}{}

	c.evictLocked()
}

// Invalidate drops every entry whose key starts with prefix. The label
// form ("mytree") and the raw prefix form ("mytree|") are both accepted.
func (c *Cache) Invalidate(prefix string) {
	if !strings.HasSuffix(prefix, "|") {
		prefix += "|"
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	keys, ok := c.prefixIndex[prefix]
	if !ok {
		return
	}
	for key := range keys {
		if e, found := c.entries[key]; found {
			c.removeLocked(e)
		}
	}
	delete(c.prefixIndex, prefix)
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry)
	c.order.Init()
	c.totalSize = 0
	c.prefixIndex = make(map[string]map[string]struct{})
}

func (c *Cache) removeLocked(e *entry) {
	c.order.Remove(e.elem)
	delete(c.entries, e.key)
	c.totalSize -= e.size
	if keys, ok := c.prefixIndex[keyPrefix(e.key)]; ok {
		delete(keys, e.key)
		if len(keys) == 0 {
			delete(c.prefixIndex, keyPrefix(e.key))
		}
	}
}

func (c *Cache) evictLocked() {
	for c.totalSize > c.maxSize {
		front := c.order.Front()
		if front == nil {
			return
		}
		c.removeLocked(front.Value.(*entry))
	}
}

// Info reports runtime statistics for monitoring and diagnostics.
type Info struct {
	TotalKeys   int
	TotalSize   int64
	MaxSize     int64
	FillPercent float64
	Prefixes    int

	TotalSizeHuman string
	MaxSizeHuman   string
}

func (c *Cache) Info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()

	fill := 0.0
	if c.maxSize > 0 {
		fill = float64(c.totalSize) / float64(c.maxSize) * 100
	}
	return Info{
		TotalKeys:      len(c.entries),
		TotalSize:      c.totalSize,
		MaxSize:        c.maxSize,
		FillPercent:    fill,
		Prefixes:       len(c.prefixIndex),
		TotalSizeHuman: humanize.Bytes(uint64(c.totalSize)),
		MaxSizeHuman:   humanize.Bytes(uint64(c.maxSize)),
	}
}

// estimateSize is a deterministic approximation of an entry's memory
// footprint. It only needs to be proportional, not exact, for the
// eviction pressure to behave.
func estimateSize(value any) int64 {
	const overhead = 48

	switch v := value.(type) {
	case nil:
		return overhead
	case bool, int, int64, uint64, float64:
		return overhead + 8
	case string:
		return overhead + int64(len(v))
	case []byte:
		return overhead + int64(len(v))
	case types.NodeID:
		return overhead + 16
	case []types.NodeID:
		return overhead + int64(len(v))*16
	case types.Node:
		return overhead + nodeSize(v)
	case []types.Node:
		size := int64(overhead)
		for _, n := range v {
			size += nodeSize(n)
		}
		return size
	default:
		return overhead + 64
	}
}

func nodeSize(n types.Node) int64 {
	return 96 + int64(len(n.Path)+len(n.Name)+len(n.Payload))
}
