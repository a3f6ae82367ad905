package treedex

import (
	"log/slog"
	"os"

	"github.com/treedex/treedex/internal/priority"
	"github.com/treedex/treedex/internal/treecache"
	"github.com/treedex/treedex/pkg/pathcodec"
)

// Config configures a Tree instance. Only Paths[0] is used at the
// moment; future versions may use multiple paths for sharding.
type Config struct {
	// Paths contains data directories. Currently only Paths[0] is used.
	Paths []string
	// MinimumFreeGB is a free-space threshold checked before opening
	// the store.
	MinimumFreeGB uint
	// Logger is an optional structured logger. If nil, a stderr logger
	// is used.
	Logger *slog.Logger

	// Label prefixes every cache key so several trees can share one
	// process without invalidating each other. Defaults to "treedex".
	Label string
	// SegmentWidth is the fixed width of one materialized-path segment
	// in base36 digits. Defaults to 3, bounding each node to 46655
	// children.
	SegmentWidth int
	// MaxDepth bounds the nesting level; exceeding it fails rebuilds
	// with ErrCapacityExceeded. Defaults to 512.
	MaxDepth int
	// CacheLimitMB bounds the estimated memory of cached query results.
	// Defaults to 100.
	CacheLimitMB int
	// CachePromoteAfter is the access count at which a cache entry is
	// re-queued behind newer entries. Defaults to 3.
	CachePromoteAfter int
	// SortField orders siblings on rebuild: "priority" (default) or
	// "name".
	SortField string
}

const (
	defaultLabel    = "treedex"
	defaultMaxDepth = 512
)

func (c *Config) applyDefaults() {
	if c.Logger == nil {
		c.Logger = defaultLogger()
	}
	if c.Label == "" {
		c.Label = defaultLabel
	}
	if c.SegmentWidth == 0 {
		c.SegmentWidth = pathcodec.DefaultWidth
	}
	if c.MaxDepth == 0 {
		c.MaxDepth = defaultMaxDepth
	}
	if c.CacheLimitMB == 0 {
		c.CacheLimitMB = treecache.DefaultLimit / (1024 * 1024)
	}
	if c.CachePromoteAfter == 0 {
		c.CachePromoteAfter = treecache.DefaultPromoteAfter
	}
	if c.SortField == "" {
		c.SortField = priority.SortByPriority
	}
}

// defaultLogger returns a logger that writes text logs to stderr at Info
// level. Applications can inject their own slog.Logger for JSON,
// different levels, etc.
func defaultLogger() *slog.Logger {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(h)
}
