// Package schemacache memoizes table column listings. Listings are cached per
// table for a TTL; concurrent misses for the same table share one catalog
// query. Failed lookups are never cached.
package schemacache

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/sleeping-owl/with-join/internal/introspection"
	"github.com/sleeping-owl/with-join/internal/logging"
	"github.com/sleeping-owl/with-join/internal/observability"
)

const (
	// DefaultTTL matches the lifetime of a cached column listing when none is configured.
	DefaultTTL = 24 * time.Hour
	// DefaultSize bounds the number of cached tables.
	DefaultSize = 1024
)

// Options configures a Cache.
type Options struct {
	TTL     time.Duration
	Size    int
	Metrics *observability.Metrics
	Logger  *logging.Logger
}

// Cache is a TTL cache of column listings in front of a ColumnLister.
type Cache struct {
	lister  introspection.ColumnLister
	entries *expirable.LRU[string, []string]
	group   singleflight.Group
	metrics *observability.Metrics
	logger  *logging.Logger
	ttl     time.Duration
}

// New creates a cache. Zero TTL and Size fall back to the defaults.
func New(lister introspection.ColumnLister, opts Options) *Cache {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	size := opts.Size
	if size <= 0 {
		size = DefaultSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Cache{
		lister:  lister,
		entries: expirable.NewLRU[string, []string](size, nil, ttl),
		metrics: opts.Metrics,
		logger:  logger.WithComponent("schemacache"),
		ttl:     ttl,
	}
}

// Columns returns the ordered column names of table. Callers must not modify
// the returned slice.
func (c *Cache) Columns(ctx context.Context, table string) ([]string, error) {
	if table == "" {
		return nil, errors.New("table name is required")
	}
	if cols, ok := c.entries.Get(table); ok {
		c.metrics.RecordCacheLookup(ctx, true)
		return cols, nil
	}
	c.metrics.RecordCacheLookup(ctx, false)

	// The lookup is shared by every caller waiting on table, so it must not
	// end when the caller that started it is cancelled.
	lookupCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(table, func() (any, error) {
		if cols, ok := c.entries.Get(table); ok {
			return cols, nil
		}
		cols, err := c.lister.ListColumns(lookupCtx, table)
		if err != nil {
			return nil, err
		}
		c.entries.Add(table, cols)
		c.logger.Debug("cached column listing",
			"table", table,
			"columns", len(cols),
			"ttl", c.ttl.String(),
		)
		return cols, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		c.logger.Warn("column listing failed", "table", table, "error", res.Err)
		return nil, res.Err
	}
	if res.Shared {
		c.logger.Debug("shared in-flight column listing", "table", table)
	}
	return res.Val.([]string), nil
}

// Invalidate drops the cached listing for table.
func (c *Cache) Invalidate(table string) {
	c.entries.Remove(table)
}

// Purge drops every cached listing.
func (c *Cache) Purge() {
	c.entries.Purge()
}

// Len returns the number of cached tables.
func (c *Cache) Len() int {
	return c.entries.Len()
}
