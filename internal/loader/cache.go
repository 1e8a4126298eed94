package loader

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"

	"kpidash/internal/infrastructure"
)

// Cache memoises loads by file identity. Local files are keyed by a
// blake2b-256 digest of their bytes plus the requested sheets, so an edited
// workbook is reloaded on the next request. Google Sheets sources are keyed
// by id and expire after the TTL.
type Cache struct {
	loader     *Loader
	maxEntries int
	ttl        time.Duration
	metrics    *infrastructure.DashboardMetrics
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]*cacheEntry
	order   []string
	group   singleflight.Group
}

type cacheEntry struct {
	result   *Result
	storedAt time.Time
	remote   bool
}

// NewCache wraps a Loader. maxEntries below one means a single entry.
func NewCache(loader *Loader, maxEntries int, ttl time.Duration, metrics *infrastructure.DashboardMetrics) *Cache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &Cache{
		loader:     loader,
		maxEntries: maxEntries,
		ttl:        ttl,
		metrics:    metrics,
		logger:     loader.logger.With(slog.String("component", "load_cache")),
		now:        time.Now,
		entries:    make(map[string]*cacheEntry),
	}
}

// Get returns the cached result for req, loading it on a miss. Concurrent
// misses for the same key share one load.
func (c *Cache) Get(ctx context.Context, req Request) (*Result, error) {
	start := c.now()

	key, remote, err := c.key(req)
	if err != nil {
		return nil, err
	}

	if res, ok := c.lookup(key); ok {
		c.metrics.RecordLoad(ctx, string(res.Format), true, 0, c.now().Sub(start))
		return res, nil
	}

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		res, err := c.loader.Load(ctx, req)
		if err != nil {
			return nil, err
		}
		c.store(key, res, remote)
		return res, nil
	})
	if err != nil {
		return nil, err
	}

	res := v.(*Result)
	if shared {
		c.logger.DebugContext(ctx, "load shared with concurrent caller", slog.String("path", req.Path))
	}
	c.metrics.RecordLoad(ctx, string(res.Format), false, len(res.Warnings), c.now().Sub(start))
	return res, nil
}

// Invalidate drops every entry.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
	c.order = nil
}

// Len is the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) lookup(key string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if e.remote && c.ttl > 0 && c.now().Sub(e.storedAt) > c.ttl {
		c.removeLocked(key)
		return nil, false
	}

	res := *e.result
	res.Cached = true
	return &res, true
}

func (c *Cache) store(key string, res *Result, remote bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.removeLocked(key)
	}
	for len(c.order) >= c.maxEntries {
		c.removeLocked(c.order[0])
	}
	c.entries[key] = &cacheEntry{result: res, storedAt: c.now(), remote: remote}
	c.order = append(c.order, key)
}

func (c *Cache) removeLocked(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *Cache) key(req Request) (string, bool, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", false, err
	}

	format, err := DetectFormat(req.Path)
	if err != nil {
		return "", false, err
	}
	remote := format == FormatGoogleSheets

	if remote {
		io.WriteString(h, req.Path)
	} else {
		f, err := os.Open(req.Path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", false, fmt.Errorf("%w: %s", ErrFileNotFound, req.Path)
			}
			return "", false, err
		}
		defer f.Close()
		if _, err := io.Copy(h, f); err != nil {
			return "", false, fmt.Errorf("failed to hash %s: %w", req.Path, err)
		}
	}

	fmt.Fprintf(h, "\x00%s\x00%s", strings.Join(req.Sheets, "\x00"), req.MissingSheets)

	return hex.EncodeToString(h.Sum(nil)), remote, nil
}
