// Package pagecache serves rendered pages with incremental regeneration: a
// page younger than the revalidation interval is served as is, an older one
// is served while a single background regeneration replaces it, and a
// missing one is generated before responding.
package pagecache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Generator renders the page for a key.
type Generator func(ctx context.Context) (Page, error)

// regenerateTimeout bounds background regenerations, which outlive the
// request that triggered them.
const regenerateTimeout = 30 * time.Second

type Cache struct {
	store Store
	ttl   time.Duration
	log   *slog.Logger

	group      singleflight.Group
	refreshing sync.Map
	wg         sync.WaitGroup
	generation atomic.Uint64

	now func() time.Time
}

func New(store Store, ttl time.Duration, log *slog.Logger) *Cache {
	return &Cache{store: store, ttl: ttl, log: log, now: time.Now}
}

// Get returns the cached page for key, generating or refreshing it with gen
// as needed. Only 2xx pages are stored.
func (c *Cache) Get(ctx context.Context, key string, gen Generator) (Page, error) {
	p, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.log.Warn("page cache read failed", "key", key, "error", err)
		ok = false
	}
	if ok {
		if c.now().Sub(p.GeneratedAt) >= c.ttl {
			c.revalidate(key, gen)
		}
		return p, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.regenerate(context.WithoutCancel(ctx), key, gen)
	})
	if err != nil {
		return Page{}, err
	}
	return v.(Page), nil
}

func (c *Cache) revalidate(key string, gen Generator) {
	if _, busy := c.refreshing.LoadOrStore(key, struct{}{}); busy {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.refreshing.Delete(key)

		ctx, cancel := context.WithTimeout(context.Background(), regenerateTimeout)
		defer cancel()
		_, err, _ := c.group.Do(key, func() (any, error) {
			return c.regenerate(ctx, key, gen)
		})
		if err != nil {
			c.log.Warn("page revalidation failed, serving stale", "key", key, "error", err)
		}
	}()
}

func (c *Cache) regenerate(ctx context.Context, key string, gen Generator) (Page, error) {
	startGen := c.generation.Load()
	start := time.Now()
	p, err := gen(ctx)
	if err != nil {
		return Page{}, fmt.Errorf("generate %s: %w", key, err)
	}
	p.GeneratedAt = c.now()
	if p.Status == 0 {
		p.Status = 200
	}

	// Pages rendered from content that was invalidated meanwhile are served
	// once but not stored.
	if p.Status >= 200 && p.Status < 300 && c.generation.Load() == startGen {
		if err := c.store.Put(ctx, key, p); err != nil {
			c.log.Warn("page cache write failed", "key", key, "error", err)
		}
	}
	c.log.Debug("page generated", "key", key, "status", p.Status, "duration_ms", time.Since(start).Milliseconds())
	return p, nil
}

// Invalidate drops every cached page.
func (c *Cache) Invalidate(ctx context.Context) error {
	c.generation.Add(1)
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("invalidate page cache: %w", err)
	}
	return nil
}

// Wait blocks until background regenerations finish.
func (c *Cache) Wait() {
	c.wg.Wait()
}
