// Package matchinfo keeps a best-effort, per-fixture cache of live status,
// score and team metadata used to annotate slip selections.
package matchinfo

import (
	"context"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/alanyoungcy/betslip/internal/domain"
)

const (
	defaultSize           = 512
	defaultTTL            = 10 * time.Minute
	defaultMaxConcurrency = 8
)

// Options sizes the cache.
type Options struct {
	Size           int
	TTL            time.Duration
	MaxConcurrency int
}

// Recorder observes fetch outcomes; result is "ok" or "error".
type Recorder interface {
	MatchInfoFetch(result string)
}

// entry is a cache slot. A nil info marks a fixture whose fetch failed: the
// fixture is known to be unknown.
type entry struct {
	info *domain.MatchInfo
}

// Cache maps fixture ids to match info. It is created at session start and
// closed at teardown.
type Cache struct {
	fetcher  domain.MatchInfoFetcher
	lru      *expirable.LRU[int64, entry]
	inflight singleflight.Group
	limit    int
	logger   *slog.Logger
	recorder Recorder
	closed   atomic.Bool
}

// New returns an empty cache backed by fetcher. recorder may be nil.
func New(fetcher domain.MatchInfoFetcher, opts Options, logger *slog.Logger, recorder Recorder) *Cache {
	if opts.Size <= 0 {
		opts.Size = defaultSize
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = defaultMaxConcurrency
	}
	return &Cache{
		fetcher:  fetcher,
		lru:      expirable.NewLRU[int64, entry](opts.Size, nil, opts.TTL),
		limit:    opts.MaxConcurrency,
		logger:   logger.With(slog.String("component", "matchinfo")),
		recorder: recorder,
	}
}

// Lookup distinguishes three cases: (info, true) for a known fixture,
// (nil, true) for a fixture whose fetch failed, and (nil, false) for a
// fixture never fetched.
func (c *Cache) Lookup(fixtureID int64) (*domain.MatchInfo, bool) {
	e, ok := c.lru.Get(fixtureID)
	if !ok {
		return nil, false
	}
	return clone(e.info), true
}

// Merge stores fresher info, e.g. from a validation verdict. A nil value only
// marks the fixture unknown when nothing is cached for it.
func (c *Cache) Merge(infos map[int64]*domain.MatchInfo) {
	if c.closed.Load() {
		return
	}
	for id, info := range infos {
		if info == nil {
			if !c.lru.Contains(id) {
				c.lru.Add(id, entry{})
			}
			continue
		}
		cp := clone(info)
		cp.FixtureID = id
		c.lru.Add(id, entry{info: cp})
	}
}

// Invalidate drops the entry for fixtureID.
func (c *Cache) Invalidate(fixtureID int64) {
	c.lru.Remove(fixtureID)
}

// Ensure fetches every id that is neither resident nor present in known,
// concurrently and with at most one request in flight per fixture. A failed
// fetch records a null entry and does not affect the others. It returns the
// resulting view for all ids, with nil values for known-unknown fixtures.
func (c *Cache) Ensure(ctx context.Context, ids []int64, known map[int64]*domain.MatchInfo) map[int64]*domain.MatchInfo {
	if len(known) > 0 {
		c.Merge(known)
	}

	var missing []int64
	for _, id := range dedupe(ids) {
		if _, ok := known[id]; ok {
			continue
		}
		if c.lru.Contains(id) {
			continue
		}
		missing = append(missing, id)
	}
	c.fetchAll(ctx, missing)

	return c.view(ids)
}

// Refresh refetches ids regardless of what is cached. On failure a
// previously known value is kept.
func (c *Cache) Refresh(ctx context.Context, ids []int64) {
	c.fetchAll(ctx, dedupe(ids))
}

// Close empties the cache; later Ensure and Refresh calls do nothing.
func (c *Cache) Close() {
	c.closed.Store(true)
	c.lru.Purge()
}

// Len returns the number of resident entries, expired ones excluded.
func (c *Cache) Len() int {
	return c.lru.Len()
}

func (c *Cache) fetchAll(ctx context.Context, ids []int64) {
	if len(ids) == 0 || c.closed.Load() {
		return
	}

	var g errgroup.Group
	g.SetLimit(c.limit)
	for _, id := range ids {
		g.Go(func() error {
			c.fetch(ctx, id)
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Cache) fetch(ctx context.Context, id int64) {
	_, _, _ = c.inflight.Do(strconv.FormatInt(id, 10), func() (any, error) {
		info, err := c.fetcher.GetMatchInfo(ctx, id)
		if c.closed.Load() {
			return nil, nil
		}
		if err != nil {
			c.logger.WarnContext(ctx, "match info fetch failed",
				slog.Int64("fixture_id", id),
				slog.String("error", err.Error()),
			)
			c.record("error")
			if prev, ok := c.lru.Peek(id); !ok || prev.info == nil {
				c.lru.Add(id, entry{})
			}
			return nil, nil
		}
		c.record("ok")
		info.FixtureID = id
		c.lru.Add(id, entry{info: &info})
		return nil, nil
	})
}

func (c *Cache) view(ids []int64) map[int64]*domain.MatchInfo {
	out := make(map[int64]*domain.MatchInfo, len(ids))
	for _, id := range ids {
		if info, ok := c.Lookup(id); ok {
			out[id] = info
		}
	}
	return out
}

func (c *Cache) record(result string) {
	if c.recorder != nil {
		c.recorder.MatchInfoFetch(result)
	}
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func clone(info *domain.MatchInfo) *domain.MatchInfo {
	if info == nil {
		return nil
	}
	cp := *info
	cp.Status.Elapsed = cloneInt(info.Status.Elapsed)
	cp.Score.Home = cloneInt(info.Score.Home)
	cp.Score.Away = cloneInt(info.Score.Away)
	return &cp
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
