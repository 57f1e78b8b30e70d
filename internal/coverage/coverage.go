// Package coverage maintains the day-granularity activity cache: for a
// calendar month, which days each session shows activity on. Scans are
// debounced per key, single-flight, and merged only where values
// actually changed.
package coverage

import (
	"context"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/Zuo-Peng/ai-session-hub/internal/log"
	"github.com/Zuo-Peng/ai-session-hub/internal/project"
	"github.com/Zuo-Peng/ai-session-hub/internal/session"
)

const (
	DefaultDebounce = 150 * time.Millisecond
	resultTTL       = 30 * time.Minute
	cleanupInterval = time.Hour
)

// Key identifies one cached coverage computation. Separate keys
// debounce and scan independently.
type Key struct {
	Dimension  session.Dimension
	MonthKey   string
	ProjectDir string // "" = unrestricted
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%s", k.Dimension, k.MonthKey, k.ProjectDir)
}

// Result maps sessionID -> active days for the key's month.
type Result map[string]session.DaySet

// Cache coordinates background coverage scans. onChange fires from a
// background goroutine whenever a key's result genuinely changed;
// callers adapt it into their own serialization point.
type Cache struct {
	mu       sync.Mutex
	store    *gocache.Cache
	scanners []session.CoverageScanner
	debounce time.Duration
	onChange func(Key, Result)

	timers  map[string]*time.Timer
	reqs    map[string]request
	flights map[string]*flight

	ctx    context.Context
	cancel context.CancelFunc
}

type request struct {
	key        Key
	monthStart time.Time
	ids        []string
	force      bool
}

type flight struct {
	pending bool
	retried bool
}

func New(scanners []session.CoverageScanner, onChange func(Key, Result)) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		store:    gocache.New(resultTTL, cleanupInterval),
		scanners: scanners,
		debounce: DefaultDebounce,
		onChange: onChange,
		timers:   make(map[string]*time.Timer),
		reqs:     make(map[string]request),
		flights:  make(map[string]*flight),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetDebounce tunes the per-key debounce, for tests.
func (c *Cache) SetDebounce(d time.Duration) {
	c.mu.Lock()
	c.debounce = d
	c.mu.Unlock()
}

func (c *Cache) Close() {
	c.cancel()
	c.mu.Lock()
	for _, t := range c.timers {
		t.Stop()
	}
	c.timers = make(map[string]*time.Timer)
	c.mu.Unlock()
}

// Lookup returns the cached result for a key, if any.
func (c *Cache) Lookup(key Key) (Result, bool) {
	v, ok := c.store.Get(key.String())
	if !ok {
		return nil, false
	}
	return v.(Result), true
}

// Intersecting picks the sessions whose activity interval overlaps the
// month, optionally restricted to a working-directory prefix.
func Intersecting(sessions []session.Record, monthStart time.Time, projectDir string) []string {
	monthEnd := monthStart.AddDate(0, 1, 0)
	dir := project.CanonicalDir(projectDir)
	var ids []string
	for _, r := range sessions {
		if dir != "" && !project.UnderDir(project.CanonicalDir(r.WorkingDir), dir) {
			continue
		}
		start, end := r.CreatedAt, r.UpdatedAt
		if start.IsZero() {
			start = end
		}
		if end.IsZero() {
			end = start
		}
		if end.Before(monthStart) || !start.Before(monthEnd) {
			continue
		}
		ids = append(ids, r.ID)
	}
	return ids
}

// Request schedules a scan for a key. Non-forced requests with a live
// cached result are answered from cache with no scan. A forced request
// invalidates the on-disk entries before re-scanning.
func (c *Cache) Request(key Key, monthStart time.Time, sessions []session.Record, force bool) {
	ids := Intersecting(sessions, monthStart, key.ProjectDir)

	if !force {
		if _, ok := c.Lookup(key); ok {
			return
		}
	}

	k := key.String()
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, had := c.reqs[k]
	req := request{key: key, monthStart: monthStart, ids: ids, force: force}
	if had {
		req.force = req.force || prev.force
	}
	c.reqs[k] = req

	// extend/replace the pending debounce for this key only
	if t, ok := c.timers[k]; ok {
		t.Stop()
	}
	c.timers[k] = time.AfterFunc(c.debounce, func() { c.fire(k) })
}

func (c *Cache) fire(k string) {
	c.mu.Lock()
	delete(c.timers, k)
	if f, ok := c.flights[k]; ok {
		// single-flight: mark pending, re-issued when the running scan
		// completes rather than dropped
		f.pending = true
		c.mu.Unlock()
		return
	}
	f := &flight{}
	c.flights[k] = f
	c.mu.Unlock()
	go c.run(k, f)
}

func (c *Cache) run(k string, f *flight) {
	for {
		c.mu.Lock()
		req := c.reqs[k]
		f.pending = false
		c.mu.Unlock()

		if c.ctx.Err() != nil {
			c.mu.Lock()
			delete(c.flights, k)
			c.mu.Unlock()
			return
		}

		merged := c.scanOnce(req)

		var changed bool
		c.mu.Lock()
		if len(merged) == 0 && !f.retried && len(req.ids) > 0 {
			// empty means "not yet ready", not "no coverage"; retry
			// once before accepting it
			f.retried = true
			f.pending = true
		} else {
			prev, had := c.Lookup(req.key)
			if !had || !equalResult(prev, merged) {
				c.store.Set(k, merged, gocache.DefaultExpiration)
				changed = true
			}
			f.retried = false
		}
		again := f.pending
		if !again {
			delete(c.flights, k)
		}
		c.mu.Unlock()

		if changed && c.onChange != nil {
			c.onChange(req.key, merged)
		}
		if !again {
			return
		}
	}
}

// scanOnce runs every scanner for one request and merges their day
// sets. A failing scanner contributes empty rather than aborting.
func (c *Cache) scanOnce(req request) Result {
	merged := make(Result)
	if len(req.ids) == 0 {
		return merged
	}
	if req.force {
		for _, s := range c.scanners {
			if err := s.InvalidateCoverage(req.key.MonthKey, req.key.ProjectDir); err != nil {
				log.ErrorErr(log.CatCoverage, "coverage invalidate failed", err, "key", req.key.String())
			}
		}
	}
	for _, s := range c.scanners {
		res, err := s.Scan(c.ctx, req.monthStart, req.ids)
		if err != nil {
			log.ErrorErr(log.CatCoverage, "coverage scan failed", err, "key", req.key.String())
			continue
		}
		for id, days := range res {
			if days.Empty() {
				continue
			}
			merged[id] = merged[id].Union(days)
		}
	}
	return merged
}

// MergeResolved folds day activity discovered elsewhere (the filter
// pipeline's same-day fallback) into a key's cached result, only where
// it adds days.
func (c *Cache) MergeResolved(key Key, resolved map[string]session.DaySet) bool {
	if len(resolved) == 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.Lookup(key)
	merged := make(Result, len(cur)+len(resolved))
	for id, days := range cur {
		merged[id] = days
	}
	changed := !ok
	for id, days := range resolved {
		u := merged[id].Union(days)
		if u != merged[id] {
			merged[id] = u
			changed = true
		}
	}
	if changed {
		c.store.Set(key.String(), merged, gocache.DefaultExpiration)
	}
	return changed
}

// PruneSessions drops coverage entries for sessions that no longer
// exist in the primary store.
func (c *Cache) PruneSessions(valid map[string]struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, item := range c.store.Items() {
		res, ok := item.Object.(Result)
		if !ok {
			continue
		}
		pruned := res
		copied := false
		for id := range res {
			if _, ok := valid[id]; ok {
				continue
			}
			if !copied {
				pruned = make(Result, len(res))
				for pid, days := range res {
					pruned[pid] = days
				}
				copied = true
			}
			delete(pruned, id)
		}
		if copied {
			c.store.Set(k, pruned, gocache.DefaultExpiration)
		}
	}
}

func equalResult(a, b Result) bool {
	if len(a) != len(b) {
		return false
	}
	for id, days := range a {
		if b[id] != days {
			return false
		}
	}
	return true
}
