// Package aggregate maintains the secondary indices derived from the
// primary session list: per-directory count tree, per-project counts,
// and month histograms. Deltas are applied incrementally where
// possible; structural changes fall back to a full rebuild.
package aggregate

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/Zuo-Peng/ai-session-hub/internal/project"
	"github.com/Zuo-Peng/ai-session-hub/internal/session"
)

const (
	histogramTTL    = 15 * time.Minute
	cleanupInterval = time.Hour
)

// PathTree counts sessions per working-directory prefix: a session
// under /a/b/c contributes to /a, /a/b and /a/b/c.
type PathTree struct {
	counts map[string]int
	dirs   map[string]string // sessionID -> canonical dir currently counted
}

func NewPathTree() *PathTree {
	return &PathTree{
		counts: make(map[string]int),
		dirs:   make(map[string]string),
	}
}

func (t *PathTree) Count(dir string) int {
	return t.counts[project.CanonicalDir(dir)]
}

// Rebuild recomputes the tree from scratch.
func (t *PathTree) Rebuild(recs []session.Record) {
	t.counts = make(map[string]int)
	t.dirs = make(map[string]string)
	for _, r := range recs {
		t.add(r.ID, r.WorkingDir)
	}
}

// Apply adjusts the tree by the difference between what it currently
// counts and the new record list, without touching unchanged entries.
func (t *PathTree) Apply(recs []session.Record) {
	next := make(map[string]string, len(recs))
	for _, r := range recs {
		next[r.ID] = project.CanonicalDir(r.WorkingDir)
	}
	for id, dir := range t.dirs {
		if nd, ok := next[id]; !ok || nd != dir {
			t.remove(id)
		}
	}
	for id, dir := range next {
		if _, ok := t.dirs[id]; !ok {
			t.add(id, dir)
		}
	}
}

func (t *PathTree) add(id, dir string) {
	dir = project.CanonicalDir(dir)
	t.dirs[id] = dir
	for _, p := range ancestors(dir) {
		t.counts[p]++
	}
}

func (t *PathTree) remove(id string) {
	dir, ok := t.dirs[id]
	if !ok {
		return
	}
	delete(t.dirs, id)
	for _, p := range ancestors(dir) {
		t.counts[p]--
		if t.counts[p] <= 0 {
			delete(t.counts, p)
		}
	}
}

// ancestors lists dir and every parent up to the root, excluding the
// root itself.
func ancestors(dir string) []string {
	if dir == "" || dir == "." {
		return nil
	}
	var out []string
	for cur := dir; ; {
		out = append(out, cur)
		parent := filepath.Dir(cur)
		if parent == cur || parent == string(filepath.Separator) || parent == "." {
			break
		}
		cur = parent
	}
	return out
}

// Counts is one project's pair of totals.
type Counts struct {
	Visible int
	Total   int
}

// ProjectCounts tracks per-project totals, delta-maintained against
// the structure version: a reparent or other structural change forces
// a rebuild because membership can move wholesale.
type ProjectCounts struct {
	counts    map[string]Counts
	members   map[string]string // sessionID -> projectID currently counted
	structure uint64
}

func NewProjectCounts() *ProjectCounts {
	return &ProjectCounts{
		counts:  make(map[string]Counts),
		members: make(map[string]string),
	}
}

func (p *ProjectCounts) Get(projectID string) Counts {
	return p.counts[projectID]
}

func (p *ProjectCounts) All() map[string]Counts {
	out := make(map[string]Counts, len(p.counts))
	for k, v := range p.counts {
		out[k] = v
	}
	return out
}

// Update applies the new membership map. When the project structure
// changed since the last update, the delta is not trustworthy and a
// full rebuild runs instead.
func (p *ProjectCounts) Update(projectOf map[string]string, structureVersion uint64) {
	if structureVersion != p.structure {
		p.rebuild(projectOf)
		p.structure = structureVersion
		return
	}
	for id, pid := range p.members {
		if npid, ok := projectOf[id]; !ok || npid != pid {
			c := p.counts[pid]
			c.Total--
			p.setOrDelete(pid, c)
			delete(p.members, id)
		}
	}
	for id, pid := range projectOf {
		if _, ok := p.members[id]; !ok {
			c := p.counts[pid]
			c.Total++
			p.counts[pid] = c
			p.members[id] = pid
		}
	}
}

func (p *ProjectCounts) rebuild(projectOf map[string]string) {
	visible := make(map[string]int, len(p.counts))
	for pid, c := range p.counts {
		if c.Visible > 0 {
			visible[pid] = c.Visible
		}
	}
	p.counts = make(map[string]Counts)
	p.members = make(map[string]string, len(projectOf))
	for id, pid := range projectOf {
		c := p.counts[pid]
		c.Total++
		p.counts[pid] = c
		p.members[id] = pid
	}
	for pid, v := range visible {
		if c, ok := p.counts[pid]; ok {
			c.Visible = v
			p.counts[pid] = c
		}
	}
}

// SetVisible replaces the visible counts from a published filter
// result.
func (p *ProjectCounts) SetVisible(visibleOf map[string]int) {
	for pid, c := range p.counts {
		c.Visible = visibleOf[pid]
		p.counts[pid] = c
	}
	for pid, v := range visibleOf {
		if _, ok := p.counts[pid]; !ok {
			p.counts[pid] = Counts{Visible: v}
		}
	}
}

func (p *ProjectCounts) setOrDelete(pid string, c Counts) {
	if c.Total <= 0 && c.Visible <= 0 {
		delete(p.counts, pid)
		return
	}
	p.counts[pid] = c
}

// Histogram is sessions-per-day for one month; index is day-of-month.
type Histogram [32]int

// HistogramKey is the composite of everything that can change the
// histogram; a cache hit is only valid when all of it is unchanged.
type HistogramKey struct {
	Dimension        session.Dimension
	MonthKey         string
	ProjectDir       string
	ListVersion      uint64
	StructureVersion uint64
}

func (k HistogramKey) String() string {
	return fmt.Sprintf("%s|%s|%s|%d|%d",
		k.Dimension, k.MonthKey, k.ProjectDir, k.ListVersion, k.StructureVersion)
}

// HistogramCache memoizes month histograms under their composite key.
type HistogramCache struct {
	store *gocache.Cache
}

func NewHistogramCache() *HistogramCache {
	return &HistogramCache{store: gocache.New(histogramTTL, cleanupInterval)}
}

// Get returns the cached histogram or computes and caches it.
func (h *HistogramCache) Get(key HistogramKey, compute func() Histogram) Histogram {
	if v, ok := h.store.Get(key.String()); ok {
		return v.(Histogram)
	}
	hist := compute()
	h.store.Set(key.String(), hist, gocache.DefaultExpiration)
	return hist
}

// Flush drops all memoized histograms, e.g. after a forced refresh.
func (h *HistogramCache) Flush() {
	h.store.Flush()
}

// MonthHistogram computes sessions-active-per-day for one month. The
// created dimension counts creation days; the updated dimension walks
// coverage day sets, falling back to the lastUpdatedAt day for
// sessions without an entry.
func MonthHistogram(monthStart time.Time, recs []session.Record, dim session.Dimension, cov map[string]session.DaySet, projectDir string) Histogram {
	var hist Histogram
	monthKey := session.MonthKey(monthStart)
	dir := project.CanonicalDir(projectDir)
	for _, r := range recs {
		if dir != "" && !project.UnderDir(project.CanonicalDir(r.WorkingDir), dir) {
			continue
		}
		if dim == session.ByCreated {
			if !r.CreatedAt.IsZero() && session.MonthKey(r.CreatedAt) == monthKey {
				hist[r.CreatedAt.Day()]++
			}
			continue
		}
		if days, ok := cov[r.ID]; ok && !days.Empty() {
			for _, d := range days.Days() {
				hist[d]++
			}
			continue
		}
		if !r.UpdatedAt.IsZero() && session.MonthKey(r.UpdatedAt) == monthKey {
			hist[r.UpdatedAt.Day()]++
		}
	}
	return hist
}

// DirBase is the display label for a tree node.
func DirBase(dir string) string {
	if dir == "" {
		return ""
	}
	return strings.TrimSuffix(filepath.Base(dir), string(filepath.Separator))
}
