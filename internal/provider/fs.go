// Package provider implements filesystem session sources: one provider
// per agent kind and root tree. Remote sources are mirrored trees and
// behave exactly like local ones, with a host label on their records.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Zuo-Peng/ai-session-hub/internal/log"
	"github.com/Zuo-Peng/ai-session-hub/internal/project"
	"github.com/Zuo-Peng/ai-session-hub/internal/recordcache"
	"github.com/Zuo-Peng/ai-session-hub/internal/session"
)

func parseUUID(s string) (string, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// FS reads one agent's session logs from one directory tree, backed by
// the shared record cache for cacheOnly loads and staleness checks.
type FS struct {
	src    session.SourceRef
	root   string
	cache  *recordcache.Cache
	layout kindLayout
	stats  func(string) (parseStats, error)
}

func New(src session.SourceRef, root string, cache *recordcache.Cache) (*FS, error) {
	p := &FS{src: src, root: root, cache: cache}
	switch src.Kind {
	case session.KindClaude:
		p.layout = claudeLayout
		p.stats = parseClaudeStats
	case session.KindCodex:
		p.layout = codexLayout
		p.stats = parseCodexStats
	default:
		return nil, fmt.Errorf("unknown source kind %q", src.Kind)
	}
	return p, nil
}

func (p *FS) Name() string {
	return p.src.String()
}

func (p *FS) Source() session.SourceRef {
	return p.src
}

func (p *FS) Load(ctx context.Context, lc session.LoadContext) (session.LoadResult, error) {
	if lc.Policy == session.CacheOnly {
		return p.loadCached(lc)
	}
	return p.loadRefresh(ctx, lc)
}

func (p *FS) loadCached(lc session.LoadContext) (session.LoadResult, error) {
	recs, err := p.cache.FetchSource(p.src)
	if err != nil {
		return session.LoadResult{}, fmt.Errorf("record cache read: %w", err)
	}
	out := session.LoadResult{CacheHit: true}
	out.Summaries = filterContext(recs, lc)
	cov, err := p.coverageFor(lc, out.Summaries)
	if err != nil {
		return session.LoadResult{}, err
	}
	out.Coverage = cov
	return out, nil
}

func (p *FS) loadRefresh(ctx context.Context, lc session.LoadContext) (session.LoadResult, error) {
	files, err := scanRoot(p.root, p.layout)
	if err != nil {
		return session.LoadResult{}, fmt.Errorf("scan %s: %w", p.root, err)
	}

	seen := make(map[string]struct{}, len(files))
	var freshIDs []string
	var changed []session.Record
	for _, fi := range files {
		if err := ctx.Err(); err != nil {
			return session.LoadResult{}, err
		}
		id := deriveID(p.src, baseName(fi.Path))
		seen[id] = struct{}{}

		mtime, size, ok, err := p.cache.Meta(id)
		if err != nil {
			return session.LoadResult{}, fmt.Errorf("record cache meta: %w", err)
		}
		if ok && mtime == fi.Mtime.Unix() && size == fi.Size {
			freshIDs = append(freshIDs, id)
			continue
		}
		changed = append(changed, p.parseFile(id, fi))
	}

	if len(changed) > 0 {
		if err := p.cache.Upsert(changed); err != nil {
			return session.LoadResult{}, fmt.Errorf("record cache upsert: %w", err)
		}
	}

	// prune cached records whose files vanished
	cached, err := p.cache.FetchSource(p.src)
	if err != nil {
		return session.LoadResult{}, fmt.Errorf("record cache read: %w", err)
	}
	var stale []string
	recs := make([]session.Record, 0, len(cached))
	for _, r := range cached {
		if _, ok := seen[r.ID]; !ok {
			stale = append(stale, r.ID)
			continue
		}
		recs = append(recs, r)
	}
	if len(stale) > 0 {
		if err := p.cache.Invalidate(stale...); err != nil {
			return session.LoadResult{}, fmt.Errorf("record cache prune: %w", err)
		}
		log.Debug(log.CatProvider, "pruned vanished sessions", "source", p.Name(), "count", len(stale))
	}

	out := session.LoadResult{}
	out.Summaries = filterContext(recs, lc)
	cov, err := p.coverageFor(lc, out.Summaries)
	if err != nil {
		return session.LoadResult{}, err
	}
	out.Coverage = cov
	return out, nil
}

// parseFile produces the best record it can for one file. A failed
// content parse degrades to a metadata-only record instead of dropping
// the session.
func (p *FS) parseFile(id string, fi fileInfo) session.Record {
	rec := session.Record{
		ID:        id,
		Source:    p.src,
		FilePath:  fi.Path,
		FileSize:  fi.Size,
		Mtime:     fi.Mtime,
		UpdatedAt: fi.Mtime,
		Quality:   session.QualityMetadata,
	}

	stats, err := p.stats(fi.Path)
	if err != nil {
		log.Warn(log.CatProvider, "parse failed, keeping metadata record",
			"source", p.Name(), "path", fi.Path, "error", err)
		return rec
	}

	rec.WorkingDir = stats.WorkingDir
	rec.Messages = stats.Messages
	rec.ToolCalls = stats.ToolCalls
	rec.LineCount = stats.LineCount
	rec.Quality = session.QualityFull
	if !stats.FirstTS.IsZero() {
		rec.CreatedAt = stats.FirstTS
	}
	if !stats.LastTS.IsZero() {
		rec.UpdatedAt = stats.LastTS
	}
	if len(stats.ActiveDays) > 0 {
		rec.ActiveDays = stats.ActiveDays
		rec.Quality = session.QualityEnriched
	}
	return rec
}

// coverageFor attaches the month's coverage entries when the load is
// month-scoped, restricted to the returned sessions.
func (p *FS) coverageFor(lc session.LoadContext, recs []session.Record) (session.CoverageSnapshot, error) {
	if lc.Scope.Kind != session.ScopeMonth {
		return nil, nil
	}
	monthKey := session.MonthKey(lc.Scope.Date)
	cov, err := p.cache.CoverageFor(monthKey)
	if err != nil {
		return nil, fmt.Errorf("coverage read: %w", err)
	}
	byID := make(map[string]session.DaySet)
	for _, r := range recs {
		if days, ok := cov[r.ID]; ok && !days.Empty() {
			byID[r.ID] = days
		}
	}
	if len(byID) == 0 {
		return nil, nil
	}
	return session.CoverageSnapshot{monthKey: byID}, nil
}

// UpdatedOn is the targeted hint query: sessions whose file changed on
// the given day, freshly parsed.
func (p *FS) UpdatedOn(ctx context.Context, day time.Time) ([]session.Record, error) {
	from := session.DayStart(day)
	to := from.AddDate(0, 0, 1)
	files, err := scanRoot(p.root, p.layout)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", p.root, err)
	}
	var out []session.Record
	for _, fi := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if fi.Mtime.Before(from) || !fi.Mtime.Before(to) {
			continue
		}
		rec, err := p.freshRecord(fi)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// UnderDir is the targeted hint query: sessions working under dir.
// Changed and new files are parsed; untouched ones come from cache.
func (p *FS) UnderDir(ctx context.Context, dir string) ([]session.Record, error) {
	files, err := scanRoot(p.root, p.layout)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", p.root, err)
	}
	var out []session.Record
	for _, fi := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := p.freshRecord(fi)
		if err != nil {
			return nil, err
		}
		if project.UnderDir(project.CanonicalDir(rec.WorkingDir), project.CanonicalDir(dir)) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// freshRecord returns the cached record for a file if still valid,
// otherwise reparses and caches it.
func (p *FS) freshRecord(fi fileInfo) (session.Record, error) {
	id := deriveID(p.src, baseName(fi.Path))
	mtime, size, ok, err := p.cache.Meta(id)
	if err != nil {
		return session.Record{}, fmt.Errorf("record cache meta: %w", err)
	}
	if ok && mtime == fi.Mtime.Unix() && size == fi.Size {
		recs, err := p.cache.Fetch([]string{id})
		if err != nil {
			return session.Record{}, fmt.Errorf("record cache read: %w", err)
		}
		if len(recs) == 1 {
			return recs[0], nil
		}
	}
	rec := p.parseFile(id, fi)
	if err := p.cache.Upsert([]session.Record{rec}); err != nil {
		return session.Record{}, fmt.Errorf("record cache upsert: %w", err)
	}
	return rec, nil
}

// Scan implements the coverage scan capability: which days of the
// month each session shows activity on, reparsing files that changed
// since their cached parse.
func (p *FS) Scan(ctx context.Context, monthStart time.Time, ids []string) (map[string]session.DaySet, error) {
	monthKey := session.MonthKey(monthStart)
	cached, err := p.cache.CoverageFor(monthKey)
	if err != nil {
		return nil, fmt.Errorf("coverage read: %w", err)
	}
	recs, err := p.cache.Fetch(ids)
	if err != nil {
		return nil, fmt.Errorf("record cache read: %w", err)
	}

	out := make(map[string]session.DaySet)
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if rec.Source != p.src {
			continue
		}
		fi, statErr := statFile(rec.FilePath)
		if statErr == nil && (!fi.Mtime.Equal(rec.Mtime) || fi.Size != rec.FileSize) {
			fresh := p.parseFile(rec.ID, fi)
			if err := p.cache.Upsert([]session.Record{fresh}); err != nil {
				return nil, fmt.Errorf("record cache upsert: %w", err)
			}
			if days, ok := fresh.ActiveDays[monthKey]; ok && !days.Empty() {
				out[rec.ID] = days
			}
			continue
		}
		if days, ok := cached[rec.ID]; ok && !days.Empty() {
			out[rec.ID] = days
		}
	}
	return out, nil
}

// InvalidateCoverage drops the on-disk coverage entries for a month,
// optionally restricted to a project directory.
func (p *FS) InvalidateCoverage(monthKey, dir string) error {
	return p.cache.InvalidateCoverage(monthKey, dir)
}

// filterContext applies the read-only load restrictions.
func filterContext(recs []session.Record, lc session.LoadContext) []session.Record {
	if lc.From.IsZero() && lc.To.IsZero() && lc.ProjectDir == "" {
		return recs
	}
	dir := project.CanonicalDir(lc.ProjectDir)
	out := make([]session.Record, 0, len(recs))
	for _, r := range recs {
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
		if !lc.From.IsZero() && end.Before(lc.From) {
			continue
		}
		if !lc.To.IsZero() && !start.Before(lc.To) {
			continue
		}
		out = append(out, r)
	}
	return out
}
