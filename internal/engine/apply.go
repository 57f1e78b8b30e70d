package engine

import (
	"time"

	"github.com/Zuo-Peng/ai-session-hub/internal/aggregate"
	"github.com/Zuo-Peng/ai-session-hub/internal/coverage"
	"github.com/Zuo-Peng/ai-session-hub/internal/log"
	"github.com/Zuo-Peng/ai-session-hub/internal/project"
	"github.com/Zuo-Peng/ai-session-hub/internal/pubsub"
	"github.com/Zuo-Peng/ai-session-hub/internal/reconcile"
	"github.com/Zuo-Peng/ai-session-hub/internal/session"
)

// applyLoad folds one pass of provider results into the primary list.
// The cache-only pass arrives first and is never authoritative; the
// refresh pass may replace whole sources (full scope) and prune
// sessions whose files vanished.
func (e *Engine) applyLoad(scope session.Scope, gen, fullGen uint64, results []provResult, authoritative bool) {
	if e.fullGen != fullGen {
		// a newer full refresh superseded this load; its results are
		// about to be replaced wholesale, so applying them would only
		// flash stale state
		log.Debug(log.CatEngine, "stale load discarded", "scope", scope.Key(), "gen", gen)
		return
	}

	var incoming []session.Record
	replaced := make(map[session.SourceRef]bool)
	for _, pr := range results {
		if pr.err != nil {
			if authoritative {
				e.provFail[pr.name] = time.Now()
				log.ErrorErr(log.CatEngine, "provider load failed", pr.err, "provider", pr.name)
			}
			continue
		}
		if authoritative {
			delete(e.provFail, pr.name)
		}
		incoming = append(incoming, pr.res.Summaries...)
		if authoritative && scope.Kind == session.ScopeAll {
			replaced[pr.src] = true
		}
		e.absorbCoverage(pr.res.Coverage)
	}

	var merged []session.Record
	if len(replaced) > 0 {
		// full refresh: successful sources are replaced outright so
		// vanished sessions drop out; failed sources keep their last
		// known records
		kept := make([]session.Record, 0, len(e.records))
		for _, r := range e.records {
			if !replaced[r.Source] {
				kept = append(kept, r)
			}
		}
		merged = reconcile.Merge(kept, incoming)
	} else {
		if len(incoming) == 0 {
			return
		}
		merged = reconcile.Merge(e.records, incoming)
	}

	merged = reconcile.CarryOverlays(e.overlays, merged)
	if recordsEqual(e.records, merged) {
		return
	}

	e.autoAssign(merged)
	e.records = merged
	e.listVersion++
	log.Debug(log.CatEngine, "records applied",
		"scope", scope.Key(), "gen", gen, "count", len(merged), "version", e.listVersion)

	if len(replaced) > 0 {
		valid := make(map[string]struct{}, len(merged))
		for _, r := range merged {
			valid[r.ID] = struct{}{}
		}
		e.cov.PruneSessions(valid)
	}

	e.refreshAggregates()
	e.scheduleFilter()
}

// mergeSubset folds targeted query results (hint path) into the list
// without any pruning.
func (e *Engine) mergeSubset(subset []session.Record) {
	if len(subset) == 0 {
		return
	}
	merged := reconcile.Merge(e.records, subset)
	merged = reconcile.CarryOverlays(e.overlays, merged)
	if recordsEqual(e.records, merged) {
		return
	}
	e.autoAssign(merged)
	e.records = merged
	e.listVersion++
	e.refreshAggregates()
	e.scheduleFilter()
}

// absorbCoverage feeds provider-reported month coverage into the
// coverage cache so a later day filter can start warm.
func (e *Engine) absorbCoverage(snap session.CoverageSnapshot) {
	for monthKey, byID := range snap {
		if len(byID) == 0 {
			continue
		}
		key := coverage.Key{Dimension: session.ByUpdated, MonthKey: monthKey}
		e.cov.MergeResolved(key, byID)
	}
}

// autoAssign pins genuinely new sessions whose working directory
// matches a project, so later directory renames don't silently move
// them.
func (e *Engine) autoAssign(merged []session.Record) {
	known := make(map[string]struct{}, len(e.records))
	for _, r := range e.records {
		known[r.ID] = struct{}{}
	}
	for _, r := range merged {
		if _, ok := known[r.ID]; ok {
			continue
		}
		if pid := e.registry.MatchDir(r.WorkingDir); pid != project.Unassigned {
			e.registry.Assign(r.ID, pid)
		}
	}
}

// refreshAggregates recomputes the derived counters from the current
// list and registry, then publishes them.
func (e *Engine) refreshAggregates() {
	e.tree.Apply(e.records)
	projectOf := make(map[string]string, len(e.records))
	for _, r := range e.records {
		projectOf[r.ID] = e.registry.ProjectFor(r)
	}
	e.projCounts.Update(projectOf, e.registry.StructureVersion())
	e.publishAggregates()
}

func (e *Engine) buildAggregates() Aggregates {
	agg := Aggregates{
		Projects:  e.projCounts.All(),
		DirCounts: make(map[string]int),
	}
	for _, p := range e.registry.All() {
		if p.Dir != "" {
			agg.DirCounts[p.Dir] = e.tree.Count(p.Dir)
		}
	}

	month := e.selectionMonth()
	agg.HistogramMonth = session.MonthKey(month)
	key := aggregate.HistogramKey{
		Dimension:        e.selection.Dimension,
		MonthKey:         agg.HistogramMonth,
		ProjectDir:       e.selection.PathPrefix,
		ListVersion:      e.listVersion,
		StructureVersion: e.registry.StructureVersion(),
	}
	var cov coverage.Result
	if e.selection.Dimension == session.ByUpdated {
		cov, _ = e.cov.Lookup(e.currentCoverageKey())
	}
	agg.Histogram = e.histograms.Get(key, func() aggregate.Histogram {
		return aggregate.MonthHistogram(month, e.records, e.selection.Dimension, cov, e.selection.PathPrefix)
	})
	return agg
}

func (e *Engine) publishAggregates() {
	agg := e.buildAggregates()
	e.readMu.Lock()
	e.readAggregates = agg
	e.readMu.Unlock()
	e.broker.Publish(pubsub.AggregatesUpdated, Update{Aggregates: agg})
}

// recordsEqual is the cheap change test between the current list and a
// merge result. Both sides are ID-sorted, so a single pass suffices.
func recordsEqual(a, b []session.Record) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !recordEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func recordEqual(a, b session.Record) bool {
	if a.ID != b.ID || a.Source != b.Source ||
		a.WorkingDir != b.WorkingDir || a.FilePath != b.FilePath ||
		!a.CreatedAt.Equal(b.CreatedAt) || !a.UpdatedAt.Equal(b.UpdatedAt) ||
		a.Messages != b.Messages || a.ToolCalls != b.ToolCalls ||
		a.FileSize != b.FileSize || a.LineCount != b.LineCount ||
		!a.Mtime.Equal(b.Mtime) || a.Quality != b.Quality ||
		a.Overlay != b.Overlay || len(a.ActiveDays) != len(b.ActiveDays) {
		return false
	}
	for k, v := range a.ActiveDays {
		if b.ActiveDays[k] != v {
			return false
		}
	}
	return true
}
