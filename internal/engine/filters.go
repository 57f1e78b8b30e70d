package engine

import (
	"github.com/Zuo-Peng/ai-session-hub/internal/filter"
	"github.com/Zuo-Peng/ai-session-hub/internal/log"
	"github.com/Zuo-Peng/ai-session-hub/internal/pubsub"
	"github.com/Zuo-Peng/ai-session-hub/internal/session"
)

// scheduleFilter requests a recompute of the visible set. Any number
// of schedule calls while one computation runs coalesce into a single
// follow-up against the newest state.
func (e *Engine) scheduleFilter() {
	e.filterGen++
	if e.filterRunning {
		e.filterPending = true
		return
	}
	e.startFilter()
}

func (e *Engine) startFilter() {
	snap := e.buildSnapshot()
	e.filterRunning = true
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		res := filter.Compute(snap)
		e.post(func() { e.finishFilter(res) })
	}()
}

// buildSnapshot freezes every filter input. The computation sees this
// copy only; the owner's state can move on underneath it.
func (e *Engine) buildSnapshot() filter.Snapshot {
	sel := e.selection
	snap := filter.Snapshot{
		Generation:  e.filterGen,
		ListVersion: e.listVersion,
		Selection:   sel,
		Records:     append([]session.Record(nil), e.records...),
		ProjectOf:   make(map[string]string, len(e.records)),
		KindsOf:     make(map[string][]session.Kind),
	}
	for _, r := range snap.Records {
		snap.ProjectOf[r.ID] = e.registry.ProjectFor(r)
	}
	for _, p := range e.registry.All() {
		if len(p.Kinds) > 0 {
			snap.KindsOf[p.ID] = append([]session.Kind(nil), p.Kinds...)
		}
	}
	if sel.ProjectID != "" {
		snap.InSelection = make(map[string]bool)
		for _, pid := range e.registry.Descendants(sel.ProjectID) {
			snap.InSelection[pid] = true
		}
	}

	if !sel.Day.IsZero() && sel.Dimension == session.ByUpdated {
		key := e.currentCoverageKey()
		snap.CoverageMonth = key.MonthKey
		if cov, ok := e.cov.Lookup(key); ok {
			snap.Coverage = cov
		} else {
			// kick off the scan now; its completion reschedules us
			e.cov.Request(key, e.selectionMonth(), e.records, false)
		}
	}
	return snap
}

// finishFilter lands a computed result on the owner. Stale results
// (the generation moved on) are discarded; identical results (digest
// match) skip the publish.
func (e *Engine) finishFilter(res filter.Result) {
	e.filterRunning = false
	if e.filterPending {
		e.filterPending = false
		e.startFilter()
	}
	if res.Generation != e.filterGen {
		log.Debug(log.CatFilter, "stale filter result discarded",
			"gen", res.Generation, "current", e.filterGen)
		return
	}

	if len(res.NewlyResolved) > 0 {
		// day activity proven by the fallback path feeds the coverage
		// cache so the next recompute answers without rescanning
		e.cov.MergeResolved(e.currentCoverageKey(), res.NewlyResolved)
	}

	if e.publishedSet && res.Digest == e.published.Digest {
		return
	}
	e.published = res
	e.publishedSet = true

	visibleOf := make(map[string]int)
	for _, r := range res.Visible {
		visibleOf[e.registry.ProjectFor(r)]++
	}
	e.projCounts.SetVisible(visibleOf)

	agg := e.buildAggregates()
	e.readMu.Lock()
	e.readSections = res.Sections
	e.readAggregates = agg
	e.readMu.Unlock()

	log.Debug(log.CatFilter, "sections published",
		"visible", len(res.Visible), "sections", len(res.Sections))
	e.broker.Publish(pubsub.SectionsPublished, Update{Sections: res.Sections, Aggregates: agg})
}
