package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Zuo-Peng/ai-session-hub/internal/session"
)

func rec(id, dir string) session.Record {
	return session.Record{ID: id, WorkingDir: dir}
}

func TestPathTreeCountsAncestors(t *testing.T) {
	tree := NewPathTree()
	tree.Rebuild([]session.Record{
		rec("a", "/home/u/work/api"),
		rec("b", "/home/u/work"),
		rec("c", "/home/u/play"),
	})

	require.Equal(t, 3, tree.Count("/home/u"))
	require.Equal(t, 2, tree.Count("/home/u/work"))
	require.Equal(t, 1, tree.Count("/home/u/work/api"))
	require.Equal(t, 1, tree.Count("/home/u/play"))
	require.Equal(t, 0, tree.Count("/elsewhere"))
}

func TestPathTreeApplyMatchesRebuild(t *testing.T) {
	initial := []session.Record{
		rec("a", "/home/u/work/api"),
		rec("b", "/home/u/work"),
	}
	next := []session.Record{
		rec("a", "/home/u/play"), // moved
		rec("c", "/home/u/work"), // b removed, c added
	}

	incremental := NewPathTree()
	incremental.Rebuild(initial)
	incremental.Apply(next)

	fresh := NewPathTree()
	fresh.Rebuild(next)

	for _, dir := range []string{"/home/u", "/home/u/work", "/home/u/work/api", "/home/u/play"} {
		require.Equal(t, fresh.Count(dir), incremental.Count(dir), dir)
	}
}

func TestProjectCountsDelta(t *testing.T) {
	pc := NewProjectCounts()
	pc.Update(map[string]string{"a": "work", "b": "work", "c": ""}, 1)

	require.Equal(t, 2, pc.Get("work").Total)
	require.Equal(t, 1, pc.Get("").Total)

	// same structure: delta path
	pc.Update(map[string]string{"a": "work", "c": "play", "d": "work"}, 1)
	require.Equal(t, 2, pc.Get("work").Total)
	require.Equal(t, 1, pc.Get("play").Total)
	require.Equal(t, 0, pc.Get("").Total)
}

func TestProjectCountsRebuildOnStructureChange(t *testing.T) {
	pc := NewProjectCounts()
	pc.Update(map[string]string{"a": "work"}, 1)
	pc.SetVisible(map[string]int{"work": 1})

	// reparenting bumped the structure version; membership moved
	pc.Update(map[string]string{"a": "api"}, 2)
	require.Equal(t, 1, pc.Get("api").Total)
	require.Equal(t, 0, pc.Get("work").Total)
}

func TestSetVisibleOverwrites(t *testing.T) {
	pc := NewProjectCounts()
	pc.Update(map[string]string{"a": "work", "b": "work"}, 1)

	pc.SetVisible(map[string]int{"work": 1})
	require.Equal(t, Counts{Visible: 1, Total: 2}, pc.Get("work"))

	pc.SetVisible(map[string]int{})
	require.Equal(t, Counts{Visible: 0, Total: 2}, pc.Get("work"))
}

func TestMonthHistogramCreatedDimension(t *testing.T) {
	march := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	recs := []session.Record{
		{ID: "a", CreatedAt: time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)},
		{ID: "b", CreatedAt: time.Date(2024, 3, 5, 11, 0, 0, 0, time.UTC)},
		{ID: "c", CreatedAt: time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC)},
	}

	hist := MonthHistogram(march, recs, session.ByCreated, nil, "")
	require.Equal(t, 2, hist[5])
	require.Equal(t, 0, hist[28])
}

func TestMonthHistogramUpdatedUsesCoverage(t *testing.T) {
	march := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	recs := []session.Record{
		{ID: "a", UpdatedAt: time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)},
		{ID: "b", UpdatedAt: time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC)},
	}
	cov := map[string]session.DaySet{
		"a": session.DaySet(0).With(3).With(9),
	}

	hist := MonthHistogram(march, recs, session.ByUpdated, cov, "")
	require.Equal(t, 1, hist[3])
	require.Equal(t, 1, hist[9])
	require.Equal(t, 1, hist[7]) // b fell back to lastUpdatedAt
}

func TestHistogramCacheKeyedByCompositeInputs(t *testing.T) {
	hc := NewHistogramCache()
	calls := 0
	compute := func() Histogram {
		calls++
		var h Histogram
		h[1] = calls
		return h
	}

	key := HistogramKey{Dimension: session.ByUpdated, MonthKey: "2024-03", ListVersion: 1, StructureVersion: 1}
	first := hc.Get(key, compute)
	again := hc.Get(key, compute)
	require.Equal(t, first, again)
	require.Equal(t, 1, calls)

	// any input changing misses the cache
	key.ListVersion = 2
	hc.Get(key, compute)
	require.Equal(t, 2, calls)
}
