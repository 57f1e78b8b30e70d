package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Zuo-Peng/ai-session-hub/internal/session"
)

func mkRec(id, dir string, created, updated time.Time) session.Record {
	return session.Record{
		ID:         id,
		Source:     session.SourceRef{Kind: session.KindClaude, Locality: session.Local},
		WorkingDir: dir,
		CreatedAt:  created,
		UpdatedAt:  updated,
	}
}

func day(d int) time.Time {
	return time.Date(2024, 3, d, 12, 0, 0, 0, time.UTC)
}

func snapOf(recs []session.Record, sel Selection) Snapshot {
	projectOf := make(map[string]string)
	for _, r := range recs {
		projectOf[r.ID] = ""
	}
	return Snapshot{Selection: sel, Records: recs, ProjectOf: projectOf}
}

func TestPathPrefixFilter(t *testing.T) {
	recs := []session.Record{
		mkRec("a", "/home/u/work/api", day(1), day(2)),
		mkRec("b", "/home/u/play", day(1), day(2)),
		mkRec("c", "/home/u/workbench", day(1), day(2)),
	}
	res := Compute(snapOf(recs, Selection{PathPrefix: "/home/u/work"}))

	require.Len(t, res.Visible, 1)
	require.Equal(t, "a", res.Visible[0].ID)
}

func TestProjectMembershipWithDescendantsAndAllowList(t *testing.T) {
	recs := []session.Record{
		mkRec("a", "/w/api", day(1), day(2)),
		mkRec("b", "/w", day(1), day(2)),
		mkRec("c", "/other", day(1), day(2)),
		mkRec("d", "/w/api", day(1), day(2)),
	}
	recs[3].Source.Kind = session.KindCodex

	snap := snapOf(recs, Selection{ProjectID: "work"})
	snap.ProjectOf = map[string]string{"a": "api", "b": "work", "c": "", "d": "api"}
	snap.InSelection = map[string]bool{"work": true, "api": true}
	snap.KindsOf = map[string][]session.Kind{"api": {session.KindClaude}}

	res := Compute(snap)
	require.Len(t, res.Visible, 2)
	require.Equal(t, "a", res.Visible[0].ID)
	require.Equal(t, "b", res.Visible[1].ID)
}

func TestUnassignedBucket(t *testing.T) {
	recs := []session.Record{
		mkRec("a", "/w", day(1), day(2)),
		mkRec("b", "/loose", day(1), day(2)),
	}
	snap := snapOf(recs, Selection{Unassigned: true})
	snap.ProjectOf = map[string]string{"a": "work", "b": ""}

	res := Compute(snap)
	require.Len(t, res.Visible, 1)
	require.Equal(t, "b", res.Visible[0].ID)
}

func TestCreatedDayFilterExactMatch(t *testing.T) {
	recs := []session.Record{
		mkRec("a", "/w", day(5), day(9)),
		mkRec("b", "/w", day(6), day(9)),
	}
	sel := Selection{Day: day(5), Dimension: session.ByCreated}
	res := Compute(snapOf(recs, sel))

	require.Len(t, res.Visible, 1)
	require.Equal(t, "a", res.Visible[0].ID)
}

func TestUpdatedDayFilterPrefersCoverage(t *testing.T) {
	// S2 was active on 3, 5 and 9 but lastUpdatedAt falls on the 9th;
	// a day filter for the 5th must still include it
	recs := []session.Record{mkRec("s2", "/w", day(3), day(9))}
	sel := Selection{Day: day(5), Dimension: session.ByUpdated}
	snap := snapOf(recs, sel)
	snap.CoverageMonth = "2024-03"
	snap.Coverage = map[string]session.DaySet{
		"s2": session.DaySet(0).With(3).With(5).With(9),
	}

	res := Compute(snap)
	require.Len(t, res.Visible, 1)
	require.Equal(t, "s2", res.Visible[0].ID)
	require.Empty(t, res.NewlyResolved)

	// and a coverage entry excludes days it does not contain
	sel.Day = day(6)
	snap.Selection = sel
	res = Compute(snap)
	require.Empty(t, res.Visible)
}

func TestUpdatedDayFilterFallsBackToSameDay(t *testing.T) {
	recs := []session.Record{mkRec("s3", "/w", day(3), day(9))}
	sel := Selection{Day: day(9), Dimension: session.ByUpdated}
	snap := snapOf(recs, sel) // no coverage at all

	res := Compute(snap)
	require.Len(t, res.Visible, 1)
	require.True(t, res.NewlyResolved["s3"].Has(9))
}

func TestQuickSearchOverTitleAndComment(t *testing.T) {
	recs := []session.Record{
		mkRec("a", "/w", day(1), day(2)),
		mkRec("b", "/w", day(1), day(2)),
	}
	recs[0].Overlay = session.Overlay{Title: "Refactor Parser"}
	recs[1].Overlay = session.Overlay{Comment: "parser cleanup notes"}

	res := Compute(snapOf(recs, Selection{Query: "parser"}))
	require.Len(t, res.Visible, 2)

	res = Compute(snapOf(recs, Selection{Query: "cleanup"}))
	require.Len(t, res.Visible, 1)
	require.Equal(t, "b", res.Visible[0].ID)
}

func TestRecencySortIsDimensionAware(t *testing.T) {
	recs := []session.Record{
		mkRec("a", "/w", day(1), day(9)),
		mkRec("b", "/w", day(2), day(8)),
	}

	res := Compute(snapOf(recs, Selection{Dimension: session.ByCreated}))
	require.Equal(t, "b", res.Visible[0].ID)

	res = Compute(snapOf(recs, Selection{Dimension: session.ByUpdated}))
	require.Equal(t, "a", res.Visible[0].ID)
}

func TestSortOrders(t *testing.T) {
	recs := []session.Record{
		mkRec("a", "/w/alpha", day(1), day(2)),
		mkRec("b", "/w/beta", day(1), day(5)),
	}
	recs[0].Messages = 10
	recs[0].FileSize = 100
	recs[1].Messages = 2
	recs[1].FileSize = 900

	res := Compute(snapOf(recs, Selection{Sort: SortActivity}))
	require.Equal(t, "a", res.Visible[0].ID)

	res = Compute(snapOf(recs, Selection{Sort: SortSize}))
	require.Equal(t, "b", res.Visible[0].ID)

	res = Compute(snapOf(recs, Selection{Sort: SortDuration}))
	require.Equal(t, "b", res.Visible[0].ID)

	res = Compute(snapOf(recs, Selection{Sort: SortName}))
	require.Equal(t, "a", res.Visible[0].ID)
}

func TestSectionsGroupByDayWithTotals(t *testing.T) {
	recs := []session.Record{
		mkRec("a", "/w", day(5).Add(-2*time.Hour), day(5)),
		mkRec("b", "/w", day(5).Add(-time.Hour), day(5).Add(time.Hour)),
		mkRec("c", "/w", day(3), day(3).Add(30*time.Minute)),
	}
	recs[0].Messages = 4
	recs[1].Messages = 6
	recs[2].ToolCalls = 2

	res := Compute(snapOf(recs, Selection{Dimension: session.ByUpdated}))
	require.Len(t, res.Sections, 2)

	first := res.Sections[0]
	require.Equal(t, "2024-03-05", first.DayKey)
	require.Len(t, first.Sessions, 2)
	require.Equal(t, 10, first.Events)
	require.Equal(t, 4*time.Hour, first.Duration)

	second := res.Sections[1]
	require.Equal(t, "2024-03-03", second.DayKey)
	require.Equal(t, 2, second.Events)
}

func TestDigestStableForIdenticalResults(t *testing.T) {
	recs := []session.Record{
		mkRec("a", "/w", day(1), day(2)),
		mkRec("b", "/w", day(1), day(3)),
	}
	r1 := Compute(snapOf(recs, Selection{}))
	r2 := Compute(snapOf(recs, Selection{}))
	require.Equal(t, r1.Digest, r2.Digest)

	recs[0].Overlay.Title = "renamed"
	r3 := Compute(snapOf(recs, Selection{}))
	require.NotEqual(t, r1.Digest, r3.Digest)
}

func TestDigestTracksDurationInputs(t *testing.T) {
	recs := []session.Record{mkRec("a", "/w", day(1), day(2))}
	r1 := Compute(snapOf(recs, Selection{}))

	// the session turns out to have started earlier the same day: the
	// section shape is unchanged but its duration total is not, so the
	// recompute must publish
	recs[0].CreatedAt = day(1).Add(-time.Hour)
	r2 := Compute(snapOf(recs, Selection{}))
	require.NotEqual(t, r1.Digest, r2.Digest)
}
