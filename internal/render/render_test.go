package render

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Zuo-Peng/ai-session-hub/internal/aggregate"
	"github.com/Zuo-Peng/ai-session-hub/internal/filter"
	"github.com/Zuo-Peng/ai-session-hub/internal/session"
)

func TestSectionsShowHeaderTotalsAndTitles(t *testing.T) {
	day := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	sections := []filter.Section{{
		DayKey: "2024-03-09",
		Day:    day,
		Sessions: []session.Record{{
			ID:         "claude:a",
			Source:     session.SourceRef{Kind: session.KindClaude, Locality: session.Local},
			WorkingDir: "/home/u/work/api",
			UpdatedAt:  day.Add(14 * time.Hour),
			Messages:   4,
			ToolCalls:  2,
			Overlay:    session.Overlay{Title: "payment retries"},
		}},
		Duration: 90 * time.Minute,
		Events:   6,
	}}

	out := Sections(sections, 0)
	require.Contains(t, out, "2024-03-09")
	require.Contains(t, out, "1 sessions")
	require.Contains(t, out, "1h30m")
	require.Contains(t, out, "payment retries")
	require.Contains(t, out, "4m 2t")
}

func TestSectionsEmpty(t *testing.T) {
	require.Contains(t, Sections(nil, 0), "no sessions")
}

func TestSessionLineFallsBackToDirBase(t *testing.T) {
	r := session.Record{
		ID:         "claude:a",
		Source:     session.SourceRef{Kind: session.KindClaude, Locality: session.Local},
		WorkingDir: "/home/u/work/api",
	}
	require.Contains(t, sessionLine(r, 0), "api")
}

func TestCalendarLeadingGapAndAllDays(t *testing.T) {
	// March 2024 begins on a Friday: four leading blanks under Mo-Th
	march := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	var hist aggregate.Histogram
	hist[9] = 3

	out := Calendar(march, hist)
	lines := strings.Split(out, "\n")
	require.Contains(t, lines[0], "March 2024")
	require.True(t, strings.HasPrefix(lines[2], strings.Repeat("   ", 4)),
		"first week row must be padded to Friday")
	require.Contains(t, out, "31")
}

func TestProjectsTableNamesAndCounts(t *testing.T) {
	out := Projects(
		map[string]aggregate.Counts{
			"work": {Visible: 2, Total: 5},
			"":     {Visible: 1, Total: 1},
		},
		map[string]string{"work": "Work"},
	)
	require.Contains(t, out, "Work")
	require.Contains(t, out, "2/5")
	require.Contains(t, out, "(unassigned)")
	require.Contains(t, out, "1/1")
}

func TestFmtDuration(t *testing.T) {
	require.Equal(t, "45m", fmtDuration(45*time.Minute))
	require.Equal(t, "2h05m", fmtDuration(2*time.Hour+5*time.Minute))
}
