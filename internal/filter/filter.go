// Package filter computes the visible, sorted, grouped session set
// from an immutable snapshot of all filter inputs. Compute is pure:
// one snapshot, one deterministic result.
package filter

import (
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Zuo-Peng/ai-session-hub/internal/project"
	"github.com/Zuo-Peng/ai-session-hub/internal/session"
)

type SortOrder int

const (
	SortRecency SortOrder = iota
	SortDuration
	SortActivity
	SortName
	SortSize
)

// Selection is the user's current filter state.
type Selection struct {
	PathPrefix string
	ProjectID  string // "" = no project filter
	Unassigned bool   // select the unassigned bucket instead of a project
	Day        time.Time
	Dimension  session.Dimension
	Query      string
	Sort       SortOrder
}

// Snapshot captures every input the computation needs. It is never
// mutated after construction; the maps and slices are owned by the
// snapshot and must not be written by anyone else.
type Snapshot struct {
	Generation  uint64
	ListVersion uint64
	Selection   Selection

	Records []session.Record

	// ProjectOf resolves each session to its project ("" = unassigned),
	// computed against the registry at snapshot time.
	ProjectOf map[string]string
	// InSelection holds the selected project and its descendants; nil
	// means no project filter.
	InSelection map[string]bool
	// KindsOf carries each project's source-kind allow-list (absent or
	// empty = all kinds allowed).
	KindsOf map[string][]session.Kind

	// Coverage is the day-activity map for the selected day's month
	// under the updated dimension, read-only.
	CoverageMonth string
	Coverage      map[string]session.DaySet
}

// Section is one display day with aggregated totals.
type Section struct {
	DayKey   string
	Day      time.Time
	Sessions []session.Record
	Duration time.Duration
	Events   int
}

type Result struct {
	Generation uint64
	Visible    []session.Record
	Sections   []Section
	// NewlyResolved holds day activity discovered via the same-day
	// fallback for sessions the coverage cache had no entry for; the
	// owner can fold these back into the cache.
	NewlyResolved map[string]session.DaySet
	Digest        uint64
}

// Compute runs the filter pipeline. Each stage narrows the candidates.
func Compute(snap Snapshot) Result {
	res := Result{Generation: snap.Generation}
	sel := snap.Selection

	prefix := project.CanonicalDir(sel.PathPrefix)
	query := strings.ToLower(strings.TrimSpace(sel.Query))
	dayFiltered := !sel.Day.IsZero()
	dayMonth := ""
	if dayFiltered {
		dayMonth = session.MonthKey(sel.Day)
	}

	visible := make([]session.Record, 0, len(snap.Records))
	for _, r := range snap.Records {
		// 1. path prefix
		if prefix != "" && !project.UnderDir(project.CanonicalDir(r.WorkingDir), prefix) {
			continue
		}

		// 2. project membership + per-project source allow-list
		pid := snap.ProjectOf[r.ID]
		if !kindAllowed(snap.KindsOf, pid, r.Source.Kind) {
			continue
		}
		if snap.InSelection != nil {
			if !snap.InSelection[pid] {
				continue
			}
		} else if sel.Unassigned && pid != project.Unassigned {
			continue
		}

		// 3. calendar day
		if dayFiltered && !matchesDay(snap, &res, r, sel, dayMonth) {
			continue
		}

		// 4. quick-search over title/comment
		if query != "" && !matchesQuery(r, query) {
			continue
		}

		visible = append(visible, r)
	}

	// 5. sort
	sortRecords(visible, sel.Sort, sel.Dimension)
	res.Visible = visible

	// 6. group into day sections
	res.Sections = groupSections(visible, sel.Dimension)
	res.Digest = digest(res.Sections)
	return res
}

func kindAllowed(kindsOf map[string][]session.Kind, pid string, kind session.Kind) bool {
	kinds := kindsOf[pid]
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// matchesDay applies the calendar-day filter. Under the updated
// dimension a coverage entry wins over the single lastUpdatedAt
// timestamp: a session is "active" on every day its log shows work.
func matchesDay(snap Snapshot, res *Result, r session.Record, sel Selection, dayMonth string) bool {
	if sel.Dimension == session.ByCreated {
		return session.SameDay(r.CreatedAt, sel.Day)
	}

	if snap.CoverageMonth == dayMonth {
		if days, ok := snap.Coverage[r.ID]; ok {
			return days.Has(sel.Day.Day())
		}
	}
	if session.SameDay(r.UpdatedAt, sel.Day) {
		if res.NewlyResolved == nil {
			res.NewlyResolved = make(map[string]session.DaySet)
		}
		res.NewlyResolved[r.ID] = res.NewlyResolved[r.ID].With(sel.Day.Day())
		return true
	}
	return false
}

func matchesQuery(r session.Record, query string) bool {
	return strings.Contains(strings.ToLower(r.Overlay.Title), query) ||
		strings.Contains(strings.ToLower(r.Overlay.Comment), query)
}

func displayTime(r session.Record, dim session.Dimension) time.Time {
	if dim == session.ByCreated {
		return r.CreatedAt
	}
	if r.UpdatedAt.IsZero() {
		return r.CreatedAt
	}
	return r.UpdatedAt
}

func displayName(r session.Record) string {
	if r.Overlay.Title != "" {
		return r.Overlay.Title
	}
	if r.WorkingDir != "" {
		parts := strings.Split(r.WorkingDir, "/")
		return parts[len(parts)-1]
	}
	return r.ID
}

func duration(r session.Record) time.Duration {
	if r.CreatedAt.IsZero() || r.UpdatedAt.IsZero() || r.UpdatedAt.Before(r.CreatedAt) {
		return 0
	}
	return r.UpdatedAt.Sub(r.CreatedAt)
}

// sortRecords orders the visible set. Recency is dimension-aware:
// it sorts by creation or last-update depending on the active calendar
// dimension. Ties break on ID so output is deterministic.
func sortRecords(recs []session.Record, order SortOrder, dim session.Dimension) {
	less := func(a, b session.Record) bool {
		switch order {
		case SortDuration:
			da, db := duration(a), duration(b)
			if da != db {
				return da > db
			}
		case SortActivity:
			if a.Counters() != b.Counters() {
				return a.Counters() > b.Counters()
			}
		case SortName:
			na, nb := strings.ToLower(displayName(a)), strings.ToLower(displayName(b))
			if na != nb {
				return na < nb
			}
		case SortSize:
			if a.FileSize != b.FileSize {
				return a.FileSize > b.FileSize
			}
		default:
			ta, tb := displayTime(a, dim), displayTime(b, dim)
			if !ta.Equal(tb) {
				return ta.After(tb)
			}
		}
		return a.ID < b.ID
	}
	sort.SliceStable(recs, func(i, j int) bool { return less(recs[i], recs[j]) })
}

// groupSections buckets the sorted records into display days, newest
// day first, carrying per-day duration and event totals.
func groupSections(recs []session.Record, dim session.Dimension) []Section {
	byDay := make(map[string]*Section)
	var order []string
	for _, r := range recs {
		t := displayTime(r, dim)
		key := "unknown"
		if !t.IsZero() {
			key = session.DayKey(t)
		}
		sec, ok := byDay[key]
		if !ok {
			sec = &Section{DayKey: key, Day: session.DayStart(t)}
			byDay[key] = sec
			order = append(order, key)
		}
		sec.Sessions = append(sec.Sessions, r)
		sec.Duration += duration(r)
		sec.Events += r.Counters()
	}

	sort.Sort(sort.Reverse(sort.StringSlice(order)))
	out := make([]Section, 0, len(order))
	for _, key := range order {
		out = append(out, *byDay[key])
	}
	return out
}

// digest fingerprints the grouped result so an identical recompute can
// skip publishing.
func digest(sections []Section) uint64 {
	h := fnv.New64a()
	for _, sec := range sections {
		h.Write([]byte(sec.DayKey))
		h.Write([]byte{0})
		for _, r := range sec.Sessions {
			h.Write([]byte(r.ID))
			h.Write([]byte{1})
			h.Write([]byte(strconv.FormatInt(r.UpdatedAt.UnixNano(), 36)))
			h.Write([]byte(strconv.FormatInt(r.CreatedAt.UnixNano(), 36)))
			h.Write([]byte(strconv.Itoa(r.Counters())))
			h.Write([]byte(r.Overlay.Title))
			h.Write([]byte{2})
			h.Write([]byte(r.Overlay.Comment))
			h.Write([]byte{3})
		}
	}
	return h.Sum64()
}
