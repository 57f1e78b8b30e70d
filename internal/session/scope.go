package session

import "time"

// Dimension selects which timestamp a calendar query is asked about.
type Dimension int

const (
	ByCreated Dimension = iota
	ByUpdated
)

func (d Dimension) String() string {
	if d == ByUpdated {
		return "updated"
	}
	return "created"
}

// ScopeKind is the granularity of a refresh.
type ScopeKind int

const (
	ScopeAll ScopeKind = iota
	ScopeDay
	ScopeMonth
)

// Scope is the subset of the world a refresh targets.
type Scope struct {
	Kind ScopeKind
	Date time.Time // day or month anchor; ignored for ScopeAll
}

func AllScope() Scope { return Scope{Kind: ScopeAll} }

func DayScope(t time.Time) Scope { return Scope{Kind: ScopeDay, Date: t} }

func MonthScope(t time.Time) Scope { return Scope{Kind: ScopeMonth, Date: t} }

// Key is the stable string the scheduler coalesces triggers under.
func (s Scope) Key() string {
	switch s.Kind {
	case ScopeDay:
		return "day:" + DayKey(s.Date)
	case ScopeMonth:
		return "month:" + MonthKey(s.Date)
	default:
		return "all"
	}
}

// Range returns the [from, to) interval the scope covers.
// ok is false for ScopeAll, which is unbounded.
func (s Scope) Range() (from, to time.Time, ok bool) {
	switch s.Kind {
	case ScopeDay:
		from = DayStart(s.Date)
		return from, from.AddDate(0, 0, 1), true
	case ScopeMonth:
		from = MonthStart(s.Date)
		return from, from.AddDate(0, 1, 0), true
	default:
		return time.Time{}, time.Time{}, false
	}
}

// MonthKey formats t's month as "2006-01".
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// DayKey formats t's day as "2006-01-02".
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// DayStart truncates t to midnight in its own location.
func DayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// MonthStart truncates t to the first of its month.
func MonthStart(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

// SameDay reports whether a and b fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
