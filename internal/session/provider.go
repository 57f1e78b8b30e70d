package session

import (
	"context"
	"time"
)

// CachePolicy tells a provider how much work a load may do.
type CachePolicy int

const (
	// CacheOnly returns whatever is already materialized; no file
	// content is read beyond the local record cache.
	CacheOnly CachePolicy = iota
	// Refresh pays the cost of re-reading changed files.
	Refresh
)

func (p CachePolicy) String() string {
	if p == Refresh {
		return "refresh"
	}
	return "cacheOnly"
}

// LoadContext is the immutable request handed to every provider.
// Providers must treat it as read-only.
type LoadContext struct {
	Scope      Scope
	Roots      []string
	From, To   time.Time // zero = unbounded
	ProjectDir string    // restrict to sessions under this directory, "" = all
	Policy     CachePolicy
}

// CoverageSnapshot maps monthKey -> sessionID -> active days.
type CoverageSnapshot map[string]map[string]DaySet

// LoadResult is what one provider returns for one load call.
type LoadResult struct {
	Summaries []Record
	Coverage  CoverageSnapshot
	CacheHit  bool
}

// Provider enumerates and parses sessions for one agent kind and one
// locality. Load must be safe to call concurrently for different
// contexts and must honor CacheOnly with no file-content I/O.
type Provider interface {
	Name() string
	Source() SourceRef
	Load(ctx context.Context, lc LoadContext) (LoadResult, error)
}

// TargetedProvider answers the narrow queries used by incremental
// refresh hints, cheaper than a full scoped load.
type TargetedProvider interface {
	Provider
	UpdatedOn(ctx context.Context, day time.Time) ([]Record, error)
	UnderDir(ctx context.Context, dir string) ([]Record, error)
}

// CoverageScanner is the content-scan capability backing the coverage
// cache: which days of a month show activity for each session.
type CoverageScanner interface {
	Scan(ctx context.Context, monthStart time.Time, ids []string) (map[string]DaySet, error)
	InvalidateCoverage(monthKey, projectDir string) error
}
