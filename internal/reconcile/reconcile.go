// Package reconcile deduplicates session records reported by multiple
// providers for the same logical session.
package reconcile

import (
	"sort"

	"github.com/Zuo-Peng/ai-session-hub/internal/session"
)

// Merge combines records from both lists, keeping exactly one record
// per session ID. It is pure, deterministic, and independent of input
// order: Merge(a, b) == Merge(b, a). Overlay fields are not merged
// here; callers re-apply them via CarryOverlays before committing.
func Merge(existing, incoming []session.Record) []session.Record {
	byID := make(map[string]session.Record, len(existing)+len(incoming))
	fold := func(recs []session.Record) {
		for _, r := range recs {
			if r.ID == "" {
				continue
			}
			cur, ok := byID[r.ID]
			if !ok {
				byID[r.ID] = r
				continue
			}
			byID[r.ID] = prefer(cur, r)
		}
	}
	fold(existing)
	fold(incoming)

	merged := make([]session.Record, 0, len(byID))
	for _, r := range byID {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ID < merged[j].ID })
	return merged
}

// prefer picks the surviving record of a duplicate pair. The
// comparison is lexicographic over the fields below, so the pick is a
// total order and the fold in Merge cannot depend on input order:
//
//  1. newest file state wins outright (newer mtime, then larger file):
//     a parse of newer bytes supersedes any parse of older ones,
//     whatever its quality
//  2. same file state: higher parse quality, then larger message+tool
//     counters, then larger line count (richer parse of the same bytes)
//  3. more recent lastUpdatedAt, then createdAt
//  4. remaining fields compared deterministically
func prefer(a, b session.Record) session.Record {
	// zero Mtime sorts as oldest
	if !a.Mtime.Equal(b.Mtime) {
		if a.Mtime.After(b.Mtime) {
			return a
		}
		return b
	}
	if a.FileSize != b.FileSize {
		if a.FileSize > b.FileSize {
			return a
		}
		return b
	}

	// identical file state from here on
	if a.Quality != b.Quality {
		if a.Quality > b.Quality {
			return a
		}
		return b
	}
	if a.Counters() != b.Counters() {
		if a.Counters() > b.Counters() {
			return a
		}
		return b
	}
	if a.LineCount != b.LineCount {
		if a.LineCount > b.LineCount {
			return a
		}
		return b
	}
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		if a.UpdatedAt.After(b.UpdatedAt) {
			return a
		}
		return b
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		if a.CreatedAt.After(b.CreatedAt) {
			return a
		}
		return b
	}

	// remaining fields cannot matter semantically, but the pick must
	// still discriminate every non-identical pair
	if a.Messages != b.Messages {
		if a.Messages > b.Messages {
			return a
		}
		return b
	}
	if a.ID != b.ID {
		if a.ID < b.ID {
			return a
		}
		return b
	}
	if a.FilePath != b.FilePath {
		if a.FilePath < b.FilePath {
			return a
		}
		return b
	}
	if a.WorkingDir != b.WorkingDir {
		if a.WorkingDir < b.WorkingDir {
			return a
		}
		return b
	}
	if sa, sb := a.Source.String(), b.Source.String(); sa != sb {
		if sa < sb {
			return a
		}
		return b
	}
	if a.Overlay != b.Overlay {
		if a.Overlay.Title+"\x00"+a.Overlay.Comment < b.Overlay.Title+"\x00"+b.Overlay.Comment {
			return a
		}
		return b
	}
	return a
}

// CarryOverlays re-applies user-set overlay fields from the previous
// generation of records onto the merge winners. Providers never carry
// overlays, so without this every refresh would wipe them.
func CarryOverlays(prev map[string]session.Overlay, merged []session.Record) []session.Record {
	if len(prev) == 0 {
		return merged
	}
	for i := range merged {
		if o, ok := prev[merged[i].ID]; ok && !o.Empty() {
			merged[i].Overlay = o
		}
	}
	return merged
}

// Overlays extracts the non-empty overlays of a record set, keyed by
// session ID, for a later CarryOverlays.
func Overlays(recs []session.Record) map[string]session.Overlay {
	m := make(map[string]session.Overlay)
	for _, r := range recs {
		if !r.Overlay.Empty() {
			m[r.ID] = r.Overlay
		}
	}
	return m
}
