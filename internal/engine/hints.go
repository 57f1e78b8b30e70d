package engine

import (
	"time"

	"github.com/Zuo-Peng/ai-session-hub/internal/log"
	"github.com/Zuo-Peng/ai-session-hub/internal/session"
)

// HintKind narrows what a directory-change notification means, letting
// the engine answer it with a targeted query instead of a full scan.
type HintKind int

const (
	// HintUpdatedToday limits reconciliation to sessions touched today.
	HintUpdatedToday HintKind = iota + 1
	// HintProjectDir limits reconciliation to sessions under one
	// working directory.
	HintProjectDir
)

type hintState struct {
	kind    HintKind
	dir     string
	expires time.Time
}

// SetHint arms an incremental-refresh hint. Zero ttl uses the tuned
// default; the hint lapses on expiry and full refreshes resume.
func (e *Engine) SetHint(kind HintKind, dir string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = e.tuning.HintTTL
	}
	expires := time.Now().Add(ttl)
	e.post(func() {
		e.hint = &hintState{kind: kind, dir: dir, expires: expires}
	})
}

// ClearHint drops the active hint.
func (e *Engine) ClearHint() {
	e.post(func() { e.hint = nil })
}

// NotifyDirChanged is the watcher's entry point. With a live hint the
// change is answered by a targeted provider query merged as a subset;
// without one it falls back to a debounced full refresh.
func (e *Engine) NotifyDirChanged(dir string) {
	e.post(func() {
		h := e.hint
		if h == nil || time.Now().After(h.expires) {
			e.hint = nil
			e.trigger(session.AllScope(), false)
			return
		}
		e.runHintQuery(*h)
	})
}

func (e *Engine) runHintQuery(h hintState) {
	day := session.DayStart(time.Now())
	provs := e.availableProviders()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		var subset []session.Record
		for _, p := range provs {
			tp, ok := p.(session.TargetedProvider)
			if !ok {
				continue
			}
			var recs []session.Record
			var err error
			switch h.kind {
			case HintProjectDir:
				recs, err = tp.UnderDir(e.ctx, h.dir)
			default:
				recs, err = tp.UpdatedOn(e.ctx, day)
			}
			if err != nil {
				log.ErrorErr(log.CatEngine, "hint query failed", err, "provider", p.Name())
				continue
			}
			subset = append(subset, recs...)
		}
		e.post(func() { e.mergeSubset(subset) })
	}()
}
