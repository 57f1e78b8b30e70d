package engine

import (
	"sync"
	"time"

	"github.com/Zuo-Peng/ai-session-hub/internal/log"
	"github.com/Zuo-Peng/ai-session-hub/internal/pubsub"
	"github.com/Zuo-Peng/ai-session-hub/internal/session"
)

type scopePhase int

const (
	scopeIdle scopePhase = iota
	scopeDebouncing
	scopeExecuting
)

// scopeState tracks one refresh scope's scheduling lifecycle. All
// fields belong to the owner goroutine.
type scopeState struct {
	phase        scopePhase
	scope        session.Scope
	timer        *time.Timer
	pendingForce bool // force flag accumulated while debouncing
	rerun        bool // a forced trigger arrived mid-execution
	rerunForce   bool
	lastDone     time.Time
}

func (e *Engine) scopeState(scope session.Scope) *scopeState {
	k := scope.Key()
	st, ok := e.scopes[k]
	if !ok {
		st = &scopeState{scope: scope}
		e.scopes[k] = st
	}
	return st
}

// trigger requests a refresh of a scope. Triggers for the same scope
// coalesce: a debounce window absorbs bursts (force flags OR together
// and the shorter forced delay wins), an execution in flight absorbs
// non-forced repeats and queues one rerun for forced ones.
func (e *Engine) trigger(scope session.Scope, force bool) {
	st := e.scopeState(scope)
	switch st.phase {
	case scopeExecuting:
		if force {
			st.rerun = true
			st.rerunForce = true
		}
		// non-forced triggers during execution are satisfied by the
		// running refresh
	case scopeDebouncing:
		st.pendingForce = st.pendingForce || force
		st.timer.Stop()
		st.timer = e.debounceTimer(scope, st.pendingForce)
	default:
		if !force && !st.lastDone.IsZero() && time.Since(st.lastDone) < e.tuning.Cooldown {
			log.Debug(log.CatSched, "trigger absorbed by cooldown", "scope", scope.Key())
			return
		}
		st.phase = scopeDebouncing
		st.pendingForce = force
		st.timer = e.debounceTimer(scope, force)
	}
}

func (e *Engine) debounceTimer(scope session.Scope, force bool) *time.Timer {
	delay := e.tuning.AutoDebounce
	if force {
		delay = e.tuning.ForcedDebounce
	}
	return time.AfterFunc(delay, func() {
		e.post(func() { e.fireScope(scope) })
	})
}

func (e *Engine) fireScope(scope session.Scope) {
	st := e.scopeState(scope)
	if st.phase != scopeDebouncing {
		return
	}
	force := st.pendingForce
	st.pendingForce = false
	st.phase = scopeExecuting
	e.executeScope(st, force)
}

// executeScope runs one refresh: a cache-only pass is applied as soon
// as providers answer from their stores, then the refresh pass follows
// with re-parsed data. Both passes carry the generation captured here;
// a newer full refresh supersedes them.
func (e *Engine) executeScope(st *scopeState, force bool) {
	scope := st.scope
	gen := e.nextGen(scope)
	fullGen := e.fullGen
	lc := e.loadContext(scope)
	provs := e.availableProviders()

	log.Info(log.CatSched, "refresh begins", "scope", scope.Key(), "gen", gen, "force", force)
	e.broker.Publish(pubsub.RefreshStarted, Update{Scope: scope.Key()})

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		lc.Policy = session.CacheOnly
		cached := e.queryAll(provs, lc)
		e.post(func() { e.applyLoad(scope, gen, fullGen, cached, false) })
		if e.ctx.Err() != nil {
			return
		}

		lc.Policy = session.Refresh
		fresh := e.queryAll(provs, lc)
		e.post(func() {
			e.applyLoad(scope, gen, fullGen, fresh, true)
			e.finishScope(scope, gen, fresh)
		})
	}()
}

func (e *Engine) finishScope(scope session.Scope, gen uint64, results []provResult) {
	st := e.scopeState(scope)
	st.phase = scopeIdle
	st.lastDone = time.Now()

	var firstErr error
	for _, pr := range results {
		if pr.err != nil && firstErr == nil {
			firstErr = pr.err
		}
	}
	if firstErr != nil {
		e.broker.Publish(pubsub.RefreshFailed, Update{Scope: scope.Key(), Err: firstErr})
	} else {
		e.broker.Publish(pubsub.RefreshFinished, Update{Scope: scope.Key()})
	}
	log.Info(log.CatSched, "refresh finished", "scope", scope.Key(), "gen", gen)

	if st.rerun {
		force := st.rerunForce
		st.rerun = false
		st.rerunForce = false
		e.trigger(scope, force)
	}
}

// nextGen issues the generation token for a refresh. Full refreshes
// also advance the superseding watermark: any earlier refresh still in
// flight, scoped or full, discards its results when it lands.
func (e *Engine) nextGen(scope session.Scope) uint64 {
	e.refreshGen++
	if scope.Kind == session.ScopeAll {
		e.fullGen = e.refreshGen
	}
	return e.refreshGen
}

func (e *Engine) loadContext(scope session.Scope) session.LoadContext {
	lc := session.LoadContext{Scope: scope}
	if from, to, ok := scope.Range(); ok {
		lc.From, lc.To = from, to
	}
	return lc
}

// availableProviders filters out providers still cooling down after a
// failure.
func (e *Engine) availableProviders() []session.Provider {
	now := time.Now()
	out := make([]session.Provider, 0, len(e.providers))
	for _, p := range e.providers {
		if failedAt, ok := e.provFail[p.Name()]; ok {
			if now.Sub(failedAt) < e.tuning.ProviderCooldown {
				log.Debug(log.CatSched, "provider skipped, cooling down", "provider", p.Name())
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

type provResult struct {
	name string
	src  session.SourceRef
	res  session.LoadResult
	err  error
}

// queryAll asks every provider concurrently and waits for each
// independently; one slow or failing provider never hides the others.
func (e *Engine) queryAll(provs []session.Provider, lc session.LoadContext) []provResult {
	results := make([]provResult, len(provs))
	var wg sync.WaitGroup
	for i, p := range provs {
		wg.Add(1)
		go func(i int, p session.Provider) {
			defer wg.Done()
			res, err := p.Load(e.ctx, lc)
			results[i] = provResult{name: p.Name(), src: p.Source(), res: res, err: err}
		}(i, p)
	}
	wg.Wait()
	return results
}
