// Package engine is the session index owner: a single goroutine holds
// the primary session store, the project registry and every derived
// cache, while provider loads, filter computations and coverage scans
// run as workers that report back through the command channel.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/Zuo-Peng/ai-session-hub/internal/aggregate"
	"github.com/Zuo-Peng/ai-session-hub/internal/coverage"
	"github.com/Zuo-Peng/ai-session-hub/internal/filter"
	"github.com/Zuo-Peng/ai-session-hub/internal/log"
	"github.com/Zuo-Peng/ai-session-hub/internal/project"
	"github.com/Zuo-Peng/ai-session-hub/internal/pubsub"
	"github.com/Zuo-Peng/ai-session-hub/internal/recordcache"
	"github.com/Zuo-Peng/ai-session-hub/internal/session"
)

// Tuning carries the engine's timing knobs; tests shrink them.
type Tuning struct {
	ForcedDebounce   time.Duration // user-initiated refresh, must feel instant
	AutoDebounce     time.Duration // watcher-initiated refresh
	Cooldown         time.Duration // absorbs duplicate fs events after a completed refresh
	ProviderCooldown time.Duration // backoff after a provider failure
	HintTTL          time.Duration // default lifetime of an incremental hint
}

func DefaultTuning() Tuning {
	return Tuning{
		ForcedDebounce:   10 * time.Millisecond,
		AutoDebounce:     300 * time.Millisecond,
		Cooldown:         200 * time.Millisecond,
		ProviderCooldown: 5 * time.Second,
		HintTTL:          30 * time.Second,
	}
}

// Aggregates is the published view of the derived caches.
type Aggregates struct {
	Projects       map[string]aggregate.Counts
	DirCounts      map[string]int // session totals for each project directory
	Histogram      aggregate.Histogram
	HistogramMonth string
}

// Update is the payload of every published event.
type Update struct {
	Sections   []filter.Section
	Aggregates Aggregates
	Scope      string
	Err        error
}

type Engine struct {
	tuning    Tuning
	providers []session.Provider
	store     *recordcache.Cache
	registry  *project.Registry
	cov       *coverage.Cache
	broker    *pubsub.Broker[Update]

	cmds   chan func()
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// owner-goroutine state; nothing below is touched off-thread
	records     []session.Record
	overlays    map[string]session.Overlay
	listVersion uint64

	selection     filter.Selection
	filterGen     uint64
	filterRunning bool
	filterPending bool
	published     filter.Result
	publishedSet  bool

	scopes     map[string]*scopeState
	refreshGen uint64
	fullGen    uint64
	provFail   map[string]time.Time

	hint *hintState

	tree       *aggregate.PathTree
	projCounts *aggregate.ProjectCounts
	histograms *aggregate.HistogramCache

	// read-side copies, written only by the owner goroutine
	readMu         sync.RWMutex
	readSections   []filter.Section
	readAggregates Aggregates
}

func New(providers []session.Provider, store *recordcache.Cache, registry *project.Registry, tuning Tuning) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		tuning:     tuning,
		providers:  providers,
		store:      store,
		registry:   registry,
		broker:     pubsub.NewBroker[Update](),
		cmds:       make(chan func(), 256),
		ctx:        ctx,
		cancel:     cancel,
		overlays:   make(map[string]session.Overlay),
		scopes:     make(map[string]*scopeState),
		provFail:   make(map[string]time.Time),
		tree:       aggregate.NewPathTree(),
		projCounts: aggregate.NewProjectCounts(),
		histograms: aggregate.NewHistogramCache(),
	}

	var scanners []session.CoverageScanner
	for _, p := range providers {
		if s, ok := p.(session.CoverageScanner); ok {
			scanners = append(scanners, s)
		}
	}
	e.cov = coverage.New(scanners, func(key coverage.Key, res coverage.Result) {
		// coverage changes arrive from a scan goroutine; hop onto the
		// owner before touching anything
		e.post(func() { e.coverageChanged(key, res) })
	})
	return e
}

// Start loads persisted overlays and begins the owner loop.
func (e *Engine) Start() error {
	overlays, err := e.store.Overlays()
	if err != nil {
		log.ErrorErr(log.CatEngine, "overlay load failed, continuing without", err)
		overlays = make(map[string]session.Overlay)
	}
	e.overlays = overlays

	e.wg.Add(1)
	go e.run()
	return nil
}

func (e *Engine) Stop() {
	e.cancel()
	e.cov.Close()
	e.broker.Close()
	e.wg.Wait()
}

func (e *Engine) run() {
	defer e.wg.Done()
	for {
		select {
		case fn := <-e.cmds:
			fn()
		case <-e.ctx.Done():
			e.stopTimers()
			return
		}
	}
}

// post hands a closure to the owner goroutine.
func (e *Engine) post(fn func()) {
	select {
	case e.cmds <- fn:
	case <-e.ctx.Done():
	}
}

func (e *Engine) stopTimers() {
	for _, st := range e.scopes {
		if st.timer != nil {
			st.timer.Stop()
		}
	}
}

// Subscribe delivers published updates until ctx ends.
func (e *Engine) Subscribe(ctx context.Context) <-chan pubsub.Event[Update] {
	return e.broker.Subscribe(ctx)
}

// VisibleSections returns the last published grouped result.
func (e *Engine) VisibleSections() []filter.Section {
	e.readMu.RLock()
	defer e.readMu.RUnlock()
	return e.readSections
}

// CurrentAggregates returns the last published derived counts.
func (e *Engine) CurrentAggregates() Aggregates {
	e.readMu.RLock()
	defer e.readMu.RUnlock()
	return e.readAggregates
}

// RequestFilterChange replaces the selection and schedules a
// recompute. Non-blocking; the result arrives via publish.
func (e *Engine) RequestFilterChange(sel filter.Selection) {
	e.post(func() {
		e.selection = sel
		e.requestCoverageForSelection(false)
		e.scheduleFilter()
	})
}

// RequestForceRefresh triggers a user-initiated refresh of a scope.
func (e *Engine) RequestForceRefresh(scope session.Scope) {
	e.post(func() { e.trigger(scope, true) })
}

// RequestRefresh triggers an auto refresh (watcher path).
func (e *Engine) RequestRefresh(scope session.Scope) {
	e.post(func() { e.trigger(scope, false) })
}

// SetOverlay updates a session's user-editable fields. They survive
// every subsequent merge and are persisted outside provider data.
func (e *Engine) SetOverlay(id string, o session.Overlay) {
	e.post(func() {
		if o.Empty() {
			delete(e.overlays, id)
		} else {
			e.overlays[id] = o
		}
		for i := range e.records {
			if e.records[i].ID == id {
				e.records[i].Overlay = o
				break
			}
		}
		if err := e.store.SetOverlay(id, o); err != nil {
			log.ErrorErr(log.CatEngine, "overlay persist failed", err, "id", id)
		}
		e.scheduleFilter()
	})
}

// AssignProject pins a session to a project.
func (e *Engine) AssignProject(sessionID, projectID string) {
	e.post(func() {
		e.registry.Assign(sessionID, projectID)
		e.refreshAggregates()
		e.scheduleFilter()
	})
}

// ReparentProject moves a project in the tree; delta-maintained
// aggregates rebuild via the structure version bump.
func (e *Engine) ReparentProject(id, newParent string) error {
	errc := make(chan error, 1)
	e.post(func() {
		err := e.registry.Reparent(id, newParent)
		if err == nil {
			e.refreshAggregates()
			e.scheduleFilter()
		}
		errc <- err
	})
	select {
	case err := <-errc:
		return err
	case <-e.ctx.Done():
		return e.ctx.Err()
	}
}

// coverageChanged runs on the owner when a background scan produced a
// genuinely different result for a key.
func (e *Engine) coverageChanged(key coverage.Key, _ coverage.Result) {
	log.Debug(log.CatCoverage, "coverage updated", "key", key.String())
	// histogram entries were computed without this coverage; their
	// composite keys still match, so drop them outright
	e.histograms.Flush()
	if key == e.currentCoverageKey() {
		e.scheduleFilter()
	}
	e.publishAggregates()
}

// currentCoverageKey is the coverage key the active selection reads.
func (e *Engine) currentCoverageKey() coverage.Key {
	return coverage.Key{
		Dimension:  session.ByUpdated,
		MonthKey:   session.MonthKey(e.selectionMonth()),
		ProjectDir: e.selection.PathPrefix,
	}
}

func (e *Engine) selectionMonth() time.Time {
	if !e.selection.Day.IsZero() {
		return session.MonthStart(e.selection.Day)
	}
	return session.MonthStart(time.Now())
}

// requestCoverageForSelection asks the coverage cache to materialize
// the month the selection needs, when the updated dimension is active.
func (e *Engine) requestCoverageForSelection(force bool) {
	if e.selection.Dimension != session.ByUpdated {
		return
	}
	key := e.currentCoverageKey()
	e.cov.Request(key, e.selectionMonth(), e.records, force)
}
