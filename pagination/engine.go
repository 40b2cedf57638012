package pagination

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-redirects/core"
)

type State int

const (
	StateEmpty State = iota
	StateLoaded
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateExhausted:
		return "exhausted"
	default:
		return "empty"
	}
}

type Outcome string

const (
	// OutcomeLoaded is a completed initial fetch that returned items.
	OutcomeLoaded Outcome = "loaded"
	// OutcomeAppended is a page that extended the window.
	OutcomeAppended Outcome = "appended"
	// OutcomeExhausted is a fetch that returned no items.
	OutcomeExhausted Outcome = "exhausted"
	// OutcomeDiscarded is a response that arrived after the window moved on.
	OutcomeDiscarded Outcome = "discarded"
	// OutcomeSkipped means no request was made.
	OutcomeSkipped Outcome = "skipped"
)

type LoadResult struct {
	Outcome Outcome
	Added   int
	Window  *core.Window
	State   State
}

// Snapshot is what subscribers observe after every window transition.
type Snapshot struct {
	Window *core.Window
	State  State
}

type Option func(*Engine)

func WithPageSize(size int) Option {
	return func(e *Engine) {
		if size > 0 {
			e.pageSize = size
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(e *Engine) {
		e.telemetry.Logger = logger
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(e *Engine) {
		e.telemetry.Metrics = recorder
	}
}

// Engine maintains the forward only window over the remote record set.
// Every transition publishes a new *core.Window; published windows are never
// modified. A response is applied only if the reset epoch and cursor it was
// requested under are still current.
type Engine struct {
	resolver  core.APIResolver
	sessions  core.SessionReader
	pageSize  int
	telemetry core.Telemetry

	mu        sync.Mutex
	window    *core.Window
	epoch     uint64
	loading   bool
	nextSub   uint64
	observers map[uint64]func(Snapshot)
}

func NewEngine(resolver core.APIResolver, sessions core.SessionReader, opts ...Option) *Engine {
	engine := &Engine{
		resolver:  resolver,
		sessions:  sessions,
		pageSize:  core.DefaultPageSize,
		observers: map[uint64]func(Snapshot){},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(engine)
		}
	}
	engine.telemetry = core.NewTelemetry(engine.telemetry.Logger, engine.telemetry.Metrics)
	return engine
}

// InitialFetch discards the current window and loads the first page.
// Running it again after a successful load reloads rather than merges.
func (e *Engine) InitialFetch(ctx context.Context) (result LoadResult, err error) {
	startedAt := time.Now()
	defer func() {
		e.observe(ctx, startedAt, "initial_fetch", result, err)
	}()

	sess, ok := e.session()
	if !ok {
		return e.result(OutcomeSkipped, 0), core.NewNotAuthenticatedError("initial_fetch")
	}

	e.mu.Lock()
	e.epoch++
	epoch := e.epoch
	e.window = nil
	e.loading = true
	e.mu.Unlock()
	e.publish()

	page, err := e.fetch(ctx, sess.Credential, "")
	e.mu.Lock()
	if epoch != e.epoch {
		// the data is stale but a failure still belongs to the caller
		e.mu.Unlock()
		return e.result(OutcomeDiscarded, 0), err
	}
	e.loading = false
	if err != nil {
		e.mu.Unlock()
		return e.result(OutcomeSkipped, 0), err
	}
	items := appendUnique(nil, page.Data)
	next := &core.Window{
		Items:     items,
		Cursor:    page.Last,
		Exhausted: len(items) == 0 || page.Last == "",
	}
	e.window = next
	e.mu.Unlock()
	e.publish()

	if next.Exhausted && len(items) == 0 {
		return e.result(OutcomeExhausted, 0), nil
	}
	return e.result(OutcomeLoaded, len(items)), nil
}

// LoadMore fetches the page after the current cursor. It is a no op unless
// the engine is Loaded and idle.
func (e *Engine) LoadMore(ctx context.Context) (result LoadResult, err error) {
	startedAt := time.Now()
	defer func() {
		e.observe(ctx, startedAt, "load_more", result, err)
	}()

	sess, ok := e.session()
	if !ok {
		return e.result(OutcomeSkipped, 0), core.NewNotAuthenticatedError("load_more")
	}

	e.mu.Lock()
	if e.window == nil || e.window.Exhausted || e.loading {
		e.mu.Unlock()
		return e.result(OutcomeSkipped, 0), nil
	}
	epoch := e.epoch
	cursor := e.window.Cursor
	e.loading = true
	e.mu.Unlock()

	page, err := e.fetch(ctx, sess.Credential, cursor)

	e.mu.Lock()
	if epoch != e.epoch {
		// the data is stale but a failure still belongs to the caller
		e.mu.Unlock()
		return e.result(OutcomeDiscarded, 0), err
	}
	e.loading = false
	current := e.window
	if current == nil || current.Cursor != cursor {
		e.mu.Unlock()
		return e.result(OutcomeDiscarded, 0), nil
	}
	if err != nil {
		e.mu.Unlock()
		return e.result(OutcomeSkipped, 0), err
	}
	if len(page.Data) == 0 {
		e.window = &core.Window{Items: current.Items, Cursor: current.Cursor, Exhausted: true}
		e.mu.Unlock()
		e.publish()
		return e.result(OutcomeExhausted, 0), nil
	}
	items := appendUnique(current.Items, page.Data)
	added := len(items) - len(current.Items)
	e.window = &core.Window{
		Items:     items,
		Cursor:    page.Last,
		Exhausted: page.Last == "",
	}
	e.mu.Unlock()
	e.publish()
	return e.result(OutcomeAppended, added), nil
}

// Reset discards the window and returns to Empty. In flight responses are
// discarded on arrival.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.epoch++
	changed := e.window != nil || e.loading
	e.window = nil
	e.loading = false
	e.mu.Unlock()
	if changed {
		e.publish()
	}
}

func (e *Engine) Window() (*core.Window, State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.window, stateOf(e.window)
}

func (e *Engine) State() State {
	_, state := e.Window()
	return state
}

// Loading reports whether a fetch for the current epoch is outstanding.
func (e *Engine) Loading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loading
}

// Append adds a confirmed record at the end of the window. It reports false
// when there is no window; a record already present is left in place.
func (e *Engine) Append(record core.Redirect) bool {
	return e.transform(func(current *core.Window) ([]core.Redirect, bool) {
		if current.Contains(record.ID) {
			return nil, false
		}
		items := make([]core.Redirect, 0, len(current.Items)+1)
		items = append(items, current.Items...)
		return append(items, record), true
	})
}

// Replace swaps the record with the same id in place. It reports false when
// no such record is in the window.
func (e *Engine) Replace(record core.Redirect) bool {
	return e.transform(func(current *core.Window) ([]core.Redirect, bool) {
		index := current.IndexOf(record.ID)
		if index < 0 {
			return nil, false
		}
		items := current.Snapshot()
		items[index] = record
		return items, true
	})
}

// Remove filters the record with id out of the window.
func (e *Engine) Remove(id string) bool {
	return e.transform(func(current *core.Window) ([]core.Redirect, bool) {
		if !current.Contains(id) {
			return nil, false
		}
		items := make([]core.Redirect, 0, len(current.Items)-1)
		for _, item := range current.Items {
			if item.ID != id {
				items = append(items, item)
			}
		}
		return items, true
	})
}

// Subscribe registers fn for window transitions.
func (e *Engine) Subscribe(fn func(Snapshot)) func() {
	if fn == nil {
		return func() {}
	}
	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.observers[id] = fn
	e.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.observers, id)
			e.mu.Unlock()
		})
	}
}

func (e *Engine) transform(fn func(current *core.Window) ([]core.Redirect, bool)) bool {
	e.mu.Lock()
	current := e.window
	if current == nil {
		e.mu.Unlock()
		return false
	}
	items, changed := fn(current)
	if !changed {
		e.mu.Unlock()
		return false
	}
	e.window = &core.Window{Items: items, Cursor: current.Cursor, Exhausted: current.Exhausted}
	e.mu.Unlock()
	e.publish()
	return true
}

func (e *Engine) fetch(ctx context.Context, cred core.Credential, after string) (core.RedirectPage, error) {
	if e.resolver == nil {
		return core.RedirectPage{}, core.NewInternalError("pagination: api resolver is not configured")
	}
	api, err := e.resolver.Resolve(ctx)
	if err != nil {
		return core.RedirectPage{}, err
	}
	return api.ListRedirects(ctx, cred, core.ListParams{After: after, Limit: e.pageSize})
}

func (e *Engine) session() (core.Session, bool) {
	if e.sessions == nil {
		return core.Session{}, false
	}
	return e.sessions.Current()
}

func (e *Engine) result(outcome Outcome, added int) LoadResult {
	window, state := e.Window()
	return LoadResult{Outcome: outcome, Added: added, Window: window, State: state}
}

func (e *Engine) publish() {
	e.mu.Lock()
	snapshot := Snapshot{Window: e.window, State: stateOf(e.window)}
	observers := make([]func(Snapshot), 0, len(e.observers))
	for _, observer := range e.observers {
		observers = append(observers, observer)
	}
	e.mu.Unlock()
	for _, observer := range observers {
		observer(snapshot)
	}
}

func (e *Engine) observe(ctx context.Context, startedAt time.Time, operation string, result LoadResult, err error) {
	e.telemetry.Observe(ctx, core.MetricPageFetches, startedAt, operation, err, map[string]any{
		"result": string(result.Outcome),
		"added":  result.Added,
		"state":  result.State.String(),
	})
}

func stateOf(window *core.Window) State {
	switch {
	case window == nil:
		return StateEmpty
	case window.Exhausted:
		return StateExhausted
	default:
		return StateLoaded
	}
}

// appendUnique returns a new slice of base followed by the records of page
// whose id is not already present.
func appendUnique(base []core.Redirect, page []core.Redirect) []core.Redirect {
	seen := make(map[string]struct{}, len(base)+len(page))
	out := make([]core.Redirect, 0, len(base)+len(page))
	for _, item := range base {
		seen[item.ID] = struct{}{}
		out = append(out, item)
	}
	for _, item := range page {
		if _, ok := seen[item.ID]; ok {
			continue
		}
		seen[item.ID] = struct{}{}
		out = append(out, item)
	}
	return out
}
