package pagination

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-redirects/core"
)

type pageFunc func(ctx context.Context, params core.ListParams) (core.RedirectPage, error)

type fakePagesAPI struct {
	mu     sync.Mutex
	pages  pageFunc
	params []core.ListParams
}

func (f *fakePagesAPI) ExchangeToken(context.Context, string) (core.Credential, error) {
	return core.Credential{}, nil
}

func (f *fakePagesAPI) GetIdentity(context.Context, core.Credential) (core.Identity, error) {
	return core.Identity{}, nil
}

func (f *fakePagesAPI) ListRedirects(ctx context.Context, _ core.Credential, params core.ListParams) (core.RedirectPage, error) {
	f.mu.Lock()
	f.params = append(f.params, params)
	f.mu.Unlock()
	return f.pages(ctx, params)
}

func (f *fakePagesAPI) CreateRedirect(context.Context, core.Credential, string, string) (core.Redirect, error) {
	return core.Redirect{}, nil
}

func (f *fakePagesAPI) UpdateRedirect(context.Context, core.Credential, core.Redirect) error {
	return nil
}

func (f *fakePagesAPI) DeleteRedirect(context.Context, core.Credential, string) error {
	return nil
}

type staticResolver struct{ api core.API }

func (r staticResolver) Resolve(context.Context) (core.API, error) { return r.api, nil }

type fixedSession struct{ present bool }

func (s fixedSession) Current() (core.Session, bool) {
	if !s.present {
		return core.Session{}, false
	}
	return core.Session{Credential: core.Credential{Token: "Bearer t"}}, true
}

func newEngine(pages pageFunc, opts ...Option) (*Engine, *fakePagesAPI) {
	fake := &fakePagesAPI{pages: pages}
	return NewEngine(staticResolver{api: fake}, fixedSession{present: true}, opts...), fake
}

func rec(id string) core.Redirect {
	return core.Redirect{ID: id, Key: "k" + id, Target: "https://" + id}
}

func TestEngine_WorkedExampleExhaustsOnEmptyPage(t *testing.T) {
	engine, fake := newEngine(func(_ context.Context, params core.ListParams) (core.RedirectPage, error) {
		if params.After == "" {
			return core.RedirectPage{Data: []core.Redirect{{ID: "1", Key: "a", Target: "https://x"}}, Last: "c1"}, nil
		}
		return core.RedirectPage{Data: []core.Redirect{}, Last: "c1"}, nil
	})
	ctx := context.Background()

	first, err := engine.InitialFetch(ctx)
	if err != nil {
		t.Fatalf("initial fetch: %v", err)
	}
	if first.Outcome != OutcomeLoaded || first.State != StateLoaded {
		t.Fatalf("unexpected initial result %+v", first)
	}

	second, err := engine.LoadMore(ctx)
	if err != nil {
		t.Fatalf("load more: %v", err)
	}
	if second.Outcome != OutcomeExhausted || second.State != StateExhausted {
		t.Fatalf("expected exhausted, got %+v", second)
	}
	window, _ := engine.Window()
	if len(window.Items) != 1 || window.Items[0] != (core.Redirect{ID: "1", Key: "a", Target: "https://x"}) {
		t.Fatalf("expected items unchanged, got %+v", window.Items)
	}
	if fake.params[1].After != "c1" || fake.params[1].Limit != core.DefaultPageSize {
		t.Fatalf("expected after=c1 limit=50, got %+v", fake.params[1])
	}

	third, err := engine.LoadMore(ctx)
	if err != nil || third.Outcome != OutcomeSkipped {
		t.Fatalf("expected exhausted engine to skip, got %+v %v", third, err)
	}
	if len(fake.params) != 2 {
		t.Fatalf("expected no further requests, got %d", len(fake.params))
	}
}

func TestEngine_ItemsAreConcatenationOfPages(t *testing.T) {
	pages := map[string]core.RedirectPage{
		"":   {Data: []core.Redirect{rec("1"), rec("2")}, Last: "c2"},
		"c2": {Data: []core.Redirect{rec("3")}, Last: "c3"},
		"c3": {Data: []core.Redirect{rec("4"), rec("5")}, Last: "c5"},
		"c5": {Data: []core.Redirect{}, Last: "c5"},
	}
	engine, _ := newEngine(func(_ context.Context, params core.ListParams) (core.RedirectPage, error) {
		return pages[params.After], nil
	}, WithPageSize(2))
	ctx := context.Background()

	if _, err := engine.InitialFetch(ctx); err != nil {
		t.Fatalf("initial fetch: %v", err)
	}
	for engine.State() == StateLoaded {
		if _, err := engine.LoadMore(ctx); err != nil {
			t.Fatalf("load more: %v", err)
		}
	}
	window, state := engine.Window()
	if state != StateExhausted {
		t.Fatalf("expected exhausted, got %s", state)
	}
	ids := ""
	for _, item := range window.Items {
		ids += item.ID
	}
	if ids != "12345" {
		t.Fatalf("expected concatenated pages 12345, got %q", ids)
	}
}

func TestEngine_AppendSkipsRecordsAlreadyPresent(t *testing.T) {
	engine, _ := newEngine(func(_ context.Context, params core.ListParams) (core.RedirectPage, error) {
		if params.After == "" {
			return core.RedirectPage{Data: []core.Redirect{rec("1"), rec("2")}, Last: "c2"}, nil
		}
		return core.RedirectPage{Data: []core.Redirect{rec("2"), rec("3")}, Last: "c3"}, nil
	})
	ctx := context.Background()
	_, _ = engine.InitialFetch(ctx)
	result, err := engine.LoadMore(ctx)
	if err != nil {
		t.Fatalf("load more: %v", err)
	}
	if result.Outcome != OutcomeAppended || result.Added != 1 {
		t.Fatalf("expected one new record, got %+v", result)
	}
	if result.Window.Len() != 3 || result.Window.Cursor != "c3" {
		t.Fatalf("unexpected window %+v", result.Window)
	}
}

func TestEngine_StaleLoadMoreResponseIsDiscarded(t *testing.T) {
	gate := make(chan struct{})
	var calls int
	var mu sync.Mutex
	engine, _ := newEngine(func(_ context.Context, params core.ListParams) (core.RedirectPage, error) {
		mu.Lock()
		calls++
		call := calls
		mu.Unlock()
		switch {
		case params.After == "c1":
			<-gate
			return core.RedirectPage{Data: []core.Redirect{rec("stale")}, Last: "c9"}, nil
		case call == 1:
			return core.RedirectPage{Data: []core.Redirect{rec("1")}, Last: "c1"}, nil
		default:
			return core.RedirectPage{Data: []core.Redirect{rec("7"), rec("8")}, Last: "c8"}, nil
		}
	})
	ctx := context.Background()
	if _, err := engine.InitialFetch(ctx); err != nil {
		t.Fatalf("initial fetch: %v", err)
	}

	done := make(chan LoadResult, 1)
	go func() {
		result, err := engine.LoadMore(ctx)
		if err != nil {
			t.Errorf("load more: %v", err)
		}
		done <- result
	}()
	waitFor(t, engine.Loading)

	if _, err := engine.InitialFetch(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	before, _ := engine.Window()
	close(gate)
	result := <-done

	if result.Outcome != OutcomeDiscarded {
		t.Fatalf("expected stale response discarded, got %+v", result)
	}
	after, _ := engine.Window()
	if after != before {
		t.Fatalf("discarded response must not replace the window")
	}
	if after.Contains("stale") || after.Len() != 2 || after.Cursor != "c8" {
		t.Fatalf("unexpected window after discard %+v", after)
	}
}

func TestEngine_StaleEmptyResponseDoesNotExhaust(t *testing.T) {
	gate := make(chan struct{})
	engine, _ := newEngine(func(_ context.Context, params core.ListParams) (core.RedirectPage, error) {
		if params.After == "c1" {
			<-gate
			return core.RedirectPage{}, nil
		}
		return core.RedirectPage{Data: []core.Redirect{rec("1")}, Last: "c1"}, nil
	})
	ctx := context.Background()
	_, _ = engine.InitialFetch(ctx)

	done := make(chan LoadResult, 1)
	go func() {
		result, _ := engine.LoadMore(ctx)
		done <- result
	}()
	waitFor(t, engine.Loading)
	engine.Reset()
	close(gate)
	if result := <-done; result.Outcome != OutcomeDiscarded {
		t.Fatalf("expected discard, got %+v", result)
	}
	if engine.State() != StateEmpty {
		t.Fatalf("expected engine to stay empty after reset, got %s", engine.State())
	}
}

func TestEngine_LoadMoreWhileFetchingIsNoop(t *testing.T) {
	gate := make(chan struct{})
	engine, fake := newEngine(func(_ context.Context, params core.ListParams) (core.RedirectPage, error) {
		if params.After == "c1" {
			<-gate
			return core.RedirectPage{Data: []core.Redirect{rec("2")}, Last: "c2"}, nil
		}
		return core.RedirectPage{Data: []core.Redirect{rec("1")}, Last: "c1"}, nil
	})
	ctx := context.Background()
	_, _ = engine.InitialFetch(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = engine.LoadMore(ctx)
	}()
	waitFor(t, engine.Loading)
	result, err := engine.LoadMore(ctx)
	if err != nil || result.Outcome != OutcomeSkipped {
		t.Fatalf("expected concurrent load more to skip, got %+v %v", result, err)
	}
	close(gate)
	<-done
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.params) != 2 {
		t.Fatalf("expected two requests, got %d", len(fake.params))
	}
}

func TestEngine_InitialFetchIsResetAndReload(t *testing.T) {
	engine, _ := newEngine(func(_ context.Context, params core.ListParams) (core.RedirectPage, error) {
		return core.RedirectPage{Data: []core.Redirect{rec("1"), rec("2")}, Last: "c2"}, nil
	})
	ctx := context.Background()
	_, _ = engine.InitialFetch(ctx)
	_, _ = engine.InitialFetch(ctx)
	window, _ := engine.Window()
	if window.Len() != 2 {
		t.Fatalf("expected reload without duplicates, got %d items", window.Len())
	}
}

func TestEngine_InitialFetchEmptyIsExhausted(t *testing.T) {
	engine, _ := newEngine(func(context.Context, core.ListParams) (core.RedirectPage, error) {
		return core.RedirectPage{Data: []core.Redirect{}}, nil
	})
	result, err := engine.InitialFetch(context.Background())
	if err != nil {
		t.Fatalf("initial fetch: %v", err)
	}
	if result.Outcome != OutcomeExhausted || result.State != StateExhausted || result.Window == nil {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestEngine_ErrorsLeaveWindowUntouched(t *testing.T) {
	boom := errors.New("boom")
	engine, _ := newEngine(func(_ context.Context, params core.ListParams) (core.RedirectPage, error) {
		if params.After != "" {
			return core.RedirectPage{}, boom
		}
		return core.RedirectPage{Data: []core.Redirect{rec("1")}, Last: "c1"}, nil
	})
	ctx := context.Background()
	_, _ = engine.InitialFetch(ctx)
	before, _ := engine.Window()
	if _, err := engine.LoadMore(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	after, state := engine.Window()
	if after != before || state != StateLoaded || engine.Loading() {
		t.Fatalf("expected unchanged loaded window after failure")
	}
}

func TestEngine_RequiresSession(t *testing.T) {
	fake := &fakePagesAPI{pages: func(context.Context, core.ListParams) (core.RedirectPage, error) {
		return core.RedirectPage{}, nil
	}}
	engine := NewEngine(staticResolver{api: fake}, fixedSession{})
	if _, err := engine.InitialFetch(context.Background()); !core.IsAuthorization(err) {
		t.Fatalf("expected not authenticated error, got %v", err)
	}
	if len(fake.params) != 0 {
		t.Fatalf("expected no request without a session")
	}
}

func TestEngine_FoldsReplaceTheWindow(t *testing.T) {
	engine, _ := newEngine(func(context.Context, core.ListParams) (core.RedirectPage, error) {
		return core.RedirectPage{Data: []core.Redirect{rec("1"), rec("2"), rec("3")}, Last: "c3"}, nil
	})
	if engine.Append(rec("x")) {
		t.Fatalf("append without a window must fail")
	}
	_, _ = engine.InitialFetch(context.Background())

	var snapshots []Snapshot
	engine.Subscribe(func(s Snapshot) { snapshots = append(snapshots, s) })

	original, _ := engine.Window()
	if !engine.Replace(core.Redirect{ID: "2", Key: "new", Target: "https://new"}) {
		t.Fatalf("replace failed")
	}
	if original.Items[1].Key != "k2" {
		t.Fatalf("published window was modified in place")
	}
	if !engine.Remove("1") || engine.Remove("1") {
		t.Fatalf("unexpected remove results")
	}
	if !engine.Append(rec("4")) || engine.Append(rec("4")) {
		t.Fatalf("unexpected append results")
	}
	window, _ := engine.Window()
	got := fmt.Sprint(window.Items)
	want := fmt.Sprint([]core.Redirect{{ID: "2", Key: "new", Target: "https://new"}, rec("3"), rec("4")})
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if window.Cursor != "c3" {
		t.Fatalf("folds must keep the cursor, got %q", window.Cursor)
	}
	if len(snapshots) != 3 {
		t.Fatalf("expected three published transitions, got %d", len(snapshots))
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not reached")
		}
		time.Sleep(time.Millisecond)
	}
}
