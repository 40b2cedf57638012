package redirects

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gocmd "github.com/goliatone/go-command"
	redirectscommand "github.com/goliatone/go-redirects/command"
	"github.com/goliatone/go-redirects/core"
	"github.com/goliatone/go-redirects/pagination"
	redirectsquery "github.com/goliatone/go-redirects/query"
	"github.com/goliatone/go-redirects/recovery"
	"github.com/goliatone/go-redirects/session"
)

// fakeBackend is an in-memory redirect service speaking the remote wire
// format.
type fakeBackend struct {
	mu      sync.Mutex
	token   string
	records []core.Redirect
	nextID  int
	revoked atomic.Bool
}

func newFakeBackend(count int) *fakeBackend {
	backend := &fakeBackend{token: "Bearer tok"}
	for i := 1; i <= count; i++ {
		backend.nextID++
		backend.records = append(backend.records, core.Redirect{
			ID:     "r" + strconv.Itoa(backend.nextID),
			Key:    "k" + strconv.Itoa(backend.nextID),
			Target: "https://example.com/" + strconv.Itoa(backend.nextID),
		})
	}
	return backend
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/auth/callback" && r.Method == http.MethodPost {
		writeJSON(w, http.StatusOK, map[string]string{"token_type": "Bearer", "access_token": "tok"})
		return
	}
	if b.revoked.Load() || r.Header.Get("Authorization") != b.token {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case r.URL.Path == "/me":
		writeJSON(w, http.StatusOK, map[string]string{"email": "ada@example.com"})
	case r.URL.Path == "/urls" && r.Method == http.MethodGet:
		b.list(w, r)
	case r.URL.Path == "/urls" && r.Method == http.MethodPost:
		var body core.Redirect
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, record := range b.records {
			if record.Key == body.Key {
				w.WriteHeader(http.StatusConflict)
				return
			}
		}
		b.nextID++
		body.ID = "r" + strconv.Itoa(b.nextID)
		b.records = append(b.records, body)
		writeJSON(w, http.StatusOK, body)
	case strings.HasPrefix(r.URL.Path, "/urls/") && r.Method == http.MethodPatch:
		id := strings.TrimPrefix(r.URL.Path, "/urls/")
		var body core.Redirect
		_ = json.NewDecoder(r.Body).Decode(&body)
		for i := range b.records {
			if b.records[i].ID == id {
				b.records[i].Key, b.records[i].Target = body.Key, body.Target
			}
		}
		w.WriteHeader(http.StatusNoContent)
	case strings.HasPrefix(r.URL.Path, "/urls/") && r.Method == http.MethodDelete:
		id := strings.TrimPrefix(r.URL.Path, "/urls/")
		kept := b.records[:0]
		for _, record := range b.records {
			if record.ID != id {
				kept = append(kept, record)
			}
		}
		b.records = kept
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (b *fakeBackend) list(w http.ResponseWriter, r *http.Request) {
	after := r.URL.Query().Get("after")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = len(b.records)
	}
	start := 0
	if after != "" {
		for i, record := range b.records {
			if record.ID == after {
				start = i + 1
			}
		}
	}
	end := min(start+limit, len(b.records))
	page := append([]core.Redirect{}, b.records[start:end]...)
	last := ""
	if len(page) > 0 {
		last = page[len(page)-1].ID
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": page, "last": last})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type recordingShell struct {
	mu        sync.Mutex
	notices   []recovery.Notice
	redirects int
}

func (r *recordingShell) SessionExpired(_ context.Context, notice recovery.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, notice)
}

func (r *recordingShell) Countdown(context.Context, time.Duration) {}

func (r *recordingShell) RedirectHome(context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.redirects++
}

func newTestService(t *testing.T, backend *fakeBackend, opts ...Option) (*Facade, *Service, *session.MemoryPersister) {
	t.Helper()
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	cfg := DefaultConfig()
	cfg.APIURL = server.URL
	cfg.RedirectBaseURL = "https://go.example"
	cfg.PageSize = 2
	cfg.Recovery.RedirectAfter = "2ms"
	cfg.SSO.ClientID = "client-1"
	cfg.SSO.RedirectURI = "http://localhost:8085/sso/callback"

	persister := session.NewMemoryPersister()
	base := []Option{
		WithHTTPClient(server.Client()),
		WithCredentialPersister(persister),
		WithCountdownTick(time.Millisecond),
	}
	facade, service, err := New(cfg, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(func() { _ = service.Close() })
	return facade, service, persister
}

func TestNewFacade_WiresCommandsAndQueries(t *testing.T) {
	facade, _, _ := newTestService(t, newFakeBackend(0))
	commands := facade.Commands()
	if commands.CompleteLogin == nil || commands.LoadMore == nil || commands.DeleteRedirect == nil {
		t.Fatalf("expected command handlers to be wired")
	}
	queries := facade.Queries()
	if queries.CurrentSession == nil || queries.Window == nil || queries.LoginURL == nil {
		t.Fatalf("expected query handlers to be wired")
	}
	if _, err := NewFacade(nil); err == nil {
		t.Fatalf("expected error for nil service")
	}
}

func TestFacade_LoginPaginateAndMutate(t *testing.T) {
	ctx := context.Background()
	facade, service, persister := newTestService(t, newFakeBackend(3))

	loginResult := gocmd.NewResult[core.Session]()
	if err := facade.Commands().CompleteLogin.Execute(
		gocmd.ContextWithResult(ctx, loginResult),
		redirectscommand.CompleteLoginMessage{Code: "abc"},
	); err != nil {
		t.Fatalf("complete login: %v", err)
	}
	sess, ok := loginResult.Load()
	if !ok || sess.Identity.Email != "ada@example.com" || sess.Credential.Token != "Bearer tok" {
		t.Fatalf("unexpected session %#v", sess)
	}
	if stored, ok, _ := persister.Load(ctx, "token"); !ok || stored.Token != "Bearer tok" {
		t.Fatalf("expected credential persisted, got %q", stored.Token)
	}

	snapshot, err := facade.Queries().Window.Query(ctx, redirectsquery.WindowMessage{})
	if err != nil {
		t.Fatalf("query window: %v", err)
	}
	if snapshot.Window.Len() != 2 || snapshot.State != pagination.StateLoaded {
		t.Fatalf("expected first page of 2 after login, got %d %s", snapshot.Window.Len(), snapshot.State)
	}

	if err := facade.Commands().LoadMore.Execute(ctx, redirectscommand.LoadMoreMessage{}); err != nil {
		t.Fatalf("load more: %v", err)
	}
	if err := facade.Commands().LoadMore.Execute(ctx, redirectscommand.LoadMoreMessage{}); err != nil {
		t.Fatalf("load more past the end: %v", err)
	}
	window, state := service.Window()
	if window.Len() != 3 || state != pagination.StateExhausted {
		t.Fatalf("expected 3 records exhausted, got %d %s", window.Len(), state)
	}

	created := gocmd.NewResult[core.Redirect]()
	if err := facade.Commands().CreateRedirect.Execute(
		gocmd.ContextWithResult(ctx, created),
		redirectscommand.CreateRedirectMessage{Key: "new", Target: "https://new.example"},
	); err != nil {
		t.Fatalf("create: %v", err)
	}
	record, _ := created.Load()
	window, _ = service.Window()
	if window.Items[len(window.Items)-1].ID != record.ID {
		t.Fatalf("expected created record appended, got %#v", window.Items)
	}
	if got := service.ShortURL(record); got != "https://go.example/new" {
		t.Fatalf("unexpected short url %q", got)
	}

	err = facade.Commands().CreateRedirect.Execute(ctx, redirectscommand.CreateRedirectMessage{Key: "new", Target: "https://dup"})
	if !core.IsAlreadyExists(err) {
		t.Fatalf("expected already exists, got %v", err)
	}

	if err := facade.Commands().UpdateRedirect.Execute(ctx, redirectscommand.UpdateRedirectMessage{
		ID: "r1", Key: "k1b", Target: "https://example.com/1b",
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := facade.Queries().GetRedirect.Query(ctx, redirectsquery.GetRedirectMessage{ID: "r1"})
	if err != nil || got.Key != "k1b" {
		t.Fatalf("expected updated record in place, got %#v %v", got, err)
	}

	if err := facade.Commands().DeleteRedirect.Execute(ctx, redirectscommand.DeleteRedirectMessage{ID: "r2"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	window, _ = service.Window()
	if window.Contains("r2") || window.Len() != 3 {
		t.Fatalf("expected r2 removed, got %#v", window.Items)
	}

	if err := facade.Commands().Logout.Execute(ctx, redirectscommand.LogoutMessage{}); err != nil {
		t.Fatalf("logout: %v", err)
	}
	view, _ := facade.Queries().CurrentSession.Query(ctx, redirectsquery.CurrentSessionMessage{})
	if view.Present {
		t.Fatalf("expected no session after logout")
	}
	if _, state := service.Window(); state != pagination.StateEmpty {
		t.Fatalf("expected window discarded on logout, got %s", state)
	}
	if _, ok, _ := persister.Load(ctx, "token"); ok {
		t.Fatalf("expected persisted credential removed on logout")
	}
}

func TestService_StartRestoresPersistedSession(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend(1)
	_, service, persister := newTestService(t, backend)
	_ = persister.Save(ctx, "token", core.Credential{Token: "Bearer tok"})

	sess, ok, err := service.Start(ctx)
	if err != nil || !ok || sess.Identity.Email != "ada@example.com" {
		t.Fatalf("unexpected start result %#v ok=%v err=%v", sess, ok, err)
	}
	if window, state := service.Window(); window.Len() != 1 || state != pagination.StateLoaded {
		t.Fatalf("expected single record window, got %d %s", window.Len(), state)
	}
}

func TestService_StartWithRejectedCredentialIsSignedOut(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend(1)
	backend.revoked.Store(true)
	_, service, persister := newTestService(t, backend)
	_ = persister.Save(ctx, "token", core.Credential{Token: "Bearer tok"})

	_, ok, err := service.Start(ctx)
	if err != nil || ok {
		t.Fatalf("expected silent sign out, got ok=%v err=%v", ok, err)
	}
	if _, ok, _ := persister.Load(ctx, "token"); ok {
		t.Fatalf("expected rejected credential removed")
	}
}

func TestService_AuthorizationFailureClearsSessionAndRedirects(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend(3)
	shell := &recordingShell{}
	_, service, persister := newTestService(t, backend, WithShell(shell))

	if _, err := service.CompleteLogin(ctx, "abc"); err != nil {
		t.Fatalf("login: %v", err)
	}
	backend.revoked.Store(true)

	_, err := service.LoadMore(ctx)
	if !core.IsAuthorization(err) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	if _, ok := service.Current(); ok {
		t.Fatalf("expected session cleared by the 401")
	}
	if _, ok, _ := persister.Load(ctx, "token"); ok {
		t.Fatalf("expected persisted credential cleared by the 401")
	}
	if _, state := service.Window(); state != pagination.StateEmpty {
		t.Fatalf("expected window reset, got %s", state)
	}

	if err := service.Handle(ctx, err); err != nil {
		t.Fatalf("expected boundary to absorb authorization error, got %v", err)
	}
	shell.mu.Lock()
	defer shell.mu.Unlock()
	if len(shell.notices) != 1 || shell.notices[0] != recovery.SessionExpiredNotice || shell.redirects != 1 {
		t.Fatalf("expected expiry notice and redirect, got %+v redirects=%d", shell.notices, shell.redirects)
	}
}

func TestService_LoginURL(t *testing.T) {
	facade, _, _ := newTestService(t, newFakeBackend(0))
	url, err := facade.Queries().LoginURL.Query(context.Background(), redirectsquery.LoginURLMessage{})
	if err != nil {
		t.Fatalf("login url: %v", err)
	}
	if !strings.HasPrefix(url, core.DefaultLoginURL+"?") || !strings.Contains(url, "client_id=client-1") {
		t.Fatalf("unexpected login url %q", url)
	}
}

func TestNewService_RejectsSQLBackendWithoutPersister(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIURL = "https://api.example"
	cfg.Session.Backend = core.SessionBackendSQL
	cfg.Persistence.DSN = "file::memory:"
	if _, err := NewService(cfg); err == nil {
		t.Fatalf("expected sql backend without a persister to fail")
	}
}

func TestNewService_FileBackendSealsCredential(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIURL = "https://api.example"
	cfg.Session.Backend = core.SessionBackendFile
	cfg.Session.Path = t.TempDir() + "/session.json"
	cfg.Session.EncryptionKey = "k"
	service, err := NewService(cfg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	defer service.Close()
	file, ok := service.persister.(*session.FilePersister)
	if !ok || file.Path() != cfg.Session.Path {
		t.Fatalf("expected file persister at %s, got %T", cfg.Session.Path, service.persister)
	}
}
