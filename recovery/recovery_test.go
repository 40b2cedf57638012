package recovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-redirects/core"
)

type stubRestorer struct {
	cred       core.Credential
	present    bool
	restoreErr error
	session    core.Session
	revalErr   error
	revalCalls int
}

func (s *stubRestorer) Restore(context.Context) (core.Credential, bool, error) {
	return s.cred, s.present, s.restoreErr
}

func (s *stubRestorer) Revalidate(_ context.Context, cred core.Credential) (core.Session, error) {
	s.revalCalls++
	if s.revalErr != nil {
		return core.Session{}, s.revalErr
	}
	sess := s.session
	sess.Credential = cred
	return sess, nil
}

type recordingShell struct {
	mu        sync.Mutex
	notices   []Notice
	countdown []time.Duration
	redirects int
}

func (r *recordingShell) SessionExpired(_ context.Context, notice Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, notice)
}

func (r *recordingShell) Countdown(_ context.Context, remaining time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.countdown = append(r.countdown, remaining)
}

func (r *recordingShell) RedirectHome(context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.redirects++
}

type recordingClearer struct {
	calls int
	last  *core.Session
}

func (r *recordingClearer) Set(_ context.Context, next *core.Session) error {
	r.calls++
	r.last = next
	return nil
}

func TestBootstrapper_RestoresAndRevalidates(t *testing.T) {
	sessions := &stubRestorer{
		cred:    core.Credential{Token: "Bearer a"},
		present: true,
		session: core.Session{Identity: core.Identity{Email: "ada@example.com"}},
	}
	sess, ok, err := NewBootstrapper(sessions).Run(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected restored session, got ok=%v err=%v", ok, err)
	}
	if sess.Identity.Email != "ada@example.com" || sess.Credential.Token != "Bearer a" {
		t.Fatalf("unexpected session %+v", sess)
	}
}

func TestBootstrapper_NoCredentialSkipsNetwork(t *testing.T) {
	sessions := &stubRestorer{}
	_, ok, err := NewBootstrapper(sessions).Run(context.Background())
	if err != nil || ok {
		t.Fatalf("expected absent session, got ok=%v err=%v", ok, err)
	}
	if sessions.revalCalls != 0 {
		t.Fatalf("expected no revalidation, got %d", sessions.revalCalls)
	}
}

func TestBootstrapper_AuthorizationFailureIsAbsentSession(t *testing.T) {
	sessions := &stubRestorer{
		cred:     core.Credential{Token: "Bearer stale"},
		present:  true,
		revalErr: core.NewAuthorizationError("get_identity"),
	}
	_, ok, err := NewBootstrapper(sessions).Run(context.Background())
	if err != nil || ok {
		t.Fatalf("expected silent absent session, got ok=%v err=%v", ok, err)
	}
}

func TestBootstrapper_OtherFailuresAreReturned(t *testing.T) {
	boom := errors.New("network down")
	sessions := &stubRestorer{cred: core.Credential{Token: "Bearer a"}, present: true, revalErr: boom}
	_, ok, err := NewBootstrapper(sessions).Run(context.Background())
	if !errors.Is(err, boom) || ok {
		t.Fatalf("expected transport error, got ok=%v err=%v", ok, err)
	}

	restoreErr := errors.New("disk")
	_, _, err = NewBootstrapper(&stubRestorer{restoreErr: restoreErr}).Run(context.Background())
	if !errors.Is(err, restoreErr) {
		t.Fatalf("expected restore error, got %v", err)
	}
}

func TestBoundaryHandle_AuthorizationErrorCountsDownAndRedirects(t *testing.T) {
	shell := &recordingShell{}
	clearer := &recordingClearer{}
	boundary := NewBoundary(shell, clearer, WithRedirectAfter(5*time.Millisecond), WithTick(time.Millisecond))

	if err := boundary.Handle(context.Background(), core.NewAuthorizationError("list_redirects")); err != nil {
		t.Fatalf("expected authorization error to be absorbed, got %v", err)
	}
	if clearer.calls != 1 || clearer.last != nil {
		t.Fatalf("expected session cleared once, got %d calls", clearer.calls)
	}
	if len(shell.notices) != 1 || shell.notices[0] != SessionExpiredNotice {
		t.Fatalf("unexpected notices %+v", shell.notices)
	}
	if shell.notices[0].Title != "Authorization Error" || shell.notices[0].Message != "Your session has expired. Please login again." {
		t.Fatalf("unexpected notice text %+v", shell.notices[0])
	}
	want := []time.Duration{5, 4, 3, 2, 1}
	if len(shell.countdown) != len(want) {
		t.Fatalf("expected %d countdown ticks, got %v", len(want), shell.countdown)
	}
	for i, remaining := range shell.countdown {
		if remaining != want[i]*time.Millisecond {
			t.Fatalf("tick %d: expected %v, got %v", i, want[i]*time.Millisecond, remaining)
		}
	}
	if shell.redirects != 1 {
		t.Fatalf("expected one redirect home, got %d", shell.redirects)
	}
}

func TestBoundaryHandle_OtherErrorsPassThrough(t *testing.T) {
	shell := &recordingShell{}
	clearer := &recordingClearer{}
	boundary := NewBoundary(shell, clearer)

	failure := core.NewRequestFailedError("list_redirects", 500)
	err := boundary.Handle(context.Background(), failure)
	if err != error(failure) {
		t.Fatalf("expected the same error back, got %v", err)
	}
	if clearer.calls != 0 || len(shell.notices) != 0 || shell.redirects != 0 {
		t.Fatalf("non authorization errors must not touch the session or shell")
	}
	if err := boundary.Handle(context.Background(), nil); err != nil {
		t.Fatalf("expected nil for nil, got %v", err)
	}
}

func TestBoundaryHandle_CancelStopsCountdown(t *testing.T) {
	shell := &recordingShell{}
	boundary := NewBoundary(shell, &recordingClearer{}, WithRedirectAfter(time.Hour), WithTick(time.Minute))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- boundary.Handle(ctx, core.NewAuthorizationError("get_identity"))
	}()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("countdown did not stop on cancel")
	}
	shell.mu.Lock()
	defer shell.mu.Unlock()
	if shell.redirects != 0 {
		t.Fatalf("expected no redirect after cancel")
	}
}

func TestBoundaryGuard_RecoversPanics(t *testing.T) {
	boundary := NewBoundary(&recordingShell{}, &recordingClearer{})
	err := boundary.Guard(context.Background(), func(context.Context) error {
		panic("boom")
	})
	if err == nil {
		t.Fatalf("expected panic to surface as error")
	}

	shell := &recordingShell{}
	boundary = NewBoundary(shell, &recordingClearer{}, WithRedirectAfter(0))
	err = boundary.Guard(context.Background(), func(context.Context) error {
		return core.NewAuthorizationError("delete_redirect")
	})
	if err != nil || shell.redirects != 1 {
		t.Fatalf("expected guarded authorization error to redirect, got err=%v redirects=%d", err, shell.redirects)
	}
}
