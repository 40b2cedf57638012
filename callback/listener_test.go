package callback

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-redirects/core"
)

type stubCompleter struct {
	calls atomic.Int32
	err   error
}

func (s *stubCompleter) CompleteLogin(_ context.Context, code string) (core.Session, error) {
	s.calls.Add(1)
	if s.err != nil {
		return core.Session{}, s.err
	}
	return core.Session{
		Identity:   core.Identity{Email: "ada@example.com"},
		Credential: core.Credential{Token: "Bearer " + code},
	}, nil
}

func TestListener_CompletesLoginOnce(t *testing.T) {
	completer := &stubCompleter{}
	listener := NewListener(completer)
	server := httptest.NewServer(listener.Router())
	defer server.Close()

	res, err := http.Get(server.URL + "/sso/callback?code=abc")
	if err != nil {
		t.Fatalf("callback request: %v", err)
	}
	body, _ := io.ReadAll(res.Body)
	_ = res.Body.Close()
	if res.StatusCode != http.StatusOK || !strings.Contains(string(body), "ada@example.com") {
		t.Fatalf("unexpected response %d %q", res.StatusCode, body)
	}

	select {
	case result := <-listener.Results():
		if result.Err != nil || result.Session.Credential.Token != "Bearer abc" {
			t.Fatalf("unexpected result %#v", result)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a login result")
	}

	res, err = http.Get(server.URL + "/sso/callback?code=abc")
	if err != nil {
		t.Fatalf("second callback request: %v", err)
	}
	_ = res.Body.Close()
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict on replay, got %d", res.StatusCode)
	}
	if completer.calls.Load() != 1 {
		t.Fatalf("expected code exchanged once, got %d", completer.calls.Load())
	}
}

func TestListener_MissingCodeIsBadRequest(t *testing.T) {
	completer := &stubCompleter{}
	server := httptest.NewServer(NewListener(completer, WithPath("login/done")).Router())
	defer server.Close()

	res, err := http.Get(server.URL + "/login/done")
	if err != nil {
		t.Fatalf("callback request: %v", err)
	}
	_ = res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.StatusCode)
	}
	if completer.calls.Load() != 0 {
		t.Fatalf("expected no exchange without a code")
	}
}

func TestListener_FailureShowsErrorText(t *testing.T) {
	completer := &stubCompleter{err: core.NewAuthorizationError("exchange_token")}
	listener := NewListener(completer)
	server := httptest.NewServer(listener.Router())
	defer server.Close()

	res, err := http.Get(server.URL + "/sso/callback?code=bad")
	if err != nil {
		t.Fatalf("callback request: %v", err)
	}
	body, _ := io.ReadAll(res.Body)
	_ = res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized || !strings.Contains(string(body), "Authorization error") {
		t.Fatalf("unexpected failure response %d %q", res.StatusCode, body)
	}
	result := <-listener.Results()
	if !core.IsAuthorization(result.Err) {
		t.Fatalf("expected authorization error result, got %v", result.Err)
	}
}

func TestListener_ServeReturnsSessionAndStops(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	listener := NewListener(&stubCompleter{})

	type served struct {
		session core.Session
		err     error
	}
	done := make(chan served, 1)
	go func() {
		sess, err := listener.Serve(context.Background(), ln)
		done <- served{session: sess, err: err}
	}()

	res, err := http.Get("http://" + ln.Addr().String() + "/sso/callback?code=xyz")
	if err != nil {
		t.Fatalf("callback request: %v", err)
	}
	_ = res.Body.Close()

	select {
	case out := <-done:
		if out.err != nil || out.session.Identity.Email != "ada@example.com" {
			t.Fatalf("unexpected serve result %#v", out)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("serve did not return after login")
	}
}

func TestListener_ServeHonoursCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewListener(&stubCompleter{}).Serve(ctx, ln); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
