// Package callback serves the identity provider redirect for command line
// logins. The first request carrying a code completes the login; the
// listener then shuts down.
package callback

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-redirects/core"
	"github.com/gorilla/mux"
)

const shutdownTimeout = 5 * time.Second

// Completer finishes a login from an authorization code. *session.Store
// satisfies it.
type Completer interface {
	CompleteLogin(ctx context.Context, code string) (core.Session, error)
}

type Result struct {
	Session core.Session
	Err     error
}

type Option func(*Listener)

func WithPath(path string) Option {
	return func(l *Listener) {
		if path = strings.TrimSpace(path); path != "" {
			if !strings.HasPrefix(path, "/") {
				path = "/" + path
			}
			l.path = path
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(l *Listener) {
		l.logger = glog.Ensure(logger)
	}
}

type Listener struct {
	completer Completer
	path      string
	logger    core.Logger

	once    sync.Once
	results chan Result
}

func NewListener(completer Completer, opts ...Option) *Listener {
	listener := &Listener{
		completer: completer,
		path:      core.DefaultCallbackPath,
		logger:    glog.Nop(),
		results:   make(chan Result, 1),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(listener)
		}
	}
	return listener
}

func (l *Listener) Path() string {
	return l.path
}

// Router exposes the callback route, for embedding in a larger server.
func (l *Listener) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc(l.path, l.handleCallback).Methods(http.MethodGet)
	return r
}

// Results delivers the single login outcome.
func (l *Listener) Results() <-chan Result {
	return l.results
}

// Serve runs the route on ln until one login completes or ctx ends.
func (l *Listener) Serve(ctx context.Context, ln net.Listener) (core.Session, error) {
	if ln == nil {
		return core.Session{}, core.NewInternalError("callback: net listener is required")
	}
	server := &http.Server{Handler: l.Router(), ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var (
		result Result
		err    error
	)
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case result = <-l.results:
		err = result.Err
	case serr, ok := <-serveErr:
		if ok {
			err = fmt.Errorf("callback: serve: %w", serr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		l.logger.Warn("callback server shutdown failed", "error", shutdownErr)
	}
	if err != nil {
		return core.Session{}, err
	}
	return result.Session, nil
}

func (l *Listener) handleCallback(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}
	handled := false
	l.once.Do(func() {
		handled = true
		l.complete(w, r, code)
	})
	if !handled {
		http.Error(w, "login already handled", http.StatusConflict)
	}
}

func (l *Listener) complete(w http.ResponseWriter, r *http.Request, code string) {
	if l.completer == nil {
		err := core.NewInternalError("callback: login completer is not configured")
		l.results <- Result{Err: err}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	sess, err := l.completer.CompleteLogin(r.Context(), code)
	l.results <- Result{Session: sess, Err: err}
	if err != nil {
		l.logger.Error("login callback failed", "error", err)
		status := core.StatusCode(err)
		if status < http.StatusBadRequest {
			status = http.StatusBadGateway
		}
		http.Error(w, err.Error(), status)
		return
	}
	l.logger.Info("login completed", "email", sess.Identity.Email)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "Signed in as %s. You can close this window.\n", sess.Identity.Email)
}
