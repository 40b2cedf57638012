package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-redirects/core"
	"golang.org/x/sync/singleflight"
)

type Reason string

const (
	ReasonLogin                Reason = "login"
	ReasonRevalidated          Reason = "revalidated"
	ReasonSet                  Reason = "set"
	ReasonLogout               Reason = "logout"
	ReasonAuthorizationFailure Reason = "authorization_failure"
	ReasonExternalChange       Reason = "external_change"
)

// Change describes a session transition. Present is false when the session
// was cleared.
type Change struct {
	Session core.Session
	Present bool
	Reason  Reason
}

type Listener func(Change)

// AuthorizationSource publishes authorization failures; api.Cache satisfies
// it.
type AuthorizationSource interface {
	Subscribe(listener core.AuthorizationListener) func()
}

type Option func(*Store)

func WithPersister(persister core.CredentialPersister) Option {
	return func(s *Store) {
		if persister != nil {
			s.persister = persister
		}
	}
}

func WithStorageKey(key string) Option {
	return func(s *Store) {
		if key = strings.TrimSpace(key); key != "" {
			s.key = key
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(s *Store) {
		s.telemetry.Logger = logger
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(s *Store) {
		s.telemetry.Metrics = recorder
	}
}

// Store owns the current session and the persisted credential. Reads are
// lock free for callers beyond a read lock; writes are serialized and last
// write wins. Listeners run on the writer's goroutine after the write has
// been applied.
type Store struct {
	resolver  core.APIResolver
	persister core.CredentialPersister
	key       string
	telemetry core.Telemetry

	writeMu sync.Mutex
	mu      sync.RWMutex
	current *core.Session
	// clears counts every clear so in-flight identity requests can tell
	// whether the session was cleared under them.
	clears uint64

	listenersMu sync.RWMutex
	nextID      uint64
	listeners   map[uint64]Listener

	exchangeMu sync.Mutex
	usedCodes  map[string]struct{}

	revalidations singleflight.Group
}

func NewStore(resolver core.APIResolver, opts ...Option) *Store {
	store := &Store{
		resolver:  resolver,
		persister: NewMemoryPersister(),
		key:       core.DefaultStorageKey,
		listeners: map[uint64]Listener{},
		usedCodes: map[string]struct{}{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	store.telemetry = core.NewTelemetry(store.telemetry.Logger, store.telemetry.Metrics)
	return store
}

func (s *Store) StorageKey() string {
	return s.key
}

// Restore reads the persisted credential. It never touches the network.
func (s *Store) Restore(ctx context.Context) (core.Credential, bool, error) {
	cred, ok, err := s.persister.Load(ctx, s.key)
	if err != nil {
		return core.Credential{}, false, err
	}
	if !ok || cred.IsZero() {
		return core.Credential{}, false, nil
	}
	return cred, true, nil
}

// Revalidate fetches the identity for cred. Success establishes the session
// and persists cred. An authorization failure clears the persisted
// credential and leaves the session absent. Any other failure is returned
// as is and changes nothing. Concurrent calls for the same credential share
// one request, which runs detached from any single caller's cancellation.
// A response arriving after the session was cleared is discarded.
func (s *Store) Revalidate(ctx context.Context, cred core.Credential) (core.Session, error) {
	if cred.IsZero() {
		return core.Session{}, core.NewNotAuthenticatedError("revalidate")
	}
	flightCtx := context.WithoutCancel(ctx)
	value, err, _ := s.revalidations.Do(cred.Token, func() (any, error) {
		since := s.clearGeneration()
		api, err := s.api(flightCtx)
		if err != nil {
			return core.Session{}, err
		}
		identity, err := api.GetIdentity(flightCtx, cred)
		if err != nil {
			if core.IsAuthorization(err) {
				s.clearFor(flightCtx, cred, ReasonAuthorizationFailure, &since)
			}
			return core.Session{}, err
		}
		next := core.Session{Identity: identity, Credential: cred}
		if err := s.write(flightCtx, &next, ReasonRevalidated, &since); err != nil {
			return core.Session{}, err
		}
		return next, nil
	})
	sess, _ := value.(core.Session)
	return sess, err
}

// Set replaces the session, nil clears it. The credential is persisted or
// removed to match.
func (s *Store) Set(ctx context.Context, next *core.Session) error {
	return s.write(ctx, next, ReasonSet, nil)
}

func (s *Store) Logout(ctx context.Context) error {
	return s.write(ctx, nil, ReasonLogout, nil)
}

// Exchange turns an authorization code into a credential. Each code is
// accepted once for the lifetime of the store; the session is not touched.
func (s *Store) Exchange(ctx context.Context, code string) (core.Credential, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return core.Credential{}, core.NewBadInputError("authorization_code", "authorization code is required")
	}
	s.exchangeMu.Lock()
	if _, used := s.usedCodes[code]; used {
		s.exchangeMu.Unlock()
		return core.Credential{}, core.NewBadInputError("authorization_code", "authorization code was already submitted")
	}
	s.usedCodes[code] = struct{}{}
	s.exchangeMu.Unlock()

	api, err := s.api(ctx)
	if err != nil {
		return core.Credential{}, err
	}
	return api.ExchangeToken(ctx, code)
}

// CompleteLogin exchanges code, fetches the identity and establishes the
// session. A logout or authorization failure observed before the identity
// arrives wins and the login is discarded.
func (s *Store) CompleteLogin(ctx context.Context, code string) (core.Session, error) {
	since := s.clearGeneration()
	cred, err := s.Exchange(ctx, code)
	if err != nil {
		return core.Session{}, err
	}
	api, err := s.api(ctx)
	if err != nil {
		return core.Session{}, err
	}
	identity, err := api.GetIdentity(ctx, cred)
	if err != nil {
		return core.Session{}, err
	}
	next := core.Session{Identity: identity, Credential: cred}
	if err := s.write(ctx, &next, ReasonLogin, &since); err != nil {
		return core.Session{}, err
	}
	return next, nil
}

func (s *Store) Current() (core.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return core.Session{}, false
	}
	return *s.current, true
}

// Subscribe registers fn for session changes and returns a function that
// removes it.
func (s *Store) Subscribe(fn Listener) func() {
	if fn == nil {
		return func() {}
	}
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenersMu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenersMu.Lock()
			delete(s.listeners, id)
			s.listenersMu.Unlock()
		})
	}
}

// Attach subscribes the store to source so every authorization failure,
// whichever component triggered it, clears the session.
func (s *Store) Attach(source AuthorizationSource) func() {
	if source == nil {
		return func() {}
	}
	return source.Subscribe(s.HandleAuthorizationFailure)
}

// HandleAuthorizationFailure clears the session after a rejected call. A
// failure carrying a credential other than the current one is stale and is
// ignored.
func (s *Store) HandleAuthorizationFailure(ctx context.Context, failed core.Credential, err error) {
	s.clearFor(ctx, failed, ReasonAuthorizationFailure, nil)
}

// clearFor clears the session and the persisted credential after failed
// was rejected. With since set, the clear is skipped when another clear
// already happened after since was captured.
func (s *Store) clearFor(ctx context.Context, failed core.Credential, reason Reason, since *uint64) {
	startedAt := time.Now()
	s.writeMu.Lock()
	s.mu.Lock()
	previous := s.current
	if since != nil && s.clears != *since {
		s.mu.Unlock()
		s.writeMu.Unlock()
		return
	}
	if previous != nil && !failed.IsZero() && !previous.Credential.Equal(failed) {
		s.mu.Unlock()
		s.writeMu.Unlock()
		s.telemetry.Log(ctx, "warn", "ignoring authorization failure for a superseded credential", map[string]any{
			"storage_key": s.key,
		})
		return
	}
	s.current = nil
	s.clears++
	s.mu.Unlock()
	err := s.persister.Delete(ctx, s.key)
	s.writeMu.Unlock()

	s.telemetry.IncCounter(ctx, core.MetricAuthorizationClear, 1, map[string]string{"reason": string(reason)})
	if err != nil {
		s.telemetry.Log(ctx, "error", "failed to remove persisted credential", map[string]any{
			"storage_key": s.key,
			"error":       err.Error(),
		})
	}
	if previous == nil {
		// nothing in memory, only storage needed clearing
		return
	}
	s.announce(ctx, Change{Present: false, Reason: reason}, startedAt, err)
}

// write swaps the in-memory session first so a failing persister can never
// keep a cleared session alive, then mirrors the credential to storage.
// Clearing bumps the clear generation. With since set, the write is
// rejected when the session was cleared after since was captured.
func (s *Store) write(ctx context.Context, next *core.Session, reason Reason, since *uint64) error {
	startedAt := time.Now()
	s.writeMu.Lock()
	var stored *core.Session
	if next != nil {
		copied := *next
		stored = &copied
	}
	s.mu.Lock()
	if since != nil && s.clears != *since {
		s.mu.Unlock()
		s.writeMu.Unlock()
		s.telemetry.Log(ctx, "info", "discarding identity received after the session was cleared", map[string]any{
			"storage_key": s.key,
			"reason":      string(reason),
		})
		return core.NewSessionClearedError(string(reason))
	}
	s.current = stored
	if stored == nil {
		s.clears++
	}
	s.mu.Unlock()

	var err error
	if stored != nil {
		err = s.persister.Save(ctx, s.key, stored.Credential)
	} else {
		err = s.persister.Delete(ctx, s.key)
	}
	s.writeMu.Unlock()

	change := Change{Present: stored != nil, Reason: reason}
	if stored != nil {
		change.Session = *stored
	}
	s.announce(ctx, change, startedAt, err)
	return err
}

func (s *Store) announce(ctx context.Context, change Change, startedAt time.Time, err error) {
	s.telemetry.Observe(ctx, core.MetricSessionChanges, startedAt, "session_"+string(change.Reason), err, map[string]any{
		"present":     change.Present,
		"storage_key": s.key,
	})
	s.notify(change)
}

// dropMemory forgets the in-memory session without touching storage.
func (s *Store) dropMemory(ctx context.Context, reason Reason) {
	s.writeMu.Lock()
	s.mu.Lock()
	had := s.current != nil
	s.current = nil
	s.clears++
	s.mu.Unlock()
	s.writeMu.Unlock()
	if !had {
		return
	}
	s.telemetry.Log(ctx, "info", "session dropped after external credential change", map[string]any{
		"storage_key": s.key,
		"reason":      string(reason),
	})
	s.notify(Change{Present: false, Reason: reason})
}

func (s *Store) clearGeneration() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clears
}

func (s *Store) notify(change Change) {
	s.listenersMu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, listener := range s.listeners {
		listeners = append(listeners, listener)
	}
	s.listenersMu.RUnlock()
	for _, listener := range listeners {
		listener(change)
	}
}

func (s *Store) api(ctx context.Context) (core.API, error) {
	if s.resolver == nil {
		return nil, core.NewInternalError("session: api resolver is not configured")
	}
	return s.resolver.Resolve(ctx)
}

var _ core.SessionReader = (*Store)(nil)
