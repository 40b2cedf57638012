package redirects

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-redirects/api"
	"github.com/goliatone/go-redirects/core"
	"github.com/goliatone/go-redirects/mutation"
	"github.com/goliatone/go-redirects/pagination"
	"github.com/goliatone/go-redirects/recovery"
	"github.com/goliatone/go-redirects/security"
	"github.com/goliatone/go-redirects/session"
)

// Service owns one instance of every component. Its methods back the
// command and query handlers.
type Service struct {
	cfg       core.Config
	telemetry core.Telemetry
	persister core.CredentialPersister

	cache     *api.Cache
	sessions  *session.Store
	engine    *pagination.Engine
	mutations *mutation.Coordinator
	bootstrap *recovery.Bootstrapper
	boundary  *recovery.Boundary

	mu           sync.Mutex
	lastIdentity string
	detach       []func()
}

func NewService(cfg core.Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	options := serviceOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	logger := options.resolveLogger("redirects")
	telemetry := core.NewTelemetry(logger, options.metrics)

	persister, err := resolvePersister(cfg, options, logger)
	if err != nil {
		return nil, err
	}

	clientOpts := []api.ClientOption{
		api.WithLogger(options.resolveLogger("redirects.api")),
		api.WithMetricsRecorder(telemetry.Metrics),
		api.WithTimeout(cfg.HTTPTimeout()),
		api.WithMaxResponseBodyBytes(cfg.HTTP.MaxResponseBodyBytes),
	}
	if options.httpClient != nil {
		clientOpts = append(clientOpts, api.WithHTTPClient(options.httpClient))
	}
	if options.transport != nil {
		clientOpts = append(clientOpts, api.WithTransport(options.transport))
	}
	baseURL := options.baseURL
	if baseURL == nil {
		baseURL = api.StaticBaseURL(cfg.APIURL)
	}
	cache := api.NewCache(baseURL, clientOpts...)

	sessions := session.NewStore(cache,
		session.WithPersister(persister),
		session.WithStorageKey(cfg.StorageKey()),
		session.WithLogger(options.resolveLogger("redirects.session")),
		session.WithMetricsRecorder(telemetry.Metrics),
	)
	engine := pagination.NewEngine(cache, sessions,
		pagination.WithPageSize(cfg.EffectivePageSize()),
		pagination.WithLogger(options.resolveLogger("redirects.pagination")),
		pagination.WithMetricsRecorder(telemetry.Metrics),
	)
	mutations := mutation.NewCoordinator(cache, sessions, engine,
		mutation.WithLogger(options.resolveLogger("redirects.mutation")),
		mutation.WithMetricsRecorder(telemetry.Metrics),
	)
	recoveryOpts := []recovery.Option{
		recovery.WithLogger(options.resolveLogger("redirects.recovery")),
		recovery.WithMetricsRecorder(telemetry.Metrics),
		recovery.WithRedirectAfter(cfg.RedirectAfter()),
		recovery.WithTick(options.tick),
	}

	svc := &Service{
		cfg:       cfg,
		telemetry: telemetry,
		persister: persister,
		cache:     cache,
		sessions:  sessions,
		engine:    engine,
		mutations: mutations,
		bootstrap: recovery.NewBootstrapper(sessions, recoveryOpts...),
		boundary:  recovery.NewBoundary(options.shell, sessions, recoveryOpts...),
	}
	svc.detach = append(svc.detach,
		sessions.Attach(cache),
		sessions.Subscribe(svc.onSessionChange),
	)
	return svc, nil
}

// Start restores the persisted session and, when one is established, loads
// the first page. A rejected credential leaves the service signed out
// without error.
func (s *Service) Start(ctx context.Context) (core.Session, bool, error) {
	sess, ok, err := s.bootstrap.Run(ctx)
	if err != nil || !ok {
		return core.Session{}, false, err
	}
	if _, err := s.engine.InitialFetch(ctx); err != nil {
		return sess, true, err
	}
	return sess, true, nil
}

// CompleteLogin finishes the sign in and loads the first page for the new
// session.
func (s *Service) CompleteLogin(ctx context.Context, code string) (core.Session, error) {
	sess, err := s.sessions.CompleteLogin(ctx, code)
	if err != nil {
		return core.Session{}, err
	}
	if _, err := s.engine.InitialFetch(ctx); err != nil {
		return sess, err
	}
	return sess, nil
}

func (s *Service) Logout(ctx context.Context) error {
	return s.sessions.Logout(ctx)
}

func (s *Service) Reload(ctx context.Context) (pagination.LoadResult, error) {
	return s.engine.InitialFetch(ctx)
}

func (s *Service) LoadMore(ctx context.Context) (pagination.LoadResult, error) {
	return s.engine.LoadMore(ctx)
}

func (s *Service) CreateRedirect(ctx context.Context, key string, target string) (core.Redirect, error) {
	return s.mutations.Create(ctx, key, target)
}

func (s *Service) UpdateRedirect(ctx context.Context, id string, key string, target string) (mutation.UpdateResult, error) {
	return s.mutations.Update(ctx, id, key, target)
}

func (s *Service) DeleteRedirect(ctx context.Context, id string) error {
	return s.mutations.Delete(ctx, id)
}

func (s *Service) Current() (core.Session, bool) {
	return s.sessions.Current()
}

func (s *Service) Window() (*core.Window, pagination.State) {
	return s.engine.Window()
}

// LoginURL is the identity provider address the shell sends users to.
func (s *Service) LoginURL() (string, error) {
	return session.LoginURL(s.cfg.SSO.LoginURL, s.cfg.SSO.ClientID, s.cfg.SSO.RedirectURI)
}

// ShortURL is the public address of r under redirect_base_url.
func (s *Service) ShortURL(r core.Redirect) string {
	return r.ShortURL(s.cfg.RedirectBaseURL)
}

// Handle routes err through the recovery boundary.
func (s *Service) Handle(ctx context.Context, err error) error {
	return s.boundary.Handle(ctx, err)
}

// Guard runs fn under the recovery boundary.
func (s *Service) Guard(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.boundary.Guard(ctx, fn)
}

// Follow tracks credential changes made by other processes when the
// persister can be watched and session.watch is set. It blocks until ctx is
// done.
func (s *Service) Follow(ctx context.Context) error {
	watcher, ok := s.persister.(session.Watcher)
	if !ok || !s.cfg.Session.Watch {
		<-ctx.Done()
		return nil
	}
	return s.sessions.Follow(ctx, watcher)
}

func (s *Service) SubscribeWindow(fn func(pagination.Snapshot)) func() {
	return s.engine.Subscribe(fn)
}

func (s *Service) SubscribeSession(fn session.Listener) func() {
	return s.sessions.Subscribe(fn)
}

func (s *Service) Config() core.Config {
	return s.cfg
}

// Close detaches the internal subscriptions.
func (s *Service) Close() error {
	s.mu.Lock()
	detach := s.detach
	s.detach = nil
	s.mu.Unlock()
	for _, fn := range detach {
		fn()
	}
	return nil
}

// onSessionChange discards the window when the session ends or a different
// identity signs in.
func (s *Service) onSessionChange(change session.Change) {
	s.mu.Lock()
	previous := s.lastIdentity
	next := ""
	if change.Present {
		next = change.Session.Identity.Email
	}
	s.lastIdentity = next
	s.mu.Unlock()

	if !change.Present || (previous != "" && previous != next) {
		s.engine.Reset()
		s.telemetry.Log(context.Background(), "debug", "window reset after session change", map[string]any{
			"reason": string(change.Reason),
		})
	}
}

func resolvePersister(cfg core.Config, options serviceOptions, logger core.Logger) (core.CredentialPersister, error) {
	if options.persister != nil {
		return options.persister, nil
	}
	switch strings.TrimSpace(strings.ToLower(cfg.Session.Backend)) {
	case "", core.SessionBackendMemory:
		return session.NewMemoryPersister(), nil
	case core.SessionBackendFile:
		secrets := options.secrets
		if secrets == nil && strings.TrimSpace(cfg.Session.EncryptionKey) != "" {
			sealer, err := security.NewSealerFromString(cfg.Session.EncryptionKey,
				security.WithAssociatedData(cfg.StorageKey()))
			if err != nil {
				return nil, err
			}
			secrets = sealer
		}
		fileOpts := []session.FileOption{session.WithFileLogger(logger)}
		if secrets != nil {
			fileOpts = append(fileOpts, session.WithSecretProvider(secrets))
		}
		return session.NewFilePersister(cfg.Session.Path, fileOpts...)
	case core.SessionBackendSQL:
		return nil, core.NewBadInputError("session.backend", "the sql backend needs WithCredentialPersister")
	default:
		return nil, core.NewBadInputError("session.backend", fmt.Sprintf("unknown session backend %q", cfg.Session.Backend))
	}
}
