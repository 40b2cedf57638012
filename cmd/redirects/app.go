package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	persistence "github.com/goliatone/go-persistence-bun"
	redirects "github.com/goliatone/go-redirects"
	"github.com/goliatone/go-redirects/adapters/gologger"
	promadapter "github.com/goliatone/go-redirects/adapters/prometheus"
	"github.com/goliatone/go-redirects/core"
	"github.com/goliatone/go-redirects/migrations"
	"github.com/goliatone/go-redirects/security"
	sqlstore "github.com/goliatone/go-redirects/store/sql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath  string
	logLevel    string
	apiURL      string
	backend     string
	sessionPath string
	dsn         string
	metricsAddr string
}

// cliDefaults sit below the config file: a shell keeps its login between
// runs, so the file backend replaces the in-memory one.
var cliDefaults = map[string]any{
	"session": map[string]any{"backend": core.SessionBackendFile},
}

type app struct {
	cfg     core.Config
	facade  *redirects.Facade
	service *redirects.Service
	shell   *cliShell
	logger  *slog.Logger
	out     io.Writer
	in      io.Reader

	closers []func() error
}

func loadConfig(ctx context.Context, flags globalFlags, env func(string) (string, bool)) (core.Config, error) {
	provider := core.NewCfgxConfigProvider(core.LayeredRawLoader{
		core.StaticRawConfigLoader{Values: cliDefaults},
		core.YAMLConfigLoader{Path: flags.configPath, Required: flags.configPath != ""},
		core.EnvConfigLoader{Lookup: env},
	})
	runtime := core.Config{APIURL: strings.TrimSpace(flags.apiURL)}
	runtime.Session.Backend = strings.TrimSpace(flags.backend)
	runtime.Session.Path = strings.TrimSpace(flags.sessionPath)
	runtime.Persistence.DSN = strings.TrimSpace(flags.dsn)
	return core.LoadConfig(ctx, provider, core.GoOptionsResolver{}, runtime)
}

func newLogger(w io.Writer, level string) *slog.Logger {
	lvl := slog.LevelWarn
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "trace":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func newApp(ctx context.Context, flags globalFlags, out io.Writer, errOut io.Writer, env func(string) (string, bool)) (*app, error) {
	cfg, err := loadConfig(ctx, flags, env)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(errOut, flags.logLevel)
	a := &app{cfg: cfg, logger: logger, out: out, in: strings.NewReader(""), shell: newCLIShell(out)}

	registry := prometheus.NewRegistry()
	opts := []redirects.Option{
		redirects.WithLoggerProvider(gologger.NewSlogProvider(logger)),
		redirects.WithMetricsRecorder(promadapter.NewRecorder(registry, promadapter.WithNamespace(appName))),
		redirects.WithShell(a.shell),
	}
	if addr := strings.TrimSpace(flags.metricsAddr); addr != "" {
		if err := a.serveMetrics(addr, registry); err != nil {
			a.Close()
			return nil, err
		}
	}
	if strings.EqualFold(strings.TrimSpace(cfg.Session.Backend), core.SessionBackendSQL) {
		persister, err := a.openSQLPersister(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		opts = append(opts, redirects.WithCredentialPersister(persister))
	}

	facade, service, err := redirects.New(cfg, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.facade = facade
	a.service = service
	a.closers = append(a.closers, service.Close)
	return a, nil
}

func (a *app) serveMetrics(addr string, registry *prometheus.Registry) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("metrics server stopped", "error", err)
		}
	}()
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	})
	return nil
}

type persistenceConfig struct {
	cfg core.PersistenceConfig
}

func (c persistenceConfig) GetDebug() bool {
	return c.cfg.Debug
}

func (c persistenceConfig) GetDriver() string {
	return c.cfg.Driver
}

func (c persistenceConfig) GetServer() string {
	return c.cfg.DSN
}

func (c persistenceConfig) GetPingTimeout() time.Duration {
	return 5 * time.Second
}

func (c persistenceConfig) GetOtelIdentifier() string {
	return appName
}

func (a *app) openSQLPersister(ctx context.Context) (core.CredentialPersister, error) {
	driver := strings.TrimSpace(a.cfg.Persistence.Driver)
	var dialect schema.Dialect
	switch migrations.DialectForDriver(driver) {
	case migrations.DialectSQLite:
		dialect = sqlitedialect.New()
	case migrations.DialectPostgres:
		dialect = pgdialect.New()
	default:
		return nil, fmt.Errorf("unsupported persistence.driver %q", driver)
	}
	sqlDB, err := sql.Open(driver, a.cfg.Persistence.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	client, err := persistence.New(persistenceConfig{cfg: a.cfg.Persistence}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("persistence client: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	if err := migrations.Apply(ctx, client, driver); err != nil {
		return nil, err
	}

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		return nil, err
	}
	if key := strings.TrimSpace(a.cfg.Session.EncryptionKey); key != "" {
		sealer, err := security.NewSealerFromString(key, security.WithAssociatedData(a.cfg.StorageKey()))
		if err != nil {
			return nil, err
		}
		factory = factory.WithSecretProvider(sealer)
	}
	store, err := factory.CachedCredentialStore(a.cfg.CacheTTL())
	if err != nil {
		return nil, err
	}
	return store, nil
}

// signedIn restores the persisted session. Commands that talk to the
// service call it first.
func (a *app) signedIn(ctx context.Context) (core.Session, error) {
	sess, ok, err := a.service.Start(ctx)
	if err != nil {
		return core.Session{}, a.handle(ctx, err)
	}
	if !ok {
		return core.Session{}, errNotSignedIn
	}
	return sess, nil
}

var (
	errNotSignedIn    = cliAuthError("not signed in, run `redirects login`")
	errSessionExpired = cliAuthError("session expired, run `redirects login`")
)

// cliAuthError keeps the CLI's session errors in the auth category so
// callers classifying with core.IsAuthorization see them as such.
func cliAuthError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(core.ErrorUnauthorized)
}

// handle routes err through the recovery boundary. An expired session has
// already been reported to the user there; the command still fails.
func (a *app) handle(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if core.IsAuthorization(err) {
		if herr := a.service.Handle(ctx, err); herr != nil {
			return herr
		}
		return errSessionExpired
	}
	return a.service.Handle(ctx, err)
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Debug("close failed", "error", err)
		}
	}
	a.closers = nil
}
