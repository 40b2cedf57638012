package redirects

import (
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-redirects/adapters/gologger"
	"github.com/goliatone/go-redirects/api"
	"github.com/goliatone/go-redirects/core"
	"github.com/goliatone/go-redirects/recovery"
	"github.com/goliatone/go-redirects/transport"
)

type Option func(*serviceOptions)

type serviceOptions struct {
	logger         core.Logger
	loggerProvider core.LoggerProvider
	metrics        core.MetricsRecorder
	persister      core.CredentialPersister
	secrets        core.SecretProvider
	httpClient     transport.HTTPDoer
	transport      core.TransportAdapter
	baseURL        api.BaseURLResolver
	shell          recovery.Shell
	tick           time.Duration
}

func WithLogger(logger core.Logger) Option {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// WithLoggerProvider takes precedence over WithLogger.
func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(o *serviceOptions) {
		o.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(o *serviceOptions) {
		o.metrics = recorder
	}
}

// WithCredentialPersister overrides the session.backend setting. It is
// required for the sql backend.
func WithCredentialPersister(persister core.CredentialPersister) Option {
	return func(o *serviceOptions) {
		o.persister = persister
	}
}

// WithSecretProvider seals credentials written by the file backend. Without
// it a session.encryption_key builds a security.Sealer.
func WithSecretProvider(provider core.SecretProvider) Option {
	return func(o *serviceOptions) {
		o.secrets = provider
	}
}

func WithHTTPClient(doer transport.HTTPDoer) Option {
	return func(o *serviceOptions) {
		o.httpClient = doer
	}
}

func WithTransport(adapter core.TransportAdapter) Option {
	return func(o *serviceOptions) {
		o.transport = adapter
	}
}

// WithBaseURLResolver defers the api address lookup to first use instead of
// taking api_url from Config.
func WithBaseURLResolver(resolver api.BaseURLResolver) Option {
	return func(o *serviceOptions) {
		o.baseURL = resolver
	}
}

func WithShell(shell recovery.Shell) Option {
	return func(o *serviceOptions) {
		o.shell = shell
	}
}

// WithCountdownTick sets the step of the session expiry countdown.
func WithCountdownTick(tick time.Duration) Option {
	return func(o *serviceOptions) {
		o.tick = tick
	}
}

func (o serviceOptions) resolveLogger(name string) core.Logger {
	_, logger := gologger.Resolve(name, o.loggerProvider, o.logger)
	return glog.Ensure(logger)
}
