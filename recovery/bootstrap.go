// Package recovery restores the session at startup and turns authorization
// failures that reach the top of the shell into a timed return to the
// login entry point.
package recovery

import (
	"context"
	"time"

	"github.com/goliatone/go-redirects/core"
)

// Restorer is the part of the session store bootstrap needs.
type Restorer interface {
	Restore(ctx context.Context) (core.Credential, bool, error)
	Revalidate(ctx context.Context, cred core.Credential) (core.Session, error)
}

type Option func(*settings)

type settings struct {
	telemetry     core.Telemetry
	redirectAfter time.Duration
	tick          time.Duration
	notice        Notice
}

func WithLogger(logger core.Logger) Option {
	return func(s *settings) {
		s.telemetry.Logger = logger
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(s *settings) {
		s.telemetry.Metrics = recorder
	}
}

// WithRedirectAfter sets how long the expiry notice is shown.
func WithRedirectAfter(delay time.Duration) Option {
	return func(s *settings) {
		if delay >= 0 {
			s.redirectAfter = delay
		}
	}
}

// WithTick sets the countdown step.
func WithTick(tick time.Duration) Option {
	return func(s *settings) {
		if tick > 0 {
			s.tick = tick
		}
	}
}

func WithNotice(notice Notice) Option {
	return func(s *settings) {
		s.notice = notice
	}
}

func resolveSettings(opts []Option) settings {
	s := settings{
		redirectAfter: 5 * time.Second,
		tick:          time.Second,
		notice:        SessionExpiredNotice,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	s.telemetry = core.NewTelemetry(s.telemetry.Logger, s.telemetry.Metrics)
	return s
}

type Bootstrapper struct {
	sessions Restorer
	settings settings
}

func NewBootstrapper(sessions Restorer, opts ...Option) *Bootstrapper {
	return &Bootstrapper{sessions: sessions, settings: resolveSettings(opts)}
}

// Run restores the persisted credential and silently revalidates it. A
// rejected credential yields an absent session and no error; any other
// failure is returned.
func (b *Bootstrapper) Run(ctx context.Context) (core.Session, bool, error) {
	if b == nil || b.sessions == nil {
		return core.Session{}, false, core.NewInternalError("recovery: session store is not configured")
	}
	cred, ok, err := b.sessions.Restore(ctx)
	if err != nil {
		return core.Session{}, false, err
	}
	if !ok {
		b.settings.telemetry.Log(ctx, "debug", "no persisted credential", nil)
		return core.Session{}, false, nil
	}
	sess, err := b.sessions.Revalidate(ctx, cred)
	if err != nil {
		if core.IsAuthorization(err) {
			b.settings.telemetry.Log(ctx, "info", "persisted credential rejected, session cleared", nil)
			return core.Session{}, false, nil
		}
		return core.Session{}, false, err
	}
	b.settings.telemetry.Log(ctx, "info", "session restored", map[string]any{"email": sess.Identity.Email})
	return sess, true, nil
}
