package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-redirects/core"
)

type Notice struct {
	Title   string
	Message string
}

var SessionExpiredNotice = Notice{
	Title:   "Authorization Error",
	Message: "Your session has expired. Please login again.",
}

// Shell is the presentation side of the boundary.
type Shell interface {
	SessionExpired(ctx context.Context, notice Notice)
	Countdown(ctx context.Context, remaining time.Duration)
	RedirectHome(ctx context.Context)
}

// SessionClearer drops the session and its persisted credential.
type SessionClearer interface {
	Set(ctx context.Context, next *core.Session) error
}

// Boundary is the top level error handler of the shell.
type Boundary struct {
	shell    Shell
	sessions SessionClearer
	settings settings
}

func NewBoundary(shell Shell, sessions SessionClearer, opts ...Option) *Boundary {
	return &Boundary{shell: shell, sessions: sessions, settings: resolveSettings(opts)}
}

// Handle absorbs authorization failures: the session is cleared, the expiry
// notice is shown, a countdown runs and the shell is sent home. Every other
// error is returned unchanged.
func (b *Boundary) Handle(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if !core.IsAuthorization(err) {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if b.sessions != nil {
		if clearErr := b.sessions.Set(ctx, nil); clearErr != nil {
			b.settings.telemetry.Log(ctx, "error", "clear session after authorization failure", map[string]any{
				"error": clearErr.Error(),
			})
		}
	}
	if b.shell == nil {
		return nil
	}
	b.shell.SessionExpired(ctx, b.settings.notice)
	if err := b.countdown(ctx); err != nil {
		return err
	}
	b.shell.RedirectHome(ctx)
	return nil
}

// Guard runs fn and routes its result, or a panic, through Handle.
func (b *Boundary) Guard(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = core.NewInternalError(fmt.Sprintf("recovery: panic: %v", recovered))
		}
	}()
	return b.Handle(ctx, fn(ctx))
}

func (b *Boundary) countdown(ctx context.Context) error {
	tick := b.settings.tick
	for remaining := b.settings.redirectAfter; remaining > 0; remaining -= tick {
		b.shell.Countdown(ctx, remaining)
		timer := time.NewTimer(min(tick, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}
