package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/goliatone/go-redirects/recovery"
)

// cliShell renders recovery notices on the terminal. Home for a command
// line is the login hint.
type cliShell struct {
	mu  sync.Mutex
	out io.Writer
}

func newCLIShell(out io.Writer) *cliShell {
	if out == nil {
		out = io.Discard
	}
	return &cliShell{out: out}
}

func (s *cliShell) SessionExpired(_ context.Context, notice recovery.Notice) {
	s.printf("%s: %s\n", notice.Title, notice.Message)
}

func (s *cliShell) Countdown(_ context.Context, remaining time.Duration) {
	seconds := int(remaining.Round(time.Second) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	s.printf("\rRedirecting in %d...", seconds)
}

func (s *cliShell) RedirectHome(context.Context) {
	s.printf("\rRun `%s login` to sign in again.\n", appName)
}

func (s *cliShell) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintf(s.out, format, args...)
}

var _ recovery.Shell = (*cliShell)(nil)

// formatTarget shortens long targets to their first 25 and last 10
// characters.
func formatTarget(target string) string {
	runes := []rune(target)
	if len(runes) <= 35 {
		return target
	}
	return string(runes[:25]) + "..." + string(runes[len(runes)-10:])
}
