// Package redirects composes the session store, the shared API client, the
// pagination window and the mutation coordinator into one service for a
// URL shortener management shell.
//
// A typical shell builds a Service from Config, calls Start to restore the
// previous session and load the first page, and then drives the Facade
// commands and queries. Authorization failures from any call clear the
// session; pass them through Handle to run the expiry countdown.
package redirects

import "github.com/goliatone/go-redirects/core"

type Config = core.Config

type Session = core.Session

type Credential = core.Credential

type Identity = core.Identity

type Redirect = core.Redirect

type Window = core.Window

func DefaultConfig() Config {
	return core.DefaultConfig()
}
