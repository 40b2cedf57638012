package query

import "strings"

const (
	TypeCurrentSession = "redirects.query.session.current"
	TypeWindow         = "redirects.query.window.snapshot"
	TypeGetRedirect    = "redirects.query.redirect.get"
	TypeLoginURL       = "redirects.query.session.login_url"
)

type CurrentSessionMessage struct{}

func (CurrentSessionMessage) Type() string { return TypeCurrentSession }

func (CurrentSessionMessage) Validate() error { return nil }

type WindowMessage struct{}

func (WindowMessage) Type() string { return TypeWindow }

func (WindowMessage) Validate() error { return nil }

// GetRedirectMessage looks a record up in the loaded window only.
type GetRedirectMessage struct {
	ID string
}

func (GetRedirectMessage) Type() string { return TypeGetRedirect }

func (m GetRedirectMessage) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return queryValidationError("id", "redirect id is required")
	}
	return nil
}

type LoginURLMessage struct{}

func (LoginURLMessage) Type() string { return TypeLoginURL }

func (LoginURLMessage) Validate() error { return nil }
