package command

import "strings"

const (
	TypeCompleteLogin  = "redirects.command.session.complete_login"
	TypeLogout         = "redirects.command.session.logout"
	TypeReload         = "redirects.command.window.reload"
	TypeLoadMore       = "redirects.command.window.load_more"
	TypeCreateRedirect = "redirects.command.redirect.create"
	TypeUpdateRedirect = "redirects.command.redirect.update"
	TypeDeleteRedirect = "redirects.command.redirect.delete"
)

type CompleteLoginMessage struct {
	Code string
}

func (CompleteLoginMessage) Type() string { return TypeCompleteLogin }

func (m CompleteLoginMessage) Validate() error {
	if strings.TrimSpace(m.Code) == "" {
		return commandValidationError("code", "authorization code is required")
	}
	return nil
}

type LogoutMessage struct{}

func (LogoutMessage) Type() string { return TypeLogout }

func (LogoutMessage) Validate() error { return nil }

type ReloadMessage struct{}

func (ReloadMessage) Type() string { return TypeReload }

func (ReloadMessage) Validate() error { return nil }

type LoadMoreMessage struct{}

func (LoadMoreMessage) Type() string { return TypeLoadMore }

func (LoadMoreMessage) Validate() error { return nil }

type CreateRedirectMessage struct {
	Key    string
	Target string
}

func (CreateRedirectMessage) Type() string { return TypeCreateRedirect }

func (m CreateRedirectMessage) Validate() error {
	return validateFields(m.Key, m.Target)
}

type UpdateRedirectMessage struct {
	ID     string
	Key    string
	Target string
}

func (UpdateRedirectMessage) Type() string { return TypeUpdateRedirect }

func (m UpdateRedirectMessage) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return commandValidationError("id", "redirect id is required")
	}
	return validateFields(m.Key, m.Target)
}

type DeleteRedirectMessage struct {
	ID string
}

func (DeleteRedirectMessage) Type() string { return TypeDeleteRedirect }

func (m DeleteRedirectMessage) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return commandValidationError("id", "redirect id is required")
	}
	return nil
}

func validateFields(key string, target string) error {
	if strings.TrimSpace(key) == "" {
		return commandValidationError("key", "key is required")
	}
	if strings.TrimSpace(target) == "" {
		return commandValidationError("target", "target is required")
	}
	return nil
}
