package session

import (
	"net/url"
	"strings"

	"github.com/goliatone/go-redirects/core"
)

// LoginURL builds the identity provider address the shell navigates to.
func LoginURL(loginBase string, clientID string, redirectURI string) (string, error) {
	loginBase = strings.TrimSpace(loginBase)
	if loginBase == "" {
		loginBase = core.DefaultLoginURL
	}
	parsed, err := url.Parse(loginBase)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", core.NewBadInputError("sso.login_url", "login url must be absolute")
	}
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return "", core.NewBadInputError("sso.client_id", "client id is required")
	}
	redirectURI = strings.TrimSpace(redirectURI)
	if redirectURI == "" {
		return "", core.NewBadInputError("sso.redirect_uri", "redirect uri is required")
	}
	query := parsed.Query()
	query.Set("client_id", clientID)
	query.Set("redirect_uri", redirectURI)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
