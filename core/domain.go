package core

import (
	"net/url"
	"strings"
)

const DefaultTokenType = "Bearer"

// Credential is the opaque bearer value sent verbatim as the Authorization
// header, in the form "<token_type> <access_token>".
type Credential struct {
	Token string `json:"token"`
}

func NewCredential(tokenType string, accessToken string) Credential {
	tokenType = strings.TrimSpace(tokenType)
	if tokenType == "" {
		tokenType = DefaultTokenType
	}
	return Credential{Token: tokenType + " " + strings.TrimSpace(accessToken)}
}

func (c Credential) IsZero() bool {
	return strings.TrimSpace(c.Token) == ""
}

func (c Credential) Equal(other Credential) bool {
	return strings.TrimSpace(c.Token) == strings.TrimSpace(other.Token)
}

type Identity struct {
	Email string `json:"email"`
}

type Session struct {
	Identity   Identity
	Credential Credential
}

type Redirect struct {
	ID     string `json:"id,omitempty"`
	Key    string `json:"key"`
	Target string `json:"target"`
}

// Pending reports whether the record has not been persisted yet.
func (r Redirect) Pending() bool {
	return strings.TrimSpace(r.ID) == ""
}

// ShortURL returns the public address that resolves to Target.
func (r Redirect) ShortURL(base string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/") + "/" + url.PathEscape(r.Key)
}

type RedirectPage struct {
	Data []Redirect `json:"data"`
	Last string     `json:"last"`
}

type ListParams struct {
	After string
	Limit int
}

// Window is the locally materialized slice of the remote record set. A
// published Window is never modified; every transition builds a new one.
type Window struct {
	Items     []Redirect
	Cursor    string
	Exhausted bool
}

func (w *Window) Len() int {
	if w == nil {
		return 0
	}
	return len(w.Items)
}

func (w *Window) IndexOf(id string) int {
	if w == nil {
		return -1
	}
	id = strings.TrimSpace(id)
	for i, item := range w.Items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

func (w *Window) Contains(id string) bool {
	return w.IndexOf(id) >= 0
}

// Snapshot returns a copy of the items that is safe to hand to callers.
func (w *Window) Snapshot() []Redirect {
	if w == nil || len(w.Items) == 0 {
		return []Redirect{}
	}
	return append([]Redirect(nil), w.Items...)
}
