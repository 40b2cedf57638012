package query

import (
	"context"
	"strings"

	"github.com/goliatone/go-redirects/core"
	"github.com/goliatone/go-redirects/pagination"
)

type SessionReader interface {
	Current() (core.Session, bool)
}

type WindowReader interface {
	Window() (*core.Window, pagination.State)
}

type LoginURLBuilder interface {
	LoginURL() (string, error)
}

// SessionView is the result of CurrentSessionQuery. Present is false when
// nobody is signed in.
type SessionView struct {
	Session core.Session
	Present bool
}

type CurrentSessionQuery struct {
	reader SessionReader
}

func NewCurrentSessionQuery(reader SessionReader) *CurrentSessionQuery {
	return &CurrentSessionQuery{reader: reader}
}

func (q *CurrentSessionQuery) Query(_ context.Context, _ CurrentSessionMessage) (SessionView, error) {
	if q == nil || q.reader == nil {
		return SessionView{}, queryDependencyError("query: session reader is required")
	}
	sess, ok := q.reader.Current()
	return SessionView{Session: sess, Present: ok}, nil
}

type WindowQuery struct {
	reader WindowReader
}

func NewWindowQuery(reader WindowReader) *WindowQuery {
	return &WindowQuery{reader: reader}
}

func (q *WindowQuery) Query(_ context.Context, _ WindowMessage) (pagination.Snapshot, error) {
	if q == nil || q.reader == nil {
		return pagination.Snapshot{}, queryDependencyError("query: window reader is required")
	}
	window, state := q.reader.Window()
	return pagination.Snapshot{Window: window, State: state}, nil
}

type GetRedirectQuery struct {
	reader WindowReader
}

func NewGetRedirectQuery(reader WindowReader) *GetRedirectQuery {
	return &GetRedirectQuery{reader: reader}
}

func (q *GetRedirectQuery) Query(_ context.Context, msg GetRedirectMessage) (core.Redirect, error) {
	if q == nil || q.reader == nil {
		return core.Redirect{}, queryDependencyError("query: window reader is required")
	}
	id := strings.TrimSpace(msg.ID)
	window, _ := q.reader.Window()
	index := window.IndexOf(id)
	if index < 0 {
		return core.Redirect{}, queryNotFoundError(id)
	}
	return window.Items[index], nil
}

type LoginURLQuery struct {
	builder LoginURLBuilder
}

func NewLoginURLQuery(builder LoginURLBuilder) *LoginURLQuery {
	return &LoginURLQuery{builder: builder}
}

func (q *LoginURLQuery) Query(_ context.Context, _ LoginURLMessage) (string, error) {
	if q == nil || q.builder == nil {
		return "", queryDependencyError("query: login url builder is required")
	}
	return q.builder.LoginURL()
}
