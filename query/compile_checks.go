package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-redirects/core"
	"github.com/goliatone/go-redirects/pagination"
)

var (
	_ gocmd.Querier[CurrentSessionMessage, SessionView] = (*CurrentSessionQuery)(nil)
	_ gocmd.Querier[WindowMessage, pagination.Snapshot] = (*WindowQuery)(nil)
	_ gocmd.Querier[GetRedirectMessage, core.Redirect]  = (*GetRedirectQuery)(nil)
	_ gocmd.Querier[LoginURLMessage, string]            = (*LoginURLQuery)(nil)
)
