package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[CompleteLoginMessage]  = (*CompleteLoginCommand)(nil)
	_ gocmd.Commander[LogoutMessage]         = (*LogoutCommand)(nil)
	_ gocmd.Commander[ReloadMessage]         = (*ReloadCommand)(nil)
	_ gocmd.Commander[LoadMoreMessage]       = (*LoadMoreCommand)(nil)
	_ gocmd.Commander[CreateRedirectMessage] = (*CreateRedirectCommand)(nil)
	_ gocmd.Commander[UpdateRedirectMessage] = (*UpdateRedirectCommand)(nil)
	_ gocmd.Commander[DeleteRedirectMessage] = (*DeleteRedirectCommand)(nil)
)
