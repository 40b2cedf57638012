package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-redirects/core"
	"github.com/goliatone/go-redirects/mutation"
	"github.com/goliatone/go-redirects/pagination"
)

type SessionService interface {
	CompleteLogin(ctx context.Context, code string) (core.Session, error)
	Logout(ctx context.Context) error
}

type WindowService interface {
	Reload(ctx context.Context) (pagination.LoadResult, error)
	LoadMore(ctx context.Context) (pagination.LoadResult, error)
}

type RedirectService interface {
	CreateRedirect(ctx context.Context, key string, target string) (core.Redirect, error)
	UpdateRedirect(ctx context.Context, id string, key string, target string) (mutation.UpdateResult, error)
	DeleteRedirect(ctx context.Context, id string) error
}

type MutatingService interface {
	SessionService
	WindowService
	RedirectService
}

type CompleteLoginCommand struct {
	service SessionService
}

func NewCompleteLoginCommand(service SessionService) *CompleteLoginCommand {
	return &CompleteLoginCommand{service: service}
}

func (c *CompleteLoginCommand) Execute(ctx context.Context, msg CompleteLoginMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	out, err := c.service.CompleteLogin(ctx, msg.Code)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type LogoutCommand struct {
	service SessionService
}

func NewLogoutCommand(service SessionService) *LogoutCommand {
	return &LogoutCommand{service: service}
}

func (c *LogoutCommand) Execute(ctx context.Context, _ LogoutMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	return c.service.Logout(ctx)
}

type ReloadCommand struct {
	service WindowService
}

func NewReloadCommand(service WindowService) *ReloadCommand {
	return &ReloadCommand{service: service}
}

func (c *ReloadCommand) Execute(ctx context.Context, _ ReloadMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: window service is required")
	}
	out, err := c.service.Reload(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type LoadMoreCommand struct {
	service WindowService
}

func NewLoadMoreCommand(service WindowService) *LoadMoreCommand {
	return &LoadMoreCommand{service: service}
}

func (c *LoadMoreCommand) Execute(ctx context.Context, _ LoadMoreMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: window service is required")
	}
	out, err := c.service.LoadMore(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CreateRedirectCommand struct {
	service RedirectService
}

func NewCreateRedirectCommand(service RedirectService) *CreateRedirectCommand {
	return &CreateRedirectCommand{service: service}
}

func (c *CreateRedirectCommand) Execute(ctx context.Context, msg CreateRedirectMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: redirect service is required")
	}
	out, err := c.service.CreateRedirect(ctx, msg.Key, msg.Target)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UpdateRedirectCommand struct {
	service RedirectService
}

func NewUpdateRedirectCommand(service RedirectService) *UpdateRedirectCommand {
	return &UpdateRedirectCommand{service: service}
}

func (c *UpdateRedirectCommand) Execute(ctx context.Context, msg UpdateRedirectMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: redirect service is required")
	}
	out, err := c.service.UpdateRedirect(ctx, msg.ID, msg.Key, msg.Target)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DeleteRedirectCommand struct {
	service RedirectService
}

func NewDeleteRedirectCommand(service RedirectService) *DeleteRedirectCommand {
	return &DeleteRedirectCommand{service: service}
}

func (c *DeleteRedirectCommand) Execute(ctx context.Context, msg DeleteRedirectMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: redirect service is required")
	}
	return c.service.DeleteRedirect(ctx, msg.ID)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
