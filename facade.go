package redirects

import (
	"fmt"

	redirectscommand "github.com/goliatone/go-redirects/command"
	redirectsquery "github.com/goliatone/go-redirects/query"
)

type CommandQueryService interface {
	redirectscommand.MutatingService
	redirectsquery.SessionReader
	redirectsquery.WindowReader
	redirectsquery.LoginURLBuilder
}

type Commands struct {
	CompleteLogin  *redirectscommand.CompleteLoginCommand
	Logout         *redirectscommand.LogoutCommand
	Reload         *redirectscommand.ReloadCommand
	LoadMore       *redirectscommand.LoadMoreCommand
	CreateRedirect *redirectscommand.CreateRedirectCommand
	UpdateRedirect *redirectscommand.UpdateRedirectCommand
	DeleteRedirect *redirectscommand.DeleteRedirectCommand
}

type Queries struct {
	CurrentSession *redirectsquery.CurrentSessionQuery
	Window         *redirectsquery.WindowQuery
	GetRedirect    *redirectsquery.GetRedirectQuery
	LoginURL       *redirectsquery.LoginURLQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("redirects: command/query service is required")
	}
	facade := &Facade{service: service}
	facade.commands = Commands{
		CompleteLogin:  redirectscommand.NewCompleteLoginCommand(service),
		Logout:         redirectscommand.NewLogoutCommand(service),
		Reload:         redirectscommand.NewReloadCommand(service),
		LoadMore:       redirectscommand.NewLoadMoreCommand(service),
		CreateRedirect: redirectscommand.NewCreateRedirectCommand(service),
		UpdateRedirect: redirectscommand.NewUpdateRedirectCommand(service),
		DeleteRedirect: redirectscommand.NewDeleteRedirectCommand(service),
	}
	facade.queries = Queries{
		CurrentSession: redirectsquery.NewCurrentSessionQuery(service),
		Window:         redirectsquery.NewWindowQuery(service),
		GetRedirect:    redirectsquery.NewGetRedirectQuery(service),
		LoginURL:       redirectsquery.NewLoginURLQuery(service),
	}
	return facade, nil
}

// New builds a Service from cfg and wraps it in a Facade.
func New(cfg Config, opts ...Option) (*Facade, *Service, error) {
	service, err := NewService(cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	facade, err := NewFacade(service)
	if err != nil {
		return nil, nil, err
	}
	return facade, service, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

var _ CommandQueryService = (*Service)(nil)
