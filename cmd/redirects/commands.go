package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"os/exec"
	"runtime"
	"strings"
	"text/tabwriter"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-redirects/adapters/gologger"
	"github.com/goliatone/go-redirects/callback"
	redirectscommand "github.com/goliatone/go-redirects/command"
	"github.com/goliatone/go-redirects/core"
	"github.com/goliatone/go-redirects/pagination"
	redirectsquery "github.com/goliatone/go-redirects/query"
	"github.com/spf13/cobra"
)

// openBrowser is replaced in tests.
var openBrowser = func(target string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", target)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", target)
	default:
		cmd = exec.Command("xdg-open", target)
	}
	return cmd.Start()
}

func rootCmd(out io.Writer, errOut io.Writer) *cobra.Command {
	var flags globalFlags

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Manage short link redirects",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	pf := cmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "Config file path (YAML)")
	pf.StringVar(&flags.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	pf.StringVar(&flags.apiURL, "api-url", "", "Redirect service base URL")
	pf.StringVar(&flags.backend, "session", "", "Session backend (memory, file, sql)")
	pf.StringVar(&flags.sessionPath, "session-path", "", "Session file for the file backend")
	pf.StringVar(&flags.dsn, "dsn", "", "Database DSN for the sql backend")
	pf.StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	withApp := func(run func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
		return func(c *cobra.Command, args []string) error {
			ctx := c.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			a, err := newApp(ctx, flags, c.OutOrStdout(), c.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			defer a.Close()
			a.in = c.InOrStdin()
			return run(ctx, a, args)
		}
	}

	cmd.AddCommand(
		loginCmd(withApp),
		&cobra.Command{
			Use:   "logout",
			Short: "Forget the stored credential",
			Args:  cobra.NoArgs,
			RunE:  withApp(runLogout),
		},
		&cobra.Command{
			Use:   "whoami",
			Short: "Show the signed in identity",
			Args:  cobra.NoArgs,
			RunE:  withApp(runWhoami),
		},
		listCmd(withApp),
		&cobra.Command{
			Use:   "add KEY TARGET",
			Short: "Create a redirect",
			Args:  cobra.ExactArgs(2),
			RunE:  withApp(runAdd),
		},
		&cobra.Command{
			Use:   "edit ID KEY TARGET",
			Short: "Change the key and target of a redirect",
			Args:  cobra.ExactArgs(3),
			RunE:  withApp(runEdit),
		},
		rmCmd(withApp),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(c *cobra.Command, _ []string) {
				fmt.Fprintf(c.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)
	return cmd
}

type appRunner func(run func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error

func loginCmd(withApp appRunner) *cobra.Command {
	var noBrowser bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in through the identity provider",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			return runLogin(ctx, a, noBrowser)
		}),
	}
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Print the login URL instead of opening a browser")
	return cmd
}

func runLogin(ctx context.Context, a *app, noBrowser bool) error {
	loginURL, err := a.facade.Queries().LoginURL.Query(ctx, redirectsquery.LoginURLMessage{})
	if err != nil {
		return err
	}
	redirectURI, err := url.Parse(a.cfg.SSO.RedirectURI)
	if err != nil || redirectURI.Host == "" {
		return fmt.Errorf("sso.redirect_uri must be an absolute local url")
	}
	ln, err := net.Listen("tcp", redirectURI.Host)
	if err != nil {
		return fmt.Errorf("callback listener: %w", err)
	}
	path := redirectURI.Path
	if strings.TrimSpace(path) == "" {
		path = a.cfg.SSO.CallbackPath
	}
	listener := callback.NewListener(a.service,
		callback.WithPath(path),
		callback.WithLogger(gologger.NewSlogLogger(a.logger.With("logger", "redirects.callback"))),
	)

	fmt.Fprintf(a.out, "Open this URL to sign in:\n  %s\n", loginURL)
	if !noBrowser {
		if err := openBrowser(loginURL); err != nil {
			a.logger.Debug("browser launch failed", "error", err)
		}
	}
	sess, err := listener.Serve(ctx, ln)
	if err != nil {
		return a.handle(ctx, err)
	}
	fmt.Fprintf(a.out, "Signed in as %s\n", sess.Identity.Email)
	return nil
}

func runLogout(ctx context.Context, a *app, _ []string) error {
	if err := a.facade.Commands().Logout.Execute(ctx, redirectscommand.LogoutMessage{}); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Signed out")
	return nil
}

func runWhoami(ctx context.Context, a *app, _ []string) error {
	if _, err := a.signedIn(ctx); err != nil {
		return err
	}
	view, err := a.facade.Queries().CurrentSession.Query(ctx, redirectsquery.CurrentSessionMessage{})
	if err != nil {
		return err
	}
	if !view.Present {
		return errNotSignedIn
	}
	fmt.Fprintln(a.out, view.Session.Identity.Email)
	return nil
}

func listCmd(withApp appRunner) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List redirects",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			return runList(ctx, a, all)
		}),
	}
	cmd.Flags().BoolVar(&all, "all", false, "Keep loading pages until the list is exhausted")
	return cmd
}

func runList(ctx context.Context, a *app, all bool) error {
	if _, err := a.signedIn(ctx); err != nil {
		return err
	}
	for all {
		result := gocmd.NewResult[pagination.LoadResult]()
		if err := a.facade.Commands().LoadMore.Execute(
			gocmd.ContextWithResult(ctx, result),
			redirectscommand.LoadMoreMessage{},
		); err != nil {
			return a.handle(ctx, err)
		}
		loaded, _ := result.Load()
		if loaded.Outcome != pagination.OutcomeAppended {
			break
		}
	}
	snapshot, err := a.facade.Queries().Window.Query(ctx, redirectsquery.WindowMessage{})
	if err != nil {
		return err
	}
	printWindow(a.out, snapshot, a.service.ShortURL)
	return nil
}

func printWindow(out io.Writer, snapshot pagination.Snapshot, shortURL func(core.Redirect) string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSHORT URL\tTARGET")
	if snapshot.Window != nil {
		for _, record := range snapshot.Window.Items {
			fmt.Fprintf(w, "%s\t%s\t%s\n", record.ID, shortURL(record), formatTarget(record.Target))
		}
	}
	_ = w.Flush()
	if snapshot.State == pagination.StateLoaded {
		fmt.Fprintln(out, "More redirects available, use --all to load them.")
	}
}

func runAdd(ctx context.Context, a *app, args []string) error {
	if _, err := a.signedIn(ctx); err != nil {
		return err
	}
	result := gocmd.NewResult[core.Redirect]()
	if err := a.facade.Commands().CreateRedirect.Execute(
		gocmd.ContextWithResult(ctx, result),
		redirectscommand.CreateRedirectMessage{Key: args[0], Target: args[1]},
	); err != nil {
		return a.handle(ctx, err)
	}
	created, _ := result.Load()
	fmt.Fprintf(a.out, "Created %s -> %s\n", a.service.ShortURL(created), created.Target)
	return nil
}

func runEdit(ctx context.Context, a *app, args []string) error {
	if _, err := a.signedIn(ctx); err != nil {
		return err
	}
	msg := redirectscommand.UpdateRedirectMessage{ID: args[0], Key: args[1], Target: args[2]}
	if err := a.facade.Commands().UpdateRedirect.Execute(ctx, msg); err != nil {
		return a.handle(ctx, err)
	}
	fmt.Fprintf(a.out, "Updated %s\n", msg.ID)
	return nil
}

func rmCmd(withApp appRunner) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "rm ID",
		Short: "Delete a redirect",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			return runRemove(ctx, a, args[0], yes)
		}),
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func runRemove(ctx context.Context, a *app, id string, yes bool) error {
	if _, err := a.signedIn(ctx); err != nil {
		return err
	}
	if !yes {
		prompt := fmt.Sprintf("Delete %s?", id)
		if record, err := a.facade.Queries().GetRedirect.Query(ctx, redirectsquery.GetRedirectMessage{ID: id}); err == nil {
			prompt = fmt.Sprintf("Delete %s -> %s?", a.service.ShortURL(record), formatTarget(record.Target))
		}
		fmt.Fprintf(a.out, "%s [y/N] ", prompt)
		answer, _ := bufio.NewReader(a.in).ReadString('\n')
		if !strings.EqualFold(strings.TrimSpace(answer), "y") {
			fmt.Fprintln(a.out, "Cancelled")
			return nil
		}
	}
	if err := a.facade.Commands().DeleteRedirect.Execute(ctx, redirectscommand.DeleteRedirectMessage{ID: id}); err != nil {
		return a.handle(ctx, err)
	}
	fmt.Fprintf(a.out, "Deleted %s\n", id)
	return nil
}
