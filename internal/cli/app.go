// Package cli implements authctl, an interactive client that drives the
// client auth store and the route guards against a running server.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/apiclient"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/auth/entity"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/config"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/guard"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/store"
)

type Options struct {
	Server    string
	Persister store.Persister
	Paths     config.Paths
	Logger    *zap.SugaredLogger
	In        io.Reader
	Out       io.Writer
}

type App struct {
	client *apiclient.Client
	store  *store.Store
	guards *guard.Guards
	logger *zap.SugaredLogger

	stdin    io.Reader
	in       *bufio.Scanner
	out      io.Writer
	location string
}

func NewApp(opts Options) (*App, error) {
	c, err := apiclient.New(opts.Server)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Paths.Login == "" {
		opts.Paths = config.DefaultPaths()
	}

	storeOpts := []store.Option{store.WithLogger(logger.Named("store"))}
	if opts.Persister != nil {
		storeOpts = append(storeOpts, store.WithPersister(opts.Persister))
	}
	return &App{
		client:   c,
		store:    store.New(c, storeOpts...),
		guards:   guard.New(opts.Paths, logger.Named("guard"), nil),
		logger:   logger,
		stdin:    opts.In,
		in:       bufio.NewScanner(opts.In),
		out:      opts.Out,
		location: opts.Paths.Home,
	}, nil
}

// Run restores any persisted snapshot and starts the REPL.
func (a *App) Run(ctx context.Context) {
	if err := a.store.Restore(ctx); err != nil {
		a.logger.Warnw("failed to restore auth snapshot", "err", err)
	}
	a.println("Welcome to authctl (type 'help' for commands)")
	runREPL(ctx, a, a.statusLine, a.in, a.out)
}

func (a *App) println(args ...any) { fmt.Fprintln(a.out, args...) }

func (a *App) isLoggedIn() bool { return a.store.Status().IsAuthenticated }

func (a *App) statusLine() string {
	s := a.store.Status()
	switch {
	case s.User != nil:
		return fmt.Sprintf("(%s %s)", s.User.Email, a.location)
	case s.IsAuthenticated:
		return fmt.Sprintf("(session %s)", a.location)
	default:
		return fmt.Sprintf("(anonymous %s)", a.location)
	}
}

func (a *App) Signup(ctx context.Context) error {
	name, err := a.prompt("Name")
	if err != nil {
		return err
	}
	email, err := a.prompt("Email")
	if err != nil {
		return err
	}
	pw, err := a.promptPassword()
	if err != nil {
		return err
	}
	res, err := a.client.Signup(ctx, entity.SignupRequest{Name: name, Email: email, Password: pw})
	if err != nil {
		return err
	}
	if !res.Success {
		return errors.New(res.Error)
	}
	// the server already set the cookie; sync the store with it
	a.store.UpdateAuthStatus(a.client.SessionToken())
	a.store.GetUser(ctx)
	a.println("Account created, signed in as", email)
	return nil
}

func (a *App) Login(ctx context.Context) error {
	email, err := a.prompt("Email")
	if err != nil {
		return err
	}
	pw, err := a.promptPassword()
	if err != nil {
		return err
	}
	if !a.store.Login(ctx, entity.Credentials{Email: email, Password: pw}) {
		return errors.New("login failed")
	}
	a.store.GetUser(ctx)
	a.println("Signed in as", email)
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	if !a.store.Logout(ctx) {
		return errors.New("logout failed")
	}
	a.println("Signed out")
	return nil
}

func (a *App) WhoAmI(ctx context.Context) error {
	if !a.store.GetUser(ctx) {
		a.println("Not signed in")
		return nil
	}
	u := a.store.Status().User
	a.println(fmt.Sprintf("%s <%s> id=%s", u.Name, u.Email, u.ID))
	return nil
}

func (a *App) Orders(ctx context.Context) error {
	list, err := a.client.Orders(ctx)
	if err != nil {
		return err
	}
	a.println(fmt.Sprintf("%d order(s)", list.Total))
	for _, o := range list.Orders {
		a.println(" -", o["$id"])
	}
	return nil
}

func (a *App) Refresh(ctx context.Context) error {
	sess, err := a.client.Refresh(ctx)
	if err != nil {
		return err
	}
	a.println("Session renewed until", sess.Expire)
	return nil
}

func (a *App) JWT(ctx context.Context) error {
	j, err := a.client.JWT(ctx)
	if err != nil {
		return err
	}
	a.println(j.JWT)
	a.println("expires", j.Expire)
	return nil
}

func (a *App) Status(context.Context) error {
	s := a.store.Status()
	name := "-"
	if s.User != nil {
		name = s.User.Name
	}
	a.println(fmt.Sprintf("authenticated=%t loading=%t user=%s stale=%t", s.IsAuthenticated, s.IsLoading, name, a.store.Stale()))
	return nil
}

// Go runs the route guards for a navigation to path, as a browser would.
func (a *App) Go(ctx context.Context, path string) error {
	nav := guard.Navigation{To: path, From: a.location}
	d := a.guards.Run(ctx, nav, a.store, a.client.SessionToken())
	if d.Allowed() {
		a.location = path
		a.println("allowed", path)
		return nil
	}
	a.location = d.Redirect
	a.println("redirected", path, "->", d.Redirect)
	return nil
}
