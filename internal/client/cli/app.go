package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/haulage/internal/client/bootstrap"
	"github.com/dmitrijs2005/haulage/internal/client/config"
	"github.com/dmitrijs2005/haulage/internal/client/identity"
	"github.com/dmitrijs2005/haulage/internal/client/localstore"
	"github.com/dmitrijs2005/haulage/internal/client/models"
	"github.com/dmitrijs2005/haulage/internal/client/profiles"
	"github.com/dmitrijs2005/haulage/internal/filex"
	"github.com/dmitrijs2005/haulage/internal/logging"
)

// authState is the part of the bootstrapper the CLI drives.
// *bootstrap.Bootstrapper satisfies it; tests provide a stub.
type authState interface {
	Start(ctx context.Context)
	Close()
	Snapshot() bootstrap.Snapshot
	Subscribe(fn func(bootstrap.Snapshot)) (unsubscribe func())
	Refresh(ctx context.Context) bootstrap.Snapshot
	CompleteProfile(ctx context.Context, in models.ProfileInput) error
	SignIn(ctx context.Context, email, password string) (*models.Session, error)
	SignUp(ctx context.Context, email, password string) (*models.Session, error)
	SignOut(ctx context.Context) error
	NotifyFocus(ctx context.Context)
	PrepareReload(ctx context.Context) error
}

type App struct {
	config  *config.Config
	log     logging.Logger
	state   authState
	reader  *bufio.Reader
	out     io.Writer
	closers []func() error
}

// NewApp opens the local store, builds the adapters selected by c and an
// idle bootstrapper. Nothing talks to the backend until Run.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	log, err := logging.New(os.Stderr, c.LogFormat, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	path, err := filex.EnsureParentDir(c.LocalDBPath)
	if err != nil {
		return nil, err
	}
	local, err := localstore.Open(ctx, path)
	if err != nil {
		log.Error(ctx, "error opening local store", "path", c.LocalDBPath, "error", err)
		return nil, err
	}
	app := &App{
		config:  c,
		log:     log,
		reader:  bufio.NewReader(os.Stdin),
		out:     os.Stdout,
		closers: []func() error{local.Close},
	}

	auth := identity.NewGoTrueClient(c.BackendURL, c.AnonKey, local, identity.WithStorageKey(localstore.SessionKey))

	var store profiles.Store
	if c.DatabaseDSN != "" {
		db, err := profiles.OpenPostgres(ctx, c.DatabaseDSN)
		if err != nil {
			app.close()
			log.Error(ctx, "error connecting to profile database", "error", err)
			return nil, err
		}
		app.closers = append(app.closers, db.Close)
		store = profiles.NewPostgresStore(db)
		log.Info(ctx, "profiles served by postgres")
	} else {
		store = profiles.NewRESTStore(c.BackendURL, c.AnonKey, auth)
	}

	app.state = bootstrap.New(bootstrap.Deps{
		Identity: auth,
		Profiles: store,
		Local:    local,
		Logger:   log,
	}, bootstrap.OptionsFromConfig(c))

	return app, nil
}

// Run starts the bootstrapper, prints every published snapshot and blocks in
// the REPL until the user leaves or stdin closes.
func (a *App) Run(ctx context.Context) {
	defer a.close()

	unsubscribe := a.state.Subscribe(a.printSnapshot)
	defer unsubscribe()

	a.state.Start(ctx)
	defer a.state.Close()

	fmt.Fprintln(a.out, "haulage client (type 'help' for commands)")
	runREPL(ctx, a, a.getStatus, bufio.NewScanner(a.reader))
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn(context.Background(), "close failed", "error", err)
		}
	}
	a.closers = nil
}

func (a *App) isLoggedIn() bool {
	return a.state.Snapshot().User != nil
}

func (a *App) printSnapshot(s bootstrap.Snapshot) {
	fmt.Fprintf(a.out, "[%s] %s\n", s.Phase, describe(s))
}
