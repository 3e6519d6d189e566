package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/haulage/internal/client/bootstrap"
	"github.com/dmitrijs2005/haulage/internal/client/models"
)

func (a *App) Status(context.Context) error {
	s := a.state.Snapshot()
	fmt.Fprintf(a.out, "phase:    %s\n", s.Phase)
	fmt.Fprintf(a.out, "state:    %s\n", describe(s))
	if s.Session != nil {
		fmt.Fprintf(a.out, "expires:  %s\n", s.Session.ExpiresAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func (a *App) Refresh(ctx context.Context) error {
	if !a.isLoggedIn() {
		return bootstrap.ErrNotSignedIn
	}
	s := a.state.Refresh(ctx)
	fmt.Fprintln(a.out, describe(s))
	return nil
}

// Complete prompts for first and last name and stores them as the
// completed profile.
func (a *App) Complete(ctx context.Context) error {
	if !a.isLoggedIn() {
		return bootstrap.ErrNotSignedIn
	}

	first, err := getSimpleText(a.reader, "First name", a.out)
	if err != nil {
		return err
	}
	last, err := getSimpleText(a.reader, "Last name", a.out)
	if err != nil {
		return err
	}

	if err := a.state.CompleteProfile(ctx, models.ProfileInput{FirstName: first, LastName: last}); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Profile saved")
	return nil
}

func (a *App) Focus(ctx context.Context) error {
	a.state.NotifyFocus(ctx)
	return nil
}

// Exit leaves the reload flag behind when session recovery is enabled, so
// the next run may restore the session even if the persisted one is lost.
func (a *App) Exit(ctx context.Context) error {
	if a.config == nil || !a.config.ReloadRecovery {
		return nil
	}
	return a.state.PrepareReload(ctx)
}
