package bootstrap

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/haulage/internal/client/models"
	"github.com/dmitrijs2005/haulage/internal/client/profiles"
)

// Refresh re-fetches the current user's profile and returns the resulting
// state. A refresh already in flight makes the call return the current
// state unchanged. Fetch errors are logged, never returned.
func (b *Bootstrapper) Refresh(ctx context.Context) Snapshot {
	b.mu.Lock()
	gen, closed := b.gen, b.closed
	b.mu.Unlock()

	if !closed {
		b.refresh(ctx, gen, false)
	}
	return b.Snapshot()
}

// CompleteProfile stores the submitted names with completed set, then waits
// for a refresh. Backends without the completed column get the names only.
// Unlike boot, this is a user action: errors are returned.
func (b *Bootstrapper) CompleteProfile(ctx context.Context, in models.ProfileInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	in = in.Normalize()

	b.mu.Lock()
	userID, gen, closed := b.state.UserID(), b.gen, b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if userID == "" {
		return ErrNotSignedIn
	}

	p := &models.Profile{
		ID:        userID,
		FirstName: models.Ptr(in.FirstName),
		LastName:  models.Ptr(in.LastName),
		Completed: models.Ptr(true),
	}
	err := b.profiles.Upsert(ctx, p)
	if profiles.IsSchemaMismatch(err) {
		b.log.Warn(ctx, "profile schema is behind, storing names only", "user_id", userID, "error", err)
		p.Completed = nil
		err = b.profiles.Upsert(ctx, p)
	}
	if err != nil {
		return fmt.Errorf("complete profile: %w", err)
	}

	b.log.Info(ctx, "profile completed", "user_id", userID)
	b.refresh(ctx, gen, true)
	return nil
}

// SignIn signs in through the identity service. State follows through the
// auth event.
func (b *Bootstrapper) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	return b.identity.SignIn(ctx, email, password)
}

// SignUp registers through the identity service. A nil session means the
// backend wants the address confirmed first.
func (b *Bootstrapper) SignUp(ctx context.Context, email, password string) (*models.Session, error) {
	return b.identity.SignUp(ctx, email, password)
}

func (b *Bootstrapper) SignOut(ctx context.Context) error {
	return b.identity.SignOut(ctx)
}

// PrepareReload sets the device reload flag so the next boot may recover
// the session if it cannot be read normally.
func (b *Bootstrapper) PrepareReload(ctx context.Context) error {
	if err := b.local.SetReloading(ctx); err != nil {
		return fmt.Errorf("prepare reload: %w", err)
	}
	return nil
}
