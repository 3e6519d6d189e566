package bootstrap

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dmitrijs2005/haulage/internal/client/models"
	"github.com/dmitrijs2005/haulage/internal/client/profiles"
)

func (b *Bootstrapper) boot(ctx context.Context, gen uint64) {
	b.setPhase(gen, PhaseAcquiringSession)

	s := b.acquireSession(ctx, gen)
	if s == nil {
		b.log.Info(ctx, "no session, signed out")
		b.update(gen, func(st *Snapshot) bool {
			st.Session, st.User, st.Profile, st.Role = nil, nil, nil, ""
			readyLocked(st)
			return true
		})
		return
	}

	if !b.adoptSession(ctx, gen, s) {
		return
	}
	b.loadProfile(ctx, gen, s.UserID())
}

// finishBoot replays an auth event that arrived while booting, if it
// concerns a user other than the one boot settled on.
func (b *Bootstrapper) finishBoot(ctx context.Context) {
	b.mu.Lock()
	b.booting = false
	p := b.pending
	b.pending = nil
	replay := p != nil && !b.closed && p.session.UserID() != b.handledUser
	b.mu.Unlock()

	if replay {
		b.handleAuth(ctx, p.event, p.session)
	}
}

func (b *Bootstrapper) acquireSession(ctx context.Context, gen uint64) *models.Session {
	reloading := b.consumeReloading(ctx)

	s, err := withTimeout(ctx, b.opts.SessionTimeout, b.identity.GetSession)
	if err != nil {
		b.log.Warn(ctx, "session lookup failed", "error", err)
	}
	if s != nil || !reloading {
		return s
	}

	b.setPhase(gen, PhaseSessionRecovery)
	return b.recoverSession(ctx)
}

// consumeReloading clears the reload flag on every boot with recovery
// enabled and reports whether it was set.
func (b *Bootstrapper) consumeReloading(ctx context.Context) bool {
	if !b.opts.ReloadRecovery {
		return false
	}
	reloading, err := b.local.ConsumeReloading(ctx)
	if err != nil {
		b.log.Warn(ctx, "failed to read reload flag", "error", err)
		return false
	}
	return reloading
}

// recoverSession tries a forced refresh, then the raw persisted tokens.
// Every failure means "signed out".
func (b *Bootstrapper) recoverSession(ctx context.Context) *models.Session {
	last, err := b.local.LastUserID(ctx)
	if err != nil {
		b.log.Warn(ctx, "failed to read last user id", "error", err)
	}
	log := b.log.With("last_user_id", last)

	s, err := withTimeout(ctx, b.opts.SessionTimeout, b.identity.RefreshSession)
	if err == nil && s != nil {
		log.Info(ctx, "session recovered by refresh", "user_id", s.UserID())
		return s
	}
	log.Debug(ctx, "refresh during recovery failed", "error", err)

	raw, err := b.local.RawToken(ctx)
	if err != nil {
		log.Warn(ctx, "failed to read raw token", "error", err)
		return nil
	}
	if raw == nil {
		return nil
	}

	var tok struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(raw, &tok); err != nil || tok.AccessToken == "" {
		log.Warn(ctx, "raw token unusable", "error", err)
		return nil
	}

	s, err = withTimeout(ctx, b.opts.SessionTimeout, func(ctx context.Context) (*models.Session, error) {
		return b.identity.SetSession(ctx, tok.AccessToken, tok.RefreshToken)
	})
	if err != nil || s == nil {
		log.Warn(ctx, "session recovery failed", "error", err)
		return nil
	}
	if last != "" && s.UserID() != last {
		log.Warn(ctx, "recovered session belongs to another user", "user_id", s.UserID())
	}
	log.Info(ctx, "session recovered from raw token", "user_id", s.UserID())
	return s
}

// adoptSession stores s as the current session and remembers its user for
// later recovery.
func (b *Bootstrapper) adoptSession(ctx context.Context, gen uint64, s *models.Session) bool {
	ok := b.update(gen, func(st *Snapshot) bool {
		c := *s
		u := s.User
		st.Session = &c
		st.User = &u
		if st.Profile != nil && st.Profile.ID != u.ID {
			st.Profile = nil
		}
		b.handledUser = u.ID
		return true
	})
	if !ok {
		return false
	}
	if _, err := b.persist(ctx, gen, func(ctx context.Context) error {
		return b.local.SetLastUserID(ctx, s.UserID())
	}); err != nil {
		b.log.Warn(ctx, "failed to store last user id", "error", err)
	}
	return true
}

// loadProfile runs the fast path when the device already knows the profile
// is complete, the normal fetch otherwise.
func (b *Bootstrapper) loadProfile(ctx context.Context, gen uint64, userID string) {
	marker, err := b.local.CompletionMarker(ctx, userID)
	if err != nil {
		b.log.Warn(ctx, "failed to read completion marker", "user_id", userID, "error", err)
	}

	if marker {
		placeholder := &models.Profile{ID: userID, Completed: models.Ptr(true), Role: models.RoleUser}
		ok := b.update(gen, func(st *Snapshot) bool {
			if st.UserID() != userID {
				return false
			}
			b.marker = true
			st.Profile = placeholder
			st.Role = roleOf(placeholder)
			readyLocked(st)
			return true
		})
		if ok {
			b.log.Info(ctx, "profile complete per device marker", "user_id", userID)
			b.spawn(func(ctx context.Context) { b.refresh(ctx, gen, true) })
		}
		return
	}

	b.setPhase(gen, PhaseFetchingProfile)
	if err := b.guard.Acquire(ctx, 1); err != nil {
		return
	}
	defer b.guard.Release(1)

	p, _ := b.fetchProfile(ctx, gen, userID, true)
	b.commitProfile(ctx, gen, userID, p, true)
}

// fetchProfile reads the profile of userID. ok is false when the read
// failed and the result says nothing about the row.
func (b *Bootstrapper) fetchProfile(ctx context.Context, gen uint64, userID string, visible bool) (p *models.Profile, ok bool) {
	get := func(columns []string) (*models.Profile, error) {
		return withTimeout(ctx, b.opts.ProfileTimeout, func(ctx context.Context) (*models.Profile, error) {
			return b.profiles.Get(ctx, userID, columns)
		})
	}

	p, err := get(profiles.FullColumns)
	switch {
	case err == nil:
		return p, true
	case errors.Is(err, profiles.ErrNotFound):
		b.log.Info(ctx, "no profile yet", "user_id", userID)
		return nil, true
	case profiles.IsSchemaMismatch(err):
		b.log.Warn(ctx, "profile schema is behind, retrying with base columns", "user_id", userID, "error", err)
	default:
		b.log.Warn(ctx, "profile fetch failed", "user_id", userID, "error", err)
		return nil, false
	}

	if visible {
		b.setPhase(gen, PhaseProfileFallback)
	}
	p, err = get(profiles.BaseColumns)
	switch {
	case err == nil:
		p.Completed = models.Ptr(p.FirstName != nil && p.LastName != nil)
		return p, true
	case errors.Is(err, profiles.ErrNotFound):
		return nil, true
	default:
		b.log.Warn(ctx, "fallback profile fetch failed", "user_id", userID, "error", err)
		return nil, false
	}
}

// commitProfile publishes a fetch result and writes the completion marker
// the first time the profile is seen complete. A failed refresh keeps the
// profile already held; a failed boot fetch leaves none.
func (b *Bootstrapper) commitProfile(ctx context.Context, gen uint64, userID string, p *models.Profile, ok bool) {
	var writeMarker bool
	committed := b.update(gen, func(st *Snapshot) bool {
		if st.UserID() != userID {
			return false
		}
		if !ok && st.Phase == PhaseReady {
			return false
		}
		st.Profile = p
		st.Role = roleOf(p)
		writeMarker = !b.marker && (p.IsCompleted() || p.HasNames())
		readyLocked(st)
		return true
	})
	if !committed || !writeMarker {
		return
	}

	wrote, err := b.persist(ctx, gen, func(ctx context.Context) error {
		return b.local.SetCompletionMarker(ctx, userID)
	})
	if err != nil {
		b.log.Warn(ctx, "failed to store completion marker", "user_id", userID, "error", err)
		return
	}
	if wrote {
		b.mu.Lock()
		if gen == b.gen {
			b.marker = true
		}
		b.mu.Unlock()
	}
}

// refresh re-fetches the current user's profile under the guard. With wait
// unset a fetch already in flight makes it a no-op.
func (b *Bootstrapper) refresh(ctx context.Context, gen uint64, wait bool) bool {
	userID := b.Snapshot().UserID()
	if userID == "" {
		return false
	}

	if wait {
		if err := b.guard.Acquire(ctx, 1); err != nil {
			return false
		}
	} else if !b.guard.TryAcquire(1) {
		b.log.Debug(ctx, "refresh dropped, fetch in flight", "user_id", userID)
		return false
	}
	defer b.guard.Release(1)

	p, ok := b.fetchProfile(ctx, gen, userID, false)
	b.commitProfile(ctx, gen, userID, p, ok)
	return true
}
