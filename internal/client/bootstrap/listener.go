package bootstrap

import (
	"context"

	"github.com/dmitrijs2005/haulage/internal/client/identity"
	"github.com/dmitrijs2005/haulage/internal/client/models"
)

// onAuthEvent is the identity listener. It runs on the identity caller's
// goroutine, so anything slow is handed to spawn.
func (b *Bootstrapper) onAuthEvent(event identity.Event, s *models.Session) {
	if event == identity.EventSignedOut || s == nil {
		b.signOut()
		return
	}

	b.mu.Lock()
	if b.closed || !b.started {
		b.mu.Unlock()
		return
	}
	ctx := b.ctx

	if b.booting {
		// boot is reading the same identity service; settle afterwards
		b.pending = &authEvent{event: event, session: s}
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	b.handleAuth(ctx, event, s)
}

// handleAuth re-runs the pipeline for s unless the event is redundant.
func (b *Bootstrapper) handleAuth(ctx context.Context, event identity.Event, s *models.Session) {
	userID := s.UserID()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	same := userID == b.handledUser
	focused := !b.lastFocus.IsZero() && b.now().Sub(b.lastFocus) < b.opts.FocusDebounce
	if same && (focused || b.state.IsProfileComplete) {
		snap, swapped := b.swapSessionLocked(s)
		b.mu.Unlock()
		b.log.Debug(ctx, "auth event ignored", "event", string(event), "user_id", userID, "focused", focused, "session_updated", swapped)
		if swapped {
			b.publish(snap)
		}
		return
	}
	if !same {
		b.gen++
		b.handledUser = userID
		b.marker = false
		b.assume = false
	}
	gen := b.gen
	b.mu.Unlock()

	b.log.Info(ctx, "auth event", "event", string(event), "user_id", userID, "new_user", !same)

	b.spawn(func(ctx context.Context) {
		if !b.adoptSession(ctx, gen, s) {
			return
		}
		if same {
			b.refresh(ctx, gen, false)
			return
		}
		b.loadProfile(ctx, gen, userID)
	})
}

// swapSessionLocked takes the tokens and user record of s without a
// profile fetch.
func (b *Bootstrapper) swapSessionLocked(s *models.Session) (Snapshot, bool) {
	st := &b.state
	if st.Session != nil && st.User != nil &&
		st.Session.AccessToken == s.AccessToken &&
		st.Session.RefreshToken == s.RefreshToken &&
		st.Session.ExpiresAt.Equal(s.ExpiresAt) &&
		*st.User == s.User {
		return Snapshot{}, false
	}
	c := *s
	u := s.User
	st.Session = &c
	st.User = &u
	return b.commitLocked(), true
}

// signOut clears the identity and forgets the departing user on the device.
// In-flight work of the old generation is ignored from here on.
func (b *Bootstrapper) signOut() {
	b.localMu.Lock()

	b.mu.Lock()
	if b.closed || !b.started {
		b.mu.Unlock()
		b.localMu.Unlock()
		return
	}
	ctx := b.ctx
	prev := b.handledUser
	b.gen++
	b.handledUser = ""
	b.marker = false
	b.assume = false
	b.pending = nil

	st := &b.state
	st.Session, st.User, st.Profile, st.Role = nil, nil, nil, ""
	readyLocked(st)
	snap := b.commitLocked()
	b.mu.Unlock()

	err := b.local.ForgetUser(ctx, prev)
	b.localMu.Unlock()
	if err != nil {
		b.log.Warn(ctx, "failed to forget user", "user_id", prev, "error", err)
	}

	b.log.Info(ctx, "signed out", "user_id", prev)
	b.publish(snap)
}

// NotifyFocus records a focus or visibility change. Auth events for the
// current user that follow within FocusDebounce are ignored. With
// FocusRefresh set it also triggers a guarded refresh.
func (b *Bootstrapper) NotifyFocus(ctx context.Context) {
	b.mu.Lock()
	b.lastFocus = b.now()
	gen := b.gen
	b.mu.Unlock()

	if !b.opts.FocusRefresh {
		return
	}
	b.log.Debug(ctx, "focus refresh")
	b.spawn(func(ctx context.Context) { b.refresh(ctx, gen, false) })
}
