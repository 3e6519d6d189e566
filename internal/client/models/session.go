// Package models defines client-side data models shared by the identity
// adapter, the profile store and the bootstrapper.
package models

import "time"

// User is the authenticated identity attached to a Session.
type User struct {
	// ID is the backend user identifier (UUID string).
	ID string `json:"id"`

	// Email is the sign-in address, if the provider exposes one.
	Email string `json:"email"`
}

// Session is the credential bundle issued by the identity service.
// Tokens are opaque to everything except the identity adapter.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`

	// ExpiresAt is the access token expiry in UTC. Zero means unknown.
	ExpiresAt time.Time `json:"expires_at"`

	User User `json:"user"`
}

// Expired reports whether the access token is past its expiry, allowing for
// the given clock skew margin. A session with unknown expiry never expires.
func (s *Session) Expired(now time.Time, margin time.Duration) bool {
	if s == nil {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(margin).Before(s.ExpiresAt)
}

// UserID returns the subject of s, or "" for a nil session.
func (s *Session) UserID() string {
	if s == nil {
		return ""
	}
	return s.User.ID
}
