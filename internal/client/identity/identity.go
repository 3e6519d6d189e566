// Package identity talks to the backend identity service (a GoTrue-compatible
// auth API).
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic contract (see Service) covering session lookup,
//     sign-in/sign-up/sign-out, forced refresh, session reconstruction from
//     raw tokens and auth state change notifications.
//  2. A concrete HTTP implementation (see GoTrueClient) that persists the
//     session into device storage, refreshes expired access tokens and maps
//     HTTP failures to sentinel errors.
//
// # Error Handling
//
// Callers match errors with errors.Is: ErrUnauthorized, ErrUnavailable,
// ErrNoSession. Anything else is an *APIError.
//
// # Concurrency
//
// GoTrueClient is safe for concurrent use. Listeners are invoked
// synchronously, outside internal locks, in registration order.
package identity

import (
	"context"

	"github.com/dmitrijs2005/haulage/internal/client/models"
)

// Event is an auth state change reported to listeners.
type Event string

const (
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
	EventUserUpdated    Event = "USER_UPDATED"
)

// Listener receives auth events. session is nil for EventSignedOut.
type Listener func(event Event, session *models.Session)

// Service is the identity contract consumed by the bootstrapper.
//
// GetSession returns (nil, nil) when nobody is signed in. SignUp may return
// a nil session when the backend requires e-mail confirmation.
type Service interface {
	GetSession(ctx context.Context) (*models.Session, error)
	SignIn(ctx context.Context, email, password string) (*models.Session, error)
	SignUp(ctx context.Context, email, password string) (*models.Session, error)
	SignOut(ctx context.Context) error
	RefreshSession(ctx context.Context) (*models.Session, error)
	SetSession(ctx context.Context, accessToken, refreshToken string) (*models.Session, error)
	Subscribe(l Listener) (unsubscribe func())
}

// Storage is where the session survives process restarts.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
