// Package identity models who the progress layer is working for.
//
// The authentication provider itself is a black box. The progress layer only
// consumes the Session it publishes: the current user (or none) and a loading
// flag while the provider is still resolving.
package identity

import (
	"context"
	"errors"
)

// Identity is either anonymous (device-local storage only) or an
// authenticated user with a stable opaque id.
type Identity struct {
	UserID string
}

// Anonymous returns the anonymous identity.
func Anonymous() Identity {
	return Identity{}
}

// Authenticated returns the identity of the given user.
func Authenticated(userID string) Identity {
	return Identity{UserID: userID}
}

// IsAnonymous reports whether no user is signed in.
func (i Identity) IsAnonymous() bool {
	return i.UserID == ""
}

// String returns "anonymous" or "user:<id>".
func (i Identity) String() string {
	if i.IsAnonymous() {
		return "anonymous"
	}
	return "user:" + i.UserID
}

// User is the signed-in account as exposed by the provider.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is the observable state of the provider.
type Session struct {
	User    *User `json:"user"`
	Loading bool  `json:"loading"`
}

// Identity converts the session into the identity the progress layer keys
// storage by.
func (s Session) Identity() Identity {
	if s.User == nil {
		return Anonymous()
	}
	return Authenticated(s.User.ID)
}

// Errors returned by providers.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountExists      = errors.New("account already exists")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
)

// Provider is the contract of the external authentication provider.
type Provider interface {
	// Current returns the session as of now.
	Current() Session

	// Subscribe registers fn to be called with every new session. The
	// returned function removes the subscription.
	Subscribe(fn func(Session)) (unsubscribe func())

	SignIn(ctx context.Context, email, password string) error
	SignUp(ctx context.Context, email, password string) error
	SignOut(ctx context.Context) error
}
