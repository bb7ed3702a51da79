// Package auth is the session gateway: it signs users up and in, issues
// signed session tokens backed by revocable server-side sessions, and tells
// subscribers when an identity changes.
package auth

import (
	"context"
	"errors"
	"time"
)

// CookieName is the cookie carrying the session token.
const CookieName = "budgetnest_session"

// ErrNoIdentity means the request carries no usable session.
var ErrNoIdentity = errors.New("no identity")

// AuthError is a failure whose Message can be shown to the user as is.
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string { return e.Message }

var (
	ErrInvalidCredentials = &AuthError{Code: "invalid_credentials", Message: "Invalid login credentials"}
	ErrUserExists         = &AuthError{Code: "user_already_exists", Message: "User already registered"}
	ErrWeakPassword       = &AuthError{Code: "weak_password", Message: "Password should be at least 6 characters."}
	ErrInvalidEmail       = &AuthError{Code: "email_address_invalid", Message: "Unable to validate email address: invalid format"}
)

// UserMessage returns the text to render for err.
func UserMessage(err error) string {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Message
	}
	return "Something went wrong. Please try again."
}

type (
	// Identity is the signed-in user a request acts for.
	Identity struct {
		UserID    string    `json:"user_id"`
		Email     string    `json:"email"`
		SessionID string    `json:"session_id"`
		ExpiresAt time.Time `json:"expires_at"`
	}

	// Session is an issued token and the identity it proves.
	Session struct {
		Token     string
		Identity  Identity
		ExpiresAt time.Time
	}

	EventKind string

	// Event describes an identity change.
	Event struct {
		Kind     EventKind
		Identity Identity
		At       time.Time
	}
)

const (
	EventSignedIn  EventKind = "signed_in"
	EventSignedOut EventKind = "signed_out"
	EventRefreshed EventKind = "refreshed"
)

// Gateway is the authentication surface the HTTP layer depends on.
type Gateway interface {
	CurrentIdentity(ctx context.Context, token string) (Identity, error)
	SignIn(ctx context.Context, email, password string) (Session, error)
	SignUp(ctx context.Context, email, password string) (Session, error)
	SignOut(ctx context.Context, token string) error
	// Refresh extends the session when it is inside the refresh window and
	// reports whether a new token was issued.
	Refresh(ctx context.Context, token string) (Session, bool, error)
	// OnIdentityChange registers fn and returns a function removing it.
	OnIdentityChange(fn func(Event)) (unsubscribe func())
}

type ctxKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// IdentityFrom returns the identity stored by WithIdentity.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok && id.UserID != ""
}
