package auth

import (
	"errors"
	"net/url"
)

var (
	// ErrProviderBusy rejects an operation while another one with a
	// different callback is outstanding on the same provider.
	ErrProviderBusy = errors.New("auth provider is currently busy")

	// ErrSessionConflict rejects a login while a different provider's
	// session is active.
	ErrSessionConflict = errors.New("must log out before logging in with another provider")

	// ErrUnknownProvider rejects a login against an unregistered id.
	ErrUnknownProvider = errors.New("unknown auth provider")
)

// Provider is one pluggable identity backend. At most one operation is
// outstanding per provider; operational outcomes are delivered through
// the callback, never through the return value. The returned error only
// covers pre-acceptance validation (busy, nil callback).
type Provider interface {
	// ID returns the stable provider identifier.
	ID() string

	// Init prepares the backend SDK and emits an init event.
	Init(cb Callback) error

	// Login starts a sign-in flow. Exactly one terminal event
	// (success, cancel or error) follows per accepted call.
	Login(cb Callback) error

	// Logout starts a sign-out flow, terminated like Login.
	Logout(cb Callback) error

	// HandleCallback forwards an external callback (an OAuth redirect's
	// query values) and reports whether this provider consumed it.
	HandleCallback(values url.Values) bool

	// IsBusy reports whether an operation is outstanding.
	IsBusy() bool

	// IsInitialized reports whether Init has completed.
	IsInitialized() bool
}
