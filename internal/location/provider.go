package location

import (
	"context"
	"errors"

	"bbqapp-core/internal/geo"
)

var (
	// ErrPermissionDenied signals that location access is revoked at the
	// platform level.
	ErrPermissionDenied = errors.New("location access denied")

	// ErrSlowConsumer terminates a subscription whose buffer overflowed.
	ErrSlowConsumer = errors.New("location subscriber too slow")
)

// Provider abstracts the platform location service.
//
// RequestUpdates must not invoke sink synchronously; updates are pushed
// from the provider's own goroutine until RemoveUpdates is called.
type Provider interface {
	// LastKnown returns the last fix recorded for the given source, or
	// nil when none is known.
	LastKnown(ctx context.Context, source geo.Source) (*geo.PositionFix, error)

	// RequestUpdates starts live updates. It returns ErrPermissionDenied
	// synchronously when access is revoked.
	RequestUpdates(sink func(geo.PositionFix)) error

	// RemoveUpdates stops live updates.
	RemoveUpdates() error
}
