package location

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"bbqapp-core/internal/geo"
)

// subscriptionBufferSize controls the max number of fixes that can be
// queued for a subscriber before it is considered too slow.
const subscriptionBufferSize = 16

// lastKnownOrder is the source priority for the initial fix lookup.
var lastKnownOrder = []geo.Source{geo.SourceSatellite, geo.SourceNetwork, geo.SourcePassive}

// StreamOptions configures a Stream.
type StreamOptions struct {
	// SubscriptionBufferSize is the per-subscriber channel buffer.
	SubscriptionBufferSize int
}

func DefaultStreamOptions() StreamOptions {
	return StreamOptions{
		SubscriptionBufferSize: subscriptionBufferSize,
	}
}

// Stream turns the push-based platform location service into a
// multicast, replay-latest stream of position fixes. Live updates are
// requested while at least one subscription is open and stopped when
// the last one closes.
type Stream struct {
	provider Provider
	logger   *slog.Logger
	ctx      context.Context
	bufSize  int

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	last   *geo.PositionFix
	active bool
}

func NewStream(ctx context.Context, provider Provider, logger *slog.Logger, options ...StreamOptions) *Stream {
	opts := DefaultStreamOptions()
	if len(options) > 0 {
		opts = options[0]
	}
	if opts.SubscriptionBufferSize <= 0 {
		opts.SubscriptionBufferSize = subscriptionBufferSize
	}

	return &Stream{
		provider: provider,
		logger:   logger,
		ctx:      ctx,
		bufSize:  opts.SubscriptionBufferSize,
		subs:     make(map[*Subscription]struct{}),
	}
}

// Observe registers a new subscriber. The best currently-known fix, if
// any, is queued before any live fix. The first subscriber activates
// live updates; a permission denial at that point fails only the new
// subscription and the stream stays usable.
func (s *Stream) Observe() *Subscription {
	sub := &Subscription{
		stream: s,
		ch:     make(chan geo.PositionFix, s.bufSize),
	}

	s.mu.Lock()
	if !s.active {
		if err := s.activateLocked(); err != nil {
			s.mu.Unlock()
			sub.finish(err)
			return sub
		}
	}
	if s.last != nil {
		sub.ch <- *s.last
	}
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	return sub
}

// LastFix returns the most recent known fix, or nil.
func (s *Stream) LastFix() *geo.PositionFix {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// activateLocked seeds the last-known fix and starts live updates.
// Callers hold s.mu.
func (s *Stream) activateLocked() error {
	if s.last == nil {
		for _, source := range lastKnownOrder {
			fix, err := s.provider.LastKnown(s.ctx, source)
			if err != nil {
				if errors.Is(err, ErrPermissionDenied) {
					return err
				}
				s.logger.Warn("last known fix lookup failed", "source", source, "error", err)
				continue
			}
			if fix != nil {
				s.last = fix
				break
			}
		}
	}

	if err := s.provider.RequestUpdates(s.deliver); err != nil {
		return err
	}
	s.active = true
	return nil
}

// deliver stores a live fix as the new last-known fix and broadcasts it.
// A fix that does not improve on the stored one (older, or same age with
// worse accuracy, including exact duplicates) is suppressed. Subscribers
// that cannot keep up are terminated with ErrSlowConsumer rather than
// silently losing fixes.
func (s *Stream) deliver(fix geo.PositionFix) {
	s.mu.Lock()
	if !fix.Better(s.last) {
		s.mu.Unlock()
		return
	}
	s.last = &fix

	var slow []*Subscription
	for sub := range s.subs {
		if !sub.trySend(fix) {
			slow = append(slow, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range slow {
		s.logger.Warn("dropping slow location subscriber")
		s.remove(sub, ErrSlowConsumer)
	}
}

// remove detaches a subscription and stops live updates when it was the
// last one. The terminal error, if any, is delivered after the lock is
// released.
func (s *Stream) remove(sub *Subscription, err error) {
	s.mu.Lock()
	if _, ok := s.subs[sub]; ok {
		delete(s.subs, sub)
		if len(s.subs) == 0 && s.active {
			if err := s.provider.RemoveUpdates(); err != nil {
				s.logger.Warn("failed to stop live updates", "error", err)
			}
			s.active = false
		}
	}
	s.mu.Unlock()

	sub.finish(err)
}

// Subscription is one subscriber's view of the stream. Fixes are read
// from Fixes; after the channel closes, Err reports whether the
// subscription ended with a terminal error.
type Subscription struct {
	stream *Stream
	ch     chan geo.PositionFix

	mu     sync.Mutex
	err    error
	closed bool
}

// Fixes returns the channel of position fixes for this subscription.
func (sub *Subscription) Fixes() <-chan geo.PositionFix {
	return sub.ch
}

// Err returns the terminal error, or nil after a clean close.
func (sub *Subscription) Err() error {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.err
}

// Close unsubscribes and releases resources.
func (sub *Subscription) Close() {
	sub.stream.remove(sub, nil)
}

func (sub *Subscription) trySend(fix geo.PositionFix) bool {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	if sub.closed {
		return true
	}
	select {
	case sub.ch <- fix:
		return true
	default:
		return false
	}
}

// finish closes the subscription channel, guarded against double-close.
func (sub *Subscription) finish(err error) {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	if sub.closed {
		return
	}
	sub.closed = true
	sub.err = err
	close(sub.ch)
}
