package geocode

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"bbqapp-core/internal/geo"
)

const (
	defaultMaxResults = 5
	defaultWorkers    = 1
)

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	// MaxResults caps the number of addresses per resolution.
	MaxResults int

	// Workers bounds the number of concurrent backend calls.
	Workers int

	// CacheTTL keeps successful results available for repeat requests.
	// Zero disables caching beyond in-flight deduplication.
	CacheTTL time.Duration
}

func DefaultResolverOptions() ResolverOptions {
	return ResolverOptions{
		MaxResults: defaultMaxResults,
		Workers:    defaultWorkers,
	}
}

// Resolver resolves coordinates and free-text queries to addresses off
// the calling goroutine. Concurrent requests for the same normalized
// key share one backend call and its result.
type Resolver struct {
	geocoder   Geocoder
	logger     *slog.Logger
	ctx        context.Context
	maxResults int
	cacheTTL   time.Duration
	sem        chan struct{}

	mu       sync.Mutex
	requests map[string]*request
}

func NewResolver(ctx context.Context, geocoder Geocoder, logger *slog.Logger, options ...ResolverOptions) *Resolver {
	opts := DefaultResolverOptions()
	if len(options) > 0 {
		opts = options[0]
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = defaultMaxResults
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}

	return &Resolver{
		geocoder:   geocoder,
		logger:     logger,
		ctx:        ctx,
		maxResults: opts.MaxResults,
		cacheTTL:   opts.CacheTTL,
		sem:        make(chan struct{}, opts.Workers),
		requests:   make(map[string]*request),
	}
}

// ResolveQuery resolves free text to address candidates.
func (r *Resolver) ResolveQuery(query string) *Lookup {
	normalized := strings.Join(strings.Fields(query), " ")
	if normalized == "" {
		return failedLookup(ErrEmptyQuery)
	}

	key := "q:" + strings.ToLower(normalized)
	return r.resolve(key, func(ctx context.Context) ([]geo.Address, error) {
		return r.geocoder.FromQuery(ctx, normalized, r.maxResults)
	})
}

// ResolvePoint resolves a coordinate to addresses. Malformed
// coordinates fail the returned lookup without a backend call.
func (r *Resolver) ResolvePoint(pt geo.Point) *Lookup {
	if err := pt.Validate(); err != nil {
		return failedLookup(err)
	}

	key := fmt.Sprintf("p:%.6f,%.6f", pt.Lat, pt.Lon)
	return r.resolve(key, func(ctx context.Context) ([]geo.Address, error) {
		return r.geocoder.FromPoint(ctx, pt, r.maxResults)
	})
}

// resolve attaches to the in-flight or cached request for key, starting
// a new background resolution when none exists.
func (r *Resolver) resolve(key string, run func(context.Context) ([]geo.Address, error)) *Lookup {
	lookup := newLookup(r.maxResults)

	r.mu.Lock()
	req, ok := r.requests[key]
	if ok && req.expired(time.Now(), r.cacheTTL) {
		delete(r.requests, key)
		ok = false
	}
	if !ok {
		req = &request{key: key}
		r.requests[key] = req
	}
	r.mu.Unlock()

	req.attach(lookup)

	if !ok {
		go r.work(req, run)
	}
	return lookup
}

// work performs one backend resolution, bounded by the worker
// semaphore. It runs to completion even when every waiter has already
// unsubscribed, so that the outcome is stored for late waiters.
func (r *Resolver) work(req *request, run func(context.Context) ([]geo.Address, error)) {
	r.sem <- struct{}{}
	defer func() { <-r.sem }()

	addresses, err := run(r.ctx)
	if err != nil {
		r.logger.Warn("geocode resolution failed", "key", req.key, "error", err)
	}

	waiters := req.complete(addresses, err)

	// Failed keys are never cached; without a TTL successful results
	// only outlive the request long enough to notify its waiters.
	if err != nil || r.cacheTTL == 0 {
		r.mu.Lock()
		if r.requests[req.key] == req {
			delete(r.requests, req.key)
		}
		r.mu.Unlock()
	}

	for _, lookup := range waiters {
		lookup.deliver(addresses, err)
	}
}

// request is one in-flight resolution unit: a result slot set exactly
// once and the set of waiters attached before completion.
type request struct {
	key string

	mu        sync.Mutex
	done      bool
	doneAt    time.Time
	addresses []geo.Address
	err       error
	waiters   []*Lookup
}

// attach registers a waiter, replaying the stored outcome immediately
// when the request has already completed.
func (req *request) attach(lookup *Lookup) {
	req.mu.Lock()
	if !req.done {
		req.waiters = append(req.waiters, lookup)
		req.mu.Unlock()
		return
	}
	addresses, err := req.addresses, req.err
	req.mu.Unlock()

	lookup.deliver(addresses, err)
}

// complete sets the result slot and detaches all waiters for
// notification outside the request lock.
func (req *request) complete(addresses []geo.Address, err error) []*Lookup {
	req.mu.Lock()
	defer req.mu.Unlock()

	req.done = true
	req.doneAt = time.Now()
	req.addresses = addresses
	req.err = err

	waiters := req.waiters
	req.waiters = nil
	return waiters
}

func (req *request) expired(now time.Time, ttl time.Duration) bool {
	req.mu.Lock()
	defer req.mu.Unlock()
	return ttl > 0 && req.done && now.Sub(req.doneAt) > ttl
}

// Lookup is one waiter's view of a resolution: a channel of addresses
// followed by completion. After the channel closes, Err reports the
// resolution error, if any.
type Lookup struct {
	ch chan geo.Address

	mu     sync.Mutex
	err    error
	closed bool
}

func newLookup(buf int) *Lookup {
	return &Lookup{ch: make(chan geo.Address, buf)}
}

func failedLookup(err error) *Lookup {
	lookup := newLookup(0)
	lookup.deliver(nil, err)
	return lookup
}

// Addresses returns the channel of resolved addresses.
func (l *Lookup) Addresses() <-chan geo.Address {
	return l.ch
}

// Err returns the resolution error, or nil after a clean completion.
func (l *Lookup) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Close unsubscribes. The backing resolution keeps running; remaining
// waiters are unaffected.
func (l *Lookup) Close() {
	l.deliver(nil, nil)
}

// deliver queues the result set and closes the channel, guarded against
// double delivery. The channel buffer is sized to the resolver's result
// cap, so queuing never blocks.
func (l *Lookup) deliver(addresses []geo.Address, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	for _, address := range addresses {
		if len(l.ch) == cap(l.ch) {
			break
		}
		l.ch <- address
	}
	l.err = err
	l.closed = true
	close(l.ch)
}
