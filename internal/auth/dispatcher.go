package auth

import (
	"errors"
	"sync"
)

type operation string

const (
	opNone   operation = ""
	opInit   operation = "init"
	opLogin  operation = "login"
	opLogout operation = "logout"
)

// dispatcher holds the registered-callback and busy bookkeeping shared
// by every provider implementation. The callback registered by an
// accepted operation stays in place until the terminal event clears it;
// init completion keeps it registered so a login can chain on the same
// callback. Events are always delivered outside the lock.
type dispatcher struct {
	mu          sync.Mutex
	cb          Callback
	op          operation
	initialized bool
}

// begin accepts or rejects an operation. It reports false with a nil
// error when the same callback re-asserts the operation already in
// flight, which callers treat as a no-op.
func (d *dispatcher) begin(op operation, cb Callback) (bool, error) {
	if cb == nil {
		return false, errors.New("callback cannot be nil")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cb != nil && d.cb != cb {
		return false, ErrProviderBusy
	}
	if d.op == op && d.cb == cb {
		return false, nil
	}
	if d.op != opNone {
		return false, ErrProviderBusy
	}

	d.cb = cb
	d.op = op
	return true, nil
}

// notifyInit marks the provider initialized and emits the init event.
// The callback stays registered for a chained login.
func (d *dispatcher) notifyInit(providerID string) {
	d.mu.Lock()
	d.op = opNone
	d.initialized = true
	cb := d.cb
	d.mu.Unlock()

	if cb != nil {
		cb.OnAuthEvent(Event{Kind: EventInit, ProviderID: providerID})
	}
}

func (d *dispatcher) succeed(session Session) {
	d.terminate(Event{Kind: EventSuccess, ProviderID: session.ProviderID, Session: &session})
}

func (d *dispatcher) cancel(providerID string) {
	d.terminate(Event{Kind: EventCancel, ProviderID: providerID})
}

func (d *dispatcher) fail(providerID string, err error) {
	d.terminate(Event{Kind: EventError, ProviderID: providerID, Err: err})
}

// terminate clears the registered callback and delivers the single
// terminal event of the accepted operation.
func (d *dispatcher) terminate(event Event) {
	d.mu.Lock()
	cb := d.cb
	d.cb = nil
	d.op = opNone
	d.mu.Unlock()

	if cb != nil {
		cb.OnAuthEvent(event)
	}
}

func (d *dispatcher) busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cb != nil
}

func (d *dispatcher) isInitialized() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initialized
}
