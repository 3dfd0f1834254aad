package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
)

// Manager arbitrates a single logical session across the registered
// providers. It persists which provider last authenticated (never the
// credential) and republishes every provider event on the bus.
type Manager struct {
	logger    *slog.Logger
	ctx       context.Context
	bus       *Bus
	prefs     PreferenceStore
	providers map[string]Provider
	order     []string

	mu      sync.Mutex
	current *Session
}

func NewManager(ctx context.Context, prefs PreferenceStore, bus *Bus, logger *slog.Logger, providers ...Provider) *Manager {
	m := &Manager{
		logger:    logger,
		ctx:       ctx,
		bus:       bus,
		prefs:     prefs,
		providers: make(map[string]Provider, len(providers)),
	}
	for _, provider := range providers {
		m.providers[provider.ID()] = provider
		m.order = append(m.order, provider.ID())
	}
	return m
}

// ProviderIDs returns the registered provider ids in registration order.
func (m *Manager) ProviderIDs() []string {
	ids := make([]string, len(m.order))
	copy(ids, m.order)
	return ids
}

// Login re-attempts a login against the provider persisted by the last
// successful one. It reports whether an attempt was started.
func (m *Manager) Login() (bool, error) {
	m.mu.Lock()
	loggedIn := m.current != nil && m.current.LoggedIn()
	m.mu.Unlock()
	if loggedIn {
		return false, nil
	}

	id, err := m.prefs.LastProviderID(m.ctx)
	if err != nil {
		return false, err
	}
	if id == "" {
		return false, nil
	}

	if err := m.LoginWith(id); err != nil {
		return false, err
	}
	return true, nil
}

// LoginWith starts a login against one provider. It fails synchronously
// with ErrUnknownProvider or ErrSessionConflict before anything is
// started; afterwards the outcome arrives on the bus.
func (m *Manager) LoginWith(id string) error {
	provider, ok := m.providers[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}

	m.mu.Lock()
	if m.current != nil && m.current.LoggedIn() && m.current.ProviderID != id {
		m.mu.Unlock()
		return ErrSessionConflict
	}
	m.mu.Unlock()

	return provider.Init(&loginFlow{manager: m, provider: provider})
}

// Logout signs out of the provider owning the current session. It is a
// no-op when nobody is logged in.
func (m *Manager) Logout() error {
	m.mu.Lock()
	current := m.current
	m.mu.Unlock()

	if current == nil || !current.LoggedIn() {
		return nil
	}

	provider, ok := m.providers[current.ProviderID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, current.ProviderID)
	}
	return provider.Logout(m)
}

// LastSession returns the last known session, or nil. UI surfaces use
// it to re-synchronize without waiting for an event.
func (m *Manager) LastSession() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// IsBusy reports whether any registered provider is busy.
func (m *Manager) IsBusy() bool {
	for _, id := range m.order {
		if m.providers[id].IsBusy() {
			return true
		}
	}
	return false
}

// IsInitialized reports whether all registered providers are
// initialized.
func (m *Manager) IsInitialized() bool {
	for _, id := range m.order {
		if !m.providers[id].IsInitialized() {
			return false
		}
	}
	return true
}

// HandleCallback forwards an external callback to the providers in
// registration order; the first one that handles it wins.
func (m *Manager) HandleCallback(values url.Values) bool {
	for _, id := range m.order {
		if m.providers[id].HandleCallback(values) {
			return true
		}
	}
	return false
}

// OnAuthEvent updates the current session and the persisted provider id
// under the lock, then publishes the event after releasing it so that
// subscribers may call back into the manager.
func (m *Manager) OnAuthEvent(event Event) {
	if event.Kind == EventSuccess && event.Session != nil {
		m.mu.Lock()
		m.current = event.Session
		var err error
		if event.Session.LoggedIn() {
			err = m.prefs.SetLastProviderID(m.ctx, event.Session.ProviderID)
		} else {
			err = m.prefs.ClearLastProviderID(m.ctx)
		}
		if err != nil {
			m.logger.Error("failed to persist provider preference", "provider", event.ProviderID, "error", err)
		}
		m.mu.Unlock()
	}

	m.bus.Publish(event)
}

// loginFlow chains a provider's init completion into its login, using
// one callback value for both operations.
type loginFlow struct {
	manager  *Manager
	provider Provider
}

func (f *loginFlow) OnAuthEvent(event Event) {
	f.manager.OnAuthEvent(event)

	if event.Kind == EventInit {
		if err := f.provider.Login(f); err != nil {
			f.manager.OnAuthEvent(Event{Kind: EventError, ProviderID: f.provider.ID(), Err: err})
		}
	}
}

var _ Callback = (*Manager)(nil)
var _ Callback = (*loginFlow)(nil)
