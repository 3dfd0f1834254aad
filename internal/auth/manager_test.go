package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"testing"
)

// fakeIdentityProvider accepts operations through the shared dispatcher
// and completes logins only when the test says so.
type fakeIdentityProvider struct {
	id       string
	dispatch dispatcher

	mu          sync.Mutex
	handled     bool
	loginStarts int
	handleCalls int
}

func (p *fakeIdentityProvider) ID() string { return p.id }

func (p *fakeIdentityProvider) Init(cb Callback) error {
	started, err := p.dispatch.begin(opInit, cb)
	if err != nil || !started {
		return err
	}
	p.dispatch.notifyInit(p.id)
	return nil
}

func (p *fakeIdentityProvider) Login(cb Callback) error {
	started, err := p.dispatch.begin(opLogin, cb)
	if err != nil || !started {
		return err
	}
	p.mu.Lock()
	p.loginStarts++
	p.mu.Unlock()
	return nil
}

func (p *fakeIdentityProvider) Logout(cb Callback) error {
	started, err := p.dispatch.begin(opLogout, cb)
	if err != nil || !started {
		return err
	}
	p.dispatch.succeed(Session{ProviderID: p.id})
	return nil
}

func (p *fakeIdentityProvider) HandleCallback(_ url.Values) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handleCalls++
	return p.handled
}

func (p *fakeIdentityProvider) IsBusy() bool        { return p.dispatch.busy() }
func (p *fakeIdentityProvider) IsInitialized() bool { return p.dispatch.isInitialized() }

// complete finishes the outstanding login.
func (p *fakeIdentityProvider) complete(session Session) {
	p.dispatch.succeed(session)
}

func (p *fakeIdentityProvider) logins() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loginStarts
}

var _ Provider = (*fakeIdentityProvider)(nil)

func managerLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestManagerLoginFlow(t *testing.T) {
	ctx := context.Background()
	prefs := NewMemoryPreferenceStore()
	bus := NewBus()
	provider := &fakeIdentityProvider{id: "google"}
	m := NewManager(ctx, prefs, bus, managerLogger(), provider)

	sub := bus.Subscribe()
	defer sub.Close()

	if err := m.LoginWith("google"); err != nil {
		t.Fatalf("LoginWith() = %v", err)
	}
	if got := receiveEvent(t, sub); got.Kind != EventInit {
		t.Fatalf("first event %+v, want init", got)
	}
	if provider.logins() != 1 {
		t.Fatalf("login started %d times, want 1", provider.logins())
	}
	if !m.IsBusy() {
		t.Error("manager should report busy during the login")
	}

	provider.complete(Session{ProviderID: "google", Token: "tok", DisplayName: "Jane"})

	got := receiveEvent(t, sub)
	if got.Kind != EventSuccess || got.Session == nil || got.Session.DisplayName != "Jane" {
		t.Fatalf("terminal event %+v, want success with session", got)
	}
	if m.IsBusy() {
		t.Error("manager should be idle after the terminal event")
	}

	session := m.LastSession()
	if session == nil || !session.LoggedIn() || session.ProviderID != "google" {
		t.Errorf("LastSession() = %+v", session)
	}
	if id, _ := prefs.LastProviderID(ctx); id != "google" {
		t.Errorf("persisted provider id = %q, want google", id)
	}
}

func TestManagerLoginWithUnknownProvider(t *testing.T) {
	m := NewManager(context.Background(), NewMemoryPreferenceStore(), NewBus(), managerLogger())
	if err := m.LoginWith("nope"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("got %v, want ErrUnknownProvider", err)
	}
}

func TestManagerRejectsCrossProviderLogin(t *testing.T) {
	ctx := context.Background()
	prefs := NewMemoryPreferenceStore()
	google := &fakeIdentityProvider{id: "google"}
	facebook := &fakeIdentityProvider{id: "facebook"}
	m := NewManager(ctx, prefs, NewBus(), managerLogger(), google, facebook)

	if err := m.LoginWith("google"); err != nil {
		t.Fatal(err)
	}
	google.complete(Session{ProviderID: "google", Token: "tok"})

	if err := m.LoginWith("facebook"); !errors.Is(err, ErrSessionConflict) {
		t.Errorf("got %v, want ErrSessionConflict", err)
	}
	if facebook.logins() != 0 {
		t.Error("conflicting login must not reach the provider")
	}
	if session := m.LastSession(); session == nil || session.ProviderID != "google" {
		t.Errorf("session changed to %+v", session)
	}

	// Re-login under the owning provider is allowed.
	if err := m.LoginWith("google"); err != nil {
		t.Errorf("same-provider login rejected: %v", err)
	}
}

func TestManagerLoginUsesPersistedProvider(t *testing.T) {
	ctx := context.Background()
	prefs := NewMemoryPreferenceStore()
	provider := &fakeIdentityProvider{id: "facebook"}

	if err := prefs.SetLastProviderID(ctx, "facebook"); err != nil {
		t.Fatal(err)
	}

	// A fresh manager, as after a process restart.
	m := NewManager(ctx, prefs, NewBus(), managerLogger(), provider)
	started, err := m.Login()
	if err != nil {
		t.Fatalf("Login() = %v", err)
	}
	if !started {
		t.Fatal("login should have been attempted for the persisted provider")
	}
	if provider.logins() != 1 {
		t.Errorf("login started %d times, want 1", provider.logins())
	}
}

func TestManagerLoginWithoutPersistedProvider(t *testing.T) {
	m := NewManager(context.Background(), NewMemoryPreferenceStore(), NewBus(), managerLogger(),
		&fakeIdentityProvider{id: "google"})

	started, err := m.Login()
	if err != nil {
		t.Fatalf("Login() = %v", err)
	}
	if started {
		t.Error("nothing persisted, no login should start")
	}
}

func TestManagerLoginNoOpWhileLoggedIn(t *testing.T) {
	ctx := context.Background()
	provider := &fakeIdentityProvider{id: "google"}
	m := NewManager(ctx, NewMemoryPreferenceStore(), NewBus(), managerLogger(), provider)

	if err := m.LoginWith("google"); err != nil {
		t.Fatal(err)
	}
	provider.complete(Session{ProviderID: "google", Token: "tok"})

	started, err := m.Login()
	if err != nil || started {
		t.Errorf("Login() = %v, %v, want no-op while logged in", started, err)
	}
}

func TestManagerLogout(t *testing.T) {
	ctx := context.Background()
	prefs := NewMemoryPreferenceStore()
	bus := NewBus()
	provider := &fakeIdentityProvider{id: "google"}
	m := NewManager(ctx, prefs, bus, managerLogger(), provider)

	// Logout without a session is a no-op.
	if err := m.Logout(); err != nil {
		t.Fatalf("Logout() without session = %v", err)
	}

	if err := m.LoginWith("google"); err != nil {
		t.Fatal(err)
	}
	provider.complete(Session{ProviderID: "google", Token: "tok"})

	sub := bus.Subscribe()
	defer sub.Close()

	if err := m.Logout(); err != nil {
		t.Fatalf("Logout() = %v", err)
	}
	got := receiveEvent(t, sub)
	if got.Kind != EventSuccess || got.Session == nil || got.Session.LoggedIn() {
		t.Fatalf("logout event %+v, want success with logged-out session", got)
	}
	if session := m.LastSession(); session == nil || session.LoggedIn() {
		t.Errorf("LastSession() = %+v, want logged-out", session)
	}
	if id, _ := prefs.LastProviderID(ctx); id != "" {
		t.Errorf("persisted provider id = %q, want cleared", id)
	}
}

func TestManagerHandleCallbackRouting(t *testing.T) {
	google := &fakeIdentityProvider{id: "google"}
	facebook := &fakeIdentityProvider{id: "facebook", handled: true}
	m := NewManager(context.Background(), NewMemoryPreferenceStore(), NewBus(), managerLogger(), google, facebook)

	if !m.HandleCallback(url.Values{"code": {"abc"}}) {
		t.Fatal("callback should have been handled")
	}
	if google.handleCalls != 1 || facebook.handleCalls != 1 {
		t.Errorf("calls = %d, %d, want both providers tried in order", google.handleCalls, facebook.handleCalls)
	}

	// The first provider that handles it short-circuits the rest.
	google.handled = true
	if !m.HandleCallback(url.Values{}) {
		t.Fatal("callback should have been handled")
	}
	if facebook.handleCalls != 1 {
		t.Error("later providers should not see an already-handled callback")
	}
}

func TestManagerInitialized(t *testing.T) {
	google := &fakeIdentityProvider{id: "google"}
	facebook := &fakeIdentityProvider{id: "facebook"}
	m := NewManager(context.Background(), NewMemoryPreferenceStore(), NewBus(), managerLogger(), google, facebook)

	if m.IsInitialized() {
		t.Error("nothing initialized yet")
	}
	if err := m.LoginWith("google"); err != nil {
		t.Fatal(err)
	}
	if m.IsInitialized() {
		t.Error("facebook is still uninitialized")
	}
	if err := facebook.Init(&recordingCallback{}); err != nil {
		t.Fatal(err)
	}
	if !m.IsInitialized() {
		t.Error("all providers initialized")
	}
}
