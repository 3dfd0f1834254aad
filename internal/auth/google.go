package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	// GoogleProviderID is the stable identifier of the Google provider.
	GoogleProviderID = "google"

	defaultGoogleIssuer = "https://accounts.google.com"
)

// GoogleConfig carries the OIDC client settings of the Google provider.
type GoogleConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// GoogleProvider signs users in through the Google OIDC
// authorization-code flow. Init discovers the issuer, Login arms a
// state-checked flow and HandleCallback finishes it by exchanging the
// code and verifying the ID token off the calling goroutine.
type GoogleProvider struct {
	cfg      GoogleConfig
	logger   *slog.Logger
	ctx      context.Context
	dispatch dispatcher

	mu           sync.Mutex
	provider     *oidc.Provider
	oauth        oauth2.Config
	pendingState string
}

func NewGoogleProvider(ctx context.Context, cfg GoogleConfig, logger *slog.Logger) *GoogleProvider {
	if cfg.IssuerURL == "" {
		cfg.IssuerURL = defaultGoogleIssuer
	}
	return &GoogleProvider{
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
	}
}

func (p *GoogleProvider) ID() string {
	return GoogleProviderID
}

func (p *GoogleProvider) Init(cb Callback) error {
	started, err := p.dispatch.begin(opInit, cb)
	if err != nil || !started {
		return err
	}

	if p.dispatch.isInitialized() {
		go p.dispatch.notifyInit(GoogleProviderID)
		return nil
	}

	go func() {
		provider, err := oidc.NewProvider(p.ctx, p.cfg.IssuerURL)
		if err != nil {
			p.dispatch.fail(GoogleProviderID, fmt.Errorf("issuer discovery: %w", err))
			return
		}

		p.mu.Lock()
		p.provider = provider
		p.oauth = oauth2.Config{
			ClientID:     p.cfg.ClientID,
			ClientSecret: p.cfg.ClientSecret,
			RedirectURL:  p.cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		}
		p.mu.Unlock()

		p.dispatch.notifyInit(GoogleProviderID)
	}()
	return nil
}

func (p *GoogleProvider) Login(cb Callback) error {
	started, err := p.dispatch.begin(opLogin, cb)
	if err != nil || !started {
		return err
	}

	p.mu.Lock()
	initialized := p.provider != nil
	state := uuid.NewString()
	if initialized {
		p.pendingState = state
	}
	authURL := p.oauth.AuthCodeURL(state)
	p.mu.Unlock()

	if !initialized {
		go p.dispatch.fail(GoogleProviderID, errors.New("google provider is not initialized"))
		return nil
	}

	p.logger.Info("awaiting google sign-in callback", "url", authURL)
	return nil
}

// LoginURL returns the authorization URL of the armed sign-in flow, or
// an empty string when no flow is pending.
func (p *GoogleProvider) LoginURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pendingState == "" {
		return ""
	}
	return p.oauth.AuthCodeURL(p.pendingState)
}

func (p *GoogleProvider) Logout(cb Callback) error {
	started, err := p.dispatch.begin(opLogout, cb)
	if err != nil || !started {
		return err
	}

	p.mu.Lock()
	p.pendingState = ""
	p.mu.Unlock()

	go p.dispatch.succeed(Session{ProviderID: GoogleProviderID})
	return nil
}

// HandleCallback consumes the OAuth redirect carrying this provider's
// state nonce.
func (p *GoogleProvider) HandleCallback(values url.Values) bool {
	p.mu.Lock()
	state := p.pendingState
	if state == "" || values.Get("state") != state {
		p.mu.Unlock()
		return false
	}
	p.pendingState = ""
	p.mu.Unlock()

	if errCode := values.Get("error"); errCode != "" {
		if errCode == "access_denied" {
			p.dispatch.cancel(GoogleProviderID)
		} else {
			p.dispatch.fail(GoogleProviderID, fmt.Errorf("authorization failed: %s", errCode))
		}
		return true
	}

	code := values.Get("code")
	if code == "" {
		p.dispatch.fail(GoogleProviderID, errors.New("callback carries no authorization code"))
		return true
	}

	go p.exchange(code)
	return true
}

// exchange trades the authorization code for a verified ID token and
// emits the terminal event.
func (p *GoogleProvider) exchange(code string) {
	p.mu.Lock()
	oauthCfg := p.oauth
	provider := p.provider
	p.mu.Unlock()

	token, err := oauthCfg.Exchange(p.ctx, code)
	if err != nil {
		p.dispatch.fail(GoogleProviderID, fmt.Errorf("code exchange: %w", err))
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		p.dispatch.fail(GoogleProviderID, errors.New("token response carries no id_token"))
		return
	}

	idToken, err := provider.Verifier(&oidc.Config{ClientID: oauthCfg.ClientID}).Verify(p.ctx, rawIDToken)
	if err != nil {
		p.dispatch.fail(GoogleProviderID, fmt.Errorf("id token verification: %w", err))
		return
	}

	var claims struct {
		Name    string `json:"name"`
		Email   string `json:"email"`
		Picture string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		p.dispatch.fail(GoogleProviderID, fmt.Errorf("parsing claims: %w", err))
		return
	}

	displayName := claims.Name
	if displayName == "" {
		displayName = claims.Email
	}

	p.dispatch.succeed(Session{
		ProviderID:  GoogleProviderID,
		Token:       rawIDToken,
		DisplayName: displayName,
		AvatarURL:   claims.Picture,
	})
}

func (p *GoogleProvider) IsBusy() bool {
	return p.dispatch.busy()
}

func (p *GoogleProvider) IsInitialized() bool {
	return p.dispatch.isInitialized()
}

var _ Provider = (*GoogleProvider)(nil)
