package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"
)

const (
	// FacebookProviderID is the stable identifier of the Facebook
	// provider.
	FacebookProviderID = "facebook"

	defaultGraphURL     = "https://graph.facebook.com/v19.0"
	defaultGraphTimeout = 7 * time.Second
)

// FacebookConfig carries the Graph API settings of the Facebook
// provider.
type FacebookConfig struct {
	AppID    string
	GraphURL string
	Timeout  time.Duration
}

// FacebookProvider signs users in with a Facebook access token. Login
// arms the flow; HandleCallback consumes a redirect carrying an
// access_token and fetches the profile from the Graph API off the
// calling goroutine.
type FacebookProvider struct {
	cfg        FacebookConfig
	logger     *slog.Logger
	ctx        context.Context
	httpClient *http.Client
	dispatch   dispatcher

	mu        sync.Mutex
	awaiting  bool
	lastToken string
}

func NewFacebookProvider(ctx context.Context, cfg FacebookConfig, logger *slog.Logger) *FacebookProvider {
	if cfg.GraphURL == "" {
		cfg.GraphURL = defaultGraphURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultGraphTimeout
	}
	return &FacebookProvider{
		cfg:        cfg,
		logger:     logger,
		ctx:        ctx,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *FacebookProvider) ID() string {
	return FacebookProviderID
}

// Init has no SDK warm-up to perform against the Graph API; it only
// flips the initialized flag and reports completion.
func (p *FacebookProvider) Init(cb Callback) error {
	started, err := p.dispatch.begin(opInit, cb)
	if err != nil || !started {
		return err
	}

	go p.dispatch.notifyInit(FacebookProviderID)
	return nil
}

func (p *FacebookProvider) Login(cb Callback) error {
	started, err := p.dispatch.begin(opLogin, cb)
	if err != nil || !started {
		return err
	}

	p.mu.Lock()
	p.awaiting = true
	p.mu.Unlock()

	p.logger.Info("awaiting facebook sign-in callback")
	return nil
}

func (p *FacebookProvider) Logout(cb Callback) error {
	started, err := p.dispatch.begin(opLogout, cb)
	if err != nil || !started {
		return err
	}

	p.mu.Lock()
	p.awaiting = false
	token := p.lastToken
	p.lastToken = ""
	p.mu.Unlock()

	go p.revoke(token)
	return nil
}

// HandleCallback consumes a redirect for the armed sign-in flow. The
// redirect either carries an access_token or a user_denied reason.
func (p *FacebookProvider) HandleCallback(values url.Values) bool {
	token := values.Get("access_token")
	denied := values.Get("error_reason") == "user_denied"
	if token == "" && !denied {
		return false
	}

	p.mu.Lock()
	if !p.awaiting {
		p.mu.Unlock()
		return false
	}
	p.awaiting = false
	p.mu.Unlock()

	if denied {
		p.dispatch.cancel(FacebookProviderID)
		return true
	}

	go p.fetchProfile(token)
	return true
}

// fetchProfile resolves the token to a profile and emits the terminal
// event.
func (p *FacebookProvider) fetchProfile(token string) {
	params := url.Values{}
	params.Set("fields", "id,name,picture.width(200)")
	params.Set("access_token", token)

	var profile struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Picture struct {
			Data struct {
				URL string `json:"url"`
			} `json:"data"`
		} `json:"picture"`
	}
	if err := p.get("/me", params, &profile); err != nil {
		p.dispatch.fail(FacebookProviderID, fmt.Errorf("profile fetch: %w", err))
		return
	}
	if profile.ID == "" {
		p.dispatch.fail(FacebookProviderID, errors.New("access token resolved to no profile"))
		return
	}

	p.mu.Lock()
	p.lastToken = token
	p.mu.Unlock()

	p.dispatch.succeed(Session{
		ProviderID:  FacebookProviderID,
		Token:       token,
		DisplayName: profile.Name,
		AvatarURL:   profile.Picture.Data.URL,
	})
}

// revoke deletes the token's permissions and emits the logged-out
// session. A failed revocation still logs the user out locally.
func (p *FacebookProvider) revoke(token string) {
	if token != "" {
		params := url.Values{}
		params.Set("access_token", token)
		if err := p.delete("/me/permissions", params); err != nil {
			p.logger.Warn("facebook permission revoke failed", "error", err)
		}
	}

	p.dispatch.succeed(Session{ProviderID: FacebookProviderID})
}

func (p *FacebookProvider) get(path string, params url.Values, out any) error {
	req, err := p.newRequest(http.MethodGet, path, params)
	if err != nil {
		return err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (p *FacebookProvider) delete(path string, params url.Values) error {
	req, err := p.newRequest(http.MethodDelete, path, params)
	if err != nil {
		return err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}

func (p *FacebookProvider) newRequest(method, path string, params url.Values) (*http.Request, error) {
	reqURL, err := url.Parse(p.cfg.GraphURL + path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	reqURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(p.ctx, method, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return req, nil
}

func (p *FacebookProvider) IsBusy() bool {
	return p.dispatch.busy()
}

func (p *FacebookProvider) IsInitialized() bool {
	return p.dispatch.isInitialized()
}

var _ Provider = (*FacebookProvider)(nil)
