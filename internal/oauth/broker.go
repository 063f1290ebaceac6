package oauth

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// DefaultAwaitTimeout bounds how long AwaitCode blocks for the loopback
// callback.
const DefaultAwaitTimeout = 10 * time.Second

// serverMetadata is the subset of RFC 8414 authorization-server metadata
// the broker needs.
type serverMetadata struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	RegistrationEndpoint  string `json:"registration_endpoint"`
}

// pendingFlow is the single outstanding awaitable per backend between Begin
// and AwaitCode.
type pendingFlow struct {
	state   string
	authURL string
	ch      <-chan callbackResult
}

// Broker implements the three-legged code-grant flow with PKCE and dynamic
// client registration on behalf of remote backends. It exclusively owns the
// .oauth storage directory and serializes per-backend with a mutex.
type Broker struct {
	store    *Store
	listener *listener
	logger   *slog.Logger
	http     *http.Client

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	pending map[string]*pendingFlow
}

// NewBroker creates a broker persisting under root, listening for redirects
// on the given loopback port.
func NewBroker(root string, port int, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		store:    NewStore(root),
		listener: newListener(port, logger),
		logger:   logger,
		http:     &http.Client{Timeout: 15 * time.Second},
		locks:    make(map[string]*sync.Mutex),
		pending:  make(map[string]*pendingFlow),
	}
}

// Store exposes the underlying file store (for Invalidate and inspection).
func (b *Broker) Store() *Store { return b.store }

// RedirectURL returns the loopback redirect target registered with backends.
func (b *Broker) RedirectURL() string { return b.listener.redirectURL() }

// ClientMetadata returns the dynamic-registration request body for this
// broker: public client, code grant with refresh, loopback redirect.
func (b *Broker) ClientMetadata() map[string]any {
	return map[string]any{
		"redirect_uris":              []string{b.RedirectURL()},
		"client_name":                "mcphub",
		"grant_types":                []string{"authorization_code", "refresh_token"},
		"response_types":             []string{"code"},
		"token_endpoint_auth_method": "none",
	}
}

// Authorize returns a valid access token for the backend, running the full
// flow when no persisted token can be used. Only one authorization per
// backend may be in flight at a time.
func (b *Broker) Authorize(ctx context.Context, server, serverURL string) (string, error) {
	lock := b.serverLock(server)
	lock.Lock()
	defer lock.Unlock()

	meta, err := b.discover(ctx, serverURL)
	if err != nil {
		return "", err
	}

	info, err := b.ensureClient(ctx, server, meta)
	if err != nil {
		return "", err
	}
	cfg := b.oauthConfig(info, meta)

	// A persisted token that is still valid, or refreshable, avoids a new
	// interactive flow entirely.
	if tok, err := b.store.LoadTokens(server); err == nil && tok != nil {
		if tok.Valid() {
			return tok.AccessToken, nil
		}
		if tok.RefreshToken != "" {
			fresh, err := cfg.TokenSource(ctx, tok).Token()
			if err == nil {
				if err := b.store.SaveTokens(server, fresh); err != nil {
					return "", err
				}
				return fresh.AccessToken, nil
			}
			b.logger.Warn("oauth: refresh failed, starting new flow", "server", server, "error", err)
		}
	}

	if _, err := b.Begin(server, cfg); err != nil {
		return "", err
	}
	code, err := b.AwaitCode(ctx, server, DefaultAwaitTimeout)
	if err != nil {
		return "", err
	}

	tok, err := b.Finalize(ctx, server, cfg, code)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// Begin stages a PKCE verifier, starts the loopback listener idempotently,
// and prints the authorization URL on the operator's standard error. The
// resulting awaitable is retained until AwaitCode resolves or times out.
// A second Begin while a flow is already in flight is a no-op.
func (b *Broker) Begin(server string, cfg *oauth2.Config) (string, error) {
	b.mu.Lock()
	if flow, inFlight := b.pending[server]; inFlight {
		b.mu.Unlock()
		return flow.authURL, nil
	}
	b.mu.Unlock()

	verifier := oauth2.GenerateVerifier()
	if err := b.store.SaveVerifier(server, verifier); err != nil {
		return "", err
	}

	state, err := randomState()
	if err != nil {
		return "", err
	}
	ch, err := b.listener.register(state)
	if err != nil {
		return "", err
	}

	authURL := cfg.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
	fmt.Fprintf(os.Stderr, "Authorize backend %q by visiting:\n%s\n", server, authURL)

	b.mu.Lock()
	b.pending[server] = &pendingFlow{state: state, ch: ch, authURL: authURL}
	b.mu.Unlock()
	return authURL, nil
}

// AwaitCode blocks until the loopback callback fires for the backend's
// pending flow, the timeout expires, or ctx is done. On any failure the
// outstanding awaitable is cleared so the next attempt begins fresh.
func (b *Broker) AwaitCode(ctx context.Context, server string, timeout time.Duration) (string, error) {
	b.mu.Lock()
	flow, ok := b.pending[server]
	b.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoPendingFlow, server)
	}
	if timeout <= 0 {
		timeout = DefaultAwaitTimeout
	}

	clear := func() {
		b.mu.Lock()
		delete(b.pending, server)
		b.mu.Unlock()
		b.listener.unregister(flow.state)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-flow.ch:
		clear()
		if res.err != nil {
			return "", res.err
		}
		return res.code, nil
	case <-timer.C:
		clear()
		return "", fmt.Errorf("%w: %s after %s", ErrTimeout, server, timeout)
	case <-ctx.Done():
		clear()
		return "", ctx.Err()
	}
}

// Finalize exchanges the code using the staged verifier (consumed exactly
// once) and persists the resulting tokens.
func (b *Broker) Finalize(ctx context.Context, server string, cfg *oauth2.Config, code string) (*oauth2.Token, error) {
	verifier, err := b.store.TakeVerifier(server)
	if err != nil {
		return nil, err
	}

	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("oauth: code exchange for %s: %w", server, err)
	}
	if err := b.store.SaveTokens(server, tok); err != nil {
		return nil, err
	}
	b.logger.Info("oauth: authorization complete", "server", server)
	return tok, nil
}

// Invalidate clears persisted state for a backend by scope.
func (b *Broker) Invalidate(server string, scope Scope) error {
	return b.store.Invalidate(server, scope)
}

// ensureClient loads the persisted registration or performs dynamic
// registration against the server's registration endpoint.
func (b *Broker) ensureClient(ctx context.Context, server string, meta serverMetadata) (*ClientInfo, error) {
	if info, err := b.store.LoadClientInfo(server); err != nil {
		return nil, err
	} else if info != nil {
		return info, nil
	}

	if meta.RegistrationEndpoint == "" {
		return nil, fmt.Errorf("%w: %s advertises no registration endpoint", ErrRegistration, server)
	}

	body, err := json.Marshal(b.ClientMetadata())
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, meta.RegistrationEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistration, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %s returned %d: %s", ErrRegistration, server, resp.StatusCode, raw)
	}

	var info ClientInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: parsing response: %v", ErrRegistration, err)
	}
	if info.ClientID == "" {
		return nil, fmt.Errorf("%w: response carried no client_id", ErrRegistration)
	}
	if err := b.store.SaveClientInfo(server, &info); err != nil {
		return nil, err
	}
	b.logger.Info("oauth: client registered", "server", server, "client_id", info.ClientID)
	return &info, nil
}

// discover fetches RFC 8414 metadata from the server's origin, falling back
// to conventional endpoint paths when the document is absent.
func (b *Broker) discover(ctx context.Context, serverURL string) (serverMetadata, error) {
	u, err := url.Parse(serverURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return serverMetadata{}, fmt.Errorf("oauth: invalid server url %q", serverURL)
	}
	origin := u.Scheme + "://" + u.Host

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/.well-known/oauth-authorization-server", nil)
	if err != nil {
		return serverMetadata{}, err
	}
	resp, err := b.http.Do(req)
	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			var meta serverMetadata
			if err := json.NewDecoder(resp.Body).Decode(&meta); err == nil &&
				meta.AuthorizationEndpoint != "" && meta.TokenEndpoint != "" {
				return meta, nil
			}
		}
	}

	return serverMetadata{
		AuthorizationEndpoint: origin + "/authorize",
		TokenEndpoint:         origin + "/token",
		RegistrationEndpoint:  origin + "/register",
	}, nil
}

func (b *Broker) oauthConfig(info *ClientInfo, meta serverMetadata) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     info.ClientID,
		ClientSecret: info.ClientSecret,
		RedirectURL:  b.RedirectURL(),
		Endpoint: oauth2.Endpoint{
			AuthURL:   meta.AuthorizationEndpoint,
			TokenURL:  meta.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (b *Broker) serverLock(server string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	lock, ok := b.locks[server]
	if !ok {
		lock = &sync.Mutex{}
		b.locks[server] = lock
	}
	return lock
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
