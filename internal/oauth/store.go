// Package oauth implements the credential broker for remote backends: a
// file-backed store for client registration, tokens, and the PKCE verifier,
// plus the three-legged code-grant flow with a loopback redirect listener.
package oauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// Storage file names under <root>/.oauth/<backend>/.
const (
	clientInfoFile = "client_info.json"
	tokensFile     = "tokens.json"
	verifierFile   = "code_verifier.txt"
)

// ClientInfo is the persisted result of dynamic client registration.
type ClientInfo struct {
	ClientID              string `json:"client_id"`
	ClientSecret          string `json:"client_secret,omitempty"`
	ClientIDIssuedAt      int64  `json:"client_id_issued_at,omitempty"`
	ClientSecretExpiresAt int64  `json:"client_secret_expires_at,omitempty"`
	RegistrationClientURI string `json:"registration_client_uri,omitempty"`
}

// Scope selects what Invalidate clears.
type Scope string

// Invalidation scopes.
const (
	ScopeAll      Scope = "all"
	ScopeClient   Scope = "client"
	ScopeTokens   Scope = "tokens"
	ScopeVerifier Scope = "verifier"
)

// Store persists per-backend OAuth state under <root>/.oauth/.
// The broker exclusively owns this directory.
type Store struct {
	root string
}

// NewStore creates a store rooted at <root>/.oauth.
func NewStore(root string) *Store {
	return &Store{root: filepath.Join(root, ".oauth")}
}

// Dir returns the storage directory for a backend.
func (s *Store) Dir(backend string) string {
	return filepath.Join(s.root, backend)
}

// LoadClientInfo reads the persisted registration, or (nil, nil) when none
// exists.
func (s *Store) LoadClientInfo(backend string) (*ClientInfo, error) {
	var info ClientInfo
	ok, err := s.readJSON(backend, clientInfoFile, &info)
	if err != nil || !ok {
		return nil, err
	}
	return &info, nil
}

// SaveClientInfo persists the registration with an atomic replace.
func (s *Store) SaveClientInfo(backend string, info *ClientInfo) error {
	return s.writeJSON(backend, clientInfoFile, info)
}

// LoadTokens reads the persisted token set, or (nil, nil) when none exists.
func (s *Store) LoadTokens(backend string) (*oauth2.Token, error) {
	var tok oauth2.Token
	ok, err := s.readJSON(backend, tokensFile, &tok)
	if err != nil || !ok {
		return nil, err
	}
	return &tok, nil
}

// SaveTokens persists the token set with an atomic replace.
func (s *Store) SaveTokens(backend string, tok *oauth2.Token) error {
	return s.writeJSON(backend, tokensFile, tok)
}

// SaveVerifier stages the PKCE verifier before the redirect.
func (s *Store) SaveVerifier(backend, verifier string) error {
	dir := s.Dir(backend)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("oauth: create %s: %w", dir, err)
	}
	return atomicWrite(filepath.Join(dir, verifierFile), []byte(verifier))
}

// TakeVerifier reads the staged verifier and removes it: the verifier is
// written before redirect and read exactly once during callback.
func (s *Store) TakeVerifier(backend string) (string, error) {
	path := filepath.Join(s.Dir(backend), verifierFile)
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoVerifier
		}
		return "", err
	}
	if err := os.Remove(path); err != nil {
		return "", err
	}
	return string(raw), nil
}

// Invalidate clears persisted state for a backend by scope.
func (s *Store) Invalidate(backend string, scope Scope) error {
	var files []string
	switch scope {
	case ScopeAll:
		files = []string{clientInfoFile, tokensFile, verifierFile}
	case ScopeClient:
		files = []string{clientInfoFile}
	case ScopeTokens:
		files = []string{tokensFile}
	case ScopeVerifier:
		files = []string{verifierFile}
	default:
		return fmt.Errorf("oauth: unknown invalidation scope %q", scope)
	}

	var errs []error
	for _, f := range files {
		if err := os.Remove(filepath.Join(s.Dir(backend), f)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Store) readJSON(backend, file string, v any) (bool, error) {
	raw, err := os.ReadFile(filepath.Join(s.Dir(backend), file))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("oauth: parsing %s for %s: %w", file, backend, err)
	}
	return true, nil
}

func (s *Store) writeJSON(backend, file string, v any) error {
	dir := s.Dir(backend)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("oauth: create %s: %w", dir, err)
	}
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(filepath.Join(dir, file), raw)
}

// atomicWrite replaces path contents via a temp file and rename so readers
// never observe a partial blob.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
