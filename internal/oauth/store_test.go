package oauth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestStore_ClientInfoRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())

	if info, err := store.LoadClientInfo("linear"); err != nil || info != nil {
		t.Fatalf("empty store: got (%v, %v), want (nil, nil)", info, err)
	}

	want := &ClientInfo{ClientID: "abc", ClientSecret: "shh"}
	if err := store.SaveClientInfo("linear", want); err != nil {
		t.Fatal(err)
	}

	got, err := store.LoadClientInfo("linear")
	if err != nil {
		t.Fatal(err)
	}
	if got.ClientID != "abc" || got.ClientSecret != "shh" {
		t.Errorf("got %+v", got)
	}
}

func TestStore_TokensRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())
	want := &oauth2.Token{
		AccessToken:  "at",
		RefreshToken: "rt",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour).Round(time.Second),
	}
	if err := store.SaveTokens("linear", want); err != nil {
		t.Fatal(err)
	}

	got, err := store.LoadTokens("linear")
	if err != nil {
		t.Fatal(err)
	}
	if got.AccessToken != "at" || got.RefreshToken != "rt" {
		t.Errorf("got %+v", got)
	}
	if !got.Valid() {
		t.Error("round-tripped token should still be valid")
	}
}

func TestStore_VerifierReadOnce(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())
	if err := store.SaveVerifier("linear", "secret-verifier"); err != nil {
		t.Fatal(err)
	}

	got, err := store.TakeVerifier("linear")
	if err != nil {
		t.Fatal(err)
	}
	if got != "secret-verifier" {
		t.Errorf("verifier = %q", got)
	}

	// The verifier is consumed exactly once.
	if _, err := store.TakeVerifier("linear"); !errors.Is(err, ErrNoVerifier) {
		t.Errorf("second take: got %v, want ErrNoVerifier", err)
	}
}

func TestStore_InvalidateAll(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := NewStore(root)
	if err := store.SaveClientInfo("linear", &ClientInfo{ClientID: "x"}); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveTokens("linear", &oauth2.Token{AccessToken: "x"}); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveVerifier("linear", "v"); err != nil {
		t.Fatal(err)
	}

	if err := store.Invalidate("linear", ScopeAll); err != nil {
		t.Fatal(err)
	}

	dir := filepath.Join(root, ".oauth", "linear")
	for _, f := range []string{"client_info.json", "tokens.json", "code_verifier.txt"} {
		if _, err := os.Stat(filepath.Join(dir, f)); !os.IsNotExist(err) {
			t.Errorf("%s should be gone after Invalidate(all)", f)
		}
	}

	// Idempotent: invalidating again is not an error.
	if err := store.Invalidate("linear", ScopeAll); err != nil {
		t.Errorf("second invalidate: %v", err)
	}
}

func TestStore_InvalidateScoped(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := NewStore(root)
	if err := store.SaveClientInfo("linear", &ClientInfo{ClientID: "x"}); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveTokens("linear", &oauth2.Token{AccessToken: "x"}); err != nil {
		t.Fatal(err)
	}

	if err := store.Invalidate("linear", ScopeTokens); err != nil {
		t.Fatal(err)
	}

	if tok, err := store.LoadTokens("linear"); err != nil || tok != nil {
		t.Errorf("tokens should be cleared, got (%v, %v)", tok, err)
	}
	if info, err := store.LoadClientInfo("linear"); err != nil || info == nil {
		t.Errorf("client info should survive, got (%v, %v)", info, err)
	}
}

func TestStore_UnknownScope(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())
	if err := store.Invalidate("linear", Scope("everything")); err == nil {
		t.Error("unknown scope should be rejected")
	}
}
