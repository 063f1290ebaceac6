package oauth

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// callbackResult is what the loopback listener delivers for one redirect.
type callbackResult struct {
	code string
	err  error
}

// listener is the loopback HTTP server receiving authorization redirects.
// It is started idempotently on the first Begin and torn down once no
// authorization remains in flight.
type listener struct {
	mu      sync.Mutex
	port    int
	logger  *slog.Logger
	srv     *http.Server
	pending map[string]chan callbackResult // state -> waiter
}

func newListener(port int, logger *slog.Logger) *listener {
	return &listener{
		port:    port,
		logger:  logger,
		pending: make(map[string]chan callbackResult),
	}
}

// redirectURL returns the loopback redirect target served by the listener.
func (l *listener) redirectURL() string {
	return fmt.Sprintf("http://localhost:%d/callback", l.port)
}

// register starts the server if needed and returns the waiter channel for
// the given state value.
func (l *listener) register(state string) (<-chan callbackResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.srv == nil {
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", l.port))
		if err != nil {
			return nil, fmt.Errorf("oauth: loopback listener: %w", err)
		}
		// Port 0 asks the kernel for an ephemeral port; record the real one.
		l.port = ln.Addr().(*net.TCPAddr).Port

		mux := http.NewServeMux()
		mux.HandleFunc("/callback", l.handleCallback)
		l.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func(srv *http.Server) {
			if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
				l.logger.Error("oauth: loopback listener stopped", "error", err)
			}
		}(l.srv)
		l.logger.Info("oauth: loopback listener started", "url", l.redirectURL())
	}

	ch := make(chan callbackResult, 1)
	l.pending[state] = ch
	return ch, nil
}

// unregister drops a waiter and tears the server down when it was the last
// one in flight.
func (l *listener) unregister(state string) {
	l.mu.Lock()
	delete(l.pending, state)
	srv := l.srv
	idle := len(l.pending) == 0
	if idle {
		l.srv = nil
	}
	l.mu.Unlock()

	if idle && srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// handleCallback resolves the waiter matching the state parameter. The HTML
// body is informational only; the flow completes by parsing the query.
func (l *listener) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state := q.Get("state")

	l.mu.Lock()
	ch, ok := l.pending[state]
	if ok {
		delete(l.pending, state)
	}
	l.mu.Unlock()

	if !ok {
		http.Error(w, "no authorization in flight", http.StatusBadRequest)
		return
	}

	if errCode := q.Get("error"); errCode != "" {
		ch <- callbackResult{err: fmt.Errorf("%w: %s: %s", ErrDenied, errCode, q.Get("error_description"))}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body><h1>Authorization failed</h1><p>You can close this window.</p></body></html>")
		return
	}

	code := q.Get("code")
	if code == "" {
		ch <- callbackResult{err: fmt.Errorf("%w: redirect carried no code", ErrDenied)}
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}

	ch <- callbackResult{code: code}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><h1>Authorization complete</h1><p>You can close this window.</p></body></html>")
}
