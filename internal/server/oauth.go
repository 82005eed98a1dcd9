package server

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"sync"
)

// Exchanger redeems an authorization code, typically by calling the client's CompleteAuthorization.
type Exchanger func(ctx context.Context, code string) error

// OAuthResult contains the result of an OAuth authorization flow.
type OAuthResult struct {
	Code string
	err  error
}

func (o *OAuthResult) Error() error {
	return o.err
}

// OAuthHandler handles the redirect back from Spotify's consent page.
// Implements the Handler interface for registration with a Router.
type OAuthHandler struct {
	path        string
	state       string
	exchange    Exchanger
	resultChan  chan OAuthResult
	once        sync.Once
	callbackHit bool
	mu          sync.Mutex
}

// NewOAuthHandler creates a handler serving path. state must match the value sent in the authorize URL. A nil
// exchange only captures the code.
func NewOAuthHandler(path, state string, exchange Exchanger) *OAuthHandler {
	if path == "" {
		path = "/callback"
	}
	return &OAuthHandler{
		path:       path,
		state:      state,
		exchange:   exchange,
		resultChan: make(chan OAuthResult, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *OAuthHandler) Routes() []string {
	return []string{h.path}
}

// ServeHTTP handles the OAuth callback request.
//
// Validates the state parameter, redeems the code, and sends the result through the result channel. Only the first
// request is processed.
func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.callbackHit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.callbackHit = true
	h.mu.Unlock()

	q := r.URL.Query()
	if q.Get("state") != h.state {
		h.Send(OAuthResult{err: fmt.Errorf("invalid state parameter")})
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	code := q.Get("code")
	if code == "" {
		err := fmt.Errorf("authorization failed: %s", q.Get("error"))
		if desc := q.Get("error_description"); desc != "" {
			err = fmt.Errorf("authorization failed: %s - %s", q.Get("error"), desc)
		}
		h.Send(OAuthResult{err: err})
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	if h.exchange != nil {
		if err := h.exchange(context.WithoutCancel(r.Context()), code); err != nil {
			h.Send(OAuthResult{Code: code, err: fmt.Errorf("token exchange failed: %w", err)})
			http.Error(w, "Token exchange failed", http.StatusInternalServerError)
			return
		}
	}

	h.Send(OAuthResult{Code: code})

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, successPage("Authorization Successful", "You can close this window and return to the terminal."))
}

// Send sends the OAuth result through the channel (only once).
func (h *OAuthHandler) Send(result OAuthResult) {
	h.once.Do(func() {
		h.resultChan <- result
		close(h.resultChan)
	})
}

// Result returns the result channel for receiving OAuth flow completion.
//
// Channel will receive exactly one result and then be closed.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.resultChan
}

func successPage(title, message string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <title>%[1]s</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #1DB954; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>✓ %[1]s</h1>
        <p>%[2]s</p>
    </div>
</body>
</html>
`, html.EscapeString(title), html.EscapeString(message))
}
