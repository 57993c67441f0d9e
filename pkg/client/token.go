package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"

	mcperrors "github.com/FreePeak/emulator-mcp-server/internal/domain/shared/errors"
)

// DefaultWebSessionCookie is the cookie the token endpoint reads the web session from.
const DefaultWebSessionCookie = "emumcp_session"

// TokenSource supplies bearer tokens for the authenticate frame.
type TokenSource interface {
	// Token returns a cached token or fetches a fresh one.
	Token(ctx context.Context) (string, error)
	// Invalidate drops the cached token so the next Token call re-issues.
	Invalidate()
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token(ctx context.Context) (string, error) {
	if t == "" {
		return "", mcperrors.NewAuthError("no token configured")
	}
	return string(t), nil
}

// Invalidate implements TokenSource.
func (t StaticToken) Invalidate() {}

// HTTPTokenSource fetches tokens from the POST /auth/token side-channel,
// presenting an established web session cookie.
type HTTPTokenSource struct {
	URL        string
	WebSession string
	// CookieName defaults to DefaultWebSessionCookie.
	CookieName string
	HTTPClient *http.Client

	mu     sync.Mutex
	cached string
}

// NewHTTPTokenSource creates a token source for the given endpoint and web session.
func NewHTTPTokenSource(url, webSession string) *HTTPTokenSource {
	return &HTTPTokenSource{
		URL:        url,
		WebSession: webSession,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Token implements TokenSource.
func (s *HTTPTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != "" {
		return s.cached, nil
	}
	token, err := s.fetch(ctx)
	if err != nil {
		return "", err
	}
	s.cached = token
	return token, nil
}

// Invalidate implements TokenSource.
func (s *HTTPTokenSource) Invalidate() {
	s.mu.Lock()
	s.cached = ""
	s.mu.Unlock()
}

func (s *HTTPTokenSource) fetch(ctx context.Context) (string, error) {
	body, _ := json.Marshal(map[string]bool{"sessionBased": true})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "build token request")
	}
	req.Header.Set("Content-Type", "application/json")

	cookie := s.CookieName
	if cookie == "" {
		cookie = DefaultWebSessionCookie
	}
	if s.WebSession != "" {
		req.AddCookie(&http.Cookie{Name: cookie, Value: s.WebSession})
	}

	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", mcperrors.NewConnectionError(fmt.Sprintf("token request: %v", err))
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return "", mcperrors.NewAuthError("web session is not privileged")
	case http.StatusBadRequest:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", mcperrors.NewValidationError("body", string(bytes.TrimSpace(msg)))
	default:
		return "", mcperrors.NewInternalError(fmt.Sprintf("token endpoint returned %s", resp.Status))
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", errors.Wrap(err, "decode token response")
	}
	if out.Token == "" {
		return "", mcperrors.NewAuthError("token endpoint returned no token")
	}
	return out.Token, nil
}
