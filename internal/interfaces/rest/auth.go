package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/FreePeak/emulator-mcp-server/internal/domain"
	mcperrors "github.com/FreePeak/emulator-mcp-server/internal/domain/shared/errors"
	"github.com/FreePeak/emulator-mcp-server/internal/infrastructure/logging"
)

// DefaultWebSessionCookie is the cookie carrying the operator's web session.
const DefaultWebSessionCookie = "emumcp_session"

// TokenIssuer turns an established identity into a bearer token.
type TokenIssuer interface {
	Issue(ctx context.Context, identity domain.Identity) (domain.TokenClaims, error)
}

// WebSessions identifies the operator behind an HTTP request.
type WebSessions interface {
	Identify(r *http.Request) (domain.Identity, bool)
}

// CookieSessions maps web session cookie values to operator names. Every
// listed operator is privileged; unknown cookies are anonymous.
type CookieSessions struct {
	CookieName string
	Operators  map[string]string
}

// Identify implements WebSessions.
func (c CookieSessions) Identify(r *http.Request) (domain.Identity, bool) {
	name := c.CookieName
	if name == "" {
		name = DefaultWebSessionCookie
	}
	cookie, err := r.Cookie(name)
	if err != nil || cookie.Value == "" {
		return domain.Identity{}, false
	}
	operator, ok := c.Operators[cookie.Value]
	if !ok {
		return domain.Identity{Subject: "anonymous"}, true
	}
	return domain.Identity{Subject: operator, Privileged: true}, true
}

// TokenRequest is the body of POST /auth/token.
type TokenRequest struct {
	SessionBased *bool `json:"sessionBased"`
}

// TokenResponse is returned by POST /auth/token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IssueToken handles POST /auth/token
func (s *MCPServer) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096))
	if err := dec.Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.SessionBased == nil || !*req.SessionBased {
		s.respondError(w, http.StatusBadRequest, "invalid request body", "sessionBased must be true")
		return
	}

	identity, ok := s.web.Identify(r)
	if !ok {
		s.respondError(w, http.StatusUnauthorized, "unauthorized", "no web session")
		return
	}

	claims, err := s.issuer.Issue(r.Context(), identity)
	if err != nil {
		if mcperrors.IsAuth(err) {
			s.respondError(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		s.logger.Error("token issue failed", logging.Fields{"error": err})
		s.respondError(w, http.StatusInternalServerError, "failed to issue token", err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, TokenResponse{Token: claims.Token, ExpiresAt: claims.ExpiresAt})
}
