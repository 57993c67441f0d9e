// Package auth issues and verifies the short-lived bearer tokens that admit a
// connection.
package auth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/FreePeak/emulator-mcp-server/internal/domain"
	mcperrors "github.com/FreePeak/emulator-mcp-server/internal/domain/shared/errors"
	"github.com/FreePeak/emulator-mcp-server/internal/infrastructure/logging"
)

// DefaultTokenTTL is the lifetime of an issued token.
const DefaultTokenTTL = 15 * time.Minute

// Issuer converts validated web identities into bearer tokens.
type Issuer struct {
	store  domain.TokenStore
	ttl    time.Duration
	now    func() time.Time
	logger *logging.Logger
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithTTL sets the token lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(i *Issuer) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(i *Issuer) {
		i.logger = logger
	}
}

// NewIssuer creates an issuer backed by store.
func NewIssuer(store domain.TokenStore, opts ...Option) *Issuer {
	i := &Issuer{
		store:  store,
		ttl:    DefaultTokenTTL,
		now:    time.Now,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// TTL returns the configured token lifetime.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue creates a token for a privileged identity.
func (i *Issuer) Issue(ctx context.Context, identity domain.Identity) (domain.TokenClaims, error) {
	if identity.Subject == "" || !identity.Privileged {
		return domain.TokenClaims{}, mcperrors.NewAuthError("web session is not privileged")
	}

	now := i.now().UTC()
	claims := domain.TokenClaims{
		Token:     uuid.NewString(),
		Subject:   identity.Subject,
		IssuedAt:  now,
		ExpiresAt: now.Add(i.ttl),
	}

	// Expired tokens stay in the store for one more lifetime so Verify can tell
	// them apart from tokens that were never issued.
	if err := i.store.PutToken(ctx, claims, 2*i.ttl); err != nil {
		return domain.TokenClaims{}, mcperrors.Wrap(err, "store token")
	}

	i.logger.Debug("token issued", logging.Fields{"subject": identity.Subject, "expires_at": claims.ExpiresAt})
	return claims, nil
}

// Verify returns the claims of a live token, ErrTokenExpired or ErrTokenInvalid.
func (i *Issuer) Verify(ctx context.Context, token string) (domain.TokenClaims, error) {
	if token == "" {
		return domain.TokenClaims{}, domain.ErrTokenInvalid
	}

	claims, err := i.store.GetToken(ctx, token)
	if err != nil {
		return domain.TokenClaims{}, err
	}
	if claims.Expired(i.now()) {
		return claims, domain.ErrTokenExpired
	}
	return claims, nil
}
