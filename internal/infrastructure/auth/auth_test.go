package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FreePeak/emulator-mcp-server/internal/domain"
	mcperrors "github.com/FreePeak/emulator-mcp-server/internal/domain/shared/errors"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func stores(t *testing.T) map[string]domain.TokenStore {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]domain.TokenStore{
		"memory": NewMemoryTokenStore(),
		"redis":  NewRedisTokenStore(client),
	}
}

func TestIssueAndVerify(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			c := &clock{t: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)}
			issuer := NewIssuer(store, WithTTL(time.Minute), WithClock(c.Now))
			ctx := context.Background()

			claims, err := issuer.Issue(ctx, domain.Identity{Subject: "operator", Privileged: true})
			require.NoError(t, err)
			assert.NotEmpty(t, claims.Token)
			assert.Equal(t, c.t.Add(time.Minute), claims.ExpiresAt)

			verified, err := issuer.Verify(ctx, claims.Token)
			require.NoError(t, err)
			assert.Equal(t, "operator", verified.Subject)

			c.Advance(time.Minute)
			_, err = issuer.Verify(ctx, claims.Token)
			assert.ErrorIs(t, err, domain.ErrTokenExpired)
			assert.True(t, mcperrors.IsAuth(err))

			_, err = issuer.Verify(ctx, "never-issued")
			assert.ErrorIs(t, err, domain.ErrTokenInvalid)

			_, err = issuer.Verify(ctx, "")
			assert.ErrorIs(t, err, domain.ErrTokenInvalid)
		})
	}
}

func TestIssueRejectsUnprivileged(t *testing.T) {
	issuer := NewIssuer(NewMemoryTokenStore())

	_, err := issuer.Issue(context.Background(), domain.Identity{Subject: "guest"})
	assert.True(t, mcperrors.IsAuth(err))

	_, err = issuer.Issue(context.Background(), domain.Identity{Privileged: true})
	assert.True(t, mcperrors.IsAuth(err))
}

func TestTokensAreUnique(t *testing.T) {
	issuer := NewIssuer(NewMemoryTokenStore())
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		claims, err := issuer.Issue(context.Background(), domain.Identity{Subject: "op", Privileged: true})
		require.NoError(t, err)
		assert.False(t, seen[claims.Token])
		seen[claims.Token] = true
	}
}

func TestMemoryStorePrunesLapsedEntries(t *testing.T) {
	c := &clock{t: time.Now()}
	store := NewMemoryTokenStore()
	store.now = c.Now
	ctx := context.Background()

	require.NoError(t, store.PutToken(ctx, domain.TokenClaims{Token: "a"}, time.Second))
	c.Advance(2 * time.Second)

	_, err := store.GetToken(ctx, "a")
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)

	require.NoError(t, store.PutToken(ctx, domain.TokenClaims{Token: "b"}, time.Second))
	assert.Len(t, store.tokens, 1)
}

func TestRedisStoreTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisTokenStore(client)
	ctx := context.Background()
	require.NoError(t, store.PutToken(ctx, domain.TokenClaims{Token: "tok", Subject: "op"}, time.Minute))
	assert.Equal(t, time.Minute, mr.TTL("emumcp:token:tok"))

	mr.FastForward(2 * time.Minute)
	_, err := store.GetToken(ctx, "tok")
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)
}

func TestDialRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	addr := mr.Addr()
	client, err := DialRedis(context.Background(), RedisOptions{Addr: addr})
	require.NoError(t, err)
	defer client.Close()

	mr.Close()
	_, err = DialRedis(context.Background(), RedisOptions{Addr: addr})
	assert.Error(t, err)
}
