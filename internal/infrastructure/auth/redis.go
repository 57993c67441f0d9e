package auth

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/FreePeak/emulator-mcp-server/internal/domain"
	mcperrors "github.com/FreePeak/emulator-mcp-server/internal/domain/shared/errors"
)

// RedisTokenStore keeps tokens in Redis with a TTL, so several server
// processes can verify tokens issued by any of them.
type RedisTokenStore struct {
	client redis.UniversalClient
	prefix string
}

var _ domain.TokenStore = (*RedisTokenStore)(nil)

// RedisOptions holds connection settings.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// DialRedis connects and pings Redis.
func DialRedis(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}
	return client, nil
}

// NewRedisTokenStore creates a store on an existing client.
func NewRedisTokenStore(client redis.UniversalClient) *RedisTokenStore {
	return &RedisTokenStore{client: client, prefix: "emumcp:token:"}
}

// PutToken stores claims as JSON with the given TTL.
func (s *RedisTokenStore) PutToken(ctx context.Context, claims domain.TokenClaims, ttl time.Duration) error {
	data, err := json.Marshal(claims)
	if err != nil {
		return errors.Wrap(err, "failed to marshal token claims")
	}
	if err := s.client.Set(ctx, s.key(claims.Token), data, ttl).Err(); err != nil {
		return mcperrors.NewIOError("failed to store token", err)
	}
	return nil
}

// GetToken returns the claims for token.
func (s *RedisTokenStore) GetToken(ctx context.Context, token string) (domain.TokenClaims, error) {
	data, err := s.client.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return domain.TokenClaims{}, domain.ErrTokenInvalid
		}
		return domain.TokenClaims{}, mcperrors.NewIOError("failed to get token", err)
	}

	var claims domain.TokenClaims
	if err := json.Unmarshal(data, &claims); err != nil {
		return domain.TokenClaims{}, domain.ErrTokenInvalid
	}
	return claims, nil
}

func (s *RedisTokenStore) key(token string) string {
	return s.prefix + token
}
