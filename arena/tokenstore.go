package arena

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTokenKey is the Redis key the session token is stored under.
const DefaultTokenKey = "arena:token:v1"

// StoredToken is a backend session token. ExpiresAt is unix seconds.
type StoredToken struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
	Address   string `json:"address"`
}

// usable reports whether the token is complete and unexpired at now.
func (t *StoredToken) usable(now time.Time) bool {
	return t != nil && t.Token != "" && t.Address != "" && t.ExpiresAt > now.Unix()
}

// TokenStore persists the session token. Load returns nil, nil when no
// token is stored.
type TokenStore interface {
	Load(ctx context.Context) (*StoredToken, error)
	Save(ctx context.Context, token StoredToken) error
	Clear(ctx context.Context) error
}

// MemoryTokenStore keeps the token in process memory.
type MemoryTokenStore struct {
	mu    sync.Mutex
	token *StoredToken
}

// NewMemoryTokenStore returns an empty in-process store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (m *MemoryTokenStore) Load(ctx context.Context) (*StoredToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == nil {
		return nil, nil
	}
	tok := *m.token
	return &tok, nil
}

func (m *MemoryTokenStore) Save(ctx context.Context, token StoredToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = &token
	return nil
}

func (m *MemoryTokenStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = nil
	return nil
}

// RedisTokenStore keeps the token in Redis with a TTL matching its expiry,
// so sessions survive across CLI invocations.
type RedisTokenStore struct {
	client redis.Cmdable
	key    string
	now    func() time.Time
}

// NewRedisTokenStore stores the token as JSON under key, DefaultTokenKey
// when empty.
func NewRedisTokenStore(client redis.Cmdable, key string) *RedisTokenStore {
	if key == "" {
		key = DefaultTokenKey
	}
	return &RedisTokenStore{client: client, key: key, now: time.Now}
}

func (r *RedisTokenStore) Load(ctx context.Context) (*StoredToken, error) {
	raw, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	var tok StoredToken
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		// A corrupt entry is treated as absent.
		log.Warnf("Discarding unreadable token at %s: %v", r.key, err)
		return nil, nil
	}
	return &tok, nil
}

func (r *RedisTokenStore) Save(ctx context.Context, token StoredToken) error {
	ttl := time.Unix(token.ExpiresAt, 0).Sub(r.now())
	if ttl <= 0 {
		return r.Clear(ctx)
	}
	raw, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := r.client.Set(ctx, r.key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

func (r *RedisTokenStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return nil
}
