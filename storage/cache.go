package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"board-sync/domain"
)

type backend interface {
	domain.UserStore
	domain.BoardStore
}

// Cache wraps user and board lookups with Redis read-through caching.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func userCacheKey(id string) string  { return "user:" + id }
func boardCacheKey(id string) string { return "board:" + id }

func (c *Cache) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	if c.load(ctx, userCacheKey(id), &u) {
		return &u, nil
	}
	got, err := c.base.GetUser(ctx, id)
	if err != nil || got == nil {
		return got, err
	}
	// PasswordHash is excluded from JSON so it never reaches Redis.
	c.store(ctx, userCacheKey(id), got)
	return got, nil
}

func (c *Cache) ListUsers(ctx context.Context) ([]domain.User, error) {
	return c.base.ListUsers(ctx)
}

func (c *Cache) SaveUser(ctx context.Context, u domain.User) error {
	if err := c.base.SaveUser(ctx, u); err != nil {
		return err
	}
	c.evict(ctx, userCacheKey(u.ID))
	return nil
}

func (c *Cache) GetBoard(ctx context.Context, id string) (*domain.Board, error) {
	var b domain.Board
	if c.load(ctx, boardCacheKey(id), &b) {
		return &b, nil
	}
	got, err := c.base.GetBoard(ctx, id)
	if err != nil || got == nil {
		return got, err
	}
	c.store(ctx, boardCacheKey(id), got)
	return got, nil
}

func (c *Cache) ListBoards(ctx context.Context, f domain.BoardFilter) ([]domain.Board, error) {
	return c.base.ListBoards(ctx, f)
}

func (c *Cache) SaveBoard(ctx context.Context, b domain.Board) error {
	if err := c.base.SaveBoard(ctx, b); err != nil {
		return err
	}
	c.evict(ctx, boardCacheKey(b.ID))
	return nil
}

func (c *Cache) load(ctx context.Context, key string, dst any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := sonic.Unmarshal(data, dst); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *Cache) store(ctx context.Context, key string, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(v)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, key string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, key).Err()
}
