package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Фиксированное окно: первый INCR ставит срок жизни ключа.
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// Redis: лимитер с общим счётчиком в Redis.
type Redis struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

// NewRedis создаёт лимитер: не больше limit действий за window на ключ.
func NewRedis(client redis.UniversalClient, prefix string, limit int, window time.Duration) *Redis {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "bingoo:rate_limit"
	}
	return &Redis{client: client, prefix: prefix, limit: limit, window: window}
}

// Connect подключается к Redis и проверяет соединение.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

// Allow увеличивает счётчик ключа и сообщает, укладывается ли действие в лимит.
// Ошибка Redis возвращается как есть: решение (пропустить или отказать) за вызывающим.
func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	if r.limit <= 0 || r.window <= 0 {
		return true, nil
	}

	windowMs := r.window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	count, err := fixedWindowScript.Run(ctx, r.client, []string{r.prefix + ":" + key}, windowMs).Int64()
	if err != nil {
		return false, fmt.Errorf("redis rate limit %s: %w", key, err)
	}
	return count <= int64(r.limit), nil
}
