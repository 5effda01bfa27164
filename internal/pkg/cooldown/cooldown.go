// Package cooldown 基于 Redis SETNX 的冷却窗口，用于限制同一邮箱的验证码邮件频率。
package cooldown

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "uptask:cooldown:"

// Cooldown 在 ttl 窗口内对同一 key 只放行一次。
type Cooldown struct {
	rdb *redis.Client
	ttl time.Duration
}

// New 创建冷却器，ttl <= 0 时默认 60 秒。
func New(rdb *redis.Client, ttl time.Duration) *Cooldown {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Cooldown{rdb: rdb, ttl: ttl}
}

// Allow 返回 key 当前是否可以放行；放行后开始新的冷却窗口。
//
// 未配置 Redis 时总是放行。
func (c *Cooldown) Allow(ctx context.Context, key string) (bool, error) {
	if c == nil || c.rdb == nil || key == "" {
		return true, nil
	}
	ok, err := c.rdb.SetNX(ctx, redisKey(key), "1", c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("cooldown setnx: %w", err)
	}
	return ok, nil
}

// Reset 清除 key 的冷却状态。
func (c *Cooldown) Reset(ctx context.Context, key string) error {
	if c == nil || c.rdb == nil || key == "" {
		return nil
	}
	if err := c.rdb.Del(ctx, redisKey(key)).Err(); err != nil {
		return fmt.Errorf("cooldown del: %w", err)
	}
	return nil
}

func redisKey(key string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(key)))
	return keyPrefix + hex.EncodeToString(sum[:])
}
