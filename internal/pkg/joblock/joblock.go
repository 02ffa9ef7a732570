package joblock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "influencehub:joblock:url:"

// Locker 基于 Redis SetNX 的任务锁。
//
// 用于防止同一视频 URL 的深度分析任务并发执行：
// 先拿到锁的请求执行任务，其余请求返回"任务进行中"。
type Locker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewLocker(rdb *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Locker{
		rdb: rdb,
		ttl: ttl,
	}
}

// Acquire 尝试为 url 加锁，返回是否成功。
// rdb 为空时视为锁可用（降级为仅靠数据库唯一键兜底）。
func (l *Locker) Acquire(ctx context.Context, url string) (bool, error) {
	if l == nil || l.rdb == nil || url == "" {
		return true, nil
	}
	key := keyPrefix + hashURL(url)
	ok, err := l.rdb.SetNX(ctx, key, "1", l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("joblock setnx: %w", err)
	}
	return ok, nil
}

// Release 释放 url 上的锁，任务结束后调用（无论成败）。
func (l *Locker) Release(ctx context.Context, url string) error {
	if l == nil || l.rdb == nil || url == "" {
		return nil
	}
	key := keyPrefix + hashURL(url)
	if err := l.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("joblock del: %w", err)
	}
	return nil
}

func hashURL(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}
