package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"dorm-track/backend/config"
)

// Client Redis 客户端封装
// 用于自动分配的租户级批次锁与接口限流
type Client struct {
	rdb    goredis.UniversalClient
	logger *zap.Logger
}

// NewClient 创建 Redis 连接并执行 Ping 健康检查
func NewClient(cfg *config.RedisConfig, logger *zap.Logger) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("Redis 连接失败: %w", err)
	}

	logger.Info("Redis 连接成功", zap.String("addr", cfg.Addr))

	return &Client{rdb: rdb, logger: logger}, nil
}

// NewFromClient 使用已有的 go-redis 客户端构造封装（测试中配合 miniredis 使用）
func NewFromClient(rdb goredis.UniversalClient, logger *zap.Logger) *Client {
	return &Client{rdb: rdb, logger: logger}
}

// Ping 健康检查
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// ── 分布式锁 ──

// 仅当值与持有者 token 一致时才删除，防止释放他人的锁
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// AcquireLock 以 SET NX PX 获取锁
// 返回持有者 token；锁已被占用时 ok=false 且 err=nil
func (c *Client) AcquireLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error) {
	token = uuid.NewString()
	ok, err = c.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("获取锁 %s 失败: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// ReleaseLock 释放锁；锁已过期或被他人持有时静默返回
func (c *Client) ReleaseLock(ctx context.Context, key, token string) error {
	n, err := releaseScript.Run(ctx, c.rdb, []string{key}, token).Int()
	if err != nil {
		return fmt.Errorf("释放锁 %s 失败: %w", key, err)
	}
	if n == 0 {
		c.logger.Warn("释放锁时锁已不属于当前持有者", zap.String("key", key))
	}
	return nil
}

// ── 限流 ──

const rateLimitPrefix = "ratelimit:"

// 清理过期条目、计数与写入在同一脚本内完成，并发请求不会同时看到未满的窗口
// KEYS[1] 窗口 key；ARGV: 窗口起点, 当前时间, 上限, 成员, 过期毫秒
var rateLimitScript = goredis.NewScript(`
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
if redis.call("ZCARD", KEYS[1]) >= tonumber(ARGV[3]) then
	return 0
end
redis.call("ZADD", KEYS[1], ARGV[2], ARGV[4])
redis.call("PEXPIRE", KEYS[1], ARGV[5])
return 1
`)

// CheckRateLimit 基于有序集合的滑动窗口限流
// 返回 true 表示允许本次请求
func (c *Client) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	windowStart := now.Add(-window).UnixNano()

	n, err := rateLimitScript.Run(ctx, c.rdb, []string{rateLimitPrefix + key},
		strconv.FormatInt(windowStart, 10),
		strconv.FormatInt(now.UnixNano(), 10),
		limit,
		uuid.NewString(),
		window.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("限流窗口检查失败: %w", err)
	}
	return n == 1, nil
}

// Close 关闭 Redis 连接
func (c *Client) Close() error {
	return c.rdb.Close()
}
