package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"smarthire-ats/internal/config"
	"smarthire-ats/internal/constants"
	"smarthire-ats/internal/logger"
	"smarthire-ats/internal/tracing"
	"smarthire-ats/internal/types"

	"github.com/google/uuid"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a key is not found in Redis.
var ErrNotFound = redis.Nil

// releaseLockScript 只删除自己持有的锁
const releaseLockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`

// Redis wraps the Redis client
type Redis struct {
	Client  *redis.Client
	config  *config.RedisConfig
	jdTTL   time.Duration
	lockTTL time.Duration
	logger  zerolog.Logger
}

// NewRedis creates a new Redis client connection
func NewRedis(ctx context.Context, cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		// 连接池设置
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		// 超时设置
		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,

		// 重试设置
		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: time.Duration(cfg.MinRetryBackoffMS) * time.Millisecond,
		MaxRetryBackoff: time.Duration(cfg.MaxRetryBackoffMS) * time.Millisecond,
	})

	// 添加OpenTelemetry钩子, 记录所有Redis操作
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	jdTTL := constants.JDEmbeddingCacheDuration
	if cfg.JDVectorTTLHours > 0 {
		jdTTL = time.Duration(cfg.JDVectorTTLHours) * time.Hour
	}
	return &Redis{
		Client:  client,
		config:  cfg,
		jdTTL:   jdTTL,
		lockTTL: constants.ApplicationLockDuration,
		logger:  logger.Component("redis"),
	}, nil
}

// Close closes the Redis client connection
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping checks the Redis connection
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}

// GetEmbeddings 读取 JD 分块向量缓存，未命中时 ok=false
func (r *Redis) GetEmbeddings(ctx context.Context, key string) ([]types.EmbeddedChunk, bool, error) {
	raw, err := r.Client.Get(ctx, fmt.Sprintf(constants.KeyJobDescriptionEmbeddings, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("读取JD向量缓存失败: %w", err)
	}
	var chunks []types.EmbeddedChunk
	if err := json.Unmarshal(raw, &chunks); err != nil {
		return nil, false, fmt.Errorf("反序列化JD向量缓存失败: %w", err)
	}
	return chunks, true, nil
}

// SetEmbeddings 写入 JD 分块向量缓存
func (r *Redis) SetEmbeddings(ctx context.Context, key string, chunks []types.EmbeddedChunk) error {
	raw, err := json.Marshal(chunks)
	if err != nil {
		return fmt.Errorf("序列化JD向量失败: %w", err)
	}
	if err := r.Client.Set(ctx, fmt.Sprintf(constants.KeyJobDescriptionEmbeddings, key), raw, r.jdTTL).Err(); err != nil {
		return fmt.Errorf("写入JD向量缓存失败: %w", err)
	}
	return nil
}

// AcquireLock 尝试获取一个分布式锁，未获取到时返回空字符串
func (r *Redis) AcquireLock(ctx context.Context, lockKey string, expiration time.Duration) (string, error) {
	lockValue := uuid.NewString()
	ok, err := r.Client.SetNX(ctx, lockKey, lockValue, expiration).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return lockValue, nil
}

// ReleaseLock 释放一个分布式锁，使用Lua脚本保证原子性
func (r *Redis) ReleaseLock(ctx context.Context, lockKey string, lockValue string) (bool, error) {
	res, err := r.Client.Eval(ctx, releaseLockScript, []string{lockKey}, lockValue).Result()
	if err != nil {
		return false, err
	}
	released, ok := res.(int64)
	return ok && released == 1, nil
}

// Lock 获取申请级评分锁，acquired=false 表示其他请求正在处理
func (r *Redis) Lock(ctx context.Context, applicationID string) (func(), bool, error) {
	key := fmt.Sprintf(constants.KeyApplicationLock, applicationID)
	value, err := r.AcquireLock(ctx, key, r.lockTTL)
	if err != nil {
		return nil, false, fmt.Errorf("获取申请锁失败: %w", err)
	}
	if value == "" {
		return nil, false, nil
	}
	release := func() {
		// 调用方的 ctx 可能已取消，释放锁使用独立的超时
		releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if _, err := r.ReleaseLock(releaseCtx, key, value); err != nil {
			r.logger.Warn().Err(err).Str("key", tracing.SafeRedisKey(key)).Msg("释放申请锁失败")
		}
	}
	return release, true, nil
}
