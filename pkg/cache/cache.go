// pkg/cache/cache.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"MindTrack/pkg/config"
	"MindTrack/pkg/model"
)

const (
	lastAnalysisPrefix = "last_analysis:"
	revokedPrefix      = "revoked_token:"

	// DefaultTTL 最近分析的缓存时长
	DefaultTTL = 30 * 24 * time.Hour
)

// NewClient 按配置创建 Redis 客户端并检查连接
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return client, nil
}

// AnalysisCache 最近一次完整分析的缓存
type AnalysisCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewAnalysisCache(client *redis.Client, ttl time.Duration) *AnalysisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &AnalysisCache{redis: client, ttl: ttl}
}

func lastAnalysisKey(userID string) string {
	return lastAnalysisPrefix + userID
}

// Get 未命中时返回 nil, nil
func (c *AnalysisCache) Get(ctx context.Context, userID string) (*model.LastAnalysis, error) {
	data, err := c.redis.Get(ctx, lastAnalysisKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取分析缓存失败: %w", err)
	}

	var last model.LastAnalysis
	if err := json.Unmarshal(data, &last); err != nil {
		return nil, fmt.Errorf("解析分析缓存失败: %w", err)
	}
	return &last, nil
}

func (c *AnalysisCache) Set(ctx context.Context, userID string, last *model.LastAnalysis) error {
	data, err := json.Marshal(last)
	if err != nil {
		return fmt.Errorf("序列化分析缓存失败: %w", err)
	}
	if err := c.redis.Set(ctx, lastAnalysisKey(userID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("写入分析缓存失败: %w", err)
	}
	return nil
}

func (c *AnalysisCache) Delete(ctx context.Context, userID string) error {
	return c.redis.Del(ctx, lastAnalysisKey(userID)).Err()
}

// Ping 供健康检查使用
func (c *AnalysisCache) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// RevocationList 已注销的令牌 ID，过期后自动清除
type RevocationList struct {
	redis *redis.Client
}

func NewRevocationList(client *redis.Client) *RevocationList {
	return &RevocationList{redis: client}
}

func (r *RevocationList) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return r.redis.Set(ctx, revokedPrefix+tokenID, 1, ttl).Err()
}

func (r *RevocationList) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.redis.Exists(ctx, revokedPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("查询令牌状态失败: %w", err)
	}
	return n > 0, nil
}
