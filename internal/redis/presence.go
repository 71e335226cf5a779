// Package redis 在线状态快照存储
package redis

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"sudooom.im.sync/internal/config"
	apperrors "sudooom.im.sync/pkg/errors"
)

const (
	// PresenceOnlineKey 在线用户集合
	PresenceOnlineKey = "im:presence:online"
)

// NewClient 创建 Redis 客户端
func NewClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// PresenceStore 基于 Redis Set 的在线用户快照，实现引擎的 PresenceSource
type PresenceStore struct {
	client *redis.Client
	key    string
	logger *slog.Logger
}

// NewPresenceStore 创建在线状态存储
func NewPresenceStore(client *redis.Client) *PresenceStore {
	return &PresenceStore{
		client: client,
		key:    PresenceOnlineKey,
		logger: slog.Default().With("component", "redis"),
	}
}

// OnlineUsers 当前在线用户
func (s *PresenceStore) OnlineUsers(ctx context.Context) ([]string, error) {
	users, err := s.client.SMembers(ctx, s.key).Result()
	if err != nil {
		s.logger.Error("Failed to load online users", "key", s.key, "error", err)
		return nil, apperrors.ErrFetch.Wrap(err)
	}
	s.logger.Debug("Online users loaded", "count", len(users))
	return users, nil
}

// SetOnline 标记用户在线
func (s *PresenceStore) SetOnline(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	members := make([]any, len(userIDs))
	for i, id := range userIDs {
		members[i] = id
	}
	if err := s.client.SAdd(ctx, s.key, members...).Err(); err != nil {
		return apperrors.ErrTransport.Wrap(err)
	}
	return nil
}

// SetOffline 标记用户离线
func (s *PresenceStore) SetOffline(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	members := make([]any, len(userIDs))
	for i, id := range userIDs {
		members[i] = id
	}
	if err := s.client.SRem(ctx, s.key, members...).Err(); err != nil {
		return apperrors.ErrTransport.Wrap(err)
	}
	return nil
}

// Ping 检查连接
func (s *PresenceStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
