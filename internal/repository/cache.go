package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ReilBleem13/ChatRelay/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ChatCache is a look-aside cache for groups and messages. A miss is reported
// as (nil, nil).
type ChatCache struct {
	redis *redis.Client
}

func NewChatCache(redis *redis.Client) *ChatCache {
	return &ChatCache{
		redis: redis,
	}
}

func groupKey(groupID int) string {
	return fmt.Sprintf("cache:group:%d", groupID)
}

func messageKey(messageID int) string {
	return fmt.Sprintf("cache:message:%d", messageID)
}

func (cc *ChatCache) GetGroup(ctx context.Context, groupID int) (*domain.ChatGroup, error) {
	var group domain.ChatGroup
	found, err := cc.get(ctx, groupKey(groupID), &group)
	if err != nil || !found {
		return nil, err
	}
	return &group, nil
}

func (cc *ChatCache) SetGroup(ctx context.Context, group *domain.ChatGroup, ttl time.Duration) error {
	return cc.set(ctx, groupKey(group.ID), group, ttl)
}

func (cc *ChatCache) InvalidateGroup(ctx context.Context, groupID int) error {
	return cc.redis.Del(ctx, groupKey(groupID)).Err()
}

func (cc *ChatCache) GetMessage(ctx context.Context, messageID int) (*domain.ChatMessage, error) {
	var msg domain.ChatMessage
	found, err := cc.get(ctx, messageKey(messageID), &msg)
	if err != nil || !found {
		return nil, err
	}
	return &msg, nil
}

func (cc *ChatCache) SetMessage(ctx context.Context, msg *domain.ChatMessage, ttl time.Duration) error {
	return cc.set(ctx, messageKey(msg.ID), msg, ttl)
}

func (cc *ChatCache) get(ctx context.Context, key string, dst any) (bool, error) {
	data, err := cc.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (cc *ChatCache) set(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return cc.redis.Set(ctx, key, data, ttl).Err()
}
