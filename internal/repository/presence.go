package repository

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// PresenceRepo keeps one Redis set of online user ids per group. The expiry
// belongs to the whole set, so every heartbeat from any member keeps all of
// them alive.
type PresenceRepo struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewPresenceRepo(redis *redis.Client, ttl time.Duration) *PresenceRepo {
	return &PresenceRepo{
		redis: redis,
		ttl:   ttl,
	}
}

func presenceKey(groupID int) string {
	return fmt.Sprintf("presence:group:%d", groupID)
}

func (pr *PresenceRepo) SetUserOnline(ctx context.Context, userID, groupID int) error {
	key := presenceKey(groupID)

	pipe := pr.redis.TxPipeline()
	pipe.SAdd(ctx, key, userID)
	pipe.Expire(ctx, key, pr.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set user %d online in group %d: %w", userID, groupID, err)
	}
	return nil
}

func (pr *PresenceRepo) SetUserOffline(ctx context.Context, userID, groupID int) error {
	if err := pr.redis.SRem(ctx, presenceKey(groupID), userID).Err(); err != nil {
		return fmt.Errorf("set user %d offline in group %d: %w", userID, groupID, err)
	}
	return nil
}

func (pr *PresenceRepo) IsUserOnline(ctx context.Context, userID, groupID int) (bool, error) {
	online, err := pr.redis.SIsMember(ctx, presenceKey(groupID), userID).Result()
	if err != nil {
		return false, fmt.Errorf("check presence of user %d in group %d: %w", userID, groupID, err)
	}
	return online, nil
}

func (pr *PresenceRepo) GetOnlineUsers(ctx context.Context, groupID int) ([]int, error) {
	members, err := pr.redis.SMembers(ctx, presenceKey(groupID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get online users of group %d: %w", groupID, err)
	}

	userIDs := make([]int, 0, len(members))
	for _, m := range members {
		id, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		userIDs = append(userIDs, id)
	}
	sort.Ints(userIDs)
	return userIDs, nil
}
