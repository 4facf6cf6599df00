package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ReilBleem13/ChatRelay/internal/domain"
	"github.com/ReilBleem13/ChatRelay/internal/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
)

type subscription struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
}

// RedisRelay maps every chat group onto one Redis channel and keeps at most
// one Redis subscription per group for the whole process. Each subscription
// has its own listener goroutine feeding the registered handler.
type RedisRelay struct {
	redis  *redis.Client
	prefix string
	log    *logger.Logger

	mu   sync.Mutex
	subs map[int]*subscription
	wg   sync.WaitGroup
}

func NewRedisRelay(redis *redis.Client, prefix string, log *logger.Logger) *RedisRelay {
	return &RedisRelay{
		redis:  redis,
		prefix: prefix,
		log:    log.With("component", "relay"),
		subs:   make(map[int]*subscription),
	}
}

func (rr *RedisRelay) Channel(groupID int) string {
	return fmt.Sprintf("%s%d", rr.prefix, groupID)
}

func (rr *RedisRelay) Publish(ctx context.Context, groupID int, event *domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := rr.redis.Publish(ctx, rr.Channel(groupID), data).Err(); err != nil {
		return fmt.Errorf("publish %s event to group %d: %w", event.Type, groupID, err)
	}
	return nil
}

// Subscribe starts delivering events of the group to handler. It is a no-op
// if the process already listens to that group.
func (rr *RedisRelay) Subscribe(ctx context.Context, groupID int, handler domain.EventHandler) error {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	if _, ok := rr.subs[groupID]; ok {
		return nil
	}

	channel := rr.Channel(groupID)
	pubsub := rr.redis.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe to %s: %w", channel, err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	rr.subs[groupID] = &subscription{pubsub: pubsub, cancel: cancel}

	rr.wg.Add(1)
	go rr.listen(listenCtx, groupID, pubsub.Channel(), handler)

	rr.log.Debug("Subscribed", "channel", channel)
	return nil
}

// Unsubscribe tears the group's subscription down without waiting for its
// listener, so it is safe to call from inside a handler.
func (rr *RedisRelay) Unsubscribe(ctx context.Context, groupID int) error {
	rr.mu.Lock()
	sub, ok := rr.subs[groupID]
	delete(rr.subs, groupID)
	rr.mu.Unlock()

	if !ok {
		return nil
	}

	sub.cancel()
	if err := sub.pubsub.Close(); err != nil {
		return fmt.Errorf("unsubscribe from %s: %w", rr.Channel(groupID), err)
	}

	rr.log.Debug("Unsubscribed", "channel", rr.Channel(groupID))
	return nil
}

func (rr *RedisRelay) Subscribed(groupID int) bool {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	_, ok := rr.subs[groupID]
	return ok
}

func (rr *RedisRelay) SubscriptionCount() int {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	return len(rr.subs)
}

// Close drops every subscription and waits for all listeners to exit.
func (rr *RedisRelay) Close() error {
	rr.mu.Lock()
	subs := rr.subs
	rr.subs = make(map[int]*subscription)
	rr.mu.Unlock()

	var err error
	for _, sub := range subs {
		sub.cancel()
		err = multierr.Append(err, sub.pubsub.Close())
	}

	rr.wg.Wait()
	return err
}

func (rr *RedisRelay) listen(ctx context.Context, groupID int, ch <-chan *redis.Message, handler domain.EventHandler) {
	defer rr.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event domain.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				rr.log.Warn("Dropping malformed event", "group_id", groupID, "error", err)
				continue
			}

			if ctx.Err() != nil {
				return
			}
			rr.dispatch(ctx, groupID, &event, handler)
		}
	}
}

func (rr *RedisRelay) dispatch(ctx context.Context, groupID int, event *domain.Event, handler domain.EventHandler) {
	defer func() {
		if r := recover(); r != nil {
			rr.log.Error("Event handler panicked", "group_id", groupID, "type", event.Type, "panic", r)
		}
	}()

	handler(ctx, event)
}
