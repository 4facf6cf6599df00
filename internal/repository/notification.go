package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ReilBleem13/ChatRelay/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

// RedisNotifier pushes mention notifications to a per-user channel.
type RedisNotifier struct {
	redis *redis.Client
}

func NewRedisNotifier(redis *redis.Client) *RedisNotifier {
	return &RedisNotifier{
		redis: redis,
	}
}

func NotificationChannel(userID int) string {
	return fmt.Sprintf("notifications:user:%d", userID)
}

func (rn *RedisNotifier) NotifyMention(ctx context.Context, n domain.MentionNotification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	return rn.redis.Publish(ctx, NotificationChannel(n.UserID), data).Err()
}

func (rn *RedisNotifier) Close() error {
	return nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier writes mention notifications to a topic keyed by the
// mentioned user, so one user's notifications stay on one partition.
type KafkaNotifier struct {
	writer messageWriter
}

func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			WriteTimeout:           5 * time.Second,
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: false,
		},
	}
}

func (kn *KafkaNotifier) NotifyMention(ctx context.Context, n domain.MentionNotification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	return kn.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.Itoa(n.UserID)),
		Value: data,
	})
}

func (kn *KafkaNotifier) Close() error {
	return kn.writer.Close()
}
