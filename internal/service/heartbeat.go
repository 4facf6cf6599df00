package service

import (
	"context"

	"github.com/ReilBleem13/ChatRelay/internal/domain"
	"github.com/ReilBleem13/ChatRelay/internal/logger"
)

// HeartbeatService keeps session presence fresh and announces joins and
// leaves on the group channel. Every call is best effort.
type HeartbeatService struct {
	presence PresenceIn
	relay    RelayIn
	log      *logger.Logger
}

func NewHeartbeatService(presence PresenceIn, relay RelayIn, log *logger.Logger) *HeartbeatService {
	return &HeartbeatService{
		presence: presence,
		relay:    relay,
		log:      log.With("component", "heartbeat"),
	}
}

func (hs *HeartbeatService) Online(ctx context.Context, userID int, username string, groupID int) {
	hs.HandleHeartbeat(ctx, userID, groupID)
	hs.announce(ctx, domain.EventUserJoined, userID, username, groupID)
}

func (hs *HeartbeatService) HandleHeartbeat(ctx context.Context, userID, groupID int) {
	if err := hs.presence.SetUserOnline(ctx, userID, groupID); err != nil {
		hs.log.Warn("Failed to refresh presence", "user_id", userID, "group_id", groupID, "error", err)
	}
}

func (hs *HeartbeatService) Offline(ctx context.Context, userID int, username string, groupID int) {
	if err := hs.presence.SetUserOffline(ctx, userID, groupID); err != nil {
		hs.log.Warn("Failed to clear presence", "user_id", userID, "group_id", groupID, "error", err)
	}
	hs.announce(ctx, domain.EventUserLeft, userID, username, groupID)
}

func (hs *HeartbeatService) Typing(ctx context.Context, userID int, username string, groupID int, isTyping bool) {
	hs.publish(ctx, groupID, domain.EventTyping, domain.TypingData{
		UserID:   userID,
		Username: username,
		IsTyping: isTyping,
	})
}

func (hs *HeartbeatService) announce(ctx context.Context, eventType domain.EventType, userID int, username string, groupID int) {
	hs.publish(ctx, groupID, eventType, domain.MemberData{UserID: userID, Username: username})
}

func (hs *HeartbeatService) publish(ctx context.Context, groupID int, eventType domain.EventType, data any) {
	event, err := domain.NewEvent(eventType, data)
	if err != nil {
		hs.log.Error("Failed to build event", "type", eventType, "error", err)
		return
	}
	if err := hs.relay.Publish(ctx, groupID, event); err != nil {
		hs.log.Warn("Failed to publish event", "type", eventType, "group_id", groupID, "error", err)
	}
}
