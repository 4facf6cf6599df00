package service

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/ReilBleem13/ChatRelay/internal/domain"
	"github.com/ReilBleem13/ChatRelay/internal/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type ChatConfig struct {
	GroupCacheTTL    time.Duration
	MessageCacheTTL  time.Duration
	MaxMessageLength int
}

type ChatService struct {
	messages MessageRepoIn
	cache    CacheIn
	relay    RelayIn
	notifier NotifierIn
	loader   *groupLoader
	cfg      ChatConfig
	log      *logger.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

func NewChatService(
	groups GroupRepoIn,
	messages MessageRepoIn,
	cache CacheIn,
	relay RelayIn,
	notifier NotifierIn,
	cfg ChatConfig,
	log *logger.Logger,
) *ChatService {
	log = log.With("component", "chat_service")
	return &ChatService{
		messages: messages,
		cache:    cache,
		relay:    relay,
		notifier: notifier,
		loader:   &groupLoader{repo: groups, cache: cache, ttl: cfg.GroupCacheTTL, log: log},
		cfg:      cfg,
		log:      log,
		tracer:   otel.Tracer("github.com/ReilBleem13/ChatRelay/internal/service"),
		now:      time.Now,
	}
}

// SendMessage persists a message and then fans it out. Nothing is written
// unless the sender is a member and the message is valid. Once the message
// is stored, caching, publishing and notifying can only log failures.
func (cs *ChatService) SendMessage(ctx context.Context, in *SendMessageDTO) (*SendResult, error) {
	ctx, span := cs.tracer.Start(ctx, "ChatService.SendMessage", trace.WithAttributes(
		attribute.Int("chat.group_id", in.GroupID),
		attribute.Int("chat.sender_id", in.SenderID),
	))
	defer span.End()

	if err := validateDTO(in); err != nil {
		return nil, err
	}
	if cs.cfg.MaxMessageLength > 0 && utf8.RuneCountInString(in.Content) > cs.cfg.MaxMessageLength {
		return nil, domain.ErrValidation.WithMessage(fmt.Sprintf("content is longer than %d characters", cs.cfg.MaxMessageLength))
	}

	group, err := cs.loader.load(ctx, in.GroupID)
	if err != nil {
		return nil, err
	}
	if !group.IsMember(in.SenderID) {
		return nil, domain.ErrForbidden.WithMessage("user is not a member of the group")
	}

	mentions := domain.ParseMentions(in.Content, group, in.SenderID)

	msg, err := domain.NewChatMessage(domain.NewMessageParams{
		GroupID:     in.GroupID,
		SenderID:    in.SenderID,
		Content:     in.Content,
		MessageType: domain.MessageType(in.MessageType),
		Mentions:    mentions,
		ReplyToID:   in.ReplyToID,
		Metadata:    in.Metadata,
	}, cs.now())
	if err != nil {
		return nil, err
	}

	saved, err := cs.messages.Save(ctx, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist message")
		return nil, persistenceError(cs.log, "save message", err)
	}
	span.SetAttributes(attribute.Int("chat.message_id", saved.ID), attribute.Int("chat.mentions", len(saved.Mentions)))

	cs.cacheMessage(ctx, saved)
	cs.publishMessage(ctx, saved)
	cs.notifyMentions(ctx, group, saved)

	return &SendResult{
		Message:          saved,
		MentionedUserIDs: domain.MentionedUserIDs(saved.Mentions),
	}, nil
}

func (cs *ChatService) EditMessage(ctx context.Context, in *EditMessageDTO) (*domain.ChatMessage, error) {
	if err := validateDTO(in); err != nil {
		return nil, err
	}
	if cs.cfg.MaxMessageLength > 0 && utf8.RuneCountInString(in.Content) > cs.cfg.MaxMessageLength {
		return nil, domain.ErrValidation.WithMessage(fmt.Sprintf("content is longer than %d characters", cs.cfg.MaxMessageLength))
	}

	msg, err := cs.messages.GetByID(ctx, in.MessageID)
	if err != nil {
		return nil, persistenceError(cs.log, "load message", err)
	}
	if err := cs.requireMember(ctx, msg.GroupID, in.EditorID); err != nil {
		return nil, err
	}

	if err := msg.Edit(in.Content, in.EditorID, cs.now()); err != nil {
		return nil, err
	}

	saved, err := cs.messages.UpdateContent(ctx, msg)
	if err != nil {
		return nil, persistenceError(cs.log, "edit message", err)
	}

	cs.cacheMessage(ctx, saved)
	cs.publishMessage(ctx, saved)
	return saved, nil
}

// DeleteMessage soft-deletes a message. The sender and group admins/owners
// may delete. When they repeat the delete the message is returned unchanged.
func (cs *ChatService) DeleteMessage(ctx context.Context, messageID, userID int) (*domain.ChatMessage, error) {
	msg, err := cs.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, persistenceError(cs.log, "load message", err)
	}

	group, err := cs.loader.load(ctx, msg.GroupID)
	if err != nil {
		return nil, err
	}
	role, ok := group.RoleOf(userID)
	if !ok {
		return nil, domain.ErrForbidden.WithMessage("user is not a member of the group")
	}

	alreadyDeleted := msg.IsDeleted
	if err := msg.Delete(userID, role.Privileged()); err != nil {
		return nil, err
	}
	if alreadyDeleted {
		cs.cacheMessage(ctx, msg)
		return msg, nil
	}

	if _, err := cs.messages.Delete(ctx, messageID); err != nil {
		return nil, persistenceError(cs.log, "delete message", err)
	}

	cs.cacheMessage(ctx, msg)
	cs.publishMessage(ctx, msg)
	return msg, nil
}

func (cs *ChatService) GetMessage(ctx context.Context, messageID, userID int) (*domain.ChatMessage, error) {
	msg, err := cs.loadMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := cs.requireMember(ctx, msg.GroupID, userID); err != nil {
		return nil, err
	}
	return msg, nil
}

func (cs *ChatService) GetGroupMessages(ctx context.Context, in *HistoryDTO) ([]domain.ChatMessage, error) {
	if err := validateDTO(in); err != nil {
		return nil, err
	}
	if err := cs.requireMember(ctx, in.GroupID, in.UserID); err != nil {
		return nil, err
	}
	return cs.messages.GetGroupMessages(ctx, in.GroupID, historyLimit(in.Limit), in.Before)
}

func (cs *ChatService) SearchMessages(ctx context.Context, in *SearchDTO) ([]domain.ChatMessage, error) {
	if err := validateDTO(in); err != nil {
		return nil, err
	}
	if err := cs.requireMember(ctx, in.GroupID, in.UserID); err != nil {
		return nil, err
	}
	return cs.messages.SearchMessages(ctx, in.GroupID, in.Query, historyLimit(in.Limit))
}

func (cs *ChatService) requireMember(ctx context.Context, groupID, userID int) error {
	group, err := cs.loader.load(ctx, groupID)
	if err != nil {
		return err
	}
	if !group.IsMember(userID) {
		return domain.ErrForbidden.WithMessage("user is not a member of the group")
	}
	return nil
}

func (cs *ChatService) loadMessage(ctx context.Context, messageID int) (*domain.ChatMessage, error) {
	msg, err := cs.cache.GetMessage(ctx, messageID)
	if err != nil {
		cs.log.Warn("Failed to read message from cache", "message_id", messageID, "error", err)
	}
	if msg != nil {
		return msg, nil
	}

	msg, err = cs.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	cs.cacheMessage(ctx, msg)
	return msg, nil
}

func (cs *ChatService) cacheMessage(ctx context.Context, msg *domain.ChatMessage) {
	if err := cs.cache.SetMessage(ctx, msg, cs.cfg.MessageCacheTTL); err != nil {
		cs.log.Warn("Failed to cache message", "message_id", msg.ID, "error", err)
	}
}

func (cs *ChatService) publishMessage(ctx context.Context, msg *domain.ChatMessage) {
	event, err := domain.NewEvent(domain.EventMessage, msg)
	if err != nil {
		cs.log.Error("Failed to build message event", "message_id", msg.ID, "error", err)
		return
	}
	if err := cs.relay.Publish(ctx, msg.GroupID, event); err != nil {
		cs.log.Warn("Failed to publish message", "message_id", msg.ID, "group_id", msg.GroupID, "error", err)
	}
}

func (cs *ChatService) notifyMentions(ctx context.Context, group *domain.ChatGroup, msg *domain.ChatMessage) {
	for _, m := range msg.Mentions {
		cs.notifyOne(ctx, domain.NewMentionNotification(m.UserID, group, msg))
	}
}

func (cs *ChatService) notifyOne(ctx context.Context, n domain.MentionNotification) {
	defer func() {
		if r := recover(); r != nil {
			cs.log.Error("Mention notifier panicked", "user_id", n.UserID, "message_id", n.MessageID, "panic", r)
		}
	}()

	if err := cs.notifier.NotifyMention(ctx, n); err != nil {
		cs.log.Warn("Failed to notify mentioned user", "user_id", n.UserID, "message_id", n.MessageID, "error", err)
	}
}
