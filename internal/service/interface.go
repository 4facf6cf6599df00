package service

import (
	"context"
	"time"

	"github.com/ReilBleem13/ChatRelay/internal/domain"
)

type MessageRepoIn interface {
	Save(ctx context.Context, msg *domain.ChatMessage) (*domain.ChatMessage, error)
	// UpdateContent fails with ErrConflict when the message is deleted.
	UpdateContent(ctx context.Context, msg *domain.ChatMessage) (*domain.ChatMessage, error)
	GetByID(ctx context.Context, messageID int) (*domain.ChatMessage, error)
	GetGroupMessages(ctx context.Context, groupID, limit int, before *int) ([]domain.ChatMessage, error)
	SearchMessages(ctx context.Context, groupID int, text string, limit int) ([]domain.ChatMessage, error)
	Delete(ctx context.Context, messageID int) (bool, error)
}

type GroupRepoIn interface {
	Save(ctx context.Context, group *domain.ChatGroup) (*domain.ChatGroup, error)
	// Update applies op to the stored group and writes it back atomically.
	Update(ctx context.Context, groupID int, op func(*domain.ChatGroup) error) (*domain.ChatGroup, error)
	GetByID(ctx context.Context, groupID int) (*domain.ChatGroup, error)
	GetUserGroups(ctx context.Context, userID int) ([]domain.UserGroup, error)
	IsMember(ctx context.Context, groupID, userID int) (bool, error)
	Delete(ctx context.Context, groupID int) (bool, error)
}

// CacheIn returns (nil, nil) on a miss.
type CacheIn interface {
	GetGroup(ctx context.Context, groupID int) (*domain.ChatGroup, error)
	SetGroup(ctx context.Context, group *domain.ChatGroup, ttl time.Duration) error
	InvalidateGroup(ctx context.Context, groupID int) error
	GetMessage(ctx context.Context, messageID int) (*domain.ChatMessage, error)
	SetMessage(ctx context.Context, msg *domain.ChatMessage, ttl time.Duration) error
}

type RelayIn interface {
	Publish(ctx context.Context, groupID int, event *domain.Event) error
	Subscribe(ctx context.Context, groupID int, handler domain.EventHandler) error
	Unsubscribe(ctx context.Context, groupID int) error
}

type PresenceIn interface {
	SetUserOnline(ctx context.Context, userID, groupID int) error
	SetUserOffline(ctx context.Context, userID, groupID int) error
	IsUserOnline(ctx context.Context, userID, groupID int) (bool, error)
	GetOnlineUsers(ctx context.Context, groupID int) ([]int, error)
}

type NotifierIn interface {
	NotifyMention(ctx context.Context, n domain.MentionNotification) error
}

// Conn is a local client connection the hub can push events to.
type Conn interface {
	ID() string
	UserID() int
	Send(event *domain.Event) error
	Close() error
}

type ChatServiceIn interface {
	SendMessage(ctx context.Context, in *SendMessageDTO) (*SendResult, error)
	EditMessage(ctx context.Context, in *EditMessageDTO) (*domain.ChatMessage, error)
	DeleteMessage(ctx context.Context, messageID, userID int) (*domain.ChatMessage, error)
	GetMessage(ctx context.Context, messageID, userID int) (*domain.ChatMessage, error)
	GetGroupMessages(ctx context.Context, in *HistoryDTO) ([]domain.ChatMessage, error)
	SearchMessages(ctx context.Context, in *SearchDTO) ([]domain.ChatMessage, error)
}

type GroupServiceIn interface {
	CreateGroup(ctx context.Context, in *CreateGroupDTO) (*domain.ChatGroup, error)
	GetGroup(ctx context.Context, groupID, userID int) (*domain.ChatGroup, error)
	GetUserGroups(ctx context.Context, userID int) ([]domain.UserGroup, error)
	DeleteGroup(ctx context.Context, groupID, userID int) error
	AddMember(ctx context.Context, in *AddMemberDTO) (*domain.ChatGroup, error)
	RemoveMember(ctx context.Context, groupID, userID, removerID int) error
	PromoteMember(ctx context.Context, groupID, userID, promoterID int) (*domain.ChatGroup, error)
	DemoteMember(ctx context.Context, groupID, userID, demoterID int) (*domain.ChatGroup, error)
	TransferOwnership(ctx context.Context, groupID, currentOwnerID, newOwnerID int) (*domain.ChatGroup, error)
	MarkRead(ctx context.Context, groupID, userID int) error
	SetMuted(ctx context.Context, groupID, userID int, muted bool) error
	GetOnlineUsers(ctx context.Context, groupID, userID int) ([]int, error)
	IsMember(ctx context.Context, groupID, userID int) (bool, error)
}

type RealtimeServiceIn interface {
	HandleConn(ctx context.Context, client *Client, groupID int)
}
