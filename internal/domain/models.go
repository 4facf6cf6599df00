package domain

import "time"

type (
	MemberRole string

	MessageType string
)

const (
	RoleOwner  MemberRole = "OWNER"
	RoleAdmin  MemberRole = "ADMIN"
	RoleMember MemberRole = "MEMBER"

	MessageText   MessageType = "TEXT"
	MessageImage  MessageType = "IMAGE"
	MessageFile   MessageType = "FILE"
	MessageSystem MessageType = "SYSTEM"
)

func (r MemberRole) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

// Privileged reports whether the role may manage other members.
func (r MemberRole) Privileged() bool {
	return r == RoleOwner || r == RoleAdmin
}

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageFile, MessageSystem:
		return true
	}
	return false
}

const (
	DefaultMaxMembers  = 1000
	MaxMentions        = 50
	DeletedPlaceholder = "[message deleted]"
)

type ChatGroup struct {
	ID          int               `json:"id" db:"id"`
	Name        string            `json:"name" db:"name"`
	Description string            `json:"description" db:"description"`
	CreatedBy   int               `json:"created_by" db:"created_by"`
	AvatarURL   *string           `json:"avatar_url,omitempty" db:"avatar_url"`
	IsPrivate   bool              `json:"is_private" db:"is_private"`
	MaxMembers  int               `json:"max_members" db:"max_members"`
	Members     []ChatGroupMember `json:"members" db:"-"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
}

type ChatGroupMember struct {
	UserID     int        `json:"user_id" db:"user_id"`
	Username   string     `json:"username" db:"username"`
	Role       MemberRole `json:"role" db:"role"`
	JoinedAt   time.Time  `json:"joined_at" db:"joined_at"`
	LastReadAt *time.Time `json:"last_read_at,omitempty" db:"last_read_at"`
	IsMuted    bool       `json:"is_muted" db:"is_muted"`
}

type ChatMessage struct {
	ID          int               `json:"id"`
	GroupID     int               `json:"group_id"`
	SenderID    int               `json:"sender_id"`
	Content     string            `json:"content"`
	MessageType MessageType       `json:"message_type"`
	Mentions    []Mention         `json:"mentions"`
	CreatedAt   time.Time         `json:"created_at"`
	EditedAt    *time.Time        `json:"edited_at"`
	IsDeleted   bool              `json:"is_deleted"`
	ReplyToID   *int              `json:"reply_to_id"`
	Metadata    map[string]string `json:"metadata"`
}

// Mention offsets are half-open rune positions into the content the
// message was created with.
type Mention struct {
	UserID     int    `json:"user_id"`
	Username   string `json:"username"`
	StartIndex int    `json:"start_index"`
	EndIndex   int    `json:"end_index"`
}

type UserGroup struct {
	ID        int        `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	Role      MemberRole `json:"role" db:"role"`
	IsPrivate bool       `json:"is_private" db:"is_private"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}
