package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	EventMessage    EventType = "message"
	EventTyping     EventType = "typing"
	EventUserJoined EventType = "user_joined"
	EventUserLeft   EventType = "user_left"
)

func (t EventType) Valid() bool {
	switch t {
	case EventMessage, EventTyping, EventUserJoined, EventUserLeft:
		return true
	}
	return false
}

// Event is the envelope published on a group channel and written to sockets.
type Event struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

type EventHandler func(ctx context.Context, event *Event)

func NewEvent(eventType EventType, data any) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	return &Event{Type: eventType, Data: raw}, nil
}

type TypingData struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
}

type MemberData struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
}

type MentionNotification struct {
	UserID    int       `json:"user_id"`
	GroupID   int       `json:"group_id"`
	GroupName string    `json:"group_name"`
	MessageID int       `json:"message_id"`
	SenderID  int       `json:"sender_id"`
	Preview   string    `json:"preview"`
	CreatedAt time.Time `json:"created_at"`
}

const previewLength = 100

func NewMentionNotification(userID int, group *ChatGroup, msg *ChatMessage) MentionNotification {
	preview := []rune(msg.Content)
	if len(preview) > previewLength {
		preview = preview[:previewLength]
	}
	return MentionNotification{
		UserID:    userID,
		GroupID:   group.ID,
		GroupName: group.Name,
		MessageID: msg.ID,
		SenderID:  msg.SenderID,
		Preview:   string(preview),
		CreatedAt: msg.CreatedAt,
	}
}
