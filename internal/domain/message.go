package domain

import (
	"strings"
	"time"
)

type NewMessageParams struct {
	GroupID     int
	SenderID    int
	Content     string
	MessageType MessageType
	Mentions    []Mention
	ReplyToID   *int
	Metadata    map[string]string
}

func NewChatMessage(p NewMessageParams, now time.Time) (*ChatMessage, error) {
	msgType := p.MessageType
	if msgType == "" {
		msgType = MessageText
	}
	if !msgType.Valid() {
		return nil, ErrValidation.WithMessage("unknown message type")
	}
	if msgType != MessageSystem && strings.TrimSpace(p.Content) == "" && len(p.Metadata) == 0 {
		return nil, ErrValidation.WithMessage("message must have content or metadata")
	}
	if err := ValidateMentions(p.Mentions); err != nil {
		return nil, err
	}

	mentions := p.Mentions
	if mentions == nil {
		mentions = []Mention{}
	}

	return &ChatMessage{
		GroupID:     p.GroupID,
		SenderID:    p.SenderID,
		Content:     p.Content,
		MessageType: msgType,
		Mentions:    mentions,
		CreatedAt:   now,
		ReplyToID:   p.ReplyToID,
		Metadata:    p.Metadata,
	}, nil
}

func ValidateMentions(mentions []Mention) error {
	if len(mentions) > MaxMentions {
		return ErrValidation.WithMessage("too many mentions")
	}
	for _, m := range mentions {
		if m.StartIndex < 0 || m.StartIndex >= m.EndIndex {
			return ErrValidation.WithMessage("mention offsets must satisfy 0 <= start < end")
		}
	}
	return nil
}

// Edit replaces the content. Mentions keep the offsets they were parsed with.
func (m *ChatMessage) Edit(newContent string, editorID int, now time.Time) error {
	if editorID != m.SenderID {
		return ErrForbidden.WithMessage("only the sender can edit a message")
	}
	if m.IsDeleted {
		return ErrConflict.WithMessage("deleted messages cannot be edited")
	}
	if m.MessageType != MessageSystem && strings.TrimSpace(newContent) == "" && len(m.Metadata) == 0 {
		return ErrValidation.WithMessage("message must have content or metadata")
	}

	m.Content = newContent
	m.EditedAt = &now
	return nil
}

// Delete soft-deletes the message. Deleting twice is a no-op.
func (m *ChatMessage) Delete(deleterID int, isAdmin bool) error {
	if deleterID != m.SenderID && !isAdmin {
		return ErrForbidden.WithMessage("only the sender or a group admin can delete a message")
	}
	if m.IsDeleted {
		return nil
	}

	m.Content = DeletedPlaceholder
	m.IsDeleted = true
	return nil
}
