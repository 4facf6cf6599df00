package server

import "github.com/ReilBleem13/ChatRelay/internal/domain"

type TransferOwnershipJSON struct {
	UserID int `json:"user_id"`
}

type MuteJSON struct {
	Muted bool `json:"muted"`
}

// response
type GroupsResponse struct {
	Groups []domain.UserGroup `json:"groups"`
}

type OnlineResponse struct {
	GroupID int   `json:"group_id"`
	UserIDs []int `json:"user_ids"`
}

type MessagesResponse struct {
	Messages []domain.ChatMessage `json:"messages"`
}
