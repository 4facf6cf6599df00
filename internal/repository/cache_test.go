package repository

import (
	"context"
	"testing"
	"time"

	"github.com/ReilBleem13/ChatRelay/internal/domain"
)

func TestChatCacheGroup(t *testing.T) {
	mr, client := newTestRedis(t)
	cc := NewChatCache(client)
	ctx := context.Background()

	got, err := cc.GetGroup(ctx, 1)
	if err != nil || got != nil {
		t.Fatalf("miss = (%v, %v), want (nil, nil)", got, err)
	}

	group := &domain.ChatGroup{
		ID:         1,
		Name:       "algebra",
		MaxMembers: 10,
		Members:    []domain.ChatGroupMember{{UserID: 4, Username: "dan", Role: domain.RoleOwner}},
	}
	if err := cc.SetGroup(ctx, group, time.Hour); err != nil {
		t.Fatalf("SetGroup: %v", err)
	}
	if ttl := mr.TTL("cache:group:1"); ttl != time.Hour {
		t.Fatalf("ttl = %v", ttl)
	}

	got, err = cc.GetGroup(ctx, 1)
	if err != nil {
		t.Fatalf("GetGroup: %v", err)
	}
	if got.Name != "algebra" || !got.IsMember(4) {
		t.Fatalf("group = %+v", got)
	}

	if err := cc.InvalidateGroup(ctx, 1); err != nil {
		t.Fatalf("InvalidateGroup: %v", err)
	}
	if got, _ := cc.GetGroup(ctx, 1); got != nil {
		t.Fatal("group still cached after invalidation")
	}
}

func TestChatCacheMessageExpires(t *testing.T) {
	mr, client := newTestRedis(t)
	cc := NewChatCache(client)
	ctx := context.Background()

	msg := &domain.ChatMessage{ID: 9, GroupID: 1, SenderID: 4, Content: "hi", MessageType: domain.MessageText}
	if err := cc.SetMessage(ctx, msg, 5*time.Minute); err != nil {
		t.Fatalf("SetMessage: %v", err)
	}

	got, err := cc.GetMessage(ctx, 9)
	if err != nil || got == nil || got.Content != "hi" {
		t.Fatalf("GetMessage = (%+v, %v)", got, err)
	}

	mr.FastForward(5*time.Minute + time.Second)
	if got, _ := cc.GetMessage(ctx, 9); got != nil {
		t.Fatal("message still cached after ttl")
	}
}

func TestChatCacheCorruptEntry(t *testing.T) {
	mr, client := newTestRedis(t)
	cc := NewChatCache(client)

	mr.Set("cache:message:3", "{not json")
	if _, err := cc.GetMessage(context.Background(), 3); err == nil {
		t.Fatal("expected decode error")
	}
}
