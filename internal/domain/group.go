package domain

import (
	"strings"
	"time"
)

type NewGroupParams struct {
	Name        string
	Description string
	AvatarURL   *string
	IsPrivate   bool
	MaxMembers  int
}

// NewChatGroup builds a group whose only member is the creator, as OWNER.
func NewChatGroup(p NewGroupParams, creatorID int, creatorName string, now time.Time) (*ChatGroup, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return nil, ErrValidation.WithMessage("group name must not be empty")
	}

	maxMembers := p.MaxMembers
	if maxMembers == 0 {
		maxMembers = DefaultMaxMembers
	}
	if maxMembers < 1 {
		return nil, ErrValidation.WithMessage("max_members must be positive")
	}

	return &ChatGroup{
		Name:        name,
		Description: p.Description,
		CreatedBy:   creatorID,
		AvatarURL:   p.AvatarURL,
		IsPrivate:   p.IsPrivate,
		MaxMembers:  maxMembers,
		CreatedAt:   now,
		Members: []ChatGroupMember{{
			UserID:   creatorID,
			Username: creatorName,
			Role:     RoleOwner,
			JoinedAt: now,
		}},
	}, nil
}

func (g *ChatGroup) memberIndex(userID int) int {
	for i := range g.Members {
		if g.Members[i].UserID == userID {
			return i
		}
	}
	return -1
}

func (g *ChatGroup) Member(userID int) (*ChatGroupMember, bool) {
	i := g.memberIndex(userID)
	if i < 0 {
		return nil, false
	}
	return &g.Members[i], true
}

func (g *ChatGroup) IsMember(userID int) bool {
	return g.memberIndex(userID) >= 0
}

func (g *ChatGroup) RoleOf(userID int) (MemberRole, bool) {
	m, ok := g.Member(userID)
	if !ok {
		return "", false
	}
	return m.Role, true
}

// FindMemberByUsername matches case-insensitively.
func (g *ChatGroup) FindMemberByUsername(username string) (*ChatGroupMember, bool) {
	for i := range g.Members {
		if strings.EqualFold(g.Members[i].Username, username) {
			return &g.Members[i], true
		}
	}
	return nil, false
}

func (g *ChatGroup) OwnerCount() int {
	n := 0
	for _, m := range g.Members {
		if m.Role == RoleOwner {
			n++
		}
	}
	return n
}

func (g *ChatGroup) MemberIDs() []int {
	ids := make([]int, len(g.Members))
	for i, m := range g.Members {
		ids[i] = m.UserID
	}
	return ids
}

func (g *ChatGroup) AddMember(userID int, username string, role MemberRole, now time.Time) error {
	if !role.Valid() {
		return ErrValidation.WithMessage("unknown member role")
	}
	if g.IsMember(userID) {
		return ErrAlreadyExists.WithMessage("user is already a member of the group")
	}
	if len(g.Members) >= g.MaxMembers {
		return ErrConflict.WithMessage("group is full")
	}

	g.Members = append(g.Members, ChatGroupMember{
		UserID:   userID,
		Username: username,
		Role:     role,
		JoinedAt: now,
	})
	return nil
}

// RemoveMember lets a member leave, or an admin/owner remove someone else.
// Admins cannot remove owners, and the sole owner cannot be removed at all.
func (g *ChatGroup) RemoveMember(userID, removerID int) error {
	i := g.memberIndex(userID)
	if i < 0 {
		return ErrNotFound.WithMessage("user is not a member of the group")
	}

	if userID != removerID {
		removerRole, ok := g.RoleOf(removerID)
		if !ok || !removerRole.Privileged() {
			return ErrForbidden.WithMessage("only admins and owners can remove members")
		}
		if g.Members[i].Role == RoleOwner && removerRole != RoleOwner {
			return ErrForbidden.WithMessage("admins cannot remove an owner")
		}
	}

	if g.Members[i].Role == RoleOwner && g.OwnerCount() == 1 {
		return ErrConflict.WithMessage("the only owner cannot leave or be removed, transfer ownership first")
	}

	g.Members = append(g.Members[:i], g.Members[i+1:]...)
	return nil
}

// TransferOwnership demotes the current owner to MEMBER and makes the target
// OWNER. Nothing is changed unless both checks pass.
func (g *ChatGroup) TransferOwnership(currentOwnerID, newOwnerID int) error {
	cur, ok := g.Member(currentOwnerID)
	if !ok || cur.Role != RoleOwner {
		return ErrForbidden.WithMessage("only an owner can transfer ownership")
	}
	if currentOwnerID == newOwnerID {
		return ErrValidation.WithMessage("cannot transfer ownership to yourself")
	}
	target, ok := g.Member(newOwnerID)
	if !ok {
		return ErrNotFound.WithMessage("new owner is not a member of the group")
	}

	target.Role = RoleOwner
	cur.Role = RoleMember
	return nil
}

// PromoteMember raises a MEMBER to ADMIN.
func (g *ChatGroup) PromoteMember(userID, promoterID int) error {
	if err := g.requireOwner(promoterID); err != nil {
		return err
	}
	m, ok := g.Member(userID)
	if !ok {
		return ErrNotFound.WithMessage("user is not a member of the group")
	}
	if m.Role != RoleMember {
		return ErrConflict.WithMessage("only members can be promoted")
	}

	m.Role = RoleAdmin
	return nil
}

// DemoteMember lowers OWNER to ADMIN and ADMIN to MEMBER.
func (g *ChatGroup) DemoteMember(userID, demoterID int) error {
	if err := g.requireOwner(demoterID); err != nil {
		return err
	}
	m, ok := g.Member(userID)
	if !ok {
		return ErrNotFound.WithMessage("user is not a member of the group")
	}

	switch m.Role {
	case RoleOwner:
		if g.OwnerCount() == 1 {
			return ErrConflict.WithMessage("the only owner cannot be demoted")
		}
		m.Role = RoleAdmin
	case RoleAdmin:
		m.Role = RoleMember
	default:
		return ErrConflict.WithMessage("member has no role to demote from")
	}
	return nil
}

func (g *ChatGroup) MarkRead(userID int, at time.Time) error {
	m, ok := g.Member(userID)
	if !ok {
		return ErrForbidden.WithMessage("user is not a member of the group")
	}
	m.LastReadAt = &at
	return nil
}

func (g *ChatGroup) SetMuted(userID int, muted bool) error {
	m, ok := g.Member(userID)
	if !ok {
		return ErrForbidden.WithMessage("user is not a member of the group")
	}
	m.IsMuted = muted
	return nil
}

func (g *ChatGroup) requireOwner(userID int) error {
	role, ok := g.RoleOf(userID)
	if !ok || role != RoleOwner {
		return ErrForbidden.WithMessage("only owners can change member roles")
	}
	return nil
}
