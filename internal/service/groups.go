package service

import (
	"context"
	"errors"
	"time"

	"github.com/ReilBleem13/ChatRelay/internal/domain"
	"github.com/ReilBleem13/ChatRelay/internal/logger"
)

// groupLoader reads groups through the cache, falling back to the
// repository and repopulating the cache on a miss.
type groupLoader struct {
	repo  GroupRepoIn
	cache CacheIn
	ttl   time.Duration
	log   *logger.Logger
}

func (gl *groupLoader) load(ctx context.Context, groupID int) (*domain.ChatGroup, error) {
	group, err := gl.cache.GetGroup(ctx, groupID)
	if err != nil {
		gl.log.Warn("Failed to read group from cache", "group_id", groupID, "error", err)
	}
	if group != nil {
		return group, nil
	}

	group, err = gl.repo.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}

	if err := gl.cache.SetGroup(ctx, group, gl.ttl); err != nil {
		gl.log.Warn("Failed to cache group", "group_id", groupID, "error", err)
	}
	return group, nil
}

func (gl *groupLoader) invalidate(ctx context.Context, groupID int) {
	if err := gl.cache.InvalidateGroup(ctx, groupID); err != nil {
		gl.log.Warn("Failed to invalidate cached group", "group_id", groupID, "error", err)
	}
}

// persistenceError passes domain errors through and hides driver errors
// behind ErrPersistence.
func persistenceError(log *logger.Logger, op string, err error) error {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return err
	}
	log.Error("Persistence failed", "op", op, "error", err)
	return domain.ErrPersistence
}

type GroupService struct {
	repo     GroupRepoIn
	presence PresenceIn
	loader   *groupLoader
	log      *logger.Logger
	now      func() time.Time
}

func NewGroupService(repo GroupRepoIn, cache CacheIn, presence PresenceIn, groupTTL time.Duration, log *logger.Logger) *GroupService {
	log = log.With("component", "group_service")
	return &GroupService{
		repo:     repo,
		presence: presence,
		loader:   &groupLoader{repo: repo, cache: cache, ttl: groupTTL, log: log},
		log:      log,
		now:      time.Now,
	}
}

func (gs *GroupService) CreateGroup(ctx context.Context, in *CreateGroupDTO) (*domain.ChatGroup, error) {
	if err := validateDTO(in); err != nil {
		return nil, err
	}

	group, err := domain.NewChatGroup(domain.NewGroupParams{
		Name:        in.Name,
		Description: in.Description,
		AvatarURL:   in.AvatarURL,
		IsPrivate:   in.IsPrivate,
		MaxMembers:  in.MaxMembers,
	}, in.CreatorID, in.CreatorName, gs.now())
	if err != nil {
		return nil, err
	}

	saved, err := gs.repo.Save(ctx, group)
	if err != nil {
		return nil, persistenceError(gs.log, "create group", err)
	}

	gs.log.Info("Group created", "group_id", saved.ID, "creator_id", in.CreatorID)
	return saved, nil
}

// GetGroup hides private groups from non-members.
func (gs *GroupService) GetGroup(ctx context.Context, groupID, userID int) (*domain.ChatGroup, error) {
	group, err := gs.loader.load(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.IsPrivate && !group.IsMember(userID) {
		return nil, domain.ErrNotFound.WithMessage("group not found")
	}
	return group, nil
}

func (gs *GroupService) GetUserGroups(ctx context.Context, userID int) ([]domain.UserGroup, error) {
	return gs.repo.GetUserGroups(ctx, userID)
}

func (gs *GroupService) IsMember(ctx context.Context, groupID, userID int) (bool, error) {
	group, err := gs.loader.load(ctx, groupID)
	if err != nil {
		return false, err
	}
	return group.IsMember(userID), nil
}

func (gs *GroupService) DeleteGroup(ctx context.Context, groupID, userID int) error {
	group, err := gs.repo.GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	if role, _ := group.RoleOf(userID); role != domain.RoleOwner {
		return domain.ErrForbidden.WithMessage("only an owner can delete the group")
	}

	deleted, err := gs.repo.Delete(ctx, groupID)
	if err != nil {
		return persistenceError(gs.log, "delete group", err)
	}
	if !deleted {
		return domain.ErrNotFound.WithMessage("group not found")
	}

	gs.loader.invalidate(ctx, groupID)
	gs.log.Info("Group deleted", "group_id", groupID, "user_id", userID)
	return nil
}

// AddMember lets admins and owners add anyone. Any user may join a public
// group as a plain member. Only owners can add admins.
func (gs *GroupService) AddMember(ctx context.Context, in *AddMemberDTO) (*domain.ChatGroup, error) {
	if err := validateDTO(in); err != nil {
		return nil, err
	}
	role := in.Role
	if role == "" {
		role = domain.RoleMember
	}

	return gs.mutate(ctx, in.GroupID, func(g *domain.ChatGroup) error {
		actorRole, isMember := g.RoleOf(in.ActorID)
		switch {
		case isMember && actorRole.Privileged():
			if role == domain.RoleAdmin && actorRole != domain.RoleOwner {
				return domain.ErrForbidden.WithMessage("only owners can add admins")
			}
		case in.ActorID == in.UserID && !g.IsPrivate && role == domain.RoleMember:
		default:
			return domain.ErrForbidden.WithMessage("only admins and owners can add members")
		}
		return g.AddMember(in.UserID, in.Username, role, gs.now())
	})
}

func (gs *GroupService) RemoveMember(ctx context.Context, groupID, userID, removerID int) error {
	_, err := gs.mutate(ctx, groupID, func(g *domain.ChatGroup) error {
		return g.RemoveMember(userID, removerID)
	})
	return err
}

func (gs *GroupService) PromoteMember(ctx context.Context, groupID, userID, promoterID int) (*domain.ChatGroup, error) {
	return gs.mutate(ctx, groupID, func(g *domain.ChatGroup) error {
		return g.PromoteMember(userID, promoterID)
	})
}

func (gs *GroupService) DemoteMember(ctx context.Context, groupID, userID, demoterID int) (*domain.ChatGroup, error) {
	return gs.mutate(ctx, groupID, func(g *domain.ChatGroup) error {
		return g.DemoteMember(userID, demoterID)
	})
}

func (gs *GroupService) TransferOwnership(ctx context.Context, groupID, currentOwnerID, newOwnerID int) (*domain.ChatGroup, error) {
	return gs.mutate(ctx, groupID, func(g *domain.ChatGroup) error {
		return g.TransferOwnership(currentOwnerID, newOwnerID)
	})
}

func (gs *GroupService) MarkRead(ctx context.Context, groupID, userID int) error {
	_, err := gs.mutate(ctx, groupID, func(g *domain.ChatGroup) error {
		return g.MarkRead(userID, gs.now())
	})
	return err
}

func (gs *GroupService) SetMuted(ctx context.Context, groupID, userID int, muted bool) error {
	_, err := gs.mutate(ctx, groupID, func(g *domain.ChatGroup) error {
		return g.SetMuted(userID, muted)
	})
	return err
}

func (gs *GroupService) GetOnlineUsers(ctx context.Context, groupID, userID int) ([]int, error) {
	group, err := gs.loader.load(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !group.IsMember(userID) {
		return nil, domain.ErrForbidden.WithMessage("user is not a member of the group")
	}
	return gs.presence.GetOnlineUsers(ctx, groupID)
}

// mutate applies op to the stored group inside the repository's locked
// update and drops the cached copy.
func (gs *GroupService) mutate(ctx context.Context, groupID int, op func(*domain.ChatGroup) error) (*domain.ChatGroup, error) {
	saved, err := gs.repo.Update(ctx, groupID, op)
	if err != nil {
		return nil, persistenceError(gs.log, "update group", err)
	}

	gs.loader.invalidate(ctx, groupID)
	return saved, nil
}
