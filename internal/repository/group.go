package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/ReilBleem13/ChatRelay/internal/domain"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

type GroupRepo struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

func NewGroupRepo(db *sqlx.DB) *GroupRepo {
	return &GroupRepo{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Save inserts a new group with its members. An existing group is
// overwritten through Update, so only the member rows that differ from the
// stored ones are written.
func (gr *GroupRepo) Save(ctx context.Context, group *domain.ChatGroup) (*domain.ChatGroup, error) {
	if group.ID != 0 {
		return gr.Update(ctx, group.ID, func(current *domain.ChatGroup) error {
			*current = *group
			return nil
		})
	}

	tx, err := gr.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO chat_groups (name, description, created_by, avatar_url, is_private, max_members, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id;
	`

	err = tx.QueryRowContext(ctx, query,
		group.Name,
		group.Description,
		group.CreatedBy,
		group.AvatarURL,
		group.IsPrivate,
		group.MaxMembers,
		group.CreatedAt,
	).Scan(&group.ID)
	if err != nil {
		return nil, fmt.Errorf("insert group: %w", err)
	}

	if len(group.Members) > 0 {
		insert := gr.sb.Insert("chat_group_members").
			Columns("group_id", "user_id", "username", "role", "joined_at", "last_read_at", "is_muted")
		for _, m := range group.Members {
			insert = insert.Values(group.ID, m.UserID, m.Username, string(m.Role), m.JoinedAt, m.LastReadAt, m.IsMuted)
		}

		query, args, err := insert.ToSql()
		if err != nil {
			return nil, fmt.Errorf("build query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			if isUniqueViolation(err) {
				return nil, domain.ErrAlreadyExists.WithMessage("duplicate group member")
			}
			return nil, fmt.Errorf("insert members of group %d: %w", group.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return group, nil
}

// Update loads the group with its row locked, applies op and writes the
// result back in the same transaction. Updates of one group are serialized
// by the lock, across processes too. Errors returned by op are passed
// through unchanged.
func (gr *GroupRepo) Update(ctx context.Context, groupID int, op func(*domain.ChatGroup) error) (*domain.ChatGroup, error) {
	tx, err := gr.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	group, err := gr.get(ctx, tx, groupID, true)
	if err != nil {
		return nil, err
	}

	stored := make(map[int]domain.ChatGroupMember, len(group.Members))
	for _, m := range group.Members {
		stored[m.UserID] = m
	}

	if err := op(group); err != nil {
		return nil, err
	}
	group.ID = groupID

	query := `
		UPDATE chat_groups
		SET name = $1, description = $2, avatar_url = $3, is_private = $4, max_members = $5
		WHERE id = $6;
	`

	_, err = tx.ExecContext(ctx, query,
		group.Name,
		group.Description,
		group.AvatarURL,
		group.IsPrivate,
		group.MaxMembers,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("update group %d: %w", groupID, err)
	}

	if err := gr.writeMembers(ctx, tx, group, stored); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return group, nil
}

// writeMembers deletes members missing from group and upserts the ones that
// are new or changed compared to stored.
func (gr *GroupRepo) writeMembers(ctx context.Context, tx *sqlx.Tx, group *domain.ChatGroup, stored map[int]domain.ChatGroupMember) error {
	var removed []int64
	for userID := range stored {
		if !group.IsMember(userID) {
			removed = append(removed, int64(userID))
		}
	}
	if len(removed) > 0 {
		query := `DELETE FROM chat_group_members WHERE group_id = $1 AND user_id = ANY($2);`
		if _, err := tx.ExecContext(ctx, query, group.ID, pq.Array(removed)); err != nil {
			return fmt.Errorf("remove members of group %d: %w", group.ID, err)
		}
	}

	insert := gr.sb.Insert("chat_group_members").
		Columns("group_id", "user_id", "username", "role", "joined_at", "last_read_at", "is_muted").
		Suffix("ON CONFLICT (group_id, user_id) DO UPDATE SET " +
			"username = EXCLUDED.username, role = EXCLUDED.role, " +
			"last_read_at = EXCLUDED.last_read_at, is_muted = EXCLUDED.is_muted")

	changed := 0
	for _, m := range group.Members {
		if old, ok := stored[m.UserID]; ok && sameMember(old, m) {
			continue
		}
		insert = insert.Values(group.ID, m.UserID, m.Username, string(m.Role), m.JoinedAt, m.LastReadAt, m.IsMuted)
		changed++
	}
	if changed == 0 {
		return nil
	}

	query, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("write members of group %d: %w", group.ID, err)
	}
	return nil
}

func sameMember(a, b domain.ChatGroupMember) bool {
	if a.Username != b.Username || a.Role != b.Role || a.IsMuted != b.IsMuted {
		return false
	}
	if (a.LastReadAt == nil) != (b.LastReadAt == nil) {
		return false
	}
	return a.LastReadAt == nil || a.LastReadAt.Equal(*b.LastReadAt)
}

func (gr *GroupRepo) GetByID(ctx context.Context, groupID int) (*domain.ChatGroup, error) {
	return gr.get(ctx, gr.db, groupID, false)
}

func (gr *GroupRepo) get(ctx context.Context, q sqlx.QueryerContext, groupID int, forUpdate bool) (*domain.ChatGroup, error) {
	query := `
		SELECT id, name, description, created_by, avatar_url, is_private, max_members, created_at
		FROM chat_groups
		WHERE id = $1
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var group domain.ChatGroup
	if err := sqlx.GetContext(ctx, q, &group, query, groupID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound.WithMessage("group not found")
		}
		return nil, fmt.Errorf("get group %d: %w", groupID, err)
	}

	query = `
		SELECT user_id, username, role, joined_at, last_read_at, is_muted
		FROM chat_group_members
		WHERE group_id = $1
		ORDER BY joined_at;
	`

	group.Members = []domain.ChatGroupMember{}
	if err := sqlx.SelectContext(ctx, q, &group.Members, query, groupID); err != nil {
		return nil, fmt.Errorf("get members of group %d: %w", groupID, err)
	}
	return &group, nil
}

func (gr *GroupRepo) GetUserGroups(ctx context.Context, userID int) ([]domain.UserGroup, error) {
	query := `
		SELECT g.id, g.name, gm.role, g.is_private, g.created_at
		FROM chat_groups g
		JOIN chat_group_members gm ON g.id = gm.group_id
		WHERE gm.user_id = $1
		ORDER BY g.created_at DESC;
	`

	userGroups := []domain.UserGroup{}
	if err := gr.db.SelectContext(ctx, &userGroups, query, userID); err != nil {
		return nil, fmt.Errorf("get groups of user %d: %w", userID, err)
	}
	return userGroups, nil
}

func (gr *GroupRepo) IsMember(ctx context.Context, groupID, userID int) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM chat_group_members WHERE group_id = $1 AND user_id = $2
		);
	`

	var exists bool
	if err := gr.db.QueryRowContext(ctx, query, groupID, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return exists, nil
}

func (gr *GroupRepo) Delete(ctx context.Context, groupID int) (bool, error) {
	res, err := gr.db.ExecContext(ctx, `DELETE FROM chat_groups WHERE id = $1;`, groupID)
	if err != nil {
		return false, fmt.Errorf("delete group %d: %w", groupID, err)
	}

	rowsAff, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete group %d: %w", groupID, err)
	}
	return rowsAff > 0, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
