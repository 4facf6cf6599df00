package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/ReilBleem13/ChatRelay/internal/domain"
	"github.com/jmoiron/sqlx"
)

var messageColumns = []string{
	"id",
	"group_id",
	"sender_id",
	"content",
	"message_type",
	"mentions",
	"metadata",
	"reply_to_id",
	"is_deleted",
	"edited_at",
	"created_at",
}

type messageRow struct {
	ID          int           `db:"id"`
	GroupID     int           `db:"group_id"`
	SenderID    int           `db:"sender_id"`
	Content     string        `db:"content"`
	MessageType string        `db:"message_type"`
	Mentions    []byte        `db:"mentions"`
	Metadata    []byte        `db:"metadata"`
	ReplyToID   sql.NullInt64 `db:"reply_to_id"`
	IsDeleted   bool          `db:"is_deleted"`
	EditedAt    sql.NullTime  `db:"edited_at"`
	CreatedAt   time.Time     `db:"created_at"`
}

func (r *messageRow) toDomain() (*domain.ChatMessage, error) {
	msg := &domain.ChatMessage{
		ID:          r.ID,
		GroupID:     r.GroupID,
		SenderID:    r.SenderID,
		Content:     r.Content,
		MessageType: domain.MessageType(r.MessageType),
		Mentions:    []domain.Mention{},
		IsDeleted:   r.IsDeleted,
		CreatedAt:   r.CreatedAt,
	}

	if len(r.Mentions) > 0 {
		if err := json.Unmarshal(r.Mentions, &msg.Mentions); err != nil {
			return nil, fmt.Errorf("decode mentions of message %d: %w", r.ID, err)
		}
	}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &msg.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of message %d: %w", r.ID, err)
		}
	}
	if r.ReplyToID.Valid {
		id := int(r.ReplyToID.Int64)
		msg.ReplyToID = &id
	}
	if r.EditedAt.Valid {
		t := r.EditedAt.Time
		msg.EditedAt = &t
	}
	return msg, nil
}

type MessageRepo struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Save inserts a new message (ID == 0) or stores an edit of an existing one.
func (mr *MessageRepo) Save(ctx context.Context, msg *domain.ChatMessage) (*domain.ChatMessage, error) {
	if msg.ID == 0 {
		return mr.insert(ctx, msg)
	}
	return mr.UpdateContent(ctx, msg)
}

// UpdateContent writes the content and edited_at of msg. It never touches
// is_deleted: a message deleted in the meantime is left alone and
// ErrConflict is returned.
func (mr *MessageRepo) UpdateContent(ctx context.Context, msg *domain.ChatMessage) (*domain.ChatMessage, error) {
	query := `
		UPDATE chat_messages
		SET content = $1, edited_at = $2
		WHERE id = $3 AND is_deleted = FALSE;
	`

	res, err := mr.db.ExecContext(ctx, query, msg.Content, msg.EditedAt, msg.ID)
	if err != nil {
		return nil, fmt.Errorf("update message %d: %w", msg.ID, err)
	}

	rowsAff, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update message %d: %w", msg.ID, err)
	}
	if rowsAff == 0 {
		return nil, domain.ErrConflict.WithMessage("message is deleted or does not exist")
	}
	return msg, nil
}

func (mr *MessageRepo) insert(ctx context.Context, msg *domain.ChatMessage) (*domain.ChatMessage, error) {
	mentions, err := json.Marshal(msg.Mentions)
	if err != nil {
		return nil, fmt.Errorf("encode mentions: %w", err)
	}

	var metadata *string
	if len(msg.Metadata) > 0 {
		raw, err := json.Marshal(msg.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
		encoded := string(raw)
		metadata = &encoded
	}

	query := `
		INSERT INTO chat_messages (
			group_id,
			sender_id,
			content,
			message_type,
			mentions,
			metadata,
			reply_to_id,
			is_deleted,
			created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id;
	`

	err = mr.db.QueryRowContext(ctx, query,
		msg.GroupID,
		msg.SenderID,
		msg.Content,
		string(msg.MessageType),
		string(mentions),
		metadata,
		msg.ReplyToID,
		msg.IsDeleted,
		msg.CreatedAt,
	).Scan(&msg.ID)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

func (mr *MessageRepo) GetByID(ctx context.Context, messageID int) (*domain.ChatMessage, error) {
	query, args, err := mr.sb.Select(messageColumns...).
		From("chat_messages").
		Where(sq.Eq{"id": messageID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row messageRow
	if err := mr.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound.WithMessage("message not found")
		}
		return nil, fmt.Errorf("get message %d: %w", messageID, err)
	}
	return row.toDomain()
}

// GetGroupMessages returns up to limit messages newest first. When before is
// set only messages with a smaller id are returned.
func (mr *MessageRepo) GetGroupMessages(ctx context.Context, groupID, limit int, before *int) ([]domain.ChatMessage, error) {
	builder := mr.sb.Select(messageColumns...).
		From("chat_messages").
		Where(sq.Eq{"group_id": groupID}).
		OrderBy("id DESC").
		Limit(uint64(limit))

	if before != nil {
		builder = builder.Where(sq.Lt{"id": *before})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	return mr.selectMessages(ctx, query, args...)
}

func (mr *MessageRepo) SearchMessages(ctx context.Context, groupID int, text string, limit int) ([]domain.ChatMessage, error) {
	query, args, err := mr.sb.Select(messageColumns...).
		From("chat_messages").
		Where(sq.Eq{"group_id": groupID, "is_deleted": false}).
		Where(sq.ILike{"content": "%" + escapeLike(text) + "%"}).
		OrderBy("id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	return mr.selectMessages(ctx, query, args...)
}

// Delete soft-deletes a message. It reports false when the message does not
// exist or was already deleted.
func (mr *MessageRepo) Delete(ctx context.Context, messageID int) (bool, error) {
	query := `
		UPDATE chat_messages
		SET is_deleted = TRUE, content = $1
		WHERE id = $2 AND is_deleted = FALSE;
	`

	res, err := mr.db.ExecContext(ctx, query, domain.DeletedPlaceholder, messageID)
	if err != nil {
		return false, fmt.Errorf("delete message %d: %w", messageID, err)
	}

	rowsAff, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete message %d: %w", messageID, err)
	}
	return rowsAff > 0, nil
}

func (mr *MessageRepo) selectMessages(ctx context.Context, query string, args ...any) ([]domain.ChatMessage, error) {
	var rows []messageRow
	if err := mr.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}

	messages := make([]domain.ChatMessage, 0, len(rows))
	for i := range rows {
		msg, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
