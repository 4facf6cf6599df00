package service

import (
	"errors"
	"reflect"
	"strings"

	"github.com/ReilBleem13/ChatRelay/internal/domain"
	"github.com/go-playground/validator/v10"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

type SendMessageDTO struct {
	GroupID     int               `json:"-" validate:"required,gt=0"`
	SenderID    int               `json:"-" validate:"required,gt=0"`
	Content     string            `json:"content"`
	MessageType string            `json:"message_type" validate:"omitempty,oneof=TEXT IMAGE FILE"`
	ReplyToID   *int              `json:"reply_to_id,omitempty" validate:"omitempty,gt=0"`
	Metadata    map[string]string `json:"metadata,omitempty" validate:"omitempty,max=20"`
}

type SendResult struct {
	Message          *domain.ChatMessage `json:"message"`
	MentionedUserIDs []int               `json:"mentioned_user_ids"`
}

type EditMessageDTO struct {
	MessageID int    `json:"-" validate:"required,gt=0"`
	EditorID  int    `json:"-" validate:"required,gt=0"`
	Content   string `json:"content" validate:"required"`
}

type HistoryDTO struct {
	GroupID int  `validate:"required,gt=0"`
	UserID  int  `validate:"required,gt=0"`
	Limit   int  `validate:"omitempty,min=1,max=100"`
	Before  *int `validate:"omitempty,gt=0"`
}

type SearchDTO struct {
	GroupID int    `validate:"required,gt=0"`
	UserID  int    `validate:"required,gt=0"`
	Query   string `validate:"required,max=200"`
	Limit   int    `validate:"omitempty,min=1,max=100"`
}

type CreateGroupDTO struct {
	CreatorID   int     `json:"-" validate:"required,gt=0"`
	CreatorName string  `json:"-" validate:"required,max=64"`
	Name        string  `json:"name" validate:"required,max=255"`
	Description string  `json:"description" validate:"max=1000"`
	AvatarURL   *string `json:"avatar_url,omitempty" validate:"omitempty,url"`
	IsPrivate   bool    `json:"is_private"`
	MaxMembers  int     `json:"max_members" validate:"omitempty,min=1,max=100000"`
}

type AddMemberDTO struct {
	GroupID  int               `json:"-" validate:"required,gt=0"`
	ActorID  int               `json:"-" validate:"required,gt=0"`
	UserID   int               `json:"user_id" validate:"required,gt=0"`
	Username string            `json:"username" validate:"required,max=64"`
	Role     domain.MemberRole `json:"role" validate:"omitempty,oneof=ADMIN MEMBER"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return strings.ToLower(field.Name)
		}
		return name
	})
	return v
}

func validateDTO(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return domain.ErrValidation
	}

	fields := make([]string, 0, len(verrs))
	violations := make([]domain.FieldViolation, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field()+" ("+fe.Tag()+")")
		violations = append(violations, domain.FieldViolation{Field: fe.Field(), Rule: fe.Tag()})
	}
	return domain.ErrValidation.
		WithMessage("invalid fields: " + strings.Join(fields, ", ")).
		WithViolations(violations...)
}

func historyLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}
