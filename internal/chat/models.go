package chat

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusActive     Status = "active"
	StatusCompleted  Status = "completed"
	StatusSummarized Status = "summarized"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Session struct {
	SessionID    string     `gorm:"primaryKey;type:varchar(26)" json:"session_id"`
	StudentID    uint64     `gorm:"not null;index:idx_chat_session_student_started,priority:1" json:"student_id"`
	CourseID     *uint64    `gorm:"index" json:"course_id"`
	Status       Status     `gorm:"type:varchar(16);not null;index" json:"status"`
	StartedAt    time.Time  `gorm:"not null;index:idx_chat_session_student_started,priority:2" json:"started_at"`
	EndedAt      *time.Time `json:"ended_at"`
	MessageCount int        `gorm:"not null;default:0" json:"message_count"`
	TotalTokens  int        `gorm:"not null;default:0" json:"total_tokens"`
	Summary      *string    `gorm:"type:text" json:"summary"`
}

func (Session) TableName() string { return "student_chat_sessions" }

func (s *Session) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusSummarized
}

type Message struct {
	ID           uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID    string         `gorm:"type:varchar(26);not null;uniqueIndex:uniq_chat_msg_session_order,priority:1" json:"session_id" validate:"required"`
	Role         string         `gorm:"type:varchar(16);not null" json:"role" validate:"required,oneof=user assistant"`
	Content      string         `gorm:"type:text;not null" json:"content"`
	Reasoning    datatypes.JSON `json:"reasoning_details,omitempty"`
	MessageOrder int            `gorm:"not null;uniqueIndex:uniq_chat_msg_session_order,priority:2" json:"message_order" validate:"gte=0"`
	CreatedAt    time.Time      `json:"created_at"`
}

func (Message) TableName() string { return "student_chat_messages" }

var validate = validator.New()

// NewMessage builds a turn for persistence. A reasoning trace is only accepted on
// assistant turns.
func NewMessage(sessionID, role, content string, order int, reasoning json.RawMessage) (*Message, error) {
	m := &Message{
		SessionID:    sessionID,
		Role:         role,
		Content:      content,
		MessageOrder: order,
	}
	if err := validate.Struct(m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if len(reasoning) > 0 {
		if role != RoleAssistant {
			return nil, fmt.Errorf("%w: reasoning trace on %s turn", ErrInvalidMessage, role)
		}
		if !json.Valid(reasoning) {
			return nil, fmt.Errorf("%w: reasoning trace is not valid json", ErrInvalidMessage)
		}
		m.Reasoning = datatypes.JSON(reasoning)
	}
	return m, nil
}

// InteractionRecord is one prompt/response pair fed to course analytics.
type InteractionRecord struct {
	RequestID  uint64         `gorm:"column:request_id;primaryKey;autoIncrement" json:"request_id"`
	StudentID  uint64         `gorm:"not null;index" json:"student_id"`
	CourseID   uint64         `gorm:"not null;index:idx_student_requests_course_created,priority:1" json:"course_id"`
	Prompt     string         `gorm:"type:text;not null" json:"prompt"`
	Response   string         `gorm:"type:text;not null" json:"response"`
	Reasoning  datatypes.JSON `json:"reasoning_details,omitempty"`
	TokensUsed int            `gorm:"not null;default:0" json:"tokens_used"`
	CreatedAt  time.Time      `gorm:"index:idx_student_requests_course_created,priority:2" json:"created_at"`
}

func (InteractionRecord) TableName() string { return "student_requests" }
