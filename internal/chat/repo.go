package chat

import (
	"context"
	"errors"
	"time"

	"github.com/suPer8Hu/schoolhub/internal/models"
	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateSession(ctx context.Context, s *Session) error {
	return r.db.WithContext(ctx).Create(s).Error
}

// GetSession returns ErrSessionNotFound for absent sessions and for sessions
// owned by another student.
func (r *Repo) GetSession(ctx context.Context, sessionID string, studentID uint64) (*Session, error) {
	var s Session
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND student_id = ?", sessionID, studentID).
		First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &s, nil
}

type ListFilter struct {
	CourseID *uint64
	Status   Status
}

func (r *Repo) ListSessions(ctx context.Context, studentID uint64, f ListFilter, limit, offset int) ([]Session, error) {
	q := r.db.WithContext(ctx).Where("student_id = ?", studentID)
	if f.CourseID != nil {
		q = q.Where("course_id = ?", *f.CourseID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var out []Session
	if err := q.Order("started_at DESC").Limit(limit).Offset(offset).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListMessages returns the full history in ascending order.
func (r *Repo) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("message_order ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *Repo) InsertMessage(ctx context.Context, m *Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// CompleteExchange persists the assistant turn, bumps the session counters and
// writes the optional analytics record in one transaction.
func (r *Repo) CompleteExchange(ctx context.Context, assistant *Message, tokens int, record *InteractionRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(assistant).Error; err != nil {
			return err
		}
		if err := tx.Model(&Session{}).
			Where("session_id = ?", assistant.SessionID).
			Updates(map[string]any{
				"message_count": gorm.Expr("message_count + ?", 1),
				"total_tokens":  gorm.Expr("total_tokens + ?", tokens),
			}).Error; err != nil {
			return err
		}
		if record != nil {
			return tx.Create(record).Error
		}
		return nil
	})
}

// StudentRole looks the student up in users. found is false when no row exists.
func (r *Repo) StudentRole(ctx context.Context, studentID uint64) (role models.Role, found bool, err error) {
	var u models.User
	err = r.db.WithContext(ctx).Select("id", "role").Where("id = ?", studentID).Take(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return u.Role, true, nil
}

func (r *Repo) MarkEnded(ctx context.Context, sessionID string, endedAt time.Time) error {
	return r.db.WithContext(ctx).Model(&Session{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]any{
			"status":   StatusCompleted,
			"ended_at": endedAt,
		}).Error
}

func (r *Repo) SetSummary(ctx context.Context, sessionID, summary string) error {
	return r.db.WithContext(ctx).Model(&Session{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]any{
			"status":  StatusSummarized,
			"summary": summary,
		}).Error
}

func (r *Repo) SetStatus(ctx context.Context, sessionID string, status Status) error {
	return r.db.WithContext(ctx).Model(&Session{}).
		Where("session_id = ?", sessionID).
		Update("status", status).Error
}
