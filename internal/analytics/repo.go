package analytics

import (
	"context"
	"errors"
	"time"

	"github.com/suPer8Hu/schoolhub/internal/chat"
	"github.com/suPer8Hu/schoolhub/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// ValidCache returns the newest unexpired entry, or nil when there is none.
func (r *Repo) ValidCache(ctx context.Context, teacherID, courseID uint64, now time.Time) (*CacheEntry, error) {
	var e CacheEntry
	err := r.db.WithContext(ctx).
		Where("teacher_id = ? AND course_id = ? AND expires_at > ?", teacherID, courseID, now).
		Order("generated_at DESC").
		Take(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// InsertCache is insert-if-absent: a racing duplicate for the same key is dropped.
func (r *Repo) InsertCache(ctx context.Context, e *CacheEntry) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(e).Error
}

func (r *Repo) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at < ?", before).Delete(&CacheEntry{})
	return res.RowsAffected, res.Error
}

func (r *Repo) GetCourse(ctx context.Context, courseID uint64) (*models.Course, error) {
	var c models.Course
	if err := r.db.WithContext(ctx).First(&c, courseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCourseNotFound
		}
		return nil, err
	}
	return &c, nil
}

type summaryRow struct {
	SessionID   string
	StudentID   uint64
	StudentName string
	Summary     string
}

// SessionSummaries lists summarized sessions of a course started since `since`, newest first.
func (r *Repo) SessionSummaries(ctx context.Context, courseID uint64, since time.Time) ([]summaryRow, error) {
	var rows []summaryRow
	err := r.db.WithContext(ctx).
		Table("student_chat_sessions AS s").
		Select("s.session_id, s.student_id, COALESCE(u.full_name, '') AS student_name, s.summary").
		Joins("LEFT JOIN users u ON u.id = s.student_id").
		Where("s.course_id = ? AND s.started_at >= ? AND s.summary IS NOT NULL AND s.summary <> ''", courseID, since).
		Order("s.started_at DESC").
		Scan(&rows).Error
	return rows, err
}

type requestRow struct {
	RequestID   uint64
	StudentID   uint64
	StudentName string
	Prompt      string
	Response    string
}

// RecentRequests lists interaction records of a course created since `since`, newest first.
func (r *Repo) RecentRequests(ctx context.Context, courseID uint64, since time.Time) ([]requestRow, error) {
	var rows []requestRow
	err := r.db.WithContext(ctx).
		Table("student_requests AS sr").
		Select("sr.request_id, sr.student_id, COALESCE(u.full_name, '') AS student_name, sr.prompt, sr.response").
		Joins("LEFT JOIN users u ON u.id = sr.student_id").
		Where("sr.course_id = ? AND sr.created_at >= ?", courseID, since).
		Order("sr.created_at DESC").
		Scan(&rows).Error
	return rows, err
}

type courseSummaryRow struct {
	ID              uint64
	Code            string
	Name            string
	CreatedAt       flexTime
	StudentCount    int64
	TotalRequests   int64
	LastInteraction flexTime
}

func (r *Repo) TeacherCourses(ctx context.Context, teacherID uint64) ([]CourseSummary, error) {
	var rows []courseSummaryRow
	err := r.db.WithContext(ctx).
		Table("courses AS c").
		Select(`c.id, c.code, c.name, c.created_at,
			COUNT(DISTINCT sr.student_id) AS student_count,
			COUNT(sr.request_id) AS total_requests,
			MAX(sr.created_at) AS last_interaction`).
		Joins("LEFT JOIN student_requests sr ON sr.course_id = c.id").
		Where("c.teacher_id = ?", teacherID).
		Group("c.id, c.code, c.name, c.created_at").
		Order("c.name").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]CourseSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, CourseSummary{
			ID:              row.ID,
			Code:            row.Code,
			Name:            row.Name,
			CreatedAt:       row.CreatedAt.Time,
			StudentCount:    row.StudentCount,
			TotalRequests:   row.TotalRequests,
			LastInteraction: row.LastInteraction.Ptr(),
		})
	}
	return out, nil
}

func (r *Repo) StudentRequests(ctx context.Context, studentID, courseID uint64, limit int) ([]chat.InteractionRecord, error) {
	var out []chat.InteractionRecord
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND course_id = ?", studentID, courseID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *Repo) StudentSessions(ctx context.Context, studentID, courseID uint64, limit int) ([]chat.Session, error) {
	var out []chat.Session
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND course_id = ?", studentID, courseID).
		Order("started_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// Job CRUD
func (r *Repo) GetJobByID(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

// UpdateJobStatusRunning claims queued jobs and failed jobs being retried.
func (r *Repo) UpdateJobStatusRunning(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status IN ?", id, []JobStatus{JobQueued, JobFailed}).
		Update("status", JobRunning).Error
}

func (r *Repo) MarkJobSucceeded(ctx context.Context, id string, generatedAt *time.Time) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":              JobSucceeded,
			"result_generated_at": generatedAt,
			"error":               nil,
		}).Error
}

func (r *Repo) MarkJobFailed(ctx context.Context, id string, errMsg string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":              JobFailed,
			"error":               errMsg,
			"result_generated_at": nil,
		}).Error
}

func (r *Repo) GetJobByTeacherAndIdempotencyKey(ctx context.Context, teacherID uint64, key string) (*Job, error) {
	var job Job
	err := r.db.WithContext(ctx).
		Where("teacher_id = ? AND idempotency_key = ?", teacherID, key).
		First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// CreateJobOrGetExisting creates a job, or returns the existing one when
// (teacher_id, idempotency_key) is already taken. created reports which.
func (r *Repo) CreateJobOrGetExisting(ctx context.Context, job *Job) (*Job, bool, error) {
	if job.IdempotencyKey == nil || *job.IdempotencyKey == "" {
		job.IdempotencyKey = nil
		if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
			return nil, false, err
		}
		return job, true, nil
	}

	err := r.db.WithContext(ctx).Create(job).Error
	if err == nil {
		return job, true, nil
	}

	existing, getErr := r.GetJobByTeacherAndIdempotencyKey(ctx, job.TeacherID, *job.IdempotencyKey)
	if getErr == nil {
		return existing, false, nil
	}
	if errors.Is(getErr, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	return nil, false, getErr
}
