package analytics

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/suPer8Hu/schoolhub/internal/chat"
	"gorm.io/datatypes"
)

// CacheEntry is one immutable analysis snapshot. Rows are never updated; an
// expired row is ignored until housekeeping deletes it.
type CacheEntry struct {
	CacheID     uint64         `gorm:"column:cache_id;primaryKey;autoIncrement"`
	TeacherID   uint64         `gorm:"not null;uniqueIndex:uniq_analytics_cache_key,priority:1"`
	CourseID    uint64         `gorm:"not null;uniqueIndex:uniq_analytics_cache_key,priority:2"`
	Analysis    datatypes.JSON `gorm:"not null"`
	GeneratedAt time.Time      `gorm:"not null;uniqueIndex:uniq_analytics_cache_key,priority:3"`
	ExpiresAt   time.Time      `gorm:"not null;index"`
}

func (CacheEntry) TableName() string { return "teacher_analytics_cache" }

type Sections struct {
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	CommonTopics    []string `json:"common_topics"`
	Recommendations []string `json:"recommendations"`
}

type Result struct {
	CourseID    uint64 `json:"course_id"`
	CourseCode  string `json:"course_code,omitempty"`
	CourseName  string `json:"course_name,omitempty"`
	RawAnalysis string `json:"raw_analysis,omitempty"`
	Sections
	StudentCount      int        `json:"student_count"`
	TotalInteractions int        `json:"total_interactions"`
	GeneratedAt       *time.Time `json:"generated_at,omitempty"`
	Cached            bool       `json:"cached"`
}

type CourseSummary struct {
	ID              uint64     `json:"id"`
	Code            string     `json:"code"`
	Name            string     `json:"name"`
	CreatedAt       time.Time  `json:"created_at"`
	StudentCount    int64      `json:"student_count"`
	TotalRequests   int64      `json:"total_requests"`
	LastInteraction *time.Time `json:"last_interaction"`
}

type StudentAnalytics struct {
	Requests      []chat.InteractionRecord `json:"requests"`
	Sessions      []chat.Session           `json:"sessions"`
	TotalRequests int                      `json:"total_requests"`
	TotalSessions int                      `json:"total_sessions"`
}

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job is a queued analytics refresh for one (teacher, course).
type Job struct {
	ID string `gorm:"primaryKey;size:26" json:"id"` // ULID length

	TeacherID uint64 `gorm:"not null;index;uniqueIndex:uniq_analytics_job_idempo,priority:1" json:"teacher_id"`
	CourseID  uint64 `gorm:"not null;index" json:"course_id"`

	IdempotencyKey *string `gorm:"type:varchar(128);uniqueIndex:uniq_analytics_job_idempo,priority:2" json:"-"`

	Status JobStatus `gorm:"type:varchar(16);index;not null" json:"status"`

	// Filled when succeeded
	ResultGeneratedAt *time.Time `json:"result_generated_at"`

	// Filled when failed
	Error *string `gorm:"type:text" json:"error"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Job) TableName() string { return "analytics_jobs" }

// flexTime scans aggregate timestamps, which some drivers return as text.
type flexTime struct {
	Time  time.Time
	Valid bool
}

var flexLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (f *flexTime) Scan(v any) error {
	switch t := v.(type) {
	case nil:
		f.Time, f.Valid = time.Time{}, false
		return nil
	case time.Time:
		f.Time, f.Valid = t.UTC(), true
		return nil
	case []byte:
		return f.parse(string(t))
	case string:
		return f.parse(t)
	}
	return fmt.Errorf("flexTime: unsupported type %T", v)
}

func (f *flexTime) parse(s string) error {
	for _, layout := range flexLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			f.Time, f.Valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("flexTime: cannot parse %q", s)
}

func (f flexTime) Value() (driver.Value, error) {
	if !f.Valid {
		return nil, nil
	}
	return f.Time, nil
}

func (f flexTime) Ptr() *time.Time {
	if !f.Valid {
		return nil
	}
	t := f.Time
	return &t
}
