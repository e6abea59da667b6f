package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/suPer8Hu/schoolhub/internal/ai"
	"github.com/suPer8Hu/schoolhub/internal/chat"
	"github.com/suPer8Hu/schoolhub/internal/common"
	"github.com/suPer8Hu/schoolhub/internal/metrics"
	"github.com/suPer8Hu/schoolhub/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxPromptRequests   = 50
	maxResponseChars    = 200
	studentRequestLimit = 50
	studentSessionLimit = 20

	noDataRecommendation = "No student interaction data available for this course yet."
)

// HotCache is an optional fast tier in front of the cache table. Implementations
// must not overwrite an existing key.
type HotCache interface {
	Get(ctx context.Context, teacherID, courseID uint64) ([]byte, bool, error)
	SetIfAbsent(ctx context.Context, teacherID, courseID uint64, payload []byte, ttl time.Duration) error
}

type Options struct {
	CacheTTL       time.Duration
	LookbackDays   int
	CacheRetention time.Duration
}

type Engine struct {
	repo     *Repo
	provider ai.Provider
	hot      HotCache
	log      *zap.Logger
	opts     Options
	now      func() time.Time
}

// NewEngine builds the engine; hot may be nil.
func NewEngine(repo *Repo, provider ai.Provider, hot HotCache, log *zap.Logger, opts Options) *Engine {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 24 * time.Hour
	}
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = 30
	}
	if opts.CacheRetention <= 0 {
		opts.CacheRetention = 7 * 24 * time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		repo:     repo,
		provider: provider,
		hot:      hot,
		log:      log.Named("analytics"),
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// GenerateCourseAnalytics returns a cached analysis when one is still valid,
// otherwise builds one from the course's recent chat data and caches it.
func (e *Engine) GenerateCourseAnalytics(ctx context.Context, teacherID, courseID uint64) (*Result, error) {
	if res := e.hotLookup(ctx, teacherID, courseID); res != nil {
		return res, nil
	}

	now := e.now()
	entry, err := e.repo.ValidCache(ctx, teacherID, courseID, now)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		metrics.AnalyticsCache.WithLabelValues("db", "hit").Inc()
		var res Result
		if err := json.Unmarshal(entry.Analysis, &res); err != nil {
			return nil, fmt.Errorf("decode cached analysis: %w", err)
		}
		generatedAt := entry.GeneratedAt.UTC()
		res.GeneratedAt = &generatedAt
		e.hotStore(ctx, teacherID, courseID, &res, entry.ExpiresAt.Sub(now))
		res.Cached = true
		return &res, nil
	}
	metrics.AnalyticsCache.WithLabelValues("db", "miss").Inc()

	course, err := e.authorize(ctx, teacherID, courseID)
	if err != nil {
		return nil, err
	}

	since := now.AddDate(0, 0, -e.opts.LookbackDays)
	summaries, err := e.repo.SessionSummaries(ctx, courseID, since)
	if err != nil {
		return nil, err
	}
	requests, err := e.repo.RecentRequests(ctx, courseID, since)
	if err != nil {
		return nil, err
	}

	header := fmt.Sprintf("Course: %s (%s)\n\n", course.Name, course.Code)
	var data string
	switch {
	case len(summaries) > 0:
		data = header + "Session Summaries:\n" + summariesText(summaries)
	case len(requests) > 0:
		data = header + "Student Questions and Responses:\n" + requestsText(requests)
	default:
		return emptyResult(courseID), nil
	}

	completion, err := e.provider.Chat(ctx, []ai.Message{
		{Role: ai.RoleUser, Content: analysisPrompt(course.Name, course.Code, data)},
	})
	if err != nil {
		e.log.Warn("analysis failed", zap.Uint64("teacher_id", teacherID), zap.Uint64("course_id", courseID), zap.Error(err))
		return nil, fmt.Errorf("failed to generate analytics: %w", err)
	}

	generatedAt := now.Truncate(time.Millisecond)
	res := &Result{
		CourseID:          courseID,
		CourseCode:        course.Code,
		CourseName:        course.Name,
		RawAnalysis:       completion.Content,
		Sections:          ExtractSections(completion.Content),
		StudentCount:      distinctStudents(requests),
		TotalInteractions: len(requests) + len(summaries),
		GeneratedAt:       &generatedAt,
	}

	payload, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	if err := e.repo.InsertCache(ctx, &CacheEntry{
		TeacherID:   teacherID,
		CourseID:    courseID,
		Analysis:    payload,
		GeneratedAt: generatedAt,
		ExpiresAt:   generatedAt.Add(e.opts.CacheTTL),
	}); err != nil {
		return nil, err
	}
	e.hotStore(ctx, teacherID, courseID, res, e.opts.CacheTTL)

	return res, nil
}

// TeacherCourses lists every course the teacher owns with interaction counts.
func (e *Engine) TeacherCourses(ctx context.Context, teacherID uint64) ([]CourseSummary, error) {
	return e.repo.TeacherCourses(ctx, teacherID)
}

// StudentAnalytics is the raw drill-down for one student in one course.
func (e *Engine) StudentAnalytics(ctx context.Context, teacherID, studentID, courseID uint64) (*StudentAnalytics, error) {
	if _, err := e.authorize(ctx, teacherID, courseID); err != nil {
		return nil, err
	}
	requests, err := e.repo.StudentRequests(ctx, studentID, courseID, studentRequestLimit)
	if err != nil {
		return nil, err
	}
	sessions, err := e.repo.StudentSessions(ctx, studentID, courseID, studentSessionLimit)
	if err != nil {
		return nil, err
	}
	if requests == nil {
		requests = []chat.InteractionRecord{}
	}
	if sessions == nil {
		sessions = []chat.Session{}
	}
	return &StudentAnalytics{
		Requests:      requests,
		Sessions:      sessions,
		TotalRequests: len(requests),
		TotalSessions: len(sessions),
	}, nil
}

// RequestRefresh records a refresh job after the ownership check. created is
// false when the idempotency key matched an earlier job.
func (e *Engine) RequestRefresh(ctx context.Context, teacherID, courseID uint64, idempotencyKey string) (*Job, bool, error) {
	if _, err := e.authorize(ctx, teacherID, courseID); err != nil {
		return nil, false, err
	}
	id, err := common.NewULID()
	if err != nil {
		return nil, false, err
	}
	j := &Job{
		ID:        id,
		TeacherID: teacherID,
		CourseID:  courseID,
		Status:    JobQueued,
	}
	if idempotencyKey != "" {
		j.IdempotencyKey = &idempotencyKey
	}
	return e.repo.CreateJobOrGetExisting(ctx, j)
}

// GetJob hides jobs of other teachers.
func (e *Engine) GetJob(ctx context.Context, teacherID uint64, jobID string) (*Job, error) {
	j, err := e.repo.GetJobByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	if j.TeacherID != teacherID {
		return nil, ErrJobNotFound
	}
	return j, nil
}

// RunJob executes a queued refresh and records its outcome.
func (e *Engine) RunJob(ctx context.Context, jobID string) error {
	if err := e.repo.UpdateJobStatusRunning(ctx, jobID); err != nil {
		return err
	}
	j, err := e.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}
	if j.Status == JobSucceeded {
		// redelivery
		return nil
	}

	res, err := e.GenerateCourseAnalytics(ctx, j.TeacherID, j.CourseID)
	if err != nil {
		metrics.AnalyticsJobs.WithLabelValues(string(JobFailed)).Inc()
		if merr := e.repo.MarkJobFailed(ctx, jobID, err.Error()); merr != nil {
			return errors.Join(err, merr)
		}
		return err
	}
	metrics.AnalyticsJobs.WithLabelValues(string(JobSucceeded)).Inc()
	return e.repo.MarkJobSucceeded(ctx, jobID, res.GeneratedAt)
}

// PurgeExpiredCache deletes cache rows that expired longer than the retention ago.
func (e *Engine) PurgeExpiredCache(ctx context.Context) (int64, error) {
	n, err := e.repo.PurgeExpired(ctx, e.now().Add(-e.opts.CacheRetention))
	if err != nil {
		return 0, err
	}
	metrics.CachePurged.Add(float64(n))
	return n, nil
}

// authorize distinguishes a missing course from a course owned by someone else.
func (e *Engine) authorize(ctx context.Context, teacherID, courseID uint64) (*models.Course, error) {
	course, err := e.repo.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course.TeacherID != teacherID {
		return nil, ErrNotCourseTeacher
	}
	return course, nil
}

func (e *Engine) hotLookup(ctx context.Context, teacherID, courseID uint64) *Result {
	if e.hot == nil {
		return nil
	}
	b, ok, err := e.hot.Get(ctx, teacherID, courseID)
	if err != nil {
		e.log.Warn("hot cache get failed", zap.Error(err))
		return nil
	}
	if !ok {
		metrics.AnalyticsCache.WithLabelValues("hot", "miss").Inc()
		return nil
	}
	var res Result
	if err := json.Unmarshal(b, &res); err != nil {
		e.log.Warn("hot cache entry undecodable", zap.Error(err))
		return nil
	}
	metrics.AnalyticsCache.WithLabelValues("hot", "hit").Inc()
	res.Cached = true
	return &res
}

func (e *Engine) hotStore(ctx context.Context, teacherID, courseID uint64, res *Result, ttl time.Duration) {
	if e.hot == nil || ttl <= 0 {
		return
	}
	cp := *res
	cp.Cached = false
	b, err := json.Marshal(cp)
	if err != nil {
		return
	}
	if err := e.hot.SetIfAbsent(ctx, teacherID, courseID, b, ttl); err != nil {
		e.log.Warn("hot cache set failed", zap.Error(err))
	}
}

func emptyResult(courseID uint64) *Result {
	return &Result{
		CourseID: courseID,
		Sections: Sections{
			Strengths:       []string{},
			Weaknesses:      []string{},
			CommonTopics:    []string{},
			Recommendations: []string{noDataRecommendation},
		},
	}
}

func summariesText(rows []summaryRow) string {
	parts := make([]string, 0, len(rows))
	for _, s := range rows {
		parts = append(parts, fmt.Sprintf("Student: %s\nSummary: %s", s.StudentName, s.Summary))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

func requestsText(rows []requestRow) string {
	if len(rows) > maxPromptRequests {
		rows = rows[:maxPromptRequests]
	}
	parts := make([]string, 0, len(rows))
	for _, r := range rows {
		parts = append(parts, fmt.Sprintf("Student: %s\nQuestion: %s\nResponse: %s...",
			r.StudentName, r.Prompt, truncateRunes(r.Response, maxResponseChars)))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func distinctStudents(rows []requestRow) int {
	seen := make(map[uint64]struct{}, len(rows))
	for _, r := range rows {
		seen[r.StudentID] = struct{}{}
	}
	return len(seen)
}

func analysisPrompt(name, code, data string) string {
	return fmt.Sprintf(`As an educational analytics expert, analyze the following student interactions for the course "%s" (%s).

Based on the student questions, responses, and conversation summaries provided, identify:

1. **Student Strengths**: What topics or concepts are students understanding well?
2. **Student Weaknesses**: What areas are students struggling with?
3. **Common Topics**: What are the most frequently discussed topics?
4. **Recommendations**: What specific actions should the instructor take to improve student learning?

Provide your analysis in a structured format with clear sections.

Student Interaction Data:
%s`, name, code, data)
}
