package analytics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/schoolhub/internal/ai"
	"github.com/suPer8Hu/schoolhub/internal/chat"
	"github.com/suPer8Hu/schoolhub/internal/models"
	"gorm.io/gorm"
)

const sampleAnalysis = `### Student Strengths
1. Recursion base cases

### Student Weaknesses
- Pointer arithmetic

### Common Topics
1. Recursion

### Recommendations
1. Add pointer exercises
`

type countingProvider struct {
	mu      sync.Mutex
	prompts []string
	err     error
}

func (p *countingProvider) Chat(ctx context.Context, messages []ai.Message) (*ai.Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, messages[len(messages)-1].Content)
	if p.err != nil {
		return nil, p.err
	}
	return &ai.Completion{Content: sampleAnalysis}, nil
}

func (p *countingProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.prompts)
}

type memHot struct {
	mu sync.Mutex
	m  map[string][]byte
}

func (h *memHot) key(t, c uint64) string { return fmt.Sprintf("%d:%d", t, c) }

func (h *memHot) Get(ctx context.Context, teacherID, courseID uint64) ([]byte, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.m[h.key(teacherID, courseID)]
	return b, ok, nil
}

func (h *memHot) SetIfAbsent(ctx context.Context, teacherID, courseID uint64, payload []byte, ttl time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	k := h.key(teacherID, courseID)
	if _, ok := h.m[k]; !ok {
		h.m[k] = payload
	}
	return nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(gormsqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Course{},
		&chat.Session{}, &chat.Message{}, &chat.InteractionRecord{},
		&CacheEntry{}, &Job{},
	))
	return db
}

type fixture struct {
	db     *gorm.DB
	prov   *countingProvider
	engine *Engine
}

func newFixture(t *testing.T, hot HotCache) *fixture {
	t.Helper()
	db := openTestDB(t)
	prov := &countingProvider{}
	eng := NewEngine(NewRepo(db), prov, hot, nil, Options{})

	require.NoError(t, db.Create(&models.User{ID: 5, Email: "t@school.test", FullName: "Teacher", PasswordHash: "x", Role: models.RoleTeacher}).Error)
	require.NoError(t, db.Create(&models.User{ID: 6, Email: "o@school.test", FullName: "Other", PasswordHash: "x", Role: models.RoleTeacher}).Error)
	require.NoError(t, db.Create(&models.Course{ID: 3, Code: "CS101", Name: "Intro to CS", TeacherID: 5}).Error)
	return &fixture{db: db, prov: prov, engine: eng}
}

func (f *fixture) student(t *testing.T, id uint64, name string) {
	t.Helper()
	require.NoError(t, f.db.Create(&models.User{ID: id, Email: fmt.Sprintf("s%d@school.test", id), FullName: name, PasswordHash: "x", Role: models.RoleStudent}).Error)
}

func (f *fixture) request(t *testing.T, studentID, courseID uint64, prompt, response string, at time.Time) {
	t.Helper()
	require.NoError(t, f.db.Create(&chat.InteractionRecord{
		StudentID: studentID, CourseID: courseID, Prompt: prompt, Response: response, TokensUsed: 1, CreatedAt: at,
	}).Error)
}

func (f *fixture) summarizedSession(t *testing.T, id string, studentID, courseID uint64, summary string, at time.Time) {
	t.Helper()
	require.NoError(t, f.db.Create(&chat.Session{
		SessionID: id, StudentID: studentID, CourseID: &courseID,
		Status: chat.StatusSummarized, StartedAt: at, Summary: &summary,
	}).Error)
}

func TestGenerateCourseAnalytics_CacheHitMakesOneCall(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.student(t, 7, "Ada")
	f.request(t, 7, 3, "What is recursion?", "A function calling itself.", time.Now().UTC().Add(-time.Hour))

	first, err := f.engine.GenerateCourseAnalytics(ctx, 5, 3)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	require.NotNil(t, first.GeneratedAt)

	second, err := f.engine.GenerateCourseAnalytics(ctx, 5, 3)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	require.NotNil(t, second.GeneratedAt)
	assert.True(t, first.GeneratedAt.Equal(*second.GeneratedAt), "first=%s second=%s", first.GeneratedAt, second.GeneratedAt)
	assert.Equal(t, first.Sections, second.Sections)
	assert.Equal(t, 1, f.prov.calls())
}

func TestGenerateCourseAnalytics_EmptyDataShortCircuits(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.engine.GenerateCourseAnalytics(context.Background(), 5, 3)
	require.NoError(t, err)

	assert.Equal(t, 0, f.prov.calls())
	assert.False(t, res.Cached)
	assert.Empty(t, res.Strengths)
	assert.Empty(t, res.Weaknesses)
	assert.Empty(t, res.CommonTopics)
	assert.Equal(t, []string{noDataRecommendation}, res.Recommendations)
	assert.Zero(t, res.StudentCount)
	assert.Zero(t, res.TotalInteractions)

	var n int64
	require.NoError(t, f.db.Model(&CacheEntry{}).Count(&n).Error)
	assert.Zero(t, n, "empty results are not cached")
}

func TestGenerateCourseAnalytics_NotFoundVsNotTeacher(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.engine.GenerateCourseAnalytics(ctx, 5, 999)
	assert.ErrorIs(t, err, ErrCourseNotFound)

	_, err = f.engine.GenerateCourseAnalytics(ctx, 6, 3)
	assert.ErrorIs(t, err, ErrNotCourseTeacher)
	assert.NotErrorIs(t, err, ErrCourseNotFound)

	_, err = f.engine.StudentAnalytics(ctx, 6, 7, 3)
	assert.ErrorIs(t, err, ErrNotCourseTeacher)
	assert.Equal(t, 0, f.prov.calls())
}

func TestGenerateCourseAnalytics_ExpiredCacheIgnored(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.student(t, 7, "Ada")
	f.request(t, 7, 3, "q", "r", time.Now().UTC().Add(-time.Hour))

	old := time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, f.db.Create(&CacheEntry{
		TeacherID: 5, CourseID: 3, Analysis: []byte(`{"raw_analysis":"stale"}`),
		GeneratedAt: old, ExpiresAt: old.Add(24 * time.Hour),
	}).Error)

	res, err := f.engine.GenerateCourseAnalytics(ctx, 5, 3)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, sampleAnalysis, res.RawAnalysis)
	assert.Equal(t, 1, f.prov.calls())

	var n int64
	require.NoError(t, f.db.Model(&CacheEntry{}).Count(&n).Error)
	assert.EqualValues(t, 2, n, "expired row is kept, a new row is written")
}

func TestGenerateCourseAnalytics_PrefersSummaries(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()
	f.student(t, 7, "Ada")
	f.student(t, 8, "Brian")
	f.summarizedSession(t, "01SESSIONA0000000000000000", 7, 3, "Covered recursion.", now.Add(-2*time.Hour))
	f.summarizedSession(t, "01SESSIONB0000000000000000", 8, 3, "Covered loops.", now.Add(-time.Hour))
	f.request(t, 7, 3, "q1", "r1", now.Add(-time.Hour))
	f.request(t, 8, 3, "q2", "r2", now.Add(-time.Hour))
	f.request(t, 8, 3, "q3", "r3", now.Add(-time.Hour))

	res, err := f.engine.GenerateCourseAnalytics(ctx, 5, 3)
	require.NoError(t, err)

	require.Equal(t, 1, f.prov.calls())
	prompt := f.prov.prompts[0]
	assert.Contains(t, prompt, `for the course "Intro to CS" (CS101)`)
	assert.Contains(t, prompt, "Course: Intro to CS (CS101)\n\nSession Summaries:\n")
	assert.Contains(t, prompt, "Student: Brian\nSummary: Covered loops.\n\n---\n\nStudent: Ada\nSummary: Covered recursion.")
	assert.NotContains(t, prompt, "Student Questions and Responses")

	assert.Equal(t, 2, res.StudentCount)
	assert.Equal(t, 5, res.TotalInteractions)
	assert.Equal(t, []string{"Recursion base cases"}, res.Strengths)
	assert.Equal(t, []string{"Pointer arithmetic"}, res.Weaknesses)
	assert.Equal(t, []string{"Add pointer exercises"}, res.Recommendations)
}

func TestGenerateCourseAnalytics_RequestFallbackIsBounded(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()
	f.student(t, 7, "Ada")
	long := strings.Repeat("x", 300)
	for i := 0; i < 55; i++ {
		f.request(t, 7, 3, fmt.Sprintf("question %d", i), long, now.Add(-time.Duration(i+1)*time.Minute))
	}
	// outside the lookback window
	f.request(t, 7, 3, "ancient", "r", now.AddDate(0, 0, -31))

	res, err := f.engine.GenerateCourseAnalytics(ctx, 5, 3)
	require.NoError(t, err)

	prompt := f.prov.prompts[0]
	assert.Contains(t, prompt, "Student Questions and Responses:\nStudent: Ada\nQuestion: question 0\n")
	assert.Equal(t, 50, strings.Count(prompt, "Question: "))
	assert.Contains(t, prompt, "Response: "+strings.Repeat("x", 200)+"...")
	assert.NotContains(t, prompt, strings.Repeat("x", 201))
	assert.NotContains(t, prompt, "ancient")
	assert.NotContains(t, prompt, "question 50")

	assert.Equal(t, 1, res.StudentCount)
	assert.Equal(t, 55, res.TotalInteractions)
}

func TestGenerateCourseAnalytics_UpstreamFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.student(t, 7, "Ada")
	f.request(t, 7, 3, "q", "r", time.Now().UTC().Add(-time.Hour))
	f.prov.err = &ai.UpstreamError{Provider: "fake", StatusCode: 500, Message: "model overloaded"}

	_, err := f.engine.GenerateCourseAnalytics(context.Background(), 5, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ai.ErrUpstream))
	assert.Equal(t, "failed to generate analytics: fake: model overloaded", err.Error())

	var n int64
	require.NoError(t, f.db.Model(&CacheEntry{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestGenerateCourseAnalytics_HotTier(t *testing.T) {
	hot := &memHot{m: map[string][]byte{}}
	f := newFixture(t, hot)
	ctx := context.Background()
	f.student(t, 7, "Ada")
	f.request(t, 7, 3, "q", "r", time.Now().UTC().Add(-time.Hour))

	first, err := f.engine.GenerateCourseAnalytics(ctx, 5, 3)
	require.NoError(t, err)
	require.Len(t, hot.m, 1)

	// the hot tier answers even after the table row is gone
	require.NoError(t, f.db.Where("1 = 1").Delete(&CacheEntry{}).Error)

	second, err := f.engine.GenerateCourseAnalytics(ctx, 5, 3)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.True(t, first.GeneratedAt.Equal(*second.GeneratedAt))
	assert.Equal(t, 1, f.prov.calls())
}

func TestTeacherCourses(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.db.Create(&models.Course{ID: 4, Code: "MA201", Name: "Algebra", TeacherID: 5}).Error)
	require.NoError(t, f.db.Create(&models.Course{ID: 9, Code: "HI100", Name: "History", TeacherID: 6}).Error)

	last := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	f.request(t, 7, 3, "a", "b", last.Add(-time.Hour))
	f.request(t, 7, 3, "a", "b", last)
	f.request(t, 8, 3, "a", "b", last.Add(-2*time.Hour))

	got, err := f.engine.TeacherCourses(ctx, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "Algebra", got[0].Name)
	assert.Zero(t, got[0].StudentCount)
	assert.Zero(t, got[0].TotalRequests)
	assert.Nil(t, got[0].LastInteraction)

	assert.Equal(t, "Intro to CS", got[1].Name)
	assert.EqualValues(t, 2, got[1].StudentCount)
	assert.EqualValues(t, 3, got[1].TotalRequests)
	require.NotNil(t, got[1].LastInteraction)
	assert.True(t, last.Equal(*got[1].LastInteraction), "last=%s", got[1].LastInteraction)
}

func TestStudentAnalytics_Limits(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()
	for i := 0; i < 60; i++ {
		f.request(t, 7, 3, "q", "r", now.Add(-time.Duration(i)*time.Minute))
	}
	f.request(t, 8, 3, "other student", "r", now)
	for i := 0; i < 25; i++ {
		f.summarizedSession(t, fmt.Sprintf("01SESSION%017d", i), 7, 3, "s", now.Add(-time.Duration(i)*time.Hour))
	}

	res, err := f.engine.StudentAnalytics(ctx, 5, 7, 3)
	require.NoError(t, err)
	assert.Len(t, res.Requests, 50)
	assert.Len(t, res.Sessions, 20)
	assert.Equal(t, 50, res.TotalRequests)
	assert.Equal(t, 20, res.TotalSessions)
	assert.True(t, res.Requests[0].CreatedAt.After(res.Requests[1].CreatedAt))

	empty, err := f.engine.StudentAnalytics(ctx, 5, 99, 3)
	require.NoError(t, err)
	assert.NotNil(t, empty.Requests)
	assert.Zero(t, empty.TotalSessions)
}

func TestRefreshJobs(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.student(t, 7, "Ada")
	f.request(t, 7, 3, "q", "r", time.Now().UTC().Add(-time.Hour))

	j1, created, err := f.engine.RequestRefresh(ctx, 5, 3, "key-1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, JobQueued, j1.Status)

	j2, created, err := f.engine.RequestRefresh(ctx, 5, 3, "key-1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, j1.ID, j2.ID)

	_, _, err = f.engine.RequestRefresh(ctx, 6, 3, "")
	assert.ErrorIs(t, err, ErrNotCourseTeacher)

	require.NoError(t, f.engine.RunJob(ctx, j1.ID))
	done, err := f.engine.GetJob(ctx, 5, j1.ID)
	require.NoError(t, err)
	assert.Equal(t, JobSucceeded, done.Status)
	assert.NotNil(t, done.ResultGeneratedAt)

	_, err = f.engine.GetJob(ctx, 6, j1.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)

	// redelivered job is acknowledged without work
	require.NoError(t, f.engine.RunJob(ctx, j1.ID))
	assert.Equal(t, 1, f.prov.calls())

	f.prov.err = errors.New("down")
	j3, _, err := f.engine.RequestRefresh(ctx, 5, 3, "")
	require.NoError(t, err)
	// a valid cache row exists, so the refresh succeeds without calling out
	require.NoError(t, f.engine.RunJob(ctx, j3.ID))
	assert.Equal(t, 1, f.prov.calls())
}

func TestPurgeExpiredCache(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	rows := []CacheEntry{
		{TeacherID: 5, CourseID: 3, Analysis: []byte(`{}`), GeneratedAt: now.Add(-10 * 24 * time.Hour), ExpiresAt: now.Add(-9 * 24 * time.Hour)},
		{TeacherID: 5, CourseID: 3, Analysis: []byte(`{}`), GeneratedAt: now.Add(-2 * 24 * time.Hour), ExpiresAt: now.Add(-1 * 24 * time.Hour)},
		{TeacherID: 5, CourseID: 3, Analysis: []byte(`{}`), GeneratedAt: now, ExpiresAt: now.Add(24 * time.Hour)},
	}
	require.NoError(t, f.db.Create(&rows).Error)

	n, err := f.engine.PurgeExpiredCache(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	var left int64
	require.NoError(t, f.db.Model(&CacheEntry{}).Count(&left).Error)
	assert.EqualValues(t, 2, left)
}
