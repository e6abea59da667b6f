package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/schoolhub/internal/analytics"
	"github.com/suPer8Hu/schoolhub/internal/common"
	"go.uber.org/zap"
)

const idempotencyKeyMax = 128

func teacherParam(c *gin.Context) (uint64, bool) {
	teacherID, ok := parseIDParam(c, "id")
	if !ok {
		return 0, false
	}
	if !canAccessTeacher(c, teacherID) {
		common.Fail(c, http.StatusForbidden, 40301, "Unauthorized")
		return 0, false
	}
	return teacherID, true
}

func (h *Handler) ListTeacherCourses(c *gin.Context) {
	teacherID, ok := teacherParam(c)
	if !ok {
		return
	}
	items, err := h.Analytics.TeacherCourses(c.Request.Context(), teacherID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	common.OK(c, gin.H{"items": items})
}

func (h *Handler) GetCourseAnalytics(c *gin.Context) {
	teacherID, ok := teacherParam(c)
	if !ok {
		return
	}
	courseID, ok := parseIDParam(c, "courseId")
	if !ok {
		return
	}
	res, err := h.Analytics.GenerateCourseAnalytics(c.Request.Context(), teacherID, courseID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	common.OK(c, res)
}

// RefreshCourseAnalytics queues an asynchronous analytics build. The job warms
// the cache: when a valid cached analysis exists it completes without a new
// completion call, so a fresh analysis only appears once the cached one expires.
// Repeating a request with the same Idempotency-Key returns the original job,
// and a job that is still queued is published again.
func (h *Handler) RefreshCourseAnalytics(c *gin.Context) {
	teacherID, ok := teacherParam(c)
	if !ok {
		return
	}
	courseID, ok := parseIDParam(c, "courseId")
	if !ok {
		return
	}
	if h.Rabbit == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "job queue unavailable")
		return
	}

	key := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(key) > idempotencyKeyMax {
		common.Fail(c, http.StatusBadRequest, 10005, "Idempotency-Key too long")
		return
	}

	ctx := c.Request.Context()
	job, created, err := h.Analytics.RequestRefresh(ctx, teacherID, courseID, key)
	if err != nil {
		h.writeError(c, err)
		return
	}
	// a queued job may come from an earlier request whose publish failed
	if job.Status == analytics.JobQueued {
		if err := h.Rabbit.PublishJob(ctx, job.ID); err != nil {
			h.Log.Error("publish analytics job", zap.String("job_id", job.ID), zap.Error(err))
			common.Fail(c, http.StatusInternalServerError, 50002, "failed to enqueue job")
			return
		}
	}

	c.JSON(http.StatusAccepted, gin.H{
		"code":    0,
		"message": "accepted",
		"data":    gin.H{"job_id": job.ID, "status": job.Status, "created": created},
	})
}

func (h *Handler) GetAnalyticsJob(c *gin.Context) {
	teacherID, ok := teacherParam(c)
	if !ok {
		return
	}
	job, err := h.Analytics.GetJob(c.Request.Context(), teacherID, c.Param("jobId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	common.OK(c, job)
}

func (h *Handler) GetStudentAnalytics(c *gin.Context) {
	teacherID, ok := teacherParam(c)
	if !ok {
		return
	}
	studentID, ok := parseIDParam(c, "studentId")
	if !ok {
		return
	}
	raw := c.Query("course_id")
	if raw == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "course_id query parameter is required")
		return
	}
	courseID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || courseID == 0 {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid course_id")
		return
	}

	out, err := h.Analytics.StudentAnalytics(c.Request.Context(), teacherID, studentID, courseID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	common.OK(c, out)
}
