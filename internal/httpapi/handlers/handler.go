package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/schoolhub/internal/ai"
	"github.com/suPer8Hu/schoolhub/internal/analytics"
	"github.com/suPer8Hu/schoolhub/internal/chat"
	"github.com/suPer8Hu/schoolhub/internal/common"
	"github.com/suPer8Hu/schoolhub/internal/config"
	"github.com/suPer8Hu/schoolhub/internal/httpapi/middleware"
	"github.com/suPer8Hu/schoolhub/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// JobPublisher enqueues analytics refresh jobs.
type JobPublisher interface {
	PublishJob(ctx context.Context, jobID string) error
}

type Handler struct {
	DB        *gorm.DB
	Cfg       config.Config
	Log       *zap.Logger
	ChatSvc   *chat.Service
	Analytics *analytics.Engine
	Rabbit    JobPublisher // nil when RabbitMQ is unavailable
}

func NewHandler(db *gorm.DB, cfg config.Config, log *zap.Logger, chatSvc *chat.Service, engine *analytics.Engine, rabbit JobPublisher) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		DB:        db,
		Cfg:       cfg,
		Log:       log.Named("http"),
		ChatSvc:   chatSvc,
		Analytics: engine,
		Rabbit:    rabbit,
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

// writeError maps domain errors to the response envelope.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrSessionNotFound):
		common.Fail(c, http.StatusNotFound, 40401, "Session not found")
	case errors.Is(err, chat.ErrSessionNotActive):
		common.Fail(c, http.StatusBadRequest, 40001, "Session is not active")
	case errors.Is(err, chat.ErrNoMessages):
		common.Fail(c, http.StatusBadRequest, 40002, "No messages to summarize")
	case errors.Is(err, chat.ErrInvalidMessage):
		common.Fail(c, http.StatusBadRequest, 40003, err.Error())
	case errors.Is(err, analytics.ErrCourseNotFound):
		common.Fail(c, http.StatusNotFound, 40402, "Course not found")
	case errors.Is(err, analytics.ErrNotCourseTeacher):
		common.Fail(c, http.StatusForbidden, 40302, "Unauthorized: You do not teach this course")
	case errors.Is(err, analytics.ErrJobNotFound):
		common.Fail(c, http.StatusNotFound, 40403, "job not found")
	case errors.Is(err, ai.ErrUpstream):
		h.Log.Warn("upstream failure", zap.String("request_id", c.GetString(middleware.RequestIDKey)), zap.Error(err))
		common.Fail(c, http.StatusBadGateway, 50201, err.Error())
	default:
		h.Log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString(middleware.RequestIDKey)),
			zap.Error(err),
		)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}

func parseIDParam(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid "+name)
		return 0, false
	}
	return id, true
}

func currentUser(c *gin.Context) (uint64, bool) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
	}
	return uid, ok
}

// canAccessStudent allows staff, or the student (or guest) themselves.
func canAccessStudent(c *gin.Context, studentID uint64) bool {
	role := middleware.Role(c)
	if role.IsStaff() {
		return true
	}
	uid, ok := middleware.UserID(c)
	return ok && uid == studentID
}

// canAccessTeacher allows admins, or the teacher themselves.
func canAccessTeacher(c *gin.Context, teacherID uint64) bool {
	role := middleware.Role(c)
	if role == models.RoleAdmin {
		return true
	}
	uid, ok := middleware.UserID(c)
	return ok && role == models.RoleTeacher && uid == teacherID
}
