package httpapi

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/suPer8Hu/schoolhub/internal/common"
	"github.com/suPer8Hu/schoolhub/internal/config"
	"github.com/suPer8Hu/schoolhub/internal/httpapi/handlers"
	"github.com/suPer8Hu/schoolhub/internal/httpapi/middleware"
	"github.com/suPer8Hu/schoolhub/internal/models"
	"go.uber.org/zap"
)

func NewRouter(h *handlers.Handler, cfg config.Config, log *zap.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.Recovery(log))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(log))
	r.Use(cors.New(corsConfig(cfg.CORSAllowedOrigins)))

	r.GET("/ping", h.Ping)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/users", h.CreateUser)
	r.POST("/login", h.Login)
	r.GET("/courses", h.ListCourses)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.GET("/me", h.Me)

	staff := authGroup.Group("/")
	staff.Use(middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin))
	staff.POST("/courses", h.CreateCourse)
	staff.GET("/users/:id", h.GetUserByID)

	// student chat
	students := authGroup.Group("/students/:id/chat/sessions")
	students.POST("", h.CreateChatSession)
	students.GET("", h.ListChatSessions)
	students.GET("/:sessionId", h.GetChatSession)
	students.GET("/:sessionId/messages", h.GetChatHistory)
	students.POST("/:sessionId/messages", h.SendChatMessage)
	students.POST("/:sessionId/end", h.EndChatSession)
	students.POST("/:sessionId/summarize", h.SummarizeChatSession)

	// teacher analytics
	teachers := authGroup.Group("/teachers/:id/analytics")
	teachers.Use(middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin))
	teachers.GET("/courses", h.ListTeacherCourses)
	teachers.GET("/courses/:courseId", h.GetCourseAnalytics)
	teachers.POST("/courses/:courseId/refresh", h.RefreshCourseAnalytics)
	teachers.GET("/jobs/:jobId", h.GetAnalyticsJob)
	teachers.GET("/students/:studentId", h.GetStudentAnalytics)

	return r
}

func corsConfig(origins []string) cors.Config {
	cc := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	// credentials cannot be combined with a wildcard origin
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cc.AllowAllOrigins = true
		return cc
	}
	cc.AllowOrigins = origins
	cc.AllowCredentials = true
	return cc
}
