package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/schoolhub/internal/common"
	"github.com/suPer8Hu/schoolhub/internal/httpapi/middleware"
	"github.com/suPer8Hu/schoolhub/internal/models"
)

type createCourseReq struct {
	Code      string `json:"code" binding:"required,max=32"`
	Name      string `json:"name" binding:"required,max=255"`
	TeacherID uint64 `json:"teacher_id"`
}

// CreateCourse assigns the course to the calling teacher. Admins may name
// another teacher.
func (h *Handler) CreateCourse(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}

	var req createCourseReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid request: "+err.Error())
		return
	}

	teacherID := uid
	if middleware.Role(c) == models.RoleAdmin && req.TeacherID != 0 {
		teacherID = req.TeacherID
	}

	course := models.Course{
		Code:      strings.TrimSpace(req.Code),
		Name:      strings.TrimSpace(req.Name),
		TeacherID: teacherID,
	}
	if err := h.DB.WithContext(c.Request.Context()).Create(&course).Error; err != nil {
		common.Fail(c, http.StatusBadRequest, 10003, "failed to create course (maybe code already exists)")
		return
	}
	common.Created(c, course)
}

func (h *Handler) ListCourses(c *gin.Context) {
	q := h.DB.WithContext(c.Request.Context()).Model(&models.Course{})
	if raw := c.Query("teacher_id"); raw != "" {
		tid, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, 10004, "invalid teacher_id")
			return
		}
		q = q.Where("teacher_id = ?", tid)
	}

	page := common.Paginate(c.Query("page"), c.Query("pageSize"))
	var items []models.Course
	if err := q.Order("code ASC").Limit(page.Limit()).Offset(page.Offset()).Find(&items).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, gin.H{
		"page":     page.Page,
		"pageSize": page.PageSize,
		"items":    items,
	})
}
