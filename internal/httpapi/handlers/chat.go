package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/schoolhub/internal/chat"
	"github.com/suPer8Hu/schoolhub/internal/common"
	"github.com/suPer8Hu/schoolhub/internal/httpapi/middleware"
	"github.com/suPer8Hu/schoolhub/internal/models"
)

type createSessionReq struct {
	CourseID *uint64 `json:"course_id"`
}

type sendMessageReq struct {
	Message *string `json:"message"`
}

// studentParam resolves :id and checks the caller may act for that student.
func studentParam(c *gin.Context) (uint64, bool) {
	studentID, ok := parseIDParam(c, "id")
	if !ok {
		return 0, false
	}
	if !canAccessStudent(c, studentID) {
		common.Fail(c, http.StatusForbidden, 40301, "Unauthorized")
		return 0, false
	}
	return studentID, true
}

func (h *Handler) CreateChatSession(c *gin.Context) {
	studentID, ok := studentParam(c)
	if !ok {
		return
	}

	var req createSessionReq
	// an empty body is allowed
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	if req.CourseID == nil && middleware.Role(c) != models.RoleGuest {
		common.Fail(c, http.StatusBadRequest, 10002, "course_id is required")
		return
	}

	sess, err := h.ChatSvc.CreateSession(c.Request.Context(), studentID, req.CourseID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	common.Created(c, sess)
}

func (h *Handler) ListChatSessions(c *gin.Context) {
	studentID, ok := studentParam(c)
	if !ok {
		return
	}

	var f chat.ListFilter
	if raw := c.Query("course_id"); raw != "" {
		cid, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, 10004, "invalid course_id")
			return
		}
		f.CourseID = &cid
	}
	if st := c.Query("status"); st != "" {
		switch s := chat.Status(st); s {
		case chat.StatusActive, chat.StatusCompleted, chat.StatusSummarized:
			f.Status = s
		default:
			common.Fail(c, http.StatusBadRequest, 10004, "invalid status")
			return
		}
	}

	page := common.Paginate(c.Query("page"), c.Query("pageSize"))
	items, err := h.ChatSvc.ListSessions(c.Request.Context(), studentID, f, page)
	if err != nil {
		h.writeError(c, err)
		return
	}
	common.OK(c, gin.H{
		"page":     page.Page,
		"pageSize": page.PageSize,
		"items":    items,
	})
}

func (h *Handler) GetChatSession(c *gin.Context) {
	studentID, ok := studentParam(c)
	if !ok {
		return
	}
	sess, err := h.ChatSvc.GetSession(c.Request.Context(), c.Param("sessionId"), studentID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	common.OK(c, sess)
}

func (h *Handler) GetChatHistory(c *gin.Context) {
	studentID, ok := studentParam(c)
	if !ok {
		return
	}
	msgs, err := h.ChatSvc.History(c.Request.Context(), c.Param("sessionId"), studentID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	common.OK(c, gin.H{"items": msgs})
}

func (h *Handler) SendChatMessage(c *gin.Context) {
	studentID, ok := studentParam(c)
	if !ok {
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.Message == nil || strings.TrimSpace(*req.Message) == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "message is required and must be a non-empty string")
		return
	}

	ex, err := h.ChatSvc.SendMessage(c.Request.Context(), c.Param("sessionId"), studentID, strings.TrimSpace(*req.Message))
	if err != nil {
		h.writeError(c, err)
		return
	}
	common.OK(c, ex)
}

func (h *Handler) EndChatSession(c *gin.Context) {
	studentID, ok := studentParam(c)
	if !ok {
		return
	}
	sess, err := h.ChatSvc.EndSession(c.Request.Context(), c.Param("sessionId"), studentID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	common.OK(c, sess)
}

func (h *Handler) SummarizeChatSession(c *gin.Context) {
	studentID, ok := studentParam(c)
	if !ok {
		return
	}
	summary, err := h.ChatSvc.SummarizeSession(c.Request.Context(), c.Param("sessionId"), studentID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	common.OK(c, gin.H{"summary": summary})
}
