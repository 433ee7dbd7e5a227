package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"portfolio/internal/api/middleware"
	"portfolio/internal/contact"
)

// ContactHandler 处理公开留言提交与后台留言管理。
type ContactHandler struct {
	service *contact.Service
}

// NewContactHandler 构造处理器。
func NewContactHandler(service *contact.Service) *ContactHandler {
	return &ContactHandler{service: service}
}

// Submit 公开提交留言。
func (h *ContactHandler) Submit(c *gin.Context) {
	var sub contact.Submission
	if !bindJSON(c, &sub) {
		return
	}

	ctx := contact.WithCorrelationID(c.Request.Context(), middleware.GetCorrelationID(c))
	msg, err := h.service.Submit(ctx, sub, c.ClientIP())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": msg.ID})
}

// List 分页搜索留言，最新的在前。
func (h *ContactHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	result, err := h.service.List(c.Request.Context(), contact.ListQuery{
		Q:     c.Query("q"),
		Page:  page,
		Limit: limit,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Get 返回单条留言。
func (h *ContactHandler) Get(c *gin.Context) {
	msg, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

type markReadRequest struct {
	Read *bool `json:"read"`
}

// Update 只允许修改已读状态。
func (h *ContactHandler) Update(c *gin.Context) {
	var req markReadRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Read == nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":  "Invalid input: read",
			"fields": gin.H{"read": "required"},
		})
		return
	}
	msg, err := h.service.SetRead(c.Request.Context(), c.Param("id"), *req.Read)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// Delete 删除留言。
func (h *ContactHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Message deleted successfully"})
}
