package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"greendrake/chat/internal/apperr"
	"greendrake/chat/internal/metrics"
	"greendrake/chat/internal/models"
	"greendrake/chat/internal/services"
	"greendrake/chat/internal/storage"
	"greendrake/chat/internal/utils"
)

// RestThreadHandler handles REST requests for threads and messages.
type RestThreadHandler struct {
	chat    services.IChatService
	storage storage.IS3Storage // nil when uploads are not configured
}

func NewRestThreadHandler(chat services.IChatService, st storage.IS3Storage) *RestThreadHandler {
	return &RestThreadHandler{chat: chat, storage: st}
}

type openThreadRequest struct {
	ListingID string `json:"listingId"`
}

type attachmentRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
}

// OpenThread handles POST /v1/threads
func (h *RestThreadHandler) OpenThread(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	var req openThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.InvalidArg("invalid request body"))
		return
	}
	listingID, err := utils.ParseSixID(req.ListingID)
	if err != nil {
		respondError(c, apperr.InvalidArg("invalid listingId"))
		return
	}

	thread, err := h.chat.OpenThread(c.Request.Context(), listingID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, thread)
}

// ListThreads handles GET /v1/threads
func (h *RestThreadHandler) ListThreads(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	role, valid := models.ParseThreadRole(c.Query("role"))
	if !valid {
		respondError(c, apperr.InvalidArg("role must be buyer, seller or both"))
		return
	}

	page, err := h.chat.ListThreads(c.Request.Context(), userID, role, queryInt(c, "page"), queryInt(c, "limit"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetThread handles GET /v1/threads/:id
func (h *RestThreadHandler) GetThread(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	threadID, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	thread, err := h.chat.GetThread(c.Request.Context(), threadID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, thread)
}

// ListMessages handles GET /v1/threads/:id/messages
func (h *RestThreadHandler) ListMessages(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	threadID, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	page, err := h.chat.ListMessages(c.Request.Context(), threadID, userID, c.Query("cursor"), queryInt(c, "limit"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// SendMessage handles POST /v1/threads/:id/messages
func (h *RestThreadHandler) SendMessage(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	threadID, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	var req services.SendMessageInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.InvalidArg("invalid request body"))
		return
	}

	msg, err := h.chat.SendMessage(c.Request.Context(), threadID, userID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	metrics.MessagesSent.WithLabelValues(metrics.TransportREST).Inc()
	c.JSON(http.StatusCreated, msg)
}

// MarkRead handles POST /v1/threads/:id/read
func (h *RestThreadHandler) MarkRead(c *gin.Context) {
	h.receipt(c, h.chat.MarkRead)
}

// MarkDelivered handles POST /v1/threads/:id/delivered
func (h *RestThreadHandler) MarkDelivered(c *gin.Context) {
	h.receipt(c, h.chat.MarkDelivered)
}

func (h *RestThreadHandler) receipt(c *gin.Context, mark func(context.Context, utils.SixID, utils.SixID) error) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	threadID, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	if err := mark(c.Request.Context(), threadID, userID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// DeleteMessage handles DELETE /v1/threads/:id/messages/:messageId
func (h *RestThreadHandler) DeleteMessage(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	threadID, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	messageID, err := pathID(c, "messageId")
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.chat.DeleteMessage(c.Request.Context(), threadID, messageID, userID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// CreateAttachmentUpload handles POST /v1/threads/:id/attachments
func (h *RestThreadHandler) CreateAttachmentUpload(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	threadID, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	if h.storage == nil {
		respondError(c, apperr.InvalidOp("attachment uploads are not configured"))
		return
	}
	var req attachmentRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Filename == "" {
		respondError(c, apperr.InvalidArg("filename and contentType are required"))
		return
	}

	if _, err := h.chat.GetThread(c.Request.Context(), threadID, userID); err != nil {
		respondError(c, err)
		return
	}

	upload, err := h.storage.PresignAttachmentUpload(c.Request.Context(), threadID, req.Filename, req.ContentType)
	if errors.Is(err, storage.ErrUnsupportedContentType) {
		respondError(c, apperr.InvalidArg(err.Error()))
		return
	}
	if err != nil {
		respondError(c, apperr.Internal(err))
		return
	}
	c.JSON(http.StatusOK, upload)
}

// UnreadCount handles GET /v1/unread-count
func (h *RestThreadHandler) UnreadCount(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	total, err := h.chat.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total})
}
