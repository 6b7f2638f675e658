package notification

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"suivipro/internal/pkg/response"
	"suivipro/internal/pkg/validator"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// GetNotifications returns one page of the authenticated user's
// notifications, newest first.
// @Summary		List notifications
// @Description	Returns a page of the current user's notifications, newest first. has_more is true when the page came back full.
// @Tags		Notifications
// @Security	BearerAuth
// @Param		page	query	int	false	"Page number (default 1)"
// @Param		limit	query	int	false	"Page size (default 20, max 100)"
// @Success		200	{object}	NotificationListResponse
// @Failure		400	{object}	map[string]interface{} "Invalid pagination"
// @Failure		401	{object}	map[string]interface{} "Authentication required"
// @Router		/notifications [GET]
func (h *Handler) GetNotifications(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "User not authenticated")
		return
	}

	page := 1
	if s := c.Query("page"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			response.Error(c, http.StatusBadRequest, "VALIDATION", "Invalid page")
			return
		}
		page = v
	}

	limit := DefaultPageSize
	if s := c.Query("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			response.Error(c, http.StatusBadRequest, "VALIDATION", "Invalid limit")
			return
		}
		limit = v
		if limit > MaxPageSize {
			limit = MaxPageSize
		}
	}

	notifications, err := h.service.List(c.Request.Context(), userID, page, limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "FETCH_FAILED", "Failed to get notifications")
		return
	}

	items := make([]*NotificationResponse, len(notifications))
	for i := range notifications {
		items[i] = NotificationResponseFromEntity(&notifications[i])
	}

	response.Success(c, http.StatusOK, NotificationListResponse{
		Notifications: items,
		Page:          page,
		Limit:         limit,
		HasMore:       len(notifications) == limit,
	})
}

// GetUnreadCount returns the unread badge count, queried independently of the
// feed so the badge can refresh without pulling pages.
// @Summary		Unread count
// @Tags		Notifications
// @Security	BearerAuth
// @Success		200	{object}	UnreadCountResponse
// @Failure		401	{object}	map[string]interface{} "Authentication required"
// @Router		/notifications/unread/count [GET]
func (h *Handler) GetUnreadCount(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "User not authenticated")
		return
	}

	count, err := h.service.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "FETCH_FAILED", "Failed to get unread count")
		return
	}

	response.Success(c, http.StatusOK, UnreadCountResponse{Count: count})
}

// MarkAsRead marks one notification as read.
// @Summary		Mark notification as read
// @Tags		Notifications
// @Security	BearerAuth
// @Param		id	path	int	true	"Notification ID"
// @Success		200	{object}	NotificationResponse
// @Failure		403	{object}	map[string]interface{} "Not the recipient"
// @Failure		404	{object}	map[string]interface{} "Notification not found"
// @Router		/notifications/{id}/read [PUT]
func (h *Handler) MarkAsRead(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "User not authenticated")
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid notification ID")
		return
	}

	n, err := h.service.MarkRead(c.Request.Context(), id, userID, c.GetString("role"))
	if err != nil {
		h.writeError(c, err, "Failed to mark as read")
		return
	}

	response.Success(c, http.StatusOK, NotificationResponseFromEntity(n))
}

// MarkAllAsRead marks all of the user's notifications as read.
// @Summary		Mark all as read
// @Tags		Notifications
// @Security	BearerAuth
// @Success		200	{object}	map[string]interface{}
// @Router		/notifications/read-all [PUT]
func (h *Handler) MarkAllAsRead(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "User not authenticated")
		return
	}

	if err := h.service.MarkAllRead(c.Request.Context(), userID); err != nil {
		response.Error(c, http.StatusInternalServerError, "UPDATE_FAILED", "Failed to mark all as read")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "all notifications marked as read"})
}

// MarkAllAsUnread is the inverse bulk operation.
// @Summary		Mark all as unread
// @Tags		Notifications
// @Security	BearerAuth
// @Success		200	{object}	map[string]interface{}
// @Router		/notifications/unread-all [PUT]
func (h *Handler) MarkAllAsUnread(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "User not authenticated")
		return
	}

	if err := h.service.MarkAllUnread(c.Request.Context(), userID); err != nil {
		response.Error(c, http.StatusInternalServerError, "UPDATE_FAILED", "Failed to mark all as unread")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "all notifications marked as unread"})
}

// DeleteNotification removes one notification.
// @Summary		Delete notification
// @Tags		Notifications
// @Security	BearerAuth
// @Param		id	path	int	true	"Notification ID"
// @Success		200	{object}	map[string]interface{}
// @Failure		403	{object}	map[string]interface{} "Not the recipient"
// @Failure		404	{object}	map[string]interface{} "Notification not found"
// @Router		/notifications/{id} [DELETE]
func (h *Handler) DeleteNotification(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "User not authenticated")
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid notification ID")
		return
	}

	if err := h.service.Delete(c.Request.Context(), id, userID, c.GetString("role")); err != nil {
		h.writeError(c, err, "Failed to delete notification")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "notification deleted"})
}

// DeleteAll removes every notification of the authenticated user.
// @Summary		Delete all notifications
// @Tags		Notifications
// @Security	BearerAuth
// @Success		200	{object}	DeletedCountResponse
// @Router		/notifications/delete-all [DELETE]
func (h *Handler) DeleteAll(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "User not authenticated")
		return
	}

	deleted, err := h.service.DeleteAll(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "DELETE_FAILED", "Failed to delete notifications")
		return
	}

	response.Success(c, http.StatusOK, DeletedCountResponse{DeletedCount: deleted})
}

// Cleanup removes the user's notifications older than a client-chosen cutoff.
// @Summary		Retention cleanup
// @Description	Deletes the current user's notifications older than cutoff_date. The client decides how often to call this.
// @Tags		Notifications
// @Security	BearerAuth
// @Param		body	body	CleanupRequest	true	"Cutoff date (RFC3339)"
// @Success		200	{object}	DeletedCountResponse
// @Failure		400	{object}	map[string]interface{} "Malformed or future cutoff"
// @Router		/notifications/cleanup [DELETE]
func (h *Handler) Cleanup(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "User not authenticated")
		return
	}

	var req CleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION", "Invalid request body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION", "Invalid request body", errs)
		return
	}

	cutoff, err := time.Parse(time.RFC3339, req.CutoffDate)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION", "cutoff_date must be RFC3339")
		return
	}

	deleted, err := h.service.Cleanup(c.Request.Context(), userID, cutoff)
	if err != nil {
		h.writeError(c, err, "Failed to clean up notifications")
		return
	}

	response.Success(c, http.StatusOK, DeletedCountResponse{DeletedCount: deleted})
}

func (h *Handler) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "Notification not found")
	case errors.Is(err, ErrNotOwner):
		response.Error(c, http.StatusForbidden, "FORBIDDEN", "Notification belongs to another user")
	case errors.Is(err, ErrValidation):
		response.Error(c, http.StatusBadRequest, "VALIDATION", "Invalid request")
	default:
		response.Error(c, http.StatusInternalServerError, "INTERNAL", fallback)
	}
}
