package notification

import "time"

// NotificationResponse for API responses
type NotificationResponse struct {
	ID          int64     `json:"id"`
	RecipientID int64     `json:"recipient_id"`
	SenderID    *int64    `json:"sender_id,omitempty"`
	Type        string    `json:"type"`
	Content     string    `json:"content"`
	ProjectID   *int64    `json:"project_id,omitempty"`
	CommentID   *int64    `json:"comment_id,omitempty"`
	IsRead      bool      `json:"is_read"`
	Metadata    *Metadata `json:"metadata,omitempty"`
	CreatedAt   string    `json:"created_at"`
}

// NotificationResponseFromEntity converts entity to response DTO
func NotificationResponseFromEntity(n *Notification) *NotificationResponse {
	resp := &NotificationResponse{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		SenderID:    n.SenderID,
		Type:        string(n.Type),
		Content:     n.Content,
		ProjectID:   n.ProjectID,
		CommentID:   n.CommentID,
		IsRead:      n.IsRead,
		CreatedAt:   n.CreatedAt.Format(time.RFC3339),
	}

	if len(n.Metadata) > 0 {
		resp.Metadata = n.GetMetadata()
	}

	return resp
}

// NotificationListResponse for list endpoint. has_more mirrors the paging
// heuristic the dashboard uses: a full page means there may be another one.
type NotificationListResponse struct {
	Notifications []*NotificationResponse `json:"notifications"`
	Page          int                     `json:"page"`
	Limit         int                     `json:"limit"`
	HasMore       bool                    `json:"has_more"`
}

// UnreadCountResponse for unread count endpoint
type UnreadCountResponse struct {
	Count int64 `json:"count"`
}

// DeletedCountResponse for bulk deletion endpoints
type DeletedCountResponse struct {
	DeletedCount int64 `json:"deleted_count"`
}

// CleanupRequest carries the client-chosen retention cutoff.
type CleanupRequest struct {
	CutoffDate string `json:"cutoff_date" validate:"required"`
}
