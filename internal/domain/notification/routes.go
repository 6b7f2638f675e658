package notification

import "github.com/gin-gonic/gin"

// RegisterRoutes registers all notification routes on an authenticated group.
func RegisterRoutes(protected *gin.RouterGroup, handler *Handler) {
	notifGroup := protected.Group("/notifications")
	{
		notifGroup.GET("", handler.GetNotifications)
		notifGroup.GET("/unread/count", handler.GetUnreadCount)
		notifGroup.PUT("/:id/read", handler.MarkAsRead)
		notifGroup.PUT("/read-all", handler.MarkAllAsRead)
		notifGroup.PUT("/unread-all", handler.MarkAllAsUnread)
		notifGroup.DELETE("/:id", handler.DeleteNotification)
		notifGroup.DELETE("/delete-all", handler.DeleteAll)
		notifGroup.DELETE("/cleanup", handler.Cleanup)
	}
}
