package lifecycle

import (
	"github.com/gin-gonic/gin"

	"suivipro/internal/middleware"
)

// RegisterRoutes mounts the admin-only trigger endpoints.
func RegisterRoutes(protected *gin.RouterGroup, handler *Handler) {
	checks := protected.Group("/projects", middleware.AdminOnly())
	{
		checks.POST("/check-guarantees", handler.CheckGuarantees)
		checks.POST("/check-milestones", handler.CheckMilestones)
		checks.POST("/check-deadlines", handler.CheckDeadlines)
		checks.POST("/check-inactive", handler.CheckInactive)
	}
}
