package lifecycle

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"suivipro/internal/pkg/response"
)

type Handler struct {
	monitor *Monitor
}

func NewHandler(monitor *Monitor) *Handler {
	return &Handler{monitor: monitor}
}

// CheckGuarantees triggers the guarantee-phase rule.
// @Summary		Run guarantee checks
// @Description	Transitions finished projects into or out of the guarantee phase. Safe to re-run.
// @Tags		Lifecycle
// @Security	BearerAuth
// @Success		200	{object}	RuleSummary
// @Failure		409	{object}	map[string]interface{} "Rule already running"
// @Router		/projects/check-guarantees [POST]
func (h *Handler) CheckGuarantees(c *gin.Context) {
	h.run(c, h.monitor.CheckGuarantees)
}

// CheckMilestones triggers the progress milestone rule.
// @Summary		Run milestone checks
// @Tags		Lifecycle
// @Security	BearerAuth
// @Success		200	{object}	RuleSummary
// @Failure		409	{object}	map[string]interface{} "Rule already running"
// @Router		/projects/check-milestones [POST]
func (h *Handler) CheckMilestones(c *gin.Context) {
	h.run(c, h.monitor.CheckMilestones)
}

// CheckDeadlines triggers the approaching-deadline rule.
// @Summary		Run deadline checks
// @Tags		Lifecycle
// @Security	BearerAuth
// @Success		200	{object}	RuleSummary
// @Failure		409	{object}	map[string]interface{} "Rule already running"
// @Router		/projects/check-deadlines [POST]
func (h *Handler) CheckDeadlines(c *gin.Context) {
	h.run(c, h.monitor.CheckDeadlines)
}

// CheckInactive triggers the inactivity rule.
// @Summary		Run inactivity checks
// @Tags		Lifecycle
// @Security	BearerAuth
// @Success		200	{object}	RuleSummary
// @Failure		409	{object}	map[string]interface{} "Rule already running"
// @Router		/projects/check-inactive [POST]
func (h *Handler) CheckInactive(c *gin.Context) {
	h.run(c, h.monitor.CheckInactive)
}

func (h *Handler) run(c *gin.Context, rule func(context.Context) (RuleSummary, error)) {
	summary, err := rule(c.Request.Context())
	if err != nil {
		if errors.Is(err, ErrRuleRunning) {
			response.Error(c, http.StatusConflict, "RULE_RUNNING", "This check is already running")
			return
		}
		response.Error(c, http.StatusInternalServerError, "CHECK_FAILED", "Lifecycle check failed")
		return
	}
	response.Success(c, http.StatusOK, summary)
}
