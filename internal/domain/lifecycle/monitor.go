package lifecycle

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"suivipro/internal/domain"
	"suivipro/internal/domain/notification"
)

// ErrRuleRunning is returned when the same rule is already being executed by
// a concurrent admin trigger.
var ErrRuleRunning = errors.New("lifecycle rule already running")

// ProjectStore is the slice of the project repository the monitor needs.
type ProjectStore interface {
	ListAll(ctx context.Context) ([]domain.Project, error)
	ListActive(ctx context.Context) ([]domain.Project, error)
	Save(ctx context.Context, p *domain.Project) error
	SetLastNotifiedMilestone(ctx context.Context, id int64, milestone int) error
}

// Notifier is the slice of the notification service the monitor needs.
type Notifier interface {
	NotifyGuaranteeStart(ctx context.Context, recipientIDs []int64, projectID int64, projectName string, guaranteeEnd time.Time) (successful, failed int)
	NotifyGuaranteeEnd(ctx context.Context, recipientIDs []int64, projectID int64, projectName string) (successful, failed int)
	NotifyProgressMilestone(ctx context.Context, recipientIDs []int64, projectID int64, projectName string, milestone int) (successful, failed int)
	NotifyDeadlineApproaching(ctx context.Context, recipientIDs []int64, projectID int64, projectName string, daysRemaining int) (successful, failed int)
	NotifyInactivity(ctx context.Context, recipientIDs []int64, projectID int64, projectName string, daysInactive int) (successful, failed int)
	CountRecent(ctx context.Context, recipientID int64, t notification.Type, projectID int64, since time.Time) (int64, error)
}

// AdminDirectory lists the administrators guarantee transitions fan out to.
type AdminDirectory interface {
	ListAdmins(ctx context.Context) ([]domain.User, error)
}

// Config holds the rule thresholds. They are deployment configuration, not
// constants; defaults match the shipped dashboard.
type Config struct {
	MilestoneThresholds []int
	DeadlineLookahead   time.Duration
	InactivityThreshold time.Duration
}

func DefaultConfig() Config {
	return Config{
		MilestoneThresholds: []int{25, 50, 75, 100},
		DeadlineLookahead:   7 * 24 * time.Hour,
		InactivityThreshold: 14 * 24 * time.Hour,
	}
}

// RuleSummary reports one rule run back to the admin trigger.
type RuleSummary struct {
	ProjectsChecked      int     `json:"projects_checked"`
	ProjectsTouched      int     `json:"projects_touched"`
	NotificationsCreated int     `json:"notifications_created"`
	ProjectIDs           []int64 `json:"projects"`
}

// Monitor runs the periodic lifecycle rules. Each rule is idempotent: it
// consults either the project's own state (status, milestone marker) or the
// notification history before emitting, so re-running against unchanged data
// creates nothing.
type Monitor struct {
	projects ProjectStore
	notifs   Notifier
	admins   AdminDirectory
	cfg      Config
	log      *logrus.Logger

	guaranteeMu  sync.Mutex
	milestoneMu  sync.Mutex
	deadlineMu   sync.Mutex
	inactivityMu sync.Mutex
}

func NewMonitor(projects ProjectStore, notifs Notifier, admins AdminDirectory, cfg Config, log *logrus.Logger) *Monitor {
	if len(cfg.MilestoneThresholds) == 0 {
		cfg = DefaultConfig()
	}
	return &Monitor{
		projects: projects,
		notifs:   notifs,
		admins:   admins,
		cfg:      cfg,
		log:      log,
	}
}

// RunStartupChecks executes every rule once, logging failures instead of
// aborting: a broken rule must not keep the server from starting.
func (m *Monitor) RunStartupChecks(ctx context.Context) {
	rules := []struct {
		name string
		run  func(context.Context) (RuleSummary, error)
	}{
		{"guarantees", m.CheckGuarantees},
		{"milestones", m.CheckMilestones},
		{"deadlines", m.CheckDeadlines},
		{"inactivity", m.CheckInactive},
	}

	for _, rule := range rules {
		summary, err := rule.run(ctx)
		if err != nil {
			m.log.WithError(err).WithField("rule", rule.name).Error("startup lifecycle check failed")
			continue
		}
		m.log.WithFields(logrus.Fields{
			"rule":          rule.name,
			"checked":       summary.ProjectsChecked,
			"touched":       summary.ProjectsTouched,
			"notifications": summary.NotificationsCreated,
		}).Info("startup lifecycle check done")
	}
}

// CheckGuarantees moves finished projects with a guarantee period into the
// guarantee phase, and guarantee-phase projects past their end date to
// completed. Admins are notified of both transitions. The status itself is
// the idempotence marker: a project already in the phase is skipped.
func (m *Monitor) CheckGuarantees(ctx context.Context) (RuleSummary, error) {
	if !m.guaranteeMu.TryLock() {
		return RuleSummary{}, ErrRuleRunning
	}
	defer m.guaranteeMu.Unlock()

	var summary RuleSummary

	projects, err := m.projects.ListAll(ctx)
	if err != nil {
		return summary, err
	}

	admins, err := m.admins.ListAdmins(ctx)
	if err != nil {
		return summary, err
	}
	adminIDs := userIDs(admins)

	now := time.Now()
	for i := range projects {
		p := &projects[i]
		summary.ProjectsChecked++

		if p.Progress != 100 || p.GuaranteeDays <= 0 {
			continue
		}

		guaranteeActive := p.GuaranteeEndDate == nil || now.Before(*p.GuaranteeEndDate)

		switch {
		case guaranteeActive && p.Status != domain.ProjectGuarantee && p.Status != domain.ProjectCancelled:
			p.Status = domain.ProjectGuarantee
			if err := m.projects.Save(ctx, p); err != nil {
				m.log.WithError(err).WithField("project_id", p.ID).Error("guarantee transition failed")
				continue
			}
			created, _ := m.notifs.NotifyGuaranteeStart(ctx, adminIDs, p.ID, p.Name, derefTime(p.GuaranteeEndDate))
			summary.NotificationsCreated += created
			summary.ProjectsTouched++
			summary.ProjectIDs = append(summary.ProjectIDs, p.ID)

		case !guaranteeActive && p.Status == domain.ProjectGuarantee:
			p.Status = domain.ProjectCompleted
			if err := m.projects.Save(ctx, p); err != nil {
				m.log.WithError(err).WithField("project_id", p.ID).Error("guarantee completion failed")
				continue
			}
			created, _ := m.notifs.NotifyGuaranteeEnd(ctx, adminIDs, p.ID, p.Name)
			summary.NotificationsCreated += created
			summary.ProjectsTouched++
			summary.ProjectIDs = append(summary.ProjectIDs, p.ID)
		}
	}

	return summary, nil
}

// CheckMilestones notifies assignees once per crossed progress threshold.
// The per-project marker records the highest threshold already signalled, so
// a re-run over unchanged progress finds nothing to do.
func (m *Monitor) CheckMilestones(ctx context.Context) (RuleSummary, error) {
	if !m.milestoneMu.TryLock() {
		return RuleSummary{}, ErrRuleRunning
	}
	defer m.milestoneMu.Unlock()

	var summary RuleSummary

	projects, err := m.projects.ListActive(ctx)
	if err != nil {
		return summary, err
	}

	for i := range projects {
		p := &projects[i]
		summary.ProjectsChecked++

		var crossed []int
		for _, threshold := range m.cfg.MilestoneThresholds {
			if threshold <= p.Progress && threshold > p.LastNotifiedMilestone {
				crossed = append(crossed, threshold)
			}
		}
		if len(crossed) == 0 {
			continue
		}

		assignees := p.AssigneeIDs()
		for _, threshold := range crossed {
			created, _ := m.notifs.NotifyProgressMilestone(ctx, assignees, p.ID, p.Name, threshold)
			summary.NotificationsCreated += created
		}

		highest := crossed[len(crossed)-1]
		if err := m.projects.SetLastNotifiedMilestone(ctx, p.ID, highest); err != nil {
			m.log.WithError(err).WithField("project_id", p.ID).Error("milestone marker update failed")
			continue
		}
		summary.ProjectsTouched++
		summary.ProjectIDs = append(summary.ProjectIDs, p.ID)
	}

	return summary, nil
}

// CheckDeadlines notifies assignees of projects whose end date falls within
// the lookahead window. Dedup is per recipient against the notification
// history: no repeat within one window, and a newly added assignee still
// gets theirs.
func (m *Monitor) CheckDeadlines(ctx context.Context) (RuleSummary, error) {
	if !m.deadlineMu.TryLock() {
		return RuleSummary{}, ErrRuleRunning
	}
	defer m.deadlineMu.Unlock()

	var summary RuleSummary

	projects, err := m.projects.ListActive(ctx)
	if err != nil {
		return summary, err
	}

	now := time.Now()
	for i := range projects {
		p := &projects[i]
		summary.ProjectsChecked++

		if p.EndDate == nil {
			continue
		}
		until := p.EndDate.Sub(now)
		if until < 0 || until > m.cfg.DeadlineLookahead {
			continue
		}
		daysLeft := int(math.Ceil(until.Hours() / 24))

		recipients := m.filterUnnotified(ctx, p.AssigneeIDs(), notification.TypeDeadlineApproaching, p.ID, now.Add(-m.cfg.DeadlineLookahead))
		if len(recipients) == 0 {
			continue
		}

		created, _ := m.notifs.NotifyDeadlineApproaching(ctx, recipients, p.ID, p.Name, daysLeft)
		summary.NotificationsCreated += created
		summary.ProjectsTouched++
		summary.ProjectIDs = append(summary.ProjectIDs, p.ID)
	}

	return summary, nil
}

// CheckInactive flags projects whose last update is older than the
// inactivity threshold, notifying assignees and admins. History-based dedup
// means a stale project is re-flagged at most once per threshold window.
func (m *Monitor) CheckInactive(ctx context.Context) (RuleSummary, error) {
	if !m.inactivityMu.TryLock() {
		return RuleSummary{}, ErrRuleRunning
	}
	defer m.inactivityMu.Unlock()

	var summary RuleSummary

	projects, err := m.projects.ListActive(ctx)
	if err != nil {
		return summary, err
	}

	admins, err := m.admins.ListAdmins(ctx)
	if err != nil {
		return summary, err
	}

	now := time.Now()
	for i := range projects {
		p := &projects[i]
		summary.ProjectsChecked++

		idle := now.Sub(p.UpdatedAt)
		if idle < m.cfg.InactivityThreshold {
			continue
		}
		daysInactive := int(idle.Hours() / 24)

		recipients := dedupeIDs(append(p.AssigneeIDs(), userIDs(admins)...))
		recipients = m.filterUnnotified(ctx, recipients, notification.TypeInactivityAlert, p.ID, now.Add(-m.cfg.InactivityThreshold))
		if len(recipients) == 0 {
			continue
		}

		created, _ := m.notifs.NotifyInactivity(ctx, recipients, p.ID, p.Name, daysInactive)
		summary.NotificationsCreated += created
		summary.ProjectsTouched++
		summary.ProjectIDs = append(summary.ProjectIDs, p.ID)
	}

	return summary, nil
}

// filterUnnotified keeps only recipients without a notification of this type
// about this project since the given instant. A failed history lookup skips
// the recipient for this run rather than risking a duplicate.
func (m *Monitor) filterUnnotified(ctx context.Context, recipientIDs []int64, t notification.Type, projectID int64, since time.Time) []int64 {
	out := make([]int64, 0, len(recipientIDs))
	for _, rid := range recipientIDs {
		count, err := m.notifs.CountRecent(ctx, rid, t, projectID, since)
		if err != nil {
			m.log.WithError(err).WithField("recipient_id", rid).Warn("notification history lookup failed")
			continue
		}
		if count == 0 {
			out = append(out, rid)
		}
	}
	return out
}

func userIDs(users []domain.User) []int64 {
	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
