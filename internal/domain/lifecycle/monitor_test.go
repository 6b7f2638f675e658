package lifecycle

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"suivipro/internal/database"
	"suivipro/internal/domain"
	"suivipro/internal/domain/notification"
	"suivipro/internal/repository"
)

func newTestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := database.Connect(dsn)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.User{}, &domain.Project{}, &notification.Notification{}))
	return db
}

type fixture struct {
	db       *gorm.DB
	monitor  *Monitor
	notifs   *notification.Service
	projects *repository.ProjectRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	log := newTestLogger()

	users := repository.NewUserRepository(db)
	projects := repository.NewProjectRepository(db)
	notifs := notification.NewService(notification.NewRepository(db), users, nil, log)

	return &fixture{
		db:       db,
		monitor:  NewMonitor(projects, notifs, users, DefaultConfig(), log),
		notifs:   notifs,
		projects: projects,
	}
}

func (f *fixture) createUser(t *testing.T, name string, role domain.UserRole) *domain.User {
	t.Helper()
	u := &domain.User{
		Email: fmt.Sprintf("%s@example.fr", name),
		Name:  name,
		Role:  role,
	}
	require.NoError(t, f.db.Create(u).Error)
	return u
}

func (f *fixture) createProject(t *testing.T, p *domain.Project) *domain.Project {
	t.Helper()
	require.NoError(t, f.db.Create(p).Error)
	return p
}

func (f *fixture) countByType(t *testing.T, recipientID int64, typ notification.Type) int64 {
	t.Helper()
	var count int64
	err := f.db.Model(&notification.Notification{}).
		Where("recipient_id = ? AND type = ?", recipientID, typ).
		Count(&count).Error
	require.NoError(t, err)
	return count
}

func TestCheckGuarantees_MovesFinishedProjectIntoGuarantee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	admin := f.createUser(t, "claire", domain.RoleAdmin)
	p := f.createProject(t, &domain.Project{
		Name:          "Refonte intranet",
		Status:        domain.ProjectInProgress,
		Progress:      100,
		GuaranteeDays: 10,
	})

	summary, err := f.monitor.CheckGuarantees(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ProjectsTouched)
	assert.Equal(t, 1, summary.NotificationsCreated)
	assert.Equal(t, []int64{p.ID}, summary.ProjectIDs)

	got, err := f.projects.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectGuarantee, got.Status)
	require.NotNil(t, got.GuaranteeEndDate)
	assert.Equal(t, int64(1), f.countByType(t, admin.ID, notification.TypeGuaranteeStart))

	// Unchanged data, second run finds nothing to do.
	summary, err = f.monitor.CheckGuarantees(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.ProjectsTouched)
	assert.Equal(t, 0, summary.NotificationsCreated)
	assert.Equal(t, int64(1), f.countByType(t, admin.ID, notification.TypeGuaranteeStart))
}

func TestCheckGuarantees_CompletesExpiredGuarantee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	admin := f.createUser(t, "claire", domain.RoleAdmin)
	past := time.Now().Add(-24 * time.Hour)
	p := f.createProject(t, &domain.Project{
		Name:             "Site vitrine",
		Status:           domain.ProjectGuarantee,
		Progress:         100,
		GuaranteeDays:    10,
		GuaranteeEndDate: &past,
	})

	summary, err := f.monitor.CheckGuarantees(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ProjectsTouched)

	got, err := f.projects.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectCompleted, got.Status)
	assert.Equal(t, int64(1), f.countByType(t, admin.ID, notification.TypeGuaranteeEnd))

	summary, err = f.monitor.CheckGuarantees(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.ProjectsTouched)
	assert.Equal(t, int64(1), f.countByType(t, admin.ID, notification.TypeGuaranteeEnd))
}

func TestCheckGuarantees_SkipsProjectsWithoutGuarantee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createUser(t, "claire", domain.RoleAdmin)
	f.createProject(t, &domain.Project{
		Name:     "Audit sécurité",
		Status:   domain.ProjectInProgress,
		Progress: 100,
	})
	f.createProject(t, &domain.Project{
		Name:          "Maquettes",
		Status:        domain.ProjectInProgress,
		Progress:      80,
		GuaranteeDays: 30,
	})

	summary, err := f.monitor.CheckGuarantees(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ProjectsChecked)
	assert.Equal(t, 0, summary.ProjectsTouched)
}

func TestCheckGuarantees_ExtendedGuaranteeDaysMoveTheEndDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createUser(t, "claire", domain.RoleAdmin)
	p := f.createProject(t, &domain.Project{
		Name:          "Refonte boutique",
		Status:        domain.ProjectGuarantee,
		Progress:      100,
		GuaranteeDays: 10,
	})
	require.NotNil(t, p.GuaranteeEndDate)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 10), *p.GuaranteeEndDate, time.Hour)

	// Extending the guarantee on a saved project re-derives the end date.
	p.GuaranteeDays = 30
	require.NoError(t, f.db.Save(p).Error)

	got, err := f.projects.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.GuaranteeEndDate)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 30), *got.GuaranteeEndDate, time.Hour)

	// Still under guarantee, so the monitor must not complete it early.
	summary, err := f.monitor.CheckGuarantees(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.ProjectsTouched)

	got, err = f.projects.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectGuarantee, got.Status)
}

func TestCheckGuarantees_SaveWithSameDaysKeepsEndDate(t *testing.T) {
	f := newFixture(t)

	past := time.Now().AddDate(0, 0, -3)
	p := f.createProject(t, &domain.Project{
		Name:             "Intranet RH",
		Status:           domain.ProjectGuarantee,
		Progress:         100,
		GuaranteeDays:    10,
		GuaranteeEndDate: &past,
	})

	// An unrelated edit must not reset the guarantee clock.
	p.Description = "reprise après audit"
	require.NoError(t, f.db.Save(p).Error)

	got, err := f.projects.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.GuaranteeEndDate)
	assert.WithinDuration(t, past, *got.GuaranteeEndDate, time.Second)
}

func TestCheckMilestones_NotifiesEachCrossedThresholdOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	member := f.createUser(t, "lucas", domain.RoleMember)
	p := f.createProject(t, &domain.Project{
		Name:       "Application mobile",
		Status:     domain.ProjectInProgress,
		Progress:   60,
		AssignedTo: []domain.User{*member},
	})

	summary, err := f.monitor.CheckMilestones(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ProjectsTouched)
	// 25 and 50 are both behind the current progress.
	assert.Equal(t, 2, summary.NotificationsCreated)
	assert.Equal(t, int64(2), f.countByType(t, member.ID, notification.TypeProgressMilestone))

	summary, err = f.monitor.CheckMilestones(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.NotificationsCreated)

	require.NoError(t, f.db.Model(&domain.Project{}).
		Where("id = ?", p.ID).
		UpdateColumn("progress", 80).Error)

	summary, err = f.monitor.CheckMilestones(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.NotificationsCreated)
	assert.Equal(t, int64(3), f.countByType(t, member.ID, notification.TypeProgressMilestone))
}

func TestCheckDeadlines_WindowAndHistoryDedup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	member := f.createUser(t, "lucas", domain.RoleMember)
	soon := time.Now().Add(71 * time.Hour)
	p := f.createProject(t, &domain.Project{
		Name:       "Migration CRM",
		Status:     domain.ProjectInProgress,
		Progress:   40,
		EndDate:    &soon,
		AssignedTo: []domain.User{*member},
	})

	far := time.Now().Add(30 * 24 * time.Hour)
	f.createProject(t, &domain.Project{
		Name:     "Portail client",
		Status:   domain.ProjectInProgress,
		Progress: 10,
		EndDate:  &far,
	})

	summary, err := f.monitor.CheckDeadlines(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ProjectsChecked)
	assert.Equal(t, 1, summary.ProjectsTouched)
	assert.Equal(t, 1, summary.NotificationsCreated)
	assert.Equal(t, int64(1), f.countByType(t, member.ID, notification.TypeDeadlineApproaching))

	n := lastNotification(t, f.db, member.ID)
	meta := n.GetMetadata()
	require.NotNil(t, meta)
	require.NotNil(t, meta.DaysRemaining)
	assert.Equal(t, 3, *meta.DaysRemaining)

	// Re-run: recipient already notified inside the window.
	summary, err = f.monitor.CheckDeadlines(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.NotificationsCreated)

	// A newly added assignee still gets theirs.
	late := f.createUser(t, "nora", domain.RoleMember)
	require.NoError(t, f.db.Model(p).Association("AssignedTo").Append(late))

	summary, err = f.monitor.CheckDeadlines(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.NotificationsCreated)
	assert.Equal(t, int64(1), f.countByType(t, late.ID, notification.TypeDeadlineApproaching))
	assert.Equal(t, int64(1), f.countByType(t, member.ID, notification.TypeDeadlineApproaching))
}

func TestCheckInactive_FlagsStaleProjects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	admin := f.createUser(t, "claire", domain.RoleAdmin)
	member := f.createUser(t, "lucas", domain.RoleMember)
	p := f.createProject(t, &domain.Project{
		Name:       "Documentation API",
		Status:     domain.ProjectInProgress,
		Progress:   30,
		AssignedTo: []domain.User{*member},
	})

	stale := time.Now().Add(-20 * 24 * time.Hour)
	require.NoError(t, f.db.Model(&domain.Project{}).
		Where("id = ?", p.ID).
		UpdateColumn("updated_at", stale).Error)

	summary, err := f.monitor.CheckInactive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ProjectsTouched)
	assert.Equal(t, 2, summary.NotificationsCreated)
	assert.Equal(t, int64(1), f.countByType(t, member.ID, notification.TypeInactivityAlert))
	assert.Equal(t, int64(1), f.countByType(t, admin.ID, notification.TypeInactivityAlert))

	summary, err = f.monitor.CheckInactive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.NotificationsCreated)
}

func TestCheckInactive_IgnoresRecentlyUpdatedProjects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createUser(t, "claire", domain.RoleAdmin)
	f.createProject(t, &domain.Project{
		Name:     "Sprint en cours",
		Status:   domain.ProjectInProgress,
		Progress: 50,
	})

	summary, err := f.monitor.CheckInactive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ProjectsChecked)
	assert.Equal(t, 0, summary.ProjectsTouched)
}

func TestCheckGuarantees_ConcurrentRunRejected(t *testing.T) {
	f := newFixture(t)

	require.True(t, f.monitor.guaranteeMu.TryLock())
	defer f.monitor.guaranteeMu.Unlock()

	_, err := f.monitor.CheckGuarantees(context.Background())
	assert.ErrorIs(t, err, ErrRuleRunning)

	// Other rules are independently guarded.
	_, err = f.monitor.CheckMilestones(context.Background())
	assert.NoError(t, err)
}

func lastNotification(t *testing.T, db *gorm.DB, recipientID int64) *notification.Notification {
	t.Helper()
	var n notification.Notification
	err := db.Where("recipient_id = ?", recipientID).
		Order("id DESC").
		First(&n).Error
	require.NoError(t, err)
	return &n
}
