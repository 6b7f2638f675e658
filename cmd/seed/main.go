package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"suivipro/internal/config"
	"suivipro/internal/database"
	"suivipro/internal/domain"
	"suivipro/internal/domain/notification"
	"suivipro/internal/pkg/logger"
	"suivipro/internal/repository"
)

// Seeds a development database with demo users, projects and notifications.
// Safe to re-run: existing users are kept, everything else is re-created.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("config: %v", err)
	}
	logger.Init(cfg.LogLevel, cfg.AppEnv)
	log := logger.Get()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	if err := db.AutoMigrate(&domain.User{}, &domain.Project{}, &notification.Notification{}); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	users := seedUsers(ctx, db, log)
	projects := seedProjects(ctx, db, log, users)
	seedNotifications(ctx, db, log, users, projects)

	log.Info("seed done")
}

func seedUsers(ctx context.Context, db *gorm.DB, log *logrus.Logger) map[string]*domain.User {
	repo := repository.NewUserRepository(db)

	demo := []struct {
		email    string
		name     string
		role     domain.UserRole
		password string
	}{
		{"claire@suivipro.fr", "Claire Dubois", domain.RoleAdmin, "admin123"},
		{"marc@suivipro.fr", "Marc Lefèvre", domain.RoleManager, "chef123"},
		{"lucas@suivipro.fr", "Lucas Martin", domain.RoleMember, "membre123"},
		{"nora@suivipro.fr", "Nora Benali", domain.RoleMember, "membre123"},
	}

	out := make(map[string]*domain.User, len(demo))
	for _, d := range demo {
		if existing, err := repo.GetByEmail(ctx, d.email); err == nil {
			out[d.name] = existing
			continue
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(d.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("bcrypt: %v", err)
		}
		u := &domain.User{
			Email:        d.email,
			Name:         d.name,
			Role:         d.role,
			PasswordHash: string(hash),
		}
		if err := repo.Create(ctx, u); err != nil {
			log.Fatalf("seed user %s: %v", d.email, err)
		}
		out[d.name] = u
		log.Infof("created user %s (%s)", d.email, d.role)
	}
	return out
}

func seedProjects(ctx context.Context, db *gorm.DB, log *logrus.Logger, users map[string]*domain.User) []*domain.Project {
	claire := users["Claire Dubois"]
	lucas := users["Lucas Martin"]
	nora := users["Nora Benali"]

	in12 := time.Now().AddDate(0, 0, 12)
	in5 := time.Now().AddDate(0, 0, 5)

	projects := []*domain.Project{
		{
			Name:        "Refonte intranet",
			Description: "Migration de l'intranet vers la nouvelle charte",
			Status:      domain.ProjectInProgress,
			Progress:    60,
			EndDate:     &in12,
			OwnerID:     claire.ID,
			AssignedTo:  []domain.User{*lucas, *nora},
		},
		{
			Name:          "Site vitrine agence",
			Description:   "Livré, sous garantie contractuelle",
			Status:        domain.ProjectInProgress,
			Progress:      100,
			GuaranteeDays: 30,
			OwnerID:       claire.ID,
			AssignedTo:    []domain.User{*lucas},
		},
		{
			Name:        "Migration CRM",
			Description: "Échéance proche, à surveiller",
			Status:      domain.ProjectInProgress,
			Progress:    45,
			EndDate:     &in5,
			OwnerID:     claire.ID,
			AssignedTo:  []domain.User{*nora},
		},
		{
			Name:        "Audit accessibilité",
			Description: "En attente de validation client",
			Status:      domain.ProjectPending,
			Progress:    0,
			OwnerID:     claire.ID,
		},
	}

	for _, p := range projects {
		if err := db.WithContext(ctx).Create(p).Error; err != nil {
			log.Fatalf("seed project %s: %v", p.Name, err)
		}
		log.Infof("created project %s", p.Name)
	}
	return projects
}

func seedNotifications(ctx context.Context, db *gorm.DB, log *logrus.Logger, users map[string]*domain.User, projects []*domain.Project) {
	svc := notification.NewService(notification.NewRepository(db), repository.NewUserRepository(db), nil, logger.Get())

	claire := users["Claire Dubois"]
	lucas := users["Lucas Martin"]
	nora := users["Nora Benali"]
	intranet := projects[0]

	if _, err := svc.NotifyAssignment(ctx, lucas.ID, claire.ID, intranet.ID, intranet.Name); err != nil {
		log.Fatalf("seed notification: %v", err)
	}
	if _, err := svc.NotifyComment(ctx, nora.ID, claire.ID, intranet.ID, 1, intranet.Name); err != nil {
		log.Fatalf("seed notification: %v", err)
	}
	svc.NotifyProgressMilestone(ctx, []int64{lucas.ID, nora.ID}, intranet.ID, intranet.Name, 50)

	log.Info("created demo notifications")
}

