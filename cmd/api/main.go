package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"suivipro/internal/config"
	"suivipro/internal/database"
	"suivipro/internal/domain"
	"suivipro/internal/domain/auth"
	"suivipro/internal/domain/lifecycle"
	"suivipro/internal/domain/notification"
	"suivipro/internal/middleware"
	jwtsvc "suivipro/internal/pkg/jwt"
	"suivipro/internal/pkg/logger"
	"suivipro/internal/repository"
)

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

	if err := db.AutoMigrate(
		&domain.User{},
		&domain.Project{},
		&notification.Notification{},
	); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.WithError(err).Warn("redis unreachable, notification publishing disabled")
			redisClient = nil
		}
	}

	jwtService := jwtsvc.New(cfg.JWTSecret, cfg.JWTTTL)

	userRepo := repository.NewUserRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	notifRepo := notification.NewRepository(db)

	notifService := notification.NewService(notifRepo, userRepo, redisClient, log)
	monitor := lifecycle.NewMonitor(projectRepo, notifService, userRepo, lifecycle.Config{
		MilestoneThresholds: cfg.MilestoneThresholds,
		DeadlineLookahead:   cfg.DeadlineLookahead,
		InactivityThreshold: cfg.InactivityThreshold,
	}, log)

	// Projects may have crossed thresholds while the server was down.
	monitor.RunStartupChecks(context.Background())

	router := buildRouter(cfg, log, jwtService, userRepo, notifService, monitor)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Infof("listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("shutdown: %v", err)
	}
}

func buildRouter(
	cfg *config.Config,
	log *logrus.Logger,
	jwtService *jwtsvc.Service,
	userRepo *repository.UserRepository,
	notifService *notification.Service,
	monitor *lifecycle.Monitor,
) *gin.Engine {
	if cfg.AppEnv == "production" || cfg.AppEnv == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.CORS(cfg.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	auth.RegisterRoutes(api, auth.NewHandler(userRepo, jwtService))

	protected := api.Group("")
	protected.Use(middleware.JWTAuth(jwtService))

	notification.RegisterRoutes(protected, notification.NewHandler(notifService))
	lifecycle.RegisterRoutes(protected, lifecycle.NewHandler(monitor))

	return router
}
