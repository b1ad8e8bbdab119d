package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/ahmed-matloob-prog/skill-lab-web-sub000/api/swagger"
	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/internal/handler"
	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/internal/middleware"
	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/internal/models"
	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/internal/repository"
	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/internal/service"
	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/pkg/cache"
	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/pkg/config"
	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/pkg/database"
	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/pkg/export"
	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/pkg/jobs"
	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/pkg/logger"
	corsmiddleware "github.com/ahmed-matloob-prog/skill-lab-web-sub000/pkg/middleware/cors"
	reqidmiddleware "github.com/ahmed-matloob-prog/skill-lab-web-sub000/pkg/middleware/requestid"
	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/pkg/storage"
)

// @title Skill Lab API
// @version 1.0.0
// @description Attendance, graded assessments and cross-sectional reporting for the Skill Lab training program.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("postgres connection failed", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching and change feed disabled", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
	}

	fileStore, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("export storage init failed", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)

	validate := validator.New()

	// Repositories.
	assessmentRepo := repository.NewAssessmentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	userRepo := repository.NewUserRepository(db)
	jobRepo := repository.NewReportJobRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	changeFeed := repository.NewChangeFeed(redisClient, logr)

	// Services.
	metricsSvc := service.NewMetricsService()
	permissions := service.NewPermissionEvaluator()
	authSvc := service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.Expiration, cfg.JWT.Issuer, validate, logr)
	workflowSvc := service.NewWorkflowService(assessmentRepo, permissions, changeFeed, cacheRepo, validate, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, cacheRepo, validate, logr)
	rosterSvc := service.NewRosterService(studentRepo, groupRepo, logr)
	reportSvc := service.NewReportService(studentRepo, assessmentRepo, attendanceRepo, cacheRepo, cfg.Reports.CacheTTL, logr)
	spreadsheetSvc := service.NewSpreadsheetService(export.NewCSVExporter(), export.NewPDFExporter(), fileStore, logr)
	jobSvc := service.NewReportJobService(jobRepo, reportSvc, spreadsheetSvc, signer, fileStore, logr)

	workflowSvc.AttachMetrics(metricsSvc)
	reportSvc.AttachMetrics(metricsSvc)
	jobSvc.AttachMetrics(metricsSvc)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exportQueue := jobs.NewQueue("report-export", jobSvc.Handle, jobs.QueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		Logger:     logr,
	})
	jobSvc.AttachQueue(exportQueue)
	exportQueue.Start(rootCtx)
	defer exportQueue.Stop()

	if err := jobSvc.RecoverQueued(rootCtx); err != nil {
		logr.Sugar().Warnw("recover queued export jobs", "error", err)
	}
	go runCleanup(rootCtx, jobSvc, cfg.Reports.CleanupInterval, logr.Sugar())

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	assessmentHandler := handler.NewAssessmentHandler(workflowSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	reportHandler := handler.NewReportHandler(reportSvc, jobSvc, fileStore)
	rosterHandler := handler.NewRosterHandler(rosterSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Scrape)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)
	api.GET("/reports/download/:token", reportHandler.Download)

	authed := api.Group("", middleware.JWT(authSvc))
	authed.GET("/auth/me", authHandler.Me)

	assessments := authed.Group("/assessments")
	assessments.POST("", assessmentHandler.Create)
	assessments.GET("", assessmentHandler.List)
	assessments.GET("/occasions", assessmentHandler.OccasionStatuses)
	assessments.POST("/export", assessmentHandler.ExportSelected)
	assessments.POST("/bulk-delete", assessmentHandler.BulkDelete)
	assessments.GET("/:id", assessmentHandler.Get)
	assessments.PATCH("/:id/score", assessmentHandler.EditScore)
	assessments.DELETE("/:id", assessmentHandler.Delete)
	assessments.POST("/:id/admin-export", middleware.RequireRoles(models.RoleAdmin), assessmentHandler.AdminExport)

	attendance := authed.Group("/attendance")
	attendance.PUT("", attendanceHandler.Record)
	attendance.GET("", attendanceHandler.List)

	reports := authed.Group("/reports")
	reports.GET("/view/:view", reportHandler.View)
	reports.POST("/export", reportHandler.CreateExport)
	reports.GET("/export/jobs/:id", reportHandler.ExportStatus)

	authed.GET("/students", rosterHandler.ListStudents)
	authed.GET("/students/:id", rosterHandler.GetStudent)
	authed.GET("/groups", rosterHandler.ListGroups)
	authed.GET("/groups/:id", rosterHandler.GetGroup)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown", "error", err)
	}
}

func runCleanup(ctx context.Context, jobSvc *service.ReportJobService, interval time.Duration, logr *zap.SugaredLogger) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := jobSvc.CleanupFinished(ctx, 7*24*time.Hour); err != nil {
				logr.Warnw("cleanup export files", "error", err)
			}
		}
	}
}
