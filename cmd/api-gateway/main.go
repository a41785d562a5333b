package main

import (
	"context"
	"errors"
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

	_ "github.com/noah-isme/activity-report-api/api/swagger"
	"github.com/noah-isme/activity-report-api/internal/handler"
	internalmiddleware "github.com/noah-isme/activity-report-api/internal/middleware"
	"github.com/noah-isme/activity-report-api/internal/repository"
	"github.com/noah-isme/activity-report-api/internal/service"
	"github.com/noah-isme/activity-report-api/pkg/config"
	"github.com/noah-isme/activity-report-api/pkg/logger"
	"github.com/noah-isme/activity-report-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/activity-report-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/activity-report-api/pkg/middleware/requestid"
)

// @title Weekly Activity Report API
// @version 1.0.0
// @description Activity lifecycle, review and notification service
// @BasePath /api/v1
// @schemes http

const shutdownTimeout = 15 * time.Second

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsSvc := service.NewMetricsService()

	backend, err := repository.Open(ctx, cfg, logr, metricsSvc)
	if err != nil {
		logr.Fatal("failed to open storage backend", zap.Error(err))
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logr.Warn("failed to close storage backend", zap.Error(err))
		}
	}()
	logr.Info("storage backend ready", zap.String("backend", string(backend.Kind)))

	validate := validator.New()
	mailClient := mailer.New(cfg.Mail)
	if !mailClient.Configured() {
		logr.Info("mail transport not configured, emails will be skipped")
	}

	preferenceSvc := service.NewPreferenceService(backend.Preferences, validate, logr)
	dispatcher := service.NewDispatcher(
		backend.Notifications,
		backend.Audit,
		backend.Admins,
		mailClient,
		preferenceSvc,
		cfg.Dispatch,
		cfg.Mail.BaseURL,
		logr,
		service.WithDispatcherMetrics(metricsSvc),
	)
	dispatcher.Start(context.Background())

	activitySvc := service.NewActivityService(backend.Activities, dispatcher, validate, logr,
		service.WithActivityMetrics(metricsSvc),
		service.WithSubmitConcurrency(cfg.Activities.SubmitWeekConcurrency),
	)
	notificationSvc := service.NewNotificationService(backend.Notifications, logr)
	auditSvc := service.NewAuditService(backend.Audit)

	activityHandler := handler.NewActivityHandler(activitySvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	auditHandler := handler.NewAuditHandler(auditSvc)
	preferenceHandler := handler.NewPreferenceHandler(preferenceSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, backend, dispatcher)

	verifier := internalmiddleware.NewTokenVerifier(cfg.Identity)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.Identity(verifier))
	adminOnly := internalmiddleware.RequireAdmin()

	activities := api.Group("/activities")
	activities.POST("", activityHandler.Create)
	activities.GET("", activityHandler.List)
	activities.POST("/submit-week", activityHandler.SubmitWeek)
	activities.GET("/:id", activityHandler.Get)
	activities.PUT("/:id", activityHandler.Update)
	activities.DELETE("/:id", activityHandler.Delete)
	activities.POST("/:id/submit", activityHandler.Submit)
	activities.POST("/:id/resubmit", activityHandler.Resubmit)
	activities.POST("/:id/approve", adminOnly, activityHandler.Approve)
	activities.POST("/:id/request-clarification", adminOnly, activityHandler.RequestClarification)
	activities.GET("/:id/feedback", activityHandler.ListFeedback)
	activities.POST("/:id/feedback", activityHandler.AddFeedback)

	notifications := api.Group("/notifications")
	notifications.GET("", notificationHandler.List)
	notifications.GET("/unread-count", notificationHandler.UnreadCount)
	notifications.POST("/read-all", notificationHandler.MarkAllRead)
	notifications.POST("/:id/read", notificationHandler.MarkRead)

	api.GET("/audit", adminOnly, auditHandler.List)
	api.GET("/side-effects/failures", adminOnly, metricsHandler.SideEffectFailures)

	me := api.Group("/me")
	me.GET("/preferences", preferenceHandler.Get)
	me.PUT("/preferences", preferenceHandler.Update)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http shutdown", zap.Error(err))
	}
	if err := dispatcher.Drain(shutdownCtx); err != nil {
		logr.Warn("side effects still pending at shutdown", zap.Error(err))
	}
	dispatcher.Stop()
	logr.Info("server stopped")
}
