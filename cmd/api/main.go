package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/studentdesk/backend/internal/alert"
	"github.com/studentdesk/backend/internal/config"
	"github.com/studentdesk/backend/internal/handler"
	"github.com/studentdesk/backend/internal/infra/postgresql"
	"github.com/studentdesk/backend/internal/infra/postgresql/migrations"
	infraredis "github.com/studentdesk/backend/internal/infra/redis"
	"github.com/studentdesk/backend/internal/mailer"
	"github.com/studentdesk/backend/internal/observability"
	"github.com/studentdesk/backend/internal/render"
	"github.com/studentdesk/backend/internal/report"
	"github.com/studentdesk/backend/internal/repository"
	"github.com/studentdesk/backend/internal/service"
	"github.com/studentdesk/backend/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	metrics := observability.NewMetrics()

	smtpMailer, err := mailer.NewSMTPMailer(
		cfg.SMTPHost,
		cfg.SMTPPort,
		cfg.SMTPUser,
		cfg.SMTPPassword,
		cfg.SenderAddress,
		cfg.SenderName,
	)
	if err != nil {
		logger.Fatal("mailer initialization failed", zap.Error(err))
	}

	renderer, err := render.NewRenderer()
	if err != nil {
		logger.Fatal("renderer initialization failed", zap.Error(err))
	}

	rateLimiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.MailRatePerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	var alerts alert.Notifier = alert.NopNotifier{}
	if cfg.AlertWebhookURL != "" {
		webhookAlerts, err := alert.NewWebhookNotifier(cfg.AlertWebhookURL, logger)
		if err != nil {
			logger.Fatal("alert notifier initialization failed", zap.Error(err))
		}
		alerts = webhookAlerts
	}

	emailRepo := repository.NewGormEmailRepo(db)
	runLogRepo := repository.NewGormRunLogRepo(db)
	scheduleRepo := repository.NewGormScheduleRepo(db)
	studentRepo := repository.NewGormStudentRepo(db)
	templateRepo := repository.NewGormBroadcastTemplateRepo(db)
	notificationRepo := repository.NewGormNotificationRepo(db)

	dispatcher, err := service.NewDispatcher(emailRepo, smtpMailer, rateLimiter, alerts, cfg.DispatchWorkers, logger)
	if err != nil {
		logger.Fatal("dispatcher initialization failed", zap.Error(err))
	}
	dispatcher.SetMetrics(metrics)

	sweeper, err := service.NewSweeper(
		emailRepo,
		dispatcher,
		time.Duration(cfg.SweepIntervalSec)*time.Second,
		cfg.SweepBatchSize,
		cfg.SweepConcurrency,
		logger,
	)
	if err != nil {
		logger.Fatal("sweeper initialization failed", zap.Error(err))
	}
	sweeper.SetMetrics(metrics)

	emailService, err := service.NewEmailService(emailRepo, studentRepo, templateRepo, renderer, dispatcher, logger)
	if err != nil {
		logger.Fatal("email service initialization failed", zap.Error(err))
	}

	generator, err := report.NewGenerator(studentRepo, emailRepo)
	if err != nil {
		logger.Fatal("report generator initialization failed", zap.Error(err))
	}

	guard, err := service.NewRunGuard(runLogRepo, logger)
	if err != nil {
		logger.Fatal("run guard initialization failed", zap.Error(err))
	}

	reportJobs, err := service.NewReportJobs(guard, generator, renderer, smtpMailer, notificationRepo, cfg.AdminEmail, logger)
	if err != nil {
		logger.Fatal("report jobs initialization failed", zap.Error(err))
	}

	studentReports, err := service.NewStudentReports(guard, generator, renderer, emailService, logger)
	if err != nil {
		logger.Fatal("student reports initialization failed", zap.Error(err))
	}
	reportJobs.SetStudentReportRunner(studentReports.Run)

	registry, err := service.NewRegistry(guard, alerts, logger)
	if err != nil {
		logger.Fatal("trigger registry initialization failed", zap.Error(err))
	}
	registry.SetMetrics(metrics)

	configuredSchedule := func(ctx context.Context) (int, int, error) {
		schedule, err := scheduleRepo.Get(ctx)
		if err != nil {
			return 0, 0, err
		}
		return schedule.Hour, schedule.Minute, nil
	}

	jobs := []service.Job{
		{Name: service.JobProgressReport, Schedule: configuredSchedule, CatchUp: true, Run: reportJobs.RunProgress},
		{Name: service.JobAnalyticsReport, Schedule: configuredSchedule, CatchUp: true, Run: reportJobs.RunAnalytics},
		{Name: service.JobStudentReports, Schedule: service.FixedSchedule(11, 0), Run: studentReports.Run},
		{Name: service.JobDailyBroadcast, Schedule: service.FixedSchedule(23, 0), Run: emailService.RunDailyBroadcast},
	}
	for _, job := range jobs {
		if err := registry.Register(job); err != nil {
			logger.Fatal("job registration failed", zap.String("job", job.Name), zap.Error(err))
		}
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(transport.RequestID())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	if err := handler.RegisterEmailRoutes(app, emailService, emailRepo, sweeper); err != nil {
		logger.Fatal("email route registration failed", zap.Error(err))
	}
	if err := handler.RegisterReportRoutes(app, reportJobs, runLogRepo, scheduleRepo); err != nil {
		logger.Fatal("report route registration failed", zap.Error(err))
	}
	if err := handler.RegisterNotificationRoutes(app, notificationRepo); err != nil {
		logger.Fatal("notification route registration failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Start(groupCtx) })
	g.Go(func() error { return sweeper.Start(groupCtx) })
	g.Go(func() error { return registry.Start(groupCtx) })
	g.Go(func() error {
		logger.Info("api started", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})
	g.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil {
		logger.Error("shutdown with error", zap.Error(err))
	}
	logger.Info("stopped")
}
