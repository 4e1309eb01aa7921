// Package main - точка входа для фонового процесса (Worker) движка прогресса.
//
// Worker отвечает за периодические задачи:
// - Ночная повторная синхронизация агрегатов прогресса по всем курсам
// - Поддержание актуальности схемы базы данных (миграции)
//
// Синхронизация по требованию (завершение модуля, запрос отчёта) выполняется
// этим же оркестратором, встроенным в сервисный процесс; Worker закрывает
// случаи, когда записи прогресса меняются в обход событий.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coursehub/progress-engine/config"
	appsync "github.com/coursehub/progress-engine/internal/application/sync"
	"github.com/coursehub/progress-engine/internal/domain/progress"
	"github.com/coursehub/progress-engine/internal/infrastructure/persistence/postgres"
	"github.com/coursehub/progress-engine/internal/infrastructure/persistence/redis"
	"github.com/coursehub/progress-engine/internal/infrastructure/scheduler"
	"github.com/coursehub/progress-engine/internal/infrastructure/scheduler/jobs"
	"github.com/coursehub/progress-engine/internal/infrastructure/service"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting progress engine worker",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"debug", cfg.App.Debug,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПОДКЛЮЧЕНИЕ К БАЗЕ ДАННЫХ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ЗАПУСК МИГРАЦИЙ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("checking database migrations...")
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database schema is up to date")

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ИНИЦИАЛИЗАЦИЯ REDIS
	// ─────────────────────────────────────────────────────────────────────────
	var (
		redisCache     *redis.Cache
		aggregateCache progress.AggregateCache
		locker         appsync.Locker
	)

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		redisCache, err = redis.NewCache(redisCfg)
		if err != nil {
			if cfg.IsProduction() {
				return fmt.Errorf("failed to connect to Redis: %w", err)
			}
			// Вне production оркестратор откатывается на внутрипроцессные
			// блокировки и чтение напрямую из Postgres.
			log.Warn("failed to connect to Redis, falling back to in-process locking", "error", err)
		} else {
			defer redisCache.Close()
			locker = redis.NewSyncLock(redisCache).WithTTL(cfg.Sync.LockTTL)
			if cfg.Features.IsEnabled(config.FeatureAggregateCache) {
				aggregateCache = redis.NewAggregateCache(redisCache)
			}
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ИНИЦИАЛИЗАЦИЯ РЕПОЗИТОРИЕВ И ОРКЕСТРАТОРА
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing repositories...")
	moduleRepo := postgres.NewModuleProgressRepository(dbConn)
	aggregateRepo := postgres.NewCourseProgressRepository(dbConn)
	courseRepo := postgres.NewCourseRepository(dbConn)

	var notifier appsync.Notifier
	if cfg.Features.IsEnabled(config.FeatureEventNotifications) {
		notifier = service.NewLogNotifier(log)
	}

	orchestrator := appsync.NewOrchestrator(
		moduleRepo,
		aggregateRepo,
		courseRepo,
		courseRepo,
		locker,
		notifier,
		aggregateCache,
		log,
		appsync.Config{
			BulkConcurrency: cfg.Sync.BulkConcurrency,
			CacheTTL:        cfg.Sync.CacheTTL,
		},
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ПЛАНИРОВЩИК И ФОНОВЫЕ ЗАДАЧИ
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		log.Info("initializing scheduler...")
		schedCfg := scheduler.DefaultSchedulerConfig()
		schedCfg.Logger = log
		sched = scheduler.NewScheduler(schedCfg)

		if cfg.Features.IsEnabled(config.FeatureNightlyResync) {
			resyncJob := jobs.NewResyncCoursesJob(
				orchestrator,
				courseRepo,
				log,
				jobs.ResyncCoursesConfig{
					Timeout:     cfg.Scheduler.ResyncTimeout,
					OffPeakOnly: cfg.Scheduler.ResyncOffPeakOnly,
				},
			)
			if err := sched.Register(resyncJob, scheduler.NewOffPeakSchedule()); err != nil {
				return fmt.Errorf("failed to register resync job: %w", err)
			}
		}

		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	log.Info("progress engine worker is running")

	// ─────────────────────────────────────────────────────────────────────────
	// 8. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		log.Info("context cancelled")
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	if sched != nil {
		// Stop дожидается завершения уже запущенных задач.
		if err := sched.Stop(); err != nil {
			log.Warn("scheduler stop", "error", err)
		}
	}

	log.Info("shutdown completed successfully")
	return nil
}

// setupLogger настраивает структурированное логирование.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Observability.LogLevel),
	}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Observability.LogFormat, "json") {
		// JSON формат для production (лучше для агрегаторов логов)
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		// Текстовый формат для development (лучше читается)
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)

	return log
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
