// Package app wires configuration into a running object graph: storage,
// identity, calendar access, and the application handlers behind the HTTP
// surface and the background worker.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/qnz18/qzwhatnext/internal/api"
	calendarapp "github.com/qnz18/qzwhatnext/internal/calendar/application"
	"github.com/qnz18/qzwhatnext/internal/calendar/infrastructure/google"
	captureapp "github.com/qnz18/qzwhatnext/internal/capture/application"
	identityservices "github.com/qnz18/qzwhatnext/internal/identity/application/services"
	identitydomain "github.com/qnz18/qzwhatnext/internal/identity/domain"
	identitypersistence "github.com/qnz18/qzwhatnext/internal/identity/infrastructure/persistence"
	"github.com/qnz18/qzwhatnext/internal/planner/application/commands"
	"github.com/qnz18/qzwhatnext/internal/planner/application/queries"
	plannerservices "github.com/qnz18/qzwhatnext/internal/planner/application/services"
	plannerdomain "github.com/qnz18/qzwhatnext/internal/planner/domain"
	"github.com/qnz18/qzwhatnext/internal/planner/infrastructure/inference"
	plannerpersistence "github.com/qnz18/qzwhatnext/internal/planner/infrastructure/persistence"
	recurrenceservices "github.com/qnz18/qzwhatnext/internal/recurrence/application/services"
	recurrencedomain "github.com/qnz18/qzwhatnext/internal/recurrence/domain"
	recurrencepersistence "github.com/qnz18/qzwhatnext/internal/recurrence/infrastructure/persistence"
	"github.com/qnz18/qzwhatnext/internal/shared/clock"
	"github.com/qnz18/qzwhatnext/internal/shared/infrastructure/crypto"
	"github.com/qnz18/qzwhatnext/internal/shared/infrastructure/database/postgres"
	"github.com/qnz18/qzwhatnext/internal/shared/infrastructure/database/sqlite"
	"github.com/qnz18/qzwhatnext/internal/shared/infrastructure/eventbus"
	"github.com/qnz18/qzwhatnext/internal/shared/infrastructure/lock"
	"github.com/qnz18/qzwhatnext/internal/shared/infrastructure/migrations"
	"github.com/qnz18/qzwhatnext/pkg/config"
)

// Container holds the wired object graph plus the handles that need
// explicit shutdown.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	OAuth        *identityservices.GoogleOAuthService
	Auth         *identityservices.AuthService
	Users        identitydomain.UserRepository
	Series       recurrencedomain.TaskSeriesRepository
	Materializer *recurrenceservices.Materializer
	Reconciler   *calendarapp.Reconciler
	Deps         api.Deps

	sqliteDB *sql.DB
	pgPool   *pgxpool.Pool
	closers  []func()
}

// New builds the container from configuration, running migrations against
// whichever database DATABASE_URL selects.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Container{Config: cfg, Logger: logger}

	var (
		taskRepo      plannerdomain.TaskRepository
		blockRepo     plannerdomain.ScheduledBlockRepository
		seriesRepo    recurrencedomain.TaskSeriesRepository
		timeBlockRepo recurrencedomain.TimeBlockRepository
		userRepo      identitydomain.UserRepository
		oauthTokens   identitydomain.OAuthTokenRepository
		apiTokens     identitydomain.APITokenRepository
	)

	if cfg.UsesPostgres() {
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL, postgres.PoolConfig{
			MaxConns:       cfg.DBPoolSize,
			MaxOverflow:    cfg.DBMaxOverflow,
			AcquireTimeout: cfg.DBPoolTimeout,
		})
		if err != nil {
			return nil, err
		}
		c.pgPool = pool
		if err := migrations.RunPostgres(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		taskRepo = plannerpersistence.NewPostgresTaskRepository(pool)
		blockRepo = plannerpersistence.NewPostgresBlockRepository(pool)
		seriesRepo = recurrencepersistence.NewPostgresSeriesRepository(pool)
		timeBlockRepo = recurrencepersistence.NewPostgresTimeBlockRepository(pool)
		userRepo = identitypersistence.NewPostgresUserRepository(pool)
		oauthTokens = identitypersistence.NewPostgresOAuthTokenRepository(pool)
		apiTokens = identitypersistence.NewPostgresAPITokenRepository(pool)
	} else {
		db, err := sqlite.Open(ctx, cfg.SQLitePath())
		if err != nil {
			return nil, err
		}
		c.sqliteDB = db
		if err := migrations.RunSQLite(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		taskRepo = plannerpersistence.NewSQLiteTaskRepository(db)
		blockRepo = plannerpersistence.NewSQLiteBlockRepository(db)
		seriesRepo = recurrencepersistence.NewSQLiteSeriesRepository(db)
		timeBlockRepo = recurrencepersistence.NewSQLiteTimeBlockRepository(db)
		userRepo = identitypersistence.NewSQLiteUserRepository(db)
		oauthTokens = identitypersistence.NewSQLiteOAuthTokenRepository(db)
		apiTokens = identitypersistence.NewSQLiteAPITokenRepository(db)
	}
	c.Users = userRepo

	enc, err := crypto.NewAESGCMFromBase64Key(cfg.TokenEncryption)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("token encryption key: %w", err)
	}

	clk := clock.SystemClock{}
	locker := c.buildLocker()
	publisher := c.buildPublisher()

	c.Auth = identityservices.NewAuthService(apiTokens,
		cfg.JWTSecretKey, cfg.JWTExpiration, cfg.ShortcutPepper, clk, logger)
	c.OAuth = identityservices.NewGoogleOAuthService(identityservices.OAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	}, oauthTokens, enc, logger)

	gateway := google.NewClient(c.OAuth, cfg.GoogleCalendarID, logger)
	scheduler := plannerservices.NewScheduler(logger)

	c.Reconciler = calendarapp.NewReconciler(gateway, taskRepo, blockRepo,
		scheduler, locker, clk, cfg.Horizon(), publisher, logger)

	c.Series = seriesRepo
	c.Materializer = recurrenceservices.NewMaterializer(seriesRepo, taskRepo, clk, logger)
	capture := captureapp.NewOrchestrator(seriesRepo, timeBlockRepo, taskRepo,
		c.Materializer, gateway, clk, cfg.Horizon(), publisher, logger)

	var classifier plannerservices.Classifier
	if cfg.OpenAIAPIKey != "" {
		classifier = inference.NewOpenAIClassifier(cfg.OpenAIAPIKey, logger)
	}

	c.Deps = api.Deps{
		Auth:  c.Auth,
		OAuth: c.OAuth,

		CreateTask:   commands.NewCreateTaskHandler(taskRepo, publisher, logger),
		UpdateTask:   commands.NewUpdateTaskHandler(taskRepo),
		CompleteTask: commands.NewCompleteTaskHandler(taskRepo, clk, publisher, logger),
		DeleteTask:   commands.NewDeleteTaskHandler(taskRepo, blockRepo, clk),
		RestoreTask:  commands.NewRestoreTaskHandler(taskRepo),
		PurgeTask:    commands.NewPurgeTaskHandler(taskRepo, blockRepo),
		BulkTasks:    commands.NewBulkTasksHandler(taskRepo, blockRepo, clk),
		AddSmart:     commands.NewAddSmartTaskHandler(taskRepo, classifier, logger),
		Rebuild: commands.NewRebuildScheduleHandler(taskRepo, blockRepo, scheduler,
			calendarapp.NewEventReservationSource(gateway),
			calendarapp.NewCalendarTimezoneSource(gateway),
			locker, clk, cfg.Horizon(), publisher, logger),
		ToggleLock: commands.NewToggleBlockLockHandler(blockRepo),

		ListTasks:   queries.NewListTasksHandler(taskRepo),
		GetTask:     queries.NewGetTaskHandler(taskRepo),
		GetSchedule: queries.NewGetScheduleHandler(blockRepo, taskRepo),

		Capture:    capture,
		Reconciler: c.Reconciler,

		Logger: logger,
	}
	return c, nil
}

// buildLocker returns a Redis-backed locker when REDIS_URL is set and
// reachable, a process-local one otherwise.
func (c *Container) buildLocker() lock.UserLocker {
	if c.Config.RedisURL == "" {
		return lock.NewLocalLocker()
	}
	opts, err := redis.ParseURL(c.Config.RedisURL)
	if err != nil {
		c.Logger.Warn("invalid REDIS_URL, using local locks",
			slog.String("error", err.Error()))
		return lock.NewLocalLocker()
	}
	client := redis.NewClient(opts)
	c.closers = append(c.closers, func() { _ = client.Close() })
	return lock.NewRedisLocker(client)
}

// buildPublisher returns a RabbitMQ publisher when RABBITMQ_URL is set,
// falling back to a logging no-op in development when the broker is down.
func (c *Container) buildPublisher() eventbus.Publisher {
	if c.Config.RabbitMQURL == "" {
		return eventbus.NewNoopPublisher(c.Logger)
	}
	pub, err := eventbus.NewRabbitMQPublisher(c.Config.RabbitMQURL, c.Logger)
	if err != nil {
		if c.Config.IsDevelopment() {
			c.Logger.Warn("rabbitmq unavailable, audit events will be logged only",
				slog.String("error", err.Error()))
			return eventbus.NewNoopPublisher(c.Logger)
		}
		c.Logger.Error("rabbitmq unavailable",
			slog.String("error", err.Error()))
		return eventbus.NewNoopPublisher(c.Logger)
	}
	c.closers = append(c.closers, func() { _ = pub.Close() })
	return pub
}

// Close releases every handle the container owns.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	if c.pgPool != nil {
		c.pgPool.Close()
	}
	if c.sqliteDB != nil {
		_ = c.sqliteDB.Close()
	}
}
