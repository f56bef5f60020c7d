package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/phrazzld/taskflow-api/internal/config"
	"github.com/phrazzld/taskflow-api/internal/events"
	"github.com/phrazzld/taskflow-api/internal/platform/bus"
	"github.com/phrazzld/taskflow-api/internal/platform/gemini"
	"github.com/phrazzld/taskflow-api/internal/platform/memory"
	"github.com/phrazzld/taskflow-api/internal/platform/postgres"
	redisstore "github.com/phrazzld/taskflow-api/internal/platform/redis"
	"github.com/phrazzld/taskflow-api/internal/platform/timer"
	"github.com/phrazzld/taskflow-api/internal/service"
	"github.com/phrazzld/taskflow-api/internal/service/audit"
	"github.com/phrazzld/taskflow-api/internal/service/command"
	"github.com/phrazzld/taskflow-api/internal/service/fanout"
	"github.com/phrazzld/taskflow-api/internal/service/recurrence"
	"github.com/phrazzld/taskflow-api/internal/service/reminder"
	"github.com/phrazzld/taskflow-api/internal/store"
)

// Consumer group names for the lifecycle topic. Each group receives every
// event independently, so the three consumers never contend for deliveries.
const (
	groupAudit      = "audit"
	groupRecurrence = "recurrence"
	groupFanout     = "fanout"
)

// application holds the wired dependency graph for the server process.
type application struct {
	config *config.Config
	logger *slog.Logger

	db          *sql.DB
	redisClient *redis.Client
	eventBus    bus.Bus

	taskStore  store.TaskStore
	auditStore store.AuditStore
	dedupStore store.DedupStore

	publisher   *events.Publisher
	taskTimer   *timer.InProcess
	taskService *service.TaskService
	recorder    *audit.Recorder
	registry    *fanout.Registry
	interpreter command.Interpreter
	dispatcher  *command.Dispatcher

	subscriptions []bus.Subscription
	sweeper       *cron.Cron
}

// newApplication builds the full dependency graph from configuration. The
// returned application owns every resource it opens; callers release them
// through cleanup.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{config: cfg, logger: logger}

	if err := app.setupStores(ctx); err != nil {
		app.cleanup()
		return nil, err
	}
	if err := app.setupBus(ctx); err != nil {
		app.cleanup()
		return nil, err
	}
	if err := app.setupServices(ctx); err != nil {
		app.cleanup()
		return nil, err
	}
	if err := app.setupConsumers(ctx); err != nil {
		app.cleanup()
		return nil, err
	}
	if err := app.setupSweeper(); err != nil {
		app.cleanup()
		return nil, err
	}
	if err := app.setupChat(ctx); err != nil {
		app.cleanup()
		return nil, err
	}
	return app, nil
}

// setupStores opens the task, audit, and dedup stores per the configured
// drivers. The postgres path opens one connection pool shared by all three
// and applies pending migrations.
func (app *application) setupStores(ctx context.Context) error {
	switch app.config.Store.Driver {
	case "postgres":
		db, err := sql.Open("pgx", app.config.Store.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return fmt.Errorf("failed to ping database: %w", err)
		}
		if err := postgres.Migrate(db); err != nil {
			db.Close()
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		app.db = db
		app.taskStore = postgres.NewTaskStore(db)
		app.auditStore = postgres.NewAuditStore(db)
	default:
		app.taskStore = memory.NewTaskStore()
		app.auditStore = memory.NewAuditStore()
	}

	switch app.config.Dedup.Driver {
	case "postgres":
		if app.db == nil {
			return fmt.Errorf("dedup driver postgres requires store driver postgres")
		}
		app.dedupStore = postgres.NewDedupStore(app.db)
	case "redis":
		opts, err := redis.ParseURL(app.config.Dedup.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse redis URL: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return fmt.Errorf("failed to ping redis: %w", err)
		}
		app.redisClient = client
		dedup, err := redisstore.NewDedupStore(client, app.dedupRetention())
		if err != nil {
			return fmt.Errorf("failed to create redis dedup store: %w", err)
		}
		app.dedupStore = dedup
	default:
		app.dedupStore = memory.NewDedupStore()
	}
	return nil
}

func (app *application) setupBus(ctx context.Context) error {
	switch app.config.Bus.Driver {
	case "nats":
		natsCfg := bus.DefaultNATSConfig()
		natsCfg.URL = app.config.Bus.NATSURL
		natsBus, err := bus.NewNATS(ctx, natsCfg, app.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		app.eventBus = natsBus
	default:
		app.eventBus = bus.NewMemory(bus.DefaultMemoryConfig(), app.logger)
	}
	app.publisher = events.NewPublisher(app.eventBus, events.DefaultPublisherConfig(), app.logger)
	return nil
}

// setupServices wires the task service with its reminder scheduler. The
// timer's fire callback and the scheduler reference each other, so the
// callback closes over a variable assigned after the timer exists.
func (app *application) setupServices(_ context.Context) error {
	var reminderScheduler *reminder.Scheduler
	app.taskTimer = timer.NewInProcess(func(ctx context.Context, jobID string, payload []byte) {
		reminderScheduler.HandleFire(ctx, jobID, payload)
	}, app.logger)

	reminderScheduler, err := reminder.NewScheduler(app.taskTimer, app.taskStore, app.publisher, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create reminder scheduler: %w", err)
	}

	app.taskService, err = service.NewTaskService(app.taskStore, app.publisher, reminderScheduler, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create task service: %w", err)
	}

	app.recorder, err = audit.NewRecorder(app.auditStore, app.dedupStore, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create audit recorder: %w", err)
	}

	app.registry = fanout.NewRegistry(app.logger)
	return nil
}

// setupConsumers attaches the audit recorder, recurrence engine, and
// websocket broadcaster to the lifecycle topic as independent consumer
// groups.
func (app *application) setupConsumers(ctx context.Context) error {
	engine, err := recurrence.NewEngine(app.taskService, app.dedupStore, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create recurrence engine: %w", err)
	}
	broadcaster, err := fanout.NewBroadcaster(app.registry, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create broadcaster: %w", err)
	}

	for _, consumer := range []struct {
		group   string
		handler bus.Handler
	}{
		{groupAudit, app.recorder.HandleEvent},
		{groupRecurrence, engine.HandleEvent},
		{groupFanout, broadcaster.HandleEvent},
	} {
		sub, err := app.eventBus.Subscribe(ctx, events.TopicLifecycle, consumer.group, consumer.handler)
		if err != nil {
			return fmt.Errorf("failed to subscribe %s consumer: %w", consumer.group, err)
		}
		app.subscriptions = append(app.subscriptions, sub)
	}
	return nil
}

// setupSweeper schedules periodic pruning of expired dedup keys. Redis
// expires keys natively, so the sweeper only runs for the other backends.
func (app *application) setupSweeper() error {
	if app.config.Dedup.Driver == "redis" {
		return nil
	}

	retention := app.dedupRetention()
	sweeper := cron.New()
	_, err := sweeper.AddFunc(app.config.Dedup.SweepSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		cutoff := time.Now().UTC().Add(-retention)
		if err := app.dedupStore.PruneBefore(ctx, cutoff); err != nil {
			app.logger.Error("dedup sweep failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", app.config.Dedup.SweepSchedule, err)
	}
	sweeper.Start()
	app.sweeper = sweeper
	return nil
}

// setupChat wires the natural-language surface when an API key is
// configured; otherwise the chat endpoint stays off.
func (app *application) setupChat(ctx context.Context) error {
	if !app.config.LLM.ChatEnabled() {
		return nil
	}

	interpreter, err := gemini.NewInterpreter(ctx, gemini.Config{
		APIKey:            app.config.LLM.GeminiAPIKey,
		Model:             app.config.LLM.ModelName,
		MaxRetries:        app.config.LLM.MaxRetries,
		RetryDelaySeconds: app.config.LLM.RetryDelaySeconds,
	}, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create interpreter: %w", err)
	}
	app.interpreter = interpreter

	app.dispatcher, err = command.NewDispatcher(app.taskService, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create command dispatcher: %w", err)
	}
	return nil
}

func (app *application) dedupRetention() time.Duration {
	return time.Duration(app.config.Dedup.RetentionHours) * time.Hour
}

// cleanup releases resources in reverse dependency order. It is safe to
// call on a partially constructed application.
func (app *application) cleanup() {
	for _, sub := range app.subscriptions {
		if err := sub.Close(); err != nil {
			app.logger.Warn("failed to close subscription", slog.String("error", err.Error()))
		}
	}
	if app.sweeper != nil {
		app.sweeper.Stop()
	}
	if app.taskTimer != nil {
		app.taskTimer.Stop()
	}
	if app.publisher != nil {
		app.publisher.Wait()
	}
	if closer, ok := app.eventBus.(*bus.NATS); ok {
		if err := closer.Close(); err != nil {
			app.logger.Warn("failed to close NATS connection", slog.String("error", err.Error()))
		}
	}
	if app.redisClient != nil {
		if err := app.redisClient.Close(); err != nil {
			app.logger.Warn("failed to close redis client", slog.String("error", err.Error()))
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Warn("failed to close database", slog.String("error", err.Error()))
		}
	}
}
