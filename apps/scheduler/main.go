// The scheduler is the external trigger for recurring reports: it polls for
// scheduled reports whose next run is due, executes each one, and persists
// the next occurrence. It owns no schedule arithmetic beyond calling the
// resolver.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"

	"github.com/BenisSula/saas-school-mgmt-system-new-sub005/domains/reports/be/schedule"
	reportsservice "github.com/BenisSula/saas-school-mgmt-system-new-sub005/domains/reports/be/service"
	"github.com/BenisSula/saas-school-mgmt-system-new-sub005/platform/go/cache"
	platformlogging "github.com/BenisSula/saas-school-mgmt-system-new-sub005/platform/go/logging"
	"github.com/BenisSula/saas-school-mgmt-system-new-sub005/platform/go/persistence"
	"github.com/BenisSula/saas-school-mgmt-system-new-sub005/platform/go/storage"
	"github.com/BenisSula/saas-school-mgmt-system-new-sub005/platform/go/tenant"
)

type config struct {
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL     string        `env:"DATABASE_URL,required"`
	SharedSchema    string        `env:"SHARED_SCHEMA" envDefault:"shared"`
	PollInterval    time.Duration `env:"POLL_INTERVAL" envDefault:"1m"`
	StorageLocalDir string        `env:"STORAGE_LOCAL_DIR" envDefault:"./.data/storage"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "report-scheduler",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	tenantStore, err := persistence.NewTenantStore(pool, cfg.SharedSchema)
	if err != nil {
		logger.Fatal("init tenant store", zap.Error(err))
	}
	reportStore, err := persistence.NewReportStore(pool, cfg.SharedSchema)
	if err != nil {
		logger.Fatal("init report store", zap.Error(err))
	}
	executionStore, err := persistence.NewExecutionStore(pool, cfg.SharedSchema)
	if err != nil {
		logger.Fatal("init execution store", zap.Error(err))
	}
	snapshotStore, err := persistence.NewSnapshotStore(pool, cfg.SharedSchema)
	if err != nil {
		logger.Fatal("init snapshot store", zap.Error(err))
	}
	scheduleStore, err := persistence.NewScheduleStore(pool, cfg.SharedSchema)
	if err != nil {
		logger.Fatal("init schedule store", zap.Error(err))
	}

	snapshots, err := reportsservice.NewSnapshots(snapshotStore)
	if err != nil {
		logger.Fatal("init snapshots", zap.Error(err))
	}
	runner, err := reportsservice.New(reportsservice.Deps{
		DB: persistence.NewTenantDB(persistence.TenantDBConfig{
			Pool:         pool,
			SharedSchema: cfg.SharedSchema,
		}),
		Catalog:    reportStore,
		Executions: executionStore,
		Snapshots:  snapshots,
		Blobs:      storage.NewLocalBlobStore(cfg.StorageLocalDir),
		TableCache: cache.NewBoolTTL(),
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal("init report runner", zap.Error(err))
	}

	worker := &worker{
		tenants:   tenantStore,
		schedules: scheduleStore,
		runner:    runner,
		logger:    logger,
	}

	logger.Info("scheduler started", zap.Duration("poll_interval", cfg.PollInterval))
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	worker.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			worker.tick(ctx)
		}
	}
}

type worker struct {
	tenants   *persistence.TenantStore
	schedules *persistence.ScheduleStore
	runner    *reportsservice.Service
	logger    *zap.Logger
}

// tick runs every due scheduled report once. Failures are logged and the
// next occurrence is persisted regardless, so a broken report fires once per
// slot instead of hammering the database every poll.
func (w *worker) tick(ctx context.Context) {
	now := time.Now().UTC()
	due, err := w.schedules.Due(ctx, now)
	if err != nil {
		w.logger.Error("fetch due schedules", zap.Error(err))
		return
	}

	for _, item := range due {
		if ctx.Err() != nil {
			return
		}
		w.runOne(ctx, item, now)
	}
}

func (w *worker) runOne(ctx context.Context, item persistence.ScheduledReportRecord, now time.Time) {
	logger := w.logger.With(
		zap.String("schedule_id", item.ID.String()),
		zap.String("tenant_id", item.TenantID.String()))

	rec, err := w.tenants.Get(ctx, item.TenantID)
	if err != nil {
		logger.Error("resolve tenant", zap.Error(err))
		w.advance(ctx, item, now, logger)
		return
	}
	if rec.Status != persistence.TenantStatusReady {
		logger.Warn("tenant not ready, skipping run", zap.String("status", rec.Status))
		w.advance(ctx, item, now, logger)
		return
	}

	var params map[string]any
	if len(item.Parameters) > 0 {
		if err := json.Unmarshal(item.Parameters, &params); err != nil {
			logger.Error("decode schedule parameters", zap.Error(err))
		}
	}

	space := tenant.Space{
		TenantID:   rec.TenantID,
		Slug:       rec.Slug,
		SchemaName: rec.SchemaName,
		Status:     rec.Status,
	}
	result, err := w.runner.ExecuteReport(ctx, space, item.ReportDefinitionID, reportsservice.ExecuteOptions{
		Parameters:   params,
		ExportFormat: item.ExportFormat,
	})
	if err != nil {
		logger.Error("scheduled run failed", zap.Error(err))
	} else {
		logger.Info("scheduled run completed",
			zap.String("execution_id", result.Execution.ID.String()),
			zap.Int("row_count", result.Execution.RowCount))
	}

	w.advance(ctx, item, now, logger)
}

// advance persists the schedule's next occurrence.
func (w *worker) advance(ctx context.Context, item persistence.ScheduledReportRecord, now time.Time, logger *zap.Logger) {
	cfg, err := schedule.ParseConfig(item.ScheduleConfig)
	if err != nil {
		logger.Error("decode schedule config", zap.Error(err))
		cfg = schedule.Config{}
	}
	next, err := schedule.NextRun(item.ScheduleType, cfg, now)
	if err != nil {
		// An unknown type can never fire again; park it instead of
		// re-selecting it every poll.
		logger.Error("compute next run, deactivating schedule", zap.Error(err))
		if err := w.schedules.SetActive(ctx, item.ID, false); err != nil {
			logger.Error("deactivate schedule", zap.Error(err))
		}
		return
	}
	if _, err := w.schedules.UpdateNextRun(ctx, item.ID, now, next); err != nil {
		logger.Error("update next run", zap.Error(err))
	}
}
