package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	reportshandler "github.com/BenisSula/saas-school-mgmt-system-new-sub005/domains/reports/be/handler"
	reportsservice "github.com/BenisSula/saas-school-mgmt-system-new-sub005/domains/reports/be/service"
	tenantshandler "github.com/BenisSula/saas-school-mgmt-system-new-sub005/domains/tenants/be/handler"
	tenantsprov "github.com/BenisSula/saas-school-mgmt-system-new-sub005/domains/tenants/be/provisioning"
	tenantsrepo "github.com/BenisSula/saas-school-mgmt-system-new-sub005/domains/tenants/be/repo"
	tenantsservice "github.com/BenisSula/saas-school-mgmt-system-new-sub005/domains/tenants/be/service"
	"github.com/BenisSula/saas-school-mgmt-system-new-sub005/platform/go/cache"
	platformlogging "github.com/BenisSula/saas-school-mgmt-system-new-sub005/platform/go/logging"
	platformmiddleware "github.com/BenisSula/saas-school-mgmt-system-new-sub005/platform/go/middleware"
	"github.com/BenisSula/saas-school-mgmt-system-new-sub005/platform/go/persistence"
	"github.com/BenisSula/saas-school-mgmt-system-new-sub005/platform/go/storage"
	tenantmiddleware "github.com/BenisSula/saas-school-mgmt-system-new-sub005/platform/go/tenant/middleware"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL     string        `env:"DATABASE_URL,required"`
	SharedSchema    string        `env:"SHARED_SCHEMA" envDefault:"shared"`
	StorageBackend  string        `env:"STORAGE_BACKEND" envDefault:"local"`             // gcs | local
	StorageBucket   string        `env:"STORAGE_BUCKET"`                                 // required when STORAGE_BACKEND=gcs
	StorageCreds    string        `env:"STORAGE_CREDENTIALS_FILE"`                       // optional service account JSON for gcs
	StorageLocalDir string        `env:"STORAGE_LOCAL_DIR" envDefault:"./.data/storage"` // used when STORAGE_BACKEND=local
	TenantCacheTTL  time.Duration `env:"TENANT_CACHE_TTL" envDefault:"1m"`
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
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

	if err := persistence.BootstrapSharedSchema(ctx, pool, cfg.SharedSchema); err != nil {
		logger.Fatal("bootstrap shared schema", zap.Error(err))
	}

	var blobs storage.BlobStore
	switch cfg.StorageBackend {
	case "gcs":
		if cfg.StorageBucket == "" {
			logger.Fatal("storage bucket required when STORAGE_BACKEND=gcs")
		}
		var opts []option.ClientOption
		if cfg.StorageCreds != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.StorageCreds))
		}
		gcsClient, err := gcstorage.NewClient(ctx, opts...)
		if err != nil {
			logger.Fatal("init gcs client", zap.Error(err))
		}
		defer gcsClient.Close()
		blobs = storage.NewGCSBlobStore(gcsClient, cfg.StorageBucket)
	case "local":
		if strings.TrimSpace(cfg.StorageLocalDir) == "" {
			logger.Fatal("storage local dir required when STORAGE_BACKEND=local")
		}
		blobs = storage.NewLocalBlobStore(cfg.StorageLocalDir)
	default:
		logger.Fatal("invalid STORAGE_BACKEND (use gcs or local)", zap.String("backend", cfg.StorageBackend))
	}

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

	tenantRepo := tenantsrepo.NewPostgresRepository(tenantStore)
	tenantService := tenantsservice.New(tenantRepo, []tenantsservice.Provisioner{
		tenantsprov.NewDBProvisioner(pool),
		tenantsprov.NewStorageProvisioner(blobs),
	}, logger)
	tenantHTTPHandler := tenantshandler.New(tenantService, logger)

	tenantDB := persistence.NewTenantDB(persistence.TenantDBConfig{
		Pool:         pool,
		SharedSchema: cfg.SharedSchema,
	})

	snapshots, err := reportsservice.NewSnapshots(snapshotStore)
	if err != nil {
		logger.Fatal("init snapshots", zap.Error(err))
	}
	runner, err := reportsservice.New(reportsservice.Deps{
		DB:         tenantDB,
		Catalog:    reportStore,
		Executions: executionStore,
		Snapshots:  snapshots,
		Blobs:      blobs,
		TableCache: cache.NewBoolTTL(),
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal("init report runner", zap.Error(err))
	}
	reportsHTTPHandler := reportshandler.New(reportStore, executionStore, scheduleStore, runner, snapshots, logger)

	rootRouter := chi.NewRouter()
	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)
	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	apiRouter := chi.NewRouter()

	// Tenant directory routes serve platform operators and are not scoped
	// to a school.
	apiRouter.Mount("/tenants", tenantHTTPHandler.Routes())

	apiRouter.Group(func(r chi.Router) {
		r.Use(tenantmiddleware.WithTenantSpace(tenantService, tenantmiddleware.Config{
			CacheTTL: cfg.TenantCacheTTL,
		}))
		r.Use(platformmiddleware.RequestTrace)
		r.Mount("/reports", reportsHTTPHandler.Routes())
	})

	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	logger.Info("api server stopped")
}
