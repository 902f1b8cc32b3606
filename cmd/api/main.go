package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"

	"github.com/bryanwahyu/sonarscan-api/internal/application"
	appai "github.com/bryanwahyu/sonarscan-api/internal/application/ai"
	appscans "github.com/bryanwahyu/sonarscan-api/internal/application/scans"
	"github.com/bryanwahyu/sonarscan-api/internal/config"
	"github.com/bryanwahyu/sonarscan-api/internal/domain/ai"
	"github.com/bryanwahyu/sonarscan-api/internal/domain/analyst"
	"github.com/bryanwahyu/sonarscan-api/internal/domain/scanerrors"
	"github.com/bryanwahyu/sonarscan-api/internal/domain/scans"
	openaiclient "github.com/bryanwahyu/sonarscan-api/internal/infra/ai/openai"
	mysqlp "github.com/bryanwahyu/sonarscan-api/internal/infra/db/mysql"
	pgp "github.com/bryanwahyu/sonarscan-api/internal/infra/db/postgres"
	dockerrunner "github.com/bryanwahyu/sonarscan-api/internal/infra/executor/docker"
	"github.com/bryanwahyu/sonarscan-api/internal/infra/executor/sonarscanner"
	"github.com/bryanwahyu/sonarscan-api/internal/infra/httpserver"
	"github.com/bryanwahyu/sonarscan-api/internal/infra/sonarqube"
	minioStore "github.com/bryanwahyu/sonarscan-api/internal/infra/storage"
	"github.com/bryanwahyu/sonarscan-api/internal/infra/workspace"
	"github.com/bryanwahyu/sonarscan-api/internal/logging"
	"github.com/bryanwahyu/sonarscan-api/internal/middleware"
)

// history bundles the optional persistence adapters of one driver.
type history struct {
	db       *sql.DB
	scans    scans.Repository
	errors   scanerrors.Repository
	insights analyst.Repository
}

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.Log.Debug)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx := context.Background()
	health := map[string]middleware.HealthChecker{}

	// scan history, optional
	hist, err := openHistory(ctx, cfg)
	if err != nil {
		logger.Fatal("database init error", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}
	if hist.db != nil {
		defer hist.db.Close()
		health["database"] = &middleware.DatabaseHealthChecker{DB: hist.db}
		logger.Info("scan history enabled", zap.String("driver", cfg.Database.Driver))
	}

	// scanner log archive, optional
	var logs scans.LogStore
	if cfg.Minio.Endpoint != "" {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			logger.Fatal("minio init error", zap.Error(err))
		}
		logs = store
		logger.Info("scanner log archive enabled", zap.String("bucket", cfg.Minio.BucketName))
	}

	backend := sonarqube.NewClient(cfg.Sonar.HostURL, cfg.Sonar.Timeout)
	health["sonarqube"] = backend

	// init runner
	var runner scans.Runner
	switch cfg.Scanner.Runtime {
	case "docker":
		runner = dockerrunner.NewRunner(cfg.Scanner.Image, cfg.Sonar.HostURL, cfg.Scanner.Timeout)
		health["scanner"] = &middleware.ExecutableChecker{Path: "docker"}
	default:
		runner = sonarscanner.NewRunner(cfg.Scanner.Path, cfg.Sonar.HostURL, cfg.Scanner.Timeout)
		health["scanner"] = &middleware.ExecutableChecker{Path: cfg.Scanner.Path}
	}
	health["git"] = &middleware.ExecutableChecker{Path: cfg.Scanner.Git}
	health["workspace"] = &middleware.WritableDirChecker{
		Dirs: []string{cfg.Workspace.Root, cfg.Workspace.UploadsRoot},
	}

	ws := workspace.NewManager(
		cfg.Workspace.Root,
		cfg.Workspace.UploadsRoot,
		cfg.Workspace.DefaultExt,
		cfg.Scanner.Git,
		cfg.Workspace.MaxArchiveBytes,
	)

	// init service
	svc := &appscans.Service{
		Workspaces: ws,
		Runner:     runner,
		Backend:    backend,
		Repo:       hist.scans,
		ScanErrors: hist.errors,
		Logs:       logs,
		Clock:      application.SystemClock{},
		Retry:      appscans.RetryPolicy{Interval: cfg.Polling.Interval, MaxWait: cfg.Polling.MaxWait},
		Token:      cfg.Sonar.Token,
		Logger:     logger,
	}

	var summarizer ai.Client
	if cfg.OpenAI.APIKey != "" {
		summarizer = openaiclient.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
		logger.Info("report insights enabled", zap.String("model", cfg.OpenAI.Model))
	}
	insights := appai.NewService(svc, summarizer, hist.insights, application.SystemClock{}, logger)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	done := make(chan struct{})
	defer close(done)
	go limiter.Run(done)

	handler := httpserver.NewRouter(httpserver.Deps{
		Scans:          svc,
		Insights:       insights,
		Health:         health,
		Limiter:        limiter,
		Logger:         logger,
		SonarHost:      cfg.Sonar.HostURL,
		CORSOrigins:    cfg.Server.CORSOrigins,
		MaxUploadBytes: cfg.Workspace.MaxUploadBytes,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// run server
	go func() {
		logger.Info("server listening",
			zap.String("addr", addr),
			zap.String("sonar_host", cfg.Sonar.HostURL),
			zap.String("scanner_runtime", cfg.Scanner.Runtime),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down server")

	ctx2, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

// openHistory connects and migrates the configured database. An empty
// driver leaves every repository nil.
func openHistory(ctx context.Context, cfg *config.Config) (history, error) {
	var h history
	switch cfg.Database.Driver {
	case "mysql":
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return h, err
		}
		if err := mysqlp.Migrate(db); err != nil {
			db.Close()
			return h, err
		}
		h.db = db
		h.scans = mysqlp.NewScanRepository(db)
		h.errors = mysqlp.NewScanErrorRepository(db)
		h.insights = mysqlp.NewInsightRepository(db)
	case "postgres":
		db, err := pgp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return h, err
		}
		if err := pgp.Migrate(db); err != nil {
			db.Close()
			return h, err
		}
		h.db = db
		h.scans = pgp.NewScanRepository(db)
		h.errors = pgp.NewScanErrorRepository(db)
		h.insights = pgp.NewInsightRepository(db)
	}
	return h, nil
}
