package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"
	k8srest "k8s.io/client-go/rest"
	_ "modernc.org/sqlite"

	"github.com/freezegate/freezegate/internal/admission"
	"github.com/freezegate/freezegate/internal/apikeycache"
	"github.com/freezegate/freezegate/internal/audit"
	"github.com/freezegate/freezegate/internal/boundary"
	"github.com/freezegate/freezegate/internal/boundary/middleware"
	"github.com/freezegate/freezegate/internal/boundary/rest"
	"github.com/freezegate/freezegate/internal/clock"
	"github.com/freezegate/freezegate/internal/config"
	"github.com/freezegate/freezegate/internal/exemption"
	exemptionsqlstore "github.com/freezegate/freezegate/internal/exemption/sqlstore"
	"github.com/freezegate/freezegate/internal/history"
	historysqlstore "github.com/freezegate/freezegate/internal/history/sqlstore"
	"github.com/freezegate/freezegate/internal/logging"
	"github.com/freezegate/freezegate/internal/metrics"
	"github.com/freezegate/freezegate/internal/migrate"
	"github.com/freezegate/freezegate/internal/notify"
	"github.com/freezegate/freezegate/internal/schedule"
	"github.com/freezegate/freezegate/internal/store"
	"github.com/freezegate/freezegate/internal/store/k8sstore"
	"github.com/freezegate/freezegate/internal/store/memstore"
	"github.com/freezegate/freezegate/internal/template"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "start the admission webhook and REST server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootCfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	logger := logging.New(logging.Config{
		Level:      bootCfg.Log.Level,
		Format:     bootCfg.Log.Format,
		Output:     bootCfg.Log.Output,
		Filename:   bootCfg.Log.File,
		MaxSize:    bootCfg.Log.MaxSizeMB,
		MaxBackups: bootCfg.Log.MaxBackups,
		MaxAge:     bootCfg.Log.MaxAgeDays,
	})
	slog.SetDefault(logger)
	logger.Info("starting freezegate", "profile", bootCfg.Profile, "version", version)

	clk := clock.RealClock{}

	backend, err := buildStore(bootCfg, logger)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}

	schedules, err := schedule.NewStore(ctx, backend)
	if err != nil {
		return fmt.Errorf("schedule store: %w", err)
	}

	configs := config.NewLoader(backend, schedules, config.WithLogger(logger))
	if err := configs.Start(ctx); err != nil {
		return fmt.Errorf("config loader: %w", err)
	}
	defer configs.Stop()

	templates := template.NewEngine(clk, nil)
	if err := templates.LoadFromStore(ctx, backend); err != nil && !store.IsNotFound(err) {
		logger.Warn("failed to load templates record", "error", err)
	}

	db, closeDB, err := buildSQLDB(ctx, bootCfg, logger)
	if err != nil {
		return fmt.Errorf("sql store: %w", err)
	}
	if closeDB != nil {
		defer closeDB()
	}

	exemptionBackend := buildExemptionBackend(bootCfg, backend, db)
	exemptions, err := exemption.NewManager(ctx, exemptionBackend, clk)
	if err != nil {
		return fmt.Errorf("exemption manager: %w", err)
	}
	exemptions.StartSweeper(ctx, time.Minute)

	historyBackend := buildHistoryBackend(bootCfg, backend, db)
	histories, err := history.NewTracker(ctx, historyBackend, history.DefaultMaxEvents)
	if err != nil {
		return fmt.Errorf("history tracker: %w", err)
	}

	notifySinks, err := notify.LoadSinks(ctx, backend)
	if err != nil {
		logger.Warn("failed to load notification sink config", "error", err)
	}
	dispatcher := notify.NewDispatcher(notifySinks, logger)

	auditSinks := []audit.Sink{audit.NewLogSink(logger)}
	if bootCfg.Log.File != "" {
		fileSink, err := audit.NewFileSink(bootCfg.Log.File)
		if err != nil {
			logger.Warn("failed to open audit log file", "error", err)
		} else {
			auditSinks = append(auditSinks, fileSink)
		}
	}
	auditor := audit.NewSet(auditSinks, logger)

	engine := admission.New(clk, configs, exemptions, histories,
		admission.WithNotifier(dispatcher),
		admission.WithAuditor(auditor),
		admission.WithMetrics(metrics.Recorder{}),
		admission.WithLogger(logger),
	)

	restServer := rest.NewServer(backend, configs, schedules, exemptions, histories, templates, engine)

	authCfg, err := buildAuthConfig(bootCfg, configs, logger)
	if err != nil {
		return fmt.Errorf("auth config: %w", err)
	}

	router := boundary.NewRouter(boundary.RouterConfig{
		EnableAuth:         true,
		EnableRateLimit:    true,
		EnableCORS:         true,
		AuthConfig:         authCfg,
		RateLimitPerMinute: bootCfg.RateLimit.RequestsPerMinute,
		RateLimitBurst:     bootCfg.RateLimit.Burst,
		CORSConfig:         middleware.DefaultCORSConfig(),
		Logger:             logger,
		REST:               restServer,
		Webhook:            engine,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", bootCfg.Server.Host, bootCfg.Server.Port),
		Handler:      router,
		ReadTimeout:  bootCfg.Server.ReadTimeout,
		WriteTimeout: bootCfg.Server.WriteTimeout,
		IdleTimeout:  bootCfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", httpServer.Addr, "tls", bootCfg.TLS.Enabled)
		var serveErr error
		if bootCfg.TLS.Enabled {
			serveErr = httpServer.ListenAndServeTLS(bootCfg.TLS.CertFile, bootCfg.TLS.KeyFile)
		} else {
			serveErr = httpServer.ListenAndServe()
		}
		if serveErr != nil && serveErr != http.ErrServerClosed {
			errCh <- serveErr
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case serveErr := <-errCh:
		return fmt.Errorf("http server: %w", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), bootCfg.Server.GracefulShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		return err
	}
	logger.Info("server exited")
	return nil
}

// buildStore selects the External Resource Store adapter for the
// deployment profile: "memory" keeps everything in-process (tests, local
// dev), everything else talks to the cluster's ConfigMaps from the pod's
// in-cluster service account. When store.in_cluster is false, the other
// profiles also fall back to the in-memory store.
func buildStore(bootCfg *config.Config, logger *slog.Logger) (store.Store, error) {
	if bootCfg.Profile == config.ProfileMemory {
		logger.Info("using in-memory resource store")
		return memstore.New(), nil
	}
	if !bootCfg.Store.InCluster {
		logger.Warn("store.in_cluster is false outside the memory profile; falling back to in-memory store for local development")
		return memstore.New(), nil
	}
	k8sCfg := k8sstore.DefaultConfig(bootCfg.Store.Namespace)
	k8sCfg.Logger = logger
	s, err := k8sstore.NewInCluster(k8sCfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// sqlDialect reports the goose/sqlstore dialect pair for a profile that
// has a SQL schema, and false for profiles that don't.
func sqlDialect(profile config.DeploymentProfile) (migrate.Dialect, historysqlstore.Dialect, exemptionsqlstore.Dialect, bool) {
	switch profile {
	case config.ProfileStandard:
		return migrate.DialectPostgres, historysqlstore.DialectPostgres, exemptionsqlstore.DialectPostgres, true
	case config.ProfileLite:
		return migrate.DialectSQLite, historysqlstore.DialectSQLite, exemptionsqlstore.DialectSQLite, true
	default:
		return "", "", "", false
	}
}

// buildSQLDB opens and migrates the shared *sql.DB backing both the
// Exemption Manager and History Tracker's SQL-backed persistence for the
// "standard" (Postgres) and "lite" (embedded sqlite) profiles. Returns a
// nil db (and nil close func) for the "memory" profile, which persists
// into the resource store instead.
func buildSQLDB(ctx context.Context, bootCfg *config.Config, logger *slog.Logger) (*sql.DB, func(), error) {
	migrateDialect, _, _, hasSQL := sqlDialect(bootCfg.Profile)
	if !hasSQL {
		return nil, nil, nil
	}

	var (
		db  *sql.DB
		err error
	)
	switch bootCfg.Profile {
	case config.ProfileStandard:
		db, err = sql.Open("pgx", bootCfg.DatabaseURL())
		if err == nil {
			db.SetMaxOpenConns(bootCfg.Database.MaxConnections)
		}
	case config.ProfileLite:
		db, err = sql.Open("sqlite", bootCfg.Database.Database)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	if err := migrate.Up(ctx, db, migrateDialect, logger); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, func() { db.Close() }, nil
}

// buildExemptionBackend selects the Exemption Manager's persistence
// backend per profile: "standard"/"lite" use the shared SQL database,
// "memory" persists into the same resource store as everything else.
func buildExemptionBackend(bootCfg *config.Config, backend store.Store, db *sql.DB) exemption.Backend {
	if _, _, dialect, ok := sqlDialect(bootCfg.Profile); ok {
		return exemptionsqlstore.New(db, dialect)
	}
	return exemption.NewStoreBackend(backend)
}

// buildHistoryBackend mirrors buildExemptionBackend for the History
// Tracker, sharing the same *sql.DB when one was opened.
func buildHistoryBackend(bootCfg *config.Config, backend store.Store, db *sql.DB) history.Backend {
	if _, dialect, _, ok := sqlDialect(bootCfg.Profile); ok {
		return historysqlstore.New(db, dialect)
	}
	return history.NewStoreBackend(backend)
}

// buildAuthConfig wires the REST boundary's three-method auth chain: a
// TokenReview-backed clientset when running in-cluster, a static API key
// cache, and the non-strict opaque-token fallback gated by Strict.
func buildAuthConfig(bootCfg *config.Config, configs *config.Loader, logger *slog.Logger) (middleware.AuthConfig, error) {
	keyCache, err := apikeycache.New(4096, buildCacheOpts(bootCfg)...)
	if err != nil {
		return middleware.AuthConfig{}, err
	}

	cfg := middleware.AuthConfig{
		KeyCache: keyCache,
		Strict:   bootCfg.Auth.Strict,
		StaticAPIKeys: func() map[string]string {
			if bootCfg.Auth.APIKey == "" {
				return nil
			}
			return map[string]string{bootCfg.Auth.APIKey: bootCfg.Auth.APIKeyIdentity}
		},
		APIAllowedServiceAccounts: func() map[string]struct{} {
			if p := configs.GetConfig(); p != nil {
				return p.APIAllowedServiceAccounts
			}
			return nil
		},
	}

	if bootCfg.Store.InCluster {
		clientset, err := inClusterClientset()
		if err != nil {
			logger.Warn("token review disabled: failed to build in-cluster clientset", "error", err)
		} else {
			cfg.Reviewer = middleware.NewClientsetReviewer(clientset)
		}
	}
	return cfg, nil
}

func buildCacheOpts(bootCfg *config.Config) []apikeycache.Option {
	if bootCfg.Redis.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     bootCfg.Redis.Addr,
		Password: bootCfg.Redis.Password,
		DB:       bootCfg.Redis.DB,
	})
	opts := []apikeycache.Option{apikeycache.WithRedis(client)}
	if bootCfg.Redis.TTL > 0 {
		opts = append(opts, apikeycache.WithTTL(bootCfg.Redis.TTL))
	}
	return opts
}

func inClusterClientset() (kubernetes.Interface, error) {
	restCfg, err := k8srest.InClusterConfig()
	if err != nil {
		return nil, err
	}
	return kubernetes.NewForConfig(restCfg)
}
