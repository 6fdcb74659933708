package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/idmx-dev/poolhouse/internal/appregistry"
	"github.com/idmx-dev/poolhouse/internal/bootstrap"
	"github.com/idmx-dev/poolhouse/internal/config"
	"github.com/idmx-dev/poolhouse/internal/flow"
	"github.com/idmx-dev/poolhouse/internal/flow/enginemem"
	httpserver "github.com/idmx-dev/poolhouse/internal/http"
	"github.com/idmx-dev/poolhouse/internal/identity"
	"github.com/idmx-dev/poolhouse/internal/metrics"
	"github.com/idmx-dev/poolhouse/internal/mfa"
	"github.com/idmx-dev/poolhouse/internal/observability/logger"
	"github.com/idmx-dev/poolhouse/internal/security/password"
	"github.com/idmx-dev/poolhouse/internal/store"

	// Los adapters se registran vía init().
	_ "github.com/idmx-dev/poolhouse/internal/store/adapters/pg"
	_ "github.com/idmx-dev/poolhouse/internal/store/adapters/redis"
)

func main() {
	configPath := flag.String("config", "config.yaml", "ruta del archivo de configuración")
	flag.Parse()

	// .env es opcional; las env vars del sistema siguen valiendo sin él.
	_ = godotenv.Load()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.L().Fatal("config load failed", logger.Err(err))
	}

	logger.Init(logger.Config{Env: cfg.App.Env, ServiceName: "poolhouse"})
	defer func() { _ = logger.Sync() }()
	log := logger.Named("main")

	if err := metrics.RegisterStore(prometheus.DefaultRegisterer); err != nil {
		log.Fatal("metrics registration failed", logger.Err(err))
	}
	if err := metrics.RegisterFlow(prometheus.DefaultRegisterer); err != nil {
		log.Fatal("metrics registration failed", logger.Err(err))
	}

	store.Configure(store.AdapterConfig{
		Name:         cfg.Storage.Driver,
		DSN:          cfg.Storage.DSN,
		MaxOpenConns: cfg.Storage.Postgres.MaxOpenConns,
		MaxIdleConns: cfg.Storage.Postgres.MaxIdleConns,
		RedisAddr:    cfg.Storage.Redis.Addr,
		RedisDB:      cfg.Storage.Redis.DB,
		RedisPrefix:  cfg.Storage.Redis.Prefix,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := store.Active(ctx)
	if err != nil {
		log.Fatal("store connect failed", logger.Backend(cfg.Storage.Driver), logger.Err(err))
	}
	defer func() { _ = store.Reset() }()
	log.Info("store connected", logger.Backend(conn.Name()))

	if err := bootstrap.EnsureDefaultPool(ctx, conn, cfg); err != nil {
		log.Fatal("bootstrap failed", logger.Err(err))
	}

	accounts := identity.NewService(conn, identityOptions(cfg, log)...)
	registry := appregistry.New(conn)
	mfaSvc := mfa.NewService(conn, cfg.MFA.Issuer, cfg.MFA.BackupCodeCount)
	sessions := flow.NewSessionStore(cfg.Flow.InteractionTTL)

	// Engine en memoria: alcanza para desarrollo y para correr el flow
	// punta a punta. En producción el engine real vive en otro proceso y
	// este binario se reconstruye contra su client.
	engine := enginemem.New(cfg.Flow.InteractionTTL, accounts)
	orch := flow.NewOrchestrator(engine, accounts, mfaSvc, sessions, conn, cfg.Flow.AuthorizationEndpoint)

	router := httpserver.NewRouter(conn, accounts, registry, orch)

	log.Info("listening", logger.String("addr", cfg.Server.Addr), logger.String("env", cfg.App.Env))
	if err := httpserver.Start(ctx, cfg.Server.Addr, router); err != nil {
		log.Fatal("server stopped", logger.Err(err))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.FromEnv()
	}
	return config.Load(path)
}

func identityOptions(cfg *config.Config, log *zap.Logger) []identity.Option {
	opts := []identity.Option{
		identity.WithDefaultPolicy(password.Policy{
			MinLength:     cfg.Security.PasswordPolicy.MinLength,
			RequireUpper:  cfg.Security.PasswordPolicy.RequireUpper,
			RequireLower:  cfg.Security.PasswordPolicy.RequireLower,
			RequireDigit:  cfg.Security.PasswordPolicy.RequireDigit,
			RequireSymbol: cfg.Security.PasswordPolicy.RequireSymbol,
		}),
	}
	if p := cfg.Security.PasswordBlacklistPath; p != "" {
		bl, err := password.LoadBlacklist(p)
		if err != nil {
			log.Warn("password blacklist not loaded", logger.String("path", p), logger.Err(err))
		} else {
			opts = append(opts, identity.WithBlacklist(bl))
		}
	}
	return opts
}
