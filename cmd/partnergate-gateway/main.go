package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/davidahmann/partnergate/internal/api"
	"github.com/davidahmann/partnergate/internal/auth"
	"github.com/davidahmann/partnergate/internal/config"
	"github.com/davidahmann/partnergate/internal/contracts"
	"github.com/davidahmann/partnergate/internal/governance"
	"github.com/davidahmann/partnergate/internal/ledger"
	"github.com/davidahmann/partnergate/internal/ledger/pgstore"
	"github.com/davidahmann/partnergate/internal/ledger/sqlstore"
	"github.com/davidahmann/partnergate/internal/metrics"
	"github.com/davidahmann/partnergate/internal/moderation"
	"github.com/davidahmann/partnergate/internal/outbox"
	"github.com/davidahmann/partnergate/internal/reference"
	"github.com/davidahmann/partnergate/internal/validation"
)

func main() {
	if err := runFn(os.Args[1:], os.Getenv, listenAndServe); err != nil {
		fatalf("server error: %v", err)
	}
}

var runFn = run
var fatalf = log.Fatalf

type envFn func(string) string
type listenFn func(*http.Server) error

// gateway is the wired service graph behind the HTTP server.
type gateway struct {
	server  *http.Server
	store   ledger.Store
	sink    outbox.Sink
	poll    time.Duration
	workers bool
	closers []func() error
}

func (g *gateway) Close() {
	for i := len(g.closers) - 1; i >= 0; i-- {
		_ = g.closers[i]()
	}
}

func run(args []string, getenv envFn, listen listenFn) error {
	fs := flag.NewFlagSet("partnergate-gateway", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to partnergate config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(firstNonEmpty(*configPath, getenv("PARTNERGATE_CONFIG_PATH")), getenv)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	g, err := build(cfg, logger)
	if err != nil {
		return err
	}
	defer g.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if g.workers {
		go outbox.RunWorker(ctx, g.store, g.sink, g.poll, logger.Named("outbox"))
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = g.server.Shutdown(shutdownCtx)
	}()

	logger.Info("partnergate-gateway listening",
		zap.String("addr", cfg.ListenAddr),
		zap.String("db_driver", cfg.DB.Driver),
		zap.String("unavailable_mode", cfg.Reference.UnavailableMode),
	)
	if err := listen(g.server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// loadConfig applies defaults, then the file, then PARTNERGATE_* env.
func loadConfig(path string, getenv envFn) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return config.Config{}, err
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	if cfg.Development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func build(cfg config.Config, logger *zap.Logger) (*gateway, error) {
	g := &gateway{poll: cfg.Outbox.PollInterval, workers: cfg.Outbox.Enabled}

	store, closeStore, err := openStore(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	g.store = store
	if closeStore != nil {
		g.closers = append(g.closers, closeStore)
	}

	registry, err := contracts.LoadDir(cfg.ContractsDir)
	if err != nil {
		g.Close()
		return nil, fmt.Errorf("load contracts: %w", err)
	}

	ref, closeCache, err := referenceStore(cfg.Reference, store, logger.Named("reference"))
	if err != nil {
		g.Close()
		return nil, err
	}
	if closeCache != nil {
		g.closers = append(g.closers, closeCache)
	}

	mode, err := validation.ParseUnavailableMode(cfg.Reference.UnavailableMode)
	if err != nil {
		g.Close()
		return nil, err
	}
	pipeline := validation.NewPipeline(ref, validation.Options{
		UnavailableMode: mode,
		MaxConcurrency:  cfg.Validation.MaxConcurrency,
	}, logger.Named("validation"))
	policies := governance.New(store, logger.Named("governance"))
	svc := moderation.NewService(store, registry, pipeline, policies, logger.Named("moderation"))

	if cfg.Outbox.WebhookURL != "" {
		g.sink = outbox.NewWebhookSink(cfg.Outbox.WebhookURL, 10*time.Second)
	} else {
		g.sink = outbox.LogSink{Log: logger.Named("outbox")}
	}

	tokens := make(map[string]auth.Actor, len(cfg.Auth.Tokens))
	for token, tc := range cfg.Auth.Tokens {
		tokens[token] = auth.Actor{ID: tc.Actor, Roles: tc.Roles}
	}

	h := &api.Handler{
		Auth:       auth.NewTokenAuthenticator(tokens),
		Moderation: svc,
		Policies:   policies,
		Contracts:  registry,
		Audit:      store,
		Log:        logger.Named("api"),
	}
	if cfg.Metrics.Enabled {
		h.Metrics = metrics.Handler()
	}

	g.server = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(h),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return g, nil
}

func openStore(cfg config.DBConfig) (ledger.Store, func() error, error) {
	switch cfg.Driver {
	case "", "memory":
		return ledger.NewInMemoryStore(), nil, nil
	case "sqlite":
		s, err := sqlstore.OpenSQLite(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := ledger.Migrate(s.DB(), ledger.DBSQLite); err != nil {
			_ = s.Close()
			return nil, nil, err
		}
		return s, s.Close, nil
	case "postgres":
		s, err := pgstore.OpenPostgres(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := ledger.Migrate(s.DB(), ledger.DBPostgres); err != nil {
			_ = s.Close()
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported db driver %q", cfg.Driver)
	}
}

// referenceStore layers cache over breaker+retry over the ledger's time_series.
func referenceStore(cfg config.ReferenceConfig, store ledger.Store, logger *zap.Logger) (reference.Store, func() error, error) {
	var ref reference.Store = reference.NewResilient(reference.NewLedgerStore(store), reference.ResilientOptions{
		MaxElapsed:      cfg.RetryMaxElapsed,
		BreakerFailures: cfg.BreakerFailures,
	}, logger)

	switch cfg.Cache.Driver {
	case "", "none":
		return ref, nil, nil
	case "memory":
		return reference.NewCached(ref, reference.NewMemoryCache(cfg.Cache.TTL, 2*cfg.Cache.TTL), cfg.Cache.TTL, logger), nil, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		return reference.NewCached(ref, reference.NewRedisCache(client), cfg.Cache.TTL, logger), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported reference cache driver %q", cfg.Cache.Driver)
	}
}

func listenAndServe(server *http.Server) error {
	return server.ListenAndServe()
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
