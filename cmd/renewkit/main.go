package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/renewkit/renewkit/pkg/audit"
	"github.com/renewkit/renewkit/pkg/config"
	"github.com/renewkit/renewkit/pkg/docstore"
	"github.com/renewkit/renewkit/pkg/environment"
	"github.com/renewkit/renewkit/pkg/gateway"
	"github.com/renewkit/renewkit/pkg/httpserver"
	"github.com/renewkit/renewkit/pkg/logger"
	"github.com/renewkit/renewkit/pkg/plan"
	"github.com/renewkit/renewkit/pkg/ratelimiter"
	"github.com/renewkit/renewkit/pkg/redis"
	"github.com/renewkit/renewkit/pkg/requestid"
	"github.com/renewkit/renewkit/pkg/webhookauth"
	"github.com/renewkit/renewkit/svc/lifecycle"
	"github.com/renewkit/renewkit/transport"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("renewkit exited", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return fmt.Errorf("load app config: %w", err)
	}

	log := logger.New(
		logger.WithEnvironment(cfg.Environment, cfg.AppName),
		logger.WithContextExtractors(
			requestid.LoggerExtractor(),
			environment.LoggerExtractor(),
		),
	)

	store, health, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore()

	trail := audit.NewTrail(store)
	reader := audit.NewReader(store)

	var whCfg webhookauth.Config
	if err := config.Load(&whCfg); err != nil {
		return fmt.Errorf("load webhook config: %w", err)
	}
	webhooks, err := webhookauth.New(whCfg, log)
	if err != nil {
		return fmt.Errorf("build webhook validator: %w", err)
	}

	var gwCfg gateway.Config
	if err := config.Load(&gwCfg); err != nil {
		return fmt.Errorf("load gateway config: %w", err)
	}
	client, err := gateway.NewClient(gwCfg)
	if err != nil {
		return fmt.Errorf("build gateway client: %w", err)
	}

	verifier, err := pickVerifier(cfg, client)
	if err != nil {
		return err
	}
	var cvCfg gateway.CrossValidatorConfig
	if err := config.Load(&cvCfg); err != nil {
		return fmt.Errorf("load cross-validator config: %w", err)
	}
	crossval := gateway.NewCrossValidator(verifier, cvCfg)

	catalog, err := plan.NewCatalog(ctx, plan.NewYAMLSource(cfg.PlansPath))
	if err != nil {
		return fmt.Errorf("load plan catalog %q: %w", cfg.PlansPath, err)
	}

	var retryCfg lifecycle.Config
	if err := config.Load(&retryCfg); err != nil {
		return fmt.Errorf("load retry config: %w", err)
	}

	service, err := lifecycle.NewService(lifecycle.Deps{
		Store:          store,
		Trail:          trail,
		Reader:         reader,
		Webhooks:       webhooks,
		CrossValidator: crossval,
		Initializer:    client,
		Charger:        client,
		Catalog:        catalog,
		Config:         retryCfg,
		Logger:         log,
	})
	if err != nil {
		return fmt.Errorf("build lifecycle service: %w", err)
	}

	limiter, err := buildLimiter(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build rate limiter: %w", err)
	}

	var httpCfg transport.Config
	if err := config.Load(&httpCfg); err != nil {
		return fmt.Errorf("load transport config: %w", err)
	}
	router := transport.NewRouter(transport.Deps{
		Engine:  service,
		Retrier: service.Scheduler(),
		Limiter: limiter,
		Logger:  log,
		Health:  health,
	}, httpCfg)

	var srvCfg httpserver.Config
	if err := config.Load(&srvCfg); err != nil {
		return fmt.Errorf("load http server config: %w", err)
	}
	srv := httpserver.NewFromConfig(srvCfg, httpserver.WithLogger(log))

	mux := http.NewServeMux()
	mux.Handle("/livez", httpserver.HealthCheckHandler(ctx, log))
	mux.Handle("/readyz", httpserver.HealthCheckHandler(ctx, log, health...))
	mux.Handle("/", router)

	handler := environment.Middleware(environment.Environment(cfg.Environment))(mux)
	return srv.Run(ctx, handler)
}

// openStore builds the configured record store and returns it with its
// readiness probes and a shutdown func.
func openStore(ctx context.Context, cfg appConfig) (docstore.Store, []func(context.Context) error, func(), error) {
	switch cfg.StorageDriver {
	case "memory":
		return docstore.NewMemoryStore(), nil, func() {}, nil

	case "mongo":
		var mongoCfg docstore.MongoConfig
		if err := config.Load(&mongoCfg); err != nil {
			return nil, nil, nil, err
		}
		store, err := docstore.NewMongoStore(ctx, mongoCfg)
		if err != nil {
			return nil, nil, nil, err
		}
		closer := func() { _ = store.Close(context.Background()) }
		return store, []func(context.Context) error{store.Healthcheck()}, closer, nil

	case "postgres":
		var pgCfg docstore.PostgresConfig
		if err := config.Load(&pgCfg); err != nil {
			return nil, nil, nil, err
		}
		store, err := docstore.NewPostgresStore(ctx, pgCfg)
		if err != nil {
			return nil, nil, nil, err
		}
		return store, []func(context.Context) error{store.Healthcheck()}, store.Close, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// pickVerifier selects where charge confirmations are re-verified.
func pickVerifier(cfg appConfig, client *gateway.Client) (gateway.Verifier, error) {
	switch cfg.VerifierDriver {
	case "gateway":
		return client, nil
	case "paddle":
		var paddleCfg gateway.PaddleConfig
		if err := config.Load(&paddleCfg); err != nil {
			return nil, fmt.Errorf("load paddle config: %w", err)
		}
		verifier, err := gateway.NewPaddleVerifier(paddleCfg)
		if err != nil {
			return nil, fmt.Errorf("build paddle verifier: %w", err)
		}
		return verifier, nil
	default:
		return nil, fmt.Errorf("unknown verifier driver %q", cfg.VerifierDriver)
	}
}

// buildLimiter assembles the per-IP token bucket, Redis-backed when the
// deployment runs more than one replica.
func buildLimiter(ctx context.Context, cfg appConfig) (ratelimiter.RateLimiter, error) {
	if cfg.RateLimitDisabled {
		return nil, nil
	}

	var store ratelimiter.Store
	if cfg.RateLimitRedis {
		var redisCfg redis.Config
		if err := config.Load(&redisCfg); err != nil {
			return nil, err
		}
		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return nil, err
		}
		store = ratelimiter.NewRedisStore(client)
	} else {
		store = ratelimiter.NewMemoryStore()
	}

	return ratelimiter.NewBucket(store, ratelimiter.Config{
		Capacity:       cfg.RateLimitCapacity,
		RefillRate:     cfg.RateLimitRefill,
		RefillInterval: cfg.RateLimitInterval,
	})
}
