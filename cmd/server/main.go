package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/commentreply/internal/adapter/action"
	"github.com/pscheid92/commentreply/internal/adapter/filestore"
	"github.com/pscheid92/commentreply/internal/adapter/generator"
	"github.com/pscheid92/commentreply/internal/adapter/httpserver"
	"github.com/pscheid92/commentreply/internal/adapter/metrics"
	"github.com/pscheid92/commentreply/internal/adapter/postgres"
	"github.com/pscheid92/commentreply/internal/adapter/redis"
	"github.com/pscheid92/commentreply/internal/adapter/websocket"
	"github.com/pscheid92/commentreply/internal/app"
	"github.com/pscheid92/commentreply/internal/compose"
	"github.com/pscheid92/commentreply/internal/delivery"
	"github.com/pscheid92/commentreply/internal/domain"
	"github.com/pscheid92/commentreply/internal/platform/config"
	"github.com/pscheid92/commentreply/internal/platform/logging"
	"github.com/pscheid92/commentreply/internal/platform/version"
	"github.com/pscheid92/commentreply/internal/registry"
	"github.com/pscheid92/commentreply/internal/trigger"
)

const (
	startupTimeout  = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

type components struct {
	srv       *httpserver.Server
	service   *app.Service
	engine    *app.Engine
	registry  *registry.Registry
	scheduler *delivery.Scheduler
	stopFans  context.CancelFunc
}

func runGracefulShutdown(c components) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := c.srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		c.stopFans()
		slog.Info("Closing sessions", "sessions", c.registry.Count())
		c.registry.Stop()
		c.scheduler.Stop()
		c.service.Wait()
		c.engine.Stop()

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// setupConfigSource returns the configured source and a cleanup func.
func setupConfigSource(ctx context.Context, cfg *config.Config) (domain.ConfigSource, func()) {
	if cfg.ConfigSource != config.SourcePostgres {
		slog.Info("Reading monitored users from directory", "dir", cfg.ConfigDir)
		return filestore.NewDir(cfg.ConfigDir), func() {}
	}

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	return postgres.NewConfigSource(pool), pool.Close
}

func setupRedis(ctx context.Context, cfg *config.Config, m *metrics.RedisMetrics) *goredis.Client {
	if cfg.RedisURL == "" {
		slog.Info("REDIS_URL not set, reloads stay local to this instance")
		return nil
	}
	client, err := redis.NewClient(ctx, cfg.RedisURL, m)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupGenerator(cfg *config.Config, clock clockwork.Clock, m *metrics.GeneratorMetrics) []compose.Option {
	opts := []compose.Option{
		compose.WithTimeout(cfg.AITimeout),
		compose.WithMaxRunes(cfg.AIMaxReplyRunes),
		compose.WithLocation(cfg.Location()),
	}

	gen, err := generator.New(cfg, clock, m)
	if err != nil {
		slog.Error("Failed to create text generator", "error", err)
		os.Exit(1)
	}
	if gen != nil {
		slog.Info("Text generation enabled", "provider", cfg.AIProvider, "model", cfg.AIModel)
		opts = append(opts, compose.WithGenerator(gen))
	}
	return opts
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "version", version.Get().String(), "env", cfg.AppEnv, "port", cfg.Port)

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), startupTimeout)
	defer cancelStartup()

	reg := metrics.NewRegistry()
	wsMetrics := metrics.NewWebSocketMetrics(reg)
	configMetrics := metrics.NewConfigMetrics(reg)

	configs, closeConfigs := setupConfigSource(startupCtx, cfg)
	defer closeConfigs()

	redisClient := setupRedis(startupCtx, cfg, metrics.NewRedisMetrics(reg))
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	sessions := registry.New(clock, registry.WithReplaceHook(func(old domain.Session) {
		wsMetrics.SessionsReplaced.Inc()
		slog.Info("Session replaced by newer handshake", "handle", old.Handle, "session_id", old.ID())
	}))

	scheduler := delivery.NewScheduler(sessions, clock, metrics.NewDeliveryMetrics(reg),
		delivery.WithChunkLimit(cfg.ChunkLimit),
		delivery.WithSendTimeout(cfg.SendTimeout))

	engine := app.NewEngine(
		rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		trigger.WithBroadcasterMatching(cfg.MatchBroadcasterByID),
	)
	engine.Start()

	composer := compose.New(clock, setupGenerator(cfg, clock, metrics.NewGeneratorMetrics(reg))...)

	serviceOpts := []app.Option{app.WithChunkDelay(cfg.ChunkDelay)}
	if cfg.ActionsEnabled {
		serviceOpts = append(serviceOpts, app.WithActions(action.NewRunner(clock), cfg.ActionTimeout))
	}

	var fanout *redis.ReloadFanout
	if redisClient != nil {
		fanout = redis.NewReloadFanout(redisClient, uuid.NewString(), configMetrics)
		serviceOpts = append(serviceOpts, app.WithReloadPublisher(fanout))
	}

	service := app.NewService(engine, configs, sessions, composer, scheduler, clock,
		metrics.NewCommentMetrics(reg), configMetrics, serviceOpts...)

	res, err := service.ReloadLocal(startupCtx, "")
	if err != nil {
		slog.Error("Failed to load monitored users", "error", err)
		os.Exit(1)
	}
	slog.Info("Monitored users loaded", "users", res.Users)

	fanCtx, stopFans := context.WithCancel(context.Background())
	if fanout != nil {
		go func() {
			if err := fanout.Start(fanCtx, service, nil); err != nil {
				slog.Error("Reload subscription stopped", "error", err)
			}
		}()
	}

	wsHandler := websocket.NewHandler(service, sessions, scheduler, clock, wsMetrics,
		websocket.WithCheckOrigin(websocket.NewCheckOrigin(cfg.WSAllowedOrigins, cfg.IsDevelopment())),
		websocket.WithInfoWindow(cfg.InfoRequestWindow),
		websocket.WithReadLimit(cfg.WSReadLimit),
		websocket.WithConnectionLimits(cfg.WSMaxConnections, cfg.WSMaxConnectionsIP),
	)

	healthChecks := []httpserver.HealthCheck{
		{Name: "config_source", Check: service.Ready},
	}
	if fanout != nil {
		healthChecks = append(healthChecks, httpserver.HealthCheck{Name: "redis", Check: fanout.Ping})
	}

	srv := httpserver.NewServer(cfg, clock, wsHandler, metrics.Handler(reg), metrics.NewHTTPMetrics(reg), healthChecks)

	done := runGracefulShutdown(components{
		srv:       srv,
		service:   service,
		engine:    engine,
		registry:  sessions,
		scheduler: scheduler,
		stopFans:  stopFans,
	})

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
