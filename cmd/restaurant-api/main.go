package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fjod/go_restaurant/internal/audit"
	"github.com/fjod/go_restaurant/internal/cache"
	"github.com/fjod/go_restaurant/internal/config"
	"github.com/fjod/go_restaurant/internal/health"
	resthttp "github.com/fjod/go_restaurant/internal/http"
	"github.com/fjod/go_restaurant/internal/publisher"
	"github.com/fjod/go_restaurant/internal/repository"
	"github.com/fjod/go_restaurant/internal/service"
	"github.com/fjod/go_restaurant/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log.Desugar())

	if err := run(cfg, log); err != nil {
		log.Fatalw("restaurant-api stopped with error", "error", err)
	}
	log.Info("restaurant-api stopped")
}

func run(cfg *config.Config, log *zap.SugaredLogger) error {
	log.Infow("restaurant-api starting", "driver", cfg.Database.Driver, "port", cfg.HTTP.Port)

	creds := &repository.Credentials{
		Driver:            cfg.Database.Driver,
		Path:              cfg.Database.Path,
		Host:              cfg.Database.Host,
		Port:              cfg.Database.Port,
		User:              cfg.Database.User,
		Password:          cfg.Database.Password,
		DBName:            cfg.Database.Name,
		MigrationsDirPath: cfg.Database.MigrationsPath(),
	}

	repo, err := repository.NewRepository(creds)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer repo.Close()

	if err := repo.RunMigrations(creds); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database migrations completed")

	fee, err := cfg.Checkout.Fee()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cartCache, closeCache := newCartCache(ctx, cfg.Redis, log)
	defer closeCache()

	recorder, closeRecorder := newRecorder(ctx, cfg.MongoDB, log)
	defer closeRecorder()

	carts := service.NewCartService(repo, cartCache, log)
	orders := service.NewOrderService(repo, cartCache, recorder, log)
	defer orders.Close()
	checkout := service.NewCheckoutService(repo, fee, cfg.Checkout.SessionTTL, log)

	router := resthttp.NewRouter(resthttp.RouterConfig{
		RequestTimeout:     cfg.HTTP.RequestTimeout,
		MaxRequestBodySize: cfg.HTTP.MaxRequestBodySize,
		Auth: resthttp.AuthConfig{
			JWTSecret:         cfg.Auth.JWTSecret,
			SessionCookieName: cfg.Auth.SessionCookieName,
			SessionCookieTTL:  cfg.Auth.SessionCookieTTL,
			SecureCookies:     cfg.Auth.SecureCookies,
		},
	}, resthttp.Services{
		Menu:     repo,
		Carts:    carts,
		Checkout: checkout,
		Orders:   orders,
		DB:       repo,
	}, log)

	if cfg.Auth.JWTSecret == "" {
		log.Warn("auth.jwt_secret is empty, bearer tokens will be rejected")
	}

	var wg sync.WaitGroup
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	if len(cfg.Kafka.Brokers) > 0 {
		poller := publisher.NewOutboxPoller(repo, publisher.Config{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			PollInterval: cfg.Kafka.PollInterval,
			PruneEvery:   cfg.Kafka.PruneEvery,
			Retention:    cfg.Kafka.Retention,
			BatchSize:    cfg.Kafka.BatchSize,
		}, log)
		defer poller.Close()

		wg.Add(1)
		go func() {
			defer wg.Done()
			poller.Run(workerCtx)
		}()
		log.Infow("outbox poller started", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	} else {
		log.Warn("no kafka brokers configured, order events stay in the outbox")
	}

	var healthServer *health.Server
	if cfg.GRPC.HealthPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.GRPC.HealthPort)
		if err != nil {
			return fmt.Errorf("failed to listen on health port: %w", err)
		}
		healthServer = health.NewServer(repo, cfg.GRPC.CheckInterval, log)

		wg.Add(1)
		go func() {
			defer wg.Done()
			healthServer.Watch(workerCtx)
		}()
		go func() {
			log.Infow("grpc health listening", "port", cfg.GRPC.HealthPort)
			if err := healthServer.Serve(lis); err != nil {
				log.Errorw("grpc health server failed", "error", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infow("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("http server forced to shutdown", "error", err)
	}
	if healthServer != nil {
		healthServer.Stop()
	}

	cancelWorkers()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("background workers stopped cleanly")
	case <-shutdownCtx.Done():
		log.Warn("background workers did not stop in time")
	}
	return nil
}

// newCartCache disables caching when redis is not configured. A configured but
// unreachable redis is still used: the breaker keeps it off the request path
// until it answers again.
func newCartCache(ctx context.Context, cfg config.RedisConfig, log *zap.SugaredLogger) (cache.CartCache, func()) {
	if cfg.Addr == "" {
		log.Info("redis not configured, cart cache disabled")
		return cache.NopCache{}, func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warnw("redis unreachable at startup", "addr", cfg.Addr, "error", err)
	} else {
		log.Infow("cart cache enabled", "addr", cfg.Addr)
	}

	carts := cache.NewRedisCache(client, cache.RedisOptions{
		KeyPrefix: cfg.KeyPrefix,
		TTL:       cfg.CartTTL,
		MaxJitter: cfg.CartJitter,
	})
	guarded := cache.NewBreakerCache(carts, cache.BreakerSettings{
		MaxFailures: cfg.BreakerFailures,
		OpenTimeout: cfg.BreakerTimeout,
	}, log)
	return guarded, func() { client.Close() }
}

func newRecorder(ctx context.Context, cfg config.MongoDBConfig, log *zap.SugaredLogger) (audit.Recorder, func()) {
	if cfg.URI == "" {
		log.Info("mongodb not configured, order audit disabled")
		return audit.Nop{}, func() {}
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := audit.ConnectMongoDB(connectCtx, cfg.URI, cfg.Database)
	if err != nil {
		log.Warnw("mongodb unreachable, order audit disabled", "error", err)
		return audit.Nop{}, func() {}
	}

	recorder := audit.NewMongoRecorder(db, cfg.Collection)
	if err := recorder.CreateIndexes(connectCtx); err != nil {
		log.Warnw("failed to create audit indexes", "error", err)
	}

	return recorder, func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.Client().Disconnect(disconnectCtx); err != nil {
			log.Warnw("failed to disconnect mongodb", "error", err)
		}
	}
}
