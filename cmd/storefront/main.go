package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/fjod/tranex/internal/auth"
	"github.com/fjod/tranex/internal/cart"
	"github.com/fjod/tranex/internal/catalog"
	"github.com/fjod/tranex/internal/config"
	"github.com/fjod/tranex/internal/events"
	"github.com/fjod/tranex/internal/fragment"
	h "github.com/fjod/tranex/internal/http"
	"github.com/fjod/tranex/internal/preferences"
	"github.com/fjod/tranex/internal/storage"
	"github.com/fjod/tranex/pkg/circuitbreaker"
	"github.com/fjod/tranex/pkg/logger"
)

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.New(logger.Config{Service: "storefront"}).Fatal("failed to load config", zap.Error(err))
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logger.Level,
		Encoding:   cfg.Logger.Encoding,
		TimeFormat: cfg.Logger.TimeFormat,
		Service:    "storefront",
	})
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := make(map[string]h.Pinger)

	// Redis backs session storage, the catalog cache, or both.
	var redisClient *redis.Client
	if cfg.Storage.Backend == "redis" || cfg.Catalog.Cache {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatal("failed to connect to redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		checks["redis"] = redisPinger{client: redisClient}
	}

	var st storage.Storage
	switch cfg.Storage.Backend {
	case "redis":
		st = storage.NewRedisStorage(redisClient, "", 0)
	case "mongo":
		connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		db, err := storage.ConnectMongoDB(connectCtx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			cancel()
			log.Fatal("failed to connect to mongodb", zap.Error(err))
		}
		mongoStorage := storage.NewMongoStorage(db, cfg.Mongo.Collection)
		if err := mongoStorage.CreateIndexes(connectCtx); err != nil {
			log.Warn("failed to create storage indexes", zap.Error(err))
		}
		cancel()
		defer func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = db.Client().Disconnect(disconnectCtx)
		}()
		st = mongoStorage
	default:
		st = storage.NewMemoryStorage()
	}
	checks["storage"] = st
	log.Info("session storage ready", zap.String("backend", cfg.Storage.Backend))

	var products catalog.Catalog
	switch cfg.Catalog.Backend {
	case "supabase":
		breaker := circuitbreaker.New("supabase-catalog", circuitbreaker.DefaultConfig(), log)
		products = catalog.NewSupabaseCatalog(cfg.Supabase.URL, cfg.Supabase.AnonKey, cfg.Supabase.Timeout, breaker, log)
	default:
		sqlite, err := catalog.NewSQLiteCatalog(cfg.Catalog.DBPath)
		if err != nil {
			log.Fatal("failed to open catalog database", zap.Error(err))
		}
		defer sqlite.Close()
		if err := sqlite.RunMigrations(cfg.Catalog.MigrationsPath); err != nil {
			log.Fatal("failed to run catalog migrations", zap.Error(err))
		}
		products = sqlite
	}
	if cfg.Catalog.Cache {
		products = catalog.NewCachedCatalog(products, redisClient, cfg.Catalog.CacheTTL, log)
	}
	loader := catalog.NewLoader(products, cfg.Catalog.PageSize, log)
	log.Info("catalog ready", zap.String("backend", cfg.Catalog.Backend), zap.Bool("cached", cfg.Catalog.Cache))

	registry := cart.NewRegistry(st, cfg.Cart.StorageKey, log)

	bg := newBackground()
	bg.Go(func(ctx context.Context) {
		registry.RunJanitor(ctx, cfg.Cart.EvictInterval, cfg.Cart.IdleTimeout)
	})

	if brokers := cfg.Kafka.BrokerList(); len(brokers) > 0 {
		publisher := events.NewPublisher(events.NewKafkaWriter(cfg.Kafka.Topic, brokers...), cfg.Kafka.Buffer, log)
		registry.OnNewStore(publisher.Subscriber)
		bg.Go(publisher.Run)
		defer func() {
			if err := publisher.Close(); err != nil {
				log.Warn("failed to close kafka writer", zap.Error(err))
			}
		}()

		consumer := events.NewCheckoutConsumer(
			events.NewKafkaReader(cfg.Kafka.CheckoutTopic, cfg.Kafka.GroupID, brokers...), registry, log)
		bg.Go(consumer.Run)
		defer func() {
			if err := consumer.Close(); err != nil {
				log.Warn("failed to close kafka reader", zap.Error(err))
			}
		}()
		log.Info("cart events enabled", zap.Strings("brokers", brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	prefs := preferences.NewService(st, log)

	// An untyped nil keeps the auth endpoints answering 503.
	var authService h.AuthService
	if cfg.Supabase.URL != "" && cfg.Supabase.AnonKey != "" {
		breaker := circuitbreaker.New("supabase-auth", circuitbreaker.DefaultConfig(), log)
		provider := auth.NewGoTrueClient(cfg.Supabase.URL, cfg.Supabase.AnonKey, cfg.Supabase.Timeout, breaker)
		authService = auth.NewService(provider, st, cfg.Supabase.PasswordResetURL, log)
	} else {
		log.Warn("supabase is not configured, authentication disabled")
	}

	var fragments fs.FS = fragment.Embedded()
	if cfg.Fragments.Dir != "" {
		fragments = os.DirFS(cfg.Fragments.Dir)
	}

	shipping, err := cfg.Cart.Shipping()
	if err != nil {
		log.Fatal("invalid shipping fee", zap.Error(err))
	}

	router := h.NewRouter(h.RouterConfig{
		Cart:          h.NewCartHandler(registry, products, shipping, cfg.HTTP.RequestTimeout, log),
		Products:      h.NewProductHandler(loader, cfg.HTTP.RequestTimeout),
		Auth:          h.NewAuthHandler(authService, prefs, cfg.HTTP.RequestTimeout),
		Preferences:   h.NewPreferencesHandler(prefs),
		Fragments:     h.NewFragmentHandler(fragment.NewLoader(fragments), prefs),
		Health:        h.NewHealthHandler(checks, 2*time.Second),
		Log:           log,
		Timeout:       cfg.HTTP.RequestTimeout,
		SecureCookies: cfg.HTTP.SecureCookies,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      otelhttp.NewHandler(router, "storefront"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.HTTP.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("storefront starting", zap.String("port", cfg.HTTP.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	shutdown(shutdownCtx, srv, bg, log)

	log.Info("server exited")
}
