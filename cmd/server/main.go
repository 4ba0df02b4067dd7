package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/annel0/autotile/internal/api"
	"github.com/annel0/autotile/internal/auth"
	"github.com/annel0/autotile/internal/autotile"
	"github.com/annel0/autotile/internal/cache"
	"github.com/annel0/autotile/internal/config"
	"github.com/annel0/autotile/internal/eventbus"
	"github.com/annel0/autotile/internal/logging"
	"github.com/annel0/autotile/internal/network"
	"github.com/annel0/autotile/internal/observability"
	"github.com/annel0/autotile/internal/storage"
	"github.com/annel0/autotile/internal/tileset"
	"github.com/annel0/autotile/internal/world"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (иначе AUTOTILE_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}
	if cfg.Server.LogLevel != "" && os.Getenv("LOG_LEVEL") == "" {
		os.Setenv("LOG_LEVEL", cfg.Server.LogLevel)
	}

	if err := logging.InitDefaultLogger("server"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()

	if err := run(cfg); err != nil {
		logging.Error("❌ %v", err)
		logging.CloseDefaultLogger()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nodeID := cfg.Server.NodeID
	logging.Info("🧱 Запуск autotile сервера (node=%s)", nodeID)

	shutdownTelemetry, err := observability.InitTelemetry(ctx, cfg.Telemetry.ServiceName, nodeID, cfg.Telemetry.Enabled)
	if err != nil {
		logging.Warn("⚠️ OpenTelemetry не инициализирован: %v", err)
		shutdownTelemetry = func(context.Context) error { return nil }
	}
	defer shutdownTelemetry(context.Background())

	if cfg.Auth.JWTSecret != "" {
		if err := auth.SetJWTSecret(cfg.Auth.JWTSecret); err != nil {
			return fmt.Errorf("jwt secret: %w", err)
		}
	} else {
		logging.Warn("⚠️ auth.jwt_secret не задан, токены станут недействительны после перезапуска")
	}

	// === Определения тайлов ===
	tilesets, err := openTilesets(cfg.Tilesets)
	if err != nil {
		return fmt.Errorf("tilesets: %w", err)
	}
	defer tilesets.Close()

	registry := autotile.NewRegistry()
	if _, err := tileset.Sync(ctx, tilesets, registry); err != nil {
		return fmt.Errorf("tileset sync: %w", err)
	}

	// === Хранилище карт ===
	mapStorage, err := storage.NewMapStorage(cfg.Storage.DataPath)
	if err != nil {
		return fmt.Errorf("map storage: %w", err)
	}
	defer mapStorage.Close()

	// === Шина событий ===
	bus, closeBus, err := openBus(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("eventbus: %w", err)
	}
	defer closeBus()
	eventbus.Init(bus)
	if err := eventbus.StartLoggingListener(bus); err != nil {
		logging.Warn("⚠️ LoggingListener не запущен: %v", err)
	}
	busMetrics := eventbus.NewMetricsExporter(bus, nil)
	busMetrics.Start()
	defer busMetrics.Stop()

	manager := world.NewManager(world.Options{
		Registry:    registry,
		Store:       mapStorage,
		Bus:         bus,
		Source:      nodeID,
		EventBuffer: cfg.EventBus.Buffer,
	})

	// === Кеш клеток ===
	cells, closeCache, err := openCellCache(ctx, cfg.Cache, nodeID)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer closeCache()
	manager.AddListener(cells)

	// === Лента перерисовок ===
	var feed *network.FeedServer
	if cfg.Feed.Enabled {
		feed = network.NewFeedServer(network.FeedConfig{
			Addr:       fmt.Sprintf(":%d", cfg.Server.GetFeedPort()),
			FlushEvery: time.Duration(cfg.Feed.FlushEvery) * time.Millisecond,
			BatchSize:  cfg.Feed.BatchSize,
		})
		if cfg.Feed.RequireToken {
			feed.SetTokenValidator(auth.ValidateToken)
		}
		if err := feed.Start(); err != nil {
			return err
		}
		defer feed.Stop()
		manager.AddListener(feed)
	}

	manager.Run(ctx, time.Duration(cfg.Storage.SaveEverySec)*time.Second)

	// === REST API ===
	users, err := seedUsers(cfg.Auth)
	if err != nil {
		return fmt.Errorf("users: %w", err)
	}
	rest := api.NewRestServer(api.Config{
		Addr:     fmt.Sprintf(":%d", cfg.Server.GetRESTPort()),
		Manager:  manager,
		Tilesets: tilesets,
		Cells:    cells,
		UserRepo: users,
	})
	restErr := make(chan error, 1)
	go func() { restErr <- rest.Start() }()

	// === gRPC health ===
	grpcServer, err := startHealthServer(cfg.Server.GetGRPCPort())
	if err != nil {
		return err
	}
	defer grpcServer.GracefulStop()

	logging.Info("✅ Все сервисы запущены")
	logging.Info("   🌐 REST API: http://localhost:%d", cfg.Server.GetRESTPort())
	if feed != nil {
		logging.Info("   📡 Лента перерисовок: kcp://%s", feed.Addr())
	}
	logging.Info("   ❤️  gRPC health: :%d", cfg.Server.GetGRPCPort())

	select {
	case <-ctx.Done():
		logging.Info("📡 Получен сигнал завершения")
	case err := <-restErr:
		if err != nil {
			logging.Error("❌ REST API остановлен: %v", err)
		}
	}

	// === GRACEFUL SHUTDOWN ===
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := rest.Stop(shutdownCtx); err != nil {
		logging.Error("Ошибка остановки REST API: %v", err)
	}
	if err := manager.Stop(shutdownCtx); err != nil {
		logging.Error("Ошибка сохранения карт: %v", err)
		return err
	}
	logging.Info("👋 Сервер остановлен, карты сохранены")
	return nil
}

func openTilesets(cfg config.TilesetConfig) (tileset.Repository, error) {
	switch cfg.Backend {
	case "memory":
		return tileset.NewMemoryRepository(tileset.DefaultDefinitions()...), nil
	case "json":
		return tileset.NewJSONRepository(cfg.JSONDir)
	case "maria":
		return tileset.NewMariaRepository(tileset.MariaConfig{
			Host:     cfg.Maria.Host,
			Port:     cfg.Maria.Port,
			Database: cfg.Maria.Database,
			Username: cfg.Maria.Username,
			Password: cfg.Maria.Password,
		})
	case "mongo":
		return tileset.NewMongoRepository(tileset.MongoConfig{
			URI:        cfg.Mongo.URI,
			Database:   cfg.Mongo.Database,
			Collection: cfg.Mongo.Collection,
		})
	default:
		return nil, fmt.Errorf("unknown tileset backend %q", cfg.Backend)
	}
}

func openBus(cfg config.EventBusConfig) (eventbus.EventBus, func(), error) {
	switch cfg.Backend {
	case "memory":
		return eventbus.NewMemoryBus(cfg.Buffer), func() {}, nil
	case "jetstream":
		bus, err := eventbus.NewJetStreamBus(cfg.URL, cfg.Stream, time.Duration(cfg.Retention)*time.Hour)
		if err != nil {
			return nil, nil, err
		}
		return bus, func() { bus.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown eventbus backend %q", cfg.Backend)
	}
}

// openCellCache выбирает Redis с NATS инвалидацией, если кеш включён, иначе память процесса
func openCellCache(ctx context.Context, cfg config.CacheConfig, nodeID string) (*cache.CellCache, func(), error) {
	if !cfg.Enabled {
		return cache.NewCellCache(cache.NewMemoryCache(nil), cfg.TTL), func() {}, nil
	}

	var (
		invalidator *cache.NATSInvalidator
		inv         cache.CacheInvalidator
	)
	if cfg.NATSURL != "" {
		n, err := cache.NewNATSInvalidator(&cache.InvalidatorConfig{
			NATSURL: cfg.NATSURL,
			Subject: cfg.Subject,
		}, nodeID)
		if err != nil {
			return nil, nil, err
		}
		invalidator, inv = n, n
	}

	repo, err := cache.NewRedisCache(&cache.CacheConfig{
		RedisURL:      cfg.RedisURL,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		DefaultTTL:    cfg.TTL,
	}, inv)
	if err != nil {
		if invalidator != nil {
			invalidator.Close()
		}
		return nil, nil, err
	}

	cells := cache.NewCellCache(repo, cfg.TTL)
	if invalidator != nil {
		if err := invalidator.SubscribeInvalidations(ctx, cells.HandleInvalidation); err != nil {
			repo.Close()
			invalidator.Close()
			return nil, nil, err
		}
	}

	closeFn := func() {
		repo.Close()
		if invalidator != nil {
			invalidator.Close()
		}
	}
	return cells, closeFn, nil
}

// seedUsers создаёт учётные записи из конфигурации. Без записей создаётся
// admin со случайным паролем, который пишется в лог один раз.
func seedUsers(cfg config.AuthConfig) (*auth.MemoryUserRepo, error) {
	repo := auth.NewMemoryUserRepo()
	for _, u := range cfg.Users {
		if _, err := repo.Seed(u.Username, u.Password, u.Admin); err != nil {
			return nil, fmt.Errorf("seed %s: %w", u.Username, err)
		}
	}
	if len(cfg.Users) > 0 {
		logging.Info("👤 Учётных записей: %d", len(cfg.Users))
		return repo, nil
	}

	password, err := auth.GenerateSecureSecret()
	if err != nil {
		return nil, err
	}
	password = password[:16]
	if _, err := repo.Seed("admin", password, true); err != nil {
		return nil, err
	}
	logging.Warn("⚠️ auth.users пуст, создан admin с паролем %s", password)
	return repo, nil
}

func startHealthServer(port int) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("grpc listen: %w", err)
	}

	srv := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus("autotile", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	go func() {
		if err := srv.Serve(lis); err != nil {
			logging.Error("gRPC health остановлен: %v", err)
		}
	}()
	return srv, nil
}
