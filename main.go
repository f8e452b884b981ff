package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"codeisles-arena/config"
	"codeisles-arena/handlers"
	"codeisles-arena/middleware"
	"codeisles-arena/notify"
	"codeisles-arena/services"
	"codeisles-arena/store"
	"codeisles-arena/utils"
	"codeisles-arena/workers"
)

func main() {
	cfg, err := config.Load()
	utils.InitLogger(cfg.LogLevel, cfg.LogPretty)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := openStore(cfg)
	notifier, closeNotifier := openNotifier(ctx, cfg)
	defer closeNotifier()

	matchmaking := services.NewMatchmakingService(st, notifier, cfg.BattleDuration())
	battles := services.NewBattleService(st, notifier, cfg.SubscriptionPoll())
	players := services.NewPlayerService(st)

	if cfg.R2Enabled() {
		archive, err := utils.NewR2Archive(ctx, cfg.CloudflareAccountID, cfg.R2AccessKeyID, cfg.R2AccessKeySecret, cfg.R2BucketName)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize R2 client")
		}
		battles.Archive = archive
		log.Info().Str("bucket", cfg.R2BucketName).Msg("✅ Submission archive enabled")
	}

	if ttl := cfg.QueueEntryTTL(); ttl > 0 {
		sched, err := matchmaking.StartEvictionScheduler(ttl, cfg.QueueEvictInterval())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to start queue eviction scheduler")
		}
		defer func() { _ = sched.Shutdown() }()
		log.Info().Dur("ttl", ttl).Msg("✅ Queue eviction running")
	}

	if cfg.SyncServiceURL != "" {
		workers.NewPlayerSyncWorker(st, cfg.SyncServiceURL, "/api/v1/public/profiles", cfg.GameServiceToken).Start(ctx)
	}

	var validator middleware.TokenValidator
	if cfg.AuthServiceURL != "" {
		validator = services.NewAuthServiceClient(cfg.AuthServiceURL, cfg.GameServiceToken)
	}

	app := fiber.New(fiber.Config{
		AppName:     "codeisles-arena",
		IdleTimeout: 2 * time.Minute,
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed, stream routes may use an auth-service token instead
	bypass := []string{}
	if validator != nil {
		bypass = append(bypass, "/stream/", "/ws/")
	}
	app.Use(middleware.GatewayAuthMiddleware(cfg.GameServiceToken, bypass...))

	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.Origins(), ","),
		AllowMethods:     "GET,POST,DELETE,OPTIONS,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Name, X-User-Roles, X-Device-ID, Cache-Control",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	handlers.SetupBattleRoutes(app, &handlers.BattleHandler{
		Matchmaking: matchmaking,
		Battles:     battles,
		Players:     players,
		Store:       st,
	}, middleware.StreamAuthMiddleware(cfg.GameServiceToken, validator))

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error().Err(err).Msg("Server error")
		}
	}()

	log.Info().Str("port", cfg.Port).Str("store", cfg.StoreDriver).Str("notifier", cfg.NotifierDriver).Msg("✅ Server running")

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}

func openStore(cfg config.Config) store.Store {
	if cfg.StoreDriver == config.StoreDriverMemory {
		log.Warn().Msg("⚠️  STORE_DRIVER=memory, battles are lost on restart")
		return store.NewMemoryStore()
	}
	st, err := store.OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	return st
}

func openNotifier(ctx context.Context, cfg config.Config) (notify.Notifier, func()) {
	if cfg.NotifierDriver != config.NotifierDriverRedis {
		return notify.NewHub(), func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.RedisAddress).Msg("failed to connect to redis")
	}
	return notify.NewRedisNotifier(client), func() { _ = client.Close() }
}
