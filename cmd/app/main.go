package main

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/ReilBleem13/ChatRelay/internal/config"
	"github.com/ReilBleem13/ChatRelay/internal/logger"
	"github.com/ReilBleem13/ChatRelay/internal/repository"
	"github.com/ReilBleem13/ChatRelay/internal/repository/cache"
	"github.com/ReilBleem13/ChatRelay/internal/repository/database"
	"github.com/ReilBleem13/ChatRelay/internal/server"
	"github.com/ReilBleem13/ChatRelay/internal/service"
	"github.com/joho/godotenv"
)

type mentionNotifier interface {
	service.NotifierIn
	Close() error
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logg, err := logger.New(logger.Options{
		Mode:       cfg.Log.Mode,
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logg.Sync()

	ctx := context.Background()

	db, err := database.NewPostgresClient(cfg.Database.DSN())
	if err != nil {
		logg.Fatal("Failed to connect to database", "error", err)
	}
	logg.Info("Database inited")

	if err := database.Migrate(db); err != nil {
		logg.Fatal("Failed to migrate up", "error", err)
	}
	logg.Info("Migrations completed")

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logg.Fatal("Failed to connect to redis", "error", err)
	}
	logg.Info("Redis inited")

	var notifier mentionNotifier
	switch strings.ToLower(cfg.Notify.Mode) {
	case config.NotifyModeKafka:
		notifier = repository.NewKafkaNotifier(cfg.Notify.KafkaBrokers, cfg.Notify.KafkaTopic)
	default:
		notifier = repository.NewRedisNotifier(redisClient)
	}
	logg.Info("Mention notifier ready", "mode", cfg.Notify.Mode)

	messageRepo := repository.NewMessageRepo(db)
	groupRepo := repository.NewGroupRepo(db)
	chatCache := repository.NewChatCache(redisClient)
	presence := repository.NewPresenceRepo(redisClient, cfg.Chat.PresenceTTL)
	relay := repository.NewRedisRelay(redisClient, cfg.Chat.ChannelPrefix, logg)

	hub := service.NewHub(relay, logg)
	heartbeat := service.NewHeartbeatService(presence, relay, logg)
	realtimeSrv := service.NewRealtimeService(hub, heartbeat, logg)
	groupSrv := service.NewGroupService(groupRepo, chatCache, presence, cfg.Chat.GroupCacheTTL, logg)
	chatSrv := service.NewChatService(groupRepo, messageRepo, chatCache, relay, notifier, service.ChatConfig{
		GroupCacheTTL:    cfg.Chat.GroupCacheTTL,
		MessageCacheTTL:  cfg.Chat.MessageCacheTTL,
		MaxMessageLength: cfg.Chat.MaxMessageLength,
	}, logg)

	handler := server.NewHandler(chatSrv, groupSrv, realtimeSrv, cfg.Chat.SendBufferSize, logg)

	opts := []server.Option{
		server.WithShutdownTimeout(cfg.App.ShutdownTimeout),
		server.WithShutdownHook("hub", hub.Shutdown),
		server.WithShutdownHook("relay", func(context.Context) error { return relay.Close() }),
		server.WithShutdownHook("notifier", func(context.Context) error { return notifier.Close() }),
		server.WithShutdownHook("redis", func(context.Context) error { return redisClient.Close() }),
	}
	if cfg.Database.MigrateDownOnExit {
		opts = append(opts, server.WithShutdownHook("migrate down", func(context.Context) error {
			return database.MigrateDown(db)
		}))
	}
	opts = append(opts, server.WithShutdownHook("database", func(context.Context) error { return db.Close() }))

	srv := server.NewServer(handler, cfg.JWT.Secret, logg, opts...)

	start := time.Now()
	if err := srv.Run(":" + cfg.App.Port); err != nil {
		logg.Error("Server stopped with errors", "error", err, "uptime", time.Since(start))
		return
	}
	logg.Info("Bye", "uptime", time.Since(start))
}
