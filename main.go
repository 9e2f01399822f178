package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/mongo"

	"greendrake/chat/internal/api"
	"greendrake/chat/internal/api/middleware"
	"greendrake/chat/internal/auth"
	"greendrake/chat/internal/cache"
	"greendrake/chat/internal/config"
	"greendrake/chat/internal/db"
	"greendrake/chat/internal/email"
	"greendrake/chat/internal/logging"
	"greendrake/chat/internal/realtime"
	"greendrake/chat/internal/services"
	"greendrake/chat/internal/storage"
	"greendrake/chat/internal/store"
	"greendrake/chat/internal/tasks"
)

var runMode = flag.String("m", "all", "Run mode: 'api', 'bg' (background tasks), 'all' (default)")

const shutdownTimeout = 15 * time.Second

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*runMode)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	switch cfg.RunMode {
	case "api", "bg", "all":
	default:
		logging.Fatal().Str("mode", cfg.RunMode).Msg("invalid run mode")
	}

	// Everything long-lived hangs off rootCtx; cancelling it stops the hub,
	// the relay and the limiter sweeper.
	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	startCtx, cancelStart := context.WithTimeout(rootCtx, 15*time.Second)
	defer cancelStart()

	// Initialize Database. The memory store still reads listings and users from
	// Mongo when MONGO_URI is given.
	var mongoDb *mongo.Database
	if cfg.MongoURI != "" {
		mongoClient, database, err := db.ConnectDB(startCtx, cfg.MongoURI, cfg.MongoDbName)
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer func() {
			if err := db.DisconnectDB(mongoClient); err != nil {
				logging.Error().Err(err).Msg("error disconnecting from MongoDB")
			}
		}()
		mongoDb = database
	}

	// Initialize Cache (Redis)
	redisClient, err := cache.ConnectRedis(startCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer func() {
		if err := cache.DisconnectRedis(redisClient); err != nil {
			logging.Error().Err(err).Msg("error disconnecting from Redis")
		}
	}()

	// Directories over the marketplace collections
	var listingService services.IListingService
	var userService services.IUserService
	if mongoDb != nil {
		listingService = services.NewListingService(mongoDb, redisClient, cfg)
		userService = services.NewUserService(mongoDb)
	} else {
		logging.Warn().Msg("no MONGO_URI: listing and user directories are empty")
		listingService = services.NewStaticListingService()
		userService = services.NewStaticUserService()
	}

	// Chat store
	var chatStore store.Store
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		logging.Warn().Msg("STORE_DRIVER=memory: threads and messages are lost on restart and not shared between processes")
		chatStore = store.NewMemoryStore()
	default:
		chatStore = store.NewMongoStore(mongoDb)
	}

	// Initialize Task Client
	taskClient := tasks.NewClient(redisClient)
	defer func() {
		if err := taskClient.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing task client")
		}
	}()
	reminders := tasks.NewReminderClient(taskClient, cfg.ChatReminderDelay)

	// WaitGroup for managing goroutines
	var wg sync.WaitGroup

	// Channel to signal shutdown from Service API
	shutdownChan := make(chan struct{}, 1)

	// Start Service API (always runs)
	serviceSrv := &http.Server{
		Addr:    ":" + cfg.ServiceApiPort,
		Handler: api.SetupServiceRouter(cfg, redisClient, shutdownChan),
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		logging.Info().Str("port", cfg.ServiceApiPort).Msg("service API listening")
		if err := serviceSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("service API ListenAndServe error")
		}
	}()

	// --- Mode-specific servers ---
	var mainApiSrv *http.Server
	var backgroundTaskSrv *asynq.Server

	logging.Info().Str("mode", cfg.RunMode).Str("store", cfg.StoreDriver).Msg("starting application")

	apiMode := func() {
		if mongoDb != nil && cfg.StoreDriver == config.StoreDriverMongo {
			if err := store.EnsureIndexes(startCtx, mongoDb); err != nil {
				logging.Fatal().Err(err).Msg("failed to ensure chat indexes")
			}
		}

		hub := realtime.NewHub()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = hub.RunWithContext(rootCtx)
		}()

		var emitter realtime.Emitter = hub
		if cfg.RealtimeRedisRelay {
			relay := realtime.NewRedisRelay(redisClient, hub)
			emitter = relay
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := relay.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
					logging.Error().Err(err).Msg("realtime relay stopped")
				}
			}()
		}

		limiter := middleware.NewSendLimiter(cfg)
		go limiter.Run(rootCtx)

		var attachments storage.IS3Storage
		if s3Storage, err := storage.NewS3Storage(cfg); err != nil {
			logging.Warn().Err(err).Msg("attachment uploads disabled")
		} else {
			attachments = s3Storage
		}

		chat := services.NewChatService(chatStore, listingService, emitter, reminders, cfg)
		mainApiSrv = &http.Server{
			Addr: ":" + cfg.ApiPort,
			Handler: api.SetupRouter(cfg, api.Deps{
				Chat:    chat,
				Hub:     hub,
				Emitter: emitter,
				Gateway: auth.NewGateway(cfg),
				Limiter: limiter,
				Storage: attachments,
			}),
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			logging.Info().Str("port", cfg.ApiPort).Msg("main API listening")
			if err := mainApiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Fatal().Err(err).Msg("main API ListenAndServe error")
			}
		}()
	}

	bgMode := func() {
		emailSender := email.NewSenderFromConfig(cfg, redisClient)
		templates := services.NewEmailTemplateService(mongoDb)
		taskProcessor := tasks.NewTaskProcessor(cfg, emailSender, chatStore, userService, listingService, templates)

		srv, mux := tasks.SetupServer(redisClient, taskProcessor)
		if err := srv.Start(mux); err != nil {
			logging.Fatal().Err(err).Msg("background task server failed to start")
		}
		backgroundTaskSrv = srv
		logging.Info().Msg("background task server started")
	}

	switch cfg.RunMode {
	case "api":
		apiMode()
	case "bg":
		bgMode()
	case "all":
		apiMode()
		bgMode()
	}

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logging.Info().Str("signal", sig.String()).Msg("shutting down gracefully")
	case <-shutdownChan:
		logging.Info().Msg("shutdown requested via service API")
	}

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	// Hijacked websocket connections are not tracked by http.Server, so the hub
	// closes them before the servers drain.
	cancelRoot()

	if err := serviceSrv.Shutdown(ctxShutdown); err != nil {
		logging.Error().Err(err).Msg("service API shutdown error")
	}
	if mainApiSrv != nil {
		if err := mainApiSrv.Shutdown(ctxShutdown); err != nil {
			logging.Error().Err(err).Msg("main API shutdown error")
		}
	}
	if backgroundTaskSrv != nil {
		backgroundTaskSrv.Shutdown()
	}

	logging.Info().Msg("waiting for servers to stop")
	wg.Wait()
	logging.Info().Msg("server gracefully stopped")
}
