package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/trustedcoder/typira-home/internal/config"
	"github.com/trustedcoder/typira-home/internal/database"
	"github.com/trustedcoder/typira-home/internal/handlers"
	"github.com/trustedcoder/typira-home/internal/jobs"
	"github.com/trustedcoder/typira-home/internal/logging"
	"github.com/trustedcoder/typira-home/internal/middleware"
	"github.com/trustedcoder/typira-home/internal/oracle"
	"github.com/trustedcoder/typira-home/internal/services"
	"github.com/trustedcoder/typira-home/pkg/auth"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("ℹ️ No .env file found, using environment variables")
	}

	logging.Init()
	cfg := config.Load()

	// MySQL is required: fragments and schedules live there.
	if cfg.DatabaseURL == "" {
		log.Fatal("❌ DATABASE_URL is required")
	}
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to MySQL: %v", err)
	}
	defer db.Close()
	if err := db.Initialize(); err != nil {
		log.Fatalf("❌ Failed to initialize database schema: %v", err)
	}

	// MongoDB is optional: without it memories, push tokens and usage stats
	// are disabled but ingestion and dispatch still run.
	var mongoDB *database.MongoDB
	if cfg.MongoURI != "" {
		mongoDB, err = database.NewMongoDB(cfg.MongoURI)
		if err != nil {
			log.Printf("⚠️ MongoDB unavailable, memory features disabled: %v", err)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			if err := mongoDB.Initialize(ctx); err != nil {
				log.Printf("⚠️ Failed to create MongoDB indexes: %v", err)
			}
			cancel()
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				mongoDB.Close(ctx)
			}()
		}
	}

	var redisService *services.RedisService
	if cfg.RedisURL != "" {
		redisService, err = services.NewRedisService(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️ Redis unavailable, notifications and dispatch locks disabled: %v", err)
			redisService = nil
		} else {
			defer redisService.Close()
		}
	}

	metrics := services.InitMetrics()

	// Oracle client with hot-reloadable provider config.
	provider, err := config.LoadOracleProvider(cfg.OracleConfigPath)
	if err != nil {
		log.Printf("⚠️ Oracle provider not configured, fingerprinting falls back to local labels: %v", err)
		provider = &config.OracleProvider{}
	}
	oracleClient := oracle.NewClient(provider, cfg.OracleTimeout, cfg.OracleRate)
	go watchOracleConfig(cfg.OracleConfigPath, oracleClient)

	// Core services.
	fragmentStore := services.NewFragmentStore(db)
	scheduleStore := services.NewScheduleStore(db)
	actionStore := services.NewActionStore(db)
	scheduleService := services.NewScheduleService(scheduleStore)
	fingerprintService := services.NewFingerprintService(oracleClient, cfg.OracleTimeout, metrics)

	var memoryService *services.MemoryStorageService
	var insightAccumulator *services.InsightAccumulator
	var notificationService *services.NotificationService
	if mongoDB != nil {
		memoryService = services.NewMemoryStorageService(mongoDB)
		insightAccumulator = services.NewInsightAccumulator(mongoDB)
		notificationService = services.NewNotificationService(mongoDB, redisService)
	} else {
		notificationService = services.NewNotificationService(nil, redisService)
	}

	var accumulator services.UsageAccumulator
	if insightAccumulator != nil {
		accumulator = insightAccumulator
	}
	ingestionService := services.NewIngestionService(fragmentStore, fingerprintService,
		accumulator, metrics, cfg.AbsorptionWindow, cfg.IngestQueueSize)

	var memoryStore services.MemoryStore
	if memoryService != nil {
		memoryStore = memoryService
	}
	var insightRecorder services.InsightRecorder
	if insightAccumulator != nil {
		insightRecorder = insightAccumulator
	}
	dispatcher := services.NewDispatcherService(scheduleStore, fragmentStore, memoryStore,
		actionStore, oracleClient, notificationService, insightRecorder, redisService, metrics)
	if err := dispatcher.Start(); err != nil {
		log.Fatalf("❌ Failed to start schedule dispatcher: %v", err)
	}

	// Background maintenance jobs.
	jobScheduler := jobs.NewJobScheduler()
	jobScheduler.Register("retention_cleanup", jobs.NewRetentionCleanupJob(fragmentStore, cfg.RetentionDays))
	jobScheduler.Start()

	// Auth.
	var jwtAuth *auth.LocalJWTAuth
	if cfg.JWTSecret != "" {
		jwtAuth, err = auth.NewLocalJWTAuth(cfg.JWTSecret, 0)
		if err != nil {
			log.Fatalf("❌ Failed to initialize JWT auth: %v", err)
		}
	} else {
		log.Println("⚠️ JWT_SECRET not set, auth runs in development bypass mode")
	}

	// Fiber app.
	app := fiber.New(fiber.Config{
		AppName:      "Typira v1.0",
		ReadTimeout:  120 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    1 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	prometheus := fiberprometheus.New("typira")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: allowedOrigins != "*",
	}))

	// Handlers.
	healthHandler := handlers.NewHealthHandler(db, mongoDB, redisService, jobScheduler)
	ingestHandler := handlers.NewIngestHandler(ingestionService)
	ingestWSHandler := handlers.NewIngestWebSocketHandler(ingestionService)
	scheduleHandler := handlers.NewScheduleHandler(scheduleService, dispatcher)
	memoryHandler := handlers.NewMemoryHandler(memoryService, fragmentStore, actionStore,
		notificationService, insightAccumulator)

	// Routes.
	app.Get("/health", healthHandler.Handle)

	authRequired := middleware.AuthMiddleware(jwtAuth)

	app.Use("/ws", handlers.UpgradeGuard)
	app.Get("/ws/ingest", authRequired, websocket.New(ingestWSHandler.HandleConnection))

	api := app.Group("/api/v1", authRequired)
	api.Post("/ingest", ingestHandler.Ingest)

	api.Post("/schedules", scheduleHandler.Create)
	api.Get("/schedules", scheduleHandler.List)
	api.Get("/schedules/:id", scheduleHandler.Get)
	api.Put("/schedules/:id", scheduleHandler.Update)
	api.Delete("/schedules/:id", scheduleHandler.Delete)
	api.Post("/schedules/:id/trigger", scheduleHandler.Trigger)

	api.Get("/memories", memoryHandler.ListMemories)
	api.Get("/typing-history", memoryHandler.TypingHistory)
	api.Get("/actions", memoryHandler.ListActions)
	api.Post("/actions", memoryHandler.RecordAction)
	api.Post("/notifications/token", memoryHandler.SaveNotificationToken)
	api.Get("/stats", memoryHandler.Stats)

	log.Printf("🚀 Typira backend starting on port %s", cfg.Port)
	log.Printf("⌨️ Ingest endpoint: ws://localhost:%s/ws/ingest", cfg.Port)
	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)

	// Graceful shutdown.
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		dispatcher.Stop()
		jobScheduler.Stop()

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}

		// After the HTTP/WS surface is down no handler can enqueue, so the
		// ingestion drain sees the final event set.
		ingestionService.Stop()
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}

// watchOracleConfig hot-reloads the Oracle provider when oracle.json changes
func watchOracleConfig(filePath string, client *oracle.Client) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("⚠️ Failed to create oracle config watcher: %v", err)
		return
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		log.Printf("⚠️ Failed to resolve %s: %v", filePath, err)
		watcher.Close()
		return
	}

	// Watch the directory: editors replace files instead of writing in place.
	dir := filepath.Dir(absPath)
	filename := filepath.Base(absPath)
	if err := watcher.Add(dir); err != nil {
		log.Printf("⚠️ Failed to watch %s: %v", dir, err)
		watcher.Close()
		return
	}

	log.Printf("👁️ Watching %s for changes (hot-reload enabled)", filePath)

	var debounceTimer *time.Timer
	const debounceDuration = 500 * time.Millisecond

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, func() {
					provider, err := config.LoadOracleProvider(filePath)
					if err != nil {
						log.Printf("❌ Failed to reload oracle config: %v", err)
						return
					}
					client.UpdateProvider(provider)
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️ Oracle config watcher error: %v", err)
		}
	}
}
