package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"fundpilot/internal/config"
	"fundpilot/internal/database"
	"fundpilot/internal/handlers"
	"fundpilot/internal/jobs"
	"fundpilot/internal/logging"
	"fundpilot/internal/middleware"
	"fundpilot/internal/retrieval"
	"fundpilot/internal/services"
	"fundpilot/internal/tools"
	"fundpilot/pkg/auth"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting FundPilot Server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, Keys: %d)", cfg.Port, len(cfg.OpenAIKeys))

	if len(cfg.OpenAIKeys) == 0 {
		log.Fatal("❌ OPENAI_KEYS environment variable is required (JSON array of upstream API keys)")
	}

	// Initialize MongoDB (optional - memory-only mode without it)
	var mongoDB *database.MongoDB
	var ledger services.SessionLedger
	var orgService *services.OrgService
	var convStore *services.ConversationStore

	if cfg.MongoURI != "" {
		log.Println("🔗 Connecting to MongoDB...")
		var err error
		mongoDB, err = database.NewMongoDB(cfg.MongoURI)
		if err != nil {
			log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
		}
		defer mongoDB.Close(context.Background())
		log.Println("✅ MongoDB connected successfully")

		ledger = services.NewMongoSessionLedger(mongoDB)
		orgService = services.NewOrgService(mongoDB)
		convStore = services.NewConversationStore(mongoDB)
	} else {
		if os.Getenv("ENVIRONMENT") == "production" {
			log.Fatal("❌ MONGODB_URI is required in production")
		}
		log.Println("⚠️  MONGODB_URI not set - running with in-memory sessions (development mode)")
		ledger = services.NewMemorySessionLedger()
	}

	// Core state
	keyPool := services.NewKeyPool(cfg.OpenAIKeys)
	bufferService := services.NewBufferService(cfg.BufferTurns)
	sessionService := services.NewSessionService(ledger, keyPool, bufferService, orgService, cfg.SessionTTL)

	// Prometheus metrics
	metrics := services.InitMetrics(keyPool)
	log.Println("✅ Prometheus metrics initialized")

	// Upstream model client
	llmClient := services.NewOpenAIClient(cfg.LLMBaseURL, cfg.LLMFallbackModel, cfg.LLMMaxRetries, cfg.LLMTimeout)
	summarizer := services.NewSummarizer(llmClient, cfg.SummaryModel, cfg.SummaryWordLimit)

	// Knowledge retrieval
	retriever := retrieval.NewHTTPRetriever(cfg.RetrieverURL)

	// Tool registry
	registry := tools.NewRegistry()
	mustRegister := func(tool *tools.Tool) {
		if err := registry.Register(tool); err != nil {
			log.Fatalf("❌ Failed to register tool: %v", err)
		}
	}
	mustRegister(tools.NewKnowledgeLookupTool(retriever))
	if cfg.PlatformAPIURL != "" {
		platform := tools.NewPlatformClient(cfg.PlatformAPIURL)
		mustRegister(tools.NewSearchClientTool(platform))
		mustRegister(tools.NewListInvestmentsTool(platform))
		mustRegister(tools.NewSchemeDetailsTool(platform))
		mustRegister(tools.NewPurchaseOrderTool(platform))
	} else {
		log.Println("⚠️  PLATFORM_API_URL not set - transactional tools disabled")
	}
	log.Printf("✅ Tool registry initialized with %d tools", registry.Count())

	// A nil *OrgService must stay a nil interface inside the orchestrator
	var gateToggle services.AuthGateToggle
	if orgService != nil {
		gateToggle = orgService
	}

	orchestrator := services.NewOrchestrator(
		cfg, sessionService, keyPool, bufferService, convStore,
		gateToggle, retriever, llmClient, summarizer, registry, metrics,
	)

	// Session token signing
	var tokenAuth *auth.SessionTokenAuth
	if cfg.JWTSecret != "" {
		var err error
		tokenAuth, err = auth.NewSessionTokenAuth(cfg.JWTSecret, cfg.SessionTTL)
		if err != nil {
			log.Fatalf("❌ Failed to initialize session token auth: %v", err)
		}
		log.Println("✅ Session token auth initialized")
	} else {
		if os.Getenv("ENVIRONMENT") == "production" {
			log.Fatal("❌ JWT_SECRET is required in production")
		}
		log.Println("⚠️  JWT_SECRET not set - session tokens disabled (development mode)")
	}

	// Background jobs
	cleanupJob := jobs.NewSessionCleanupJob(ledger, keyPool, bufferService, metrics, cfg.CleanupInterval, cfg.CleanupTimeout)
	jobScheduler := jobs.NewJobScheduler()
	jobScheduler.Register("session_cleanup", cleanupJob)
	jobScheduler.Start()
	log.Println("✅ Background job scheduler started")

	// Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "FundPilot v1.0",
		ReadTimeout:  120 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    1 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	// Prometheus metrics middleware
	prometheus := fiberprometheus.New("fundpilot")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	// Rate limiting
	rateLimitConfig := middleware.LoadRateLimitConfig()
	log.Printf("🛡️  [RATE-LIMIT] Loaded config: Global=%d/min, Auth=%d/min, Ask=%d/min, WS=%d/min",
		rateLimitConfig.GlobalAPIMax,
		rateLimitConfig.AuthMax,
		rateLimitConfig.AskMax,
		rateLimitConfig.WebSocketMax,
	)

	// CORS configuration with environment-based origins
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:5173,http://localhost:3000"
		log.Println("⚠️  ALLOWED_ORIGINS not set, using development defaults")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Admin-Key",
		AllowCredentials: allowedOrigins != "*",
	}))
	log.Printf("🔒 [SECURITY] CORS allowed origins: %s", allowedOrigins)

	app.Use("/api", middleware.GlobalAPIRateLimiter(rateLimitConfig))

	// Handlers
	healthHandler := handlers.NewHealthHandler(keyPool, mongoDB != nil)
	sessionHandler := handlers.NewSessionHandler(sessionService, tokenAuth)
	chatHandler := handlers.NewChatHandler(orchestrator, sessionService, bufferService)
	adminHandler := handlers.NewAdminHandler(cleanupJob, keyPool, bufferService)
	streamHandler := handlers.NewStreamHandler(orchestrator, sessionService)

	// Routes
	app.Get("/health", healthHandler.Handle)

	api := app.Group("/api")
	api.Post("/auth", middleware.AuthRateLimiter(rateLimitConfig), sessionHandler.HandleAuth)

	sessionAuth := middleware.SessionAuthMiddleware(tokenAuth)
	api.Post("/ask", sessionAuth, middleware.AskRateLimiter(rateLimitConfig), chatHandler.HandleAsk)
	api.Post("/reset", sessionAuth, chatHandler.HandleReset)
	api.Post("/disconnect", sessionAuth, chatHandler.HandleDisconnect)

	admin := api.Group("/", middleware.AdminMiddleware(cfg))
	admin.Post("/cleanup/expired-sessions", adminHandler.HandleCleanupExpired)
	admin.Get("/debug/keys", adminHandler.HandleKeyUsage)
	admin.Get("/debug/assignments", adminHandler.HandleKeyAssignments)
	admin.Get("/debug/buffers", adminHandler.HandleBuffers)
	admin.Get("/debug/buffers/:session_id", adminHandler.HandleBuffer)

	// WebSocket route (requires session token)
	app.Use("/ws/ask", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Use("/ws/ask", middleware.WebSocketRateLimiter(rateLimitConfig))
	app.Use("/ws/ask", sessionAuth)
	app.Get("/ws/ask", websocket.New(streamHandler.Handle))

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		jobScheduler.Stop()

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}
