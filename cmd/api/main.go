package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/clarifai/backend/internal/api/handlers"
	"github.com/clarifai/backend/internal/cache/redis"
	"github.com/clarifai/backend/internal/evaluation"
	"github.com/clarifai/backend/internal/explain"
	"github.com/clarifai/backend/internal/graph/neo4j"
	"github.com/clarifai/backend/internal/llm"
	"github.com/clarifai/backend/internal/metrics"
	"github.com/clarifai/backend/internal/middleware/auth"
	"github.com/clarifai/backend/internal/middleware/ratelimit"
	"github.com/clarifai/backend/internal/middleware/security"
	"github.com/clarifai/backend/internal/middleware/validation"
	"github.com/clarifai/backend/internal/notes"
	"github.com/clarifai/backend/internal/session"
	"github.com/clarifai/backend/internal/storage/sqlite"
	"github.com/clarifai/backend/internal/transcription"
	"github.com/clarifai/backend/pkg/config"
	appLogger "github.com/clarifai/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Lecture Assistant API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	// Redis and Neo4j are optional: the services degrade to uncached,
	// graph-less operation when they are unavailable.
	var cacheClient *redis.Client
	if c, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTLSec); err != nil {
		appLogger.Warn("Redis unavailable, running without cache", zap.Error(err))
	} else {
		cacheClient = c
		defer cacheClient.Close()
	}

	var graphClient *neo4j.Client
	if cfg.Neo4j.Enabled {
		g, err := neo4j.NewClient(cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, cfg.Neo4j.Database)
		if err != nil {
			appLogger.Warn("Neo4j unavailable, running without concept graph", zap.Error(err))
		} else {
			graphClient = g
			defer graphClient.Close(context.Background())
		}
	}

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
		cfg.LLM.TimeoutSec,
	)

	var explainCache explain.Cache
	var notesCache notes.Cache
	var evalCache evaluation.Cache
	var counters handlers.Counters
	if cacheClient != nil {
		explainCache = cacheClient
		notesCache = cacheClient
		evalCache = cacheClient
		counters = cacheClient
	}
	var conceptGraph explain.Graph
	var flagGraph handlers.ConceptGraph
	if graphClient != nil {
		conceptGraph = graphClient
		flagGraph = graphClient
	}

	notesService := notes.NewService(llmClient, notesCache)
	explainService := explain.NewService(llmClient, explainCache, conceptGraph)
	evaluator := evaluation.NewEvaluator(llmClient, llmClient, evalCache)

	streamFactory := func(ctx context.Context) (transcription.Stream, error) {
		return transcription.NewStream(ctx, transcription.Config{
			APIKey:      cfg.Deepgram.APIKey,
			Model:       cfg.Deepgram.Model,
			Language:    cfg.Deepgram.Language,
			Tier:        cfg.Deepgram.Tier,
			SampleRate:  cfg.Deepgram.SampleRate,
			Endpointing: cfg.Deepgram.Endpointing,
		})
	}

	issuer := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTLMin)
	registry := session.NewRegistry()

	lectureWS := handlers.NewLectureWSHandler(llmClient, notesService, sqliteClient, registry, counters)
	audioWS := handlers.NewAudioWSHandler(streamFactory, llmClient, notesService, sqliteClient, counters)
	flagWS := handlers.NewFlagWSHandler(explainService, sqliteClient, registry, flagGraph, counters)
	evaluateWS := handlers.NewEvaluateWSHandler(evaluator, llmClient, sqliteClient)
	authHandler := handlers.NewAuthHandler(sqliteClient, issuer, cfg.Auth.BcryptCost)
	lectureHandler := handlers.NewLectureHandler(sqliteClient)
	notesHandler := handlers.NewNotesHandler(sqliteClient)
	statsHandler := handlers.NewStatsHandler(counters)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		IsDevelopment: cfg.Logging.Level == "debug",
	}))

	limiter := ratelimit.New(ratelimit.Config{Logger: appLogger.GetLogger()})
	defer limiter.Stop()

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/process-audio", websocket.New(lectureWS.HandleProcessAudio))
	app.Get("/ws/audio-to-text", websocket.New(audioWS.HandleAudioToText))
	app.Get("/ws/flag-concept", websocket.New(flagWS.HandleFlagConcept))
	app.Get("/ws/flagged-history", websocket.New(flagWS.HandleFlaggedHistory))
	app.Get("/ws/evaluate-understanding", websocket.New(evaluateWS.HandleEvaluate))
	app.Get("/ws/teach-to-learn", websocket.New(evaluateWS.HandleTeachToLearn))
	app.Get("/ws/lectures", websocket.New(lectureWS.HandleLectures))

	api := app.Group("/api/v1")
	api.Use(validation.Middleware(validation.Config{Logger: appLogger.GetLogger()}))
	api.Use(limiter.Middleware())

	api.Post("/auth/register", authHandler.Register)
	api.Post("/auth/login", authHandler.Login)

	protected := api.Group("", auth.Middleware(issuer))
	protected.Get("/lectures", lectureHandler.GetLectures)
	protected.Get("/lectures/:id", lectureHandler.GetLecture)
	protected.Get("/lectures/:id/concepts", lectureHandler.GetLectureConcepts)
	protected.Get("/flagged", lectureHandler.GetFlaggedConcepts)
	protected.Post("/notes/import", notesHandler.ImportNotes)
	protected.Get("/notes/:id", notesHandler.GetNote)
	protected.Get("/stats", statsHandler.GetStats)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
