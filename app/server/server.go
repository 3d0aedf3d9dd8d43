package server

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"sysrev/app/agent"
	"sysrev/app/api"
	"sysrev/app/middleware"
	"sysrev/config"
	"sysrev/loader"
	"sysrev/model"
	"sysrev/store"

	"github.com/gofiber/fiber/v2"
)

var fiberConfig = fiber.Config{
	ErrorHandler: api.ErrorHandler,
	BodyLimit:    100 * 1024 * 1024, // research PDFs get big
}

type Server struct {
	cfg    *config.Config
	logger *slog.Logger
}

func NewServer(cfg *config.Config) *Server {
	return &Server{
		cfg:    cfg,
		logger: slog.Default(),
	}
}

func (s *Server) Stop() {
	s.logger.Info("server stopped")
}

func (s *Server) Run() {
	ctx := context.Background()
	cfg := s.cfg

	if err := os.MkdirAll(cfg.Server.UploadDir, 0755); err != nil {
		log.Fatal("error to create upload directory: ", err)
	}

	counter, err := model.NewTokenCounter()
	if err != nil {
		log.Fatal("error to init token counter: ", err)
	}

	apiKey := os.Getenv(cfg.OpenAI.APIKeyEnv)
	if apiKey == "" {
		log.Fatalf("missing API key in env %s", cfg.OpenAI.APIKeyEnv)
	}

	timeout := time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second
	embedder := model.NewOpenAIEmbedder(
		cfg.OpenAI.BaseURL, apiKey, cfg.OpenAI.EmbeddingModel,
		cfg.OpenAI.BatchSize, cfg.OpenAI.MaxRetries, timeout,
		counter, cfg.Pricing,
	)

	synth := agent.NewSynthesizer(
		cfg.OpenAI.BaseURL, apiKey, cfg.OpenAI.ChatModel, timeout,
		counter, cfg.Pricing,
		agent.Limits{
			ChunksPerPaper:  cfg.Retrieval.ChunksPerPaper,
			ContextTokenCap: cfg.Retrieval.ContextTokenCap,
			ModelTokenLimit: cfg.Retrieval.ModelTokenLimit,
			MaxOutputTokens: cfg.Retrieval.MaxOutputTokens,
			OutputSafetyGap: cfg.Retrieval.OutputSafetyGap,
			MinOutputTokens: cfg.Retrieval.MinOutputTokens,
		},
	)

	var indexes store.IndexStore
	switch cfg.Index.Backend {
	case "postgres":
		pgStore, err := store.NewPostgresIndexStore(ctx, cfg.Index.PostgresDSN)
		if err != nil {
			log.Fatal("error to connect to Postgres database: ", err)
		}
		if err := pgStore.Init(ctx); err != nil {
			log.Fatal("error to create tables: ", err)
		}
		defer pgStore.Close()
		indexes = pgStore
	default:
		fileStore, err := store.NewFlatIndexStore(cfg.Index.Dir)
		if err != nil {
			log.Fatal("error to init index directory: ", err)
		}
		indexes = fileStore
	}

	var sessions store.SessionStorer
	switch cfg.Sessions.Backend {
	case "bolt":
		boltStore, err := store.NewBoltSessionStore(cfg.Sessions.Path)
		if err != nil {
			log.Fatal("error to open session store: ", err)
		}
		defer boltStore.Close()
		sessions = boltStore
	default:
		sessions = store.NewMemorySessionStore()
	}

	var (
		app          = fiber.New(fiberConfig)
		checkHandler = api.NewCheckHandler()
		handler      = api.NewReviewHandler(
			loader.NewPDFExtractor(),
			loader.NewWordChunker(cfg.Chunker.Size, cfg.Chunker.Overlap),
			embedder,
			indexes,
			sessions,
			synth,
			cfg.Server.UploadDir,
			cfg.Retrieval.TopK,
		)
		check  = app.Group("/check")
		review = app.Group("/systematic-review")
	)

	app.Use(middleware.PlugStatic("/app"))
	app.Static("/app", cfg.Server.StaticDir)

	app.Get("/", checkHandler.HandleRoot)
	check.Get("/healthy", checkHandler.HandleHealthy)
	review.Post("/upload", handler.HandleUpload)
	review.Post("/query", handler.HandleQuery)
	review.Get("/sessions/:id", handler.HandleGetSession)

	if err := app.Listen(cfg.Server.Addr); err != nil {
		s.logger.Error("error to start server", "error", err.Error())
		return
	}
}
