package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"weekend_planner_go_backend/cmd/api/config"
	"weekend_planner_go_backend/internal/api"
	"weekend_planner_go_backend/internal/auth"
	"weekend_planner_go_backend/internal/database"
	"weekend_planner_go_backend/internal/services"
	"weekend_planner_go_backend/internal/utils/broker"
	"weekend_planner_go_backend/internal/wsocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/generative-ai-go/genai"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Server stopped with error")
	}
	log.Info().Msg("Server stopped")
}

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	zerolog.DefaultContextLogger = &log.Logger
}

func run(ctx context.Context, cfg *config.Config) error {
	var (
		cacheDB services.RecommendationCacheDB
		userDB  services.UserServiceDB
		ping    api.Pinger
	)
	switch cfg.StorageBackend {
	case "memory":
		log.Warn().Msg("Using in-memory storage; data is lost on restart")
		cacheDB = services.NewMemoryRecommendationCacheDB()
		userDB = services.NewMemoryUserServiceDB()
	default:
		db, err := database.Open(ctx, cfg.DatabaseURL, database.Options{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		})
		if err != nil {
			return err
		}
		defer closeDB(db)
		cacheDB = services.NewRecommendationCacheDB(db)
		userDB = services.NewUserServiceDB(db)
		ping = func(ctx context.Context) error { return database.Ping(ctx, db) }
	}

	genaiClient, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GenAIAPIKey))
	if err != nil {
		return err
	}
	defer genaiClient.Close()

	table, err := cfg.ActivePricing()
	if err != nil {
		return err
	}
	pricing := services.Pricing{
		Version:          table.Version,
		Model:            table.Model,
		ModelProvider:    table.ModelProvider,
		SearchProvider:   table.SearchProvider,
		InputPerMillion:  table.InputPerMillion,
		OutputPerMillion: table.OutputPerMillion,
		SearchPerCall:    table.SearchPerCall,
		Currency:         table.Currency,
	}
	if pricing.Model != "" && pricing.Model != cfg.GeminiModel {
		log.Warn().
			Str("pricing_model", pricing.Model).
			Str("model", cfg.GeminiModel).
			Msg("Active pricing table was written for a different model")
	}

	searchService := services.NewSearchService(services.SearchConfig{
		APIKey:   cfg.SearchAPIKey,
		URL:      cfg.SearchAPIURL,
		Country:  cfg.SearchCountry,
		Language: cfg.SearchLanguage,
		Timeout:  cfg.SearchTimeout,
	})
	orchestrator := services.NewAgentOrchestrator(
		services.NewGeminiChatModel(genaiClient, cfg.GeminiModel),
		searchService,
		services.AgentConfig{
			MaxIterations: cfg.AgentMaxIterations,
			Timeout:       cfg.AgentTimeout,
		},
	)
	cacheService := services.NewRecommendationCacheService(cacheDB, cfg.CacheTTL)
	messageBroker := broker.NewBroker()
	recommendationService := services.NewRecommendationService(cacheService, orchestrator, pricing, messageBroker)
	userService := services.NewUserService(userDB)

	var verifier auth.Verifier
	if cfg.AuthMode == "dev" {
		log.Warn().Str("subject", cfg.DevSubject).Msg("Authentication disabled (dev mode)")
		verifier = auth.DevVerifier{Subject: cfg.DevSubject}
	} else {
		verifier = auth.NewJWKSVerifier(cfg.Auth0Domain, cfg.Auth0Audience)
	}
	authMiddleware := auth.AuthMiddleware(verifier, userService)

	r := gin.New()
	r.Use(gin.Recovery(), api.RequestLogger())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api.SetupRoutes(r, authMiddleware, recommendationService, cacheService, ping)
	auth.SetupRoutes(r, authMiddleware)

	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = true
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed[origin]
		},
	}
	wsHandler := wsocket.NewHandler(recommendationService, upgrader, messageBroker)
	r.GET("/ws", authMiddleware, func(c *gin.Context) {
		user, _ := auth.CurrentUser(c)
		wsHandler.HandleWebSocket(c.Writer, c.Request, user)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	sweeper := services.NewCacheSweeper(cacheService, cfg.CacheSweepInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Str("storage", cfg.StorageBackend).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.AgentTimeout+5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func closeDB(db *gorm.DB) {
	if err := database.Close(db); err != nil {
		log.Error().Err(err).Msg("Failed to close database")
	}
}
