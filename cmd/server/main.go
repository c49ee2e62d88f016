package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm/logger"

	"github.com/jukebox-queue-system/internal/auth"
	"github.com/jukebox-queue-system/internal/config"
	"github.com/jukebox-queue-system/internal/queue"
	"github.com/jukebox-queue-system/internal/request"
	"github.com/jukebox-queue-system/internal/rules"
	"github.com/jukebox-queue-system/internal/spotify"
	"github.com/jukebox-queue-system/internal/tasks"
	"github.com/jukebox-queue-system/internal/vote"
	"github.com/jukebox-queue-system/internal/ws"
	"github.com/jukebox-queue-system/pkg/database"
	"github.com/jukebox-queue-system/pkg/events"
	"github.com/jukebox-queue-system/pkg/jwt"
	applog "github.com/jukebox-queue-system/pkg/logger"
	"github.com/jukebox-queue-system/pkg/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	applog.Configure(cfg.Level(), cfg.LogFile)

	// Set Gin mode based on environment
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// Redis is optional: without it rules are read straight from the database
	// and the Spotify token lives in this process only.
	var (
		redisClient *goredis.Client
		ruleCache   rules.Cache
		tokenCache  spotify.TokenCache
	)
	if addr := cfg.RedisAddr(); addr != "" {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:     addr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		defer redisClient.Close()
		ruleCache = redis.NewRuleCache(redisClient, cfg.RuleCacheTTL)
		tokenCache = redis.NewTokenStore(redisClient)
	}

	// Change notifications go through Kafka when brokers are configured so
	// every instance sees them; otherwise straight to local WebSocket clients.
	hub := ws.NewHub(cfg.AllowedOrigins)
	var publisher events.Publisher = hub
	if len(cfg.KafkaBrokers) > 0 {
		kafkaClient := events.NewKafkaClient(cfg.KafkaBrokers, cfg.KafkaTopic, kafkaGroupID(cfg.KafkaGroupID))
		defer kafkaClient.Close()
		publisher = kafkaClient
		go relayEvents(ctx, hub, kafkaClient)
	}

	if cfg.SpotifyClientID == "" {
		log.Warn().Msg("SPOTIFY_CLIENT_ID is not set, track requests will fail")
	}
	spotifyClient := spotify.NewClient(cfg.SpotifyClientID, cfg.SpotifyClientSecret, tokenCache)
	tokens := jwt.NewManager(cfg.JWTSecret, cfg.JWTTTL)

	// Initialize services
	ruleService := rules.NewService(db, ruleCache, publisher)
	voteService := vote.NewService(db, ruleService, publisher)
	requestService := request.NewService(db, ruleService, spotifyClient, publisher)
	queueService := queue.NewService(db, spotifyClient, publisher)

	if cfg.ResetCron != "" {
		if redisClient == nil {
			log.Fatal().Msg("RESET_CRON requires REDIS_HOST")
		}
		worker, err := tasks.NewWorker(asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr(),
			Password: cfg.RedisPassword,
		}, cfg.ResetCron, tasks.NewHandlers(queueService))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to set up scheduled reset")
		}
		if err := worker.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start scheduled reset")
		}
		defer worker.Shutdown()
		log.Info().Str("cron", cfg.ResetCron).Msg("Scheduled day reset enabled")
	}

	// Initialize handlers
	authHandler := auth.NewHandler(tokens, db, cfg.AdminPasscode, cfg.IsProduction())
	ruleHandler := rules.NewHandler(ruleService)
	voteHandler := vote.NewHandler(voteService)
	requestHandler := request.NewHandler(requestService)
	queueHandler := queue.NewHandler(queueService)

	router := gin.New()
	router.Use(gin.Recovery(), applog.GinLogger())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	router.GET("/health", func(c *gin.Context) {
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(pingCtx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")

	// Public routes
	authHandler.RegisterRoutes(v1)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(auth.AuthMiddleware(tokens))
	{
		admin := auth.RequireAdmin()
		requestHandler.RegisterRoutes(protected)
		voteHandler.RegisterRoutes(protected)
		queueHandler.RegisterRoutes(protected, admin)
		ruleHandler.RegisterRoutes(protected, admin)

		// WebSocket endpoint
		protected.GET("/ws", hub.Handler(voteService))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
}

func openDatabase(cfg *config.Config) (*database.DB, error) {
	opts := database.Options{LogLevel: logger.Warn, TxRetries: cfg.TxRetries}
	if !cfg.IsProduction() {
		opts.LogLevel = logger.Info
	}

	switch cfg.DBDriver {
	case "sqlite":
		return database.NewSQLiteDB(cfg.SQLitePath, opts)
	default:
		return database.NewMySQLDB(cfg.MySQLHost, cfg.MySQLPort, cfg.MySQLUser, cfg.MySQLPassword, cfg.MySQLDatabase, opts)
	}
}

// kafkaGroupID gives every instance its own consumer group so each one
// receives every event for its WebSocket clients.
func kafkaGroupID(base string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return base
	}
	return fmt.Sprintf("%s-%s", base, host)
}

func relayEvents(ctx context.Context, hub *ws.Hub, source ws.EventSource) {
	for {
		err := hub.Run(ctx, source)
		if ctx.Err() != nil {
			return
		}
		log.Error().Err(err).Msg("Event relay stopped, restarting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}
