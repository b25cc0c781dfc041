package main // Entry point package

import (
	"context"
	"log" // Logging library

	"github.com/joho/godotenv"    // loads .env files for local development
	"github.com/labstack/echo/v4" // Echo web framework

	"bazaaradmin/internal/cache"
	"bazaaradmin/internal/config"
	"bazaaradmin/internal/database"
	"bazaaradmin/internal/handler"
	"bazaaradmin/internal/middleware"
	"bazaaradmin/internal/queue"
	"bazaaradmin/internal/repository"
	"bazaaradmin/internal/reservation"
	"bazaaradmin/internal/retry"
	"bazaaradmin/internal/router"
	queuepub "bazaaradmin/internal/service"
	"bazaaradmin/internal/storage"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments use the environment

	cfg := config.Load()
	resCfg := config.LoadReservationConfig()
	storCfg := config.LoadStorageConfig()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Redis is optional: without it the response cache and rate limiter
	// degrade to no-ops.
	rdb := config.NewRedisClient()

	images, err := storage.Open(context.Background(), storCfg)
	if err != nil {
		log.Fatalf("image store: %v", err)
	}
	defer images.Close()

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	profiles := repository.NewProfileRepo(db)
	markets := repository.NewMarketRepo(db)
	combos := repository.NewCombinationRepo(db)
	products := repository.NewProductRepo(db)

	profileCache := cache.NewProfileCache(profiles, cache.DefaultTTL,
		cache.WithFetchTimeout(resCfg.FetchTimeout))

	coordinator := reservation.New(combos, profiles, profileCache,
		reservation.WithRetryPolicy(retry.Fixed(resCfg.MaxAttempts, resCfg.Backoff)),
		reservation.WithFailOpen(resCfg.FailOpen),
		reservation.WithPublisher(queuepub.NewPublisher()),
	)

	// Background consumer mirrors claim events into logs/claims.log.
	go func() {
		if err := queue.StartClaimConsumer(); err != nil {
			log.Printf("claim consumer stopped: %v", err)
		}
	}()

	respCache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)
	rateLimit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	authH := handler.NewAuthHandler(cfg, users, tokens, profiles, profileCache)
	marketH := handler.NewMarketHandler(markets, combos, coordinator)
	setupH := handler.NewSetupHandler(coordinator, combos, markets, profileCache)
	productH := handler.NewProductHandler(products, combos, profileCache, images, storCfg)

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterAuth(e, authH, cfg.JWTSecret, rateLimit)
	router.RegisterMarkets(e, marketH, cfg.JWTSecret, respCache)
	router.RegisterSetup(e, setupH, cfg.JWTSecret, rateLimit)
	router.RegisterProducts(e, productH, cfg.JWTSecret)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
