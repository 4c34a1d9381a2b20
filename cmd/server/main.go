package main // Entry point package

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/web-app-template/internal/config"
	"github.com/iliyamo/web-app-template/internal/database"
	"github.com/iliyamo/web-app-template/internal/handler"
	"github.com/iliyamo/web-app-template/internal/logging"
	"github.com/iliyamo/web-app-template/internal/middleware"
	"github.com/iliyamo/web-app-template/internal/model"
	"github.com/iliyamo/web-app-template/internal/repository"
	"github.com/iliyamo/web-app-template/internal/router"
	"github.com/iliyamo/web-app-template/internal/token"
	"github.com/iliyamo/web-app-template/internal/upstream"
)

// storageDir holds everything the process persists outside the database:
// the generated config, the logging level map and the session key.
const storageDir = "storage"

func main() {
	// A .env file is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	if err := logging.Setup(storageDir); err != nil {
		log.Fatalf("logging setup: %v", err)
	}

	cfg, err := config.Load(storageDir)
	if err != nil {
		log.Fatal(err)
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	sessionKey, err := token.LoadOrCreateSessionKey(storageDir)
	if err != nil {
		log.Fatal(err)
	}

	// Redis is optional: without it rate limiting turns off and codes fall
	// back to expiry-only validation.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Print("redis unavailable, rate limiting and code tracking disabled")
	}

	users := repository.NewUserRepo(db)
	codes := repository.NewCodeRepo(rdb)
	tokens := token.NewIssuer(cfg.Authentication, sessionKey)

	var (
		after middleware.AfterAuth
		seed  handler.SeedUpstream
	)
	if up := upstream.NewClient(cfg.Upstream); up != nil {
		after = func(ctx context.Context, u model.User) { up.RefreshIfDue(ctx, users, u) }
		seed = func(ctx context.Context, userID uint64, email, password string) {
			up.SignIn(ctx, users, userID, email, password)
		}
	}

	gate := middleware.Gate(tokens, users, cfg.Authentication.CookieName, after)
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterOAuth2(e, handler.NewOAuth2Handler(cfg, users, codes, tokens, seed), limiter)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, codes, tokens), gate, limiter)
	router.RegisterLocalAuth(e, handler.NewLocalAuthHandler(cfg, users, tokens, seed), limiter)

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}
	addr := ":" + port
	log.Printf("listening on %s (public url %s)", addr, cfg.PublicUrl)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
