package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/group-cart/internal/config"
	"github.com/iliyamo/group-cart/internal/database"
	"github.com/iliyamo/group-cart/internal/handler"
	"github.com/iliyamo/group-cart/internal/middleware"
	"github.com/iliyamo/group-cart/internal/queue"
	"github.com/iliyamo/group-cart/internal/repository"
	"github.com/iliyamo/group-cart/internal/router"
	"github.com/iliyamo/group-cart/internal/store"
	"github.com/iliyamo/group-cart/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	logging.Setup()
	cfg := config.Load()

	rdb := config.NewRedisClient()

	var groupStore store.GroupStore
	switch cfg.StoreBackend {
	case "mysql":
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			slog.Error("open mysql", "error", err)
			os.Exit(1)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		groupStore, err = store.NewMySQLStore(ctx, db)
		cancel()
		if err != nil {
			slog.Error("init mysql store", "error", err)
			os.Exit(1)
		}
	case "memory":
		groupStore = store.NewMemoryStore()
	default:
		if rdb == nil {
			slog.Error("redis unreachable; set STORE_BACKEND=memory to run without it")
			os.Exit(1)
		}
		groupStore = store.NewRedisStore(rdb)
	}

	var completions repository.CompletionPublisher
	if cfg.AMQPURL != "" {
		completions = queue.NewPublisher(cfg.AMQPURL)
		go queue.StartCompletedConsumer(cfg.AMQPURL)
	}

	repo := repository.NewGroupRepo(groupStore, completions)
	h := handler.NewGroupHandler(repo)

	e := echo.New()
	e.HideBanner = true
	router.RegisterRoutes(e)

	mw := []echo.MiddlewareFunc{middleware.Participant(cfg.ParticipantToken)}
	if rdb != nil {
		mw = append(mw, middleware.RateLimit(config.LoadRateLimitConfig(), rdb))
	}
	router.RegisterGroups(e, h, mw...)

	addr := ":" + cfg.Port
	slog.Info("listening", "addr", addr, "env", cfg.Env, "store", cfg.StoreBackend)
	if err := e.Start(addr); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
