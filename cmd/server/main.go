package main

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ridesplit/internal/clock"
	"github.com/iliyamo/ridesplit/internal/config"
	"github.com/iliyamo/ridesplit/internal/database"
	"github.com/iliyamo/ridesplit/internal/handler"
	"github.com/iliyamo/ridesplit/internal/middleware"
	"github.com/iliyamo/ridesplit/internal/queue"
	"github.com/iliyamo/ridesplit/internal/repository"
	"github.com/iliyamo/ridesplit/internal/router"
	"github.com/iliyamo/ridesplit/internal/seed"
	"github.com/iliyamo/ridesplit/internal/service"
	"github.com/iliyamo/ridesplit/internal/simulate"
	"github.com/iliyamo/ridesplit/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not read .env", "error", err)
	}
	logging.Setup()

	if err := run(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	pcfg := config.LoadPipelineConfig()
	qcfg := config.LoadQueueConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBDriver, cfg.DSN())
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(ctx, db, cfg.DBDriver); err != nil {
		return err
	}
	store := repository.NewStore(db, nil)

	seedOpts := seed.Options{BcryptCost: cfg.BcryptCost, AdminID: cfg.AdminID, AdminPassword: cfg.AdminPassword}
	if cfg.SeedOnStart {
		if _, err := seed.Seed(ctx, store, seedOpts); err != nil {
			return err
		}
	} else if _, err := seed.EnsureAdmin(ctx, store, seedOpts); err != nil {
		return err
	}

	publisher := queue.NewPublisher(qcfg.URL, qcfg.TripQueue)
	defer publisher.Close()
	events := queue.NewDispatcher(publisher, 256, slog.Default())
	go events.Run(context.Background())
	defer events.Close()

	if qcfg.ConsumerEnabled {
		consumer := &queue.Consumer{URL: qcfg.URL, Queue: qcfg.TripQueue, Dir: qcfg.LogDir}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("trip consumer stopped", "error", err)
			}
		}()
	}

	clk := clock.Real()
	svc := service.New(store, pcfg, service.Options{Clock: clk, Events: events})
	defer svc.Pipeline.Shutdown()
	if n, err := svc.Pipeline.Resume(ctx); err != nil {
		return err
	} else if n > 0 {
		slog.Info("trip sessions resumed", "rooms", n)
	}

	var (
		sim     *simulate.Simulator
		recruit *simulate.Recruiter
	)
	if pcfg.SimulateMembers {
		sim = simulate.New(svc.Gathering, svc.Pipeline, clk, pcfg.SimulationTick,
			rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), slog.Default())
		recruit = simulate.NewRecruiter(svc.Registry, svc.Readiness, store.Users, svc.Pipeline, clk, pcfg.RecruitTick,
			rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), slog.Default())
		slog.Warn("member simulation enabled")
	}

	rdb := config.NewRedisClient()
	if rdb != nil {
		defer rdb.Close()
	}
	mw := router.Middlewares{
		RateLimit: middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
		Cache:     middleware.NewRedisCache(config.LoadCacheConfig(), rdb),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestLogger(slog.Default()))

	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, store.Users, store.Tokens), cfg.JWTSecret, mw)
	router.RegisterStudent(e, router.Handlers{
		Rooms:  handler.NewRoomHandler(svc.Registry, store.Users, config.LoadCampuses()),
		Trips:  handler.NewTripHandler(svc, sim, recruit),
		Wallet: handler.NewWalletHandler(svc.Wallet),
	}, cfg.JWTSecret, mw)
	router.RegisterAdmin(e, handler.NewAdminHandler(store, svc.Pipeline, seedOpts), cfg.JWTSecret)

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", addr, "env", cfg.Env, "db", cfg.DBDriver)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
