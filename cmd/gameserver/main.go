package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/robochess/server/internal/aiplayer"
	"github.com/robochess/server/internal/archive"
	appcfg "github.com/robochess/server/internal/config"
	"github.com/robochess/server/internal/httpapi"
	"github.com/robochess/server/internal/obslog"
	"github.com/robochess/server/internal/service"
	"github.com/robochess/server/internal/store"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("log init error: %v", err)
	}

	ctx := context.Background()
	rdb, err := store.Open(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis error: %v", err)
	}

	games := store.NewGames(rdb, time.Duration(cfg.GameTTLSec)*time.Second)
	controllers := store.NewControllers(rdb, time.Duration(cfg.ControllerTimeoutSec)*time.Second)
	svc := service.New(games, controllers)

	if cfg.DatabaseURL != "" {
		repo, err := archive.NewRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("archive init error: %v", err)
		}
		defer repo.Close()
		svc.AttachArchive(repo)
	}

	if cfg.StockfishPath != "" {
		engine, err := aiplayer.NewEngine(ctx, cfg.StockfishPath, time.Duration(cfg.AIMoveTimeMillis)*time.Millisecond)
		if err != nil {
			log.Fatalf("engine init error: %v", err)
		}
		defer engine.Close()
		svc.AttachMover(engine)
	}

	srv := &fasthttp.Server{
		Handler:      httpapi.NewServer(svc).Handler(),
		Name:         "robochess",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		obslog.L().Info("http_listen", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(cfg.HTTPAddr); err != nil {
			log.Fatalf("http serve error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	obslog.L().Info("shutdown")
	_ = srv.Shutdown()
	_ = rdb.Close()
}
