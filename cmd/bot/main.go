package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vitos/crypto_dca_bot/internal/config"
	"github.com/vitos/crypto_dca_bot/internal/infrastructure/execution"
	"github.com/vitos/crypto_dca_bot/internal/infrastructure/feed"
	"github.com/vitos/crypto_dca_bot/internal/infrastructure/logger"
	"github.com/vitos/crypto_dca_bot/internal/infrastructure/storage"
	"github.com/vitos/crypto_dca_bot/internal/usecase"
	"github.com/vitos/crypto_dca_bot/internal/web"
	"go.uber.org/zap"
)

func main() {
	// 1. Load Config
	configPath := "config/config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg.ScaleByLeverage()

	// 2. Init Logger
	log, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Init Storage
	store, err := storage.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	// 4. Init Executor (intent audit log; the real collaborator consumes
	// the same stream in a live deployment)
	intentLogger, err := logger.NewFileLogger("intents.log", "info")
	if err != nil {
		log.Error("Failed to init intent logger, using default", zap.Error(err))
		intentLogger = log
	}
	executor := execution.NewLogExecutor(intentLogger)

	// 5. Init Engine
	engine := usecase.NewEngine(cfg, executor, store, store, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 6. Connect Price Feed (reconnects whenever the read loop dies)
	priceFeed := feed.NewWSFeed(cfg.Feed.WSEndpoint, log)
	priceFeed.OnPriceUpdate(func(pair string, price float64) {
		engine.ProcessPrice(pair, price)
	})
	if cfg.Feed.WSEndpoint != "" {
		go func() {
			for {
				if err := priceFeed.Connect(cfg.SortedPairs()); err != nil {
					log.Error("Failed to connect price feed", zap.Error(err))
				} else {
					select {
					case <-priceFeed.Done():
						log.Warn("Price feed disconnected, reconnecting")
					case <-ctx.Done():
						return
					}
				}
				select {
				case <-time.After(5 * time.Second):
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// 7. Start Strategy Clock
	go engine.Start(ctx)

	// 8. Start Status Server
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	server := web.NewServer(port, engine, store, store, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// 9. Wait for Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")
	cancel()
	priceFeed.Close()
	server.Shutdown(context.Background())
}
