package main

import (
	"errors"
	"io/fs"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/mihaimyh/golease/internal/cli"
	"github.com/mihaimyh/golease/internal/config"
	"github.com/mihaimyh/golease/internal/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	closer, err := logger.Setup(cfg.GetLoggerConfig())
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	mainLog := logger.WithComponent("main")
	mainLog.Debug().
		Str("storage", cfg.Storage).
		Str("ratePolicy", string(cfg.RatePolicy)).
		Msg("Starting golease")

	cli.Execute(cfg)

	_ = closer.Close()
	os.Exit(0)
}
