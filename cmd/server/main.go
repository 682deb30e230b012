package main

import (
	"net/http"

	"github.com/joho/godotenv"
	"github.com/rowanvale/shopdesk/internal/api"
	"github.com/rowanvale/shopdesk/internal/chat"
	"github.com/rowanvale/shopdesk/internal/config"
	"github.com/rowanvale/shopdesk/internal/db"
	"github.com/rowanvale/shopdesk/internal/llm"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Optional .env for local runs; absence is fine.
	if err := godotenv.Load(); err == nil {
		logger.Info("loaded .env file")
	}

	cfg := config.Load()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to initialize database",
			zap.Error(err),
			zap.String("dbPath", cfg.DBPath))
	}
	defer database.Close()

	generator := llm.New(cfg.BaseURL, cfg.APIKey, cfg.ModelName, logger)

	service := chat.NewService(database, generator, logger)

	handler := api.NewHandler(service, logger)
	mux := http.NewServeMux()
	handler.Routes(mux)

	logger.Info("starting server", zap.String("port", cfg.Port))
	if err := http.ListenAndServe(":"+cfg.Port, mux); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
}
