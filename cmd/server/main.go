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

	"rag-chat/internal/app"
	"rag-chat/internal/config"
	"rag-chat/internal/logger"
	"rag-chat/internal/telemetry"
)

const (
	serviceName    = "rag-chat"
	serviceVersion = "1.0.0"
)

func main() {
	log := logger.Init(logger.Config{
		Level: os.Getenv("LOG_LEVEL"),
		JSON:  os.Getenv("LOG_JSON") == "true",
	})
	log.Info("starting retrieval chat server")

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log = logger.Init(logger.Config{Level: cfg.LogLevel, JSON: cfg.LogJSON})

	// Tracing first so everything after it is traced
	jaegerShutdown, err := telemetry.InitJaeger(serviceName, serviceVersion, cfg.JaegerEndpoint)
	if err != nil {
		log.Warn("failed to initialize jaeger, continuing without tracing", "error", err)
		jaegerShutdown = func(ctx context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := jaegerShutdown(ctx); err != nil {
			log.Warn("failed to shutdown jaeger", "error", err)
		}
	}()

	application, err := app.New(cfg)
	if err != nil {
		log.Error("failed to build services", "error", err)
		os.Exit(1)
	}
	application.Start()

	addr := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	// No WriteTimeout: chat responses stream for as long as the model generates
	server := &http.Server{
		Addr:              addr,
		Handler:           application.Router(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server listening",
			"addr", addr,
			"index", cfg.IndexName,
			"namespace", cfg.Namespace,
			"vector_store", cfg.VectorStore,
			"directory", cfg.DirectoryMode,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warn("server forced to shutdown", "error", err)
	}

	// Waits for in-flight embeddings
	if err := application.Close(); err != nil {
		log.Warn("failed to release resources", "error", err)
	}

	log.Info("server shutdown complete")
}
