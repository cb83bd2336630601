// Package app assembles the services from configuration. Both binaries build on it.
package app

import (
	"errors"
	"fmt"

	"rag-chat/internal/api"
	"rag-chat/internal/config"
	"rag-chat/internal/db"
	"rag-chat/internal/directory"
	"rag-chat/internal/logger"
	"rag-chat/internal/metrics"
	"rag-chat/internal/models"
	"rag-chat/internal/openai"
	"rag-chat/internal/repository"
	"rag-chat/internal/repository/memindex"
	"rag-chat/internal/services"

	"github.com/gorilla/mux"
)

// Dependencies are the external collaborators. Nil fields are built from config.
type Dependencies struct {
	Embedder  services.Embedder
	Generator services.Generator
	Index     services.VectorIndex
	Directory services.Directory
}

// App holds the wired services
type App struct {
	Config    *config.Config
	Metrics   *metrics.Metrics
	Ownership *models.OwnershipAssignment

	Index     services.VectorIndex
	Directory services.Directory
	Pool      *services.EmbeddingPool
	Auth      *services.AuthorizationService
	Contexts  *services.ContextService
	Chat      *services.ChatService
	Ingest    *services.IngestService

	database *db.GormDB
}

// New builds every collaborator from config
func New(cfg *config.Config) (*App, error) {
	return NewWithDependencies(cfg, Dependencies{})
}

// NewWithDependencies builds the app, using the supplied collaborators where set
func NewWithDependencies(cfg *config.Config, deps Dependencies) (*App, error) {
	ownership, err := config.LoadOwnership(cfg.OwnershipFile)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:    cfg,
		Metrics:   metrics.New(),
		Ownership: ownership,
	}

	if deps.Embedder == nil || deps.Generator == nil {
		client, err := openai.NewClient(openai.Config{
			APIKey:         cfg.OpenAIAPIKey,
			ChatModel:      cfg.OpenAIChatModel,
			EmbeddingModel: cfg.OpenAIEmbeddingModel,
			Timeout:        cfg.ProviderTimeout,
			StreamTimeout:  cfg.StreamTimeout,
		})
		if err != nil {
			return nil, err
		}
		if deps.Embedder == nil {
			deps.Embedder = client
		}
		if deps.Generator == nil {
			deps.Generator = client
		}
	}

	if err := a.buildStores(&deps); err != nil {
		a.Close()
		return nil, err
	}
	a.Index = services.NewDeadlineIndex(deps.Index, "vector-index", cfg.ProviderTimeout)
	a.Directory = services.NewDeadlineDirectory(deps.Directory, "directory", cfg.ProviderTimeout)

	a.Pool = services.NewEmbeddingPool(deps.Embedder, cfg.EmbeddingWorkers, cfg.EmbeddingQueueSize)
	a.Auth = services.NewAuthorizationService(a.Directory, cfg.PermissionCheckConcurrency, cfg.ProviderTimeout, a.Metrics)
	a.Contexts = services.NewContextService(deps.Embedder, a.Index, a.Auth, a.Metrics)
	a.Chat = services.NewChatService(a.Contexts, deps.Generator, cfg.Namespace, cfg.MinScore, cfg.MaxContextChars)
	a.Ingest = services.NewIngestService(a.Index, a.Pool, a.Auth, cfg.IndexSpec(), cfg.UpsertBatchSize, a.Metrics)
	return a, nil
}

// buildStores opens Postgres only when the vector store or the directory lives there
func (a *App) buildStores(deps *Dependencies) error {
	cfg := a.Config
	needIndex := deps.Index == nil
	needDirectory := deps.Directory == nil

	if needIndex && cfg.VectorStore == config.VectorStoreMemory {
		deps.Index = memindex.New(cfg.IndexName)
		needIndex = false
	}
	if needDirectory && cfg.DirectoryMode == config.DirectoryRemote {
		deps.Directory = directory.NewClient(directory.Config{
			BaseURL:  cfg.DirectoryURL,
			APIKey:   cfg.DirectoryAPIKey,
			TenantID: cfg.DirectoryTenantID,
			Timeout:  cfg.ProviderTimeout,
		})
		needDirectory = false
	}
	if !needIndex && !needDirectory {
		return nil
	}

	database, err := db.NewGorm(cfg)
	if err != nil {
		return err
	}
	a.database = database
	if needIndex {
		deps.Index = repository.NewVectorRepository(database.DB, cfg.IndexName)
	}
	if needDirectory {
		deps.Directory = repository.NewDirectoryRepository(database.DB)
	}
	return nil
}

// Start launches the embedding workers
func (a *App) Start() {
	a.Pool.Start()
	logger.Default().Info("services started",
		"vector_store", a.Config.VectorStore,
		"directory", a.Config.DirectoryMode,
		"index", a.Config.IndexName,
	)
}

// Handler builds the HTTP API
func (a *App) Handler() *api.Handler {
	return api.NewHandler(a.Chat, a.Ingest, a.Index, a.Auth, a.Metrics.Handler(), api.Defaults{
		Admins:    a.Config.AdminUsers,
		Namespace: a.Config.Namespace,
		IndexSpec: a.Config.IndexSpec(),
		Splitter:  a.Config.SplitterConfig(),
		SeedCSV:   a.Config.SeedCSVPath,
		Ownership: *a.Ownership,
	})
}

// Router is the fully wrapped HTTP router
func (a *App) Router() *mux.Router {
	return api.SetupRoutes(a.Handler(), a.Config.IdentityHeader)
}

// Close stops the workers and releases the database
func (a *App) Close() error {
	var errs []error
	if a.Pool != nil {
		a.Pool.Shutdown()
	}
	if a.database != nil {
		if err := a.database.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
