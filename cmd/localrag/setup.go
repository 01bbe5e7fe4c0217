package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/sandevgo/localrag/internal/config"
	"github.com/sandevgo/localrag/internal/core"
	"github.com/sandevgo/localrag/internal/providers/llm"
	"github.com/sandevgo/localrag/internal/providers/rag"
	"github.com/sandevgo/localrag/internal/service/agent"
	"github.com/sandevgo/localrag/internal/service/command"
	"github.com/sandevgo/localrag/internal/service/indexer"
	"github.com/sandevgo/localrag/internal/service/loader"
	"github.com/sandevgo/localrag/internal/service/memory"
	"github.com/sandevgo/localrag/internal/service/retrieval"
	"github.com/sandevgo/localrag/internal/service/state"
	"github.com/sandevgo/localrag/internal/storage/chromem"
	"github.com/sandevgo/localrag/internal/storage/jsonfile"
	"github.com/sandevgo/localrag/internal/storage/sqlite"
	"github.com/sandevgo/localrag/pkg/log"
	"github.com/sandevgo/localrag/pkg/srv"
	"github.com/sandevgo/localrag/pkg/tokens"
)

// App holds the wired components shared by every subcommand.
type App struct {
	cfg       *config.AppConfig
	llmCfg    *config.LLMConfig
	provider  *llm.DynamicProvider
	store     *memory.Store
	index     *indexer.Indexer
	loader    *loader.Loader
	assembler *retrieval.Assembler
	agent     *agent.Agent
	router    *command.Router

	// Cleanups in registration order; srv.StopServices runs them in reverse.
	services []srv.Service
}

func NewApp(ctx context.Context) *App {
	logger := log.FromCtx(ctx)
	app := &App{}

	// init env
	if err := initEnv(ctx, config.GetRuntimePath()); err != nil {
		logger.Fatal().Err(err).Msg("failed to init env")
	}

	// 1. Configuration
	app.cfg = config.NewAppConfig(ctx)
	app.llmCfg = config.NewLLMConfig(ctx, app.cfg.GetEnvPath())
	ragCfg := config.NewRAGConfig(ctx)
	retrievalCfg := config.NewRetrievalConfig(ctx)

	if err := os.MkdirAll(app.cfg.GetRuntimePath(), 0755); err != nil {
		logger.Fatal().Err(err).Msg("failed to create runtime directory")
	}

	// 2. Storage
	backends, records := app.initStorage(ctx)

	// 3. Chat provider
	provider, err := llm.NewDynamicProvider(ctx, app.llmCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize LLM provider")
	}
	app.provider = provider

	// 4. Embeddings
	embedder := app.initEmbedder(ctx, ragCfg)

	// 5. Memory store
	store, err := memory.Open(ctx, memory.Config{
		Collection:   app.cfg.Collection,
		FallbackPath: app.cfg.GetFallbackPath(),
	}, embedder, backends...)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open memory store")
	}
	app.store = store
	app.services = append(app.services, srv.NewCleanup(store.Close))

	// 6. Indexing and retrieval
	// Token counts follow /model switches.
	tk := tokens.New(tokens.WithLogger(logger))
	model := app.llmCfg.GetModel()

	chunker := rag.NewChunker(rag.ChunkerConfig{
		ChunkSize:    ragCfg.ChunkSize,
		ChunkOverlap: ragCfg.ChunkOverlap,
		Model:        model,
	}, tk).FollowModel(app.provider.GetModel)
	app.loader = loader.New()
	app.index = indexer.New(store, chunker, embedder, records)
	app.assembler = retrieval.NewAssembler(store, retrievalCfg, tk, model).FollowModel(app.provider.GetModel)

	// 7. Agent and slash commands
	app.agent = agent.NewAgent(
		retrievalCfg,
		provider,
		app.assembler,
		store,
		agent.NewSysPrompt(app.cfg.GetSystemPromptPath()),
	)

	gs := state.NewGlobalState(app.llmCfg.Settings().Provider, provider)
	app.router = command.New(command.NewCommands(command.Deps{
		Store:     store,
		Index:     app.index,
		Loader:    app.loader,
		Assembler: app.assembler,
		State:     gs,
	}))

	return app
}

// Close releases storage for one-shot commands.
func (a *App) Close(ctx context.Context) {
	srv.StopServices(ctx, a.services)
}

// initStorage opens the configured vector backend and the index record
// repository. Index records live in SQLite; they go to a JSON file only when
// the database cannot be opened at all.
func (a *App) initStorage(ctx context.Context) ([]core.VectorIndex, core.IndexRecordRepository) {
	logger := log.FromCtx(ctx)
	var backends []core.VectorIndex

	var records core.IndexRecordRepository
	db, err := sqlite.NewDB(ctx, a.cfg.GetDatabasePath())
	if err != nil {
		logger.Warn().Err(err).Msg("sqlite database unavailable, keeping index records in a JSON file")
		records = jsonfile.NewRecordsRepo(a.cfg.GetIndexRecordsPath())
	} else {
		a.services = append(a.services, srv.NewCleanup(db.Close))
		records = sqlite.NewRecordsRepo(db, a.cfg.Collection)
	}

	switch a.cfg.VectorBackend {
	case "sqlite":
		if db != nil {
			backends = append(backends, sqlite.NewItemsRepo(db, a.cfg.Collection))
		}
	case "chromem":
		idx, err := chromem.Open(a.cfg.GetChromemPath(), a.cfg.Collection)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to open chromem index")
			break
		}
		backends = append(backends, idx)
	case "none":
	default:
		logger.Warn().Str("backend", a.cfg.VectorBackend).Msg("unknown vector backend")
	}

	return backends, records
}

// initEmbedder builds the remote embedder for the configured provider and
// wraps it with batching, hash fallback and the cache. A provider that cannot
// be built leaves hash embeddings in charge.
func (a *App) initEmbedder(ctx context.Context, ragCfg *config.RAGConfig) core.Embedder {
	logger := log.FromCtx(ctx)

	var remote core.Embedder
	if ragCfg.EmbeddingProvider != "hash" {
		e, err := llm.NewEmbedder(ctx, ragCfg.EmbeddingProvider, ragCfg.EmbeddingModel, a.llmCfg.Settings())
		if err != nil {
			logger.Warn().Err(err).Msg("embedding provider unavailable, using hash embeddings")
		} else {
			remote = e
		}
	}

	embedder, closeFn, err := rag.NewEmbedder(ctx, ragCfg, remote)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize embedder")
	}
	a.services = append(a.services, srv.NewCleanup(closeFn))
	return embedder
}

func initEnv(ctx context.Context, runtimePath string) error {
	logger := log.FromCtx(ctx)
	envFile := config.EnvPath(runtimePath)

	if _, err := os.Stat(envFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(envFile); err != nil {
		logger.Warn().Err(err).Str("path", envFile).Msg("failed to load .env file")
		return err
	}

	logger.Debug().Str("path", envFile).Msg("loaded .env file")
	return nil
}
