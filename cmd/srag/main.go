package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mhesketh/srag-ml/internal/apiclient"
	"github.com/mhesketh/srag-ml/internal/config"
	"github.com/mhesketh/srag-ml/internal/dispatcher"
	"github.com/mhesketh/srag-ml/internal/embedder"
	"github.com/mhesketh/srag-ml/internal/generation"
	"github.com/mhesketh/srag-ml/internal/llmengine"
	"github.com/mhesketh/srag-ml/internal/logger"
	"github.com/mhesketh/srag-ml/internal/modelstore"
	"github.com/mhesketh/srag-ml/internal/reranker"
	"github.com/mhesketh/srag-ml/internal/runtimeadapter"
	"github.com/mhesketh/srag-ml/internal/server"
)

func main() {
	// Temporary bootstrap logger until config is loaded.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log := logger.New(logger.Options{Level: cfg.LogLevel, Async: true})
	slog.SetDefault(log)

	modelsDir := modelstore.ResolveDir(cfg.ModelsDir)
	log.Info("config loaded", "models_dir", modelsDir, "api_provider", string(cfg.APIProvider), "log_level", cfg.LogLevel)

	emb := embedder.New(runtimeadapter.NewEmbeddingRuntime(embedder.Dimension), modelsDir)
	rr := reranker.New(runtimeadapter.NewCrossEncoderRuntime(), modelsDir)

	d := &dispatcher.Dispatcher{
		Embedder:    emb,
		Reranker:    rr,
		APIProvider: cfg.APIProvider,
	}

	var llmUnloader server.Unloader
	if cfg.APIProvider == config.ProviderLocal {
		llm := llmengine.New(runtimeadapter.NewCausalLMRuntime(), log, llmengine.Config{
			ModelsDir:     modelsDir,
			ModelFilename: cfg.ModelFilename,
			ModelURL:      cfg.ModelURL,
			ModelSHA256:   cfg.ModelSHA256,
			ContextSize:   cfg.LLMContextSize,
			ThreadHint:    cfg.LLMThreads,
		})
		d.LLM = llm
		d.Router = generation.NewLocal(llm)
		llmUnloader = llm
		log.Info("using local LLM", "filename", cfg.ModelFilename)
	} else {
		client := apiclient.New(apiclient.Config{
			Provider:      string(cfg.APIProvider),
			Model:         cfg.APIModel,
			APIKeyFile:    cfg.APIKeyFile,
			MaxTokens:     cfg.APIMaxTokens,
			RedactSecrets: cfg.RedactSecrets,
		}, log)
		d.Router = generation.NewAPI(client)
		d.APIClient = client
		log.Info("using external API", "provider", string(cfg.APIProvider), "model", cfg.APIModel)
	}

	srv := server.New(server.Config{
		Host:      cfg.Host,
		Port:      cfg.Port,
		PortFile:  cfg.PortFile,
		AuthToken: cfg.AuthToken,
	}, d, llmUnloader, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}
