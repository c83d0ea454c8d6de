package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/design-desk/backend/internal/config"
	"github.com/zhouzirui/design-desk/backend/internal/handler"
	"github.com/zhouzirui/design-desk/backend/internal/logger"
	chatModel "github.com/zhouzirui/design-desk/backend/internal/model/chat"
	"github.com/zhouzirui/design-desk/backend/internal/model/settings"
	"github.com/zhouzirui/design-desk/backend/internal/service/agents"
	"github.com/zhouzirui/design-desk/backend/internal/service/ai"
	"github.com/zhouzirui/design-desk/backend/internal/service/chat"
	"github.com/zhouzirui/design-desk/backend/internal/service/figma"
	"github.com/zhouzirui/design-desk/backend/internal/service/routing"
	"github.com/zhouzirui/design-desk/backend/internal/service/turn"
	"github.com/zhouzirui/design-desk/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(cfg.Log)
	if envErr != nil {
		log.Debug().Err(envErr).Msg("no .env file loaded, using the process environment")
	}

	threads, settingsStore, closeStore, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open storage")
	}
	defer closeStore()

	orchestrator := buildOrchestrator(ctx, cfg, threads, settingsStore, log)

	router := handler.NewRouter(handler.Deps{
		Threads:        threads,
		Settings:       settingsStore,
		Turns:          orchestrator,
		Models:         ai.NewCatalog(settingsStore, cfg.AI.BaseURL, cfg.AI.APIKey, log),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         log,
	})

	startServer(ctx, cfg.Server, router, log)
}

// openStores picks the storage driver and seeds integration tokens from the
// environment without overriding values saved through the settings API.
func openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (chatModel.Store, settings.Store, func(), error) {
	seed := map[string]string{
		settings.KeyFigmaToken:  cfg.Integrations.FigmaToken,
		settings.KeyGitHubToken: cfg.Integrations.GitHubToken,
	}

	if cfg.Storage.Driver == config.DriverMemory {
		log.Info().Msg("using in-memory storage, data is lost on restart")
		return chat.NewService(), settings.NewMemoryStore(seed), func() {}, nil
	}

	db, err := store.NewSQLite(cfg.Storage.Path, log)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := db.SeedSettings(ctx, seed); err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	closeFn := func() {
		if err := db.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close database")
		}
	}
	return db, db, closeFn, nil
}

// buildOrchestrator wires the completion pipeline. Without a model name the
// orchestrator still serves CRUD routes and rejects turns. Credentials may
// come from the environment or from the api_key setting.
func buildOrchestrator(ctx context.Context, cfg *config.Config, threads chatModel.Store, settingsStore settings.Store, log zerolog.Logger) *turn.Orchestrator {
	if cfg.AI.Model == "" {
		log.Warn().Msg("no chat model configured, conversation turns are disabled")
		return turn.NewOrchestrator(threads, settingsStore, nil, nil, nil, log)
	}

	var baseModel model.BaseChatModel
	if cfg.AI.Enabled() {
		m, err := cfg.AI.NewChatModel(ctx)
		if err != nil {
			log.Error().Err(err).Msg("failed to initialize chat model, conversation turns are disabled")
			return turn.NewOrchestrator(threads, settingsStore, nil, nil, nil, log)
		}
		baseModel = m
	} else {
		log.Warn().Msg("ark credentials not configured, turns fail until an api_key setting is saved")
	}
	llm := ai.WithRuntimeSettings(baseModel, settingsStore, func(ctx context.Context, endpoint, apiKey string) (model.BaseChatModel, error) {
		return cfg.AI.WithProvider(endpoint, apiKey).NewChatModel(ctx)
	}, log)

	var titleModel model.BaseChatModel = llm
	if cfg.AI.TitleModel != "" && cfg.AI.Enabled() {
		if tm, err := cfg.AI.NewTitleModel(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to initialize title model, using the chat model")
		} else {
			titleModel = tm
		}
	}

	titles, err := ai.NewService(ctx, titleModel, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to build title chain, titles fall back to message text")
		titles = nil
	}

	router, err := routing.NewRouter(ctx, llm, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to build router chain, conversation turns are disabled")
		return turn.NewOrchestrator(threads, settingsStore, nil, nil, nil, log)
	}

	figmaClient := figma.NewClient(cfg.Integrations.FigmaBaseURL, func(ctx context.Context) (string, error) {
		return settings.Value(ctx, settingsStore, settings.KeyFigmaToken)
	})
	handlers := agents.NewService(llm, figmaClient, log)
	dispatcher := routing.NewDispatcher(handlers, log)

	log.Info().Str("model", cfg.AI.Model).Msg("conversation pipeline ready")

	var titler turn.Titler
	if titles != nil {
		titler = titles
	}
	return turn.NewOrchestrator(threads, settingsStore, router, dispatcher, titler, log)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, log zerolog.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("design desk backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
