package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pptgirl/pptgirl/internal/auth"
	"github.com/pptgirl/pptgirl/internal/client"
	"github.com/pptgirl/pptgirl/internal/config"
	"github.com/pptgirl/pptgirl/internal/convstore"
	"github.com/pptgirl/pptgirl/internal/log"
	"github.com/pptgirl/pptgirl/internal/orchestrator"
	"github.com/pptgirl/pptgirl/internal/provider"
	"github.com/pptgirl/pptgirl/internal/provider/anthropic"
	"github.com/pptgirl/pptgirl/internal/provider/google"
	"github.com/pptgirl/pptgirl/internal/provider/openai"
	"github.com/pptgirl/pptgirl/internal/server"
	"github.com/pptgirl/pptgirl/internal/session"
	"github.com/pptgirl/pptgirl/internal/skill"
	"github.com/pptgirl/pptgirl/internal/tool"
	"github.com/pptgirl/pptgirl/internal/workspace"
)

var version = "0.1.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:     "pptgirl",
	Short:   "PPT Girl - chat assistant that designs presentation decks",
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func init() {
	// Load .env if present; real environment still wins inside Load.
	_ = godotenv.Load()

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to config file")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var _ provider.Factory = newProvider

// newProvider builds the chat provider selected by configuration.
func newProvider(ctx context.Context, name, apiKey string) (provider.LLMProvider, error) {
	switch name {
	case "anthropic":
		return anthropic.New(apiKey), nil
	case "openai":
		return openai.New(apiKey), nil
	case "google":
		return google.New(ctx, apiKey)
	default:
		return nil, fmt.Errorf("%w: %s", provider.ErrUnknownProvider, name)
	}
}

// imageGenerator picks the image backend: the chat provider when it is the
// OpenAI client, otherwise a dedicated OpenAI client when a key is around.
func imageGenerator(p provider.LLMProvider) tool.ImageGenerator {
	if c, ok := p.(*openai.Client); ok {
		return c
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return openai.New(key)
	}
	return nil
}

func serve(ctx context.Context, cfg config.Config) error {
	if err := log.Init(log.Options{
		Dir:   filepath.Join(cfg.DataDir, "logs"),
		Debug: os.Getenv("PPTGIRL_DEBUG") == "1",
	}); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer log.Sync()
	logger := log.Logger()

	chatProvider, err := newProvider(ctx, cfg.Provider.Name, cfg.Provider.APIKey)
	if err != nil {
		return err
	}

	conversations, err := convstore.NewFileStore(filepath.Join(cfg.DataDir, "conversations"))
	if err != nil {
		return err
	}
	workspaces, err := workspace.NewDiskStore(filepath.Join(cfg.DataDir, "workspaces"), cfg.PublicBaseURL)
	if err != nil {
		return err
	}
	rows, err := session.NewRowStore(filepath.Join(cfg.DataDir, "sessions"))
	if err != nil {
		return err
	}

	skills, err := skill.LoadEmbedded()
	if err != nil {
		return fmt.Errorf("load skill catalog: %w", err)
	}

	registry := tool.NewRegistry()
	registry.Register(&tool.ReadFileTool{})
	registry.Register(&tool.WriteFileTool{})
	registry.Register(&tool.EditFileTool{})
	registry.Register(&tool.ListFilesTool{})
	registry.Register(&tool.FetchPageTool{})
	registry.Register(&tool.TodoCreateTool{})
	registry.Register(&tool.TodoUpdateTool{})
	registry.Register(&tool.TodoListTool{})
	registry.Register(&tool.SearchSkillsTool{Catalog: skills})
	if gen := imageGenerator(chatProvider); gen != nil {
		registry.Register(&tool.SlideImageTool{
			Generator: gen,
			Model:     cfg.ImageModel,
			Size:      cfg.ImageSize,
		})
	} else {
		logger.Warn("no image backend configured, slide generation disabled")
	}

	manager := &session.Manager{
		Rows:          rows,
		Conversations: conversations,
		Workspaces:    workspaces,
		Logger:        logger,
	}

	orch := &orchestrator.Orchestrator{
		Client: &client.Client{
			Provider:  chatProvider,
			Model:     cfg.Provider.Model,
			MaxTokens: cfg.Provider.MaxTokens,
		},
		Registry:    registry,
		Exec:        &tool.Executor{Registry: registry, Logger: logger},
		Adapter:     convstore.NewAdapter(conversations, logger),
		Workspaces:  workspaces,
		Sessions:    manager,
		Policy:      cfg.ContextEdit.Policy(),
		MaxRounds:   cfg.MaxRounds,
		TurnTimeout: cfg.TurnTimeout,
		Logger:      logger,
	}

	var identity auth.Identity
	if len(cfg.AuthTokens) > 0 {
		identity = auth.NewTokenIdentity(cfg.AuthTokens)
	} else {
		logger.Warn("no auth tokens configured, running in single-user dev mode",
			zap.String("user", cfg.DevUser))
		identity = auth.StaticIdentity{User: cfg.DevUser}
	}

	srv := &server.Server{
		Orch:          orch,
		Sessions:      manager,
		Conversations: conversations,
		Workspaces:    workspaces,
		Identity:      identity,
		Logger:        logger,
	}

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("addr", cfg.Addr),
			zap.String("provider", cfg.Provider.Name),
			zap.String("model", cfg.Provider.Model))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
