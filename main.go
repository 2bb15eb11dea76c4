package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/xiaot623/converse/internal/chat"
	"github.com/xiaot623/converse/internal/config"
	"github.com/xiaot623/converse/internal/inference"
	"github.com/xiaot623/converse/internal/kv"
	"github.com/xiaot623/converse/internal/safety"
	"github.com/xiaot623/converse/internal/session"
	transport "github.com/xiaot623/converse/internal/transport/http"
	v1 "github.com/xiaot623/converse/internal/transport/http/v1"
)

func main() {
	var configFile string

	root := &cobra.Command{
		Use:   "converse",
		Short: "Conversational API gateway for a causal language model",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configFile)
		},
	}
	root.Flags().StringVarP(&configFile, "config", "c", "", "path to config file")

	if err := root.Execute(); err != nil {
		log.WithError(err).Fatal("startup failed")
	}
}

func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&log.JSONFormatter{})

	store, err := newStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialise session store: %w", err)
	}
	defer store.Close()

	gen := inference.NewGenerator(cfg.InferenceURL, cfg.InferenceAPIKey, cfg.ModelLabel, cfg.InferenceTimeout)
	pool := inference.NewPool(gen, cfg.InferenceWorkers)

	var moderator safety.Moderator
	if cfg.EnableModeration {
		moderator = safety.NewLLMModerator(cfg.ModerationURL, cfg.ModerationModel)
		log.WithField("model", cfg.ModerationModel).Info("moderation layer enabled")
	}
	filter := safety.New(cfg.MaxInputLength, cfg.BlockedTopics, moderator)

	sessions := session.NewManager(store, cfg.MaxHistoryTurns, cfg.SessionTTL, cfg.SummarizeAfter)

	svc := chat.New(sessions, filter, pool, inference.Params{
		MaxTokens:         cfg.MaxNewTokens,
		Temperature:       cfg.Temperature,
		TopP:              cfg.TopP,
		RepetitionPenalty: cfg.RepetitionPenalty,
	}, cfg.MaxContextTokens)

	// The mock generator has no reachability probe; /ready then reports
	// the model as reachable.
	var backend v1.BackendHealth
	if client, ok := gen.(*inference.Client); ok {
		backend = client
	}

	handler := v1.NewHandler(svc, store, backend)
	server := transport.NewServer(cfg, handler)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down cleanly: %w", err)
	}
	log.Info("server stopped")
	return nil
}

// newStore selects the session store backend. Redis when configured,
// otherwise the embedded SQLite fallback.
func newStore(cfg *config.Config) (kv.Store, error) {
	if cfg.RedisURL != "" {
		store, err := kv.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		log.Info("using redis session store")
		return store, nil
	}
	store, err := kv.NewSQLiteStore(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	log.WithField("path", cfg.SQLitePath).Info("using sqlite session store")
	return store, nil
}
