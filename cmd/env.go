package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/billscan/internal/config"
	"github.com/sells-group/billscan/internal/extract"
	"github.com/sells-group/billscan/internal/ocr"
	"github.com/sells-group/billscan/internal/pipeline"
	"github.com/sells-group/billscan/internal/session"
	"github.com/sells-group/billscan/pkg/anthropic"
)

// env bundles the wired application components for one command invocation.
type env struct {
	Store    session.Store
	Pipeline *pipeline.Pipeline
}

func (e *env) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("store close failed", zap.Error(err))
	}
}

func initStore(ctx context.Context, cfg *config.Config) (session.Store, error) {
	ttl := time.Duration(cfg.Session.TTLHours) * time.Hour

	switch cfg.Store.Driver {
	case "memory", "":
		return session.NewMemory(ttl), nil
	case "sqlite":
		s, err := session.NewSQLite(cfg.Store.SQLitePath, ttl)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := session.NewPostgres(ctx, cfg.Store.DatabaseURL, ttl)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func initEnv(ctx context.Context) (*env, error) {
	store, err := initStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newEnv(store)
}

// initOneShotEnv wires a throwaway in-memory store regardless of the
// configured driver; a one-shot run must not leave session rows behind in
// a shared database.
func initOneShotEnv() (*env, error) {
	return newEnv(session.NewMemory(0))
}

func newEnv(store session.Store) (*env, error) {
	if cfg.Anthropic.Key == "" {
		store.Close()
		return nil, eris.New("anthropic.key is required (BILLSCAN_ANTHROPIC_KEY)")
	}

	extractor, err := ocr.NewExtractor(cfg.OCR)
	if err != nil {
		store.Close()
		return nil, err
	}

	llm := extract.NewClient(anthropic.NewClient(cfg.Anthropic.Key), extract.Config{
		Model:             cfg.Anthropic.Model,
		MaxTokens:         cfg.Anthropic.MaxTokens,
		RequestsPerSecond: cfg.Anthropic.RequestsPerSecond,
	})

	return &env{
		Store:    store,
		Pipeline: pipeline.New(store, extractor, llm, cfg.Pipeline.PageWorkers),
	}, nil
}

// startSweeper deletes idle sessions on an interval until ctx is done.
func startSweeper(ctx context.Context, store session.Store, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := store.DeleteExpired(ctx)
				if err != nil {
					zap.L().Warn("session sweep failed", zap.Error(err))
					continue
				}
				if n > 0 {
					zap.L().Info("expired sessions removed", zap.Int("count", n))
				}
			}
		}
	}()
}
