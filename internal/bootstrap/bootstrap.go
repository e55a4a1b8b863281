package bootstrap

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/mkarlsen/reconcile/internal/config"
	"github.com/mkarlsen/reconcile/internal/core/ports"
	"github.com/mkarlsen/reconcile/internal/core/usecase"
	"github.com/mkarlsen/reconcile/internal/infrastructure/queue/nats"
	"github.com/mkarlsen/reconcile/internal/infrastructure/repository/postgres"
	"github.com/mkarlsen/reconcile/internal/infrastructure/resilience"
)

type App struct {
	Config config.Config

	Queue       ports.MatchQueue
	Suggestions ports.SuggestionStore
	MatchUC     ports.Matcher
	ReviewUC    ports.SuggestionReviewer

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	suggestions := postgres.NewSuggestionStore(db)
	if err := suggestions.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	candidates := postgres.NewCandidateStore(db)

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	matchUC := usecase.NewMatchUseCase(candidates, suggestions, usecase.MatchConfig{
		MerchantAnalysisTopK: cfg.MatchTopK,
		CalibrationCacheTTL:  cfg.CalibrationCacheTTL,
		MerchantQueryRate:    rate.Limit(cfg.MerchantQueriesPerSec),
		MerchantQueryBurst:   cfg.MerchantQueryBurst,
	})
	reviewUC := usecase.NewSuggestionUseCase(suggestions)

	return &App{
		Config: cfg,

		Queue:       queue,
		Suggestions: suggestions,
		MatchUC:     matchUC,
		ReviewUC:    reviewUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
