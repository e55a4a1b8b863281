package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mkarlsen/reconcile/internal/bootstrap"
	"github.com/mkarlsen/reconcile/internal/config"
	"github.com/mkarlsen/reconcile/internal/core/domain"
	"github.com/mkarlsen/reconcile/internal/observability/logging"
	"github.com/mkarlsen/reconcile/internal/observability/metrics"
)

const service = "reconcile-worker"

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(service, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	matcherMetrics := metrics.NewMatcherMetrics(service)

	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: matcherMetrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	go runExpirySweep(ctx, app, matcherMetrics, cfg.SuggestionExpiryDays, cfg.ExpirySweepInterval)

	log.Printf("worker subscribed to %s", cfg.NATSSubject)
	err = app.Queue.SubscribeMatchRequested(ctx, func(handlerCtx context.Context, request domain.MatchRequest) error {
		matchCtx, cancel := context.WithTimeout(handlerCtx, time.Minute)
		defer cancel()
		return handleMatchRequest(matchCtx, app, matcherMetrics, request)
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}

func handleMatchRequest(ctx context.Context, app *bootstrap.App, m *metrics.MatcherMetrics, request domain.MatchRequest) error {
	start := time.Now()
	m.StartAttempt(service, string(request.Direction))

	var result *domain.MatchResult
	var inboxID, transactionID string
	switch request.Direction {
	case domain.DirectionReverse:
		result = app.MatchUC.FindBestInboxMatch(ctx, request.TeamID, request.TransactionID)
		transactionID = request.TransactionID
		if result != nil {
			inboxID = result.InboxID
		}
	case domain.DirectionForward:
		result = app.MatchUC.FindBestTransactionMatch(ctx, request.TeamID, request.InboxID)
		inboxID = request.InboxID
		if result != nil {
			transactionID = result.TransactionID
		}
	default:
		m.FinishAttempt(service, string(request.Direction), "", time.Since(start))
		return fmt.Errorf("unknown match direction %q", request.Direction)
	}

	if result == nil {
		m.FinishAttempt(service, string(request.Direction), "", time.Since(start))
		return nil
	}
	m.FinishAttempt(service, string(request.Direction), string(result.MatchType), time.Since(start))

	if _, err := app.ReviewUC.RecordSuggestion(ctx, request.TeamID, inboxID, transactionID, result); err != nil {
		return fmt.Errorf("record suggestion: %w", err)
	}
	m.RecordSuggestion(service, string(result.MatchType))
	return nil
}

func runExpirySweep(ctx context.Context, app *bootstrap.App, m *metrics.MatcherMetrics, expiryDays int, interval time.Duration) {
	if expiryDays <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().AddDate(0, 0, -expiryDays)
			expired, err := app.Suggestions.ExpirePending(ctx, cutoff)
			m.RecordExpiry(expired, err)
			if err != nil {
				slog.Error("expiry sweep failed", "error", err)
				continue
			}
			if expired > 0 {
				slog.Info("expired stale suggestions", "count", expired)
			}
		}
	}
}
