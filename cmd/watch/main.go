package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/client"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/poller"
)

// watch keeps the ticket list, the notice board and optionally one ticket thread in
// sync with the API and logs what changed.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := observability.NewLogger(cfg.App, cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := client.New(cfg.Client.BaseURL, cfg.Client.Token, cfg.Notification.Timeout())
	metrics := observability.NewMetrics()

	tickets := poller.New[dto.TicketSummary]("tickets", client.TicketID, logger, metrics)
	tickets.Start(ctx, api.TicketListFetcher(nil), cfg.Poller.ListInterval(),
		func(items []dto.TicketSummary) {
			logger.Info("ticket list updated", zap.Int("count", len(items)))
		},
		func(t dto.TicketSummary) {
			logger.Info("new ticket",
				zap.String("number", t.Number),
				zap.String("title", t.Title),
				zap.String("urgency", string(t.Urgency)))
		})
	defer tickets.Stop()

	notices := poller.New[dto.NoticeResponse]("notices", client.NoticeID, logger, metrics)
	notices.Start(ctx, api.NoticeFetcher(), cfg.Poller.NoticeInterval(),
		func(items []dto.NoticeResponse) {
			logger.Info("notice board updated", zap.Int("count", len(items)))
		},
		func(n dto.NoticeResponse) {
			logger.Info("new notice", zap.String("title", n.Title), zap.String("priority", string(n.Priority)))
		})
	defer notices.Stop()

	if cfg.Client.TicketID != "" {
		thread := poller.New[dto.TicketMessageResponse]("thread", client.MessageID, logger, metrics)
		thread.Start(ctx, api.ThreadFetcher(cfg.Client.TicketID), cfg.Poller.DetailInterval(),
			nil,
			func(m dto.TicketMessageResponse) {
				logger.Info("new message", zap.String("role", string(m.Role)), zap.String("content", m.Content))
			})
		defer thread.Stop()
	}

	// SIGHUP refreshes every view immediately.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	for {
		select {
		case <-ctx.Done():
			logger.Info("watch stopped")
			return
		case <-hup:
			tickets.ForceRefresh()
			notices.ForceRefresh()
		case <-time.After(time.Minute):
			if !tickets.IsActive() || !notices.IsActive() {
				logger.Warn("poller inactive", zap.Bool("tickets", tickets.IsActive()), zap.Bool("notices", notices.IsActive()))
			}
		}
	}
}
