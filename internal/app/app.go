// Package app assembles the delivery service and its collaborators from configuration.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mamadbah2/restock/internal/config"
	"github.com/mamadbah2/restock/internal/repository"
	"github.com/mamadbah2/restock/internal/repository/cache"
	"github.com/mamadbah2/restock/internal/repository/mongodb"
	"github.com/mamadbah2/restock/internal/repository/sheets"
	"github.com/mamadbah2/restock/internal/service/delivery"
	"github.com/mamadbah2/restock/internal/service/sideeffects"
	"github.com/mamadbah2/restock/pkg/clients/pricing"
	whatsappclient "github.com/mamadbah2/restock/pkg/clients/whatsapp"
)

// App holds the wired components shared by the server and the CLI.
type App struct {
	Store      *mongodb.MongoDBRepository
	Snapshots  cache.SnapshotCache
	Dispatcher *sideeffects.Dispatcher
	Deliveries *delivery.Service

	redis  *cache.RedisSnapshotCache
	logger *zap.Logger
}

// New connects to the configured backends. Optional integrations are skipped
// when their configuration is absent.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := mongodb.NewMongoDBRepository(ctx, cfg.MongoDB.URI, cfg.MongoDB.DBName, cfg.MongoDB.TxTimeout, logger.Named("repo.mongodb"))
	if err != nil {
		return nil, fmt.Errorf("init mongodb repository: %w", err)
	}
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = store.Close(ctx)
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}

	a := &App{Store: store, logger: logger}

	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedisSnapshotCache(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.SnapshotTTL, logger.Named("repo.cache"))
		if err != nil {
			_ = store.Close(ctx)
			return nil, fmt.Errorf("init snapshot cache: %w", err)
		}
		a.redis = rc
		a.Snapshots = rc
	} else {
		logger.Warn("redis address missing, snapshot cache kept in process")
		a.Snapshots = cache.NewMemorySnapshotCache(cfg.Redis.SnapshotTTL)
	}

	movements := []repository.MovementLog{store}
	if cfg.Sheets.Enabled() {
		sheetRepo, err := sheets.NewGoogleSheetRepository(ctx, cfg.Sheets, logger.Named("repo.sheets"))
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("init sheets repository: %w", err)
		}
		movements = append(movements, sheets.NewMovementMirror(sheetRepo, cfg.Sheets.MovementRange))
		logger.Info("sheets movement mirror enabled")
	}

	opts := sideeffects.Options{
		Queue:       store,
		Movements:   movements,
		MaxAttempts: cfg.Outbox.MaxAttempts,
	}
	if cfg.WhatsApp.Enabled() {
		opts.Notifier = sideeffects.NewWhatsAppNotifier(whatsappclient.NewClient(cfg.WhatsApp))
		logger.Info("whatsapp delivery notifications enabled")
	} else {
		logger.Warn("whatsapp token missing, delivery notifications disabled")
	}
	if cfg.PriceSync.WebhookURL != "" {
		opts.Pricing = pricing.NewWebhookClient(cfg.PriceSync)
		logger.Info("price sync webhook enabled")
	}

	a.Dispatcher = sideeffects.NewDispatcher(opts, logger.Named("svc.sideeffects"))
	a.Deliveries = delivery.NewService(store, a.Snapshots, a.Dispatcher, logger.Named("svc.delivery"))

	return a, nil
}

// Close waits for in-flight side effects and releases connections.
func (a *App) Close(ctx context.Context) {
	if a.Dispatcher != nil {
		a.Dispatcher.Wait()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("failed to close redis connection", zap.Error(err))
		}
	}
	if err := a.Store.Close(ctx); err != nil {
		a.logger.Error("failed to close mongodb connection", zap.Error(err))
	}
}
