// Package delivery applies purchase order deliveries to branch inventory and
// hosts the operator actions that resolve rejected deliveries.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/restock/internal/domain/models"
	"github.com/mamadbah2/restock/internal/repository"
	"github.com/mamadbah2/restock/internal/repository/cache"
	"github.com/mamadbah2/restock/internal/service/reconcile"
	"github.com/mamadbah2/restock/internal/service/sideeffects"
)

// Publisher hands post-commit tasks to the side-effect dispatcher.
type Publisher interface {
	Dispatch(ctx context.Context, tasks []models.Task)
}

// Service coordinates delivery reconciliation against the store.
type Service struct {
	store     repository.Store
	snapshots cache.SnapshotCache
	effects   Publisher
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

// NewService wires a delivery service. A nil cache disables snapshot caching
// and a nil publisher drops side effects.
func NewService(store repository.Store, snapshots cache.SnapshotCache, effects Publisher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if snapshots == nil {
		snapshots = cache.NopSnapshotCache{}
	}
	return &Service{
		store:     store,
		snapshots: snapshots,
		effects:   effects,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// DeliverPurchaseOrder records goods received against an order.
//
// Unmatched or unit-mismatched lines reject the whole delivery; that outcome
// is returned as a result with Success=false and a nil error. Malformed
// requests, status violations, quota exhaustion and store failures are
// returned as errors wrapping the models sentinels. Nothing is retried.
func (s *Service) DeliverPurchaseOrder(ctx context.Context, req models.DeliveryRequest) (models.DeliveryResult, error) {
	log := s.logger.With(zap.String("tenant", req.TenantID), zap.String("order", req.OrderID))

	order, err := s.store.GetOrder(ctx, req.TenantID, req.OrderID)
	if err != nil {
		return failure(err), fmt.Errorf("load purchase order: %w", err)
	}
	if order.HasDelivery(req.DeliveryID) {
		log.Info("duplicate delivery ignored", zap.String("delivery", req.DeliveryID))
		return models.DeliveryResult{Success: true, Duplicate: true, OrderStatus: order.Status}, nil
	}
	if err := reconcile.CheckDeliverable(order); err != nil {
		return failure(err), err
	}

	now := s.now().UTC()
	result, err := s.classify(ctx, order, req, now)
	if err != nil {
		return failure(err), err
	}
	if result.Rejected() {
		log.Info("delivery rejected",
			zap.Strings("not_found", result.Classification.NotFoundItems),
			zap.Int("unit_mismatches", len(result.Classification.UnitMismatches)))
		return rejection(result.Classification), nil
	}

	if req.DeliveryID == "" {
		req.DeliveryID = s.newID()
	}

	var (
		committed *reconcile.Applied
		current   *models.PurchaseOrder
		rejected  *models.InventoryUpdateResult
		duplicate bool
	)
	err = s.store.RunInTransaction(ctx, func(ctx context.Context, tx repository.Tx) error {
		latest, err := tx.GetOrder(ctx, req.TenantID, req.OrderID)
		if err != nil {
			return err
		}
		if latest.HasDelivery(req.DeliveryID) {
			duplicate = true
			current = latest
			return nil
		}

		ids := make([]string, 0, len(result.Applied.Updates))
		for _, u := range result.Applied.Updates {
			ids = append(ids, u.ItemID)
		}
		items, err := tx.GetInventoryItems(ctx, latest.TenantID, latest.LocationID, ids)
		if err != nil {
			return err
		}

		inner, err := reconcile.Reconcile(latest, items, req, now)
		if err != nil {
			return err
		}
		if inner.Rejected() {
			rejected = &inner.Classification
			return nil
		}

		for _, u := range inner.Applied.Updates {
			if err := tx.ApplyInventoryUpdate(ctx, latest.TenantID, latest.LocationID, u, now); err != nil {
				return err
			}
		}
		if err := tx.ApplyOrderDelivery(ctx, repository.OrderDelivery{
			TenantID:       latest.TenantID,
			OrderID:        latest.ID,
			PreviousStatus: latest.Status,
			Items:          inner.Applied.Items,
			Status:         inner.Applied.Status,
			DeliveredBy:    inner.Applied.Event.ReceivedBy,
			DeliveredAt:    now,
			Event:          inner.Applied.Event,
		}); err != nil {
			return err
		}

		committed = inner.Applied
		current = latest
		result = inner
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrQuotaExceeded) {
			log.Warn("delivery not applied: store quota exhausted", zap.Error(err))
		} else {
			log.Error("delivery transaction failed", zap.Error(err))
		}
		return failure(err), fmt.Errorf("apply delivery: %w", err)
	}

	switch {
	case duplicate:
		return models.DeliveryResult{Success: true, Duplicate: true, OrderStatus: current.Status}, nil
	case rejected != nil:
		// the pre-check matched against a snapshot the transaction no longer agrees with
		if err := s.snapshots.Invalidate(ctx, order.TenantID, order.LocationID); err != nil {
			log.Warn("failed to invalidate inventory snapshot", zap.Error(err))
		}
		log.Info("delivery rejected inside transaction, snapshot dropped",
			zap.Strings("not_found", rejected.NotFoundItems),
			zap.Int("unit_mismatches", len(rejected.UnitMismatches)))
		res := rejection(*rejected)
		res.Error += "; branch inventory changed while saving, submit the delivery again to re-check"
		return res, nil
	}

	if err := s.snapshots.Invalidate(ctx, current.TenantID, current.LocationID); err != nil {
		log.Warn("failed to invalidate inventory snapshot", zap.Error(err))
	}
	if s.effects != nil {
		s.effects.Dispatch(ctx, sideeffects.DeliveryTasks(current, committed.Event, committed.Updates, committed.Status, now))
	}

	log.Info("delivery applied",
		zap.String("delivery", committed.Event.ID),
		zap.String("status", string(committed.Status)),
		zap.Int("items", len(committed.Updates)))

	classification := result.Classification
	return models.DeliveryResult{
		Success:               true,
		OrderStatus:           committed.Status,
		InventoryUpdateResult: &classification,
	}, nil
}

// classify runs the reconciler outside any transaction. A rejection computed
// from a cached snapshot is confirmed against the store before it is returned.
func (s *Service) classify(ctx context.Context, order *models.PurchaseOrder, req models.DeliveryRequest, now time.Time) (reconcile.Result, error) {
	snapshot, cached, err := s.snapshot(ctx, order.TenantID, order.LocationID, true)
	if err != nil {
		return reconcile.Result{}, err
	}
	result, err := reconcile.Reconcile(order, snapshot.Items, req, now)
	if err != nil || !result.Rejected() || !cached {
		return result, err
	}

	snapshot, _, err = s.snapshot(ctx, order.TenantID, order.LocationID, false)
	if err != nil {
		return reconcile.Result{}, err
	}
	return reconcile.Reconcile(order, snapshot.Items, req, now)
}

func (s *Service) snapshot(ctx context.Context, tenantID, locationID string, allowCached bool) (models.Snapshot, bool, error) {
	if allowCached {
		snap, ok, err := s.snapshots.Get(ctx, tenantID, locationID)
		if err != nil {
			s.logger.Warn("snapshot cache read failed", zap.String("location", locationID), zap.Error(err))
		} else if ok {
			return snap, true, nil
		}
	}

	items, err := s.store.ListInventory(ctx, tenantID, locationID)
	if err != nil {
		return models.Snapshot{}, false, fmt.Errorf("load branch inventory: %w", err)
	}
	snap := models.Snapshot{FetchedAt: s.now().UTC(), Items: items}
	if err := s.snapshots.Put(ctx, tenantID, locationID, snap); err != nil {
		s.logger.Warn("snapshot cache write failed", zap.String("location", locationID), zap.Error(err))
	}
	return snap, false, nil
}

func failure(err error) models.DeliveryResult {
	return models.DeliveryResult{Success: false, Error: UserMessage(err)}
}

func rejection(classification models.InventoryUpdateResult) models.DeliveryResult {
	return models.DeliveryResult{
		Success:               false,
		Error:                 RejectionMessage(classification),
		InventoryUpdateResult: &classification,
	}
}

// RejectionMessage summarizes why a delivery was refused.
func RejectionMessage(r models.InventoryUpdateResult) string {
	var parts []string
	if n := len(r.NotFoundItems); n > 0 {
		parts = append(parts, fmt.Sprintf("%d item(s) not found in inventory: %s", n, strings.Join(r.NotFoundItems, ", ")))
	}
	if n := len(r.UnitMismatches); n > 0 {
		names := make([]string, 0, n)
		for _, m := range r.UnitMismatches {
			names = append(names, fmt.Sprintf("%s (expected %s, received %s)", m.ItemName, m.ExpectedUnit, m.ReceivedUnit))
		}
		parts = append(parts, fmt.Sprintf("%d unit mismatch(es): %s", n, strings.Join(names, ", ")))
	}
	return "delivery rejected, no inventory was changed; " + strings.Join(parts, "; ")
}

// UserMessage maps an error to the text shown to operators.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, models.ErrInvalidState):
		return "This order can no longer receive deliveries. Refresh the order to see its current status."
	case errors.Is(err, models.ErrNotFound):
		return "The purchase order or inventory item was not found."
	case errors.Is(err, models.ErrQuotaExceeded):
		return "The inventory store is over its usage quota. Nothing was saved; try again later."
	case errors.Is(err, models.ErrConflict):
		return "The order was changed by someone else while saving. Refresh and submit again."
	case errors.Is(err, models.ErrValidation):
		return err.Error()
	case errors.Is(err, models.ErrTransient):
		return "The inventory store is temporarily unavailable. Try again."
	default:
		return "Delivery could not be saved."
	}
}
