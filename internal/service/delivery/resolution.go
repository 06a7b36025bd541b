package delivery

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mamadbah2/restock/internal/domain/models"
	"github.com/mamadbah2/restock/internal/repository"
	"github.com/mamadbah2/restock/internal/service/sideeffects"
)

// ResolveUnitMismatch relabels a branch item's unit to the delivered unit so
// the rejected delivery line can be retried. Quantities are not converted.
func (s *Service) ResolveUnitMismatch(ctx context.Context, in models.ResolveUnitMismatchInput) (models.ResolveResult, error) {
	newUnit := strings.TrimSpace(in.NewUnit)
	switch {
	case in.TenantID == "" || in.LocationID == "":
		return models.ResolveResult{Message: "tenant and branch are required"}, fmt.Errorf("tenant and branch are required: %w", models.ErrValidation)
	case strings.TrimSpace(in.ItemName) == "":
		return models.ResolveResult{Message: "item name is required"}, fmt.Errorf("item name is required: %w", models.ErrValidation)
	case newUnit == "":
		return models.ResolveResult{Message: "new unit is required"}, fmt.Errorf("new unit is required: %w", models.ErrValidation)
	case strings.TrimSpace(in.ActorID) == "":
		return models.ResolveResult{Message: "actor is required"}, fmt.Errorf("actor is required: %w", models.ErrValidation)
	}

	items, err := s.store.ListInventory(ctx, in.TenantID, in.LocationID)
	if err != nil {
		return models.ResolveResult{Message: UserMessage(err)}, fmt.Errorf("load branch inventory: %w", err)
	}
	item, ok := repository.FindByName(items, in.ItemName)
	if !ok {
		err := fmt.Errorf("inventory item %q: %w", in.ItemName, models.ErrNotFound)
		return models.ResolveResult{Message: fmt.Sprintf("%s is not in this branch's inventory", in.ItemName)}, err
	}

	if models.SameUnit(item.Unit, newUnit) {
		return models.ResolveResult{
			Success: true,
			Message: fmt.Sprintf("%s already uses unit %s", item.Name, item.Unit),
		}, nil
	}

	now := s.now().UTC()
	previous := item.Unit
	if err := s.store.UpdateInventoryUnit(ctx, in.TenantID, in.LocationID, item.ID, newUnit, now); err != nil {
		return models.ResolveResult{Message: UserMessage(err)}, fmt.Errorf("relabel unit: %w", err)
	}
	item.Unit = newUnit

	if err := s.snapshots.Invalidate(ctx, in.TenantID, in.LocationID); err != nil {
		s.logger.Warn("failed to invalidate inventory snapshot", zap.Error(err))
	}
	if s.effects != nil {
		s.effects.Dispatch(ctx, []models.Task{sideeffects.RelabelTask(item, previous, in.ActorID, now)})
	}

	s.logger.Info("unit relabelled",
		zap.String("tenant", in.TenantID),
		zap.String("location", in.LocationID),
		zap.String("item", item.ID),
		zap.String("from", previous),
		zap.String("to", newUnit),
		zap.String("actor", in.ActorID))

	return models.ResolveResult{
		Success: true,
		Message: fmt.Sprintf("%s now counted in %s (was %s). Retry the delivery of %g %s.", item.Name, newUnit, previous, in.Quantity, newUnit),
	}, nil
}

// AddMissingInventoryItem creates the branch item an unmatched delivery line
// referred to and returns its id. The delivery must then be retried.
func (s *Service) AddMissingInventoryItem(ctx context.Context, in models.AddMissingItemInput) (string, error) {
	name := strings.TrimSpace(in.ItemName)
	unit := strings.TrimSpace(in.Unit)
	switch {
	case in.TenantID == "" || in.LocationID == "":
		return "", fmt.Errorf("tenant and branch are required: %w", models.ErrValidation)
	case name == "":
		return "", fmt.Errorf("item name is required: %w", models.ErrValidation)
	case unit == "":
		return "", fmt.Errorf("unit is required: %w", models.ErrValidation)
	case in.UnitPrice < 0:
		return "", fmt.Errorf("unit price must not be negative: %w", models.ErrValidation)
	}

	items, err := s.store.ListInventory(ctx, in.TenantID, in.LocationID)
	if err != nil {
		return "", fmt.Errorf("load branch inventory: %w", err)
	}
	if existing, ok := repository.FindByName(items, name); ok {
		return existing.ID, fmt.Errorf("inventory item %q already exists as %s: %w", name, existing.ID, models.ErrConflict)
	}

	now := s.now().UTC()
	item := models.InventoryItem{
		ID:           s.newID(),
		TenantID:     in.TenantID,
		LocationID:   in.LocationID,
		Name:         name,
		Unit:         unit,
		CurrentStock: 0,
		CostPerUnit:  in.UnitPrice,
		MinStock:     models.DefaultMinStock,
		MaxStock:     models.DefaultMaxStock,
		Status:       models.DeriveStockStatus(0, models.DefaultMinStock),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.InsertInventoryItem(ctx, item); err != nil {
		return "", fmt.Errorf("insert inventory item: %w", err)
	}

	if err := s.snapshots.Invalidate(ctx, in.TenantID, in.LocationID); err != nil {
		s.logger.Warn("failed to invalidate inventory snapshot", zap.Error(err))
	}

	s.logger.Info("inventory item added",
		zap.String("tenant", in.TenantID),
		zap.String("location", in.LocationID),
		zap.String("item", item.ID),
		zap.String("name", name))

	return item.ID, nil
}
