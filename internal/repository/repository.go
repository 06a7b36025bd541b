// Package repository declares the persistence contracts used by the delivery services.
package repository

import (
	"context"
	"time"

	"github.com/mamadbah2/restock/internal/domain/models"
)

// OrderDelivery is the narrow set of order fields a delivery writes.
type OrderDelivery struct {
	TenantID       string
	OrderID        string
	PreviousStatus models.OrderStatus
	Items          []models.LineItem
	Status         models.OrderStatus
	DeliveredBy    string
	DeliveredAt    time.Time
	Event          models.DeliveryEvent
}

// Tx is the store view available inside a transaction. Every write is
// committed or discarded together.
type Tx interface {
	GetOrder(ctx context.Context, tenantID, orderID string) (*models.PurchaseOrder, error)
	GetInventoryItems(ctx context.Context, tenantID, locationID string, ids []string) ([]models.InventoryItem, error)
	ApplyInventoryUpdate(ctx context.Context, tenantID, locationID string, update models.InventoryUpdate, at time.Time) error
	ApplyOrderDelivery(ctx context.Context, delivery OrderDelivery) error
}

// Store is the branch-scoped inventory ledger and purchase order store.
type Store interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	GetOrder(ctx context.Context, tenantID, orderID string) (*models.PurchaseOrder, error)
	ListInventory(ctx context.Context, tenantID, locationID string) ([]models.InventoryItem, error)
	UpdateInventoryUnit(ctx context.Context, tenantID, locationID, itemID, unit string, at time.Time) error
	InsertInventoryItem(ctx context.Context, item models.InventoryItem) error
}

// TaskQueue is the durable outbox for post-commit side effects.
type TaskQueue interface {
	Enqueue(ctx context.Context, tasks []models.Task) error
	Pending(ctx context.Context, limit int) ([]models.Task, error)
	// Claim leases a pending task to the caller until the given time. It
	// reports false when another worker holds an unexpired lease.
	Claim(ctx context.Context, id string, now, until time.Time) (bool, error)
	MarkDone(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, cause string, dead bool, at time.Time) error
}

// MovementLog persists audit records of stock changes.
type MovementLog interface {
	RecordMovement(ctx context.Context, record models.MovementRecord) error
}

// FindByName returns the branch item whose trimmed, case-insensitive name matches.
func FindByName(items []models.InventoryItem, name string) (models.InventoryItem, bool) {
	key := models.NormalizeName(name)
	for _, item := range items {
		if models.NormalizeName(item.Name) == key {
			return item, true
		}
	}
	return models.InventoryItem{}, false
}
