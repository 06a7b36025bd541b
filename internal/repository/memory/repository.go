// Package memory provides an in-process implementation of the repository
// contracts. Transactions are serialized and applied copy-on-write.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mamadbah2/restock/internal/domain/models"
	"github.com/mamadbah2/restock/internal/repository"
)

// Repository is an in-memory store, outbox and movement log.
type Repository struct {
	mu        sync.Mutex
	orders    map[string]models.PurchaseOrder
	inventory map[string]models.InventoryItem
	tasks     map[string]models.Task
	taskOrder []string
	movements []models.MovementRecord

	commitErr error
	txCount   int
}

// Verify interface compliance
var (
	_ repository.Store       = (*Repository)(nil)
	_ repository.TaskQueue   = (*Repository)(nil)
	_ repository.MovementLog = (*Repository)(nil)
)

// NewRepository creates an empty in-memory repository.
func NewRepository() *Repository {
	return &Repository{
		orders:    make(map[string]models.PurchaseOrder),
		inventory: make(map[string]models.InventoryItem),
		tasks:     make(map[string]models.Task),
	}
}

// PutOrder stores or replaces a purchase order.
func (r *Repository) PutOrder(order models.PurchaseOrder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[orderKey(order.TenantID, order.ID)] = cloneOrder(order)
}

// PutInventory stores or replaces inventory items.
func (r *Repository) PutInventory(items ...models.InventoryItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range items {
		r.inventory[item.ID] = item
	}
}

// Item returns an inventory item by id.
func (r *Repository) Item(id string) (models.InventoryItem, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.inventory[id]
	return item, ok
}

// Movements returns every recorded movement in insertion order.
func (r *Repository) Movements() []models.MovementRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.MovementRecord, len(r.movements))
	copy(out, r.movements)
	return out
}

// Tasks returns every outbox task in insertion order.
func (r *Repository) Tasks() []models.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Task, 0, len(r.taskOrder))
	for _, id := range r.taskOrder {
		out = append(out, r.tasks[id])
	}
	return out
}

// TransactionCount reports how many transactions were started.
func (r *Repository) TransactionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.txCount
}

// FailCommits makes every subsequent commit fail with err; nil restores normal behaviour.
func (r *Repository) FailCommits(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commitErr = err
}

// RunInTransaction stages fn's writes and applies them only if fn and the commit succeed.
func (r *Repository) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txCount++

	tx := &memTx{
		repo:      r,
		orders:    make(map[string]models.PurchaseOrder),
		inventory: make(map[string]models.InventoryItem),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrTransient, err)
	}
	if r.commitErr != nil {
		return r.commitErr
	}

	for key, order := range tx.orders {
		r.orders[key] = order
	}
	for id, item := range tx.inventory {
		r.inventory[id] = item
	}
	return nil
}

// GetOrder loads a tenant's purchase order.
func (r *Repository) GetOrder(_ context.Context, tenantID, orderID string) (*models.PurchaseOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getOrder(tenantID, orderID)
}

func (r *Repository) getOrder(tenantID, orderID string) (*models.PurchaseOrder, error) {
	order, ok := r.orders[orderKey(tenantID, orderID)]
	if !ok {
		return nil, fmt.Errorf("purchase order %s: %w", orderID, models.ErrNotFound)
	}
	clone := cloneOrder(order)
	return &clone, nil
}

// ListInventory returns a branch's items sorted by name.
func (r *Repository) ListInventory(_ context.Context, tenantID, locationID string) ([]models.InventoryItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var items []models.InventoryItem
	for _, item := range r.inventory {
		if item.TenantID == tenantID && item.LocationID == locationID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

// UpdateInventoryUnit relabels an item's unit.
func (r *Repository) UpdateInventoryUnit(_ context.Context, tenantID, locationID, itemID, unit string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.inventory[itemID]
	if !ok || item.TenantID != tenantID || item.LocationID != locationID {
		return fmt.Errorf("inventory item %s: %w", itemID, models.ErrNotFound)
	}
	item.Unit = unit
	item.UpdatedAt = at
	r.inventory[itemID] = item
	return nil
}

// InsertInventoryItem adds a new item; ids and branch names must be unique.
func (r *Repository) InsertInventoryItem(_ context.Context, item models.InventoryItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.inventory[item.ID]; exists {
		return fmt.Errorf("inventory item %s: %w", item.ID, models.ErrConflict)
	}
	item.NameKey = models.NormalizeName(item.Name)
	for _, existing := range r.inventory {
		if existing.TenantID == item.TenantID && existing.LocationID == item.LocationID &&
			models.NormalizeName(existing.Name) == item.NameKey {
			return fmt.Errorf("inventory item %q in %s: %w", item.Name, item.LocationID, models.ErrConflict)
		}
	}
	r.inventory[item.ID] = item
	return nil
}

// Enqueue appends tasks to the outbox.
func (r *Repository) Enqueue(_ context.Context, tasks []models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, task := range tasks {
		if _, exists := r.tasks[task.ID]; !exists {
			r.taskOrder = append(r.taskOrder, task.ID)
		}
		r.tasks[task.ID] = task
	}
	return nil
}

// Pending returns pending tasks oldest first.
func (r *Repository) Pending(_ context.Context, limit int) ([]models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Task
	for _, id := range r.taskOrder {
		task := r.tasks[id]
		if task.State != models.TaskPending {
			continue
		}
		out = append(out, task)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Claim leases a pending task unless another caller holds an unexpired lease.
func (r *Repository) Claim(_ context.Context, id string, now, until time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return false, fmt.Errorf("task %s: %w", id, models.ErrNotFound)
	}
	if task.State != models.TaskPending || (task.LeasedUntil != nil && task.LeasedUntil.After(now)) {
		return false, nil
	}
	task.LeasedUntil = &until
	r.tasks[id] = task
	return true, nil
}

// MarkDone records a successful execution.
func (r *Repository) MarkDone(_ context.Context, id string, at time.Time) error {
	return r.updateTask(id, func(task *models.Task) {
		task.State = models.TaskDone
		task.Attempts++
		task.LeasedUntil = nil
		task.UpdatedAt = at
	})
}

// MarkFailed records a failed attempt.
func (r *Repository) MarkFailed(_ context.Context, id string, cause string, dead bool, at time.Time) error {
	return r.updateTask(id, func(task *models.Task) {
		task.Attempts++
		task.LastError = cause
		task.LeasedUntil = nil
		task.UpdatedAt = at
		if dead {
			task.State = models.TaskDead
		}
	})
}

func (r *Repository) updateTask(id string, fn func(task *models.Task)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("task %s: %w", id, models.ErrNotFound)
	}
	fn(&task)
	r.tasks[id] = task
	return nil
}

// RecordMovement stores an audit record, ignoring replays of the same id.
func (r *Repository) RecordMovement(_ context.Context, record models.MovementRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.movements {
		if existing.ID == record.ID {
			return nil
		}
	}
	r.movements = append(r.movements, record)
	return nil
}

// memTx reads through to the committed state and buffers writes. The
// repository mutex is held by RunInTransaction for its whole lifetime.
type memTx struct {
	repo      *Repository
	orders    map[string]models.PurchaseOrder
	inventory map[string]models.InventoryItem
}

func (t *memTx) GetOrder(_ context.Context, tenantID, orderID string) (*models.PurchaseOrder, error) {
	if order, ok := t.orders[orderKey(tenantID, orderID)]; ok {
		clone := cloneOrder(order)
		return &clone, nil
	}
	return t.repo.getOrder(tenantID, orderID)
}

func (t *memTx) GetInventoryItems(_ context.Context, tenantID, locationID string, ids []string) ([]models.InventoryItem, error) {
	var items []models.InventoryItem
	for _, id := range ids {
		item, ok := t.inventory[id]
		if !ok {
			item, ok = t.repo.inventory[id]
		}
		if !ok || item.TenantID != tenantID || item.LocationID != locationID {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (t *memTx) ApplyInventoryUpdate(_ context.Context, tenantID, locationID string, update models.InventoryUpdate, at time.Time) error {
	item, ok := t.inventory[update.ItemID]
	if !ok {
		item, ok = t.repo.inventory[update.ItemID]
	}
	if !ok || item.TenantID != tenantID || item.LocationID != locationID {
		return fmt.Errorf("inventory item %s: %w", update.ItemID, models.ErrNotFound)
	}
	item.CurrentStock = update.NewStock
	item.CostPerUnit = update.NewCost
	item.Status = update.Status
	item.UpdatedAt = at
	t.inventory[item.ID] = item
	return nil
}

func (t *memTx) ApplyOrderDelivery(ctx context.Context, d repository.OrderDelivery) error {
	order, err := t.GetOrder(ctx, d.TenantID, d.OrderID)
	if err != nil {
		return err
	}
	if order.Status != d.PreviousStatus || order.HasDelivery(d.Event.ID) {
		return fmt.Errorf("purchase order %s changed during delivery: %w", d.OrderID, models.ErrConflict)
	}

	order.Items = append([]models.LineItem(nil), d.Items...)
	order.Status = d.Status
	order.DeliveredBy = d.DeliveredBy
	deliveredAt := d.DeliveredAt
	order.DeliveredAt = &deliveredAt
	order.UpdatedAt = d.DeliveredAt
	order.Deliveries = append(order.Deliveries, d.Event)
	t.orders[orderKey(d.TenantID, d.OrderID)] = *order
	return nil
}

func orderKey(tenantID, orderID string) string {
	return tenantID + "/" + orderID
}

func cloneOrder(order models.PurchaseOrder) models.PurchaseOrder {
	order.Items = append([]models.LineItem(nil), order.Items...)
	order.Deliveries = append([]models.DeliveryEvent(nil), order.Deliveries...)
	return order
}
