package sideeffects

import (
	"time"

	"github.com/mamadbah2/restock/internal/domain/models"
)

// DeliveryTasks builds the side effects of a committed delivery: one movement
// per updated item, one notification and one price sync for the branch.
func DeliveryTasks(order *models.PurchaseOrder, event models.DeliveryEvent, updates []models.InventoryUpdate, status models.OrderStatus, now time.Time) []models.Task {
	tasks := make([]models.Task, 0, len(updates)+2)

	for _, u := range updates {
		task := newTask(models.TaskMovement, now)
		task.Movement = &models.MovementRecord{
			ID:            event.ID + ":" + u.ItemID,
			TenantID:      order.TenantID,
			LocationID:    order.LocationID,
			ItemID:        u.ItemID,
			ItemName:      u.ItemName,
			QuantityDelta: u.Delta,
			PreviousStock: u.PreviousStock,
			NewStock:      u.NewStock,
			Reason:        models.ReasonPurchaseDelivery,
			Reference:     order.OrderNumber,
			Actor:         event.ReceivedBy,
			CreatedAt:     now,
		}
		tasks = append(tasks, task)
	}

	branch := order.BranchName
	if branch == "" {
		branch = order.LocationID
	}
	notify := newTask(models.TaskNotification, now)
	notify.Notification = &models.DeliveryNotification{
		TenantID:       order.TenantID,
		OrderNumber:    order.OrderNumber,
		BranchName:     branch,
		ItemCount:      len(updates),
		Actor:          event.ReceivedBy,
		SupplierName:   order.SupplierName,
		FullyDelivered: status == models.OrderDelivered,
	}
	tasks = append(tasks, notify)

	priceSync := newTask(models.TaskPriceSync, now)
	priceSync.PriceSync = &models.PriceSyncTrigger{TenantID: order.TenantID, LocationID: order.LocationID}
	tasks = append(tasks, priceSync)

	return tasks
}

// RelabelTask records a unit relabel on the audit trail. No stock moves.
func RelabelTask(item models.InventoryItem, previousUnit, actor string, now time.Time) models.Task {
	task := newTask(models.TaskMovement, now)
	task.Movement = &models.MovementRecord{
		ID:            task.ID,
		TenantID:      item.TenantID,
		LocationID:    item.LocationID,
		ItemID:        item.ID,
		ItemName:      item.Name,
		QuantityDelta: 0,
		PreviousStock: item.CurrentStock,
		NewStock:      item.CurrentStock,
		Reason:        models.ReasonUnitRelabel,
		Reference:     previousUnit + " -> " + item.Unit,
		Actor:         actor,
		CreatedAt:     now,
	}
	return task
}
