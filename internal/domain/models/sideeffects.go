package models

import "time"

// Movement reasons recorded on the audit trail.
const (
	ReasonPurchaseDelivery = "purchase_delivery"
	ReasonUnitRelabel      = "unit_relabel"
)

// MovementRecord is an audit entry describing a stock change.
type MovementRecord struct {
	ID            string    `bson:"_id" json:"id"`
	TenantID      string    `bson:"tenant_id" json:"tenantId"`
	LocationID    string    `bson:"location_id" json:"locationId"`
	ItemID        string    `bson:"item_id" json:"itemId"`
	ItemName      string    `bson:"item_name" json:"itemName"`
	QuantityDelta float64   `bson:"quantity_delta" json:"quantityDelta"`
	PreviousStock float64   `bson:"previous_stock" json:"previousStock"`
	NewStock      float64   `bson:"new_stock" json:"newStock"`
	Reason        string    `bson:"reason" json:"reason"`
	Reference     string    `bson:"reference,omitempty" json:"reference,omitempty"`
	Actor         string    `bson:"actor" json:"actor"`
	CreatedAt     time.Time `bson:"created_at" json:"createdAt"`
}

// DeliveryNotification is sent to staff when goods are received.
type DeliveryNotification struct {
	TenantID       string `bson:"tenant_id" json:"tenantId"`
	OrderNumber    string `bson:"order_number" json:"orderNumber"`
	BranchName     string `bson:"branch_name" json:"branchName"`
	ItemCount      int    `bson:"item_count" json:"itemCount"`
	Actor          string `bson:"actor" json:"actor"`
	SupplierName   string `bson:"supplier_name" json:"supplierName"`
	FullyDelivered bool   `bson:"fully_delivered" json:"fullyDelivered"`
}

// PriceSyncTrigger asks downstream pricing to recompute for a branch.
type PriceSyncTrigger struct {
	TenantID   string `bson:"tenant_id" json:"tenantId"`
	LocationID string `bson:"location_id" json:"locationId"`
}

// TaskKind identifies the side effect carried by a Task.
type TaskKind string

const (
	TaskMovement     TaskKind = "movement"
	TaskNotification TaskKind = "notification"
	TaskPriceSync    TaskKind = "price_sync"
)

// TaskState tracks an outbox task through its delivery attempts.
type TaskState string

const (
	TaskPending TaskState = "pending"
	TaskDone    TaskState = "done"
	TaskDead    TaskState = "dead"
)

// Task is a post-commit side effect queued for at-least-once execution.
type Task struct {
	ID           string                `bson:"_id" json:"id"`
	Kind         TaskKind              `bson:"kind" json:"kind"`
	State        TaskState             `bson:"state" json:"state"`
	Attempts     int                   `bson:"attempts" json:"attempts"`
	LastError    string                `bson:"last_error,omitempty" json:"lastError,omitempty"`
	LeasedUntil  *time.Time            `bson:"leased_until,omitempty" json:"leasedUntil,omitempty"`
	Movement     *MovementRecord       `bson:"movement,omitempty" json:"movement,omitempty"`
	Notification *DeliveryNotification `bson:"notification,omitempty" json:"notification,omitempty"`
	PriceSync    *PriceSyncTrigger     `bson:"price_sync,omitempty" json:"priceSync,omitempty"`
	CreatedAt    time.Time             `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time             `bson:"updated_at" json:"updatedAt"`
}
