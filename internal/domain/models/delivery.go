package models

import "time"

// DeliveryLine is one received item within a delivery event.
type DeliveryLine struct {
	ItemName         string  `bson:"item_name" json:"itemName"`
	QuantityReceived float64 `bson:"quantity_received" json:"quantityReceived"`
	Unit             string  `bson:"unit" json:"unit"`
	UnitPrice        float64 `bson:"unit_price" json:"unitPrice"`
}

// DeliveryRequest describes goods received for a purchase order in one event.
type DeliveryRequest struct {
	TenantID   string         `json:"-"`
	OrderID    string         `json:"-"`
	DeliveryID string         `json:"deliveryId,omitempty"`
	ReceivedBy string         `json:"receivedBy"`
	Items      []DeliveryLine `json:"items"`
}

// DeliveryEvent is the append-only record of an applied delivery, embedded in the order.
type DeliveryEvent struct {
	ID         string         `bson:"id" json:"id"`
	ReceivedBy string         `bson:"received_by" json:"receivedBy"`
	ReceivedAt time.Time      `bson:"received_at" json:"receivedAt"`
	Lines      []DeliveryLine `bson:"lines" json:"lines"`
}

// UnitMismatch reports a delivery line whose unit disagrees with the inventory item.
type UnitMismatch struct {
	ItemName     string `json:"itemName"`
	ExpectedUnit string `json:"expectedUnit"`
	ReceivedUnit string `json:"receivedUnit"`
}

// InventoryUpdateResult summarizes how delivery lines matched the branch inventory.
type InventoryUpdateResult struct {
	UpdatedItems   []string       `json:"updatedItems"`
	NotFoundItems  []string       `json:"notFoundItems"`
	UnitMismatches []UnitMismatch `json:"unitMismatches"`
}

// Rejected reports whether any line failed to match cleanly.
func (r InventoryUpdateResult) Rejected() bool {
	return len(r.NotFoundItems) > 0 || len(r.UnitMismatches) > 0
}

// DeliveryResult is the outcome returned to callers of DeliverPurchaseOrder.
type DeliveryResult struct {
	Success               bool                   `json:"success"`
	Error                 string                 `json:"error,omitempty"`
	Duplicate             bool                   `json:"duplicate,omitempty"`
	OrderStatus           OrderStatus            `json:"orderStatus,omitempty"`
	InventoryUpdateResult *InventoryUpdateResult `json:"inventoryUpdateResult,omitempty"`
}

// ResolveUnitMismatchInput relabels an inventory item's unit to the delivered one.
type ResolveUnitMismatchInput struct {
	TenantID   string  `json:"-"`
	LocationID string  `json:"-"`
	ItemName   string  `json:"itemName"`
	NewUnit    string  `json:"newUnit"`
	Quantity   float64 `json:"quantity"`
	ActorID    string  `json:"actorId"`
}

// ResolveResult is the operator-facing outcome of a resolution action.
type ResolveResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// AddMissingItemInput seeds a new inventory item from an unmatched order line.
type AddMissingItemInput struct {
	TenantID   string  `json:"-"`
	LocationID string  `json:"-"`
	ItemName   string  `json:"itemName"`
	Unit       string  `json:"unit"`
	UnitPrice  float64 `json:"unitPrice"`
}
