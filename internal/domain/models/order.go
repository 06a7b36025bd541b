package models

import (
	"strings"
	"time"
)

// OrderStatus enumerates the purchase order lifecycle states.
type OrderStatus string

const (
	OrderDraft              OrderStatus = "draft"
	OrderPending            OrderStatus = "pending"
	OrderApproved           OrderStatus = "approved"
	OrderOrdered            OrderStatus = "ordered"
	OrderPartiallyDelivered OrderStatus = "partially_delivered"
	OrderDelivered          OrderStatus = "delivered"
	OrderCancelled          OrderStatus = "cancelled"
)

// AcceptsDelivery reports whether goods may be received against an order in this state.
func (s OrderStatus) AcceptsDelivery() bool {
	return s == OrderOrdered || s == OrderPartiallyDelivered
}

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}

// rank orders the delivery-relevant states so regressions can be detected.
func (s OrderStatus) rank() int {
	switch s {
	case OrderOrdered:
		return 1
	case OrderPartiallyDelivered:
		return 2
	case OrderDelivered:
		return 3
	default:
		return 0
	}
}

// CanAdvanceTo reports whether a delivery may move the order from s to next.
func (s OrderStatus) CanAdvanceTo(next OrderStatus) bool {
	if !s.AcceptsDelivery() {
		return false
	}
	return next.rank() >= s.rank()
}

// PurchaseOrder is a supplier order with embedded line items.
type PurchaseOrder struct {
	ID               string          `bson:"_id" json:"id"`
	TenantID         string          `bson:"tenant_id" json:"tenantId"`
	OrderNumber      string          `bson:"order_number" json:"orderNumber"`
	SupplierID       string          `bson:"supplier_id" json:"supplierId"`
	SupplierName     string          `bson:"supplier_name" json:"supplierName"`
	LocationID       string          `bson:"location_id" json:"locationId"`
	BranchName       string          `bson:"branch_name,omitempty" json:"branchName,omitempty"`
	Items            []LineItem      `bson:"items" json:"items"`
	Subtotal         float64         `bson:"subtotal" json:"subtotal"`
	Tax              float64         `bson:"tax" json:"tax"`
	Total            float64         `bson:"total" json:"total"`
	Status           OrderStatus     `bson:"status" json:"status"`
	ExpectedDelivery *time.Time      `bson:"expected_delivery,omitempty" json:"expectedDelivery,omitempty"`
	DeliveredAt      *time.Time      `bson:"delivered_at,omitempty" json:"deliveredAt,omitempty"`
	DeliveredBy      string          `bson:"delivered_by,omitempty" json:"deliveredBy,omitempty"`
	Deliveries       []DeliveryEvent `bson:"deliveries,omitempty" json:"deliveries,omitempty"`
	CreatedAt        time.Time       `bson:"created_at" json:"createdAt"`
	UpdatedAt        time.Time       `bson:"updated_at" json:"updatedAt"`
}

// HasDelivery reports whether a delivery event with the given id was already applied.
func (o *PurchaseOrder) HasDelivery(deliveryID string) bool {
	if deliveryID == "" {
		return false
	}
	for _, ev := range o.Deliveries {
		if ev.ID == deliveryID {
			return true
		}
	}
	return false
}

// LineItem is one ordered product on a purchase order.
type LineItem struct {
	ItemName         string  `bson:"item_name" json:"itemName"`
	InventoryItemID  string  `bson:"inventory_item_id,omitempty" json:"inventoryItemId,omitempty"`
	Description      string  `bson:"description,omitempty" json:"description,omitempty"`
	Quantity         float64 `bson:"quantity" json:"quantity"`
	Unit             string  `bson:"unit" json:"unit"`
	UnitPrice        float64 `bson:"unit_price" json:"unitPrice"`
	Total            float64 `bson:"total" json:"total"`
	QuantityReceived float64 `bson:"quantity_received" json:"quantityReceived"`
}

// FullyReceived reports whether the cumulative receipt covers the ordered quantity.
func (l LineItem) FullyReceived() bool {
	return l.QuantityReceived >= l.Quantity
}

// NormalizeName produces the join key used to match free-text item names.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// SameUnit compares two unit labels case-insensitively.
func SameUnit(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
