package models

import "time"

// StockStatus is derived from current stock and the minimum threshold.
type StockStatus string

const (
	StockInStock    StockStatus = "in_stock"
	StockLowStock   StockStatus = "low_stock"
	StockOutOfStock StockStatus = "out_of_stock"
)

// Seed thresholds for items created from an unmatched delivery line.
const (
	DefaultMinStock = 5
	DefaultMaxStock = 100
)

// DeriveStockStatus classifies a stock level against its minimum threshold.
func DeriveStockStatus(stock, minStock float64) StockStatus {
	switch {
	case stock <= 0:
		return StockOutOfStock
	case stock <= minStock:
		return StockLowStock
	default:
		return StockInStock
	}
}

// InventoryItem is a branch-scoped stock record.
type InventoryItem struct {
	ID           string      `bson:"_id" json:"id"`
	TenantID     string      `bson:"tenant_id" json:"tenantId"`
	LocationID   string      `bson:"location_id" json:"locationId"`
	Name         string      `bson:"name" json:"name"`
	NameKey      string      `bson:"name_key,omitempty" json:"-"`
	Unit         string      `bson:"unit" json:"unit"`
	CurrentStock float64     `bson:"current_stock" json:"currentStock"`
	CostPerUnit  float64     `bson:"cost_per_unit" json:"costPerUnit"`
	MinStock     float64     `bson:"min_stock" json:"minStock"`
	MaxStock     float64     `bson:"max_stock" json:"maxStock"`
	Status       StockStatus `bson:"status" json:"status"`
	CreatedAt    time.Time   `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time   `bson:"updated_at" json:"updatedAt"`
}

// InventoryUpdate is the field-level write computed for one inventory item.
type InventoryUpdate struct {
	ItemID        string      `json:"itemId"`
	ItemName      string      `json:"itemName"`
	Delta         float64     `json:"delta"`
	PreviousStock float64     `json:"previousStock"`
	NewStock      float64     `json:"newStock"`
	PreviousCost  float64     `json:"previousCost"`
	NewCost       float64     `json:"newCost"`
	Status        StockStatus `json:"status"`
}

// Snapshot is a timestamped copy of a branch's inventory.
type Snapshot struct {
	FetchedAt time.Time       `json:"fetchedAt"`
	Items     []InventoryItem `json:"items"`
}
