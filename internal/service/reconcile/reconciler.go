// Package reconcile computes the effect of a delivery on a purchase order and
// its branch inventory without touching storage.
package reconcile

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mamadbah2/restock/internal/domain/models"
)

// costPlaces is the currency precision applied to cost-per-unit on output.
const costPlaces = 2

// Applied carries the mutations a successful delivery produces.
type Applied struct {
	Updates []models.InventoryUpdate
	Items   []models.LineItem
	Status  models.OrderStatus
	Event   models.DeliveryEvent
}

// Result is either a rejection (Applied == nil) or an applied computation.
type Result struct {
	Classification models.InventoryUpdateResult
	Applied        *Applied
}

// Rejected reports whether the delivery was refused because some lines did not match.
func (r Result) Rejected() bool {
	return r.Applied == nil
}

type match struct {
	line models.DeliveryLine
	item models.InventoryItem
}

type position struct {
	stock decimal.Decimal
	cost  decimal.Decimal
	prev  models.InventoryItem
	delta decimal.Decimal
}

// Reconcile classifies the delivery lines against the branch snapshot and,
// when every line matches with an agreeing unit, computes the stock, cost,
// line receipt and order status changes. Any unmatched or mismatched line
// rejects the whole delivery.
func Reconcile(order *models.PurchaseOrder, snapshot []models.InventoryItem, req models.DeliveryRequest, now time.Time) (Result, error) {
	if order == nil {
		return Result{}, fmt.Errorf("purchase order is nil: %w", models.ErrNotFound)
	}
	if err := CheckDeliverable(order); err != nil {
		return Result{}, err
	}
	lines, err := validate(req)
	if err != nil {
		return Result{}, err
	}

	matches, classification := classify(order, snapshot, lines)
	if classification.Rejected() {
		return Result{Classification: classification}, nil
	}

	updates := applyStock(matches)
	items, status := applyReceipts(order, lines)

	for _, u := range updates {
		classification.UpdatedItems = appendUnique(classification.UpdatedItems, u.ItemName)
	}

	return Result{
		Classification: classification,
		Applied: &Applied{
			Updates: updates,
			Items:   items,
			Status:  status,
			Event: models.DeliveryEvent{
				ID:         req.DeliveryID,
				ReceivedBy: strings.TrimSpace(req.ReceivedBy),
				ReceivedAt: now,
				Lines:      lines,
			},
		},
	}, nil
}

// CheckDeliverable enforces the status guard and the branch requirement.
func CheckDeliverable(order *models.PurchaseOrder) error {
	if order.Status == models.OrderDelivered {
		return fmt.Errorf("order %s is already delivered: %w", order.OrderNumber, models.ErrInvalidState)
	}
	if !order.Status.AcceptsDelivery() {
		return fmt.Errorf("order %s cannot receive goods in status %q: %w", order.OrderNumber, order.Status, models.ErrInvalidState)
	}
	if strings.TrimSpace(order.LocationID) == "" {
		return fmt.Errorf("order %s has no branch assigned: %w", order.OrderNumber, models.ErrInvalidState)
	}
	return nil
}

// validate returns the lines carrying a positive quantity.
func validate(req models.DeliveryRequest) ([]models.DeliveryLine, error) {
	if strings.TrimSpace(req.ReceivedBy) == "" {
		return nil, fmt.Errorf("receivedBy is required: %w", models.ErrValidation)
	}

	var lines []models.DeliveryLine
	for i, line := range req.Items {
		if !finite(line.QuantityReceived) || !finite(line.UnitPrice) {
			return nil, fmt.Errorf("line %d (%s): quantity and unit price must be finite numbers: %w", i+1, line.ItemName, models.ErrValidation)
		}
		if line.QuantityReceived < 0 {
			return nil, fmt.Errorf("line %d (%s): negative quantity: %w", i+1, line.ItemName, models.ErrValidation)
		}
		if line.UnitPrice < 0 {
			return nil, fmt.Errorf("line %d (%s): negative unit price: %w", i+1, line.ItemName, models.ErrValidation)
		}
		if line.QuantityReceived == 0 {
			continue
		}
		if strings.TrimSpace(line.ItemName) == "" {
			return nil, fmt.Errorf("line %d: item name is required: %w", i+1, models.ErrValidation)
		}
		lines = append(lines, line)
	}

	if len(lines) == 0 {
		return nil, fmt.Errorf("at least one item must have a received quantity: %w", models.ErrValidation)
	}
	return lines, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func classify(order *models.PurchaseOrder, snapshot []models.InventoryItem, lines []models.DeliveryLine) ([]match, models.InventoryUpdateResult) {
	byID := make(map[string]models.InventoryItem, len(snapshot))
	byName := make(map[string]models.InventoryItem, len(snapshot))
	for _, item := range snapshot {
		if item.LocationID != order.LocationID {
			continue
		}
		byID[item.ID] = item
		key := models.NormalizeName(item.Name)
		if _, exists := byName[key]; !exists {
			byName[key] = item
		}
	}

	refs := make(map[string]string, len(order.Items))
	for _, li := range order.Items {
		if li.InventoryItemID != "" {
			refs[models.NormalizeName(li.ItemName)] = li.InventoryItemID
		}
	}

	result := models.InventoryUpdateResult{
		UpdatedItems:   []string{},
		NotFoundItems:  []string{},
		UnitMismatches: []models.UnitMismatch{},
	}
	var matches []match

	for _, line := range lines {
		key := models.NormalizeName(line.ItemName)

		item, ok := models.InventoryItem{}, false
		if ref, has := refs[key]; has {
			item, ok = byID[ref]
		}
		if !ok {
			item, ok = byName[key]
		}

		switch {
		case !ok:
			result.NotFoundItems = appendUnique(result.NotFoundItems, line.ItemName)
		case !models.SameUnit(item.Unit, line.Unit):
			result.UnitMismatches = append(result.UnitMismatches, models.UnitMismatch{
				ItemName:     line.ItemName,
				ExpectedUnit: item.Unit,
				ReceivedUnit: line.Unit,
			})
		default:
			matches = append(matches, match{line: line, item: item})
		}
	}

	return matches, result
}

// applyStock folds every matched line into a running position per item, so
// several lines for the same item compound in request order.
func applyStock(matches []match) []models.InventoryUpdate {
	positions := make(map[string]*position)
	var order []string

	for _, m := range matches {
		pos, ok := positions[m.item.ID]
		if !ok {
			pos = &position{
				stock: decimal.NewFromFloat(m.item.CurrentStock),
				cost:  decimal.NewFromFloat(m.item.CostPerUnit),
				prev:  m.item,
			}
			positions[m.item.ID] = pos
			order = append(order, m.item.ID)
		}

		qty := decimal.NewFromFloat(m.line.QuantityReceived)
		price := decimal.NewFromFloat(m.line.UnitPrice)

		if price.IsPositive() {
			pos.cost = WeightedCost(pos.stock, pos.cost, qty, price)
		}
		pos.stock = pos.stock.Add(qty)
		pos.delta = pos.delta.Add(qty)
	}

	updates := make([]models.InventoryUpdate, 0, len(order))
	for _, id := range order {
		pos := positions[id]
		newStock := pos.stock.InexactFloat64()
		updates = append(updates, models.InventoryUpdate{
			ItemID:        id,
			ItemName:      pos.prev.Name,
			Delta:         pos.delta.InexactFloat64(),
			PreviousStock: pos.prev.CurrentStock,
			NewStock:      newStock,
			PreviousCost:  pos.prev.CostPerUnit,
			NewCost:       pos.cost.Round(costPlaces).InexactFloat64(),
			Status:        models.DeriveStockStatus(newStock, pos.prev.MinStock),
		})
	}
	return updates
}

// WeightedCost blends the existing cost basis with a received lot. A zero
// existing cost, or no positive stock to weigh it by, adopts the received price.
func WeightedCost(stock, cost, qty, price decimal.Decimal) decimal.Decimal {
	if cost.IsZero() || !stock.IsPositive() {
		return price
	}
	total := stock.Add(qty)
	if !total.IsPositive() {
		return price
	}
	return stock.Mul(cost).Add(qty.Mul(price)).Div(total)
}

// applyReceipts credits each delivery line to the order lines carrying the
// same item, in order. A line is filled up to its ordered quantity before the
// rest moves on to the next one; whatever exceeds all of them is dropped.
func applyReceipts(order *models.PurchaseOrder, lines []models.DeliveryLine) ([]models.LineItem, models.OrderStatus) {
	items := make([]models.LineItem, len(order.Items))
	copy(items, order.Items)

	index := make(map[string][]int, len(items))
	for i, li := range items {
		key := models.NormalizeName(li.ItemName)
		index[key] = append(index[key], i)
	}

	for _, line := range lines {
		left := decimal.NewFromFloat(line.QuantityReceived)
		for _, i := range index[models.NormalizeName(line.ItemName)] {
			if !left.IsPositive() {
				break
			}
			ordered := decimal.NewFromFloat(items[i].Quantity)
			got := decimal.NewFromFloat(items[i].QuantityReceived)
			room := ordered.Sub(got)
			if !room.IsPositive() {
				continue
			}
			take := decimal.Min(room, left)
			items[i].QuantityReceived = got.Add(take).InexactFloat64()
			left = left.Sub(take)
		}
	}

	return items, DeriveStatus(order.Status, items)
}

// DeriveStatus maps line receipt ratios to an order status. It never moves
// the order backwards.
func DeriveStatus(current models.OrderStatus, items []models.LineItem) models.OrderStatus {
	allFull := true
	anyReceived := false
	for _, li := range items {
		if li.QuantityReceived > 0 {
			anyReceived = true
		}
		if !li.FullyReceived() {
			allFull = false
		}
	}

	next := current
	switch {
	case allFull && len(items) > 0:
		next = models.OrderDelivered
	case anyReceived:
		next = models.OrderPartiallyDelivered
	}

	if !current.CanAdvanceTo(next) {
		return current
	}
	return next
}

func appendUnique(list []string, name string) []string {
	for _, existing := range list {
		if models.NormalizeName(existing) == models.NormalizeName(name) {
			return list
		}
	}
	return append(list, name)
}
