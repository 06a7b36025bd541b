package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mamadbah2/restock/internal/domain/models"
	"github.com/mamadbah2/restock/internal/repository/cache"
	"github.com/mamadbah2/restock/internal/repository/memory"
	"github.com/mamadbah2/restock/internal/service/sideeffects"
)

const (
	tenant = "tenant-1"
	branch = "branch-a"
)

var fixedNow = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu    sync.Mutex
	tasks []models.Task
}

func (p *recordingPublisher) Dispatch(_ context.Context, tasks []models.Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks = append(p.tasks, tasks...)
}

func (p *recordingPublisher) kinds() map[models.TaskKind]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[models.TaskKind]int)
	for _, task := range p.tasks {
		out[task.Kind]++
	}
	return out
}

type fixture struct {
	repo      *memory.Repository
	publisher *recordingPublisher
	svc       *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := memory.NewRepository()
	pub := &recordingPublisher{}
	svc := NewService(repo, nil, pub, nil)
	svc.now = func() time.Time { return fixedNow }
	ids := 0
	svc.newID = func() string {
		ids++
		return fmt.Sprintf("id-%d", ids)
	}
	return &fixture{repo: repo, publisher: pub, svc: svc}
}

func (f *fixture) order(status models.OrderStatus, items ...models.LineItem) {
	f.repo.PutOrder(models.PurchaseOrder{
		ID:           "po-1",
		TenantID:     tenant,
		OrderNumber:  "PO-0001",
		SupplierName: "Fresh Farms",
		LocationID:   branch,
		Status:       status,
		Items:        items,
	})
}

func (f *fixture) stock(id, name, unit string, qty, cost float64) {
	f.repo.PutInventory(models.InventoryItem{
		ID:           id,
		TenantID:     tenant,
		LocationID:   branch,
		Name:         name,
		Unit:         unit,
		CurrentStock: qty,
		CostPerUnit:  cost,
		MinStock:     models.DefaultMinStock,
		MaxStock:     models.DefaultMaxStock,
	})
}

func (f *fixture) mustItem(t *testing.T, id string) models.InventoryItem {
	t.Helper()
	item, ok := f.repo.Item(id)
	if !ok {
		t.Fatalf("inventory item %s missing", id)
	}
	return item
}

func (f *fixture) mustOrder(t *testing.T) *models.PurchaseOrder {
	t.Helper()
	order, err := f.repo.GetOrder(context.Background(), tenant, "po-1")
	if err != nil {
		t.Fatalf("load order: %v", err)
	}
	return order
}

func request(deliveryID string, lines ...models.DeliveryLine) models.DeliveryRequest {
	return models.DeliveryRequest{
		TenantID:   tenant,
		OrderID:    "po-1",
		DeliveryID: deliveryID,
		ReceivedBy: "ana",
		Items:      lines,
	}
}

func received(name string, qty, price float64, unit string) models.DeliveryLine {
	return models.DeliveryLine{ItemName: name, QuantityReceived: qty, UnitPrice: price, Unit: unit}
}

func ordered(name string, qty, price float64, unit string) models.LineItem {
	return models.LineItem{ItemName: name, Quantity: qty, UnitPrice: price, Unit: unit, Total: qty * price}
}

func TestDeliver_FullDeliveryUpdatesStockAndOrder(t *testing.T) {
	f := newFixture(t)
	f.order(models.OrderOrdered, ordered("Tomatoes", 10, 5, "kg"))
	f.stock("inv-1", "Tomatoes", "kg", 0, 0)

	res, err := f.svc.DeliverPurchaseOrder(context.Background(), request("", received("Tomatoes", 10, 5, "kg")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || res.OrderStatus != models.OrderDelivered {
		t.Fatalf("expected delivered success, got %+v", res)
	}

	item := f.mustItem(t, "inv-1")
	if item.CurrentStock != 10 || item.CostPerUnit != 5 || item.Status != models.StockInStock {
		t.Errorf("unexpected item after delivery %+v", item)
	}

	order := f.mustOrder(t)
	if order.Status != models.OrderDelivered {
		t.Errorf("expected delivered order, got %s", order.Status)
	}
	if order.DeliveredBy != "ana" || order.DeliveredAt == nil || !order.DeliveredAt.Equal(fixedNow) {
		t.Errorf("unexpected delivered fields by=%q at=%v", order.DeliveredBy, order.DeliveredAt)
	}
	if len(order.Deliveries) != 1 || order.Deliveries[0].ID != "id-1" {
		t.Errorf("expected one recorded delivery event, got %+v", order.Deliveries)
	}

	kinds := f.publisher.kinds()
	if kinds[models.TaskMovement] != 1 || kinds[models.TaskNotification] != 1 || kinds[models.TaskPriceSync] != 1 {
		t.Errorf("unexpected side effects %v", kinds)
	}
}

func TestDeliver_WeightedAverageCost(t *testing.T) {
	f := newFixture(t)
	f.order(models.OrderOrdered, ordered("Flour", 5, 8, "bag"))
	f.stock("inv-1", "Flour", "bag", 5, 4)

	if _, err := f.svc.DeliverPurchaseOrder(context.Background(), request("", received("Flour", 5, 8, "bag"))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.mustItem(t, "inv-1").CostPerUnit; got != 6.0 {
		t.Errorf("expected cost 6.0, got %v", got)
	}
}

func TestDeliver_PartialDelivery(t *testing.T) {
	f := newFixture(t)
	f.order(models.OrderOrdered, ordered("Onions", 6, 2, "kg"), ordered("Garlic", 2, 9, "kg"))
	f.stock("inv-1", "Onions", "kg", 0, 0)
	f.stock("inv-2", "Garlic", "kg", 0, 0)

	res, err := f.svc.DeliverPurchaseOrder(context.Background(), request("", received("Onions", 6, 2, "kg")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.OrderStatus != models.OrderPartiallyDelivered {
		t.Errorf("expected partially_delivered, got %s", res.OrderStatus)
	}
	order := f.mustOrder(t)
	if order.Items[1].QuantityReceived != 0 {
		t.Errorf("expected garlic untouched, got %v", order.Items[1].QuantityReceived)
	}

	res, err = f.svc.DeliverPurchaseOrder(context.Background(), request("", received("Garlic", 2, 9, "kg")))
	if err != nil {
		t.Fatalf("second delivery: unexpected error: %v", err)
	}
	if res.OrderStatus != models.OrderDelivered {
		t.Errorf("expected delivered after second delivery, got %s", res.OrderStatus)
	}
}

func TestDeliver_UnknownItemLeavesEverythingUntouched(t *testing.T) {
	f := newFixture(t)
	f.order(models.OrderOrdered, ordered("Basil", 1, 3, "bunch"), ordered("Saffron", 1, 90, "g"))
	f.stock("inv-1", "Basil", "bunch", 4, 3)

	res, err := f.svc.DeliverPurchaseOrder(context.Background(), request("",
		received("Basil", 1, 3, "bunch"),
		received("Saffron", 1, 90, "g"),
	))
	if err != nil {
		t.Fatalf("rejection must not be an error, got %v", err)
	}
	if res.Success {
		t.Fatal("expected success=false")
	}
	if res.InventoryUpdateResult == nil || len(res.InventoryUpdateResult.NotFoundItems) != 1 || res.InventoryUpdateResult.NotFoundItems[0] != "Saffron" {
		t.Fatalf("expected notFoundItems [Saffron], got %+v", res.InventoryUpdateResult)
	}

	if got := f.mustItem(t, "inv-1").CurrentStock; got != 4 {
		t.Errorf("basil stock must stay 4, got %v", got)
	}
	if got := f.mustOrder(t).Items[0].QuantityReceived; got != 0 {
		t.Errorf("basil receipt must stay 0, got %v", got)
	}
	if n := f.repo.TransactionCount(); n != 0 {
		t.Errorf("rejected delivery must not open a transaction, got %d", n)
	}
	if len(f.publisher.kinds()) != 0 {
		t.Error("rejected delivery must not emit side effects")
	}
}

func TestDeliver_AlreadyDeliveredOrder(t *testing.T) {
	f := newFixture(t)
	f.order(models.OrderDelivered, ordered("Tomatoes", 10, 5, "kg"))
	f.stock("inv-1", "Tomatoes", "kg", 10, 5)

	res, err := f.svc.DeliverPurchaseOrder(context.Background(), request("", received("Tomatoes", 1, 5, "kg")))
	if !errors.Is(err, models.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if res.Success || res.Error == "" {
		t.Errorf("expected user-visible failure, got %+v", res)
	}
	if got := f.mustItem(t, "inv-1").CurrentStock; got != 10 {
		t.Errorf("stock must stay 10, got %v", got)
	}
}

func TestDeliver_OrderNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.DeliverPurchaseOrder(context.Background(), request("", received("Tomatoes", 1, 5, "kg")))
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeliver_ValidationFailure(t *testing.T) {
	f := newFixture(t)
	f.order(models.OrderOrdered, ordered("Tomatoes", 10, 5, "kg"))
	f.stock("inv-1", "Tomatoes", "kg", 0, 0)

	req := request("", received("Tomatoes", 1, 5, "kg"))
	req.ReceivedBy = ""
	res, err := f.svc.DeliverPurchaseOrder(context.Background(), req)
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if res.Success {
		t.Error("expected success=false")
	}
}

func TestDeliver_DuplicateDeliveryIsAppliedOnce(t *testing.T) {
	f := newFixture(t)
	f.order(models.OrderOrdered, ordered("Rice", 20, 2, "kg"))
	f.stock("inv-1", "Rice", "kg", 0, 0)

	req := request("truck-42", received("Rice", 5, 2, "kg"))
	if _, err := f.svc.DeliverPurchaseOrder(context.Background(), req); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	res, err := f.svc.DeliverPurchaseOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if !res.Success || !res.Duplicate {
		t.Errorf("expected duplicate acknowledgement, got %+v", res)
	}
	if got := f.mustItem(t, "inv-1").CurrentStock; got != 5 {
		t.Errorf("expected stock 5 after duplicate submit, got %v", got)
	}
	if got := f.mustOrder(t).Items[0].QuantityReceived; got != 5 {
		t.Errorf("expected received 5 after duplicate submit, got %v", got)
	}
}

func TestDeliver_QuotaExceededIsNotRetried(t *testing.T) {
	f := newFixture(t)
	f.order(models.OrderOrdered, ordered("Rice", 20, 2, "kg"))
	f.stock("inv-1", "Rice", "kg", 3, 2)
	f.repo.FailCommits(fmt.Errorf("%w: daily write limit", models.ErrQuotaExceeded))

	res, err := f.svc.DeliverPurchaseOrder(context.Background(), request("", received("Rice", 5, 2, "kg")))
	if !errors.Is(err, models.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if res.Success {
		t.Error("expected success=false")
	}
	if n := f.repo.TransactionCount(); n != 1 {
		t.Errorf("expected a single attempt, got %d transactions", n)
	}
	if got := f.mustItem(t, "inv-1").CurrentStock; got != 3 {
		t.Errorf("stock must stay 3, got %v", got)
	}
	if got := f.mustOrder(t).Status; got != models.OrderOrdered {
		t.Errorf("order must stay ordered, got %s", got)
	}
}

func TestDeliver_StaleCacheIsRefreshedBeforeRejecting(t *testing.T) {
	f := newFixture(t)
	snapshots := cache.NewMemorySnapshotCache(time.Hour)
	f.svc.snapshots = snapshots
	f.order(models.OrderOrdered, ordered("Leeks", 4, 1, "kg"))

	_ = snapshots.Put(context.Background(), tenant, branch, models.Snapshot{FetchedAt: fixedNow})
	f.stock("inv-1", "Leeks", "kg", 0, 0)

	res, err := f.svc.DeliverPurchaseOrder(context.Background(), request("", received("Leeks", 4, 1, "kg")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected the fresh snapshot to match, got %+v", res)
	}
	if _, ok, _ := snapshots.Get(context.Background(), tenant, branch); ok {
		t.Error("expected snapshot to be invalidated after commit")
	}
}

func TestDeliver_RecreatedItemDropsCachedSnapshot(t *testing.T) {
	f := newFixture(t)
	snapshots := cache.NewMemorySnapshotCache(time.Hour)
	f.svc.snapshots = snapshots
	f.order(models.OrderOrdered, ordered("Leeks", 4, 1, "kg"))
	f.stock("inv-old", "Leeks", "kg", 0, 0)

	old := f.mustItem(t, "inv-old")
	_ = snapshots.Put(context.Background(), tenant, branch, models.Snapshot{FetchedAt: fixedNow, Items: []models.InventoryItem{old}})

	// the item is recreated under a new id; the old document leaves the branch
	old.LocationID = "branch-archived"
	f.repo.PutInventory(old)
	f.stock("inv-new", "Leeks", "kg", 0, 0)

	res, err := f.svc.DeliverPurchaseOrder(context.Background(), request("", received("Leeks", 4, 1, "kg")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success || res.InventoryUpdateResult == nil || len(res.InventoryUpdateResult.NotFoundItems) != 1 {
		t.Fatalf("expected rejection from the transaction, got %+v", res)
	}
	if !strings.Contains(res.Error, "submit the delivery again") {
		t.Errorf("expected a retry hint, got %q", res.Error)
	}
	if _, ok, _ := snapshots.Get(context.Background(), tenant, branch); ok {
		t.Fatal("expected the stale snapshot to be dropped")
	}

	res, err = f.svc.DeliverPurchaseOrder(context.Background(), request("", received("Leeks", 4, 1, "kg")))
	if err != nil || !res.Success {
		t.Fatalf("expected the retry to apply, got %+v / %v", res, err)
	}
	if got := f.mustItem(t, "inv-new").CurrentStock; got != 4 {
		t.Errorf("expected stock on the recreated item, got %v", got)
	}
}

func TestDeliver_SideEffectFailureKeepsCommittedState(t *testing.T) {
	f := newFixture(t)
	dispatcher := sideeffects.NewDispatcher(sideeffects.Options{
		Queue:       f.repo,
		Movements:   nil,
		Notifier:    failingNotifier{},
		MaxAttempts: 3,
	}, nil)
	f.svc.effects = dispatcher
	f.order(models.OrderOrdered, ordered("Tomatoes", 10, 5, "kg"))
	f.stock("inv-1", "Tomatoes", "kg", 0, 0)

	res, err := f.svc.DeliverPurchaseOrder(context.Background(), request("", received("Tomatoes", 10, 5, "kg")))
	if err != nil || !res.Success {
		t.Fatalf("expected success despite notifier outage, got %+v / %v", res, err)
	}
	dispatcher.Wait()

	if got := f.mustItem(t, "inv-1").CurrentStock; got != 10 {
		t.Errorf("stock must stay committed at 10, got %v", got)
	}
	tasks := f.repo.Tasks()
	if len(tasks) != 1 || tasks[0].Kind != models.TaskNotification {
		t.Fatalf("expected one queued notification task, got %+v", tasks)
	}
	if tasks[0].State != models.TaskPending || tasks[0].Attempts != 1 || tasks[0].LastError == "" {
		t.Errorf("expected pending task with one failed attempt, got %+v", tasks[0])
	}
}

func TestDeliver_ConcurrentDeliveriesAreAllCounted(t *testing.T) {
	f := newFixture(t)
	f.order(models.OrderOrdered, ordered("Eggs", 10, 1, "tray"))
	f.stock("inv-1", "Eggs", "tray", 0, 0)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.DeliverPurchaseOrder(context.Background(), request(fmt.Sprintf("drop-%d", i), received("Eggs", 1, 1, "tray")))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}
	order := f.mustOrder(t)
	if order.Items[0].QuantityReceived != 10 || order.Status != models.OrderDelivered {
		t.Errorf("expected all 10 receipts counted, got %v (%s)", order.Items[0].QuantityReceived, order.Status)
	}
	if got := f.mustItem(t, "inv-1").CurrentStock; got != 10 {
		t.Errorf("expected stock 10, got %v", got)
	}
}

type failingNotifier struct{}

func (failingNotifier) NotifyDelivery(context.Context, models.DeliveryNotification) error {
	return errors.New("whatsapp unavailable")
}
