package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mamadbah2/restock/internal/domain/models"
	"github.com/mamadbah2/restock/internal/server/handlers"
)

type stubService struct {
	lastDelivery models.DeliveryRequest
	lastResolve  models.ResolveUnitMismatchInput
	lastAdd      models.AddMissingItemInput

	deliverResult models.DeliveryResult
	deliverErr    error
	addErr        error
}

func (s *stubService) DeliverPurchaseOrder(_ context.Context, req models.DeliveryRequest) (models.DeliveryResult, error) {
	s.lastDelivery = req
	return s.deliverResult, s.deliverErr
}

func (s *stubService) ResolveUnitMismatch(_ context.Context, in models.ResolveUnitMismatchInput) (models.ResolveResult, error) {
	s.lastResolve = in
	return models.ResolveResult{Success: true, Message: "ok"}, nil
}

func (s *stubService) AddMissingInventoryItem(_ context.Context, in models.AddMissingItemInput) (string, error) {
	s.lastAdd = in
	if s.addErr != nil {
		return "", s.addErr
	}
	return "inv-new", nil
}

func do(t *testing.T, svc *stubService, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	engine := New(handlers.NewDeliveryHandler(svc, nil), nil)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestDeliverRoute_PassesPathParams(t *testing.T) {
	svc := &stubService{deliverResult: models.DeliveryResult{Success: true, OrderStatus: models.OrderDelivered}}
	rec := do(t, svc, "/tenants/t1/purchase-orders/po-9/deliveries", map[string]any{
		"receivedBy": "ana",
		"items":      []map[string]any{{"itemName": "Rice", "quantityReceived": 2, "unit": "kg", "unitPrice": 3}},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastDelivery.TenantID != "t1" || svc.lastDelivery.OrderID != "po-9" {
		t.Errorf("path params not bound: %+v", svc.lastDelivery)
	}
	if len(svc.lastDelivery.Items) != 1 || svc.lastDelivery.Items[0].QuantityReceived != 2 {
		t.Errorf("items not bound: %+v", svc.lastDelivery.Items)
	}
}

func TestDeliverRoute_AcceptsBlankZeroQuantityLines(t *testing.T) {
	svc := &stubService{deliverResult: models.DeliveryResult{Success: true}}
	rec := do(t, svc, "/tenants/t1/purchase-orders/po-9/deliveries", map[string]any{
		"receivedBy": "ana",
		"items": []map[string]any{
			{"itemName": "", "quantityReceived": 0},
			{"itemName": "Rice", "quantityReceived": 2, "unit": "kg"},
		},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(svc.lastDelivery.Items) != 2 {
		t.Errorf("expected both lines forwarded, got %+v", svc.lastDelivery.Items)
	}
}

func TestDeliverRoute_RejectionIsNotAnHTTPError(t *testing.T) {
	svc := &stubService{deliverResult: models.DeliveryResult{
		Success:               false,
		InventoryUpdateResult: &models.InventoryUpdateResult{NotFoundItems: []string{"Saffron"}},
	}}
	rec := do(t, svc, "/tenants/t1/purchase-orders/po-9/deliveries", map[string]any{"receivedBy": "ana"})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for structured rejection, got %d", rec.Code)
	}
	var res models.DeliveryResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Success || res.InventoryUpdateResult == nil || res.InventoryUpdateResult.NotFoundItems[0] != "Saffron" {
		t.Errorf("unexpected body %+v", res)
	}
}

func TestDeliverRoute_ErrorStatuses(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{err: fmt.Errorf("x: %w", models.ErrInvalidState), want: http.StatusConflict},
		{err: fmt.Errorf("x: %w", models.ErrNotFound), want: http.StatusNotFound},
		{err: fmt.Errorf("x: %w", models.ErrValidation), want: http.StatusUnprocessableEntity},
		{err: fmt.Errorf("x: %w", models.ErrQuotaExceeded), want: http.StatusTooManyRequests},
		{err: fmt.Errorf("x: %w: %w", models.ErrConflict, models.ErrTransient), want: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		svc := &stubService{deliverErr: tc.err}
		rec := do(t, svc, "/tenants/t1/purchase-orders/po-9/deliveries", map[string]any{"receivedBy": "ana"})
		if rec.Code != tc.want {
			t.Errorf("%v: expected %d, got %d", tc.err, tc.want, rec.Code)
		}
	}
}

func TestInventoryRoutes(t *testing.T) {
	svc := &stubService{}

	rec := do(t, svc, "/tenants/t1/locations/b1/inventory", map[string]any{"itemName": "Saffron", "unit": "g", "unitPrice": 90})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if svc.lastAdd.LocationID != "b1" || svc.lastAdd.ItemName != "Saffron" {
		t.Errorf("unexpected add input %+v", svc.lastAdd)
	}

	rec = do(t, svc, "/tenants/t1/locations/b1/inventory/unit-resolutions", map[string]any{"itemName": "Eggs", "newUnit": "pc", "quantity": 30, "actorId": "m1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.lastResolve.TenantID != "t1" || svc.lastResolve.NewUnit != "pc" || svc.lastResolve.Quantity != 30 {
		t.Errorf("unexpected resolve input %+v", svc.lastResolve)
	}

	svc.addErr = fmt.Errorf("dup: %w", models.ErrConflict)
	rec = do(t, svc, "/tenants/t1/locations/b1/inventory", map[string]any{"itemName": "Saffron", "unit": "g"})
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate item, got %d", rec.Code)
	}
}
