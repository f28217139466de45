package reservation

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/metalalive/ecommerce-go/internal/apperr"
	"github.com/metalalive/ecommerce-go/internal/order/model"
	"github.com/metalalive/ecommerce-go/internal/store"
	"github.com/metalalive/ecommerce-go/internal/store/inmem"
)

func seedBatch(t *testing.T, ds store.DataStore, b *model.ProductStock) {
	t.Helper()
	if err := ds.CreateTable(context.Background(), stockTableLabel); err != nil {
		t.Fatalf("create table: %v", err)
	}
	row := encodeBatch(b)
	if _, err := ds.Save(context.Background(), map[string]map[string]store.Row{
		stockTableLabel: {batchKey(b.PID, b.Expiry): row},
	}); err != nil {
		t.Fatalf("seed batch: %v", err)
	}
}

func TestTryReserve(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	pid := model.ProductID{StoreID: 1, ProductID: 9}
	soonExpiry := now.Add(time.Hour)
	laterExpiry := now.Add(2 * time.Hour)

	tests := []struct {
		name        string
		batches     []*model.ProductStock
		qty         uint32
		wantErrKind apperr.Kind
		wantOK      bool
	}{
		{
			name: "fits in soonest batch",
			batches: []*model.ProductStock{
				{PID: pid, Expiry: soonExpiry, Total: 5},
				{PID: pid, Expiry: laterExpiry, Total: 5},
			},
			qty:    3,
			wantOK: true,
		},
		{
			name: "spills into next batch",
			batches: []*model.ProductStock{
				{PID: pid, Expiry: soonExpiry, Total: 2},
				{PID: pid, Expiry: laterExpiry, Total: 5},
			},
			qty:    4,
			wantOK: true,
		},
		{
			name: "insufficient stock across all batches",
			batches: []*model.ProductStock{
				{PID: pid, Expiry: soonExpiry, Total: 1},
			},
			qty:         4,
			wantErrKind: apperr.ReservationExpired,
		},
		{
			name: "expired batch skipped",
			batches: []*model.ProductStock{
				{PID: pid, Expiry: now.Add(-time.Minute), Total: 10},
			},
			qty:         1,
			wantErrKind: apperr.ReservationExpired,
		},
		{
			name: "zero quantity rejected",
			batches: []*model.ProductStock{
				{PID: pid, Expiry: soonExpiry, Total: 10},
			},
			qty:         0,
			wantErrKind: apperr.InvalidQuantity,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ds := inmem.New()
			for _, b := range tc.batches {
				seedBatch(t, ds, b)
			}
			eng := NewEngine(ds)
			unit, _ := model.NewLineAmount(decimal.NewFromInt(10), 1)
			unit.Qty = tc.qty // TryReserve reads Unit.Qty as the requested quantity
			req := ReserveRequest{
				OrderID: "order-1",
				Lines:   []OrderLineRequest{{PID: pid, Unit: unit, ReservedUntil: now.Add(30 * time.Minute)}},
			}
			lineErrs, err := eng.TryReserve(context.Background(), now, req)
			if err != nil {
				t.Fatalf("TryReserve returned error: %v", err)
			}
			if tc.wantOK {
				if len(lineErrs) != 0 {
					t.Fatalf("expected success, got line errors: %+v", lineErrs)
				}
				return
			}
			if len(lineErrs) != 1 || lineErrs[0].Kind != tc.wantErrKind {
				t.Fatalf("expected a single %s error, got: %+v", tc.wantErrKind, lineErrs)
			}
		})
	}
}

func TestTryReserveInvariantAfterPartialSpill(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	pid := model.ProductID{StoreID: 2, ProductID: 7}
	ds := inmem.New()
	b1 := &model.ProductStock{PID: pid, Expiry: now.Add(time.Hour), Total: 3}
	b2 := &model.ProductStock{PID: pid, Expiry: now.Add(2 * time.Hour), Total: 3}
	seedBatch(t, ds, b1)
	seedBatch(t, ds, b2)

	eng := NewEngine(ds)
	unit, _ := model.NewLineAmount(decimal.NewFromInt(10), 1)
	unit.Qty = 5
	req := ReserveRequest{
		OrderID: "order-2",
		Lines:   []OrderLineRequest{{PID: pid, Unit: unit, ReservedUntil: now.Add(30 * time.Minute)}},
	}
	if _, err := eng.TryReserve(context.Background(), now, req); err != nil {
		t.Fatalf("TryReserve: %v", err)
	}

	rows, err := ds.Fetch(context.Background(), stockTableLabel, []string{
		batchKey(pid, b1.Expiry), batchKey(pid, b2.Expiry),
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	var totalBooked uint32
	for _, row := range rows {
		b, err := decodeBatch(row)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if err := b.CheckInvariants(); err != nil {
			t.Fatalf("invariant violated: %v", err)
		}
		totalBooked += b.Booked
	}
	if totalBooked != 5 {
		t.Fatalf("expected 5 total booked across batches, got %d", totalBooked)
	}
}

func TestReturnCancelled(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	pid := model.ProductID{StoreID: 3, ProductID: 4}
	expiry := now.Add(time.Hour)
	ds := inmem.New()
	seedBatch(t, ds, &model.ProductStock{PID: pid, Expiry: expiry, Total: 10, Cancelled: 4})

	eng := NewEngine(ds)
	errs, err := eng.ReturnCancelled(context.Background(), []ReturnItem{
		{PID: pid, Expiry: expiry, Qty: 3},
	})
	if err != nil {
		t.Fatalf("ReturnCancelled: %v", err)
	}
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %+v", errs)
	}

	rows, err := ds.Fetch(context.Background(), stockTableLabel, []string{batchKey(pid, expiry)})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	b, err := decodeBatch(rows[batchKey(pid, expiry)])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.Cancelled != 1 {
		t.Fatalf("expected cancelled to drop to 1, got %d", b.Cancelled)
	}
}

func TestReturnCancelledMissingBatchReportsPerItem(t *testing.T) {
	pid := model.ProductID{StoreID: 5, ProductID: 6}
	ds := inmem.New()
	if err := ds.CreateTable(context.Background(), stockTableLabel); err != nil {
		t.Fatalf("create table: %v", err)
	}
	eng := NewEngine(ds)
	errs, err := eng.ReturnCancelled(context.Background(), []ReturnItem{
		{PID: pid, Expiry: time.Now(), Qty: 1},
	})
	if err != nil {
		t.Fatalf("ReturnCancelled: %v", err)
	}
	if len(errs) != 1 || errs[0].Kind != apperr.NotExist {
		t.Fatalf("expected a single NotExist error, got: %+v", errs)
	}
}
