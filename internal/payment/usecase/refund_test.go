package usecase

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/metalalive/ecommerce-go/internal/apperr"
	"github.com/metalalive/ecommerce-go/internal/payment/model"
	"github.com/metalalive/ecommerce-go/internal/rpcport"
)

func TestFinalizeRefundAbsorbsAcrossCharges(t *testing.T) {
	s := newTestPaymentService(t)
	now := time.Now().UTC()
	seedPayableMerchant(t, s, 2, 5, now)
	pid := model.ProductID{StoreID: 2, ProductID: 7}

	for i, amt := range []string{"10", "10"} {
		charge := &model.ChargeBuyerModel{
			Meta:  model.ChargeMeta{Owner: 1, CreateTime: now.Add(time.Duration(i) * time.Second), OrderID: "order-1", State: model.StateOrderAppSynced},
			Lines: []model.ChargeLine{{PID: pid, Amount: decimal.RequireFromString(amt), Qty: 2}},
		}
		if err := s.Repo.CreateCharge(context.Background(), charge); err != nil {
			t.Fatalf("CreateCharge: %v", err)
		}
	}
	rpc, ok := s.RPC.(interface {
		Register(string, rpcport.Handler)
	})
	if !ok {
		t.Fatalf("RPC client does not support route registration")
	}
	rpc.Register("rpc.order.order_returned_replica_refund", func(_ context.Context, _ rpcport.ClientRequest) (rpcport.Reply, error) {
		body, _ := json.Marshal(map[string]interface{}{
			"OrderID": "order-1",
			"Lines":   []map[string]interface{}{{"PID": pid, "PaidQty": 4, "PaidUnit": "5"}},
		})
		return rpcport.Reply{Message: body}, nil
	})

	refund, err := s.FinalizeRefund(context.Background(), now, FinalizeRefundRequest{
		OrderID: "order-1", StoreID: 2, StaffID: 5,
		Lines: []RefundLineRequest{{PID: pid, Qty: 3, Reason: "damaged"}},
	})
	if err != nil {
		t.Fatalf("FinalizeRefund: %v", err)
	}
	var total uint32
	for _, l := range refund.Lines {
		total += l.Qty
	}
	if total != 3 {
		t.Fatalf("expected 3 refunded units absorbed across charges, got %d", total)
	}
}

func TestFinalizeRefundRejectsInactiveStaff(t *testing.T) {
	s := newTestPaymentService(t)
	now := time.Now().UTC()
	seedPayableMerchant(t, s, 2, 5, now)

	_, err := s.FinalizeRefund(context.Background(), now, FinalizeRefundRequest{
		OrderID: "order-1", StoreID: 2, StaffID: 99,
		Lines: []RefundLineRequest{{PID: model.ProductID{StoreID: 2, ProductID: 7}, Qty: 1}},
	})
	ae, ok := err.(*apperr.Error)
	if !ok || ae.Kind != apperr.InvalidMerchantStaff {
		t.Fatalf("expected InvalidMerchantStaff, got %v", err)
	}
}

func TestSyncRefundReqPersistsAndAdvancesWatermark(t *testing.T) {
	s := newTestPaymentService(t)
	now := time.Now().UTC()
	pid := model.ProductID{StoreID: 2, ProductID: 7}
	rpc, ok := s.RPC.(interface {
		Register(string, rpcport.Handler)
	})
	if !ok {
		t.Fatalf("RPC client does not support route registration")
	}
	rpc.Register("rpc.order.return_lines_pending_refund", func(_ context.Context, _ rpcport.ClientRequest) (rpcport.Reply, error) {
		body, _ := json.Marshal([]map[string]interface{}{
			{"OrderID": "order-1", "Lines": []map[string]interface{}{
				{"PID": pid, "Qty": 2, "Amount": "10", "CreateTime": now},
			}},
		})
		return rpcport.Reply{Message: body}, nil
	})

	if err := s.SyncRefundReq(context.Background(), now); err != nil {
		t.Fatalf("SyncRefundReq: %v", err)
	}
	refund, err := s.Repo.GetRefund(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("GetRefund: %v", err)
	}
	if len(refund.Lines) != 1 || refund.Lines[0].Qty != 2 {
		t.Fatalf("expected one synced refund line with qty 2, got %+v", refund.Lines)
	}
	watermark, err := s.Repo.LastTimeSynced(context.Background())
	if err != nil {
		t.Fatalf("LastTimeSynced: %v", err)
	}
	if !watermark.Equal(now) {
		t.Fatalf("watermark = %v, want %v", watermark, now)
	}
}
