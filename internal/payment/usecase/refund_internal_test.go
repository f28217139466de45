package usecase

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/metalalive/ecommerce-go/internal/apperr"
	"github.com/metalalive/ecommerce-go/internal/payment/model"
)

func TestEstimateAmount(t *testing.T) {
	line := model.ChargeLine{Amount: decimal.RequireFromString("30"), Qty: 3}
	got := estimateAmount(line, 2)
	want := decimal.RequireFromString("20")
	if !got.Equal(want) {
		t.Fatalf("estimateAmount() = %s, want %s", got, want)
	}
	if !estimateAmount(model.ChargeLine{Qty: 0}, 1).IsZero() {
		t.Fatalf("expected zero-qty line to estimate zero")
	}
}

func TestValidateRefundRequest(t *testing.T) {
	pid := model.ProductID{StoreID: 1, ProductID: 2}
	paid := &orderReplicaRefundDto{
		Lines: []orderReplicaRefundLineDto{{PID: pid, PaidQty: 5, PaidUnit: decimal.RequireFromString("10")}},
	}

	tests := []struct {
		name        string
		req         []RefundLineRequest
		alreadyRef  uint32
		wantErrKind apperr.Kind
	}{
		{"within remaining quantity", []RefundLineRequest{{PID: pid, Qty: 3}}, 0, ""},
		{"exceeds paid quantity", []RefundLineRequest{{PID: pid, Qty: 6}}, 0, apperr.QtyLimitExceed},
		{"exceeds after prior refund", []RefundLineRequest{{PID: pid, Qty: 3}}, 3, apperr.QtyLimitExceed},
		{"zero quantity rejected", []RefundLineRequest{{PID: pid, Qty: 0}}, 0, apperr.InvalidQuantity},
		{"never-paid product rejected", []RefundLineRequest{{PID: model.ProductID{StoreID: 9, ProductID: 9}, Qty: 1}}, 0, apperr.ProductNotExist},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			refund := &model.OrderRefundModel{}
			if tc.alreadyRef > 0 {
				refund.Lines = append(refund.Lines, model.OrderRefundLine{PID: pid, Qty: tc.alreadyRef})
			}
			err := validateRefundRequest(tc.req, paid, refund)
			if tc.wantErrKind == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			ae, ok := err.(*apperr.Error)
			if !ok || ae.Kind != tc.wantErrKind {
				t.Fatalf("expected error kind %s, got %v", tc.wantErrKind, err)
			}
		})
	}
}

func TestRefundReasonFor(t *testing.T) {
	pidA := model.ProductID{StoreID: 1, ProductID: 1}
	pidB := model.ProductID{StoreID: 1, ProductID: 2}
	lines := []RefundLineRequest{{PID: pidA, Reason: "damaged"}, {PID: pidB, Reason: "wrong item"}}
	if got := refundReasonFor(lines, pidB); got != "wrong item" {
		t.Fatalf("refundReasonFor(pidB) = %q, want %q", got, "wrong item")
	}
	if got := refundReasonFor(lines, model.ProductID{StoreID: 9, ProductID: 9}); got != "" {
		t.Fatalf("expected empty reason for unknown pid, got %q", got)
	}
}
