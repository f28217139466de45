package usecase

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/metalalive/ecommerce-go/internal/apperr"
	"github.com/metalalive/ecommerce-go/internal/payment/model"
	"github.com/metalalive/ecommerce-go/internal/processor"
	"github.com/metalalive/ecommerce-go/internal/rpcport"
	"github.com/metalalive/ecommerce-go/internal/store"
)

// RefundLineRequest is one requested refund line.
type RefundLineRequest struct {
	PID    model.ProductID
	Qty    uint32
	Reason string
}

// FinalizeRefundRequest is the inbound shape of FinalizeRefund.
type FinalizeRefundRequest struct {
	OrderID string
	StoreID uint32
	StaffID uint32
	Lines   []RefundLineRequest
}

type orderReplicaRefundDto struct {
	OrderID string
	Lines   []orderReplicaRefundLineDto
}

type orderReplicaRefundLineDto struct {
	PID      model.ProductID
	PaidQty  uint32
	PaidUnit decimal.Decimal
}

// FinalizeRefund locks every charge the merchant holds on an order,
// validates the requested refund lines against what was actually paid,
// resolves each refund through the processor in charge-creation order,
// and persists the resulting refund ledger.
func (s *Service) FinalizeRefund(ctx context.Context, now time.Time, req FinalizeRefundRequest) (*model.OrderRefundModel, error) {
	merchant, err := s.Repo.GetMerchant(ctx, req.StoreID)
	if err != nil {
		return nil, err
	}
	if !merchant.StaffActiveAt(req.StaffID, now) {
		return nil, apperr.New(apperr.InvalidMerchantStaff, "staff not active for this merchant at this time")
	}

	chargeKeys, err := s.Repo.ChargeIDsForOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	type lockedCharge struct {
		charge *model.ChargeBuyerModel
		lock   store.Lock
	}
	var locked []lockedCharge
	pending := true
	defer func() {
		if pending {
			for _, lc := range locked {
				lc.lock.Release()
			}
		}
	}()
	for _, key := range chargeKeys {
		c, lock, err := s.Repo.FetchAcquireChargeByKey(ctx, key)
		if err != nil {
			return nil, err
		}
		if len(linesForStore(c, req.StoreID)) == 0 {
			lock.Release()
			continue
		}
		locked = append(locked, lockedCharge{charge: c, lock: lock})
	}
	if len(locked) == 0 {
		return nil, apperr.New(apperr.MissingCharge, "no charges for this merchant on this order")
	}
	sort.Slice(locked, func(i, j int) bool { return locked[i].charge.Meta.CreateTime.Before(locked[j].charge.Meta.CreateTime) })
	charges := make([]*model.ChargeBuyerModel, len(locked))
	for i, lc := range locked {
		charges[i] = lc.charge
	}

	paidLines, err := s.fetchOrderReplicaRefund(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	refund, err := s.Repo.GetRefund(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if err := validateRefundRequest(req.Lines, paidLines, refund); err != nil {
		return nil, err
	}

	remaining := make(map[model.ProductID]uint32, len(req.Lines))
	for _, l := range req.Lines {
		remaining[l.PID] = l.Qty
	}

	for _, charge := range charges {
		for _, line := range linesForStore(charge, req.StoreID) {
			want, ok := remaining[line.PID]
			if !ok || want == 0 {
				continue
			}
			absorb := want
			if absorb > line.Qty {
				absorb = line.Qty
			}
			amount := estimateAmount(line, absorb)
			result, err := s.Processor.Refund(ctx, charge.Meta.Method, processor.RefundResolveRequest{
				Charge3party: charge.Meta.Method, Amount: amount, Reason: refundReasonFor(req.Lines, line.PID),
			})
			if err != nil {
				return nil, err
			}
			refund.Lines = append(refund.Lines, model.OrderRefundLine{
				PID: line.PID, Qty: absorb, Amount: result.Amount, CreateTime: now,
			})
			remaining[line.PID] = want - absorb
		}
	}

	if err := s.Repo.SaveRefund(ctx, refund); err != nil {
		return nil, err
	}
	pending = false
	for _, lc := range locked {
		if err := s.Repo.SaveReleaseCharge(ctx, lc.charge, lc.lock); err != nil {
			return nil, err
		}
	}
	return refund, nil
}

// validateRefundRequest checks that every requested line matches an
// existing paid line, and that cumulative quantity (already refunded
// plus requested) never exceeds what was paid.
func validateRefundRequest(req []RefundLineRequest, paid *orderReplicaRefundDto, refund *model.OrderRefundModel) error {
	paidByPID := make(map[model.ProductID]uint32, len(paid.Lines))
	for _, l := range paid.Lines {
		paidByPID[l.PID] = l.PaidQty
	}
	for _, l := range req {
		paidQty, ok := paidByPID[l.PID]
		if !ok {
			return apperr.New(apperr.ProductNotExist, "refund line was never paid for")
		}
		if l.Qty == 0 {
			return apperr.New(apperr.InvalidQuantity, "zero refund quantity")
		}
		already := refund.RefundedQtyFor(l.PID)
		if already+l.Qty > paidQty {
			return apperr.New(apperr.QtyLimitExceed, "refund quantity exceeds remaining paid quantity")
		}
	}
	return nil
}

func estimateAmount(line model.ChargeLine, qty uint32) decimal.Decimal {
	if line.Qty == 0 {
		return decimal.Zero
	}
	unit := line.Amount.Div(decimal.NewFromInt(int64(line.Qty)))
	return unit.Mul(decimal.NewFromInt(int64(qty)))
}

func refundReasonFor(lines []RefundLineRequest, pid model.ProductID) string {
	for _, l := range lines {
		if l.PID == pid {
			return l.Reason
		}
	}
	return ""
}

func (s *Service) fetchOrderReplicaRefund(ctx context.Context, orderID string) (*orderReplicaRefundDto, error) {
	body, _ := json.Marshal(map[string]string{"order_id": orderID})
	reply, err := rpcport.CallWithRetry(ctx, s.RPC, rpcport.ClientRequest{
		UsrID: 0, Time: time.Now().UTC(), Route: "rpc.order.order_returned_replica_refund", Message: body,
	}, s.RPCTTL, 3)
	if err != nil {
		return nil, err
	}
	var dto orderReplicaRefundDto
	if err := json.Unmarshal(reply.Message, &dto); err != nil {
		return nil, apperr.Wrap(apperr.RpcRemoteInvalidReply, "decode order replica refund", err)
	}
	return &dto, nil
}

// refundLineDto is the scheduler-facing shape of one refund request line.
type refundLineDto struct {
	PID        model.ProductID
	Qty        uint32
	Amount     decimal.Decimal
	CreateTime time.Time
}

type refundRequestDto struct {
	OrderID string
	Lines   []refundLineDto
}

// SyncRefundReq is the scheduler task that pulls refund requests the
// order service has queued since the last sync and records them locally.
func (s *Service) SyncRefundReq(ctx context.Context, now time.Time) error {
	t0, err := s.Repo.LastTimeSynced(ctx)
	if err != nil {
		return err
	}
	reqs, err := s.fetchRefundRequests(ctx, t0, now)
	if err != nil {
		return err
	}
	for _, req := range reqs {
		refund := &model.OrderRefundModel{OrderID: req.OrderID}
		for _, l := range req.Lines {
			refund.Lines = append(refund.Lines, model.OrderRefundLine{
				PID: l.PID, Qty: l.Qty, Amount: l.Amount, CreateTime: l.CreateTime,
			})
		}
		if err := s.Repo.SaveRefund(ctx, refund); err != nil {
			return err
		}
	}
	return s.Repo.UpdateSyncedTime(ctx, now)
}

func (s *Service) fetchRefundRequests(ctx context.Context, from, to time.Time) ([]refundRequestDto, error) {
	body, _ := json.Marshal(map[string]string{
		"from": from.UTC().Format(time.RFC3339Nano), "to": to.UTC().Format(time.RFC3339Nano),
	})
	reply, err := rpcport.CallWithRetry(ctx, s.RPC, rpcport.ClientRequest{
		UsrID: 0, Time: to, Route: "rpc.order.return_lines_pending_refund", Message: body,
	}, s.RPCTTL, 3)
	if err != nil {
		return nil, err
	}
	var reqs []refundRequestDto
	if err := json.Unmarshal(reply.Message, &reqs); err != nil {
		return nil, apperr.Wrap(apperr.RpcRemoteInvalidReply, "decode refund requests", err)
	}
	return reqs, nil
}
