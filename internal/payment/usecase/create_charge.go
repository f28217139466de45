package usecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/metalalive/ecommerce-go/internal/apperr"
	"github.com/metalalive/ecommerce-go/internal/idutil"
	"github.com/metalalive/ecommerce-go/internal/payment/model"
	"github.com/metalalive/ecommerce-go/internal/processor"
	"github.com/metalalive/ecommerce-go/internal/rpcport"
)

// CreateChargeRequest is the inbound shape of CreateCharge.
type CreateChargeRequest struct {
	Owner   uint32
	OrderID string
	Lines   []model.ChargeLine // requested subset of the order's unpaid lines
	Method  processor.PayInMethodRequest
}

// CreateCharge starts a charge against a buyer's reserved order lines:
// load (or fetch and cache) the order replica, validate the requested
// lines against it, start the pay-in with the processor, and persist
// the resulting charge.
func (s *Service) CreateCharge(ctx context.Context, now time.Time, req CreateChargeRequest) (*model.ChargeBuyerModel, error) {
	replica, err := s.getUnpaidOlines(ctx, req.Owner, req.OrderID)
	if err != nil {
		return nil, err
	}

	if err := validateRequestedLines(req.Lines, replica, now); err != nil {
		return nil, err
	}

	createTime := now
	token := idutil.ChargeToken(req.Owner, createTime)

	// Idempotent: a charge already persisted at this natural key is
	// returned as-is rather than re-started at the processor.
	if existing, err := s.Repo.GetCharge(ctx, req.Owner, createTime); err == nil {
		return existing, nil
	} else if !apperr.As(err, apperr.MissingCharge) {
		return nil, err
	}

	charge := &model.ChargeBuyerModel{
		Meta: model.ChargeMeta{
			Owner: req.Owner, CreateTime: createTime, Token: token,
			OrderID: req.OrderID, State: model.StateInitialized,
		},
		Lines:            req.Lines,
		CurrencySnapshot: replica.CurrencySnapshot,
	}

	payResult, method, err := s.Processor.PayInStart(ctx, processor.ChargeRequest{
		Owner: req.Owner, OrderID: req.OrderID, Token: token,
		Lines: toProcessorLines(req.Lines), Method: req.Method,
	})
	if err != nil {
		return nil, err
	}
	charge.Meta.Method = method
	if err := charge.Advance(model.StateProcessorAccepted, now); err != nil {
		return nil, err
	}

	if err := s.Repo.CreateCharge(ctx, charge); err != nil {
		return nil, err
	}

	if payResult.Completed {
		// Never block the caller on the sync step; a subsequent
		// RefreshChargeStatus poll (or this best-effort kick) carries it
		// forward.
		go func() {
			bgCtx := context.Background()
			_, _ = s.RefreshChargeStatus(bgCtx, time.Now().UTC(), req.Owner, token)
		}()
	}
	return charge, nil
}

// getUnpaidOlines consults the payment service's own cached copy of the
// order; on a cache miss, it acquires the order-sync lock for (usr, oid),
// RPC-fetches the replica, persists it locally, then releases the lock.
// A concurrent acquirer fails fast with LoadOrderConflict rather than
// queueing.
func (s *Service) getUnpaidOlines(ctx context.Context, owner uint32, orderID string) (*model.CachedOrderReplica, error) {
	if cached, err := s.Repo.GetCachedOrderReplica(ctx, orderID); err == nil {
		return cached, nil
	} else if !apperr.As(err, apperr.NotExist) {
		return nil, err
	}

	ticket, err := s.Sync.Acquire(owner, orderID)
	if err != nil {
		return nil, err
	}
	defer ticket.Release()

	replica, err := s.fetchOrderReplica(ctx, owner, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.SaveCachedOrderReplica(ctx, replica); err != nil {
		return nil, err
	}
	return replica, nil
}

func (s *Service) fetchOrderReplica(ctx context.Context, owner uint32, orderID string) (*model.CachedOrderReplica, error) {
	body, _ := json.Marshal(map[string]string{"order_id": orderID})
	reply, err := rpcport.CallWithRetry(ctx, s.RPC, rpcport.ClientRequest{
		UsrID: owner, Time: time.Now().UTC(), Route: "rpc.order.order_reserved_replica_payment", Message: body,
	}, s.RPCTTL, 3)
	if err != nil {
		return nil, err
	}
	var replica model.CachedOrderReplica
	if err := json.Unmarshal(reply.Message, &replica); err != nil {
		return nil, apperr.Wrap(apperr.RpcRemoteInvalidReply, "decode order replica", err)
	}
	return &replica, nil
}

// validateRequestedLines checks every requested line against the cached
// order replica: it must exist, carry a nonzero quantity, still be
// within its reservation window, and match the replica's unit/total
// amounts exactly.
func validateRequestedLines(lines []model.ChargeLine, replica *model.CachedOrderReplica, now time.Time) error {
	if len(lines) == 0 {
		return apperr.New(apperr.EmptyInputData, "no charge lines requested")
	}
	byPID := make(map[model.ProductID]model.CachedOrderReplicaLine, len(replica.Lines))
	for _, l := range replica.Lines {
		byPID[l.PID] = l
	}
	for i, reqLine := range lines {
		orderLine, ok := byPID[reqLine.PID]
		if !ok {
			return apperr.New(apperr.ProductNotExist, "requested line not part of order")
		}
		if orderLine.Qty == 0 {
			return apperr.New(apperr.InvalidQuantity, "zero quantity")
		}
		if !now.Before(orderLine.ReservedUntil) {
			return apperr.New(apperr.ReservationExpired, "reservation expired")
		}
		expected := orderLine.Unit.Mul(decimal.NewFromInt(int64(orderLine.Qty)))
		if !expected.Equal(orderLine.Total) {
			return apperr.New(apperr.AmountMismatch, "unit*qty does not equal total")
		}
		if !reqLine.Amount.Equal(orderLine.Total) {
			return apperr.New(apperr.AmountMismatch, "requested amount diverges from order snapshot")
		}
		lines[i].Qty = orderLine.Qty
	}
	return nil
}

func toProcessorLines(lines []model.ChargeLine) []processor.ChargeLine {
	out := make([]processor.ChargeLine, len(lines))
	for i, l := range lines {
		out[i] = processor.ChargeLine{StoreID: l.PID.StoreID, ProductID: l.PID.ProductID, Amount: l.Amount}
	}
	return out
}
