package usecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/metalalive/ecommerce-go/internal/apperr"
	"github.com/metalalive/ecommerce-go/internal/idutil"
	"github.com/metalalive/ecommerce-go/internal/payment/model"
	"github.com/metalalive/ecommerce-go/internal/rpcport"
)

// RefreshChargeStatus polls the processor for a charge's pay-in verdict
// and, once it lands, syncs the paid lines back to the order service.
// The token is the charge's own natural key encoded by CreateCharge, so
// no separate lookup index is needed.
func (s *Service) RefreshChargeStatus(ctx context.Context, now time.Time, authedUsr uint32, token string) (*model.ChargeBuyerModel, error) {
	owner, createTime, err := idutil.DecodeChargeToken(token)
	if err != nil {
		return nil, err
	}
	if owner != authedUsr {
		return nil, apperr.New(apperr.OrderOwnerMismatch, "charge does not belong to the authenticated user")
	}

	charge, lock, err := s.Repo.FetchAcquireCharge(ctx, owner, createTime)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			lock.Release()
		}
	}()

	if charge.Meta.State == model.StateOrderAppSynced || charge.Meta.State == model.StateOrderAppExpired {
		lock.Release()
		committed = true
		return charge, nil
	}

	if completed := charge.Meta.PayInCompleted(); completed == nil {
		method, err := s.Processor.PayInProgress(ctx, charge.Meta.Method)
		if err != nil {
			return nil, err
		}
		charge.Meta.Method = method
		if again := charge.Meta.PayInCompleted(); again == nil {
			if err := s.Repo.SaveReleaseCharge(ctx, charge, lock); err != nil {
				return nil, err
			}
			committed = true
			return charge, nil
		} else if !*again {
			if err := charge.Advance(model.StateOrderAppExpired, now); err != nil {
				return nil, err
			}
			if err := s.Repo.SaveReleaseCharge(ctx, charge, lock); err != nil {
				return nil, err
			}
			committed = true
			return charge, nil
		}
	} else if !*completed {
		if err := charge.Advance(model.StateOrderAppExpired, now); err != nil {
			return nil, err
		}
		if err := s.Repo.SaveReleaseCharge(ctx, charge, lock); err != nil {
			return nil, err
		}
		committed = true
		return charge, nil
	}

	if charge.Meta.State == model.StateInitialized || charge.Meta.State == model.StateProcessorAccepted {
		if err := charge.Advance(model.StateProcessorCompleted, now); err != nil {
			return nil, err
		}
	}

	if err := s.syncOrderPayment(ctx, charge); err != nil {
		return nil, err
	}
	if err := charge.Advance(model.StateOrderAppSynced, now); err != nil {
		return nil, err
	}
	if err := s.Repo.SaveReleaseCharge(ctx, charge, lock); err != nil {
		return nil, err
	}
	committed = true
	return charge, nil
}

type updatePaymentRPCLine struct {
	StoreID   uint32
	ProductID uint64
	AddQty    uint32
}

type updatePaymentRPCRequest struct {
	OrderID    string
	ChargeTime time.Time
	Lines      []updatePaymentRPCLine
}

// syncOrderPayment tells the order service which lines this charge paid
// for, keyed by the charge's own create_time so a retried sync after a
// crash is a no-op on that side.
func (s *Service) syncOrderPayment(ctx context.Context, charge *model.ChargeBuyerModel) error {
	lines := make([]updatePaymentRPCLine, len(charge.Lines))
	for i, l := range charge.Lines {
		lines[i] = updatePaymentRPCLine{StoreID: l.PID.StoreID, ProductID: l.PID.ProductID, AddQty: l.Qty}
	}
	body, err := json.Marshal(updatePaymentRPCRequest{
		OrderID: charge.Meta.OrderID, ChargeTime: charge.Meta.CreateTime, Lines: lines,
	})
	if err != nil {
		return apperr.Wrap(apperr.DataCorruption, "encode update-payment rpc", err)
	}
	_, err = rpcport.CallWithRetry(ctx, s.RPC, rpcport.ClientRequest{
		UsrID: charge.Meta.Owner, Time: time.Now().UTC(), Route: "rpc.order.order_reserved_update_payment", Message: body,
	}, s.RPCTTL, 3)
	return err
}

