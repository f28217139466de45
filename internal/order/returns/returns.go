// Package returns implements order-return accounting: for each order line,
// a mapping from return-timestamp to (qty, refund-amount), with validation
// against the line's paid quantity and the product's warranty window.
package returns

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/metalalive/ecommerce-go/internal/apperr"
	"github.com/metalalive/ecommerce-go/internal/order/model"
)

// Entry is one timestamped return record against a single order line.
type Entry struct {
	Qty          uint32
	RefundAmount decimal.Decimal
}

// LineReturns maps a return's timestamp to (qty, refund-amount) for one
// order line.
type LineReturns map[time.Time]Entry

// OrderReturnModel accumulates returns for every line of one order.
type OrderReturnModel struct {
	OrderID string
	Lines   map[model.ProductID]LineReturns
}

func NewOrderReturnModel(orderID string) *OrderReturnModel {
	return &OrderReturnModel{OrderID: orderID, Lines: make(map[model.ProductID]LineReturns)}
}

func (m *OrderReturnModel) totalReturnedQty(pid model.ProductID) uint32 {
	var sum uint32
	for _, e := range m.Lines[pid] {
		sum += e.Qty
	}
	return sum
}

// AddReturn appends a new timestamped return for one line, validating
// against the matching order line's paid quantity and the product's
// warranty window, and rejecting a repeated timestamp for the same line.
func (m *OrderReturnModel) AddReturn(
	orderCreateTime time.Time,
	line *model.OrderLine,
	policy model.ProductPolicy,
	at time.Time,
	qty uint32,
	refundAmount decimal.Decimal,
	now time.Time,
) error {
	if line == nil {
		return apperr.New(apperr.NotExist, "no matching order line")
	}
	warrantyDeadline := orderCreateTime.Add(time.Duration(policy.WarrantyHours) * time.Hour)
	if now.After(warrantyDeadline) {
		return apperr.New(apperr.WarrantyExpired, "return window closed")
	}
	existing := m.Lines[line.PID]
	if existing == nil {
		existing = make(LineReturns)
	}
	if _, dup := existing[at]; dup {
		return apperr.New(apperr.DuplicateReturn, "return already recorded at this timestamp")
	}
	if m.totalReturnedQty(line.PID)+qty > line.PaidTotal.Qty {
		return apperr.New(apperr.QtyLimitExceed, "cumulative return qty exceeds paid qty")
	}
	existing[at] = Entry{Qty: qty, RefundAmount: refundAmount}
	m.Lines[line.PID] = existing
	return nil
}

// RemainingRefundable reports how much of a line's paid quantity has
// not yet been claimed by an existing return.
func (m *OrderReturnModel) RemainingRefundable(line model.OrderLine) uint32 {
	returned := m.totalReturnedQty(line.PID)
	if returned >= line.PaidTotal.Qty {
		return 0
	}
	return line.PaidTotal.Qty - returned
}

// jsonEntry is one timestamped return record in the wire form below;
// ProductID and time.Time can't serve as JSON object keys directly, so
// the map-of-maps shape is flattened to a slice for (un)marshalling.
type jsonEntry struct {
	At           time.Time
	Qty          uint32
	RefundAmount decimal.Decimal
}

type jsonLine struct {
	PID     model.ProductID
	Entries []jsonEntry
}

type jsonModel struct {
	OrderID string
	Lines   []jsonLine
}

func (m *OrderReturnModel) MarshalJSON() ([]byte, error) {
	out := jsonModel{OrderID: m.OrderID}
	for pid, lr := range m.Lines {
		line := jsonLine{PID: pid, Entries: make([]jsonEntry, 0, len(lr))}
		for at, e := range lr {
			line.Entries = append(line.Entries, jsonEntry{At: at, Qty: e.Qty, RefundAmount: e.RefundAmount})
		}
		out.Lines = append(out.Lines, line)
	}
	return json.Marshal(out)
}

func (m *OrderReturnModel) UnmarshalJSON(data []byte) error {
	var in jsonModel
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	m.OrderID = in.OrderID
	m.Lines = make(map[model.ProductID]LineReturns, len(in.Lines))
	for _, line := range in.Lines {
		lr := make(LineReturns, len(line.Entries))
		for _, e := range line.Entries {
			lr[e.At] = Entry{Qty: e.Qty, RefundAmount: e.RefundAmount}
		}
		m.Lines[line.PID] = lr
	}
	return nil
}
