package procurement

import (
	"context"
	"strconv"

	"github.com/google/uuid"
)

// Drift is one stored aggregate that disagrees with its lines.
type Drift struct {
	Entity   string    `json:"entity"`
	ID       uuid.UUID `json:"id"`
	Field    string    `json:"field"`
	Stored   string    `json:"stored"`
	Expected string    `json:"expected"`
}

// Report summarises a verification run.
type Report struct {
	Checked int     `json:"checked"`
	Drifts  []Drift `json:"drifts"`
}

// Clean reports whether no drift was found.
func (r Report) Clean() bool {
	return len(r.Drifts) == 0
}

func (r *Report) merge(other Report) {
	r.Checked += other.Checked
	r.Drifts = append(r.Drifts, other.Drifts...)
}

// CheckRequest compares a request's stored aggregates with its lines.
func CheckRequest(pr PurchaseRequest) []Drift {
	var drifts []Drift
	add := func(field string, stored, expected any) {
		drifts = append(drifts, Drift{Entity: "purchase_request", ID: pr.ID, Field: field, Stored: format(stored), Expected: format(expected)})
	}
	total := 0
	for _, line := range pr.Lines {
		total += line.Quantity
		if line.LeftQuantity < 0 || line.LeftQuantity > line.Quantity {
			add("items."+line.ItemID.String()+".left_quantity", line.LeftQuantity, "0.."+strconv.Itoa(line.Quantity))
		}
	}
	if pr.TotalQty != total {
		add("total_qty", pr.TotalQty, total)
	}
	left := SumRequestLeft(pr.Lines)
	if pr.LeftQty != left {
		add("left_qty", pr.LeftQty, left)
	}
	if derived := DeriveRequestStatus(total, left); pr.Status != derived {
		add("status", pr.Status, derived)
	}
	return drifts
}

// CheckOrder compares an order's stored aggregates with its lines. Status is
// only checked once receiving has started; OVER cannot be re-derived from
// lines and is accepted as is.
func CheckOrder(po PurchaseOrder) []Drift {
	var drifts []Drift
	add := func(field string, stored, expected any) {
		drifts = append(drifts, Drift{Entity: "purchase_order", ID: po.ID, Field: field, Stored: format(stored), Expected: format(expected)})
	}
	total := 0
	for _, line := range po.Lines {
		total += line.Quantity
		if line.RemainingQty < 0 {
			add("items."+line.ItemID.String()+".remaining_qty", line.RemainingQty, ">= 0")
		}
	}
	if po.TotalQty != total {
		add("total_qty", po.TotalQty, total)
	}
	remaining := SumOrderRemaining(po.Lines)
	if po.RemainingQty != remaining {
		add("remaining_qty", po.RemainingQty, remaining)
	}
	switch po.Status {
	case OrderWaiting:
		if remaining != total {
			add("status", po.Status, DeriveOrderStatus(remaining, false))
		}
	case OrderPartial, OrderComplete:
		if derived := DeriveOrderStatus(remaining, false); po.Status != derived {
			add("status", po.Status, derived)
		}
	}
	return drifts
}

// VerifyRequest reloads a request and reports drift. Nothing is modified.
func (s *Service) VerifyRequest(ctx context.Context, id uuid.UUID) (Report, error) {
	pr, err := s.FindRequest(ctx, id)
	if err != nil {
		return Report{}, err
	}
	return Report{Checked: 1, Drifts: CheckRequest(pr)}, nil
}

// VerifyOrder reloads an order and reports drift. Nothing is modified.
func (s *Service) VerifyOrder(ctx context.Context, id uuid.UUID) (Report, error) {
	po, err := s.FindOrder(ctx, id)
	if err != nil {
		return Report{}, err
	}
	return Report{Checked: 1, Drifts: CheckOrder(po)}, nil
}

// Sweep verifies up to limit of the most recently updated requests and orders.
func (s *Service) Sweep(ctx context.Context, limit int) (Report, error) {
	filter := normaliseFilter(ListFilter{Limit: limit})
	var report Report
	requests, _, err := s.repo.ListRequests(ctx, filter)
	if err != nil {
		return Report{}, s.read("sweep requests", err)
	}
	for _, pr := range requests {
		report.merge(Report{Checked: 1, Drifts: CheckRequest(pr)})
	}
	orders, _, err := s.repo.ListOrders(ctx, filter)
	if err != nil {
		return Report{}, s.read("sweep orders", err)
	}
	for _, po := range orders {
		report.merge(Report{Checked: 1, Drifts: CheckOrder(po)})
	}
	return report, nil
}

func format(v any) string {
	switch t := v.(type) {
	case int:
		return strconv.Itoa(t)
	case string:
		return t
	case RequestStatus:
		return string(t)
	case OrderStatus:
		return string(t)
	default:
		return ""
	}
}
