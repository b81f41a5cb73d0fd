package procurement

import "github.com/shopspring/decimal"

// DeriveRequestStatus maps request aggregates to a status. Requests are never
// over-fulfilled, so OVER is not a possible result.
func DeriveRequestStatus(totalQty, leftQty int) RequestStatus {
	switch {
	case leftQty == 0:
		return RequestComplete
	case leftQty < totalQty:
		return RequestPartial
	default:
		return RequestWaiting
	}
}

// DeriveOrderStatus maps order aggregates to a status after a receipt change.
// Callers keep WAITING by not calling it before the first receipt.
func DeriveOrderStatus(totalRemaining int, overReceived bool) OrderStatus {
	switch {
	case overReceived:
		return OrderOver
	case totalRemaining == 0:
		return OrderComplete
	default:
		return OrderPartial
	}
}

// Consume takes qty off remaining. The result floors at zero and over reports
// whether qty exceeded what remained.
func Consume(remaining, qty int) (left int, over bool) {
	over = qty > remaining
	left = remaining - qty
	if left < 0 {
		left = 0
	}
	return left, over
}

// SumRequestLeft totals the orderable remainder of every request line.
func SumRequestLeft(lines []RequestLine) int {
	total := 0
	for _, line := range lines {
		total += line.LeftQuantity
	}
	return total
}

// SumOrderRemaining totals the yet-to-receive quantity of every order line.
func SumOrderRemaining(lines []OrderLine) int {
	total := 0
	for _, line := range lines {
		total += line.RemainingQty
	}
	return total
}

// LineTotal returns qty * price.
func LineTotal(qty int, price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(qty)))
}

// applyRequestTotals recomputes quantity and price aggregates from the lines.
func applyRequestTotals(pr *PurchaseRequest) {
	total := 0
	price := decimal.Zero
	for _, line := range pr.Lines {
		total += line.Quantity
		price = price.Add(LineTotal(line.Quantity, line.Price))
	}
	pr.TotalQty = total
	pr.TotalPrice = price
	refreshRequestLeft(pr)
}

// refreshRequestLeft recomputes leftQty over all lines and re-derives status.
func refreshRequestLeft(pr *PurchaseRequest) {
	pr.LeftQty = SumRequestLeft(pr.Lines)
	pr.Status = DeriveRequestStatus(pr.TotalQty, pr.LeftQty)
}

// applyOrderTotals recomputes quantity, remaining and price aggregates.
func applyOrderTotals(po *PurchaseOrder) {
	total := 0
	price := decimal.Zero
	for _, line := range po.Lines {
		total += line.Quantity
		price = price.Add(LineTotal(line.Quantity, line.Price))
	}
	po.TotalQty = total
	po.TotalPrice = price
	po.RemainingQty = SumOrderRemaining(po.Lines)
}

func sumInputs(items []LineInput) int {
	total := 0
	for _, item := range items {
		total += item.Quantity
	}
	return total
}
