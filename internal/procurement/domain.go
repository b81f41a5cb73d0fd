package procurement

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RequestStatus is the fulfillment state of a purchase request.
type RequestStatus string

const (
	RequestWaiting  RequestStatus = "WAITING"
	RequestPartial  RequestStatus = "PARTIAL"
	RequestComplete RequestStatus = "COMPLETE"
)

// Valid reports whether s is a known request status.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestWaiting, RequestPartial, RequestComplete:
		return true
	}
	return false
}

// OrderStatus is the receiving state of a purchase order.
type OrderStatus string

const (
	OrderWaiting  OrderStatus = "WAITING"
	OrderPartial  OrderStatus = "PARTIAL"
	OrderComplete OrderStatus = "COMPLETE"
	OrderOver     OrderStatus = "OVER"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderWaiting, OrderPartial, OrderComplete, OrderOver:
		return true
	}
	return false
}

// Closed reports whether the order no longer accepts receipts.
func (s OrderStatus) Closed() bool {
	return s == OrderComplete || s == OrderOver
}

// PurchaseRequest declares needed items awaiting conversion into orders.
type PurchaseRequest struct {
	ID         uuid.UUID       `json:"id"`
	TotalQty   int             `json:"total_qty"`
	LeftQty    int             `json:"left_qty"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Status     RequestStatus   `json:"status"`
	Lines      []RequestLine   `json:"items"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// RequestLine is a requested item. LeftQuantity is the part not yet ordered.
type RequestLine struct {
	ID           uuid.UUID       `json:"id"`
	RequestID    uuid.UUID       `json:"-"`
	ItemID       uuid.UUID       `json:"item_id"`
	Quantity     int             `json:"quantity"`
	LeftQuantity int             `json:"left_quantity"`
	Price        decimal.Decimal `json:"price"`
}

// Line returns the request line for itemID.
func (pr *PurchaseRequest) Line(itemID uuid.UUID) (*RequestLine, bool) {
	for i := range pr.Lines {
		if pr.Lines[i].ItemID == itemID {
			return &pr.Lines[i], true
		}
	}
	return nil, false
}

// PurchaseOrder commits to acquire quantities against one request.
type PurchaseOrder struct {
	ID                uuid.UUID       `json:"id"`
	PurchaseRequestID uuid.UUID       `json:"purchase_request_id"`
	TotalQty          int             `json:"total_qty"`
	RemainingQty      int             `json:"remaining_qty"`
	TotalPrice        decimal.Decimal `json:"total_price"`
	Status            OrderStatus     `json:"status"`
	Lines             []OrderLine     `json:"items"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// OrderLine is an ordered item. RemainingQty never drops below zero.
type OrderLine struct {
	ID           uuid.UUID       `json:"id"`
	OrderID      uuid.UUID       `json:"-"`
	ItemID       uuid.UUID       `json:"item_id"`
	Quantity     int             `json:"quantity"`
	RemainingQty int             `json:"remaining_qty"`
	Price        decimal.Decimal `json:"price"`
}

// Line returns the order line for itemID.
func (po *PurchaseOrder) Line(itemID uuid.UUID) (*OrderLine, bool) {
	for i := range po.Lines {
		if po.Lines[i].ItemID == itemID {
			return &po.Lines[i], true
		}
	}
	return nil, false
}

// GoodsReceived records the physical arrival of ordered items.
type GoodsReceived struct {
	ID              uuid.UUID      `json:"id"`
	PurchaseOrderID uuid.UUID      `json:"purchase_order_id"`
	TotalQty        int            `json:"total_qty"`
	Lines           []ReceivedLine `json:"items"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// ReceivedLine is the quantity of one item received in a record.
type ReceivedLine struct {
	ID         uuid.UUID `json:"id"`
	ReceivedID uuid.UUID `json:"-"`
	ItemID     uuid.UUID `json:"item_id"`
	Quantity   int       `json:"quantity"`
}

// LineInput is the caller supplied item/quantity pair shared by every engine.
type LineInput struct {
	ItemID   uuid.UUID `json:"item_id" validate:"required"`
	Quantity int       `json:"quantity" validate:"required,min=1"`
}

// CatalogItem is the catalog view the engines consume.
type CatalogItem struct {
	ID            uuid.UUID
	Price         decimal.Decimal
	StockQuantity int
}

// StockAdjustment moves an item's stock counter by Delta.
type StockAdjustment struct {
	ItemID    uuid.UUID
	Delta     int
	RefModule string
	RefID     uuid.UUID
	Note      string
}

// Stock movement reference modules.
const (
	RefRequest  = "PURCHASE_REQUEST"
	RefReceived = "GOODS_RECEIVED"
)

// ListFilter narrows list operations.
type ListFilter struct {
	Status   string
	ParentID uuid.UUID
	Limit    int
	Offset   int
}
