package inventory

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Item is a catalog entry with its on-hand stock counter.
type Item struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Unit      string          `json:"unit"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Movement is one append-only stock card row.
type Movement struct {
	ID        int64     `json:"id"`
	ItemID    uuid.UUID `json:"item_id"`
	Delta     int       `json:"delta"`
	Balance   int       `json:"balance"`
	RefModule string    `json:"ref_module"`
	RefID     uuid.UUID `json:"ref_id"`
	Note      string    `json:"note"`
	PostedAt  time.Time `json:"posted_at"`
}

// Adjustment describes a signed change of an item's stock.
type Adjustment struct {
	ItemID    uuid.UUID
	Delta     int
	RefModule string
	RefID     uuid.UUID
	Note      string
}

// CreateItemInput registers a catalog item.
type CreateItemInput struct {
	Name     string          `json:"name" validate:"required,max=200"`
	Unit     string          `json:"unit" validate:"omitempty,max=20"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity" validate:"min=0"`
}

// ItemFilter narrows catalog listings.
type ItemFilter struct {
	Search string
	Limit  int
	Offset int
}

// MovementFilter narrows stock card listings.
type MovementFilter struct {
	ItemID uuid.UUID
	Limit  int
}

// ErrItemNotFound indicates an unknown catalog item.
var ErrItemNotFound = errors.New("inventory: item not found")

// ErrNegativeStock triggered when movement would result negative qty.
var ErrNegativeStock = errors.New("inventory: negative stock not allowed")

// ErrInvalidQuantity indicates invalid qty.
var ErrInvalidQuantity = errors.New("inventory: quantity must be non zero")

// ErrInvalidName indicates a blank item name.
var ErrInvalidName = errors.New("inventory: item name required")

// ErrInvalidPrice indicates a negative price.
var ErrInvalidPrice = errors.New("inventory: price must be >= 0")

// ApplyDelta returns the balance after delta, rejecting negative results
// unless allowNegative is set.
func ApplyDelta(balance, delta int, allowNegative bool) (int, error) {
	if delta == 0 {
		return balance, ErrInvalidQuantity
	}
	next := balance + delta
	if next < 0 && !allowNegative {
		return balance, ErrNegativeStock
	}
	return next, nil
}
