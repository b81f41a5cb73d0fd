package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// Querier is satisfied by pgx.Tx and *pgxpool.Pool.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Ledger reads items and posts stock movements on the caller's transaction.
type Ledger struct {
	q        Querier
	allowNeg bool
}

// NewLedger binds a ledger to q.
func NewLedger(q Querier, allowNegative bool) *Ledger {
	return &Ledger{q: q, allowNeg: allowNegative}
}

const itemColumns = `id, name, unit, price, quantity, created_at, updated_at`

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	if err := row.Scan(&item.ID, &item.Name, &item.Unit, &item.Price, &item.Quantity, &item.CreatedAt, &item.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	return item, nil
}

// Item loads an item.
func (l *Ledger) Item(ctx context.Context, id uuid.UUID) (Item, error) {
	return scanItem(l.q.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id))
}

// Adjust locks the item row, applies the delta and appends a movement.
func (l *Ledger) Adjust(ctx context.Context, adj Adjustment) (Movement, error) {
	var balance int
	err := l.q.QueryRow(ctx, `SELECT quantity FROM items WHERE id = $1 FOR UPDATE`, adj.ItemID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Movement{}, ErrItemNotFound
		}
		return Movement{}, fmt.Errorf("inventory: lock item: %w", err)
	}
	next, err := ApplyDelta(balance, adj.Delta, l.allowNeg)
	if err != nil {
		return Movement{}, fmt.Errorf("%w: item %s balance %d delta %d", err, adj.ItemID, balance, adj.Delta)
	}
	if _, err := l.q.Exec(ctx, `UPDATE items SET quantity = $2, updated_at = NOW() WHERE id = $1`, adj.ItemID, next); err != nil {
		return Movement{}, fmt.Errorf("inventory: update stock: %w", err)
	}
	mv := Movement{
		ItemID:    adj.ItemID,
		Delta:     adj.Delta,
		Balance:   next,
		RefModule: adj.RefModule,
		RefID:     adj.RefID,
		Note:      adj.Note,
	}
	ref := pgtype.UUID{Bytes: adj.RefID, Valid: adj.RefID != uuid.Nil}
	err = l.q.QueryRow(ctx, `INSERT INTO stock_movements (item_id, delta, balance, ref_module, ref_id, note)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, posted_at`,
		adj.ItemID, adj.Delta, next, adj.RefModule, ref, adj.Note).Scan(&mv.ID, &mv.PostedAt)
	if err != nil {
		return Movement{}, fmt.Errorf("inventory: insert movement: %w", err)
	}
	return mv, nil
}
