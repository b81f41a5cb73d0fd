package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool     *pgxpool.Pool
	allowNeg bool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, allowNegative bool) *Repository {
	return &Repository{pool: pool, allowNeg: allowNegative}
}

// GetItem loads one item.
func (r *Repository) GetItem(ctx context.Context, id uuid.UUID) (Item, error) {
	return NewLedger(r.pool, r.allowNeg).Item(ctx, id)
}

// ListItems pages through the catalog ordered by name.
func (r *Repository) ListItems(ctx context.Context, filter ItemFilter) ([]Item, int, error) {
	pattern := "%" + filter.Search + "%"
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM items WHERE name ILIKE $1`, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("inventory: count items: %w", err)
	}
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM items WHERE name ILIKE $1 ORDER BY name, id LIMIT $2 OFFSET $3`, pattern, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("inventory: list items: %w", err)
	}
	defer rows.Close()
	items := make([]Item, 0, filter.Limit)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

// CreateItem inserts a catalog item.
func (r *Repository) CreateItem(ctx context.Context, item Item) (Item, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO items (id, name, unit, price, quantity)
VALUES ($1, $2, $3, $4, $5) RETURNING `+itemColumns,
		item.ID, item.Name, item.Unit, item.Price, item.Quantity)
	created, err := scanItem(row)
	if err != nil {
		return Item{}, fmt.Errorf("inventory: insert item: %w", err)
	}
	return created, nil
}

// ListMovements returns the most recent stock card rows for an item.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, item_id, delta, balance, ref_module, ref_id, note, posted_at
FROM stock_movements WHERE item_id = $1 ORDER BY posted_at DESC, id DESC LIMIT $2`, filter.ItemID, filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("inventory: list movements: %w", err)
	}
	defer rows.Close()
	var moves []Movement
	for rows.Next() {
		var (
			mv  Movement
			ref pgtype.UUID
		)
		if err := rows.Scan(&mv.ID, &mv.ItemID, &mv.Delta, &mv.Balance, &mv.RefModule, &ref, &mv.Note, &mv.PostedAt); err != nil {
			return nil, err
		}
		if ref.Valid {
			mv.RefID = uuid.UUID(ref.Bytes)
		}
		moves = append(moves, mv)
	}
	return moves, rows.Err()
}
