package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrItemNotFound      = errors.New("inventory item not found")
	ErrNegativeStock     = errors.New("stock cannot go negative")
	ErrInsufficientStock = errors.New("insufficient available stock")
	ErrReleaseExceeds    = errors.New("release exceeds reserved stock")
)

type Repo struct{ DB *pgxpool.Pool }

const itemColumns = `id, product_custom_id, current_stock, reserved_stock, min_stock_alert, status, created_at, updated_at`

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.ProductCustomID, &it.CurrentStock, &it.ReservedStock,
		&it.MinStockAlert, &it.Status, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	return it, err
}

func (r *Repo) Create(ctx context.Context, it *Item) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO inventory (id, product_custom_id, current_stock, reserved_stock,
		                       min_stock_alert, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		it.ID, it.ProductCustomID, it.CurrentStock, it.ReservedStock,
		it.MinStockAlert, it.Status, it.CreatedAt, it.UpdatedAt)
	return err
}

func (r *Repo) Item(ctx context.Context, productCustomID string) (Item, error) {
	return scanItem(r.DB.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM inventory WHERE product_custom_id=$1`, productCustomID))
}

func (r *Repo) List(ctx context.Context) ([]Item, error) {
	return r.queryItems(ctx, `SELECT `+itemColumns+` FROM inventory ORDER BY product_custom_id`)
}

// guarded runs a conditional UPDATE and maps "no row changed" to either a
// missing item or the given guard failure. The guard lives in the WHERE
// clause, so concurrent mutations can never lose updates.
func (r *Repo) guarded(ctx context.Context, sql string, guardErr error, args ...any) (Item, error) {
	it, err := scanItem(r.DB.QueryRow(ctx, sql, args...))
	if errors.Is(err, ErrItemNotFound) {
		var exists bool
		if err2 := r.DB.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM inventory WHERE product_custom_id=$1)`, args[0]).Scan(&exists); err2 != nil {
			return Item{}, err2
		}
		if exists {
			return Item{}, guardErr
		}
		return Item{}, ErrItemNotFound
	}
	return it, err
}

func (r *Repo) Adjust(ctx context.Context, productCustomID string, delta int) (Item, error) {
	return r.guarded(ctx, `
		UPDATE inventory SET current_stock = current_stock + $2, updated_at = now()
		WHERE product_custom_id = $1 AND current_stock + $2 >= 0
		RETURNING `+itemColumns,
		ErrNegativeStock, productCustomID, delta)
}

func (r *Repo) Reserve(ctx context.Context, productCustomID string, qty int) (Item, error) {
	return r.guarded(ctx, `
		UPDATE inventory SET reserved_stock = reserved_stock + $2, updated_at = now()
		WHERE product_custom_id = $1 AND current_stock - reserved_stock >= $2
		RETURNING `+itemColumns,
		ErrInsufficientStock, productCustomID, qty)
}

func (r *Repo) Release(ctx context.Context, productCustomID string, qty int) (Item, error) {
	return r.guarded(ctx, `
		UPDATE inventory SET reserved_stock = reserved_stock - $2, updated_at = now()
		WHERE product_custom_id = $1 AND reserved_stock >= $2
		RETURNING `+itemColumns,
		ErrReleaseExceeds, productCustomID, qty)
}

// DeductFloor takes stock for an order, flooring at zero: orders are never
// blocked on insufficient stock at creation time.
func (r *Repo) DeductFloor(ctx context.Context, productCustomID string, qty int) (Item, error) {
	return scanItem(r.DB.QueryRow(ctx, `
		UPDATE inventory SET current_stock = GREATEST(current_stock - $2, 0), updated_at = now()
		WHERE product_custom_id = $1
		RETURNING `+itemColumns, productCustomID, qty))
}

func (r *Repo) Restore(ctx context.Context, productCustomID string, qty int) (Item, error) {
	return scanItem(r.DB.QueryRow(ctx, `
		UPDATE inventory SET current_stock = current_stock + $2, updated_at = now()
		WHERE product_custom_id = $1
		RETURNING `+itemColumns, productCustomID, qty))
}

func (r *Repo) LowStock(ctx context.Context) ([]Item, error) {
	return r.queryItems(ctx, `
		SELECT `+itemColumns+` FROM inventory
		WHERE status = 'active' AND current_stock <= min_stock_alert
		ORDER BY current_stock ASC`)
}

func (r *Repo) Report(ctx context.Context) (Report, error) {
	var rep Report
	err := r.DB.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE i.status = 'active'),
			COUNT(*) FILTER (WHERE i.status = 'active' AND i.current_stock <= i.min_stock_alert),
			COUNT(*) FILTER (WHERE i.status = 'active' AND i.current_stock = 0),
			COALESCE(SUM(i.current_stock * pc.price) FILTER (WHERE i.status = 'active'), 0)
		FROM inventory i
		LEFT JOIN product_customs pc ON pc.id = i.product_custom_id`).
		Scan(&rep.ActiveItems, &rep.LowStockItems, &rep.OutOfStockItems, &rep.TotalStockValue)
	if err != nil {
		return Report{}, fmt.Errorf("inventory report: %w", err)
	}
	return rep, nil
}

func (r *Repo) queryItems(ctx context.Context, sql string, args ...any) ([]Item, error) {
	rows, err := r.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
