package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("order not found")
	// ErrStaleOrder reports a guarded update that matched the id but not the
	// expected current value; the caller re-reads and decides.
	ErrStaleOrder = errors.New("order changed concurrently")
)

// ListFilter narrows and paginates order listings. Customer matches name or
// phone case-insensitively against the indexed columns.
type ListFilter struct {
	Status    *Status
	UserID    *string
	Assigned  bool // only orders with a non-null assignee
	OrderCode string
	Customer  string
	From      *time.Time
	To        *time.Time
	PriceMin  *float64
	PriceMax  *float64
	Page      int
	PerPage   int
}

type Repo struct{ DB *pgxpool.Pool }

const orderColumns = `id, status, user_id, order_code, total_price, information, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o    Order
		code string
		tot  float64
		raw  []byte
	)
	if err := row.Scan(&o.ID, &o.Status, &o.UserID, &code, &tot, &raw, &o.CreatedAt, &o.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	if err := json.Unmarshal(raw, &o.Information); err != nil {
		return Order{}, fmt.Errorf("decode order %s: %w", o.ID, err)
	}
	return o, nil
}

// NextCodeSeq bumps the per-day counter atomically and returns the new
// sequence. A single upsert serialises concurrent issuers on the day row, so
// two creates can never observe the same value.
func (r *Repo) NextCodeSeq(ctx context.Context, dayKey string) (int, error) {
	var seq int
	err := r.DB.QueryRow(ctx, `
		INSERT INTO order_code_counters (day_key, last_seq) VALUES ($1, 1)
		ON CONFLICT (day_key) DO UPDATE SET last_seq = order_code_counters.last_seq + 1
		RETURNING last_seq`, dayKey).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next code seq: %w", err)
	}
	return seq, nil
}

func (r *Repo) Insert(ctx context.Context, o *Order) error {
	raw, err := json.Marshal(o.Information)
	if err != nil {
		return err
	}
	contact := o.Information.Contact()
	_, err = r.DB.Exec(ctx, `
		INSERT INTO orders (id, status, user_id, order_code, customer_name, customer_phone,
		                    customer_email, total_price, information, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		o.ID, o.Status, o.UserID, o.Information.OrderCode,
		contact.Name, contact.Phone, contact.Email,
		o.Information.Pricing.Total, raw, o.CreatedAt, o.UpdatedAt)
	return err
}

func (r *Repo) Get(ctx context.Context, id string) (Order, error) {
	return scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
}

// UpdateInformation persists a new status together with the full document
// (status history lives inside it). The statement only fires while the row
// still holds prev, so a concurrent transition cannot be overwritten and lose
// its history entry.
func (r *Repo) UpdateInformation(ctx context.Context, id string, prev, next Status, inf Information) error {
	raw, err := json.Marshal(inf)
	if err != nil {
		return err
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status=$3, information=$4, updated_at=now()
		WHERE id=$1 AND status=$2`,
		id, prev, next, raw)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return r.staleOrMissing(ctx, id)
	}
	return nil
}

// UpdateAssignment swaps the assignee, but only while the current assignee
// still matches expect. The guard rides in the statement itself: two
// concurrent claims on the same order can never both win.
func (r *Repo) UpdateAssignment(ctx context.Context, id string, expect, next *string) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET user_id=$3, updated_at=now()
		WHERE id=$1 AND user_id IS NOT DISTINCT FROM $2`,
		id, expect, next)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return r.staleOrMissing(ctx, id)
	}
	return nil
}

func (r *Repo) staleOrMissing(ctx context.Context, id string) error {
	var exists bool
	if err := r.DB.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE id=$1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStaleOrder
}

func (r *Repo) Delete(ctx context.Context, id string) error {
	ct, err := r.DB.Exec(ctx, `DELETE FROM orders WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns one page of orders plus the unpaginated total.
func (r *Repo) List(ctx context.Context, f ListFilter) ([]Order, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Status != nil {
		where += ` AND status=` + arg(*f.Status)
	}
	if f.UserID != nil {
		where += ` AND user_id=` + arg(*f.UserID)
	}
	if f.Assigned {
		where += ` AND user_id IS NOT NULL`
	}
	if f.OrderCode != "" {
		where += ` AND order_code ILIKE ` + arg("%"+f.OrderCode+"%")
	}
	if f.Customer != "" {
		p := arg("%" + f.Customer + "%")
		where += ` AND (customer_name ILIKE ` + p + ` OR customer_phone ILIKE ` + p + `)`
	}
	if f.From != nil {
		where += ` AND created_at >= ` + arg(*f.From)
	}
	if f.To != nil {
		where += ` AND created_at <= ` + arg(*f.To)
	}
	if f.PriceMin != nil {
		where += ` AND total_price >= ` + arg(*f.PriceMin)
	}
	if f.PriceMax != nil {
		where += ` AND total_price <= ` + arg(*f.PriceMax)
	}

	var total int
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, per := f.Page, f.PerPage
	if page < 1 {
		page = 1
	}
	if per < 1 || per > 100 {
		per = 20
	}
	q := `SELECT ` + orderColumns + ` FROM orders` + where +
		` ORDER BY created_at DESC LIMIT ` + arg(per) + ` OFFSET ` + arg((page-1)*per)

	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}
